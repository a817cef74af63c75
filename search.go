package kfn

import (
	"container/heap"
	"math"
	"sync"
)

// Algorithm selects the furthest-neighbor search strategy.
type Algorithm string

const (
	// AlgorithmDualTree traverses a query tree and the reference tree
	// simultaneously, pruning node pairs that cannot improve any query in
	// the current query subtree. Exact.
	AlgorithmDualTree Algorithm = "dual_tree"

	// AlgorithmSingleTree descends the reference tree once per query
	// point, pruning subtrees whose upper bound cannot beat the current
	// k-th furthest candidate. Exact.
	AlgorithmSingleTree Algorithm = "single_tree"

	// AlgorithmNaive scans every reference point for every query point.
	// Exact; the baseline the tree strategies must agree with.
	AlgorithmNaive Algorithm = "naive"

	// AlgorithmGreedy descends the reference tree defeatist-style, always
	// taking the more promising child and never backtracking past what is
	// needed to fill k slots. Approximate.
	AlgorithmGreedy Algorithm = "greedy"
)

// furthestItem is one candidate in a bounded furthest-neighbor heap.
// rdist is in reduced-distance space.
type furthestItem struct {
	index int
	rdist float64
}

// furthestHeap keeps the k furthest candidates seen so far with the worst
// of them (smallest distance, ties broken toward larger index) on top, so
// a new candidate only has to beat the root. The eviction order is the
// exact inverse of the output order: decreasing distance, ties broken by
// ascending reference index.
type furthestHeap []furthestItem

func (h furthestHeap) Len() int { return len(h) }
func (h furthestHeap) Less(i, j int) bool {
	if h[i].rdist != h[j].rdist {
		return h[i].rdist < h[j].rdist
	}
	return h[i].index > h[j].index
}
func (h furthestHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }
func (h *furthestHeap) Push(x any)   { *h = append(*h, x.(furthestItem)) }
func (h *furthestHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}

// offer inserts a candidate, evicting the current worst when full.
func (h *furthestHeap) offer(index int, rdist float64, k int) {
	if h.Len() < k {
		heap.Push(h, furthestItem{index: index, rdist: rdist})
		return
	}
	top := (*h)[0]
	if rdist > top.rdist || (rdist == top.rdist && index < top.index) {
		(*h)[0] = furthestItem{index: index, rdist: rdist}
		heap.Fix(h, 0)
	}
}

// kthRdist returns the reduced distance of the current k-th furthest
// candidate, or -Inf while the heap is not yet full.
func (h furthestHeap) kthRdist(k int) float64 {
	if len(h) < k {
		return math.Inf(-1)
	}
	return h[0].rdist
}

// extract drains the heap into (neighbors, distances) ordered by
// decreasing true distance, ties by ascending reference index.
func (h *furthestHeap) extract(metric DistanceMetric) ([]int, []float64) {
	n := h.Len()
	idx := make([]int, n)
	dist := make([]float64, n)
	for i := n - 1; i >= 0; i-- {
		item := heap.Pop(h).(furthestItem)
		idx[i] = item.index
		dist[i] = metric.RdistToDist(item.rdist)
	}
	return idx, dist
}

// canPrune reports whether a subtree (or node pair) with upper bound
// maxRdist can be discarded given the current k-th candidate. epsilon
// relaxes the bound for approximate search: results are guaranteed within
// a factor (1-epsilon) of the true furthest distance. The comparison is
// strict so that equal-distance candidates are still visited and resolved
// by the index tie-break.
func canPrune(metric DistanceMetric, maxRdist, kthRdist, epsilon float64) bool {
	if math.IsInf(kthRdist, -1) {
		return false
	}
	if epsilon == 0 {
		return maxRdist < kthRdist
	}
	return (1-epsilon)*metric.RdistToDist(maxRdist) < metric.RdistToDist(kthRdist)
}

// --- naive ---

// searchNaive scans all reference points for each query row, partitioning
// query rows across workers. refData and queries are flat row-major.
// Results per query are ordered by decreasing distance.
func searchNaive(refData []float64, nRef, dims int, queries []float64, m, k int, metric DistanceMetric, numWorkers int) ([][]int, [][]float64) {
	neighbors := make([][]int, m)
	distances := make([][]float64, m)

	scan := func(start, end int) {
		for q := start; q < end; q++ {
			query := queries[q*dims : (q+1)*dims]
			h := &furthestHeap{}
			for r := 0; r < nRef; r++ {
				rd := metric.ReducedDistance(query, refData[r*dims:(r+1)*dims])
				h.offer(r, rd, k)
			}
			neighbors[q], distances[q] = h.extract(metric)
		}
	}

	if numWorkers <= 1 || m <= 1 {
		scan(0, m)
		return neighbors, distances
	}

	// Row ranges don't overlap, so no synchronization is needed for writes.
	var wg sync.WaitGroup
	rowsPerWorker := (m + numWorkers - 1) / numWorkers
	for w := 0; w < numWorkers; w++ {
		start := w * rowsPerWorker
		end := min(start+rowsPerWorker, m)
		if start >= end {
			break
		}
		wg.Add(1)
		go func(start, end int) {
			defer wg.Done()
			scan(start, end)
		}(start, end)
	}
	wg.Wait()

	return neighbors, distances
}

// --- single-tree ---

// searchSingleTree runs one pruned descent of the reference tree per query
// row. queries is flat row-major with m rows.
func searchSingleTree(tree SpatialTree, queries []float64, m, k int, epsilon float64) ([][]int, [][]float64) {
	dims := tree.NumFeatures()
	metric := tree.Metric()
	neighbors := make([][]int, m)
	distances := make([][]float64, m)

	for q := 0; q < m; q++ {
		query := queries[q*dims : (q+1)*dims]
		h := &furthestHeap{}
		singleTreeDescend(tree, 0, query, k, epsilon, h)
		neighbors[q], distances[q] = h.extract(metric)
	}

	return neighbors, distances
}

func singleTreeDescend(tree SpatialTree, nodeID int, query []float64, k int, epsilon float64, h *furthestHeap) {
	node, ok := tree.Node(nodeID)
	if !ok {
		return
	}
	metric := tree.Metric()

	if node.IsLeaf {
		scanLeaf(tree, node, query, k, h)
		return
	}

	left, right := tree.ChildNodes(nodeID)
	leftBound := tree.MaxRdistPoint(left, query)
	rightBound := tree.MaxRdistPoint(right, query)

	// Visit the child that can hold farther points first; its candidates
	// tighten the bound before the other child is considered.
	farChild, nearChild := left, right
	farBound, nearBound := leftBound, rightBound
	if rightBound > leftBound {
		farChild, nearChild = right, left
		farBound, nearBound = rightBound, leftBound
	}

	if !canPrune(metric, farBound, h.kthRdist(k), epsilon) {
		singleTreeDescend(tree, farChild, query, k, epsilon, h)
	}
	if !canPrune(metric, nearBound, h.kthRdist(k), epsilon) {
		singleTreeDescend(tree, nearChild, query, k, epsilon, h)
	}
}

// scanLeaf offers every point of a leaf node to the heap.
func scanLeaf(tree SpatialTree, node NodeData, query []float64, k int, h *furthestHeap) {
	data := tree.Data()
	idx := tree.IdxArray()
	dims := tree.NumFeatures()
	metric := tree.Metric()
	for i := node.IdxStart; i < node.IdxEnd; i++ {
		ptIdx := idx[i]
		rd := metric.ReducedDistance(query, data[ptIdx*dims:(ptIdx+1)*dims])
		h.offer(ptIdx, rd, k)
	}
}

// --- dual-tree ---

// searchDualTree traverses the query tree and reference tree together.
// Both trees must be the same concrete type. The query tree indexes the
// query set; heaps are addressed by original query index through the query
// tree's permutation.
func searchDualTree(refTree, queryTree SpatialTree, k int, epsilon float64) ([][]int, [][]float64) {
	m := queryTree.NumPoints()
	metric := refTree.Metric()
	heaps := make([]furthestHeap, m)

	dualDescend(refTree, queryTree, 0, 0, k, epsilon, heaps)

	neighbors := make([][]int, m)
	distances := make([][]float64, m)
	for q := 0; q < m; q++ {
		neighbors[q], distances[q] = heaps[q].extract(metric)
	}
	return neighbors, distances
}

func dualDescend(refTree, queryTree SpatialTree, rnode, qnode, k int, epsilon float64, heaps []furthestHeap) {
	qnd, ok := queryTree.Node(qnode)
	if !ok {
		return
	}
	rnd, ok := refTree.Node(rnode)
	if !ok {
		return
	}
	metric := refTree.Metric()

	// Prune when no query under qnode can improve: the pair's upper bound
	// falls below the weakest current k-th candidate in the subtree.
	bound := queryTree.MaxRdistDual(qnode, refTree, rnode)
	if canPrune(metric, bound, minKthRdist(queryTree, qnd, heaps, k), epsilon) {
		return
	}

	if qnd.IsLeaf && rnd.IsLeaf {
		qData := queryTree.Data()
		qIdx := queryTree.IdxArray()
		dims := queryTree.NumFeatures()
		for i := qnd.IdxStart; i < qnd.IdxEnd; i++ {
			qi := qIdx[i]
			query := qData[qi*dims : (qi+1)*dims]
			scanLeaf(refTree, rnd, query, k, &heaps[qi])
		}
		return
	}

	if !qnd.IsLeaf && (rnd.IsLeaf || qnd.IdxEnd-qnd.IdxStart >= rnd.IdxEnd-rnd.IdxStart) {
		qleft, qright := queryTree.ChildNodes(qnode)
		dualDescend(refTree, queryTree, rnode, qleft, k, epsilon, heaps)
		dualDescend(refTree, queryTree, rnode, qright, k, epsilon, heaps)
		return
	}

	// Split the reference node, visiting the more promising half first.
	rleft, rright := refTree.ChildNodes(rnode)
	leftBound := boundOrNegInf(queryTree, qnode, refTree, rleft)
	rightBound := boundOrNegInf(queryTree, qnode, refTree, rright)
	if rightBound > leftBound {
		rleft, rright = rright, rleft
	}
	dualDescend(refTree, queryTree, rleft, qnode, k, epsilon, heaps)
	dualDescend(refTree, queryTree, rright, qnode, k, epsilon, heaps)
}

func boundOrNegInf(queryTree SpatialTree, qnode int, refTree SpatialTree, rnode int) float64 {
	if _, ok := refTree.Node(rnode); !ok {
		return math.Inf(-1)
	}
	return queryTree.MaxRdistDual(qnode, refTree, rnode)
}

// minKthRdist returns the weakest k-th candidate distance across all query
// points under the node, or -Inf if any of their heaps is not yet full.
func minKthRdist(queryTree SpatialTree, qnd NodeData, heaps []furthestHeap, k int) float64 {
	qIdx := queryTree.IdxArray()
	minR := math.Inf(1)
	for i := qnd.IdxStart; i < qnd.IdxEnd; i++ {
		r := heaps[qIdx[i]].kthRdist(k)
		if math.IsInf(r, -1) {
			return r
		}
		if r < minR {
			minR = r
		}
	}
	return minR
}

// --- greedy ---

// searchGreedy performs a defeatist descent per query: always the child
// with the larger upper bound, no backtracking. Skipped siblings are kept
// on a stack and scanned (most recently skipped first) only when the
// chosen leaf holds fewer than k points, so every query still gets k
// results. Approximate: the returned distances may undershoot the true
// furthest distances.
func searchGreedy(tree SpatialTree, queries []float64, m, k int) ([][]int, [][]float64) {
	dims := tree.NumFeatures()
	metric := tree.Metric()
	neighbors := make([][]int, m)
	distances := make([][]float64, m)

	for q := 0; q < m; q++ {
		query := queries[q*dims : (q+1)*dims]
		h := &furthestHeap{}

		var skipped []int
		nodeID := 0
		for {
			node, ok := tree.Node(nodeID)
			if !ok {
				break
			}
			if node.IsLeaf {
				scanLeaf(tree, node, query, k, h)
				break
			}
			left, right := tree.ChildNodes(nodeID)
			next, other := left, right
			if tree.MaxRdistPoint(right, query) > tree.MaxRdistPoint(left, query) {
				next, other = right, left
			}
			skipped = append(skipped, other)
			nodeID = next
		}

		// Backfill from skipped subtrees until k candidates exist.
		for h.Len() < k && len(skipped) > 0 {
			nodeID := skipped[len(skipped)-1]
			skipped = skipped[:len(skipped)-1]
			scanSubtree(tree, nodeID, query, k, h)
		}

		neighbors[q], distances[q] = h.extract(metric)
	}

	return neighbors, distances
}

// scanSubtree offers every point under nodeID to the heap, no pruning.
func scanSubtree(tree SpatialTree, nodeID int, query []float64, k int, h *furthestHeap) {
	node, ok := tree.Node(nodeID)
	if !ok {
		return
	}
	if node.IsLeaf {
		scanLeaf(tree, node, query, k, h)
		return
	}
	left, right := tree.ChildNodes(nodeID)
	scanSubtree(tree, left, query, k, h)
	scanSubtree(tree, right, query, k, h)
}
