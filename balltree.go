package kfn

import (
	"math"
	"sort"
)

// BallTree is a ball tree spatial index for furthest-neighbor queries. Each
// node stores a centroid and radius defining the smallest enclosing ball
// for its points.
//
// The tree is stored as a complete binary tree in array form:
//   - node i has children at 2*i+1 and 2*i+2
type BallTree struct {
	data     []float64 // flat row-major point data (n * dims)
	n        int       // number of points
	dims     int       // dimensionality
	leafSize int
	metric   DistanceMetric
	idxArray []int      // permutation: tree-order position → original index
	nodes    []NodeData // one entry per tree node; Radius is used
	// centroids[node*dims .. (node+1)*dims) = centroid of node
	centroids []float64
	numNodes  int
}

// NewBallTree builds a ball tree from flat row-major data with n points
// of dimensionality dims. leafSize controls the max points per leaf node.
func NewBallTree(data []float64, n, dims int, metric DistanceMetric, leafSize int) *BallTree {
	if leafSize < 1 {
		leafSize = 1
	}

	dataCopy := make([]float64, len(data))
	copy(dataCopy, data)
	idxArray := make([]int, n)
	for i := range idxArray {
		idxArray[i] = i
	}

	maxNodes := treeMaxNodes(n, leafSize) // same upper bound as the KD-tree
	t := &BallTree{
		data:      dataCopy,
		n:         n,
		dims:      dims,
		leafSize:  leafSize,
		metric:    metric,
		idxArray:  idxArray,
		nodes:     make([]NodeData, maxNodes),
		centroids: make([]float64, maxNodes*dims),
	}

	if n > 0 {
		t.buildNode(0, 0, n)
		t.numNodes = countTreeNodes(t.nodes, 0, maxNodes)
	}

	return t
}

// buildNode recursively builds the ball tree for points in idxArray[start:end].
func (t *BallTree) buildNode(nodeID, start, end int) {
	for nodeID >= len(t.nodes) {
		t.nodes = append(t.nodes, NodeData{})
		t.centroids = append(t.centroids, make([]float64, t.dims)...)
	}

	t.computeCentroid(nodeID, start, end)

	// Radius: max distance from centroid to any point in this node.
	centroid := t.centroids[nodeID*t.dims : (nodeID+1)*t.dims]
	var radius float64
	for i := start; i < end; i++ {
		ptIdx := t.idxArray[i]
		pt := t.data[ptIdx*t.dims : (ptIdx+1)*t.dims]
		d := t.metric.Distance(centroid, pt)
		if d > radius {
			radius = d
		}
	}

	count := end - start
	if count <= t.leafSize {
		t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: true, Radius: radius}
		return
	}

	t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: false, Radius: radius}

	// Split on the dimension with greatest spread (simple partitioning
	// strategy that works well in practice for moderate dimensionality).
	splitDim := t.findSpreadDim(start, end)
	t.sortByDim(start, end, splitDim)
	mid := start + count/2

	t.buildNode(2*nodeID+1, start, mid)
	t.buildNode(2*nodeID+2, mid, end)
}

// computeCentroid computes the mean of points idxArray[start:end] and stores
// it in the centroids array.
func (t *BallTree) computeCentroid(nodeID, start, end int) {
	base := nodeID * t.dims
	count := float64(end - start)
	for d := 0; d < t.dims; d++ {
		t.centroids[base+d] = 0
	}
	for i := start; i < end; i++ {
		ptIdx := t.idxArray[i]
		for d := 0; d < t.dims; d++ {
			t.centroids[base+d] += t.data[ptIdx*t.dims+d]
		}
	}
	for d := 0; d < t.dims; d++ {
		t.centroids[base+d] /= count
	}
}

// findSpreadDim returns the dimension with the greatest spread among
// points in idxArray[start:end].
func (t *BallTree) findSpreadDim(start, end int) int {
	bestDim := 0
	bestSpread := -1.0
	for d := 0; d < t.dims; d++ {
		minVal := math.Inf(1)
		maxVal := math.Inf(-1)
		for i := start; i < end; i++ {
			v := t.data[t.idxArray[i]*t.dims+d]
			if v < minVal {
				minVal = v
			}
			if v > maxVal {
				maxVal = v
			}
		}
		spread := maxVal - minVal
		if spread > bestSpread {
			bestSpread = spread
			bestDim = d
		}
	}
	return bestDim
}

// sortByDim sorts idxArray[start:end] by the given dimension, breaking
// coordinate ties by original index for deterministic builds.
func (t *BallTree) sortByDim(start, end, dim int) {
	sub := t.idxArray[start:end]
	dims := t.dims
	data := t.data
	sort.Slice(sub, func(i, j int) bool {
		vi, vj := data[sub[i]*dims+dim], data[sub[j]*dims+dim]
		if vi != vj {
			return vi < vj
		}
		return sub[i] < sub[j]
	})
}

// --- SpatialTree interface ---

func (t *BallTree) Data() []float64        { return t.data }
func (t *BallTree) NumPoints() int         { return t.n }
func (t *BallTree) NumFeatures() int       { return t.dims }
func (t *BallTree) IdxArray() []int        { return t.idxArray }
func (t *BallTree) NumNodes() int          { return t.numNodes }
func (t *BallTree) Metric() DistanceMetric { return t.metric }

func (t *BallTree) ChildNodes(node int) (left, right int) {
	return 2*node + 1, 2*node + 2
}

func (t *BallTree) Node(id int) (NodeData, bool) {
	if id < 0 || id >= len(t.nodes) {
		return NodeData{}, false
	}
	nd := t.nodes[id]
	if nd.IdxStart == nd.IdxEnd && id != 0 {
		return NodeData{}, false // positional gap, never initialized
	}
	return nd, true
}

// MaxRdistPoint returns an upper bound in reduced-distance space on the
// distance between a point and any point in the given node:
// dist(point, centroid) + radius, converted to reduced distance.
func (t *BallTree) MaxRdistPoint(node int, point []float64) float64 {
	if node >= len(t.nodes) {
		return math.Inf(-1)
	}
	centroid := t.centroids[node*t.dims : (node+1)*t.dims]
	dist := t.metric.Distance(point, centroid) + t.nodes[node].Radius
	return inflateRdist(t.metric.DistToRdist(dist))
}

// MaxRdistDual returns an upper bound in reduced-distance space on the
// distance between any point in node of this tree and any point in
// otherNode of other: dist(c1, c2) + r1 + r2. other must be a *BallTree.
func (t *BallTree) MaxRdistDual(node int, other SpatialTree, otherNode int) float64 {
	o, ok := other.(*BallTree)
	if !ok {
		panic("kfn: MaxRdistDual called across different tree types")
	}
	c1 := t.centroids[node*t.dims : (node+1)*t.dims]
	c2 := o.centroids[otherNode*o.dims : (otherNode+1)*o.dims]
	dist := t.metric.Distance(c1, c2) + t.nodes[node].Radius + o.nodes[otherNode].Radius
	return inflateRdist(t.metric.DistToRdist(dist))
}

// inflateRdist nudges a ball bound upward. The bound is computed in
// distance space and converted, and that conversion can round below the
// reduced distance of a point the ball actually contains (e.g. DistToRdist
// of sqrt(3) is 2.9999999999999996, under the exact rdist 3). The strict
// prune comparison would then discard equal-distance candidates and break
// the index tie-break. The bound must dominate every contained point
// distance; a relative nudge well above the rounding accumulated across
// dimensions guarantees that, at a negligible cost in pruning.
func inflateRdist(rd float64) float64 {
	return rd * (1 + 1e-12)
}
