package kfn

import (
	"math"
	"sort"
)

// KDTree is a KD-tree spatial index for furthest-neighbor queries. Points
// are stored in a flat row-major array and reordered internally via an
// index permutation array.
//
// The tree is stored as a complete binary tree in array form:
//   - node i has children at 2*i+1 and 2*i+2
//   - node bounds are stored as min/max per dimension per node
type KDTree struct {
	data     []float64 // flat row-major point data (n * dims)
	n        int       // number of points
	dims     int       // dimensionality
	leafSize int
	metric   DistanceMetric
	idxArray []int      // permutation: tree-order position → original index
	nodes    []NodeData // one entry per tree node
	// nodeBoundsMin[node*dims + j] = min value of feature j in node
	nodeBoundsMin []float64
	// nodeBoundsMax[node*dims + j] = max value of feature j in node
	nodeBoundsMax []float64
	numNodes      int
}

// NewKDTree builds a KD-tree from flat row-major data with n points of
// dimensionality dims. leafSize controls the max points per leaf node.
func NewKDTree(data []float64, n, dims int, metric DistanceMetric, leafSize int) *KDTree {
	if leafSize < 1 {
		leafSize = 1
	}

	// Copy data and build identity index array.
	dataCopy := make([]float64, len(data))
	copy(dataCopy, data)
	idxArray := make([]int, n)
	for i := range idxArray {
		idxArray[i] = i
	}

	// Pre-allocate tree arrays. A complete binary tree with n leaves of
	// size leafSize needs at most 2*ceil(n/leafSize) nodes, but we use
	// a generous upper bound since the median split may not be perfectly balanced.
	maxNodes := treeMaxNodes(n, leafSize)

	t := &KDTree{
		data:          dataCopy,
		n:             n,
		dims:          dims,
		leafSize:      leafSize,
		metric:        metric,
		idxArray:      idxArray,
		nodes:         make([]NodeData, maxNodes),
		nodeBoundsMin: make([]float64, maxNodes*dims),
		nodeBoundsMax: make([]float64, maxNodes*dims),
	}

	if n > 0 {
		t.buildNode(0, 0, n)
		t.numNodes = countTreeNodes(t.nodes, 0, maxNodes)
	}

	return t
}

// treeMaxNodes returns an upper bound on the number of nodes needed for a
// binary tree with n points and the given leaf size.
func treeMaxNodes(n, leafSize int) int {
	if n == 0 {
		return 1
	}
	// Depth of tree: ceil(log2(ceil(n/leafSize))) + 1.
	// Number of nodes in a complete binary tree of depth d = 2^(d+1) - 1.
	leaves := (n + leafSize - 1) / leafSize
	depth := 0
	v := 1
	for v < leaves {
		v *= 2
		depth++
	}
	return (1 << (depth + 1)) - 1 + 2 // +2 for safety margin
}

// countTreeNodes counts how many nodes were actually initialized by the build.
func countTreeNodes(nodes []NodeData, nodeID, maxNodes int) int {
	if nodeID >= maxNodes {
		return 0
	}
	if nodes[nodeID].IdxStart == 0 && nodes[nodeID].IdxEnd == 0 && nodeID != 0 {
		return 0
	}
	count := 1
	left := 2*nodeID + 1
	right := 2*nodeID + 2
	if !nodes[nodeID].IsLeaf {
		count += countTreeNodes(nodes, left, maxNodes)
		count += countTreeNodes(nodes, right, maxNodes)
	}
	return count
}

// buildNode recursively builds the tree for points in idxArray[start:end].
func (t *KDTree) buildNode(nodeID, start, end int) {
	// Grow arrays if needed (shouldn't happen with good upper bound).
	for nodeID >= len(t.nodes) {
		t.nodes = append(t.nodes, NodeData{})
		t.nodeBoundsMin = append(t.nodeBoundsMin, make([]float64, t.dims)...)
		t.nodeBoundsMax = append(t.nodeBoundsMax, make([]float64, t.dims)...)
	}

	// Compute bounds for this node.
	t.computeNodeBounds(nodeID, start, end)

	count := end - start
	if count <= t.leafSize {
		t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: true}
		return
	}

	// Find dimension with greatest spread.
	splitDim := 0
	maxSpread := -1.0
	for d := 0; d < t.dims; d++ {
		spread := t.nodeBoundsMax[nodeID*t.dims+d] - t.nodeBoundsMin[nodeID*t.dims+d]
		if spread > maxSpread {
			maxSpread = spread
			splitDim = d
		}
	}

	// Sort by the split dimension and split at the median.
	t.sortByDimension(start, end, splitDim)
	mid := start + count/2

	t.nodes[nodeID] = NodeData{IdxStart: start, IdxEnd: end, IsLeaf: false}

	t.buildNode(2*nodeID+1, start, mid)
	t.buildNode(2*nodeID+2, mid, end)
}

// computeNodeBounds computes min/max per dimension for points idxArray[start:end].
func (t *KDTree) computeNodeBounds(nodeID, start, end int) {
	base := nodeID * t.dims
	for d := 0; d < t.dims; d++ {
		t.nodeBoundsMin[base+d] = math.Inf(1)
		t.nodeBoundsMax[base+d] = math.Inf(-1)
	}
	for i := start; i < end; i++ {
		ptIdx := t.idxArray[i]
		for d := 0; d < t.dims; d++ {
			v := t.data[ptIdx*t.dims+d]
			if v < t.nodeBoundsMin[base+d] {
				t.nodeBoundsMin[base+d] = v
			}
			if v > t.nodeBoundsMax[base+d] {
				t.nodeBoundsMax[base+d] = v
			}
		}
	}
}

// sortByDimension sorts idxArray[start:end] by the given dimension.
// Equal coordinates fall back to the original index so builds are fully
// deterministic regardless of input order.
func (t *KDTree) sortByDimension(start, end, dim int) {
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

func (t *KDTree) Data() []float64        { return t.data }
func (t *KDTree) NumPoints() int         { return t.n }
func (t *KDTree) NumFeatures() int       { return t.dims }
func (t *KDTree) IdxArray() []int        { return t.idxArray }
func (t *KDTree) NumNodes() int          { return t.numNodes }
func (t *KDTree) Metric() DistanceMetric { return t.metric }

func (t *KDTree) ChildNodes(node int) (left, right int) {
	return 2*node + 1, 2*node + 2
}

func (t *KDTree) Node(id int) (NodeData, bool) {
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
// distance between a point and any point in the given node: the distance
// from the point to the farthest corner of the node's bounding box.
func (t *KDTree) MaxRdistPoint(node int, point []float64) float64 {
	if node >= len(t.nodes) {
		return math.Inf(-1)
	}
	dims := t.dims
	base := node * dims

	if _, ok := t.metric.(ChebyshevMetric); ok {
		var rdist float64
		for j := 0; j < dims; j++ {
			d := math.Max(point[j]-t.nodeBoundsMin[base+j], t.nodeBoundsMax[base+j]-point[j])
			if d > rdist {
				rdist = d
			}
		}
		return rdist
	}

	var rdist float64
	p := metricP(t.metric)
	for j := 0; j < dims; j++ {
		d := math.Max(point[j]-t.nodeBoundsMin[base+j], t.nodeBoundsMax[base+j]-point[j])
		rdist += powDim(d, p)
	}
	return rdist
}

// powDim raises a per-dimension gap to the metric exponent with the same
// arithmetic the metric's ReducedDistance uses, so a bound built from
// dominating gaps also dominates after rounding.
func powDim(d, p float64) float64 {
	switch p {
	case 1:
		return d
	case 2:
		return d * d
	}
	return math.Pow(d, p)
}

// MaxRdistDual returns an upper bound in reduced-distance space on the
// distance between any point in node of this tree and any point in
// otherNode of other. Aggregates the farthest per-dimension corner gaps of
// the two bounding boxes; other must also be a *KDTree.
func (t *KDTree) MaxRdistDual(node int, other SpatialTree, otherNode int) float64 {
	o, ok := other.(*KDTree)
	if !ok {
		panic("kfn: MaxRdistDual called across different tree types")
	}
	dims := t.dims
	base1 := node * dims
	base2 := otherNode * dims

	if _, ok := t.metric.(ChebyshevMetric); ok {
		var rdist float64
		for j := 0; j < dims; j++ {
			d := math.Max(t.nodeBoundsMax[base1+j]-o.nodeBoundsMin[base2+j],
				o.nodeBoundsMax[base2+j]-t.nodeBoundsMin[base1+j])
			if d > rdist {
				rdist = d
			}
		}
		return rdist
	}

	var rdist float64
	p := metricP(t.metric)
	for j := 0; j < dims; j++ {
		d := math.Max(t.nodeBoundsMax[base1+j]-o.nodeBoundsMin[base2+j],
			o.nodeBoundsMax[base2+j]-t.nodeBoundsMin[base1+j])
		rdist += powDim(d, p)
	}
	return rdist
}
