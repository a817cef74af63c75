package kfn

import "fmt"

// NodeData describes a single node in a spatial tree.
type NodeData struct {
	IdxStart, IdxEnd int
	IsLeaf           bool
	Radius           float64 // ball tree radius; 0 for KD-tree
}

// SpatialTree is the read interface for KD-trees and Ball trees, used by
// the furthest-neighbor traversals. Trees own a copy of their point data
// in flat row-major layout and reorder points through an index permutation.
type SpatialTree interface {
	// Data returns the flat row-major point data owned by the tree.
	Data() []float64

	// NumPoints returns the number of points in the tree.
	NumPoints() int

	// NumFeatures returns the dimensionality of each point.
	NumFeatures() int

	// IdxArray returns the permutation array mapping tree-order positions
	// back to original point indices.
	IdxArray() []int

	// Node returns the metadata for one node by positional ID, reporting
	// false for IDs that fall in the gaps of the array-form layout.
	Node(id int) (NodeData, bool)

	// NumNodes returns the total number of nodes (internal + leaf).
	NumNodes() int

	// ChildNodes returns the left and right child node indices.
	// Behavior is undefined for leaf nodes.
	ChildNodes(node int) (left, right int)

	// MaxRdistPoint returns an upper bound (in reduced-distance space) on
	// the distance between a point and any point in the given node.
	MaxRdistPoint(node int, point []float64) float64

	// MaxRdistDual returns an upper bound (in reduced-distance space) on
	// the distance between any point in node of this tree and any point in
	// otherNode of other. Both trees must be the same concrete type.
	MaxRdistDual(node int, other SpatialTree, otherNode int) float64

	// Metric returns the distance metric the tree was built with.
	Metric() DistanceMetric
}

// TreeType selects the spatial index structure.
type TreeType string

const (
	TreeKD   TreeType = "kd"
	TreeBall TreeType = "ball"
)

// NewTree builds a spatial tree of the given type over flat row-major data
// with n points of dimensionality dims.
func NewTree(tt TreeType, data []float64, n, dims int, metric DistanceMetric, leafSize int) (SpatialTree, error) {
	switch tt {
	case TreeKD:
		if !KDTreeValidMetric(metric) {
			return nil, fmt.Errorf("kfn: metric %T is not supported by KD-trees: %w", metric, ErrInvalidArgument)
		}
		return NewKDTree(data, n, dims, metric, leafSize), nil
	case TreeBall:
		return NewBallTree(data, n, dims, metric, leafSize), nil
	default:
		return nil, fmt.Errorf("kfn: unknown tree type %q: %w", tt, ErrInvalidArgument)
	}
}

// KDTreeValidMetric reports whether the metric supports KD-tree acceleration.
// KD-trees require metrics that decompose along coordinate axes:
// Euclidean, Manhattan, Chebyshev, Minkowski.
func KDTreeValidMetric(m DistanceMetric) bool {
	switch m.(type) {
	case EuclideanMetric, ManhattanMetric, ChebyshevMetric, MinkowskiMetric:
		return true
	default:
		return false
	}
}
