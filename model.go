package kfn

import (
	"encoding/gob"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
	"gonum.org/v1/gonum/mat"
)

// Model is a trained furthest-neighbor index: the built spatial tree over
// a reference dataset plus the parameters it was built with. A model can
// be passed back into Search instead of raw reference data, skipping
// re-indexing; searching a model with the same query set and k reproduces
// the results of the original training invocation.
//
// A model owns its tree and backing point data. Close releases them;
// closing or searching a closed model is an error.
type Model struct {
	tree     SpatialTree
	treeType TreeType
	leafSize int
	epsilon  float64
	metric   DistanceMetric
	basis    *mat.Dense // random-basis rotation applied before indexing; nil if none
	closed   bool
}

// TreeType returns the spatial index structure the model was built with.
func (m *Model) TreeType() TreeType { return m.treeType }

// LeafSize returns the leaf size the model's tree was built with.
func (m *Model) LeafSize() int { return m.leafSize }

// Epsilon returns the approximation parameter recorded at build time.
func (m *Model) Epsilon() float64 { return m.epsilon }

// NumPoints returns the number of indexed reference points.
func (m *Model) NumPoints() int { return m.tree.NumPoints() }

// Dims returns the dimensionality of the indexed reference points.
func (m *Model) Dims() int { return m.tree.NumFeatures() }

// Close releases the model's tree and backing data. Closing twice is a
// defect and returns an error wrapping ErrModelClosed.
func (m *Model) Close() error {
	if m.closed {
		return fmt.Errorf("kfn: closing model: %w", ErrModelClosed)
	}
	m.closed = true
	m.tree = nil
	m.basis = nil
	return nil
}

// metric names used by the model wire format and the CLI.
const (
	metricNameEuclidean = "euclidean"
	metricNameManhattan = "manhattan"
	metricNameChebyshev = "chebyshev"
	metricNameMinkowski = "minkowski"
)

// MetricByName resolves a metric name. p is only consulted for
// "minkowski".
func MetricByName(name string, p float64) (DistanceMetric, error) {
	switch name {
	case metricNameEuclidean, "":
		return EuclideanMetric{}, nil
	case metricNameManhattan:
		return ManhattanMetric{}, nil
	case metricNameChebyshev:
		return ChebyshevMetric{}, nil
	case metricNameMinkowski:
		if p < 1 {
			return nil, fmt.Errorf("kfn: minkowski exponent must be >= 1, got %v: %w", p, ErrInvalidArgument)
		}
		return MinkowskiMetric{P: p}, nil
	default:
		return nil, fmt.Errorf("kfn: unknown metric %q: %w", name, ErrInvalidArgument)
	}
}

func metricName(m DistanceMetric) (name string, p float64) {
	switch v := m.(type) {
	case ManhattanMetric:
		return metricNameManhattan, 0
	case ChebyshevMetric:
		return metricNameChebyshev, 0
	case MinkowskiMetric:
		return metricNameMinkowski, v.P
	default:
		return metricNameEuclidean, 0
	}
}

// modelSnapshot is the gob wire form of a Model. Exactly one of KD and
// Ball is set.
type modelSnapshot struct {
	TreeType   string
	LeafSize   int
	Epsilon    float64
	MetricName string
	MinkowskiP float64
	Dims       int
	NumPoints  int
	Basis      []float64 // dims*dims row-major; nil when no random basis
	KD         *kdSnapshot
	Ball       *ballSnapshot
}

type kdSnapshot struct {
	Data      []float64
	IdxArray  []int
	Nodes     []NodeData
	BoundsMin []float64
	BoundsMax []float64
	NumNodes  int
}

type ballSnapshot struct {
	Data      []float64
	IdxArray  []int
	Nodes     []NodeData
	Centroids []float64
	NumNodes  int
}

// Save writes the model as a zstd-compressed gob stream.
func (m *Model) Save(w io.Writer) error {
	if m.closed {
		return fmt.Errorf("kfn: saving model: %w", ErrModelClosed)
	}
	name, p := metricName(m.metric)
	snap := modelSnapshot{
		TreeType:   string(m.treeType),
		LeafSize:   m.leafSize,
		Epsilon:    m.epsilon,
		MetricName: name,
		MinkowskiP: p,
		Dims:       m.tree.NumFeatures(),
		NumPoints:  m.tree.NumPoints(),
	}
	if m.basis != nil {
		snap.Basis = append([]float64(nil), m.basis.RawMatrix().Data...)
	}

	switch t := m.tree.(type) {
	case *KDTree:
		snap.KD = &kdSnapshot{
			Data:      t.data,
			IdxArray:  t.idxArray,
			Nodes:     t.nodes,
			BoundsMin: t.nodeBoundsMin,
			BoundsMax: t.nodeBoundsMax,
			NumNodes:  t.numNodes,
		}
	case *BallTree:
		snap.Ball = &ballSnapshot{
			Data:      t.data,
			IdxArray:  t.idxArray,
			Nodes:     t.nodes,
			Centroids: t.centroids,
			NumNodes:  t.numNodes,
		}
	default:
		return fmt.Errorf("kfn: cannot serialize tree type %T", m.tree)
	}

	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("kfn: saving model: %w", err)
	}
	if err := gob.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return fmt.Errorf("kfn: saving model: %w", err)
	}
	return zw.Close()
}

// LoadModel reads a model previously written by Save.
func LoadModel(r io.Reader) (*Model, error) {
	zr, err := zstd.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("kfn: loading model: %w", err)
	}
	defer zr.Close()

	var snap modelSnapshot
	if err := gob.NewDecoder(zr).Decode(&snap); err != nil {
		return nil, fmt.Errorf("kfn: loading model: %w", err)
	}

	metric, err := MetricByName(snap.MetricName, snap.MinkowskiP)
	if err != nil {
		return nil, err
	}

	m := &Model{
		treeType: TreeType(snap.TreeType),
		leafSize: snap.LeafSize,
		epsilon:  snap.Epsilon,
		metric:   metric,
	}
	if snap.Basis != nil {
		m.basis = mat.NewDense(snap.Dims, snap.Dims, snap.Basis)
	}

	switch {
	case snap.KD != nil:
		m.tree = &KDTree{
			data:          snap.KD.Data,
			n:             snap.NumPoints,
			dims:          snap.Dims,
			leafSize:      snap.LeafSize,
			metric:        metric,
			idxArray:      snap.KD.IdxArray,
			nodes:         snap.KD.Nodes,
			nodeBoundsMin: snap.KD.BoundsMin,
			nodeBoundsMax: snap.KD.BoundsMax,
			numNodes:      snap.KD.NumNodes,
		}
	case snap.Ball != nil:
		m.tree = &BallTree{
			data:      snap.Ball.Data,
			n:         snap.NumPoints,
			dims:      snap.Dims,
			leafSize:  snap.LeafSize,
			metric:    metric,
			idxArray:  snap.Ball.IdxArray,
			nodes:     snap.Ball.Nodes,
			centroids: snap.Ball.Centroids,
			numNodes:  snap.Ball.NumNodes,
		}
	default:
		return nil, fmt.Errorf("kfn: model stream contains no tree")
	}

	return m, nil
}
