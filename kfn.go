package kfn

import (
	"fmt"
	"math/rand"
	"runtime"

	"gonum.org/v1/gonum/mat"
)

// SearchConfig controls one furthest-neighbor search invocation.
// Exactly one of Reference and InputModel must be supplied.
type SearchConfig struct {
	// Reference is the dataset to index and search. Mutually exclusive
	// with InputModel: a model already contains indexed reference data.
	Reference *Dataset

	// Query is the set of points to find furthest neighbors for. When nil,
	// the reference set queries itself.
	Query *Dataset

	// K is the number of furthest neighbors per query point. Must be
	// positive and at most the number of reference points. K of 0 with no
	// query set requests a train-only invocation: the index is built and
	// returned as a model, and no search runs.
	K int

	// Algorithm selects the search strategy. Default: dual_tree.
	Algorithm Algorithm

	// TreeType selects the spatial index for tree strategies.
	// Default: kd.
	TreeType TreeType

	// LeafSize is the maximum number of points in a tree leaf node. Must
	// be >= 1 when supplied; 0 means the default of 20.
	LeafSize int

	// Epsilon is the relative approximation for tree strategies, in
	// [0, 1): returned distances are within a factor (1-Epsilon) of the
	// true k-th furthest distance. 0 means exact.
	Epsilon float64

	// Metric is the distance function. Default: EuclideanMetric.
	Metric DistanceMetric

	// InputModel reuses a previously trained index instead of raw
	// reference data.
	InputModel *Model

	// RandomBasis rotates the data by a random orthogonal basis before
	// indexing. Distances and neighbor identities are unchanged for exact
	// strategies; the rotation is recorded in the output model so later
	// queries are mapped into the same basis.
	RandomBasis bool

	// Seed seeds the random basis generation.
	Seed int64

	// Workers bounds the goroutines used by the naive strategy.
	// 0 means runtime.NumCPU().
	Workers int
}

// Result holds the output of one search invocation.
type Result struct {
	// Neighbors is k × m: column j lists the reference indices of query
	// point j's k furthest neighbors, ordered by decreasing distance
	// (ties by ascending reference index). m is the query count, or the
	// reference count when the reference queried itself.
	Neighbors *IndexMatrix

	// Distances is k × m, co-indexed with Neighbors.
	Distances *mat.Dense

	// Model is the trained index, set only when training occurred (a raw
	// reference dataset was supplied). The caller owns it.
	Model *Model
}

// IndexMatrix is a dense row-major integer matrix, the index-valued
// counterpart of mat.Dense for neighbor outputs.
type IndexMatrix struct {
	rows, cols int
	data       []int
}

// NewIndexMatrix returns a zero-filled rows × cols index matrix.
func NewIndexMatrix(rows, cols int) *IndexMatrix {
	return &IndexMatrix{rows: rows, cols: cols, data: make([]int, rows*cols)}
}

// Dims returns the number of rows and columns.
func (m *IndexMatrix) Dims() (rows, cols int) { return m.rows, m.cols }

// At returns the element at row i, column j.
func (m *IndexMatrix) At(i, j int) int { return m.data[i*m.cols+j] }

// Set assigns the element at row i, column j.
func (m *IndexMatrix) Set(i, j, v int) { m.data[i*m.cols+j] = v }

func applyDefaults(cfg *SearchConfig) {
	if cfg.Algorithm == "" {
		cfg.Algorithm = AlgorithmDualTree
	}
	if cfg.TreeType == "" {
		cfg.TreeType = TreeKD
	}
	if cfg.Metric == nil {
		cfg.Metric = EuclideanMetric{}
	}
	if cfg.LeafSize == 0 {
		cfg.LeafSize = 20
	}
	if cfg.Workers == 0 {
		cfg.Workers = runtime.NumCPU()
	}
}

// validateConfig checks the argument contract before any indexing work.
// The checks run in a fixed precedence: dimensionality, then k, then leaf
// size, then the reference/model conflict, then enum values.
func validateConfig(cfg *SearchConfig) error {
	refDims, refCount := -1, -1
	if cfg.Reference != nil {
		refDims, refCount = cfg.Reference.Dims(), cfg.Reference.Len()
	} else if cfg.InputModel != nil && cfg.InputModel.tree != nil {
		refDims, refCount = cfg.InputModel.Dims(), cfg.InputModel.NumPoints()
	}

	if cfg.Query != nil && refDims >= 0 && cfg.Query.Dims() != refDims {
		return fmt.Errorf("kfn: query dimensionality %d does not match reference dimensionality %d: %w",
			cfg.Query.Dims(), refDims, ErrInvalidArgument)
	}

	if cfg.Reference == nil && cfg.InputModel == nil {
		return fmt.Errorf("kfn: either a reference dataset or an input model is required: %w", ErrInvalidArgument)
	}

	if cfg.K < 0 {
		return fmt.Errorf("kfn: k must be positive, got %d: %w", cfg.K, ErrInvalidArgument)
	}
	if cfg.K == 0 {
		if cfg.Query != nil {
			return fmt.Errorf("kfn: a query set requires k: %w", ErrInvalidArgument)
		}
		if cfg.Reference == nil {
			return fmt.Errorf("kfn: an input model without k computes nothing: %w", ErrInvalidArgument)
		}
	}
	if refCount >= 0 && cfg.K > refCount {
		return fmt.Errorf("kfn: k (%d) must not exceed the number of reference points (%d): %w",
			cfg.K, refCount, ErrInvalidArgument)
	}

	if cfg.LeafSize < 1 {
		return fmt.Errorf("kfn: leaf size must be >= 1, got %d: %w", cfg.LeafSize, ErrInvalidArgument)
	}

	if cfg.Reference != nil && cfg.InputModel != nil {
		return fmt.Errorf("kfn: reference data and input model are mutually exclusive: %w", ErrInvalidArgument)
	}

	switch cfg.Algorithm {
	case AlgorithmDualTree, AlgorithmSingleTree, AlgorithmNaive, AlgorithmGreedy:
	default:
		return fmt.Errorf("kfn: unknown algorithm %q: %w", cfg.Algorithm, ErrInvalidArgument)
	}
	switch cfg.TreeType {
	case TreeKD, TreeBall:
	default:
		return fmt.Errorf("kfn: unknown tree type %q: %w", cfg.TreeType, ErrInvalidArgument)
	}
	if cfg.Epsilon < 0 || cfg.Epsilon >= 1 {
		return fmt.Errorf("kfn: epsilon must be in [0, 1), got %v: %w", cfg.Epsilon, ErrInvalidArgument)
	}

	return nil
}

// Search validates the configuration, builds or reuses a spatial index,
// runs the selected furthest-neighbor strategy, and returns the k × m
// neighbor and distance matrices. On a validation failure nothing is
// computed and no partial result is returned.
func Search(cfg SearchConfig) (*Result, error) {
	applyDefaults(&cfg)
	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}

	var (
		tree    SpatialTree
		metric  DistanceMetric
		basis   *mat.Dense
		trained *Model
	)

	if cfg.InputModel != nil {
		m := cfg.InputModel
		if m.closed || m.tree == nil {
			return nil, fmt.Errorf("kfn: searching input model: %w", ErrModelClosed)
		}
		tree = m.tree
		metric = m.metric
		basis = m.basis
	} else {
		metric = cfg.Metric
		ref := cfg.Reference
		if cfg.RandomBasis {
			var err error
			basis, err = randomOrthogonalBasis(ref.Dims(), cfg.Seed)
			if err != nil {
				return nil, err
			}
			ref = rotateDataset(ref, basis)
		}
		t, err := NewTree(cfg.TreeType, ref.flatPoints(), ref.Len(), ref.Dims(), metric, cfg.LeafSize)
		if err != nil {
			return nil, err
		}
		tree = t
		trained = &Model{
			tree:     tree,
			treeType: cfg.TreeType,
			leafSize: cfg.LeafSize,
			epsilon:  cfg.Epsilon,
			metric:   metric,
			basis:    basis,
		}
	}

	// Train-only invocation: build the index, skip the search.
	if cfg.K == 0 {
		return &Result{Model: trained}, nil
	}

	n := tree.NumPoints()
	dims := tree.NumFeatures()

	// Resolve the query set: with no query, the reference searches itself.
	var (
		qFlat []float64
		m     int
		mono  bool
	)
	if cfg.Query != nil {
		q := cfg.Query
		if basis != nil {
			q = rotateDataset(q, basis)
		}
		qFlat = q.flatPoints()
		m = q.Len()
	} else {
		qFlat = tree.Data()
		m = n
		mono = true
	}

	var neighbors [][]int
	var distances [][]float64
	switch cfg.Algorithm {
	case AlgorithmNaive:
		neighbors, distances = searchNaive(tree.Data(), n, dims, qFlat, m, cfg.K, metric, cfg.Workers)
	case AlgorithmSingleTree:
		neighbors, distances = searchSingleTree(tree, qFlat, m, cfg.K, cfg.Epsilon)
	case AlgorithmDualTree:
		queryTree := tree
		if !mono {
			qt, err := NewTree(treeTypeOf(tree), qFlat, m, dims, metric, cfg.LeafSize)
			if err != nil {
				return nil, err
			}
			queryTree = qt
		}
		neighbors, distances = searchDualTree(tree, queryTree, cfg.K, cfg.Epsilon)
	case AlgorithmGreedy:
		neighbors, distances = searchGreedy(tree, qFlat, m, cfg.K)
	}

	res := &Result{
		Neighbors: NewIndexMatrix(cfg.K, m),
		Distances: mat.NewDense(cfg.K, m, nil),
		Model:     trained,
	}
	for j := 0; j < m; j++ {
		for i, nb := range neighbors[j] {
			res.Neighbors.Set(i, j, nb)
			res.Distances.Set(i, j, distances[j][i])
		}
	}

	return res, nil
}

func treeTypeOf(t SpatialTree) TreeType {
	if _, ok := t.(*BallTree); ok {
		return TreeBall
	}
	return TreeKD
}

// randomOrthogonalBasis draws a dims × dims orthogonal matrix as the Q
// factor of a QR decomposition of a random normal matrix.
func randomOrthogonalBasis(dims int, seed int64) (*mat.Dense, error) {
	rng := rand.New(rand.NewSource(seed))
	a := mat.NewDense(dims, dims, nil)
	for i := 0; i < dims; i++ {
		for j := 0; j < dims; j++ {
			a.Set(i, j, rng.NormFloat64())
		}
	}
	var qr mat.QR
	qr.Factorize(a)
	var q mat.Dense
	qr.QTo(&q)
	return &q, nil
}

// rotateDataset returns basis * d as a new dataset.
func rotateDataset(d *Dataset, basis *mat.Dense) *Dataset {
	var out mat.Dense
	out.Mul(basis, d.Matrix())
	return DatasetFromMatrix(&out)
}
