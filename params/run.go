package params

import (
	"fmt"

	"github.com/TrevorS/kfn"
)

// Parameter names recognized by Run: the wire contract between callers
// and the search binding.
const (
	ParamReference   = "reference"    // *kfn.Dataset, in
	ParamQuery       = "query"        // *kfn.Dataset, in
	ParamK           = "k"            // int, in
	ParamLeafSize    = "leaf_size"    // int, in
	ParamAlgorithm   = "algorithm"    // string, in
	ParamTreeType    = "tree_type"    // string, in
	ParamEpsilon     = "epsilon"      // float64, in
	ParamInputModel  = "input_model"  // *kfn.Model, in
	ParamRandomBasis = "random_basis" // bool, in
	ParamSeed        = "seed"         // int64, in
	ParamNeighbors   = "neighbors"    // *kfn.IndexMatrix, out
	ParamDistances   = "distances"    // *mat.Dense, out
	ParamOutputModel = "output_model" // *kfn.Model, out
)

// defaultLeafSize is the wire-surface default when leaf_size is not
// passed, matching kfn's own default.
const defaultLeafSize = 20

// Run executes one search invocation against the store: it reads the
// passed input parameters, calls kfn.Search, and writes the neighbors and
// distances matrices plus the output model back into the store. On any
// error the output slots are left untouched. Invocations on the same
// store are serialized.
func Run(s *Store) error {
	s.runMu.Lock()
	defer s.runMu.Unlock()

	var cfg kfn.SearchConfig
	cfg.LeafSize = defaultLeafSize

	if s.Has(ParamReference) {
		v, err := Get[*kfn.Dataset](s, ParamReference)
		if err != nil {
			return err
		}
		cfg.Reference = v
	}
	if s.Has(ParamQuery) {
		v, err := Get[*kfn.Dataset](s, ParamQuery)
		if err != nil {
			return err
		}
		cfg.Query = v
	}
	if s.Has(ParamK) {
		v, err := Get[int](s, ParamK)
		if err != nil {
			return err
		}
		cfg.K = v
	}
	if s.Has(ParamLeafSize) {
		v, err := Get[int](s, ParamLeafSize)
		if err != nil {
			return err
		}
		// An explicitly supplied leaf size of 0 would otherwise read as
		// "use the default" further down.
		if v < 1 {
			return fmt.Errorf("params: leaf_size must be >= 1, got %d: %w", v, kfn.ErrInvalidArgument)
		}
		cfg.LeafSize = v
	}
	if s.Has(ParamAlgorithm) {
		v, err := Get[string](s, ParamAlgorithm)
		if err != nil {
			return err
		}
		cfg.Algorithm = kfn.Algorithm(v)
	}
	if s.Has(ParamTreeType) {
		v, err := Get[string](s, ParamTreeType)
		if err != nil {
			return err
		}
		cfg.TreeType = kfn.TreeType(v)
	}
	if s.Has(ParamEpsilon) {
		v, err := Get[float64](s, ParamEpsilon)
		if err != nil {
			return err
		}
		cfg.Epsilon = v
	}
	if s.Has(ParamInputModel) {
		v, err := Get[*kfn.Model](s, ParamInputModel)
		if err != nil {
			return err
		}
		cfg.InputModel = v
	}
	if s.Has(ParamRandomBasis) {
		v, err := Get[bool](s, ParamRandomBasis)
		if err != nil {
			return err
		}
		cfg.RandomBasis = v
	}
	if s.Has(ParamSeed) {
		v, err := Get[int64](s, ParamSeed)
		if err != nil {
			return err
		}
		cfg.Seed = v
	}

	res, err := kfn.Search(cfg)
	if err != nil {
		return err
	}

	if res.Neighbors != nil {
		s.Set(ParamNeighbors, res.Neighbors)
		s.Set(ParamDistances, res.Distances)
	}
	if res.Model != nil {
		s.Set(ParamOutputModel, res.Model)
	}
	return nil
}
