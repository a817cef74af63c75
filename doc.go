// Package kfn implements k-furthest-neighbor search: for each query
// point, find the k reference points at maximum distance (the dual of
// k-nearest-neighbor search).
//
// Basic usage:
//
//	ref, _ := kfn.DatasetFromPoints(points)
//	res, err := kfn.Search(kfn.SearchConfig{Reference: ref, K: 10})
//	// res.Neighbors.At(i, j) is the i-th furthest reference index for point j
//	// res.Distances.At(i, j) is the matching distance
//
// Search builds a spatial index (KD-tree or ball tree) over the reference
// set and traverses it with the selected strategy. dual_tree, single_tree
// and naive are exact and return identical results; greedy trades
// exactness for speed. The built index is returned as a Model that can be
// passed back in via SearchConfig.InputModel to search again without
// re-indexing, and persisted with Model.Save / LoadModel.
//
// # Strategy selection
//
// The default is dual_tree, which amortizes tree pruning across all query
// points at once. single_tree descends once per query and wins for small
// query sets; naive is the brute-force baseline; greedy is a defeatist
// descent whose results may undershoot the true furthest distances.
// Epsilon relaxes the exact strategies' pruning bound for approximate
// results within a factor (1-epsilon) of the true distances.
package kfn
