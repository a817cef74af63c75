package kfn

import (
	"math"
	"math/rand"
	"sort"
	"testing"
)

// bruteFurthest is an independent oracle: sort all reference points by
// decreasing distance (ties by ascending index) and take the first k.
func bruteFurthest(refData []float64, nRef, dims int, query []float64, k int, metric DistanceMetric) ([]int, []float64) {
	type cand struct {
		idx  int
		dist float64
	}
	cands := make([]cand, nRef)
	for r := 0; r < nRef; r++ {
		cands[r] = cand{r, metric.Distance(query, refData[r*dims:(r+1)*dims])}
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].dist != cands[j].dist {
			return cands[i].dist > cands[j].dist
		}
		return cands[i].idx < cands[j].idx
	})
	idx := make([]int, k)
	dist := make([]float64, k)
	for i := 0; i < k; i++ {
		idx[i] = cands[i].idx
		dist[i] = cands[i].dist
	}
	return idx, dist
}

func randomFlat(rng *rand.Rand, n, dims int) []float64 {
	data := make([]float64, n*dims)
	for i := range data {
		data[i] = rng.Float64()
	}
	return data
}

func TestSearchNaive_MatchesOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	nRef, m, dims, k := 80, 30, 3, 7
	ref := randomFlat(rng, nRef, dims)
	queries := randomFlat(rng, m, dims)
	metric := EuclideanMetric{}

	neighbors, distances := searchNaive(ref, nRef, dims, queries, m, k, metric, 4)

	for q := 0; q < m; q++ {
		wantIdx, wantDist := bruteFurthest(ref, nRef, dims, queries[q*dims:(q+1)*dims], k, metric)
		for i := 0; i < k; i++ {
			if neighbors[q][i] != wantIdx[i] {
				t.Fatalf("query %d rank %d: got index %d, want %d", q, i, neighbors[q][i], wantIdx[i])
			}
			if !almostEqual(distances[q][i], wantDist[i], 1e-9) {
				t.Fatalf("query %d rank %d: got distance %v, want %v", q, i, distances[q][i], wantDist[i])
			}
		}
	}
}

func TestSearchNaive_WorkerCountsAgree(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	nRef, m, dims, k := 50, 40, 2, 5
	ref := randomFlat(rng, nRef, dims)
	queries := randomFlat(rng, m, dims)
	metric := EuclideanMetric{}

	n1, d1 := searchNaive(ref, nRef, dims, queries, m, k, metric, 1)
	n8, d8 := searchNaive(ref, nRef, dims, queries, m, k, metric, 8)

	for q := 0; q < m; q++ {
		for i := 0; i < k; i++ {
			if n1[q][i] != n8[q][i] || d1[q][i] != d8[q][i] {
				t.Fatalf("worker counts disagree at query %d rank %d", q, i)
			}
		}
	}
}

func TestSearchSingleTree_MatchesOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(31))
	nRef, m, dims, k := 100, 25, 3, 10
	ref := randomFlat(rng, nRef, dims)
	queries := randomFlat(rng, m, dims)

	for _, metric := range []DistanceMetric{EuclideanMetric{}, ManhattanMetric{}, ChebyshevMetric{}} {
		for _, tt := range []TreeType{TreeKD, TreeBall} {
			tree, err := NewTree(tt, ref, nRef, dims, metric, 5)
			if err != nil {
				t.Fatalf("NewTree(%s): %v", tt, err)
			}
			neighbors, distances := searchSingleTree(tree, queries, m, k, 0)

			for q := 0; q < m; q++ {
				wantIdx, wantDist := bruteFurthest(ref, nRef, dims, queries[q*dims:(q+1)*dims], k, metric)
				for i := 0; i < k; i++ {
					if neighbors[q][i] != wantIdx[i] {
						t.Fatalf("%T/%s query %d rank %d: got %d, want %d",
							metric, tt, q, i, neighbors[q][i], wantIdx[i])
					}
					if !almostEqual(distances[q][i], wantDist[i], 1e-9) {
						t.Fatalf("%T/%s query %d rank %d: distance %v, want %v",
							metric, tt, q, i, distances[q][i], wantDist[i])
					}
				}
			}
		}
	}
}

func TestSearchDualTree_MatchesOracle(t *testing.T) {
	rng := rand.New(rand.NewSource(37))
	nRef, m, dims, k := 100, 40, 3, 8
	ref := randomFlat(rng, nRef, dims)
	queries := randomFlat(rng, m, dims)
	metric := EuclideanMetric{}

	for _, tt := range []TreeType{TreeKD, TreeBall} {
		refTree, err := NewTree(tt, ref, nRef, dims, metric, 5)
		if err != nil {
			t.Fatal(err)
		}
		queryTree, err := NewTree(tt, queries, m, dims, metric, 5)
		if err != nil {
			t.Fatal(err)
		}
		neighbors, distances := searchDualTree(refTree, queryTree, k, 0)

		for q := 0; q < m; q++ {
			wantIdx, wantDist := bruteFurthest(ref, nRef, dims, queries[q*dims:(q+1)*dims], k, metric)
			for i := 0; i < k; i++ {
				if neighbors[q][i] != wantIdx[i] {
					t.Fatalf("%s query %d rank %d: got %d, want %d", tt, q, i, neighbors[q][i], wantIdx[i])
				}
				if !almostEqual(distances[q][i], wantDist[i], 1e-9) {
					t.Fatalf("%s query %d rank %d: distance %v, want %v", tt, q, i, distances[q][i], wantDist[i])
				}
			}
		}
	}
}

func TestSearchDualTree_Monochromatic(t *testing.T) {
	rng := rand.New(rand.NewSource(41))
	n, dims, k := 60, 2, 6
	data := randomFlat(rng, n, dims)
	metric := EuclideanMetric{}

	tree := NewKDTree(data, n, dims, metric, 4)
	// Same tree on both sides: the reference searches itself.
	neighbors, distances := searchDualTree(tree, tree, k, 0)

	for q := 0; q < n; q++ {
		wantIdx, wantDist := bruteFurthest(data, n, dims, data[q*dims:(q+1)*dims], k, metric)
		for i := 0; i < k; i++ {
			if neighbors[q][i] != wantIdx[i] {
				t.Fatalf("query %d rank %d: got %d, want %d", q, i, neighbors[q][i], wantIdx[i])
			}
			if !almostEqual(distances[q][i], wantDist[i], 1e-9) {
				t.Fatalf("query %d rank %d: distance mismatch", q, i)
			}
		}
	}
}

func TestSearch_TieBreak_AscendingIndex(t *testing.T) {
	// Four reference points at identical distance from the origin query.
	ref := []float64{
		1, 0,
		0, 1,
		-1, 0,
		0, -1,
		0, 0,
	}
	nRef, dims, k := 5, 2, 3
	query := []float64{0, 0}
	metric := EuclideanMetric{}

	tree := NewKDTree(ref, nRef, dims, metric, 2)
	want := []int{0, 1, 2}

	nv, _ := searchNaive(ref, nRef, dims, query, 1, k, metric, 1)
	st, _ := searchSingleTree(tree, query, 1, k, 0)
	qt := NewKDTree(query, 1, dims, metric, 2)
	dt, _ := searchDualTree(tree, qt, k, 0)

	for i := 0; i < k; i++ {
		if nv[0][i] != want[i] {
			t.Errorf("naive rank %d: got %d, want %d", i, nv[0][i], want[i])
		}
		if st[0][i] != want[i] {
			t.Errorf("single-tree rank %d: got %d, want %d", i, st[0][i], want[i])
		}
		if dt[0][i] != want[i] {
			t.Errorf("dual-tree rank %d: got %d, want %d", i, dt[0][i], want[i])
		}
	}
}

func TestSearch_TiedData_AllTreeTypesMatchOracle(t *testing.T) {
	// 60 reference points: 20 copies each of 3 locations, interleaved so
	// every tie group spans the whole index range. k straddles the tie
	// groups, so correctness depends on the ascending-index tie-break
	// surviving pruning in every tree strategy.
	locations := [][]float64{{0, 0}, {5, 0}, {0, 5}}
	nRef, dims, k := 60, 2, 25
	ref := make([]float64, nRef*dims)
	for i := 0; i < nRef; i++ {
		copy(ref[i*dims:(i+1)*dims], locations[i%3])
	}
	queries := []float64{
		0, 0,
		5, 0,
		0, 5,
		1, 1,
	}
	m := 4
	metric := EuclideanMetric{}

	for _, tt := range []TreeType{TreeKD, TreeBall} {
		tree, err := NewTree(tt, ref, nRef, dims, metric, 4)
		if err != nil {
			t.Fatal(err)
		}
		qt, err := NewTree(tt, queries, m, dims, metric, 4)
		if err != nil {
			t.Fatal(err)
		}

		single, singleDist := searchSingleTree(tree, queries, m, k, 0)
		dual, dualDist := searchDualTree(tree, qt, k, 0)

		for q := 0; q < m; q++ {
			wantIdx, wantDist := bruteFurthest(ref, nRef, dims, queries[q*dims:(q+1)*dims], k, metric)
			for i := 0; i < k; i++ {
				if single[q][i] != wantIdx[i] {
					t.Fatalf("%s single-tree query %d rank %d: got %d, want %d",
						tt, q, i, single[q][i], wantIdx[i])
				}
				if dual[q][i] != wantIdx[i] {
					t.Fatalf("%s dual-tree query %d rank %d: got %d, want %d",
						tt, q, i, dual[q][i], wantIdx[i])
				}
				if !almostEqual(singleDist[q][i], wantDist[i], 1e-9) || !almostEqual(dualDist[q][i], wantDist[i], 1e-9) {
					t.Fatalf("%s query %d rank %d: distance mismatch", tt, q, i)
				}
			}
		}
	}
}

func TestSearch_ResultsOrderedByDecreasingDistance(t *testing.T) {
	rng := rand.New(rand.NewSource(43))
	nRef, m, dims, k := 70, 20, 3, 9
	ref := randomFlat(rng, nRef, dims)
	queries := randomFlat(rng, m, dims)
	metric := EuclideanMetric{}
	tree := NewKDTree(ref, nRef, dims, metric, 5)

	_, distances := searchSingleTree(tree, queries, m, k, 0)
	for q := 0; q < m; q++ {
		for i := 1; i < k; i++ {
			if distances[q][i] > distances[q][i-1]+1e-12 {
				t.Fatalf("query %d: distances not decreasing at rank %d", q, i)
			}
		}
	}
}

func TestSearchSingleTree_Epsilon_WithinFactor(t *testing.T) {
	rng := rand.New(rand.NewSource(47))
	nRef, m, dims, k := 120, 30, 3, 5
	ref := randomFlat(rng, nRef, dims)
	queries := randomFlat(rng, m, dims)
	metric := EuclideanMetric{}
	tree := NewKDTree(ref, nRef, dims, metric, 5)

	eps := 0.2
	_, approx := searchSingleTree(tree, queries, m, k, eps)

	for q := 0; q < m; q++ {
		_, exact := bruteFurthest(ref, nRef, dims, queries[q*dims:(q+1)*dims], k, metric)
		for i := 0; i < k; i++ {
			if approx[q][i] < (1-eps)*exact[i]-1e-9 {
				t.Fatalf("query %d rank %d: approx distance %v below (1-eps) bound of exact %v",
					q, i, approx[q][i], exact[i])
			}
		}
	}
}

func TestSearchGreedy_ShapeAndUndershoot(t *testing.T) {
	rng := rand.New(rand.NewSource(53))
	nRef, m, dims, k := 90, 20, 3, 6
	ref := randomFlat(rng, nRef, dims)
	queries := randomFlat(rng, m, dims)
	metric := EuclideanMetric{}
	tree := NewKDTree(ref, nRef, dims, metric, 10)

	neighbors, distances := searchGreedy(tree, queries, m, k)

	for q := 0; q < m; q++ {
		if len(neighbors[q]) != k || len(distances[q]) != k {
			t.Fatalf("query %d: got %d results, want %d", q, len(neighbors[q]), k)
		}
		_, exact := bruteFurthest(ref, nRef, dims, queries[q*dims:(q+1)*dims], k, metric)
		for i := 0; i < k; i++ {
			// Approximate per rank: never better than the true i-th furthest.
			if distances[q][i] > exact[i]+1e-9 {
				t.Fatalf("query %d rank %d: greedy distance %v exceeds exact %v",
					q, i, distances[q][i], exact[i])
			}
		}
		for i := 1; i < k; i++ {
			if distances[q][i] > distances[q][i-1]+1e-12 {
				t.Fatalf("query %d: greedy distances not decreasing", q)
			}
		}
	}
}

func TestSearchGreedy_SmallLeafStillReturnsK(t *testing.T) {
	rng := rand.New(rand.NewSource(59))
	nRef, dims, k := 64, 2, 10
	ref := randomFlat(rng, nRef, dims)
	query := randomFlat(rng, 1, dims)
	// leafSize 1 forces backfill from skipped siblings.
	tree := NewKDTree(ref, nRef, dims, EuclideanMetric{}, 1)

	neighbors, _ := searchGreedy(tree, query, 1, k)
	if len(neighbors[0]) != k {
		t.Fatalf("got %d results, want %d", len(neighbors[0]), k)
	}
	seen := make(map[int]bool)
	for _, idx := range neighbors[0] {
		if seen[idx] {
			t.Fatalf("duplicate neighbor %d", idx)
		}
		seen[idx] = true
	}
}

func TestFurthestHeap_KthRdistBeforeFull(t *testing.T) {
	h := &furthestHeap{}
	if !math.IsInf(h.kthRdist(3), -1) {
		t.Error("empty heap should report -Inf")
	}
	h.offer(0, 1.0, 3)
	h.offer(1, 2.0, 3)
	if !math.IsInf(h.kthRdist(3), -1) {
		t.Error("partially full heap should report -Inf")
	}
	h.offer(2, 3.0, 3)
	if h.kthRdist(3) != 1.0 {
		t.Errorf("kthRdist = %v, want 1.0", h.kthRdist(3))
	}
}
