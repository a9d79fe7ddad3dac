package front_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/dissect"
	"github.com/jpoulson-lab/cliquesolve/front"
	"github.com/jpoulson-lab/cliquesolve/graph"
	"github.com/jpoulson-lab/cliquesolve/spmatrix"
	"github.com/jpoulson-lab/cliquesolve/symbolic"
)

// buildPathGraph and buildPathMatrix assemble a standard 1-D Laplacian-like
// stencil on the 0-1-2-...-(n-1) path: diagonal 2, off-diagonal -1 stored in
// the lower triangle only (A(i, i-1), i > 0).
func buildPathGraph(t *testing.T, group comm.Group, n int64) *graph.Dist {
	t.Helper()
	g := graph.NewDist(group, n)
	g.StartAssembly()
	low, high := g.LocalRange()
	for i := low; i < high; i++ {
		if i > 0 {
			require.NoError(t, g.Insert(i, i-1))
		}
		if i < n-1 {
			require.NoError(t, g.Insert(i, i+1))
		}
	}
	require.NoError(t, g.StopAssembly())
	return g
}

func buildPathMatrix(t *testing.T, group comm.Group, n int64) *spmatrix.Dist[float64] {
	t.Helper()
	a := spmatrix.NewDist[float64](group, n)
	a.StartAssembly()
	low, high := a.LocalRange()
	for i := low; i < high; i++ {
		require.NoError(t, a.Update(i, i, 2))
		if i > 0 {
			require.NoError(t, a.Update(i, i-1, -1))
		}
	}
	require.NoError(t, a.StopAssembly())
	return a
}

// buildPathGraphNoT/buildPathMatrixNoT are buildPathGraph/buildPathMatrix's
// plain-error counterparts, for use inside a per-rank goroutine: testify's
// require helpers call t.FailNow(), which is documented as unsafe to call
// concurrently from more than one goroutine, so every multi-rank test in
// this package reports assembly errors through a plain error return and
// defers all require/assert calls to the main goroutine after wg.Wait().
func buildPathGraphNoT(group comm.Group, n int64) (*graph.Dist, error) {
	g := graph.NewDist(group, n)
	g.StartAssembly()
	low, high := g.LocalRange()
	for i := low; i < high; i++ {
		if i > 0 {
			if err := g.Insert(i, i-1); err != nil {
				return nil, err
			}
		}
		if i < n-1 {
			if err := g.Insert(i, i+1); err != nil {
				return nil, err
			}
		}
	}
	if err := g.StopAssembly(); err != nil {
		return nil, err
	}
	return g, nil
}

func buildPathMatrixNoT(group comm.Group, n int64) (*spmatrix.Dist[float64], error) {
	a := spmatrix.NewDist[float64](group, n)
	a.StartAssembly()
	low, high := a.LocalRange()
	for i := low; i < high; i++ {
		if err := a.Update(i, i, 2); err != nil {
			return nil, err
		}
		if i > 0 {
			if err := a.Update(i, i-1, -1); err != nil {
				return nil, err
			}
		}
	}
	if err := a.StopAssembly(); err != nil {
		return nil, err
	}
	return a, nil
}

func TestBuild_SingleProcessScattersEveryEntry(t *testing.T) {
	handles := comm.NewLocalGroup(1)
	group := handles[0]
	n := int64(9)

	g := buildPathGraph(t, group, n)
	tree, err := dissect.Run(g, dissect.Options{Cutoff: 2})
	require.NoError(t, err)
	info := symbolic.Analyze(tree)

	a := buildPathMatrix(t, group, n)
	fronts, err := front.Build[float64](group, a, tree, info, false)
	require.NoError(t, err)
	require.Len(t, fronts, len(tree.Supernodes))

	// Brute-force expected permuted-lower-triangle values, independent of
	// Build's own routing logic.
	expected := make(map[[2]int64]float64)
	for i := int64(0); i < n; i++ {
		pi, _ := tree.LocalPerm(i)
		expected[canon(pi, pi)] = 2
		if i > 0 {
			pj, _ := tree.LocalPerm(i - 1)
			expected[canon(pi, pj)] += -1
		}
	}

	seen := make(map[[2]int64]float64)
	for id, sn := range tree.Supernodes {
		f := fronts[id]
		require.NotNil(t, f, "every supernode is owned outright in a size-1 group")
		for li := int64(0); li < f.LocalRows(); li++ {
			matrixRow := rowGlobalFor(sn, info[id], li)
			for lj := int64(0); lj < sn.Size; lj++ {
				matrixCol := sn.Offset + lj
				v := f.Get(li, lj) // (li, lj) are front-local coordinates here
				if v != 0 {
					seen[canon(matrixRow, matrixCol)] += v
				}
			}
		}
	}

	for k, want := range expected {
		if want == 0 {
			continue
		}
		assert.InDelta(t, want, seen[k], 1e-12, "mismatch at permuted (row=%d,col=%d)", k[0], k[1])
	}
	for k, got := range seen {
		assert.InDelta(t, expected[k], got, 1e-12, "unexpected extra entry at permuted (row=%d,col=%d)", k[0], k[1])
	}
}

// TestBuild_FourProcessesScattersEveryEntry is the size-4 counterpart of
// TestBuild_SingleProcessScattersEveryEntry: nested dissection at team size
// 4 leaves the top-level separator's front cyclically [MC,MR]-distributed
// (front.IsDistributed() true), so Build's scatter has to route each A
// entry to whichever rank in that front's team actually owns the
// destination (row, col) pair rather than to a single local buffer.
// Assertions run only in the main goroutine, after every rank's Build call
// has returned, following this package's established "store into a
// per-rank slice, assert afterward" pattern for driving concurrent ranks.
func TestBuild_FourProcessesScattersEveryEntry(t *testing.T) {
	const size = 4
	handles := comm.NewLocalGroup(size)
	n := int64(37)

	trees := make([]*dissect.Tree, size)
	fronts := make([][]*front.Front[float64], size)
	infos := make([][]symbolic.NodeInfo, size)
	errs := make([]error, size)

	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			group := handles[r]
			g, err := buildPathGraphNoT(group, n)
			if err != nil {
				errs[r] = err
				return
			}
			tree, err := dissect.Run(g, dissect.Options{Cutoff: 4})
			if err != nil {
				errs[r] = err
				return
			}
			info := symbolic.Analyze(tree)
			a, err := buildPathMatrixNoT(group, n)
			if err != nil {
				errs[r] = err
				return
			}
			fr, err := front.Build[float64](group, a, tree, info, false)
			trees[r], fronts[r], infos[r], errs[r] = tree, fr, info, err
		}(r)
	}
	wg.Wait()

	for r := 0; r < size; r++ {
		require.NoError(t, errs[r], "rank %d", r)
	}

	tree := trees[0]
	var sawDistributed bool
	for id := range tree.Supernodes {
		if tree.Supernodes[id].IsDistributed {
			sawDistributed = true
			break
		}
	}
	assert.True(t, sawDistributed, "a 4-process nested dissection should leave at least one distributed front")

	expected := make(map[[2]int64]float64)
	for i := int64(0); i < n; i++ {
		pi, _ := tree.LocalPerm(i)
		expected[canon(pi, pi)] = 2
		if i > 0 {
			pj, _ := tree.LocalPerm(i - 1)
			expected[canon(pi, pj)] += -1
		}
	}

	seen := make(map[[2]int64]float64)
	for r := 0; r < size; r++ {
		for id, sn := range tree.Supernodes {
			f := fronts[r][id]
			if f == nil {
				continue
			}
			for li := int64(0); li < f.LocalRows(); li++ {
				gi := f.LocalRowGlobal(li)
				var matrixRow int64
				if gi < sn.Size {
					matrixRow = sn.Offset + gi
				} else {
					matrixRow = infos[r][id].UnionLowerStruct[gi-sn.Size]
				}
				for lj := int64(0); lj < f.LocalCols(); lj++ {
					gj := f.LocalColGlobal(lj)
					if gj >= sn.Size {
						continue
					}
					v := f.AtLocal(li, lj)
					if v != 0 {
						seen[canon(matrixRow, sn.Offset+gj)] += v
					}
				}
			}
		}
	}

	for k, want := range expected {
		if want == 0 {
			continue
		}
		assert.InDelta(t, want, seen[k], 1e-12, "mismatch at permuted (row=%d,col=%d)", k[0], k[1])
	}
	for k, got := range seen {
		assert.InDelta(t, expected[k], got, 1e-12, "unexpected extra entry at permuted (row=%d,col=%d)", k[0], k[1])
	}
}

func canon(a, b int64) [2]int64 {
	if a < b {
		a, b = b, a
	}
	return [2]int64{a, b}
}

func rowGlobalFor(sn dissect.Supernode, info symbolic.NodeInfo, li int64) int64 {
	if li < sn.Size {
		return sn.Offset + li
	}
	return info.UnionLowerStruct[li-sn.Size]
}
