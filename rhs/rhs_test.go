package rhs_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/dissect"
	"github.com/jpoulson-lab/cliquesolve/graph"
	"github.com/jpoulson-lab/cliquesolve/rhs"
	"github.com/jpoulson-lab/cliquesolve/spmatrix"
	"github.com/jpoulson-lab/cliquesolve/symbolic"
)

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

func TestShuffle_PullThenPushRoundTrips(t *testing.T) {
	handles := comm.NewLocalGroup(1)
	group := handles[0]
	n := int64(9)

	g := buildPathGraph(t, group, n)
	tree, err := dissect.Run(g, dissect.Options{Cutoff: 2})
	require.NoError(t, err)
	info := symbolic.Analyze(tree)

	v := spmatrix.NewMultiVector[float64](group, n, 2)
	for i := int64(0); i < n; i++ {
		require.NoError(t, setRow(v, i, []float64{float64(i), float64(i) * 10}))
	}

	sh := rhs.New[float64](group, tree, info)
	pulled, err := sh.Pull(v)
	require.NoError(t, err)
	require.Len(t, pulled, len(tree.Supernodes))

	for id, sn := range tree.Supernodes {
		w := pulled[id]
		require.NotNil(t, w)
		for li := int64(0); li < sn.Size; li++ {
			orig := tree.Original(sn.Offset + li)
			assert.Equal(t, float64(orig), w.At(li, 0))
			assert.Equal(t, float64(orig)*10, w.At(li, 1))
		}
	}

	out := spmatrix.NewMultiVector[float64](group, n, 2)
	require.NoError(t, sh.Push(pulled, out))

	for i := int64(0); i < n; i++ {
		row, err := out.Row(i)
		require.NoError(t, err)
		assert.Equal(t, float64(i), row[0])
		assert.Equal(t, float64(i)*10, row[1])
	}
}

func setRow(v *spmatrix.MultiVector[float64], i int64, vals []float64) error {
	row, err := v.Row(i)
	if err != nil {
		return err
	}
	copy(row, vals)
	return nil
}

// buildPathGraphNoT is buildPathGraph's plain-error counterpart for use
// inside a per-rank goroutine: require's t.FailNow() is documented as
// unsafe to call from more than one goroutine at a time, so the multi-rank
// test below reports assembly errors through a plain error return and
// defers every require/assert call to the main goroutine after wg.Wait().
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

// TestShuffle_PullThenPushRoundTrips_FourProcesses is the size-4 counterpart
// of TestShuffle_PullThenPushRoundTrips: nested dissection at team size 4
// leaves the top-level separator's supernode distributed (IsMember true for
// several ranks at once), exercising Pull's full-width replica fetch across
// a team and Push's OwnerRanks[0]-only send that this package's Shuffle
// uses for a distributed supernode rather than the size-1 sole-owner path.
// Every rank pulls, round-trips through push, and checks its own local rows
// concurrently in its own goroutine; assertions are deferred to the main
// goroutine once every rank has returned.
func TestShuffle_PullThenPushRoundTrips_FourProcesses(t *testing.T) {
	const size = 4
	handles := comm.NewLocalGroup(size)
	n := int64(37)

	type result struct {
		out       *spmatrix.MultiVector[float64]
		low, high int64
	}
	results := make([]result, size)
	errs := make([]error, size)
	var sawDistributed [size]bool

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

			for _, sn := range tree.Supernodes {
				if sn.IsDistributed {
					sawDistributed[r] = true
					break
				}
			}

			v := spmatrix.NewMultiVector[float64](group, n, 2)
			low, high := v.LocalRange()
			for i := low; i < high; i++ {
				if err := setRow(v, i, []float64{float64(i), float64(i) * 10}); err != nil {
					errs[r] = err
					return
				}
			}

			sh := rhs.New[float64](group, tree, info)
			pulled, err := sh.Pull(v)
			if err != nil {
				errs[r] = err
				return
			}

			out := spmatrix.NewMultiVector[float64](group, n, 2)
			if err := sh.Push(pulled, out); err != nil {
				errs[r] = err
				return
			}
			results[r] = result{out: out, low: low, high: high}
		}(r)
	}
	wg.Wait()

	for r := 0; r < size; r++ {
		require.NoError(t, errs[r], "rank %d", r)
	}
	var anyDistributed bool
	for r := 0; r < size; r++ {
		anyDistributed = anyDistributed || sawDistributed[r]
	}
	assert.True(t, anyDistributed, "a 4-process nested dissection should leave at least one distributed supernode")

	for r := 0; r < size; r++ {
		res := results[r]
		for i := res.low; i < res.high; i++ {
			row, err := res.out.Row(i)
			require.NoError(t, err, "rank %d row %d", r, i)
			assert.Equal(t, float64(i), row[0], "rank %d row %d", r, i)
			assert.Equal(t, float64(i)*10, row[1], "rank %d row %d", r, i)
		}
	}
}
