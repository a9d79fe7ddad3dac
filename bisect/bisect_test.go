package bisect_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpoulson-lab/cliquesolve/bisect"
	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/partition"
)

// pathNeighbors returns the neighbor-lookup closure for the 0-1-2-...-(n-1)
// path graph, used throughout as the simplest graph with a well-understood
// bisection (cutting the middle vertex).
func pathNeighbors(n int64) func(int64) []int64 {
	return func(v int64) []int64 {
		var out []int64
		if v > 0 {
			out = append(out, v-1)
		}
		if v < n-1 {
			out = append(out, v+1)
		}
		return out
	}
}

func TestSequential_PathGraphBalances(t *testing.T) {
	n := int64(9)
	members := make([]int64, n)
	for i := range members {
		members[i] = int64(i)
	}
	res := bisect.Sequential(members, pathNeighbors(n), partition.Default, partition.Params{})

	require.Len(t, res.Separator, 1)
	assert.InDelta(t, float64(res.LeftSize), float64(res.RightSize), 2)
	assert.Equal(t, int(n), res.LeftSize+res.RightSize+res.SeparatorSize)
}

func TestSequential_StripsSelfLoopsAndOutOfSetNeighbors(t *testing.T) {
	members := []int64{0, 1, 2}
	neighbors := func(v int64) []int64 {
		switch v {
		case 0:
			return []int64{0, 1, 99} // self-loop + out-of-set
		case 1:
			return []int64{0, 2}
		default:
			return []int64{1}
		}
	}
	res := bisect.Sequential(members, neighbors, partition.Default, partition.Params{})
	assert.Equal(t, 3, res.LeftSize+res.RightSize+res.SeparatorSize)
}

func TestDistributed_AgreesWithSequentialOnGatheredGraph(t *testing.T) {
	n := int64(8)
	handles := comm.NewLocalGroup(2)

	var wg sync.WaitGroup
	results := make([]bisect.Result, 2)
	errs := make([]error, 2)
	for r := 0; r < 2; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			low, high := int64(r)*4, int64(r)*4+4
			var localMembers []int64
			var localEdges []bisect.DistEdge
			for v := low; v < high; v++ {
				localMembers = append(localMembers, v)
				for _, nb := range pathNeighbors(n)(v) {
					localEdges = append(localEdges, bisect.DistEdge{Src: v, Dst: nb})
				}
			}
			res, err := bisect.Distributed(handles[r], localMembers, localEdges, partition.Default, partition.Params{})
			results[r] = res
			errs[r] = err
		}(r)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])
	assert.Equal(t, results[0].Separator, results[1].Separator)
	assert.ElementsMatch(t, results[0].Left, results[1].Left)
	assert.ElementsMatch(t, results[0].Right, results[1].Right)
}

func TestGather_DropsEdgesOutsideMemberSet(t *testing.T) {
	handles := comm.NewLocalGroup(1)
	members := []int64{0, 1}
	edges := []bisect.DistEdge{{Src: 0, Dst: 1}, {Src: 0, Dst: 42}}
	allMembers, adj, err := bisect.Gather(handles[0], members, edges)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int64{0, 1}, allMembers)
	assert.ElementsMatch(t, []int64{1}, adj[0])
	_, has42 := adj[42]
	assert.False(t, has42)
}
