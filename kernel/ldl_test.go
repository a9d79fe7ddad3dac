package kernel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpoulson-lab/cliquesolve/front"
	"github.com/jpoulson-lab/cliquesolve/kernel"
)

func lowerFront(n, w int64, lower map[[2]int64]float64) *front.Front[float64] {
	f := front.New[float64](0, n, w, nil)
	for k, v := range lower {
		f.Set(k[0], k[1], v)
	}
	return f
}

func TestFactorNormal_ReconstructsPivotBlock(t *testing.T) {
	f := lowerFront(3, 3, map[[2]int64]float64{
		{0, 0}: 4, {1, 0}: 1, {1, 1}: 3, {2, 0}: 2, {2, 1}: 1, {2, 2}: 6,
	})
	original := map[[2]int64]float64{
		{0, 0}: 4, {1, 0}: 1, {1, 1}: 3, {2, 0}: 2, {2, 1}: 1, {2, 2}: 6,
	}

	require.NoError(t, kernel.FactorNormal(f, false))

	d := []float64{f.Get(0, 0), f.Get(1, 1), f.Get(2, 2)}
	l := func(i, k int64) float64 {
		if i == k {
			return 1
		}
		return f.Get(i, k)
	}
	for pos, want := range original {
		i, j := pos[0], pos[1]
		var sum float64
		limit := i
		if j < limit {
			limit = j
		}
		for k := int64(0); k <= limit; k++ {
			sum += l(i, k) * d[k] * l(j, k)
		}
		assert.InDelta(t, want, sum, 1e-9, "mismatch reconstructing (%d,%d)", i, j)
	}
}

func TestFactorNormal_SchurComplementMatchesDirectFormula(t *testing.T) {
	// A11 = [[4,1],[1,3]], A21 = [2,1], A22 = [5].
	f := lowerFront(2, 3, map[[2]int64]float64{
		{0, 0}: 4, {1, 0}: 1, {1, 1}: 3,
		{2, 0}: 2, {2, 1}: 1,
		{2, 2}: 5,
	})
	require.NoError(t, kernel.FactorNormal(f, false))
	// Schur = 5 - [2,1]*inv([[4,1],[1,3]])*[2,1]^T = 5 - 12/11 = 43/11.
	assert.InDelta(t, 43.0/11.0, f.Get(2, 2), 1e-9)
}

func TestFactorBlockNoPivot_RestoresOriginalPanelAndInvertsATL(t *testing.T) {
	f := lowerFront(2, 3, map[[2]int64]float64{
		{0, 0}: 4, {1, 0}: 1, {1, 1}: 3,
		{2, 0}: 2, {2, 1}: 1,
		{2, 2}: 5,
	})
	require.NoError(t, kernel.FactorBlockNoPivot(f, false))

	// ABL must be restored to the original, pre-solve panel.
	assert.InDelta(t, 2.0, f.Get(2, 0), 1e-9)
	assert.InDelta(t, 1.0, f.Get(2, 1), 1e-9)

	// ATL must now hold inv([[4,1],[1,3]]) = (1/11)[[3,-1],[-1,4]].
	assert.InDelta(t, 3.0/11.0, f.Get(0, 0), 1e-9)
	assert.InDelta(t, -1.0/11.0, f.Get(1, 0), 1e-9)
	assert.InDelta(t, 4.0/11.0, f.Get(1, 1), 1e-9)
}

func TestFactorPivoted_SelectsLargestMagnitudeDiagonal(t *testing.T) {
	// Column 0 has the smaller diagonal (1 < 9), so pivoting should swap
	// indices 0 and 1 before factoring.
	f := lowerFront(2, 2, map[[2]int64]float64{
		{0, 0}: 1, {1, 0}: 2, {1, 1}: 9,
	})
	require.NoError(t, kernel.FactorPivoted(f, false))
	require.Len(t, f.Perm, 2)
	assert.Equal(t, 1, f.Perm[0], "largest-magnitude diagonal (index 1) should be pivoted into position 0")
	assert.Equal(t, 0, f.Perm[1])
	require.Len(t, f.DSub, 2)
	for _, v := range f.DSub {
		assert.Equal(t, 0.0, v, "this 1x1-pivot-only variant never produces a nonzero subdiagonal")
	}
}
