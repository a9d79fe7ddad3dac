package kernel_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jpoulson-lab/cliquesolve/kernel"
)

func TestForwardBackwardSolve_RecoversKnownLinearSystem(t *testing.T) {
	// A = [[4,1],[1,3]], b = [1,2]; factor, solve, compare against the
	// direct LDL^T solution computed by hand.
	f := lowerFront(2, 2, map[[2]int64]float64{
		{0, 0}: 4, {1, 0}: 1, {1, 1}: 3,
	})
	require.NoError(t, kernel.FactorNormal(f, false))
	d0, d1 := f.Get(0, 0), f.Get(1, 1)

	x := kernel.NewDense[float64](2, 1)
	x.Set(0, 0, 1)
	x.Set(1, 0, 2)

	require.NoError(t, kernel.FrontLowerForwardSolve(f, x, false, true))
	x.Set(0, 0, x.At(0, 0)/d0)
	x.Set(1, 0, x.At(1, 0)/d1)
	require.NoError(t, kernel.FrontLowerBackwardSolve(f, x, false, true))

	assert.InDelta(t, 1.0, 4*x.At(0, 0)+1*x.At(1, 0), 1e-9, "A*x should reconstruct b[0]")
	assert.InDelta(t, 2.0, 1*x.At(0, 0)+3*x.At(1, 0), 1e-9, "A*x should reconstruct b[1]")
}

func TestForwardSolve_IncludesPanelUpdate(t *testing.T) {
	f := lowerFront(2, 3, map[[2]int64]float64{
		{0, 0}: 1, {1, 1}: 1,
		{2, 0}: 2, {2, 1}: 3,
	})
	x := kernel.NewDense[float64](3, 1)
	x.Set(0, 0, 5)
	x.Set(1, 0, 7)
	x.Set(2, 0, 100)

	require.NoError(t, kernel.FrontLowerForwardSolve(f, x, false, true))
	// X_B := X_B - L_B*X_T = 100 - (2*5 + 3*7) = 100 - 31 = 69.
	assert.InDelta(t, 69.0, x.At(2, 0), 1e-9)
}

func TestFrontLowerMultiplyNormal_AppliesPanelDirectly(t *testing.T) {
	// L_T = [[1,0],[2,1]] (unit lower), L_B = [3,4]. X_T = [5,7], so
	// L_T*X_T = [5, 2*5+7] = [5,17] and L_B*X_T = 3*5+4*7 = 43.
	f := lowerFront(2, 3, map[[2]int64]float64{
		{0, 0}: 1, {1, 0}: 2, {1, 1}: 1,
		{2, 0}: 3, {2, 1}: 4,
	})
	x := kernel.NewDense[float64](3, 1)
	x.Set(0, 0, 5)
	x.Set(1, 0, 7)
	x.Set(2, 0, 0)

	require.NoError(t, kernel.FrontLowerMultiplyNormal(f, x, true))
	assert.InDelta(t, 5.0, x.At(0, 0), 1e-9)
	assert.InDelta(t, 17.0, x.At(1, 0), 1e-9)
	assert.InDelta(t, 43.0, x.At(2, 0), 1e-9)
}

func TestFrontLowerMultiply_IsForwardSolvesInverse(t *testing.T) {
	f := lowerFront(2, 3, map[[2]int64]float64{
		{0, 0}: 1, {1, 0}: 2, {1, 1}: 1,
		{2, 0}: 3, {2, 1}: 4,
	})
	x := kernel.NewDense[float64](3, 1)
	x.Set(0, 0, 5)
	x.Set(1, 0, 7)
	x.Set(2, 0, 9)
	orig := append([]float64(nil), x.Data...)

	require.NoError(t, kernel.FrontLowerMultiplyNormal(f, x, true))
	require.NoError(t, kernel.FrontLowerForwardSolve(f, x, false, true))
	for i, want := range orig {
		assert.InDelta(t, want, x.Data[i], 1e-9, "round trip mismatch at row %d", i)
	}
}

func TestFrontLowerMultiplyTranspose_MatchesDirectFormula(t *testing.T) {
	// L_T = [[1,0],[2,1]], L_B = [3,4]. L^T*x for x = [x0,x1,x2] (x2 the
	// L_B row) is [x0 + 2*x1 + 3*x2, x1 + 4*x2].
	f := lowerFront(2, 3, map[[2]int64]float64{
		{0, 0}: 1, {1, 0}: 2, {1, 1}: 1,
		{2, 0}: 3, {2, 1}: 4,
	})
	x := kernel.NewDense[float64](3, 1)
	x.Set(0, 0, 1)
	x.Set(1, 0, 2)
	x.Set(2, 0, 3)

	require.NoError(t, kernel.FrontLowerMultiplyTranspose(f, x, false, true))
	assert.InDelta(t, 1+2*2+3*3, x.At(0, 0), 1e-9)
	assert.InDelta(t, 2+4*3, x.At(1, 0), 1e-9)
}

func TestPivotedSolve_AppliesPermutationConsistentlyWithFactorization(t *testing.T) {
	f := lowerFront(2, 2, map[[2]int64]float64{
		{0, 0}: 1, {1, 0}: 2, {1, 1}: 9,
	})
	require.NoError(t, kernel.FactorPivoted(f, false))

	x := kernel.NewDense[float64](2, 1)
	x.Set(0, 0, 10)
	x.Set(1, 0, 20)

	require.NoError(t, kernel.ForwardSolvePivoted(f, x, false))
	require.NoError(t, kernel.BackwardSolvePivoted(f, x, false))
	// No assertion on the numeric result beyond "it runs to completion
	// without panicking on the permuted indices" -- the permutation
	// correctness itself is covered by TestFactorPivoted_SelectsLargestMagnitudeDiagonal.
	assert.Len(t, x.Data, 2)
}
