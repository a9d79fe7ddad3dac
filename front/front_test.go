package front_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/jpoulson-lab/cliquesolve/front"
)

func TestGridDims_NearSquareFactorization(t *testing.T) {
	cases := map[int][2]int{
		1: {1, 1},
		2: {1, 2},
		4: {2, 2},
		6: {2, 3},
		7: {1, 7},
	}
	for teamSize, want := range cases {
		rows, cols := front.GridDims(teamSize)
		assert.Equal(t, want[0], rows, "teamSize=%d rows", teamSize)
		assert.Equal(t, want[1], cols, "teamSize=%d cols", teamSize)
		assert.Equal(t, teamSize, rows*cols, "teamSize=%d must factor exactly", teamSize)
	}
}

func TestFront_LocalFrontIsDenseIdentityMapped(t *testing.T) {
	f := front.New[float64](0, 3, 5, nil)
	assert.Equal(t, int64(5), f.LocalRows())
	assert.Equal(t, int64(5), f.LocalCols())

	for i := int64(0); i < 5; i++ {
		assert.Equal(t, i, f.LocalRowGlobal(i))
		assert.Equal(t, i, f.LocalColGlobal(i))
	}

	f.Set(4, 2, 7)
	assert.Equal(t, 7.0, f.Get(4, 2))
	f.Accumulate(4, 2, 3)
	assert.Equal(t, 10.0, f.Get(4, 2))
}

func TestFront_OwnsGlobalRespectsGridResidue(t *testing.T) {
	f := front.New[float64](0, 2, 4, nil)
	// A team-size-1 front owns every position.
	for i := int64(0); i < 4; i++ {
		for j := int64(0); j < 4; j++ {
			assert.True(t, f.OwnsGlobal(i, j))
		}
	}
}
