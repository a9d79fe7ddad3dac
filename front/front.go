// Package front implements the frontal matrix (spec.md §4.6/§4.8, C7/C9): the
// dense Size x Width block a supernode's factorization and update scatters
// operate on, stored either as an ordinary dense matrix (team size 1) or as
// an Elemental-style [MC,MR] cyclically-distributed grid (team size > 1).
//
// Front never materialises the four named ATL/ABL/ABR sub-blocks spec.md §3
// describes as separate storage: they're the same backing array addressed by
// a row/column predicate against Size, exactly the way a single dense matrix
// splits into quadrants by slicing. For a distributed front the local/global
// index split additionally interleaves cyclically (global row i lives on
// grid row i mod GridRows), the same rule layout.Owner applies to 1-D row
// distribution, generalised to two dimensions because no Elemental binding
// exists anywhere in the retrieved corpus to reuse instead.
package front

import (
	"math"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/scalar"
)

// Front is one supernode's dense frontal matrix: a Width x Width symmetric
// region whose top-left Size x Size quadrant is the pivot block (ATL), whose
// remaining rows of the first Size columns are the update panel (ABL), and
// whose bottom-right (Width-Size) x (Width-Size) quadrant is the Schur
// complement accumulator (ABR). Build and the Normal-mode kernels populate
// only the lower triangle (row >= col), matching spmatrix.Dist's storage
// convention; the Block modes overwrite all of ATL with its explicit inverse.
type Front[T scalar.Numeric] struct {
	SupernodeID int
	Size        int64 // pivot block width
	Width       int64 // Size + len(union lower struct)

	// Group is the front's owning team, nil for a front this process owns
	// outright (a non-distributed supernode). GridRows/GridCols/GridRow/
	// GridCol are always populated -- (1, 1, 0, 0) for a local front -- so
	// LocalRowGlobal/LocalColGlobal are valid regardless of distribution.
	Group               comm.Group
	GridRows, GridCols  int
	GridRow, GridCol    int

	localRows, localCols int64
	data                  []T

	// Perm and DSub are filled in by kernel.FactorPivoted once this front's pivot
	// block has been factored: Perm is the Bunch-Kaufman row permutation (nil
	// if the front was factored without intra-front pivoting), DSub carries
	// the subdiagonal entries of any 2x2 pivot blocks.
	Perm []int
	DSub []T
}

// GridDims picks a near-square process grid for a team of the given size,
// the same way a 2-D block-cyclic distribution wants GridRows*GridCols ==
// teamSize with the two factors as close to equal as possible. teamSize <= 1
// always yields (1, 1).
func GridDims(teamSize int) (rows, cols int) {
	if teamSize <= 1 {
		return 1, 1
	}
	rows = int(math.Sqrt(float64(teamSize)))
	for rows > 1 && teamSize%rows != 0 {
		rows--
	}
	return rows, teamSize / rows
}

// New allocates a front for supernode id with the given pivot size and total
// width, owned by team (nil for a front this single process owns outright).
// The column-major rank-to-grid mapping (rank = gridCol*GridRows + gridRow)
// matches spec.md §4.8's [MC,MR] naming and front.Build's routing
// computation, which every rank -- member or not -- can reproduce locally.
func New[T scalar.Numeric](id int, size, width int64, team comm.Group) *Front[T] {
	teamSize, rank := 1, 0
	if team != nil {
		teamSize, rank = team.Size(), team.Rank()
	}
	pr, pc := GridDims(teamSize)
	gridRow, gridCol := rank%pr, rank/pr
	localRows := cyclicCount(width, pr, gridRow)
	localCols := cyclicCount(width, pc, gridCol)
	return &Front[T]{
		SupernodeID: id,
		Size:        size,
		Width:       width,
		Group:       team,
		GridRows:    pr,
		GridCols:    pc,
		GridRow:     gridRow,
		GridCol:     gridCol,
		localRows:   localRows,
		localCols:   localCols,
		data:        make([]T, localRows*localCols),
	}
}

// cyclicCount returns the number of values in [0, total) congruent to
// residue mod stride -- the local height/width of one grid line of a
// cyclically distributed dimension.
func cyclicCount(total int64, stride, residue int) int64 {
	if int64(residue) >= total {
		return 0
	}
	return (total-int64(residue)-1)/int64(stride) + 1
}

// LocalRows and LocalCols report this process's local storage shape.
func (f *Front[T]) LocalRows() int64 { return f.localRows }
func (f *Front[T]) LocalCols() int64 { return f.localCols }

// LocalRowGlobal and LocalColGlobal map a local storage index back to its
// global row/column within [0, Width). For a local (team size 1) front these
// are the identity, so kernel code written against global coordinates works
// unchanged whether or not the front is distributed.
func (f *Front[T]) LocalRowGlobal(li int64) int64 { return li*int64(f.GridRows) + int64(f.GridRow) }
func (f *Front[T]) LocalColGlobal(lj int64) int64 { return lj*int64(f.GridCols) + int64(f.GridCol) }

// OwnsGlobal reports whether this process's local storage holds global
// position (row, col).
func (f *Front[T]) OwnsGlobal(row, col int64) bool {
	return int(row%int64(f.GridRows)) == f.GridRow && int(col%int64(f.GridCols)) == f.GridCol
}

// AtLocal and SetLocal index the local backing store directly.
func (f *Front[T]) AtLocal(li, lj int64) T    { return f.data[li*f.localCols+lj] }
func (f *Front[T]) SetLocal(li, lj int64, v T) { f.data[li*f.localCols+lj] = v }

// Get and Set address a front by global (row, col); Set/Get on a position
// this process doesn't own is a no-op/zero read, since distributed kernels
// only ever call these after checking OwnsGlobal (or iterating LocalRows/
// LocalCols directly, which never produces an unowned position).
func (f *Front[T]) Get(row, col int64) T {
	if !f.OwnsGlobal(row, col) {
		var zero T
		return zero
	}
	return f.AtLocal(row/int64(f.GridRows), col/int64(f.GridCols))
}

func (f *Front[T]) Set(row, col int64, v T) {
	if !f.OwnsGlobal(row, col) {
		return
	}
	f.SetLocal(row/int64(f.GridRows), col/int64(f.GridCols), v)
}

// Accumulate adds v into global position (row, col), used by Build to
// scatter A's entries and by the multifrontal driver's extend-add.
func (f *Front[T]) Accumulate(row, col int64, v T) {
	if !f.OwnsGlobal(row, col) {
		return
	}
	li, lj := row/int64(f.GridRows), col/int64(f.GridCols)
	f.data[li*f.localCols+lj] += v
}

// IsDistributed reports whether this front's grid spans more than one rank.
func (f *Front[T]) IsDistributed() bool { return f.GridRows*f.GridCols > 1 }
