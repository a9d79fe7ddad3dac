package spmatrix

import (
	"fmt"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/layout"
	"github.com/jpoulson-lab/cliquesolve/scalar"
)

// Vector is a single right-hand side distributed under the same 1-D rule
// as Dist, giving symmetric_solve's single-vector overload (spec.md §6) a
// concrete type distinct from a bare []T so call sites can't confuse a
// local slice with a distributed one.
type Vector[T scalar.Numeric] struct {
	group comm.Group
	n     int64
	local []T
}

// NewVector allocates a zeroed distributed vector of global length n.
func NewVector[T scalar.Numeric](group comm.Group, n int64) *Vector[T] {
	h := layout.LocalHeight(n, group.Size(), group.Rank())
	return &Vector[T]{group: group, n: n, local: make([]T, h)}
}

func (v *Vector[T]) N() int64         { return v.n }
func (v *Vector[T]) Group() comm.Group { return v.group }
func (v *Vector[T]) Local() []T       { return v.local }

// LocalRange returns the [low, high) global index range this rank owns.
func (v *Vector[T]) LocalRange() (low, high int64) {
	return layout.Range(v.n, v.group.Size(), v.group.Rank())
}

// At returns the value at global index i, which must be locally owned.
func (v *Vector[T]) At(i int64) (T, error) {
	low, high := v.LocalRange()
	if i < low || i >= high {
		var zero T
		return zero, fmt.Errorf("spmatrix: index %d not locally owned (range [%d, %d))", i, low, high)
	}
	return v.local[i-low], nil
}

// Set assigns the value at global index i, which must be locally owned.
func (v *Vector[T]) Set(i int64, x T) error {
	low, high := v.LocalRange()
	if i < low || i >= high {
		return fmt.Errorf("spmatrix: index %d not locally owned (range [%d, %d))", i, low, high)
	}
	v.local[i-low] = x
	return nil
}

// MultiVector is the multi-right-hand-side overload of Vector: nrhs
// columns, each distributed under the same 1-D rule, stored contiguously
// per local row (row-major: local[row*nrhs+col]) so a single-row update
// during the nodal shuffle (rhs.Pull/Push) touches one contiguous slice.
type MultiVector[T scalar.Numeric] struct {
	group comm.Group
	n     int64
	nrhs  int
	local []T
}

// NewMultiVector allocates a zeroed distributed multi-vector of global
// height n and width nrhs.
func NewMultiVector[T scalar.Numeric](group comm.Group, n int64, nrhs int) *MultiVector[T] {
	h := layout.LocalHeight(n, group.Size(), group.Rank())
	return &MultiVector[T]{group: group, n: n, nrhs: nrhs, local: make([]T, h*int64(nrhs))}
}

func (v *MultiVector[T]) N() int64          { return v.n }
func (v *MultiVector[T]) NumRHS() int       { return v.nrhs }
func (v *MultiVector[T]) Group() comm.Group { return v.group }
func (v *MultiVector[T]) Local() []T        { return v.local }

func (v *MultiVector[T]) LocalRange() (low, high int64) {
	return layout.Range(v.n, v.group.Size(), v.group.Rank())
}

// Row returns the nrhs-length slice of locally-owned global row i.
func (v *MultiVector[T]) Row(i int64) ([]T, error) {
	low, high := v.LocalRange()
	if i < low || i >= high {
		return nil, fmt.Errorf("spmatrix: index %d not locally owned (range [%d, %d))", i, low, high)
	}
	r := i - low
	return v.local[r*int64(v.nrhs) : (r+1)*int64(v.nrhs)], nil
}
