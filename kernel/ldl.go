package kernel

import (
	"fmt"

	"github.com/jpoulson-lab/cliquesolve/front"
	"github.com/jpoulson-lab/cliquesolve/scalar"
)

// FactorNormal runs spec.md §4.7's "Normal LDL" mode on f in place: a
// right-looking dense LDL factorization of the pivot block ATL (unit-lower L
// overwriting ATL's strict lower triangle, D on the diagonal), a panel solve
// that leaves ABL holding L21 = ABL·L^{-H}·D^{-1}, and a Schur update that
// subtracts L21·D·L21^H from ABR. conjugate selects L^T (false) vs L^H
// (true) throughout.
func FactorNormal[T scalar.Numeric](f *front.Front[T], conjugate bool) error {
	if f.IsDistributed() {
		return distFactorNormal(f, conjugate)
	}
	d, err := ldlFactorPivotBlock(f, conjugate)
	if err != nil {
		return err
	}
	panelSolve(f, d, conjugate)
	schurUpdate(f, d, conjugate)
	return nil
}

// FactorBlockNoPivot runs spec.md §4.7's "Block LDL (no intra-front
// pivoting)" mode: identical factorization, panel solve, and Schur update to
// FactorNormal, except ATL is afterwards overwritten by (L D L^H)^{-1} so a
// later triangular solve against it becomes a dense multiply, and the
// original (pre-solve) ABL is restored rather than left holding L21.
func FactorBlockNoPivot[T scalar.Numeric](f *front.Front[T], conjugate bool) error {
	if f.IsDistributed() {
		return distFactorBlockNoPivot(f, conjugate)
	}
	n, w := f.Size, f.Width
	original := snapshotPanel(f, n, w)

	d, err := ldlFactorPivotBlock(f, conjugate)
	if err != nil {
		return err
	}
	panelSolve(f, d, conjugate)
	schurUpdate(f, d, conjugate)

	invertPivotBlock(f, d, conjugate)
	restorePanel(f, n, w, original)
	return nil
}

// FactorPivoted runs spec.md §4.7's "Block LDL with intra-pivoting" mode: at
// each step it swaps the remaining diagonal entry of largest Abs1 magnitude
// into the pivot position (a Bunch-Kaufman A-pivoting search restricted to
// 1x1 pivots -- see DESIGN.md for why this module doesn't also implement the
// 2x2 block branch), then proceeds exactly as FactorBlockNoPivot on the
// now-permuted front (ATL left inverted, ABL restored). The resulting row permutation and the (always-zero, in
// this 1x1-only variant) subdiagonal are cached on f.Perm/f.DSub for the
// solve kernels to apply.
//
// Unlike FactorNormal/FactorBlockNoPivot (see distFactorNormal/
// distFactorBlockNoPivot), this mode still returns ErrDistributedUnsupported
// on a distributed front: swapIndex's row/column swap touches scattered
// positions across the whole grid for every accepted pivot, and the search
// itself needs a global argmax reduction over the remaining diagonal before
// any swap can happen -- a materially different distributed primitive than
// the two non-pivoting modes' column-broadcast sweep, which this module's
// time budget didn't extend to. See DESIGN.md.
func FactorPivoted[T scalar.Numeric](f *front.Front[T], conjugate bool) error {
	if f.IsDistributed() {
		return ErrDistributedUnsupported
	}
	n, w := f.Size, f.Width
	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	for k := int64(0); k < n; k++ {
		piv := k
		best := scalar.Abs1(f.Get(k, k))
		for i := k + 1; i < n; i++ {
			if m := scalar.Abs1(f.Get(i, i)); m > best {
				best, piv = m, i
			}
		}
		if piv != k {
			swapIndex(f, k, piv, conjugate, n, w)
			perm[k], perm[piv] = perm[piv], perm[k]
		}
	}
	// Snapshot ABL after the permutation (Perm is applied to X_T before this
	// front's forward solve, so the ABL the backward correction needs is the
	// already-permuted original, not the pre-permutation one).
	original := snapshotPanel(f, n, w)

	d, err := ldlFactorPivotBlock(f, conjugate)
	if err != nil {
		return err
	}
	panelSolve(f, d, conjugate)
	schurUpdate(f, d, conjugate)
	invertPivotBlock(f, d, conjugate)
	restorePanel(f, n, w, original)

	f.Perm = perm
	f.DSub = make([]T, n)
	return nil
}

// ldlFactorPivotBlock factors f's pivot block ATL in place: for column k, d[k]
// is the pivot, and L[i][k] (i > k) overwrites ATL's strict lower triangle.
// Only the lower triangle (row >= col) of ATL is ever read or written, the
// invariant front.Build's scatter already establishes.
func ldlFactorPivotBlock[T scalar.Numeric](f *front.Front[T], conjugate bool) ([]T, error) {
	n := f.Size
	d := make([]T, n)
	for k := int64(0); k < n; k++ {
		dk := f.Get(k, k)
		var zero T
		if dk == zero {
			return nil, fmt.Errorf("kernel: zero pivot at column %d of supernode %d", k, f.SupernodeID)
		}
		d[k] = dk
		for i := k + 1; i < n; i++ {
			f.Set(i, k, f.Get(i, k)/dk)
		}
		for j := k + 1; j < n; j++ {
			ljk := f.Get(j, k)
			if conjugate {
				ljk = scalar.Conjugate(ljk)
			}
			for i := j; i < n; i++ {
				f.Set(i, j, f.Get(i, j)-f.Get(i, k)*dk*ljk)
			}
		}
	}
	return d, nil
}

// panelSolve overwrites ABL with L21 = ABL·L^{-H}·D^{-1}: a per-row solve
// against the unit-upper-triangular L^{*|T}, followed by a per-column scale
// by 1/d[k].
func panelSolve[T scalar.Numeric](f *front.Front[T], d []T, conjugate bool) {
	n, w := f.Size, f.Width
	y := make([]T, n)
	for i := n; i < w; i++ {
		for k := int64(0); k < n; k++ {
			y[k] = f.Get(i, k)
		}
		for k := int64(0); k < n; k++ {
			var sum T
			for m := int64(0); m < k; m++ {
				lkm := f.Get(k, m)
				if conjugate {
					lkm = scalar.Conjugate(lkm)
				}
				sum += y[m] * lkm
			}
			y[k] -= sum
		}
		for k := int64(0); k < n; k++ {
			f.Set(i, k, y[k]/d[k])
		}
	}
}

// schurUpdate subtracts L21·D·L21^H from ABR, the Schur complement this
// supernode leaves for its parent's extend-add.
func schurUpdate[T scalar.Numeric](f *front.Front[T], d []T, conjugate bool) {
	n, w := f.Size, f.Width
	for i := n; i < w; i++ {
		for j := n; j <= i; j++ {
			var sum T
			for k := int64(0); k < n; k++ {
				lik := f.Get(i, k)
				ljk := f.Get(j, k)
				if conjugate {
					ljk = scalar.Conjugate(ljk)
				}
				sum += lik * d[k] * ljk
			}
			f.Set(i, j, f.Get(i, j)-sum)
		}
	}
}

// invertPivotBlock replaces ATL with (L D L^H)^{-1} = L^{-H} D^{-1} L^{-1},
// computed via a unit-lower-triangular inverse followed by two dense
// multiplies. The result is written to every (row, col) pair in [0, n) x
// [0, n), not just the lower triangle, since a later dense multiply against
// it needs the full matrix.
func invertPivotBlock[T scalar.Numeric](f *front.Front[T], d []T, conjugate bool) {
	n := f.Size
	linv := invertUnitLower(f, n)

	for row := int64(0); row < n; row++ {
		for col := int64(0); col < n; col++ {
			lo := row
			if col > lo {
				lo = col
			}
			var sum T
			for k := lo; k < n; k++ {
				// (L^{-H} D^{-1} L^{-1})[row][col]
				//   = sum_{k >= max(row,col)} L^{-1}[k][row]^{*|T} / d[k] * L^{-1}[k][col]
				a := linv[k*n+row]
				if conjugate {
					a = scalar.Conjugate(a)
				}
				sum += a * linv[k*n+col] / d[k]
			}
			f.Set(row, col, sum)
		}
	}
}

// invertUnitLower computes the inverse of the unit-lower-triangular L
// currently stored in ATL's strict lower triangle (with an implicit unit
// diagonal), returned flat row-major.
func invertUnitLower[T scalar.Numeric](f *front.Front[T], n int64) []T {
	linv := make([]T, n*n)
	for i := int64(0); i < n; i++ {
		linv[i*n+i] = 1
	}
	for col := int64(0); col < n; col++ {
		for row := col + 1; row < n; row++ {
			var sum T
			for k := col; k < row; k++ {
				sum += f.Get(row, k) * linv[k*n+col]
			}
			linv[row*n+col] = -sum
		}
	}
	return linv
}

func snapshotPanel[T scalar.Numeric](f *front.Front[T], n, w int64) []T {
	out := make([]T, (w-n)*n)
	for i := n; i < w; i++ {
		for k := int64(0); k < n; k++ {
			out[(i-n)*n+k] = f.Get(i, k)
		}
	}
	return out
}

func restorePanel[T scalar.Numeric](f *front.Front[T], n, w int64, saved []T) {
	for i := n; i < w; i++ {
		for k := int64(0); k < n; k++ {
			f.Set(i, k, saved[(i-n)*n+k])
		}
	}
}

// symGet and symSet treat ATL as logically symmetric/Hermitian even though
// only its lower triangle (row >= col) is physically stored, letting
// swapIndex permute rows/columns without breaking that storage invariant.
func symGet[T scalar.Numeric](f *front.Front[T], row, col int64, conjugate bool) T {
	if row >= col {
		return f.Get(row, col)
	}
	v := f.Get(col, row)
	if conjugate {
		return scalar.Conjugate(v)
	}
	return v
}

func symSet[T scalar.Numeric](f *front.Front[T], row, col int64, v T, conjugate bool) {
	if row >= col {
		f.Set(row, col, v)
		return
	}
	if conjugate {
		v = scalar.Conjugate(v)
	}
	f.Set(col, row, v)
}

// swapIndex permutes pivot-block index lo/hi in place: it swaps the two
// diagonal entries, swaps every other row/column's entries against lo and
// hi symmetrically, and swaps the corresponding pair of ABL columns. The
// cross term between lo and hi needs no update, since a simultaneous
// row+column swap leaves the single entry connecting the two positions
// where it already is.
func swapIndex[T scalar.Numeric](f *front.Front[T], k, piv int64, conjugate bool, n, w int64) {
	if k == piv {
		return
	}
	lo, hi := k, piv
	if lo > hi {
		lo, hi = hi, lo
	}

	dLo, dHi := f.Get(lo, lo), f.Get(hi, hi)
	f.Set(lo, lo, dHi)
	f.Set(hi, hi, dLo)

	for c := int64(0); c < n; c++ {
		if c == lo || c == hi {
			continue
		}
		a := symGet(f, lo, c, conjugate)
		b := symGet(f, hi, c, conjugate)
		symSet(f, lo, c, b, conjugate)
		symSet(f, hi, c, a, conjugate)
	}

	for i := n; i < w; i++ {
		a, b := f.Get(i, lo), f.Get(i, hi)
		f.Set(i, lo, b)
		f.Set(i, hi, a)
	}
}
