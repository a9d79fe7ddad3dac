package kernel

import (
	"fmt"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/front"
	"github.com/jpoulson-lab/cliquesolve/scalar"
)

// distFactorNormal is FactorNormal's [MC,MR]-distributed counterpart: the
// pivot-block sweep (distFactorPivotBlock) runs one rank-1 update per
// column with every rank applying only the share of the trailing update it
// owns, and the Schur-complement update (distSchurUpdate) -- this
// supernode's dominant FLOP cost -- likewise touches only each rank's own
// ABR entries. Only the row-wise panel solve (distPanelSolve) accepts
// redundant computation, since a single row's forward substitution is
// sequential in its pivot-block column and a front's update panel is small
// next to the Schur update it feeds.
func distFactorNormal[T scalar.Numeric](f *front.Front[T], conjugate bool) error {
	rowGroup, colGroup, err := splitGroups(f)
	if err != nil {
		return err
	}
	n, w := f.Size, f.Width
	pr, pc := f.GridRows, f.GridCols

	d, err := distFactorPivotBlock(f, conjugate, rowGroup, colGroup)
	if err != nil {
		return err
	}
	lRepl, err := gatherReplicate(f, rowGroup, colGroup, 0, n, 0, n)
	if err != nil {
		return fmt.Errorf("kernel: replicating factored pivot block of supernode %d: %w", f.SupernodeID, err)
	}
	ablRaw, err := gatherReplicate(f, rowGroup, colGroup, n, w, 0, n)
	if err != nil {
		return fmt.Errorf("kernel: replicating update panel of supernode %d: %w", f.SupernodeID, err)
	}
	distPanelSolve(f, d, lRepl, ablRaw, conjugate, pr, pc)

	solvedABL, err := gatherReplicate(f, rowGroup, colGroup, n, w, 0, n)
	if err != nil {
		return fmt.Errorf("kernel: replicating solved panel of supernode %d: %w", f.SupernodeID, err)
	}
	distSchurUpdate(f, d, solvedABL, conjugate, pr, pc)
	return nil
}

// distFactorBlockNoPivot runs distFactorNormal's same three passes and then
// -- matching FactorBlockNoPivot's local contract -- inverts the (now
// tiny, replicated) pivot block and restores ABL to its pre-solve values,
// scattering both back into f's distributed storage.
func distFactorBlockNoPivot[T scalar.Numeric](f *front.Front[T], conjugate bool) error {
	rowGroup, colGroup, err := splitGroups(f)
	if err != nil {
		return err
	}
	n, w := f.Size, f.Width
	pr, pc := f.GridRows, f.GridCols

	d, err := distFactorPivotBlock(f, conjugate, rowGroup, colGroup)
	if err != nil {
		return err
	}
	lRepl, err := gatherReplicate(f, rowGroup, colGroup, 0, n, 0, n)
	if err != nil {
		return fmt.Errorf("kernel: replicating factored pivot block of supernode %d: %w", f.SupernodeID, err)
	}
	ablRaw, err := gatherReplicate(f, rowGroup, colGroup, n, w, 0, n)
	if err != nil {
		return fmt.Errorf("kernel: replicating update panel of supernode %d: %w", f.SupernodeID, err)
	}
	distPanelSolve(f, d, lRepl, ablRaw, conjugate, pr, pc)

	solvedABL, err := gatherReplicate(f, rowGroup, colGroup, n, w, 0, n)
	if err != nil {
		return fmt.Errorf("kernel: replicating solved panel of supernode %d: %w", f.SupernodeID, err)
	}
	distSchurUpdate(f, d, solvedABL, conjugate, pr, pc)

	atlMirror := front.New[T](f.SupernodeID, n, n, nil)
	for i := int64(1); i < n; i++ {
		for k := int64(0); k < i; k++ {
			atlMirror.Set(i, k, lRepl[i*n+k])
		}
	}
	invertPivotBlock(atlMirror, d, conjugate)
	for i := int64(0); i < n; i++ {
		for k := int64(0); k < n; k++ {
			f.Set(i, k, atlMirror.Get(i, k))
		}
	}
	for i := n; i < w; i++ {
		if int(i%int64(pr)) != f.GridRow {
			continue
		}
		for k := int64(0); k < n; k++ {
			if int(k%int64(pc)) == f.GridCol {
				f.Set(i, k, ablRaw[(i-n)*n+k])
			}
		}
	}
	return nil
}

// distFactorPivotBlock is ldlFactorPivotBlock's distributed counterpart: for
// each pivot column k it gathers that column (replicated to the whole
// grid, via gatherReplicate), then every rank normalizes and rank-1 updates
// only the (i, k) and (i, j) positions it owns locally -- the same
// right-looking recurrence ldlFactorPivotBlock runs, with f.Get/f.Set's
// silent ownership filtering doing the per-rank restriction that a single
// process's loop bounds did in the local version.
func distFactorPivotBlock[T scalar.Numeric](f *front.Front[T], conjugate bool, rowGroup, colGroup comm.Group) ([]T, error) {
	n := f.Size
	d := make([]T, n)
	for k := int64(0); k < n; k++ {
		col, err := gatherReplicate(f, rowGroup, colGroup, k, n, k, k+1)
		if err != nil {
			return nil, fmt.Errorf("kernel: gathering pivot column %d of supernode %d: %w", k, f.SupernodeID, err)
		}
		dk := col[0]
		var zero T
		if dk == zero {
			return nil, fmt.Errorf("kernel: zero pivot at column %d of supernode %d", k, f.SupernodeID)
		}
		d[k] = dk
		for i := k + 1; i < n; i++ {
			f.Set(i, k, col[i-k]/dk)
		}
		for j := k + 1; j < n; j++ {
			ljk := col[j-k] / dk
			if conjugate {
				ljk = scalar.Conjugate(ljk)
			}
			for i := j; i < n; i++ {
				lik := col[i-k] / dk
				f.Set(i, j, f.Get(i, j)-lik*dk*ljk)
			}
		}
	}
	return d, nil
}

// distPanelSolve is panelSolve's distributed counterpart. A row's forward
// substitution against L^{*|T} is sequential in its pivot-block column, so
// it can't be split across the ranks that would otherwise share it; instead
// every rank sharing a row's grid row solves that row redundantly (using
// lRepl/ablRaw, already replicated across the whole grid) and keeps only
// the columns it actually owns.
func distPanelSolve[T scalar.Numeric](f *front.Front[T], d, lRepl, ablRaw []T, conjugate bool, pr, pc int) {
	n, w := f.Size, f.Width
	y := make([]T, n)
	for i := n; i < w; i++ {
		if int(i%int64(pr)) != f.GridRow {
			continue
		}
		row := ablRaw[(i-n)*n : (i-n+1)*n]
		for k := int64(0); k < n; k++ {
			var sum T
			for m := int64(0); m < k; m++ {
				lkm := lRepl[k*n+m]
				if conjugate {
					lkm = scalar.Conjugate(lkm)
				}
				sum += y[m] * lkm
			}
			y[k] = row[k] - sum
		}
		for k := int64(0); k < n; k++ {
			if int(k%int64(pc)) == f.GridCol {
				f.Set(i, k, y[k]/d[k])
			}
		}
	}
}

// distSchurUpdate is schurUpdate's distributed counterpart and this
// supernode's most expensive step: given the fully-solved update panel
// replicated across the grid (solvedABL), each rank computes the rank-n
// update for exactly the ABR entries it owns -- no rank recomputes another
// rank's share, unlike distPanelSolve's accepted row redundancy.
func distSchurUpdate[T scalar.Numeric](f *front.Front[T], d, solvedABL []T, conjugate bool, pr, pc int) {
	n, w := f.Size, f.Width
	for i := n; i < w; i++ {
		if int(i%int64(pr)) != f.GridRow {
			continue
		}
		for j := n; j <= i; j++ {
			if int(j%int64(pc)) != f.GridCol {
				continue
			}
			var sum T
			for k := int64(0); k < n; k++ {
				lik := solvedABL[(i-n)*n+k]
				ljk := solvedABL[(j-n)*n+k]
				if conjugate {
					ljk = scalar.Conjugate(ljk)
				}
				sum += lik * d[k] * ljk
			}
			f.Set(i, j, f.Get(i, j)-sum)
		}
	}
}
