package kernel

import (
	"fmt"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/front"
	"github.com/jpoulson-lab/cliquesolve/scalar"
)

// splitGroups builds the two sub-communicators every distributed kernel in
// this file needs: rowGroup collects the ranks sharing f's GridRow (ordered
// by GridCol, so a rank's position within it equals its own GridCol), and
// colGroup collects the ranks sharing f's GridCol (ordered by GridRow,
// likewise equal to GridRow). Together they let a [MC,MR]-addressed value
// reach every rank in the grid with one broadcast per dimension instead of
// a broadcast to the whole team.
func splitGroups[T scalar.Numeric](f *front.Front[T]) (rowGroup, colGroup comm.Group, err error) {
	rowGroup, err = f.Group.Split(f.GridRow, f.GridCol)
	if err != nil {
		return nil, nil, fmt.Errorf("kernel: splitting front %d's row communicator: %w", f.SupernodeID, err)
	}
	colGroup, err = f.Group.Split(f.GridCol, f.GridRow)
	if err != nil {
		return nil, nil, fmt.Errorf("kernel: splitting front %d's column communicator: %w", f.SupernodeID, err)
	}
	return rowGroup, colGroup, nil
}

// gatherReplicate assembles f's current global block [rowLo,rowHi) x
// [colLo,colHi) into a row-major buffer every rank of f's grid ends up
// holding an identical copy of. For each global row it first collects that
// row's column fragments across the row's own grid columns (one broadcast
// per grid column, rooted at whichever column actually owns that slice),
// then broadcasts the now-complete row down every grid column's own column
// communicator (rooted at the grid row that owns it) -- the two-step
// allgather-then-broadcast a 2-D cyclic distribution needs in place of a
// single Elemental Allgather, which this module has no binding for.
func gatherReplicate[T scalar.Numeric](f *front.Front[T], rowGroup, colGroup comm.Group, rowLo, rowHi, colLo, colHi int64) ([]T, error) {
	pr, pc := f.GridRows, f.GridCols
	nCols := colHi - colLo
	out := make([]T, (rowHi-rowLo)*nCols)

	for gi := rowLo; gi < rowHi; gi++ {
		ownerRow := int(((gi % int64(pr)) + int64(pr)) % int64(pr))
		var rowVals []T
		if f.GridRow == ownerRow {
			rowVals = make([]T, nCols)
			for ownerCol := 0; ownerCol < pc; ownerCol++ {
				var payload []byte
				if f.GridCol == ownerCol {
					chunk := make([]T, 0, nCols/int64(pc)+1)
					for gj := colLo + int64(ownerCol); gj < colHi; gj += int64(pc) {
						chunk = append(chunk, f.Get(gi, gj))
					}
					payload = comm.EncodeScalars(chunk)
				}
				recv, err := rowGroup.Bcast(ownerCol, payload)
				if err != nil {
					return nil, fmt.Errorf("kernel: gathering row %d across grid columns: %w", gi, err)
				}
				vals := comm.DecodeScalars[T](recv)
				idx := 0
				for gj := colLo + int64(ownerCol); gj < colHi; gj += int64(pc) {
					rowVals[gj-colLo] = vals[idx]
					idx++
				}
			}
		}
		var payload []byte
		if f.GridRow == ownerRow {
			payload = comm.EncodeScalars(rowVals)
		}
		recv, err := colGroup.Bcast(ownerRow, payload)
		if err != nil {
			return nil, fmt.Errorf("kernel: broadcasting row %d down grid rows: %w", gi, err)
		}
		copy(out[(gi-rowLo)*nCols:(gi-rowLo+1)*nCols], comm.DecodeScalars[T](recv))
	}
	return out, nil
}

// replicateFront gathers f's entire Width x Width block into a fully local
// (team size 1) front every rank of f's team computes identically --
// cheap enough to redo per solve call since a front's factored form is far
// smaller than the O(n^3) work factoring it took, so the triangular-solve
// kernels run the exact same arithmetic as the local case against this
// replica rather than needing their own distributed recurrence.
func replicateFront[T scalar.Numeric](f *front.Front[T]) (*front.Front[T], error) {
	rowGroup, colGroup, err := splitGroups(f)
	if err != nil {
		return nil, err
	}
	w := f.Width
	vals, err := gatherReplicate(f, rowGroup, colGroup, 0, w, 0, w)
	if err != nil {
		return nil, fmt.Errorf("kernel: replicating front %d: %w", f.SupernodeID, err)
	}
	mirror := front.New[T](f.SupernodeID, f.Size, w, nil)
	for i := int64(0); i < w; i++ {
		for j := int64(0); j < w; j++ {
			mirror.Set(i, j, vals[i*w+j])
		}
	}
	mirror.Perm = f.Perm
	mirror.DSub = f.DSub
	return mirror, nil
}
