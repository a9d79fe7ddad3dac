package front

import (
	"fmt"
	"sort"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/dissect"
	"github.com/jpoulson-lab/cliquesolve/scalar"
	"github.com/jpoulson-lab/cliquesolve/spmatrix"
	"github.com/jpoulson-lab/cliquesolve/symbolic"
)

// Build constructs every front this process owns (spec.md §4.6): one
// Front per supernode whose team this rank belongs to, with A's entries
// scattered into the pivot block or update panel at the position symbolic
// analysis already computed, and the Schur-complement quadrant left zeroed
// for the multifrontal driver's extend-add to accumulate into.
//
// A is distributed over original (unpermuted) row indices following the
// universal 1-D rule (layout.Range), while front ownership follows each
// supernode's team membership over the permuted column space -- a different
// partition of work entirely -- so Build's one real communication step is an
// AllToAllv across the whole top-level group that redistributes each entry
// from the rank that holds it in A to the rank (or one rank of the team)
// that owns its destination position in a front. Every rank computes the
// same routing function from the same globally-replicated tree and symbolic
// info, so no rank needs to ask another where an entry belongs.
//
// conjugate selects whether off-diagonal panel entries are stored as A's
// transpose (LDL^T factorization) or its conjugate transpose (LDL^H): when a
// nonzero (i, j) is encountered with the input's natural row below its
// permuted column, its panel-stored counterpart is scalar.Conjugate'd before
// being written.
func Build[T scalar.Numeric](group comm.Group, A *spmatrix.Dist[T], tree *dissect.Tree, info []symbolic.NodeInfo, conjugate bool) ([]*Front[T], error) {
	fronts := make([]*Front[T], len(tree.Supernodes))
	for id := range tree.Supernodes {
		sn := &tree.Supernodes[id]
		if sn.Team == nil {
			continue
		}
		width := sn.Size + int64(len(info[id].UnionLowerStruct))
		fronts[id] = New[T](id, sn.Size, width, sn.Team)
	}

	outgoing := make(map[int][]entry[T])
	low, high := A.LocalRange()
	for i := low; i < high; i++ {
		cols, vals, err := A.RowEntries(i)
		if err != nil {
			return nil, fmt.Errorf("front: reading row %d of A: %w", i, err)
		}
		pi, ok := tree.LocalPerm(i)
		if !ok {
			continue
		}
		for k, j := range cols {
			pj, ok := tree.LocalPerm(j)
			if !ok {
				continue
			}
			row, col, v := pi, pj, vals[k]
			if row < col {
				row, col = col, row
				if conjugate {
					v = scalar.Conjugate(v)
				}
			}
			dest, frontRow, frontCol, destID, ok := route(tree, info, row, col)
			if !ok {
				continue
			}
			outgoing[dest] = append(outgoing[dest], entry[T]{id: destID, row: frontRow, col: frontCol, v: v})
		}
	}

	size := group.Size()
	sendBufs := make([][]byte, size)
	for r := 0; r < size; r++ {
		sendBufs[r] = encodeEntries(outgoing[r])
	}
	recvBufs, err := group.AllToAllv(sendBufs)
	if err != nil {
		return nil, fmt.Errorf("front: scattering A's entries into fronts: %w", err)
	}
	for _, buf := range recvBufs {
		for _, e := range decodeEntries[T](buf) {
			f := fronts[e.id]
			if f == nil {
				continue
			}
			f.Accumulate(e.row, e.col, e.v)
		}
	}
	return fronts, nil
}

// route determines which supernode's front global position (row, col)
// belongs in, and which rank of that front's team owns that position under
// the column-major [MC,MR] grid mapping front.New uses.
func route(tree *dissect.Tree, info []symbolic.NodeInfo, row, col int64) (destRank int, frontRow, frontCol int64, destID int, ok bool) {
	id := tree.SupernodeOf(col)
	sn := &tree.Supernodes[id]
	if col < sn.Offset || col >= sn.Offset+sn.Size {
		return 0, 0, 0, 0, false
	}
	frontCol = col - sn.Offset
	switch {
	case row >= sn.Offset && row < sn.Offset+sn.Size:
		frontRow = row - sn.Offset
	default:
		pos := positionInUnion(info[id].UnionLowerStruct, row)
		if pos < 0 {
			return 0, 0, 0, 0, false
		}
		frontRow = sn.Size + int64(pos)
	}
	pr, pc := GridDims(len(sn.OwnerRanks))
	gridRow := int(frontRow) % pr
	gridCol := int(frontCol) % pc
	teamRank := gridCol*pr + gridRow
	if teamRank >= len(sn.OwnerRanks) {
		return 0, 0, 0, 0, false
	}
	return sn.OwnerRanks[teamRank], frontRow, frontCol, id, true
}

func positionInUnion(union []int64, row int64) int {
	i := sort.Search(len(union), func(k int) bool { return union[k] >= row })
	if i < len(union) && union[i] == row {
		return i
	}
	return -1
}

type entry[T scalar.Numeric] struct {
	id       int
	row, col int64
	v        T
}

func encodeEntries[T scalar.Numeric](es []entry[T]) []byte {
	flat := make([]int64, 0, 3*len(es))
	vals := make([]T, len(es))
	for i, e := range es {
		flat = append(flat, int64(e.id), e.row, e.col)
		vals[i] = e.v
	}
	header := comm.EncodeInts64(flat)
	body := comm.EncodeScalars(vals)
	out := make([]byte, 0, 8+len(header)+len(body))
	out = append(out, comm.EncodeInts64([]int64{int64(len(header))})...)
	out = append(out, header...)
	out = append(out, body...)
	return out
}

func decodeEntries[T scalar.Numeric](buf []byte) []entry[T] {
	if len(buf) < 8 {
		return nil
	}
	headerLen := int(comm.DecodeInts64(buf[:8])[0])
	header := buf[8 : 8+headerLen]
	body := buf[8+headerLen:]

	flat := comm.DecodeInts64(header)
	vals := comm.DecodeScalars[T](body)
	n := len(flat) / 3
	out := make([]entry[T], n)
	for k := 0; k < n; k++ {
		out[k] = entry[T]{id: int(flat[3*k]), row: flat[3*k+1], col: flat[3*k+2], v: vals[k]}
	}
	return out
}
