package multifrontal

import (
	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/dissect"
	"github.com/jpoulson-lab/cliquesolve/front"
	"github.com/jpoulson-lab/cliquesolve/scalar"
	"github.com/jpoulson-lab/cliquesolve/symbolic"
)

// extendAddLevel performs spec.md §4.7's extend-add for every supernode at
// one tree level in a single AllToAllv: each rank reads the local piece of
// its own Schur complement (the bottom-right ABR quadrant of every front it
// owns a piece of at this level), maps each entry's front-local position
// into its parent's front-local coordinates via the left/right relative
// index maps C6 precomputed, and routes it to the rank of the parent's team
// that owns that position -- the same column-major [MC,MR] grid rule
// front.Build's own routing function uses, recomputed locally here since no
// rank needs to ask another where an entry belongs.
func extendAddLevel[T scalar.Numeric](group comm.Group, tree *dissect.Tree, info []symbolic.NodeInfo, fronts []*front.Front[T], ids []int, conjugate bool) error {
	outgoing := make(map[int][]entry[T])
	for _, id := range ids {
		sn := &tree.Supernodes[id]
		f := fronts[id]
		if f == nil || sn.Parent < 0 {
			continue
		}
		parent := &tree.Supernodes[sn.Parent]
		relIdx := info[sn.Parent].RightChildRelIndices
		if parent.Children[0] == id {
			relIdx = info[sn.Parent].LeftChildRelIndices
		}

		n := f.Size
		for li := int64(0); li < f.LocalRows(); li++ {
			row := f.LocalRowGlobal(li)
			if row < n {
				continue
			}
			for lj := int64(0); lj < f.LocalCols(); lj++ {
				col := f.LocalColGlobal(lj)
				if col < n || col > row {
					continue
				}
				v := f.AtLocal(li, lj)
				var zero T
				if v == zero {
					continue
				}
				destRow, destCol := int64(relIdx[row-n]), int64(relIdx[col-n])
				if destRow < destCol {
					destRow, destCol = destCol, destRow
					if conjugate {
						v = scalar.Conjugate(v)
					}
				}
				destRank, ok := frontOwner(parent, destRow, destCol)
				if !ok {
					continue
				}
				outgoing[destRank] = append(outgoing[destRank], entry[T]{id: sn.Parent, row: destRow, col: destCol, v: v})
			}
		}
	}

	size := group.Size()
	sendBufs := make([][]byte, size)
	for r := 0; r < size; r++ {
		sendBufs[r] = encodeEntries(outgoing[r])
	}
	recvBufs, err := group.AllToAllv(sendBufs)
	if err != nil {
		return err
	}
	for _, buf := range recvBufs {
		for _, e := range decodeEntries[T](buf) {
			dest := fronts[e.id]
			if dest == nil {
				continue
			}
			dest.Accumulate(e.row, e.col, e.v)
		}
	}
	return nil
}

// frontOwner reports which rank of sn's owning team holds global front
// position (row, col) under the column-major [MC,MR] grid mapping front.New
// assigns, purely from sn.OwnerRanks -- the same computation front.Build's
// route performs, duplicated here since extend-add's destination is always
// the immediate parent rather than a SupernodeOf lookup by column value.
func frontOwner(sn *dissect.Supernode, row, col int64) (destRank int, ok bool) {
	pr, pc := front.GridDims(len(sn.OwnerRanks))
	gridRow := int(row) % pr
	gridCol := int(col) % pc
	teamRank := gridCol*pr + gridRow
	if teamRank >= len(sn.OwnerRanks) {
		return 0, false
	}
	return sn.OwnerRanks[teamRank], true
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
