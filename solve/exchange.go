package solve

import (
	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/dissect"
	"github.com/jpoulson-lab/cliquesolve/kernel"
	"github.com/jpoulson-lab/cliquesolve/scalar"
	"github.com/jpoulson-lab/cliquesolve/symbolic"
)

// exchangeUpdates performs one level's worth of parent<->child value
// exchange, batched into a single AllToAllv across the whole group -- the
// same per-level collective budget multifrontal.extendAddLevel honors, but
// moving nrhs-wide row vectors instead of front entries.
//
// Forward (bottom level up): every locally-owned supernode in ids that has
// already been through its own forward kernel sends its bottom (update)
// rows to its parent, mapped through the same LeftChildRelIndices /
// RightChildRelIndices C6 computed, and added into the parent's
// not-yet-processed w buffer -- the right-hand-side analogue of
// multifrontal's Schur-complement extend-add.
//
// Backward (root level down): every locally-owned supernode in ids that has
// already been through its own backward kernel sends its now-final rows
// down to each child's corresponding bottom rows, overwriting rather than
// adding, since a child only ever receives from its one parent.
func exchangeUpdates[T scalar.Numeric](group comm.Group, tree *dissect.Tree, info []symbolic.NodeInfo, w map[int]*kernel.Dense[T], ids []int, forward bool) error {
	size := group.Size()
	myRank := group.Rank()
	outgoing := make([][]updateEntry[T], size)

	for _, id := range ids {
		sn := &tree.Supernodes[id]
		if forward {
			collectForward(tree, info, w, sn, id, myRank, outgoing)
		} else {
			collectBackward(tree, info, w, sn, id, myRank, outgoing)
		}
	}

	sendBufs := make([][]byte, size)
	for r := 0; r < size; r++ {
		sendBufs[r] = encodeUpdateEntries(outgoing[r])
	}
	recvBufs, err := group.AllToAllv(sendBufs)
	if err != nil {
		return err
	}
	for _, buf := range recvBufs {
		for _, e := range decodeUpdateEntries[T](buf) {
			dest := w[e.id]
			if dest == nil {
				continue
			}
			for c := int64(0); c < int64(len(e.vals)); c++ {
				if forward {
					dest.Set(e.row, c, dest.At(e.row, c)+e.vals[c])
				} else {
					dest.Set(e.row, c, e.vals[c])
				}
			}
		}
	}
	return nil
}

// collectForward sends sn's bottom rows into its parent's buffer. Every rank
// in sn.OwnerRanks holds an identical copy of wc (the kernel package's solve
// kernels replicate a distributed front and repeat its arithmetic on every
// member of its team), so only the team's lowest-ranked
// member actually sends -- otherwise the parent's "+=" accumulate below
// would add the same contribution once per team member instead of once.
func collectForward[T scalar.Numeric](tree *dissect.Tree, info []symbolic.NodeInfo, w map[int]*kernel.Dense[T], sn *dissect.Supernode, id, myRank int, outgoing [][]updateEntry[T]) {
	if sn.Parent < 0 {
		return
	}
	wc := w[id]
	if wc == nil {
		return
	}
	if len(sn.OwnerRanks) == 0 || sn.OwnerRanks[0] != myRank {
		return
	}
	parent := &tree.Supernodes[sn.Parent]
	if len(parent.OwnerRanks) == 0 {
		return
	}
	relIdx := info[sn.Parent].RightChildRelIndices
	if parent.Children[0] == id {
		relIdx = info[sn.Parent].LeftChildRelIndices
	}

	n := sn.Size
	for li := n; li < wc.Rows; li++ {
		vals := make([]T, wc.Cols)
		var nonzero bool
		var zero T
		for c := int64(0); c < wc.Cols; c++ {
			v := wc.At(li, c)
			vals[c] = v
			if v != zero {
				nonzero = true
			}
		}
		if !nonzero {
			continue
		}
		destRow := int64(relIdx[li-n])
		for _, rank := range parent.OwnerRanks {
			outgoing[rank] = append(outgoing[rank], updateEntry[T]{id: sn.Parent, row: destRow, vals: vals})
		}
	}
}

// collectBackward pushes sn's resolved rows down into each child's bottom
// rows. Overwriting a row with the same value twice is harmless, but
// gating the send on sn.OwnerRanks[0] still avoids size(sn.Team) x
// size(childSn.Team) redundant messages for a distributed parent.
func collectBackward[T scalar.Numeric](tree *dissect.Tree, info []symbolic.NodeInfo, w map[int]*kernel.Dense[T], sn *dissect.Supernode, id, myRank int, outgoing [][]updateEntry[T]) {
	if sn.Children[0] < 0 {
		return
	}
	wp := w[id]
	if wp == nil {
		return
	}
	if len(sn.OwnerRanks) == 0 || sn.OwnerRanks[0] != myRank {
		return
	}
	for side := 0; side < 2; side++ {
		childID := sn.Children[side]
		if childID < 0 {
			continue
		}
		childSn := &tree.Supernodes[childID]
		if len(childSn.OwnerRanks) == 0 {
			continue
		}
		relIdx := info[id].RightChildRelIndices
		if side == 0 {
			relIdx = info[id].LeftChildRelIndices
		}

		n := childSn.Size
		for k, srcRow := range relIdx {
			vals := make([]T, wp.Cols)
			for c := int64(0); c < wp.Cols; c++ {
				vals[c] = wp.At(int64(srcRow), c)
			}
			for _, rank := range childSn.OwnerRanks {
				outgoing[rank] = append(outgoing[rank], updateEntry[T]{id: childID, row: n + int64(k), vals: vals})
			}
		}
	}
}

type updateEntry[T scalar.Numeric] struct {
	id   int
	row  int64
	vals []T
}

func encodeUpdateEntries[T scalar.Numeric](es []updateEntry[T]) []byte {
	nrhs := 0
	if len(es) > 0 {
		nrhs = len(es[0].vals)
	}
	flat := make([]int64, 0, 2*len(es)+1)
	flat = append(flat, int64(nrhs))
	vals := make([]T, 0, len(es)*nrhs)
	for _, e := range es {
		flat = append(flat, int64(e.id), e.row)
		vals = append(vals, e.vals...)
	}
	header := comm.EncodeInts64(flat)
	body := comm.EncodeScalars(vals)
	out := make([]byte, 0, 8+len(header)+len(body))
	out = append(out, comm.EncodeInts64([]int64{int64(len(header))})...)
	out = append(out, header...)
	out = append(out, body...)
	return out
}

func decodeUpdateEntries[T scalar.Numeric](buf []byte) []updateEntry[T] {
	if len(buf) < 8 {
		return nil
	}
	headerLen := int(comm.DecodeInts64(buf[:8])[0])
	header := buf[8 : 8+headerLen]
	body := buf[8+headerLen:]

	flat := comm.DecodeInts64(header)
	if len(flat) == 0 {
		return nil
	}
	nrhs := int(flat[0])
	rest := flat[1:]
	valsAll := comm.DecodeScalars[T](body)
	n := len(rest) / 2
	out := make([]updateEntry[T], n)
	for k := 0; k < n; k++ {
		vals := append([]T(nil), valsAll[k*nrhs:(k+1)*nrhs]...)
		out[k] = updateEntry[T]{id: int(rest[2*k]), row: rest[2*k+1], vals: vals}
	}
	return out
}
