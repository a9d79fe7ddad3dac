// Package rhs implements the nodal right-hand-side shuffle (spec.md §4.9,
// C10): translating a right-hand side between the user's 1-D distribution
// (spmatrix.Vector/MultiVector, spread over [0, N) by layout.Range) and the
// per-supernode distribution the multifrontal solve phase needs -- one
// dense kernel.Dense buffer per supernode, indexed by the supernode's own
// permuted columns and zero elsewhere.
//
// Pull and Push are this package's equivalent of the teacher's Solve
// gathering `rhs[intToExtRowMap[i]]` into its internal ordering before
// forward elimination and scattering `intermediate[i]` back out via
// `intToExtColMap` afterward: the same "external order in, permuted order
// out; permuted order in, external order out" shuffle, generalized from a
// single-process reindex to a distributed exchange of counts, request
// indices, and reply values.
package rhs

import (
	"fmt"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/dissect"
	"github.com/jpoulson-lab/cliquesolve/kernel"
	"github.com/jpoulson-lab/cliquesolve/layout"
	"github.com/jpoulson-lab/cliquesolve/scalar"
	"github.com/jpoulson-lab/cliquesolve/spmatrix"
	"github.com/jpoulson-lab/cliquesolve/symbolic"
)

// Shuffle caches the tree and symbolic info a Pull/Push pair needs; it holds
// no per-call state, so one Shuffle is reused across every right-hand side a
// solve sequence processes.
//
// Every supernode this rank belongs to is populated, whether its team has
// one rank or several: kernel.FrontLowerForwardSolve and the other solve
// kernels replicate a distributed front's arithmetic identically across
// its whole team (see kernel/distgrid.go), so Pull hands every member of a
// distributed supernode's team the same full Width x nrhs buffer rather
// than splitting it into a [VC,*] row share -- there is no per-rank row
// ownership to split across once the kernels themselves are redundant
// across the team.
type Shuffle[T scalar.Numeric] struct {
	group comm.Group
	tree  *dissect.Tree
	info  []symbolic.NodeInfo
}

// New builds a Shuffle over tree/info, valid for as long as they are.
func New[T scalar.Numeric](group comm.Group, tree *dissect.Tree, info []symbolic.NodeInfo) *Shuffle[T] {
	return &Shuffle[T]{group: group, tree: tree, info: info}
}

// Pull gathers v's rows into one Dense buffer per locally-owned supernode,
// sized Width x nrhs: the top Size rows hold the supernode's own RHS
// entries (fetched from whichever rank owns them in v's 1-D distribution),
// the remaining rows are left zero for the forward solve's extend-add to
// fill in.
func (s *Shuffle[T]) Pull(v *spmatrix.MultiVector[T]) (map[int]*kernel.Dense[T], error) {
	group := s.group
	size := group.Size()
	n := v.N()
	nrhs := int64(v.NumRHS())
	rank := group.Rank()

	type want struct {
		id int
		li int64
	}
	var wants []want
	out := make(map[int]*kernel.Dense[T])
	for id, sn := range s.tree.Supernodes {
		if !isMember(&sn, rank) {
			continue
		}
		width := sn.Size + int64(len(s.info[id].UnionLowerStruct))
		out[id] = kernel.NewDense[T](width, nrhs)
		for li := int64(0); li < sn.Size; li++ {
			wants = append(wants, want{id, li})
		}
	}

	sendReq := make([][]int64, size)
	reqPos := make([][]int, size)
	for pos, w := range wants {
		sn := &s.tree.Supernodes[w.id]
		orig := s.tree.Original(sn.Offset + w.li)
		owner := layout.Owner(n, size, orig)
		sendReq[owner] = append(sendReq[owner], orig)
		reqPos[owner] = append(reqPos[owner], pos)
	}

	recvReq, err := exchangeInt64(group, sendReq)
	if err != nil {
		return nil, fmt.Errorf("rhs: pull request exchange: %w", err)
	}

	sendReply := make([][]T, size)
	for q, reqs := range recvReq {
		reply := make([]T, 0, int64(len(reqs))*nrhs)
		for _, orig := range reqs {
			row, err := v.Row(orig)
			if err != nil {
				return nil, fmt.Errorf("rhs: pull reading row %d: %w", orig, err)
			}
			reply = append(reply, row...)
		}
		sendReply[q] = reply
	}
	recvReply, err := exchangeScalars[T](group, sendReply)
	if err != nil {
		return nil, fmt.Errorf("rhs: pull reply exchange: %w", err)
	}

	for q, pos := range reqPos {
		vals := recvReply[q]
		for k, p := range pos {
			w := wants[p]
			for c := int64(0); c < nrhs; c++ {
				out[w.id].Set(w.li, c, vals[int64(k)*nrhs+c])
			}
		}
	}
	return out, nil
}

// Push scatters the top Size rows of every entry of sols (one Dense buffer
// per locally-present supernode, as Pull produces and the backward solve
// leaves behind) back into out's 1-D distribution -- the inverse of Pull,
// but a single exchange suffices since the sender already knows both the
// value and the destination rank. A distributed supernode's team members
// all hold identical post-backward-solve values, so only the team's
// lowest-ranked member (sn.OwnerRanks[0]) actually sends, to avoid every
// member pushing a redundant copy of the same row.
func (s *Shuffle[T]) Push(sols map[int]*kernel.Dense[T], out *spmatrix.MultiVector[T]) error {
	group := s.group
	size := group.Size()
	rank := group.Rank()
	n := out.N()
	nrhs := int64(out.NumRHS())

	sendOrig := make([][]int64, size)
	sendVals := make([][]T, size)
	for id, w := range sols {
		sn := &s.tree.Supernodes[id]
		if len(sn.OwnerRanks) == 0 || sn.OwnerRanks[0] != rank {
			continue
		}
		for li := int64(0); li < sn.Size; li++ {
			orig := s.tree.Original(sn.Offset + li)
			dest := layout.Owner(n, size, orig)
			sendOrig[dest] = append(sendOrig[dest], orig)
			for c := int64(0); c < nrhs; c++ {
				sendVals[dest] = append(sendVals[dest], w.At(li, c))
			}
		}
	}

	recvOrig, err := exchangeInt64(group, sendOrig)
	if err != nil {
		return fmt.Errorf("rhs: push index exchange: %w", err)
	}
	recvVals, err := exchangeScalars[T](group, sendVals)
	if err != nil {
		return fmt.Errorf("rhs: push value exchange: %w", err)
	}

	for q, origs := range recvOrig {
		vals := recvVals[q]
		for k, orig := range origs {
			row, err := out.Row(orig)
			if err != nil {
				return fmt.Errorf("rhs: push writing row %d: %w", orig, err)
			}
			copy(row, vals[int64(k)*nrhs:(int64(k)+1)*nrhs])
		}
	}
	return nil
}

// isMember reports whether rank belongs to sn's owning team, true for every
// member of a distributed supernode's team and not just a sole local owner.
func isMember(sn *dissect.Supernode, rank int) bool {
	for _, r := range sn.OwnerRanks {
		if r == rank {
			return true
		}
	}
	return false
}

func exchangeInt64(group comm.Group, send [][]int64) ([][]int64, error) {
	bufs := make([][]byte, len(send))
	for q, v := range send {
		bufs[q] = comm.EncodeInts64(v)
	}
	recvBufs, err := group.AllToAllv(bufs)
	if err != nil {
		return nil, err
	}
	recv := make([][]int64, len(recvBufs))
	for q, b := range recvBufs {
		recv[q] = comm.DecodeInts64(b)
	}
	return recv, nil
}

func exchangeScalars[T scalar.Numeric](group comm.Group, send [][]T) ([][]T, error) {
	bufs := make([][]byte, len(send))
	for q, v := range send {
		bufs[q] = comm.EncodeScalars(v)
	}
	recvBufs, err := group.AllToAllv(bufs)
	if err != nil {
		return nil, err
	}
	recv := make([][]T, len(recvBufs))
	for q, b := range recvBufs {
		recv[q] = comm.DecodeScalars[T](b)
	}
	return recv, nil
}
