package cliquesolve

import (
	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/graph"
	"github.com/jpoulson-lab/cliquesolve/layout"
	"github.com/jpoulson-lab/cliquesolve/scalar"
	"github.com/jpoulson-lab/cliquesolve/spmatrix"
)

// graphFromMatrix derives the adjacency graph nested dissection needs from
// A's sparsity pattern. A stores only its lower triangle (row >= col, per
// spmatrix.Dist's own convention), so for every off-diagonal entry (i, j)
// this rank owns (i is locally owned, since spmatrix/graph share the same
// layout.Range row distribution), the i side of the undirected edge can be
// inserted locally, but the j side needs routing to whichever rank owns j
// -- one AllToAllv of (target, source) pairs keyed by layout.Owner, the
// same "each rank computes routing locally, one real collective" pattern
// every other distributed assembly step in this module follows.
func graphFromMatrix[T scalar.Numeric](group comm.Group, a *spmatrix.Dist[T]) (*graph.Dist, error) {
	n := a.N()
	size := group.Size()

	g := graph.NewDist(group, n)
	g.StartAssembly()

	toOwner := make([][]int64, size)
	low, high := a.LocalRange()
	for i := low; i < high; i++ {
		cols, _, err := a.RowEntries(i)
		if err != nil {
			return nil, err
		}
		for _, j := range cols {
			if j == i {
				continue
			}
			if err := g.Insert(i, j); err != nil {
				return nil, err
			}
			owner := layout.Owner(n, size, j)
			if owner == group.Rank() {
				if err := g.Insert(j, i); err != nil {
					return nil, err
				}
				continue
			}
			toOwner[owner] = append(toOwner[owner], j, i)
		}
	}

	sendBufs := make([][]byte, size)
	for r := 0; r < size; r++ {
		sendBufs[r] = comm.EncodeInts64(toOwner[r])
	}
	recvBufs, err := group.AllToAllv(sendBufs)
	if err != nil {
		return nil, err
	}
	for _, buf := range recvBufs {
		pairs := comm.DecodeInts64(buf)
		for k := 0; k < len(pairs); k += 2 {
			if err := g.Insert(pairs[k], pairs[k+1]); err != nil {
				return nil, err
			}
		}
	}

	if err := g.StopAssembly(); err != nil {
		return nil, err
	}
	return g, nil
}
