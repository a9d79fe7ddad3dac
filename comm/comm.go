// Package comm defines the collective-communication contract that every
// distributed component in this module is built against (spec.md §5/§6c),
// and ships one concrete implementation of it.
//
// No MPI binding exists anywhere in the corpus this module was built from,
// so — mirroring the way the design notes treat the graph partitioner as a
// pluggable oracle with a built-in default — the collective layer is a Go
// interface (Group) with a default in-process implementation
// (NewLocalGroup) built from goroutines and channels, one goroutine per
// simulated rank. Every package above comm is written against the
// interface; swapping in a real MPI binding later means implementing Group,
// nothing else.
package comm

import "fmt"

// Group is a process group: a fixed set of cooperating ranks that can issue
// point-to-point and collective operations against each other. All methods
// are safe to call concurrently from the goroutine that owns a given rank,
// matching the SPMD model of spec.md §5 (one logical thread of control per
// rank).
type Group interface {
	// Rank returns this process's position in [0, Size()).
	Rank() int
	// Size returns the number of ranks in the group.
	Size() int

	// Send blocks until payload has been handed off to rank dest for the
	// given tag.
	Send(dest int, tag int, payload []byte) error
	// Recv blocks until a payload sent to this rank under tag by src is
	// available, and returns it.
	Recv(src int, tag int) ([]byte, error)
	// SendRecv performs a Send and a Recv in a single call, avoiding the
	// deadlock a naive Send-then-Recv pair can cause between two ranks that
	// both send first.
	SendRecv(dest int, sendTag int, payload []byte, src int, recvTag int) ([]byte, error)

	// Barrier blocks until every rank in the group has called Barrier.
	Barrier() error
	// Bcast sends payload from root to every rank (including root, which
	// gets its own payload back unchanged).
	Bcast(root int, payload []byte) ([]byte, error)

	// AllToAll exchanges one fixed-size payload per rank: sendBufs[q] is
	// sent to rank q, and recvBufs[q] received from rank q is returned.
	AllToAll(sendBufs [][]byte) ([][]byte, error)
	// AllToAllv is the vector-counts generalization used by every
	// distributed phase in this module (graph assembly, distribution-map
	// translation, extend-add, solve-phase exchange per spec.md §5).
	AllToAllv(sendBufs [][]byte) ([][]byte, error)

	// Split partitions the group by color: ranks sharing a color end up in
	// the same child Group, ordered by key. A rank passing color < 0 does
	// not participate in any child and receives a nil Group back.
	Split(color, key int) (Group, error)
	// Free releases resources owned by this group (goroutines, channels).
	// Calling any other method after Free is undefined.
	Free()
}

// CountMismatchError is the invariant-breach error (spec.md §7) for an
// AllToAllv whose advertised send/recv counts disagree across the group.
// No Group implementation in this module returns it: localGroup's
// AllToAllv delivers each payload with its own length and runs no separate
// count check.
type CountMismatchError struct {
	Peer      int
	SendCount int
	RecvCount int
}

func (e *CountMismatchError) Error() string {
	return fmt.Sprintf("comm: send/recv count mismatch with peer %d: sent %d, peer expected %d", e.Peer, e.SendCount, e.RecvCount)
}
