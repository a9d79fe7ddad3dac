// Package dissect implements nested dissection (spec.md §4.4, C5): it
// recursively bisects the adjacency graph of A, alternating between the
// distributed bisector (while the team size is > 1) and the sequential
// one, producing a separator tree, a composite permutation, and the
// parallel elimination tree of supernodes the numeric layers consume.
package dissect

import "github.com/jpoulson-lab/cliquesolve/comm"

// Supernode is one node of the elimination tree (spec.md §3), parallel to
// the separator tree: supernodes are numbered in post-order, and every
// non-leaf supernode has exactly two children (spec.md §4.4's invariants).
type Supernode struct {
	Size   int64
	Offset int64 // offset in the permuted column space
	Parent int   // -1 for the global root
	// Children holds the post-order ids of the left and right children, or
	// {-1, -1} for a leaf.
	Children [2]int

	// OriginalLowerStruct holds, once computed by FillOriginalLowerStructs,
	// the sorted set of permuted-column indices j > this supernode's
	// column range such that A has a nonzero at (i, j) for some i in the
	// supernode's columns (spec.md §4.5's symbolic-analysis input).
	OriginalLowerStruct []int64

	// IsDistributed marks supernodes built while the owning team still had
	// more than one rank; front.Build and multifrontal.Factor dispatch on
	// it to choose a local vs. grid-distributed front.
	IsDistributed bool
	// Team is the process group that owns this supernode's front, non-nil
	// only on ranks that are actually members of it.
	Team comm.Group
	// OwnerRanks lists, in ascending order, the original top-level rank
	// indices of every process in this supernode's owning team -- known by
	// every rank regardless of membership, so a non-member can still route
	// front-construction traffic to the right destination.
	OwnerRanks []int
}

// Tree is the complete output of nested dissection: the separator tree and
// the co-indexed elimination tree (spec.md §3), plus the composite
// permutation mapping an original global vertex id to its permuted column
// index. The separator tree's distributed-vs-local split from spec.md §3 is
// not stored as two parallel structures; it's recovered on demand via
// Supernode.IsDistributed/Team and the Members helper below, since both
// views walk the same []Supernode.
type Tree struct {
	Supernodes []Supernode
	RootID     int // post-order id of the global root supernode

	// Perm maps an original global vertex id to its permuted column index.
	// It is populated globally (every rank knows the permuted index of
	// every original id it will ever need to look up locally) because the
	// recursive construction already visits every vertex exactly once per
	// rank that owns it.
	Perm map[int64]int64
	// InvPerm is Perm's inverse: InvPerm[j] is the original vertex id
	// permuted to column j.
	InvPerm []int64
}

// N returns the number of columns in the permuted ordering, i.e. the
// global vertex count.
func (t *Tree) N() int64 {
	return int64(len(t.InvPerm))
}

// Members returns the original (unpermuted) global vertex ids owned by
// supernode id, in permuted-column order.
func (t *Tree) Members(id int) []int64 {
	sn := t.Supernodes[id]
	out := make([]int64, sn.Size)
	for k := range out {
		out[k] = t.InvPerm[sn.Offset+int64(k)]
	}
	return out
}
