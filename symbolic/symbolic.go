// Package symbolic implements symbolic analysis (spec.md §4.5, C6): given
// the elimination tree with every node's original_lower_struct already
// filled in by dissect.FillOriginalLowerStructs, it walks the tree
// bottom-up, merges each node's children's union lower structures with its
// own, and derives the relative-index maps (origLowerRelIndices,
// leftChildRelIndices, rightChildRelIndices) that drive extend-add and
// update scatters in the numeric phases.
//
// Per dissect's own grounding note, the tree this package consumes is
// already globally replicated -- every rank holds every supernode's size,
// offset, and original_lower_struct regardless of team membership -- so
// this package's merge-and-derive-indices pass runs as pure local
// computation, with no further communication, on every rank. Spec.md
// §4.5's "partner teams derive identical lower_struct sizes" debug
// invariant holds trivially for the same reason dissect's own symbolic
// determinism does: every rank computes this from bit-identical input.
package symbolic

import (
	"sort"

	"github.com/jpoulson-lab/cliquesolve/dissect"
)

// NodeInfo is the symbolic-analysis output for one supernode: its union
// lower structure (spec.md §3's union_lower_struct) and the relative-index
// maps that place its own, its left child's, and its right child's
// lower-structure entries into the front's combined column space.
type NodeInfo struct {
	UnionLowerStruct []int64

	// OrigLowerRelIndices[k] is the position, within this node's front's
	// combined column space (its own columns followed by UnionLowerStruct),
	// of the k-th entry of the node's OriginalLowerStruct.
	OrigLowerRelIndices []int
	// LeftChildRelIndices and RightChildRelIndices are the same, for the
	// left/right child's UnionLowerStruct entries; nil for leaves.
	LeftChildRelIndices  []int
	RightChildRelIndices []int
}

// Analyze runs symbolic analysis over the whole tree, returning one
// NodeInfo per supernode id.
func Analyze(tree *dissect.Tree) []NodeInfo {
	info := make([]NodeInfo, len(tree.Supernodes))
	for _, id := range tree.PostOrder() {
		info[id] = analyzeNode(tree, id, info)
	}
	return info
}

func analyzeNode(tree *dissect.Tree, id int, info []NodeInfo) NodeInfo {
	sn := tree.Supernodes[id]

	var childrenStruct []int64
	var left, right []int64
	if sn.Children[0] >= 0 {
		left = info[sn.Children[0]].UnionLowerStruct
		right = info[sn.Children[1]].UnionLowerStruct
		childrenStruct = mergeSortedUnique(left, right)
	}
	partial := mergeSortedUnique(childrenStruct, sn.OriginalLowerStruct)

	columns := make([]int64, sn.Size)
	for k := range columns {
		columns[k] = sn.Offset + int64(k)
	}
	full := mergeSortedUnique(columns, partial)

	n := NodeInfo{}
	if int64(len(full)) < sn.Size {
		// Defensive: shouldn't happen given the contiguous-offset
		// invariant post-order numbering guarantees, but never panic on a
		// malformed tree -- just report an empty lower structure.
		n.UnionLowerStruct = nil
	} else {
		n.UnionLowerStruct = append([]int64(nil), full[sn.Size:]...)
	}

	n.OrigLowerRelIndices = positionsOf(sn.OriginalLowerStruct, full)
	if sn.Children[0] >= 0 {
		n.LeftChildRelIndices = positionsOf(left, full)
		n.RightChildRelIndices = positionsOf(right, full)
	}
	return n
}

// mergeSortedUnique merges two ascending, duplicate-free int64 slices into
// one ascending, duplicate-free slice.
func mergeSortedUnique(a, b []int64) []int64 {
	out := make([]int64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] < b[j]:
			out = append(out, a[i])
			i++
		case a[i] > b[j]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	out = append(out, a[i:]...)
	out = append(out, b[j:]...)
	return out
}

// positionsOf finds, for each entry of vals (assumed sorted and a subset of
// full), its index within full, via a binary-search (lower_bound) per
// spec.md §4.5's "single linear scan of full_struct using monotone
// lower_bound".
func positionsOf(vals, full []int64) []int {
	if len(vals) == 0 {
		return nil
	}
	out := make([]int, len(vals))
	for k, v := range vals {
		out[k] = sort.Search(len(full), func(i int) bool { return full[i] >= v })
	}
	return out
}
