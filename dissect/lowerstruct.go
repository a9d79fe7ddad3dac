package dissect

import "sort"

// FillOriginalLowerStructs computes every supernode's OriginalLowerStruct
// (spec.md §4.5's symbolic-analysis input): for each supernode, the sorted
// set of permuted-column indices j strictly below its own column range such
// that the original matrix has a nonzero at (i, j) for some i in the
// supernode's columns. neighbors reports the original (unpermuted) adjacency
// of a global vertex id.
func FillOriginalLowerStructs(t *Tree, neighbors func(int64) []int64) {
	for id := range t.Supernodes {
		sn := &t.Supernodes[id]
		below := sn.Offset + sn.Size
		set := make(map[int64]struct{})
		for k := int64(0); k < sn.Size; k++ {
			orig := t.InvPerm[sn.Offset+k]
			for _, nb := range neighbors(orig) {
				j, ok := t.Perm[nb]
				if !ok {
					continue
				}
				if j >= below {
					set[j] = struct{}{}
				}
			}
		}
		lower := make([]int64, 0, len(set))
		for j := range set {
			lower = append(lower, j)
		}
		sort.Slice(lower, func(a, b int) bool { return lower[a] < lower[b] })
		sn.OriginalLowerStruct = lower
	}
}

// LocalPerm returns the permuted column index of an original global vertex
// id, per the global Perm map built by Run/AnalyticGrid2D/AnalyticGrid3D.
func (t *Tree) LocalPerm(orig int64) (int64, bool) {
	j, ok := t.Perm[orig]
	return j, ok
}

// Original returns the original global vertex id for a permuted column
// index.
func (t *Tree) Original(permuted int64) int64 {
	return t.InvPerm[permuted]
}

// ColumnRange returns the [low, high) permuted-column range owned by
// supernode id.
func (t *Tree) ColumnRange(id int) (low, high int64) {
	sn := t.Supernodes[id]
	return sn.Offset, sn.Offset + sn.Size
}

// SupernodeOf returns the id of the supernode owning permuted column col.
// Supernodes partition [0, N) contiguously in id order (post-order offsets
// are a running cumulative sum), so a binary search over Offset suffices.
func (t *Tree) SupernodeOf(col int64) int {
	lo, hi := 0, len(t.Supernodes)
	for lo < hi {
		mid := (lo + hi) / 2
		if t.Supernodes[mid].Offset+t.Supernodes[mid].Size <= col {
			lo = mid + 1
		} else {
			hi = mid
		}
	}
	return lo
}

// PostOrder returns the post-order traversal of supernode ids rooted at
// root: every descendant before its ancestor, matching spec.md §4.4's
// numbering and the order the multifrontal factorization visits nodes in.
func (t *Tree) PostOrder() []int {
	order := make([]int, 0, len(t.Supernodes))
	var visit func(id int)
	visit = func(id int) {
		if id < 0 {
			return
		}
		sn := t.Supernodes[id]
		visit(sn.Children[0])
		visit(sn.Children[1])
		order = append(order, id)
	}
	visit(t.RootID)
	return order
}
