// Package multifrontal drives the distributed multifrontal factorization
// (spec.md §4.7, C8): a post-order walk of the elimination tree that
// extend-adds each supernode's children's Schur complements into its own
// front and then factors that front in place, leaving the bottom-right
// quadrant as the Schur complement for the parent's own extend-add.
//
// The post-order walk is driven level by level rather than node by node: all
// supernodes at a given tree depth are factored, then extend-add their Schur
// complements into their parents in a single AllToAllv across the whole
// top-level group before the next level up is factored, matching
// spec.md §5's "each level of the elimination tree issues at most one
// all-to-all-v per rank" budget. This mirrors front.Build's own choice to
// redistribute over the full group rather than form one ephemeral
// sub-communicator per tree node -- every rank already holds the
// globally-replicated tree and symbolic info needed to compute the same
// routing function locally, so no per-node communicator is ever built.
package multifrontal

import (
	"fmt"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/dissect"
	"github.com/jpoulson-lab/cliquesolve/front"
	"github.com/jpoulson-lab/cliquesolve/kernel"
	"github.com/jpoulson-lab/cliquesolve/scalar"
	"github.com/jpoulson-lab/cliquesolve/symbolic"
)

// Mode selects which of kernel's three factorization variants (spec.md
// §4.7's "Three modes") runs at every supernode in a given Factor call.
type Mode int

const (
	ModeNormal Mode = iota
	ModeBlockNoPivot
	ModeBlockPivoted
)

// Factor runs the distributed multifrontal factorization to completion over
// fronts already constructed by front.Build. Every front -- root and
// non-root alike -- is left in fronts on return, still holding its factored
// ATL/ABL (the L and D data the solve phase's forward/backward kernels
// consume); only the Schur-complement contribution each front makes to its
// parent is transient, exchanged and accumulated during extend-add and never
// materialised as a standalone allocation a caller needs to free. A caller
// that has no further use for a front once both solve passes have visited it
// is free to drop its reference; nothing here does so on its behalf.
func Factor[T scalar.Numeric](group comm.Group, tree *dissect.Tree, info []symbolic.NodeInfo, fronts []*front.Front[T], mode Mode, conjugate bool) error {
	levels := levelOrder(tree)
	for lvl := len(levels) - 1; lvl >= 0; lvl-- {
		ids := levels[lvl]
		for _, id := range ids {
			f := fronts[id]
			if f == nil {
				continue
			}
			if err := factorFront(f, mode, conjugate); err != nil {
				return fmt.Errorf("multifrontal: factoring supernode %d: %w", id, err)
			}
		}
		if err := extendAddLevel(group, tree, info, fronts, ids, conjugate); err != nil {
			return fmt.Errorf("multifrontal: extend-add at level %d: %w", lvl, err)
		}
	}
	return nil
}

// levelOrder groups supernode ids by depth from the root (root at depth 0),
// deepest level last -- the traversal order spec.md §4.7 names ("a
// supernode's factorization starts only after both children's Schur
// complements have been extend-added") reduces to processing depths from
// the deepest up to the root.
func levelOrder(tree *dissect.Tree) [][]int {
	depth := make([]int, len(tree.Supernodes))
	maxDepth := 0
	var walk func(id, d int)
	walk = func(id, d int) {
		if id < 0 {
			return
		}
		depth[id] = d
		if d > maxDepth {
			maxDepth = d
		}
		sn := &tree.Supernodes[id]
		walk(sn.Children[0], d+1)
		walk(sn.Children[1], d+1)
	}
	walk(tree.RootID, 0)

	levels := make([][]int, maxDepth+1)
	for id := range tree.Supernodes {
		levels[depth[id]] = append(levels[depth[id]], id)
	}
	return levels
}

func factorFront[T scalar.Numeric](f *front.Front[T], mode Mode, conjugate bool) error {
	switch mode {
	case ModeNormal:
		return kernel.FactorNormal(f, conjugate)
	case ModeBlockNoPivot:
		return kernel.FactorBlockNoPivot(f, conjugate)
	case ModeBlockPivoted:
		return kernel.FactorPivoted(f, conjugate)
	default:
		return fmt.Errorf("multifrontal: unknown factorization mode %d", mode)
	}
}
