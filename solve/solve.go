// Package solve implements the distributed triangular solve sweeps of
// spec.md §4.9 (C11): a post-order forward pass that accumulates every
// supernode's children's contributions before applying the front's own
// forward kernel, and a reverse-post-order backward pass that distributes
// each supernode's resolved values down to its children before applying the
// backward kernel.
//
// Like multifrontal.Factor, both passes are driven level by level rather
// than node by node, batching every level's parent-child exchange into one
// AllToAllv across the whole top-level group -- the same level-at-a-time
// collective budget spec.md §5 assigns to the factorization phase applies
// equally to solve's two tree walks. Mode mirrors multifrontal.Mode but is
// declared independently so this package carries no dependency on
// multifrontal, matching spec.md's C8/C11 split into separate components.
//
// Every front this rank belongs to is driven here, whether its team has one
// rank or several: kernel.FrontLowerForwardSolve and friends replicate a
// distributed front's factored form across its team internally (see
// kernel/distgrid.go), so the w buffer this package hands them just needs
// to be the same Width x nrhs slice on every team member -- exchangeUpdates
// keeps it that way by fanning a distributed supernode's parent/child
// traffic out across its whole OwnerRanks set rather than a single owner.
package solve

import (
	"fmt"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/dissect"
	"github.com/jpoulson-lab/cliquesolve/front"
	"github.com/jpoulson-lab/cliquesolve/kernel"
	"github.com/jpoulson-lab/cliquesolve/scalar"
	"github.com/jpoulson-lab/cliquesolve/symbolic"
)

// Mode selects which of the three factorization variants' matching solve
// kernels to run, mirroring the mode Factor was run with.
type Mode int

const (
	ModeNormal Mode = iota
	ModeBlockNoPivot
	ModeBlockPivoted
)

// Forward runs spec.md §4.9's forward solve: deepest level first, pull in
// every already-processed child's bottom "update" slice into its parent's
// W, then apply the front's forward kernel. w must already hold, for every
// locally-owned supernode, a Width x nrhs buffer with the top Size rows set
// to that supernode's own right-hand-side entries (as rhs.Shuffle.Pull
// produces) and the rest zeroed.
func Forward[T scalar.Numeric](group comm.Group, tree *dissect.Tree, info []symbolic.NodeInfo, fronts []*front.Front[T], w map[int]*kernel.Dense[T], mode Mode, conjugate bool) error {
	levels := levelOrder(tree)
	for lvl := len(levels) - 1; lvl >= 0; lvl-- {
		ids := levels[lvl]
		for _, id := range ids {
			wid, f := w[id], fronts[id]
			if wid == nil || f == nil {
				continue
			}
			if err := applyForwardKernel(f, wid, mode, conjugate); err != nil {
				return fmt.Errorf("solve: forward kernel at supernode %d: %w", id, err)
			}
		}
		if err := exchangeUpdates(group, tree, info, w, ids, true); err != nil {
			return fmt.Errorf("solve: forward exchange at level %d: %w", lvl, err)
		}
	}
	return nil
}

// Backward runs spec.md §4.9's backward solve: root first, push each
// already-resolved supernode's values down into its children's bottom rows,
// then apply the backward kernel. On return, the top Size rows of every
// locally-owned w[id] hold that supernode's final answer, ready for
// rhs.Shuffle.Push.
func Backward[T scalar.Numeric](group comm.Group, tree *dissect.Tree, info []symbolic.NodeInfo, fronts []*front.Front[T], w map[int]*kernel.Dense[T], mode Mode, conjugate bool) error {
	levels := levelOrder(tree)
	for lvl := 0; lvl < len(levels); lvl++ {
		ids := levels[lvl]
		for _, id := range ids {
			wid, f := w[id], fronts[id]
			if wid == nil || f == nil {
				continue
			}
			if err := applyBackwardKernel(f, wid, mode, conjugate); err != nil {
				return fmt.Errorf("solve: backward kernel at supernode %d: %w", id, err)
			}
		}
		if err := exchangeUpdates(group, tree, info, w, ids, false); err != nil {
			return fmt.Errorf("solve: backward exchange at level %d: %w", lvl, err)
		}
	}
	return nil
}

func applyForwardKernel[T scalar.Numeric](f *front.Front[T], w *kernel.Dense[T], mode Mode, conjugate bool) error {
	switch mode {
	case ModeNormal:
		if err := kernel.FrontLowerForwardSolve(f, w, conjugate, true); err != nil {
			return err
		}
		divideByDiagonal(f, w)
		return nil
	case ModeBlockNoPivot:
		return kernel.ForwardSolveBlock(f, w)
	case ModeBlockPivoted:
		return kernel.ForwardSolvePivoted(f, w, conjugate)
	default:
		return fmt.Errorf("solve: unknown mode %d", mode)
	}
}

func applyBackwardKernel[T scalar.Numeric](f *front.Front[T], w *kernel.Dense[T], mode Mode, conjugate bool) error {
	switch mode {
	case ModeNormal:
		return kernel.FrontLowerBackwardSolve(f, w, conjugate, true)
	case ModeBlockNoPivot:
		return kernel.BackwardSolveBlock(f, w, conjugate)
	case ModeBlockPivoted:
		return kernel.BackwardSolvePivoted(f, w, conjugate)
	default:
		return fmt.Errorf("solve: unknown mode %d", mode)
	}
}

// divideByDiagonal applies spec.md §4.8's Normal-mode D^{-1} scale between
// the forward L-solve and the backward L^{*|T}-solve -- the step
// kernel.FrontLowerForwardSolve's unitDiag=true deliberately leaves undone,
// since its stored diagonal is D's pivot, not L's implicit unit diagonal.
func divideByDiagonal[T scalar.Numeric](f *front.Front[T], w *kernel.Dense[T]) {
	for k := int64(0); k < f.Size; k++ {
		dk := f.Get(k, k)
		for c := int64(0); c < w.Cols; c++ {
			w.Set(k, c, w.At(k, c)/dk)
		}
	}
}

// levelOrder groups supernode ids by depth from the root, deepest last --
// the same grouping multifrontal.Factor uses, duplicated here rather than
// exported from multifrontal to keep the two packages independent.
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

