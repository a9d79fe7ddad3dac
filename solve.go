package cliquesolve

import (
	"fmt"

	"github.com/jpoulson-lab/cliquesolve/dissect"
	"github.com/jpoulson-lab/cliquesolve/front"
	"github.com/jpoulson-lab/cliquesolve/multifrontal"
	"github.com/jpoulson-lab/cliquesolve/partition"
	"github.com/jpoulson-lab/cliquesolve/rhs"
	"github.com/jpoulson-lab/cliquesolve/scalar"
	"github.com/jpoulson-lab/cliquesolve/sctx"
	"github.com/jpoulson-lab/cliquesolve/solve"
	"github.com/jpoulson-lab/cliquesolve/spmatrix"
	"github.com/jpoulson-lab/cliquesolve/symbolic"
)

// SymmetricSolve factors A (via L D L^T) and solves A x = b for the single
// right-hand side b, per spec.md §6. opts may be nil, in which case
// DefaultOptions() is used.
func SymmetricSolve[T scalar.Numeric](ctx *sctx.Context, a *spmatrix.Dist[T], b *spmatrix.Vector[T], opts *Options) (*spmatrix.Vector[T], error) {
	return solveOne(ctx, a, b, opts, false)
}

// HermitianSolve is SymmetricSolve's L D L^H counterpart: it forces
// Options.Conjugate to true regardless of what opts itself sets, since a
// Hermitian factorization that didn't conjugate wouldn't be Hermitian.
func HermitianSolve[T scalar.Numeric](ctx *sctx.Context, a *spmatrix.Dist[T], b *spmatrix.Vector[T], opts *Options) (*spmatrix.Vector[T], error) {
	return solveOne(ctx, a, b, opts, true)
}

// SymmetricSolveMulti and HermitianSolveMulti are the multi-right-hand-side
// overloads spec.md §6 names as a second, non-generic-over-arity function
// rather than a variadic or interface-typed single signature.
func SymmetricSolveMulti[T scalar.Numeric](ctx *sctx.Context, a *spmatrix.Dist[T], b *spmatrix.MultiVector[T], opts *Options) (*spmatrix.MultiVector[T], error) {
	return solveCore(ctx, a, b, opts, false)
}

func HermitianSolveMulti[T scalar.Numeric](ctx *sctx.Context, a *spmatrix.Dist[T], b *spmatrix.MultiVector[T], opts *Options) (*spmatrix.MultiVector[T], error) {
	return solveCore(ctx, a, b, opts, true)
}

func solveOne[T scalar.Numeric](ctx *sctx.Context, a *spmatrix.Dist[T], b *spmatrix.Vector[T], opts *Options, hermitian bool) (*spmatrix.Vector[T], error) {
	group := b.Group()
	n := b.N()

	mv := spmatrix.NewMultiVector[T](group, n, 1)
	low, high := mv.LocalRange()
	for i := low; i < high; i++ {
		v, err := b.At(i)
		if err != nil {
			return nil, fmt.Errorf("cliquesolve: reading rhs row %d: %w", i, err)
		}
		row, err := mv.Row(i)
		if err != nil {
			return nil, err
		}
		row[0] = v
	}

	outMV, err := solveCore(ctx, a, mv, opts, hermitian)
	if err != nil {
		return nil, err
	}

	out := spmatrix.NewVector[T](group, n)
	for i := low; i < high; i++ {
		row, err := outMV.Row(i)
		if err != nil {
			return nil, err
		}
		if err := out.Set(i, row[0]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// solveCore runs the full pipeline of spec.md §4.4 through §4.9 for one
// right-hand side of any width: build the adjacency graph, dissect it,
// symbolic-analyze the resulting tree, build and factor the frontal tree,
// then pull/forward/backward/push the right-hand side through it.
func solveCore[T scalar.Numeric](ctx *sctx.Context, a *spmatrix.Dist[T], b *spmatrix.MultiVector[T], opts *Options, hermitian bool) (*spmatrix.MultiVector[T], error) {
	if opts == nil {
		d := DefaultOptions()
		opts = &d
	}
	conjugate := opts.Conjugate || hermitian
	group := a.Group()

	ctx.StartTimer("graph")
	g, err := graphFromMatrix(group, a)
	ctx.StopTimer("graph")
	if err != nil {
		return nil, fmt.Errorf("cliquesolve: building adjacency graph: %w", err)
	}

	ctx.StartTimer("dissect")
	tree, err := dissect.Run(g, dissect.Options{
		Cutoff: opts.Cutoff,
		Oracle: opts.Oracle,
		Params: partition.Params{NumSeps: opts.NumSeps, Imbalance: opts.Imbalance},
	})
	ctx.StopTimer("dissect")
	if err != nil {
		return nil, fmt.Errorf("cliquesolve: nested dissection: %w", err)
	}

	ctx.StartTimer("symbolic")
	info := symbolic.Analyze(tree)
	ctx.StopTimer("symbolic")

	ctx.StartTimer("front")
	fronts, err := front.Build[T](group, a, tree, info, conjugate)
	ctx.StopTimer("front")
	if err != nil {
		return nil, fmt.Errorf("cliquesolve: building frontal tree: %w", err)
	}

	ctx.StartTimer("factor")
	err = multifrontal.Factor(group, tree, info, fronts, opts.Mode.factorMode(), conjugate)
	ctx.StopTimer("factor")
	if err != nil {
		return nil, fmt.Errorf("cliquesolve: factoring: %w", err)
	}

	sh := rhs.New[T](group, tree, info)

	ctx.StartTimer("pull")
	w, err := sh.Pull(b)
	ctx.StopTimer("pull")
	if err != nil {
		return nil, fmt.Errorf("cliquesolve: pulling right-hand side: %w", err)
	}

	ctx.StartTimer("forward")
	err = solve.Forward(group, tree, info, fronts, w, opts.Mode.solveMode(), conjugate)
	ctx.StopTimer("forward")
	if err != nil {
		return nil, fmt.Errorf("cliquesolve: forward solve: %w", err)
	}

	ctx.StartTimer("backward")
	err = solve.Backward(group, tree, info, fronts, w, opts.Mode.solveMode(), conjugate)
	ctx.StopTimer("backward")
	if err != nil {
		return nil, fmt.Errorf("cliquesolve: backward solve: %w", err)
	}

	out := spmatrix.NewMultiVector[T](group, a.N(), b.NumRHS())
	ctx.StartTimer("push")
	err = sh.Push(w, out)
	ctx.StopTimer("push")
	if err != nil {
		return nil, fmt.Errorf("cliquesolve: pushing solution: %w", err)
	}

	ctx.Logf("cliquesolve: solved n=%d nrhs=%d mode=%d hermitian=%v", a.N(), b.NumRHS(), opts.Mode, hermitian)
	return out, nil
}
