// Package cliquesolve is the root of a distributed-memory sparse direct
// solver: nested dissection (dissect) plus a distributed multifrontal
// method (multifrontal, kernel) performing symmetric or Hermitian LDL^T /
// LDL^H factorization, driven end to end by SymmetricSolve/HermitianSolve.
//
// Init/Close bracket a solve the way edp1096-sparse's Create/Destroy
// bracket a circuit matrix's lifetime; here what's being constructed is the
// sctx.Context every collective phase is timed and logged through, not a
// matrix itself (every matrix is caller-owned spmatrix.Dist).
package cliquesolve

import (
	"github.com/jpoulson-lab/cliquesolve/multifrontal"
	"github.com/jpoulson-lab/cliquesolve/partition"
	"github.com/jpoulson-lab/cliquesolve/sctx"
	"github.com/jpoulson-lab/cliquesolve/solve"
)

// Mode selects which of spec.md §4.7's three factorization variants a
// solve runs: Normal (triangular solves throughout), BlockNoPivot (ATL
// explicitly inverted, no intra-front pivot search), or BlockPivoted (ATL
// inverted, with a largest-magnitude-diagonal pivot search per front).
type Mode int

const (
	ModeNormal Mode = iota
	ModeBlockNoPivot
	ModeBlockPivoted
)

func (m Mode) factorMode() multifrontal.Mode {
	switch m {
	case ModeBlockNoPivot:
		return multifrontal.ModeBlockNoPivot
	case ModeBlockPivoted:
		return multifrontal.ModeBlockPivoted
	default:
		return multifrontal.ModeNormal
	}
}

func (m Mode) solveMode() solve.Mode {
	switch m {
	case ModeBlockNoPivot:
		return solve.ModeBlockNoPivot
	case ModeBlockPivoted:
		return solve.ModeBlockPivoted
	default:
		return solve.ModeNormal
	}
}

// Options controls one solve call, following spec.md §6's configuration
// table: the subgraph size at or below which nested dissection stops
// bisecting and emits a leaf supernode (Cutoff), the candidate-separator
// count and load-imbalance tolerance handed to the oracle as
// partition.Params (NumSeps, Imbalance; partition.BFSOracle ignores both),
// which bisection oracle drives each cut (Oracle, nil for
// partition.Default), and which factorization/solve variant to run (Mode).
type Options struct {
	Cutoff    int
	NumSeps   int
	Imbalance float64
	Oracle    partition.Oracle
	Mode      Mode
	Conjugate bool
}

// Option mutates an Options in place, following
// katalvlaran-lvlath/core's `GraphOption func(*Graph)` pattern generalized
// to this package's Options.
type Option func(*Options)

// DefaultOptions mirrors dissect.DefaultOptions's choices, plus Mode
// defaulting to Normal and Conjugate defaulting to false (plain transpose,
// the right choice for HermitianSolve's real callers and every
// SymmetricSolve call).
func DefaultOptions() Options {
	return Options{Cutoff: 64, NumSeps: 1, Imbalance: 0.2, Mode: ModeNormal}
}

// WithCutoff overrides the subgraph size at or below which nested
// dissection switches from recursive bisection to a direct leaf supernode.
func WithCutoff(n int) Option { return func(o *Options) { o.Cutoff = n } }

// WithNumSeps overrides the candidate-separator count passed to the
// bisection oracle as partition.Params.NumSeps; partition.BFSOracle ignores
// it and computes a single separator.
func WithNumSeps(n int) Option { return func(o *Options) { o.NumSeps = n } }

// WithImbalance overrides the load-imbalance tolerance passed to the
// bisection oracle as partition.Params.Imbalance; partition.BFSOracle
// ignores it.
func WithImbalance(f float64) Option { return func(o *Options) { o.Imbalance = f } }

// WithOracle overrides the bisection oracle (see partition.Oracle), nil
// meaning "use partition.Default".
func WithOracle(o partition.Oracle) Option { return func(opt *Options) { opt.Oracle = o } }

// WithBlockLDL selects the Block LDL variant (ATL explicitly inverted),
// optionally with intra-front pivoting.
func WithBlockLDL(pivoted bool) Option {
	return func(o *Options) {
		if pivoted {
			o.Mode = ModeBlockPivoted
		} else {
			o.Mode = ModeBlockNoPivot
		}
	}
}

// WithConjugate selects L^H over L^T throughout the factorization and
// solve; HermitianSolve sets this automatically, so direct callers of
// SymmetricSolve only need it for a complex-symmetric (not Hermitian)
// matrix, an edge case spec.md's Non-goals don't otherwise name.
func WithConjugate(c bool) Option { return func(o *Options) { o.Conjugate = c } }

// Init constructs the process-wide sctx.Context a solve sequence is run
// under. Close releases it; both are idempotent per spec.md §6.
func Init(argv []string) (*sctx.Context, error) {
	return sctx.Init(argv)
}

// Close releases ctx. Calling it more than once, or with a nil ctx, is a
// no-op.
func Close(ctx *sctx.Context) {
	if ctx == nil {
		return
	}
	ctx.Close()
}
