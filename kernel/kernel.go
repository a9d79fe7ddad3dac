// Package kernel implements the frontal dense kernels of spec.md §4.7/§4.8
// (C9): the three in-place factorization modes a multifrontal step can run
// on a supernode's front (Normal LDL, Block LDL without intra-front
// pivoting, Block LDL with Bunch-Kaufman-style intra-pivoting), and the
// forward/backward triangular-solve kernels the distributed solve phase
// drives afterwards.
//
// Every kernel here is the one place in this module permitted to touch a
// front's raw entries directly (spec.md §4.8's "these kernels are the only
// components permitted to call the underlying dense library"); front itself
// never runs arithmetic beyond storage and accumulation.
//
// FactorNormal/FactorBlockNoPivot and every solve/multiply kernel in this
// package run against a distributed ([MC,MR]-grid) front too: distldl.go and
// distgrid.go hand-roll the column-broadcast sweep and per-rank Schur update
// a 2-D cyclic LDL needs, in place of the Elemental-equivalent parallel
// dense-BLAS library no package in the retrieved corpus provides. Only
// FactorPivoted's intra-front pivot search and swap stay local-only --
// ErrDistributedUnsupported marks that one remaining boundary explicitly
// (see its doc comment and DESIGN.md) rather than silently only handling
// part of it.
package kernel

import "errors"

// ErrDistributedUnsupported is returned by FactorPivoted when called
// against a front spanning more than one rank; every other kernel in this
// package, including the pivoted solve kernels, supports distributed fronts.
var ErrDistributedUnsupported = errors.New("kernel: distributed fronts are not supported by this dense kernel implementation")
