// Command helmholtz2d factors and solves a 5-point discretization of the
// 2D Helmholtz operator -Delta u - k^2 u on a regular nx by ny grid with
// Dirichlet boundary conditions, using the closed-form grid bisection
// dissect.AnalyticGrid2D provides instead of running the BFS oracle over
// an explicit adjacency list -- the regular-stencil fast path the design
// notes set aside analytic dissection for.
package main

import (
	"flag"
	"fmt"
	"math"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/dissect"
	"github.com/jpoulson-lab/cliquesolve/front"
	"github.com/jpoulson-lab/cliquesolve/multifrontal"
	"github.com/jpoulson-lab/cliquesolve/rhs"
	"github.com/jpoulson-lab/cliquesolve/sctx"
	"github.com/jpoulson-lab/cliquesolve/solve"
	"github.com/jpoulson-lab/cliquesolve/spmatrix"
	"github.com/jpoulson-lab/cliquesolve/symbolic"
)

func main() {
	nx := flag.Int("nx", 24, "grid points in x")
	ny := flag.Int("ny", 24, "grid points in y")
	k := flag.Float64("k", 6.0, "wavenumber")
	cutoff := flag.Int("cutoff", 32, "leaf supernode cutoff")
	flag.Parse()

	ctx, err := sctx.Init(nil)
	if err != nil {
		panic(err)
	}
	defer ctx.Close()

	group := comm.NewLocalGroup(1)[0]
	n := int64(*nx * *ny)

	ctx.StartTimer("dissect")
	tree, err := dissect.AnalyticGrid2D(group, *nx, *ny, *cutoff)
	ctx.StopTimer("dissect")
	if err != nil {
		panic(err)
	}

	ctx.StartTimer("symbolic")
	info := symbolic.Analyze(tree)
	ctx.StopTimer("symbolic")

	h := 1.0 / float64(*nx-1)
	a := spmatrix.NewDist[float64](group, n)
	a.StartAssembly()
	low, high := a.LocalRange()
	for row := low; row < high; row++ {
		x, y := int(row)%*nx, int(row)/ *nx
		diag := 4.0 - *k**k*h*h
		if err := a.Update(row, row, diag); err != nil {
			panic(err)
		}
		if x > 0 {
			if err := a.Update(row, row-1, -1); err != nil {
				panic(err)
			}
		}
		if y > 0 {
			if err := a.Update(row, row-int64(*nx), -1); err != nil {
				panic(err)
			}
		}
	}
	if err := a.StopAssembly(); err != nil {
		panic(err)
	}

	ctx.StartTimer("front")
	fronts, err := front.Build[float64](group, a, tree, info, false)
	ctx.StopTimer("front")
	if err != nil {
		panic(err)
	}

	ctx.StartTimer("factor")
	if err := multifrontal.Factor(group, tree, info, fronts, multifrontal.ModeNormal, false); err != nil {
		panic(err)
	}
	ctx.StopTimer("factor")

	// A point source at the grid's center, the usual Helmholtz test load.
	b := spmatrix.NewVector[float64](group, n)
	center := int64((*ny/2)**nx + *nx/2)
	if low <= center && center < high {
		if err := b.Set(center, 1.0/(h*h)); err != nil {
			panic(err)
		}
	}

	sh := rhs.New[float64](group, tree, info)
	rhsMV := spmatrix.NewMultiVector[float64](group, n, 1)
	for i := low; i < high; i++ {
		v, err := b.At(i)
		if err != nil {
			panic(err)
		}
		row, err := rhsMV.Row(i)
		if err != nil {
			panic(err)
		}
		row[0] = v
	}

	ctx.StartTimer("pull")
	w, err := sh.Pull(rhsMV)
	ctx.StopTimer("pull")
	if err != nil {
		panic(err)
	}

	ctx.StartTimer("solve")
	if err := solve.Forward(group, tree, info, fronts, w, solve.ModeNormal, false); err != nil {
		panic(err)
	}
	if err := solve.Backward(group, tree, info, fronts, w, solve.ModeNormal, false); err != nil {
		panic(err)
	}
	ctx.StopTimer("solve")

	out := spmatrix.NewMultiVector[float64](group, n, 1)
	if err := sh.Push(w, out); err != nil {
		panic(err)
	}

	maxAbs := 0.0
	for i := low; i < high; i++ {
		row, err := out.Row(i)
		if err != nil {
			panic(err)
		}
		if v := math.Abs(row[0]); v > maxAbs {
			maxAbs = v
		}
	}

	fmt.Printf("helmholtz2d: %dx%d grid, k=%.2f, cutoff=%d\n", *nx, *ny, *k, *cutoff)
	fmt.Printf("  dissect %v  symbolic %v  front %v  factor %v  pull %v  solve %v\n",
		ctx.Elapsed("dissect"), ctx.Elapsed("symbolic"), ctx.Elapsed("front"),
		ctx.Elapsed("factor"), ctx.Elapsed("pull"), ctx.Elapsed("solve"))
	fmt.Printf("  max|u| = %.6e\n", maxAbs)
	if v, err := out.Row(center); err == nil && low <= center && center < high {
		fmt.Printf("  u[center] = %.6e\n", v[0])
	}
}
