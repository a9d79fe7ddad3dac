// Command bisectdemo prints what a single bisection and a full nested
// dissection produce on a small regular grid: the separator one call to
// bisect.Sequential returns, and the elimination tree dissect.AnalyticGrid2D
// builds from its own closed-form middle-line separators (it does not call
// bisect).
package main

import (
	"flag"
	"fmt"

	"github.com/jpoulson-lab/cliquesolve/bisect"
	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/dissect"
	"github.com/jpoulson-lab/cliquesolve/partition"
)

func gridNeighbors(nx, ny int) func(int64) []int64 {
	return func(v int64) []int64 {
		x, y := int(v)%nx, int(v)/nx
		var out []int64
		if x > 0 {
			out = append(out, v-1)
		}
		if x < nx-1 {
			out = append(out, v+1)
		}
		if y > 0 {
			out = append(out, v-int64(nx))
		}
		if y < ny-1 {
			out = append(out, v+int64(nx))
		}
		return out
	}
}

func main() {
	nx := flag.Int("nx", 9, "grid points in x")
	ny := flag.Int("ny", 9, "grid points in y")
	cutoff := flag.Int("cutoff", 8, "leaf supernode cutoff")
	flag.Parse()

	members := make([]int64, *nx**ny)
	for i := range members {
		members[i] = int64(i)
	}
	neighbors := gridNeighbors(*nx, *ny)

	fmt.Printf("bisectdemo: single bisection of a %dx%d grid (%d vertices)\n", *nx, *ny, len(members))
	r := bisect.Sequential(members, neighbors, partition.Default, partition.Params{NumSeps: 1, Imbalance: 0.2})
	fmt.Printf("  separator size %d, left %d, right %d\n", r.SeparatorSize, r.LeftSize, r.RightSize)
	fmt.Printf("  separator vertices: %v\n", r.Separator)

	group := comm.NewLocalGroup(1)[0]
	tree, err := dissect.AnalyticGrid2D(group, *nx, *ny, *cutoff)
	if err != nil {
		panic(err)
	}

	fmt.Printf("\nbisectdemo: full nested dissection, cutoff=%d, %d supernodes\n", *cutoff, len(tree.Supernodes))
	printSubtree(tree, tree.RootID, 0)
}

func printSubtree(tree *dissect.Tree, id, depth int) {
	sn := tree.Supernodes[id]
	kind := "separator"
	if sn.Children[0] == -1 {
		kind = "leaf"
	}
	fmt.Printf("%*s#%d [%s] size=%d offset=%d\n", depth*2, "", id, kind, sn.Size, sn.Offset)
	for _, c := range sn.Children {
		if c != -1 {
			printSubtree(tree, c, depth+1)
		}
	}
}
