// Package graph implements the distributed adjacency graph of spec.md
// §4.1 (C1): a 1-D row-partitioned undirected simple graph on [0, N), built
// through an assemble/stop-assembly lifecycle mirroring
// edp1096-sparse/sparse.go's Matrix (Create → Clear/insert → Factor), but
// generalized from a single-process linked-list sparse matrix to a
// distributed sorted-array graph with an explicit per-row offset table.
package graph

import (
	"errors"
	"fmt"
	"sort"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/layout"
)

// Sentinel errors, following katalvlaran-lvlath/matrix's errors.go
// convention of a package-level sentinel set matched via errors.Is rather
// than ad-hoc fmt.Errorf strings for precondition violations.
var (
	// ErrAssembling is returned by any read operation attempted while the
	// graph is still accumulating edges (spec.md §4.1: "operations that
	// read the offset table or per-source neighbour lists fail unless the
	// graph is not assembling").
	ErrAssembling = errors.New("graph: operation invalid while assembling")
	// ErrNotAssembling is returned by Insert after StopAssembly.
	ErrNotAssembling = errors.New("graph: insert requires an active assembly")
	// ErrBadIndex is returned for a negative or out-of-range vertex index.
	ErrBadIndex = errors.New("graph: index out of range")
)

// Dist is a 1-D row-partitioned undirected simple graph on [0, N). Each
// rank owns the contiguous row range given by layout.Range(N, group.Size(),
// group.Rank()); edges with a locally-owned source are held locally during
// assembly.
type Dist struct {
	group Group
	n     int64

	assembling bool
	srcBuf     []int64
	dstBuf     []int64

	// Post stop-assembly state: sorted, deduped (source, target) pairs for
	// this rank's owned sources, plus the CSR-style offset table.
	sources []int64 // length == len(targets); source[k] for edge k
	targets []int64
	offsets []int64 // length localHeight+1
}

// Group is an alias for the full comm.Group interface, the collective
// handle every Dist carries.
type Group = comm.Group

// NewDist creates an empty distributed graph on [0, n) over group.
func NewDist(group Group, n int64) *Dist {
	return &Dist{group: group, n: n}
}

// N returns the global vertex count.
func (g *Dist) N() int64 { return g.n }

// Group returns the process group this graph is distributed over.
func (g *Dist) Group() Group { return g.group }

// LocalRange returns the [low, high) global row range this rank owns.
func (g *Dist) LocalRange() (low, high int64) {
	return layout.Range(g.n, g.group.Size(), g.group.Rank())
}

// StartAssembly begins (or resets) edge accumulation. Any previously
// assembled structure is discarded, matching SetComm/Resize's "clears all
// edges" contract in spec.md §4.1.
func (g *Dist) StartAssembly() {
	g.assembling = true
	g.srcBuf = g.srcBuf[:0]
	g.dstBuf = g.dstBuf[:0]
	g.sources = nil
	g.targets = nil
	g.offsets = nil
}

// Reserve hints the expected number of local edges, avoiding reallocation
// during Insert, mirroring edp1096-sparse's SpaceForElements knob.
func (g *Dist) Reserve(n int) {
	if cap(g.srcBuf) < n {
		buf := make([]int64, len(g.srcBuf), n)
		copy(buf, g.srcBuf)
		g.srcBuf = buf
		buf2 := make([]int64, len(g.dstBuf), n)
		copy(buf2, g.dstBuf)
		g.dstBuf = buf2
	}
}

// Insert records an undirected edge {i, j}. i must be a locally-owned
// vertex; duplicates and self-loops are tolerated during assembly and
// resolved by StopAssembly. Insert fails unless an assembly is in
// progress.
func (g *Dist) Insert(i, j int64) error {
	if !g.assembling {
		return ErrNotAssembling
	}
	if i < 0 || i >= g.n || j < 0 || j >= g.n {
		return fmt.Errorf("%w: (%d, %d) against N=%d", ErrBadIndex, i, j, g.n)
	}
	low, high := g.LocalRange()
	if i < low || i >= high {
		return fmt.Errorf("graph: source %d is not locally owned (range [%d, %d))", i, low, high)
	}
	g.srcBuf = append(g.srcBuf, i)
	g.dstBuf = append(g.dstBuf, j)
	return nil
}

// StopAssembly sorts accumulated edges by (source, target), drops exact
// duplicates and self-loops, and builds the per-local-row offset table.
// Per spec.md §4.1, encountering a decreasing source while building the
// offset table is an invariant breach and is fatal (a broken sort).
func (g *Dist) StopAssembly() error {
	if !g.assembling {
		return nil
	}
	low, high := g.LocalRange()
	localHeight := high - low

	type edge struct{ s, t int64 }
	edges := make([]edge, 0, len(g.srcBuf))
	for k := range g.srcBuf {
		s, t := g.srcBuf[k], g.dstBuf[k]
		if s == t {
			continue // self-loops are tolerated but stripped, per spec.md §3.
		}
		edges = append(edges, edge{s, t})
	}
	sort.Slice(edges, func(a, b int) bool {
		if edges[a].s != edges[b].s {
			return edges[a].s < edges[b].s
		}
		return edges[a].t < edges[b].t
	})

	sources := make([]int64, 0, len(edges))
	targets := make([]int64, 0, len(edges))
	for k, e := range edges {
		if k > 0 && e.s == edges[k-1].s && e.t == edges[k-1].t {
			continue // exact duplicate, dropped (not summed -- that's spmatrix's job).
		}
		sources = append(sources, e.s)
		targets = append(targets, e.t)
	}

	offsets := make([]int64, localHeight+1)
	row := int64(0)
	prevSource := int64(-1)
	for k, s := range sources {
		if s < prevSource {
			panic(fmt.Sprintf("graph: invariant breach, source %d < previous source %d during offset construction (sort failed)", s, prevSource))
		}
		prevSource = s
		for low+row < s {
			row++
			offsets[row] = int64(k)
		}
	}
	for row < localHeight {
		row++
		offsets[row] = int64(len(sources))
	}

	g.sources = sources
	g.targets = targets
	g.offsets = offsets
	g.assembling = false
	return nil
}

// NumLocalEdges returns the number of locally-held (source, target) pairs
// after StopAssembly.
func (g *Dist) NumLocalEdges() int {
	if g.assembling {
		return 0
	}
	return len(g.targets)
}

// Source returns the source vertex of local edge k.
func (g *Dist) Source(k int) (int64, error) {
	if g.assembling {
		return 0, ErrAssembling
	}
	return g.sources[k], nil
}

// Target returns the target vertex of local edge k.
func (g *Dist) Target(k int) (int64, error) {
	if g.assembling {
		return 0, ErrAssembling
	}
	return g.targets[k], nil
}

// NumConnections returns the out-degree of locally-owned vertex i.
func (g *Dist) NumConnections(i int64) (int64, error) {
	if g.assembling {
		return 0, ErrAssembling
	}
	low, _ := g.LocalRange()
	row := i - low
	if row < 0 || row+1 >= int64(len(g.offsets)) {
		return 0, fmt.Errorf("%w: %d", ErrBadIndex, i)
	}
	return g.offsets[row+1] - g.offsets[row], nil
}

// LocalEdgeOffset returns the index into Target/Source of the first
// outgoing edge of locally-owned vertex i (and of row i+1's first edge,
// one past i's last, forming the usual CSR half-open range).
func (g *Dist) LocalEdgeOffset(i int64) (int64, error) {
	if g.assembling {
		return 0, ErrAssembling
	}
	low, _ := g.LocalRange()
	row := i - low
	if row < 0 || row >= int64(len(g.offsets)) {
		return 0, fmt.Errorf("%w: %d", ErrBadIndex, i)
	}
	return g.offsets[row], nil
}

// Neighbors returns the sorted, deduplicated target list of locally-owned
// vertex i.
func (g *Dist) Neighbors(i int64) ([]int64, error) {
	if g.assembling {
		return nil, ErrAssembling
	}
	low, _ := g.LocalRange()
	row := i - low
	if row < 0 || row+1 >= int64(len(g.offsets)) {
		return nil, fmt.Errorf("%w: %d", ErrBadIndex, i)
	}
	return g.targets[g.offsets[row]:g.offsets[row+1]], nil
}

// IsAssembling reports whether StartAssembly has been called without a
// matching StopAssembly.
func (g *Dist) IsAssembling() bool { return g.assembling }
