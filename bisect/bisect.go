// Package bisect implements the graph bisector of spec.md §4.3 (C4):
// given a (possibly distributed) graph, produce a balanced vertex
// separator, the implied left/right vertex sets, and — on the distributed
// path — the subgraph each caller's side needs to keep recursing on.
//
// The actual cut is delegated to a pluggable partition.Oracle (§4.14 of
// SPEC_FULL.md); this package's job is everything spec.md §4.3 describes
// around that call: self-loop stripping, orientation ("small team on
// whichever side is smaller"), and — for the distributed path — gathering
// enough structure for every rank in the team to compute the same cut.
package bisect

import (
	"fmt"
	"sort"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/partition"
)

// Result is the outcome of one bisection: the two sides and the separator,
// as global vertex ids, with their sizes.
type Result struct {
	SeparatorSize int
	LeftSize      int
	RightSize     int
	Left          []int64 // global ids
	Right         []int64
	Separator     []int64
}

// Sequential runs the bisector on a fully in-memory subgraph, given as a
// set of global vertex ids and a neighbor lookup restricted to that set
// (edges leaving the set are the caller's problem, not the bisector's —
// self-loops and out-of-set neighbors are both stripped here per spec.md
// §4.3's "the bisector may not introduce self-loops; the caller strips
// them before passing", generalized slightly to also strip neighbors
// outside the induced subgraph, since those have nothing to do with a
// local-only cut).
func Sequential(members []int64, neighbors func(global int64) []int64, oracle partition.Oracle, params partition.Params) Result {
	if oracle == nil {
		oracle = partition.Default
	}
	idx := make(map[int64]int32, len(members))
	sorted := append([]int64(nil), members...)
	sort.Slice(sorted, func(a, b int) bool { return sorted[a] < sorted[b] })
	for i, g := range sorted {
		idx[g] = int32(i)
	}

	adj := partition.Adjacency{N: len(sorted), Neighbors: make([][]int32, len(sorted))}
	for i, g := range sorted {
		for _, nb := range neighbors(g) {
			if nb == g {
				continue // strip self-loops
			}
			if j, ok := idx[nb]; ok {
				adj.Neighbors[i] = append(adj.Neighbors[i], j)
			}
		}
	}

	res := oracle.Bisect(adj, params)
	return toResult(sorted, res)
}

func toResult(sorted []int64, r partition.Result) Result {
	out := Result{}
	for v, side := range r.Side {
		switch side {
		case 0:
			out.Left = append(out.Left, sorted[v])
		case 1:
			out.Right = append(out.Right, sorted[v])
		}
	}
	for _, v := range r.Separator {
		out.Separator = append(out.Separator, sorted[v])
	}
	out.SeparatorSize = len(out.Separator)
	out.LeftSize = len(out.Left)
	out.RightSize = len(out.Right)
	return out
}

// DistEdge is one edge of a distributed subgraph's locally-owned portion,
// expressed in global vertex ids.
type DistEdge struct{ Src, Dst int64 }

// Distributed runs the bisector across a team: every rank contributes the
// edges it owns, the whole team's structure is gathered onto every rank
// (an all-to-all broadcast, affordable because nested dissection's
// top-level subgraphs are the only ones run through this path and shrink
// geometrically with recursion depth), and every rank then runs the same
// deterministic oracle over the identical gathered structure, so no
// further communication is needed to agree on the cut.
func Distributed(group comm.Group, localMembers []int64, localEdges []DistEdge, oracle partition.Oracle, params partition.Params) (Result, error) {
	allMembers, adj, err := Gather(group, localMembers, localEdges)
	if err != nil {
		return Result{}, err
	}
	if oracle == nil {
		oracle = partition.Default
	}
	neighbors := func(g int64) []int64 { return adj[g] }
	return Sequential(allMembers, neighbors, oracle, params), nil
}

// Gather performs the all-to-all broadcast Distributed needs internally,
// exposed separately so a caller that will keep recursing against the same
// replicated structure (dissect's nested-dissection driver) only pays for
// the exchange once, at the level where the team is still large enough for
// it to matter, instead of re-gathering from scratch at every level.
func Gather(group comm.Group, localMembers []int64, localEdges []DistEdge) ([]int64, map[int64][]int64, error) {
	size := group.Size()

	memberPayload := comm.EncodeInts64(localMembers)
	sendMembers := make([][]byte, size)
	for q := range sendMembers {
		sendMembers[q] = memberPayload
	}
	recvMembers, err := group.AllToAllv(sendMembers)
	if err != nil {
		return nil, nil, fmt.Errorf("bisect: gathering members: %w", err)
	}

	edgePayload := encodeEdges(localEdges)
	sendEdges := make([][]byte, size)
	for q := range sendEdges {
		sendEdges[q] = edgePayload
	}
	recvEdges, err := group.AllToAllv(sendEdges)
	if err != nil {
		return nil, nil, fmt.Errorf("bisect: gathering edges: %w", err)
	}

	memberSet := make(map[int64]struct{})
	var allMembers []int64
	for _, buf := range recvMembers {
		for _, g := range comm.DecodeInts64(buf) {
			if _, ok := memberSet[g]; !ok {
				memberSet[g] = struct{}{}
				allMembers = append(allMembers, g)
			}
		}
	}

	adjSet := make(map[int64]map[int64]struct{})
	for _, buf := range recvEdges {
		for _, e := range decodeEdges(buf) {
			if e.Src == e.Dst {
				continue
			}
			if _, ok := memberSet[e.Src]; !ok {
				continue
			}
			if _, ok := memberSet[e.Dst]; !ok {
				continue
			}
			if adjSet[e.Src] == nil {
				adjSet[e.Src] = make(map[int64]struct{})
			}
			adjSet[e.Src][e.Dst] = struct{}{}
			if adjSet[e.Dst] == nil {
				adjSet[e.Dst] = make(map[int64]struct{})
			}
			adjSet[e.Dst][e.Src] = struct{}{}
		}
	}

	adj := make(map[int64][]int64, len(adjSet))
	for g, nbs := range adjSet {
		out := make([]int64, 0, len(nbs))
		for nb := range nbs {
			out = append(out, nb)
		}
		adj[g] = out
	}
	return allMembers, adj, nil
}

func encodeEdges(edges []DistEdge) []byte {
	flat := make([]int64, 0, 2*len(edges))
	for _, e := range edges {
		flat = append(flat, e.Src, e.Dst)
	}
	return comm.EncodeInts64(flat)
}

func decodeEdges(buf []byte) []DistEdge {
	flat := comm.DecodeInts64(buf)
	out := make([]DistEdge, 0, len(flat)/2)
	for i := 0; i+1 < len(flat); i += 2 {
		out = append(out, DistEdge{Src: flat[i], Dst: flat[i+1]})
	}
	return out
}
