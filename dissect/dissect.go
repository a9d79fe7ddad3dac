// Package dissect implements nested dissection (spec.md §4.4, C5): it
// recursively bisects the adjacency graph of A, alternating between the
// distributed bisector (while the team size is > 1) and the sequential
// one, producing a separator tree, a composite permutation, and the
// parallel elimination tree of supernodes the numeric layers consume.
package dissect

import (
	"fmt"
	"sort"

	"github.com/jpoulson-lab/cliquesolve/bisect"
	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/graph"
	"github.com/jpoulson-lab/cliquesolve/partition"
)

// Options controls the recursion: how far it goes (Cutoff) and which
// oracle/quality knobs drive each cut (spec.md §4.3's Params, forwarded
// unchanged to every level).
type Options struct {
	Cutoff int
	Oracle partition.Oracle
	Params partition.Params
}

// DefaultOptions mirrors the defaults spec.md §4.4 assumes when a caller
// doesn't override them: recurse to subgraphs of 64 vertices or fewer, BFS
// bisection, one separator attempt, 20% imbalance tolerance.
func DefaultOptions() Options {
	return Options{Cutoff: 64, Oracle: partition.Default, Params: partition.Params{NumSeps: 1, Imbalance: 0.2}}
}

// nodeRecord is one separator-tree node as produced locally by recurse,
// before the final global aggregation assigns post-order ids and offsets.
type nodeRecord struct {
	path     string // "" is the global root; "0"/"1" appended per level
	members  []int64
	isLeaf   bool
	teamSize int
	team     comm.Group // non-nil only on ranks that are actually members of it
	// origRank is this rank's index in the top-level group passed to Run
	// (or AnalyticGrid2D/3D), carried through recursion unchanged so
	// assemble can build each supernode's OwnerRanks without needing a
	// live Group handle from every contributing rank.
	origRank int
}

// Run performs nested dissection of g (spec.md §4.4), returning the
// separator/elimination tree and the composite permutation.
//
// Symbolic construction is redundant once the graph is gathered: the first
// bisection call pays for the only exchange of graph data this function
// does (one all-to-all-v broadcast of the whole graph across g's group),
// after which every rank in a team holds an identical in-memory snapshot and
// computes every deeper cut from it without further exchange; the remaining
// collectives are the Split calls below and assemble's one all-to-all-v of
// the finished tree records. Because the
// cut is deterministic given identical input, every rank in a team derives
// bit-identical separator/left/right sets (spec.md §4.5's debug invariant
// that partner teams agree on lower_struct sizes holds trivially under
// this scheme). comm.Group.Split is still called at every distributed
// level, purely so later phases (front construction, the distributed
// solve) get a live Group handle for each supernode their own rank
// actually belongs to -- a rank not in a team only learns that team's
// sizes and structure, never an operable handle to it.
func Run(g *graph.Dist, opts Options) (*Tree, error) {
	group := g.Group()
	if opts.Oracle == nil {
		opts.Oracle = partition.Default
	}
	if opts.Cutoff <= 0 {
		opts.Cutoff = 64
	}

	low, high := g.LocalRange()
	var localMembers []int64
	var localEdges []bisect.DistEdge
	for i := low; i < high; i++ {
		localMembers = append(localMembers, i)
		nbs, err := g.Neighbors(i)
		if err != nil {
			return nil, fmt.Errorf("dissect: reading neighbors of %d: %w", i, err)
		}
		for _, j := range nbs {
			localEdges = append(localEdges, bisect.DistEdge{Src: i, Dst: j})
		}
	}

	origRank := group.Rank()
	var records []nodeRecord
	var neighbors func(int64) []int64
	if group.Size() == 1 {
		neighbors = func(v int64) []int64 {
			nbs, err := g.Neighbors(v)
			if err != nil {
				return nil
			}
			return nbs
		}
		recurse(group, "", localMembers, neighbors, opts, origRank, &records)
	} else {
		allMembers, adj, err := bisect.Gather(group, localMembers, localEdges)
		if err != nil {
			return nil, fmt.Errorf("dissect: top-level gather: %w", err)
		}
		neighbors = func(v int64) []int64 { return adj[v] }
		recurse(group, "", allMembers, neighbors, opts, origRank, &records)
	}

	t, err := assemble(group, g.N(), records)
	if err != nil {
		return nil, err
	}
	FillOriginalLowerStructs(t, neighbors)
	return t, nil
}

// recurse implements spec.md §4.4's recursion: bisect, record the
// separator, then either recurse on the same (size-1) team for both
// children, or halve the team and recurse each child on its half. adj is
// consulted through the neighbors closure so the T>1 and T==1 paths share
// one bisection call (bisect.Sequential); by the time recurse is entered,
// the structure it needs is already fully replicated across the team.
func recurse(group comm.Group, path string, members []int64, neighbors func(int64) []int64, opts Options, origRank int, out *[]nodeRecord) {
	if group.Size() == 1 && int64(len(members)) <= int64(opts.Cutoff) {
		*out = append(*out, nodeRecord{path: path, members: members, isLeaf: true, teamSize: 1, team: group, origRank: origRank})
		return
	}
	if len(members) == 0 {
		*out = append(*out, nodeRecord{path: path, members: members, isLeaf: true, teamSize: group.Size(), team: group, origRank: origRank})
		return
	}

	res := bisect.Sequential(members, neighbors, opts.Oracle, opts.Params)
	*out = append(*out, nodeRecord{path: path, members: res.Separator, isLeaf: false, teamSize: group.Size(), team: group, origRank: origRank})

	if group.Size() == 1 {
		recurse(group, path+"0", res.Left, neighbors, opts, origRank, out)
		recurse(group, path+"1", res.Right, neighbors, opts, origRank, out)
		return
	}

	leftTeamSize := group.Size() / 2
	rightTeamSize := group.Size() - leftTeamSize
	// Smaller team handles whichever side came out smaller, regardless of
	// which of Left/Right the oracle happened to call it (spec.md §4.3's
	// orientation rule).
	firstHalfGetsLeft := (leftTeamSize <= rightTeamSize) == (res.LeftSize <= res.RightSize)

	color := 0
	if group.Rank() >= leftTeamSize {
		color = 1
	}
	child, err := group.Split(color, group.Rank())
	if err != nil || child == nil {
		// A Split failure strands this rank's subtree; record it as a leaf
		// of whatever it already has so the global aggregation still sees
		// a complete, if degenerate, tree instead of silently losing data.
		members := res.Left
		if color == 1 {
			if firstHalfGetsLeft {
				members = res.Right
			}
		} else if !firstHalfGetsLeft {
			members = res.Right
		}
		*out = append(*out, nodeRecord{path: path + fmt.Sprint(color), members: members, isLeaf: true, teamSize: 0, origRank: origRank})
		return
	}

	if color == 0 {
		if firstHalfGetsLeft {
			recurse(child, path+"0", res.Left, neighbors, opts, origRank, out)
		} else {
			recurse(child, path+"0", res.Right, neighbors, opts, origRank, out)
		}
	} else {
		if firstHalfGetsLeft {
			recurse(child, path+"1", res.Right, neighbors, opts, origRank, out)
		} else {
			recurse(child, path+"1", res.Left, neighbors, opts, origRank, out)
		}
	}
}

// assemble turns the per-rank, per-team-redundant nodeRecord lists into a
// single globally-agreed Tree: it gathers every rank's records across the
// whole top-level group, dedupes by path (every rank in a team produced an
// identical record for that path), assigns post-order ids, and builds the
// permutation.
func assemble(group comm.Group, n int64, local []nodeRecord) (*Tree, error) {
	size := group.Size()
	payload := encodeRecords(local)
	sendBufs := make([][]byte, size)
	for q := range sendBufs {
		sendBufs[q] = payload
	}
	recvBufs, err := group.AllToAllv(sendBufs)
	if err != nil {
		return nil, fmt.Errorf("dissect: assembling global tree: %w", err)
	}

	type entry struct {
		members    []int64
		isLeaf     bool
		teamSize   int
		ownerRanks map[int]bool
	}
	byPath := make(map[string]entry)
	for _, buf := range recvBufs {
		for _, rec := range decodeRecords(buf) {
			e, ok := byPath[rec.path]
			if !ok {
				e = entry{members: rec.members, isLeaf: rec.isLeaf, teamSize: rec.teamSize, ownerRanks: make(map[int]bool)}
			}
			e.ownerRanks[rec.origRank] = true
			byPath[rec.path] = e
		}
	}
	// Re-merge in this rank's own live Group handles, since those never
	// survive the wire encoding above.
	teams := make(map[string]comm.Group, len(local))
	for _, rec := range local {
		teams[rec.path] = rec.team
	}

	ids := make(map[string]int)
	var order []string
	var assignPostOrder func(path string)
	assignPostOrder = func(path string) {
		if _, ok := byPath[path]; !ok {
			return
		}
		if _, done := ids[path]; done {
			return
		}
		e := byPath[path]
		if !e.isLeaf {
			assignPostOrder(path + "0")
			assignPostOrder(path + "1")
		}
		ids[path] = len(order)
		order = append(order, path)
	}
	assignPostOrder("")

	supernodes := make([]Supernode, len(order))
	pathToID := make(map[string]int, len(order))
	for id, p := range order {
		pathToID[p] = id
	}
	offset := int64(0)
	for id, p := range order {
		e := byPath[p]
		ownerRanks := make([]int, 0, len(e.ownerRanks))
		for r := range e.ownerRanks {
			ownerRanks = append(ownerRanks, r)
		}
		sort.Ints(ownerRanks)
		sn := Supernode{
			Size:          int64(len(e.members)),
			Offset:        offset,
			Parent:        -1,
			Children:      [2]int{-1, -1},
			IsDistributed: e.teamSize > 1,
			Team:          teams[p],
			OwnerRanks:    ownerRanks,
		}
		if !e.isLeaf {
			sn.Children[0] = pathToID[p+"0"]
			sn.Children[1] = pathToID[p+"1"]
		}
		supernodes[id] = sn
		offset += sn.Size
	}
	for id, sn := range supernodes {
		for _, c := range sn.Children {
			if c >= 0 {
				supernodes[c].Parent = id
			}
		}
	}

	perm := make(map[int64]int64)
	for id, p := range order {
		members := append([]int64(nil), byPath[p].members...)
		sort.Slice(members, func(a, b int) bool { return members[a] < members[b] })
		base := supernodes[id].Offset
		for k, v := range members {
			perm[v] = base + int64(k)
		}
	}
	invPerm := make([]int64, n)
	for orig, img := range perm {
		invPerm[img] = orig
	}

	rootID := len(order) - 1

	t := &Tree{
		Supernodes: supernodes,
		RootID:     rootID,
		Perm:       perm,
		InvPerm:    invPerm,
	}
	return t, nil
}

type wireRecord struct {
	path     string
	members  []int64
	isLeaf   bool
	teamSize int
	origRank int
}

func encodeRecords(recs []nodeRecord) []byte {
	flat := make([]int64, 0, 5*len(recs))
	var paths []byte
	for _, r := range recs {
		flat = append(flat, int64(len(r.path)), int64(len(r.members)), boolToInt64(r.isLeaf), int64(r.teamSize), int64(r.origRank))
		paths = append(paths, r.path...)
		flat = append(flat, r.members...)
	}
	header := comm.EncodeInts64(flat)
	out := make([]byte, 0, 8+len(header)+len(paths))
	out = append(out, comm.EncodeInts64([]int64{int64(len(header)), int64(len(paths))})...)
	out = append(out, header...)
	out = append(out, paths...)
	return out
}

func decodeRecords(buf []byte) []wireRecord {
	if len(buf) < 16 {
		return nil
	}
	sizes := comm.DecodeInts64(buf[:16])
	headerLen, pathsLen := int(sizes[0]), int(sizes[1])
	header := buf[16 : 16+headerLen]
	paths := buf[16+headerLen : 16+headerLen+pathsLen]

	flat := comm.DecodeInts64(header)
	var out []wireRecord
	pOff, fOff := 0, 0
	for fOff < len(flat) {
		pathLen := int(flat[fOff])
		memberLen := int(flat[fOff+1])
		isLeaf := flat[fOff+2] != 0
		teamSize := int(flat[fOff+3])
		origRank := int(flat[fOff+4])
		fOff += 5
		path := string(paths[pOff : pOff+pathLen])
		pOff += pathLen
		members := append([]int64(nil), flat[fOff:fOff+memberLen]...)
		fOff += memberLen
		out = append(out, wireRecord{path: path, members: members, isLeaf: isLeaf, teamSize: teamSize, origRank: origRank})
	}
	return out
}

func boolToInt64(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
