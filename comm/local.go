package comm

import (
	"fmt"
	"sort"
	"sync"
)

// reserved tag namespace for the collectives this package implements on top
// of Send/Recv; user-level Send/Recv traffic (graph assembly, extend-add,
// ...) uses its own tags and never collides with these because it always
// passes non-negative tags, by convention enforced by callers in this
// module.
const (
	tagBarrier   = -1
	tagBcast     = -2
	tagAllToAll  = -3
	tagAllToAllv = -4
)

type rawMsg struct {
	from    int
	tag     int
	payload []byte
}

type msgKey struct {
	from int
	tag  int
}

// barrierRoom is a reusable rendezvous point shared by every rank in a
// group, used by Barrier. Split has its own splitRoom of the same
// "wait for everyone, then let the last arriver compute something for
// everyone" shape.
type barrierRoom struct {
	mu      sync.Mutex
	cond    *sync.Cond
	size    int
	gen     int
	arrived int
}

func newBarrierRoom(size int) *barrierRoom {
	r := &barrierRoom{size: size}
	r.cond = sync.NewCond(&r.mu)
	return r
}

func (b *barrierRoom) wait() {
	b.mu.Lock()
	gen := b.gen
	b.arrived++
	if b.arrived == b.size {
		b.arrived = 0
		b.gen++
		b.cond.Broadcast()
	} else {
		for b.gen == gen {
			b.cond.Wait()
		}
	}
	b.mu.Unlock()
}

// splitRoom is barrierRoom specialised for Split: ranks deposit their
// (color, key) before waiting, and the last arriver computes the full set
// of child groups once for everyone.
type splitRoom struct {
	mu      sync.Mutex
	cond    *sync.Cond
	size    int
	gen     int
	arrived int
	colors  []int
	keys    []int
	results []Group
}

func newSplitRoom(size int) *splitRoom {
	r := &splitRoom{
		size:    size,
		colors:  make([]int, size),
		keys:    make([]int, size),
		results: make([]Group, size),
	}
	r.cond = sync.NewCond(&r.mu)
	return r
}

// shared is the state every rank handle in a localGroup points to; Send
// writes into inboxes owned by other ranks, everything else a rank does is
// local to its own goroutine.
type shared struct {
	size     int
	inboxes  []chan rawMsg
	barrier  *barrierRoom
	splitRm  *splitRoom
	origRank []int // original (pre-split) rank of index i, for diagnostics
}

// localGroup is the default, MPI-free Group implementation: one goroutine
// per rank, communicating over buffered channels. It exists because no
// MPI binding is available anywhere in the retrieved corpus; every
// distributed package in this module is written against the Group
// interface and tested exclusively through this implementation.
type localGroup struct {
	rank    int
	sh      *shared
	pending map[msgKey][][]byte
}

// inboxCapacity bounds how far a sender can run ahead of its receiver
// before Send blocks. It is generous because this implementation models
// MPI's eager-send regime, not its rendezvous one; collectives (Barrier,
// Bcast, AllToAllv, Split) are what actually enforce that every rank has
// reached the same point, exactly as a real MPI job would.
const inboxCapacity = 1 << 16

// NewLocalGroup builds size cooperating rank handles sharing one in-process
// message bus. handles[r] is the Group as seen by rank r.
func NewLocalGroup(size int) []Group {
	if size <= 0 {
		panic("comm: NewLocalGroup requires size > 0")
	}
	sh := newShared(size)
	handles := make([]Group, size)
	for r := 0; r < size; r++ {
		handles[r] = &localGroup{rank: r, sh: sh, pending: make(map[msgKey][][]byte)}
	}
	return handles
}

func newShared(size int) *shared {
	sh := &shared{
		size:     size,
		inboxes:  make([]chan rawMsg, size),
		barrier:  newBarrierRoom(size),
		splitRm:  newSplitRoom(size),
		origRank: make([]int, size),
	}
	for r := 0; r < size; r++ {
		sh.inboxes[r] = make(chan rawMsg, inboxCapacity)
		sh.origRank[r] = r
	}
	return sh
}

func (g *localGroup) Rank() int { return g.rank }
func (g *localGroup) Size() int { return g.sh.size }

func (g *localGroup) Send(dest int, tag int, payload []byte) error {
	if dest < 0 || dest >= g.sh.size {
		return fmt.Errorf("comm: send to out-of-range rank %d (size %d)", dest, g.sh.size)
	}
	g.sh.inboxes[dest] <- rawMsg{from: g.rank, tag: tag, payload: payload}
	return nil
}

func (g *localGroup) Recv(src int, tag int) ([]byte, error) {
	if src < 0 || src >= g.sh.size {
		return nil, fmt.Errorf("comm: recv from out-of-range rank %d (size %d)", src, g.sh.size)
	}
	key := msgKey{src, tag}
	if q := g.pending[key]; len(q) > 0 {
		v := q[0]
		g.pending[key] = q[1:]
		return v, nil
	}
	for {
		m := <-g.sh.inboxes[g.rank]
		if m.from == src && m.tag == tag {
			return m.payload, nil
		}
		k := msgKey{m.from, m.tag}
		g.pending[k] = append(g.pending[k], m.payload)
	}
}

func (g *localGroup) SendRecv(dest int, sendTag int, payload []byte, src int, recvTag int) ([]byte, error) {
	if err := g.Send(dest, sendTag, payload); err != nil {
		return nil, err
	}
	return g.Recv(src, recvTag)
}

func (g *localGroup) Barrier() error {
	g.sh.barrier.wait()
	return nil
}

func (g *localGroup) Bcast(root int, payload []byte) ([]byte, error) {
	if root < 0 || root >= g.sh.size {
		return nil, fmt.Errorf("comm: bcast root %d out of range (size %d)", root, g.sh.size)
	}
	if g.rank == root {
		for r := 0; r < g.sh.size; r++ {
			if r == g.rank {
				continue
			}
			if err := g.Send(r, tagBcast, payload); err != nil {
				return nil, err
			}
		}
		return payload, nil
	}
	return g.Recv(root, tagBcast)
}

func (g *localGroup) AllToAll(sendBufs [][]byte) ([][]byte, error) {
	return g.allToAllImpl(sendBufs, tagAllToAll)
}

func (g *localGroup) AllToAllv(sendBufs [][]byte) ([][]byte, error) {
	return g.allToAllImpl(sendBufs, tagAllToAllv)
}

func (g *localGroup) allToAllImpl(sendBufs [][]byte, tag int) ([][]byte, error) {
	if len(sendBufs) != g.sh.size {
		return nil, fmt.Errorf("comm: all-to-all send slice has %d entries, group size is %d", len(sendBufs), g.sh.size)
	}
	for q := 0; q < g.sh.size; q++ {
		if q == g.rank {
			continue
		}
		if err := g.Send(q, tag, sendBufs[q]); err != nil {
			return nil, err
		}
	}
	recv := make([][]byte, g.sh.size)
	recv[g.rank] = sendBufs[g.rank]
	for q := 0; q < g.sh.size; q++ {
		if q == g.rank {
			continue
		}
		payload, err := g.Recv(q, tag)
		if err != nil {
			return nil, err
		}
		recv[q] = payload
	}
	return recv, nil
}

func (g *localGroup) Split(color, key int) (Group, error) {
	room := g.sh.splitRm
	room.mu.Lock()
	gen := room.gen
	room.colors[g.rank] = color
	room.keys[g.rank] = key
	room.arrived++
	if room.arrived == room.size {
		results := buildChildren(room.colors, room.keys)
		copy(room.results, results)
		room.arrived = 0
		room.gen++
		room.cond.Broadcast()
	} else {
		for room.gen == gen {
			room.cond.Wait()
		}
	}
	result := room.results[g.rank]
	room.mu.Unlock()
	return result, nil
}

func (g *localGroup) Free() {
	// The in-process implementation owns no OS resources beyond channels
	// and goroutines, which are garbage-collected once every rank handle
	// referencing this shared state is dropped; nothing to release eagerly.
}

// buildChildren computes, for every original rank, the child Group it ends
// up in (or nil if its color is negative), given everyone's (color, key).
// Ranks sharing a color are ordered by key, ties broken by original rank,
// matching the MPI_Comm_split contract spec.md §5 requires.
func buildChildren(colors, keys []int) []Group {
	size := len(colors)
	type member struct {
		origRank int
		key      int
	}
	groups := make(map[int][]member)
	for r := 0; r < size; r++ {
		if colors[r] < 0 {
			continue
		}
		groups[colors[r]] = append(groups[colors[r]], member{origRank: r, key: keys[r]})
	}

	results := make([]Group, size)
	for _, members := range groups {
		sort.SliceStable(members, func(i, j int) bool { return members[i].key < members[j].key })
		childSize := len(members)
		sh := newShared(childSize)
		for newRank, m := range members {
			sh.origRank[newRank] = m.origRank
		}
		for newRank, m := range members {
			results[m.origRank] = &localGroup{rank: newRank, sh: sh, pending: make(map[msgKey][][]byte)}
		}
	}
	return results
}
