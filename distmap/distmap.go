// Package distmap implements the distribution map of spec.md §4.2 (C3): a
// 1-D distributed permutation m[i] meaning "original index i is renumbered
// to m[i]", supporting inversion, forward translation of arbitrary index
// arrays, and composition, each collective over the owning process group.
package distmap

import (
	"fmt"

	"github.com/jpoulson-lab/cliquesolve/comm"
	"github.com/jpoulson-lab/cliquesolve/layout"
)

// Map is a distributed permutation of [0, N): rank r holds m[i] for i in
// its owned row range (layout.Range(N, group.Size(), group.Rank())).
type Map struct {
	group comm.Group
	n     int64
	m     []int64 // m[i-low] = image of global index i
}

// New creates a Map backed by the given local image values, one per
// locally-owned index, in ascending index order.
func New(group comm.Group, n int64, local []int64) *Map {
	return &Map{group: group, n: n, m: local}
}

// Identity creates the identity Map over group.
func Identity(group comm.Group, n int64) *Map {
	low, high := layout.Range(n, group.Size(), group.Rank())
	local := make([]int64, high-low)
	for i := range local {
		local[i] = low + int64(i)
	}
	return &Map{group: group, n: n, m: local}
}

func (mp *Map) N() int64          { return mp.n }
func (mp *Map) Group() comm.Group { return mp.group }

// LocalRange returns the [low, high) range of original indices this rank
// holds images for.
func (mp *Map) LocalRange() (low, high int64) {
	return layout.Range(mp.n, mp.group.Size(), mp.group.Rank())
}

// Image returns m[i] for a locally-held original index i.
func (mp *Map) Image(i int64) (int64, error) {
	low, high := mp.LocalRange()
	if i < low || i >= high {
		return 0, fmt.Errorf("distmap: index %d not locally owned (range [%d, %d))", i, low, high)
	}
	return mp.m[i-low], nil
}

// LocalImages returns the backing slice of images for this rank's owned
// original indices, in ascending index order.
func (mp *Map) LocalImages() []int64 { return mp.m }

// FormInverse inverts the map by exchanging (i, m[i]) pairs: each process
// sends the pair to the owner of m[i] (per the universal row-to-process
// rule), so the result's rank r holds, for each i' in its own owned
// range, the unique i with m[i] = i'.
func (mp *Map) FormInverse() (*Map, error) {
	group := mp.group
	size := group.Size()
	low, _ := mp.LocalRange()

	sendOrig := make([][]int64, size)
	sendImg := make([][]int64, size)
	for k, img := range mp.m {
		orig := low + int64(k)
		dest := layout.Owner(mp.n, size, img)
		sendOrig[dest] = append(sendOrig[dest], orig)
		sendImg[dest] = append(sendImg[dest], img)
	}

	recvOrig, err := exchangeInt64(group, sendOrig)
	if err != nil {
		return nil, fmt.Errorf("distmap: form_inverse exchanging originals: %w", err)
	}
	recvImg, err := exchangeInt64(group, sendImg)
	if err != nil {
		return nil, fmt.Errorf("distmap: form_inverse exchanging images: %w", err)
	}

	invLow, invHigh := layout.Range(mp.n, size, group.Rank())
	inv := make([]int64, invHigh-invLow)
	filled := make([]bool, len(inv))
	for q := 0; q < size; q++ {
		origs, imgs := recvOrig[q], recvImg[q]
		for k := range imgs {
			pos := imgs[k] - invLow
			inv[pos] = origs[k]
			filled[pos] = true
		}
	}
	for i, ok := range filled {
		if !ok {
			return nil, fmt.Errorf("distmap: form_inverse left index %d unfilled -- m is not a permutation", invLow+int64(i))
		}
	}
	return &Map{group: group, n: mp.n, m: inv}, nil
}

// Translate replaces each entry of indices with its image under m. Each
// queried index is looked up remotely via one all-to-all-v of request
// indices and one of reply images; each payload's length carries its count,
// so no separate count exchange is made.
func (mp *Map) Translate(indices []int64) ([]int64, error) {
	group := mp.group
	size := group.Size()

	sendReq := make([][]int64, size)
	origPos := make([][]int, size) // position in `indices` each request slot came from
	for pos, idx := range indices {
		owner := layout.Owner(mp.n, size, idx)
		sendReq[owner] = append(sendReq[owner], idx)
		origPos[owner] = append(origPos[owner], pos)
	}

	recvReq, err := exchangeInt64(group, sendReq)
	if err != nil {
		return nil, fmt.Errorf("distmap: translate request exchange: %w", err)
	}

	low, _ := mp.LocalRange()
	sendReply := make([][]int64, size)
	for q := 0; q < size; q++ {
		reqs := recvReq[q]
		reply := make([]int64, len(reqs))
		for k, idx := range reqs {
			reply[k] = mp.m[idx-low]
		}
		sendReply[q] = reply
	}

	recvReply, err := exchangeInt64(group, sendReply)
	if err != nil {
		return nil, fmt.Errorf("distmap: translate reply exchange: %w", err)
	}

	out := make([]int64, len(indices))
	for q := 0; q < size; q++ {
		for k, pos := range origPos[q] {
			out[pos] = recvReply[q][k]
		}
	}
	return out, nil
}

// Compose defines third[i] = second[first[i]]; implemented as a single
// Translate of first's local images against second.
func Compose(first, second *Map) (*Map, error) {
	if first.n != second.n {
		return nil, fmt.Errorf("distmap: compose requires equal domains, got %d and %d", first.n, second.n)
	}
	images, err := second.Translate(first.m)
	if err != nil {
		return nil, fmt.Errorf("distmap: compose: %w", err)
	}
	return &Map{group: first.group, n: first.n, m: images}, nil
}

// exchangeInt64 performs an all-to-all-v of int64 slices, one per peer.
func exchangeInt64(group comm.Group, send [][]int64) ([][]int64, error) {
	bufs := make([][]byte, len(send))
	for q, s := range send {
		bufs[q] = comm.EncodeInts64(s)
	}
	recvBufs, err := group.AllToAllv(bufs)
	if err != nil {
		return nil, err
	}
	recv := make([][]int64, len(recvBufs))
	for q, b := range recvBufs {
		recv[q] = comm.DecodeInts64(b)
	}
	return recv, nil
}
