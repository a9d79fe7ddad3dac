package dissect

import (
	"fmt"

	"github.com/jpoulson-lab/cliquesolve/comm"
)

// AnalyticGrid2D and AnalyticGrid3D build the nested-dissection tree of an
// axis-aligned regular grid directly from the grid's closed-form bisection
// -- cut along whichever axis is longest, at its midpoint -- instead of
// running the BFS oracle over an explicit adjacency list. This is the
// analytic mode carried over from the original solver's design notes for
// regular stencils (the helmholtz2d/helmholtz3d demos use it), where the
// optimal separator is known in closed form and building the adjacency
// list at all would be wasted work.

type box2D struct{ x0, x1, y0, y1 int }

func (b box2D) width() int  { return b.x1 - b.x0 }
func (b box2D) height() int { return b.y1 - b.y0 }
func (b box2D) area() int   { return b.width() * b.height() }

// AnalyticGrid2D builds the tree of an nx by ny grid, vertex (x, y)
// numbered y*nx+x, with the standard 4-point (N/S/E/W) stencil.
func AnalyticGrid2D(group comm.Group, nx, ny, cutoff int) (*Tree, error) {
	if nx <= 0 || ny <= 0 {
		return nil, fmt.Errorf("dissect: AnalyticGrid2D requires positive dimensions, got %dx%d", nx, ny)
	}
	if cutoff <= 0 {
		cutoff = 64
	}
	var records []nodeRecord
	recurse2D(group, "", box2D{0, nx, 0, ny}, nx, cutoff, group.Rank(), &records)

	t, err := assemble(group, int64(nx*ny), records)
	if err != nil {
		return nil, err
	}
	FillOriginalLowerStructs(t, grid2DNeighbors(nx, ny))
	return t, nil
}

func grid2DNeighbors(nx, ny int) func(int64) []int64 {
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

func box2DMembers(b box2D, nx int) []int64 {
	members := make([]int64, 0, b.area())
	for y := b.y0; y < b.y1; y++ {
		for x := b.x0; x < b.x1; x++ {
			members = append(members, int64(y*nx+x))
		}
	}
	return members
}

func recurse2D(group comm.Group, path string, b box2D, nx, cutoff, origRank int, out *[]nodeRecord) {
	if group.Size() == 1 && b.area() <= cutoff {
		*out = append(*out, nodeRecord{path: path, members: box2DMembers(b, nx), isLeaf: true, teamSize: 1, team: group, origRank: origRank})
		return
	}
	if b.area() == 0 {
		*out = append(*out, nodeRecord{path: path, isLeaf: true, teamSize: group.Size(), team: group, origRank: origRank})
		return
	}

	var left, right, sep box2D
	if b.width() >= b.height() {
		mid := b.x0 + b.width()/2
		sep = box2D{mid, mid + 1, b.y0, b.y1}
		left = box2D{b.x0, mid, b.y0, b.y1}
		right = box2D{mid + 1, b.x1, b.y0, b.y1}
	} else {
		mid := b.y0 + b.height()/2
		sep = box2D{b.x0, b.x1, mid, mid + 1}
		left = box2D{b.x0, b.x1, b.y0, mid}
		right = box2D{b.x0, b.x1, mid + 1, b.y1}
	}

	*out = append(*out, nodeRecord{path: path, members: box2DMembers(sep, nx), isLeaf: false, teamSize: group.Size(), team: group, origRank: origRank})

	if group.Size() == 1 {
		recurse2D(group, path+"0", left, nx, cutoff, origRank, out)
		recurse2D(group, path+"1", right, nx, cutoff, origRank, out)
		return
	}

	leftTeamSize := group.Size() / 2
	rightTeamSize := group.Size() - leftTeamSize
	firstHalfGetsLeft := (leftTeamSize <= rightTeamSize) == (left.area() <= right.area())

	color := 0
	if group.Rank() >= leftTeamSize {
		color = 1
	}
	child, err := group.Split(color, group.Rank())
	if err != nil || child == nil {
		return
	}
	if color == 0 {
		if firstHalfGetsLeft {
			recurse2D(child, path+"0", left, nx, cutoff, origRank, out)
		} else {
			recurse2D(child, path+"0", right, nx, cutoff, origRank, out)
		}
	} else {
		if firstHalfGetsLeft {
			recurse2D(child, path+"1", right, nx, cutoff, origRank, out)
		} else {
			recurse2D(child, path+"1", left, nx, cutoff, origRank, out)
		}
	}
}

type box3D struct{ x0, x1, y0, y1, z0, z1 int }

func (b box3D) dx() int    { return b.x1 - b.x0 }
func (b box3D) dy() int    { return b.y1 - b.y0 }
func (b box3D) dz() int    { return b.z1 - b.z0 }
func (b box3D) volume() int { return b.dx() * b.dy() * b.dz() }

// AnalyticGrid3D builds the tree of an nx by ny by nz grid, vertex
// (x, y, z) numbered z*nx*ny+y*nx+x, with the standard 6-point stencil.
func AnalyticGrid3D(group comm.Group, nx, ny, nz, cutoff int) (*Tree, error) {
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, fmt.Errorf("dissect: AnalyticGrid3D requires positive dimensions, got %dx%dx%d", nx, ny, nz)
	}
	if cutoff <= 0 {
		cutoff = 64
	}
	var records []nodeRecord
	recurse3D(group, "", box3D{0, nx, 0, ny, 0, nz}, nx, ny, cutoff, group.Rank(), &records)

	t, err := assemble(group, int64(nx*ny*nz), records)
	if err != nil {
		return nil, err
	}
	FillOriginalLowerStructs(t, grid3DNeighbors(nx, ny, nz))
	return t, nil
}

func grid3DNeighbors(nx, ny, nz int) func(int64) []int64 {
	plane := int64(nx * ny)
	return func(v int64) []int64 {
		z := v / plane
		rem := v % plane
		y := rem / int64(nx)
		x := rem % int64(nx)
		var out []int64
		if x > 0 {
			out = append(out, v-1)
		}
		if x < int64(nx-1) {
			out = append(out, v+1)
		}
		if y > 0 {
			out = append(out, v-int64(nx))
		}
		if y < int64(ny-1) {
			out = append(out, v+int64(nx))
		}
		if z > 0 {
			out = append(out, v-plane)
		}
		if z < int64(nz-1) {
			out = append(out, v+plane)
		}
		return out
	}
}

func box3DMembers(b box3D, nx, ny int) []int64 {
	members := make([]int64, 0, b.volume())
	for z := b.z0; z < b.z1; z++ {
		for y := b.y0; y < b.y1; y++ {
			for x := b.x0; x < b.x1; x++ {
				members = append(members, int64(z*nx*ny+y*nx+x))
			}
		}
	}
	return members
}

func recurse3D(group comm.Group, path string, b box3D, nx, ny, cutoff, origRank int, out *[]nodeRecord) {
	if group.Size() == 1 && b.volume() <= cutoff {
		*out = append(*out, nodeRecord{path: path, members: box3DMembers(b, nx, ny), isLeaf: true, teamSize: 1, team: group, origRank: origRank})
		return
	}
	if b.volume() == 0 {
		*out = append(*out, nodeRecord{path: path, isLeaf: true, teamSize: group.Size(), team: group, origRank: origRank})
		return
	}

	var left, right, sep box3D
	switch {
	case b.dx() >= b.dy() && b.dx() >= b.dz():
		mid := b.x0 + b.dx()/2
		sep = box3D{mid, mid + 1, b.y0, b.y1, b.z0, b.z1}
		left = box3D{b.x0, mid, b.y0, b.y1, b.z0, b.z1}
		right = box3D{mid + 1, b.x1, b.y0, b.y1, b.z0, b.z1}
	case b.dy() >= b.dz():
		mid := b.y0 + b.dy()/2
		sep = box3D{b.x0, b.x1, mid, mid + 1, b.z0, b.z1}
		left = box3D{b.x0, b.x1, b.y0, mid, b.z0, b.z1}
		right = box3D{b.x0, b.x1, mid + 1, b.y1, b.z0, b.z1}
	default:
		mid := b.z0 + b.dz()/2
		sep = box3D{b.x0, b.x1, b.y0, b.y1, mid, mid + 1}
		left = box3D{b.x0, b.x1, b.y0, b.y1, b.z0, mid}
		right = box3D{b.x0, b.x1, b.y0, b.y1, mid + 1, b.z1}
	}

	*out = append(*out, nodeRecord{path: path, members: box3DMembers(sep, nx, ny), isLeaf: false, teamSize: group.Size(), team: group, origRank: origRank})

	if group.Size() == 1 {
		recurse3D(group, path+"0", left, nx, ny, cutoff, origRank, out)
		recurse3D(group, path+"1", right, nx, ny, cutoff, origRank, out)
		return
	}

	leftTeamSize := group.Size() / 2
	rightTeamSize := group.Size() - leftTeamSize
	firstHalfGetsLeft := (leftTeamSize <= rightTeamSize) == (left.volume() <= right.volume())

	color := 0
	if group.Rank() >= leftTeamSize {
		color = 1
	}
	child, err := group.Split(color, group.Rank())
	if err != nil || child == nil {
		return
	}
	if color == 0 {
		if firstHalfGetsLeft {
			recurse3D(child, path+"0", left, nx, ny, cutoff, origRank, out)
		} else {
			recurse3D(child, path+"0", right, nx, ny, cutoff, origRank, out)
		}
	} else {
		if firstHalfGetsLeft {
			recurse3D(child, path+"1", right, nx, ny, cutoff, origRank, out)
		} else {
			recurse3D(child, path+"1", left, nx, ny, cutoff, origRank, out)
		}
	}
}
