// Package topology stores the user supplied block description: points,
// blocks with their subdivisions and gradings, boundary patches and periodic
// links. Every Add/Set operation validates its references immediately and
// never modifies entries accepted earlier.
package topology

import (
	"fmt"
	"math"
	"sort"
)

// Point is a corner point of the block description.
type Point struct {
	ID     int
	Coords []float64
}

// Block is a logical quad (2D) or hex (3D) filled with a structured lattice.
type Block struct {
	ID           int
	Corners      []int     // Point ids, 4 for quad, 8 for hex
	Subdivisions []int     // One per logical axis, nil until set
	Gradings     []float64 // One per logical edge, nil until set
}

// Face is one boundary face of a patch, resolved to the block side it covers.
type Face struct {
	Points []int
	Block  int
	Side   int // index into Sides(dim)
}

// Patch is a named, ordered set of boundary faces.
type Patch struct {
	Name  string
	Faces []Face
}

// PeriodicLink identifies the nodes of Source, translated by Translation,
// with the nodes of Destination.
type PeriodicLink struct {
	Source      string
	Destination string
	Translation []float64
}

// Topology is the complete block description.
type Topology struct {
	Dim     int
	Points  []Point
	Blocks  []Block
	Patches []Patch
	Links   []PeriodicLink

	patchIndex map[string]int
	faceOwners map[string][]faceRef
}

type faceRef struct {
	block, side int
}

// New creates an empty topology of dimension 2 or 3.
func New(dim int) (*Topology, error) {
	if dim != 2 && dim != 3 {
		return nil, topoErr("description", "", "dimension %d is not 2 or 3", dim)
	}
	return &Topology{
		Dim:        dim,
		patchIndex: make(map[string]int),
		faceOwners: make(map[string][]faceRef),
	}, nil
}

// AddPoint appends a point and returns its id.
func (t *Topology) AddPoint(coords ...float64) (int, error) {
	id := len(t.Points)
	if len(coords) != t.Dim {
		return -1, topoErr("point", id, "has %d coordinates, want %d", len(coords), t.Dim)
	}
	for _, c := range coords {
		if math.IsNaN(c) || math.IsInf(c, 0) {
			return -1, topoErr("point", id, "coordinate %v is not finite", c)
		}
	}
	t.Points = append(t.Points, Point{ID: id, Coords: append([]float64(nil), coords...)})
	return id, nil
}

// AddBlock appends a block defined by its corner point ids and returns its id.
func (t *Topology) AddBlock(corners ...int) (int, error) {
	id := len(t.Blocks)
	if len(corners) != NumCorners(t.Dim) {
		return -1, topoErr("block", id, "has %d corners, want %d", len(corners), NumCorners(t.Dim))
	}
	seen := make(map[int]bool, len(corners))
	for _, p := range corners {
		if p < 0 || p >= len(t.Points) {
			return -1, topoErr("block", id, "references unknown point %d", p)
		}
		if seen[p] {
			return -1, topoErr("block", id, "repeats point %d", p)
		}
		seen[p] = true
	}
	t.Blocks = append(t.Blocks, Block{ID: id, Corners: append([]int(nil), corners...)})
	for s, side := range Sides(t.Dim) {
		key := faceKey(t.sidePoints(id, side))
		t.faceOwners[key] = append(t.faceOwners[key], faceRef{block: id, side: s})
	}
	return id, nil
}

// SetSubdivisions sets the number of cells along each logical axis.
func (t *Topology) SetSubdivisions(block int, n ...int) error {
	b, err := t.block(block)
	if err != nil {
		return err
	}
	if b.Subdivisions != nil {
		return topoErr("block", block, "subdivisions already set")
	}
	if len(n) != t.Dim {
		return topoErr("block", block, "has %d subdivisions, want %d", len(n), t.Dim)
	}
	for axis, v := range n {
		if v < 1 {
			return topoErr("block", block, "subdivision %d along axis %d must be positive", v, axis)
		}
	}
	b.Subdivisions = append([]int(nil), n...)
	return nil
}

// SetGrading sets the grading ratios of a block. Either one ratio per
// logical edge or one ratio per axis (applied to every edge along it) is
// accepted.
func (t *Topology) SetGrading(block int, r ...float64) error {
	b, err := t.block(block)
	if err != nil {
		return err
	}
	if b.Gradings != nil {
		return topoErr("block", block, "gradings already set")
	}
	nEdges := len(Edges(t.Dim))
	perAxis := EdgesPerAxis(t.Dim)
	for i, v := range r {
		if !(v > 0) || math.IsInf(v, 0) {
			return topoErr("block", block, "grading %d is %v, must be positive", i, v)
		}
	}
	switch len(r) {
	case nEdges:
		b.Gradings = append([]float64(nil), r...)
	case t.Dim:
		b.Gradings = make([]float64, nEdges)
		for e := range b.Gradings {
			b.Gradings[e] = r[e/perAxis]
		}
	default:
		return topoErr("block", block, "has %d gradings, want %d or %d", len(r), nEdges, t.Dim)
	}
	return nil
}

// AddPatchFace appends a face to the named patch, creating the patch on its
// first face. The face points must be the corners of exactly one block side.
func (t *Topology) AddPatchFace(name string, points ...int) error {
	if name == "" {
		return topoErr("patch", "", "empty name")
	}
	want := NumCorners(t.Dim) / 2
	if len(points) != want {
		return topoErr("patch", name, "face has %d points, want %d", len(points), want)
	}
	for _, p := range points {
		if p < 0 || p >= len(t.Points) {
			return topoErr("patch", name, "face references unknown point %d", p)
		}
	}
	owners := t.faceOwners[faceKey(points)]
	switch len(owners) {
	case 0:
		return topoErr("patch", name, "face %v is not a block face", points)
	case 1:
	default:
		return topoErr("patch", name, "face %v is shared by blocks %d and %d", points, owners[0].block, owners[1].block)
	}
	for _, p := range t.Patches {
		for _, f := range p.Faces {
			if f.Block == owners[0].block && f.Side == owners[0].side {
				return topoErr("patch", name, "face %v already belongs to patch %s", points, p.Name)
			}
		}
	}
	idx, ok := t.patchIndex[name]
	if !ok {
		idx = len(t.Patches)
		t.patchIndex[name] = idx
		t.Patches = append(t.Patches, Patch{Name: name})
	}
	t.Patches[idx].Faces = append(t.Patches[idx].Faces, Face{
		Points: append([]int(nil), points...),
		Block:  owners[0].block,
		Side:   owners[0].side,
	})
	return nil
}

// AddPeriodicLink records that the nodes of the source patch, translated by
// the vector, coincide with the nodes of the destination patch.
func (t *Topology) AddPeriodicLink(source, destination string, translation ...float64) error {
	ref := source + "->" + destination
	if _, ok := t.patchIndex[source]; !ok {
		return topoErr("link", ref, "unknown source patch %q", source)
	}
	if _, ok := t.patchIndex[destination]; !ok {
		return topoErr("link", ref, "unknown destination patch %q", destination)
	}
	if source == destination {
		return topoErr("link", ref, "source and destination are the same patch")
	}
	if len(translation) != t.Dim {
		return topoErr("link", ref, "translation has %d components, want %d", len(translation), t.Dim)
	}
	for _, l := range t.Links {
		if (l.Source == source && l.Destination == destination) ||
			(l.Source == destination && l.Destination == source) {
			return topoErr("link", ref, "patches are already linked")
		}
	}
	t.Links = append(t.Links, PeriodicLink{
		Source:      source,
		Destination: destination,
		Translation: append([]float64(nil), translation...),
	})
	return nil
}

// Patch returns the named patch.
func (t *Topology) Patch(name string) (Patch, bool) {
	idx, ok := t.patchIndex[name]
	if !ok {
		return Patch{}, false
	}
	return t.Patches[idx], true
}

// Validate checks that the description is complete enough to generate a
// mesh.
func (t *Topology) Validate() error {
	if len(t.Blocks) == 0 {
		return topoErr("description", "", "no blocks")
	}
	for _, b := range t.Blocks {
		if b.Subdivisions == nil {
			return topoErr("block", b.ID, "subdivisions not set")
		}
		if b.Gradings == nil {
			return topoErr("block", b.ID, "gradings not set")
		}
	}
	return t.checkConforming()
}

// edgeSpacing is the node distribution a block puts on one of its edges,
// with the ratio oriented from the lower to the higher point id.
type edgeSpacing struct {
	block int
	n     int
	ratio float64
}

// checkConforming rejects blocks that share an edge but place different
// nodes on it. Shared faces are covered through their edges.
func (t *Topology) checkConforming() error {
	perAxis := EdgesPerAxis(t.Dim)
	seen := make(map[[2]int]edgeSpacing)
	for _, b := range t.Blocks {
		for e, c := range Edges(t.Dim) {
			lo, hi := b.Corners[c[0]], b.Corners[c[1]]
			sp := edgeSpacing{block: b.ID, n: b.Subdivisions[e/perAxis], ratio: b.Gradings[e]}
			if lo > hi {
				lo, hi = hi, lo
				sp.ratio = 1 / sp.ratio
			}
			key := [2]int{lo, hi}
			prev, ok := seen[key]
			if !ok {
				seen[key] = sp
				continue
			}
			if prev.n != sp.n {
				return topoErr("block", b.ID, "edge %d-%d has %d subdivisions but block %d has %d",
					lo, hi, sp.n, prev.block, prev.n)
			}
			if sp.n > 1 && math.Abs(prev.ratio-sp.ratio) > 1e-12*math.Max(prev.ratio, sp.ratio) {
				return topoErr("block", b.ID, "edge %d-%d is graded %v but block %d grades it %v",
					lo, hi, sp.ratio, prev.block, prev.ratio)
			}
		}
	}
	return nil
}

// CornerCoords returns the corner coordinates of a block, corner by corner.
func (t *Topology) CornerCoords(block int) [][]float64 {
	b := t.Blocks[block]
	out := make([][]float64, len(b.Corners))
	for i, p := range b.Corners {
		out[i] = t.Points[p].Coords
	}
	return out
}

func (t *Topology) block(id int) (*Block, error) {
	if id < 0 || id >= len(t.Blocks) {
		return nil, topoErr("block", id, "does not exist")
	}
	return &t.Blocks[id], nil
}

func (t *Topology) sidePoints(block int, side Side) []int {
	b := t.Blocks[block]
	pts := make([]int, len(side.Corners))
	for i, c := range side.Corners {
		pts[i] = b.Corners[c]
	}
	return pts
}

func faceKey(points []int) string {
	sorted := append([]int(nil), points...)
	sort.Ints(sorted)
	return fmt.Sprint(sorted)
}
