// Package generator fills the blocks of a topology with structured lattices
// and assembles them into one unstructured mesh.
package generator

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/notargets/blockmesh/ctxlog"
	"github.com/notargets/blockmesh/mesh"
	"github.com/notargets/blockmesh/topology"
	"github.com/notargets/blockmesh/utils"
)

// DefaultTolerance is the absolute distance under which two lattice nodes
// of neighbouring blocks are the same node.
const DefaultTolerance = 1e-8

// Generator builds a mesh from a topology.
type Generator struct {
	Topology  *topology.Topology
	Tolerance float64
}

// NewGenerator creates a generator. A non-positive tolerance selects
// DefaultTolerance.
func NewGenerator(topo *topology.Topology, tolerance float64) *Generator {
	if tolerance <= 0 {
		tolerance = DefaultTolerance
	}
	return &Generator{Topology: topo, Tolerance: tolerance}
}

// blockNodes records where the lattice of one block landed in the mesh.
type blockNodes struct {
	lat      *lattice
	nodes    []int // lattice local index -> mesh node
	cellBase int   // id of the block's first cell
}

// Generate produces the mesh. Blocks are filled in id order and lattice
// nodes in i-fastest order, so node and element numbering is a pure function
// of the topology. Nodes on block boundaries are merged with coincident
// nodes of earlier blocks; the earliest node keeps its id.
func (g *Generator) Generate(ctx context.Context) (*mesh.Mesh, error) {
	logger := ctxlog.FromContext(ctx)
	topo := g.Topology
	if topo == nil {
		return nil, fmt.Errorf("generator: nil topology")
	}
	if err := topo.Validate(); err != nil {
		return nil, err
	}
	dim := topo.Dim
	index, err := utils.NewCoordinateIndex(dim, g.Tolerance)
	if err != nil {
		return nil, fmt.Errorf("generator: %w", err)
	}

	m := mesh.New(dim)
	blocks := make([]blockNodes, len(topo.Blocks))
	merged := 0
	for _, b := range topo.Blocks {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		lat, err := newLattice(dim, b.Subdivisions, b.Gradings)
		if err != nil {
			return nil, &topology.TopologyError{Entity: "block", Ref: fmt.Sprint(b.ID), Reason: err.Error()}
		}
		bm := newBlockMap(dim, topo.CornerCoords(b.ID))
		nodes := make([]int, lat.numNodes())
		for local := range nodes {
			ijk := lat.nodeIJK(local)
			x := bm.At(lat.logical(ijk))
			if !lat.onBoundary(ijk) {
				nodes[local] = m.AddNode(x)
				continue
			}
			id, found, err := index.FindOrInsert(m.NumNodes(), x)
			if err != nil {
				return nil, fmt.Errorf("generator: block %d: %w", b.ID, err)
			}
			if found {
				nodes[local] = id
				merged++
				continue
			}
			nodes[local] = m.AddNode(x)
		}
		blocks[b.ID] = blockNodes{lat: lat, nodes: nodes, cellBase: m.NumElements()}
		if err := addCells(m, b.ID, &blocks[b.ID]); err != nil {
			return nil, err
		}
		logger.WithFields(logrus.Fields{
			"block": b.ID,
			"nodes": len(nodes),
			"cells": lat.numCells(),
		}).Debug("filled block")
	}

	for _, p := range topo.Patches {
		for _, f := range p.Faces {
			addPatchFaces(m, p.Name, f, &blocks[f.Block])
		}
	}

	logger.WithFields(logrus.Fields{
		"nodes":    m.NumNodes(),
		"elements": m.NumElements(),
		"merged":   merged,
	}).Info("generated mesh")
	return m, nil
}

func addCells(m *mesh.Mesh, block int, bn *blockNodes) error {
	lat := bn.lat
	v := func(i, j, k int) int { return bn.nodes[lat.node(i, j, k)] }
	kmax := 1
	if lat.dim == 3 {
		kmax = lat.n[2]
	}
	cells := make([]int, 0, lat.numCells())
	for k := 0; k < kmax; k++ {
		for j := 0; j < lat.n[1]; j++ {
			for i := 0; i < lat.n[0]; i++ {
				nodes := []int{v(i, j, k), v(i+1, j, k), v(i+1, j+1, k), v(i, j+1, k)}
				if lat.dim == 3 {
					nodes = append(nodes, v(i, j, k+1), v(i+1, j, k+1), v(i+1, j+1, k+1), v(i, j+1, k+1))
				}
				if hasRepeat(nodes) {
					return &topology.TopologyError{
						Entity: "block",
						Ref:    fmt.Sprint(block),
						Reason: fmt.Sprintf("cell (%d,%d,%d) has coincident nodes, tolerance too large for the spacing", i, j, k),
					}
				}
				cells = append(cells, m.AddElement(mesh.Element{
					Type:  mesh.CellType(lat.dim),
					Nodes: nodes,
					Block: block,
					Cell:  -1,
				}))
			}
		}
	}
	m.AddRegion(mesh.InteriorRegion, cells...)
	return nil
}

// addPatchFaces emits the boundary elements covering one block side. The
// side's U index runs fastest; nodes are ordered so the face normal points
// out of the block.
func addPatchFaces(m *mesh.Mesh, name string, f topology.Face, bn *blockNodes) {
	lat := bn.lat
	side := topology.Sides(lat.dim)[f.Side]
	point := func(u, v int) int {
		var ijk [3]int
		if side.High {
			ijk[side.Axis] = lat.n[side.Axis]
		}
		ijk[side.U] = u
		if lat.dim == 3 {
			ijk[side.V] = v
		}
		return bn.nodes[lat.node(ijk[0], ijk[1], ijk[2])]
	}
	cell := func(u, v int) int {
		var ijk [3]int
		if side.High {
			ijk[side.Axis] = lat.n[side.Axis] - 1
		}
		ijk[side.U] = u
		if lat.dim == 3 {
			ijk[side.V] = v
		}
		return bn.cellBase + lat.cell(ijk[0], ijk[1], ijk[2])
	}

	nu := lat.n[side.U]
	var faces []int
	if lat.dim == 2 {
		for s := 0; s < nu; s++ {
			u := s
			nodes := []int{point(u, 0), point(u+1, 0)}
			if side.Reverse {
				u = nu - 1 - s
				nodes = []int{point(u+1, 0), point(u, 0)}
			}
			faces = append(faces, m.AddElement(mesh.Element{
				Type:  mesh.FaceType(2),
				Nodes: nodes,
				Block: f.Block,
				Cell:  cell(u, 0),
			}))
		}
	} else {
		for v := 0; v < lat.n[side.V]; v++ {
			for u := 0; u < nu; u++ {
				faces = append(faces, m.AddElement(mesh.Element{
					Type:  mesh.FaceType(3),
					Nodes: []int{point(u, v), point(u+1, v), point(u+1, v+1), point(u, v+1)},
					Block: f.Block,
					Cell:  cell(u, v),
				}))
			}
		}
	}
	m.AddRegion(name, faces...)
}

func hasRepeat(nodes []int) bool {
	for i := range nodes {
		for j := i + 1; j < len(nodes); j++ {
			if nodes[i] == nodes[j] {
				return true
			}
		}
	}
	return false
}
