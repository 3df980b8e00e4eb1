package partitions

import (
	"sort"

	"github.com/notargets/blockmesh/mesh"
	"github.com/notargets/blockmesh/topology"
)

// MeshConnectivity is the cell face adjacency of a mesh. Cells are indexed
// densely in increasing element id; a boundary face points back at its own
// cell.
type MeshConnectivity struct {
	NumElements int
	Cells       []int // cell index -> element id

	// Face connectivity
	EToE [][]int // Element-to-element connectivity
	EToF [][]int // Element-to-face connectivity
}

type faceKey [4]int

func makeFaceKey(nodes []int) faceKey {
	k := faceKey{-1, -1, -1, -1}
	copy(k[:], nodes)
	s := k[:len(nodes)]
	sort.Ints(s)
	return k
}

// BuildConnectivity matches the faces of every cell of the mesh. Cell faces
// follow the side numbering of the block topology.
func BuildConnectivity(m *mesh.Mesh) *MeshConnectivity {
	cells := m.Cells()
	sides := topology.Sides(m.Dim)
	conn := &MeshConnectivity{
		NumElements: len(cells),
		Cells:       cells,
		EToE:        make([][]int, len(cells)),
		EToF:        make([][]int, len(cells)),
	}

	type faceRef struct{ cell, face int }
	seen := make(map[faceKey]faceRef, len(cells)*len(sides)/2)
	nodes := make([]int, 0, 4)
	for k, e := range cells {
		el := m.Elements[e]
		conn.EToE[k] = make([]int, len(sides))
		conn.EToF[k] = make([]int, len(sides))
		for f, side := range sides {
			conn.EToE[k][f] = k
			conn.EToF[k][f] = f
			nodes = nodes[:0]
			for _, c := range side.Corners {
				nodes = append(nodes, el.Nodes[c])
			}
			key := makeFaceKey(nodes)
			if other, ok := seen[key]; ok {
				conn.EToE[k][f] = other.cell
				conn.EToF[k][f] = other.face
				conn.EToE[other.cell][other.face] = k
				conn.EToF[other.cell][other.face] = f
				delete(seen, key)
				continue
			}
			seen[key] = faceRef{k, f}
		}
	}
	return conn
}
