// Package mesh holds the generated unstructured mesh. Every entity is
// addressed by a small dense integer id into contiguous tables: node
// coordinates live in one flat array of stride Dim, elements in one slice.
// The pipeline stages annotate the mesh in order: the generator fills nodes,
// elements and regions, the partitioner sets Owner and EToP, the periodic
// linker fills Periodic and the synchronizer sets GlobalIndex.
package mesh

import (
	"fmt"
	"sort"
)

// InteriorRegion is the name of the region holding every cell.
const InteriorRegion = "interior"

// Element is a cell or a boundary face.
type Element struct {
	Type  GeometryType
	Nodes []int // ordered node ids
	Block int   // parent block id
	Cell  int   // bounding cell for boundary faces, -1 for cells
}

// Region is a named subset of elements.
type Region struct {
	Name     string
	Elements []int
}

// Mesh is the global node and element table.
type Mesh struct {
	Dim      int
	Coords   []float64 // node n occupies Coords[n*Dim : (n+1)*Dim]
	Elements []Element
	Regions  []Region

	// Periodic maps a secondary node to its primary node.
	Periodic map[int]int

	// Owner is the owning rank of each node, nil before partitioning.
	Owner []int
	// EToP is the partition of each element, nil before partitioning.
	EToP []int
	// NumRanks and Axis describe the partitioning that produced Owner.
	NumRanks int
	Axis     int

	// GlobalIndex is the canonical index of each node, nil before
	// synchronization.
	GlobalIndex []int

	regionIndex map[string]int
}

// New creates an empty mesh.
func New(dim int) *Mesh {
	return &Mesh{
		Dim:         dim,
		Periodic:    make(map[int]int),
		regionIndex: make(map[string]int),
	}
}

// NumNodes returns the number of nodes.
func (m *Mesh) NumNodes() int {
	if m.Dim == 0 {
		return 0
	}
	return len(m.Coords) / m.Dim
}

// NumElements returns the number of elements, cells and faces together.
func (m *Mesh) NumElements() int { return len(m.Elements) }

// NumCells returns the number of elements of the mesh dimension.
func (m *Mesh) NumCells() int {
	n := 0
	for i := range m.Elements {
		if m.IsCell(i) {
			n++
		}
	}
	return n
}

// IsCell reports whether element e is a volume (2D: area) element.
func (m *Mesh) IsCell(e int) bool { return m.Elements[e].Cell < 0 }

// Cells returns the ids of all cells in increasing order.
func (m *Mesh) Cells() []int {
	cells := make([]int, 0, len(m.Elements))
	for i := range m.Elements {
		if m.IsCell(i) {
			cells = append(cells, i)
		}
	}
	return cells
}

// AddNode appends a node and returns its id.
func (m *Mesh) AddNode(coords []float64) int {
	id := m.NumNodes()
	m.Coords = append(m.Coords, coords[:m.Dim]...)
	return id
}

// AddElement appends an element and returns its id.
func (m *Mesh) AddElement(e Element) int {
	m.Elements = append(m.Elements, e)
	return len(m.Elements) - 1
}

// AddRegion appends elements to the named region, creating it if needed.
func (m *Mesh) AddRegion(name string, elements ...int) {
	if m.regionIndex == nil {
		m.reindexRegions()
	}
	idx, ok := m.regionIndex[name]
	if !ok {
		idx = len(m.Regions)
		m.regionIndex[name] = idx
		m.Regions = append(m.Regions, Region{Name: name})
	}
	m.Regions[idx].Elements = append(m.Regions[idx].Elements, elements...)
}

// Region returns the element ids of the named region.
func (m *Mesh) Region(name string) ([]int, bool) {
	if m.regionIndex == nil {
		m.reindexRegions()
	}
	idx, ok := m.regionIndex[name]
	if !ok {
		return nil, false
	}
	return m.Regions[idx].Elements, true
}

// RegionNames returns the region names in creation order.
func (m *Mesh) RegionNames() []string {
	names := make([]string, len(m.Regions))
	for i, r := range m.Regions {
		names[i] = r.Name
	}
	return names
}

// RegionNodes returns the sorted, unique node ids referenced by a region.
func (m *Mesh) RegionNodes(name string) ([]int, error) {
	elems, ok := m.Region(name)
	if !ok {
		return nil, fmt.Errorf("mesh: unknown region %q", name)
	}
	seen := make(map[int]bool)
	var nodes []int
	for _, e := range elems {
		for _, n := range m.Elements[e].Nodes {
			if !seen[n] {
				seen[n] = true
				nodes = append(nodes, n)
			}
		}
	}
	sort.Ints(nodes)
	return nodes, nil
}

// NodeCoords returns the coordinates of node n. The slice aliases the mesh
// table and must not be modified.
func (m *Mesh) NodeCoords(n int) []float64 {
	return m.Coords[n*m.Dim : (n+1)*m.Dim : (n+1)*m.Dim]
}

// ElementNodes returns the ordered node ids of element e.
func (m *Mesh) ElementNodes(e int) []int { return m.Elements[e].Nodes }

// Centroid returns the arithmetic mean of the nodes of element e.
func (m *Mesh) Centroid(e int) []float64 {
	c := make([]float64, m.Dim)
	nodes := m.Elements[e].Nodes
	for _, n := range nodes {
		for d, x := range m.NodeCoords(n) {
			c[d] += x
		}
	}
	for d := range c {
		c[d] /= float64(len(nodes))
	}
	return c
}

// Primary resolves the periodic chain of node n to its root. Nodes without
// a periodic partner are their own primary.
func (m *Mesh) Primary(n int) int {
	for i := 0; i <= len(m.Periodic); i++ {
		p, ok := m.Periodic[n]
		if !ok {
			return n
		}
		n = p
	}
	panic(fmt.Sprintf("mesh: periodic chain from node %d does not terminate", n))
}

// IsSecondary reports whether node n maps to another node.
func (m *Mesh) IsSecondary(n int) bool {
	_, ok := m.Periodic[n]
	return ok
}

// OwnerOf returns the owning rank of node n, or -1 before partitioning.
func (m *Mesh) OwnerOf(n int) int {
	if m.Owner == nil {
		return -1
	}
	return m.Owner[n]
}

// GlobalIndexOf returns the canonical global index of node n, or -1 before
// synchronization.
func (m *Mesh) GlobalIndexOf(n int) int {
	if m.GlobalIndex == nil {
		return -1
	}
	return m.GlobalIndex[n]
}

// ElementGlobalNodes returns the node tuple of element e renumbered with
// global indices.
func (m *Mesh) ElementGlobalNodes(e int) ([]int, error) {
	if m.GlobalIndex == nil {
		return nil, fmt.Errorf("mesh: global indices not computed")
	}
	nodes := m.Elements[e].Nodes
	out := make([]int, len(nodes))
	for i, n := range nodes {
		out[i] = m.GlobalIndex[n]
	}
	return out, nil
}

// NumGlobalNodes returns the number of distinct global indices.
func (m *Mesh) NumGlobalNodes() int {
	if m.GlobalIndex == nil {
		return 0
	}
	return m.NumNodes() - len(m.Periodic)
}

func (m *Mesh) reindexRegions() {
	m.regionIndex = make(map[string]int, len(m.Regions))
	for i, r := range m.Regions {
		m.regionIndex[r.Name] = i
	}
}
