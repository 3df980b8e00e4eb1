package partitions

import (
	"fmt"
	"sort"

	"github.com/notargets/blockmesh/mesh"
	"github.com/notargets/blockmesh/utils"
)

// Partition is the share of the mesh assigned to one rank
type Partition struct {
	// Unique identifier for this partition, equal to its rank
	ID int

	// Element membership
	Elements    []int // Global element ids in this partition, increasing
	NumElements int   // Cells and boundary faces
	NumCells    int   // Cells only
	MaxElements int   // KpartMax, the same for every partition

	// Element types, grouped for type-specific consumers
	ElementTypes []mesh.GeometryType
	TypeGroups   []ElementGroup

	// Node bookkeeping, both increasing
	OwnedNodes []int // Nodes whose lowest referencing partition is this one
	GhostNodes []int // Nodes referenced here but owned by another partition

	// PeriodicExchange lists, per neighbouring partition, the periodic pairs
	// whose secondary and primary nodes are owned on different sides
	PeriodicExchange map[int][]PeriodicPair
}

// PeriodicPair is one secondary -> primary identity crossing partitions
type PeriodicPair struct {
	Secondary int
	Primary   int
}

// ElementGroup represents elements of the same type within a partition
type ElementGroup struct {
	ElementType mesh.GeometryType
	StartIndex  int   // Starting position in partition's element array
	Count       int   // Number of elements of this type
	Np          int   // Nodes per element for this type
	LocalIDs    []int // Indices within the partition
}

// PartitionLayout manages the complete mesh decomposition
type PartitionLayout struct {
	// All partitions in the mesh
	Partitions []Partition

	// Global sizing information
	KpartMax      int // max(NumElements) across all partitions
	TotalElements int // Sum of all actual elements across partitions
	NumPartitions int // Total number of partitions

	// Element to partition mapping
	EToP []int // Length TotalElements: element k belongs to partition EToP[k]

	// Node to owning partition mapping
	Owner []int

	// How the cells were split
	Axis     int
	Strategy PartitionStrategy
}

// GetPartition returns the partition containing element k
func (pl *PartitionLayout) GetPartition(elementID int) int {
	if elementID < 0 || elementID >= len(pl.EToP) {
		return -1
	}
	return pl.EToP[elementID]
}

// LocalNodes returns the node list of partition p, owned nodes first, then
// ghost nodes.
func (pl *PartitionLayout) LocalNodes(p int) []int {
	part := pl.Partitions[p]
	nodes := make([]int, 0, len(part.OwnedNodes)+len(part.GhostNodes))
	nodes = append(nodes, part.OwnedNodes...)
	return append(nodes, part.GhostNodes...)
}

// GhostConnector builds the ghost exchange plan for the layout.
func (pl *PartitionLayout) GhostConnector() (*utils.GhostConnector, error) {
	localNodes := make([][]int, pl.NumPartitions)
	numOwned := make([]int, pl.NumPartitions)
	for p := range pl.Partitions {
		localNodes[p] = pl.LocalNodes(p)
		numOwned[p] = len(pl.Partitions[p].OwnedNodes)
	}
	return utils.NewGhostConnector(pl.Owner, localNodes, numOwned)
}

// AddPeriodicPair records a periodic identity in the exchange sets of both
// owning partitions. Pairs owned by a single partition need no exchange.
func (pl *PartitionLayout) AddPeriodicPair(secondary, primary int) {
	ps, pp := pl.Owner[secondary], pl.Owner[primary]
	if ps == pp {
		return
	}
	pair := PeriodicPair{Secondary: secondary, Primary: primary}
	for _, e := range [][2]int{{ps, pp}, {pp, ps}} {
		part := &pl.Partitions[e[0]]
		if part.PeriodicExchange == nil {
			part.PeriodicExchange = make(map[int][]PeriodicPair)
		}
		part.PeriodicExchange[e[1]] = append(part.PeriodicExchange[e[1]], pair)
	}
}

// PeriodicNeighbors returns the partitions p exchanges periodic pairs with,
// in increasing order.
func (p *Partition) PeriodicNeighbors() []int {
	out := make([]int, 0, len(p.PeriodicExchange))
	for q := range p.PeriodicExchange {
		out = append(out, q)
	}
	sort.Ints(out)
	return out
}

// Apply annotates the mesh with ownership and element placement.
func (pl *PartitionLayout) Apply(m *mesh.Mesh) {
	m.Owner = append([]int(nil), pl.Owner...)
	m.EToP = append([]int(nil), pl.EToP...)
	m.NumRanks = pl.NumPartitions
	m.Axis = pl.Axis
}

// ValidateLayout checks partition consistency
func (pl *PartitionLayout) ValidateLayout() error {
	// Verify KpartMax
	actualMax := 0
	total := 0
	for _, p := range pl.Partitions {
		if p.NumElements > actualMax {
			actualMax = p.NumElements
		}
		if p.MaxElements != pl.KpartMax {
			return fmt.Errorf("partition %d: MaxElements %d != KpartMax %d",
				p.ID, p.MaxElements, pl.KpartMax)
		}
		if p.NumCells == 0 {
			return fmt.Errorf("partition %d has no cells", p.ID)
		}
		total += p.NumElements
	}
	if actualMax != pl.KpartMax {
		return fmt.Errorf("computed KpartMax %d != stored KpartMax %d",
			actualMax, pl.KpartMax)
	}
	if total != pl.TotalElements {
		return fmt.Errorf("partitions hold %d elements, mesh has %d", total, pl.TotalElements)
	}

	// Every node is owned once and ghosted only by higher partitions
	owned := make([]int, len(pl.Owner))
	for i := range owned {
		owned[i] = -1
	}
	for _, p := range pl.Partitions {
		for _, n := range p.OwnedNodes {
			if owned[n] >= 0 {
				return fmt.Errorf("node %d owned by partitions %d and %d", n, owned[n], p.ID)
			}
			if pl.Owner[n] != p.ID {
				return fmt.Errorf("node %d listed as owned by %d, owner is %d", n, p.ID, pl.Owner[n])
			}
			owned[n] = p.ID
		}
		for _, n := range p.GhostNodes {
			if pl.Owner[n] >= p.ID {
				return fmt.Errorf("ghost node %d of partition %d has owner %d", n, p.ID, pl.Owner[n])
			}
		}
	}
	for n, p := range owned {
		if p < 0 {
			return fmt.Errorf("node %d has no owner", n)
		}
	}

	for _, p := range pl.Partitions {
		if err := pl.validateGroups(&p); err != nil {
			return err
		}
	}
	return nil
}

// validateGroups checks that the type groups of p cover its elements once,
// in type order, with matching types and placement.
func (pl *PartitionLayout) validateGroups(p *Partition) error {
	next := 0
	for i, g := range p.TypeGroups {
		if i > 0 && g.ElementType <= p.TypeGroups[i-1].ElementType {
			return fmt.Errorf("partition %d: type groups out of order at %v", p.ID, g.ElementType)
		}
		if g.StartIndex != next || g.Count != len(g.LocalIDs) {
			return fmt.Errorf("partition %d: %v group starts at %d with %d of %d ids, want start %d",
				p.ID, g.ElementType, g.StartIndex, len(g.LocalIDs), g.Count, next)
		}
		if g.Np != g.ElementType.NumVertices() {
			return fmt.Errorf("partition %d: %v group has Np %d", p.ID, g.ElementType, g.Np)
		}
		for _, l := range g.LocalIDs {
			if l < 0 || l >= len(p.Elements) || p.ElementTypes[l] != g.ElementType {
				return fmt.Errorf("partition %d: local element %d is not a %v", p.ID, l, g.ElementType)
			}
			if owner := pl.GetPartition(p.Elements[l]); owner != p.ID {
				return fmt.Errorf("partition %d: element %d belongs to partition %d",
					p.ID, p.Elements[l], owner)
			}
		}
		next += g.Count
	}
	if next != p.NumElements {
		return fmt.Errorf("partition %d: type groups hold %d of %d elements", p.ID, next, p.NumElements)
	}
	return nil
}
