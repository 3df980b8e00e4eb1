package partitions

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/notargets/blockmesh/mesh"
)

// PartitionBuilder splits the cells of a mesh into contiguous partitions
type PartitionBuilder struct {
	Mesh *mesh.Mesh

	// Partitioning parameters
	NumPartitions int
	Direction     int // Logical axis used by AxisPartition
	Strategy      PartitionStrategy
}

// PartitionStrategy defines how cells are grouped
type PartitionStrategy int

const (
	AxisPartition  PartitionStrategy = iota // Contiguous ranges of centroid projection
	BlockPartition                          // Contiguous ranges of cell id
	RoundRobin                              // Distribute cyclically
)

var strategyNames = [...]string{"axis", "block", "roundrobin"}

func (s PartitionStrategy) String() string {
	if s >= 0 && int(s) < len(strategyNames) {
		return strategyNames[s]
	}
	return fmt.Sprintf("PartitionStrategy(%d)", int(s))
}

// ParseStrategy returns the strategy with the given name.
func ParseStrategy(name string) (PartitionStrategy, error) {
	for i, n := range strategyNames {
		if strings.EqualFold(name, n) {
			return PartitionStrategy(i), nil
		}
	}
	return 0, fmt.Errorf("unknown partition strategy %q (want one of %s)",
		name, strings.Join(strategyNames[:], ", "))
}

// NewPartitionBuilder creates a builder for the mesh
func NewPartitionBuilder(m *mesh.Mesh, numPartitions, direction int, strategy PartitionStrategy) *PartitionBuilder {
	return &PartitionBuilder{
		Mesh:          m,
		NumPartitions: numPartitions,
		Direction:     direction,
		Strategy:      strategy,
	}
}

// BuildPartitions creates a partition layout. Cells are assigned by the
// strategy, boundary faces follow their bounding cell, and each node is
// owned by the lowest partition whose elements reference it. The mesh is not
// modified; see PartitionLayout.Apply.
func (pb *PartitionBuilder) BuildPartitions() (*PartitionLayout, error) {
	if err := pb.validate(); err != nil {
		return nil, err
	}
	numPartitions := pb.NumPartitions

	// Partition the cells, then the faces
	eToP := pb.partitionElements(numPartitions)

	// Create partition structures
	partitions := pb.createPartitions(eToP, numPartitions)

	owner := pb.assignNodes(partitions)

	// Calculate KpartMax
	kpartMax := pb.calculateKpartMax(partitions)

	// Set MaxElements for all partitions
	for i := range partitions {
		partitions[i].MaxElements = kpartMax
	}

	// Create the layout
	layout := &PartitionLayout{
		Partitions:    partitions,
		KpartMax:      kpartMax,
		TotalElements: pb.Mesh.NumElements(),
		NumPartitions: numPartitions,
		EToP:          eToP,
		Owner:         owner,
		Axis:          pb.Direction,
		Strategy:      pb.Strategy,
	}

	// Validate the layout
	if err := layout.ValidateLayout(); err != nil {
		return nil, fmt.Errorf("invalid partition layout: %w", err)
	}

	return layout, nil
}

func (pb *PartitionBuilder) validate() error {
	if pb.Mesh == nil {
		return &PartitionError{NumPartitions: pb.NumPartitions, Axis: pb.Direction, Reason: "no mesh"}
	}
	numCells := pb.Mesh.NumCells()
	perr := func(format string, args ...any) error {
		return &PartitionError{
			NumPartitions: pb.NumPartitions,
			NumCells:      numCells,
			Axis:          pb.Direction,
			Reason:        fmt.Sprintf(format, args...),
		}
	}
	switch {
	case pb.NumPartitions < 1:
		return perr("partition count must be at least 1")
	case pb.NumPartitions > numCells:
		return perr("more partitions than cells, a partition would be empty")
	case pb.Direction < 0 || pb.Direction >= pb.Mesh.Dim:
		return perr("direction out of range for a %dD mesh", pb.Mesh.Dim)
	case pb.Strategy < AxisPartition || pb.Strategy > RoundRobin:
		return perr("unknown strategy %v", pb.Strategy)
	}
	return nil
}

// partitionElements assigns elements to partitions
func (pb *PartitionBuilder) partitionElements(numPartitions int) []int {
	m := pb.Mesh
	cells := m.Cells()
	eToP := make([]int, m.NumElements())

	switch pb.Strategy {
	case AxisPartition:
		key := make(map[int]float64, len(cells))
		for _, c := range cells {
			key[c] = m.Centroid(c)[pb.Direction]
		}
		sort.SliceStable(cells, func(i, j int) bool {
			ki, kj := key[cells[i]], key[cells[j]]
			if ki != kj {
				return ki < kj
			}
			return cells[i] < cells[j]
		})
		assignRanges(cells, numPartitions, eToP)

	case BlockPartition:
		assignRanges(cells, numPartitions, eToP)

	case RoundRobin:
		// Distribute cells cyclically
		for i, c := range cells {
			eToP[c] = i % numPartitions
		}
	}

	// Boundary faces follow their cell
	for e := range m.Elements {
		if !m.IsCell(e) {
			eToP[e] = eToP[m.Elements[e].Cell]
		}
	}
	return eToP
}

// assignRanges cuts ordered cells into numPartitions contiguous ranges; the
// first len(cells) % numPartitions ranges get one extra cell.
func assignRanges(ordered []int, numPartitions int, eToP []int) {
	base := len(ordered) / numPartitions
	extra := len(ordered) % numPartitions
	i := 0
	for p := 0; p < numPartitions; p++ {
		size := base
		if p < extra {
			size++
		}
		for _, c := range ordered[i : i+size] {
			eToP[c] = p
		}
		i += size
	}
}

// createPartitions builds partition structures from element assignments
func (pb *PartitionBuilder) createPartitions(eToP []int, numPartitions int) []Partition {
	partitions := make([]Partition, numPartitions)

	// Initialize partitions
	for i := range partitions {
		partitions[i] = Partition{
			ID:           i,
			Elements:     make([]int, 0),
			ElementTypes: make([]mesh.GeometryType, 0),
		}
	}

	// Assign elements to partitions
	for elem, part := range eToP {
		partitions[part].Elements = append(partitions[part].Elements, elem)
		partitions[part].ElementTypes = append(partitions[part].ElementTypes,
			pb.Mesh.Elements[elem].Type)
		partitions[part].NumElements++
		if pb.Mesh.IsCell(elem) {
			partitions[part].NumCells++
		}
	}

	// Create element groups
	for i := range partitions {
		partitions[i].TypeGroups = pb.createElementGroups(&partitions[i])
	}

	return partitions
}

// createElementGroups organizes elements by type within a partition. Groups
// are ordered by geometry type.
func (pb *PartitionBuilder) createElementGroups(p *Partition) []ElementGroup {
	if len(p.ElementTypes) == 0 {
		return nil
	}

	// Count elements by type
	typeCounts := make(map[mesh.GeometryType][]int)
	for i, elemType := range p.ElementTypes {
		typeCounts[elemType] = append(typeCounts[elemType], i)
	}
	types := make([]mesh.GeometryType, 0, len(typeCounts))
	for t := range typeCounts {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	// Create groups
	groups := make([]ElementGroup, 0, len(typeCounts))
	currentIndex := 0

	for _, elemType := range types {
		indices := typeCounts[elemType]
		groups = append(groups, ElementGroup{
			ElementType: elemType,
			StartIndex:  currentIndex,
			Count:       len(indices),
			Np:          elemType.NumVertices(),
			LocalIDs:    indices,
		})
		currentIndex += len(indices)
	}

	return groups
}

// assignNodes gives every node to the lowest partition referencing it and
// records it as a ghost in the others.
func (pb *PartitionBuilder) assignNodes(partitions []Partition) []int {
	m := pb.Mesh
	owner := make([]int, m.NumNodes())
	for i := range owner {
		owner[i] = math.MaxInt
	}
	referenced := make([][]bool, len(partitions))
	for p := range partitions {
		referenced[p] = make([]bool, m.NumNodes())
		for _, e := range partitions[p].Elements {
			for _, n := range m.Elements[e].Nodes {
				referenced[p][n] = true
				if p < owner[n] {
					owner[n] = p
				}
			}
		}
	}
	for p := range partitions {
		for n, ok := range referenced[p] {
			switch {
			case !ok:
			case owner[n] == p:
				partitions[p].OwnedNodes = append(partitions[p].OwnedNodes, n)
			default:
				partitions[p].GhostNodes = append(partitions[p].GhostNodes, n)
			}
		}
	}
	return owner
}

// calculateKpartMax finds maximum elements across all partitions
func (pb *PartitionBuilder) calculateKpartMax(partitions []Partition) int {
	kpartMax := 0
	for _, p := range partitions {
		if p.NumElements > kpartMax {
			kpartMax = p.NumElements
		}
	}
	return kpartMax
}

// PartitionStatistics computes load balance metrics over cells. When conn is
// non-nil the number of cell faces cut by partition boundaries is counted.
func (layout *PartitionLayout) PartitionStatistics(conn *MeshConnectivity) PartitionStats {
	totalCells := 0
	for _, p := range layout.Partitions {
		totalCells += p.NumCells
	}
	stats := PartitionStats{
		NumPartitions: layout.NumPartitions,
		MinElements:   math.MaxInt32,
		MaxElements:   0,
		AvgElements:   float64(totalCells) / float64(layout.NumPartitions),
	}

	for _, p := range layout.Partitions {
		if p.NumCells < stats.MinElements {
			stats.MinElements = p.NumCells
		}
		if p.NumCells > stats.MaxElements {
			stats.MaxElements = p.NumCells
		}
		stats.GhostNodes += len(p.GhostNodes)
	}

	stats.Imbalance = float64(stats.MaxElements) / stats.AvgElements

	if conn != nil {
		for k, neighbors := range conn.EToE {
			for _, n := range neighbors {
				if n > k && layout.GetPartition(conn.Cells[n]) != layout.GetPartition(conn.Cells[k]) {
					stats.CutFaces++
				}
			}
		}
	}

	return stats
}

type PartitionStats struct {
	NumPartitions int
	MinElements   int
	MaxElements   int
	AvgElements   float64
	Imbalance     float64 // MaxElements / AvgElements
	GhostNodes    int     // Ghost entries summed over partitions
	CutFaces      int     // Cell faces shared by two partitions
}
