package utils

import (
	"fmt"
)

// GhostConnector manages pick and place indices for the ghost node exchange
// of a partitioned mesh. Each partition stores its nodes in a local array,
// owned nodes first and ghost nodes after them. A ghost slot is filled by
// picking the value at the owner's local slot and placing it at the ghost
// slot of the receiving partition.
type GhostConnector struct {
	NumPartitions int
	NumNodes      int

	// Input
	Owner      []int   // node -> owning partition
	LocalNodes [][]int // [partition][localSlot] -> node, owned nodes first
	NumOwned   []int   // owned slots per partition

	// Partition mappings
	GlobalToLocal []map[int]int // [partition][node] -> localSlot

	// Pick/Place indices per partition
	PickIndices  [][]PickBuffer  // [sourcePartition][targetPartition]
	PlaceIndices [][]PlaceBuffer // [targetPartition][sourcePartition]
}

// PickBuffer contains local slots gathered for sending
type PickBuffer struct {
	Indices         []int
	TargetPartition int
}

// PlaceBuffer contains local slots receiving values
type PlaceBuffer struct {
	Indices         []int
	SourcePartition int
}

// NewGhostConnector creates a ghost connector from node ownership and the
// local node lists of every partition.
func NewGhostConnector(owner []int, localNodes [][]int, numOwned []int) (*GhostConnector, error) {
	numPartitions := len(localNodes)
	if numPartitions == 0 {
		return nil, fmt.Errorf("no partitions")
	}
	if len(numOwned) != numPartitions {
		return nil, fmt.Errorf("numOwned length %d does not match %d partitions", len(numOwned), numPartitions)
	}
	for p, n := range numOwned {
		if n < 0 || n > len(localNodes[p]) {
			return nil, fmt.Errorf("partition %d: %d owned slots out of %d", p, n, len(localNodes[p]))
		}
	}

	gc := &GhostConnector{
		NumPartitions: numPartitions,
		NumNodes:      len(owner),
		Owner:         owner,
		LocalNodes:    localNodes,
		NumOwned:      numOwned,
	}

	if err := gc.buildPartitionMappings(); err != nil {
		return nil, err
	}

	gc.initializeBuffers()

	if err := gc.BuildIndices(); err != nil {
		return nil, err
	}

	return gc, nil
}

// buildPartitionMappings creates the node -> local slot maps and checks that
// owned slots hold nodes owned by the partition.
func (gc *GhostConnector) buildPartitionMappings() error {
	gc.GlobalToLocal = make([]map[int]int, gc.NumPartitions)
	for p := 0; p < gc.NumPartitions; p++ {
		gc.GlobalToLocal[p] = make(map[int]int, len(gc.LocalNodes[p]))
		for slot, node := range gc.LocalNodes[p] {
			if node < 0 || node >= gc.NumNodes {
				return fmt.Errorf("partition %d: node %d out of range", p, node)
			}
			if _, dup := gc.GlobalToLocal[p][node]; dup {
				return fmt.Errorf("partition %d: node %d appears twice", p, node)
			}
			owned := slot < gc.NumOwned[p]
			if owned != (gc.Owner[node] == p) {
				return fmt.Errorf("partition %d: node %d owned by %d in slot %d", p, node, gc.Owner[node], slot)
			}
			gc.GlobalToLocal[p][node] = slot
		}
	}
	return nil
}

// initializeBuffers creates empty pick and place buffer structures
func (gc *GhostConnector) initializeBuffers() {
	gc.PickIndices = make([][]PickBuffer, gc.NumPartitions)
	gc.PlaceIndices = make([][]PlaceBuffer, gc.NumPartitions)

	for p := 0; p < gc.NumPartitions; p++ {
		gc.PickIndices[p] = make([]PickBuffer, gc.NumPartitions)
		gc.PlaceIndices[p] = make([]PlaceBuffer, gc.NumPartitions)

		for q := 0; q < gc.NumPartitions; q++ {
			gc.PickIndices[p][q] = PickBuffer{
				Indices:         make([]int, 0),
				TargetPartition: q,
			}
			gc.PlaceIndices[p][q] = PlaceBuffer{
				Indices:         make([]int, 0),
				SourcePartition: q,
			}
		}
	}
}

// BuildIndices constructs pick and place indices for all partitions. Ghost
// slots are visited in slot order so both sides agree on buffer order.
func (gc *GhostConnector) BuildIndices() error {
	for p := 0; p < gc.NumPartitions; p++ {
		for slot := gc.NumOwned[p]; slot < len(gc.LocalNodes[p]); slot++ {
			node := gc.LocalNodes[p][slot]
			source := gc.Owner[node]
			if source < 0 || source >= gc.NumPartitions {
				return fmt.Errorf("node %d has invalid owner %d", node, source)
			}

			sourceSlot, ok := gc.GlobalToLocal[source][node]
			if !ok {
				return fmt.Errorf("ghost node %d of partition %d is missing from owner %d", node, p, source)
			}

			gc.PickIndices[source][p].Indices = append(gc.PickIndices[source][p].Indices, sourceSlot)
			gc.PlaceIndices[p][source].Indices = append(gc.PlaceIndices[p][source].Indices, slot)
		}
	}

	return nil
}

// GetPickIndices returns pick indices for sending from source to target partition
func (gc *GhostConnector) GetPickIndices(sourcePartition, targetPartition int) []int {
	if sourcePartition < 0 || sourcePartition >= gc.NumPartitions ||
		targetPartition < 0 || targetPartition >= gc.NumPartitions {
		return nil
	}
	return gc.PickIndices[sourcePartition][targetPartition].Indices
}

// GetPlaceIndices returns place indices for target partition receiving from source
func (gc *GhostConnector) GetPlaceIndices(targetPartition, sourcePartition int) []int {
	if targetPartition < 0 || targetPartition >= gc.NumPartitions ||
		sourcePartition < 0 || sourcePartition >= gc.NumPartitions {
		return nil
	}
	return gc.PlaceIndices[targetPartition][sourcePartition].Indices
}

// Neighbors returns the partitions that p exchanges ghost values with.
func (gc *GhostConnector) Neighbors(p int) []int {
	var out []int
	for q := 0; q < gc.NumPartitions; q++ {
		if q == p {
			continue
		}
		if len(gc.PickIndices[p][q].Indices) > 0 || len(gc.PlaceIndices[p][q].Indices) > 0 {
			out = append(out, q)
		}
	}
	return out
}

// Verify checks index validity and conservation properties
func (gc *GhostConnector) Verify() error {
	// Local validity - picks come from owned slots, places go to ghost slots
	for p := 0; p < gc.NumPartitions; p++ {
		for q := 0; q < gc.NumPartitions; q++ {
			for _, idx := range gc.PickIndices[p][q].Indices {
				if idx < 0 || idx >= gc.NumOwned[p] {
					return fmt.Errorf("invalid pick index %d for partition %d (owned %d)",
						idx, p, gc.NumOwned[p])
				}
			}
			for _, idx := range gc.PlaceIndices[p][q].Indices {
				if idx < gc.NumOwned[p] || idx >= len(gc.LocalNodes[p]) {
					return fmt.Errorf("invalid place index %d for partition %d", idx, p)
				}
			}
		}
	}

	// Correspondence - pick and place arrays have same length
	for p := 0; p < gc.NumPartitions; p++ {
		for q := 0; q < gc.NumPartitions; q++ {
			pickLen := len(gc.PickIndices[p][q].Indices)
			placeLen := len(gc.PlaceIndices[q][p].Indices)
			if pickLen != placeLen {
				return fmt.Errorf("length mismatch: pick[%d][%d]=%d, place[%d][%d]=%d",
					p, q, pickLen, q, p, placeLen)
			}
		}
	}

	// Conservation - total pick operations equals total ghost slots
	totalPicks := 0
	totalGhosts := 0
	for p := 0; p < gc.NumPartitions; p++ {
		for q := 0; q < gc.NumPartitions; q++ {
			totalPicks += len(gc.PickIndices[p][q].Indices)
		}
		totalGhosts += len(gc.LocalNodes[p]) - gc.NumOwned[p]
	}

	if totalPicks != totalGhosts {
		return fmt.Errorf("conservation error: total picks %d != total ghost slots %d",
			totalPicks, totalGhosts)
	}

	return nil
}
