package utils

import (
	"fmt"
	"testing"
)

// Helper function to simulate the ghost exchange
func simulateGhostExchange(gc *GhostConnector, values [][]float64) error {
	// Phase 1: Pick - gather from owned slots using pick indices
	sendBuffers := make([][][]float64, gc.NumPartitions)
	for p := 0; p < gc.NumPartitions; p++ {
		sendBuffers[p] = make([][]float64, gc.NumPartitions)
		for q := 0; q < gc.NumPartitions; q++ {
			pick := gc.GetPickIndices(p, q)
			sendBuffers[p][q] = make([]float64, len(pick))
			for i, idx := range pick {
				if idx >= len(values[p]) {
					return fmt.Errorf("pick index %d out of bounds for partition %d", idx, p)
				}
				sendBuffers[p][q][i] = values[p][idx]
			}
		}
	}

	// Phase 2: Place - scatter received values into ghost slots
	for p := 0; p < gc.NumPartitions; p++ {
		for q := 0; q < gc.NumPartitions; q++ {
			place := gc.GetPlaceIndices(p, q)
			recv := sendBuffers[q][p]
			for i, idx := range place {
				values[p][idx] = recv[i]
			}
		}
	}
	return nil
}

// Two partitions of a strip of 2x3 nodes: partition 0 owns the left column
// pair and the shared middle column, partition 1 sees the middle column as
// ghosts.
//
//	3 - 4 - 5
//	|   |   |
//	0 - 1 - 2
func stripConnector(t *testing.T) *GhostConnector {
	t.Helper()
	owner := []int{0, 0, 1, 0, 0, 1}
	localNodes := [][]int{
		{0, 1, 3, 4},
		{2, 5, 1, 4},
	}
	gc, err := NewGhostConnector(owner, localNodes, []int{4, 2})
	if err != nil {
		t.Fatalf("Failed to create GhostConnector: %v", err)
	}
	return gc
}

func TestGhostConnector_Strip(t *testing.T) {
	gc := stripConnector(t)

	if err := gc.Verify(); err != nil {
		t.Fatalf("Verification failed: %v", err)
	}

	pick := gc.GetPickIndices(0, 1)
	if len(pick) != 2 || pick[0] != 1 || pick[1] != 3 {
		t.Errorf("Expected pick [1 3] from partition 0 to 1, got %v", pick)
	}
	place := gc.GetPlaceIndices(1, 0)
	if len(place) != 2 || place[0] != 2 || place[1] != 3 {
		t.Errorf("Expected place [2 3] in partition 1, got %v", place)
	}
	if len(gc.GetPickIndices(1, 0)) != 0 {
		t.Errorf("Partition 1 owns nothing partition 0 needs")
	}
	if n := gc.Neighbors(1); len(n) != 1 || n[0] != 0 {
		t.Errorf("Expected neighbours [0] for partition 1, got %v", n)
	}
}

func TestGhostConnector_ExchangeValues(t *testing.T) {
	gc := stripConnector(t)

	// every owned slot holds its node id, ghost slots start at -1
	values := make([][]float64, gc.NumPartitions)
	for p := range values {
		values[p] = make([]float64, len(gc.LocalNodes[p]))
		for slot, node := range gc.LocalNodes[p] {
			if slot < gc.NumOwned[p] {
				values[p][slot] = float64(node)
			} else {
				values[p][slot] = -1
			}
		}
	}

	if err := simulateGhostExchange(gc, values); err != nil {
		t.Fatalf("Failed to simulate ghost exchange: %v", err)
	}

	for p := range values {
		for slot, node := range gc.LocalNodes[p] {
			if values[p][slot] != float64(node) {
				t.Errorf("Partition %d slot %d: expected node %d, got %f", p, slot, node, values[p][slot])
			}
		}
	}
}

func TestGhostConnector_InvalidInput(t *testing.T) {
	owner := []int{0, 0, 1}
	tests := []struct {
		name       string
		localNodes [][]int
		numOwned   []int
	}{
		{"NoPartitions", nil, nil},
		{"OwnedCountMismatch", [][]int{{0, 1}, {2}}, []int{2}},
		{"GhostInOwnedSlots", [][]int{{0, 1, 2}, {2}}, []int{3, 1}},
		{"DuplicateNode", [][]int{{0, 1, 1}, {2}}, []int{2, 1}},
		{"NodeOutOfRange", [][]int{{0, 1, 7}, {2}}, []int{2, 1}},
		{"GhostMissingFromOwner", [][]int{{0}, {2, 1}}, []int{1, 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewGhostConnector(owner, tc.localNodes, tc.numOwned); err == nil {
				t.Errorf("Expected error for %s", tc.name)
			}
		})
	}
}
