package mesh

import "fmt"

// PartitionView enumerates what one rank holds, for export layers that write
// one piece per rank.
type PartitionView struct {
	Rank int

	// Nodes are the node ids referenced by the rank's elements, owned nodes
	// first, each group in increasing id.
	Nodes    []int
	NumOwned int

	// Elements are the element ids assigned to the rank in increasing id.
	Elements []int
}

// PartitionView returns the nodes and elements assigned to a rank.
func (m *Mesh) PartitionView(rank int) (PartitionView, error) {
	if m.EToP == nil || m.Owner == nil {
		return PartitionView{}, fmt.Errorf("mesh: not partitioned")
	}
	if rank < 0 || rank >= m.NumRanks {
		return PartitionView{}, fmt.Errorf("mesh: rank %d out of range [0, %d)", rank, m.NumRanks)
	}
	v := PartitionView{Rank: rank}
	referenced := make([]bool, m.NumNodes())
	for e, p := range m.EToP {
		if p != rank {
			continue
		}
		v.Elements = append(v.Elements, e)
		for _, n := range m.Elements[e].Nodes {
			referenced[n] = true
		}
	}
	var ghosts []int
	for n, ok := range referenced {
		if !ok {
			continue
		}
		if m.Owner[n] == rank {
			v.Nodes = append(v.Nodes, n)
		} else {
			ghosts = append(ghosts, n)
		}
	}
	v.NumOwned = len(v.Nodes)
	v.Nodes = append(v.Nodes, ghosts...)
	return v, nil
}
