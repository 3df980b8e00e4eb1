package codec

import (
	"math"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/notargets/blockmesh/mesh"
)

// Diff compares two meshes entity by entity and returns a *CodecError with
// stage "diff" describing the first mismatch, or nil when they are equal.
// Coordinates are compared bit for bit.
func Diff(a, b *mesh.Mesh) error {
	if a.Dim != b.Dim {
		return codecErr("diff", -1, -1, "dimension %d != %d", a.Dim, b.Dim)
	}
	if a.NumNodes() != b.NumNodes() {
		return codecErr("diff", -1, -1, "%d nodes != %d", a.NumNodes(), b.NumNodes())
	}
	for n := 0; n < a.NumNodes(); n++ {
		xa, xb := a.NodeCoords(n), b.NodeCoords(n)
		for d := range xa {
			if math.Float64bits(xa[d]) != math.Float64bits(xb[d]) {
				return codecErr("diff", n, -1, "coordinate %d: %v != %v", d, xa[d], xb[d])
			}
		}
		if ga, gb := a.GlobalIndexOf(n), b.GlobalIndexOf(n); ga != gb {
			return codecErr("diff", n, -1, "global index %d != %d", ga, gb)
		}
		if oa, ob := a.OwnerOf(n), b.OwnerOf(n); oa != ob {
			return codecErr("diff", n, -1, "owner %d != %d", oa, ob)
		}
		if pa, pb := a.Primary(n), b.Primary(n); pa != pb {
			return codecErr("diff", n, -1, "periodic primary %d != %d", pa, pb)
		}
	}

	if a.NumElements() != b.NumElements() {
		return codecErr("diff", -1, -1, "%d elements != %d", a.NumElements(), b.NumElements())
	}
	for e := range a.Elements {
		ea, eb := a.Elements[e], b.Elements[e]
		if ea.Type != eb.Type || ea.Block != eb.Block || ea.Cell != eb.Cell {
			return codecErr("diff", -1, e, "%v of block %d (cell %d) != %v of block %d (cell %d)",
				ea.Type, ea.Block, ea.Cell, eb.Type, eb.Block, eb.Cell)
		}
		if !cmp.Equal(ea.Nodes, eb.Nodes) {
			return codecErr("diff", -1, e, "nodes %v != %v", ea.Nodes, eb.Nodes)
		}
		if a.GlobalIndex != nil && b.GlobalIndex != nil {
			ga, _ := a.ElementGlobalNodes(e)
			gb, _ := b.ElementGlobalNodes(e)
			if !cmp.Equal(ga, gb) {
				return codecErr("diff", -1, e, "global nodes %v != %v", ga, gb)
			}
		}
		if pa, pb := partitionOf(a, e), partitionOf(b, e); pa != pb {
			return codecErr("diff", -1, e, "partition %d != %d", pa, pb)
		}
	}

	if d := cmp.Diff(a.Regions, b.Regions, cmpopts.EquateEmpty()); d != "" {
		return codecErr("diff", -1, -1, "regions differ (-a +b):\n%s", d)
	}
	if a.NumRanks != b.NumRanks || a.Axis != b.Axis {
		return codecErr("diff", -1, -1, "partitioning %d ranks along %d != %d ranks along %d",
			a.NumRanks, a.Axis, b.NumRanks, b.Axis)
	}
	return nil
}

func partitionOf(m *mesh.Mesh, e int) int {
	if m.EToP == nil {
		return -1
	}
	return m.EToP[e]
}
