package topology

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// channel builds the two stacked blocks of a 10x2 channel.
func channel(t *testing.T) *Topology {
	t.Helper()
	topo, err := New(2)
	require.NoError(t, err)
	for _, p := range [][]float64{{0, 0}, {10, 0}, {0, 1}, {10, 1}, {0, 2}, {10, 2}} {
		_, err := topo.AddPoint(p...)
		require.NoError(t, err)
	}
	b0, err := topo.AddBlock(0, 1, 3, 2)
	require.NoError(t, err)
	b1, err := topo.AddBlock(2, 3, 5, 4)
	require.NoError(t, err)
	for _, b := range []int{b0, b1} {
		require.NoError(t, topo.SetSubdivisions(b, 20, 10))
		require.NoError(t, topo.SetGrading(b, 1, 1, 1, 1))
	}
	require.NoError(t, topo.AddPatchFace("left", 2, 0))
	require.NoError(t, topo.AddPatchFace("left", 4, 2))
	require.NoError(t, topo.AddPatchFace("bottom", 0, 1))
	require.NoError(t, topo.AddPatchFace("top", 5, 4))
	require.NoError(t, topo.AddPatchFace("right", 1, 3))
	require.NoError(t, topo.AddPatchFace("right", 3, 5))
	return topo
}

func requireTopologyError(t *testing.T, err error, entity string) {
	t.Helper()
	require.Error(t, err)
	var te *TopologyError
	require.True(t, errors.As(err, &te), "expected TopologyError, got %T: %v", err, err)
	assert.Equal(t, entity, te.Entity)
}

func TestTopology_Channel(t *testing.T) {
	topo := channel(t)
	require.NoError(t, topo.Validate())
	assert.Len(t, topo.Points, 6)
	assert.Len(t, topo.Blocks, 2)

	left, ok := topo.Patch("left")
	require.True(t, ok)
	require.Len(t, left.Faces, 2)
	// face [2,0] is the xi=0 side of block 0
	assert.Equal(t, 0, left.Faces[0].Block)
	assert.Equal(t, 3, left.Faces[0].Side)
	assert.Equal(t, 1, left.Faces[1].Block)

	right, _ := topo.Patch("right")
	assert.Equal(t, 1, right.Faces[0].Side)
}

func TestTopology_PointDimension(t *testing.T) {
	topo, err := New(2)
	require.NoError(t, err)
	_, err = topo.AddPoint(0, 0, 0)
	requireTopologyError(t, err, "point")
}

func TestTopology_InvalidDimension(t *testing.T) {
	_, err := New(4)
	requireTopologyError(t, err, "description")
}

func TestTopology_DanglingCorner(t *testing.T) {
	topo, err := New(2)
	require.NoError(t, err)
	for _, p := range [][]float64{{0, 0}, {1, 0}, {1, 1}} {
		_, err := topo.AddPoint(p...)
		require.NoError(t, err)
	}
	_, err = topo.AddBlock(0, 1, 2, 3)
	requireTopologyError(t, err, "block")
	assert.Empty(t, topo.Blocks)

	_, err = topo.AddBlock(0, 1, 2)
	requireTopologyError(t, err, "block")
}

func TestTopology_Subdivisions(t *testing.T) {
	topo := channel(t)
	err := topo.SetSubdivisions(0, 4, 4)
	requireTopologyError(t, err, "block")
	assert.Equal(t, []int{20, 10}, topo.Blocks[0].Subdivisions, "accepted entries must not change")

	topo2, _ := New(2)
	for _, p := range [][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
		topo2.AddPoint(p...)
	}
	b, err := topo2.AddBlock(0, 1, 2, 3)
	require.NoError(t, err)
	requireTopologyError(t, topo2.SetSubdivisions(b, 0, 3), "block")
	requireTopologyError(t, topo2.SetSubdivisions(b, 3), "block")
	requireTopologyError(t, topo2.SetSubdivisions(7, 3, 3), "block")
	requireTopologyError(t, topo2.Validate(), "block")
}

func TestTopology_Gradings(t *testing.T) {
	topo, _ := New(2)
	for _, p := range [][]float64{{0, 0}, {1, 0}, {1, 1}, {0, 1}} {
		topo.AddPoint(p...)
	}
	b, _ := topo.AddBlock(0, 1, 2, 3)
	requireTopologyError(t, topo.SetGrading(b, 1, -1, 1, 1), "block")
	requireTopologyError(t, topo.SetGrading(b, 1, 1, 1), "block")
	require.NoError(t, topo.SetGrading(b, 2, 0.5))
	assert.Equal(t, []float64{2, 2, 0.5, 0.5}, topo.Blocks[b].Gradings)
}

func TestTopology_PatchFaces(t *testing.T) {
	topo := channel(t)
	// interior face shared by both blocks
	requireTopologyError(t, topo.AddPatchFace("middle", 2, 3), "patch")
	// diagonal is not a block side
	requireTopologyError(t, topo.AddPatchFace("diag", 0, 3), "patch")
	requireTopologyError(t, topo.AddPatchFace("short", 0), "patch")
	requireTopologyError(t, topo.AddPatchFace("dangling", 0, 9), "patch")
	// already in "bottom"
	requireTopologyError(t, topo.AddPatchFace("again", 1, 0), "patch")
}

func TestTopology_PeriodicLinks(t *testing.T) {
	topo := channel(t)
	require.NoError(t, topo.AddPeriodicLink("right", "left", -10, 0))
	requireTopologyError(t, topo.AddPeriodicLink("left", "right", 10, 0), "link")
	requireTopologyError(t, topo.AddPeriodicLink("top", "nowhere", 0, -2), "link")
	requireTopologyError(t, topo.AddPeriodicLink("top", "bottom", 0, -2, 0), "link")
	requireTopologyError(t, topo.AddPeriodicLink("top", "top", 0, 0), "link")
	require.Len(t, topo.Links, 1)
}

func TestTopology_Extrude(t *testing.T) {
	topo := channel(t)
	require.NoError(t, topo.AddPeriodicLink("right", "left", -10, 0))

	ext, err := topo.Extrude([]float64{0.5, 1}, []int{3, 2}, []float64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, 3, ext.Dim)
	assert.Len(t, ext.Points, 18)
	assert.Len(t, ext.Blocks, 4)
	assert.Equal(t, []int{20, 10, 3}, ext.Blocks[0].Subdivisions)
	assert.Equal(t, []int{20, 10, 2}, ext.Blocks[3].Subdivisions)
	assert.Equal(t, 2.0, ext.Blocks[2].Gradings[8])

	left, ok := ext.Patch("left")
	require.True(t, ok)
	assert.Len(t, left.Faces, 4)
	front, ok := ext.Patch("front")
	require.True(t, ok)
	assert.Len(t, front.Faces, 2)
	for _, f := range front.Faces {
		assert.Equal(t, 0, f.Side)
	}
	back, _ := ext.Patch("back")
	for _, f := range back.Faces {
		assert.Equal(t, 1, f.Side)
		assert.GreaterOrEqual(t, f.Block, 2)
	}
	require.Len(t, ext.Links, 1)
	assert.Equal(t, []float64{-10, 0, 0}, ext.Links[0].Translation)

	_, err = topo.Extrude([]float64{1, 0.5}, []int{1, 1}, []float64{1, 1})
	requireTopologyError(t, err, "description")
	_, err = ext.Extrude([]float64{1}, []int{1}, []float64{1})
	requireTopologyError(t, err, "description")
}

func TestCornerLogical(t *testing.T) {
	assert.Equal(t, [3]int{0, 0, 0}, CornerLogical(3, 0))
	assert.Equal(t, [3]int{1, 1, 0}, CornerLogical(2, 2))
	assert.Equal(t, [3]int{0, 1, 1}, CornerLogical(3, 7))
	for dim := 2; dim <= 3; dim++ {
		for _, s := range Sides(dim) {
			for _, c := range s.Corners {
				lc := CornerLogical(dim, c)
				want := 0
				if s.High {
					want = 1
				}
				assert.Equal(t, want, lc[s.Axis], "dim %d side %v corner %d", dim, s, c)
			}
		}
	}
}

// stacked builds two unit blocks sharing the edge 2-3.
func stacked(t *testing.T, lower, upper []int, lowerGrading, upperGrading []float64) *Topology {
	t.Helper()
	topo, err := New(2)
	require.NoError(t, err)
	for _, p := range [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0, 2}, {1, 2}} {
		_, err := topo.AddPoint(p...)
		require.NoError(t, err)
	}
	b0, err := topo.AddBlock(0, 1, 3, 2)
	require.NoError(t, err)
	require.NoError(t, topo.SetSubdivisions(b0, lower...))
	require.NoError(t, topo.SetGrading(b0, lowerGrading...))
	b1, err := topo.AddBlock(2, 3, 5, 4)
	require.NoError(t, err)
	require.NoError(t, topo.SetSubdivisions(b1, upper...))
	require.NoError(t, topo.SetGrading(b1, upperGrading...))
	return topo
}

func TestTopology_NonConformingBlocks(t *testing.T) {
	tests := []struct {
		name         string
		lower, upper []int
		lg, ug       []float64
		ok           bool
	}{
		{"Matching", []int{2, 2}, []int{2, 5}, []float64{1, 1}, []float64{1, 3}, true},
		{"Subdivisions", []int{2, 2}, []int{3, 2}, []float64{1, 1}, []float64{1, 1}, false},
		{"Grading", []int{4, 2}, []int{4, 2}, []float64{1, 2, 1, 1}, []float64{1, 1, 1, 1}, false},
		{"SameGradingOnSharedEdge", []int{4, 2}, []int{4, 2}, []float64{1, 2, 1, 1}, []float64{2, 1, 1, 1}, true},
		{"SingleCellIgnoresGrading", []int{1, 2}, []int{1, 2}, []float64{1, 3, 1, 1}, []float64{1, 1, 1, 1}, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := stacked(t, tc.lower, tc.upper, tc.lg, tc.ug).Validate()
			if tc.ok {
				require.NoError(t, err)
				return
			}
			requireTopologyError(t, err, "block")
			var te *TopologyError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, "1", te.Ref)
			assert.Contains(t, te.Reason, "block 0")
		})
	}
}

func TestTopology_ExtrudeReservedPatchNames(t *testing.T) {
	for _, name := range []string{"front", "back"} {
		topo := stacked(t, []int{2, 2}, []int{2, 2}, []float64{1, 1}, []float64{1, 1})
		require.NoError(t, topo.AddPatchFace(name, 0, 1))
		_, err := topo.Extrude([]float64{1}, []int{1}, []float64{1})
		requireTopologyError(t, err, "patch")
		assert.Contains(t, err.Error(), name)
	}
}
