package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"math"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/notargets/blockmesh/generator"
	"github.com/notargets/blockmesh/mesh"
	"github.com/notargets/blockmesh/parallel"
	"github.com/notargets/blockmesh/partitions"
	"github.com/notargets/blockmesh/periodic"
	"github.com/notargets/blockmesh/topology"
)

func channelTopology(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.New(2)
	require.NoError(t, err)
	for _, p := range [][]float64{{0, 0}, {10, 0}, {0, 1}, {10, 1}, {0, 2}, {10, 2}} {
		_, err := topo.AddPoint(p...)
		require.NoError(t, err)
	}
	for _, corners := range [][]int{{0, 1, 3, 2}, {2, 3, 5, 4}} {
		b, err := topo.AddBlock(corners...)
		require.NoError(t, err)
		require.NoError(t, topo.SetSubdivisions(b, 20, 10))
		require.NoError(t, topo.SetGrading(b, 1, 1, 2, 2))
	}
	require.NoError(t, topo.AddPatchFace("left", 2, 0))
	require.NoError(t, topo.AddPatchFace("left", 4, 2))
	require.NoError(t, topo.AddPatchFace("bottom", 0, 1))
	require.NoError(t, topo.AddPatchFace("top", 5, 4))
	require.NoError(t, topo.AddPatchFace("right", 1, 3))
	require.NoError(t, topo.AddPatchFace("right", 3, 5))
	require.NoError(t, topo.AddPeriodicLink("right", "left", -10, 0))
	return topo
}

// finishedMesh runs every stage on the channel.
func finishedMesh(t *testing.T, p int) *mesh.Mesh {
	t.Helper()
	ctx := context.Background()
	topo := channelTopology(t)
	m, err := generator.NewGenerator(topo, 0).Generate(ctx)
	require.NoError(t, err)
	layout, err := partitions.NewPartitionBuilder(m, p, 0, partitions.AxisPartition).BuildPartitions()
	require.NoError(t, err)
	layout.Apply(m)
	_, err = periodic.NewLinker(m, layout, topo.Links, generator.DefaultTolerance).Link(ctx)
	require.NoError(t, err)
	require.NoError(t, parallel.NewSynchronizer(m, layout).Synchronize(ctx))
	return m
}

func encode(t *testing.T, m *mesh.Mesh) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, Encode(&buf, m))
	return buf.Bytes()
}

func TestRoundTrip(t *testing.T) {
	m := finishedMesh(t, 3)
	data := encode(t, m)
	assert.Equal(t, Magic, string(data[:4]))

	got, err := Decode(bytes.NewReader(data))
	require.NoError(t, err)
	require.NoError(t, Diff(m, got))

	assert.Equal(t, m.Coords, got.Coords)
	assert.Equal(t, m.GlobalIndex, got.GlobalIndex)
	assert.Equal(t, m.Periodic, got.Periodic)
	assert.Equal(t, m.RegionNames(), got.RegionNames())
	for e := range m.Elements {
		want, err := m.ElementGlobalNodes(e)
		require.NoError(t, err)
		have, err := got.ElementGlobalNodes(e)
		require.NoError(t, err)
		require.Equal(t, want, have, "element %d", e)
	}
	left, ok := got.Region("left")
	require.True(t, ok)
	assert.Len(t, left, 20)
}

func TestRoundTrip_Repeated(t *testing.T) {
	m := finishedMesh(t, 2)
	data := encode(t, m)
	for i := 0; i < 3; i++ {
		got, err := Decode(bytes.NewReader(data))
		require.NoError(t, err)
		require.NoError(t, Diff(m, got))
		again := encode(t, got)
		require.True(t, bytes.Equal(data, again), "round trip %d changed the encoding", i)
		data = again
	}
}

func TestRoundTrip_Unpartitioned(t *testing.T) {
	m, err := generator.NewGenerator(channelTopology(t), 0).Generate(context.Background())
	require.NoError(t, err)
	got, err := Decode(bytes.NewReader(encode(t, m)))
	require.NoError(t, err)
	require.NoError(t, Diff(m, got))
	assert.Nil(t, got.Owner)
	assert.Nil(t, got.GlobalIndex)
	assert.Empty(t, got.Periodic)
}

func TestRoundTrip_File(t *testing.T) {
	m := finishedMesh(t, 4)
	path := filepath.Join(t.TempDir(), "channel.bmsh")
	require.NoError(t, WriteFile(path, m))
	got, err := ReadFile(path)
	require.NoError(t, err)
	assert.NoError(t, Diff(m, got))

	_, err = ReadFile(filepath.Join(t.TempDir(), "missing.bmsh"))
	assert.Error(t, err)
}

func requireCodecError(t *testing.T, err error, stage string) *CodecError {
	t.Helper()
	var ce *CodecError
	require.True(t, errors.As(err, &ce), "expected CodecError, got %T: %v", err, err)
	assert.Equal(t, stage, ce.Stage)
	return ce
}

func TestDecode_Header(t *testing.T) {
	data := encode(t, finishedMesh(t, 1))

	bad := append([]byte(nil), data...)
	copy(bad, "XMSH")
	_, err := Decode(bytes.NewReader(bad))
	requireCodecError(t, err, "header")

	bad = append([]byte(nil), data...)
	binary.BigEndian.PutUint16(bad[4:6], Version+1)
	_, err = Decode(bytes.NewReader(bad))
	ce := requireCodecError(t, err, "header")
	assert.Contains(t, ce.Reason, "version")

	bad = append([]byte(nil), data...)
	binary.BigEndian.PutUint16(bad[6:8], 0x8001)
	_, err = Decode(bytes.NewReader(bad))
	requireCodecError(t, err, "header")

	_, err = Decode(bytes.NewReader(data[:5]))
	requireCodecError(t, err, "header")

	_, err = Decode(bytes.NewReader(data[:len(data)/2]))
	requireCodecError(t, err, "body")
}

// rawFile encodes a wire mesh without compression, bypassing toWire.
func rawFile(t *testing.T, wm *wireMesh) []byte {
	t.Helper()
	body, err := msgpack.Marshal(wm)
	require.NoError(t, err)
	header := make([]byte, headerSize)
	copy(header, Magic)
	binary.BigEndian.PutUint16(header[4:6], Version)
	return append(header, body...)
}

func TestDecode_Tables(t *testing.T) {
	m := finishedMesh(t, 2)

	_, err := Decode(bytes.NewReader(rawFile(t, toWire(m))))
	require.NoError(t, err, "uncompressed body")

	tests := []struct {
		name    string
		corrupt func(wm *wireMesh)
		stage   string
		node    int
		element int
	}{
		{"NonFinite", func(wm *wireMesh) { wm.Coords[7] = math.NaN() }, "nodes", 3, -1},
		{"CoordinateLength", func(wm *wireMesh) { wm.Coords = wm.Coords[:len(wm.Coords)-1] }, "nodes", -1, -1},
		{"NodeOutOfRange", func(wm *wireMesh) { wm.Connectivity[4] = 100000 }, "elements", 100000, 1},
		{"TypeMismatch", func(wm *wireMesh) { wm.Types[0] = uint8(mesh.Hex) }, "elements", -1, 0},
		{"TetIn2D", func(wm *wireMesh) { wm.Types[3] = uint8(mesh.Tet) }, "elements", -1, 3},
		{"UnknownGeometry", func(wm *wireMesh) { wm.Types[1] = 200 }, "elements", -1, 1},
		{"TableLength", func(wm *wireMesh) { wm.Blocks = wm.Blocks[1:] }, "elements", -1, -1},
		{"RegionElement", func(wm *wireMesh) { wm.Regions[1].Elements[0] = -3 }, "regions", -1, -3},
		{"OwnerLength", func(wm *wireMesh) { wm.Owner = wm.Owner[1:] }, "ownership", -1, -1},
		{"OwnerRange", func(wm *wireMesh) { wm.Owner[2] = 5 }, "ownership", 2, -1},
		{"DuplicateGlobalIndex", func(wm *wireMesh) { wm.GlobalIndex[1] = wm.GlobalIndex[0] }, "global_index", 1, -1},
		{"PeriodicCycle", func(wm *wireMesh) {
			wm.PeriodicSecondary = []int{0, 1}
			wm.PeriodicPrimary = []int{1, 0}
		}, "periodic", -1, -1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			wm := toWire(m)
			// toWire shares slices with the mesh
			wm.Coords = append([]float64(nil), wm.Coords...)
			wm.Owner = append([]int(nil), wm.Owner...)
			wm.GlobalIndex = append([]int(nil), wm.GlobalIndex...)
			regions := make([]wireRegion, len(wm.Regions))
			for i, r := range wm.Regions {
				regions[i] = wireRegion{Name: r.Name, Elements: append([]int(nil), r.Elements...)}
			}
			wm.Regions = regions
			tc.corrupt(wm)

			_, err := Decode(bytes.NewReader(rawFile(t, wm)))
			ce := requireCodecError(t, err, tc.stage)
			if tc.stage != "periodic" {
				assert.Equal(t, tc.node, ce.Node)
			}
			assert.Equal(t, tc.element, ce.Element)
		})
	}
}

func TestDiff(t *testing.T) {
	m := finishedMesh(t, 2)
	other, err := Decode(bytes.NewReader(encode(t, m)))
	require.NoError(t, err)

	other.Coords[5] = math.Nextafter(other.Coords[5], math.Inf(1))
	ce := requireCodecError(t, Diff(m, other), "diff")
	assert.Equal(t, 2, ce.Node)

	other, err = Decode(bytes.NewReader(encode(t, m)))
	require.NoError(t, err)
	other.Elements[10].Nodes[0], other.Elements[10].Nodes[1] = other.Elements[10].Nodes[1], other.Elements[10].Nodes[0]
	ce = requireCodecError(t, Diff(m, other), "diff")
	assert.Equal(t, 10, ce.Element)

	assert.Error(t, Diff(m, finishedMesh(t, 3)))
}
