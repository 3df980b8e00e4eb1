package pipeline

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notargets/blockmesh/codec"
	"github.com/notargets/blockmesh/ctxlog"
	"github.com/notargets/blockmesh/partitions"
	"github.com/notargets/blockmesh/periodic"
	"github.com/notargets/blockmesh/topology"
)

func quietContext() context.Context {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return ctxlog.WithLogger(context.Background(), logger)
}

func channel(t *testing.T, link bool) *topology.Topology {
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
		require.NoError(t, topo.SetGrading(b, 1, 1, 1, 1))
	}
	require.NoError(t, topo.AddPatchFace("left", 2, 0))
	require.NoError(t, topo.AddPatchFace("left", 4, 2))
	require.NoError(t, topo.AddPatchFace("bottom", 0, 1))
	require.NoError(t, topo.AddPatchFace("top", 5, 4))
	require.NoError(t, topo.AddPatchFace("right", 1, 3))
	require.NoError(t, topo.AddPatchFace("right", 3, 5))
	if link {
		require.NoError(t, topo.AddPeriodicLink("right", "left", -10, 0))
	}
	return topo
}

func withPartitions(p int) Options {
	opts := DefaultOptions()
	opts.Partitions = p
	return opts
}

func TestRun_TotalsIndependentOfPartitions(t *testing.T) {
	ctx := quietContext()
	for p := 1; p <= 4; p++ {
		res, err := Run(ctx, channel(t, false), withPartitions(p))
		require.NoError(t, err)
		m := res.Mesh
		assert.Equal(t, 441, m.NumNodes(), "P=%d", p)
		assert.Equal(t, 400, m.NumCells(), "P=%d", p)
		assert.Equal(t, 480, m.NumElements(), "P=%d", p)
		assert.Equal(t, 441, m.NumGlobalNodes(), "P=%d", p)
		assert.Equal(t, p, res.Stats.NumPartitions)

		total := 0
		for _, part := range res.Layout.Partitions {
			require.Greater(t, part.NumElements, 0)
			total += part.NumElements
		}
		assert.Equal(t, m.NumElements(), total)
	}
}

func TestRun_Deterministic(t *testing.T) {
	ctx := quietContext()
	a, err := Run(ctx, channel(t, true), withPartitions(3))
	require.NoError(t, err)
	b, err := Run(ctx, channel(t, true), withPartitions(3))
	require.NoError(t, err)
	require.NoError(t, codec.Diff(a.Mesh, b.Mesh))

	var ea, eb bytes.Buffer
	require.NoError(t, codec.Encode(&ea, a.Mesh))
	require.NoError(t, codec.Encode(&eb, b.Mesh))
	assert.Equal(t, ea.Bytes(), eb.Bytes())
}

func TestRun_PeriodicChannel(t *testing.T) {
	res, err := Run(quietContext(), channel(t, true), withPartitions(4))
	require.NoError(t, err)
	m := res.Mesh
	require.Len(t, res.Matches, 1)
	assert.Len(t, res.Matches[0], 21)
	assert.Equal(t, 441-21, m.NumGlobalNodes())
	for _, mt := range res.Matches[0] {
		s, p := m.NodeCoords(mt.Secondary), m.NodeCoords(mt.Primary)
		assert.InDelta(t, 10, s[0]-p[0], 1e-8)
		assert.InDelta(t, s[1], p[1], 1e-8)
		assert.Equal(t, m.GlobalIndexOf(mt.Primary), m.GlobalIndexOf(mt.Secondary))
	}
	assert.Len(t, res.Layout.Partitions[0].PeriodicExchange[3], 21)

	var buf bytes.Buffer
	require.NoError(t, codec.Encode(&buf, m))
	got, err := codec.Decode(&buf)
	require.NoError(t, err)
	assert.NoError(t, codec.Diff(m, got))
}

func TestRun_Extruded(t *testing.T) {
	topo, err := channel(t, true).Extrude([]float64{0.5, 1}, []int{2, 3}, []float64{1, 1})
	require.NoError(t, err)
	opts := withPartitions(2)
	opts.Direction = 2
	res, err := Run(quietContext(), topo, opts)
	require.NoError(t, err)
	m := res.Mesh
	assert.Equal(t, 441*6, m.NumNodes())
	assert.Equal(t, 400*5, m.NumCells())
	assert.Equal(t, 441*6-21*6, m.NumGlobalNodes())
	front, ok := m.Region("front")
	require.True(t, ok)
	assert.Len(t, front, 400)
}

func TestRun_Errors(t *testing.T) {
	ctx := quietContext()

	_, err := Run(ctx, channel(t, false), withPartitions(0))
	var pe *partitions.PartitionError
	assert.True(t, errors.As(err, &pe), "got %v", err)

	opts := withPartitions(2)
	opts.Direction = 3
	_, err = Run(ctx, channel(t, false), opts)
	assert.True(t, errors.As(err, &pe), "got %v", err)

	topo := channel(t, false)
	require.NoError(t, topo.AddPeriodicLink("top", "bottom", 0, -1.5))
	res, err := Run(ctx, topo, withPartitions(2))
	var le *periodic.PeriodicLinkError
	assert.True(t, errors.As(err, &le), "got %v", err)
	assert.Nil(t, res)

	// blocks 0 and 1 share the edge 2-3 with 2 and 3 cells along it
	coarse, err := topology.New(2)
	require.NoError(t, err)
	for _, p := range [][]float64{{0, 0}, {1, 0}, {0, 1}, {1, 1}, {0, 2}, {1, 2}} {
		_, err := coarse.AddPoint(p...)
		require.NoError(t, err)
	}
	for i, corners := range [][]int{{0, 1, 3, 2}, {2, 3, 5, 4}} {
		b, err := coarse.AddBlock(corners...)
		require.NoError(t, err)
		require.NoError(t, coarse.SetSubdivisions(b, 2+i, 2))
		require.NoError(t, coarse.SetGrading(b, 1, 1))
	}
	res, err = Run(ctx, coarse, DefaultOptions())
	var te *topology.TopologyError
	require.True(t, errors.As(err, &te), "got %v", err)
	assert.Equal(t, "block", te.Entity)
	assert.Nil(t, res)

	empty, err := topology.New(2)
	require.NoError(t, err)
	_, err = Run(ctx, empty, DefaultOptions())
	assert.True(t, errors.As(err, &te), "got %v", err)
}

func TestRun_Logging(t *testing.T) {
	logger, hook := test.NewNullLogger()
	logger.SetLevel(logrus.DebugLevel)
	ctx := ctxlog.WithLogger(context.Background(), logger)
	_, err := Run(ctx, channel(t, true), withPartitions(2))
	require.NoError(t, err)

	last := hook.LastEntry()
	require.NotNil(t, last)
	assert.Equal(t, "mesh complete", last.Message)
	assert.Equal(t, 441, last.Data["nodes"])
	assert.Equal(t, 420, last.Data["global_nodes"])

	ranks := map[any]bool{}
	for _, e := range hook.AllEntries() {
		if r, ok := e.Data["rank"]; ok {
			ranks[r] = true
		}
	}
	assert.Len(t, ranks, 2)
}
