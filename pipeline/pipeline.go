// Package pipeline runs the mesh stages in order: generation, partitioning,
// periodic linking and global index synchronization.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/notargets/blockmesh/ctxlog"
	"github.com/notargets/blockmesh/generator"
	"github.com/notargets/blockmesh/mesh"
	"github.com/notargets/blockmesh/parallel"
	"github.com/notargets/blockmesh/partitions"
	"github.com/notargets/blockmesh/periodic"
	"github.com/notargets/blockmesh/topology"
)

// Options controls partitioning and coincidence matching.
type Options struct {
	Partitions int
	Direction  int
	Tolerance  float64 // absolute; non-positive selects generator.DefaultTolerance
	Strategy   partitions.PartitionStrategy
}

// DefaultOptions is a single partition split along x.
func DefaultOptions() Options {
	return Options{
		Partitions: 1,
		Direction:  0,
		Tolerance:  generator.DefaultTolerance,
		Strategy:   partitions.AxisPartition,
	}
}

// Result is a finished mesh with the layout that produced its ownership.
type Result struct {
	Mesh    *mesh.Mesh
	Layout  *partitions.PartitionLayout
	Matches [][]periodic.Match // per periodic link
	Stats   partitions.PartitionStats
}

// Run builds the mesh described by topo. Any failing stage aborts the run
// and no mesh is returned.
func Run(ctx context.Context, topo *topology.Topology, opts Options) (*Result, error) {
	logger := ctxlog.FromContext(ctx)
	start := time.Now()
	if opts.Tolerance <= 0 {
		opts.Tolerance = generator.DefaultTolerance
	}
	if topo == nil {
		return nil, fmt.Errorf("pipeline: nil topology")
	}
	if err := topo.Validate(); err != nil {
		return nil, err
	}

	m, err := generator.NewGenerator(topo, opts.Tolerance).Generate(ctx)
	if err != nil {
		return nil, err
	}

	layout, err := partitions.NewPartitionBuilder(m, opts.Partitions, opts.Direction, opts.Strategy).BuildPartitions()
	if err != nil {
		return nil, err
	}
	layout.Apply(m)

	matches, err := periodic.NewLinker(m, layout, topo.Links, opts.Tolerance).Link(ctx)
	if err != nil {
		return nil, err
	}

	if err := parallel.NewSynchronizer(m, layout).Synchronize(ctx); err != nil {
		return nil, err
	}

	stats := layout.PartitionStatistics(partitions.BuildConnectivity(m))
	logger.WithFields(logrus.Fields{
		"nodes":        m.NumNodes(),
		"global_nodes": m.NumGlobalNodes(),
		"cells":        m.NumCells(),
		"elements":     m.NumElements(),
		"partitions":   stats.NumPartitions,
		"imbalance":    stats.Imbalance,
		"cut_faces":    stats.CutFaces,
		"elapsed":      time.Since(start),
	}).Info("mesh complete")

	return &Result{Mesh: m, Layout: layout, Matches: matches, Stats: stats}, nil
}
