package parallel

import (
	"context"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/notargets/blockmesh/ctxlog"
	"github.com/notargets/blockmesh/mesh"
	"github.com/notargets/blockmesh/partitions"
	"github.com/notargets/blockmesh/utils"
)

// Synchronizer assigns the canonical global index of every node of a
// partitioned, periodically linked mesh.
type Synchronizer struct {
	Mesh   *mesh.Mesh
	Layout *partitions.PartitionLayout
}

// NewSynchronizer creates a synchronizer for a mesh and its layout.
func NewSynchronizer(m *mesh.Mesh, layout *partitions.PartitionLayout) *Synchronizer {
	return &Synchronizer{Mesh: m, Layout: layout}
}

// rootIndex carries the global index of a periodic chain root.
type rootIndex struct {
	Node, Index int
}

// Synchronize runs one rank per partition. Owned nodes that are not periodic
// secondaries are numbered by a prefix sum over partitions in rank order and
// by increasing node id within a partition; ghosts receive their owner's
// index and secondaries the index of their chain root. Mesh.GlobalIndex is
// written only when every rank succeeds and the ranks agree.
func (s *Synchronizer) Synchronize(ctx context.Context) error {
	m, layout := s.Mesh, s.Layout
	if m.Owner == nil || layout == nil {
		return fmt.Errorf("synchronize: mesh is not partitioned")
	}
	gc, err := layout.GhostConnector()
	if err != nil {
		return fmt.Errorf("synchronize: %w", err)
	}

	roots := make(map[int]bool)
	for sec := range m.Periodic {
		roots[m.Primary(sec)] = true
	}

	results := make([][]int, layout.NumPartitions)
	err = Run(ctx, layout.NumPartitions, func(ctx context.Context, c Communicator) error {
		vals, err := s.rankIndices(ctx, c, gc, roots)
		if err != nil {
			return err
		}
		results[c.Rank()] = vals
		return nil
	})
	if err != nil {
		return fmt.Errorf("synchronize: %w", err)
	}

	global, err := s.commit(gc, results)
	if err != nil {
		return fmt.Errorf("synchronize: %w", err)
	}
	m.GlobalIndex = global
	ctxlog.FromContext(ctx).WithFields(logrus.Fields{
		"ranks":   layout.NumPartitions,
		"indices": m.NumGlobalNodes(),
	}).Debug("synchronized global indices")
	return nil
}

// rankIndices computes the global index of every local node of one rank,
// in the rank's local slot order.
func (s *Synchronizer) rankIndices(ctx context.Context, c Communicator, gc *utils.GhostConnector, roots map[int]bool) ([]int, error) {
	m := s.Mesh
	rank := c.Rank()
	local := gc.LocalNodes[rank]
	numOwned := gc.NumOwned[rank]

	count := 0
	for _, n := range local[:numOwned] {
		if !m.IsSecondary(n) {
			count++
		}
	}
	counts, err := AllGather(ctx, c, count)
	if err != nil {
		return nil, err
	}
	next := 0
	for _, n := range counts[:rank] {
		next += n
	}

	vals := make([]int, len(local))
	for slot := range vals {
		vals[slot] = -1
	}
	for slot, n := range local[:numOwned] {
		if m.IsSecondary(n) {
			continue
		}
		vals[slot] = next
		next++
	}

	// Ghost exchange
	send := make([][]int, c.Size())
	for q := range send {
		pick := gc.GetPickIndices(rank, q)
		send[q] = make([]int, len(pick))
		for i, slot := range pick {
			send[q][i] = vals[slot]
		}
	}
	recv, err := AllToAll(ctx, c, send)
	if err != nil {
		return nil, err
	}
	for q, buf := range recv {
		place := gc.GetPlaceIndices(rank, q)
		if len(place) != len(buf) {
			return nil, fmt.Errorf("received %d ghost values from rank %d, expected %d", len(buf), q, len(place))
		}
		for i, slot := range place {
			vals[slot] = buf[i]
		}
	}

	// Periodic roots owned here
	var mine []rootIndex
	for slot, n := range local[:numOwned] {
		if roots[n] {
			mine = append(mine, rootIndex{Node: n, Index: vals[slot]})
		}
	}
	gathered, err := AllGather(ctx, c, mine)
	if err != nil {
		return nil, err
	}
	rootIdx := make(map[int]int)
	for _, list := range gathered {
		for _, ri := range list {
			rootIdx[ri.Node] = ri.Index
		}
	}
	for slot, n := range local {
		if !m.IsSecondary(n) {
			continue
		}
		idx, ok := rootIdx[m.Primary(n)]
		if !ok {
			return nil, fmt.Errorf("periodic root %d of node %d has no index", m.Primary(n), n)
		}
		vals[slot] = idx
	}

	ctxlog.FromContext(ctx).WithFields(logrus.Fields{
		"owned":  count,
		"ghosts": len(local) - numOwned,
		"first":  next - count,
	}).Debug("numbered owned nodes")
	return vals, nil
}

// commit merges the per-rank results, checking that ranks agree on shared
// nodes and that the indices are a dense permutation.
func (s *Synchronizer) commit(gc *utils.GhostConnector, results [][]int) ([]int, error) {
	m := s.Mesh
	global := make([]int, m.NumNodes())
	for i := range global {
		global[i] = -1
	}
	for rank, vals := range results {
		for slot, n := range gc.LocalNodes[rank] {
			v := vals[slot]
			if v < 0 {
				return nil, fmt.Errorf("node %d has no index on rank %d", n, rank)
			}
			if global[n] >= 0 && global[n] != v {
				return nil, fmt.Errorf("node %d: rank %d computed %d, another rank %d", n, rank, v, global[n])
			}
			global[n] = v
		}
	}

	total := m.NumNodes() - len(m.Periodic)
	var primaries []int
	for n, v := range global {
		if v < 0 {
			return nil, fmt.Errorf("node %d is referenced by no partition", n)
		}
		if !m.IsSecondary(n) {
			primaries = append(primaries, v)
		}
	}
	sort.Ints(primaries)
	for i, v := range primaries {
		if v != i || i >= total {
			return nil, fmt.Errorf("global indices are not a dense permutation of [0, %d)", total)
		}
	}
	return global, nil
}
