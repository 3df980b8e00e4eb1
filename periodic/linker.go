// Package periodic identifies the boundary nodes of patch pairs related by a
// translation.
package periodic

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/go-cmp/cmp"
	"github.com/sirupsen/logrus"

	"github.com/notargets/blockmesh/ctxlog"
	"github.com/notargets/blockmesh/mesh"
	"github.com/notargets/blockmesh/parallel"
	"github.com/notargets/blockmesh/partitions"
	"github.com/notargets/blockmesh/topology"
	"github.com/notargets/blockmesh/utils"
)

// PeriodicLinkError reports a boundary node without a partner, or a partner
// claimed twice. No identity is applied when it is returned.
type PeriodicLinkError struct {
	Source      string
	Destination string
	Node        int
	Reason      string
}

func (e *PeriodicLinkError) Error() string {
	return fmt.Sprintf("periodic link %s -> %s: node %d: %s", e.Source, e.Destination, e.Node, e.Reason)
}

// Match is one secondary (source side) -> primary (destination side) pair.
type Match struct {
	Secondary int
	Primary   int
}

// Linker applies the periodic links of a topology to a partitioned mesh.
type Linker struct {
	Mesh      *mesh.Mesh
	Layout    *partitions.PartitionLayout
	Links     []topology.PeriodicLink
	Tolerance float64
}

// NewLinker creates a linker.
func NewLinker(m *mesh.Mesh, layout *partitions.PartitionLayout, links []topology.PeriodicLink, tolerance float64) *Linker {
	return &Linker{Mesh: m, Layout: layout, Links: links, Tolerance: tolerance}
}

// boundaryNode is a node contributed to the collective lookup.
type boundaryNode struct {
	ID     int
	Coords []float64
}

type contribution struct {
	Source, Destination []boundaryNode
}

// linkResult is what every rank computes from the gathered boundary nodes.
type linkResult struct {
	Matches  [][]Match   // per link, in source node order
	Periodic map[int]int // the identity map after all links
}

// Link matches the nodes of every link, in link order, and merges the
// resulting identities into Mesh.Periodic. Every rank contributes the
// boundary nodes it owns and then resolves the same matches; the result is
// applied only if all links succeed and all ranks agree. Pairs whose nodes
// are owned by different partitions are recorded in the layout's periodic
// exchange sets.
func (l *Linker) Link(ctx context.Context) ([][]Match, error) {
	m, layout := l.Mesh, l.Layout
	if m.Owner == nil || layout == nil {
		return nil, fmt.Errorf("periodic: mesh is not partitioned")
	}
	if len(l.Links) == 0 {
		return nil, nil
	}
	for _, link := range l.Links {
		for _, name := range []string{link.Source, link.Destination} {
			if _, ok := m.Region(name); !ok {
				return nil, &PeriodicLinkError{Source: link.Source, Destination: link.Destination,
					Node: -1, Reason: fmt.Sprintf("no region %q", name)}
			}
		}
	}

	results := make([]linkResult, layout.NumPartitions)
	err := parallel.Run(ctx, layout.NumPartitions, func(ctx context.Context, c parallel.Communicator) error {
		res, err := l.rankLink(ctx, c)
		if err != nil {
			return err
		}
		results[c.Rank()] = res
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("periodic: %w", err)
	}
	for r := 1; r < len(results); r++ {
		if diff := cmp.Diff(results[0], results[r]); diff != "" {
			return nil, fmt.Errorf("periodic: rank %d disagrees with rank 0 (-0 +%d):\n%s", r, r, diff)
		}
	}

	res := results[0]
	m.Periodic = res.Periodic
	total := 0
	for _, matches := range res.Matches {
		for _, mt := range matches {
			layout.AddPeriodicPair(mt.Secondary, mt.Primary)
		}
		total += len(matches)
	}
	ctxlog.FromContext(ctx).WithFields(logrus.Fields{
		"links":   len(l.Links),
		"matches": total,
		"merged":  len(m.Periodic),
	}).Debug("linked periodic patches")
	return res.Matches, nil
}

func (l *Linker) rankLink(ctx context.Context, c parallel.Communicator) (linkResult, error) {
	m := l.Mesh
	periodic := make(map[int]int, len(m.Periodic))
	for s, p := range m.Periodic {
		periodic[s] = p
	}
	res := linkResult{Periodic: periodic}

	for _, link := range l.Links {
		var mine contribution
		var err error
		if mine.Source, err = l.ownedBoundary(link.Source, c.Rank()); err != nil {
			return res, err
		}
		if mine.Destination, err = l.ownedBoundary(link.Destination, c.Rank()); err != nil {
			return res, err
		}
		all, err := parallel.AllGather(ctx, c, mine)
		if err != nil {
			return res, err
		}
		var src, dst []boundaryNode
		for _, ct := range all {
			src = append(src, ct.Source...)
			dst = append(dst, ct.Destination...)
		}
		byID := func(nodes []boundaryNode) {
			sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
		}
		byID(src)
		byID(dst)

		matches, err := l.match(link, src, dst)
		if err != nil {
			return res, err
		}
		for _, mt := range matches {
			merge(periodic, mt.Secondary, mt.Primary)
		}
		res.Matches = append(res.Matches, matches)
	}
	return res, nil
}

// ownedBoundary returns the nodes of a region owned by rank.
func (l *Linker) ownedBoundary(region string, rank int) ([]boundaryNode, error) {
	nodes, err := l.Mesh.RegionNodes(region)
	if err != nil {
		return nil, err
	}
	var out []boundaryNode
	for _, n := range nodes {
		if l.Mesh.OwnerOf(n) == rank {
			out = append(out, boundaryNode{ID: n, Coords: append([]float64(nil), l.Mesh.NodeCoords(n)...)})
		}
	}
	return out, nil
}

// match finds, for every source node in id order, the lowest destination
// node within tolerance of its translated position.
func (l *Linker) match(link topology.PeriodicLink, src, dst []boundaryNode) ([]Match, error) {
	linkErr := func(node int, format string, args ...any) error {
		return &PeriodicLinkError{
			Source:      link.Source,
			Destination: link.Destination,
			Node:        node,
			Reason:      fmt.Sprintf(format, args...),
		}
	}
	index, err := utils.NewCoordinateIndex(l.Mesh.Dim, l.Tolerance)
	if err != nil {
		return nil, err
	}
	for _, d := range dst {
		if err := index.Insert(d.ID, d.Coords); err != nil {
			return nil, linkErr(d.ID, "%v", err)
		}
	}

	matched := make(map[int]int, len(dst))
	matches := make([]Match, 0, len(src))
	x := make([]float64, l.Mesh.Dim)
	for _, s := range src {
		for d := range x {
			x[d] = s.Coords[d] + link.Translation[d]
		}
		p, ok, err := index.Find(x)
		if err != nil {
			return nil, linkErr(s.ID, "%v", err)
		}
		if !ok {
			return nil, linkErr(s.ID, "no destination node near %v", x)
		}
		if prev, dup := matched[p]; dup {
			return nil, linkErr(s.ID, "destination node %d already matched by node %d", p, prev)
		}
		matched[p] = s.ID
		matches = append(matches, Match{Secondary: s.ID, Primary: p})
	}
	for _, d := range dst {
		if _, ok := matched[d.ID]; !ok {
			return nil, linkErr(d.ID, "destination node has no source partner")
		}
	}
	return matches, nil
}

func root(periodic map[int]int, n int) int {
	for {
		p, ok := periodic[n]
		if !ok {
			return n
		}
		n = p
	}
}

// merge joins the chains of secondary and primary. A secondary that is its
// own root points at the primary's root; otherwise the higher root is made
// secondary of the lower one.
func merge(periodic map[int]int, secondary, primary int) {
	rs, rp := root(periodic, secondary), root(periodic, primary)
	if rs == rp {
		return
	}
	if rs == secondary {
		periodic[secondary] = rp
		return
	}
	periodic[max(rs, rp)] = min(rs, rp)
}
