// Package config loads block topology descriptions written in HCL.
//
//	dimensions = 2
//	tolerance  = 1e-8
//	points     = [[0, 0], [10, 0], [0, 1], [10, 1]]
//
//	block {
//	  corners      = [0, 1, 3, 2]
//	  subdivisions = [20, 10]
//	  gradings     = [1, 1]
//	}
//
//	patch "left" {
//	  faces = [[2, 0]]
//	}
//
//	periodic {
//	  source      = "right"
//	  destination = "left"
//	  translation = [-10, 0]
//	}
//
//	extrude {
//	  positions = [1]
//	  segments  = [4]
//	  gradings  = [1]
//	}
//
//	partition {
//	  count     = 4
//	  direction = 0
//	  strategy  = "axis"
//	}
package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/sirupsen/logrus"

	"github.com/notargets/blockmesh/ctxlog"
	"github.com/notargets/blockmesh/partitions"
	"github.com/notargets/blockmesh/pipeline"
	"github.com/notargets/blockmesh/topology"
)

// hclFile is the top-level structure of a topology file.
type hclFile struct {
	Dimensions int            `hcl:"dimensions"`
	Tolerance  *float64       `hcl:"tolerance,optional"`
	Points     [][]float64    `hcl:"points"`
	Blocks     []*hclBlock    `hcl:"block,block"`
	Patches    []*hclPatch    `hcl:"patch,block"`
	Periodic   []*hclPeriodic `hcl:"periodic,block"`
	Extrude    *hclExtrude    `hcl:"extrude,block"`
	Partition  *hclPartition  `hcl:"partition,block"`
}

type hclBlock struct {
	Corners      []int     `hcl:"corners"`
	Subdivisions []int     `hcl:"subdivisions"`
	Gradings     []float64 `hcl:"gradings,optional"`
}

type hclPatch struct {
	Name  string  `hcl:"name,label"`
	Faces [][]int `hcl:"faces"`
}

type hclPeriodic struct {
	Source      string    `hcl:"source"`
	Destination string    `hcl:"destination"`
	Translation []float64 `hcl:"translation"`
}

type hclExtrude struct {
	Positions []float64 `hcl:"positions"`
	Segments  []int     `hcl:"segments"`
	Gradings  []float64 `hcl:"gradings,optional"`
}

type hclPartition struct {
	Count     *int    `hcl:"count,optional"`
	Direction *int    `hcl:"direction,optional"`
	Strategy  *string `hcl:"strategy,optional"`
}

// Load parses and builds the topology file at path.
func Load(ctx context.Context, path string) (*topology.Topology, pipeline.Options, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, pipeline.Options{}, fmt.Errorf("failed to parse HCL file %s: %w", path, diags)
	}
	return decode(ctx, file, path)
}

// Parse builds a topology from HCL source; filename is used in diagnostics.
func Parse(ctx context.Context, src []byte, filename string) (*topology.Topology, pipeline.Options, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, pipeline.Options{}, fmt.Errorf("failed to parse HCL file %s: %w", filename, diags)
	}
	return decode(ctx, file, filename)
}

func decode(ctx context.Context, file *hcl.File, filename string) (*topology.Topology, pipeline.Options, error) {
	opts := pipeline.DefaultOptions()

	var parsed hclFile
	if diags := gohcl.DecodeBody(file.Body, nil, &parsed); diags.HasErrors() {
		return nil, opts, fmt.Errorf("failed to decode HCL file %s: %w", filename, diags)
	}

	topo, err := build(&parsed)
	if err != nil {
		return nil, opts, fmt.Errorf("%s: %w", filename, err)
	}

	if parsed.Tolerance != nil {
		if !(*parsed.Tolerance > 0) {
			return nil, opts, fmt.Errorf("%s: tolerance %v must be positive", filename, *parsed.Tolerance)
		}
		opts.Tolerance = *parsed.Tolerance
	}
	if p := parsed.Partition; p != nil {
		if p.Count != nil {
			opts.Partitions = *p.Count
		}
		if p.Direction != nil {
			opts.Direction = *p.Direction
		}
		if p.Strategy != nil {
			s, err := partitions.ParseStrategy(*p.Strategy)
			if err != nil {
				return nil, opts, fmt.Errorf("%s: %w", filename, err)
			}
			opts.Strategy = s
		}
	}

	ctxlog.FromContext(ctx).WithFields(logrus.Fields{
		"file":    filename,
		"dim":     topo.Dim,
		"points":  len(topo.Points),
		"blocks":  len(topo.Blocks),
		"patches": len(topo.Patches),
		"links":   len(topo.Links),
	}).Debug("loaded topology")
	return topo, opts, nil
}

func build(f *hclFile) (*topology.Topology, error) {
	topo, err := topology.New(f.Dimensions)
	if err != nil {
		return nil, err
	}
	for _, p := range f.Points {
		if _, err := topo.AddPoint(p...); err != nil {
			return nil, err
		}
	}
	for _, b := range f.Blocks {
		id, err := topo.AddBlock(b.Corners...)
		if err != nil {
			return nil, err
		}
		if err := topo.SetSubdivisions(id, b.Subdivisions...); err != nil {
			return nil, err
		}
		gradings := b.Gradings
		if gradings == nil {
			gradings = ones(f.Dimensions)
		}
		if err := topo.SetGrading(id, gradings...); err != nil {
			return nil, err
		}
	}
	for _, p := range f.Patches {
		for _, face := range p.Faces {
			if err := topo.AddPatchFace(p.Name, face...); err != nil {
				return nil, err
			}
		}
	}
	for _, l := range f.Periodic {
		if err := topo.AddPeriodicLink(l.Source, l.Destination, l.Translation...); err != nil {
			return nil, err
		}
	}
	if e := f.Extrude; e != nil {
		gradings := e.Gradings
		if gradings == nil {
			gradings = ones(len(e.Positions))
		}
		return topo.Extrude(e.Positions, e.Segments, gradings)
	}
	return topo, nil
}

func ones(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = 1
	}
	return out
}
