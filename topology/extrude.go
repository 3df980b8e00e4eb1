package topology

import "fmt"

// Extrude builds a 3D topology from a 2D one by sweeping it along z.
// positions are the z coordinates of the layer tops (the base is z = 0),
// segments and gradings give the subdivision count and grading ratio of each
// layer. Every 2D patch becomes a side patch of the same name; the base and
// the top are added as the "front" and "back" patches, so the 2D topology
// must not use those names. Periodic links are carried over with a zero z
// translation.
func (t *Topology) Extrude(positions []float64, segments []int, gradings []float64) (*Topology, error) {
	if t.Dim != 2 {
		return nil, topoErr("description", "", "only 2D topologies can be extruded")
	}
	if err := t.Validate(); err != nil {
		return nil, err
	}
	for _, name := range []string{"front", "back"} {
		if _, ok := t.patchIndex[name]; ok {
			return nil, topoErr("patch", name, "name is reserved for the extruded base and top")
		}
	}
	nl := len(positions)
	if nl == 0 || len(segments) != nl || len(gradings) != nl {
		return nil, topoErr("description", "", "extrusion needs equal, non-empty positions, segments and gradings")
	}
	prev := 0.0
	for i, z := range positions {
		if !(z > prev) {
			return nil, topoErr("description", "", "extrusion position %d (%v) must exceed %v", i, z, prev)
		}
		prev = z
	}

	out, err := New(3)
	if err != nil {
		return nil, err
	}
	np := len(t.Points)
	for l := 0; l <= nl; l++ {
		z := 0.0
		if l > 0 {
			z = positions[l-1]
		}
		for _, p := range t.Points {
			if _, err := out.AddPoint(p.Coords[0], p.Coords[1], z); err != nil {
				return nil, err
			}
		}
	}
	at := func(p, layer int) int { return p + layer*np }

	for l := 0; l < nl; l++ {
		for _, b := range t.Blocks {
			c := b.Corners
			id, err := out.AddBlock(
				at(c[0], l), at(c[1], l), at(c[2], l), at(c[3], l),
				at(c[0], l+1), at(c[1], l+1), at(c[2], l+1), at(c[3], l+1))
			if err != nil {
				return nil, err
			}
			if err := out.SetSubdivisions(id, b.Subdivisions[0], b.Subdivisions[1], segments[l]); err != nil {
				return nil, err
			}
			g := b.Gradings
			gz := gradings[l]
			if err := out.SetGrading(id,
				g[0], g[1], g[1], g[0],
				g[2], g[3], g[3], g[2],
				gz, gz, gz, gz); err != nil {
				return nil, err
			}
		}
	}

	for _, p := range t.Patches {
		for l := 0; l < nl; l++ {
			for _, f := range p.Faces {
				a, b := f.Points[0], f.Points[1]
				if err := out.AddPatchFace(p.Name, at(a, l), at(b, l), at(b, l+1), at(a, l+1)); err != nil {
					return nil, fmt.Errorf("extruding patch %s: %w", p.Name, err)
				}
			}
		}
	}
	for _, b := range t.Blocks {
		c := b.Corners
		if err := out.AddPatchFace("front", c[0], c[3], c[2], c[1]); err != nil {
			return nil, err
		}
	}
	for _, b := range t.Blocks {
		c := b.Corners
		if err := out.AddPatchFace("back", at(c[0], nl), at(c[1], nl), at(c[2], nl), at(c[3], nl)); err != nil {
			return nil, err
		}
	}
	for _, link := range t.Links {
		if err := out.AddPeriodicLink(link.Source, link.Destination,
			link.Translation[0], link.Translation[1], 0); err != nil {
			return nil, err
		}
	}
	return out, nil
}
