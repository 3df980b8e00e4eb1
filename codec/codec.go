// Package codec persists a finished mesh. A file is an 8 byte header (magic
// "BMSH", big endian uint16 version and flags) followed by the msgpack
// encoded mesh tables, zstd compressed when flagZstd is set.
package codec

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"sort"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/notargets/blockmesh/mesh"
)

const (
	Magic   = "BMSH"
	Version = 1

	headerSize = 8

	flagZstd uint16 = 1 << 0
	knownFlags      = flagZstd
)

// wireMesh is the persisted form of mesh.Mesh. Element tables are stored as
// columns with a CSR connectivity.
type wireMesh struct {
	Dim         int       `msgpack:"dim"`
	Coords      []float64 `msgpack:"coords"`
	Owner       []int     `msgpack:"owner"`
	GlobalIndex []int     `msgpack:"global_index"`

	Types        []uint8 `msgpack:"types"`
	Blocks       []int   `msgpack:"blocks"`
	Cells        []int   `msgpack:"cells"`
	Offsets      []int   `msgpack:"offsets"`
	Connectivity []int   `msgpack:"connectivity"`

	Regions []wireRegion `msgpack:"regions"`

	PeriodicSecondary []int `msgpack:"periodic_secondary"`
	PeriodicPrimary   []int `msgpack:"periodic_primary"`

	NumRanks int   `msgpack:"num_ranks"`
	Axis     int   `msgpack:"axis"`
	EToP     []int `msgpack:"etop"`
}

type wireRegion struct {
	Name     string `msgpack:"name"`
	Elements []int  `msgpack:"elements"`
}

// Encode writes m to w.
func Encode(w io.Writer, m *mesh.Mesh) error {
	body, err := msgpack.Marshal(toWire(m))
	if err != nil {
		return fmt.Errorf("codec: encode body: %w", err)
	}
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedBetterCompression))
	if err != nil {
		return fmt.Errorf("codec: create zstd encoder: %w", err)
	}
	defer enc.Close()

	var header [headerSize]byte
	copy(header[:4], Magic)
	binary.BigEndian.PutUint16(header[4:6], Version)
	binary.BigEndian.PutUint16(header[6:8], flagZstd)
	if _, err := w.Write(header[:]); err != nil {
		return fmt.Errorf("codec: write header: %w", err)
	}
	if _, err := w.Write(enc.EncodeAll(body, nil)); err != nil {
		return fmt.Errorf("codec: write body: %w", err)
	}
	return nil
}

// Decode reads a mesh written by Encode and validates every table.
func Decode(r io.Reader) (*mesh.Mesh, error) {
	var header [headerSize]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, codecErr("header", -1, -1, "short header: %v", err)
	}
	if string(header[:4]) != Magic {
		return nil, codecErr("header", -1, -1, "bad magic %q", header[:4])
	}
	if v := binary.BigEndian.Uint16(header[4:6]); v != Version {
		return nil, codecErr("header", -1, -1, "version %d, want %d", v, Version)
	}
	flags := binary.BigEndian.Uint16(header[6:8])
	if flags&^knownFlags != 0 {
		return nil, codecErr("header", -1, -1, "unknown flags %#04x", flags)
	}

	body, err := io.ReadAll(r)
	if err != nil {
		return nil, codecErr("body", -1, -1, "read: %v", err)
	}
	if flags&flagZstd != 0 {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("codec: create zstd decoder: %w", err)
		}
		defer dec.Close()
		if body, err = dec.DecodeAll(body, nil); err != nil {
			return nil, codecErr("body", -1, -1, "decompress: %v", err)
		}
	}

	var wm wireMesh
	dec := msgpack.NewDecoder(bytes.NewReader(body))
	if err := dec.Decode(&wm); err != nil {
		return nil, codecErr("body", -1, -1, "decode: %v", err)
	}
	if err := validate(&wm); err != nil {
		return nil, err
	}
	return fromWire(&wm), nil
}

// WriteFile encodes m into the named file.
func WriteFile(path string, m *mesh.Mesh) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("codec: %w", err)
	}
	defer func() {
		if cerr := f.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("codec: %w", cerr)
		}
	}()
	return Encode(f, m)
}

// ReadFile decodes the named file.
func ReadFile(path string) (*mesh.Mesh, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("codec: %w", err)
	}
	defer f.Close()
	return Decode(f)
}

func toWire(m *mesh.Mesh) *wireMesh {
	wm := &wireMesh{
		Dim:         m.Dim,
		Coords:      m.Coords,
		Owner:       m.Owner,
		GlobalIndex: m.GlobalIndex,
		Types:       make([]uint8, len(m.Elements)),
		Blocks:      make([]int, len(m.Elements)),
		Cells:       make([]int, len(m.Elements)),
		Offsets:     make([]int, len(m.Elements)+1),
		NumRanks:    m.NumRanks,
		Axis:        m.Axis,
		EToP:        m.EToP,
	}
	for e, el := range m.Elements {
		wm.Types[e] = uint8(el.Type)
		wm.Blocks[e] = el.Block
		wm.Cells[e] = el.Cell
		wm.Connectivity = append(wm.Connectivity, el.Nodes...)
		wm.Offsets[e+1] = len(wm.Connectivity)
	}
	for _, r := range m.Regions {
		wm.Regions = append(wm.Regions, wireRegion{Name: r.Name, Elements: r.Elements})
	}
	for s := range m.Periodic {
		wm.PeriodicSecondary = append(wm.PeriodicSecondary, s)
	}
	sort.Ints(wm.PeriodicSecondary)
	for _, s := range wm.PeriodicSecondary {
		wm.PeriodicPrimary = append(wm.PeriodicPrimary, m.Periodic[s])
	}
	return wm
}

func fromWire(wm *wireMesh) *mesh.Mesh {
	m := mesh.New(wm.Dim)
	m.Coords = wm.Coords
	m.Owner = wm.Owner
	m.GlobalIndex = wm.GlobalIndex
	m.NumRanks = wm.NumRanks
	m.Axis = wm.Axis
	m.EToP = wm.EToP
	m.Elements = make([]mesh.Element, len(wm.Types))
	for e := range m.Elements {
		m.Elements[e] = mesh.Element{
			Type:  mesh.GeometryType(wm.Types[e]),
			Nodes: wm.Connectivity[wm.Offsets[e]:wm.Offsets[e+1]:wm.Offsets[e+1]],
			Block: wm.Blocks[e],
			Cell:  wm.Cells[e],
		}
	}
	for _, r := range wm.Regions {
		m.AddRegion(r.Name, r.Elements...)
	}
	for i, s := range wm.PeriodicSecondary {
		m.Periodic[s] = wm.PeriodicPrimary[i]
	}
	return m
}

func validate(wm *wireMesh) error {
	if wm.Dim != 2 && wm.Dim != 3 {
		return codecErr("nodes", -1, -1, "dimension %d", wm.Dim)
	}
	if len(wm.Coords)%wm.Dim != 0 {
		return codecErr("nodes", -1, -1, "%d coordinates is not a multiple of %d", len(wm.Coords), wm.Dim)
	}
	numNodes := len(wm.Coords) / wm.Dim
	for i, x := range wm.Coords {
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return codecErr("nodes", i/wm.Dim, -1, "non-finite coordinate %v", x)
		}
	}

	numElems := len(wm.Types)
	if len(wm.Blocks) != numElems || len(wm.Cells) != numElems || len(wm.Offsets) != numElems+1 {
		return codecErr("elements", -1, -1, "table lengths %d/%d/%d/%d disagree",
			numElems, len(wm.Blocks), len(wm.Cells), len(wm.Offsets))
	}
	if wm.Offsets[0] != 0 || wm.Offsets[numElems] != len(wm.Connectivity) {
		return codecErr("elements", -1, -1, "offsets do not span %d connectivity entries", len(wm.Connectivity))
	}
	for e := 0; e < numElems; e++ {
		g := mesh.GeometryType(wm.Types[e])
		if !g.Valid() {
			return codecErr("elements", -1, e, "unknown geometry %d", wm.Types[e])
		}
		want := mesh.CellType(wm.Dim)
		if wm.Cells[e] != -1 {
			want = mesh.FaceType(wm.Dim)
		}
		if g != want {
			return codecErr("elements", -1, e, "%v in a %dD mesh, want %v", g, wm.Dim, want)
		}
		lo, hi := wm.Offsets[e], wm.Offsets[e+1]
		if lo < 0 || lo > hi || hi > len(wm.Connectivity) || hi-lo != g.NumVertices() {
			return codecErr("elements", -1, e, "%v has offsets [%d, %d)", g, lo, hi)
		}
		for _, n := range wm.Connectivity[lo:hi] {
			if n < 0 || n >= numNodes {
				return codecErr("elements", n, e, "node out of range [0, %d)", numNodes)
			}
		}
		if c := wm.Cells[e]; c != -1 && (c < 0 || c >= numElems || wm.Cells[c] != -1) {
			return codecErr("elements", -1, e, "bounding cell %d is not a cell", c)
		}
	}

	names := make(map[string]bool)
	for _, r := range wm.Regions {
		if names[r.Name] {
			return codecErr("regions", -1, -1, "duplicate region %q", r.Name)
		}
		names[r.Name] = true
		for _, e := range r.Elements {
			if e < 0 || e >= numElems {
				return codecErr("regions", -1, e, "region %q element out of range", r.Name)
			}
		}
	}

	if len(wm.PeriodicSecondary) != len(wm.PeriodicPrimary) {
		return codecErr("periodic", -1, -1, "%d secondaries, %d primaries",
			len(wm.PeriodicSecondary), len(wm.PeriodicPrimary))
	}
	periodic := make(map[int]int, len(wm.PeriodicSecondary))
	for i, s := range wm.PeriodicSecondary {
		p := wm.PeriodicPrimary[i]
		if s < 0 || s >= numNodes || p < 0 || p >= numNodes {
			return codecErr("periodic", s, -1, "pair (%d, %d) out of range", s, p)
		}
		if _, dup := periodic[s]; dup || s == p {
			return codecErr("periodic", s, -1, "invalid secondary")
		}
		periodic[s] = p
	}
	for s := range periodic {
		n := s
		for steps := 0; ; steps++ {
			p, ok := periodic[n]
			if !ok {
				break
			}
			if steps > len(periodic) {
				return codecErr("periodic", s, -1, "periodic chain does not terminate")
			}
			n = p
		}
	}

	if wm.Owner != nil {
		if len(wm.Owner) != numNodes {
			return codecErr("ownership", -1, -1, "%d owners for %d nodes", len(wm.Owner), numNodes)
		}
		for n, r := range wm.Owner {
			if r < 0 || r >= wm.NumRanks {
				return codecErr("ownership", n, -1, "owner %d out of range [0, %d)", r, wm.NumRanks)
			}
		}
	}
	if wm.EToP != nil {
		if len(wm.EToP) != numElems {
			return codecErr("ownership", -1, -1, "%d element partitions for %d elements", len(wm.EToP), numElems)
		}
		for e, r := range wm.EToP {
			if r < 0 || r >= wm.NumRanks {
				return codecErr("ownership", -1, e, "partition %d out of range [0, %d)", r, wm.NumRanks)
			}
		}
	}

	if wm.GlobalIndex != nil {
		if len(wm.GlobalIndex) != numNodes {
			return codecErr("global_index", -1, -1, "%d indices for %d nodes", len(wm.GlobalIndex), numNodes)
		}
		total := numNodes - len(periodic)
		seen := make([]int, total)
		for i := range seen {
			seen[i] = -1
		}
		for n, g := range wm.GlobalIndex {
			if _, secondary := periodic[n]; secondary {
				continue
			}
			if g < 0 || g >= total {
				return codecErr("global_index", n, -1, "index %d out of range [0, %d)", g, total)
			}
			if seen[g] >= 0 {
				return codecErr("global_index", n, -1, "duplicate index %d, also node %d", g, seen[g])
			}
			seen[g] = n
		}
		for s := range periodic {
			r := s
			for {
				p, ok := periodic[r]
				if !ok {
					break
				}
				r = p
			}
			if wm.GlobalIndex[s] != wm.GlobalIndex[r] {
				return codecErr("global_index", s, -1, "index %d differs from primary %d (%d)",
					wm.GlobalIndex[s], r, wm.GlobalIndex[r])
			}
		}
	}
	return nil
}
