package generator

import (
	"github.com/notargets/blockmesh/topology"
	"gonum.org/v1/gonum/mat"
)

// blockMap maps logical block coordinates in [0,1]^dim to physical space by
// bilinear (2D) or trilinear (3D) interpolation of the corner coordinates:
// x = X^T N(xi), with X the [corners × dim] coordinate matrix and N the
// vector of corner shape functions.
type blockMap struct {
	dim     int
	logical [][3]int
	corners *mat.Dense
	shape   *mat.VecDense
	out     *mat.VecDense
}

func newBlockMap(dim int, corners [][]float64) *blockMap {
	nc := len(corners)
	X := mat.NewDense(nc, dim, nil)
	logical := make([][3]int, nc)
	for c, x := range corners {
		X.SetRow(c, x[:dim])
		logical[c] = topology.CornerLogical(dim, c)
	}
	return &blockMap{
		dim:     dim,
		logical: logical,
		corners: X,
		shape:   mat.NewVecDense(nc, nil),
		out:     mat.NewVecDense(dim, nil),
	}
}

// At returns the physical coordinates of a logical point.
func (bm *blockMap) At(xi [3]float64) []float64 {
	for c, lc := range bm.logical {
		w := 1.0
		for d := 0; d < bm.dim; d++ {
			if lc[d] == 1 {
				w *= xi[d]
			} else {
				w *= 1 - xi[d]
			}
		}
		bm.shape.SetVec(c, w)
	}
	bm.out.MulVec(bm.corners.T(), bm.shape)
	return append([]float64(nil), bm.out.RawVector().Data...)
}

// lattice holds the structured node layout of one block and the graded
// distributions along each of its edges.
type lattice struct {
	dim   int
	n     [3]int
	edges [][2]int
	dist  [][]float64 // per edge, n[axis]+1 positions
}

func newLattice(dim int, subdivisions []int, gradings []float64) (*lattice, error) {
	l := &lattice{dim: dim, edges: topology.Edges(dim)}
	for d := 0; d < 3; d++ {
		l.n[d] = 0
		if d < dim {
			l.n[d] = subdivisions[d]
		}
	}
	perAxis := topology.EdgesPerAxis(dim)
	l.dist = make([][]float64, len(l.edges))
	for e := range l.edges {
		d, err := GradedDistribution(l.n[e/perAxis], gradings[e])
		if err != nil {
			return nil, err
		}
		l.dist[e] = d
	}
	return l, nil
}

// numNodes is the number of lattice nodes, the product of (n_i + 1).
func (l *lattice) numNodes() int {
	return (l.n[0] + 1) * (l.n[1] + 1) * (l.n[2] + 1)
}

func (l *lattice) numCells() int {
	c := 1
	for d := 0; d < l.dim; d++ {
		c *= l.n[d]
	}
	return c
}

func (l *lattice) node(i, j, k int) int {
	return i + (l.n[0]+1)*(j+(l.n[1]+1)*k)
}

func (l *lattice) nodeIJK(local int) [3]int {
	nx, ny := l.n[0]+1, l.n[1]+1
	return [3]int{local % nx, (local / nx) % ny, local / (nx * ny)}
}

func (l *lattice) cell(i, j, k int) int {
	ny := 1
	if l.dim > 1 {
		ny = l.n[1]
	}
	return i + l.n[0]*(j+ny*k)
}

func (l *lattice) onBoundary(ijk [3]int) bool {
	for d := 0; d < l.dim; d++ {
		if ijk[d] == 0 || ijk[d] == l.n[d] {
			return true
		}
	}
	return false
}

// logical returns the logical coordinates of a lattice node. Along each axis
// the distributions of the edges running in that direction are blended with
// the bilinear weights of the uniform transverse position.
func (l *lattice) logical(ijk [3]int) [3]float64 {
	var t [3]float64
	for d := 0; d < l.dim; d++ {
		t[d] = float64(ijk[d]) / float64(l.n[d])
	}
	perAxis := topology.EdgesPerAxis(l.dim)
	var xi [3]float64
	for a := 0; a < l.dim; a++ {
		switch ijk[a] {
		case 0:
			continue
		case l.n[a]:
			xi[a] = 1
			continue
		}
		u := 0.0
		for e := a * perAxis; e < (a+1)*perAxis; e++ {
			start := topology.CornerLogical(l.dim, l.edges[e][0])
			w := 1.0
			for b := 0; b < l.dim; b++ {
				if b == a {
					continue
				}
				if start[b] == 1 {
					w *= t[b]
				} else {
					w *= 1 - t[b]
				}
			}
			u += w * l.dist[e][ijk[a]]
		}
		xi[a] = u
	}
	return xi
}
