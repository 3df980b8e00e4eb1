package mesh

// GeometryType identifies the shape of an element
type GeometryType uint8

const (
	// 3D element types
	Tet     GeometryType = iota // Tetrahedron
	Hex                         // Hexahedron
	Prism                       // Triangular prism
	Pyramid                     // Square-based pyramid

	// 2D element types
	Tri       // Triangle
	Rectangle // Rectangle/Quadrilateral

	// 1D element type
	Line // Line segment
)

var geometryNames = [...]string{"Tet", "Hex", "Prism", "Pyramid", "Tri", "Rectangle", "Line"}

var geometryVertices = [...]int{4, 8, 6, 5, 3, 4, 2}

var geometryDims = [...]int{3, 3, 3, 3, 2, 2, 1}

func (g GeometryType) String() string {
	if int(g) < len(geometryNames) {
		return geometryNames[g]
	}
	return "Unknown"
}

// Valid reports whether g is a known geometry.
func (g GeometryType) Valid() bool { return int(g) < len(geometryNames) }

// NumVertices returns the number of corner nodes of the geometry.
func (g GeometryType) NumVertices() int { return geometryVertices[g] }

// Dimension returns the topological dimension of the geometry.
func (g GeometryType) Dimension() int { return geometryDims[g] }

// CellType is the cell geometry produced for a mesh dimension.
func CellType(dim int) GeometryType {
	if dim == 3 {
		return Hex
	}
	return Rectangle
}

// FaceType is the boundary face geometry produced for a mesh dimension.
func FaceType(dim int) GeometryType {
	if dim == 3 {
		return Rectangle
	}
	return Line
}
