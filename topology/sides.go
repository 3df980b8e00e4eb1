package topology

// Side describes one logical face of a block. Face lattice points are walked
// with U as the fast axis and V as the slow axis, which gives the corner
// cycle listed in Corners (counter-clockwise seen from outside the block).
type Side struct {
	Axis    int  // logical axis held fixed
	High    bool // fixed at the upper end of Axis
	U, V    int  // tangential axes; V is -1 in 2D
	Reverse bool // U runs from its upper end to its lower end
	Corners []int
}

var sides2D = []Side{
	{Axis: 1, U: 0, V: -1, Corners: []int{0, 1}},
	{Axis: 0, High: true, U: 1, V: -1, Corners: []int{1, 2}},
	{Axis: 1, High: true, U: 0, V: -1, Reverse: true, Corners: []int{2, 3}},
	{Axis: 0, U: 1, V: -1, Reverse: true, Corners: []int{3, 0}},
}

var sides3D = []Side{
	{Axis: 2, U: 1, V: 0, Corners: []int{0, 3, 2, 1}},
	{Axis: 2, High: true, U: 0, V: 1, Corners: []int{4, 5, 6, 7}},
	{Axis: 1, U: 0, V: 2, Corners: []int{0, 1, 5, 4}},
	{Axis: 0, High: true, U: 1, V: 2, Corners: []int{1, 2, 6, 5}},
	{Axis: 1, High: true, U: 2, V: 0, Corners: []int{3, 7, 6, 2}},
	{Axis: 0, U: 2, V: 1, Corners: []int{0, 4, 7, 3}},
}

// Edges are listed axis by axis, EdgesPerAxis(dim) edges for each axis, in
// the order gradings are given.
var edges2D = [][2]int{
	{0, 1}, {3, 2},
	{0, 3}, {1, 2},
}

var edges3D = [][2]int{
	{0, 1}, {3, 2}, {7, 6}, {4, 5},
	{0, 3}, {1, 2}, {5, 6}, {4, 7},
	{0, 4}, {1, 5}, {2, 6}, {3, 7},
}

// Sides returns the logical faces of a block of the given dimension.
func Sides(dim int) []Side {
	if dim == 2 {
		return sides2D
	}
	return sides3D
}

// Edges returns the logical edges of a block as pairs of local corner
// indices, running in the positive direction of their axis.
func Edges(dim int) [][2]int {
	if dim == 2 {
		return edges2D
	}
	return edges3D
}

// NumCorners is 4 for a quad block and 8 for a hex block.
func NumCorners(dim int) int { return 1 << dim }

// EdgesPerAxis is the number of logical edges running along one axis.
func EdgesPerAxis(dim int) int { return 1 << (dim - 1) }

// CornerLogical returns the logical (0/1) coordinates of a local corner.
func CornerLogical(dim, corner int) [3]int {
	var c [3]int
	switch corner % 4 {
	case 1:
		c[0] = 1
	case 2:
		c[0], c[1] = 1, 1
	case 3:
		c[1] = 1
	}
	if dim == 3 && corner >= 4 {
		c[2] = 1
	}
	return c
}
