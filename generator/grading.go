package generator

import (
	"fmt"
	"math"
)

// GradedDistribution returns n+1 node positions on [0, 1] whose cell sizes
// grow geometrically so that the last cell is r times the first one. The
// ratio between consecutive cells is q = r^(1/(n-1)); r = 1 gives uniform
// spacing and n = 1 gives the two end points.
func GradedDistribution(n int, r float64) ([]float64, error) {
	if n < 1 {
		return nil, fmt.Errorf("subdivision count %d must be positive", n)
	}
	if !(r > 0) || math.IsInf(r, 0) {
		return nil, fmt.Errorf("grading ratio %v must be positive", r)
	}
	x := make([]float64, n+1)
	x[n] = 1
	if n == 1 {
		return x, nil
	}
	q := math.Pow(r, 1/float64(n-1))
	if math.Abs(q-1) < 1e-12 {
		for i := 1; i < n; i++ {
			x[i] = float64(i) / float64(n)
		}
		return x, nil
	}
	denom := math.Pow(q, float64(n)) - 1
	for i := 1; i < n; i++ {
		x[i] = (math.Pow(q, float64(i)) - 1) / denom
	}
	return x, nil
}
