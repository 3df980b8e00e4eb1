package utils

import (
	"fmt"
	"gonum.org/v1/gonum/floats"
	"math"
)

// CoordinateIndex finds points that coincide within a tolerance. Points are
// bucketed by their coordinates quantized with the tolerance as bucket width,
// so any point within tolerance of a query lies in the query's bucket or one
// of its immediate neighbours. Distance is measured in the max norm.
type CoordinateIndex struct {
	Dim       int
	Tolerance float64

	buckets map[bucketKey][]entry
}

type bucketKey [3]int64

type entry struct {
	id     int
	coords []float64
}

// NewCoordinateIndex creates an empty index.
func NewCoordinateIndex(dim int, tolerance float64) (*CoordinateIndex, error) {
	if dim < 1 || dim > 3 {
		return nil, fmt.Errorf("invalid dimension %d", dim)
	}
	if !(tolerance > 0) || math.IsInf(tolerance, 0) {
		return nil, fmt.Errorf("tolerance %v must be positive and finite", tolerance)
	}
	return &CoordinateIndex{
		Dim:       dim,
		Tolerance: tolerance,
		buckets:   make(map[bucketKey][]entry),
	}, nil
}

// Insert adds a point with the given id.
func (ci *CoordinateIndex) Insert(id int, coords []float64) error {
	key, err := ci.key(coords)
	if err != nil {
		return err
	}
	ci.buckets[key] = append(ci.buckets[key], entry{id: id, coords: append([]float64(nil), coords[:ci.Dim]...)})
	return nil
}

// Find returns the lowest id among the points within tolerance of coords.
// The result does not depend on insertion order.
func (ci *CoordinateIndex) Find(coords []float64) (int, bool, error) {
	key, err := ci.key(coords)
	if err != nil {
		return -1, false, err
	}
	best := -1
	ci.neighbours(key, func(k bucketKey) {
		for _, e := range ci.buckets[k] {
			if floats.Distance(e.coords, coords[:ci.Dim], math.Inf(1)) <= ci.Tolerance {
				if best < 0 || e.id < best {
					best = e.id
				}
			}
		}
	})
	return best, best >= 0, nil
}

// FindOrInsert returns the id of a coincident point if one exists,
// otherwise inserts the point under id and returns it.
func (ci *CoordinateIndex) FindOrInsert(id int, coords []float64) (int, bool, error) {
	found, ok, err := ci.Find(coords)
	if err != nil {
		return -1, false, err
	}
	if ok {
		return found, true, nil
	}
	return id, false, ci.Insert(id, coords)
}

// Len returns the number of points stored.
func (ci *CoordinateIndex) Len() int {
	n := 0
	for _, b := range ci.buckets {
		n += len(b)
	}
	return n
}

func (ci *CoordinateIndex) key(coords []float64) (bucketKey, error) {
	var k bucketKey
	if len(coords) < ci.Dim {
		return k, fmt.Errorf("point has %d coordinates, want %d", len(coords), ci.Dim)
	}
	for d := 0; d < ci.Dim; d++ {
		q := math.Floor(coords[d] / ci.Tolerance)
		if math.IsNaN(q) || math.Abs(q) > 1<<62 {
			return k, fmt.Errorf("coordinate %v cannot be quantized with tolerance %v", coords[d], ci.Tolerance)
		}
		k[d] = int64(q)
	}
	return k, nil
}

func (ci *CoordinateIndex) neighbours(k bucketKey, visit func(bucketKey)) {
	var offsets [3][]int64
	for d := 0; d < 3; d++ {
		if d < ci.Dim {
			offsets[d] = []int64{-1, 0, 1}
		} else {
			offsets[d] = []int64{0}
		}
	}
	for _, dx := range offsets[0] {
		for _, dy := range offsets[1] {
			for _, dz := range offsets[2] {
				visit(bucketKey{k[0] + dx, k[1] + dy, k[2] + dz})
			}
		}
	}
}
