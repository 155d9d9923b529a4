package batch

import (
	"cmp"
	"fmt"
	"slices"

	"golang.org/x/exp/constraints"
)

// SortOrder is the direction transparent records are sorted by their Y field.
type SortOrder string

const (
	// Ascending draws the smallest Y first.
	Ascending SortOrder = "ascending"
	// Descending draws the largest Y first.
	Descending SortOrder = "descending"
)

// SortByY returns a copy of data with its records ordered by the layout's Y field. The sort is stable, so
// records with equal Y keep their submission order, and sorting an already sorted slice is a no-op.
//
// data is never modified: the previous frame's GPU upload may still read from it. The returned slice is
// freshly allocated with the same length and capacity as data.
//
// Parameters:
//   - data: packed records, a whole multiple of layout.Stride long
//   - layout: the record layout
//   - order: Ascending or Descending
//
// Returns:
//   - []T: the sorted copy
//   - error: wrapped ErrDataShape when data is misaligned or the layout is invalid
func SortByY[T constraints.Integer | constraints.Float](data []T, layout Layout, order SortOrder) ([]T, error) {
	if err := layout.validate(); err != nil {
		return nil, err
	}
	stride := layout.Stride
	if len(data)%stride != 0 {
		return nil, fmt.Errorf("%w: %d values, stride %d", ErrDataShape, len(data), stride)
	}

	count := len(data) / stride
	perm := make([]int, count)
	for i := range perm {
		perm[i] = i
	}
	key := func(i int) T { return data[i*stride+layout.YField] }
	if order == Descending {
		slices.SortStableFunc(perm, func(a, b int) int { return cmp.Compare(key(b), key(a)) })
	} else {
		slices.SortStableFunc(perm, func(a, b int) int { return cmp.Compare(key(a), key(b)) })
	}

	out := make([]T, len(data), cap(data))
	for dst, src := range perm {
		copy(out[dst*stride:(dst+1)*stride], data[src*stride:(src+1)*stride])
	}
	return out, nil
}
