// Package indexcompress run-length encodes lists of array indexes.
//
// A run of three or more consecutive indexes a, a+1, ..., b is stored as
// a, -1, b. Everything else is stored verbatim, so 1 2 3 4 8 10 11 encodes as
// 1 -1 4 8 10 11.
package indexcompress

import (
	"errors"
	"fmt"
	"slices"
)

// Gap marks an elided run between its neighbours.
const Gap int32 = -1

var (
	ErrLeadingGap  = errors.New("indexes start with -1")
	ErrTrailingGap = errors.New("indexes end with -1")
)

// Encode sorts and deduplicates indexes and collapses runs. The input is not
// modified.
func Encode(indexes []int32) ([]int32, error) {
	if len(indexes) == 0 {
		return []int32{}, nil
	}
	sorted := slices.Clone(indexes)
	slices.Sort(sorted)
	sorted = slices.Compact(sorted)
	if sorted[0] < 0 {
		return nil, fmt.Errorf("negative index %d", sorted[0])
	}

	out := make([]int32, 0, len(sorted))
	for i := 0; i < len(sorted); {
		j := i
		for j+1 < len(sorted) && sorted[j+1] == sorted[j]+1 {
			j++
		}
		switch j - i {
		case 0:
			out = append(out, sorted[i])
		case 1:
			out = append(out, sorted[i], sorted[j])
		default:
			out = append(out, sorted[i], Gap, sorted[j])
		}
		i = j + 1
	}
	return out, nil
}

// Decode expands an encoded list. Every index must be below size; a negative
// size disables the bounds check. Order and repeats are preserved as encoded.
func Decode(encoded []int32, size int) ([]int32, error) {
	if len(encoded) == 0 {
		return []int32{}, nil
	}
	if encoded[0] == Gap {
		return nil, ErrLeadingGap
	}
	if encoded[len(encoded)-1] == Gap {
		return nil, ErrTrailingGap
	}

	inBounds := func(v int32) error {
		if size >= 0 && int(v) >= size {
			return fmt.Errorf("index %d out of bounds: %d", v, size)
		}
		return nil
	}

	out := make([]int32, 0, len(encoded))
	for i, v := range encoded {
		switch {
		case v == Gap:
			start, end := encoded[i-1], encoded[i+1]
			if end == Gap || end <= start+1 {
				return nil, fmt.Errorf("invalid range: %d->%d", start, end)
			}
			if err := inBounds(end); err != nil {
				return nil, err
			}
			for fill := start + 1; fill < end; fill++ {
				out = append(out, fill)
			}
		case v < Gap:
			return nil, fmt.Errorf("invalid index: %d", v)
		default:
			if err := inBounds(v); err != nil {
				return nil, err
			}
			out = append(out, v)
		}
	}
	return out, nil
}
