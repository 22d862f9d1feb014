// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

// Strides returns the strides for each axis of the shape, assuming a "row-major" layout
// in memory.
//
// Notice the strides are **not in bytes**, but in indices.
func (s Shape) Strides() (strides []int) {
	rank := s.Rank()
	if rank == 0 {
		return
	}
	strides = make([]int, rank)
	currentStride := 1
	for dim := rank - 1; dim >= 0; dim-- {
		strides[dim] = currentStride
		currentStride *= s.Dimensions[dim]
	}
	return
}

// SplitAt returns the number of elements before the given axis (the product of the leading
// dimensions) and after it (the product of the trailing dimensions).
//
// For a shape [L, B, H] and axis 1 it returns (L, H): a flat index is
// `(outer * B + axisIndex) * inner + innerIndex`.
func (s Shape) SplitAt(axis int) (outer, inner int) {
	_ = s.Dim(axis)
	if axis < 0 {
		axis += s.Rank()
	}
	outer, inner = 1, 1
	for _, dim := range s.Dimensions[:axis] {
		outer *= dim
	}
	for _, dim := range s.Dimensions[axis+1:] {
		inner *= dim
	}
	return
}
