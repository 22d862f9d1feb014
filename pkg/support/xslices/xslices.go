// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package xslices provide missing functionality to the slices package, used when
// moving flat tensor data around.
package xslices

import (
	"cmp"
	"math"
	"slices"

	"golang.org/x/exp/constraints"
)

// Copy creates a new (shallow) copy of T. A short cut to a call to `make` and then `copy`.
//
// Different from slices.Clone, an empty slice yields a non-nil empty slice, so it can be used
// as tensor storage.
func Copy[T any](slice []T) []T {
	slice2 := make([]T, len(slice))
	copy(slice2, slice)
	return slice2
}

// FillSlice with fill the slice with the given value.
func FillSlice[T any](slice []T, value T) {
	// Apparently, the fastest way is by using copy.
	if len(slice) == 0 {
		return
	}
	slice[0] = value
	for filled := 1; filled < len(slice); filled *= 2 {
		copy(slice[filled:], slice[:filled])
	}
}

// Map executes the given function sequentially for every element on in, and returns a mapped slice.
func Map[In, Out any](in []In, fn func(e In) Out) (out []Out) {
	out = make([]Out, len(in))
	for ii, e := range in {
		out[ii] = fn(e)
	}
	return
}

// Convert converts each element of a numeric slice to another numeric type.
func Convert[Out, In constraints.Integer | constraints.Float](in []In) []Out {
	return Map(in, func(e In) Out { return Out(e) })
}

// Iota returns a slice of incremental int values, starting with start and of length len.
// Eg: Iota(3.0, 2) -> []float64{3.0, 4.0}
func Iota[T constraints.Integer | constraints.Float](start T, len int) (slice []T) {
	slice = make([]T, len)
	for ii := range slice {
		slice[ii] = start + T(ii)
	}
	return
}

// SortedKeys returns the sorted keys of a map in the form of a slice.
func SortedKeys[K cmp.Ordered, V any](m map[K]V) []K {
	s := make([]K, 0, len(m))
	for k := range m {
		s = append(s, k)
	}
	slices.Sort(s)
	return s
}

// SlicesInDelta checks whether s0 and s1 have the same length and that each of their values
// are within the given delta. Two NaN values are considered equal.
//
// If delta <= 0, it checks for equality.
func SlicesInDelta[T constraints.Float](s0, s1 []T, delta T) bool {
	if len(s0) != len(s1) {
		return false
	}
	for ii, e0 := range s0 {
		e1 := s1[ii]
		if e0 == e1 {
			continue
		}
		if math.IsNaN(float64(e0)) && math.IsNaN(float64(e1)) {
			continue
		}
		if delta <= 0 || math.Abs(float64(e0-e1)) > float64(delta) {
			return false
		}
	}
	return true
}
