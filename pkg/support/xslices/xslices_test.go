// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package xslices

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCopy(t *testing.T) {
	empty := Copy([]int{})
	require.NotNil(t, empty)
	assert.Empty(t, empty)

	src := []int{1, 2, 3}
	dst := Copy(src)
	dst[0] = 7
	assert.Equal(t, []int{1, 2, 3}, src)
}

func TestFillSlice(t *testing.T) {
	s := make([]float32, 7)
	FillSlice(s, 2.5)
	assert.Equal(t, []float32{2.5, 2.5, 2.5, 2.5, 2.5, 2.5, 2.5}, s)
	FillSlice([]int{}, 1)
}

func TestMapAndConvert(t *testing.T) {
	assert.Equal(t, []string{"a!", "b!"}, Map([]string{"a", "b"}, func(s string) string { return s + "!" }))
	assert.Equal(t, []int64{3, 4, 5}, Convert[int64]([]int32{3, 4, 5}))
	assert.Equal(t, []float32{0.5, 1.5}, Convert[float32]([]float64{0.5, 1.5}))
	assert.Equal(t, []int{2, 3, 4}, Iota(2, 3))
	assert.Equal(t, []float64{3, 4}, Iota(3.0, 2))
}

func TestSortedKeys(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, SortedKeys(map[string]int{"c": 1, "a": 2, "b": 3}))
}

func TestSlicesInDelta(t *testing.T) {
	nan := math.NaN()
	assert.True(t, SlicesInDelta([]float64{1, nan}, []float64{1.05, nan}, 0.1))
	assert.False(t, SlicesInDelta([]float64{1}, []float64{1.05}, 0))
	assert.False(t, SlicesInDelta([]float64{1}, []float64{1, 2}, 1))
}
