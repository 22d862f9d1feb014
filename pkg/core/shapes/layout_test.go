// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package shapes

import (
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/stretchr/testify/require"
)

func TestStrides(t *testing.T) {
	require.Equal(t, []int{12, 4, 1}, Make(dtypes.Float32, 2, 3, 4).Strides())
	require.Equal(t, []int{1}, Make(dtypes.Float32, 5).Strides())
	require.Equal(t, []int{2, 2, 1}, Make(dtypes.Float32, 3, 1, 2).Strides())
	require.Empty(t, Scalar[float32]().Strides())
}

func TestSplitAt(t *testing.T) {
	shape := Make(dtypes.Float32, 7, 1, 5)
	outer, inner := shape.SplitAt(1)
	require.Equal(t, 7, outer)
	require.Equal(t, 5, inner)

	outer, inner = shape.SplitAt(-1)
	require.Equal(t, 7, outer)
	require.Equal(t, 1, inner)

	outer, inner = Make(dtypes.Int64, 3).SplitAt(0)
	require.Equal(t, 1, outer)
	require.Equal(t, 1, inner)

	require.Panics(t, func() { _, _ = shape.SplitAt(3) })
}
