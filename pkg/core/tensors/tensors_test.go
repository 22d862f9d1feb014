// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"bytes"
	"encoding/gob"
	"path/filepath"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/florischabert/translate/pkg/core/shapes"
)

func TestFromValue(t *testing.T) {
	shape, err := shapeForValue([][]float32{{0, 0}, {1, 1}, {2, 2}})
	require.NoError(t, err)
	assert.True(t, shapes.Make(dtypes.Float32, 3, 2).Equal(shape))

	_, err = shapeForValue([][]float32{{0, 0}, {1}})
	require.Error(t, err)
	_, err = shapeForValue([]int64{})
	require.Error(t, err)

	// Go's int is always stored as Int64.
	tInt := FromValue([][]int{{1, 2}, {3, 4}})
	assert.Equal(t, dtypes.Int64, tInt.DType())
	assert.Equal(t, [][]int64{{1, 2}, {3, 4}}, tInt.Value())

	scalar := FromValue(int32(7))
	assert.True(t, scalar.IsScalar())
	assert.Equal(t, int32(7), scalar.Value())
	assert.Equal(t, int32(7), ToScalar[int32](scalar))

	assert.Equal(t, dtypes.Int64, FromScalar(3).DType())
	assert.Equal(t, []int64{3, 3}, FromScalarAndDimensions(3, 2).Value())
}

func TestConstructors(t *testing.T) {
	zeros := FromShape(shapes.Make(dtypes.Float32, 2, 2))
	assert.Equal(t, [][]float32{{0, 0}, {0, 0}}, zeros.Value())

	encoderInputs := FromFlatDataAndDimensions([]int64{2, 7, 4}, 3, 1)
	assert.Equal(t, []int{3, 1}, encoderInputs.Shape().Dimensions)
	assert.Equal(t, [][]int64{{2}, {7}, {4}}, encoderInputs.Value())
	require.Panics(t, func() { _ = FromFlatDataAndDimensions([]int64{1, 2}, 3) })

	// The data is copied.
	data := []float32{1, 2, 3}
	x := FromFlatDataAndDimensions(data, 3)
	data[0] = 100
	assert.Equal(t, []float32{1, 2, 3}, CopyFlatData[float32](x))

	_, err := FromAnyFlatData(shapes.Make(dtypes.Float32, 2), []float64{1, 2})
	require.Error(t, err)
	_, err = FromAnyFlatData(shapes.Make(dtypes.Float32, 3), []float32{1, 2})
	require.Error(t, err)
	empty, err := FromAnyFlatData(shapes.Make(dtypes.Float32, 0, 4), []float32(nil))
	require.NoError(t, err)
	assert.True(t, empty.Ok())
	assert.Equal(t, 0, empty.Size())
}

func TestAliasAndFinalize(t *testing.T) {
	x := FromValue([]float32{1, 2, 3})
	require.Equal(t, 1, x.NumReferences())

	alias := x.Alias()
	require.True(t, alias.SharesStorage(x))
	require.Equal(t, 2, x.NumReferences())
	require.True(t, alias.Equal(x))

	x.FinalizeAll()
	require.False(t, x.Ok())
	require.Panics(t, func() { _ = x.Value() }, "released handle can't be used")
	require.True(t, alias.Ok(), "aliases must survive the release of other handles")
	assert.Equal(t, []float32{1, 2, 3}, alias.Value())

	// Releasing the same handle twice doesn't affect the aliases.
	x.FinalizeAll()
	require.Equal(t, 1, alias.NumReferences())

	alias.FinalizeAll()
	require.False(t, alias.Ok())
	require.Equal(t, 0, alias.NumReferences())

	var nilTensor *Tensor
	require.NotPanics(t, func() { nilTensor.FinalizeAll() })
	require.False(t, nilTensor.Ok())
}

func TestConstFlatData(t *testing.T) {
	x := FromValue([][]int64{{1, 2}, {3, 4}})
	ConstFlatData(x, func(flat []int64) {
		assert.Equal(t, []int64{1, 2, 3, 4}, flat)
	})
	require.Panics(t, func() { ConstFlatData(x, func(flat []int32) {}) })
	require.Panics(t, func() { _ = ToScalar[int64](x) })
	x.ConstFlatData(func(flat any) {
		assert.IsType(t, []int64{}, flat)
	})
	assert.Equal(t, []int{2, 1}, x.LayoutStrides())
}

func TestBroadcastAxis(t *testing.T) {
	t.Run("float32", func(t *testing.T) {
		// [L=3, 1, H=2] -> [3, 4, 2]
		x := FromValue([][][]float32{{{1, 2}}, {{3, 4}}, {{5, 6}}})
		b, err := BroadcastAxis(x, 1, 4)
		require.NoError(t, err)
		require.NoError(t, b.Shape().Check(dtypes.Float32, 3, 4, 2))
		got := b.Value().([][][]float32)
		want := x.Value().([][][]float32)
		for l := range 3 {
			for beam := range 4 {
				assert.Equal(t, want[l][0], got[l][beam], "slice [%d, %d, :]", l, beam)
			}
		}
		assert.False(t, b.SharesStorage(x))
		assert.True(t, x.Ok(), "source must not be released")
	})

	t.Run("float16", func(t *testing.T) {
		values := []float16.Float16{float16.Fromfloat32(0.5), float16.Fromfloat32(-1.25)}
		x := FromFlatDataAndDimensions(values, 2, 1, 1)
		b, err := BroadcastAxis(x, 1, 3)
		require.NoError(t, err)
		require.Equal(t, dtypes.Float16, b.DType())
		got, err := ToFloat32s(b)
		require.NoError(t, err)
		assert.Equal(t, []float32{0.5, 0.5, 0.5, -1.25, -1.25, -1.25}, got)
	})

	t.Run("negative axis", func(t *testing.T) {
		x := FromValue([][]int32{{1}, {2}})
		b, err := BroadcastAxis(x, -1, 2)
		require.NoError(t, err)
		assert.Equal(t, [][]int32{{1, 1}, {2, 2}}, b.Value())
	})

	t.Run("errors", func(t *testing.T) {
		x := FromValue([][]float32{{1, 2}})
		_, err := BroadcastAxis(x, 1, 4)
		require.Error(t, err, "axis must have dimension 1")
		_, err = BroadcastAxis(x, 2, 4)
		require.Error(t, err)
		_, err = BroadcastAxis(x, 0, 0)
		require.Error(t, err)
		_, err = BroadcastAxis(FromScalar(float32(1)), 0, 2)
		require.Error(t, err)
	})
}

func TestConversions(t *testing.T) {
	ints, err := ToInts(FromValue([]int32{3, 1, 4}))
	require.NoError(t, err)
	assert.Equal(t, []int{3, 1, 4}, ints)

	ints, err = ToInts(FromValue([]int64{7}))
	require.NoError(t, err)
	assert.Equal(t, []int{7}, ints)

	_, err = ToInts(FromValue([]float32{1}))
	require.Error(t, err)

	floats, err := ToFloat32s(FromValue([]float64{0.25, -2}))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.25, -2}, floats)

	bf := FromFlatDataAndDimensions([]bfloat16.BFloat16{bfloat16.FromFloat32(1.5)}, 1)
	floats, err = ToFloat32s(bf)
	require.NoError(t, err)
	assert.Equal(t, []float32{1.5}, floats)

	_, err = ToFloat32s(FromValue([]int64{1}))
	require.Error(t, err)

	assert.Equal(t, []float64{1, 2}, ToFloat64s(FromValue([]uint8{1, 2})))
	require.Panics(t, func() { _ = ToFloat64s(FromValue([]bool{true})) })
}

func TestEqualAndInDelta(t *testing.T) {
	x := FromValue([]float32{1, 2, 3})
	assert.True(t, x.Equal(FromValue([]float32{1, 2, 3})))
	assert.False(t, x.Equal(FromValue([]float32{1, 2, 4})))
	assert.False(t, x.Equal(FromValue([]float64{1, 2, 3})))
	assert.True(t, x.InDelta(FromValue([]float32{1.001, 2, 2.999}), 0.01))
	assert.False(t, x.InDelta(FromValue([]float32{1.1, 2, 3}), 0.01))
}

func TestGob(t *testing.T) {
	x := FromValue([][]float32{{1, 2}, {3, 4}, {5, 6}})
	var buf bytes.Buffer
	require.NoError(t, x.GobSerialize(gob.NewEncoder(&buf)))
	y, err := GobDeserialize(gob.NewDecoder(&buf))
	require.NoError(t, err)
	assert.True(t, x.Equal(y))

	path := filepath.Join(t.TempDir(), "tensor.bin")
	h := FromFlatDataAndDimensions([]float16.Float16{float16.Fromfloat32(3), float16.Fromfloat32(-0.5)}, 2)
	require.NoError(t, h.Save(path))
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.True(t, h.Equal(loaded))

	_, err = Load(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
}

func TestSummary(t *testing.T) {
	assert.Equal(t, "(Int64)[2 3]: {{2, 7, 4}, {2, 9, 4}}",
		FromValue([][]int64{{2, 7, 4}, {2, 9, 4}}).String())
	assert.Equal(t, "(Float32): 0.5", FromScalar(float32(0.5)).String())
	assert.Equal(t, "(Int32)[8]: {0, 1, 2, ..., 5, 6, 7}",
		FromValue([]int32{0, 1, 2, 3, 4, 5, 6, 7}).String())
	assert.Equal(t, "(Float32)[0 2]", FromShape(shapes.Make(dtypes.Float32, 0, 2)).String())

	x := FromScalar(int32(1))
	x.FinalizeAll()
	assert.Equal(t, "<invalid tensor>", x.String())
}
