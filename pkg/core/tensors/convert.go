// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/pkg/errors"
	"github.com/x448/float16"
	"golang.org/x/exp/constraints"

	"github.com/florischabert/translate/pkg/support/xslices"
)

// ToInts returns a copy of the flat data of an integer tensor converted to Go's int.
//
// It returns an error if the tensor DType is not an integer.
func ToInts(t *Tensor) ([]int, error) {
	t.AssertValid()
	switch flat := t.storage.flat.(type) {
	case []int64:
		return xslices.Convert[int](flat), nil
	case []int32:
		return xslices.Convert[int](flat), nil
	case []int16:
		return xslices.Convert[int](flat), nil
	case []int8:
		return xslices.Convert[int](flat), nil
	case []uint64:
		return xslices.Convert[int](flat), nil
	case []uint32:
		return xslices.Convert[int](flat), nil
	case []uint16:
		return xslices.Convert[int](flat), nil
	case []uint8:
		return xslices.Convert[int](flat), nil
	}
	return nil, errors.Errorf("tensor %s doesn't hold integer values", t.Shape())
}

// ToFloat32s returns a copy of the flat data of a floating point tensor converted to float32.
// Float16 and BFloat16 values are widened, Float64 values are rounded.
//
// It returns an error if the tensor DType is not a floating point type.
func ToFloat32s(t *Tensor) ([]float32, error) {
	t.AssertValid()
	switch flat := t.storage.flat.(type) {
	case []float32:
		return xslices.Copy(flat), nil
	case []float64:
		return xslices.Convert[float32](flat), nil
	case []float16.Float16:
		return xslices.Map(flat, float16.Float16.Float32), nil
	case []bfloat16.BFloat16:
		return xslices.Map(flat, bfloat16.BFloat16.Float32), nil
	}
	return nil, errors.Errorf("tensor %s doesn't hold floating point values", t.Shape())
}

// ToFloat64s returns a copy of the flat data of any numeric tensor converted to float64.
//
// It panics if the tensor is not valid or if its DType is not numeric.
func ToFloat64s(t *Tensor) []float64 {
	t.AssertValid()
	switch flat := t.storage.flat.(type) {
	case []float16.Float16:
		return xslices.Map(flat, func(v float16.Float16) float64 { return float64(v.Float32()) })
	case []bfloat16.BFloat16:
		return xslices.Map(flat, func(v bfloat16.BFloat16) float64 { return float64(v.Float32()) })
	case []float32:
		return toFloat64s(flat)
	case []float64:
		return xslices.Copy(flat)
	}
	if ints, err := ToInts(t); err == nil {
		return toFloat64s(ints)
	}
	exceptions.Panicf("ToFloat64s: tensor %s is not numeric", t.Shape())
	return nil
}

func toFloat64s[T constraints.Integer | constraints.Float](flat []T) []float64 {
	return xslices.Convert[float64](flat)
}
