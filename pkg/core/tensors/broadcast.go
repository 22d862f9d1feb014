// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"reflect"

	"github.com/pkg/errors"
)

// BroadcastAxis returns a new tensor where the given axis, which must have dimension 1, is
// replicated size times. Every other axis, the DType and the values are preserved.
//
// E.g.: an encoder output of shape [L, 1, H] broadcast on axis 1 to size B becomes [L, B, H],
// where every slice [l, b, :] equals the original [l, 0, :].
//
// The source tensor is not changed, nor released.
func BroadcastAxis(t *Tensor, axis, size int) (*Tensor, error) {
	t.AssertValid()
	shape := t.Shape()
	if shape.Rank() == 0 {
		return nil, errors.Errorf("BroadcastAxis: cannot broadcast scalar %s", shape)
	}
	if axis < 0 {
		axis += shape.Rank()
	}
	if axis < 0 || axis >= shape.Rank() {
		return nil, errors.Errorf("BroadcastAxis: axis out of range for tensor %s", shape)
	}
	if shape.Dimensions[axis] != 1 {
		return nil, errors.Errorf("BroadcastAxis: axis %d of tensor %s must have dimension 1, got %d",
			axis, shape, shape.Dimensions[axis])
	}
	if size < 1 {
		return nil, errors.Errorf("BroadcastAxis: invalid broadcast size %d", size)
	}

	newShape := shape.WithDim(axis, size)
	outer, inner := shape.SplitAt(axis)
	src := reflect.ValueOf(t.storage.flat)
	dst := reflect.MakeSlice(src.Type(), newShape.Size(), newShape.Size())
	for o := range outer {
		block := src.Slice(o*inner, (o+1)*inner)
		for b := range size {
			start := (o*size + b) * inner
			reflect.Copy(dst.Slice(start, start+inner), block)
		}
	}
	return FromAnyFlatData(newShape, dst.Interface())
}
