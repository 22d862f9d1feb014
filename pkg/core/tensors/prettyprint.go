// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/gomlx/gopjrt/dtypes/bfloat16"
	"github.com/x448/float16"
)

var (
	typeFloat16  = reflect.TypeOf(float16.Float16(0))
	typeBFloat16 = reflect.TypeOf(bfloat16.BFloat16(0))
)

// TensorStringDefaultPrecision used by Tensor.String.
const TensorStringDefaultPrecision = 4

// summaryMaxElements is the number of elements of an axis printed before using an ellipsis.
const summaryMaxElements = 6

// String converts to string, if not too large. It uses t.Summary(precision=4).
func (t *Tensor) String() string {
	if !t.Ok() {
		return "<invalid tensor>"
	}
	return t.Summary(TensorStringDefaultPrecision)
}

// Summary returns a one-line summary of the Tensor's content, prefixed by its shape.
// Axes longer than 6 elements are abbreviated with an ellipsis.
//
// Example: `(Int64)[2 3]: {{2, 7, 4}, {2, 9, 4}}`.
func (t *Tensor) Summary(precision int) string {
	t.AssertValid()
	shape := t.Shape()
	if shape.IsZeroSize() {
		return shape.String()
	}

	var buf strings.Builder
	w := func(format string, args ...any) { _, _ = fmt.Fprintf(&buf, format, args...) }
	values := reflect.ValueOf(t.storage.flat)
	wValue := func(v reflect.Value) {
		switch {
		case v.Type() == typeFloat16:
			w("%.*g", precision, v.Interface().(float16.Float16).Float32())
			return
		case v.Type() == typeBFloat16:
			w("%.*g", precision, v.Interface().(bfloat16.BFloat16).Float32())
			return
		}
		switch v.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			w("%d", v.Int())
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			w("%d", v.Uint())
		case reflect.Bool:
			w("%v", v.Bool())
		default:
			w("%.*g", precision, v.Interface())
		}
	}

	w("%s: ", shape)
	if shape.IsScalar() {
		wValue(values.Index(0))
		return buf.String()
	}

	strides := shape.Strides()
	var printAxis func(axis, offset int)
	printAxis = func(axis, offset int) {
		w("{")
		for ii, idx := range summaryIndices(shape.Dimensions[axis]) {
			if ii > 0 {
				w(", ")
			}
			switch {
			case idx < 0:
				w("...")
			case axis == shape.Rank()-1:
				wValue(values.Index(offset + idx))
			default:
				printAxis(axis+1, offset+idx*strides[axis])
			}
		}
		w("}")
	}
	printAxis(0, 0)
	return buf.String()
}

// summaryIndices returns the indices of an axis of dimension dim to print, with -1 marking the ellipsis.
func summaryIndices(dim int) []int {
	if dim <= summaryMaxElements {
		indices := make([]int, dim)
		for ii := range indices {
			indices[ii] = ii
		}
		return indices
	}
	half := summaryMaxElements / 2
	indices := make([]int, 0, summaryMaxElements+1)
	for ii := range half {
		indices = append(indices, ii)
	}
	indices = append(indices, -1)
	for ii := dim - half; ii < dim; ii++ {
		indices = append(indices, ii)
	}
	return indices
}
