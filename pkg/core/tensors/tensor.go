// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package tensors implements a `Tensor`, an immutable multi-dimensional array exchanged
// between the beam search driver and the opaque inference modules it drives.
//
// Tensors are defined by their shape (a data type and its axes dimensions) and their actual
// content, stored as a flat slice of the Go type of the DType (row-major layout).
//
// A *Tensor is a handle to a reference-counted storage. Aliasing a tensor (Tensor.Alias)
// creates a new handle sharing the same storage: no copy is made. Each handle is released
// once with Tensor.FinalizeAll, and the storage is freed when the last handle is released.
// Since the content is never mutated after construction, handles can be freely shared.
//
// There are various ways to construct a Tensor from local data:
//
//   - FromShape(shape shapes.Shape): creates a tensor with the given shape, and zero values.
//
//   - FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int): creates a Tensor with the
//     given dimensions, filled with the scalar value given.
//
//   - FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int): creates a Tensor with the
//     given dimensions, and set the flattened values with the given data. Example:
//
//     t := FromFlatDataAndDimensions([]int64{2, 7, 4}, 3, 1) // encoder_inputs for a 3 tokens sentence.
//
//   - FromValue[S MultiDimensionSlice](value S): generic conversion from a scalar or a regular
//     multidimensional slice. Example:
//
//     t := FromValue([][]float32{{1, 2}, {3, 5}, {7, 11}})
package tensors

import (
	"sync/atomic"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/florischabert/translate/pkg/core/shapes"
)

// storage is the reference-counted backing of one or more Tensor handles.
type storage struct {
	// shape is immutable.
	shape shapes.Shape

	// flat holds the array with actual data, a slice of the Go type for the dtype of the shape.
	// It is set to nil when the last handle is released.
	flat any

	// refs counts the live handles pointing to this storage.
	refs atomic.Int32
}

// Tensor is a handle to an immutable multidimensional array, defined by its shape, a data
// type (dtypes.DType) and its axes' dimensions, and its actual content stored as a flat (1D)
// array of values.
//
// More details in the `tensors` package documentation.
type Tensor struct {
	storage  *storage
	released atomic.Bool
}

// newTensor returns a new handle to a fresh storage holding flat, with one reference.
func newTensor(shape shapes.Shape, flat any) *Tensor {
	s := &storage{shape: shape, flat: flat}
	s.refs.Store(1)
	return &Tensor{storage: s}
}

// Shape of the tensor, includes DType.
func (t *Tensor) Shape() shapes.Shape { return t.storage.shape }

// DType returns the DType of the tensor's shape.
// It is a shortcut to `Tensor.Shape().DType`.
func (t *Tensor) DType() dtypes.DType {
	return t.storage.shape.DType
}

// Rank returns the rank of the tensor's shape.
// It is a shortcut to `Tensor.Shape().Rank()`.
func (t *Tensor) Rank() int { return t.storage.shape.Rank() }

// IsScalar returns whether the tensor represents a scalar value.
// It is a shortcut to `Tensor.Shape().IsScalar()`.
func (t *Tensor) IsScalar() bool { return t.storage.shape.IsScalar() }

// Size returns the number of elements in the tensor.
// It is a shortcut to `Tensor.Shape().Size()`.
func (t *Tensor) Size() int { return t.storage.shape.Size() }

// Memory returns the number of bytes used to store the tensor. An alias to Tensor.Shape().Memory().
func (t *Tensor) Memory() uintptr { return t.storage.shape.Memory() }

// Ok returns whether the Tensor is in a valid state: it is not nil, and this handle hasn't been released.
func (t *Tensor) Ok() bool {
	return t != nil && t.storage != nil && !t.released.Load() && t.storage.flat != nil
}

// AssertValid panics if the tensor is nil, if this handle was released or if its storage was freed.
func (t *Tensor) AssertValid() {
	if t == nil {
		panic(errors.New("Tensor is nil"))
	}
	if t.storage == nil || !t.storage.shape.Ok() {
		panic(errors.New("Tensor shape is invalid"))
	}
	if t.released.Load() {
		panic(errors.Errorf("Tensor %s handle used after FinalizeAll", t.storage.shape))
	}
	if t.storage.flat == nil {
		panic(errors.Errorf("Tensor %s storage has already been freed", t.storage.shape))
	}
}

// Alias returns a new handle sharing the same storage as t: no data is copied.
//
// The returned handle must be released independently with FinalizeAll.
func (t *Tensor) Alias() *Tensor {
	t.AssertValid()
	t.storage.refs.Add(1)
	return &Tensor{storage: t.storage}
}

// SharesStorage returns whether t and other are handles to the same storage.
func (t *Tensor) SharesStorage(other *Tensor) bool {
	return t != nil && other != nil && t.storage == other.storage
}

// NumReferences returns the number of live handles to the tensor's storage.
func (t *Tensor) NumReferences() int {
	return int(t.storage.refs.Load())
}

// FinalizeAll releases this handle. When the last handle to the storage is released, the
// storage is freed and every other (already released) handle becomes invalid.
//
// Releasing the same handle more than once is a no-op. Calling it on a nil Tensor is also a no-op.
func (t *Tensor) FinalizeAll() {
	if t == nil || t.storage == nil {
		return
	}
	if !t.released.CompareAndSwap(false, true) {
		return
	}
	if t.storage.refs.Add(-1) == 0 {
		t.storage.flat = nil
	}
}
