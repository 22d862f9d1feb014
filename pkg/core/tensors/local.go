// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package tensors

import (
	"encoding/gob"
	"os"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/florischabert/translate/pkg/core/shapes"
	"github.com/florischabert/translate/pkg/support/xslices"
)

// FromShape returns a Tensor with the given shape, with the data initialized with zeros.
func FromShape(shape shapes.Shape) *Tensor {
	if !shape.Ok() {
		exceptions.Panicf("tensors.FromShape(%s): invalid shape", shape)
	}
	size := shape.Size()
	flatV := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), size, size)
	return newTensor(shape.Clone(), flatV.Interface())
}

// FromScalar creates a tensor holding the given scalar.
// The `DType` is inferred from the value.
func FromScalar[T dtypes.Supported](value T) *Tensor {
	return FromScalarAndDimensions(value)
}

// FromScalarAndDimensions creates a tensor with the given dimensions, filled with the
// given scalar value replicated everywhere.
// The `DType` is inferred from the value.
func FromScalarAndDimensions[T dtypes.Supported](value T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypeOf[T](), dimensions...)
	if isGoInt[T]() {
		flat := make([]int64, shape.Size())
		xslices.FillSlice(flat, int64(any(value).(int)))
		return newTensor(shape, flat)
	}
	flat := make([]T, shape.Size())
	xslices.FillSlice(flat, value)
	return newTensor(shape, flat)
}

// FromFlatDataAndDimensions creates a tensor with the given dimensions, filled with the flattened values given in `data`.
// The data is copied to the Tensor.
// The `DType` is inferred from the `data` type, and Go's `int` is stored as Int64.
//
// It panics if the size of data is wrong for the shape.
func FromFlatDataAndDimensions[T dtypes.Supported](data []T, dimensions ...int) *Tensor {
	shape := shapes.Make(dtypeOf[T](), dimensions...)
	if len(data) != shape.Size() {
		exceptions.Panicf("FromFlatDataAndDimensions(%s): data size is %d, but dimensions size is %d",
			shape, len(data), shape.Size())
	}
	if isGoInt[T]() {
		flat := make([]int64, len(data))
		for ii, v := range data {
			flat[ii] = int64(any(v).(int))
		}
		return newTensor(shape, flat)
	}
	return newTensor(shape, xslices.Copy(data))
}

// FromAnyFlatData creates a tensor with the given shape from a flat slice of the Go type
// of the shape's DType. The slice is owned by the new tensor and must not be changed afterward.
//
// It returns an error if the slice type or length doesn't match the shape.
func FromAnyFlatData(shape shapes.Shape, flat any) (*Tensor, error) {
	if !shape.Ok() {
		return nil, errors.Errorf("FromAnyFlatData: invalid shape %s", shape)
	}
	want := reflect.SliceOf(shape.DType.GoType())
	flatV := reflect.ValueOf(flat)
	if !flatV.IsValid() || flatV.Type() != want {
		return nil, errors.Errorf("FromAnyFlatData(%s): flat data must be of type %s, got %T", shape, want, flat)
	}
	if flatV.Len() != shape.Size() {
		return nil, errors.Errorf("FromAnyFlatData(%s): flat data has %d elements, wanted %d",
			shape, flatV.Len(), shape.Size())
	}
	if flatV.IsNil() {
		// Zero-size tensors still hold a non-nil (empty) slice.
		flat = reflect.MakeSlice(want, 0, 0).Interface()
	}
	return newTensor(shape.Clone(), flat), nil
}

// isGoInt returns whether T is Go's `int`, which is stored as Int64.
func isGoInt[T any]() bool {
	var dummy T
	_, ok := any(dummy).(int)
	return ok
}

// dtypeOf returns the DType used to store values of type T.
func dtypeOf[T dtypes.Supported]() dtypes.DType {
	if isGoInt[T]() {
		return dtypes.Int64
	}
	return dtypes.FromGenericsType[T]()
}

// MultiDimensionSlice lists the Go types a Tensor can be converted to/from. There are no recursions in
// generics' constraint definitions, so we list up to 4 levels of slices, enough for the tensors
// exchanged by the decoder. The implementation works with any arbitrary number of levels.
type MultiDimensionSlice interface {
	bool | float32 | float64 | int | int32 | int64 | uint8 | uint32 | uint64 |
		[]bool | []float32 | []float64 | []int | []int32 | []int64 | []uint8 | []uint32 | []uint64 |
		[][]bool | [][]float32 | [][]float64 | [][]int | [][]int32 | [][]int64 | [][]uint8 | [][]uint32 | [][]uint64 |
		[][][]bool | [][][]float32 | [][][]float64 | [][][]int | [][][]int32 | [][][]int64 | [][][]uint8 | [][][]uint32 | [][][]uint64 |
		[][][][]bool | [][][][]float32 | [][][][]float64 | [][][][]int | [][][][]int32 | [][][][]int64 | [][][][]uint8 | [][][][]uint32 | [][][][]uint64
}

// FromValue returns a tensor constructed from the given multi-dimension slice (or scalar).
// If the rank of the `value` is larger than 1, the shape of all sub-slices must be the same.
//
// It panics if the shape is not regular.
//
// Notice that FromFlatDataAndDimensions is much faster if speed here is a concern.
func FromValue[S MultiDimensionSlice](value S) *Tensor {
	return FromAnyValue(value)
}

// FromAnyValue is a non-generic version of FromValue.
// The input is expected to be either a scalar or a slice of slices with homogeneous dimensions.
//
// It panics with an error if the value type is unsupported or the shape is not regular.
func FromAnyValue(value any) *Tensor {
	shape, err := shapeForValue(value)
	if err != nil {
		panic(errors.Wrapf(err, "cannot create shape from %T", value))
	}
	size := shape.Size()
	flatV := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), size, size)
	valueV := reflect.ValueOf(value)
	if shape.IsScalar() {
		flatV.Index(0).Set(valueV.Convert(shape.DType.GoType()))
	} else {
		copySlicesRecursively(flatV, valueV, shape.Strides())
	}
	return newTensor(shape, flatV.Interface())
}

// copySlicesRecursively copy values on a multi-dimension slice to a flat data slice
// assuming the strides for each dimension.
func copySlicesRecursively(data reflect.Value, mdSlice reflect.Value, strides []int) {
	if len(strides) == 1 {
		if data.Type().Elem() == mdSlice.Type().Elem() {
			reflect.Copy(data, mdSlice)
			return
		}
		// Go's int stored as int64.
		elemT := data.Type().Elem()
		for ii := range mdSlice.Len() {
			data.Index(ii).Set(mdSlice.Index(ii).Convert(elemT))
		}
		return
	}
	subStrides := strides[1:]
	for ii := range mdSlice.Len() {
		start := ii * strides[0]
		end := (ii + 1) * strides[0]
		copySlicesRecursively(data.Slice(start, end), mdSlice.Index(ii), subStrides)
	}
}

func shapeForValue(v any) (shapes.Shape, error) {
	var shape shapes.Shape
	if v == nil {
		return shapes.Invalid(), errors.New("cannot create a tensor from nil")
	}
	err := shapeForValueRecursive(&shape, reflect.ValueOf(v), reflect.TypeOf(v))
	return shape, err
}

func shapeForValueRecursive(shape *shapes.Shape, v reflect.Value, t reflect.Type) error {
	switch t.Kind() {
	case reflect.Slice:
		t = t.Elem()
		shape.Dimensions = append(shape.Dimensions, v.Len())
		shapePrefix := shape.Clone()
		if v.Len() == 0 {
			return errors.Errorf("value with empty slice not valid for Tensor conversion: %T -- use FromShape for zero-size tensors",
				v.Interface())
		}
		if err := shapeForValueRecursive(shape, v.Index(0), t); err != nil {
			return err
		}
		// Other elements must have the same shape as the first one.
		for ii := 1; ii < v.Len(); ii++ {
			shapeTest := shapePrefix.Clone()
			if err := shapeForValueRecursive(&shapeTest, v.Index(ii), t); err != nil {
				return err
			}
			if !shape.Equal(shapeTest) {
				return errors.Errorf("sub-slices have irregular shapes, found shapes %q, and %q", shape, shapeTest)
			}
		}

	case reflect.Pointer:
		return errors.Errorf("cannot convert Pointer (%s) to a concrete value for tensors", t)

	default:
		shape.DType = dtypes.FromGoType(t)
		if shape.DType == dtypes.InvalidDType {
			return errors.Errorf("cannot convert type %s to a value concrete tensor type (maybe type not supported yet?)", t)
		}
	}
	return nil
}

// ConstFlatData calls accessFn with the flattened data as a slice of the Go type corresponding to the DType.
//
// The contents must not be changed: the storage is shared by every alias of the tensor.
// It panics if the tensor is not valid.
func (t *Tensor) ConstFlatData(accessFn func(flat any)) {
	t.AssertValid()
	accessFn(t.storage.flat)
}

// ConstFlatData calls accessFn with the flattened data as a slice of the Go type T.
//
// The contents must not be changed: the storage is shared by every alias of the tensor.
// It panics if the tensor is not valid or if T doesn't match the tensor's DType.
func ConstFlatData[T dtypes.Supported](t *Tensor, accessFn func(flat []T)) {
	t.AssertValid()
	flat, ok := t.storage.flat.([]T)
	if !ok {
		var zero T
		exceptions.Panicf("ConstFlatData[%T] is incompatible with Tensor's dtype %s", zero, t.DType())
	}
	accessFn(flat)
}

// CopyFlatData returns a copy of the flat data of the Tensor.
//
// It panics if the tensor is not valid or if T doesn't match the tensor's DType.
func CopyFlatData[T dtypes.Supported](t *Tensor) []T {
	var result []T
	ConstFlatData(t, func(flat []T) {
		result = make([]T, len(flat))
		copy(result, flat)
	})
	return result
}

// ToScalar returns the single value held by a tensor of size 1 (usually a scalar).
//
// It panics if the tensor is not valid, if T doesn't match the DType or if the tensor has more than one element.
func ToScalar[T dtypes.Supported](t *Tensor) T {
	var result T
	ConstFlatData(t, func(flat []T) {
		if len(flat) != 1 {
			exceptions.Panicf("ToScalar[%T] requires a tensor with exactly one element, got shape %s", result, t.Shape())
		}
		result = flat[0]
	})
	return result
}

// LayoutStrides return the strides for each axis. This can be handy when manipulating the flat data.
func (t *Tensor) LayoutStrides() (strides []int) {
	return t.Shape().Strides()
}

// Value returns a multidimensional slice (except if shape is a scalar) containing a copy of the values
// stored in the tensor.
//
// For a tensor of shape [L, B] and DType Int64, it returns a [][]int64.
func (t *Tensor) Value() any {
	t.AssertValid()
	flatV := reflect.ValueOf(t.storage.flat)
	if t.IsScalar() {
		return flatV.Index(0).Interface()
	}
	flatCopy := reflect.MakeSlice(flatV.Type(), flatV.Len(), flatV.Len())
	reflect.Copy(flatCopy, flatV)
	return convertDataToSlices(flatCopy, t.Shape().Dimensions...).Interface()
}

// convertDataToSlices takes data as a flat slice and creates a multidimensional slice with the given dimensions that
// points to the same data.
func convertDataToSlices(dataV reflect.Value, dimensions ...int) reflect.Value {
	if len(dimensions) <= 1 {
		return dataV
	}
	resultT := dataV.Type().Elem()
	for range dimensions {
		resultT = reflect.SliceOf(resultT)
	}
	strides := shapes.Make(dtypes.InvalidDType, dimensions...).Strides()
	return createSlicesRecursively(resultT, dataV, dimensions, strides)
}

func createSlicesRecursively(resultT reflect.Type, data reflect.Value, dimensions []int, strides []int) reflect.Value {
	if len(strides) == 1 {
		return data
	}
	numElements := dimensions[0]
	slice := reflect.MakeSlice(resultT, numElements, numElements)
	for ii := range numElements {
		subData := data.Slice(ii*strides[0], (ii+1)*strides[0])
		slice.Index(ii).Set(createSlicesRecursively(resultT.Elem(), subData, dimensions[1:], strides[1:]))
	}
	return slice
}

// Equal checks weather t == otherTensor: same shape and same values.
// Two handles to the same storage are always equal.
// If either side is invalid, it panics.
//
// Slow implementation: fine for small tensors, but write something specialized for the DType if speed is desired.
func (t *Tensor) Equal(otherTensor *Tensor) bool {
	t.AssertValid()
	otherTensor.AssertValid()
	if t.SharesStorage(otherTensor) {
		return true
	}
	if !t.Shape().Equal(otherTensor.Shape()) {
		return false
	}
	t0V := reflect.ValueOf(t.storage.flat)
	t1V := reflect.ValueOf(otherTensor.storage.flat)
	for ii := range t0V.Len() {
		if !t0V.Index(ii).Equal(t1V.Index(ii)) {
			return false
		}
	}
	return true
}

// InDelta checks weather Abs(t - otherTensor) <= delta for every element.
// If the shapes are different, it returns false.
// If either is invalid, it panics.
func (t *Tensor) InDelta(otherTensor *Tensor, delta float64) bool {
	t.AssertValid()
	otherTensor.AssertValid()
	if t.SharesStorage(otherTensor) {
		return true
	}
	if !t.Shape().Equal(otherTensor.Shape()) {
		return false
	}
	return xslices.SlicesInDelta(ToFloat64s(t), ToFloat64s(otherTensor), delta)
}

// GobSerialize Tensor in binary format.
//
// It returns an error for I/O errors.
// It panics for invalid tensors.
func (t *Tensor) GobSerialize(encoder *gob.Encoder) error {
	t.AssertValid()
	if err := t.Shape().GobSerialize(encoder); err != nil {
		return err
	}
	if err := encoder.Encode(t.storage.flat); err != nil {
		return errors.Wrapf(err, "failed to write tensor %s data", t.Shape())
	}
	return nil
}

// GobDeserialize a Tensor from the reader.
func GobDeserialize(decoder *gob.Decoder) (*Tensor, error) {
	shape, err := shapes.GobDeserialize(decoder)
	if err != nil {
		return nil, errors.WithMessagef(err, "failed to deserialize Tensor shape data")
	}
	flatPtrV := reflect.New(reflect.SliceOf(shape.DType.GoType()))
	if err = decoder.Decode(flatPtrV.Interface()); err != nil {
		return nil, errors.Wrapf(err, "failed to deserialize Tensor %s data", shape)
	}
	return FromAnyFlatData(shape, flatPtrV.Elem().Interface())
}

// Save the tensor to the given file path.
func (t *Tensor) Save(filePath string) error {
	f, err := os.Create(filePath)
	if err != nil {
		return errors.Wrapf(err, "creating %q to save tensor", filePath)
	}
	enc := gob.NewEncoder(f)
	err = t.GobSerialize(enc)
	if err != nil {
		_ = f.Close()
		return errors.WithMessagef(err, "saving Tensor to %q", filePath)
	}
	err = f.Close()
	if err != nil {
		return errors.Wrapf(err, "close file %q, where tensor was saved", filePath)
	}
	return nil
}

// Load a tensor from the file path given.
func Load(filePath string) (*Tensor, error) {
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q to load Tensor", filePath)
	}
	defer func() { _ = f.Close() }()
	t, err := GobDeserialize(gob.NewDecoder(f))
	if err != nil {
		return nil, errors.WithMessagef(err, "loading Tensor from %q", filePath)
	}
	return t, nil
}
