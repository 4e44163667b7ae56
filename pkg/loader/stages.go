// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package loader

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"golang.org/x/exp/constraints"
)

// number is the set of Go types a Column can hold.
type number interface {
	constraints.Integer | constraints.Float
}

// stage wraps a Source and transforms one column of every batch it yields.
type stage struct {
	src   Source
	index int
	name  string
	fn    func(col *Column) (*Column, error)
}

// Name implements Source.
func (s *stage) Name() string { return s.src.Name() }

// Reset implements Source.
func (s *stage) Reset() { s.src.Reset() }

// Next implements Source.
func (s *stage) Next() (*Batch, error) {
	batch, err := s.src.Next()
	if err != nil {
		return nil, err
	}
	if s.index >= len(batch.Columns) {
		return nil, errors.Errorf("%s(index=%d): batch from %q has only %d columns",
			s.name, s.index, s.src.Name(), len(batch.Columns))
	}
	col, err := s.fn(batch.Columns[s.index])
	if err != nil {
		return nil, errors.WithMessagef(err, "%s(index=%d) on %q", s.name, s.index, s.src.Name())
	}
	batch.Columns[s.index] = col
	return batch, nil
}

// OneHot returns a Source that replaces the integer column at index by its one-hot encoding:
// a float32 column with an extra trailing dimension of size numClasses.
// A trailing dimension of size 1 in the original column is dropped first.
//
// Values outside [0, numClasses) make Next return an error.
func OneHot(src Source, index, numClasses int) Source {
	if index < 0 {
		exceptions.Panicf("OneHot(index=%d): index must be >= 0", index)
	}
	if numClasses < 2 {
		exceptions.Panicf("OneHot(numClasses=%d): at least 2 classes are required", numClasses)
	}
	return &stage{
		src:   src,
		index: index,
		name:  "OneHot",
		fn: func(col *Column) (*Column, error) {
			return oneHotColumn(col, numClasses)
		},
	}
}

func oneHotColumn(col *Column, numClasses int) (*Column, error) {
	values, err := castData[int64](col.Data)
	if err != nil {
		return nil, err
	}
	data := make([]float32, len(values)*numClasses)
	for ii, v := range values {
		if v < 0 || v >= int64(numClasses) {
			return nil, errors.Errorf("label %d at position %d is out of range for %d classes", v, ii, numClasses)
		}
		data[ii*numClasses+int(v)] = 1
	}
	dims := col.Dims
	if len(dims) > 1 && dims[len(dims)-1] == 1 {
		dims = dims[:len(dims)-1]
	}
	newDims := make([]int, 0, len(dims)+1)
	newDims = append(newDims, dims...)
	newDims = append(newDims, numClasses)
	return newColumn(data, newDims...), nil
}

// TypeCast returns a Source that converts the column at index to dtype.
// Supported dtypes are Float32, Float64, Int16, Int32, Int64 and Uint8.
func TypeCast(src Source, index int, dtype dtypes.DType) Source {
	if index < 0 {
		exceptions.Panicf("TypeCast(index=%d): index must be >= 0", index)
	}
	switch dtype {
	case dtypes.Float32, dtypes.Float64, dtypes.Int16, dtypes.Int32, dtypes.Int64, dtypes.Uint8:
	default:
		exceptions.Panicf("TypeCast(dtype=%s): dtype not supported", dtype)
	}
	return &stage{
		src:   src,
		index: index,
		name:  "TypeCast",
		fn: func(col *Column) (*Column, error) {
			return castColumn(col, dtype)
		},
	}
}

// castColumn returns a new column with the contents of col converted to dtype.
// If col already has the dtype it is returned as is.
func castColumn(col *Column, dtype dtypes.DType) (*Column, error) {
	if col.DType == dtype {
		return col, nil
	}
	var data any
	var err error
	switch dtype {
	case dtypes.Float32:
		data, err = castData[float32](col.Data)
	case dtypes.Float64:
		data, err = castData[float64](col.Data)
	case dtypes.Int16:
		data, err = castData[int16](col.Data)
	case dtypes.Int32:
		data, err = castData[int32](col.Data)
	case dtypes.Int64:
		data, err = castData[int64](col.Data)
	case dtypes.Uint8:
		data, err = castData[uint8](col.Data)
	default:
		return nil, errors.Errorf("cannot cast to dtype %s", dtype)
	}
	if err != nil {
		return nil, err
	}
	return &Column{DType: dtype, Dims: col.Dims, Data: data}, nil
}

// castData converts a flat slice of any supported type to []T.
func castData[T number](data any) ([]T, error) {
	switch v := data.(type) {
	case []float32:
		return convert[float32, T](v), nil
	case []float64:
		return convert[float64, T](v), nil
	case []int16:
		return convert[int16, T](v), nil
	case []int32:
		return convert[int32, T](v), nil
	case []int64:
		return convert[int64, T](v), nil
	case []uint8:
		return convert[uint8, T](v), nil
	}
	return nil, errors.Errorf("column data of type %T not supported", data)
}

func convert[From, To number](from []From) []To {
	to := make([]To, len(from))
	for ii, v := range from {
		to[ii] = To(v)
	}
	return to
}
