// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package loader streams the whale calls manifests as batches of typed columns, and adapts them to
// GoMLX's train.Dataset.
//
// A Source yields host batches (no accelerator involved). Stages like OneHot and TypeCast wrap a Source
// and transform one of its columns, and ToDataset converts the result to tensors for a training loop.
// The Make*Loader functions build the configuration and the stages used for each phase, taking the
// Source constructor as a Factory, so tests (or other audio loaders) can be substituted.
package loader

import (
	"fmt"

	"github.com/gomlx/gopjrt/dtypes"
)

// Column of a batch: a flat slice of values, with its dtype and dimensions.
type Column struct {
	DType dtypes.DType
	Dims  []int

	// Data is a flat slice ([]float32, []int16, ...) of the Go type matching DType.
	Data any
}

// Size returns the number of elements given by Dims.
func (c *Column) Size() int {
	size := 1
	for _, dim := range c.Dims {
		size *= dim
	}
	return size
}

// String implements fmt.Stringer.
func (c *Column) String() string {
	return fmt.Sprintf("(%s)%v", c.DType, c.Dims)
}

// Batch yielded by a Source. By convention column 0 holds the audio, and column 1 (if present) the labels.
type Batch struct {
	Columns []*Column
}

// Source of batches.
//
// Next returns io.EOF at the end of an epoch, after which Reset must be called to start the next one.
type Source interface {
	// Name of the source, used for logging.
	Name() string

	// Reset restarts the source from the beginning.
	Reset()

	// Next batch or an error.
	Next() (*Batch, error)
}

// Factory creates a Source for the given configuration.
type Factory func(cfg *Config) (Source, error)

// newColumn creates a Column for data, with the DType inferred from the slice type.
func newColumn(data any, dims ...int) *Column {
	return &Column{DType: dtypeOf(data), Dims: dims, Data: data}
}

// dtypeOf returns the DType of a flat slice, or dtypes.InvalidDType if not supported.
func dtypeOf(data any) dtypes.DType {
	switch data.(type) {
	case []float32:
		return dtypes.Float32
	case []float64:
		return dtypes.Float64
	case []int16:
		return dtypes.Int16
	case []int32:
		return dtypes.Int32
	case []int64:
		return dtypes.Int64
	case []uint8:
		return dtypes.Uint8
	}
	return dtypes.InvalidDType
}
