// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package loader

import (
	"github.com/gomlx/gomlx/pkg/core/tensors"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// sourceDataset adapts a Source to train.Dataset.
type sourceDataset struct {
	src Source
}

var _ train.Dataset = (*sourceDataset)(nil)

// ToDataset returns a train.Dataset that yields the batches of src converted to tensors:
// column 0 is the only input, and the remaining columns (if any) are the labels.
//
// The end of an epoch is signaled with io.EOF, as returned by src.
func ToDataset(src Source) train.Dataset {
	return &sourceDataset{src: src}
}

// Name implements train.Dataset.
func (ds *sourceDataset) Name() string { return ds.src.Name() }

// Reset implements train.Dataset.
func (ds *sourceDataset) Reset() { ds.src.Reset() }

// Yield implements train.Dataset. It returns no per-batch metadata.
func (ds *sourceDataset) Yield() (spec any, inputs []*tensors.Tensor, labels []*tensors.Tensor, err error) {
	var batch *Batch
	batch, err = ds.src.Next()
	if err != nil {
		return
	}
	if len(batch.Columns) == 0 {
		err = errors.Errorf("dataset %q yielded a batch with no columns", ds.src.Name())
		return
	}
	all := make([]*tensors.Tensor, 0, len(batch.Columns))
	for ii, col := range batch.Columns {
		var t *tensors.Tensor
		t, err = columnToTensor(col)
		if err != nil {
			err = errors.WithMessagef(err, "dataset %q column #%d", ds.src.Name(), ii)
			return
		}
		all = append(all, t)
	}
	inputs, labels = all[:1], all[1:]
	return
}

// columnToTensor creates a local tensor with the contents of col.
func columnToTensor(col *Column) (*tensors.Tensor, error) {
	switch data := col.Data.(type) {
	case []float32:
		return flatToTensor(data, col)
	case []float64:
		return flatToTensor(data, col)
	case []int16:
		return flatToTensor(data, col)
	case []int32:
		return flatToTensor(data, col)
	case []int64:
		return flatToTensor(data, col)
	case []uint8:
		return flatToTensor(data, col)
	}
	return nil, errors.Errorf("column data of type %T not supported", col.Data)
}

func flatToTensor[T dtypes.Supported](data []T, col *Column) (*tensors.Tensor, error) {
	if len(data) != col.Size() {
		return nil, errors.Errorf("column %s has %d elements, expected %d", col, len(data), col.Size())
	}
	return tensors.FromFlatDataAndDimensions(data, col.Dims...), nil
}
