// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"
	"testing"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/whalecalls/pkg/loader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// countingSource yields numBatches batches of 2 examples with 3 samples each, and labels.
type countingSource struct {
	numBatches, pos int
}

func (s *countingSource) Name() string { return "counting" }
func (s *countingSource) Reset() { s.pos = 0 }
func (s *countingSource) Next() (*loader.Batch, error) {
	if s.pos >= s.numBatches {
		return nil, io.EOF
	}
	s.pos++
	return &loader.Batch{Columns: []*loader.Column{
		{DType: dtypes.Int16, Dims: []int{2, 3}, Data: []int16{1, 2, 3, 4, 5, 6}},
		{DType: dtypes.Int64, Dims: []int{2}, Data: []int64{0, 1}},
	}}, nil
}

func TestRunEpoch(t *testing.T) {
	ds := loader.ToDataset(loader.WrapLabeled(&countingSource{numBatches: 3}))
	stats, err := runEpoch(ds, 0)
	require.NoError(t, err)
	assert.Equal(t, "counting", stats.name)
	assert.Equal(t, 3, stats.batches)
	assert.Equal(t, 6, stats.examples)
	assert.Contains(t, stats.inputShape, "[2 3]")
	assert.Contains(t, stats.labels, "[2 2]")

	// Reset happens at the start of every epoch.
	stats, err = runEpoch(ds, 2)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.batches)

	// Labels column is fine, audio column is not a valid label.
	src := &countingSource{numBatches: 1}
	_, err = runEpoch(loader.ToDataset(loader.OneHot(src, 1, 2)), 0)
	require.NoError(t, err)
	_, err = runEpoch(loader.ToDataset(loader.OneHot(src, 0, 2)), 0)
	require.Error(t, err)
}
