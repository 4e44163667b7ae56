// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package manifest

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubsets(t *testing.T) {
	var names []string
	for _, s := range Subsets {
		names = append(names, s.String())
		got, err := SubsetFromName(s.String())
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	assert.Equal(t, []string{"all", "val", "train", "noise", "test"}, names)
	assert.Equal(t, "train-index.csv", SubsetTrain.FileName())
	assert.True(t, SubsetVal.HasLabels())
	assert.False(t, SubsetNoise.HasLabels())
	assert.False(t, SubsetTest.HasLabels())
	assert.Equal(t, "Subset(17)", Subset(17).String())

	_, err := SubsetFromName("bogus")
	require.Error(t, err)
}

func TestWriteAndRead(t *testing.T) {
	dir := t.TempDir()

	labeledPath := filepath.Join(dir, "train-index.csv")
	labeled := []Record{
		{Audio: "data/train/a.aiff", Label: "data/neg.txt"},
		{Audio: "data/train/b.aiff", Label: "data/pos.txt"},
	}
	require.NoError(t, Write(labeledPath, labeled, true))
	contents, err := os.ReadFile(labeledPath)
	require.NoError(t, err)
	assert.Equal(t, "data/train/a.aiff,data/neg.txt\ndata/train/b.aiff,data/pos.txt\n", string(contents))
	got, err := Read(labeledPath)
	require.NoError(t, err)
	assert.Equal(t, labeled, got)

	// Labels are dropped for unlabeled manifests.
	unlabeledPath := filepath.Join(dir, "noise-index.csv")
	require.NoError(t, Write(unlabeledPath, labeled, false))
	contents, err = os.ReadFile(unlabeledPath)
	require.NoError(t, err)
	assert.Equal(t, "data/train/a.aiff\ndata/train/b.aiff\n", string(contents))
	got, err = Read(unlabeledPath)
	require.NoError(t, err)
	assert.Equal(t, []Record{{Audio: "data/train/a.aiff"}, {Audio: "data/train/b.aiff"}}, got)

	// Empty manifest.
	emptyPath := filepath.Join(dir, "empty-index.csv")
	require.NoError(t, Write(emptyPath, nil, true))
	got, err = Read(emptyPath)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteMissingLabel(t *testing.T) {
	err := Write(filepath.Join(t.TempDir(), "x.csv"), []Record{{Audio: "a.aiff"}}, true)
	require.Error(t, err)
}

func TestReadMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.csv")
	require.NoError(t, os.WriteFile(path, []byte("a.aiff,neg.txt\n\na,b,c\n"), 0644))
	_, err := Read(path)
	require.ErrorContains(t, err, "line 3")

	_, err = Read(filepath.Join(t.TempDir(), "missing.csv"))
	require.Error(t, err)
}
