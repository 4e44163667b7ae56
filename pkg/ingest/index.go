// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"github.com/gomlx/whalecalls/pkg/manifest"
	"github.com/pkg/errors"
)

// Relative paths (to the extracted directory) of the files the index refers to.
const (
	TrainAudioDir  = "data/train"
	TestAudioDir   = "data/test"
	IndexFile      = "data/train.csv"
	NegativeLabel  = "data/neg.txt"
	PositiveLabel  = "data/pos.txt"
	AudioExtension = ".aiff"
)

// LabelFiles maps the integer label in the index to the label file referenced by the manifests.
var LabelFiles = [2]string{NegativeLabel, PositiveLabel}

// readIndex reads the training index CSV (a header row, followed by rows of audio file name and integer label)
// and partitions it into negative and positive records, preserving the order of the file.
func readIndex(csvPath string) (negatives, positives []manifest.Record, err error) {
	f, err := os.Open(csvPath)
	if err != nil {
		return nil, nil, errors.Wrapf(err, "failed to open index %q", csvPath)
	}
	defer func() { _ = f.Close() }()

	df := dataframe.ReadCSV(f,
		dataframe.HasHeader(true),
		dataframe.DetectTypes(false),
		dataframe.DefaultType(series.String))
	if df.Err != nil {
		return nil, nil, errors.Wrapf(df.Err, "failed to parse index %q", csvPath)
	}
	if df.Ncol() < 2 {
		return nil, nil, errors.Errorf("index %q has %d columns, expected audio file name and label", csvPath, df.Ncol())
	}
	for row := range df.Nrow() {
		audioName := strings.TrimSpace(df.Elem(row, 0).String())
		labelStr := strings.TrimSpace(df.Elem(row, 1).String())
		label, err := strconv.Atoi(labelStr)
		if err != nil {
			return nil, nil, errors.Wrapf(err, "index %q row %d: invalid label %q", csvPath, row+1, labelStr)
		}
		if label < 0 || label >= len(LabelFiles) {
			return nil, nil, errors.Errorf("index %q row %d: label %d is not binary (0 or 1)", csvPath, row+1, label)
		}
		record := manifest.Record{
			Audio: path.Join(TrainAudioDir, audioName),
			Label: LabelFiles[label],
		}
		if label == 1 {
			positives = append(positives, record)
		} else {
			negatives = append(negatives, record)
		}
	}
	return negatives, positives, nil
}
