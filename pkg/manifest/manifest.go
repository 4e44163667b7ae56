// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package manifest defines the dataset subsets of the whale calls data and the text format
// of the manifest files listing them.
//
// A manifest has one record per line. Labeled subsets (all, val, train) have two comma-separated
// columns: the audio file path and the label file path, both relative to the manifest root.
// Unlabeled subsets (noise, test) have only the audio file path.
package manifest

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// Subset names one of the manifests generated by ingestion.
type Subset int

const (
	SubsetAll Subset = iota
	SubsetVal
	SubsetTrain
	SubsetNoise
	SubsetTest
)

// Subsets lists all subsets, in the order they are generated (and returned) by ingestion.
var Subsets = []Subset{SubsetAll, SubsetVal, SubsetTrain, SubsetNoise, SubsetTest}

var subsetNames = map[Subset]string{
	SubsetAll:   "all",
	SubsetVal:   "val",
	SubsetTrain: "train",
	SubsetNoise: "noise",
	SubsetTest:  "test",
}

// String implements fmt.Stringer.
func (s Subset) String() string {
	if name, found := subsetNames[s]; found {
		return name
	}
	return fmt.Sprintf("Subset(%d)", int(s))
}

// SubsetFromName is the inverse of Subset.String.
func SubsetFromName(name string) (Subset, error) {
	for s, n := range subsetNames {
		if n == name {
			return s, nil
		}
	}
	return 0, errors.Errorf("unknown subset %q, valid values are all, val, train, noise and test", name)
}

// HasLabels returns whether the records of the subset carry a label file.
func (s Subset) HasLabels() bool {
	return s != SubsetNoise && s != SubsetTest
}

// FileName of the manifest of the subset, e.g. "train-index.csv".
func (s Subset) FileName() string {
	return s.String() + "-index.csv"
}

// Record is one line of a manifest. Label is empty for unlabeled subsets.
type Record struct {
	Audio, Label string
}

// Write the records to a manifest file in path, overwriting it if it exists.
//
// If withLabels is true each line holds "audio,label", otherwise only the audio path.
func Write(path string, records []Record, withLabels bool) error {
	f, err := os.Create(path)
	if err != nil {
		return errors.Wrapf(err, "failed to create manifest %q", path)
	}
	w := bufio.NewWriter(f)
	for ii, r := range records {
		if withLabels {
			if r.Label == "" {
				_ = f.Close()
				return errors.Errorf("record #%d (%q) has no label, while writing labeled manifest %q", ii, r.Audio, path)
			}
			_, err = w.WriteString(r.Audio + "," + r.Label + "\n")
		} else {
			_, err = w.WriteString(r.Audio + "\n")
		}
		if err != nil {
			_ = f.Close()
			return errors.Wrapf(err, "failed writing to manifest %q", path)
		}
	}
	if err = w.Flush(); err != nil {
		_ = f.Close()
		return errors.Wrapf(err, "failed writing to manifest %q", path)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "failed closing manifest %q", path)
	}
	return nil
}

// Read all records of the manifest in path. Empty lines are skipped.
//
// Lines may have one (unlabeled) or two (labeled) columns.
func Read(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open manifest %q", path)
	}
	defer func() { _ = f.Close() }()

	var records []Record
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		parts := strings.Split(line, ",")
		switch len(parts) {
		case 1:
			records = append(records, Record{Audio: parts[0]})
		case 2:
			records = append(records, Record{
				Audio: strings.TrimSpace(parts[0]),
				Label: strings.TrimSpace(parts[1]),
			})
		default:
			return nil, errors.Errorf("manifest %q line %d: expected 1 or 2 columns, got %d", path, lineNum, len(parts))
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed reading manifest %q", path)
	}
	return records, nil
}
