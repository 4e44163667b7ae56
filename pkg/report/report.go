// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package report summarizes the manifests of an ingestion: number of clips per subset and class, and
// the size of the referenced audio. The summary can be rendered as a table or as a bar chart.
package report

import (
	"os"
	"path/filepath"

	"github.com/gomlx/whalecalls/pkg/ingest"
	"github.com/gomlx/whalecalls/pkg/manifest"
	"github.com/pkg/errors"
)

// SubsetStats of one manifest.
type SubsetStats struct {
	Subset manifest.Subset
	Path   string

	Records              int
	Negatives, Positives int

	// AudioBytes is the total size of the referenced audio files. Missing files are counted in MissingAudio.
	AudioBytes   int64
	MissingAudio int
}

// PositiveFraction returns the fraction of positive records, or 0 if there are no labeled records.
func (s *SubsetStats) PositiveFraction() float64 {
	labeled := s.Negatives + s.Positives
	if labeled == 0 {
		return 0
	}
	return float64(s.Positives) / float64(labeled)
}

// Collect reads the manifests (given in manifest.Subsets order, as returned by ingest) and returns their
// statistics. Audio paths are resolved relative to root.
func Collect(root string, manifestPaths []string) ([]SubsetStats, error) {
	if len(manifestPaths) != len(manifest.Subsets) {
		return nil, errors.Errorf("expected %d manifests (%v), got %d", len(manifest.Subsets), manifest.Subsets, len(manifestPaths))
	}
	stats := make([]SubsetStats, 0, len(manifestPaths))
	for ii, manifestPath := range manifestPaths {
		records, err := manifest.Read(manifestPath)
		if err != nil {
			return nil, err
		}
		s := SubsetStats{
			Subset:  manifest.Subsets[ii],
			Path:    manifestPath,
			Records: len(records),
		}
		for _, r := range records {
			switch r.Label {
			case ingest.NegativeLabel:
				s.Negatives++
			case ingest.PositiveLabel:
				s.Positives++
			}
			info, err := os.Stat(filepath.Join(root, filepath.FromSlash(r.Audio)))
			if err != nil {
				if errors.Is(err, os.ErrNotExist) {
					s.MissingAudio++
					continue
				}
				return nil, errors.Wrapf(err, "failed to stat audio %q of manifest %q", r.Audio, manifestPath)
			}
			s.AudioBytes += info.Size()
		}
		stats = append(stats, s)
	}
	return stats, nil
}
