// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ingest prepares the whale calls dataset for training: it extracts the downloaded archive,
// splits the labeled clips into train and validation subsets, and writes the manifests and run
// configurations used by the loaders in package loader.
//
// Example:
//
//	manifests, err := ingest.Build(inputDir, outDir).TrainFraction(0.8).Run()
//
// The manifests are written only once: if all of them already exist, Run returns their paths
// without touching the archive.
package ingest

import (
	"os"
	"path"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
	"github.com/gomlx/whalecalls/pkg/manifest"
	"github.com/gomlx/whalecalls/pkg/support/fsutil"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

const (
	// ArchiveName is the file name of the dataset archive, expected in the input directory.
	ArchiveName = "whale_data.zip"

	// ExtractedDirName is the subdirectory of the output directory where the archive is extracted
	// and the manifests are written.
	ExtractedDirName = "whale-extracted"

	// DefaultTrainFraction of each class that goes to the train subset. The rest goes to val.
	DefaultTrainFraction = 0.8

	// ShuffleSeed is the default seed used to shuffle the subsets.
	ShuffleSeed = 0
)

// ManifestPaths returns the paths of the manifests of an ingestion into outDir, in manifest.Subsets order.
func ManifestPaths(outDir string) []string {
	extractedDir := filepath.Join(outDir, ExtractedDirName)
	paths := make([]string, 0, len(manifest.Subsets))
	for _, subset := range manifest.Subsets {
		paths = append(paths, filepath.Join(extractedDir, subset.FileName()))
	}
	return paths
}

// Builder configures an ingestion. Create it with Build, and execute it with Run.
type Builder struct {
	inputDir, outDir, configDir string
	trainFrac                   float64
	seed                        int64
	force                       bool
	showProgress                bool
}

// Build an ingestion of inputDir/whale_data.zip into outDir.
//
// By default, it uses DefaultTrainFraction, ShuffleSeed, writes the run configurations
// into outDir, and shows a progress bar while extracting if stderr is a terminal.
func Build(inputDir, outDir string) *Builder {
	return &Builder{
		inputDir:     inputDir,
		outDir:       outDir,
		configDir:    outDir,
		trainFrac:    DefaultTrainFraction,
		seed:         ShuffleSeed,
		showProgress: isatty.IsTerminal(os.Stderr.Fd()),
	}
}

// TrainFraction sets the fraction of each class that goes to the train subset. It must be in [0, 1].
func (b *Builder) TrainFraction(trainFrac float64) *Builder {
	b.trainFrac = trainFrac
	return b
}

// ConfigDir sets the directory where the run configurations (whale_eval.cfg and whale_subm.cfg) are written.
func (b *Builder) ConfigDir(dir string) *Builder {
	b.configDir = dir
	return b
}

// Seed sets the seed of the generator used to shuffle the subsets.
func (b *Builder) Seed(seed int64) *Builder {
	b.seed = seed
	return b
}

// Force re-ingestion even if all the manifests already exist.
func (b *Builder) Force(force bool) *Builder {
	b.force = force
	return b
}

// ShowProgress enables or disables the extraction progress bar.
func (b *Builder) ShowProgress(show bool) *Builder {
	b.showProgress = show
	return b
}

// Run the ingestion and return the manifest paths, in manifest.Subsets order (all, val, train, noise, test).
//
// The run configurations are rewritten on every call. The manifests are only generated if at least one
// of them is missing (or Force was set), in which case the archive is extracted again and all the
// manifests are rewritten.
func (b *Builder) Run() ([]string, error) {
	if b.trainFrac < 0 || b.trainFrac > 1 {
		return nil, errors.Errorf("train fraction must be in [0, 1], got %g", b.trainFrac)
	}
	var err error
	if b.inputDir, err = fsutil.ReplaceTildeInDir(b.inputDir); err != nil {
		return nil, err
	}
	if b.outDir, err = fsutil.ReplaceTildeInDir(b.outDir); err != nil {
		return nil, err
	}
	if b.configDir, err = fsutil.ReplaceTildeInDir(b.configDir); err != nil {
		return nil, err
	}
	if err = os.MkdirAll(b.outDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create output directory %q", b.outDir)
	}

	// Serialize concurrent ingestions into the same output directory.
	lock := flock.New(filepath.Join(b.outDir, ExtractedDirName+".lock"))
	if err = lock.Lock(); err != nil {
		return nil, errors.Wrapf(err, "failed to lock %q", lock.Path())
	}
	defer func() { _ = lock.Unlock() }()

	cfgPaths, err := writeRunConfigs(b.configDir, b.outDir)
	if err != nil {
		return nil, err
	}
	klog.V(1).Infof("run configurations written to %v", cfgPaths)

	manifests := ManifestPaths(b.outDir)
	missing, err := fsutil.MissingFiles(manifests...)
	if err != nil {
		return nil, err
	}
	if len(missing) == 0 && !b.force {
		klog.V(1).Infof("all manifests already present in %q, skipping ingestion", filepath.Dir(manifests[0]))
		return manifests, nil
	}
	if len(missing) > 0 && len(missing) < len(manifests) {
		klog.Warningf("manifests %v are missing while others exist: re-extracting the archive and rewriting all manifests", missing)
	}

	if err = b.generate(manifests); err != nil {
		return nil, err
	}
	return manifests, nil
}

// generate extracts the archive and writes all the manifests.
func (b *Builder) generate(manifests []string) error {
	zipPath := filepath.Join(b.inputDir, ArchiveName)
	extractedDir := filepath.Join(b.outDir, ExtractedDirName)
	if err := extractArchive(zipPath, extractedDir, b.showProgress); err != nil {
		return err
	}
	if err := writeLabelFiles(extractedDir); err != nil {
		return err
	}

	negatives, positives, err := readIndex(filepath.Join(extractedDir, filepath.FromSlash(IndexFile)))
	if err != nil {
		return err
	}
	klog.V(1).Infof("index has %d negative and %d positive clips", len(negatives), len(positives))
	sets := splitSubsets(negatives, positives, b.trainFrac)
	sets[manifest.SubsetTest], err = listTestFiles(extractedDir)
	if err != nil {
		return err
	}
	shuffleSubsets(sets, b.seed)

	for ii, subset := range manifest.Subsets {
		if err = manifest.Write(manifests[ii], sets[subset], subset.HasLabels()); err != nil {
			return err
		}
		klog.V(1).Infof("wrote %d records to %q", len(sets[subset]), manifests[ii])
	}
	return nil
}

// writeLabelFiles writes one file per label, holding the label value, referenced by the manifests.
func writeLabelFiles(extractedDir string) error {
	for label, name := range LabelFiles {
		labelPath := filepath.Join(extractedDir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(labelPath), 0755); err != nil {
			return errors.Wrapf(err, "failed to create directory for %q", labelPath)
		}
		if err := os.WriteFile(labelPath, []byte(strconv.Itoa(label)+"\n"), 0644); err != nil {
			return errors.Wrapf(err, "failed to write label file %q", labelPath)
		}
	}
	return nil
}

// listTestFiles returns the test audio files present on disk, relative to extractedDir.
func listTestFiles(extractedDir string) ([]manifest.Record, error) {
	pattern := filepath.Join(extractedDir, filepath.FromSlash(TestAudioDir), "*"+AudioExtension)
	matches, err := filepath.Glob(pattern)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list %q", pattern)
	}
	records := make([]manifest.Record, 0, len(matches))
	for _, m := range matches {
		rel, err := filepath.Rel(extractedDir, m)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to make %q relative to %q", m, extractedDir)
		}
		records = append(records, manifest.Record{Audio: path.Clean(filepath.ToSlash(rel))})
	}
	return records, nil
}
