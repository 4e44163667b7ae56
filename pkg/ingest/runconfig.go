// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gomlx/whalecalls/pkg/manifest"
	"github.com/pkg/errors"
)

// RunType identifies one of the training run configurations written by ingestion.
type RunType string

const (
	// RunEval is a training run that evaluates on the validation subset.
	RunEval RunType = "eval"

	// RunSubmission is a training run that saves the model and writes predictions for the test subset.
	RunSubmission RunType = "subm"
)

// RunTypes lists the run configurations written on every ingestion.
var RunTypes = []RunType{RunEval, RunSubmission}

// Fixed training hyperparameters written to the run configurations.
const (
	DefaultEpochs  = 16
	DefaultRNGSeed = 0
	DefaultVerbose = true
)

// RunConfigFileName returns the file name of the run configuration, e.g. "whale_eval.cfg".
func RunConfigFileName(runType RunType) string {
	return "whale_" + string(runType) + ".cfg"
}

// RunConfig holds the contents of a "key = value" run configuration file.
//
// SavePath and SubmissionFile are only set for RunSubmission.
type RunConfig struct {
	Manifests      map[manifest.Subset]string
	ManifestRoot   string
	Log            string
	Epochs         int
	RNGSeed        int64
	Verbose        bool
	SavePath       string
	SubmissionFile string
}

// newRunConfig creates the run configuration of the given type for an ingestion into outDir.
func newRunConfig(runType RunType, outDir string) *RunConfig {
	extractedDir := filepath.Join(outDir, ExtractedDirName)
	paths := ManifestPaths(outDir)
	rc := &RunConfig{
		Manifests:    make(map[manifest.Subset]string, len(paths)),
		ManifestRoot: extractedDir,
		Log:          filepath.Join(outDir, "train_"+string(runType)+".log"),
		Epochs:       DefaultEpochs,
		RNGSeed:      DefaultRNGSeed,
		Verbose:      DefaultVerbose,
	}
	for ii, subset := range manifest.Subsets {
		rc.Manifests[subset] = paths[ii]
	}
	if runType == RunSubmission {
		rc.SavePath = filepath.Join(outDir, "model.p")
		rc.SubmissionFile = filepath.Join(outDir, "subm.txt")
	}
	return rc
}

// String renders the run configuration in its file format.
func (rc *RunConfig) String() string {
	var sb strings.Builder
	manifestList := make([]string, 0, len(rc.Manifests))
	for _, subset := range manifest.Subsets {
		if p, found := rc.Manifests[subset]; found {
			manifestList = append(manifestList, subset.String()+":"+p)
		}
	}
	_, _ = fmt.Fprintf(&sb, "manifest = [%s]\n", strings.Join(manifestList, ", "))
	_, _ = fmt.Fprintf(&sb, "manifest_root = %s\n", rc.ManifestRoot)
	_, _ = fmt.Fprintf(&sb, "log = %s\n", rc.Log)
	_, _ = fmt.Fprintf(&sb, "epochs = %d\nrng_seed = %d\nverbose = %s\n", rc.Epochs, rc.RNGSeed, capitalizedBool(rc.Verbose))
	if rc.SavePath != "" {
		_, _ = fmt.Fprintf(&sb, "save_path = %s\n", rc.SavePath)
	}
	if rc.SubmissionFile != "" {
		_, _ = fmt.Fprintf(&sb, "submission_file = %s\n", rc.SubmissionFile)
	}
	return sb.String()
}

// capitalizedBool formats v as "True" or "False".
func capitalizedBool(v bool) string {
	if v {
		return "True"
	}
	return "False"
}

// WriteFile writes the run configuration to path, overwriting it.
func (rc *RunConfig) WriteFile(path string) error {
	if err := os.WriteFile(path, []byte(rc.String()), 0644); err != nil {
		return errors.Wrapf(err, "failed to write run configuration %q", path)
	}
	return nil
}

// writeRunConfigs writes one configuration per RunTypes into configDir, and returns their paths.
func writeRunConfigs(configDir, outDir string) ([]string, error) {
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return nil, errors.Wrapf(err, "failed to create configuration directory %q", configDir)
	}
	paths := make([]string, 0, len(RunTypes))
	for _, runType := range RunTypes {
		cfgPath := filepath.Join(configDir, RunConfigFileName(runType))
		if err := newRunConfig(runType, outDir).WriteFile(cfgPath); err != nil {
			return nil, err
		}
		paths = append(paths, cfgPath)
	}
	return paths, nil
}

// ReadRunConfig parses a run configuration file written by ingestion.
// Unknown keys are ignored.
func ReadRunConfig(path string) (*RunConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open run configuration %q", path)
	}
	defer func() { _ = f.Close() }()

	rc := &RunConfig{Manifests: make(map[manifest.Subset]string)}
	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, found := strings.Cut(line, "=")
		if !found {
			return nil, errors.Errorf("run configuration %q line %d: missing \"=\" in %q", path, lineNum, line)
		}
		key, value = strings.TrimSpace(key), strings.TrimSpace(value)
		switch key {
		case "manifest":
			err = rc.parseManifestList(value)
		case "manifest_root":
			rc.ManifestRoot = value
		case "log":
			rc.Log = value
		case "epochs":
			rc.Epochs, err = strconv.Atoi(value)
		case "rng_seed":
			rc.RNGSeed, err = strconv.ParseInt(value, 10, 64)
		case "verbose":
			rc.Verbose, err = strconv.ParseBool(value)
		case "save_path":
			rc.SavePath = value
		case "submission_file":
			rc.SubmissionFile = value
		}
		if err != nil {
			return nil, errors.WithMessagef(err, "run configuration %q line %d, key %q", path, lineNum, key)
		}
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "failed reading run configuration %q", path)
	}
	return rc, nil
}

// parseManifestList parses "[all:/path/all-index.csv, val:/path/val-index.csv, ...]".
func (rc *RunConfig) parseManifestList(value string) error {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "[") || !strings.HasSuffix(value, "]") {
		return errors.Errorf("manifest list must be enclosed in brackets, got %q", value)
	}
	value = strings.TrimSpace(value[1 : len(value)-1])
	if value == "" {
		return nil
	}
	for _, entry := range strings.Split(value, ",") {
		name, p, found := strings.Cut(strings.TrimSpace(entry), ":")
		if !found {
			return errors.Errorf("manifest entry %q should be formatted as <subset>:<path>", entry)
		}
		subset, err := manifest.SubsetFromName(name)
		if err != nil {
			return err
		}
		rc.Manifests[subset] = p
	}
	return nil
}
