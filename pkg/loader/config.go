// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package loader

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

const (
	// SampleFreqHz of the whale calls recordings.
	SampleFreqHz = 2000

	// MacrobatchFactor is the number of minibatches decoded at once.
	MacrobatchFactor = 12

	// MaxDuration of a clip: longer clips are truncated, shorter ones zero-padded.
	MaxDuration = "2 seconds"

	// FrameLength and FrameStride of the framed audio.
	FrameLength = "80 milliseconds"
	FrameStride = "40 milliseconds"

	// AddNoiseProbability is the probability a training clip is mixed with a noise clip.
	AddNoiseProbability = 0.5

	// CacheDirEnv is the environment variable with the directory where decoded clips are cached.
	// If empty, decoded clips are not cached.
	CacheDirEnv = "WHALECALLS_CACHE_DIR"

	// CacheSubDir is created under the directory in CacheDirEnv.
	CacheSubDir = "whale-cache"

	TypeAudio         = "audio"
	TypeAudioAndLabel = "audio,label"
)

// NoiseLevel is the range from which the level of the mixed-in noise is uniformly sampled.
var NoiseLevel = [2]float64{0, 0.5}

// AudioConfig holds the audio decoding, framing and augmentation options.
type AudioConfig struct {
	SampleFreqHz int

	// MaxDuration, FrameLength and FrameStride are given as "<number> <unit>", where unit is
	// "seconds", "milliseconds" or "samples".
	MaxDuration, FrameLength, FrameStride string

	// NoiseIndexFile is a manifest of noise clips, relative to NoiseRoot. If empty no noise is added.
	NoiseIndexFile, NoiseRoot string
	AddNoiseProbability      float64
	NoiseLevel               [2]float64
}

// LabelConfig configures how labels are read.
type LabelConfig struct {
	Binary bool
}

// Config for a loader of one manifest.
type Config struct {
	ManifestFilename, ManifestRoot string
	MinibatchSize, MacrobatchSize  int

	// Type is either TypeAudioAndLabel or TypeAudio.
	Type string

	// CacheDirectory where decoded clips are stored. Empty disables caching.
	CacheDirectory string

	Audio AudioConfig

	// Label is nil for unlabeled (TypeAudio) loaders.
	Label *LabelConfig

	ShuffleManifest, ShuffleEveryEpoch bool
	RandomSeed                         int64
}

// HasLabels returns whether the loader yields a label column.
func (c *Config) HasLabels() bool {
	return c.Label != nil && c.Type == TypeAudioAndLabel
}

// Map returns the configuration as a loader options mapping, with the option names used in
// the configuration files of audio loaders.
func (c *Config) Map() map[string]any {
	audio := map[string]any{
		"sample_freq_hz": c.Audio.SampleFreqHz,
		"max_duration":   c.Audio.MaxDuration,
		"frame_length":   c.Audio.FrameLength,
		"frame_stride":   c.Audio.FrameStride,
	}
	if c.Audio.NoiseIndexFile != "" {
		audio["noise_index_file"] = c.Audio.NoiseIndexFile
		audio["noise_root"] = c.Audio.NoiseRoot
		audio["add_noise_probability"] = c.Audio.AddNoiseProbability
		audio["noise_level"] = []float64{c.Audio.NoiseLevel[0], c.Audio.NoiseLevel[1]}
	}
	m := map[string]any{
		"manifest_filename": c.ManifestFilename,
		"manifest_root":     c.ManifestRoot,
		"minibatch_size":    c.MinibatchSize,
		"macrobatch_size":   c.MacrobatchSize,
		"type":              c.Type,
		"cache_directory":   c.CacheDirectory,
		"audio":             audio,
	}
	if c.Label != nil {
		m["label"] = map[string]any{"binary": c.Label.Binary}
	}
	if c.ShuffleManifest || c.ShuffleEveryEpoch {
		m["shuffle_manifest"] = c.ShuffleManifest
		m["shuffle_every_epoch"] = c.ShuffleEveryEpoch
		m["random_seed"] = c.RandomSeed
	}
	return m
}

// cacheDirectory returns the cache directory configured in the environment, or "" if caching is disabled.
func cacheDirectory() string {
	base := os.Getenv(CacheDirEnv)
	if base == "" {
		return ""
	}
	return filepath.Join(base, CacheSubDir)
}

// durationInSamples converts a duration like "2 seconds" or "80 milliseconds" to a number of samples.
func durationInSamples(duration string, sampleFreqHz int) (int, error) {
	fields := strings.Fields(duration)
	if len(fields) != 2 {
		return 0, errors.Errorf("invalid duration %q, expected \"<number> <unit>\"", duration)
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil || value < 0 {
		return 0, errors.Errorf("invalid duration %q: bad number %q", duration, fields[0])
	}
	var samples float64
	switch strings.ToLower(fields[1]) {
	case "samples", "sample":
		samples = value
	case "seconds", "second", "s":
		samples = value * float64(sampleFreqHz)
	case "milliseconds", "millisecond", "ms":
		samples = value * float64(sampleFreqHz) / 1000
	default:
		return 0, errors.Errorf("invalid duration %q: unknown unit %q", duration, fields[1])
	}
	return int(samples + 0.5), nil
}
