// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package loader

import (
	"github.com/gomlx/exceptions"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
)

// NumClasses of the whale calls labels: no call (0) and call (1).
const NumClasses = 2

// CommonConfig returns the configuration shared by all phases, for a manifest whose paths are relative
// to manifestRoot. The cache directory is taken from the environment variable CacheDirEnv.
//
// It panics if batchSize is not positive.
func CommonConfig(manifestFile, manifestRoot string, batchSize int) *Config {
	if batchSize <= 0 {
		exceptions.Panicf("loader.CommonConfig(batchSize=%d): batch size must be > 0", batchSize)
	}
	return &Config{
		ManifestFilename: manifestFile,
		ManifestRoot:     manifestRoot,
		MinibatchSize:    batchSize,
		MacrobatchSize:   batchSize * MacrobatchFactor,
		Type:             TypeAudioAndLabel,
		CacheDirectory:   cacheDirectory(),
		Audio: AudioConfig{
			SampleFreqHz: SampleFreqHz,
			MaxDuration:  MaxDuration,
			FrameLength:  FrameLength,
			FrameStride:  FrameStride,
		},
		Label: &LabelConfig{Binary: false},
	}
}

// ValConfig returns the configuration of the validation loader.
func ValConfig(manifestFile, manifestRoot string, batchSize int) *Config {
	return CommonConfig(manifestFile, manifestRoot, batchSize)
}

// TrainConfig returns the configuration of the training loader: the manifest is shuffled at the start
// and at every epoch. If noiseFile is not empty, it is a manifest of noise clips (relative to
// manifestRoot) mixed into the training clips.
func TrainConfig(manifestFile, manifestRoot string, batchSize int, noiseFile string, randomSeed int64) *Config {
	cfg := CommonConfig(manifestFile, manifestRoot, batchSize)
	cfg.ShuffleManifest = true
	cfg.ShuffleEveryEpoch = true
	cfg.RandomSeed = randomSeed
	if noiseFile != "" {
		cfg.Audio.NoiseIndexFile = noiseFile
		cfg.Audio.NoiseRoot = manifestRoot
		cfg.Audio.AddNoiseProbability = AddNoiseProbability
		cfg.Audio.NoiseLevel = NoiseLevel
	}
	return cfg
}

// TestConfig returns the configuration of the (unlabeled) test loader.
func TestConfig(manifestFile, manifestRoot string, batchSize int) *Config {
	cfg := CommonConfig(manifestFile, manifestRoot, batchSize)
	cfg.Type = TypeAudio
	cfg.Label = nil
	return cfg
}

// WrapLabeled applies the post-processing of labeled loaders: labels (column 1) are one-hot encoded
// and the audio (column 0) is cast to float32.
func WrapLabeled(src Source) Source {
	src = OneHot(src, 1, NumClasses)
	return TypeCast(src, 0, dtypes.Float32)
}

// WrapUnlabeled applies the post-processing of unlabeled loaders: the audio (column 0) is cast to float32.
func WrapUnlabeled(src Source) Source {
	return TypeCast(src, 0, dtypes.Float32)
}

// MakeValLoader creates the validation dataset.
func MakeValLoader(factory Factory, manifestFile, manifestRoot string, batchSize int) (train.Dataset, error) {
	src, err := factory(ValConfig(manifestFile, manifestRoot, batchSize))
	if err != nil {
		return nil, errors.WithMessagef(err, "creating validation loader for %q", manifestFile)
	}
	return ToDataset(WrapLabeled(src)), nil
}

// MakeTrainLoader creates the training dataset. noiseFile is optional, see TrainConfig.
func MakeTrainLoader(factory Factory, manifestFile, manifestRoot string, batchSize int, noiseFile string, randomSeed int64) (train.Dataset, error) {
	src, err := factory(TrainConfig(manifestFile, manifestRoot, batchSize, noiseFile, randomSeed))
	if err != nil {
		return nil, errors.WithMessagef(err, "creating training loader for %q", manifestFile)
	}
	return ToDataset(WrapLabeled(src)), nil
}

// MakeTestLoader creates the test dataset, which yields no labels.
func MakeTestLoader(factory Factory, manifestFile, manifestRoot string, batchSize int) (train.Dataset, error) {
	src, err := factory(TestConfig(manifestFile, manifestRoot, batchSize))
	if err != nil {
		return nil, errors.WithMessagef(err, "creating test loader for %q", manifestFile)
	}
	return ToDataset(WrapUnlabeled(src)), nil
}
