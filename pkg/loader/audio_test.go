// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package loader

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/gomlx/whalecalls/pkg/manifest"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeAIFF writes a 16 bits AIFF file with the given interleaved samples.
func writeAIFF(t *testing.T, filePath string, samples []int, sampleRate, numChans int) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(filePath), 0755))
	f, err := os.Create(filePath)
	require.NoError(t, err)
	enc := aiff.NewEncoder(f, sampleRate, 16, numChans)
	require.NoError(t, enc.Write(&audio.IntBuffer{
		Data:           samples,
		Format:         &audio.Format{SampleRate: sampleRate, NumChannels: numChans},
		SourceBitDepth: 16,
	}))
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())
}

func constantSamples(value, n int) []int {
	samples := make([]int, n)
	for ii := range samples {
		samples[ii] = value
	}
	return samples
}

// clipValue identifies clip #ii: all its samples hold this value.
func clipValue(ii int) int16 { return int16((ii + 1) * 10) }

// testCorpus writes numClips constant clips of 2 seconds at 2000Hz, the label files and a labeled
// manifest (odd clips are positive). It returns the root directory and the manifest path.
func testCorpus(t *testing.T, numClips int) (root, manifestPath string) {
	root = t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "data"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "neg.txt"), []byte("0\n"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "data", "pos.txt"), []byte("1\n"), 0644))
	records := make([]manifest.Record, numClips)
	for ii := range records {
		name := fmt.Sprintf("data/train/clip%02d.aiff", ii)
		writeAIFF(t, filepath.Join(root, name), constantSamples(int(clipValue(ii)), 4000), SampleFreqHz, 1)
		label := "data/neg.txt"
		if ii%2 == 1 {
			label = "data/pos.txt"
		}
		records[ii] = manifest.Record{Audio: name, Label: label}
	}
	manifestPath = filepath.Join(root, "train-index.csv")
	require.NoError(t, manifest.Write(manifestPath, records, true))
	return
}

// firstSamples returns the first sample of each example of an int16 [batch, frames, frameLength] column.
func firstSamples(col *Column) []int16 {
	data := col.Data.([]int16)
	stride := col.Dims[1] * col.Dims[2]
	var values []int16
	for ii := 0; ii < col.Dims[0]; ii++ {
		values = append(values, data[ii*stride])
	}
	return values
}

func readEpoch(t *testing.T, src Source) (batches []*Batch) {
	t.Helper()
	for {
		batch, err := src.Next()
		if errors.Is(err, io.EOF) {
			return
		}
		require.NoError(t, err)
		batches = append(batches, batch)
	}
}

func TestAudioSource(t *testing.T) {
	t.Setenv(CacheDirEnv, "")
	root, manifestPath := testCorpus(t, 5)
	src, err := NewAudioSource(ValConfig(manifestPath, root, 2))
	require.NoError(t, err)
	assert.Equal(t, "train-index", src.Name())
	assert.Equal(t, 5, src.NumClips())
	numFrames, frameLength := src.FrameShape()
	assert.Equal(t, 49, numFrames)
	assert.Equal(t, 160, frameLength)

	for range 2 {
		batches := readEpoch(t, src)
		require.Len(t, batches, 3)
		var values []int16
		var labels []int64
		for ii, batch := range batches {
			require.Len(t, batch.Columns, 2)
			wantSize := 2
			if ii == 2 {
				wantSize = 1
			}
			audioCol, labelsCol := batch.Columns[0], batch.Columns[1]
			assert.Equal(t, dtypes.Int16, audioCol.DType)
			assert.Equal(t, []int{wantSize, 49, 160}, audioCol.Dims)
			assert.Equal(t, dtypes.Int64, labelsCol.DType)
			assert.Equal(t, []int{wantSize}, labelsCol.Dims)
			values = append(values, firstSamples(audioCol)...)
			labels = append(labels, labelsCol.Data.([]int64)...)
		}
		// Validation keeps the manifest order.
		assert.Equal(t, []int16{10, 20, 30, 40, 50}, values)
		assert.Equal(t, []int64{0, 1, 0, 1, 0}, labels)
		src.Reset()
	}
}

func TestAudioSourceFraming(t *testing.T) {
	root := t.TempDir()
	ramp := make([]int, 3000)
	for ii := range ramp {
		ramp[ii] = ii
	}
	writeAIFF(t, filepath.Join(root, "short.aiff"), ramp, SampleFreqHz, 1)
	long := make([]int, 2*5000)
	for ii := range 5000 {
		long[2*ii] = ii % 7000
		long[2*ii+1] = -1
	}
	writeAIFF(t, filepath.Join(root, "long-stereo.aiff"), long, SampleFreqHz, 2)
	manifestPath := filepath.Join(root, "test-index.csv")
	require.NoError(t, manifest.Write(manifestPath,
		[]manifest.Record{{Audio: "short.aiff"}, {Audio: "long-stereo.aiff"}}, false))

	src, err := NewAudioSource(TestConfig(manifestPath, root, 2))
	require.NoError(t, err)
	batch, err := src.Next()
	require.NoError(t, err)
	require.Len(t, batch.Columns, 1)
	frames := batch.Columns[0].Data.([]int16)
	require.Len(t, frames, 2*49*160)
	at := func(example, frame, sample int) int16 {
		return frames[(example*49+frame)*160+sample]
	}
	// Frames overlap by half.
	assert.Equal(t, int16(80), at(0, 1, 0))
	assert.Equal(t, int16(80+159), at(0, 1, 159))
	assert.Equal(t, int16(2960), at(0, 37, 0))
	// Zero-padded after 3000 samples.
	assert.Equal(t, int16(2999), at(0, 36, 119))
	assert.Equal(t, int16(0), at(0, 36, 120))
	assert.Equal(t, int16(0), at(0, 48, 159))
	// Truncated to 4000 samples, first channel only.
	assert.Equal(t, int16(3999), at(1, 48, 159))
	assert.Equal(t, int16(1), at(1, 0, 1))

	_, err = src.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestAudioSourceShuffle(t *testing.T) {
	t.Setenv(CacheDirEnv, "")
	root, manifestPath := testCorpus(t, 12)
	epochValues := func(src Source) []int16 {
		var values []int16
		for _, batch := range readEpoch(t, src) {
			values = append(values, firstSamples(batch.Columns[0])...)
		}
		return values
	}
	newSource := func(seed int64) *AudioSource {
		src, err := NewAudioSource(TrainConfig(manifestPath, root, 5, "", seed))
		require.NoError(t, err)
		return src
	}
	srcA, srcB := newSource(0), newSource(0)
	epochA, epochB := epochValues(srcA), epochValues(srcB)
	require.Len(t, epochA, 12)
	assert.Equal(t, epochA, epochB)
	assert.ElementsMatch(t, []int16{10, 20, 30, 40, 50, 60, 70, 80, 90, 100, 110, 120}, epochA)

	srcA.Reset()
	nextEpoch := epochValues(srcA)
	assert.ElementsMatch(t, epochA, nextEpoch)
	assert.NotEqual(t, epochA, nextEpoch, "expected a reshuffle at every epoch")

	assert.NotEqual(t, epochA, epochValues(newSource(1)))
}

func TestAudioSourceNoise(t *testing.T) {
	t.Setenv(CacheDirEnv, "")
	root, manifestPath := testCorpus(t, 4)
	writeAIFF(t, filepath.Join(root, "data", "noise", "n0.aiff"), constantSamples(100, 4000), SampleFreqHz, 1)
	noisePath := filepath.Join(root, "noise-index.csv")
	require.NoError(t, manifest.Write(noisePath, []manifest.Record{{Audio: "data/noise/n0.aiff"}}, false))

	cfg := TrainConfig(manifestPath, root, 4, noisePath, 0)
	assert.Equal(t, root, cfg.Audio.NoiseRoot)
	cfg.ShuffleManifest, cfg.ShuffleEveryEpoch = false, false
	cfg.Audio.AddNoiseProbability = 1
	cfg.Audio.NoiseLevel = [2]float64{0.5, 0.5}
	src, err := NewAudioSource(cfg)
	require.NoError(t, err)
	batch, err := src.Next()
	require.NoError(t, err)
	assert.Equal(t, []int16{60, 70, 80, 90}, firstSamples(batch.Columns[0]))

	// Default configuration: noise decisions only depend on the seed.
	newBatch := func() []int16 {
		src, err := NewAudioSource(TrainConfig(manifestPath, root, 4, noisePath, 0))
		require.NoError(t, err)
		batch, err := src.Next()
		require.NoError(t, err)
		return batch.Columns[0].Data.([]int16)
	}
	values := newBatch()
	assert.Equal(t, values, newBatch())
	for _, v := range values {
		assert.True(t, v >= 10 && v <= 40+50, "value %d out of the range of a clip plus noise", v)
	}

	// Empty noise manifest.
	require.NoError(t, manifest.Write(noisePath, nil, false))
	_, err = NewAudioSource(TrainConfig(manifestPath, root, 4, noisePath, 0))
	require.ErrorContains(t, err, "empty")
}

func TestAudioSourceCache(t *testing.T) {
	root, manifestPath := testCorpus(t, 3)
	cacheDir := t.TempDir()
	t.Setenv(CacheDirEnv, cacheDir)
	cfg := ValConfig(manifestPath, root, 3)
	require.Equal(t, filepath.Join(cacheDir, CacheSubDir), cfg.CacheDirectory)
	src, err := NewAudioSource(cfg)
	require.NoError(t, err)
	first := readEpoch(t, src)
	require.Len(t, first, 1)
	cached, err := filepath.Glob(filepath.Join(cfg.CacheDirectory, "*.gob"))
	require.NoError(t, err)
	require.Len(t, cached, 3)

	// Audio files are no longer needed.
	require.NoError(t, os.RemoveAll(filepath.Join(root, "data", "train")))
	src.Reset()
	second := readEpoch(t, src)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].Columns[0].Data, second[0].Columns[0].Data)

	// Without cache it fails.
	t.Setenv(CacheDirEnv, "")
	src, err = NewAudioSource(ValConfig(manifestPath, root, 3))
	require.NoError(t, err)
	_, err = src.Next()
	require.Error(t, err)
}

func TestAudioSourceErrors(t *testing.T) {
	t.Setenv(CacheDirEnv, "")
	root := t.TempDir()

	// Wrong sample rate.
	writeAIFF(t, filepath.Join(root, "fast.aiff"), constantSamples(1, 100), 8000, 1)
	manifestPath := filepath.Join(root, "m.csv")
	require.NoError(t, manifest.Write(manifestPath, []manifest.Record{{Audio: "fast.aiff"}}, false))
	src, err := NewAudioSource(TestConfig(manifestPath, root, 1))
	require.NoError(t, err)
	_, err = src.Next()
	require.ErrorContains(t, err, "sample rate")

	// Not an AIFF file.
	require.NoError(t, os.WriteFile(filepath.Join(root, "fast.aiff"), []byte("not audio"), 0644))
	src, err = NewAudioSource(TestConfig(manifestPath, root, 1))
	require.NoError(t, err)
	_, err = src.Next()
	require.Error(t, err)

	// Labeled configuration on an unlabeled manifest.
	_, err = NewAudioSource(ValConfig(manifestPath, root, 1))
	require.ErrorContains(t, err, "no label")

	// Missing label file.
	require.NoError(t, manifest.Write(manifestPath, []manifest.Record{{Audio: "fast.aiff", Label: "missing.txt"}}, true))
	_, err = NewAudioSource(ValConfig(manifestPath, root, 1))
	require.ErrorContains(t, err, "missing.txt")

	// Missing manifest.
	_, err = NewAudioSource(ValConfig(filepath.Join(root, "nope.csv"), root, 1))
	require.Error(t, err)

	// Invalid framing.
	cfg := TestConfig(manifestPath, root, 1)
	cfg.Audio.FrameLength = "3 seconds"
	_, err = NewAudioSource(cfg)
	require.ErrorContains(t, err, "invalid framing")
}

func TestMakeLoaders(t *testing.T) {
	t.Setenv(CacheDirEnv, "")
	root, manifestPath := testCorpus(t, 6)

	ds, err := MakeValLoader(AudioFactory, manifestPath, root, 4)
	require.NoError(t, err)
	_, inputs, labels, err := ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, inputs[0].DType())
	assert.Equal(t, []int{4, 49, 160}, inputs[0].Shape().Dimensions)
	require.Len(t, labels, 1)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}, {1, 0}, {0, 1}}, labels[0].Value())
	_, inputs, _, err = ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, []int{2, 49, 160}, inputs[0].Shape().Dimensions)
	_, _, _, err = ds.Yield()
	require.ErrorIs(t, err, io.EOF)

	ds, err = MakeTrainLoader(AudioFactory, manifestPath, root, 3, "", 0)
	require.NoError(t, err)
	_, inputs, labels, err = ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, []int{3, 49, 160}, inputs[0].Shape().Dimensions)
	assert.Equal(t, []int{3, 2}, labels[0].Shape().Dimensions)

	ds, err = MakeTestLoader(AudioFactory, manifestPath, root, 6)
	require.NoError(t, err)
	_, inputs, labels, err = ds.Yield()
	require.NoError(t, err)
	assert.Equal(t, dtypes.Float32, inputs[0].DType())
	assert.Empty(t, labels)

	// The factory receives the phase's configuration.
	var got []*Config
	recording := func(cfg *Config) (Source, error) {
		got = append(got, cfg)
		return newFakeSource(0), nil
	}
	_, err = MakeTrainLoader(recording, "train.csv", "/root", 2, "noise.csv", 3)
	require.NoError(t, err)
	_, err = MakeTestLoader(recording, "test.csv", "/root", 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.True(t, got[0].ShuffleManifest)
	assert.Equal(t, "noise.csv", got[0].Audio.NoiseIndexFile)
	assert.Equal(t, int64(3), got[0].RandomSeed)
	assert.Nil(t, got[1].Label)

	failing := func(cfg *Config) (Source, error) { return nil, errors.New("boom") }
	_, err = MakeValLoader(failing, "val.csv", "/root", 2)
	require.ErrorContains(t, err, "boom")
}
