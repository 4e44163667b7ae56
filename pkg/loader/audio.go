// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package loader

import (
	"crypto/sha256"
	"encoding/gob"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"

	"github.com/go-audio/aiff"
	"github.com/go-audio/audio"
	"github.com/gomlx/whalecalls/pkg/manifest"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// AudioSource reads a manifest of AIFF clips (and optionally their label files) and yields batches with
// the framed audio as int16 of shape [batch, numFrames, frameLength] and, if labeled, the int64 labels of
// shape [batch].
//
// Clips are truncated or zero-padded to the configured max duration. Only the first channel is used.
// Clips are decoded one macrobatch at a time, in parallel. The last batch of an epoch may be smaller.
//
// It is safe for concurrent use.
type AudioSource struct {
	name    string
	cfg     *Config
	records []manifest.Record
	labels  map[string]int64
	noise   []string

	numSamples, frameLength, frameStride, numFrames int

	mu      sync.Mutex
	rng     *rand.Rand
	order   []int
	pos     int
	pending []*clip
}

var _ Source = (*AudioSource)(nil)

// AudioFactory is the Factory of AudioSource.
func AudioFactory(cfg *Config) (Source, error) {
	src, err := NewAudioSource(cfg)
	if err != nil {
		return nil, err
	}
	return src, nil
}

// clip is one decoded record.
type clip struct {
	samples []int16
	label   int64
}

// decodeJob describes how to produce one clip: the noise decisions are drawn up-front, so the
// result doesn't depend on the order the jobs are executed.
type decodeJob struct {
	record     manifest.Record
	noisePath  string
	noiseLevel float64
}

// NewAudioSource creates an AudioSource for the given configuration.
func NewAudioSource(cfg *Config) (*AudioSource, error) {
	if cfg.MinibatchSize <= 0 {
		return nil, errors.Errorf("invalid minibatch_size %d", cfg.MinibatchSize)
	}
	s := &AudioSource{
		name: strings.TrimSuffix(filepath.Base(cfg.ManifestFilename), filepath.Ext(cfg.ManifestFilename)),
		cfg:  cfg,
		rng:  rand.New(rand.NewSource(cfg.RandomSeed)),
	}
	var err error
	if s.numSamples, err = durationInSamples(cfg.Audio.MaxDuration, cfg.Audio.SampleFreqHz); err != nil {
		return nil, errors.WithMessage(err, "max_duration")
	}
	if s.frameLength, err = durationInSamples(cfg.Audio.FrameLength, cfg.Audio.SampleFreqHz); err != nil {
		return nil, errors.WithMessage(err, "frame_length")
	}
	if s.frameStride, err = durationInSamples(cfg.Audio.FrameStride, cfg.Audio.SampleFreqHz); err != nil {
		return nil, errors.WithMessage(err, "frame_stride")
	}
	if s.frameLength <= 0 || s.frameStride <= 0 || s.frameLength > s.numSamples {
		return nil, errors.Errorf("invalid framing: max_duration=%d samples, frame_length=%d samples, frame_stride=%d samples",
			s.numSamples, s.frameLength, s.frameStride)
	}
	s.numFrames = 1 + (s.numSamples-s.frameLength)/s.frameStride

	s.records, err = manifest.Read(cfg.ManifestFilename)
	if err != nil {
		return nil, err
	}
	if cfg.HasLabels() {
		if err = s.readLabels(); err != nil {
			return nil, err
		}
	}
	if cfg.Audio.NoiseIndexFile != "" && cfg.Audio.AddNoiseProbability > 0 {
		if err = s.readNoise(); err != nil {
			return nil, err
		}
	}

	s.order = make([]int, len(s.records))
	for ii := range s.order {
		s.order[ii] = ii
	}
	if cfg.ShuffleManifest {
		s.shuffleLocked()
	}
	klog.V(1).Infof("audio source %q: %d clips, %d noise clips, %d frames of %d samples per clip",
		s.name, len(s.records), len(s.noise), s.numFrames, s.frameLength)
	return s, nil
}

// readLabels reads the label value of every label file referenced by the manifest.
func (s *AudioSource) readLabels() error {
	s.labels = make(map[string]int64)
	for ii, r := range s.records {
		if r.Label == "" {
			return errors.Errorf("manifest %q record #%d (%q) has no label", s.cfg.ManifestFilename, ii, r.Audio)
		}
		if _, found := s.labels[r.Label]; found {
			continue
		}
		labelPath := filepath.Join(s.cfg.ManifestRoot, filepath.FromSlash(r.Label))
		contents, err := os.ReadFile(labelPath)
		if err != nil {
			return errors.Wrapf(err, "failed to read label file %q", labelPath)
		}
		value, err := strconv.ParseInt(strings.TrimSpace(string(contents)), 10, 64)
		if err != nil {
			return errors.Wrapf(err, "invalid label in %q", labelPath)
		}
		s.labels[r.Label] = value
	}
	return nil
}

// readNoise reads the noise manifest.
func (s *AudioSource) readNoise() error {
	records, err := manifest.Read(s.cfg.Audio.NoiseIndexFile)
	if err != nil {
		return errors.WithMessage(err, "noise_index_file")
	}
	if len(records) == 0 {
		return errors.Errorf("noise manifest %q is empty", s.cfg.Audio.NoiseIndexFile)
	}
	root := s.cfg.Audio.NoiseRoot
	if root == "" {
		root = s.cfg.ManifestRoot
	}
	s.noise = make([]string, 0, len(records))
	for _, r := range records {
		s.noise = append(s.noise, filepath.Join(root, filepath.FromSlash(r.Audio)))
	}
	return nil
}

// Name implements Source.
func (s *AudioSource) Name() string { return s.name }

// NumClips returns the number of clips in the manifest.
func (s *AudioSource) NumClips() int { return len(s.records) }

// FrameShape returns the number of frames per clip and the number of samples per frame.
func (s *AudioSource) FrameShape() (numFrames, frameLength int) { return s.numFrames, s.frameLength }

// Reset implements Source. If configured with ShuffleEveryEpoch, clips are reshuffled.
func (s *AudioSource) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pos = 0
	s.pending = nil
	if s.cfg.ShuffleEveryEpoch {
		s.shuffleLocked()
	}
}

func (s *AudioSource) shuffleLocked() {
	s.rng.Shuffle(len(s.order), func(i, j int) {
		s.order[i], s.order[j] = s.order[j], s.order[i]
	})
}

// Next implements Source.
func (s *AudioSource) Next() (*Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.pending) == 0 {
		if s.pos >= len(s.order) {
			return nil, io.EOF
		}
		if err := s.decodeMacrobatchLocked(); err != nil {
			return nil, err
		}
	}
	n := min(s.cfg.MinibatchSize, len(s.pending))
	clips := s.pending[:n]
	s.pending = s.pending[n:]

	frames := make([]int16, 0, n*s.numFrames*s.frameLength)
	for _, c := range clips {
		for f := range s.numFrames {
			start := f * s.frameStride
			frames = append(frames, c.samples[start:start+s.frameLength]...)
		}
	}
	batch := &Batch{Columns: []*Column{newColumn(frames, n, s.numFrames, s.frameLength)}}
	if s.labels != nil {
		labels := make([]int64, n)
		for ii, c := range clips {
			labels[ii] = c.label
		}
		batch.Columns = append(batch.Columns, newColumn(labels, n))
	}
	return batch, nil
}

// decodeMacrobatchLocked decodes the next macrobatch of clips into s.pending.
func (s *AudioSource) decodeMacrobatchLocked() error {
	macro := max(s.cfg.MacrobatchSize, s.cfg.MinibatchSize)
	end := min(s.pos+macro, len(s.order))
	jobs := make([]decodeJob, 0, end-s.pos)
	for _, idx := range s.order[s.pos:end] {
		job := decodeJob{record: s.records[idx]}
		if len(s.noise) > 0 && s.rng.Float64() < s.cfg.Audio.AddNoiseProbability {
			job.noisePath = s.noise[s.rng.Intn(len(s.noise))]
			lo, hi := s.cfg.Audio.NoiseLevel[0], s.cfg.Audio.NoiseLevel[1]
			job.noiseLevel = lo + s.rng.Float64()*(hi-lo)
		}
		jobs = append(jobs, job)
	}
	s.pos = end

	clips := make([]*clip, len(jobs))
	var g errgroup.Group
	g.SetLimit(runtime.NumCPU())
	for ii, job := range jobs {
		g.Go(func() error {
			c, err := s.decodeClip(job)
			clips[ii] = c
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return errors.WithMessagef(err, "while decoding macrobatch of %q", s.name)
	}
	klog.V(2).Infof("audio source %q: decoded %d clips (%d/%d)", s.name, len(clips), s.pos, len(s.order))
	s.pending = clips
	return nil
}

// decodeClip loads the audio of one record, mixes in the noise and looks up its label.
func (s *AudioSource) decodeClip(job decodeJob) (*clip, error) {
	samples, err := s.loadSamples(filepath.Join(s.cfg.ManifestRoot, filepath.FromSlash(job.record.Audio)))
	if err != nil {
		return nil, err
	}
	if job.noisePath != "" {
		noise, err := s.loadSamples(job.noisePath)
		if err != nil {
			return nil, errors.WithMessage(err, "noise clip")
		}
		mixed := make([]int16, len(samples))
		for ii, v := range samples {
			mixed[ii] = clampInt16(float64(v) + job.noiseLevel*float64(noise[ii]))
		}
		samples = mixed
	}
	c := &clip{samples: samples}
	if s.labels != nil {
		c.label = s.labels[job.record.Label]
	}
	return c, nil
}

// loadSamples returns the first channel of the AIFF file at audioPath, fit to numSamples, using the
// cache directory if configured.
func (s *AudioSource) loadSamples(audioPath string) ([]int16, error) {
	var cachePath string
	if s.cfg.CacheDirectory != "" {
		key := sha256.Sum256([]byte(fmt.Sprintf("%s|%d|%d", audioPath, s.cfg.Audio.SampleFreqHz, s.numSamples)))
		cachePath = filepath.Join(s.cfg.CacheDirectory, fmt.Sprintf("%x.gob", key[:16]))
		if samples, err := readCachedSamples(cachePath); err == nil && len(samples) == s.numSamples {
			return samples, nil
		}
	}
	samples, err := decodeAIFF(audioPath, s.cfg.Audio.SampleFreqHz)
	if err != nil {
		return nil, err
	}
	samples = fitLength(samples, s.numSamples)
	if cachePath != "" {
		if err = writeCachedSamples(cachePath, samples); err != nil {
			klog.Warningf("failed to cache decoded clip %q: %+v", audioPath, err)
		}
	}
	return samples, nil
}

// decodeAIFF reads the first channel of an AIFF file, converted to 16 bits.
func decodeAIFF(audioPath string, sampleFreqHz int) ([]int16, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open audio file %q", audioPath)
	}
	defer func() { _ = f.Close() }()

	decoder := aiff.NewDecoder(f)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.Errorf("%q is not a valid AIFF file", audioPath)
	}
	if decoder.SampleRate != sampleFreqHz {
		return nil, errors.Errorf("%q has a sample rate of %d Hz, expected %d Hz", audioPath, decoder.SampleRate, sampleFreqHz)
	}
	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, errors.Wrapf(err, "failed to decode audio file %q", audioPath)
	}
	return firstChannelInt16(buf, int(decoder.NumChans), int(decoder.BitDepth)), nil
}

// firstChannelInt16 extracts the first channel of interleaved samples, rescaled to 16 bits.
func firstChannelInt16(buf *audio.IntBuffer, numChans, bitDepth int) []int16 {
	numChans = max(numChans, 1)
	samples := make([]int16, 0, len(buf.Data)/numChans)
	for ii := 0; ii < len(buf.Data); ii += numChans {
		v := buf.Data[ii]
		switch {
		case bitDepth > 16:
			v >>= bitDepth - 16
		case bitDepth > 0 && bitDepth < 16:
			v <<= 16 - bitDepth
		}
		samples = append(samples, int16(v))
	}
	return samples
}

// fitLength truncates or zero-pads samples to n.
func fitLength(samples []int16, n int) []int16 {
	if len(samples) >= n {
		return samples[:n]
	}
	padded := make([]int16, n)
	copy(padded, samples)
	return padded
}

func clampInt16(v float64) int16 {
	v = math.Round(v)
	if v > math.MaxInt16 {
		return math.MaxInt16
	}
	if v < math.MinInt16 {
		return math.MinInt16
	}
	return int16(v)
}

func readCachedSamples(cachePath string) ([]int16, error) {
	f, err := os.Open(cachePath)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	var samples []int16
	if err = gob.NewDecoder(f).Decode(&samples); err != nil {
		return nil, errors.Wrapf(err, "failed to decode cached clip %q", cachePath)
	}
	return samples, nil
}

// writeCachedSamples writes to a temporary file first, so concurrent readers never see a partial file.
func writeCachedSamples(cachePath string, samples []int16) error {
	if err := os.MkdirAll(filepath.Dir(cachePath), 0755); err != nil {
		return errors.Wrapf(err, "failed to create cache directory %q", filepath.Dir(cachePath))
	}
	f, err := os.CreateTemp(filepath.Dir(cachePath), filepath.Base(cachePath)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "failed to create cache file for %q", cachePath)
	}
	tmpPath := f.Name()
	if err = gob.NewEncoder(f).Encode(samples); err != nil {
		_ = f.Close()
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to encode %q", tmpPath)
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return errors.Wrapf(err, "failed to close %q", tmpPath)
	}
	if err = os.Rename(tmpPath, cachePath); err != nil {
		return errors.Wrapf(err, "failed to rename %q to %q", tmpPath, cachePath)
	}
	return nil
}
