// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// whale_batches reads a run configuration written by whale_ingest, builds the train, validation and
// test loaders, and iterates over one epoch of each, reporting the number of batches and their shapes.
//
// It is useful to check the ingested data and to warm up the decoded clips cache (see WHALECALLS_CACHE_DIR).
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/gomlx/gomlx/pkg/ml/train"
	"github.com/gomlx/whalecalls/pkg/ingest"
	"github.com/gomlx/whalecalls/pkg/loader"
	"github.com/gomlx/whalecalls/pkg/manifest"
	"github.com/janpfeifer/must"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"
)

var (
	flagConfig     = flag.String("config", "", "Path to a run configuration (whale_eval.cfg or whale_subm.cfg). Required.")
	flagBatchSize  = flag.Int("batch_size", 32, "Batch size.")
	flagNoise      = flag.Bool("noise", true, "Mix noise clips into the training clips.")
	flagMaxBatches = flag.Int("max_batches", 0, "If > 0, stop each epoch after this many batches.")
)

// epochStats of one loader.
type epochStats struct {
	name               string
	batches, examples  int
	inputShape, labels string
	elapsed            time.Duration
}

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagConfig == "" {
		klog.Errorf("Missing --config. See 'whale_batches -help'.")
		os.Exit(1)
	}
	rc := must.M1(ingest.ReadRunConfig(*flagConfig))
	for _, subset := range []manifest.Subset{manifest.SubsetTrain, manifest.SubsetVal, manifest.SubsetTest} {
		if rc.Manifests[subset] == "" {
			klog.Errorf("Run configuration %q has no %q manifest", *flagConfig, subset)
			os.Exit(1)
		}
	}

	var noiseFile string
	if *flagNoise {
		noiseFile = rc.Manifests[manifest.SubsetNoise]
	}
	loaders := []train.Dataset{
		must.M1(loader.MakeTrainLoader(loader.AudioFactory, rc.Manifests[manifest.SubsetTrain], rc.ManifestRoot,
			*flagBatchSize, noiseFile, rc.RNGSeed)),
		must.M1(loader.MakeValLoader(loader.AudioFactory, rc.Manifests[manifest.SubsetVal], rc.ManifestRoot, *flagBatchSize)),
		must.M1(loader.MakeTestLoader(loader.AudioFactory, rc.Manifests[manifest.SubsetTest], rc.ManifestRoot, *flagBatchSize)),
	}

	table := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers("Loader", "Batches", "Examples", "Inputs", "Labels", "Time")
	for _, ds := range loaders {
		stats, err := runEpoch(ds, *flagMaxBatches)
		if err != nil {
			klog.Errorf("Failed reading %q: %+v", ds.Name(), err)
			os.Exit(1)
		}
		table.Row(stats.name, humanize.Comma(int64(stats.batches)), humanize.Comma(int64(stats.examples)),
			stats.inputShape, stats.labels, stats.elapsed.Round(time.Millisecond).String())
	}
	fmt.Println(table.Render())
}

// runEpoch reads one epoch of ds (at most maxBatches, if > 0).
func runEpoch(ds train.Dataset, maxBatches int) (*epochStats, error) {
	stats := &epochStats{name: ds.Name(), labels: "-"}
	start := time.Now()
	ds.Reset()
	for maxBatches <= 0 || stats.batches < maxBatches {
		_, inputs, labels, err := ds.Yield()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		if stats.batches == 0 {
			stats.inputShape = inputs[0].Shape().String()
			if len(labels) > 0 {
				stats.labels = labels[0].Shape().String()
			}
		}
		stats.batches++
		stats.examples += inputs[0].Shape().Dimensions[0]
		klog.V(2).Infof("%s: batch #%d with %s", ds.Name(), stats.batches, inputs[0].Shape())
	}
	stats.elapsed = time.Since(start)
	return stats, nil
}
