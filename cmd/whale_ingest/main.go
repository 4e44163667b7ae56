// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// whale_ingest extracts whale_data.zip and writes the manifests of the all, val, train, noise and test
// subsets, plus the run configurations whale_eval.cfg and whale_subm.cfg.
//
// Usage:
//
//	whale_ingest --input_dir=~/Downloads --out_dir=~/work/whales [--summary] [--plot=balance.png]
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gomlx/whalecalls/pkg/ingest"
	"github.com/gomlx/whalecalls/pkg/report"
	"github.com/janpfeifer/must"
	"k8s.io/klog/v2"
)

var (
	flagInputDir  = flag.String("input_dir", "", "Path to the directory with whale_data.zip. Required.")
	flagOutDir    = flag.String("out_dir", "", "Destination path of the extracted files and manifests. Required.")
	flagTrainFrac = flag.Float64("train_frac", ingest.DefaultTrainFraction,
		"Fraction of each class used for training, the rest is used for validation.")
	flagConfigDir = flag.String("config_dir", "",
		"Directory where whale_eval.cfg and whale_subm.cfg are written. Defaults to --out_dir.")
	flagForce   = flag.Bool("force", false, "Re-ingest even if all the manifests already exist.")
	flagSummary = flag.Bool("summary", false, "Display a table with the number of clips per subset and class, and check the subsets are consistent.")
	flagPlot    = flag.String("plot", "", "If set, save a bar chart of the class balance per subset to this file (.png or .svg).")
)

func main() {
	klog.InitFlags(nil)
	flag.Parse()
	if *flagInputDir == "" || *flagOutDir == "" {
		klog.Errorf("Both --input_dir and --out_dir are required. See 'whale_ingest -help'.")
		os.Exit(1)
	}
	if len(flag.Args()) > 0 {
		klog.Errorf("Unexpected arguments %q. See 'whale_ingest -help'.", flag.Args())
		os.Exit(1)
	}

	builder := ingest.Build(*flagInputDir, *flagOutDir).
		TrainFraction(*flagTrainFrac).
		Force(*flagForce)
	if *flagConfigDir != "" {
		builder.ConfigDir(*flagConfigDir)
	}
	manifests, err := builder.Run()
	if err != nil {
		klog.Errorf("Failed to ingest whale calls: %+v", err)
		os.Exit(1)
	}
	fmt.Println("Manifest files written to:\n" + strings.Join(manifests, "\n"))

	if !*flagSummary && *flagPlot == "" {
		return
	}
	stats := must.M1(report.Collect(filepath.Dir(manifests[0]), manifests))
	if *flagSummary {
		fmt.Println(report.Table(stats))
		problems := must.M1(report.Check(manifests))
		for _, problem := range problems {
			klog.Warningf("Inconsistent manifests: %s", problem)
		}
		if len(problems) == 0 {
			fmt.Println("Manifests are consistent.")
		}
	}
	if *flagPlot != "" {
		must.M(report.PlotClassBalance(stats, *flagPlot))
		fmt.Printf("Class balance plot saved to %q\n", *flagPlot)
	}
}
