// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"image/color"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// PlotClassBalance writes a bar chart with the number of clips of each class per labeled subset.
// The image format is taken from the extension of filePath (e.g.: ".png", ".svg").
func PlotClassBalance(stats []SubsetStats, filePath string) error {
	var names []string
	var negatives, positives plotter.Values
	for _, s := range stats {
		if !s.Subset.HasLabels() {
			continue
		}
		names = append(names, s.Subset.String())
		negatives = append(negatives, float64(s.Negatives))
		positives = append(positives, float64(s.Positives))
	}
	if len(names) == 0 {
		return errors.New("no labeled subsets to plot")
	}

	p := plot.New()
	p.Title.Text = "Whale calls: clips per class"
	p.Y.Label.Text = "clips"

	barWidth := vg.Points(20)
	negBars, err := plotter.NewBarChart(negatives, barWidth)
	if err != nil {
		return errors.Wrap(err, "failed to create bar chart")
	}
	negBars.Color = color.RGBA{R: 120, G: 120, B: 120, A: 255}
	negBars.Offset = -barWidth / 2
	p.Add(negBars)
	p.Legend.Add("no call", negBars)

	posBars, err := plotter.NewBarChart(positives, barWidth)
	if err != nil {
		return errors.Wrap(err, "failed to create bar chart")
	}
	posBars.Color = color.RGBA{R: 20, G: 80, B: 200, A: 255}
	posBars.Offset = barWidth / 2
	p.Add(posBars)
	p.Legend.Add("call", posBars)
	p.Legend.Top = true
	p.NominalX(names...)
	p.Add(plotter.NewGrid())

	if err = os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", filePath)
	}
	if err = p.Save(6*vg.Inch, 4*vg.Inch, filePath); err != nil {
		return errors.Wrapf(err, "failed to save plot to %q", filePath)
	}
	return nil
}
