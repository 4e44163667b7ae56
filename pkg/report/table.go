// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package report

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)
	oddRowStyle = lipgloss.NewStyle().Faint(false).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Faint(true).
			PaddingLeft(1).PaddingRight(1)
	warnRowStyle = lipgloss.NewStyle().
			Foreground(lipgloss.AdaptiveColor{Light: "9", Dark: "9"}).
			Bold(true).
			PaddingLeft(1).PaddingRight(1)
)

// newTable creates a table with alternating row styles. Rows listed in warnRows are highlighted.
// Alignments are given per column; the last one applies to the remaining columns.
func newTable(warnRows map[int]bool, alignments ...lipgloss.Position) *lgtable.Table {
	return lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				return headerRowStyle
			case warnRows[row]:
				s = warnRowStyle
			case row%2 == 0:
				s = oddRowStyle
			default:
				s = evenRowStyle
			}
			alignment := lipgloss.Left
			if col < len(alignments) {
				alignment = alignments[col]
			} else if len(alignments) > 0 {
				alignment = alignments[len(alignments)-1]
			}
			return s.Align(alignment)
		})
}

// Table renders the statistics as a table. Subsets with missing audio files are highlighted.
func Table(stats []SubsetStats) string {
	warnRows := make(map[int]bool)
	for ii, s := range stats {
		if s.MissingAudio > 0 {
			warnRows[ii] = true
		}
	}
	t := newTable(warnRows, lipgloss.Left, lipgloss.Right).
		Headers("Subset", "Clips", "No call", "Call", "% Call", "Audio", "Missing")
	for _, s := range stats {
		neg, pos, frac := "-", "-", "-"
		if s.Subset.HasLabels() {
			neg, pos = humanize.Comma(int64(s.Negatives)), humanize.Comma(int64(s.Positives))
			frac = fmt.Sprintf("%.1f%%", 100*s.PositiveFraction())
		}
		t.Row(s.Subset.String(), humanize.Comma(int64(s.Records)), neg, pos, frac,
			humanize.Bytes(uint64(s.AudioBytes)), humanize.Comma(int64(s.MissingAudio)))
	}
	return t.Render()
}
