// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ingest

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/whalecalls/pkg/support/fsutil"
	"github.com/pkg/errors"
	"github.com/schollz/progressbar/v3"
	"k8s.io/klog/v2"
)

// newExtractBar creates a progress bar counting the uncompressed bytes written.
func newExtractBar(totalBytes int64, zipPath string) *progressbar.ProgressBar {
	return progressbar.NewOptions64(totalBytes,
		progressbar.OptionSetDescription(fmt.Sprintf("extracting %s (%s)",
			filepath.Base(zipPath), humanize.Bytes(uint64(totalBytes)))),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionShowBytes(true),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: ".",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)
}

// extractArchive extracts all the contents of zipPath into dir, creating it if needed.
// Entries that would be written outside dir are rejected.
func extractArchive(zipPath, dir string, showProgress bool) error {
	zr, err := zip.OpenReader(zipPath)
	if err != nil {
		return errors.Wrapf(err, "failed to open archive %q", zipPath)
	}
	defer func() { _ = zr.Close() }()

	if err = os.MkdirAll(dir, 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory %q", dir)
	}

	var totalBytes int64
	for _, f := range zr.File {
		totalBytes += int64(f.UncompressedSize64)
	}
	klog.V(1).Infof("extracting %d entries (%s) from %q into %q",
		len(zr.File), humanize.Bytes(uint64(totalBytes)), zipPath, dir)

	var bar *progressbar.ProgressBar
	if showProgress {
		bar = newExtractBar(totalBytes, zipPath)
		defer func() { _ = bar.Close() }()
	}
	for _, f := range zr.File {
		if err = extractEntry(f, dir, bar); err != nil {
			return errors.WithMessagef(err, "while extracting %q", zipPath)
		}
	}
	if bar != nil {
		_ = bar.Finish()
		_, _ = fmt.Fprintln(os.Stderr)
	}
	return nil
}

// extractEntry writes one archive entry under dir. bar may be nil.
func extractEntry(f *zip.File, dir string, bar *progressbar.ProgressBar) error {
	target, err := fsutil.JoinWithin(dir, filepath.FromSlash(f.Name))
	if err != nil {
		return err
	}
	if f.FileInfo().IsDir() {
		if err = os.MkdirAll(target, 0755); err != nil {
			return errors.Wrapf(err, "failed to create directory %q", target)
		}
		return nil
	}
	if err = os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return errors.Wrapf(err, "failed to create directory %q", filepath.Dir(target))
	}

	rc, err := f.Open()
	if err != nil {
		return errors.Wrapf(err, "failed to open entry %q", f.Name)
	}
	defer func() { _ = rc.Close() }()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
	if err != nil {
		return errors.Wrapf(err, "failed to create %q", target)
	}
	var w io.Writer = out
	if bar != nil {
		w = io.MultiWriter(out, bar)
	}
	if _, err = io.Copy(w, rc); err != nil {
		_ = out.Close()
		return errors.Wrapf(err, "failed to extract %q to %q", f.Name, target)
	}
	if err = out.Close(); err != nil {
		return errors.Wrapf(err, "failed closing %q", target)
	}
	return nil
}
