// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities for working with the file system.
package fsutil

import (
	"os"
	"os/user"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to FileExists(%q)", path)
}

// MissingFiles returns the subset of paths that don't exist, preserving the given order.
// An empty result means all paths exist.
func MissingFiles(paths ...string) (missing []string, err error) {
	for _, p := range paths {
		var exists bool
		exists, err = FileExists(p)
		if err != nil {
			return nil, err
		}
		if !exists {
			missing = append(missing, p)
		}
	}
	return missing, nil
}

// ReplaceTildeInDir by the user's home directory. Returns dir if it doesn't start with "~".
//
// It returns an error if `dir` has an unknown user or some other filesystem error (e.g: `~unknown/...`)
func ReplaceTildeInDir(dir string) (string, error) {
	if len(dir) == 0 {
		return dir, nil
	}
	if dir[0] != '~' {
		return dir, nil
	}
	var userName string
	if dir != "~" && !strings.HasPrefix(dir, "~/") {
		sepIdx := strings.IndexRune(dir, '/')
		if sepIdx == -1 {
			userName = dir[1:]
		} else {
			userName = dir[1:sepIdx]
		}
	}
	var usr *user.User
	var err error
	if userName == "" {
		usr, err = user.Current()
	} else {
		usr, err = user.Lookup(userName)
	}
	if err != nil {
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", dir)
	}
	homeDir := usr.HomeDir
	return filepath.Join(homeDir, dir[1+len(userName):]), nil
}

// JoinWithin joins name to baseDir and checks that the result doesn't escape baseDir,
// as it happens with archive entries like "../../etc/passwd".
func JoinWithin(baseDir, name string) (string, error) {
	target := filepath.Join(baseDir, name)
	rel, err := filepath.Rel(baseDir, target)
	if err != nil {
		return "", errors.Wrapf(err, "failed to resolve %q relative to %q", name, baseDir)
	}
	if rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", errors.Errorf("path %q escapes directory %q", name, baseDir)
	}
	return target, nil
}
