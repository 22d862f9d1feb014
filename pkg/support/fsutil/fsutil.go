// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fsutil contains utilities for the model and vocabulary paths given by users.
package fsutil

import (
	"os"
	"os/user"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// FileExists returns whether the file or directory exists or an error if something went wrong in the filesystem.
func FileExists(filePath string) (bool, error) {
	_, err := os.Stat(filePath)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, errors.Wrapf(err, "failed to check whether %q exists", filePath)
}

// ExpandHome replaces a leading "~" or "~user" in filePath by the user's home directory.
// Returns filePath unchanged if it doesn't start with "~".
//
// It returns an error if filePath refers to an unknown user (e.g: `~unknown/...`).
func ExpandHome(filePath string) (string, error) {
	if filePath == "" || filePath[0] != '~' {
		return filePath, nil
	}
	var userName string
	if filePath != "~" && !strings.HasPrefix(filePath, "~/") {
		sepIdx := strings.IndexRune(filePath, '/')
		if sepIdx == -1 {
			userName = filePath[1:]
		} else {
			userName = filePath[1:sepIdx]
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
		return "", errors.Wrapf(err, "failed to lookup home directory for user in path %q", filePath)
	}
	return path.Join(usr.HomeDir, filePath[1+len(userName):]), nil
}

// Resolve expands the home directory in filePath and, if dir is not empty, joins relative paths to dir.
func Resolve(dir, filePath string) (string, error) {
	filePath, err := ExpandHome(filePath)
	if err != nil {
		return "", err
	}
	if dir == "" || filepath.IsAbs(filePath) {
		return filePath, nil
	}
	dir, err = ExpandHome(dir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, filePath), nil
}

// CreateFile creates (or truncates) filePath, creating its parent directories if needed.
func CreateFile(filePath string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, errors.Wrapf(err, "failed to create directory for %q", filePath)
	}
	f, err := os.Create(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to create %q", filePath)
	}
	return f, nil
}
