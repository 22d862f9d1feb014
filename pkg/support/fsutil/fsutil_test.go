// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fsutil

import (
	"os/user"
	"path"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandHome(t *testing.T) {
	usr, err := user.Current()
	require.NoError(t, err)

	got, err := ExpandHome("~/models/enc.bin")
	require.NoError(t, err)
	assert.Equal(t, path.Join(usr.HomeDir, "models/enc.bin"), got)

	got, err = ExpandHome("~")
	require.NoError(t, err)
	assert.Equal(t, path.Clean(usr.HomeDir), got)

	got, err = ExpandHome("/tmp/x")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/x", got)

	_, err = ExpandHome("~no_such_user_for_sure/x")
	require.Error(t, err)
}

func TestResolve(t *testing.T) {
	got, err := Resolve("/models", "vocab.txt")
	require.NoError(t, err)
	assert.Equal(t, "/models/vocab.txt", got)

	got, err = Resolve("/models", "/abs/vocab.txt")
	require.NoError(t, err)
	assert.Equal(t, "/abs/vocab.txt", got)

	got, err = Resolve("", "vocab.txt")
	require.NoError(t, err)
	assert.Equal(t, "vocab.txt", got)
}

func TestCreateFile(t *testing.T) {
	filePath := filepath.Join(t.TempDir(), "a", "b", "file.txt")
	exists, err := FileExists(filePath)
	require.NoError(t, err)
	assert.False(t, exists)

	f, err := CreateFile(filePath)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	exists, err = FileExists(filePath)
	require.NoError(t, err)
	assert.True(t, exists)
}
