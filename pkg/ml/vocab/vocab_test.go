// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package vocab

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDictionary(t *testing.T) {
	d := New("hello", "world", "hello", "<EOS>")
	assert.Equal(t, NumReserved+2, d.Len())
	assert.Equal(t, NumReserved, d.ID("hello"))
	assert.Equal(t, NumReserved+1, d.ID("world"))
	assert.Equal(t, EOS, d.ID("<EOS>"))
	assert.Equal(t, UNK, d.ID("unknown"))
	assert.Equal(t, "world", d.Token(NumReserved+1))
	assert.Equal(t, "<UNK>", d.Token(100))
	assert.Equal(t, "<UNK>", d.Token(-1))

	t.Run("Numberize", func(t *testing.T) {
		assert.Equal(t, []int{4, 3, 5}, d.Numberize("  hello there\tworld\n"))
		assert.Empty(t, d.Numberize("   "))
	})

	t.Run("Denumberize", func(t *testing.T) {
		assert.Equal(t, "hello <UNK> world", d.Denumberize([]int{GO, 4, UNK, PAD, 5, EOS}))
		assert.Equal(t, "", d.Denumberize(nil))
	})
}

func TestReadWrite(t *testing.T) {
	t.Run("Read", func(t *testing.T) {
		d, err := Read(strings.NewReader("the 100\ncat 20\n\nsat\nthe 3\n"))
		require.NoError(t, err)
		assert.Equal(t, NumReserved+3, d.Len())
		assert.Equal(t, []int{4, 5, 6}, d.Numberize("the cat sat"))

		_, err = Read(strings.NewReader("a b c\n"))
		require.Error(t, err)
	})

	t.Run("SaveLoad", func(t *testing.T) {
		d := New("a", "b", "c")
		var buf bytes.Buffer
		require.NoError(t, d.Write(&buf))
		assert.Equal(t, "a\nb\nc\n", buf.String())

		filePath := filepath.Join(t.TempDir(), "vocab", "target.txt")
		require.NoError(t, d.Save(filePath))
		loaded, err := Load(filePath)
		require.NoError(t, err)
		assert.Equal(t, d.tokens, loaded.tokens)

		_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
		require.Error(t, err)
	})
}

func TestBuild(t *testing.T) {
	corpus := "the cat sat\non the mat\n\nthe cat\n"
	d, err := Build(strings.NewReader(corpus), 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"the", "cat", "sat", "on", "mat"}, d.tokens[NumReserved:])

	d, err = Build(strings.NewReader(corpus), 2)
	require.NoError(t, err)
	assert.Equal(t, NumReserved+2, d.Len())
	assert.Equal(t, UNK, d.ID("sat"))
}
