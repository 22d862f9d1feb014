// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/florischabert/translate/pkg/ml/decode"
	"github.com/florischabert/translate/pkg/ml/decode/hypothesis"
	"github.com/florischabert/translate/pkg/ml/vocab"
)

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.50s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "12.35ms", FormatDuration(12345*time.Microsecond))
	assert.Equal(t, "2m3s", FormatDuration(2*time.Minute+3400*time.Millisecond))
	assert.Equal(t, "2.50µs", FormatDuration(2500*time.Nanosecond))
	assert.Equal(t, "12ns", FormatDuration(12))
	assert.Equal(t, 3*time.Second, medianDuration([]time.Duration{5 * time.Second, time.Second, 3 * time.Second}))
	assert.Equal(t, time.Duration(0), medianDuration(nil))
}

func TestBeamsTable(t *testing.T) {
	target := vocab.New("hello", "world")
	result := &decode.Result{
		MaxTimestep:  2,
		BeamSize:     2,
		SourceLength: 1,
		Tokens:       [][]int{{0, 0}, {4, 5}, {vocab.EOS, 4}},
		Scores:       [][]float32{{0, 0}, {-0.5, -1}, {-0.75, -2}},
		Backpointers: [][]int{{0, 0}, {0, 0}, {0, 1}},
		Attention:    [][][]float32{{{0}, {0}}, {{1}, {1}}, {{1}, {1}}},
	}
	best, err := hypothesis.New(vocab.EOS).Best(result)
	assert.NoError(t, err)
	got := BeamsTable(result, target, &best)
	for _, want := range []string{"hello", "world", "<EOS>", "-0.7500", "-2.0000", "slot", "max timestep 2"} {
		assert.True(t, strings.Contains(got, want), "missing %q in:\n%s", want, got)
	}
}
