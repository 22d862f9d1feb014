// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package refmodel

import (
	"context"
	"path/filepath"
	"slices"
	"testing"

	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/florischabert/translate/pkg/core/tensors"
	"github.com/florischabert/translate/pkg/ml/binding"
	"github.com/florischabert/translate/pkg/ml/decode"
)

func testConfig() Config {
	return Config{SourceVocabSize: 20, TargetVocabSize: 16, HiddenSize: 8, NumStates: 2}
}

func TestConfig(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	bad := cfg
	bad.HiddenSize = 0
	require.Error(t, bad.Validate())
	bad = cfg
	bad.NumStates = 0
	require.Error(t, bad.Validate())
	bad = cfg
	bad.TargetVocabSize = 2
	require.Error(t, bad.Validate())
	bad = cfg
	bad.ReducedVocab = []int{3, 16}
	require.Error(t, bad.Validate())
	_, err := New(bad, 1)
	require.Error(t, err)
}

func TestEncoder(t *testing.T) {
	m := must.M1(New(testConfig(), 42))
	inputs := must.M1(binding.NewBuilder().
		Set(binding.EncoderInputs, tensors.FromFlatDataAndDimensions([]int64{5, 6, 100}, 3, 1)).
		Set(binding.EncoderLengths, tensors.FromFlatDataAndDimensions([]int32{3}, 1)).
		Build())
	defer inputs.Finalize()

	outputs, err := m.Encoder().Run(context.Background(), inputs)
	require.NoError(t, err)
	defer outputs.Finalize()
	assert.Equal(t, []string{"encoder_output_0", "initial_state_0", "initial_state_1"}, outputs.Names())
	assert.Equal(t, []int{3, 1, 8}, outputs.MustGet("encoder_output_0").Shape().Dimensions)
	assert.Equal(t, []int{1, 8}, outputs.MustGet("initial_state_1").Shape().Dimensions)
	routes, err := binding.RouteEncoderOutputs(outputs)
	require.NoError(t, err)
	assert.Len(t, routes, 3)

	// Missing inputs are reported as errors.
	_, err = m.Encoder().Run(context.Background(), binding.Empty())
	require.Error(t, err)
}

func decodeWith(t *testing.T, m *Model, beamSize int, source []int, maxOutputSeqLen int) *decode.Result {
	result, err := decode.New(m.Encoder(), m.Step()).
		WithBeamSize(beamSize).
		Decode(context.Background(), source, maxOutputSeqLen, true)
	require.NoError(t, err)
	return result
}

func TestDecode(t *testing.T) {
	t.Run("Beams", func(t *testing.T) {
		m := must.M1(New(testConfig(), 42))
		beamSize := 3
		result := decodeWith(t, m, beamSize, []int{4, 9, 11, 2}, 6)
		require.Equal(t, 6, result.MaxTimestep)

		// At timestep 0 only beam slot 0 is extended.
		assert.Equal(t, []int{0, 0, 0}, result.Backpointers[1])
		for timestep := 1; timestep <= result.MaxTimestep; timestep++ {
			scores := result.Scores[timestep]
			assert.True(t, slices.IsSortedFunc(scores, func(a, b float32) int {
				if a > b {
					return -1
				} else if a < b {
					return 1
				}
				return 0
			}), "scores at timestep %d are not sorted: %v", timestep, scores)
			for k := range beamSize {
				assert.Less(t, scores[k], float32(0))
				assert.GreaterOrEqual(t, result.Tokens[timestep][k], 2, "PAD and GO are never chosen")
				assert.Less(t, result.Tokens[timestep][k], 16)
				var sum float32
				for _, w := range result.Attention[timestep][k] {
					sum += w
				}
				assert.InDelta(t, 1.0, sum, 1e-4)
			}
		}

		// Deterministic.
		again := decodeWith(t, m, beamSize, []int{4, 9, 11, 2}, 6)
		assert.Equal(t, result, again)
	})

	t.Run("VocabReduction", func(t *testing.T) {
		cfg := testConfig()
		cfg.VocabReduction = true
		cfg.ReducedVocab = []int{2, 7, 8, 9}
		m := must.M1(New(cfg, 7))
		result := decodeWith(t, m, 2, []int{3, 3}, 4)
		for timestep := 1; timestep <= result.MaxTimestep; timestep++ {
			for _, token := range result.Tokens[timestep] {
				assert.Contains(t, cfg.ReducedVocab, token)
			}
		}

		cfg.ReducedVocab = []int{2}
		m = must.M1(New(cfg, 7))
		_, err := decode.New(m.Encoder(), m.Step()).WithBeamSize(2).Decode(context.Background(), []int{3}, 2, false)
		require.Error(t, err, "not enough candidates for the beam")
		var invocation *decode.InvocationError
		require.ErrorAs(t, err, &invocation)
		assert.Equal(t, 0, invocation.Timestep)
	})
}

func TestSaveLoad(t *testing.T) {
	m := must.M1(New(testConfig(), 3))
	filePath := filepath.Join(t.TempDir(), "models", "model.bin")
	require.NoError(t, m.Save(filePath))
	loaded, err := Load(filePath)
	require.NoError(t, err)
	assert.Equal(t, m.Config, loaded.Config)
	assert.True(t, m.OutputProjection.Equal(loaded.OutputProjection))
	assert.Equal(t, decodeWith(t, m, 2, []int{5, 6}, 3), decodeWith(t, loaded, 2, []int{5, 6}, 3))

	_, err = Load(filepath.Join(t.TempDir(), "missing.bin"))
	require.Error(t, err)
}
