// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"fmt"

	"github.com/gomlx/exceptions"

	"github.com/florischabert/translate/pkg/core/tensors"
	"github.com/florischabert/translate/pkg/ml/binding"
)

// Result of a beam search: the per-timestep history of the beams.
//
// All history slices are indexed by absolute timestep and have length MaxTimestep+1. Index 0 is
// a placeholder (zeros) matching the beam width. For t >= 1 and beam slot k:
//
//   - Tokens[t][k] is the vocabulary id chosen for beam slot k.
//   - Scores[t][k] is the cumulative log-probability of beam slot k.
//   - Backpointers[t][k] is the beam slot at t-1 that beam slot k extends.
//   - Attention[t][k] holds the attention weights over the SourceLength source positions.
//
// A Result is immutable once returned by Decoder.Decode.
type Result struct {
	MaxTimestep  int
	BeamSize     int
	SourceLength int

	Tokens       [][]int
	Scores       [][]float32
	Backpointers [][]int
	Attention    [][][]float32
}

// String returns a short description of the result.
func (r *Result) String() string {
	return fmt.Sprintf("beam search result: max timestep %d, beam size %d, source length %d",
		r.MaxTimestep, r.BeamSize, r.SourceLength)
}

// history accumulates the decoder-step outputs into a Result.
type history struct {
	result *Result
}

// newHistory creates a history with the placeholder record at timestep 0.
func newHistory(beamSize, sourceLength, maxTimestep int) *history {
	r := &Result{
		BeamSize:     beamSize,
		SourceLength: sourceLength,
		Tokens:       make([][]int, 1, maxTimestep+1),
		Scores:       make([][]float32, 1, maxTimestep+1),
		Backpointers: make([][]int, 1, maxTimestep+1),
		Attention:    make([][][]float32, 1, maxTimestep+1),
	}
	r.Tokens[0] = make([]int, beamSize)
	r.Scores[0] = make([]float32, beamSize)
	r.Backpointers[0] = make([]int, beamSize)
	r.Attention[0] = make([][]float32, beamSize)
	for k := range beamSize {
		r.Attention[0][k] = make([]float32, sourceLength)
	}
	return &history{result: r}
}

// append reads the required outputs of the decoder step invoked with the given timestep input and
// appends them as the history record timestep+1.
//
// It returns a *MissingStepOutputError if a required output is absent, and a *MalformedStepOutputError
// if it doesn't have the expected dtype or shape. Values are not validated.
func (h *history) append(timestep int, stepOutputs *binding.Binding) error {
	for _, name := range []string{binding.BestTokensIndices, binding.BestScores, binding.PrevHyposIndices, binding.AttentionWeightsAverage} {
		if !stepOutputs.Has(name) {
			return &MissingStepOutputError{Name: name, Timestep: timestep}
		}
	}

	var tokens, backpointers []int
	var scores []float32
	var attention [][]float32
	err := exceptions.TryCatch[error](func() {
		tokens = h.mustReadInts(timestep, stepOutputs, binding.BestTokensIndices)
		backpointers = h.mustReadInts(timestep, stepOutputs, binding.PrevHyposIndices)
		scores = h.mustReadFloats(timestep, stepOutputs, binding.BestScores)
		attention = h.mustReadAttention(timestep, stepOutputs)
	})
	if err != nil {
		return err
	}

	r := h.result
	r.Tokens = append(r.Tokens, tokens)
	r.Scores = append(r.Scores, scores)
	r.Backpointers = append(r.Backpointers, backpointers)
	r.Attention = append(r.Attention, attention)
	return nil
}

// malformed panics with a *MalformedStepOutputError, caught by history.append.
func malformed(timestep int, name string, format string, args ...any) {
	panic(&MalformedStepOutputError{Name: name, Timestep: timestep, Reason: fmt.Sprintf(format, args...)})
}

// checkTensor panics if the output tensor was released by the module, or if it doesn't have the wanted dimensions.
func checkTensor(timestep int, name string, t *tensors.Tensor, dimensions ...int) {
	if !t.Ok() {
		malformed(timestep, name, "tensor is nil or was released")
	}
	if err := t.Shape().CheckDims(dimensions...); err != nil {
		malformed(timestep, name, "%v", err)
	}
}

func (h *history) mustReadInts(timestep int, stepOutputs *binding.Binding, name string) []int {
	t := stepOutputs.MustGet(name)
	checkTensor(timestep, name, t, h.result.BeamSize)
	values, err := tensors.ToInts(t)
	if err != nil {
		malformed(timestep, name, "%v", err)
	}
	return values
}

func (h *history) mustReadFloats(timestep int, stepOutputs *binding.Binding, name string) []float32 {
	t := stepOutputs.MustGet(name)
	checkTensor(timestep, name, t, h.result.BeamSize)
	values, err := tensors.ToFloat32s(t)
	if err != nil {
		malformed(timestep, name, "%v", err)
	}
	return values
}

// mustReadAttention reads attention_weights_average, shaped [beamSize, sourceLength], one row per beam slot.
func (h *history) mustReadAttention(timestep int, stepOutputs *binding.Binding) [][]float32 {
	name := binding.AttentionWeightsAverage
	t := stepOutputs.MustGet(name)
	checkTensor(timestep, name, t, h.result.BeamSize, h.result.SourceLength)
	flat, err := tensors.ToFloat32s(t)
	if err != nil {
		malformed(timestep, name, "%v", err)
	}
	rows := make([][]float32, h.result.BeamSize)
	for k := range rows {
		rows[k] = flat[k*h.result.SourceLength : (k+1)*h.result.SourceLength]
	}
	return rows
}

// finish returns the Result with the given maximum timestep.
func (h *history) finish(maxTimestep int) *Result {
	h.result.MaxTimestep = maxTimestep
	return h.result
}
