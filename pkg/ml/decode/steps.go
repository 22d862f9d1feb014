// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package decode

import (
	"slices"

	"github.com/pkg/errors"

	"github.com/florischabert/translate/pkg/core/tensors"
	"github.com/florischabert/translate/pkg/ml/binding"
	"github.com/florischabert/translate/pkg/support/xslices"
)

// encoderInputs builds the encoder inputs binding: encoder_inputs [sourceLength, 1] (Int64) with the
// source tokens, optionally reversed, and encoder_lengths [1] (Int32).
func encoderInputs(sourceTokens []int, reverseSource bool) (*binding.Binding, error) {
	tokens := xslices.Convert[int64](sourceTokens)
	if reverseSource {
		slices.Reverse(tokens)
	}
	return binding.NewBuilder().
		Set(binding.EncoderInputs, tensors.FromFlatDataAndDimensions(tokens, len(tokens), 1)).
		Set(binding.EncoderLengths, tensors.FromFlatDataAndDimensions([]int32{int32(len(tokens))}, 1)).
		Build()
}

// timestepTensor returns the scalar (Int32) `timestep` input.
func timestepTensor(timestep int) *tensors.Tensor {
	return tensors.FromScalar(int32(timestep))
}

// initialStepInputs builds the inputs of the first decoder-step invocation (timestep 0):
//
//   - the routed encoder outputs: fixed_input_<N>, state_input_<N> (from initial_state_<N>) and
//     possible_translation_tokens.
//   - timestep = 0.
//   - prev_tokens [beamSize] (Int64) filled with the EOS token.
//   - prev_scores [beamSize] (Float32) filled with zeros.
func initialStepInputs(routes []binding.Route, encoderOutputs *binding.Binding, beamSize, eosTokenId int) (*binding.Binding, error) {
	bb := binding.NewBuilder()
	for _, route := range routes {
		bb.Alias(route.To, encoderOutputs.MustGet(route.Raw))
	}
	bb.Set(binding.Timestep, timestepTensor(0))
	bb.Set(binding.PrevTokens, tensors.FromScalarAndDimensions(int64(eosTokenId), beamSize))
	bb.Set(binding.PrevScores, tensors.FromScalarAndDimensions(float32(0), beamSize))
	b, err := bb.Build()
	if err != nil {
		return nil, errors.WithMessagef(err, "building initial decoder step inputs")
	}
	return b, nil
}

// nextStepInputs builds the inputs of the decoder-step invocation at the given timestep (>= 1):
//
//   - fixed_input_<N> and possible_translation_tokens routed from the (broadcast) encoder outputs.
//   - state_input_<N> routed from the previous step's state_output_<N>: the encoder initial states
//     are only used at timestep 0.
//   - timestep.
//   - prev_tokens and prev_scores: the previous step's best_tokens_indices and best_scores, unchanged.
func nextStepInputs(routes []binding.Route, encoderOutputs, stepOutputs *binding.Binding, timestep int) (*binding.Binding, error) {
	bb := binding.NewBuilder()
	for _, route := range routes {
		switch route.Kind {
		case binding.KindEncoderOutput, binding.KindPossibleTranslationTokens:
			bb.Alias(route.To, encoderOutputs.MustGet(route.Raw))
		}
	}
	for _, route := range binding.RouteStepStates(stepOutputs) {
		bb.Alias(route.To, stepOutputs.MustGet(route.Raw))
	}
	bb.Set(binding.Timestep, timestepTensor(timestep))
	bb.Alias(binding.PrevTokens, stepOutputs.MustGet(binding.BestTokensIndices))
	bb.Alias(binding.PrevScores, stepOutputs.MustGet(binding.BestScores))
	b, err := bb.Build()
	if err != nil {
		return nil, errors.WithMessagef(err, "building decoder step inputs for timestep %d", timestep)
	}
	return b, nil
}
