// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package binding

import (
	"fmt"
	"strings"
)

// Names of the tensors exchanged with the encoder and decoder-step modules.
const (
	// Encoder inputs.
	EncoderInputs  = "encoder_inputs"
	EncoderLengths = "encoder_lengths"

	// Decoder-step inputs, besides the routed fixed and state inputs.
	Timestep   = "timestep"
	PrevTokens = "prev_tokens"
	PrevScores = "prev_scores"

	// PossibleTranslationTokens is an optional encoder output, passed through to every decoder step.
	PossibleTranslationTokens = "possible_translation_tokens"

	// Required decoder-step outputs.
	BestTokensIndices       = "best_tokens_indices"
	BestScores              = "best_scores"
	PrevHyposIndices        = "prev_hypos_indices"
	AttentionWeightsAverage = "attention_weights_average"

	EncoderOutputPrefix = "encoder_output_"
	InitialStatePrefix  = "initial_state_"
	StateOutputPrefix   = "state_output_"
	FixedInputPrefix    = "fixed_input_"
	StateInputPrefix    = "state_input_"
)

// EncoderOutputName returns the name of the n-th encoder output, e.g. "encoder_output_0".
func EncoderOutputName(n int) string { return fmt.Sprintf("%s%d", EncoderOutputPrefix, n) }

// InitialStateName returns the name of the n-th initial state produced by the encoder.
func InitialStateName(n int) string { return fmt.Sprintf("%s%d", InitialStatePrefix, n) }

// StateOutputName returns the name of the n-th state produced by the decoder step.
func StateOutputName(n int) string { return fmt.Sprintf("%s%d", StateOutputPrefix, n) }

// FixedInputName returns the name of the n-th fixed input of the decoder step.
func FixedInputName(n int) string { return fmt.Sprintf("%s%d", FixedInputPrefix, n) }

// StateInputName returns the name of the n-th state input of the decoder step.
func StateInputName(n int) string { return fmt.Sprintf("%s%d", StateInputPrefix, n) }

// Kind of module output name, see Classify.
type Kind int

const (
	KindUnrecognized Kind = iota
	KindEncoderOutput
	KindInitialState
	KindStateOutput
	KindPossibleTranslationTokens
)

// String implements fmt.Stringer.
func (k Kind) String() string {
	switch k {
	case KindEncoderOutput:
		return "EncoderOutput"
	case KindInitialState:
		return "InitialState"
	case KindStateOutput:
		return "StateOutput"
	case KindPossibleTranslationTokens:
		return "PossibleTranslationTokens"
	default:
		return "Unrecognized"
	}
}

// Name is the classification of a module output name.
type Name struct {
	// Kind of the output.
	Kind Kind

	// Index is the numeric suffix of indexed names, kept verbatim (so "encoder_output_01"
	// routes to "fixed_input_01"). Empty for other kinds.
	Index string

	// Raw is the name as produced by the module.
	Raw string
}

// Classify parses a module output name once into its tagged classification.
//
// Indexed names must match the whole pattern `<prefix><digits>`: "encoder_output_1x" or
// "my_encoder_output_1" are unrecognized.
func Classify(name string) Name {
	if name == PossibleTranslationTokens {
		return Name{Kind: KindPossibleTranslationTokens, Raw: name}
	}
	for _, candidate := range []struct {
		prefix string
		kind   Kind
	}{
		{EncoderOutputPrefix, KindEncoderOutput},
		{InitialStatePrefix, KindInitialState},
		{StateOutputPrefix, KindStateOutput},
	} {
		if index, found := strings.CutPrefix(name, candidate.prefix); found && isDigits(index) {
			return Name{Kind: candidate.kind, Index: index, Raw: name}
		}
	}
	return Name{Kind: KindUnrecognized, Raw: name}
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// NextInputName returns the canonical name under which the output is fed to the next decoder-step invocation:
//
//   - encoder_output_<N> -> fixed_input_<N>
//   - initial_state_<N> -> state_input_<N>
//   - state_output_<N> -> state_input_<N>
//   - possible_translation_tokens -> possible_translation_tokens
//
// It returns an *UnrecognizedTensorNameError for unrecognized names.
func (n Name) NextInputName() (string, error) {
	switch n.Kind {
	case KindEncoderOutput:
		return FixedInputPrefix + n.Index, nil
	case KindInitialState, KindStateOutput:
		return StateInputPrefix + n.Index, nil
	case KindPossibleTranslationTokens:
		return PossibleTranslationTokens, nil
	default:
		return "", &UnrecognizedTensorNameError{Name: n.Raw}
	}
}

// Route maps one module output to the input name of the next decoder-step invocation.
type Route struct {
	Name
	To string
}

// RouteEncoderOutputs classifies all the outputs of the encoder and returns their routes,
// in sorted output name order.
//
// Only encoder_output_<N>, initial_state_<N> and possible_translation_tokens are valid encoder outputs:
// any other name (including state_output_<N>) returns an *UnrecognizedTensorNameError with the
// offending name.
func RouteEncoderOutputs(encoderOutputs *Binding) ([]Route, error) {
	routes := make([]Route, 0, encoderOutputs.Len())
	for outputName := range encoderOutputs.All() {
		n := Classify(outputName)
		if n.Kind == KindStateOutput {
			return nil, &UnrecognizedTensorNameError{Name: outputName}
		}
		to, err := n.NextInputName()
		if err != nil {
			return nil, err
		}
		routes = append(routes, Route{Name: n, To: to})
	}
	return routes, nil
}

// RouteStepStates returns the routes of the state_output_<N> outputs of a decoder step to
// state_input_<N>, in sorted output name order. Other outputs are not routed.
func RouteStepStates(stepOutputs *Binding) []Route {
	var routes []Route
	for outputName := range stepOutputs.All() {
		n := Classify(outputName)
		if n.Kind != KindStateOutput {
			continue
		}
		routes = append(routes, Route{Name: n, To: StateInputPrefix + n.Index})
	}
	return routes
}

// UnrecognizedTensorNameError is returned when a module produces an output whose name matches
// none of the recognized patterns. It indicates an incompatible or corrupted exported model.
type UnrecognizedTensorNameError struct {
	Name string
}

// Error implements the error interface.
func (e *UnrecognizedTensorNameError) Error() string {
	return fmt.Sprintf("unrecognized tensor name %q: encoder outputs must match %s<N>, %s<N> or %s",
		e.Name, EncoderOutputPrefix, InitialStatePrefix, PossibleTranslationTokens)
}
