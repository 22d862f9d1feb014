// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package decode drives beam search decoding for sequence-to-sequence translation against two
// opaque inference modules: an encoder and a decoder step.
//
// Score computation and top-k selection are internal to the modules. The Decoder implements the
// step-wise exchange protocol between them:
//
//   - The encoder outputs are routed to the decoder-step inputs by name (see binding.Classify):
//     encoder_output_<N> -> fixed_input_<N>, initial_state_<N> -> state_input_<N> and
//     possible_translation_tokens is passed through.
//   - After the first decoder step, every encoder_output_<N>, shaped [sourceLength, 1, hiddenSize],
//     is broadcast once to [sourceLength, beamSize, hiddenSize].
//   - From then on, state flows from each step's state_output_<N> to the next step's state_input_<N>,
//     and the chosen tokens and scores are fed back as prev_tokens and prev_scores.
//   - The beams of every step (tokens, scores, backpointers and attention) are accumulated in a Result,
//     to be used by a hypothesis extraction (see package hypothesis).
//
// Example:
//
//	decoder := decode.New(encoder, step).WithBeamSize(5).WithEOS(vocab.EOS)
//	result, err := decoder.Decode(ctx, sourceTokens, maxOutputSeqLen, true)
package decode

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/florischabert/translate/pkg/ml/binding"
)

// DefaultEosTokenId is the end-of-sequence id of the translation vocabularies.
const DefaultEosTokenId = 2

// StepObserver is called after every decoder-step invocation, with the timestep input of the
// invocation, its inputs and its outputs. The bindings are only valid during the call.
type StepObserver func(timestep int, inputs, outputs *binding.Binding)

// Decoder configures and executes beam search decoding.
//
// A Decoder can be used concurrently by different goroutines, as long as its modules can. Its
// configuration cannot be changed after Decode was first called.
type Decoder struct {
	// Encoder module, invoked once per Decode.
	Encoder Module

	// Step is the decoder-step module, invoked once per timestep.
	Step Module

	// BeamSize is the number of parallel hypotheses: the broadcast size of the encoder outputs,
	// and the expected length of the step outputs.
	BeamSize int

	// EosTokenId fills the prev_tokens of the first decoder step.
	EosTokenId int

	observer StepObserver
	used     atomic.Bool
	err      error
}

// New creates a decoder for the given encoder and decoder-step modules, with default
// parameters (beam size 4, EOS id 2).
func New(encoder, step Module) *Decoder {
	return &Decoder{
		Encoder:    encoder,
		Step:       step,
		BeamSize:   4,
		EosTokenId: DefaultEosTokenId,
	}
}

// checkConfigurable records an error if the decoder was already used.
func (cfg *Decoder) checkConfigurable(method string) bool {
	if cfg.used.Load() {
		if cfg.err == nil {
			cfg.err = errors.Errorf("Decoder.%s(): cannot change configuration after Decode was called", method)
		}
		return false
	}
	return true
}

// WithBeamSize sets the beam size.
func (cfg *Decoder) WithBeamSize(beamSize int) *Decoder {
	if cfg.checkConfigurable("WithBeamSize") {
		cfg.BeamSize = beamSize
	}
	return cfg
}

// WithEOS sets the end-of-sequence token id.
func (cfg *Decoder) WithEOS(eosTokenId int) *Decoder {
	if cfg.checkConfigurable("WithEOS") {
		cfg.EosTokenId = eosTokenId
	}
	return cfg
}

// WithObserver sets a function called after every decoder step, e.g. for instrumentation.
func (cfg *Decoder) WithObserver(observer StepObserver) *Decoder {
	if cfg.checkConfigurable("WithObserver") {
		cfg.observer = observer
	}
	return cfg
}

// validate checks that the decoder configuration is valid.
func (cfg *Decoder) validate() error {
	if cfg.err != nil {
		return cfg.err
	}
	if cfg.Encoder == nil || cfg.Step == nil {
		return errors.Wrapf(ErrInvalidConfig, "both encoder and decoder step modules must be set")
	}
	if cfg.BeamSize < 1 {
		return errors.Wrapf(ErrInvalidConfig, "beam size must be >= 1, got %d", cfg.BeamSize)
	}
	if cfg.EosTokenId < 0 {
		return errors.Wrapf(ErrInvalidConfig, "EOS token id must be >= 0, got %d", cfg.EosTokenId)
	}
	return nil
}

// Decode runs the beam search for the given source sentence (numberized), with maxOutputSeqLen
// decoder-step invocations. If reverseSource is set, the order of the source tokens is reversed
// before being fed to the encoder.
//
// The returned Result has MaxTimestep == maxOutputSeqLen. There is no early stopping: EOS handling
// and length penalties are applied on the Result (see package hypothesis).
//
// Errors abort the whole search, there are no partial results:
//
//   - ErrEmptySource and ErrInvalidConfig (wrapped) for invalid arguments or configuration.
//   - *binding.UnrecognizedTensorNameError if the encoder produces an unrecognized output name,
//     before any decoder step is invoked.
//   - *MissingStepOutputError or *MalformedStepOutputError if a decoder step breaks its output contract.
//   - *InvocationError if a module fails.
//
// The ctx is only passed to the modules.
func (cfg *Decoder) Decode(ctx context.Context, sourceTokens []int, maxOutputSeqLen int, reverseSource bool) (*Result, error) {
	cfg.used.Store(true)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if len(sourceTokens) == 0 {
		return nil, ErrEmptySource
	}
	if maxOutputSeqLen < 0 {
		return nil, errors.Wrapf(ErrInvalidConfig, "maxOutputSeqLen must be >= 0, got %d", maxOutputSeqLen)
	}
	start := time.Now()
	sourceLength := len(sourceTokens)

	// Init: encoder invocation.
	inputs, err := encoderInputs(sourceTokens, reverseSource)
	if err != nil {
		return nil, err
	}
	encoderOutputs, err := cfg.Encoder.Run(ctx, inputs)
	inputs.Finalize()
	if err != nil {
		return nil, &InvocationError{Module: cfg.Encoder.Name(), Timestep: -1, Err: err}
	}
	if encoderOutputs == nil {
		return nil, &InvocationError{Module: cfg.Encoder.Name(), Timestep: -1, Err: errors.New("no outputs returned")}
	}
	defer func() { encoderOutputs.Finalize() }()
	routes, err := binding.RouteEncoderOutputs(encoderOutputs)
	if err != nil {
		return nil, err
	}
	stepInputs, err := initialStepInputs(routes, encoderOutputs, cfg.BeamSize, cfg.EosTokenId)
	if err != nil {
		return nil, err
	}
	defer func() { stepInputs.Finalize() }()

	// Decoding(t): one decoder-step invocation per timestep.
	hist := newHistory(cfg.BeamSize, sourceLength, maxOutputSeqLen)
	for timestep := range maxOutputSeqLen {
		stepOutputs, err := cfg.Step.Run(ctx, stepInputs)
		if err != nil {
			return nil, &InvocationError{Module: cfg.Step.Name(), Timestep: timestep, Err: err}
		}
		if stepOutputs == nil {
			return nil, &InvocationError{Module: cfg.Step.Name(), Timestep: timestep, Err: errors.New("no outputs returned")}
		}
		nextInputs, err := cfg.afterStep(timestep, routes, &encoderOutputs, stepInputs, stepOutputs, hist)
		stepOutputs.Finalize()
		if err != nil {
			return nil, err
		}
		stepInputs.Finalize()
		stepInputs = nextInputs
	}

	// Done.
	if klog.V(1).Enabled() {
		klog.Infof("beam search: source length %d, beam size %d, %d steps in %s (%s)",
			sourceLength, cfg.BeamSize, maxOutputSeqLen, time.Since(start),
			humanize.SIWithDigits(float64(maxOutputSeqLen*cfg.BeamSize)/max(time.Since(start).Seconds(), 1e-9), 1, "hyp/s"))
	}
	return hist.finish(maxOutputSeqLen), nil
}

// afterStep accumulates the outputs of the decoder step invoked at timestep, and builds the inputs of the
// next invocation. At the transition into timestep 1 it first replaces *encoderOutputs by its broadcast version.
func (cfg *Decoder) afterStep(timestep int, routes []binding.Route, encoderOutputs **binding.Binding,
	stepInputs, stepOutputs *binding.Binding, hist *history) (*binding.Binding, error) {
	if err := hist.append(timestep, stepOutputs); err != nil {
		return nil, err
	}
	if klog.V(2).Enabled() {
		klog.Infof("decoder step %d: inputs %s, outputs %s", timestep, stepInputs, stepOutputs)
	}
	if cfg.observer != nil {
		cfg.observer(timestep, stepInputs, stepOutputs)
	}
	if timestep == 0 {
		if klog.V(1).Enabled() {
			logIgnoredStepOutputs(stepOutputs)
		}
		broadcast, err := broadcastEncoderOutputs(*encoderOutputs, cfg.BeamSize)
		if err != nil {
			return nil, err
		}
		(*encoderOutputs).Finalize()
		*encoderOutputs = broadcast
	}
	return nextStepInputs(routes, *encoderOutputs, stepOutputs, timestep+1)
}

// logIgnoredStepOutputs logs the step outputs that are neither required nor state outputs.
func logIgnoredStepOutputs(stepOutputs *binding.Binding) {
	for _, name := range stepOutputs.Names() {
		switch name {
		case binding.BestTokensIndices, binding.BestScores, binding.PrevHyposIndices, binding.AttentionWeightsAverage:
			continue
		}
		if binding.Classify(name).Kind != binding.KindStateOutput {
			klog.Infof("decoder step output %q is not used", name)
		}
	}
}
