// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package refmodel implements a small reference translation model as a pair of decode.Module:
// an embedding encoder and an attention decoder step, in pure Go.
//
// It honors the named tensor protocol of the exported translation models (see package binding),
// including the beam search inside the decoder step, so it can be used to run the full pipeline
// without an inference runtime. Its weights are random (deterministic given a seed): translations
// are meaningless, but reproducible.
//
// Models are saved and loaded with gob (see tensors.GobSerialize).
package refmodel

import (
	"encoding/gob"
	"math"
	"math/rand/v2"
	"os"

	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/florischabert/translate/pkg/core/tensors"
	"github.com/florischabert/translate/pkg/ml/decode"
	"github.com/florischabert/translate/pkg/ml/vocab"
	"github.com/florischabert/translate/pkg/support/fsutil"
)

// Config of the model architecture.
type Config struct {
	SourceVocabSize int
	TargetVocabSize int
	HiddenSize      int

	// NumStates is the number of recurrent state tensors (initial_state_<N> / state_output_<N>). At least 1.
	NumStates int

	// VocabReduction makes the encoder output possible_translation_tokens, restricting the decoder
	// step to the target ids in ReducedVocab (all target ids if empty).
	VocabReduction bool
	ReducedVocab   []int
}

// Validate the configuration.
func (c *Config) Validate() error {
	if c.SourceVocabSize < 1 || c.TargetVocabSize < 1 || c.HiddenSize < 1 {
		return errors.Errorf("refmodel: vocabulary and hidden sizes must be >= 1, got source=%d, target=%d, hidden=%d",
			c.SourceVocabSize, c.TargetVocabSize, c.HiddenSize)
	}
	if c.TargetVocabSize <= vocab.EOS {
		return errors.Errorf("refmodel: target vocabulary size must include the reserved ids, got %d", c.TargetVocabSize)
	}
	if c.NumStates < 1 {
		return errors.Errorf("refmodel: NumStates must be >= 1, got %d", c.NumStates)
	}
	for _, id := range c.ReducedVocab {
		if id < 0 || id >= c.TargetVocabSize {
			return errors.Errorf("refmodel: reduced vocabulary id %d out of range [0, %d)", id, c.TargetVocabSize)
		}
	}
	return nil
}

// Model holds the configuration and the weights. It is immutable and its modules can be used concurrently.
type Model struct {
	Config

	// SourceEmbedding is shaped [SourceVocabSize, HiddenSize].
	SourceEmbedding *tensors.Tensor

	// TargetEmbedding is shaped [TargetVocabSize, HiddenSize].
	TargetEmbedding *tensors.Tensor

	// OutputProjection is shaped [HiddenSize, TargetVocabSize].
	OutputProjection *tensors.Tensor
}

// New creates a model with random weights drawn from the given seed.
func New(config Config, seed uint64) (*Model, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	scale := 1 / math.Sqrt(float64(config.HiddenSize))
	random := func(dims ...int) *tensors.Tensor {
		flat := make([]float32, dims[0]*dims[1])
		for ii := range flat {
			flat[ii] = float32(rng.NormFloat64() * scale)
		}
		return tensors.FromFlatDataAndDimensions(flat, dims...)
	}
	m := &Model{
		Config:           config,
		SourceEmbedding:  random(config.SourceVocabSize, config.HiddenSize),
		TargetEmbedding:  random(config.TargetVocabSize, config.HiddenSize),
		OutputProjection: random(config.HiddenSize, config.TargetVocabSize),
	}
	return m, nil
}

// Encoder returns the encoder module.
func (m *Model) Encoder() decode.Module {
	return decode.NewModule("refmodel_encoder", m.encode)
}

// Step returns the decoder-step module.
func (m *Model) Step() decode.Module {
	return decode.NewModule("refmodel_decoder_step", m.step)
}

// Finalize releases the model weights.
func (m *Model) Finalize() {
	m.SourceEmbedding.FinalizeAll()
	m.TargetEmbedding.FinalizeAll()
	m.OutputProjection.FinalizeAll()
}

// Save the model to filePath, creating the directory if needed.
func (m *Model) Save(filePath string) error {
	f, err := fsutil.CreateFile(filePath)
	if err != nil {
		return err
	}
	enc := gob.NewEncoder(f)
	err = enc.Encode(m.Config)
	if err != nil {
		err = errors.Wrapf(err, "failed to write model config")
	}
	for _, t := range []*tensors.Tensor{m.SourceEmbedding, m.TargetEmbedding, m.OutputProjection} {
		if err != nil {
			break
		}
		err = t.GobSerialize(enc)
	}
	if err != nil {
		_ = f.Close()
		return errors.WithMessagef(err, "saving model to %q", filePath)
	}
	if err = f.Close(); err != nil {
		return errors.Wrapf(err, "close file %q, where the model was saved", filePath)
	}
	klog.V(1).Infof("saved model to %q", filePath)
	return nil
}

// Load a model saved with Model.Save. A leading "~" in filePath is expanded to the home directory.
func Load(filePath string) (*Model, error) {
	filePath, err := fsutil.ExpandHome(filePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening %q to load model", filePath)
	}
	defer func() { _ = f.Close() }()
	dec := gob.NewDecoder(f)
	m := &Model{}
	if err = dec.Decode(&m.Config); err != nil {
		return nil, errors.Wrapf(err, "loading model config from %q", filePath)
	}
	if err = m.Config.Validate(); err != nil {
		return nil, errors.WithMessagef(err, "model %q", filePath)
	}
	params := []struct {
		t    **tensors.Tensor
		dims []int
	}{
		{&m.SourceEmbedding, []int{m.SourceVocabSize, m.HiddenSize}},
		{&m.TargetEmbedding, []int{m.TargetVocabSize, m.HiddenSize}},
		{&m.OutputProjection, []int{m.HiddenSize, m.TargetVocabSize}},
	}
	for _, w := range params {
		*w.t, err = tensors.GobDeserialize(dec)
		if err == nil {
			err = (*w.t).Shape().Check(dtypes.Float32, w.dims...)
		}
		if err != nil {
			m.Finalize()
			return nil, errors.WithMessagef(err, "loading model weights from %q", filePath)
		}
	}
	return m, nil
}

// weights returns the flat data of a weight tensor. It must not be modified.
func weights(t *tensors.Tensor) (flat []float32) {
	tensors.ConstFlatData(t, func(data []float32) { flat = data })
	return
}
