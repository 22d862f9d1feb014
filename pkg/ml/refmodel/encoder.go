// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package refmodel

import (
	"context"
	"math"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/florischabert/translate/pkg/core/tensors"
	"github.com/florischabert/translate/pkg/ml/binding"
	"github.com/florischabert/translate/pkg/ml/vocab"
	"github.com/florischabert/translate/pkg/support/xslices"
)

// encode implements the encoder module:
//
//   - encoder_output_0 [sourceLength, 1, hiddenSize]: the source embeddings plus a positional signal.
//   - initial_state_0 [1, hiddenSize]: the mean of encoder_output_0 over the source positions.
//   - initial_state_<N> [1, hiddenSize] for N >= 1: zeros.
//   - possible_translation_tokens [numTokens] (Int64), if VocabReduction is set.
func (m *Model) encode(_ context.Context, inputs *binding.Binding) (outputs *binding.Binding, err error) {
	err = exceptions.TryCatch[error](func() {
		outputs = m.mustEncode(inputs)
	})
	if err != nil {
		return nil, errors.WithMessage(err, "refmodel encoder")
	}
	return outputs, nil
}

func (m *Model) mustEncode(inputs *binding.Binding) *binding.Binding {
	tokensT := inputs.MustGet(binding.EncoderInputs)
	tokensT.Shape().Assert(dtypes.Int64, -1, 1)
	tokens, err := tensors.ToInts(tokensT)
	if err != nil {
		panic(err)
	}
	sourceLength := len(tokens)
	if lengths := tensors.CopyFlatData[int32](inputs.MustGet(binding.EncoderLengths)); len(lengths) != 1 || int(lengths[0]) != sourceLength {
		exceptions.Panicf("encoder_lengths %v doesn't match encoder_inputs length %d", lengths, sourceLength)
	}

	hiddenSize := m.HiddenSize
	embeddings := weights(m.SourceEmbedding)
	hidden := make([]float32, sourceLength*hiddenSize)
	mean := make([]float32, hiddenSize)
	for l, id := range tokens {
		if id < 0 || id >= m.SourceVocabSize {
			id = vocab.UNK % m.SourceVocabSize
		}
		row := hidden[l*hiddenSize : (l+1)*hiddenSize]
		for h := range row {
			row[h] = embeddings[id*hiddenSize+h] + 0.1*float32(math.Sin(float64(l+1)/float64(h+1)))
			mean[h] += row[h] / float32(sourceLength)
		}
	}

	bb := binding.NewBuilder().
		Set(binding.EncoderOutputName(0), tensors.FromFlatDataAndDimensions(hidden, sourceLength, 1, hiddenSize)).
		Set(binding.InitialStateName(0), tensors.FromFlatDataAndDimensions(mean, 1, hiddenSize))
	for n := 1; n < m.NumStates; n++ {
		bb.Set(binding.InitialStateName(n), tensors.FromScalarAndDimensions(float32(0), 1, hiddenSize))
	}
	if m.VocabReduction {
		possible := xslices.Convert[int64](m.ReducedVocab)
		if len(possible) == 0 {
			possible = xslices.Iota(int64(0), m.TargetVocabSize)
		}
		bb.Set(binding.PossibleTranslationTokens, tensors.FromFlatDataAndDimensions(possible, len(possible)))
	}
	outputs, err := bb.Build()
	if err != nil {
		panic(err)
	}
	return outputs
}
