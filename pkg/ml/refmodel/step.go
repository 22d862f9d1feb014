// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package refmodel

import (
	"cmp"
	"context"
	"math"
	"slices"

	"github.com/gomlx/exceptions"
	"github.com/gomlx/gopjrt/dtypes"
	"github.com/pkg/errors"

	"github.com/florischabert/translate/pkg/core/tensors"
	"github.com/florischabert/translate/pkg/ml/binding"
	"github.com/florischabert/translate/pkg/ml/vocab"
	"github.com/florischabert/translate/pkg/support/xslices"
)

// candidate is one possible extension of a beam: beam slot k followed by the token at candidate index c.
type candidate struct {
	score float32
	k, c  int
}

// stepInputs are the decoded inputs of one decoder step.
type stepInputs struct {
	timestep     int
	beamSize     int
	sourceLength int
	prevTokens   []int
	prevScores   []float32

	// fixed is shaped [sourceLength, fixedBeams, hiddenSize], where fixedBeams is 1 or beamSize.
	fixed      []float32
	fixedBeams int

	// states[n] is shaped [stateBeams[n], hiddenSize], where stateBeams[n] is 1 or beamSize.
	states     [][]float32
	stateBeams []int

	// possibleTokens are the target ids the candidates index into.
	possibleTokens []int
}

// step implements the decoder-step module. For every beam slot k it attends over the source with the
// query state_input_0[k] + embedding(prev_tokens[k]), and scores every possible target token. The
// beamSize best extensions (cumulative scores) over all beams are returned:
//
//   - best_tokens_indices [beamSize] (Int64): the chosen target ids.
//   - best_scores [beamSize] (Float32): cumulative log-probabilities.
//   - prev_hypos_indices [beamSize] (Int64): the beam slot each chosen token extends.
//   - attention_weights_average [beamSize, sourceLength] (Float32): attention of the extended beam.
//   - state_output_0 [beamSize, hiddenSize]: the new hidden state, and state_output_<N> for N >= 1 the
//     state_input_<N> of the extended beam.
//
// At timestep 0 all beams are identical, and only beam slot 0 is extended.
func (m *Model) step(_ context.Context, inputs *binding.Binding) (outputs *binding.Binding, err error) {
	err = exceptions.TryCatch[error](func() {
		outputs = m.mustStep(m.mustReadStepInputs(inputs))
	})
	if err != nil {
		return nil, errors.WithMessage(err, "refmodel decoder step")
	}
	return outputs, nil
}

// beamsOf returns the number of rows along axis of a tensor that must be either 1 or beamSize.
func beamsOf(name string, t *tensors.Tensor, axis, beamSize int) int {
	beams := t.Shape().Dim(axis)
	if beams != 1 && beams != beamSize {
		exceptions.Panicf("input %q with shape %s: axis %d must be 1 or the beam size %d", name, t.Shape(), axis, beamSize)
	}
	return beams
}

func (m *Model) mustReadStepInputs(inputs *binding.Binding) *stepInputs {
	var err error
	in := &stepInputs{timestep: int(tensors.ToScalar[int32](inputs.MustGet(binding.Timestep)))}
	if in.prevTokens, err = tensors.ToInts(inputs.MustGet(binding.PrevTokens)); err != nil {
		panic(err)
	}
	if in.prevScores, err = tensors.ToFloat32s(inputs.MustGet(binding.PrevScores)); err != nil {
		panic(err)
	}
	in.beamSize = len(in.prevTokens)
	if in.beamSize == 0 || len(in.prevScores) != in.beamSize {
		exceptions.Panicf("prev_tokens (%d) and prev_scores (%d) must have the same non-zero length",
			len(in.prevTokens), len(in.prevScores))
	}

	name := binding.FixedInputName(0)
	fixed := inputs.MustGet(name)
	fixed.Shape().Assert(dtypes.Float32, -1, -1, m.HiddenSize)
	in.sourceLength = fixed.Shape().Dim(0)
	in.fixedBeams = beamsOf(name, fixed, 1, in.beamSize)
	in.fixed = weights(fixed)

	in.states = make([][]float32, m.NumStates)
	in.stateBeams = make([]int, m.NumStates)
	for n := range m.NumStates {
		name = binding.StateInputName(n)
		state := inputs.MustGet(name)
		state.Shape().Assert(dtypes.Float32, -1, m.HiddenSize)
		in.stateBeams[n] = beamsOf(name, state, 0, in.beamSize)
		in.states[n] = weights(state)
	}

	if possible, found := inputs.Get(binding.PossibleTranslationTokens); found {
		if in.possibleTokens, err = tensors.ToInts(possible); err != nil {
			panic(err)
		}
	} else {
		in.possibleTokens = xslices.Iota(0, m.TargetVocabSize)
	}
	if len(in.possibleTokens) == 0 || in.sourceLength == 0 {
		exceptions.Panicf("empty possible_translation_tokens or source (source length %d)", in.sourceLength)
	}
	return in
}

// row returns the row of a [beams, hiddenSize] flat matrix for beam slot k.
func row(flat []float32, beams, k, hiddenSize int) []float32 {
	if beams == 1 {
		k = 0
	}
	return flat[k*hiddenSize : (k+1)*hiddenSize]
}

func (m *Model) mustStep(in *stepInputs) *binding.Binding {
	hiddenSize, sourceLength, beamSize := m.HiddenSize, in.sourceLength, in.beamSize
	targetEmbedding := weights(m.TargetEmbedding)
	projection := weights(m.OutputProjection)
	numActive := beamSize
	if in.timestep == 0 {
		numActive = 1
	}

	attention := make([][]float32, numActive)
	hidden := make([][]float32, numActive)
	var candidates []candidate
	query := make([]float64, hiddenSize)
	scratch := make([]float64, max(sourceLength, len(in.possibleTokens)))
	for k := range numActive {
		// Query: state + embedding of the previous token.
		prevToken := in.prevTokens[k]
		if prevToken < 0 || prevToken >= m.TargetVocabSize {
			exceptions.Panicf("prev_tokens[%d]=%d out of range for target vocabulary size %d", k, prevToken, m.TargetVocabSize)
		}
		state := row(in.states[0], in.stateBeams[0], k, hiddenSize)
		for h := range query {
			query[h] = float64(state[h] + targetEmbedding[prevToken*hiddenSize+h])
		}

		// Scaled dot-product attention over the source positions.
		logits := scratch[:sourceLength]
		for l := range sourceLength {
			source := row(in.fixed[l*in.fixedBeams*hiddenSize:(l+1)*in.fixedBeams*hiddenSize], in.fixedBeams, k, hiddenSize)
			var dot float64
			for h, q := range query {
				dot += q * float64(source[h])
			}
			logits[l] = dot / math.Sqrt(float64(hiddenSize))
		}
		weightsK := softmax(logits)
		attention[k] = xslices.Convert[float32](weightsK)

		// Hidden state: tanh(query + context).
		hidden[k] = make([]float32, hiddenSize)
		for h := range hiddenSize {
			acc := query[h]
			for l, w := range weightsK {
				acc += w * float64(in.fixed[(l*in.fixedBeams+min(k, in.fixedBeams-1))*hiddenSize+h])
			}
			hidden[k][h] = float32(math.Tanh(acc))
		}

		// Log-probabilities over the possible tokens.
		logits = scratch[:len(in.possibleTokens)]
		for c, id := range in.possibleTokens {
			if id < 0 || id >= m.TargetVocabSize {
				exceptions.Panicf("possible_translation_tokens[%d]=%d out of range for target vocabulary size %d", c, id, m.TargetVocabSize)
			}
			var dot float64
			for h, x := range hidden[k] {
				dot += float64(x) * float64(projection[h*m.TargetVocabSize+id])
			}
			logits[c] = dot
		}
		lse := logSumExp(logits)
		for c, id := range in.possibleTokens {
			if id == vocab.PAD || id == vocab.GO {
				continue
			}
			candidates = append(candidates, candidate{
				score: in.prevScores[k] + float32(logits[c]-lse),
				k:     k,
				c:     c,
			})
		}
	}
	if len(candidates) < beamSize {
		exceptions.Panicf("only %d candidate tokens for beam size %d", len(candidates), beamSize)
	}
	slices.SortStableFunc(candidates, func(a, b candidate) int { return cmp.Compare(b.score, a.score) })
	candidates = candidates[:beamSize]

	tokens := make([]int64, beamSize)
	scores := make([]float32, beamSize)
	backpointers := make([]int64, beamSize)
	attentionOut := make([]float32, 0, beamSize*sourceLength)
	statesOut := make([][]float32, m.NumStates)
	for n := range statesOut {
		statesOut[n] = make([]float32, 0, beamSize*hiddenSize)
	}
	for i, cand := range candidates {
		tokens[i] = int64(in.possibleTokens[cand.c])
		scores[i] = cand.score
		backpointers[i] = int64(cand.k)
		attentionOut = append(attentionOut, attention[cand.k]...)
		statesOut[0] = append(statesOut[0], hidden[cand.k]...)
		for n := 1; n < m.NumStates; n++ {
			statesOut[n] = append(statesOut[n], row(in.states[n], in.stateBeams[n], cand.k, hiddenSize)...)
		}
	}

	bb := binding.NewBuilder().
		Set(binding.BestTokensIndices, tensors.FromFlatDataAndDimensions(tokens, beamSize)).
		Set(binding.BestScores, tensors.FromFlatDataAndDimensions(scores, beamSize)).
		Set(binding.PrevHyposIndices, tensors.FromFlatDataAndDimensions(backpointers, beamSize)).
		Set(binding.AttentionWeightsAverage, tensors.FromFlatDataAndDimensions(attentionOut, beamSize, sourceLength))
	for n, state := range statesOut {
		bb.Set(binding.StateOutputName(n), tensors.FromFlatDataAndDimensions(state, beamSize, hiddenSize))
	}
	outputs, err := bb.Build()
	if err != nil {
		panic(err)
	}
	return outputs
}

func logSumExp(logits []float64) float64 {
	maxLogit := slices.Max(logits)
	var sum float64
	for _, x := range logits {
		sum += math.Exp(x - maxLogit)
	}
	return maxLogit + math.Log(sum)
}

// softmax returns a new slice with the softmax of logits.
func softmax(logits []float64) []float64 {
	lse := logSumExp(logits)
	return xslices.Map(logits, func(x float64) float64 { return math.Exp(x - lse) })
}
