// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package hypothesis extracts finished hypotheses from the beam history of a decode.Result.
//
// A hypothesis ends either at an EOS token, or at the last timestep of the search. Its tokens are
// reconstructed by following the backpointers from its final (timestep, beam slot), and it is
// ranked by its cumulative score normalized by length:
//
//	normalizedScore = score / (length ^ lengthPenalty)
//
// Where length counts the tokens including the final EOS, if any. A lengthPenalty of 0 (the
// default) ranks on the raw scores, larger values favor longer hypotheses.
//
// Example:
//
//	best, err := hypothesis.New(vocab.EOS).WithLengthPenalty(0.6).Best(result)
package hypothesis

import (
	"fmt"
	"math"
	"slices"

	"github.com/pkg/errors"

	"github.com/florischabert/translate/pkg/ml/decode"
)

// ErrNoHypothesis is returned when no hypothesis satisfies the extraction constraints.
var ErrNoHypothesis = errors.New("no finished hypothesis")

// Hypothesis is one reconstructed output sequence.
type Hypothesis struct {
	// Tokens of the hypothesis, without the final EOS.
	Tokens []int

	// Attention[i] holds the attention weights over the source positions when Tokens[i] was chosen.
	Attention [][]float32

	// Score is the cumulative log-probability reported by the decoder step.
	Score float32

	// NormalizedScore is the Score after the length penalty, used for ranking.
	NormalizedScore float64

	// Timestep and BeamSlot where the hypothesis ends in the beam history.
	Timestep, BeamSlot int

	// EndsWithEOS is false for hypotheses cut at the last timestep of the search.
	EndsWithEOS bool
}

// String implements fmt.Stringer.
func (h Hypothesis) String() string {
	return fmt.Sprintf("hypothesis(t=%d, slot=%d, score=%.4f, normalized=%.4f): %v",
		h.Timestep, h.BeamSlot, h.Score, h.NormalizedScore, h.Tokens)
}

// Extractor configures how hypotheses are extracted from a decode.Result.
type Extractor struct {
	eosTokenId    int
	lengthPenalty float64
	stopAtEOS     bool
	minLength     int
	numReturnSeqs int
}

// New creates an Extractor with default settings:
//
//   - lengthPenalty: 0 (rank on raw scores).
//   - stopAtEOS: true (paths with a non-final EOS are not considered).
//   - minLength: 0.
//   - numReturnSeqs: 1.
func New(eosTokenId int) *Extractor {
	return &Extractor{
		eosTokenId:    eosTokenId,
		stopAtEOS:     true,
		numReturnSeqs: 1,
	}
}

// WithLengthPenalty sets the exponent of the length normalization. Default is 0.
func (e *Extractor) WithLengthPenalty(penalty float64) *Extractor {
	e.lengthPenalty = penalty
	return e
}

// WithStopAtEOS controls whether hypotheses whose path contains an EOS token before its end are
// discarded. Default is true.
func (e *Extractor) WithStopAtEOS(stop bool) *Extractor {
	e.stopAtEOS = stop
	return e
}

// WithMinLength discards hypotheses with less than minLength tokens (not counting the final EOS).
func (e *Extractor) WithMinLength(minLength int) *Extractor {
	e.minLength = minLength
	return e
}

// WithNumReturnSequences sets how many hypotheses Extract returns at most. Default is 1.
func (e *Extractor) WithNumReturnSequences(num int) *Extractor {
	e.numReturnSeqs = num
	return e
}

// NormalizeScore applies the length penalty to a cumulative score of a hypothesis of the given length.
func (e *Extractor) NormalizeScore(score float32, length int) float64 {
	if e.lengthPenalty == 0 || length <= 0 {
		return float64(score)
	}
	return float64(score) / math.Pow(float64(length), e.lengthPenalty)
}

// Extract returns the best hypotheses of the result, sorted by decreasing normalized score (ties
// are broken by earlier timestep, then lower beam slot). It returns at most the configured number
// of sequences, and ErrNoHypothesis if there are none.
func (e *Extractor) Extract(result *decode.Result) ([]Hypothesis, error) {
	if e.numReturnSeqs < 1 {
		return nil, errors.Errorf("number of sequences to return must be >= 1, got %d", e.numReturnSeqs)
	}
	if result == nil || result.MaxTimestep < 1 {
		return nil, ErrNoHypothesis
	}
	var candidates []Hypothesis
	for timestep := 1; timestep <= result.MaxTimestep; timestep++ {
		for slot, token := range result.Tokens[timestep] {
			isEOS := token == e.eosTokenId
			if !isEOS && timestep < result.MaxTimestep {
				continue
			}
			path, err := Backtrack(result, timestep, slot)
			if err != nil {
				return nil, err
			}
			if e.stopAtEOS && slices.Contains(path.Tokens[:len(path.Tokens)-1], e.eosTokenId) {
				continue
			}
			h := Hypothesis{
				Tokens:      path.Tokens,
				Attention:   path.Attention,
				Score:       result.Scores[timestep][slot],
				Timestep:    timestep,
				BeamSlot:    slot,
				EndsWithEOS: isEOS,
			}
			h.NormalizedScore = e.NormalizeScore(h.Score, len(h.Tokens))
			if isEOS {
				h.Tokens = h.Tokens[:len(h.Tokens)-1]
				h.Attention = h.Attention[:len(h.Attention)-1]
			}
			if len(h.Tokens) < e.minLength {
				continue
			}
			candidates = append(candidates, h)
		}
	}
	if len(candidates) == 0 {
		return nil, ErrNoHypothesis
	}
	slices.SortStableFunc(candidates, func(a, b Hypothesis) int {
		switch {
		case a.NormalizedScore > b.NormalizedScore:
			return -1
		case a.NormalizedScore < b.NormalizedScore:
			return 1
		}
		return 0
	})
	return candidates[:min(len(candidates), e.numReturnSeqs)], nil
}

// Best returns the best hypothesis of the result.
func (e *Extractor) Best(result *decode.Result) (Hypothesis, error) {
	hyps, err := e.Extract(result)
	if err != nil {
		return Hypothesis{}, err
	}
	return hyps[0], nil
}

// Path is the sequence of tokens chosen from timestep 1 up to a given timestep and beam slot.
type Path struct {
	Tokens    []int
	Slots     []int
	Attention [][]float32
}

// Backtrack reconstructs the path ending at the given timestep (>= 1) and beam slot, following the backpointers.
func Backtrack(result *decode.Result, timestep, slot int) (Path, error) {
	if timestep < 1 || timestep > result.MaxTimestep || timestep >= len(result.Tokens) {
		return Path{}, errors.Errorf("timestep %d out of range [1, %d]", timestep, result.MaxTimestep)
	}
	p := Path{
		Tokens:    make([]int, timestep),
		Slots:     make([]int, timestep),
		Attention: make([][]float32, timestep),
	}
	for t := timestep; t >= 1; t-- {
		if slot < 0 || slot >= len(result.Tokens[t]) {
			return Path{}, errors.Errorf("beam slot %d out of range [0, %d) at timestep %d (path ending at timestep %d)",
				slot, len(result.Tokens[t]), t, timestep)
		}
		p.Tokens[t-1] = result.Tokens[t][slot]
		p.Slots[t-1] = slot
		p.Attention[t-1] = result.Attention[t][slot]
		slot = result.Backpointers[t][slot]
	}
	return p, nil
}
