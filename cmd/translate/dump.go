// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"io"

	"github.com/goccy/go-json"
	"github.com/pkg/errors"

	"github.com/florischabert/translate/pkg/ml/translator"
)

// beamsRecord is the JSON representation of the beam search of one line.
type beamsRecord struct {
	Line            int     `json:"line"`
	Source          string  `json:"source"`
	SourceTokens    []int   `json:"source_tokens"`
	Translation     string  `json:"translation"`
	Tokens          []int   `json:"tokens"`
	Score           float32 `json:"score"`
	NormalizedScore float64 `json:"normalized_score"`

	MaxTimestep  int           `json:"max_timestep"`
	BeamSize     int           `json:"beam_size"`
	SourceLength int           `json:"source_length"`
	BeamTokens   [][]int       `json:"beam_tokens"`
	BeamScores   [][]float32   `json:"beam_scores"`
	Backpointers [][]int       `json:"backpointers"`
	Attention    [][][]float32 `json:"attention"`
}

// beamsDumper writes one beamsRecord per line (JSON lines).
type beamsDumper struct {
	enc     *json.Encoder
	numLine int
}

func newBeamsDumper(w io.Writer) *beamsDumper {
	return &beamsDumper{enc: json.NewEncoder(w)}
}

// Dump the beams of t. Lines without tokens are dumped without beams.
func (d *beamsDumper) Dump(t *translator.Translation) error {
	record := beamsRecord{
		Line:            d.numLine,
		Source:          t.Source,
		SourceTokens:    t.SourceTokens,
		Translation:     t.Text,
		Tokens:          t.Tokens,
		Score:           t.Score,
		NormalizedScore: t.NormalizedScore,
	}
	d.numLine++
	if r := t.Beams; r != nil {
		record.MaxTimestep = r.MaxTimestep
		record.BeamSize = r.BeamSize
		record.SourceLength = r.SourceLength
		record.BeamTokens = r.Tokens
		record.BeamScores = r.Scores
		record.Backpointers = r.Backpointers
		record.Attention = r.Attention
	}
	return errors.Wrapf(d.enc.Encode(&record), "dumping beams of line #%d", record.Line+1)
}
