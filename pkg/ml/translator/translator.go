// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package translator translates sentences end-to-end: numberization with the source vocabulary,
// beam search decoding (package decode), hypothesis extraction (package hypothesis) and
// denumberization with the target vocabulary.
//
// Example:
//
//	tr := translator.New(sourceVocab, targetVocab, model.Encoder(), model.Step()).
//		WithBeamSize(6).
//		WithMaxOutputSeqLen(1.1, 5)
//	translation, err := tr.Translate(ctx, "sentence to translate")
package translator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/florischabert/translate/internal/workerspool"
	"github.com/florischabert/translate/pkg/ml/decode"
	"github.com/florischabert/translate/pkg/ml/decode/hypothesis"
	"github.com/florischabert/translate/pkg/ml/vocab"
)

// Translator holds the vocabularies, the modules and the decoding parameters.
//
// It can be used concurrently, as long as the modules can. The configuration should not be changed
// after the first translation.
type Translator struct {
	Source, Target *vocab.Dictionary

	// MaxOutputSeqLenMult and MaxOutputSeqLenBias determine the number of decoding steps:
	// int(numSourceTokens * MaxOutputSeqLenMult + MaxOutputSeqLenBias), at least 1.
	MaxOutputSeqLenMult float64
	MaxOutputSeqLenBias int

	// ReverseSource reverses the source tokens before encoding. It must match the training settings.
	ReverseSource bool

	// AppendEOSToSource appends the EOS token to the source tokens. It must match the training settings.
	AppendEOSToSource bool

	// NumHypotheses is the number of hypotheses (n-best) kept in a Translation.
	NumHypotheses int

	decoder   *decode.Decoder
	extractor *hypothesis.Extractor
	stopAtEOS bool
	penalty   float64
}

// New creates a Translator with default parameters: beam size 4, maximum output length
// 1.1 * sourceLength + 5, reversed source, no EOS appended to the source, EOS stopping and no length penalty.
func New(source, target *vocab.Dictionary, encoder, step decode.Module) *Translator {
	return &Translator{
		Source:              source,
		Target:              target,
		MaxOutputSeqLenMult: 1.1,
		MaxOutputSeqLenBias: 5,
		ReverseSource:       true,
		NumHypotheses:       1,
		decoder:             decode.New(encoder, step).WithEOS(vocab.EOS),
		stopAtEOS:           true,
	}
}

// WithBeamSize sets the beam size.
func (tr *Translator) WithBeamSize(beamSize int) *Translator {
	tr.decoder.WithBeamSize(beamSize)
	return tr
}

// WithMaxOutputSeqLen sets how the maximum number of output tokens is derived from the number of source tokens.
func (tr *Translator) WithMaxOutputSeqLen(mult float64, bias int) *Translator {
	tr.MaxOutputSeqLenMult = mult
	tr.MaxOutputSeqLenBias = bias
	return tr
}

// WithReverseSource sets whether source tokens are reversed before encoding.
func (tr *Translator) WithReverseSource(reverse bool) *Translator {
	tr.ReverseSource = reverse
	return tr
}

// WithAppendEOSToSource sets whether the EOS token is appended to the source tokens.
func (tr *Translator) WithAppendEOSToSource(appendEOS bool) *Translator {
	tr.AppendEOSToSource = appendEOS
	return tr
}

// WithStopAtEOS sets whether hypotheses containing a non-final EOS are discarded.
func (tr *Translator) WithStopAtEOS(stop bool) *Translator {
	tr.stopAtEOS = stop
	return tr
}

// WithLengthPenalty sets the length penalty: hypotheses scores are divided by (numTokens ^ penalty).
func (tr *Translator) WithLengthPenalty(penalty float64) *Translator {
	tr.penalty = penalty
	return tr
}

// WithNumHypotheses sets how many hypotheses are kept in each Translation.
func (tr *Translator) WithNumHypotheses(num int) *Translator {
	tr.NumHypotheses = num
	return tr
}

// WithObserver sets a function called after every decoder step.
func (tr *Translator) WithObserver(observer decode.StepObserver) *Translator {
	tr.decoder.WithObserver(observer)
	return tr
}

// BeamSize returns the configured beam size.
func (tr *Translator) BeamSize() int { return tr.decoder.BeamSize }

// MaxOutputSeqLen returns the number of decoding steps for a source of numSourceTokens tokens.
func (tr *Translator) MaxOutputSeqLen(numSourceTokens int) int {
	return max(1, int(float64(numSourceTokens)*tr.MaxOutputSeqLenMult+float64(tr.MaxOutputSeqLenBias)))
}

// Translation is the result of translating one line.
type Translation struct {
	Source       string
	SourceTokens []int

	// Text is the denumberized best hypothesis. Empty if there was none.
	Text   string
	Tokens []int

	Score           float32
	NormalizedScore float64

	// Hypotheses are the n-best hypotheses, best first.
	Hypotheses []hypothesis.Hypothesis

	// Beams is the full beam history of the search. Nil for empty source lines.
	Beams *decode.Result

	Elapsed time.Duration
}

// String implements fmt.Stringer.
func (t *Translation) String() string {
	return fmt.Sprintf("%q -> %q (score %.4f)", t.Source, t.Text, t.NormalizedScore)
}

// Best returns the best hypothesis, or nil if there is none.
func (t *Translation) Best() *hypothesis.Hypothesis {
	if len(t.Hypotheses) == 0 {
		return nil
	}
	return &t.Hypotheses[0]
}

// Translate one line of text.
//
// Lines without tokens translate to an empty Translation. If no hypothesis satisfies the EOS
// constraint, the Translation has an empty text and no error is returned.
func (tr *Translator) Translate(ctx context.Context, line string) (*Translation, error) {
	if tr.Source == nil || tr.Target == nil {
		return nil, errors.New("translator: source and target vocabularies must be set")
	}
	start := time.Now()
	t := &Translation{Source: line, SourceTokens: tr.Source.Numberize(line)}
	if len(t.SourceTokens) == 0 {
		return t, nil
	}
	if tr.AppendEOSToSource {
		t.SourceTokens = append(t.SourceTokens, vocab.EOS)
	}
	maxOutputSeqLen := tr.MaxOutputSeqLen(len(t.SourceTokens))
	result, err := tr.decoder.Decode(ctx, t.SourceTokens, maxOutputSeqLen, tr.ReverseSource)
	if err != nil {
		return nil, errors.WithMessagef(err, "translating %q", line)
	}
	t.Beams = result

	hyps, err := tr.hypothesisExtractor().Extract(result)
	switch {
	case errors.Is(err, hypothesis.ErrNoHypothesis):
		klog.Warningf("no hypothesis for %q after %d steps", line, maxOutputSeqLen)
	case err != nil:
		return nil, errors.WithMessagef(err, "extracting hypotheses for %q", line)
	default:
		t.Hypotheses = hyps
		best := hyps[0]
		t.Tokens = best.Tokens
		t.Text = tr.Target.Denumberize(best.Tokens)
		t.Score = best.Score
		t.NormalizedScore = best.NormalizedScore
	}
	t.Elapsed = time.Since(start)
	if klog.V(1).Enabled() {
		klog.Infof("translated %s source tokens into %s tokens in %s", humanize.Comma(int64(len(t.SourceTokens))),
			humanize.Comma(int64(len(t.Tokens))), t.Elapsed)
	}
	return t, nil
}

// hypothesisExtractor returns the extractor configured with the current parameters.
func (tr *Translator) hypothesisExtractor() *hypothesis.Extractor {
	return hypothesis.New(vocab.EOS).
		WithStopAtEOS(tr.stopAtEOS).
		WithLengthPenalty(tr.penalty).
		WithNumReturnSequences(max(1, tr.NumHypotheses))
}

// TranslateAll translates the lines using up to parallelism goroutines (0 translates sequentially),
// and returns the translations in the same order. It stops at the first error.
//
// The optional done function is called after each line is translated.
func (tr *Translator) TranslateAll(ctx context.Context, lines []string, parallelism int, done func(*Translation)) ([]*Translation, error) {
	translations := make([]*Translation, len(lines))
	pool := workerspool.New().SetMaxParallelism(parallelism)
	var mu sync.Mutex
	var firstErr error
	for ii, line := range lines {
		mu.Lock()
		failed := firstErr != nil
		mu.Unlock()
		if failed {
			break
		}
		if err := ctx.Err(); err != nil {
			mu.Lock()
			firstErr = errors.Wrap(err, "translation interrupted")
			mu.Unlock()
			break
		}
		pool.WaitToStart(func() {
			t, err := tr.Translate(ctx, line)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if firstErr == nil {
					firstErr = errors.WithMessagef(err, "line #%d", ii+1)
				}
				return
			}
			translations[ii] = t
			if done != nil {
				done(t)
			}
		})
	}
	pool.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return translations, nil
}
