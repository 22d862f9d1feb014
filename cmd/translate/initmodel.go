// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"

	"github.com/florischabert/translate/pkg/ml/refmodel"
	"github.com/florischabert/translate/pkg/ml/vocab"
	"github.com/florischabert/translate/pkg/support/fsutil"
)

func initModelCmd() *cli.Command {
	var (
		sourceCorpus   string
		targetCorpus   string
		maxVocab       int
		hiddenSize     int
		numStates      int
		vocabReduction bool
		seed           int64
	)

	return &cli.Command{
		Name:  "init-model",
		Usage: "Create the vocabularies from parallel corpora, and a reference model with random weights",
		Flags: append(commonModelFlags(),
			&cli.StringFlag{
				Name:        "source-corpus",
				Usage:       "source side of the corpus, one sentence per line",
				Required:    true,
				Destination: &sourceCorpus,
			},
			&cli.StringFlag{
				Name:        "target-corpus",
				Usage:       "target side of the corpus, one sentence per line",
				Required:    true,
				Destination: &targetCorpus,
			},
			&cli.IntFlag{
				Name:        "max-vocab",
				Usage:       "maximum number of tokens in each vocabulary, most frequent first; 0 for no limit",
				Destination: &maxVocab,
			},
			&cli.IntFlag{
				Name:        "hidden-size",
				Usage:       "model hidden size",
				Value:       32,
				Destination: &hiddenSize,
			},
			&cli.IntFlag{
				Name:        "num-states",
				Usage:       "number of recurrent state tensors",
				Value:       1,
				Destination: &numStates,
			},
			&cli.BoolFlag{
				Name:        "vocab-reduction",
				Usage:       "make the encoder output the possible translation tokens",
				Destination: &vocabReduction,
			},
			&cli.Int64Flag{
				Name:        "seed",
				Usage:       "random seed of the weights",
				Value:       42,
				Destination: &seed,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			modelFile, sourceFile, targetFile, err := resolvedPaths()
			if err != nil {
				return err
			}
			source, err := buildVocab(sourceCorpus, maxVocab)
			if err != nil {
				return err
			}
			target, err := buildVocab(targetCorpus, maxVocab)
			if err != nil {
				return err
			}
			model, err := refmodel.New(refmodel.Config{
				SourceVocabSize: source.Len(),
				TargetVocabSize: target.Len(),
				HiddenSize:      hiddenSize,
				NumStates:       numStates,
				VocabReduction:  vocabReduction,
			}, uint64(seed))
			if err != nil {
				return err
			}
			defer model.Finalize()
			if err = source.Save(sourceFile); err != nil {
				return err
			}
			if err = target.Save(targetFile); err != nil {
				return err
			}
			if err = model.Save(modelFile); err != nil {
				return err
			}
			klog.Infof("created model %q with %s source and %s target tokens", modelFile,
				humanize.Comma(int64(source.Len())), humanize.Comma(int64(target.Len())))
			return nil
		},
	}
}

func buildVocab(corpusPath string, maxTokens int) (*vocab.Dictionary, error) {
	corpusPath, err := fsutil.ExpandHome(corpusPath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(corpusPath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening corpus")
	}
	defer func() { _ = f.Close() }()
	d, err := vocab.Build(f, maxTokens)
	return d, errors.WithMessagef(err, "corpus %q", corpusPath)
}
