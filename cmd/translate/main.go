// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// translate decodes sentences with beam search over an encoder and a decoder-step model.
//
// Commands:
//
//   - decode: translate lines from stdin (or --input) to stdout (or --output).
//   - serve: serve translations over HTTP.
//   - init-model: create a reference model and vocabularies from parallel corpora.
//
// Flags not given in the command line are read from the YAML configuration file, if present.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"

	"github.com/florischabert/translate/pkg/ml/refmodel"
	"github.com/florischabert/translate/pkg/ml/translator"
	"github.com/florischabert/translate/pkg/ml/vocab"
	"github.com/florischabert/translate/pkg/support/fsutil"
)

func main() {
	if err := newApp().Run(context.Background(), os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.Command {
	return &cli.Command{
		Name:   "translate",
		Usage:  "Beam search translation with encoder and decoder-step models",
		Flags:  globalFlags(),
		Before: setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			decodeCmd(),
			serveCmd(),
			initModelCmd(),
		},
	}
}

// setup loads the configuration file and configures klog.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	var err error
	fileConfig, err = LoadConfig(configFile)
	if err != nil {
		return ctx, err
	}
	if fileConfig.Verbosity != nil && !cmd.IsSet("v") {
		verbosity = *fileConfig.Verbosity
	}
	klogFlags := flag.NewFlagSet("klog", flag.ContinueOnError)
	klog.InitFlags(klogFlags)
	if err = klogFlags.Set("v", strconv.Itoa(verbosity)); err != nil {
		return ctx, errors.Wrap(err, "setting log verbosity")
	}
	return ctx, nil
}

// resolvedPaths returns the model, source vocabulary and target vocabulary paths, resolved against --model-dir.
func resolvedPaths() (model, source, target string, err error) {
	if model, err = fsutil.Resolve(modelDir, modelPath); err != nil {
		return
	}
	if source, err = fsutil.Resolve(modelDir, sourceVocabPath); err != nil {
		return
	}
	target, err = fsutil.Resolve(modelDir, targetVocabPath)
	return
}

// newTranslator loads the model and vocabularies, and configures a translator with the decoding flags.
func newTranslator() (*translator.Translator, *refmodel.Model, error) {
	modelFile, sourceFile, targetFile, err := resolvedPaths()
	if err != nil {
		return nil, nil, err
	}
	source, err := vocab.Load(sourceFile)
	if err != nil {
		return nil, nil, err
	}
	target, err := vocab.Load(targetFile)
	if err != nil {
		return nil, nil, err
	}
	model, err := refmodel.Load(modelFile)
	if err != nil {
		return nil, nil, err
	}
	if model.SourceVocabSize != source.Len() || model.TargetVocabSize != target.Len() {
		model.Finalize()
		return nil, nil, errors.Errorf("model %q vocabulary sizes (source %d, target %d) don't match the vocabularies (source %d, target %d)",
			modelFile, model.SourceVocabSize, model.TargetVocabSize, source.Len(), target.Len())
	}
	tr := translator.New(source, target, model.Encoder(), model.Step()).
		WithBeamSize(beamSize).
		WithMaxOutputSeqLen(maxOutSeqLenMult, maxOutSeqLenBias).
		WithReverseSource(reverseSource).
		WithAppendEOSToSource(appendEOSToSource).
		WithStopAtEOS(stopAtEOS).
		WithLengthPenalty(lengthPenalty).
		WithNumHypotheses(nBest)
	klog.V(1).Infof("loaded model %q (hidden size %d, %d states), beam size %d", modelFile, model.HiddenSize, model.NumStates, tr.BeamSize())
	return tr, model, nil
}
