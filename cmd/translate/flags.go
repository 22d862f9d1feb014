// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import "github.com/urfave/cli/v3"

var (
	configFile      string
	verbosity       int
	modelDir        string
	modelPath       string
	sourceVocabPath string
	targetVocabPath string

	beamSize          int
	maxOutSeqLenMult  float64
	maxOutSeqLenBias  int
	reverseSource     bool
	appendEOSToSource bool
	stopAtEOS         bool
	lengthPenalty     float64
	nBest             int
)

func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "config",
			Usage:       "path to the YAML configuration file (default: <user config dir>/translate/config.yaml)",
			Destination: &configFile,
		},
		&cli.IntFlag{
			Name:        "v",
			Usage:       "log verbosity level",
			Destination: &verbosity,
		},
	}
}

func commonModelFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "model-dir",
			Aliases:     []string{"dir"},
			Usage:       "directory relative model and vocabulary paths are resolved against",
			Destination: &modelDir,
		},
		&cli.StringFlag{
			Name:        "model",
			Aliases:     []string{"m"},
			Usage:       "path to the model file",
			Value:       "model.bin",
			Destination: &modelPath,
		},
		&cli.StringFlag{
			Name:        "source-vocab",
			Usage:       "path to the source vocabulary file",
			Value:       "source.vocab",
			Destination: &sourceVocabPath,
		},
		&cli.StringFlag{
			Name:        "target-vocab",
			Usage:       "path to the target vocabulary file",
			Value:       "target.vocab",
			Destination: &targetVocabPath,
		},
	}
}

func commonDecodingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.IntFlag{
			Name:        "beam-size",
			Aliases:     []string{"b"},
			Usage:       "number of hypotheses kept at every step",
			Value:       6,
			Destination: &beamSize,
		},
		&cli.Float64Flag{
			Name:        "max-out-seq-len-mult",
			Usage:       "maximum number of output tokens per source token",
			Value:       1.1,
			Destination: &maxOutSeqLenMult,
		},
		&cli.IntFlag{
			Name:        "max-out-seq-len-bias",
			Usage:       "maximum number of output tokens added to the per source token budget",
			Value:       5,
			Destination: &maxOutSeqLenBias,
		},
		&cli.BoolFlag{
			Name:        "reverse-source",
			Usage:       "reverse the source tokens before encoding (must match training)",
			Value:       true,
			Destination: &reverseSource,
		},
		&cli.BoolFlag{
			Name:        "append-eos-to-source",
			Usage:       "append the EOS token to the source tokens (must match training)",
			Destination: &appendEOSToSource,
		},
		&cli.BoolFlag{
			Name:        "stop-at-eos",
			Usage:       "discard hypotheses that continue after an EOS",
			Value:       true,
			Destination: &stopAtEOS,
		},
		&cli.Float64Flag{
			Name:        "length-penalty",
			Usage:       "hypotheses scores are divided by numTokens^length-penalty",
			Destination: &lengthPenalty,
		},
		&cli.IntFlag{
			Name:        "n-best",
			Usage:       "number of hypotheses reported per line",
			Value:       1,
			Destination: &nBest,
		},
	}
}
