// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"
	"path/filepath"

	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"

	"github.com/florischabert/translate/pkg/support/fsutil"
)

// Config represents the translate configuration file (~/.config/translate/config.yaml).
// All fields are pointers or strings so "not set" can be distinguished from zero values.
// Command-line flags explicitly set take precedence.
type Config struct {
	Verbosity *int `yaml:"verbosity"`

	// Model files.
	ModelDir    string `yaml:"model_dir"`
	Model       string `yaml:"model"`
	SourceVocab string `yaml:"source_vocab"`
	TargetVocab string `yaml:"target_vocab"`

	// Decoding.
	BeamSize          *int     `yaml:"beam_size"`
	MaxOutSeqLenMult  *float64 `yaml:"max_out_seq_len_mult"`
	MaxOutSeqLenBias  *int     `yaml:"max_out_seq_len_bias"`
	ReverseSource     *bool    `yaml:"reverse_source"`
	AppendEOSToSource *bool    `yaml:"append_eos_to_source"`
	StopAtEOS         *bool    `yaml:"stop_at_eos"`
	LengthPenalty     *float64 `yaml:"length_penalty"`
	NBest             *int     `yaml:"n_best"`
	Parallelism       *int     `yaml:"parallelism"`

	// Server.
	ServerAddress string `yaml:"server_address"`
}

// fileConfig is loaded before any command runs.
var fileConfig Config

func defaultConfigPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(dir, "translate", "config.yaml")
}

// LoadConfig reads the configuration in filePath. If filePath is empty the default location is used,
// and a missing file yields an empty configuration.
func LoadConfig(filePath string) (Config, error) {
	var cfg Config
	explicit := filePath != ""
	if !explicit {
		filePath = defaultConfigPath()
		if filePath == "" {
			return cfg, nil
		}
	}
	filePath, err := fsutil.ExpandHome(filePath)
	if err != nil {
		return cfg, err
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, errors.Wrapf(err, "reading configuration")
	}
	if err = yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(err, "parsing configuration file %q", filePath)
	}
	return cfg, nil
}

// applyModelConfig applies config file values to the model flags that were not explicitly set.
func applyModelConfig(c *cli.Command, cfg Config) {
	if cfg.ModelDir != "" && !c.IsSet("model-dir") {
		modelDir = cfg.ModelDir
	}
	if cfg.Model != "" && !c.IsSet("model") {
		modelPath = cfg.Model
	}
	if cfg.SourceVocab != "" && !c.IsSet("source-vocab") {
		sourceVocabPath = cfg.SourceVocab
	}
	if cfg.TargetVocab != "" && !c.IsSet("target-vocab") {
		targetVocabPath = cfg.TargetVocab
	}
}

// applyDecodingConfig applies config file values to the decoding flags that were not explicitly set.
func applyDecodingConfig(c *cli.Command, cfg Config) {
	if cfg.BeamSize != nil && !c.IsSet("beam-size") {
		beamSize = *cfg.BeamSize
	}
	if cfg.MaxOutSeqLenMult != nil && !c.IsSet("max-out-seq-len-mult") {
		maxOutSeqLenMult = *cfg.MaxOutSeqLenMult
	}
	if cfg.MaxOutSeqLenBias != nil && !c.IsSet("max-out-seq-len-bias") {
		maxOutSeqLenBias = *cfg.MaxOutSeqLenBias
	}
	if cfg.ReverseSource != nil && !c.IsSet("reverse-source") {
		reverseSource = *cfg.ReverseSource
	}
	if cfg.AppendEOSToSource != nil && !c.IsSet("append-eos-to-source") {
		appendEOSToSource = *cfg.AppendEOSToSource
	}
	if cfg.StopAtEOS != nil && !c.IsSet("stop-at-eos") {
		stopAtEOS = *cfg.StopAtEOS
	}
	if cfg.LengthPenalty != nil && !c.IsSet("length-penalty") {
		lengthPenalty = *cfg.LengthPenalty
	}
	if cfg.NBest != nil && !c.IsSet("n-best") {
		nBest = *cfg.NBest
	}
}
