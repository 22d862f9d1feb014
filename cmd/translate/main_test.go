// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/janpfeifer/must"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v3"

	"github.com/florischabert/translate/pkg/ml/refmodel"
	"github.com/florischabert/translate/pkg/ml/translator"
	"github.com/florischabert/translate/pkg/ml/vocab"
)

func writeFile(t *testing.T, filePath, contents string) {
	require.NoError(t, os.WriteFile(filePath, []byte(contents), 0o644))
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	filePath := filepath.Join(dir, "config.yaml")
	writeFile(t, filePath, "model_dir: /models\nbeam_size: 3\nreverse_source: false\nlength_penalty: 0.5\n")
	cfg, err := LoadConfig(filePath)
	require.NoError(t, err)
	assert.Equal(t, "/models", cfg.ModelDir)
	require.NotNil(t, cfg.BeamSize)
	assert.Equal(t, 3, *cfg.BeamSize)
	require.NotNil(t, cfg.ReverseSource)
	assert.False(t, *cfg.ReverseSource)
	assert.Nil(t, cfg.StopAtEOS)

	_, err = LoadConfig(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err, "explicit configuration files must exist")

	writeFile(t, filePath, "beam_size: [1, 2]\n")
	_, err = LoadConfig(filePath)
	require.Error(t, err)
}

func TestApplyConfig(t *testing.T) {
	beam, penalty := 3, 0.5
	cfg := Config{Model: "from-config.bin", BeamSize: &beam, LengthPenalty: &penalty}
	cmd := &cli.Command{
		Name:  "test",
		Flags: append(commonModelFlags(), commonDecodingFlags()...),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, cfg)
			applyDecodingConfig(cmd, cfg)
			return nil
		},
	}
	require.NoError(t, cmd.Run(context.Background(), []string{"test", "--beam-size", "8"}))
	assert.Equal(t, 8, beamSize, "flags explicitly set take precedence")
	assert.Equal(t, 0.5, lengthPenalty)
	assert.Equal(t, "from-config.bin", modelPath)
	assert.Equal(t, "source.vocab", sourceVocabPath)
	assert.True(t, reverseSource)
}

func TestTranslationWriter(t *testing.T) {
	source := vocab.New("a", "b", "c")
	target := vocab.New("x", "y", "z")
	model := must.M1(refmodel.New(refmodel.Config{
		SourceVocabSize: source.Len(),
		TargetVocabSize: target.Len(),
		HiddenSize:      4,
		NumStates:       1,
	}, 1))
	tr := translator.New(source, target, model.Encoder(), model.Step()).
		WithBeamSize(2).
		WithStopAtEOS(false).
		WithNumHypotheses(2)

	t.Run("Stream", func(t *testing.T) {
		var out, beams bytes.Buffer
		w := &translationWriter{out: bufio.NewWriter(&out), target: target, nBest: 1, beamsOut: &beams}
		require.NoError(t, translateStream(context.Background(), tr, strings.NewReader("a b\n\nc\n"), w))
		assert.Len(t, strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n"), 3)
		assert.Contains(t, beams.String(), "slot")
	})

	t.Run("NBestAndDump", func(t *testing.T) {
		var out, dump bytes.Buffer
		w := &translationWriter{out: bufio.NewWriter(&out), target: target, nBest: 2, dump: newBeamsDumper(&dump)}
		translation := must.M1(tr.Translate(context.Background(), "a b c"))
		require.NoError(t, w.Write(translation))
		require.NoError(t, w.Flush())
		lines := strings.Split(strings.TrimSuffix(out.String(), "\n"), "\n")
		require.Len(t, lines, 2)
		assert.True(t, strings.HasPrefix(lines[0], "0 ||| "))

		var record beamsRecord
		require.NoError(t, json.Unmarshal(dump.Bytes(), &record))
		assert.Equal(t, "a b c", record.Source)
		assert.Equal(t, 2, record.BeamSize)
		assert.Equal(t, tr.MaxOutputSeqLen(3), record.MaxTimestep)
		assert.Len(t, record.BeamTokens, record.MaxTimestep+1)
		assert.Len(t, record.Attention[1][0], 3)
	})
}

func TestInitModelAndDecode(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "corpus.src"), "the cat sat\non the mat\nthe dog\n")
	writeFile(t, filepath.Join(dir, "corpus.tgt"), "le chat assis\nsur le tapis\nle chien\n")
	writeFile(t, filepath.Join(dir, "input.txt"), "the cat\nunknown words here\n\nthe mat\n")
	configPath := filepath.Join(dir, "config.yaml")
	writeFile(t, configPath, "model_dir: "+dir+"\nbeam_size: 2\nmax_out_seq_len_bias: 3\n")
	ctx := context.Background()

	require.NoError(t, newApp().Run(ctx, []string{"translate", "--config", configPath, "init-model",
		"--source-corpus", filepath.Join(dir, "corpus.src"),
		"--target-corpus", filepath.Join(dir, "corpus.tgt"),
		"--hidden-size", "8", "--num-states", "2"}))
	model, err := refmodel.Load(filepath.Join(dir, "model.bin"))
	require.NoError(t, err)
	assert.Equal(t, vocab.NumReserved+6, model.SourceVocabSize)
	assert.Equal(t, vocab.NumReserved+6, model.TargetVocabSize)
	assert.Equal(t, 2, model.NumStates)
	model.Finalize()

	outputPath := filepath.Join(dir, "out", "output.txt")
	dumpPath := filepath.Join(dir, "out", "beams.jsonl")
	require.NoError(t, newApp().Run(ctx, []string{"translate", "--config", configPath, "decode",
		"--input", filepath.Join(dir, "input.txt"),
		"--output", outputPath,
		"--dump-beams", dumpPath,
		"--parallelism", "2",
		"--progress=false"}))
	output := string(must.M1(os.ReadFile(outputPath)))
	assert.Len(t, strings.Split(strings.TrimSuffix(output, "\n"), "\n"), 4)

	dumpLines := strings.Split(strings.TrimSpace(string(must.M1(os.ReadFile(dumpPath)))), "\n")
	require.Len(t, dumpLines, 4)
	var record beamsRecord
	require.NoError(t, json.Unmarshal([]byte(dumpLines[0]), &record))
	assert.Equal(t, "the cat", record.Source)
	assert.Equal(t, 2, record.BeamSize, "beam size read from the configuration file")
	assert.Equal(t, 5, record.MaxTimestep, "int(2 * 1.1 + 3)")
	record = beamsRecord{}
	require.NoError(t, json.Unmarshal([]byte(dumpLines[2]), &record))
	assert.Equal(t, 2, record.Line)
	assert.Empty(t, record.SourceTokens)
}
