// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/urfave/cli/v3"
	"k8s.io/klog/v2"

	"github.com/florischabert/translate/pkg/ml/translator"
	"github.com/florischabert/translate/pkg/ml/vocab"
	"github.com/florischabert/translate/pkg/support/fsutil"
	"github.com/florischabert/translate/ui/commandline"
)

func decodeCmd() *cli.Command {
	var (
		inputPath     string
		outputPath    string
		dumpBeamsPath string
		parallelism   int
		showBeams     bool
		progress      bool
	)

	return &cli.Command{
		Name:  "decode",
		Usage: "Translate lines from stdin (or --input), one sentence per line",
		Flags: append(append(commonModelFlags(), commonDecodingFlags()...),
			&cli.StringFlag{
				Name:        "input",
				Aliases:     []string{"i"},
				Usage:       "file with the lines to translate; stdin is translated line by line if not set",
				Destination: &inputPath,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "file where to write the translations (default: stdout)",
				Destination: &outputPath,
			},
			&cli.IntFlag{
				Name:        "parallelism",
				Usage:       "number of lines of --input translated concurrently; 0 translates sequentially",
				Destination: &parallelism,
			},
			&cli.StringFlag{
				Name:        "dump-beams",
				Usage:       "file where to write the full beam search history of every line, as JSON lines",
				Destination: &dumpBeamsPath,
			},
			&cli.BoolFlag{
				Name:        "show-beams",
				Usage:       "print the beam search history of every line to stderr",
				Destination: &showBeams,
			},
			&cli.BoolFlag{
				Name:        "progress",
				Usage:       "display a progress bar when translating --input",
				Value:       true,
				Destination: &progress,
			},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			applyModelConfig(cmd, fileConfig)
			applyDecodingConfig(cmd, fileConfig)
			if fileConfig.Parallelism != nil && !cmd.IsSet("parallelism") {
				parallelism = *fileConfig.Parallelism
			}

			tr, model, err := newTranslator()
			if err != nil {
				return err
			}
			defer model.Finalize()

			out := io.Writer(os.Stdout)
			if outputPath != "" {
				f, err := fsutil.CreateFile(outputPath)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				out = f
			}
			w := &translationWriter{out: bufio.NewWriter(out), target: tr.Target, nBest: nBest}
			if showBeams {
				w.beamsOut = os.Stderr
			}
			if dumpBeamsPath != "" {
				f, err := fsutil.CreateFile(dumpBeamsPath)
				if err != nil {
					return err
				}
				defer func() { _ = f.Close() }()
				w.dump = newBeamsDumper(f)
			}

			if inputPath == "" {
				err = translateStream(ctx, tr, os.Stdin, w)
			} else {
				err = translateFile(ctx, tr, inputPath, parallelism, progress, w)
			}
			if err != nil {
				return err
			}
			return w.Flush()
		},
	}
}

// translateStream translates and writes one line at a time, so it can be used interactively.
func translateStream(ctx context.Context, tr *translator.Translator, in io.Reader, w *translationWriter) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(nil, 1<<20)
	for scanner.Scan() {
		t, err := tr.Translate(ctx, scanner.Text())
		if err != nil {
			return err
		}
		if err = w.Write(t); err != nil {
			return err
		}
		if err = w.Flush(); err != nil {
			return err
		}
	}
	return errors.Wrap(scanner.Err(), "reading input")
}

// translateFile translates all lines of inputPath, using up to parallelism goroutines.
func translateFile(ctx context.Context, tr *translator.Translator, inputPath string, parallelism int, progress bool, w *translationWriter) error {
	lines, err := readLines(inputPath)
	if err != nil {
		return err
	}
	start := time.Now()
	var done func(*translator.Translation)
	if progress {
		pBar := commandline.NewProgressBar(len(lines))
		done = pBar.Update
		defer pBar.Done()
	}
	translations, err := tr.TranslateAll(ctx, lines, parallelism, done)
	if err != nil {
		return err
	}
	klog.V(1).Infof("translated %s lines in %s", humanize.Comma(int64(len(lines))), commandline.FormatDuration(time.Since(start)))
	for _, t := range translations {
		if err = w.Write(t); err != nil {
			return err
		}
	}
	return nil
}

func readLines(filePath string) ([]string, error) {
	filePath, err := fsutil.ExpandHome(filePath)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "opening input")
	}
	defer func() { _ = f.Close() }()
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(nil, 1<<20)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err = scanner.Err(); err != nil {
		return nil, errors.Wrapf(err, "reading input %q", filePath)
	}
	return lines, nil
}

// translationWriter writes translations: the best translation per line, or, if nBest > 1, the
// n-best list in the "<line> ||| <translation> ||| <score>" format.
type translationWriter struct {
	out      *bufio.Writer
	target   *vocab.Dictionary
	nBest    int
	lineNum  int
	beamsOut io.Writer
	dump     *beamsDumper
}

// Write one translation.
func (w *translationWriter) Write(t *translator.Translation) error {
	var err error
	if w.nBest > 1 {
		for _, hyp := range t.Hypotheses {
			if err == nil {
				_, err = fmt.Fprintf(w.out, "%d ||| %s ||| %.6f\n", w.lineNum, w.target.Denumberize(hyp.Tokens), hyp.NormalizedScore)
			}
		}
	} else {
		_, err = fmt.Fprintln(w.out, t.Text)
	}
	if err != nil {
		return errors.Wrap(err, "writing translation")
	}
	w.lineNum++
	if w.beamsOut != nil && t.Beams != nil {
		_, _ = fmt.Fprintf(w.beamsOut, "%s\n%s\n", t, commandline.BeamsTable(t.Beams, w.target, t.Best()))
	}
	if w.dump != nil {
		return w.dump.Dump(t)
	}
	return nil
}

// Flush buffered translations.
func (w *translationWriter) Flush() error {
	return errors.Wrap(w.out.Flush(), "writing translations")
}
