// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"io"
	"os"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/muesli/termenv"
	"github.com/schollz/progressbar/v3"

	"github.com/florischabert/translate/pkg/ml/translator"
)

// ProgressbarStyle to use. Defaults to the ASCII version.
// Consider "progressbar.ThemeUnicode" for a prettier version.
// But it requires some of the graphical symbols to be supported.
var ProgressbarStyle = progressbar.ThemeASCII

var (
	normalStyle       = lipgloss.NewStyle().Padding(0, 1)
	rightAlignedStyle = lipgloss.NewStyle().Align(lipgloss.Right).Padding(0, 1)
	tableBorderColor  = "#705090"
)

// maxUpdateFrequency is the time between updates to the commandline display of stats.
const maxUpdateFrequency = time.Millisecond * 200

// ProgressBar displays the progress of the translation of a known number of lines, along with
// statistics, on a terminal. It writes to os.Stderr, so translations can be written to os.Stdout.
type ProgressBar struct {
	bar   *progressbar.ProgressBar
	out   io.Writer
	total int
	start time.Time

	// lipgloss-based rich and asynchronous display for the command-line.
	termenv          *termenv.Output
	statsStyle       lipgloss.Style
	statsTable       *lgtable.Table
	isFirstOutput    bool
	updates          chan progressUpdate
	asyncUpdatesDone sync.WaitGroup

	// Statistics, only accessed by the Update caller.
	numLines, numSourceTokens, numTargetTokens int
	latencies                                  []time.Duration
	sumScores                                  float64
}

type progressUpdate struct {
	amount int
	rows   [][2]string
}

// NewProgressBar creates and displays a progress bar for the translation of total lines.
func NewProgressBar(total int) *ProgressBar {
	pBar := &ProgressBar{
		out:           os.Stderr,
		total:         total,
		start:         time.Now(),
		isFirstOutput: true,
		termenv:       termenv.NewOutput(os.Stderr),
		statsStyle:    lipgloss.NewStyle().PaddingLeft(8),
		updates:       make(chan progressUpdate, 100), // Large buffer so translations are not blocked.
	}
	pBar.bar = progressbar.NewOptions(total,
		progressbar.OptionSetDescription("      [bold]"),
		progressbar.OptionUseANSICodes(true),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("lines"),
		progressbar.OptionSetTheme(ProgressbarStyle),
		progressbar.OptionSetWriter(pBar.out),
	)
	pBar.statsTable = lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color(tableBorderColor))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if col == 0 {
				return rightAlignedStyle
			}
			return normalStyle
		})
	pBar.asyncUpdatesDone.Add(1)
	go pBar.drawLoop()
	return pBar
}

// drawLoop asynchronously draws updates, so translations are not slowed down by the terminal.
func (pBar *ProgressBar) drawLoop() {
	defer pBar.asyncUpdatesDone.Done()
	for update := range pBar.updates {
		// Exhaust the updates in the buffer:
		amount := update.amount
	exhaust:
		for {
			select {
			case newUpdate, ok := <-pBar.updates:
				if !ok {
					break exhaust
				}
				amount += newUpdate.amount
				update = newUpdate
			default:
				break exhaust
			}
		}

		pBar.statsTable.Data(lgtable.NewStringData())
		for _, row := range update.rows {
			pBar.statsTable.Row(row[0], row[1])
		}

		// Clear the previous lines that will be overwritten.
		pBar.termenv.HideCursor()
		if !pBar.isFirstOutput {
			numLinesToBackup := len(update.rows) + 2 + 1
			pBar.termenv.CursorPrevLine(numLinesToBackup)
		}
		pBar.isFirstOutput = false
		_, _ = fmt.Fprintln(pBar.out, pBar.statsStyle.Render(pBar.statsTable.String()))
		_ = pBar.bar.Add(amount) // Prints progress bar line.
		_, _ = fmt.Fprintln(pBar.out)
		pBar.termenv.ShowCursor()
		time.Sleep(maxUpdateFrequency)
	}
}

// Update the progress bar with a new translated line. It must not be called concurrently.
func (pBar *ProgressBar) Update(t *translator.Translation) {
	pBar.numLines++
	pBar.numSourceTokens += len(t.SourceTokens)
	pBar.numTargetTokens += len(t.Tokens)
	pBar.latencies = append(pBar.latencies, t.Elapsed)
	pBar.sumScores += t.NormalizedScore
	pBar.updates <- progressUpdate{amount: 1, rows: pBar.statsRows()}
}

// statsRows returns the rows of the statistics table.
func (pBar *ProgressBar) statsRows() [][2]string {
	elapsed := time.Since(pBar.start).Seconds()
	return [][2]string{
		{"Lines", fmt.Sprintf("%s of %s", humanize.Comma(int64(pBar.numLines)), humanize.Comma(int64(pBar.total)))},
		{"Source tokens/s", humanize.FormatFloat("#,###.#", float64(pBar.numSourceTokens)/max(elapsed, 1e-9))},
		{"Target tokens", humanize.Comma(int64(pBar.numTargetTokens))},
		{"Median line latency", FormatDuration(medianDuration(pBar.latencies))},
		{"Mean normalized score", fmt.Sprintf("%.4f", pBar.sumScores/float64(max(pBar.numLines, 1)))},
	}
}

// Done waits for the display to be updated and restores the cursor.
func (pBar *ProgressBar) Done() {
	close(pBar.updates)
	pBar.asyncUpdatesDone.Wait()
	pBar.termenv.ShowCursor()
	_, _ = fmt.Fprintln(pBar.out)
}

func medianDuration(durations []time.Duration) time.Duration {
	if len(durations) == 0 {
		return 0
	}
	sorted := slices.Clone(durations)
	slices.Sort(sorted)
	return sorted[len(sorted)/2]
}
