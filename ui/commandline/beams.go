// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package commandline

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"

	"github.com/florischabert/translate/pkg/ml/decode"
	"github.com/florischabert/translate/pkg/ml/decode/hypothesis"
	"github.com/florischabert/translate/pkg/ml/vocab"
)

var (
	headerRowStyle = lipgloss.NewStyle().Reverse(true).
			Padding(0, 2, 0, 2).Align(lipgloss.Center)

	oddRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FFF")).
			PaddingLeft(1).PaddingRight(1)
	evenRowStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#999")).
			PaddingLeft(1).PaddingRight(1)
	bestStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#50C878")).
			PaddingLeft(1).PaddingRight(1)

	titleStyle = lipgloss.NewStyle().Bold(true).Padding(1, 4, 1, 4)
)

// BeamsTable renders the beam history of a search as a table, one row per timestep and beam slot,
// with the slots on the path of best highlighted. Tokens are rendered with target.
func BeamsTable(result *decode.Result, target *vocab.Dictionary, best *hypothesis.Hypothesis) string {
	onBestPath := make(map[[2]int]bool)
	if best != nil {
		if path, err := hypothesis.Backtrack(result, best.Timestep, best.BeamSlot); err == nil {
			for ii, slot := range path.Slots {
				onBestPath[[2]int{ii + 1, slot}] = true
			}
		}
	}

	type rowKey struct{ timestep, slot int }
	var keys []rowKey
	table := lgtable.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("99"))).
		Headers("t", "slot", "token", "score", "from").
		StyleFunc(func(row, col int) (s lipgloss.Style) {
			switch {
			case row < 0:
				return headerRowStyle
			case row < len(keys) && onBestPath[[2]int{keys[row].timestep, keys[row].slot}]:
				s = bestStyle
			case row%2 == 0:
				s = evenRowStyle
			default:
				s = oddRowStyle
			}
			if col == 2 {
				return s.Align(lipgloss.Left)
			}
			return s.Align(lipgloss.Right)
		})
	for timestep := 1; timestep <= result.MaxTimestep; timestep++ {
		for slot, token := range result.Tokens[timestep] {
			keys = append(keys, rowKey{timestep, slot})
			table.Row(
				strconv.Itoa(timestep),
				strconv.Itoa(slot),
				target.Token(token),
				fmt.Sprintf("%.4f", result.Scores[timestep][slot]),
				strconv.Itoa(result.Backpointers[timestep][slot]),
			)
		}
	}
	return titleStyle.Render(result.String()) + "\n" + table.Render()
}
