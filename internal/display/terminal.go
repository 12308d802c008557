package display

import (
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

const (
	colorSuccess lipgloss.Color = "2"
	colorError   lipgloss.Color = "1"
	colorPrimary lipgloss.Color = "7"
	colorMuted   lipgloss.Color = "8"
)

var terminalHeaders = []string{
	"PARA ID", "CHAIN", "STATUS", "PEERS", "EVM", "EVM CHAIN ID",
	"TOKEN", "COLLATORS", "LAST BLOCK", "BLOCK NUMBER", "BLOCK HASH",
}

// RenderTerminal renders the view as a bordered table for CLI output.
func RenderTerminal(view View) string {
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(colorPrimary)
	errorStyle := lipgloss.NewStyle().Foreground(colorError)
	mutedStyle := lipgloss.NewStyle().Foreground(colorMuted)

	var b strings.Builder
	b.WriteString(titleStyle.Render(view.Title))
	b.WriteString("\n")

	if len(view.Rows) == 0 {
		if view.Error == "" {
			b.WriteString(mutedStyle.Render("No chains found"))
			b.WriteString("\n")
		}
	} else {
		rows := make([][]string, 0, len(view.Rows))
		for _, r := range view.Rows {
			rows = append(rows, []string{
				strconv.Itoa(r.ID), r.Label, r.Status, r.Peers, r.IsEVM, r.EVMChainID,
				r.Token, r.Collators, r.LastBlock, r.BlockNumber, shortHash(r.BlockHash),
			})
		}

		t := table.New().
			Border(lipgloss.NormalBorder()).
			BorderStyle(mutedStyle).
			Headers(terminalHeaders...).
			Rows(rows...).
			StyleFunc(func(row, col int) lipgloss.Style {
				style := lipgloss.NewStyle().Padding(0, 1)
				if row == table.HeaderRow {
					return style.Bold(true).Foreground(colorPrimary)
				}
				if row < 0 || row >= len(view.Rows) {
					return style
				}
				if view.Rows[row].State == "error" {
					return style.Foreground(colorError)
				}
				if col == 2 && view.Rows[row].Status == SymbolOK {
					return style.Foreground(colorSuccess)
				}
				return style
			})
		b.WriteString(t.String())
		b.WriteString("\n")
	}

	if view.Error != "" {
		b.WriteString(errorStyle.Render("Oops! " + view.Error))
		b.WriteString("\n")
	}
	return b.String()
}

func shortHash(h string) string {
	if len(h) <= 18 {
		return h
	}
	return h[:10] + "…" + h[len(h)-6:]
}
