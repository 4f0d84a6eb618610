package main

import (
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// tableColumn describes one column of tabular CLI output. Columns marked as
// state columns have their well-known values colorized when the output is a
// terminal.
type tableColumn struct {
	title      string
	alignRight bool
	state      bool
}

func writeTable(out io.Writer, columns []tableColumn, rows [][]string) {
	if len(columns) == 0 {
		return
	}
	colorize := shouldColorize(out)

	tw := table.NewWriter()
	tw.SetOutputMirror(out)
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(columns))
	for i, col := range columns {
		header[i] = col.title
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(columns))
		for i, col := range columns {
			value := ""
			if i < len(row) {
				value = row[i]
			}
			if col.state && colorize {
				value = colorizeState(value)
			}
			r[i] = value
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(columns))
	for i, col := range columns {
		align := text.AlignLeft
		if col.alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(configs)

	tw.Render()
}

// colorizeState wraps terminal meeting statuses and attempt outcomes in ANSI
// colors. Unknown values pass through unchanged so intermediate states stay
// plain.
func colorizeState(value string) string {
	switch value {
	case "completed":
		return ansiGreen + value + ansiReset
	case "failed":
		return ansiRed + value + ansiReset
	case "processing":
		return ansiYellow + value + ansiReset
	default:
		return value
	}
}
