// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package instrument

import (
	"github.com/charmbracelet/lipgloss"
	lgtable "github.com/charmbracelet/lipgloss/table"
)

var (
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	headerStyle  = cellStyle.Bold(true).Foreground(lipgloss.Color("12")).Align(lipgloss.Center)
	flaggedStyle = cellStyle.Bold(true).Foreground(lipgloss.Color("9"))
	totalStyle   = cellStyle.Italic(true)
)

// Table of values where individual cells can be flagged, e.g. a measure over its tolerance, and an optional
// last row of totals.
type Table struct {
	headers    []string
	alignments []lipgloss.Position
	rows       [][]string
	flagged    map[[2]int]bool
	hasTotal   bool
}

// NewTable creates a table with the given column headers. The first column is aligned left, the others right,
// see Align.
func NewTable(headers ...string) *Table {
	return &Table{
		headers:    headers,
		alignments: []lipgloss.Position{lipgloss.Left, lipgloss.Right},
		flagged:    make(map[[2]int]bool),
	}
}

// Align sets the alignment of the columns: the last one given is used for the remaining columns.
func (t *Table) Align(alignments ...lipgloss.Position) *Table {
	t.alignments = alignments
	return t
}

// Row appends a row and returns its index, to be used with Flag.
func (t *Table) Row(cells ...string) int {
	t.rows = append(t.rows, cells)
	return len(t.rows) - 1
}

// Flag highlights the cells of the given columns of row. Without columns, the whole row is flagged.
func (t *Table) Flag(row int, cols ...int) {
	if len(cols) == 0 {
		for col := range t.headers {
			t.flagged[[2]int{row, col}] = true
		}
		return
	}
	for _, col := range cols {
		t.flagged[[2]int{row, col}] = true
	}
}

// IsFlagged returns whether the cell was flagged.
func (t *Table) IsFlagged(row, col int) bool { return t.flagged[[2]int{row, col}] }

// Total appends the row of totals: it must be the last row.
func (t *Table) Total(cells ...string) {
	t.Row(cells...)
	t.hasTotal = true
}

func (t *Table) align(col int) lipgloss.Position {
	switch {
	case len(t.alignments) == 0:
		return lipgloss.Left
	case col < len(t.alignments):
		return t.alignments[col]
	default:
		return t.alignments[len(t.alignments)-1]
	}
}

// Render the table.
func (t *Table) Render() string {
	lastRow := len(t.rows) - 1
	return lgtable.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		BorderRow(false).
		Headers(t.headers...).
		Rows(t.rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			var s lipgloss.Style
			switch {
			case row == lgtable.HeaderRow:
				return headerStyle
			case t.flagged[[2]int{row, col}]:
				s = flaggedStyle
			case t.hasTotal && row == lastRow:
				s = totalStyle
			default:
				s = cellStyle
			}
			return s.Align(t.align(col))
		}).
		Render()
}
