package printer

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Column describes one table column. A Width of zero sizes the column to
// its widest cell.
type Column struct {
	Title string
	Width int
}

// Table prints rows under a muted header. Cells longer than their column
// are truncated; cells may already contain escape sequences such as
// hyperlinks, which do not count toward the width.
func (p *Printer) Table(cols []Column, rows [][]string) {
	widths := make([]int, len(cols))
	for i, c := range cols {
		widths[i] = c.Width
		if c.Width > 0 {
			continue
		}
		widths[i] = lipgloss.Width(c.Title)
		for _, row := range rows {
			if i < len(row) {
				widths[i] = max(widths[i], lipgloss.Width(row[i]))
			}
		}
	}

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = pad(Truncate(c.Title, widths[i]), widths[i])
	}
	_, _ = fmt.Fprintln(p.w, p.muted.Render(strings.TrimRight(strings.Join(header, "  "), " ")))

	for _, row := range rows {
		cells := make([]string, len(cols))
		for i := range cols {
			var cell string
			if i < len(row) {
				cell = row[i]
			}
			if lipgloss.Width(cell) > widths[i] {
				cell = Truncate(cell, widths[i])
			}
			cells[i] = pad(cell, widths[i])
		}
		_, _ = fmt.Fprintln(p.w, strings.TrimRight(strings.Join(cells, "  "), " "))
	}
}

func pad(s string, width int) string {
	if n := width - lipgloss.Width(s); n > 0 {
		return s + strings.Repeat(" ", n)
	}
	return s
}
