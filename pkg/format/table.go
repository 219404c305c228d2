package format

import (
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/mattn/go-runewidth"
)

// renderTable draws header and records bounded by opts. Rows and columns past
// the limits are replaced by a single "..." row or column between the head and
// the tail of the table.
func renderTable(header []string, records [][]string, opts Options) string {
	cols := len(header)
	for _, r := range records {
		if len(r) > cols {
			cols = len(r)
		}
	}
	if len(header) == 0 && cols > 0 {
		header = make([]string, cols)
		for i := range header {
			header[i] = strconv.Itoa(i)
		}
	}

	rows := boundRows(records, opts.MaxRows, cols)
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(truncateCells(boundCols(pad(header, cols), opts.MaxCols), opts.MaxColWidth)...)
	for _, r := range rows {
		t.Row(truncateCells(boundCols(pad(r, cols), opts.MaxCols), opts.MaxColWidth)...)
	}
	return t.String()
}

// split returns how many leading and trailing items of n are kept under limit.
func split(n, limit int) (head, tail int, cut bool) {
	if n <= limit {
		return n, 0, false
	}
	head = (limit + 1) / 2
	tail = limit - head
	return head, tail, true
}

func boundRows(records [][]string, limit, cols int) [][]string {
	head, tail, cut := split(len(records), limit)
	if !cut {
		return records
	}
	marker := make([]string, cols)
	for i := range marker {
		marker[i] = ellipsis
	}
	out := make([][]string, 0, head+tail+1)
	out = append(out, records[:head]...)
	out = append(out, marker)
	out = append(out, records[len(records)-tail:]...)
	return out
}

func boundCols(cells []string, limit int) []string {
	head, tail, cut := split(len(cells), limit)
	if !cut {
		return cells
	}
	out := make([]string, 0, head+tail+1)
	out = append(out, cells[:head]...)
	out = append(out, ellipsis)
	out = append(out, cells[len(cells)-tail:]...)
	return out
}

func pad(cells []string, cols int) []string {
	if len(cells) >= cols {
		return cells
	}
	out := make([]string, cols)
	copy(out, cells)
	return out
}

func truncateCells(cells []string, width int) []string {
	out := make([]string, len(cells))
	for i, c := range cells {
		out[i] = runewidth.Truncate(c, width, ellipsis)
	}
	return out
}

func displayWidth(s string) int {
	return runewidth.StringWidth(s)
}
