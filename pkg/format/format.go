// Package format renders log call arguments into a single message string.
//
// Each argument is rendered on its own and the results are joined with a
// single space:
//
//   - tabular values (Tabular, *Table, [][]string) become a bounded table
//     framed by '=' delimiter lines
//   - maps become a key/value table framed by '-' delimiter lines
//   - floats use six decimals with trailing zeros stripped ("3.000000" -> "3.")
//   - anything else uses its default fmt representation
package format

import (
	"fmt"
	"reflect"
	"sort"
	"strconv"
	"strings"
)

const (
	tableDelimiter = '='
	mapDelimiter   = '-'
	ellipsis       = "..."
)

// Tabular is implemented by values rendered as tables.
type Tabular interface {
	// Header returns the column names. It may be empty.
	Header() []string
	// Records returns the rows; each row has one cell per column.
	Records() [][]string
}

// Table is a simple Tabular value.
type Table struct {
	Columns []string
	Rows    [][]any
}

// NewTable creates a table with the given column names.
func NewTable(columns ...string) *Table {
	return &Table{Columns: columns}
}

// Append adds a row to the table.
func (t *Table) Append(cells ...any) *Table {
	t.Rows = append(t.Rows, cells)
	return t
}

// Header implements Tabular.
func (t *Table) Header() []string {
	if t == nil {
		return nil
	}
	return t.Columns
}

// Records implements Tabular.
func (t *Table) Records() [][]string {
	if t == nil {
		return nil
	}
	out := make([][]string, len(t.Rows))
	for i, row := range t.Rows {
		cells := make([]string, len(row))
		for j, v := range row {
			cells[j] = scalar(v)
		}
		out[i] = cells
	}
	return out
}

// Format renders args according to opts.
func Format(opts Options, args ...any) (string, error) {
	if err := opts.Validate(); err != nil {
		return "", err
	}
	opts = opts.withDefaults()

	parts := make([]string, len(args))
	for i, arg := range args {
		parts[i] = render(arg, opts)
	}
	return strings.Join(parts, " "), nil
}

// Sprint renders args with the default options.
func Sprint(args ...any) string {
	s, _ := Format(Options{}, args...)
	return s
}

// Float renders f with six decimals and trailing zeros stripped.
// The decimal point is always kept, so 3.0 renders as "3.".
func Float(f float64) string {
	return strings.TrimRight(strconv.FormatFloat(f, 'f', 6, 64), "0")
}

func render(v any, opts Options) string {
	switch t := v.(type) {
	case nil:
		return fmt.Sprint(v)
	case Tabular:
		if isNilPointer(t) {
			return fmt.Sprint(v)
		}
		return frame(renderTable(t.Header(), t.Records(), opts), tableDelimiter)
	case [][]string:
		return frame(renderTable(nil, t, opts), tableDelimiter)
	case float64:
		return Float(t)
	case float32:
		return strings.TrimRight(strconv.FormatFloat(float64(t), 'f', 6, 32), "0")
	}

	if rv := reflect.ValueOf(v); rv.Kind() == reflect.Map {
		return frame(renderTable([]string{"key", "value"}, mapRecords(rv), opts), mapDelimiter)
	}
	return fmt.Sprint(v)
}

// scalar renders a table cell.
func scalar(v any) string {
	switch t := v.(type) {
	case float64:
		return Float(t)
	case float32:
		return strings.TrimRight(strconv.FormatFloat(float64(t), 'f', 6, 32), "0")
	}
	return fmt.Sprint(v)
}

func isNilPointer(v any) bool {
	rv := reflect.ValueOf(v)
	return rv.Kind() == reflect.Pointer && rv.IsNil()
}

func mapRecords(rv reflect.Value) [][]string {
	records := make([][]string, 0, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		records = append(records, []string{scalar(iter.Key().Interface()), scalar(iter.Value().Interface())})
	}
	sort.Slice(records, func(i, j int) bool { return records[i][0] < records[j][0] })
	return records
}

// frame surrounds a rendered table with delimiter lines as wide as its widest line.
func frame(body string, delim rune) string {
	width := 0
	for _, line := range strings.Split(body, "\n") {
		if w := displayWidth(line); w > width {
			width = w
		}
	}
	line := strings.Repeat(string(delim), width)
	return "\n" + line + "\n" + body + "\n" + line
}

// MustFormat is like Format but panics on invalid options.
func MustFormat(opts Options, args ...any) string {
	s, err := Format(opts, args...)
	if err != nil {
		panic(err)
	}
	return s
}
