package style

import (
	"regexp"
	"strings"
)

// Align controls horizontal placement within a column.
type Align int

const (
	AlignLeft Align = iota
	AlignRight
	AlignCenter
)

// Column describes one table column. Width is the visible character
// budget; longer cell values are truncated with an ellipsis.
type Column struct {
	Name  string
	Width int
	Align Align
}

// Table renders aligned columnar output. Cell values may carry ANSI
// styling; alignment is computed on the stripped text.
type Table struct {
	columns   []Column
	rows      [][]string
	indent    string
	headerSep bool
}

const columnGap = "  "

// NewTable returns a table with the given columns, a two-space indent,
// and a separator line under the header.
func NewTable(columns ...Column) *Table {
	return &Table{
		columns:   columns,
		indent:    "  ",
		headerSep: true,
	}
}

// SetIndent sets the prefix written before every line.
func (t *Table) SetIndent(indent string) *Table {
	t.indent = indent
	return t
}

// SetHeaderSeparator toggles the rule under the header row.
func (t *Table) SetHeaderSeparator(on bool) *Table {
	t.headerSep = on
	return t
}

// AddRow appends a row. Missing cells are padded with empty strings;
// extra cells are dropped.
func (t *Table) AddRow(values ...string) *Table {
	row := make([]string, len(t.columns))
	for i := range row {
		if i < len(values) {
			row[i] = values[i]
		}
	}
	t.rows = append(t.rows, row)
	return t
}

// Render returns the formatted table, one trailing newline per line.
func (t *Table) Render() string {
	if len(t.columns) == 0 {
		return ""
	}

	var b strings.Builder

	cells := make([]string, len(t.columns))
	for i, col := range t.columns {
		cells[i] = t.pad(Bold.Render(col.Name), col.Name, col.Width, col.Align)
	}
	b.WriteString(t.indent)
	b.WriteString(strings.Join(cells, columnGap))
	b.WriteString("\n")

	if t.headerSep {
		total := 0
		for i, col := range t.columns {
			if i > 0 {
				total += len(columnGap)
			}
			total += col.Width
		}
		b.WriteString(t.indent)
		b.WriteString(Dim.Render(strings.Repeat("─", total)))
		b.WriteString("\n")
	}

	for _, row := range t.rows {
		for i, col := range t.columns {
			styled := row[i]
			plain := stripAnsi(styled)
			if len(plain) > col.Width {
				// Truncation drops any styling; slicing inside escape
				// sequences would corrupt the output.
				plain = truncate(plain, col.Width)
				styled = plain
			}
			cells[i] = t.pad(styled, plain, col.Width, col.Align)
		}
		b.WriteString(t.indent)
		b.WriteString(strings.Join(cells, columnGap))
		b.WriteString("\n")
	}

	return b.String()
}

// pad aligns styled within width using the visible length of plain.
// Text at or over the width is returned untouched.
func (t *Table) pad(styled, plain string, width int, align Align) string {
	gap := width - len(plain)
	if gap <= 0 {
		return styled
	}
	switch align {
	case AlignRight:
		return strings.Repeat(" ", gap) + styled
	case AlignCenter:
		left := gap / 2
		return strings.Repeat(" ", left) + styled + strings.Repeat(" ", gap-left)
	default:
		return styled + strings.Repeat(" ", gap)
	}
}

func truncate(s string, width int) string {
	r := []rune(s)
	if len(r) <= width {
		return s
	}
	if width <= 3 {
		return string(r[:width])
	}
	return string(r[:width-3]) + "..."
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;]*m`)

// stripAnsi removes ANSI color sequences for width math.
func stripAnsi(s string) string {
	return ansiPattern.ReplaceAllString(s, "")
}
