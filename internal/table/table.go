// Package table holds the tabular and key/value value types shared by the
// fingerprint codec and the data-set merger, together with their text codecs.
//
// The text forms are the ones a Jira-style tracker renders natively:
//
//	||col1||col2||        header row
//	|v1|v2|               data row
//	{code:json}{...}{code} fenced key/value block
//
// Everything in this package is pure and safe for concurrent use.
package table

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Row maps a column name to a scalar or pre-serialized value.
type Row map[string]any

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Table is an ordered list of unique column names plus ordered rows.
// A table with zero columns is empty regardless of how many rows it holds.
type Table struct {
	Columns []string `json:"columns" yaml:"columns" toml:"columns"`
	Rows    []Row    `json:"rows" yaml:"rows" toml:"rows"`
}

// New creates a table with the given columns and no rows.
func New(columns ...string) Table {
	return Table{Columns: dedupe(columns)}
}

// FromRows builds a table whose columns are the union of the row keys in
// first-seen order. Keys new to a row are taken in sorted order so the result
// is deterministic.
func FromRows(rows []Row) Table {
	t := Table{Rows: rows}
	seen := make(map[string]bool)
	for _, row := range rows {
		keys := make([]string, 0, len(row))
		for k := range row {
			if !seen[k] {
				keys = append(keys, k)
			}
		}
		sort.Strings(keys)
		for _, k := range keys {
			seen[k] = true
			t.Columns = append(t.Columns, k)
		}
	}
	return t
}

// IsEmpty reports whether the table has no columns or no rows.
func (t Table) IsEmpty() bool {
	return len(t.Columns) == 0 || len(t.Rows) == 0
}

// Len returns the number of rows.
func (t Table) Len() int {
	return len(t.Rows)
}

// AddRow appends a row built positionally from values. Extra values are
// ignored; missing trailing values leave the cell absent.
func (t *Table) AddRow(values ...any) {
	row := make(Row, len(t.Columns))
	for i, col := range t.Columns {
		if i >= len(values) {
			break
		}
		row[col] = values[i]
	}
	t.Rows = append(t.Rows, row)
}

// Cell returns the stringified value of column col in row i.
func (t Table) Cell(i int, col string) string {
	if i < 0 || i >= len(t.Rows) {
		return ""
	}
	return FormatValue(t.Rows[i][col])
}

// Strings returns the table as a grid of stringified cells in column order.
func (t Table) Strings() [][]string {
	out := make([][]string, 0, len(t.Rows))
	for i := range t.Rows {
		line := make([]string, len(t.Columns))
		for j, col := range t.Columns {
			line[j] = t.Cell(i, col)
		}
		out = append(out, line)
	}
	return out
}

// KeyValueMap is a string-keyed map of scalars or nested JSON values, used for
// driver capabilities and options. Keys keep their case when encoded and are
// compared case-insensitively. A nil map means the section is absent.
type KeyValueMap map[string]any

// NormalizeKeys returns a copy of m with every key (recursively, for nested
// objects) upper-cased. When two keys collide after upper-casing, the one that
// sorts last in its original spelling wins.
func NormalizeKeys(m KeyValueMap) KeyValueMap {
	if m == nil {
		return nil
	}
	return KeyValueMap(normalizeObject(m))
}

func normalizeObject(m map[string]any) map[string]any {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make(map[string]any, len(m))
	for _, k := range keys {
		out[strings.ToUpper(k)] = normalizeValue(m[k])
	}
	return out
}

func normalizeValue(v any) any {
	switch val := v.(type) {
	case map[string]any:
		return normalizeObject(val)
	case KeyValueMap:
		return normalizeObject(val)
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = normalizeValue(item)
		}
		return out
	default:
		return v
	}
}

// FormatValue stringifies a cell value. Integral floats (the shape JSON numbers
// decode to) print without a fractional part; nested values print as JSON.
func FormatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		return val
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'f', -1, 32)
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	case fmt.Stringer:
		return val.String()
	case map[string]any, []any, KeyValueMap:
		data, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprint(val)
		}
		return string(data)
	default:
		return fmt.Sprint(val)
	}
}

func dedupe(columns []string) []string {
	seen := make(map[string]bool, len(columns))
	out := make([]string, 0, len(columns))
	for _, c := range columns {
		if seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
