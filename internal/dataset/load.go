package dataset

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/steveyegge/defects/internal/table"
)

// LoadFile reads a table from disk. The format follows the extension:
//
//	.json        array of row objects, or {"columns": [...], "rows": [...]}
//	.yaml, .yml  same two shapes as JSON
//	.toml        columns = [...] plus [[rows]] tables
//	.csv         header line, then one row per line
func LoadFile(path string) (table.Table, error) {
	// #nosec G304 - path is supplied by the operator on the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return table.Table{}, fmt.Errorf("reading data set: %w", err)
	}

	var t table.Table
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		t, err = parseJSON(data)
	case ".yaml", ".yml":
		t, err = parseYAML(data)
	case ".toml":
		t, err = parseTOML(data)
	case ".csv":
		t, err = parseCSV(data)
	default:
		return table.Table{}, fmt.Errorf("unsupported data set format %q (want .json, .yaml, .toml or .csv)", ext)
	}
	if err != nil {
		return table.Table{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return t, nil
}

func parseJSON(data []byte) (table.Table, error) {
	if bytes.HasPrefix(bytes.TrimSpace(data), []byte("[")) {
		var rows []table.Row
		if err := json.Unmarshal(data, &rows); err != nil {
			return table.Table{}, err
		}
		return table.FromRows(rows), nil
	}
	var t table.Table
	if err := json.Unmarshal(data, &t); err != nil {
		return table.Table{}, err
	}
	return complete(t), nil
}

func parseYAML(data []byte) (table.Table, error) {
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return table.Table{}, err
	}
	if len(node.Content) > 0 && node.Content[0].Kind == yaml.SequenceNode {
		var rows []table.Row
		if err := node.Decode(&rows); err != nil {
			return table.Table{}, err
		}
		return table.FromRows(rows), nil
	}
	var t table.Table
	if err := node.Decode(&t); err != nil {
		return table.Table{}, err
	}
	return complete(t), nil
}

func parseTOML(data []byte) (table.Table, error) {
	var t table.Table
	if _, err := toml.Decode(string(data), &t); err != nil {
		return table.Table{}, err
	}
	return complete(t), nil
}

func parseCSV(data []byte) (table.Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.TrimLeadingSpace = true
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return table.Table{}, err
	}
	if len(records) == 0 {
		return table.Table{}, nil
	}
	header := records[0]
	t := table.New(header...)
	for _, rec := range records[1:] {
		row := make(table.Row, len(t.Columns))
		for i, col := range header {
			if _, dup := row[col]; dup || i >= len(rec) {
				continue
			}
			row[col] = rec[i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t, nil
}

// complete appends any row keys missing from the declared columns, keeping
// row keys a subset of the columns.
func complete(t table.Table) table.Table {
	if len(t.Columns) == 0 {
		return table.FromRows(t.Rows)
	}
	extra := table.FromRows(t.Rows)
	declared := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		declared[c] = true
	}
	for _, c := range extra.Columns {
		if !declared[c] {
			t.Columns = append(t.Columns, c)
		}
	}
	return t
}
