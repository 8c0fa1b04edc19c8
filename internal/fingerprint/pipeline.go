package fingerprint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/defects/internal/table"
)

// Stage is one named normalization step. Apply must be pure: it receives a
// copy and returns the normalized value.
type Stage struct {
	Name  string
	Order int
	Apply func(Fingerprint) Fingerprint
}

// Pipeline runs stages in ascending Order.
type Pipeline struct {
	stages []Stage
}

// NewPipeline validates and orders stages. Two stages with the same Order, an
// unnamed stage or a stage without Apply is a construction error.
func NewPipeline(stages ...Stage) (*Pipeline, error) {
	seen := make(map[int]string, len(stages))
	for _, s := range stages {
		if s.Name == "" || s.Apply == nil {
			return nil, fmt.Errorf("pipeline stage at order %d needs a name and a function", s.Order)
		}
		if other, dup := seen[s.Order]; dup {
			return nil, fmt.Errorf("pipeline stages %q and %q share order %d", other, s.Name, s.Order)
		}
		seen[s.Order] = s.Name
	}
	sorted := append([]Stage(nil), stages...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Order < sorted[j].Order })
	return &Pipeline{stages: sorted}, nil
}

// Run applies every stage to fp in order.
func (p *Pipeline) Run(fp Fingerprint) Fingerprint {
	for _, s := range p.stages {
		fp = s.Apply(fp)
	}
	return fp
}

// Names lists the stage names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name
	}
	return names
}

// Default stages.
var (
	TrimEnvironment = Stage{Name: "trim-environment", Order: 10, Apply: trimEnvironment}
	DropEmptyMaps   = Stage{Name: "drop-empty-maps", Order: 20, Apply: dropEmptyMaps}
	StringifyCells  = Stage{Name: "stringify-cells", Order: 30, Apply: stringifyCells}
	DropEmptyCols   = Stage{Name: "drop-empty-columns", Order: 40, Apply: dropEmptyColumns}
)

// DefaultPipeline returns the stages both sides of a comparison go through.
func DefaultPipeline() *Pipeline {
	p, err := NewPipeline(TrimEnvironment, DropEmptyMaps, StringifyCells, DropEmptyCols)
	if err != nil {
		panic(err) // static stage list
	}
	return p
}

func trimEnvironment(fp Fingerprint) Fingerprint {
	fp.Driver = strings.TrimSpace(fp.Driver)
	fp.Application = strings.TrimSpace(fp.Application)
	fp.Platform = strings.TrimSpace(fp.Platform)
	return fp
}

// dropEmptyMaps turns present-but-empty maps and tables into absent ones,
// since neither renders a section.
func dropEmptyMaps(fp Fingerprint) Fingerprint {
	if len(fp.Capabilities) == 0 {
		fp.Capabilities = nil
	}
	if len(fp.Options) == 0 {
		fp.Options = nil
	}
	if fp.DataSource != nil && fp.DataSource.IsEmpty() {
		fp.DataSource = nil
	}
	return fp
}

// stringifyCells formats every declared data-source cell the way the table
// codec writes it, so live values compare equal to decoded text. Missing
// cells become "", as they do after a round trip.
func stringifyCells(fp Fingerprint) Fingerprint {
	if fp.DataSource == nil {
		return fp
	}
	ds := table.Table{Columns: append([]string(nil), fp.DataSource.Columns...)}
	for _, r := range fp.DataSource.Rows {
		row := make(table.Row, len(ds.Columns))
		for _, col := range ds.Columns {
			row[col] = strings.TrimSpace(table.FormatValue(r[col]))
		}
		ds.Rows = append(ds.Rows, row)
	}
	fp.DataSource = &ds
	return fp
}

// dropEmptyColumns removes data-source columns with no non-empty cell.
func dropEmptyColumns(fp Fingerprint) Fingerprint {
	if fp.DataSource == nil {
		return fp
	}
	ds := table.Table{}
	for _, col := range fp.DataSource.Columns {
		for _, r := range fp.DataSource.Rows {
			if v, ok := r[col]; ok && table.FormatValue(v) != "" {
				ds.Columns = append(ds.Columns, col)
				break
			}
		}
	}
	for _, r := range fp.DataSource.Rows {
		row := make(table.Row, len(ds.Columns))
		for _, col := range ds.Columns {
			if v, ok := r[col]; ok {
				row[col] = v
			}
		}
		ds.Rows = append(ds.Rows, row)
	}
	if ds.IsEmpty() {
		fp.DataSource = nil
	} else {
		fp.DataSource = &ds
	}
	return fp
}
