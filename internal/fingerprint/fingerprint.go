// Package fingerprint renders the identity of one test execution into the
// text document stored in a defect's description, and recognizes that
// identity again in text a tracker hands back, possibly reformatted.
//
// A rendered document looks like this (line breaks are the escaped `\r\n`
// token by default):
//
//	||Property||Value||
//	|Driver|Chrome|
//	|Platform|Windows 11|
//	On Iteration: 2
//	h4. Capabilities
//	{code:json}{"os":"win"}{code}
//	h4. Options
//	{code:json}{"headless":true}{code}
//	h4. Local Data Source
//	||user||locale||
//	|alice|en-US|
//
// Render, Parse and Compare are pure functions and safe for concurrent use.
package fingerprint

import (
	"github.com/steveyegge/defects/internal/table"
)

// Field names one extractable part of a document. The value is the label the
// part is rendered under.
type Field string

const (
	FieldDriver       Field = "Driver"
	FieldApplication  Field = "Application Under Test"
	FieldPlatform     Field = "Platform"
	FieldIteration    Field = "On Iteration"
	FieldCapabilities Field = "Capabilities"
	FieldOptions      Field = "Options"
	FieldDataSource   Field = "Local Data Source"
)

// Fingerprint is the identity of one test execution. Nil maps and a nil data
// source mean the part is absent, which is distinct from an empty value until
// normalization (see DefaultPipeline).
type Fingerprint struct {
	Driver       string            `json:"driver" yaml:"driver"`
	Application  string            `json:"application,omitempty" yaml:"application,omitempty"`
	Platform     string            `json:"platform,omitempty" yaml:"platform,omitempty"`
	Capabilities table.KeyValueMap `json:"capabilities,omitempty" yaml:"capabilities,omitempty"`
	Options      table.KeyValueMap `json:"options,omitempty" yaml:"options,omitempty"`
	DataSource   *table.Table      `json:"data_source,omitempty" yaml:"data_source,omitempty"`
	Iteration    int               `json:"iteration" yaml:"iteration"`
}

// WithDataRow returns a copy of fp whose data source is the single row at
// index i of ds, and whose iteration is i. Out-of-range indexes leave the data
// source absent.
func (fp Fingerprint) WithDataRow(ds table.Table, i int) Fingerprint {
	fp.Iteration = i
	fp.DataSource = nil
	if i >= 0 && i < ds.Len() && len(ds.Columns) > 0 {
		row := table.Table{
			Columns: append([]string(nil), ds.Columns...),
			Rows:    []table.Row{ds.Rows[i].Clone()},
		}
		fp.DataSource = &row
	}
	return fp
}
