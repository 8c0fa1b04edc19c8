package fingerprint

import (
	"strconv"
	"strings"

	"github.com/steveyegge/defects/internal/table"
)

// Render builds the document for fp. Sections always appear in the same
// order (environment table, iteration, capabilities, options, data source)
// so equal inputs produce byte-identical output. Absent or empty maps and
// data sources produce no section at all.
func Render(fp Fingerprint, opts table.CodecOptions) string {
	if opts.LineBreak == "" {
		opts.LineBreak = table.EscapedLineBreak
	}

	env := table.New(environmentColumns...)
	env.AddRow(string(FieldDriver), fp.Driver)
	if fp.Application != "" {
		env.AddRow(string(FieldApplication), fp.Application)
	}
	if fp.Platform != "" {
		env.AddRow(string(FieldPlatform), fp.Platform)
	}

	parts := []string{
		table.EncodeTable(env, opts),
		string(FieldIteration) + ": " + strconv.Itoa(fp.Iteration),
	}
	if block := table.EncodeMap(fp.Capabilities, opts); block != "" {
		parts = append(parts, heading(FieldCapabilities), block)
	}
	if block := table.EncodeMap(fp.Options, opts); block != "" {
		parts = append(parts, heading(FieldOptions), block)
	}
	if fp.DataSource != nil {
		if block := table.EncodeTable(*fp.DataSource, opts); block != "" {
			parts = append(parts, heading(FieldDataSource), block)
		}
	}
	return strings.Join(parts, opts.LineBreak)
}

// environmentColumns head the environment table of a rendered document.
var environmentColumns = []string{"Property", "Value"}

// IsEnvironmentTable reports whether columns are the environment table's
// header, ignoring case.
func IsEnvironmentTable(columns []string) bool {
	if len(columns) != len(environmentColumns) {
		return false
	}
	for i, c := range columns {
		if !strings.EqualFold(c, environmentColumns[i]) {
			return false
		}
	}
	return true
}

func heading(f Field) string {
	return "h4. " + string(f)
}
