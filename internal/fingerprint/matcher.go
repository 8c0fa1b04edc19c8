package fingerprint

import (
	"fmt"
	"sort"
	"strings"

	"github.com/steveyegge/defects/internal/table"
)

// Mode selects which sub-verdicts make up Verdict.Overall. Driver,
// capabilities and options always count.
type Mode struct {
	IncludeIteration  bool
	IncludeDataSource bool
}

var (
	// Strict also requires the iteration to match. Used to decide whether an
	// open defect is the one to refresh for this data row.
	Strict = Mode{IncludeIteration: true}
	// Loose ignores the iteration. Used to hunt duplicates across every
	// iteration of a data-driven test.
	Loose = Mode{}
)

// WithDataSource returns a copy of m that also requires data-source equality.
func (m Mode) WithDataSource(on bool) Mode {
	m.IncludeDataSource = on
	return m
}

func (m Mode) String() string {
	s := "loose"
	if m.IncludeIteration {
		s = "strict"
	}
	if m.IncludeDataSource {
		s += "+data-source"
	}
	return s
}

// Verdict is the per-field outcome of a comparison. Problems lists the
// stored-side fields that could not be read; each counts as a mismatch.
type Verdict struct {
	Driver       bool `json:"driver"`
	Capabilities bool `json:"capabilities"`
	Options      bool `json:"options"`
	DataSource   bool `json:"data_source"`
	Iteration    bool `json:"iteration"`
	Overall      bool `json:"overall"`

	Mode     Mode            `json:"-"`
	Problems map[Field]error `json:"-"`
}

// Mismatches names the fields in scope for the verdict's mode that did not
// match, in document order.
func (v Verdict) Mismatches() []Field {
	var out []Field
	if !v.Driver {
		out = append(out, FieldDriver)
	}
	if v.Mode.IncludeIteration && !v.Iteration {
		out = append(out, FieldIteration)
	}
	if !v.Capabilities {
		out = append(out, FieldCapabilities)
	}
	if !v.Options {
		out = append(out, FieldOptions)
	}
	if v.Mode.IncludeDataSource && !v.DataSource {
		out = append(out, FieldDataSource)
	}
	return out
}

// Matcher compares live fingerprints against stored text after running both
// through the same normalization pipeline.
type Matcher struct {
	pipeline *Pipeline
}

// NewMatcher returns a matcher using p, or DefaultPipeline when p is nil.
func NewMatcher(p *Pipeline) *Matcher {
	if p == nil {
		p = DefaultPipeline()
	}
	return &Matcher{pipeline: p}
}

var defaultMatcher = NewMatcher(nil)

// Compare matches live against storedText with the default pipeline.
func Compare(live Fingerprint, storedText string, mode Mode) Verdict {
	return defaultMatcher.Compare(live, storedText, mode)
}

// Compare parses storedText and matches it against live.
func (m *Matcher) Compare(live Fingerprint, storedText string, mode Mode) Verdict {
	return m.CompareDocument(live, Parse(storedText), mode)
}

// CompareDocument matches live against an already parsed document. It never
// panics; a failure while canonicalizing a field is a mismatch for it.
func (m *Matcher) CompareDocument(live Fingerprint, doc *Document, mode Mode) Verdict {
	a := m.pipeline.Run(live)
	b := m.pipeline.Run(doc.Fingerprint)

	v := Verdict{Mode: mode, Problems: doc.Problems}
	ok := func(f Field) bool { return doc.Err(f) == nil }

	v.Driver = ok(FieldDriver) && doc.Has(FieldDriver) &&
		canonicalEqual(a.Driver, b.Driver)
	v.Iteration = ok(FieldIteration) && doc.Has(FieldIteration) &&
		a.Iteration == b.Iteration
	v.Capabilities = ok(FieldCapabilities) &&
		presentEqual(a.Capabilities != nil, b.Capabilities != nil, map[string]any(a.Capabilities), map[string]any(b.Capabilities))
	v.Options = ok(FieldOptions) &&
		presentEqual(a.Options != nil, b.Options != nil, map[string]any(a.Options), map[string]any(b.Options))
	v.DataSource = ok(FieldDataSource) &&
		presentEqual(a.DataSource != nil, b.DataSource != nil, rowsOf(a.DataSource), rowsOf(b.DataSource))

	v.Overall = v.Driver && v.Capabilities && v.Options
	if mode.IncludeIteration {
		v.Overall = v.Overall && v.Iteration
	}
	if mode.IncludeDataSource {
		v.Overall = v.Overall && v.DataSource
	}
	return v
}

// presentEqual applies the presence rule: one side present is a mismatch,
// neither side present is a match, both present compares canonical forms.
func presentEqual(livePresent, storedPresent bool, live, stored any) bool {
	switch {
	case livePresent != storedPresent:
		return false
	case !livePresent:
		return true
	default:
		return canonicalEqual(live, stored)
	}
}

func rowsOf(t *table.Table) any {
	if t == nil {
		return nil
	}
	rows := make([]any, len(t.Rows))
	for i, r := range t.Rows {
		rows[i] = map[string]any(r)
	}
	return rows
}

func canonicalEqual(a, b any) (equal bool) {
	defer func() {
		if recover() != nil {
			equal = false
		}
	}()
	return Canonical(a) == Canonical(b)
}

// Canonical renders v as an uppercase string with map keys sorted and
// whitespace collapsed. Structurally equal values that differ only in key
// order, letter case or spacing canonicalize identically. Formatting drift
// beyond that (e.g. "1.0" vs "1") is not reconciled.
func Canonical(v any) string {
	var sb strings.Builder
	writeCanonical(&sb, v)
	return strings.Join(strings.Fields(strings.ToUpper(sb.String())), " ")
}

func writeCanonical(sb *strings.Builder, v any) {
	switch x := v.(type) {
	case nil:
		sb.WriteString("null")
	case table.KeyValueMap:
		writeCanonical(sb, map[string]any(x))
	case table.Row:
		writeCanonical(sb, map[string]any(x))
	case map[string]any:
		keys := make([]string, 0, len(x))
		for k := range x {
			keys = append(keys, k)
		}
		sort.Slice(keys, func(i, j int) bool {
			return strings.ToUpper(keys[i]) < strings.ToUpper(keys[j])
		})
		sb.WriteByte('{')
		for i, k := range keys {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strings.TrimSpace(k))
			sb.WriteByte(':')
			writeCanonical(sb, x[k])
		}
		sb.WriteByte('}')
	case []any:
		sb.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			writeCanonical(sb, e)
		}
		sb.WriteByte(']')
	case []string:
		sb.WriteByte('[')
		for i, e := range x {
			if i > 0 {
				sb.WriteByte(',')
			}
			sb.WriteString(strings.TrimSpace(e))
		}
		sb.WriteByte(']')
	case string:
		sb.WriteString(strings.TrimSpace(x))
	default:
		sb.WriteString(strings.TrimSpace(table.FormatValue(x)))
	}
}

// Explain summarizes a verdict for logs, e.g. "strict: mismatch on Capabilities".
func (v Verdict) Explain() string {
	if v.Overall {
		return v.Mode.String() + ": match"
	}
	names := make([]string, 0, len(v.Mismatches()))
	for _, f := range v.Mismatches() {
		names = append(names, string(f))
	}
	return fmt.Sprintf("%s: mismatch on %s", v.Mode, strings.Join(names, ", "))
}
