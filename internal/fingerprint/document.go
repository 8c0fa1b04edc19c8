package fingerprint

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/steveyegge/defects/internal/table"
)

// AmbiguousError reports that a section label was found but did not lead to
// exactly one candidate value.
type AmbiguousError struct {
	Field  Field
	Labels int // occurrences of the label
	Blocks int // candidate blocks found in the section
}

func (e *AmbiguousError) Error() string {
	if e.Labels > 1 {
		return fmt.Sprintf("%s: label appears %d times", e.Field, e.Labels)
	}
	return fmt.Sprintf("%s: found %d candidate blocks", e.Field, e.Blocks)
}

// FieldError wraps a decode failure for one field.
type FieldError struct {
	Field Field
	Err   error
}

func (e *FieldError) Error() string { return string(e.Field) + ": " + e.Err.Error() }
func (e *FieldError) Unwrap() error { return e.Err }

type kind int

const (
	kindCell   kind = iota // value in the table cell after the label cell
	kindScalar             // first integer after the label
	kindFence              // nearest fenced block in the labelled section
	kindTable              // pipe table directly under the label
)

type extractor struct {
	field Field
	kind  kind
}

// extractors run in order against one parsed line model.
var extractors = []extractor{
	{FieldDriver, kindCell},
	{FieldApplication, kindCell},
	{FieldPlatform, kindCell},
	{FieldIteration, kindScalar},
	{FieldCapabilities, kindFence},
	{FieldOptions, kindFence},
	{FieldDataSource, kindTable},
}

var (
	headingPrefix = regexp.MustCompile(`^h[1-6]\.\s*`)
	iterationRe   = regexp.MustCompile(`(?i)on\s+iteration\D*?(-?\d+)`)
)

// Document is the parsed form of stored defect text. Fingerprint holds every
// value that could be decoded; Problems holds, per field, why a value could
// not be. A field that is neither decoded nor in Problems was not present.
type Document struct {
	Fingerprint Fingerprint
	Problems    map[Field]error

	found map[Field]bool
}

// Has reports whether the field's label was found in the text.
func (d *Document) Has(f Field) bool { return d.found[f] }

// Err returns the problem recorded for f, if any.
func (d *Document) Err(f Field) error { return d.Problems[f] }

func (d *Document) fail(f Field, err error) {
	if d.Problems == nil {
		d.Problems = make(map[Field]error)
	}
	d.Problems[f] = err
}

// lines is the normalized line model: fenced blocks are lifted out before the
// text is split so their JSON survives untouched, and each block is replaced
// by a placeholder line.
type lines struct {
	text   []string
	fences []string
}

const fencePlaceholder = "\x00fence:"

// blockRe matches, leftmost first, either a fenced block or a {noformat}
// block. Preformatted text (failure details, logs) never holds fingerprint
// fields and is dropped; fences are lifted out.
var blockRe = regexp.MustCompile(`(?s)\{noformat\}.*?\{noformat\}|\{code(?::[A-Za-z0-9_-]*)?\}.*?\{code\}`)

func splitDocument(text string) lines {
	var l lines
	text = blockRe.ReplaceAllStringFunc(text, func(block string) string {
		if strings.HasPrefix(block, "{noformat}") {
			return "\n"
		}
		l.fences = append(l.fences, block)
		return "\n" + fencePlaceholder + strconv.Itoa(len(l.fences)-1) + "\n"
	})
	for _, line := range table.SplitLines(text) {
		if line = strings.TrimSpace(line); line != "" {
			l.text = append(l.text, line)
		}
	}
	return l
}

func (l lines) fence(line string) (string, bool) {
	if !strings.HasPrefix(line, fencePlaceholder) {
		return "", false
	}
	i, err := strconv.Atoi(strings.TrimPrefix(line, fencePlaceholder))
	if err != nil || i < 0 || i >= len(l.fences) {
		return "", false
	}
	return l.fences[i], true
}

// isLabel reports whether line is a section label line for f, tolerating
// heading markup, emphasis and a trailing colon.
func isLabel(line string, f Field) bool {
	line = headingPrefix.ReplaceAllString(line, "")
	line = strings.Trim(line, "*_#: \t")
	return strings.EqualFold(line, string(f))
}

func isSectionLabel(line string) bool {
	for _, ex := range extractors {
		if (ex.kind == kindFence || ex.kind == kindTable) && isLabel(line, ex.field) {
			return true
		}
	}
	return false
}

// Parse extracts every known field from text. It never fails: anything it
// cannot read is recorded in Document.Problems.
func Parse(text string) *Document {
	doc := &Document{found: make(map[Field]bool)}
	l := splitDocument(text)
	for _, ex := range extractors {
		switch ex.kind {
		case kindCell:
			extractCell(doc, l, ex.field)
		case kindScalar:
			extractIteration(doc, l)
		case kindFence:
			extractFence(doc, l, ex.field)
		case kindTable:
			extractTable(doc, l, ex.field)
		}
	}
	return doc
}

func extractCell(doc *Document, l lines, f Field) {
	for _, line := range l.text {
		// Header rows ("||a||b||") never carry environment values; the
		// row-header form "||Driver|Chrome|" does.
		if !strings.HasPrefix(line, "|") || table.IsHeaderRow(line) {
			continue
		}
		cells := strings.Split(line, "|")
		for i := 0; i < len(cells)-1; i++ {
			if strings.EqualFold(strings.Trim(cells[i], "* \t"), string(f)) {
				doc.found[f] = true
				setCell(doc, f, strings.Trim(cells[i+1], "* \t"))
				return
			}
		}
	}
}

func setCell(doc *Document, f Field, v string) {
	switch f {
	case FieldDriver:
		doc.Fingerprint.Driver = v
	case FieldApplication:
		doc.Fingerprint.Application = v
	case FieldPlatform:
		doc.Fingerprint.Platform = v
	}
}

func extractIteration(doc *Document, l lines) {
	for _, line := range l.text {
		m := iterationRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			doc.fail(FieldIteration, &FieldError{Field: FieldIteration, Err: err})
			return
		}
		doc.found[FieldIteration] = true
		doc.Fingerprint.Iteration = n
		return
	}
	doc.fail(FieldIteration, &FieldError{Field: FieldIteration, Err: fmt.Errorf("no iteration number")})
}

// labelIndex returns the line index of f's label, or -1. More than one label
// is ambiguous.
func labelIndex(doc *Document, l lines, f Field) int {
	idx, count := -1, 0
	for i, line := range l.text {
		if isLabel(line, f) {
			if count == 0 {
				idx = i
			}
			count++
		}
	}
	if count == 0 {
		return -1
	}
	doc.found[f] = true
	if count > 1 {
		doc.fail(f, &AmbiguousError{Field: f, Labels: count})
		return -1
	}
	return idx
}

func extractFence(doc *Document, l lines, f Field) {
	idx := labelIndex(doc, l, f)
	if idx < 0 {
		return
	}
	for _, line := range l.text[idx+1:] {
		if isSectionLabel(line) {
			break
		}
		block, ok := l.fence(line)
		if !ok {
			continue
		}
		m, err := table.DecodeMap(block)
		if err != nil {
			doc.fail(f, &FieldError{Field: f, Err: err})
			return
		}
		if f == FieldCapabilities {
			doc.Fingerprint.Capabilities = m
		} else {
			doc.Fingerprint.Options = m
		}
		return
	}
	doc.fail(f, &AmbiguousError{Field: f, Labels: 1})
}

func extractTable(doc *Document, l lines, f Field) {
	idx := labelIndex(doc, l, f)
	if idx < 0 {
		return
	}
	var rows []string
	for _, line := range l.text[idx+1:] {
		if !strings.HasPrefix(line, "|") {
			break
		}
		rows = append(rows, line)
	}
	if len(rows) == 0 {
		doc.fail(f, &AmbiguousError{Field: f, Labels: 1})
		return
	}
	t := table.DecodeTable(strings.Join(rows, "\n"))
	if len(t.Columns) == 0 {
		doc.fail(f, &FieldError{Field: f, Err: fmt.Errorf("unreadable table")})
		return
	}
	doc.Fingerprint.DataSource = &t
}
