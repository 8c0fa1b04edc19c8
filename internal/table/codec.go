package table

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// DecodeError reports a malformed table or JSON fragment. It never escapes
// the matcher; callers treat the field as absent.
type DecodeError struct {
	Fragment string
	Err      error
}

func (e *DecodeError) Error() string {
	frag := e.Fragment
	if len(frag) > 60 {
		frag = frag[:57] + "..."
	}
	return fmt.Sprintf("decode %q: %v", frag, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var (
	separatorLine = regexp.MustCompile(`^(\|-+)+\|?$`)
	fencedBlock   = regexp.MustCompile(`(?s)\{code(?::[A-Za-z0-9_-]*)?\}(.*?)\{code\}`)
)

// EncodeTable renders t as a header row followed by one line per row.
// Cell values are not escaped: callers must not put a literal "|" in a cell.
// Empty cells are written as a single space so trackers do not read "||" as a
// header marker. An empty table encodes to "".
func EncodeTable(t Table, opts CodecOptions) string {
	if t.IsEmpty() {
		return ""
	}
	opts = opts.withDefaults()

	lines := make([]string, 0, len(t.Rows)+1)
	lines = append(lines, "||"+strings.Join(t.Columns, "||")+"||")
	for _, cells := range t.Strings() {
		for i, c := range cells {
			if c == "" {
				cells[i] = " "
			}
		}
		lines = append(lines, "|"+strings.Join(cells, "|")+"|")
	}
	return strings.Join(lines, opts.LineBreak)
}

// DecodeTable parses a pipe table. Rows are split on the escaped line break
// as well as real line breaks; separator rules, blank lines and lines that are
// not pipe rows are dropped. The first surviving line holds the headers.
// Fewer than two surviving lines decode to an empty table.
func DecodeTable(text string) Table {
	var lines []string
	for _, line := range SplitLines(text) {
		line = strings.TrimSpace(line)
		if line == "" || !strings.HasPrefix(line, "|") {
			continue
		}
		if separatorLine.MatchString(strings.ReplaceAll(line, " ", "")) {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) < 2 {
		return Table{}
	}

	var headers []string
	for _, h := range strings.Split(lines[0], "|") {
		if h = strings.TrimSpace(h); h != "" {
			headers = append(headers, h)
		}
	}
	t := New(headers...)
	if len(t.Columns) == 0 {
		return Table{}
	}

	for _, line := range lines[1:] {
		cells := splitDataRow(line)
		row := make(Row, len(t.Columns))
		for i, col := range t.Columns {
			if i >= len(cells) {
				break
			}
			row[col] = cells[i]
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// splitDataRow splits "|a| b |c|" into trimmed cells, dropping only the empty
// leading and trailing tokens so empty middle cells keep their position.
func splitDataRow(line string) []string {
	tokens := strings.Split(line, "|")
	if len(tokens) > 0 && strings.TrimSpace(tokens[0]) == "" {
		tokens = tokens[1:]
	}
	if n := len(tokens); n > 0 && strings.TrimSpace(tokens[n-1]) == "" {
		tokens = tokens[:n-1]
	}
	for i := range tokens {
		tokens[i] = strings.TrimSpace(tokens[i])
	}
	return tokens
}

// SplitLines splits text on the escaped line break and on real line breaks.
// A lone escaped `\n` is cell content (a Windows path, say), not a break.
func SplitLines(text string) []string {
	r := strings.NewReplacer(
		EscapedLineBreak, "\n",
		"\r\n", "\n",
		"\r", "\n",
	)
	return strings.Split(r.Replace(text), "\n")
}

// IsHeaderRow reports whether line is made only of header cells, as in
// "||a||b||". Jira's row-header form "||Driver|Chrome|" is not.
func IsHeaderRow(line string) bool {
	line = strings.TrimSpace(line)
	if !strings.HasPrefix(line, "||") {
		return false
	}
	return !strings.Contains(strings.ReplaceAll(line, "||", ""), "|")
}

// EncodeMap renders m as a JSON object inside a fenced block. A nil or empty
// map is not emitted and encodes to "". A "{code" inside a string value is
// written with a unicode escape so it cannot close the fence.
func EncodeMap(m KeyValueMap, opts CodecOptions) string {
	if len(m) == 0 {
		return ""
	}
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	body := strings.ReplaceAll(string(data), "{code", `{\u0063ode`)
	return opts.OpenFence() + body + CloseFence
}

// DecodeMap locates the first fenced block in text and parses its JSON body.
// The body is parsed as written first; tracker damage (line breaks made real,
// breaks inserted between tokens, escaped quotes) is undone only when that
// fails. No fenced block (or an empty one) decodes to nil with no error: the
// map is absent, not empty.
func DecodeMap(text string) (KeyValueMap, error) {
	m := fencedBlock.FindStringSubmatch(text)
	if m == nil {
		return nil, nil
	}

	body := strings.TrimSpace(m[1])
	if strings.TrimSpace(stripBreaks(body)) == "" {
		return nil, nil
	}

	var firstErr error
	for _, candidate := range repairs(body) {
		var out KeyValueMap
		err := json.Unmarshal([]byte(candidate), &out)
		if err == nil {
			if out == nil {
				// A literal "null" body.
				return nil, nil
			}
			return out, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, &DecodeError{Fragment: body, Err: firstErr}
}

// repairs lists the readings of a fenced body to try, most faithful first.
func repairs(body string) []string {
	// Real breaks inside JSON strings were escapes before the tracker saw them.
	reescaped := strings.NewReplacer("\r\n", EscapedLineBreak, "\n", `\n`, "\r", `\r`).Replace(body)
	stripped := strings.TrimSpace(stripBreaks(body))
	unquoted := strings.NewReplacer(`\"`, `"`, `\\`, `\`).Replace(stripped)
	return []string{body, reescaped, stripped, unquoted}
}

// stripBreaks drops real line breaks and escaped `\r\n`, `\r` and `\n`
// tokens.
func stripBreaks(s string) string {
	return strings.NewReplacer(
		EscapedLineBreak, "", `\r`, "", `\n`, "",
		"\r", "", "\n", "",
	).Replace(s)
}
