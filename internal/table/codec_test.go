package table

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleTable() Table {
	t := New("user", "role", "attempts")
	t.AddRow("alice", "admin", 3)
	t.AddRow("bob", "viewer", 1)
	return t
}

func TestEncodeTable(t *testing.T) {
	got := EncodeTable(sampleTable(), DefaultCodecOptions())
	want := `||user||role||attempts||\r\n|alice|admin|3|\r\n|bob|viewer|1|`
	if got != want {
		t.Errorf("EncodeTable() = %q, want %q", got, want)
	}
}

func TestEncodeTable_Empty(t *testing.T) {
	tests := []struct {
		name  string
		table Table
	}{
		{"zero value", Table{}},
		{"columns no rows", New("a", "b")},
		{"rows no columns", Table{Rows: []Row{{"a": 1}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := EncodeTable(tt.table, DefaultCodecOptions()); got != "" {
				t.Errorf("EncodeTable() = %q, want empty", got)
			}
		})
	}
}

func TestEncodeTable_EmptyCellKeepsPosition(t *testing.T) {
	tbl := New("a", "b", "c")
	tbl.AddRow("1", "", "3")
	enc := EncodeTable(tbl, DefaultCodecOptions())
	assert.Contains(t, enc, "|1| |3|")

	dec := DecodeTable(enc)
	require.Equal(t, 1, dec.Len())
	assert.Equal(t, "", dec.Cell(0, "b"))
	assert.Equal(t, "3", dec.Cell(0, "c"))
}

func TestDecodeTable_RoundTrip(t *testing.T) {
	orig := sampleTable()
	got := DecodeTable(EncodeTable(orig, DefaultCodecOptions()))

	if diff := cmp.Diff(orig.Columns, got.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(orig.Strings(), got.Strings()); diff != "" {
		t.Errorf("cells mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTable_TrackerReformatted(t *testing.T) {
	// Real line breaks, padded pipes, a rendered horizontal rule and a blank line.
	text := "|| user || role ||\r\n|---|---|\r\n\r\n|  alice |admin  |\n| bob | viewer |"
	got := DecodeTable(text)

	if diff := cmp.Diff([]string{"user", "role"}, got.Columns); diff != "" {
		t.Errorf("columns mismatch (-want +got):\n%s", diff)
	}
	want := [][]string{{"alice", "admin"}, {"bob", "viewer"}}
	if diff := cmp.Diff(want, got.Strings()); diff != "" {
		t.Errorf("cells mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeTable_TooShort(t *testing.T) {
	tests := []string{
		"",
		"||a||b||",
		`||a||b||\r\n|----|----|`,
		"not a table at all",
	}
	for _, text := range tests {
		if got := DecodeTable(text); !got.IsEmpty() {
			t.Errorf("DecodeTable(%q) = %+v, want empty", text, got)
		}
	}
}

func TestDecodeTable_ShortRowLeavesCellsAbsent(t *testing.T) {
	got := DecodeTable(`||a||b||c||\r\n|1|2|`)
	require.Equal(t, 1, got.Len())
	_, ok := got.Rows[0]["c"]
	assert.False(t, ok, "missing trailing cell should be absent")
	assert.Equal(t, "2", got.Rows[0]["b"])
}

func TestEncodeMap(t *testing.T) {
	got := EncodeMap(KeyValueMap{"os": "win", "browserName": "chrome"}, DefaultCodecOptions())
	want := `{code:json}{"browserName":"chrome","os":"win"}{code}`
	if got != want {
		t.Errorf("EncodeMap() = %q, want %q", got, want)
	}

	if got := EncodeMap(nil, DefaultCodecOptions()); got != "" {
		t.Errorf("EncodeMap(nil) = %q, want empty", got)
	}
	if got := EncodeMap(KeyValueMap{}, DefaultCodecOptions()); got != "" {
		t.Errorf("EncodeMap(empty) = %q, want empty", got)
	}
}

func TestDecodeMap(t *testing.T) {
	tests := []struct {
		name string
		text string
		want KeyValueMap
	}{
		{"plain", `{code:json}{"os":"WIN"}{code}`, KeyValueMap{"os": "WIN"}},
		{"bare fence", `{code}{"a":1}{code}`, KeyValueMap{"a": float64(1)}},
		{"surrounding text", `*Capabilities*\r\n{code:json}{"a":"b"}{code}\r\n*Options*`, KeyValueMap{"a": "b"}},
		{"escaped line breaks inside", `{code:json}{\r\n"a":\n"b"}{code}`, KeyValueMap{"a": "b"}},
		{"real line breaks inside", "{code:json}{\n  \"a\": \"b\"\r\n}{code}", KeyValueMap{"a": "b"}},
		{"escaped quotes", `{code:json}{\"a\":\"b\"}{code}`, KeyValueMap{"a": "b"}},
		{"nested", `{code:json}{"a":{"b":[1,"x"]}}{code}`, KeyValueMap{"a": map[string]any{"b": []any{float64(1), "x"}}}},
		{"first block wins", `{code:json}{"a":1}{code} {code:json}{"b":2}{code}`, KeyValueMap{"a": float64(1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeMap(tt.text)
			require.NoError(t, err)
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("DecodeMap() mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestDecodeMap_Absent(t *testing.T) {
	for _, text := range []string{"", "no fence here", "{code:json}{code}", "{code:json}null{code}", "{code:json}{\"a\":1}"} {
		got, err := DecodeMap(text)
		if err != nil {
			t.Errorf("DecodeMap(%q) error = %v, want nil", text, err)
		}
		if got != nil {
			t.Errorf("DecodeMap(%q) = %v, want nil (absent)", text, got)
		}
	}
}

func TestDecodeMap_Malformed(t *testing.T) {
	got, err := DecodeMap(`{code:json}{"a": }{code}`)
	if got != nil {
		t.Errorf("DecodeMap() = %v, want nil", got)
	}
	var de *DecodeError
	if !errors.As(err, &de) {
		t.Fatalf("DecodeMap() error = %v, want *DecodeError", err)
	}
	if !strings.Contains(de.Error(), "decode") {
		t.Errorf("DecodeError.Error() = %q", de.Error())
	}
}

func TestMapRoundTrip_KeyCase(t *testing.T) {
	orig := KeyValueMap{"browserName": "chrome", "OS": "win", "nested": map[string]any{"Depth": "1"}}
	got, err := DecodeMap(EncodeMap(orig, DefaultCodecOptions()))
	require.NoError(t, err)
	if diff := cmp.Diff(NormalizeKeys(orig), NormalizeKeys(got)); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestCodecOptions(t *testing.T) {
	opts := CodecOptions{LineBreak: "\n"}
	got := EncodeTable(sampleTable(), opts)
	if strings.Contains(got, EscapedLineBreak) {
		t.Errorf("EncodeTable() with real line break still contains escape: %q", got)
	}
	if lines := strings.Split(got, "\n"); len(lines) != 3 {
		t.Errorf("EncodeTable() produced %d lines, want 3", len(lines))
	}
	if got := EncodeMap(KeyValueMap{"a": "b"}, opts); !strings.HasPrefix(got, "{code}") {
		t.Errorf("EncodeMap() without language = %q, want bare fence", got)
	}

	var zero CodecOptions
	if got := EncodeTable(sampleTable(), zero); !strings.Contains(got, EscapedLineBreak) {
		t.Errorf("zero CodecOptions should default to escaped line break, got %q", got)
	}
}

func TestMapRoundTrip_Escapes(t *testing.T) {
	orig := KeyValueMap{
		"binary":  `C:\new\chrome.exe`,
		"args":    `a\nb`,
		"script":  "line one\nline two\r\n",
		"quoted":  `say "hi"`,
		"crlf":    `\r\n`,
		"fenced":  "{code}x{code:json}",
		"unicode": "日本語 ✓",
	}
	got, err := DecodeMap(EncodeMap(orig, DefaultCodecOptions()))
	require.NoError(t, err)
	if diff := cmp.Diff(orig, got); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeMap_TrackerMadeBreaksReal(t *testing.T) {
	// "a\r\nb" encoded, then the escape written out as a real CRLF.
	got, err := DecodeMap("{code:json}{\"script\":\"a\r\nb\"}{code}")
	require.NoError(t, err)
	assert.Equal(t, KeyValueMap{"script": "a\r\nb"}, got)
}

func TestEncodeMap_FenceInValue(t *testing.T) {
	enc := EncodeMap(KeyValueMap{"a": "{code}"}, DefaultCodecOptions())
	assert.Equal(t, 2, strings.Count(enc, "{code"), "only the real fences: %s", enc)
}

func TestDecodeTable_BackslashCells(t *testing.T) {
	orig := New("path", "note")
	orig.AddRow(`C:\new`, `a\nb\tc`)
	got := DecodeTable(EncodeTable(orig, DefaultCodecOptions()))
	require.Equal(t, 1, got.Len())
	assert.Equal(t, `C:\new`, got.Cell(0, "path"))
	assert.Equal(t, `a\nb\tc`, got.Cell(0, "note"))
}

func TestSplitLines(t *testing.T) {
	got := SplitLines("a" + EscapedLineBreak + `b\nc` + "\r\nd\re\nf")
	want := []string{"a", `b\nc`, "d", "e", "f"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitLines() mismatch (-want +got):\n%s", diff)
	}
}

func TestIsHeaderRow(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"||a||b||", true},
		{"  || Property || Value ||  ", true},
		{"||Driver|Chrome|", false},
		{"|Driver|Chrome|", false},
		{"|a||b|", false},
		{"text", false},
	}
	for _, tt := range tests {
		if got := IsHeaderRow(tt.line); got != tt.want {
			t.Errorf("IsHeaderRow(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}
