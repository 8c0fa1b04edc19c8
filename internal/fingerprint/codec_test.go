package fingerprint

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/defects/internal/table"
)

func sampleFingerprint() Fingerprint {
	ds := table.New("user")
	ds.AddRow("alice")
	return Fingerprint{
		Driver:       "Chrome",
		Platform:     "Windows 11",
		Iteration:    2,
		Capabilities: table.KeyValueMap{"os": "win"},
		Options:      table.KeyValueMap{"headless": true},
		DataSource:   &ds,
	}
}

func TestRender(t *testing.T) {
	got := Render(sampleFingerprint(), table.DefaultCodecOptions())
	want := `||Property||Value||\r\n|Driver|Chrome|\r\n|Platform|Windows 11|\r\n` +
		`On Iteration: 2\r\n` +
		`h4. Capabilities\r\n{code:json}{"os":"win"}{code}\r\n` +
		`h4. Options\r\n{code:json}{"headless":true}{code}\r\n` +
		`h4. Local Data Source\r\n||user||\r\n|alice|`
	if got != want {
		t.Errorf("Render() mismatch\n got: %s\nwant: %s", got, want)
	}
}

func TestRender_Deterministic(t *testing.T) {
	fp := sampleFingerprint()
	fp.Capabilities = table.KeyValueMap{"z": 1, "a": "x", "m": []any{"b", "a"}}
	first := Render(fp, table.DefaultCodecOptions())
	for i := 0; i < 20; i++ {
		require.Equal(t, first, Render(fp, table.DefaultCodecOptions()))
	}
}

func TestRender_OmitsAbsentSections(t *testing.T) {
	tests := []struct {
		name string
		fp   Fingerprint
	}{
		{"nil maps", Fingerprint{Driver: "Firefox"}},
		{"empty maps", Fingerprint{Driver: "Firefox", Capabilities: table.KeyValueMap{}, Options: table.KeyValueMap{}}},
		{"empty data source", Fingerprint{Driver: "Firefox", DataSource: &table.Table{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Render(tt.fp, table.DefaultCodecOptions())
			for _, label := range []Field{FieldCapabilities, FieldOptions, FieldDataSource, FieldPlatform} {
				assert.NotContains(t, got, string(label))
			}
			assert.Contains(t, got, "|Driver|Firefox|")
			assert.Contains(t, got, "On Iteration: 0")
		})
	}
}

func TestRender_RealLineBreaks(t *testing.T) {
	opts := table.CodecOptions{LineBreak: "\n", FenceLanguage: "json"}
	got := Render(sampleFingerprint(), opts)
	assert.NotContains(t, got, `\r\n`)
	assert.Equal(t, 11, len(strings.Split(got, "\n")))
}

func TestRenderParse_RoundTrip(t *testing.T) {
	fp := sampleFingerprint()
	fp.Application = "Storefront"
	doc := Parse(Render(fp, table.DefaultCodecOptions()))

	require.Empty(t, doc.Problems)
	got := doc.Fingerprint
	assert.Equal(t, "Chrome", got.Driver)
	assert.Equal(t, "Storefront", got.Application)
	assert.Equal(t, "Windows 11", got.Platform)
	assert.Equal(t, 2, got.Iteration)
	if diff := cmp.Diff(table.KeyValueMap{"os": "win"}, got.Capabilities); diff != "" {
		t.Errorf("Capabilities mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(table.KeyValueMap{"headless": true}, got.Options); diff != "" {
		t.Errorf("Options mismatch (-want +got):\n%s", diff)
	}
	require.NotNil(t, got.DataSource)
	assert.Equal(t, []string{"user"}, got.DataSource.Columns)
	assert.Equal(t, "alice", got.DataSource.Cell(0, "user"))
}

func TestWithDataRow(t *testing.T) {
	ds := table.New("user", "locale")
	ds.AddRow("alice", "en")
	ds.AddRow("bob", "de")

	fp := Fingerprint{Driver: "Chrome"}.WithDataRow(ds, 1)
	assert.Equal(t, 1, fp.Iteration)
	require.NotNil(t, fp.DataSource)
	assert.Equal(t, 1, fp.DataSource.Len())
	assert.Equal(t, "bob", fp.DataSource.Cell(0, "user"))

	fp.DataSource.Rows[0]["user"] = "mallory"
	assert.Equal(t, "bob", ds.Cell(1, "user"), "WithDataRow must copy the row")

	out := Fingerprint{Driver: "Chrome"}.WithDataRow(ds, 5)
	assert.Nil(t, out.DataSource)
}
