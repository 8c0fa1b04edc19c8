package ui

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/steveyegge/defects/internal/fingerprint"
)

func TestVerdictMarkdown(t *testing.T) {
	v := fingerprint.Verdict{
		Driver:       true,
		Capabilities: false,
		Options:      true,
		Iteration:    true,
		Mode:         fingerprint.Strict,
		Problems: map[fingerprint.Field]error{
			fingerprint.FieldCapabilities: errors.New("invalid JSON"),
		},
	}
	got := VerdictMarkdown(v)

	assert.True(t, strings.HasPrefix(got, "## mismatch (strict)\n"))
	assert.Contains(t, got, "| Driver | match |")
	assert.Contains(t, got, "| On Iteration | match |")
	assert.Contains(t, got, "| Capabilities | **mismatch** (unreadable: invalid JSON) |")
	assert.Contains(t, got, "| Local Data Source | ignored |")
}

func TestVerdictMarkdown_LooseIgnoresIteration(t *testing.T) {
	v := fingerprint.Verdict{Driver: true, Capabilities: true, Options: true, Overall: true, Mode: fingerprint.Loose.WithDataSource(true), DataSource: true}
	got := VerdictMarkdown(v)
	assert.True(t, strings.HasPrefix(got, "## match (loose+data-source)\n"))
	assert.Contains(t, got, "| On Iteration | ignored |")
	assert.Contains(t, got, "| Local Data Source | match |")
}

func TestRenderVerdict(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	v := fingerprint.Verdict{Driver: true, Options: true, Mode: fingerprint.Loose}
	got := RenderVerdict(v)
	first, _, _ := strings.Cut(got, "\n")
	if want := "✗ loose: mismatch on Capabilities"; first != want {
		t.Errorf("RenderVerdict() first line = %q, want %q", first, want)
	}
}
