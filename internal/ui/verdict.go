package ui

import (
	"fmt"
	"strings"

	"github.com/steveyegge/defects/internal/fingerprint"
)

// VerdictMarkdown lays out a comparison as a markdown table, one row per
// field in document order. Fields outside the mode are listed as ignored.
func VerdictMarkdown(v fingerprint.Verdict) string {
	var sb strings.Builder
	outcome := "match"
	if !v.Overall {
		outcome = "mismatch"
	}
	fmt.Fprintf(&sb, "## %s (%s)\n\n", outcome, v.Mode)
	sb.WriteString("| Field | Result |\n|---|---|\n")

	row := func(f fingerprint.Field, matched, inScope bool) {
		result := "match"
		switch {
		case !inScope:
			result = "ignored"
		case !matched:
			result = "**mismatch**"
		}
		if err := v.Problems[f]; err != nil {
			result += " (unreadable: " + err.Error() + ")"
		}
		fmt.Fprintf(&sb, "| %s | %s |\n", f, result)
	}
	row(fingerprint.FieldDriver, v.Driver, true)
	row(fingerprint.FieldIteration, v.Iteration, v.Mode.IncludeIteration)
	row(fingerprint.FieldCapabilities, v.Capabilities, true)
	row(fingerprint.FieldOptions, v.Options, true)
	row(fingerprint.FieldDataSource, v.DataSource, v.Mode.IncludeDataSource)
	return sb.String()
}

// RenderVerdict renders a comparison for the terminal: a status line
// followed by the field table.
func RenderVerdict(v fingerprint.Verdict) string {
	head := RenderPass(IconPass) + " " + v.Explain()
	if !v.Overall {
		head = RenderFail(IconFail) + " " + v.Explain()
	}
	return head + "\n" + RenderMarkdown(VerdictMarkdown(v))
}
