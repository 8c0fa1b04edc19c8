package ui

import (
	"fmt"
	"strings"

	"github.com/steveyegge/defects/internal/lifecycle"
)

// RenderResult renders one lifecycle result on a single line, e.g.
// "✗ QA-12 created BUG-7".
func RenderResult(r lifecycle.Result) string {
	var icon string
	switch r.Action {
	case lifecycle.ActionCreated:
		icon = RenderFail(IconFail)
	case lifecycle.ActionUpdated, lifecycle.ActionTracked:
		icon = RenderWarn(IconWarn)
	case lifecycle.ActionClosed, lifecycle.ActionNone:
		icon = RenderPass(IconPass)
	default:
		icon = RenderMuted(IconSkip)
	}

	parts := []string{icon, RenderAccent(r.TestKey), string(r.Action)}
	if r.Defect != "" {
		parts = append(parts, r.Defect)
	}
	line := strings.Join(parts, " ")
	if len(r.Duplicates) > 0 {
		line += RenderMuted(" (duplicates closed: " + strings.Join(r.Duplicates, ", ") + ")")
	}
	if r.Err != nil {
		line += "\n  " + RenderFail(r.Err.Error())
	}
	return line
}

// RenderStats renders the summary line for a batch.
func RenderStats(s lifecycle.Stats) string {
	line := fmt.Sprintf("%d created, %d updated, %d tracked, %d closed, %d duplicates closed, %d skipped",
		s.Created, s.Updated, s.Tracked, s.Closed, s.Duplicates, s.Skipped)
	if s.Errors > 0 {
		return RenderFail(fmt.Sprintf("%s (%d errors)", line, s.Errors))
	}
	return RenderMuted(line)
}
