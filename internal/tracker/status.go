package tracker

import "strings"

// StatusPolicy classifies tracker status names. Closed and stale statuses are
// terminal: the lifecycle never reopens or updates such issues.
type StatusPolicy struct {
	Closed []string
	Stale  []string
}

// DefaultStatusPolicy matches the statuses of a stock Jira workflow.
func DefaultStatusPolicy() StatusPolicy {
	return StatusPolicy{
		Closed: []string{"Done", "Closed", "Resolved"},
		Stale:  []string{"Stale"},
	}
}

// IsClosed reports whether status is one of the closed statuses.
func (p StatusPolicy) IsClosed(status string) bool {
	return containsFold(p.Closed, status)
}

// IsStale reports whether status is one of the stale statuses.
func (p StatusPolicy) IsStale(status string) bool {
	return containsFold(p.Stale, status)
}

// IsTerminal reports whether status is closed or stale.
func (p StatusPolicy) IsTerminal(status string) bool {
	return p.IsClosed(status) || p.IsStale(status)
}

func containsFold(list []string, s string) bool {
	for _, item := range list {
		if equalFold(item, s) {
			return true
		}
	}
	return false
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
