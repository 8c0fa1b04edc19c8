package jira

import (
	"fmt"
	"regexp"
	"strings"
	"time"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z][A-Za-z0-9_]*-[0-9]+$`)

// BrowseURL returns the web link for an issue, e.g.
// "https://company.atlassian.net/browse/PROJ-123".
func BrowseURL(baseURL, key string) string {
	return strings.TrimSuffix(baseURL, "/") + "/browse/" + key
}

// IssueKey accepts either a bare issue key or a browse URL and returns the
// upper-cased key. ok is false when ref names no issue.
func IssueKey(ref string) (key string, ok bool) {
	ref = strings.TrimSpace(ref)
	if idx := strings.LastIndex(ref, "/browse/"); idx != -1 {
		ref = ref[idx+len("/browse/"):]
		if end := strings.IndexAny(ref, "?#/"); end != -1 {
			ref = ref[:end]
		}
	}
	if !keyPattern.MatchString(ref) {
		return "", false
	}
	return strings.ToUpper(ref), true
}

// ParseTimestamp parses Jira's timestamp format into a time.Time.
// Jira uses ISO 8601 with timezone: 2024-01-15T10:30:00.000+0000 or 2024-01-15T10:30:00.000Z
func ParseTimestamp(ts string) (time.Time, error) {
	if ts == "" {
		return time.Time{}, fmt.Errorf("empty timestamp")
	}

	formats := []string{
		"2006-01-02T15:04:05.000-0700",
		"2006-01-02T15:04:05.000Z",
		"2006-01-02T15:04:05-0700",
		time.RFC3339Nano,
	}

	for _, format := range formats {
		if t, err := time.Parse(format, ts); err == nil {
			return t, nil
		}
	}

	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %s", ts)
}
