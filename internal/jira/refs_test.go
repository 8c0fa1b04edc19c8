package jira

import (
	"testing"
)

func TestIssueKey(t *testing.T) {
	tests := []struct {
		name   string
		ref    string
		want   string
		wantOK bool
	}{
		{
			name:   "bare key",
			ref:    "PROJ-123",
			want:   "PROJ-123",
			wantOK: true,
		},
		{
			name:   "lower case key",
			ref:    " qa-7 ",
			want:   "QA-7",
			wantOK: true,
		},
		{
			name:   "Jira Cloud browse URL",
			ref:    "https://company.atlassian.net/browse/PROJ-123",
			want:   "PROJ-123",
			wantOK: true,
		},
		{
			name:   "browse URL with query",
			ref:    "https://jira.company.com/browse/TEAM-1?focusedCommentId=3",
			want:   "TEAM-1",
			wantOK: true,
		},
		{
			name:   "GitHub issue URL",
			ref:    "https://github.com/org/repo/issues/123",
			wantOK: false,
		},
		{
			name:   "browse in path but not an issue",
			ref:    "https://example.com/browse/docs/page",
			wantOK: false,
		},
		{
			name:   "empty",
			ref:    "",
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := IssueKey(tt.ref)
			if ok != tt.wantOK || got != tt.want {
				t.Errorf("IssueKey(%q) = (%q, %v), want (%q, %v)", tt.ref, got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestBrowseURL(t *testing.T) {
	tests := []struct {
		base string
		key  string
		want string
	}{
		{"https://company.atlassian.net", "PROJ-1", "https://company.atlassian.net/browse/PROJ-1"},
		{"https://company.atlassian.net/", "PROJ-1", "https://company.atlassian.net/browse/PROJ-1"},
	}
	for _, tt := range tests {
		if got := BrowseURL(tt.base, tt.key); got != tt.want {
			t.Errorf("BrowseURL(%q, %q) = %q, want %q", tt.base, tt.key, got, tt.want)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name      string
		timestamp string
		wantErr   bool
		wantYear  int
	}{
		{
			name:      "standard Jira Cloud format with milliseconds",
			timestamp: "2024-01-15T10:30:00.000+0000",
			wantYear:  2024,
		},
		{
			name:      "Jira format with Z suffix",
			timestamp: "2024-01-15T10:30:00.000Z",
			wantYear:  2024,
		},
		{
			name:      "without milliseconds",
			timestamp: "2024-01-15T10:30:00+0000",
			wantYear:  2024,
		},
		{
			name:      "RFC3339 format",
			timestamp: "2024-01-15T10:30:00Z",
			wantYear:  2024,
		},
		{
			name:      "with negative timezone offset",
			timestamp: "2024-06-15T10:30:00.000-0500",
			wantYear:  2024,
		},
		{
			name:      "empty string",
			timestamp: "",
			wantErr:   true,
		},
		{
			name:      "invalid format",
			timestamp: "not-a-timestamp",
			wantErr:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseTimestamp(tt.timestamp)
			if (err != nil) != tt.wantErr {
				t.Errorf("ParseTimestamp(%q) error = %v, wantErr %v", tt.timestamp, err, tt.wantErr)
				return
			}
			if !tt.wantErr && got.Year() != tt.wantYear {
				t.Errorf("ParseTimestamp(%q) year = %d, want %d", tt.timestamp, got.Year(), tt.wantYear)
			}
		})
	}
}
