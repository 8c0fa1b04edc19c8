// Package tracker defines the collaborator interfaces the defect lifecycle
// talks to, and a registry of backends implementing them.
//
// Each external system (Jira, a MySQL-protocol database, an in-memory store)
// provides an adapter implementing Backend and registers a factory at init
// time. The lifecycle only ever reads and writes an issue's body text and
// reads its status; everything else (transport, auth, paging, retries)
// belongs to the adapter.
package tracker

import (
	"context"
	"time"
)

// IssueStore reads and writes textual issues by key.
type IssueStore interface {
	// GetIssue fetches a single issue. Returns an error wrapping ErrNotFound
	// if the key does not exist.
	GetIssue(ctx context.Context, key string) (*Issue, error)

	// GetLinkedIssues returns the keys of issues linked to key with the given
	// link type. An empty linkType returns every linked key.
	GetLinkedIssues(ctx context.Context, key, linkType string) ([]string, error)

	// CreateIssue files a new issue and returns its key. When the issue was
	// filed but linking it failed, both the key and the error are returned.
	CreateIssue(ctx context.Context, fields IssueFields) (string, error)

	// UpdateIssue applies the non-zero fields to an existing issue.
	UpdateIssue(ctx context.Context, key string, fields IssueFields) error

	// TransitionIssue moves an issue to targetStatus, recording the
	// resolution and an optional comment.
	TransitionIssue(ctx context.Context, key, targetStatus, resolution, comment string) error
}

// AttachmentSink stores binary evidence on an issue.
type AttachmentSink interface {
	// Upload attaches the file at filePath to the issue.
	Upload(ctx context.Context, issueKey, filePath string) error

	// DeleteAll removes every attachment from the issue.
	DeleteAll(ctx context.Context, issueKey string) error
}

// Backend is a complete adapter: an IssueStore and AttachmentSink for one
// external system.
type Backend interface {
	IssueStore
	AttachmentSink

	// Name returns the lowercase registry name (e.g., "jira", "sql").
	Name() string

	// Close releases any resources held by the backend.
	Close() error
}

// Issue is the textual view of a tracker issue.
type Issue struct {
	Key       string         `json:"key"`
	Summary   string         `json:"summary,omitempty"`
	Body      string         `json:"body"`
	Status    string         `json:"status"`
	Labels    []string       `json:"labels,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
}

// HasLabel reports whether the issue carries label (case-insensitive).
func (i *Issue) HasLabel(label string) bool {
	for _, l := range i.Labels {
		if equalFold(l, label) {
			return true
		}
	}
	return false
}

// IssueFields describes an issue to create, or the changes to apply on
// update. Zero-valued fields are left untouched on update.
type IssueFields struct {
	Project   string
	IssueType string
	Summary   string
	Body      string
	Labels    []string // replaces labels on update when non-nil
	AddLabels []string // appended to existing labels on update
	Link      *Link    // link created along with the issue
}

// Link relates two issues.
type Link struct {
	Type string // link type name, e.g. "Relates", "Precondition"
	Key  string // the other issue
}
