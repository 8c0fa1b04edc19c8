// Package memory implements an in-memory tracker backend, used for dry runs
// and tests.
package memory

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/steveyegge/defects/internal/tracker"
)

func init() {
	tracker.Register("memory", func(_ context.Context, cfg *tracker.Config) (tracker.Backend, error) {
		prefix, err := cfg.Get("prefix")
		if err != nil {
			return nil, err
		}
		return New(prefix), nil
	})
}

// MemoryStorage keeps issues, links and attachments in maps guarded by a
// single mutex. Keys are "<prefix>-<n>" with n counting from 1.
type MemoryStorage struct {
	mu          sync.RWMutex
	prefix      string
	counter     int
	issues      map[string]*tracker.Issue
	links       map[string][]tracker.Link
	attachments map[string][]string
	comments    map[string][]string
	failures    map[string]error
	now         func() time.Time
}

// New creates an empty store. An empty prefix defaults to "BUG".
func New(prefix string) *MemoryStorage {
	if prefix == "" {
		prefix = "BUG"
	}
	return &MemoryStorage{
		prefix:      prefix,
		issues:      make(map[string]*tracker.Issue),
		links:       make(map[string][]tracker.Link),
		attachments: make(map[string][]string),
		comments:    make(map[string][]string),
		failures:    make(map[string]error),
		now:         time.Now,
	}
}

// Name implements tracker.Backend.
func (m *MemoryStorage) Name() string { return "memory" }

// Close implements tracker.Backend.
func (m *MemoryStorage) Close() error { return nil }

// Put stores a copy of issue as-is, replacing any issue with the same key.
func (m *MemoryStorage) Put(issue *tracker.Issue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.issues[issue.Key] = cloneIssue(issue)
}

// Link relates from and to in both directions with the given link type.
func (m *MemoryStorage) Link(from, to, linkType string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.linkLocked(from, to, linkType)
}

func (m *MemoryStorage) linkLocked(from, to, linkType string) {
	m.links[from] = append(m.links[from], tracker.Link{Type: linkType, Key: to})
	m.links[to] = append(m.links[to], tracker.Link{Type: linkType, Key: from})
}

// FailOn makes every call of op ("get", "links", "create", "update",
// "transition", "upload", "delete-attachments") for key return err. An empty
// key matches every key.
func (m *MemoryStorage) FailOn(op, key string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op+"/"+key] = err
}

func (m *MemoryStorage) failure(op, key string) error {
	if err, ok := m.failures[op+"/"+key]; ok {
		return err
	}
	return m.failures[op+"/"]
}

// Attachments returns the attachment file names stored on an issue.
func (m *MemoryStorage) Attachments(key string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.attachments[key]...)
}

// Comments returns the comments recorded by transitions on an issue.
func (m *MemoryStorage) Comments(key string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.comments[key]...)
}

// Keys returns every stored issue key, sorted.
func (m *MemoryStorage) Keys() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]string, 0, len(m.issues))
	for k := range m.issues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// GetIssue implements tracker.IssueStore.
func (m *MemoryStorage) GetIssue(_ context.Context, key string) (*tracker.Issue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("get", key); err != nil {
		return nil, err
	}
	issue, ok := m.issues[key]
	if !ok {
		return nil, fmt.Errorf("%s: %w", key, tracker.ErrNotFound)
	}
	return cloneIssue(issue), nil
}

// GetLinkedIssues implements tracker.IssueStore.
func (m *MemoryStorage) GetLinkedIssues(_ context.Context, key, linkType string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if err := m.failure("links", key); err != nil {
		return nil, err
	}
	var keys []string
	for _, l := range m.links[key] {
		if linkType == "" || l.Type == linkType {
			keys = append(keys, l.Key)
		}
	}
	return keys, nil
}

// CreateIssue implements tracker.IssueStore.
func (m *MemoryStorage) CreateIssue(_ context.Context, fields tracker.IssueFields) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("create", ""); err != nil {
		return "", err
	}
	key := m.nextKeyLocked()
	issue := &tracker.Issue{
		Key:       key,
		Summary:   fields.Summary,
		Body:      fields.Body,
		Status:    "Open",
		Labels:    append(append([]string(nil), fields.Labels...), fields.AddLabels...),
		Fields:    map[string]any{"issuetype": fields.IssueType, "project": fields.Project},
		CreatedAt: m.now(),
	}
	m.issues[key] = issue
	if fields.Link != nil {
		m.linkLocked(key, fields.Link.Key, fields.Link.Type)
	}
	return key, nil
}

// nextKeyLocked returns the next unused key, skipping keys added with Put.
func (m *MemoryStorage) nextKeyLocked() string {
	for {
		m.counter++
		key := fmt.Sprintf("%s-%d", m.prefix, m.counter)
		if _, taken := m.issues[key]; !taken {
			return key
		}
	}
}

// UpdateIssue implements tracker.IssueStore.
func (m *MemoryStorage) UpdateIssue(_ context.Context, key string, fields tracker.IssueFields) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("update", key); err != nil {
		return err
	}
	issue, ok := m.issues[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, tracker.ErrNotFound)
	}
	if fields.Summary != "" {
		issue.Summary = fields.Summary
	}
	if fields.Body != "" {
		issue.Body = fields.Body
	}
	if fields.Labels != nil {
		issue.Labels = append([]string(nil), fields.Labels...)
	}
	for _, l := range fields.AddLabels {
		if !issue.HasLabel(l) {
			issue.Labels = append(issue.Labels, l)
		}
	}
	return nil
}

// TransitionIssue implements tracker.IssueStore.
func (m *MemoryStorage) TransitionIssue(_ context.Context, key, targetStatus, resolution, comment string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("transition", key); err != nil {
		return err
	}
	issue, ok := m.issues[key]
	if !ok {
		return fmt.Errorf("%s: %w", key, tracker.ErrNotFound)
	}
	issue.Status = targetStatus
	if issue.Fields == nil {
		issue.Fields = make(map[string]any)
	}
	if resolution != "" {
		issue.Fields["resolution"] = resolution
	}
	if comment != "" {
		m.comments[key] = append(m.comments[key], comment)
	}
	return nil
}

// Upload implements tracker.AttachmentSink. Only the file name is recorded.
func (m *MemoryStorage) Upload(_ context.Context, issueKey, filePath string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("upload", issueKey); err != nil {
		return err
	}
	if _, ok := m.issues[issueKey]; !ok {
		return fmt.Errorf("%s: %w", issueKey, tracker.ErrNotFound)
	}
	m.attachments[issueKey] = append(m.attachments[issueKey], filepath.Base(filePath))
	return nil
}

// DeleteAll implements tracker.AttachmentSink.
func (m *MemoryStorage) DeleteAll(_ context.Context, issueKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.failure("delete-attachments", issueKey); err != nil {
		return err
	}
	delete(m.attachments, issueKey)
	return nil
}

func cloneIssue(i *tracker.Issue) *tracker.Issue {
	c := *i
	c.Labels = append([]string(nil), i.Labels...)
	if i.Fields != nil {
		c.Fields = make(map[string]any, len(i.Fields))
		for k, v := range i.Fields {
			c.Fields[k] = v
		}
	}
	return &c
}
