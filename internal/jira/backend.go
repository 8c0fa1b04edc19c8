// Package jira implements the tracker backend for Jira Cloud and Jira
// Server/Data Center over the REST v2 API, where issue descriptions and
// comments are wiki markup.
package jira

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/steveyegge/defects/internal/table"
	"github.com/steveyegge/defects/internal/tracker"
)

func init() {
	tracker.Register("jira", func(_ context.Context, cfg *tracker.Config) (tracker.Backend, error) {
		jiraURL, err := cfg.GetRequired("url")
		if err != nil {
			return nil, err
		}
		apiToken, err := cfg.GetRequired("api_token")
		if err != nil {
			return nil, err
		}
		timeout, err := cfg.GetInt("timeout", 30)
		if err != nil {
			return nil, err
		}
		username, _ := cfg.Get("username")
		project, _ := cfg.Get("project")
		client := NewClient(jiraURL, username, apiToken)
		client.HTTPClient.Timeout = time.Duration(timeout) * time.Second
		return New(client, project), nil
	})
}

// Backend implements tracker.Backend for Jira.
type Backend struct {
	client  *Client
	project string
}

// New creates a backend. project is the default project key for created
// issues when IssueFields.Project is empty.
func New(client *Client, project string) *Backend {
	return &Backend{client: client, project: project}
}

func (b *Backend) Name() string { return "jira" }
func (b *Backend) Close() error { return nil }

// BrowseURL returns the web link of an issue on this instance.
func (b *Backend) BrowseURL(key string) string {
	return BrowseURL(b.client.URL, key)
}

func (b *Backend) GetIssue(ctx context.Context, key string) (*tracker.Issue, error) {
	raw, err := b.client.GetIssue(ctx, key)
	if err != nil {
		return nil, err
	}
	return issueFromJSON(raw), nil
}

func (b *Backend) GetLinkedIssues(ctx context.Context, key, linkType string) ([]string, error) {
	raw, err := b.client.GetIssue(ctx, key)
	if err != nil {
		return nil, err
	}
	return linkedKeys(raw, linkType), nil
}

func (b *Backend) CreateIssue(ctx context.Context, fields tracker.IssueFields) (string, error) {
	if fields.Project == "" {
		fields.Project = b.project
	}
	if fields.Project == "" {
		return "", fmt.Errorf("jira project not configured (set jira.project or JIRA_PROJECT)")
	}
	payload, err := createPayload(fields)
	if err != nil {
		return "", err
	}
	key, err := b.client.CreateIssue(ctx, payload)
	if err != nil {
		return "", err
	}
	if fields.Link != nil {
		// The defect exists at this point; a failed link is reported with its key.
		if err := b.client.LinkIssues(ctx, fields.Link.Type, key, fields.Link.Key); err != nil {
			return key, err
		}
	}
	return key, nil
}

func (b *Backend) UpdateIssue(ctx context.Context, key string, fields tracker.IssueFields) error {
	payload, err := updatePayload(fields)
	if err != nil {
		return err
	}
	if payload == nil {
		return nil
	}
	return b.client.UpdateIssue(ctx, key, payload)
}

// TransitionIssue finds the transition leading to targetStatus and performs
// it, setting the resolution and adding the comment in the same request.
func (b *Backend) TransitionIssue(ctx context.Context, key, targetStatus, resolution, comment string) error {
	transitions, err := b.client.GetTransitions(ctx, key)
	if err != nil {
		return err
	}
	var id string
	for _, t := range transitions {
		if strings.EqualFold(t.To, targetStatus) || strings.EqualFold(t.Name, targetStatus) {
			id = t.ID
			break
		}
	}
	if id == "" {
		return fmt.Errorf("no transition from %s to status %q", key, targetStatus)
	}

	payload, err := sjson.SetBytes(nil, "transition.id", id)
	if err == nil && resolution != "" {
		payload, err = sjson.SetBytes(payload, "fields.resolution.name", resolution)
	}
	if err == nil && comment != "" {
		payload, err = sjson.SetBytes(payload, "update.comment", []map[string]any{
			{"add": map[string]string{"body": toWire(comment)}},
		})
	}
	if err != nil {
		return fmt.Errorf("build transition payload: %w", err)
	}
	return b.client.DoTransition(ctx, key, payload)
}

func (b *Backend) Upload(ctx context.Context, issueKey, filePath string) error {
	return b.client.AddAttachment(ctx, issueKey, filePath)
}

// DeleteAll removes every attachment, continuing past individual failures.
func (b *Backend) DeleteAll(ctx context.Context, issueKey string) error {
	ids, err := b.client.AttachmentIDs(ctx, issueKey)
	if err != nil {
		return err
	}
	var errs []error
	for _, id := range ids {
		if err := b.client.DeleteAttachment(ctx, id); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func issueFromJSON(raw gjson.Result) *tracker.Issue {
	f := raw.Get("fields")
	issue := &tracker.Issue{
		Key:     raw.Get("key").String(),
		Summary: f.Get("summary").String(),
		Body:    f.Get("description").String(),
		Status:  f.Get("status.name").String(),
		Fields:  make(map[string]any),
	}
	for _, l := range f.Get("labels").Array() {
		issue.Labels = append(issue.Labels, l.String())
	}
	if t, err := ParseTimestamp(f.Get("created").String()); err == nil {
		issue.CreatedAt = t
	}
	if v := f.Get("issuetype.name"); v.Exists() {
		issue.Fields["issuetype"] = v.String()
	}
	if v := f.Get("project.key"); v.Exists() {
		issue.Fields["project"] = v.String()
	}
	if v := f.Get("resolution.name"); v.Exists() {
		issue.Fields["resolution"] = v.String()
	}
	return issue
}

// linkedKeys returns the keys on the far side of every link of the given
// type name. An empty linkType matches every link.
func linkedKeys(raw gjson.Result, linkType string) []string {
	var keys []string
	raw.Get("fields.issuelinks").ForEach(func(_, l gjson.Result) bool {
		if linkType != "" && !strings.EqualFold(l.Get("type.name").String(), linkType) {
			return true
		}
		for _, side := range []string{"inwardIssue.key", "outwardIssue.key"} {
			if k := l.Get(side).String(); k != "" {
				keys = append(keys, k)
			}
		}
		return true
	})
	return keys
}

func createPayload(fields tracker.IssueFields) ([]byte, error) {
	payload, err := sjson.SetBytes(nil, "fields.project.key", fields.Project)
	set := func(path string, v any) {
		if err == nil {
			payload, err = sjson.SetBytes(payload, path, v)
		}
	}
	issueType := fields.IssueType
	if issueType == "" {
		issueType = "Bug"
	}
	set("fields.issuetype.name", issueType)
	set("fields.summary", fields.Summary)
	set("fields.description", toWire(fields.Body))
	if labels := append(append([]string(nil), fields.Labels...), fields.AddLabels...); len(labels) > 0 {
		set("fields.labels", labels)
	}
	if err != nil {
		return nil, fmt.Errorf("build create payload: %w", err)
	}
	return payload, nil
}

// updatePayload returns nil when fields change nothing.
func updatePayload(fields tracker.IssueFields) ([]byte, error) {
	var payload []byte
	var err error
	set := func(path string, v any) {
		if err == nil {
			payload, err = sjson.SetBytes(payload, path, v)
		}
	}
	if fields.Summary != "" {
		set("fields.summary", fields.Summary)
	}
	if fields.Body != "" {
		set("fields.description", toWire(fields.Body))
	}
	if fields.Labels != nil {
		set("fields.labels", fields.Labels)
	}
	if len(fields.AddLabels) > 0 {
		ops := make([]map[string]string, 0, len(fields.AddLabels))
		for _, l := range fields.AddLabels {
			ops = append(ops, map[string]string{"add": l})
		}
		set("update.labels", ops)
	}
	if err != nil {
		return nil, fmt.Errorf("build update payload: %w", err)
	}
	return payload, nil
}

// toWire turns the escaped line-break tokens of rendered fingerprints into
// real line breaks, which is what Jira stores for text typed into an issue.
// Fenced blocks are left alone: there the token is a JSON string escape.
func toWire(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range fencedBlock.FindAllStringIndex(s, -1) {
		b.WriteString(strings.ReplaceAll(s[last:loc[0]], table.EscapedLineBreak, "\r\n"))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(strings.ReplaceAll(s[last:], table.EscapedLineBreak, "\r\n"))
	return b.String()
}

var fencedBlock = regexp.MustCompile(`(?s)\{code(?::[A-Za-z0-9_-]*)?\}.*?\{code\}`)
