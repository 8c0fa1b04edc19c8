package jira

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/steveyegge/defects/internal/tracker"
)

// apiPath is the REST version that accepts wiki markup in description and
// comment fields. Version 3 only takes ADF documents.
const apiPath = "/rest/api/2"

// issueFields is the set of fields requested when reading an issue.
const issueFields = "summary,description,status,labels,issuetype,project,resolution,created,issuelinks"

// retryMaxElapsed bounds how long a request keeps retrying 429 and 5xx answers.
const retryMaxElapsed = 30 * time.Second

// APIError is a non-2xx answer from Jira.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("jira API returned %d: %s", e.StatusCode, e.Body)
}

// Unwrap maps 404 onto tracker.ErrNotFound.
func (e *APIError) Unwrap() error {
	if e.StatusCode == http.StatusNotFound {
		return tracker.ErrNotFound
	}
	return nil
}

// Transition is one workflow step available from an issue's current status.
type Transition struct {
	ID   string
	Name string
	To   string
}

// Client provides HTTP access to a Jira instance.
type Client struct {
	URL        string
	Username   string
	APIToken   string
	HTTPClient *http.Client
	// MaxElapsed bounds retries of throttled or failed requests. Zero means
	// retryMaxElapsed; a negative value disables retries.
	MaxElapsed time.Duration
}

// NewClient creates a new Jira client.
func NewClient(url, username, apiToken string) *Client {
	return &Client{
		URL:      strings.TrimSuffix(url, "/"),
		Username: username,
		APIToken: apiToken,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

func (c *Client) issueURL(key string, rest ...string) string {
	u := c.URL + apiPath + "/issue/" + url.PathEscape(key)
	for _, r := range rest {
		u += "/" + r
	}
	return u
}

// GetIssue returns the raw JSON of an issue with the fields the backend reads.
func (c *Client) GetIssue(ctx context.Context, key string) (gjson.Result, error) {
	apiURL := c.issueURL(key) + "?fields=" + issueFields
	body, err := c.doRequest(ctx, http.MethodGet, apiURL, "", nil)
	if err != nil {
		return gjson.Result{}, fmt.Errorf("get issue %s: %w", key, err)
	}
	if !gjson.ValidBytes(body) {
		return gjson.Result{}, fmt.Errorf("parse issue %s: invalid JSON", key)
	}
	return gjson.ParseBytes(body), nil
}

// CreateIssue posts a new issue and returns its key.
func (c *Client) CreateIssue(ctx context.Context, payload []byte) (string, error) {
	body, err := c.doRequest(ctx, http.MethodPost, c.URL+apiPath+"/issue", "application/json", payload)
	if err != nil {
		return "", fmt.Errorf("create issue: %w", err)
	}
	key := gjson.GetBytes(body, "key").String()
	if key == "" {
		return "", fmt.Errorf("create issue: response has no key: %s", string(body))
	}
	return key, nil
}

// UpdateIssue applies a fields/update payload to an issue.
func (c *Client) UpdateIssue(ctx context.Context, key string, payload []byte) error {
	if _, err := c.doRequest(ctx, http.MethodPut, c.issueURL(key), "application/json", payload); err != nil {
		return fmt.Errorf("update issue %s: %w", key, err)
	}
	return nil
}

// LinkIssues relates inward to outward with the named link type.
func (c *Client) LinkIssues(ctx context.Context, linkType, inward, outward string) error {
	payload, err := sjson.SetBytes(nil, "type.name", linkType)
	if err == nil {
		payload, err = sjson.SetBytes(payload, "inwardIssue.key", inward)
	}
	if err == nil {
		payload, err = sjson.SetBytes(payload, "outwardIssue.key", outward)
	}
	if err != nil {
		return fmt.Errorf("build link payload: %w", err)
	}
	if _, err := c.doRequest(ctx, http.MethodPost, c.URL+apiPath+"/issueLink", "application/json", payload); err != nil {
		return fmt.Errorf("link %s to %s: %w", inward, outward, err)
	}
	return nil
}

// GetTransitions lists the workflow steps available on an issue.
func (c *Client) GetTransitions(ctx context.Context, key string) ([]Transition, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.issueURL(key, "transitions"), "", nil)
	if err != nil {
		return nil, fmt.Errorf("get transitions of %s: %w", key, err)
	}
	var out []Transition
	gjson.GetBytes(body, "transitions").ForEach(func(_, t gjson.Result) bool {
		out = append(out, Transition{
			ID:   t.Get("id").String(),
			Name: t.Get("name").String(),
			To:   t.Get("to.name").String(),
		})
		return true
	})
	return out, nil
}

// DoTransition moves an issue through a transition. payload must already
// carry the transition id.
func (c *Client) DoTransition(ctx context.Context, key string, payload []byte) error {
	if _, err := c.doRequest(ctx, http.MethodPost, c.issueURL(key, "transitions"), "application/json", payload); err != nil {
		return fmt.Errorf("transition %s: %w", key, err)
	}
	return nil
}

// AddAttachment uploads a local file to an issue.
func (c *Client) AddAttachment(ctx context.Context, key, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("read attachment: %w", err)
	}

	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile("file", filepath.Base(filePath))
	if err != nil {
		return fmt.Errorf("build attachment form: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("build attachment form: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("build attachment form: %w", err)
	}

	if _, err := c.doRequest(ctx, http.MethodPost, c.issueURL(key, "attachments"), w.FormDataContentType(), buf.Bytes()); err != nil {
		return fmt.Errorf("attach %s to %s: %w", filepath.Base(filePath), key, err)
	}
	return nil
}

// AttachmentIDs lists the ids of every attachment on an issue.
func (c *Client) AttachmentIDs(ctx context.Context, key string) ([]string, error) {
	body, err := c.doRequest(ctx, http.MethodGet, c.issueURL(key)+"?fields=attachment", "", nil)
	if err != nil {
		return nil, fmt.Errorf("list attachments of %s: %w", key, err)
	}
	var ids []string
	for _, id := range gjson.GetBytes(body, "fields.attachment.#.id").Array() {
		ids = append(ids, id.String())
	}
	return ids, nil
}

// DeleteAttachment removes one attachment by id.
func (c *Client) DeleteAttachment(ctx context.Context, id string) error {
	apiURL := c.URL + apiPath + "/attachment/" + url.PathEscape(id)
	if _, err := c.doRequest(ctx, http.MethodDelete, apiURL, "", nil); err != nil {
		return fmt.Errorf("delete attachment %s: %w", id, err)
	}
	return nil
}

// doRequest performs an authenticated HTTP request, retrying throttled and
// transiently failed requests with exponential backoff.
func (c *Client) doRequest(ctx context.Context, method, apiURL, contentType string, body []byte) ([]byte, error) {
	if c.URL == "" {
		return nil, fmt.Errorf("jira URL not configured")
	}
	if c.APIToken == "" {
		return nil, fmt.Errorf("jira API token not configured")
	}

	var respBody []byte
	op := func() error {
		var err error
		respBody, err = c.send(ctx, method, apiURL, contentType, body)
		if err != nil && !isRetryable(method, err) {
			return backoff.Permanent(err)
		}
		return err
	}

	if c.MaxElapsed < 0 {
		return respBody, unwrapPermanent(op())
	}
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = retryMaxElapsed
	if c.MaxElapsed > 0 {
		bo.MaxElapsedTime = c.MaxElapsed
	}
	if err := backoff.Retry(op, backoff.WithContext(bo, ctx)); err != nil {
		return nil, err
	}
	return respBody, nil
}

func (c *Client) send(ctx context.Context, method, apiURL, contentType string, body []byte) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, apiURL, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	c.setAuth(req)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "defects/1.0")
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if strings.HasPrefix(contentType, "multipart/") {
		req.Header.Set("X-Atlassian-Token", "no-check")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode == http.StatusNoContent {
		return nil, nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	return respBody, nil
}

// isRetryable reports whether a failed request may succeed when repeated.
// A POST is only repeated after 429, since any other failure may have left
// the issue, link or attachment created.
func isRetryable(method string, err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		if apiErr.StatusCode == http.StatusTooManyRequests {
			return true
		}
		return method != http.MethodPost && apiErr.StatusCode >= 500
	}
	if method == http.MethodPost {
		return false
	}
	// Transport failures (connection refused, reset, timeouts).
	return strings.HasPrefix(err.Error(), "request failed:")
}

func unwrapPermanent(err error) error {
	var perm *backoff.PermanentError
	if errors.As(err, &perm) {
		return perm.Err
	}
	return err
}

// setAuth uses basic auth when a username is configured (Jira Cloud API
// tokens) and a bearer token otherwise (Server/Data Center PATs).
func (c *Client) setAuth(req *http.Request) {
	if c.Username != "" {
		auth := base64.StdEncoding.EncodeToString([]byte(c.Username + ":" + c.APIToken))
		req.Header.Set("Authorization", "Basic "+auth)
	} else {
		req.Header.Set("Authorization", "Bearer "+c.APIToken)
	}
}
