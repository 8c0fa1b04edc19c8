package testutil

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/tidwall/gjson"
)

const jiraAPI = "/rest/api/2/"

// JiraIssue is the state the fake keeps per issue.
type JiraIssue struct {
	Key         string
	Summary     string
	Description string
	Status      string
	Resolution  string
	IssueType   string
	Labels      []string
	Created     string
	Comments    []string
	Attachments map[string]string // id -> file name
}

// JiraTransition is a workflow step offered by every issue.
type JiraTransition struct {
	ID   string
	Name string
	To   string
}

type jiraLink struct {
	Type, Inward, Outward string
}

// JiraMockServer is an in-memory Jira REST v2 endpoint covering issues,
// issue links, transitions and attachments.
type JiraMockServer struct {
	*MockTrackerServer

	mu          sync.Mutex
	issues      map[string]*JiraIssue
	links       []jiraLink
	counters    map[string]int
	nextID      int
	Transitions []JiraTransition
}

// NewJiraMockServer starts a fake with a Start/Done/Stale workflow.
func NewJiraMockServer() *JiraMockServer {
	m := &JiraMockServer{
		issues:   make(map[string]*JiraIssue),
		counters: make(map[string]int),
		nextID:   10000,
		Transitions: []JiraTransition{
			{ID: "11", Name: "Start Progress", To: "In Progress"},
			{ID: "31", Name: "Close", To: "Done"},
			{ID: "41", Name: "Mark Stale", To: "Stale"},
		},
	}
	m.MockTrackerServer = NewMockTrackerServer(m.handleJiraRequest)
	return m
}

// AddIssue stores an issue. Empty Status defaults to "Open".
func (m *JiraMockServer) AddIssue(issue JiraIssue) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if issue.Status == "" {
		issue.Status = "Open"
	}
	if issue.Created == "" {
		issue.Created = "2024-01-15T10:30:00.000+0000"
	}
	if issue.Attachments == nil {
		issue.Attachments = make(map[string]string)
	}
	m.issues[issue.Key] = &issue
}

// AddLink relates inward and outward with the named link type.
func (m *JiraMockServer) AddLink(linkType, inward, outward string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.links = append(m.links, jiraLink{Type: linkType, Inward: inward, Outward: outward})
}

// AddAttachment stores an attachment and returns its id.
func (m *JiraMockServer) AddAttachment(key, filename string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	id := fmt.Sprint(m.nextID)
	m.issues[key].Attachments[id] = filename
	return id
}

// Issue returns a copy of the stored issue.
func (m *JiraMockServer) Issue(key string) (JiraIssue, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	issue, ok := m.issues[key]
	if !ok {
		return JiraIssue{}, false
	}
	c := *issue
	c.Labels = append([]string(nil), issue.Labels...)
	c.Comments = append([]string(nil), issue.Comments...)
	c.Attachments = make(map[string]string, len(issue.Attachments))
	for k, v := range issue.Attachments {
		c.Attachments[k] = v
	}
	return c, true
}

// Linked returns the keys linked to key with linkType, sorted.
func (m *JiraMockServer) Linked(key, linkType string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var keys []string
	for _, l := range m.links {
		if l.Type != linkType {
			continue
		}
		switch key {
		case l.Inward:
			keys = append(keys, l.Outward)
		case l.Outward:
			keys = append(keys, l.Inward)
		}
	}
	sort.Strings(keys)
	return keys
}

func (m *JiraMockServer) handleJiraRequest(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, jiraAPI) {
		writeJSON(w, http.StatusNotFound, nil)
		return
	}
	parts := strings.Split(strings.TrimPrefix(r.URL.Path, jiraAPI), "/")
	body, _ := io.ReadAll(r.Body)

	m.mu.Lock()
	defer m.mu.Unlock()

	switch {
	case len(parts) == 1 && parts[0] == "issue" && r.Method == http.MethodPost:
		m.createIssue(w, body)
	case len(parts) == 1 && parts[0] == "issueLink" && r.Method == http.MethodPost:
		m.linkIssues(w, body)
	case len(parts) == 2 && parts[0] == "attachment" && r.Method == http.MethodDelete:
		m.deleteAttachment(w, parts[1])
	case len(parts) >= 2 && parts[0] == "issue":
		issue, ok := m.issues[parts[1]]
		if !ok {
			writeJSON(w, http.StatusNotFound, map[string]any{"errorMessages": []string{"Issue does not exist"}})
			return
		}
		switch {
		case len(parts) == 2 && r.Method == http.MethodGet:
			writeJSON(w, http.StatusOK, m.issueJSON(issue))
		case len(parts) == 2 && r.Method == http.MethodPut:
			m.updateIssue(w, issue, body)
		case len(parts) == 3 && parts[2] == "transitions" && r.Method == http.MethodGet:
			m.listTransitions(w)
		case len(parts) == 3 && parts[2] == "transitions" && r.Method == http.MethodPost:
			m.doTransition(w, issue, body)
		case len(parts) == 3 && parts[2] == "attachments" && r.Method == http.MethodPost:
			m.attach(w, r, issue, body)
		default:
			writeJSON(w, http.StatusMethodNotAllowed, nil)
		}
	default:
		writeJSON(w, http.StatusNotFound, map[string]any{"errorMessages": []string{"Not found"}})
	}
}

func (m *JiraMockServer) issueJSON(issue *JiraIssue) map[string]any {
	var links []map[string]any
	for i, l := range m.links {
		link := map[string]any{"id": fmt.Sprint(i + 1), "type": map[string]string{"name": l.Type}}
		switch issue.Key {
		case l.Inward:
			link["outwardIssue"] = map[string]string{"key": l.Outward}
		case l.Outward:
			link["inwardIssue"] = map[string]string{"key": l.Inward}
		default:
			continue
		}
		links = append(links, link)
	}
	var attachments []map[string]string
	for id, name := range issue.Attachments {
		attachments = append(attachments, map[string]string{"id": id, "filename": name})
	}
	var resolution any
	if issue.Resolution != "" {
		resolution = map[string]string{"name": issue.Resolution}
	}
	project, _, _ := strings.Cut(issue.Key, "-")
	return map[string]any{
		"key": issue.Key,
		"fields": map[string]any{
			"summary":     issue.Summary,
			"description": issue.Description,
			"status":      map[string]string{"name": issue.Status},
			"labels":      issue.Labels,
			"issuetype":   map[string]string{"name": issue.IssueType},
			"project":     map[string]string{"key": project},
			"resolution":  resolution,
			"created":     issue.Created,
			"issuelinks":  links,
			"attachment":  attachments,
		},
	}
}

func (m *JiraMockServer) createIssue(w http.ResponseWriter, body []byte) {
	f := gjson.GetBytes(body, "fields")
	project := f.Get("project.key").String()
	if project == "" || f.Get("summary").String() == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errors": map[string]string{"project": "required"}})
		return
	}
	m.counters[project]++
	key := fmt.Sprintf("%s-%d", project, m.counters[project])
	for m.issues[key] != nil {
		m.counters[project]++
		key = fmt.Sprintf("%s-%d", project, m.counters[project])
	}
	issue := &JiraIssue{
		Key:         key,
		Summary:     f.Get("summary").String(),
		Description: f.Get("description").String(),
		Status:      "Open",
		IssueType:   f.Get("issuetype.name").String(),
		Created:     "2024-01-15T10:30:00.000+0000",
		Attachments: make(map[string]string),
	}
	for _, l := range f.Get("labels").Array() {
		issue.Labels = append(issue.Labels, l.String())
	}
	m.issues[key] = issue
	m.nextID++
	writeJSON(w, http.StatusCreated, map[string]string{
		"id":   fmt.Sprint(m.nextID),
		"key":  key,
		"self": m.Server.URL + jiraAPI + "issue/" + key,
	})
}

func (m *JiraMockServer) updateIssue(w http.ResponseWriter, issue *JiraIssue, body []byte) {
	f := gjson.GetBytes(body, "fields")
	if v := f.Get("summary"); v.Exists() {
		issue.Summary = v.String()
	}
	if v := f.Get("description"); v.Exists() {
		issue.Description = v.String()
	}
	if v := f.Get("labels"); v.Exists() {
		issue.Labels = nil
		for _, l := range v.Array() {
			issue.Labels = append(issue.Labels, l.String())
		}
	}
	for _, op := range gjson.GetBytes(body, "update.labels").Array() {
		if add := op.Get("add").String(); add != "" {
			issue.Labels = append(issue.Labels, add)
		}
	}
	writeJSON(w, http.StatusNoContent, nil)
}

func (m *JiraMockServer) linkIssues(w http.ResponseWriter, body []byte) {
	l := jiraLink{
		Type:    gjson.GetBytes(body, "type.name").String(),
		Inward:  gjson.GetBytes(body, "inwardIssue.key").String(),
		Outward: gjson.GetBytes(body, "outwardIssue.key").String(),
	}
	if m.issues[l.Inward] == nil || m.issues[l.Outward] == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"errorMessages": []string{"Issue does not exist"}})
		return
	}
	m.links = append(m.links, l)
	writeJSON(w, http.StatusCreated, nil)
}

func (m *JiraMockServer) listTransitions(w http.ResponseWriter) {
	var out []map[string]any
	for _, t := range m.Transitions {
		out = append(out, map[string]any{"id": t.ID, "name": t.Name, "to": map[string]string{"name": t.To}})
	}
	writeJSON(w, http.StatusOK, map[string]any{"transitions": out})
}

func (m *JiraMockServer) doTransition(w http.ResponseWriter, issue *JiraIssue, body []byte) {
	id := gjson.GetBytes(body, "transition.id").String()
	for _, t := range m.Transitions {
		if t.ID != id {
			continue
		}
		issue.Status = t.To
		if r := gjson.GetBytes(body, "fields.resolution.name"); r.Exists() {
			issue.Resolution = r.String()
		}
		for _, c := range gjson.GetBytes(body, "update.comment.#.add.body").Array() {
			issue.Comments = append(issue.Comments, c.String())
		}
		writeJSON(w, http.StatusNoContent, nil)
		return
	}
	writeJSON(w, http.StatusBadRequest, map[string]any{"errorMessages": []string{"Transition id " + id + " is not valid"}})
}

func (m *JiraMockServer) attach(w http.ResponseWriter, r *http.Request, issue *JiraIssue, body []byte) {
	if r.Header.Get("X-Atlassian-Token") != "no-check" {
		writeJSON(w, http.StatusForbidden, map[string]any{"errorMessages": []string{"XSRF check failed"}})
		return
	}
	r.Body = io.NopCloser(strings.NewReader(string(body)))
	if err := r.ParseMultipartForm(10 << 20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"errorMessages": []string{err.Error()}})
		return
	}
	var out []map[string]string
	for _, fh := range r.MultipartForm.File["file"] {
		m.nextID++
		id := fmt.Sprint(m.nextID)
		issue.Attachments[id] = fh.Filename
		out = append(out, map[string]string{"id": id, "filename": fh.Filename})
	}
	writeJSON(w, http.StatusOK, out)
}

func (m *JiraMockServer) deleteAttachment(w http.ResponseWriter, id string) {
	for _, issue := range m.issues {
		if _, ok := issue.Attachments[id]; ok {
			delete(issue.Attachments, id)
			writeJSON(w, http.StatusNoContent, nil)
			return
		}
	}
	writeJSON(w, http.StatusNotFound, nil)
}
