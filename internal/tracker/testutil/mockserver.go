// Package testutil provides fake tracker servers for backend tests.
package testutil

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
)

// RecordedRequest stores information about a request made to the mock server.
type RecordedRequest struct {
	Method  string
	Path    string
	Query   string
	Headers http.Header
	Body    []byte
}

// MockResponse represents a configured response for the mock server.
type MockResponse struct {
	StatusCode int
	Body       interface{}
}

// MockTrackerServer is the base mock server. It records every request,
// serves canned responses and simulates auth, throttling and server errors
// before handing the request to the tracker-specific handler.
type MockTrackerServer struct {
	Server *httptest.Server

	mu        sync.Mutex
	requests  []RecordedRequest
	responses map[string]MockResponse // "METHOD /path" -> response
	handler   http.HandlerFunc

	authError     bool
	failStatus    int
	failRemaining int
}

// NewMockTrackerServer starts a server that passes unmatched requests to handler.
func NewMockTrackerServer(handler http.HandlerFunc) *MockTrackerServer {
	m := &MockTrackerServer{
		responses: make(map[string]MockResponse),
		handler:   handler,
	}
	m.Server = httptest.NewServer(http.HandlerFunc(m.handleRequest))
	return m
}

func (m *MockTrackerServer) handleRequest(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	r.Body.Close()

	m.mu.Lock()
	m.requests = append(m.requests, RecordedRequest{
		Method:  r.Method,
		Path:    r.URL.Path,
		Query:   r.URL.RawQuery,
		Headers: r.Header.Clone(),
		Body:    body,
	})
	authError := m.authError
	failStatus := 0
	if m.failRemaining > 0 {
		m.failRemaining--
		failStatus = m.failStatus
	}
	resp, found := m.responses[r.Method+" "+r.URL.Path]
	m.mu.Unlock()

	if authError {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"errorMessages": []string{"Unauthorized"}})
		return
	}
	if failStatus != 0 {
		if failStatus == http.StatusTooManyRequests {
			w.Header().Set("Retry-After", "1")
		}
		writeJSON(w, failStatus, map[string]any{"errorMessages": []string{http.StatusText(failStatus)}})
		return
	}
	if found {
		writeJSON(w, resp.StatusCode, resp.Body)
		return
	}

	r.Body = io.NopCloser(bytes.NewReader(body))
	if m.handler != nil {
		m.handler(w, r)
		return
	}
	writeJSON(w, http.StatusNotFound, map[string]any{"errorMessages": []string{"Not found"}})
}

// URL returns the mock server URL.
func (m *MockTrackerServer) URL() string {
	return m.Server.URL
}

// Close shuts down the mock server.
func (m *MockTrackerServer) Close() {
	m.Server.Close()
}

// SetResponse serves body with statusCode for every method+path request,
// e.g. SetResponse("GET", "/rest/api/2/issue/QA-1", 500, nil).
func (m *MockTrackerServer) SetResponse(method, path string, statusCode int, body interface{}) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responses[method+" "+path] = MockResponse{StatusCode: statusCode, Body: body}
}

// SetAuthError enables/disables 401 Unauthorized responses.
func (m *MockTrackerServer) SetAuthError(enabled bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.authError = enabled
}

// FailNext answers the next n requests with statusCode.
func (m *MockTrackerServer) FailNext(statusCode, n int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failStatus = statusCode
	m.failRemaining = n
}

// Requests returns all recorded requests.
func (m *MockTrackerServer) Requests() []RecordedRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]RecordedRequest(nil), m.requests...)
}

// RequestCount returns the number of recorded requests.
func (m *MockTrackerServer) RequestCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// ClearRequests clears all recorded requests.
func (m *MockTrackerServer) ClearRequests() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if status == 0 {
		status = http.StatusOK
	}
	if status == http.StatusNoContent {
		w.WriteHeader(status)
		return
	}
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}
