package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/defects/internal/config"
)

// runCLI executes the root command in a clean working directory with the
// memory backend and returns what it printed to stdout.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	config.ResetForTesting()
	t.Cleanup(config.ResetForTesting)

	var stdout, stderr bytes.Buffer
	rootCmd.SetOut(&stdout)
	rootCmd.SetErr(&stderr)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return stdout.String(), err
}

func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, sub := range cmd.Commands() {
		resetFlags(sub)
	}
}

func setupWorkspace(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	t.Setenv("NO_COLOR", "1")
	t.Setenv("DEFECTS_BACKEND", "memory")
	t.Setenv("DEFECTS_OTEL_ENABLED", "")
	return dir
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

const chromeFingerprint = `
driver: Chrome
platform: Windows 11
iteration: 1
capabilities:
  browserName: chrome
options:
  headless: true
`

func TestVersionCommand(t *testing.T) {
	setupWorkspace(t)

	out, err := runCLI(t, "version")
	require.NoError(t, err)
	assert.Contains(t, out, "defects version "+Version)
	assert.Contains(t, out, "backends: jira, memory, sql")

	out, err = runCLI(t, "version", "--json")
	require.NoError(t, err)
	var got struct {
		Version  string   `json:"version"`
		Build    string   `json:"build"`
		Backends []string `json:"backends"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, Version, got.Version)
	assert.Equal(t, Build, got.Build)
	assert.Equal(t, []string{"jira", "memory", "sql"}, got.Backends)
}

func TestRenderCommand(t *testing.T) {
	dir := setupWorkspace(t)
	fp := writeFile(t, dir, "fp.yaml", chromeFingerprint)

	out, err := runCLI(t, "render", fp)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, `||Property||Value||\r\n|Driver|Chrome|`), out)
	assert.Contains(t, out, `On Iteration: 1`)
	assert.Contains(t, out, `{code:json}`)
}

func TestRenderCommand_DataRow(t *testing.T) {
	dir := setupWorkspace(t)
	fp := writeFile(t, dir, "fp.yaml", chromeFingerprint)
	data := writeFile(t, dir, "users.csv", "user,locale\nalice,en-US\nbob,de-DE\n")

	out, err := runCLI(t, "render", fp, "--data", data, "--iteration", "1", "--json")
	require.NoError(t, err)
	var got map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Contains(t, got["description"], `|bob|de-DE|`)
	assert.NotContains(t, got["description"], `alice`)

	_, err = runCLI(t, "render", fp, "--data", data, "--iteration", "5")
	assert.ErrorContains(t, err, "iteration 5 out of range")
}

func TestCompareCommand(t *testing.T) {
	dir := setupWorkspace(t)
	fp := writeFile(t, dir, "fp.yaml", chromeFingerprint)
	stored, err := runCLI(t, "render", fp)
	require.NoError(t, err)
	storedPath := writeFile(t, dir, "stored.txt", stored)

	out, err := runCLI(t, "compare", fp, "--stored", storedPath, "--check")
	require.NoError(t, err)
	assert.Contains(t, out, "strict: match")

	other := writeFile(t, dir, "other.yaml", strings.Replace(chromeFingerprint, "iteration: 1", "iteration: 2", 1))
	out, err = runCLI(t, "compare", other, "--stored", storedPath, "--check")
	assert.ErrorIs(t, err, errMismatch)
	assert.Contains(t, out, "strict: mismatch on On Iteration")

	out, err = runCLI(t, "compare", other, "--stored", storedPath, "--loose", "--json")
	require.NoError(t, err)
	var got compareOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "loose", got.Mode)
	assert.True(t, got.Verdict.Overall)
	assert.False(t, got.Verdict.Iteration)
}

func TestCompareCommand_Arguments(t *testing.T) {
	dir := setupWorkspace(t)
	fp := writeFile(t, dir, "fp.yaml", chromeFingerprint)
	stored := writeFile(t, dir, "stored.txt", "")

	_, err := runCLI(t, "compare", fp, "QA-1", "--stored", stored)
	assert.ErrorContains(t, err, "not both")

	_, err = runCLI(t, "compare", fp)
	assert.ErrorContains(t, err, "--stored is required")

	_, err = runCLI(t, "compare", fp, "not a key")
	assert.ErrorContains(t, err, "not an issue key")

	// The memory backend starts empty.
	_, err = runCLI(t, "compare", fp, "QA-1")
	assert.ErrorContains(t, err, "not found")
}

func TestMergeCommand(t *testing.T) {
	dir := setupWorkspace(t)
	users := writeFile(t, dir, "users.csv", "user\nalice\nbob\n")
	locales := writeFile(t, dir, "locales.yaml", "- locale: en-US\n- locale: de-DE\n")
	browsers := writeFile(t, dir, "browsers.json", `[{"browser":"chrome"}]`)

	out, err := runCLI(t, "merge", users, locales, browsers, "--json")
	require.NoError(t, err)
	var got struct {
		Columns []string            `json:"columns"`
		Rows    []map[string]string `json:"rows"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, []string{"user", "locale", "browser"}, got.Columns)
	assert.Equal(t, []map[string]string{
		{"user": "alice", "locale": "en-US", "browser": "chrome"},
		{"user": "bob", "locale": "de-DE", "browser": "chrome"},
	}, got.Rows)

	out, err = runCLI(t, "merge", users)
	require.NoError(t, err)
	assert.Equal(t, `||user||\r\n|alice|\r\n|bob|`+"\n", out)
}

func TestReportCommand_Lifecycle(t *testing.T) {
	dir := setupWorkspace(t)
	outcomes := writeFile(t, dir, "outcomes.yaml", `
- test: QA-1
  passed: false
  details: Login button missing
  fingerprint:
    driver: Chrome
    iteration: 0
- test: QA-1
  passed: false
  fingerprint:
    driver: Chrome
    iteration: 0
- test: QA-1
  passed: true
  fingerprint:
    driver: Chrome
    iteration: 0
- test: QA-2
  passed: true
  fingerprint:
    driver: Firefox
`)

	out, err := runCLI(t, "report", outcomes, "--json")
	require.NoError(t, err)
	var got struct {
		Results []resultOutput `json:"results"`
		Stats   struct {
			Created int `json:"created"`
			Updated int `json:"updated"`
			Closed  int `json:"closed"`
		} `json:"stats"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Results, 4)

	actions := make([]string, len(got.Results))
	for i, r := range got.Results {
		actions[i] = string(r.Action)
	}
	assert.Equal(t, []string{"created", "updated", "closed", "none"}, actions)
	assert.Equal(t, "BUG-1", got.Results[0].Defect)
	assert.Equal(t, "BUG-1", got.Results[2].Defect)
	assert.Equal(t, 1, got.Stats.Created)
	assert.Equal(t, 1, got.Stats.Updated)
	assert.Equal(t, 1, got.Stats.Closed)
}

func TestReportCommand_TextOutput(t *testing.T) {
	dir := setupWorkspace(t)
	outcomes := writeFile(t, dir, "outcomes.yaml", `
- test: https://example.atlassian.net/browse/qa-7
  passed: false
  fingerprint: {driver: Chrome}
`)
	out, err := runCLI(t, "report", outcomes)
	require.NoError(t, err)
	assert.Contains(t, out, "✗ QA-7 created BUG-1")
	assert.Contains(t, out, "1 created, 0 updated")
}

func TestReportCommand_BadFile(t *testing.T) {
	dir := setupWorkspace(t)
	outcomes := writeFile(t, dir, "outcomes.yaml", "- passed: true\n")
	_, err := runCLI(t, "report", outcomes)
	assert.ErrorContains(t, err, "has no test key")
}

func TestCloseCommand_NothingOpen(t *testing.T) {
	dir := setupWorkspace(t)
	fp := writeFile(t, dir, "fp.yaml", chromeFingerprint)
	out, err := runCLI(t, "close", "QA-3", fp)
	require.NoError(t, err)
	assert.Contains(t, out, "✓ QA-3 none")
}

func TestUnknownBackend(t *testing.T) {
	dir := setupWorkspace(t)
	t.Setenv("DEFECTS_BACKEND", "carrier-pigeon")
	fp := writeFile(t, dir, "fp.yaml", chromeFingerprint)
	_, err := runCLI(t, "close", "QA-3", fp)
	assert.ErrorContains(t, err, `unknown backend "carrier-pigeon"`)
}

func TestConfigCommands(t *testing.T) {
	dir := setupWorkspace(t)

	out, err := runCLI(t, "config", "set", "project", "QA")
	require.NoError(t, err)
	assert.Contains(t, out, "Set project = QA")
	_, err = os.Stat(filepath.Join(dir, ".defects", "config.yaml"))
	require.NoError(t, err)

	out, err = runCLI(t, "config", "get", "project")
	require.NoError(t, err)
	assert.Equal(t, "QA\n", out)

	_, err = runCLI(t, "config", "set", "jira.api_token", "secret")
	require.NoError(t, err)
	out, err = runCLI(t, "config", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "jira.api_token = ********")
	assert.Contains(t, out, "project = QA")
	assert.NotContains(t, out, "secret")

	_, err = runCLI(t, "config", "set", "no-such-key", "x")
	assert.ErrorContains(t, err, "unknown config key")
}

func TestNormalizeTestKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"QA-12", "QA-12"},
		{"qa-12", "QA-12"},
		{"https://example.atlassian.net/browse/QA-12?focusedId=1", "QA-12"},
		{"login-suite", "login-suite"},
	}
	for _, tt := range tests {
		if got := normalizeTestKey(tt.in); got != tt.want {
			t.Errorf("normalizeTestKey(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDisplayValue(t *testing.T) {
	tests := []struct {
		key, value, want string
	}{
		{"jira.api_token", "abc", "********"},
		{"jira.api_token", "", ""},
		{"sql.dsn", "root:pw@tcp(localhost:3306)/defects", "********@tcp(localhost:3306)/defects"},
		{"project", "QA", "QA"},
	}
	for _, tt := range tests {
		if got := displayValue(tt.key, tt.value); got != tt.want {
			t.Errorf("displayValue(%q, %q) = %q, want %q", tt.key, tt.value, got, tt.want)
		}
	}
}
