package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/defects/internal/lifecycle"
	"github.com/steveyegge/defects/internal/table"
)

func initFresh(t *testing.T, explicit ...string) {
	t.Helper()
	ResetForTesting()
	t.Cleanup(ResetForTesting)
	require.NoError(t, Initialize(explicit...))
}

func writeConfig(t *testing.T, dir, body string) string {
	t.Helper()
	path := filepath.Join(dir, ConfigDir, "config.yaml")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaults(t *testing.T) {
	t.Chdir(t.TempDir())
	initFresh(t)

	tests := []struct {
		key  string
		want interface{}
	}{
		{KeyBackend, "jira"},
		{KeyBucketSize, 8},
		{KeyIssueType, "Bug"},
		{KeyLinkType, "Relates"},
		{KeyPreconditionLinkType, "Tests"},
		{KeyClosedStatus, "Done"},
		{KeyLineBreak, `\r\n`},
		{KeyLogFormat, "text"},
	}
	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			var got interface{}
			switch tt.want.(type) {
			case int:
				got = GetInt(tt.key)
			default:
				got = GetString(tt.key)
			}
			if got != tt.want {
				t.Errorf("%s = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
	assert.Equal(t, 5*time.Minute, GetDuration(KeyTimeout))
	assert.False(t, GetBool(KeyIncludeDataSource))
	assert.Equal(t, []string{"Done", "Closed", "Resolved"}, GetStringSlice(KeyClosedStatuses))
	assert.Empty(t, ConfigFileUsed())
}

func TestUninitializedGetters(t *testing.T) {
	ResetForTesting()
	assert.Empty(t, GetString(KeyBackend))
	assert.Zero(t, GetInt(KeyBucketSize))
	assert.False(t, GetBool(KeyJSON))
	assert.Zero(t, GetDuration(KeyTimeout))
	assert.Nil(t, GetStringSlice(KeyLabels))
	assert.Nil(t, AllSettings())
	assert.Empty(t, ConfigFileUsed())
	Set(KeyBackend, "sql") // no-op without a config
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DEFECTS_BUCKET_SIZE", "3")
	t.Setenv("DEFECTS_MATCH_INCLUDE_DATA_SOURCE", "true")
	t.Setenv("DEFECTS_STALE_STATUSES", "Stale, Obsolete")
	t.Setenv("DEFECTS_JIRA_URL", "https://example.atlassian.net")
	initFresh(t)

	assert.Equal(t, 3, GetInt(KeyBucketSize))
	assert.True(t, GetBool(KeyIncludeDataSource))
	assert.Equal(t, []string{"Stale", "Obsolete"}, GetStringSlice(KeyStaleStatuses))

	got, err := Store{}.GetConfig(context.Background(), "jira.url")
	require.NoError(t, err)
	assert.Equal(t, "https://example.atlassian.net", got)
}

func TestDiscoveredFile(t *testing.T) {
	root := t.TempDir()
	path := writeConfig(t, root, `
backend: memory
project: QA
labels: [automation, nightly]
match:
  include-data-source: true
codec:
  fence-language: ""
`)
	sub := filepath.Join(root, "suite", "login")
	require.NoError(t, os.MkdirAll(sub, 0o750))
	t.Chdir(sub)
	initFresh(t)

	used, err := filepath.EvalSymlinks(ConfigFileUsed())
	require.NoError(t, err)
	want, err := filepath.EvalSymlinks(path)
	require.NoError(t, err)
	assert.Equal(t, want, used)

	assert.Equal(t, "memory", GetString(KeyBackend))
	assert.Equal(t, []string{"automation", "nightly"}, GetStringSlice(KeyLabels))
	assert.True(t, GetBool(KeyIncludeDataSource))
	assert.Equal(t, "", Codec().FenceLanguage)
	assert.Contains(t, AllSettings(), "backend")
}

func TestExplicitFile(t *testing.T) {
	t.Chdir(t.TempDir())
	path := filepath.Join(t.TempDir(), "alt.yaml")
	require.NoError(t, os.WriteFile(path, []byte("backend: sql\n"), 0o600))
	initFresh(t, path)
	assert.Equal(t, "sql", GetString(KeyBackend))

	ResetForTesting()
	err := Initialize(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "error reading config file")
	ResetForTesting()
}

func TestUserConfigDirFallback(t *testing.T) {
	t.Chdir(t.TempDir())
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)
	dir := filepath.Join(xdg, "defects")
	require.NoError(t, os.MkdirAll(dir, 0o750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte("project: OPS\n"), 0o600))
	initFresh(t)
	assert.Equal(t, "OPS", GetString(KeyProject))
}

func TestFindConfigPath_None(t *testing.T) {
	t.Chdir(t.TempDir())
	_, err := FindConfigPath()
	assert.ErrorContains(t, err, "no .defects/config.yaml found")
}

func TestLifecycle(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		t.Chdir(t.TempDir())
		initFresh(t)
		got := Lifecycle()
		want := lifecycle.DefaultOptions()
		want.Labels = nil
		assert.Equal(t, want, got)
	})

	t.Run("overrides", func(t *testing.T) {
		dir := t.TempDir()
		writeConfig(t, dir, `
jira:
  project: WEB
issue-type: Defect
link-type: Blocks
labels: automation
closed-status: Closed
fixed-resolution: Done
duplicate-resolution: Duplicated
duplicate-label: dup
closed-statuses: [Closed]
stale-statuses: [Obsolete]
bucket-size: 2
match:
  include-data-source: true
codec:
  line-break: "<br>"
  fence-language: text
`)
		t.Chdir(dir)
		initFresh(t)

		got := Lifecycle()
		assert.Equal(t, "WEB", got.Project)
		assert.Equal(t, "Defect", got.IssueType)
		assert.Equal(t, "Blocks", got.LinkType)
		assert.Equal(t, []string{"automation"}, got.Labels)
		assert.Equal(t, "Closed", got.ClosedStatus)
		assert.Equal(t, "Done", got.FixedResolution)
		assert.Equal(t, "Duplicated", got.DuplicateResolution)
		assert.Equal(t, "dup", got.DuplicateLabel)
		assert.Equal(t, []string{"Closed"}, got.Statuses.Closed)
		assert.Equal(t, []string{"Obsolete"}, got.Statuses.Stale)
		assert.Equal(t, 2, got.BucketSize)
		assert.True(t, got.IncludeDataSource)
		assert.Equal(t, table.CodecOptions{LineBreak: "<br>", FenceLanguage: "text"}, got.Codec)
	})

	t.Run("project wins over jira.project", func(t *testing.T) {
		t.Chdir(t.TempDir())
		t.Setenv("DEFECTS_PROJECT", "QA")
		t.Setenv("DEFECTS_JIRA_PROJECT", "WEB")
		initFresh(t)
		assert.Equal(t, "QA", Lifecycle().Project)
	})

	t.Run("flag override", func(t *testing.T) {
		t.Chdir(t.TempDir())
		initFresh(t)
		Set(KeyBucketSize, 1)
		assert.Equal(t, 1, Lifecycle().BucketSize)
	})
}
