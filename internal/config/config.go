// Package config loads defects settings from .defects/config.yaml, the
// user config directory and DEFECTS_* environment variables.
package config

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ConfigDir is the per-project directory holding config.yaml.
const ConfigDir = ".defects"

// Config keys.
const (
	KeyBackend              = "backend"
	KeyJSON                 = "json"
	KeyBucketSize           = "bucket-size"
	KeyProject              = "project"
	KeyIssueType            = "issue-type"
	KeyLinkType             = "link-type"
	KeyPreconditionLinkType = "precondition-link-type"
	KeyLabels               = "labels"
	KeyClosedStatus         = "closed-status"
	KeyClosedStatuses       = "closed-statuses"
	KeyStaleStatuses        = "stale-statuses"
	KeyFixedResolution      = "fixed-resolution"
	KeyDuplicateResolution  = "duplicate-resolution"
	KeyDuplicateLabel       = "duplicate-label"
	KeyIncludeDataSource    = "match.include-data-source"
	KeyLineBreak            = "codec.line-break"
	KeyFenceLanguage        = "codec.fence-language"
	KeyLogFormat            = "log.format"
	KeyTimeout              = "timeout"
)

var v *viper.Viper

// Initialize sets up the viper configuration singleton. Call once at startup.
// explicit, when non-empty, is read instead of the discovered config file.
func Initialize(explicit ...string) error {
	v = viper.New()
	v.SetConfigType("yaml")

	// DEFECTS_BUCKET_SIZE, DEFECTS_MATCH_INCLUDE_DATA_SOURCE, ...
	v.SetEnvPrefix("DEFECTS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var path string
	if len(explicit) > 0 && explicit[0] != "" {
		path = explicit[0]
	} else {
		path = discoverConfigFile()
	}
	if path == "" {
		return nil
	}
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("error reading config file %s: %w", path, err)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(KeyBackend, "jira")
	v.SetDefault(KeyJSON, false)
	v.SetDefault(KeyBucketSize, 8)
	v.SetDefault(KeyProject, "")
	v.SetDefault(KeyIssueType, "Bug")
	v.SetDefault(KeyLinkType, "Relates")
	v.SetDefault(KeyPreconditionLinkType, "Tests")
	v.SetDefault(KeyLabels, []string{})
	v.SetDefault(KeyClosedStatus, "Done")
	v.SetDefault(KeyClosedStatuses, []string{"Done", "Closed", "Resolved"})
	v.SetDefault(KeyStaleStatuses, []string{"Stale"})
	v.SetDefault(KeyFixedResolution, "Fixed")
	v.SetDefault(KeyDuplicateResolution, "Duplicate")
	v.SetDefault(KeyDuplicateLabel, "Duplicate")
	v.SetDefault(KeyIncludeDataSource, false)
	v.SetDefault(KeyLineBreak, `\r\n`)
	v.SetDefault(KeyFenceLanguage, "json")
	v.SetDefault(KeyLogFormat, "text")
	v.SetDefault(KeyTimeout, 5*time.Minute)
}

// discoverConfigFile walks up from the working directory looking for
// .defects/config.yaml, then falls back to the user config directory.
func discoverConfigFile() string {
	if path, err := FindConfigPath(); err == nil {
		return path
	}
	if dir, err := os.UserConfigDir(); err == nil {
		path := filepath.Join(dir, "defects", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		path := filepath.Join(home, ".config", "defects", "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// FindConfigPath returns the nearest .defects/config.yaml at or above the
// working directory.
func FindConfigPath() (string, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}
	for dir := cwd; ; dir = filepath.Dir(dir) {
		path := filepath.Join(dir, ConfigDir, "config.yaml")
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
		if dir == filepath.Dir(dir) {
			break
		}
	}
	return "", fmt.Errorf("no %s/config.yaml found in current directory or parents", ConfigDir)
}

// ResetForTesting drops the singleton so the next Initialize starts clean.
func ResetForTesting() {
	v = nil
}

// ConfigFileUsed returns the path of the loaded config file, if any.
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// Set overrides a value for the rest of the process (command-line flags).
func Set(key string, value interface{}) {
	if v != nil {
		v.Set(key, value)
	}
}

// GetString retrieves a string configuration value.
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value.
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value.
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value.
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value. A plain
// string (as set through the environment) is split on commas.
func GetStringSlice(key string) []string {
	if v == nil {
		return nil
	}
	var values []string
	if s, ok := v.Get(key).(string); ok {
		values = strings.Split(s, ",")
	} else {
		values = v.GetStringSlice(key)
	}
	var out []string
	for _, s := range values {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// AllSettings returns every resolved setting, for `defects config list`.
func AllSettings() map[string]interface{} {
	if v == nil {
		return nil
	}
	return v.AllSettings()
}

// Store exposes the viper settings to backend factories as a
// tracker.ConfigStore, so "jira.url" can live in config.yaml.
type Store struct{}

// GetConfig implements tracker.ConfigStore.
func (Store) GetConfig(_ context.Context, key string) (string, error) {
	return GetString(key), nil
}
