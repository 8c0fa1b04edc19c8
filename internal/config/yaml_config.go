package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// backendPrefixes are the key namespaces read by tracker backends through
// Store. Anything under them is accepted by SetYamlConfig.
var backendPrefixes = []string{"jira.", "sql.", "memory."}

// IsKnownKey reports whether key is a setting defects reads.
func IsKnownKey(key string) bool {
	if _, ok := knownKeys()[key]; ok {
		return true
	}
	for _, prefix := range backendPrefixes {
		if strings.HasPrefix(key, prefix) && len(key) > len(prefix) {
			return true
		}
	}
	return false
}

// KnownKeys lists the top-level settings in sorted order.
func KnownKeys() []string {
	known := knownKeys()
	keys := make([]string, 0, len(known))
	for k := range known {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func knownKeys() map[string]struct{} {
	return map[string]struct{}{
		KeyBackend: {}, KeyJSON: {}, KeyBucketSize: {}, KeyProject: {},
		KeyIssueType: {}, KeyLinkType: {}, KeyPreconditionLinkType: {},
		KeyLabels: {}, KeyClosedStatus: {}, KeyClosedStatuses: {},
		KeyStaleStatuses: {}, KeyFixedResolution: {}, KeyDuplicateResolution: {},
		KeyDuplicateLabel: {}, KeyIncludeDataSource: {}, KeyLineBreak: {},
		KeyFenceLanguage: {}, KeyLogFormat: {}, KeyTimeout: {},
	}
}

// SetYamlConfig writes key into the project's .defects/config.yaml, creating
// the file in the working directory when none is found. Dotted keys become
// nested mappings. Comments and ordering of the existing file are kept.
func SetYamlConfig(key, value string) (string, error) {
	if !IsKnownKey(key) {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	configPath, err := FindConfigPath()
	if err != nil {
		cwd, wdErr := os.Getwd()
		if wdErr != nil {
			return "", fmt.Errorf("failed to get working directory: %w", wdErr)
		}
		configPath = filepath.Join(cwd, ConfigDir, "config.yaml")
		if err := os.MkdirAll(filepath.Dir(configPath), 0o750); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", ConfigDir, err)
		}
	}

	content, err := os.ReadFile(configPath) //nolint:gosec // configPath is discovered, not user input
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return "", fmt.Errorf("failed to read config.yaml: %w", err)
	}

	updated, err := updateYamlKey(content, key, value)
	if err != nil {
		return "", fmt.Errorf("failed to update %s: %w", configPath, err)
	}
	if err := os.WriteFile(configPath, updated, 0o600); err != nil {
		return "", fmt.Errorf("failed to write config.yaml: %w", err)
	}
	return configPath, nil
}

// updateYamlKey sets key to value inside content. Missing intermediate
// mappings are created; an existing scalar in the path is an error.
func updateYamlKey(content []byte, key, value string) ([]byte, error) {
	var doc yaml.Node
	if len(bytes.TrimSpace(content)) > 0 {
		if err := yaml.Unmarshal(content, &doc); err != nil {
			return nil, fmt.Errorf("invalid yaml: %w", err)
		}
	}
	if doc.Kind == 0 || len(doc.Content) == 0 {
		doc = yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{{Kind: yaml.MappingNode}}}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, errors.New("top level is not a mapping")
	}

	parts := strings.Split(key, ".")
	node := root
	for i, part := range parts {
		last := i == len(parts)-1
		child := lookup(node, part)
		switch {
		case child == nil && last:
			node.Content = append(node.Content,
				&yaml.Node{Kind: yaml.ScalarNode, Value: part},
				scalarNode(value))
		case child == nil:
			child = &yaml.Node{Kind: yaml.MappingNode}
			node.Content = append(node.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: part}, child)
			node = child
		case last:
			*child = *scalarNode(value)
		case child.Kind != yaml.MappingNode:
			return nil, fmt.Errorf("%s is not a mapping", strings.Join(parts[:i+1], "."))
		default:
			node = child
		}
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func lookup(mapping *yaml.Node, key string) *yaml.Node {
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		if mapping.Content[i].Value == key {
			return mapping.Content[i+1]
		}
	}
	return nil
}

// scalarNode builds the node for a command-line value. Comma-separated
// values become a flow sequence; booleans are lowercased.
func scalarNode(value string) *yaml.Node {
	if strings.Contains(value, ",") {
		seq := &yaml.Node{Kind: yaml.SequenceNode, Style: yaml.FlowStyle}
		for _, item := range strings.Split(value, ",") {
			if item = strings.TrimSpace(item); item != "" {
				seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Value: item})
			}
		}
		return seq
	}
	if lower := strings.ToLower(value); lower == "true" || lower == "false" {
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!bool", Value: lower}
	}
	return &yaml.Node{Kind: yaml.ScalarNode, Value: value}
}
