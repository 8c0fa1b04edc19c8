package fingerprint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a fingerprint from a YAML or JSON file:
//
//	driver: Chrome
//	platform: Windows 11
//	iteration: 2
//	capabilities: {os: win}
//	data_source:
//	  columns: [user]
//	  rows: [{user: alice}]
func LoadFile(path string) (Fingerprint, error) {
	// #nosec G304 - path is supplied by the operator on the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return Fingerprint{}, fmt.Errorf("reading fingerprint: %w", err)
	}

	var fp Fingerprint
	if strings.EqualFold(filepath.Ext(path), ".json") {
		err = json.Unmarshal(data, &fp)
	} else {
		err = yaml.Unmarshal(data, &fp)
	}
	if err != nil {
		return Fingerprint{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return fp, nil
}
