package lifecycle

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadOutcomes reads a YAML (or JSON) list of outcomes written by a test
// runner. Outcomes without a test key are rejected.
func LoadOutcomes(path string) ([]Outcome, error) {
	// #nosec G304 - path is supplied by the operator on the command line
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading outcomes: %w", err)
	}
	var outcomes []Outcome
	if err := yaml.Unmarshal(data, &outcomes); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	for i, o := range outcomes {
		if o.TestKey == "" {
			return nil, fmt.Errorf("%s: outcome %d has no test key", path, i+1)
		}
	}
	return outcomes, nil
}
