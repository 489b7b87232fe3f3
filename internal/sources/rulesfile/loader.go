// Package rulesfile loads operator-provided domain rules from a YAML file,
// used to seed the rule set on startup.
package rulesfile

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Loader handles loading and parsing of the rules YAML file
type Loader struct {
	filePath string
}

// NewLoader creates a new rules file loader
func NewLoader(filePath string) *Loader {
	return &Loader{
		filePath: filePath,
	}
}

// Load reads and parses the rules file
func (l *Loader) Load() (RulesConfig, error) {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return RulesConfig{}, fmt.Errorf("failed to read rules file: %w", err)
	}

	var config RulesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return RulesConfig{}, fmt.Errorf("failed to parse rules yaml: %w", err)
	}

	return config, nil
}
