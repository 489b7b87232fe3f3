package rulesfile

// RuleEntry represents a single domain rule entry in the YAML
type RuleEntry struct {
	Domain  string `yaml:"domain"`
	Action  string `yaml:"action"`
	Timeout string `yaml:"timeout,omitempty"`
}

// RulesConfig is the root structure for the rules file
type RulesConfig struct {
	Rules []RuleEntry `yaml:"rules"`
}
