package rulesfile

import (
	"fmt"
	"time"

	"github.com/tabreaper/tabreaper/internal/logger"
	"github.com/tabreaper/tabreaper/internal/rules"
)

// Mapper converts rules file entries to domain rules
type Mapper struct {
	logger logger.Logger
}

// NewMapper creates a new rules mapper
func NewMapper(log logger.Logger) *Mapper {
	return &Mapper{logger: log}
}

// MapRules converts a RulesConfig to a slice of validated rules. Malformed
// entries are skipped with a warning rather than failing the whole file.
func (m *Mapper) MapRules(config RulesConfig) []rules.Rule {
	mapped := make([]rules.Rule, 0, len(config.Rules))

	for _, entry := range config.Rules {
		rule, err := m.mapEntry(entry)
		if err != nil {
			m.logger.Warn("skipping malformed rule entry",
				logger.String("domain", entry.Domain),
				logger.Error(err))
			continue
		}
		mapped = append(mapped, rule)
	}

	return mapped
}

func (m *Mapper) mapEntry(entry RuleEntry) (rules.Rule, error) {
	domain, err := rules.Normalize(entry.Domain)
	if err != nil {
		return rules.Rule{}, err
	}

	var timeout time.Duration
	if entry.Timeout != "" {
		timeout, err = time.ParseDuration(entry.Timeout)
		if err != nil {
			return rules.Rule{}, fmt.Errorf("invalid timeout %q: %w", entry.Timeout, err)
		}
	}

	rule := rules.Rule{
		Domain:  domain,
		Action:  rules.RuleAction(entry.Action),
		Timeout: timeout,
	}
	if err := rule.Validate(); err != nil {
		return rules.Rule{}, err
	}
	return rule, nil
}
