// Package extraction maps OCR form fields and tables onto the solvency metrics.
package extraction

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// Metric names understood by the extractor.
const (
	MetricNetSalary        = "NetSalary"
	MetricFixedMonthlyDebt = "FixedMonthlyDebt"
	MetricBankIncome       = "BankIncome"
)

// Aggregation modes for a metric that matches more than once.
const (
	// AggregateSingle requires every match to carry the same amount.
	AggregateSingle = "single"
	// AggregateSum adds up matches found under distinct labels.
	AggregateSum = "sum"
)

var requiredMetrics = []string{MetricNetSalary, MetricFixedMonthlyDebt, MetricBankIncome}

//go:embed rules.yaml
var defaultRulesYAML []byte

// MetricRule describes where one metric is read from.
type MetricRule struct {
	Name      string   `yaml:"name"`
	Document  string   `yaml:"document"`
	Labels    []string `yaml:"labels"`
	Aggregate string   `yaml:"aggregate"`

	patterns []*regexp.Regexp
}

// Rules is the full label mapping, one rule per metric.
type Rules struct {
	Metrics []MetricRule `yaml:"metrics"`
}

// DefaultRules returns the mapping compiled into the binary.
func DefaultRules() (*Rules, error) {
	return ParseRules(defaultRulesYAML)
}

// LoadRules reads a YAML mapping from disk. An empty path selects the defaults.
func LoadRules(path string) (*Rules, error) {
	if path == "" {
		return DefaultRules()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read extraction rules %s: %w", path, err)
	}
	return ParseRules(data)
}

// ParseRules decodes and validates a YAML mapping and compiles its patterns.
func ParseRules(data []byte) (*Rules, error) {
	var rules Rules
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to decode extraction rules: %w", err)
	}

	seen := make(map[string]bool, len(rules.Metrics))
	for i := range rules.Metrics {
		rule := &rules.Metrics[i]
		if !isRequired(rule.Name) {
			return nil, fmt.Errorf("unknown metric %q", rule.Name)
		}
		if seen[rule.Name] {
			return nil, fmt.Errorf("duplicate rule for metric %q", rule.Name)
		}
		seen[rule.Name] = true

		switch rule.Aggregate {
		case "":
			rule.Aggregate = AggregateSingle
		case AggregateSingle, AggregateSum:
		default:
			return nil, fmt.Errorf("metric %q: unknown aggregate %q", rule.Name, rule.Aggregate)
		}

		if len(rule.Labels) == 0 {
			return nil, fmt.Errorf("metric %q has no labels", rule.Name)
		}
		rule.patterns = make([]*regexp.Regexp, 0, len(rule.Labels))
		for _, label := range rule.Labels {
			re, err := regexp.Compile("(?i)" + label)
			if err != nil {
				return nil, fmt.Errorf("metric %q: bad label pattern %q: %w", rule.Name, label, err)
			}
			rule.patterns = append(rule.patterns, re)
		}
	}

	for _, name := range requiredMetrics {
		if !seen[name] {
			return nil, fmt.Errorf("no rule for required metric %q", name)
		}
	}
	return &rules, nil
}

func (r *MetricRule) matches(label string) bool {
	for _, re := range r.patterns {
		if re.MatchString(label) {
			return true
		}
	}
	return false
}

func isRequired(name string) bool {
	for _, m := range requiredMetrics {
		if m == name {
			return true
		}
	}
	return false
}
