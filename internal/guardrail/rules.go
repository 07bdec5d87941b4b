package guardrail

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// ReadabilityRuleID is reported when a response exceeds the readability ceiling.
const ReadabilityRuleID = "readability_grade"

//go:embed default_rules.yaml
var defaultRulesYAML []byte

// Rule is one banned-phrase matcher.
type Rule struct {
	ID          string `yaml:"id"`
	Phrase      string `yaml:"phrase,omitempty"`
	Pattern     string `yaml:"pattern,omitempty"`
	Description string `yaml:"description,omitempty"`

	re *regexp.Regexp
}

// Match reports whether the rule fires on text.
func (r Rule) Match(text string) bool {
	return r.re != nil && r.re.MatchString(text)
}

// RuleSet is an ordered list of rules plus the readability ceiling.
// It is immutable once parsed.
type RuleSet struct {
	Version             string  `yaml:"version"`
	ReadabilityCeiling  float64 `yaml:"readability_ceiling"`
	ReadabilityMinWords int     `yaml:"readability_min_words"`
	Rules               []Rule  `yaml:"rules"`
}

// ParseRuleSet decodes and compiles a YAML rule set.
func ParseRuleSet(data []byte) (*RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rule set: %w", err)
	}
	if err := rs.compile(); err != nil {
		return nil, err
	}
	return &rs, nil
}

// LoadRuleSet reads a rule set from disk.
func LoadRuleSet(path string) (*RuleSet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rule set %s: %w", path, err)
	}
	return ParseRuleSet(data)
}

// DefaultRuleSet returns the rule set compiled into the binary.
func DefaultRuleSet() *RuleSet {
	rs, err := ParseRuleSet(defaultRulesYAML)
	if err != nil {
		panic("guardrail: embedded rule set invalid: " + err.Error())
	}
	return rs
}

func (rs *RuleSet) compile() error {
	if len(rs.Rules) == 0 {
		return errors.New("rule set has no rules")
	}
	if rs.ReadabilityCeiling <= 0 {
		return fmt.Errorf("readability_ceiling must be positive, got %v", rs.ReadabilityCeiling)
	}

	seen := make(map[string]bool, len(rs.Rules))
	for i := range rs.Rules {
		r := &rs.Rules[i]
		if r.ID == "" {
			return fmt.Errorf("rule %d has no id", i)
		}
		if r.ID == ReadabilityRuleID {
			return fmt.Errorf("rule id %q is reserved", r.ID)
		}
		if seen[r.ID] {
			return fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true

		expr, err := r.expression()
		if err != nil {
			return err
		}
		re, err := regexp.Compile("(?i)" + expr)
		if err != nil {
			return fmt.Errorf("rule %q: %w", r.ID, err)
		}
		r.re = re
	}
	return nil
}

func (r *Rule) expression() (string, error) {
	switch {
	case r.Phrase != "" && r.Pattern != "":
		return "", fmt.Errorf("rule %q sets both phrase and pattern", r.ID)
	case strings.TrimSpace(r.Phrase) != "":
		return phraseExpression(r.Phrase), nil
	case r.Pattern != "":
		return r.Pattern, nil
	default:
		return "", fmt.Errorf("rule %q sets neither phrase nor pattern", r.ID)
	}
}

// phraseExpression quotes a literal phrase and lets any run of whitespace
// match between words. An end is anchored on a word boundary only when the
// phrase starts or ends with a word character there; `\b` after a trailing
// "!" would need a word character to follow and never match at end of text.
func phraseExpression(phrase string) string {
	words := strings.Fields(phrase)
	if len(words) == 0 {
		return ""
	}
	first, last := words[0], words[len(words)-1]
	for i, w := range words {
		words[i] = regexp.QuoteMeta(w)
	}
	expr := strings.Join(words, `\s+`)
	if isWordByte(first[0]) {
		expr = `\b` + expr
	}
	if isWordByte(last[len(last)-1]) {
		expr += `\b`
	}
	return expr
}

// isWordByte mirrors the ASCII class RE2 uses for \b.
func isWordByte(b byte) bool {
	return b == '_' || ('0' <= b && b <= '9') || ('a' <= b && b <= 'z') || ('A' <= b && b <= 'Z')
}
