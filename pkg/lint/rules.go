// Package lint turns def-use analyses into diagnostics.
package lint

import (
	"errors"
	"fmt"
	"strings"
)

// Rule names one diagnostic class.
type Rule string

const (
	RuleUnusedVariable    Rule = "unused-variable"
	RuleUnusedParameter   Rule = "unused-parameter"
	RuleUndefinedVariable Rule = "undefined-variable"
	RulePossiblyUndefined Rule = "possibly-undefined-variable"
)

// AllRules lists every rule in bit order.
var AllRules = []Rule{
	RuleUnusedVariable,
	RuleUnusedParameter,
	RuleUndefinedVariable,
	RulePossiblyUndefined,
}

// ErrUnknownRule is returned for rule names that are not in AllRules.
var ErrUnknownRule = errors.New("unknown rule")

func (r Rule) bit() RuleSet {
	for i, known := range AllRules {
		if known == r {
			return 1 << i
		}
	}
	return 0
}

// ParseRule validates a rule name.
func ParseRule(name string) (Rule, error) {
	r := Rule(strings.TrimSpace(name))
	if r.bit() == 0 {
		return "", fmt.Errorf("%w: %q", ErrUnknownRule, name)
	}
	return r, nil
}

// RuleSet is a bitmask of enabled rules.
type RuleSet uint8

// DefaultRules is every rule except unused-parameter.
var DefaultRules = NewRuleSet(RuleUnusedVariable, RuleUndefinedVariable, RulePossiblyUndefined)

// NewRuleSet returns a set with rules enabled.
func NewRuleSet(rules ...Rule) RuleSet {
	var s RuleSet
	for _, r := range rules {
		s.Enable(r)
	}
	return s
}

// ParseRuleSet builds a set from rule names.
func ParseRuleSet(names []string) (RuleSet, error) {
	var s RuleSet
	for _, name := range names {
		r, err := ParseRule(name)
		if err != nil {
			return 0, err
		}
		s.Enable(r)
	}
	return s, nil
}

// Enable turns r on.
func (s *RuleSet) Enable(r Rule) {
	*s |= r.bit()
}

// Disable turns r off.
func (s *RuleSet) Disable(r Rule) {
	*s &^= r.bit()
}

// Enabled reports whether r is on.
func (s RuleSet) Enabled(r Rule) bool {
	bit := r.bit()
	return bit != 0 && s&bit != 0
}

// Rules lists the enabled rules in bit order.
func (s RuleSet) Rules() []Rule {
	var out []Rule
	for _, r := range AllRules {
		if s.Enabled(r) {
			out = append(out, r)
		}
	}
	return out
}

// String joins the enabled rule names with commas. It doubles as the cache
// fingerprint of the rule set.
func (s RuleSet) String() string {
	names := make([]string, 0, len(AllRules))
	for _, r := range s.Rules() {
		names = append(names, string(r))
	}
	return strings.Join(names, ",")
}
