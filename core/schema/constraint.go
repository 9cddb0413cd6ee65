package schema

import (
	"fmt"
	"regexp"
)

// ValidatorRule is the per-field validation rule. Both checks must pass
// when both are declared.
type ValidatorRule struct {
	// Function is the name of a registered predicate.
	Function string `json:"function,omitempty" yaml:"function,omitempty"`

	// Regex must fully match the string form of the value.
	Regex string `json:"regex,omitempty" yaml:"regex,omitempty"`

	pattern *regexp.Regexp
}

// newRule compiles the regex of a rule, anchoring it on both ends.
func newRule(function, regex string) (ValidatorRule, error) {
	r := ValidatorRule{Function: function, Regex: regex}
	if regex == "" {
		return r, nil
	}
	p, err := regexp.Compile(`^(?:` + regex + `)$`)
	if err != nil {
		return ValidatorRule{}, fmt.Errorf("invalid regex %q: %w", regex, err)
	}
	r.pattern = p
	return r, nil
}

// IsZero reports whether the rule declares no check.
func (r ValidatorRule) IsZero() bool {
	return r.Function == "" && r.Regex == ""
}

// MatchString reports whether s fully matches the rule's regex.
// A rule without a regex matches everything.
func (r ValidatorRule) MatchString(s string) bool {
	if r.pattern == nil {
		return true
	}
	return r.pattern.MatchString(s)
}

// merge combines two Validate directives on the same field.
func (r ValidatorRule) merge(other ValidatorRule) (ValidatorRule, error) {
	out := r
	if other.Function != "" {
		if out.Function != "" && out.Function != other.Function {
			return ValidatorRule{}, fmt.Errorf("conflicting validator functions %q and %q", out.Function, other.Function)
		}
		out.Function = other.Function
	}
	if other.Regex != "" {
		if out.Regex != "" && out.Regex != other.Regex {
			return ValidatorRule{}, fmt.Errorf("conflicting validator regexes %q and %q", out.Regex, other.Regex)
		}
		out.Regex = other.Regex
		out.pattern = other.pattern
	}
	return out, nil
}

// GroupConstraint requires at least one of its members to carry a value.
type GroupConstraint struct {
	Name    string     `json:"name" yaml:"name"`
	Members []FieldKey `json:"members" yaml:"members"`
}

// Has reports whether key is a member of the group.
func (g GroupConstraint) Has(key FieldKey) bool {
	for _, m := range g.Members {
		if m == key {
			return true
		}
	}
	return false
}

// MemberNames returns the field names of the members in order.
func (g GroupConstraint) MemberNames() []string {
	names := make([]string, len(g.Members))
	for i, m := range g.Members {
		names[i] = m.Field
	}
	return names
}
