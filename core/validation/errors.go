package validation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/entityapi/core/schema"
)

// MissingFieldsError lists required fields left empty.
type MissingFieldsError struct {
	Entity string
	Fields []string
}

func (e *MissingFieldsError) Error() string {
	return "missing fields: " + strings.Join(e.Fields, ", ")
}

// MalformedGroup lists the fields that failed the check for one type.
type MalformedGroup struct {
	Type   schema.FieldType
	Fields []string
}

// MalformedFieldsError lists fields whose value does not fit the declared
// type, grouped by type in order of first occurrence.
type MalformedFieldsError struct {
	Entity string
	ByType []MalformedGroup
}

func (e *MalformedFieldsError) Error() string {
	parts := make([]string, len(e.ByType))
	for i, g := range e.ByType {
		parts[i] = fmt.Sprintf("the following fields need to be %s: %s", g.Type, strings.Join(g.Fields, ", "))
	}
	return "malformed fields: " + strings.Join(parts, "; ")
}

// Fields returns every malformed field name.
func (e *MalformedFieldsError) Fields() []string {
	var out []string
	for _, g := range e.ByType {
		out = append(out, g.Fields...)
	}
	return out
}

// CheckKind names the rule check that failed.
type CheckKind string

const (
	CheckFunction     CheckKind = "function"
	CheckRegex        CheckKind = "regex"
	CheckUnregistered CheckKind = "unregistered"
)

// InvalidField is one failed rule check.
type InvalidField struct {
	Field    string
	Given    string
	Check    CheckKind
	Function string
	Regex    string
}

func (f InvalidField) String() string {
	switch f.Check {
	case CheckRegex:
		return fmt.Sprintf("%s (given %q; needs to match %q)", f.Field, f.Given, f.Regex)
	case CheckUnregistered:
		return fmt.Sprintf("%s (given %q; validator %q is not registered)", f.Field, f.Given, f.Function)
	default:
		return fmt.Sprintf("%s (given %q; needs to pass %q validation)", f.Field, f.Given, f.Function+"()")
	}
}

// InvalidFieldsError lists failed validator rule checks.
type InvalidFieldsError struct {
	Entity string
	Fields []InvalidField
}

func (e *InvalidFieldsError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = f.String()
	}
	return "invalid fields: " + strings.Join(parts, ", ")
}

// IncompleteGroup is a group constraint with no member carrying a value.
type IncompleteGroup struct {
	Name    string
	Members []schema.FieldKey
}

// GroupConstraintError lists every incomplete group.
type GroupConstraintError struct {
	Entity string
	Groups []IncompleteGroup
}

func (e *GroupConstraintError) Error() string {
	parts := make([]string, len(e.Groups))
	for i, g := range e.Groups {
		members := make([]string, len(g.Members))
		for j, m := range g.Members {
			members[j] = m.String()
		}
		parts[i] = strings.Join(members, ", ")
	}
	return "you must have at least one of: " + strings.Join(parts, ", and one of: ")
}

// Category returns the validation category of err for labelling,
// or an empty string when err is not a validation failure.
func Category(err error) string {
	var (
		missing   *MissingFieldsError
		malformed *MalformedFieldsError
		invalid   *InvalidFieldsError
		group     *GroupConstraintError
	)
	switch {
	case errors.As(err, &missing):
		return "missing"
	case errors.As(err, &malformed):
		return "malformed"
	case errors.As(err, &invalid):
		return "invalid"
	case errors.As(err, &group):
		return "group"
	}
	return ""
}

// IsValidationError reports whether err is one of the four validation outcomes.
func IsValidationError(err error) bool {
	return Category(err) != ""
}
