// Package validation checks a bound entity state against its schema.
//
// Validation never stops at the first failure. Every field is inspected and
// failures are collected into four categories; the surfaced error is the
// first non-empty category in the order missing, malformed, invalid, group.
package validation

import (
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	"github.com/artpar/entityapi/core/schema"
	"github.com/artpar/entityapi/core/state"
)

// Report is the full result of one validation pass.
type Report struct {
	Entity     string
	Missing    []string
	Malformed  []MalformedGroup
	Invalid    []InvalidField
	Incomplete []IncompleteGroup
}

// OK reports whether no failure was collected.
func (r *Report) OK() bool {
	return len(r.Missing) == 0 && len(r.Malformed) == 0 && len(r.Invalid) == 0 && len(r.Incomplete) == 0
}

// Err returns the surfaced error of the report, or nil.
func (r *Report) Err() error {
	switch {
	case len(r.Missing) > 0:
		return &MissingFieldsError{Entity: r.Entity, Fields: r.Missing}
	case len(r.Malformed) > 0:
		return &MalformedFieldsError{Entity: r.Entity, ByType: r.Malformed}
	case len(r.Invalid) > 0:
		return &InvalidFieldsError{Entity: r.Entity, Fields: r.Invalid}
	case len(r.Incomplete) > 0:
		return &GroupConstraintError{Entity: r.Entity, Groups: r.Incomplete}
	}
	return nil
}

func (r *Report) malformed(t schema.FieldType, field string) {
	for i := range r.Malformed {
		if r.Malformed[i].Type == t {
			r.Malformed[i].Fields = append(r.Malformed[i].Fields, field)
			return
		}
	}
	r.Malformed = append(r.Malformed, MalformedGroup{Type: t, Fields: []string{field}})
}

// Validate checks st against ent and returns the surfaced failure, if any.
func Validate(ent *schema.Entity, st *state.State, funcs *Functions) error {
	return Collect(ent, st, funcs).Err()
}

// Collect runs the full validation pass and returns every failure found.
// A function rule whose validator is not registered in funcs fails its check.
func Collect(ent *schema.Entity, st *state.State, funcs *Functions) *Report {
	rep := &Report{Entity: ent.Name()}

	// unsatisfied counts, per group, error-free members without a value.
	unsatisfied := make(map[string]int)

	for _, table := range ent.Tables() {
		for _, f := range table.Fields {
			value, _ := st.Effective(f.Name)
			present := !state.IsEmpty(value)
			failed := false

			if f.Required && !present {
				rep.Missing = append(rep.Missing, f.Name)
				failed = true
			}

			if present && !typeCheck(f.Type, value) {
				rep.malformed(f.Type, f.Name)
				failed = true
			}

			if rule, ok := ent.Rule(f.Key()); ok && present {
				for _, inv := range checkRule(f.Name, rule, value, funcs) {
					rep.Invalid = append(rep.Invalid, inv)
					failed = true
				}
			}

			if failed || present {
				continue
			}
			for _, g := range ent.GroupsOf(f.Key()) {
				unsatisfied[g]++
			}
		}
	}

	for _, g := range ent.Groups() {
		if unsatisfied[g.Name] == len(g.Members) {
			rep.Incomplete = append(rep.Incomplete, IncompleteGroup{Name: g.Name, Members: g.Members})
		}
	}
	return rep
}

func checkRule(field string, rule schema.ValidatorRule, value any, funcs *Functions) []InvalidField {
	var out []InvalidField
	given := displayString(value)

	if rule.Function != "" {
		var fn Predicate
		if funcs != nil {
			fn, _ = funcs.Lookup(rule.Function)
		}
		switch {
		case fn == nil:
			out = append(out, InvalidField{Field: field, Given: given, Check: CheckUnregistered, Function: rule.Function})
		case !fn(value):
			out = append(out, InvalidField{Field: field, Given: given, Check: CheckFunction, Function: rule.Function})
		}
	}

	if rule.Regex != "" {
		s, ok := StringOf(value)
		if !ok || !rule.MatchString(s) {
			out = append(out, InvalidField{Field: field, Given: given, Check: CheckRegex, Regex: rule.Regex})
		}
	}
	return out
}

// typeCheck reports whether a present value fits the declared type.
func typeCheck(t schema.FieldType, value any) bool {
	switch t {
	case schema.FieldTypeInteger:
		n, ok := IntegerOf(value)
		return ok && n != 0
	case schema.FieldTypeString:
		s, ok := StringOf(value)
		return ok && s != ""
	}
	return true
}

// IntegerOf converts integers, integral floats and decimal strings to int64.
func IntegerOf(value any) (int64, bool) {
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return rv.Int(), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return 0, false
		}
		return int64(u), true
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) || f > math.MaxInt64 || f < math.MinInt64 {
			return 0, false
		}
		return int64(f), true
	case reflect.String:
		n, err := strconv.ParseInt(strings.TrimSpace(rv.String()), 10, 64)
		return n, err == nil
	}
	return 0, false
}

// StringOf converts a scalar value to its string form. Collections,
// structs and nil are not coercible.
func StringOf(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		return v, true
	case []byte:
		return string(v), true
	case fmt.Stringer:
		return v.String(), true
	case bool:
		return strconv.FormatBool(v), true
	}
	rv := reflect.ValueOf(value)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), true
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(rv.Float(), 'f', -1, 64), true
	case reflect.String:
		return rv.String(), true
	}
	return "", false
}

func displayString(value any) string {
	if s, ok := StringOf(value); ok {
		return s
	}
	return fmt.Sprint(value)
}
