// Package state holds per-instance entity values and resolves caller keys
// onto declared fields.
//
// Values arrive through two channels: primary values set by the caller and
// context values used to locate an existing record. Both are keyed by the
// resolved internal field name, so a State never holds an undeclared key.
package state

import (
	"fmt"
	"maps"
	"reflect"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/artpar/entityapi/core/schema"
)

// State is the mutable value set of one entity instance.
// It is not safe for concurrent use.
type State struct {
	values  map[string]any
	context map[string]any
}

// New returns an empty state.
func New() *State {
	return &State{
		values:  make(map[string]any),
		context: make(map[string]any),
	}
}

// Value returns the primary value of a field.
func (s *State) Value(name string) (any, bool) {
	v, ok := s.values[name]
	return v, ok
}

// ContextValue returns the context value of a field.
func (s *State) ContextValue(name string) (any, bool) {
	v, ok := s.context[name]
	return v, ok
}

// Effective returns the value validation sees for a field: the context
// value when one is bound and non-nil, the primary value otherwise.
func (s *State) Effective(name string) (any, bool) {
	if v, ok := s.context[name]; ok && v != nil {
		return v, true
	}
	v, ok := s.values[name]
	return v, ok
}

// Values returns a copy of the primary values.
func (s *State) Values() map[string]any {
	return maps.Clone(s.values)
}

// ContextValues returns a copy of the context values.
func (s *State) ContextValues() map[string]any {
	return maps.Clone(s.context)
}

// Len returns the number of bound values across both channels.
func (s *State) Len() int {
	return len(s.values) + len(s.context)
}

// Equal reports whether two states hold the same values.
func (s *State) Equal(o *State) bool {
	return reflect.DeepEqual(s.values, o.values) && reflect.DeepEqual(s.context, o.context)
}

// Clone returns an independent copy of the state.
func (s *State) Clone() *State {
	return &State{values: maps.Clone(s.values), context: maps.Clone(s.context)}
}

// UnknownPropertyError is returned when a key matches no declared field.
type UnknownPropertyError struct {
	Entity string
	Key    string
}

func (e *UnknownPropertyError) Error() string {
	return fmt.Sprintf("could not find property %q on entity %q", e.Key, e.Entity)
}

// Bind resolves key to a field of ent and stores value in the primary or
// context channel of st. It returns the resolved field name.
//
// The key is first tried lowercased as an exact field name, then rewritten
// from compound-word form (mailAddress -> mail_address). A single-element
// collection is unwrapped before storing.
func Bind(ent *schema.Entity, st *State, key string, value any, toContext bool) (string, error) {
	name, ok := Resolve(ent, key)
	if !ok {
		return "", &UnknownPropertyError{Entity: ent.Name(), Key: key}
	}

	value = Unwrap(value)
	if toContext {
		st.context[name] = value
	} else {
		st.values[name] = value
	}
	return name, nil
}

// Resolve maps an external key to a declared field name.
func Resolve(ent *schema.Entity, key string) (string, bool) {
	if exact := strings.ToLower(key); ent.Has(exact) {
		return exact, true
	}
	if compound := CompoundToSeparated(key); ent.Has(compound) {
		return compound, true
	}
	return "", false
}

// CompoundToSeparated rewrites a compound-word key to lowercase
// underscore-separated form. The first rune is always lowercased; every
// later uppercase rune is prefixed with an underscore.
func CompoundToSeparated(key string) string {
	if key == "" {
		return ""
	}
	var b strings.Builder
	b.Grow(len(key) + 4)
	first, size := utf8.DecodeRuneInString(key)
	b.WriteRune(unicode.ToLower(first))
	for _, r := range key[size:] {
		if unicode.IsUpper(r) {
			b.WriteByte('_')
		}
		b.WriteRune(unicode.ToLower(r))
	}
	return b.String()
}

// Unwrap returns the sole element of a single-element slice, array or map.
// Any other value, including byte slices, is returned as is.
func Unwrap(v any) any {
	if v == nil {
		return nil
	}
	if _, ok := v.([]byte); ok {
		return v
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		if rv.Len() == 1 {
			return rv.Index(0).Interface()
		}
	case reflect.Map:
		if rv.Len() == 1 {
			iter := rv.MapRange()
			iter.Next()
			return iter.Value().Interface()
		}
	}
	return v
}

// IsEmpty reports whether a value counts as absent: nil, an empty string
// or an empty collection.
func IsEmpty(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return s == ""
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array, reflect.Map:
		return rv.Len() == 0
	case reflect.Pointer, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
