package schema

import (
	"slices"
	"sort"
)

// Table is an ordered group of fields sharing one backing table.
type Table struct {
	Name   string            `json:"name" yaml:"name"`
	Fields []FieldDescriptor `json:"fields" yaml:"fields"`
}

// Entity is the parsed, immutable schema of one entity type.
// All accessors return copies.
type Entity struct {
	name   string
	tables []Table
	rules  map[FieldKey]ValidatorRule
	groups []GroupConstraint

	// index maps a field name to its table and position.
	index map[string][2]int
}

// Name returns the entity type name.
func (e *Entity) Name() string { return e.name }

// Tables returns the tables in declaration order.
func (e *Entity) Tables() []Table {
	out := make([]Table, len(e.tables))
	for i, t := range e.tables {
		out[i] = Table{Name: t.Name, Fields: slices.Clone(t.Fields)}
	}
	return out
}

// Fields returns every field descriptor, table by table.
func (e *Entity) Fields() []FieldDescriptor {
	var out []FieldDescriptor
	for _, t := range e.tables {
		out = append(out, t.Fields...)
	}
	return out
}

// Field returns the descriptor of a field by internal name.
func (e *Entity) Field(name string) (FieldDescriptor, bool) {
	pos, ok := e.index[name]
	if !ok {
		return FieldDescriptor{}, false
	}
	return e.tables[pos[0]].Fields[pos[1]], true
}

// Has reports whether the entity declares a field with that name.
func (e *Entity) Has(name string) bool {
	_, ok := e.index[name]
	return ok
}

// ContainingTable returns the table a field is stored in.
func (e *Entity) ContainingTable(name string) (string, bool) {
	f, ok := e.Field(name)
	return f.Table, ok
}

// Alias returns the storage alias of a field.
func (e *Entity) Alias(name string) (string, bool) {
	f, ok := e.Field(name)
	return f.StorageAlias, ok
}

// Contextual returns the names of contextual fields in declaration order.
func (e *Entity) Contextual() []string {
	var out []string
	for _, f := range e.Fields() {
		if f.Contextual {
			out = append(out, f.Name)
		}
	}
	return out
}

// Rule returns the validator rule of a field, if one is declared.
func (e *Entity) Rule(key FieldKey) (ValidatorRule, bool) {
	r, ok := e.rules[key]
	return r, ok
}

// Groups returns the group constraints in order of first appearance.
func (e *Entity) Groups() []GroupConstraint {
	out := make([]GroupConstraint, len(e.groups))
	for i, g := range e.groups {
		out[i] = GroupConstraint{Name: g.Name, Members: slices.Clone(g.Members)}
	}
	return out
}

// GroupsOf returns the names of the groups a field belongs to.
func (e *Entity) GroupsOf(key FieldKey) []string {
	var out []string
	for _, g := range e.groups {
		if g.Has(key) {
			out = append(out, g.Name)
		}
	}
	return out
}

// Functions returns the sorted, distinct named validators the schema references.
func (e *Entity) Functions() []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range e.rules {
		if r.Function != "" && !seen[r.Function] {
			seen[r.Function] = true
			out = append(out, r.Function)
		}
	}
	sort.Strings(out)
	return out
}

// Equal reports whether two schemas are structurally equal.
func (e *Entity) Equal(o *Entity) bool {
	if e == nil || o == nil {
		return e == o
	}
	if e.name != o.name || len(e.tables) != len(o.tables) || len(e.groups) != len(o.groups) || len(e.rules) != len(o.rules) {
		return false
	}
	for i := range e.tables {
		if e.tables[i].Name != o.tables[i].Name || !slices.Equal(e.tables[i].Fields, o.tables[i].Fields) {
			return false
		}
	}
	for i := range e.groups {
		if e.groups[i].Name != o.groups[i].Name || !slices.Equal(e.groups[i].Members, o.groups[i].Members) {
			return false
		}
	}
	for k, r := range e.rules {
		or, ok := o.rules[k]
		if !ok || or.Function != r.Function || or.Regex != r.Regex {
			return false
		}
	}
	return true
}

// Description is a serializable view of an entity schema.
type Description struct {
	Entity string            `json:"entity" yaml:"entity"`
	Tables []Table           `json:"tables" yaml:"tables"`
	Rules  []RuleDescription `json:"rules,omitempty" yaml:"rules,omitempty"`
	Groups []GroupConstraint `json:"groups,omitempty" yaml:"groups,omitempty"`
}

// RuleDescription pairs a rule with its field.
type RuleDescription struct {
	FieldKey      `yaml:",inline"`
	ValidatorRule `yaml:",inline"`
}

// Describe returns a serializable view of the schema.
func (e *Entity) Describe() Description {
	d := Description{Entity: e.name, Tables: e.Tables(), Groups: e.Groups()}
	for _, f := range e.Fields() {
		if r, ok := e.rules[f.Key()]; ok {
			d.Rules = append(d.Rules, RuleDescription{FieldKey: f.Key(), ValidatorRule: r})
		}
	}
	return d
}
