package schema

import (
	"fmt"
	"strings"
)

// FieldType is the declared value type of a field.
type FieldType string

const (
	FieldTypeInteger FieldType = "integer"
	FieldTypeString  FieldType = "string"
)

// typeAliases maps accepted spellings to canonical field types.
var typeAliases = map[string]FieldType{
	"integer": FieldTypeInteger,
	"int":     FieldTypeInteger,
	"string":  FieldTypeString,
	"varchar": FieldTypeString,
	"char":    FieldTypeString,
	"text":    FieldTypeString,
}

// ParseFieldType normalizes a declared type name.
func ParseFieldType(s string) (FieldType, error) {
	t, ok := typeAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown field type %q", s)
	}
	return t, nil
}

// ValidFieldTypes returns the canonical field types.
func ValidFieldTypes() []FieldType {
	return []FieldType{FieldTypeInteger, FieldTypeString}
}

// FieldDescriptor describes one declared field of an entity.
type FieldDescriptor struct {
	// Name is the internal field name used by set and context.
	Name string `json:"name" yaml:"name"`

	// Table is the logical table the field belongs to.
	Table string `json:"table" yaml:"table"`

	// StorageAlias is the column name used by the backing store.
	StorageAlias string `json:"storage_alias" yaml:"storage_alias"`

	Type FieldType `json:"type" yaml:"type"`

	// Length is the declared maximum length, 0 when unset.
	Length int `json:"length,omitempty" yaml:"length,omitempty"`

	Required   bool `json:"required" yaml:"required"`
	Contextual bool `json:"contextual" yaml:"contextual"`
}

// Key returns the (table, field) key of the descriptor.
func (f FieldDescriptor) Key() FieldKey {
	return FieldKey{Table: f.Table, Field: f.Name}
}

// SQLType returns the SQLite column type for the field.
func (f FieldDescriptor) SQLType() string {
	switch f.Type {
	case FieldTypeInteger:
		return "INTEGER"
	default:
		if f.Length > 0 {
			return fmt.Sprintf("VARCHAR(%d)", f.Length)
		}
		return "TEXT"
	}
}

// FieldKey identifies a field within its table.
type FieldKey struct {
	Table string `json:"table" yaml:"table"`
	Field string `json:"field" yaml:"field"`
}

func (k FieldKey) String() string {
	return k.Field + " (" + k.Table + ")"
}
