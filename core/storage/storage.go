// Package storage derives tables from entity schemas and provides the
// row operations entity hooks build on.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/artpar/entityapi/core/schema"
)

// ErrNotFound is returned when no row matches.
var ErrNotFound = errors.New("record not found")

// Store provides row operations over the tables of migrated entities.
type Store interface {
	// Migrate creates the tables of an entity.
	Migrate(ctx context.Context, ent *schema.Entity, layout Layout) error

	// Insert adds a row and returns its key.
	Insert(ctx context.Context, table string, row map[string]any) (int64, error)

	// Find returns the first row whose column equals value.
	Find(ctx context.Context, table, column string, value any) (map[string]any, error)

	// Exists reports whether a row with column equal to value exists.
	Exists(ctx context.Context, table, column string, value any) (bool, error)

	// Update writes columns of the row with the given key.
	Update(ctx context.Context, table string, key int64, row map[string]any) error

	// Delete removes the row with the given key.
	Delete(ctx context.Context, table string, key int64) error

	// Close closes the storage connection.
	Close() error
}

// Layout adds storage-only details to an entity's tables.
type Layout struct {
	// Key is the integer key shared by all tables of the entity. When a
	// declared field has this name, its storage alias is used as the column.
	Key string

	// Extra holds storage-only columns per table.
	Extra map[string][]ColumnDef
}

// ColumnDef defines a database column.
type ColumnDef struct {
	Name          string
	Type          string
	PrimaryKey    bool
	AutoIncrement bool
	NotNull       bool
	Unique        bool

	// References is "table(column)" for a foreign key.
	References string
}

// TableDef is a derived table.
type TableDef struct {
	Name    string
	Key     string
	Columns []ColumnDef
}

// Has reports whether the table has a column.
func (t TableDef) Has(column string) bool {
	for _, c := range t.Columns {
		if c.Name == column {
			return true
		}
	}
	return false
}

// Tables derives the table definitions of an entity. The first table owns
// the auto-increment key; the others share it through a foreign key.
func Tables(ent *schema.Entity, layout Layout) ([]TableDef, error) {
	if layout.Key == "" {
		return nil, fmt.Errorf("entity %q: layout key is required", ent.Name())
	}

	key := layout.Key
	if alias, ok := ent.Alias(layout.Key); ok {
		key = alias
	}

	tables := ent.Tables()
	defs := make([]TableDef, 0, len(tables))
	for i, t := range tables {
		def := TableDef{Name: t.Name, Key: key}
		pk := ColumnDef{Name: key, Type: "INTEGER", PrimaryKey: true}
		if i == 0 {
			pk.AutoIncrement = true
		} else {
			pk.References = fmt.Sprintf("%s(%s)", tables[0].Name, key)
		}
		def.Columns = append(def.Columns, pk)

		for _, f := range t.Fields {
			if f.StorageAlias == key {
				if i != 0 {
					return nil, fmt.Errorf("entity %q: key field %q must be in table %q", ent.Name(), f.Name, tables[0].Name)
				}
				continue
			}
			def.Columns = append(def.Columns, ColumnDef{Name: f.StorageAlias, Type: f.SQLType()})
		}
		def.Columns = append(def.Columns, layout.Extra[t.Name]...)
		defs = append(defs, def)
	}

	for name := range layout.Extra {
		if _, ok := findTable(defs, name); !ok {
			return nil, fmt.Errorf("entity %q: extra columns for unknown table %q", ent.Name(), name)
		}
	}
	return defs, nil
}

func findTable(defs []TableDef, name string) (TableDef, bool) {
	for _, d := range defs {
		if d.Name == name {
			return d, true
		}
	}
	return TableDef{}, false
}

// BuildCreateTableSQL generates CREATE TABLE SQL for a derived table.
func BuildCreateTableSQL(t TableDef) string {
	var cols []string
	for _, c := range t.Columns {
		cols = append(cols, buildColumnDef(c))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)", t.Name, strings.Join(cols, ",\n  "))
}

func buildColumnDef(c ColumnDef) string {
	parts := []string{c.Name, c.Type}
	if c.PrimaryKey {
		parts = append(parts, "PRIMARY KEY")
		if c.AutoIncrement {
			parts = append(parts, "AUTOINCREMENT")
		}
	}
	if c.NotNull {
		parts = append(parts, "NOT NULL")
	}
	if c.Unique {
		parts = append(parts, "UNIQUE")
	}
	if c.References != "" {
		parts = append(parts, "REFERENCES", c.References, "ON DELETE CASCADE")
	}
	return strings.Join(parts, " ")
}
