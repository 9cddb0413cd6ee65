package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/artpar/entityapi/core/schema"
)

// SQLiteStore implements Store with SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.RWMutex

	// tables maps table names to their migrated definitions
	tables map[string]TableDef
}

// NewSQLiteStore opens a SQLite database. Use ":memory:" for tests.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One connection keeps ":memory:" databases and per-connection pragmas consistent.
	db.SetMaxOpenConns(1)

	pragmas := []string{
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma: %w", err)
		}
	}

	return &SQLiteStore{
		db:     db,
		tables: make(map[string]TableDef),
	}, nil
}

// Migrate creates the tables of an entity.
func (s *SQLiteStore) Migrate(ctx context.Context, ent *schema.Entity, layout Layout) error {
	defs, err := Tables(ent, layout)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, def := range defs {
		if _, err := s.db.ExecContext(ctx, BuildCreateTableSQL(def)); err != nil {
			return fmt.Errorf("create table %s: %w", def.Name, err)
		}
		s.tables[def.Name] = def
	}
	return nil
}

func (s *SQLiteStore) table(name string) (TableDef, error) {
	s.mu.RLock()
	def, ok := s.tables[name]
	s.mu.RUnlock()
	if !ok {
		return TableDef{}, fmt.Errorf("table %q not migrated", name)
	}
	return def, nil
}

// checkColumns rejects columns the table does not define. Column names are
// interpolated into SQL, so only migrated names get through.
func checkColumns(def TableDef, row map[string]any) ([]string, error) {
	cols := make([]string, 0, len(row))
	for c := range row {
		if !def.Has(c) {
			return nil, fmt.Errorf("table %s has no column %q", def.Name, c)
		}
		cols = append(cols, c)
	}
	sort.Strings(cols)
	return cols, nil
}

// Insert adds a row and returns its key.
func (s *SQLiteStore) Insert(ctx context.Context, table string, row map[string]any) (int64, error) {
	def, err := s.table(table)
	if err != nil {
		return 0, err
	}
	cols, err := checkColumns(def, row)
	if err != nil {
		return 0, err
	}

	values := make([]any, len(cols))
	placeholders := make([]string, len(cols))
	for i, c := range cols {
		values[i] = row[c]
		placeholders[i] = "?"
	}

	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", def.Name, strings.Join(cols, ", "), strings.Join(placeholders, ", "))
	if len(cols) == 0 {
		insertSQL = fmt.Sprintf("INSERT INTO %s DEFAULT VALUES", def.Name)
	}

	result, err := s.db.ExecContext(ctx, insertSQL, values...)
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", def.Name, err)
	}

	if v, ok := row[def.Key]; ok {
		if id, ok := toInt64(v); ok {
			return id, nil
		}
	}
	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert into %s: %w", def.Name, err)
	}
	return id, nil
}

// Find returns the first row whose column equals value.
func (s *SQLiteStore) Find(ctx context.Context, table, column string, value any) (map[string]any, error) {
	def, err := s.table(table)
	if err != nil {
		return nil, err
	}
	if !def.Has(column) {
		return nil, fmt.Errorf("table %s has no column %q", def.Name, column)
	}

	names := make([]string, len(def.Columns))
	for i, c := range def.Columns {
		names[i] = c.Name
	}

	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s = ? LIMIT 1", strings.Join(names, ", "), def.Name, column)
	row := s.db.QueryRowContext(ctx, query, value)

	values := make([]any, len(names))
	dest := make([]any, len(names))
	for i := range values {
		dest[i] = &values[i]
	}
	if err := row.Scan(dest...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("select from %s: %w", def.Name, err)
	}

	result := make(map[string]any, len(names))
	for i, name := range names {
		result[name] = convertFromDB(values[i])
	}
	return result, nil
}

// Exists reports whether a row with column equal to value exists.
func (s *SQLiteStore) Exists(ctx context.Context, table, column string, value any) (bool, error) {
	def, err := s.table(table)
	if err != nil {
		return false, err
	}
	if !def.Has(column) {
		return false, fmt.Errorf("table %s has no column %q", def.Name, column)
	}

	var n int
	query := fmt.Sprintf("SELECT COUNT(1) FROM %s WHERE %s = ?", def.Name, column)
	if err := s.db.QueryRowContext(ctx, query, value).Scan(&n); err != nil {
		return false, fmt.Errorf("count %s: %w", def.Name, err)
	}
	return n > 0, nil
}

// Update writes columns of the row with the given key.
func (s *SQLiteStore) Update(ctx context.Context, table string, key int64, row map[string]any) error {
	def, err := s.table(table)
	if err != nil {
		return err
	}
	row = maps.Clone(row)
	delete(row, def.Key)
	cols, err := checkColumns(def, row)
	if err != nil {
		return err
	}
	if len(cols) == 0 {
		return nil // Nothing to update
	}

	sets := make([]string, len(cols))
	values := make([]any, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = c + " = ?"
		values = append(values, row[c])
	}
	values = append(values, key)

	updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?", def.Name, strings.Join(sets, ", "), def.Key)
	result, err := s.db.ExecContext(ctx, updateSQL, values...)
	if err != nil {
		return fmt.Errorf("update %s: %w", def.Name, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("update %s key %d: %w", def.Name, key, ErrNotFound)
	}
	return nil
}

// Delete removes the row with the given key.
func (s *SQLiteStore) Delete(ctx context.Context, table string, key int64) error {
	def, err := s.table(table)
	if err != nil {
		return err
	}

	deleteSQL := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", def.Name, def.Key)
	result, err := s.db.ExecContext(ctx, deleteSQL, key)
	if err != nil {
		return fmt.Errorf("delete from %s: %w", def.Name, err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return fmt.Errorf("delete from %s key %d: %w", def.Name, key, ErrNotFound)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// DB returns the underlying database connection.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

// convertFromDB converts a database value to a Go value.
func convertFromDB(val any) any {
	// Handle byte slices as strings for text columns
	if b, ok := val.([]byte); ok {
		return string(b)
	}
	return val
}

func toInt64(v any) (int64, bool) {
	switch n := v.(type) {
	case int64:
		return n, true
	case int:
		return int64(n), true
	case int32:
		return int64(n), true
	}
	return 0, false
}
