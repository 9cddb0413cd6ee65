package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/artpar/entityapi/core/schema"
)

func testEntity(t *testing.T) *schema.Entity {
	t.Helper()
	ent, err := schema.Parse(schema.Declaration{
		Entity: "user",
		Fields: []schema.FieldDecl{
			{Name: "uid", Meta: `@Api\Table("user") @Api\Column(name="uid", type="int")`},
			{Name: "mail", Meta: `@Api\Table("user") @Api\Column(name="mail", type="varchar", length="255")`},
			{Name: "mobile", Meta: `@Api\Table("profile") @Api\Column(name="mobile", real="field_user_mobile", type="varchar", length="32")`},
		},
	}, schema.Options{})
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return ent
}

func testLayout() Layout {
	return Layout{
		Key: "uid",
		Extra: map[string][]ColumnDef{
			"user": {{Name: "login", Type: "VARCHAR(60)", NotNull: true, Unique: true}},
		},
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	if err != nil {
		t.Fatalf("NewSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	if err := store.Migrate(context.Background(), testEntity(t), testLayout()); err != nil {
		t.Fatalf("Migrate failed: %v", err)
	}
	return store
}

func TestTables(t *testing.T) {
	defs, err := Tables(testEntity(t), testLayout())
	if err != nil {
		t.Fatalf("Tables failed: %v", err)
	}
	if len(defs) != 2 {
		t.Fatalf("got %d tables, want 2", len(defs))
	}

	user := BuildCreateTableSQL(defs[0])
	for _, want := range []string{"uid INTEGER PRIMARY KEY AUTOINCREMENT", "mail VARCHAR(255)", "login VARCHAR(60) NOT NULL UNIQUE"} {
		if !strings.Contains(user, want) {
			t.Errorf("user table SQL missing %q:\n%s", want, user)
		}
	}

	profile := BuildCreateTableSQL(defs[1])
	for _, want := range []string{"uid INTEGER PRIMARY KEY REFERENCES user(uid) ON DELETE CASCADE", "field_user_mobile VARCHAR(32)"} {
		if !strings.Contains(profile, want) {
			t.Errorf("profile table SQL missing %q:\n%s", want, profile)
		}
	}
}

func TestTablesErrors(t *testing.T) {
	ent := testEntity(t)

	if _, err := Tables(ent, Layout{}); err == nil {
		t.Error("expected error for missing key")
	}
	if _, err := Tables(ent, Layout{Key: "uid", Extra: map[string][]ColumnDef{"nope": {{Name: "x", Type: "TEXT"}}}}); err == nil {
		t.Error("expected error for extra columns on unknown table")
	}
}

func TestInsertFindUpdateDelete(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	id, err := store.Insert(ctx, "user", map[string]any{"mail": "a@b.com", "login": "jane"})
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if id != 1 {
		t.Errorf("id = %d, want 1", id)
	}

	if _, err := store.Insert(ctx, "profile", map[string]any{"uid": id, "field_user_mobile": "5551234567"}); err != nil {
		t.Fatalf("Insert profile failed: %v", err)
	}

	row, err := store.Find(ctx, "user", "mail", "a@b.com")
	if err != nil {
		t.Fatalf("Find failed: %v", err)
	}
	if row["uid"] != int64(1) || row["login"] != "jane" {
		t.Errorf("row = %v", row)
	}

	// Text keys compare against the INTEGER column by affinity.
	if _, err := store.Find(ctx, "user", "uid", "1"); err != nil {
		t.Errorf("Find by string key failed: %v", err)
	}

	ok, err := store.Exists(ctx, "user", "login", "jane")
	if err != nil || !ok {
		t.Errorf("Exists = %v, %v", ok, err)
	}

	if err := store.Update(ctx, "user", id, map[string]any{"uid": 99, "mail": "c@d.com"}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	row, _ = store.Find(ctx, "user", "uid", id)
	if row["mail"] != "c@d.com" {
		t.Errorf("mail after update = %v", row["mail"])
	}

	if err := store.Delete(ctx, "user", id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := store.Find(ctx, "profile", "uid", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("profile after cascade delete: %v, want ErrNotFound", err)
	}
	if err := store.Delete(ctx, "user", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("second Delete = %v, want ErrNotFound", err)
	}
	if err := store.Update(ctx, "user", id, map[string]any{"mail": "x"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("Update missing = %v, want ErrNotFound", err)
	}
}

func TestUnknownColumnsRejected(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Insert(ctx, "user", map[string]any{"mail; DROP TABLE user": "x"}); err == nil {
		t.Error("Insert accepted an unknown column")
	}
	if _, err := store.Find(ctx, "user", "nope", 1); err == nil {
		t.Error("Find accepted an unknown column")
	}
	if _, err := store.Exists(ctx, "ghost", "uid", 1); err == nil {
		t.Error("Exists accepted an unknown table")
	}
}

func TestUniqueConstraint(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if _, err := store.Insert(ctx, "user", map[string]any{"login": "jane"}); err != nil {
		t.Fatalf("Insert failed: %v", err)
	}
	if _, err := store.Insert(ctx, "user", map[string]any{"login": "jane"}); err == nil {
		t.Error("duplicate login accepted")
	}
}
