package user

import (
	"context"
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/artpar/entityapi/adapters/random"
	"github.com/artpar/entityapi/core/runtime"
	"github.com/artpar/entityapi/core/storage"
)

type fixture struct {
	rt    *runtime.Runtime
	store *storage.SQLiteStore
}

func setup(t *testing.T) *fixture {
	t.Helper()

	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	u := New(store, zerolog.Nop(), WithHashCost(bcrypt.MinCost))
	rt := runtime.New(runtime.Config{Logger: zerolog.Nop()})
	require.NoError(t, rt.Register(u))

	ent, err := rt.Schema("user")
	require.NoError(t, err)
	require.NoError(t, u.Migrate(context.Background(), ent))

	return &fixture{rt: rt, store: store}
}

func (f *fixture) load(t *testing.T) *runtime.Instance {
	t.Helper()
	in, err := f.rt.Load("user")
	require.NoError(t, err)
	return in
}

func (f *fixture) create(t *testing.T, values map[string]any) runtime.Record {
	t.Helper()
	in := f.load(t)
	for k, v := range values {
		in.Set(k, v)
	}
	rec, err := in.Create(context.Background())
	require.NoError(t, err)
	return rec
}

func TestDeclaration(t *testing.T) {
	f := setup(t)
	ent, err := f.rt.Schema("user")
	require.NoError(t, err)

	assert.Equal(t, []string{"uid", "mail", "mobile"}, ent.Contextual())
	alias, _ := ent.Alias("mobile")
	assert.Equal(t, "field_user_mobile", alias)
	table, _ := ent.ContainingTable("last_name")
	assert.Equal(t, "profile", table)
	assert.Equal(t, []string{"valid_cell", "valid_email_address"}, ent.Functions())
}

func TestBuild(t *testing.T) {
	f := setup(t)

	rec := f.create(t, map[string]any{"mail": "jane@example.com", "name": "Jane", "lastName": "Doe"})

	assert.Equal(t, int64(1), rec["uid"])
	assert.Equal(t, "Jane", rec["login"])
	assert.Equal(t, "Jane", rec["name"])
	assert.Equal(t, "Doe", rec["last_name"])
	assert.Equal(t, "jane@example.com", rec["mail"])
	assert.Equal(t, int64(1), rec["status"])
	assert.NotContains(t, rec, "pass")

	password, ok := rec["password"].(string)
	require.True(t, ok)
	assert.Len(t, password, passwordLength)
	for _, c := range password {
		assert.Contains(t, passwordAlphabet, string(c))
	}

	row, err := f.store.Find(context.Background(), "user", "uid", 1)
	require.NoError(t, err)
	hash, _ := row["pass"].(string)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)))
}

func TestBuildUniqueLogin(t *testing.T) {
	f := setup(t)

	f.create(t, map[string]any{"mail": "a@example.com", "name": "Jane"})
	second := f.create(t, map[string]any{"mail": "b@example.com", "name": "Jane"})
	third := f.create(t, map[string]any{"mail": "c@example.com", "name": "Jane"})

	assert.Equal(t, "Jane-1", second["login"])
	assert.Equal(t, "Jane-2", third["login"])
}

func TestBuildMobileOnly(t *testing.T) {
	f := setup(t)

	rec := f.create(t, map[string]any{"mobile": "5551234567"})

	assert.Equal(t, GuestName, rec["login"])
	assert.Equal(t, "5551234567@mobile", rec["mail"])
	assert.Equal(t, "5551234567", rec["mobile"])
	assert.Nil(t, rec["name"], "guest default is not stored as a first name")
}

func TestBuildRejectedBeforeHook(t *testing.T) {
	f := setup(t)

	_, err := f.load(t).Set("name", "Jane").Create(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "you must have at least one of: mail (user), mobile (profile)")

	ok, err := f.store.Exists(context.Background(), "user", "login", "Jane")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFetch(t *testing.T) {
	f := setup(t)
	f.create(t, map[string]any{"mail": "jane@example.com", "mobile": "5551234567", "name": "Jane"})

	tests := []struct {
		name string
		key  string
		val  any
	}{
		{"by mail", "mail", "jane@example.com"},
		{"by mobile", "mobile", "5551234567"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := f.load(t).Context(tt.key, tt.val).Get(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int64(1), rec["uid"])
			assert.Equal(t, "Jane", rec["name"])
			assert.NotContains(t, rec, "password")
		})
	}

	t.Run("uid wins over mail", func(t *testing.T) {
		f.create(t, map[string]any{"mail": "joe@example.com", "name": "Joe"})
		rec, err := f.load(t).
			Context("uid", 2).
			Context("mail", "jane@example.com").
			Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "Joe", rec["name"])
	})

	t.Run("not found", func(t *testing.T) {
		_, err := f.load(t).Context("mail", "nobody@example.com").Get(context.Background())
		assert.ErrorIs(t, err, ErrUserNotFound)
		assert.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func TestFetchWithoutContext(t *testing.T) {
	f := setup(t)

	_, err := f.load(t).Set("mail", "jane@example.com").Get(context.Background())

	var mce *runtime.MissingContextError
	require.True(t, errors.As(err, &mce), "got %v", err)
	assert.Equal(t, "user: only uid, mail and mobile are contextual fields", mce.Error())
}

func TestChange(t *testing.T) {
	f := setup(t)
	f.create(t, map[string]any{"mobile": "5551234567"})

	rec, err := f.load(t).
		Context("mobile", "5551234567").
		Set("name", "Jane").
		Set("lastName", "Doe").
		Set("mail", "jane@example.com").
		Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Jane", rec["name"])
	assert.Equal(t, "Doe", rec["last_name"])
	assert.Equal(t, "jane@example.com", rec["mail"])
	assert.Equal(t, GuestName, rec["login"], "login is not a declared field")

	rec, err = f.load(t).Context("mail", "jane@example.com").Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "5551234567", rec["mobile"])
}

func TestChangeRecreatesProfile(t *testing.T) {
	f := setup(t)
	f.create(t, map[string]any{"mail": "jane@example.com"})
	require.NoError(t, f.store.Delete(context.Background(), "profile", 1))

	rec, err := f.load(t).
		Context("mail", "jane@example.com").
		Set("name", "Jane").
		Update(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Jane", rec["name"])
}

func TestChangeNotFound(t *testing.T) {
	f := setup(t)

	in := f.load(t).Context("mail", "nobody@example.com").Set("name", "Jane")
	rec, err := in.Update(context.Background())
	require.NoError(t, err)
	assert.Nil(t, rec)
	assert.Equal(t, runtime.PhaseDispatched, in.Phase())
}

func TestDelete(t *testing.T) {
	f := setup(t)
	f.create(t, map[string]any{"mail": "jane@example.com", "mobile": "5551234567"})

	removed, err := f.load(t).Context("mail", "jane@example.com").Remove(context.Background())
	require.NoError(t, err)
	assert.True(t, removed)

	_, err = f.store.Find(context.Background(), "profile", "uid", 1)
	assert.ErrorIs(t, err, storage.ErrNotFound, "profile row cascades")

	removed, err = f.load(t).Context("mobile", "5551234567").Remove(context.Background())
	require.NoError(t, err)
	assert.False(t, removed)
}

type plainHasher struct{}

func (plainHasher) Hash(password string) (string, error) { return "plain:" + password, nil }

func TestBuildPasswordSource(t *testing.T) {
	store, err := storage.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	u := New(store, zerolog.Nop(), WithHasher(plainHasher{}), WithRandom(random.NewFake(0)))
	rt := runtime.New(runtime.Config{Logger: zerolog.Nop()})
	require.NoError(t, rt.Register(u))
	ent, err := rt.Schema("user")
	require.NoError(t, err)
	require.NoError(t, u.Migrate(context.Background(), ent))

	in, err := rt.Load("user")
	require.NoError(t, err)
	rec, err := in.Set("mail", "jane@example.com").Create(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "AAAAAA", rec["password"])

	row, err := store.Find(context.Background(), "user", "uid", 1)
	require.NoError(t, err)
	assert.Equal(t, "plain:AAAAAA", row["pass"])
}
