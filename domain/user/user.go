// Package user provides the "user" entity type: an account row in the user
// table plus a profile row keyed by the same uid.
package user

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"

	"github.com/rs/zerolog"
	"golang.org/x/crypto/bcrypt"

	"github.com/artpar/entityapi/adapters/hasher"
	"github.com/artpar/entityapi/adapters/random"
	"github.com/artpar/entityapi/core/runtime"
	"github.com/artpar/entityapi/core/schema"
	"github.com/artpar/entityapi/core/storage"
)

//go:embed user.yaml
var declarationYAML []byte

const (
	// GuestName is the first name given to accounts created without one.
	GuestName = "Guest user"

	userTable    = "user"
	profileTable = "profile"

	passwordLength   = 6
	passwordAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
)

// ErrUserNotFound is returned by Fetch when no account matches the context.
var ErrUserNotFound = fmt.Errorf("user: %w", storage.ErrNotFound)

// Hasher encodes generated passwords before they are stored.
type Hasher interface {
	Hash(password string) (string, error)
}

// Entity implements runtime.EntityType for users.
type Entity struct {
	store  storage.Store
	logger zerolog.Logger
	decl   schema.Declaration
	hasher Hasher
	rand   *random.Source
}

// Option configures an Entity.
type Option func(*Entity)

// WithHasher sets the password hasher.
func WithHasher(h Hasher) Option {
	return func(e *Entity) { e.hasher = h }
}

// WithHashCost hashes passwords with bcrypt at the given cost.
func WithHashCost(cost int) Option {
	return WithHasher(hasher.NewBcrypt(cost))
}

// WithRandom sets the entropy source for generated passwords.
func WithRandom(r io.Reader) Option {
	return func(e *Entity) { e.rand = random.New(r) }
}

// New creates the user entity type over a store.
func New(store storage.Store, logger zerolog.Logger, opts ...Option) *Entity {
	decl, err := schema.ParseDeclaration(declarationYAML)
	if err != nil {
		panic(fmt.Sprintf("user: embedded declaration: %v", err))
	}

	e := &Entity{
		store:  store,
		logger: logger.With().Str("entity", "user").Logger(),
		decl:   decl,
		hasher: hasher.NewBcrypt(bcrypt.DefaultCost),
		rand:   random.New(nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Declaration returns the embedded user declaration.
func (e *Entity) Declaration() schema.Declaration {
	return e.decl
}

// Layout returns the storage layout: uid keys both tables and the user
// table carries the account columns.
func Layout() storage.Layout {
	return storage.Layout{
		Key: "uid",
		Extra: map[string][]storage.ColumnDef{
			userTable: {
				{Name: "login", Type: "VARCHAR(60)", NotNull: true, Unique: true},
				{Name: "pass", Type: "TEXT"},
				{Name: "status", Type: "INTEGER"},
			},
		},
	}
}

// Migrate creates the user and profile tables.
func (e *Entity) Migrate(ctx context.Context, ent *schema.Entity) error {
	if err := e.store.Migrate(ctx, ent, Layout()); err != nil {
		return fmt.Errorf("migrate user: %w", err)
	}
	return nil
}

// Build creates an account and its profile. The returned record carries the
// generated password in clear text; it is not stored anywhere.
func (e *Entity) Build(ctx context.Context, req *runtime.Request) (runtime.Record, error) {
	name := GuestName
	if v, ok := req.Value("name"); ok {
		name = fmt.Sprint(v)
	}

	login, err := e.uniqueLogin(ctx, name)
	if err != nil {
		return nil, err
	}

	password, err := e.rand.String(passwordLength, passwordAlphabet)
	if err != nil {
		return nil, fmt.Errorf("generate password: %w", err)
	}
	hash, err := e.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	mobile, hasMobile := req.Value("mobile")
	mail := fmt.Sprint(mobile) + "@mobile"
	if v, ok := req.Value("mail"); ok {
		mail = fmt.Sprint(v)
	}

	uid, err := e.store.Insert(ctx, userTable, map[string]any{
		"login":  login,
		"pass":   hash,
		"mail":   mail,
		"status": 1,
	})
	if err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	profile := map[string]any{"uid": uid}
	if hasMobile {
		profile[alias(req.Entity, "mobile")] = mobile
	}
	if name != GuestName {
		profile[alias(req.Entity, "name")] = name
	}
	if v, ok := req.Value("last_name"); ok {
		profile[alias(req.Entity, "last_name")] = v
	}
	if _, err := e.store.Insert(ctx, profileTable, profile); err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	e.logger.Info().
		Int64("uid", uid).
		Str("login", login).
		Msg("account created")

	rec, err := e.load(ctx, req.Entity, uid)
	if err != nil {
		return nil, err
	}
	rec["password"] = password
	return rec, nil
}

// Fetch loads the account located by the context values.
func (e *Entity) Fetch(ctx context.Context, req *runtime.Request) (runtime.Record, error) {
	uid, err := e.lookup(ctx, req)
	if err != nil {
		return nil, err
	}
	return e.load(ctx, req.Entity, uid)
}

// Change writes the non-empty primary values to their tables. It returns a
// nil record when no account matches.
func (e *Entity) Change(ctx context.Context, req *runtime.Request) (runtime.Record, error) {
	uid, err := e.lookup(ctx, req)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows := make(map[string]map[string]any)
	for _, f := range req.Entity.Fields() {
		if f.Name == "uid" {
			continue
		}
		v, ok := req.Value(f.Name)
		if !ok {
			continue
		}
		if rows[f.Table] == nil {
			rows[f.Table] = make(map[string]any)
		}
		rows[f.Table][f.StorageAlias] = v
	}

	if row, ok := rows[userTable]; ok {
		if err := e.store.Update(ctx, userTable, uid, row); err != nil {
			return nil, fmt.Errorf("update account: %w", err)
		}
	}
	if row, ok := rows[profileTable]; ok {
		err := e.store.Update(ctx, profileTable, uid, row)
		if errors.Is(err, storage.ErrNotFound) {
			row["uid"] = uid
			_, err = e.store.Insert(ctx, profileTable, row)
		}
		if err != nil {
			return nil, fmt.Errorf("update profile: %w", err)
		}
	}

	e.logger.Info().Int64("uid", uid).Int("tables", len(rows)).Msg("account changed")
	return e.load(ctx, req.Entity, uid)
}

// Delete removes the account located by the context values.
func (e *Entity) Delete(ctx context.Context, req *runtime.Request) (bool, error) {
	uid, err := e.lookup(ctx, req)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if err := e.store.Delete(ctx, userTable, uid); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("delete account: %w", err)
	}

	e.logger.Info().Int64("uid", uid).Msg("account deleted")
	return true, nil
}

// lookup resolves the uid of the account named by the context: uid first,
// then mail, then mobile.
func (e *Entity) lookup(ctx context.Context, req *runtime.Request) (int64, error) {
	found, err := req.RequireContext()
	if err != nil {
		return 0, err
	}

	var row map[string]any
	switch {
	case found["uid"] != nil:
		row, err = e.store.Find(ctx, userTable, alias(req.Entity, "uid"), found["uid"])
	case found["mail"] != nil:
		row, err = e.store.Find(ctx, userTable, alias(req.Entity, "mail"), found["mail"])
	default:
		row, err = e.store.Find(ctx, profileTable, alias(req.Entity, "mobile"), found["mobile"])
	}
	if errors.Is(err, storage.ErrNotFound) {
		return 0, ErrUserNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("look up user: %w", err)
	}

	uid, ok := row["uid"].(int64)
	if !ok {
		return 0, fmt.Errorf("look up user: unexpected uid %v", row["uid"])
	}
	return uid, nil
}

// load assembles the account and profile rows into a record keyed by field name.
func (e *Entity) load(ctx context.Context, ent *schema.Entity, uid int64) (runtime.Record, error) {
	account, err := e.store.Find(ctx, userTable, "uid", uid)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load account: %w", err)
	}

	profile, err := e.store.Find(ctx, profileTable, "uid", uid)
	if errors.Is(err, storage.ErrNotFound) {
		profile = map[string]any{}
	} else if err != nil {
		return nil, fmt.Errorf("load profile: %w", err)
	}

	rec := runtime.Record{
		"login":  account["login"],
		"status": account["status"],
	}
	for _, f := range ent.Fields() {
		src := account
		if f.Table == profileTable {
			src = profile
		}
		rec[f.Name] = src[f.StorageAlias]
	}
	return rec, nil
}

func (e *Entity) uniqueLogin(ctx context.Context, name string) (string, error) {
	login := name
	for suffix := 1; ; suffix++ {
		taken, err := e.store.Exists(ctx, userTable, "login", login)
		if err != nil {
			return "", fmt.Errorf("check login: %w", err)
		}
		if !taken {
			return login, nil
		}
		login = fmt.Sprintf("%s-%d", name, suffix)
	}
}

func alias(ent *schema.Entity, name string) string {
	if a, ok := ent.Alias(name); ok {
		return a
	}
	return name
}
