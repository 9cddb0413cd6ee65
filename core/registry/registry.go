// Package registry caches parsed entity schemas for the lifetime of the process.
// Each entity type is parsed on first load; concurrent first loads may parse
// redundantly but only one immutable schema is ever published per name.
package registry

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/entityapi/core/schema"
)

// ErrEmptyName is returned when a declaration has no entity name.
var ErrEmptyName = errors.New("registry: empty entity name")

// ParseObserver is notified after every parse attempt.
type ParseObserver func(entity string, took time.Duration, err error)

// Registry is a memoizing schema cache keyed by entity name.
type Registry struct {
	opts   schema.Options
	logger zerolog.Logger

	m sync.Map // map[string]*schema.Entity

	mu       sync.Mutex
	observer ParseObserver
}

// New creates a registry that parses declarations with opts.
func New(opts schema.Options, logger zerolog.Logger) *Registry {
	return &Registry{opts: opts, logger: logger}
}

// OnParse installs a parse observer.
func (r *Registry) OnParse(fn ParseObserver) {
	r.mu.Lock()
	r.observer = fn
	r.mu.Unlock()
}

// Options returns the parse options of the registry.
func (r *Registry) Options() schema.Options {
	return r.opts
}

// Load returns the cached schema of decl.Entity, parsing it on first use.
// Parse failures are returned and not cached.
func (r *Registry) Load(decl schema.Declaration) (*schema.Entity, error) {
	if decl.Entity == "" {
		return nil, ErrEmptyName
	}

	// Fast path: already parsed.
	if v, ok := r.m.Load(decl.Entity); ok {
		return v.(*schema.Entity), nil
	}

	start := time.Now()
	ent, err := schema.Parse(decl, r.opts)
	r.notify(decl.Entity, time.Since(start), err)
	if err != nil {
		r.logger.Error().Err(err).Str("entity", decl.Entity).Msg("schema parse failed")
		return nil, err
	}

	actual, loaded := r.m.LoadOrStore(decl.Entity, ent)
	if !loaded {
		r.logger.Debug().
			Str("entity", decl.Entity).
			Int("tables", len(ent.Tables())).
			Int("fields", len(ent.Fields())).
			Int("groups", len(ent.Groups())).
			Msg("schema parsed")
	}
	return actual.(*schema.Entity), nil
}

func (r *Registry) notify(entity string, took time.Duration, err error) {
	r.mu.Lock()
	fn := r.observer
	r.mu.Unlock()
	if fn != nil {
		fn(entity, took, err)
	}
}

// Get returns a previously loaded schema.
func (r *Registry) Get(name string) (*schema.Entity, bool) {
	v, ok := r.m.Load(name)
	if !ok {
		return nil, false
	}
	return v.(*schema.Entity), true
}

// Names returns the names of all cached schemas, sorted.
func (r *Registry) Names() []string {
	var names []string
	r.m.Range(func(k, _ any) bool {
		names = append(names, k.(string))
		return true
	})
	sort.Strings(names)
	return names
}

// Len returns the number of cached schemas.
func (r *Registry) Len() int {
	n := 0
	r.m.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// Forget drops a cached schema so the next Load parses again.
func (r *Registry) Forget(name string) {
	r.m.Delete(name)
}
