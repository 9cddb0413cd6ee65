// Package runtime dispatches create, get, update and remove calls on entity
// instances. Every verb validates the whole instance before the matching
// entity hook runs; a rejected instance never reaches its hooks.
package runtime

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/entityapi/adapters/idgen"
	"github.com/artpar/entityapi/core/events"
	"github.com/artpar/entityapi/core/registry"
	"github.com/artpar/entityapi/core/schema"
	"github.com/artpar/entityapi/core/state"
	"github.com/artpar/entityapi/core/validation"
)

var (
	// ErrUnknownEntity is returned by Load for an unregistered entity type.
	ErrUnknownEntity = errors.New("unknown entity type")

	// ErrDispatched is returned when a verb or bind is attempted on an
	// instance whose hook already ran.
	ErrDispatched = errors.New("instance already dispatched")
)

// UnknownValidatorError is returned by Load when a schema references
// validators that are not registered.
type UnknownValidatorError struct {
	Entity string
	Names  []string
}

func (e *UnknownValidatorError) Error() string {
	return fmt.Sprintf("entity %q references unregistered validators: %s", e.Entity, strings.Join(e.Names, ", "))
}

// Recorder receives dispatch measurements.
type Recorder interface {
	RecordDispatch(entity, verb, outcome string)
	RecordHook(entity, hook string, took time.Duration)
	RecordValidationFailure(entity, category string)
	RecordInstance(entity string)
}

type nopRecorder struct{}

func (nopRecorder) RecordDispatch(string, string, string) {}
func (nopRecorder) RecordHook(string, string, time.Duration) {}
func (nopRecorder) RecordValidationFailure(string, string) {}
func (nopRecorder) RecordInstance(string) {}

// Config configures the runtime. Zero fields get defaults.
type Config struct {
	// Registry caches parsed schemas.
	Registry *registry.Registry

	// Functions holds named validators. Defaults to the builtins.
	Functions *validation.Functions

	// Events receives post-dispatch events.
	Events *events.Bus

	// Metrics records dispatch outcomes (optional).
	Metrics Recorder

	// IDs names instances. Defaults to random UUIDs.
	IDs IDGenerator

	Logger zerolog.Logger
}

// IDGenerator produces instance identifiers.
type IDGenerator interface {
	New() string
}

// Runtime holds registered entity types and hands out instances.
type Runtime struct {
	mu    sync.RWMutex
	types map[string]EntityType

	registry  *registry.Registry
	functions *validation.Functions
	events    *events.Bus
	metrics   Recorder
	ids       IDGenerator
	logger    zerolog.Logger
}

// New creates a runtime.
func New(cfg Config) *Runtime {
	if cfg.Registry == nil {
		cfg.Registry = registry.New(schema.Options{}, cfg.Logger)
	}
	if cfg.Functions == nil {
		cfg.Functions = validation.NewFunctions()
		validation.RegisterBuiltins(cfg.Functions)
	}
	if cfg.Events == nil {
		cfg.Events = events.NewBus(cfg.Logger)
	}
	if cfg.Metrics == nil {
		cfg.Metrics = nopRecorder{}
	}
	if cfg.IDs == nil {
		cfg.IDs = idgen.UUID{}
	}

	return &Runtime{
		types:     make(map[string]EntityType),
		registry:  cfg.Registry,
		functions: cfg.Functions,
		events:    cfg.Events,
		metrics:   cfg.Metrics,
		ids:       cfg.IDs,
		logger:    cfg.Logger,
	}
}

// Register adds an entity type. Its schema is parsed on first Load.
func (r *Runtime) Register(et EntityType) error {
	name := et.Declaration().Entity
	if name == "" {
		return fmt.Errorf("register entity: %w", registry.ErrEmptyName)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.types[name]; exists {
		return fmt.Errorf("entity %q already registered", name)
	}
	r.types[name] = et

	r.logger.Debug().Str("entity", name).Msg("entity type registered")
	return nil
}

// Load returns a fresh, unbound instance of a registered entity type.
func (r *Runtime) Load(name string) (*Instance, error) {
	et, ent, err := r.resolve(name)
	if err != nil {
		return nil, err
	}

	if missing := r.functions.Missing(ent.Functions()); len(missing) > 0 {
		return nil, &UnknownValidatorError{Entity: name, Names: missing}
	}

	id := r.ids.New()
	r.metrics.RecordInstance(name)

	return &Instance{
		rt:     r,
		hooks:  et,
		schema: ent,
		state:  state.New(),
		id:     id,
		phase:  PhaseUnbound,
		logger: r.logger.With().Str("entity", name).Str("instance", id).Logger(),
	}, nil
}

// Schema returns the parsed schema of a registered entity type.
func (r *Runtime) Schema(name string) (*schema.Entity, error) {
	_, ent, err := r.resolve(name)
	return ent, err
}

func (r *Runtime) resolve(name string) (EntityType, *schema.Entity, error) {
	r.mu.RLock()
	et, ok := r.types[name]
	r.mu.RUnlock()
	if !ok {
		return nil, nil, fmt.Errorf("%w: %q", ErrUnknownEntity, name)
	}

	ent, err := r.registry.Load(et.Declaration())
	if err != nil {
		return nil, nil, fmt.Errorf("load schema %q: %w", name, err)
	}
	return et, ent, nil
}

// Entities returns the registered entity type names, sorted.
func (r *Runtime) Entities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Functions returns the named validator registry.
func (r *Runtime) Functions() *validation.Functions {
	return r.functions
}

// Events returns the event bus.
func (r *Runtime) Events() *events.Bus {
	return r.events
}

// Registry returns the schema cache.
func (r *Runtime) Registry() *registry.Registry {
	return r.registry
}
