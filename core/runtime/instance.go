package runtime

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"github.com/artpar/entityapi/core/events"
	"github.com/artpar/entityapi/core/schema"
	"github.com/artpar/entityapi/core/state"
	"github.com/artpar/entityapi/core/validation"
)

// Phase is the lifecycle state of an instance.
type Phase int

const (
	PhaseUnbound Phase = iota
	PhaseBound
	PhaseValidated
	PhaseDispatched
	PhaseRejected
)

func (p Phase) String() string {
	switch p {
	case PhaseUnbound:
		return "unbound"
	case PhaseBound:
		return "bound"
	case PhaseValidated:
		return "validated"
	case PhaseDispatched:
		return "dispatched"
	case PhaseRejected:
		return "rejected"
	}
	return "unknown"
}

// Instance is one entity instance bound to a single call chain.
// It is not safe for concurrent use.
//
// A rejected instance stays usable: fix the offending values and call a
// verb again. Once a hook has succeeded the instance is dispatched and
// refuses further binds and verbs.
type Instance struct {
	rt     *Runtime
	hooks  Hooks
	schema *schema.Entity
	state  *state.State
	id     string
	phase  Phase
	logger zerolog.Logger

	// pending holds bind errors from Set and Context until the next verb.
	pending []error
}

// ID returns the instance identifier used in logs and events.
func (in *Instance) ID() string { return in.id }

// Phase returns the lifecycle state.
func (in *Instance) Phase() Phase { return in.phase }

// Schema returns the entity schema.
func (in *Instance) Schema() *schema.Entity { return in.schema }

// State returns a copy of the bound values.
func (in *Instance) State() *state.State { return in.state.Clone() }

// Err returns the bind errors recorded since the last verb.
func (in *Instance) Err() error { return errors.Join(in.pending...) }

// Set binds a primary value. Errors surface on the next verb.
func (in *Instance) Set(key string, value any) *Instance {
	if err := in.Bind(key, value); err != nil {
		in.pending = append(in.pending, err)
	}
	return in
}

// Context binds a context value. Errors surface on the next verb.
func (in *Instance) Context(key string, value any) *Instance {
	if err := in.BindContext(key, value); err != nil {
		in.pending = append(in.pending, err)
	}
	return in
}

// Bind binds a primary value and returns any error immediately.
func (in *Instance) Bind(key string, value any) error {
	return in.bind(key, value, false)
}

// BindContext binds a context value and returns any error immediately.
func (in *Instance) BindContext(key string, value any) error {
	return in.bind(key, value, true)
}

func (in *Instance) bind(key string, value any, toContext bool) error {
	if in.phase == PhaseDispatched {
		return ErrDispatched
	}
	name, err := state.Bind(in.schema, in.state, key, value, toContext)
	if err != nil {
		return err
	}
	in.phase = PhaseBound

	in.logger.Debug().
		Str("key", key).
		Str("field", name).
		Bool("context", toContext).
		Msg("value bound")
	return nil
}

// Validate runs validation without dispatching.
func (in *Instance) Validate() error {
	if err := in.Err(); err != nil {
		return err
	}
	return validation.Validate(in.schema, in.state, in.rt.functions)
}

// Create validates the instance and calls the build hook.
func (in *Instance) Create(ctx context.Context) (Record, error) {
	return in.dispatch(ctx, VerbCreate, in.hooks.Build)
}

// Get validates the instance and calls the fetch hook.
func (in *Instance) Get(ctx context.Context) (Record, error) {
	return in.dispatch(ctx, VerbGet, in.hooks.Fetch)
}

// Update validates the instance and calls the change hook.
// A nil record means the hook changed nothing.
func (in *Instance) Update(ctx context.Context) (Record, error) {
	return in.dispatch(ctx, VerbUpdate, in.hooks.Change)
}

// Remove validates the instance and calls the delete hook.
func (in *Instance) Remove(ctx context.Context) (bool, error) {
	var removed bool
	_, err := in.dispatch(ctx, VerbRemove, func(ctx context.Context, req *Request) (Record, error) {
		ok, err := in.hooks.Delete(ctx, req)
		removed = ok
		return Record{"removed": ok}, err
	})
	return removed, err
}

func (in *Instance) dispatch(ctx context.Context, verb Verb, hook func(context.Context, *Request) (Record, error)) (Record, error) {
	entity := in.schema.Name()
	if in.phase == PhaseDispatched {
		return nil, ErrDispatched
	}

	if len(in.pending) > 0 {
		err := errors.Join(in.pending...)
		in.pending = nil
		in.reject(verb, "bind", err)
		return nil, err
	}

	if err := validation.Validate(in.schema, in.state, in.rt.functions); err != nil {
		category := validation.Category(err)
		in.rt.metrics.RecordValidationFailure(entity, category)
		in.reject(verb, category, err)
		return nil, err
	}
	in.phase = PhaseValidated

	req := &Request{
		Entity:     in.schema,
		Verb:       verb,
		InstanceID: in.id,
		Values:     in.state.Values(),
		Context:    in.state.ContextValues(),
	}

	start := time.Now()
	rec, err := hook(ctx, req)
	in.rt.metrics.RecordHook(entity, verb.Hook(), time.Since(start))
	if err != nil {
		in.reject(verb, "hook", err)
		return nil, err
	}
	in.phase = PhaseDispatched
	in.rt.metrics.RecordDispatch(entity, string(verb), "dispatched")

	in.logger.Info().
		Str("verb", string(verb)).
		Str("hook", verb.Hook()).
		Dur("took", time.Since(start)).
		Msg("dispatched")

	in.rt.events.Publish(ctx, events.Event{
		Name:       entity + "." + verb.Outcome(),
		Entity:     entity,
		Verb:       string(verb),
		InstanceID: in.id,
		Record:     rec,
	})
	return rec, nil
}

func (in *Instance) reject(verb Verb, reason string, err error) {
	in.phase = PhaseRejected
	in.rt.metrics.RecordDispatch(in.schema.Name(), string(verb), "rejected")
	in.logger.Warn().
		Err(err).
		Str("verb", string(verb)).
		Str("reason", reason).
		Msg("dispatch rejected")
}
