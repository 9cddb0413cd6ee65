package runtime

import (
	"context"
	"fmt"
	"strings"

	"github.com/artpar/entityapi/core/schema"
	"github.com/artpar/entityapi/core/state"
)

// Record is the result of an entity hook.
type Record map[string]any

// Hooks are the four storage operations an entity type supplies.
// They only run after the instance has passed validation.
type Hooks interface {
	// Build creates a new record.
	Build(ctx context.Context, req *Request) (Record, error)

	// Fetch loads an existing record located by context values.
	Fetch(ctx context.Context, req *Request) (Record, error)

	// Change updates an existing record. A nil record means nothing was changed.
	Change(ctx context.Context, req *Request) (Record, error)

	// Delete removes an existing record and reports whether one was found.
	Delete(ctx context.Context, req *Request) (bool, error)
}

// EntityType is a domain concept with a declared schema and storage hooks.
type EntityType interface {
	Hooks
	Declaration() schema.Declaration
}

// Verb is a dispatcher operation.
type Verb string

const (
	VerbCreate Verb = "create"
	VerbGet    Verb = "get"
	VerbUpdate Verb = "update"
	VerbRemove Verb = "remove"
)

// Hook returns the name of the hook a verb dispatches to.
func (v Verb) Hook() string {
	switch v {
	case VerbCreate:
		return "build"
	case VerbGet:
		return "fetch"
	case VerbUpdate:
		return "change"
	case VerbRemove:
		return "delete"
	}
	return ""
}

// Outcome returns the event suffix of a dispatched verb.
func (v Verb) Outcome() string {
	switch v {
	case VerbCreate:
		return "created"
	case VerbGet:
		return "fetched"
	case VerbUpdate:
		return "updated"
	case VerbRemove:
		return "removed"
	}
	return string(v)
}

// ParseVerb maps a verb name to a Verb.
func ParseVerb(s string) (Verb, error) {
	switch v := Verb(strings.ToLower(s)); v {
	case VerbCreate, VerbGet, VerbUpdate, VerbRemove:
		return v, nil
	}
	return "", fmt.Errorf("unknown verb %q", s)
}

// Request is what a hook receives: the validated values of one instance.
// Hooks get copies and may not affect the instance state.
type Request struct {
	Entity     *schema.Entity
	Verb       Verb
	InstanceID string

	// Values holds primary values keyed by field name.
	Values map[string]any

	// Context holds context values keyed by field name.
	Context map[string]any
}

// Value returns a non-empty primary value.
func (r *Request) Value(name string) (any, bool) {
	v, ok := r.Values[name]
	if !ok || state.IsEmpty(v) {
		return nil, false
	}
	return v, true
}

// ContextValue returns a non-empty context value.
func (r *Request) ContextValue(name string) (any, bool) {
	v, ok := r.Context[name]
	if !ok || state.IsEmpty(v) {
		return nil, false
	}
	return v, true
}

// RequireContext returns the contextual fields bound through the context
// channel. It fails with MissingContextError when there is none.
func (r *Request) RequireContext() (map[string]any, error) {
	contextual := r.Entity.Contextual()
	found := make(map[string]any)
	for _, name := range contextual {
		if v, ok := r.ContextValue(name); ok {
			found[name] = v
		}
	}
	if len(found) == 0 {
		return nil, &MissingContextError{Entity: r.Entity.Name(), Contextual: contextual}
	}
	return found, nil
}

// MissingContextError is raised by a hook's lookup step when no contextual
// field was supplied through the context channel.
type MissingContextError struct {
	Entity     string
	Contextual []string
}

func (e *MissingContextError) Error() string {
	if len(e.Contextual) == 0 {
		return fmt.Sprintf("%s has no contextual fields", e.Entity)
	}
	if len(e.Contextual) == 1 {
		return fmt.Sprintf("%s: only %s is a contextual field", e.Entity, e.Contextual[0])
	}
	return fmt.Sprintf("%s: only %s are contextual fields", e.Entity, joinAnd(e.Contextual))
}

func joinAnd(names []string) string {
	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0]
	}
	return strings.Join(names[:len(names)-1], ", ") + " and " + names[len(names)-1]
}
