package validation

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"
	"sync"
)

// Predicate is a named validator. It reports whether value passes.
type Predicate func(value any) bool

// Functions is a registry of named validators referenced by
// Validate(function="...") directives.
type Functions struct {
	mu    sync.RWMutex
	funcs map[string]Predicate
}

// NewFunctions creates an empty validator registry.
func NewFunctions() *Functions {
	return &Functions{funcs: make(map[string]Predicate)}
}

// Register adds or replaces a named validator.
func (f *Functions) Register(name string, fn Predicate) error {
	if name == "" {
		return fmt.Errorf("validator name is required")
	}
	if fn == nil {
		return fmt.Errorf("validator %q: nil predicate", name)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.funcs[name] = fn
	return nil
}

// Lookup returns a registered validator.
func (f *Functions) Lookup(name string) (Predicate, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	fn, ok := f.funcs[name]
	return fn, ok
}

// Has checks if a validator is registered.
func (f *Functions) Has(name string) bool {
	_, ok := f.Lookup(name)
	return ok
}

// Names returns all registered validator names, sorted.
func (f *Functions) Names() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	names := make([]string, 0, len(f.funcs))
	for name := range f.funcs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Missing returns the names that are not registered, in input order.
func (f *Functions) Missing(names []string) []string {
	var out []string
	for _, n := range names {
		if !f.Has(n) {
			out = append(out, n)
		}
	}
	return out
}

// RegisterBuiltins registers valid_email_address and valid_cell.
func RegisterBuiltins(f *Functions) {
	_ = f.Register("valid_email_address", ValidEmailAddress)
	_ = f.Register("valid_cell", ValidCell)
}

// ValidEmailAddress accepts a single bare RFC 5322 address.
func ValidEmailAddress(value any) bool {
	s, ok := StringOf(value)
	if !ok || s == "" {
		return false
	}
	addr, err := mail.ParseAddress(s)
	if err != nil {
		return false
	}
	// Reject display-name forms such as "Jane <jane@example.com>".
	return addr.Name == "" && addr.Address == strings.TrimSpace(s)
}

// ValidCell accepts a ten digit number, or eleven digits with a leading 1.
// Common separators are ignored.
func ValidCell(value any) bool {
	s, ok := StringOf(value)
	if !ok {
		return false
	}
	digits := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= '0' && c <= '9':
			digits = append(digits, c)
		case c == ' ', c == '-', c == '.', c == '(', c == ')', c == '+':
		default:
			return false
		}
	}
	switch len(digits) {
	case 10:
		return true
	case 11:
		return digits[0] == '1'
	}
	return false
}
