package rbac

import (
	"fmt"
	"sync"

	"github.com/webinex/dynroles/internal/permissions"
)

// Registry maps policy names to permission expressions, so route
// protection is declared as data and referenced by name at mount time.
type Registry struct {
	mu       sync.RWMutex
	policies map[string]permissions.Expression
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{policies: map[string]permissions.Expression{}}
}

// Register adds a named policy. Re-registering a name fails.
func (r *Registry) Register(name string, expr permissions.Expression) error {
	if name == "" {
		return fmt.Errorf("rbac: empty policy name")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.policies[name]; ok {
		return fmt.Errorf("rbac: policy %q already registered", name)
	}
	r.policies[name] = expr
	return nil
}

// MustRegister parses the lexical form and registers it, panicking on
// error. Intended for startup-time policy tables.
func (r *Registry) MustRegister(name, lexical string) {
	if err := r.Register(name, permissions.MustParseExpression(lexical)); err != nil {
		panic(err)
	}
}

// Lookup returns the expression registered under name.
func (r *Registry) Lookup(name string) (permissions.Expression, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	expr, ok := r.policies[name]
	return expr, ok
}

// Names returns the registered policy names, unordered.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.policies))
	for name := range r.policies {
		names = append(names, name)
	}
	return names
}
