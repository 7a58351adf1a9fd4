// internal/registry/registry.go

// Package registry maps command names to typed handlers bound to one client
// facade. It replaces runtime extension of the client object with an explicit
// lookup resolved when a chain is built.
package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/xkilldash9x/compass-pilot/internal/client"
)

// ErrUnknownCommand is returned by Run for names that were never registered.
var ErrUnknownCommand = errors.New("unknown command")

// Body is a named command implementation. It receives the facade explicitly
// instead of relying on an implicit receiver, plus the typed invocation
// arguments A.
type Body[A any] func(ctx context.Context, c client.Client, args A) error

// Registry holds the named commands for a single facade. Registration
// happens at suite setup; lookups are read-many afterwards.
type Registry[A any] struct {
	mu       sync.RWMutex
	client   client.Client
	logger   *zap.Logger
	commands map[string]Body[A]
}

// New binds an empty registry to the given facade.
func New[A any](c client.Client, logger *zap.Logger) *Registry[A] {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry[A]{
		client:   c,
		logger:   logger.Named("registry"),
		commands: make(map[string]Body[A]),
	}
}

// Register attaches body under name. Registering a name that already exists
// replaces the previous definition silently (last registration wins), which
// keeps incremental suite setup idempotent. Shadowing a name on purpose is
// the caller's own risk.
func (r *Registry[A]) Register(name string, body Body[A]) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.commands[name]; exists {
		r.logger.Debug("Replacing existing command registration.", zap.String("command", name))
	}
	r.commands[name] = body
}

// Run looks up name and executes its body against the bound facade. The
// body's error is returned exactly as produced.
func (r *Registry[A]) Run(ctx context.Context, name string, args A) error {
	r.mu.RLock()
	body, ok := r.commands[name]
	c := r.client
	r.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}
	return body(ctx, c, args)
}

// Names returns the registered command names in sorted order.
func (r *Registry[A]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.commands))
	for name := range r.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len reports how many distinct commands are registered.
func (r *Registry[A]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.commands)
}
