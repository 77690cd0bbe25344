package hooks

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

// Builder constructs a plugin from its configured settings and reports the
// stages it wants to run at.
type Builder func(settings map[string]any) (Plugin, []Stage, error)

// ErrDuplicatePlugin indicates a key already has a builder registered.
var ErrDuplicatePlugin = errors.New("plugin already registered")

// ErrUnknownPlugin indicates a configured key has no registered builder.
var ErrUnknownPlugin = errors.New("plugin not registered")

var globalRegistry = newRegistry()

type registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
	order    []string
}

func newRegistry() *registry {
	return &registry{builders: make(map[string]Builder)}
}

// Register stores a plugin builder under a key. Keys are normalized to
// lowercase; duplicates are rejected.
func Register(key string, build Builder) error {
	return globalRegistry.register(key, build)
}

// MustRegister panics on registration failure; suitable for plugin init().
func MustRegister(key string, build Builder) {
	if err := Register(key, build); err != nil {
		panic(err)
	}
}

// Registered reports whether a key has a builder.
func Registered(key string) bool {
	return globalRegistry.registered(key)
}

// Keys returns every registered key in registration order.
func Keys() []string {
	return globalRegistry.keys()
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

func (r *registry) register(key string, build Builder) error {
	normalized := normalizeKey(key)
	if normalized == "" {
		return errors.New("plugin key required")
	}
	if build == nil {
		return errors.New("plugin builder required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.builders[normalized]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicatePlugin, normalized)
	}
	r.builders[normalized] = build
	r.order = append(r.order, normalized)
	return nil
}

func (r *registry) registered(key string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.builders[normalizeKey(key)]
	return ok
}

func (r *registry) build(key string, settings map[string]any) (Plugin, []Stage, error) {
	r.mu.RLock()
	builder, ok := r.builders[normalizeKey(key)]
	r.mu.RUnlock()

	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownPlugin, key)
	}
	plugin, stages, err := builder(settings)
	if err != nil {
		return nil, nil, fmt.Errorf("build plugin %s: %w", key, err)
	}
	if plugin == nil {
		return nil, nil, fmt.Errorf("build plugin %s: builder returned nil", key)
	}
	if len(stages) == 0 {
		return nil, nil, fmt.Errorf("build plugin %s: no stages requested", key)
	}
	return plugin, stages, nil
}

func (r *registry) keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string(nil), r.order...)
}
