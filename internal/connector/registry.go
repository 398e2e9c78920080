package connector

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Factory is a function that creates a new Connector instance.
type Factory func() Connector

// Registry manages connector factories and active connections.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
	active    map[string]Connector // keyed by connection id
}

// NewRegistry creates a new empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		active:    make(map[string]Connector),
	}
}

// RegisterDriver registers a connector factory for a database type tag.
func (r *Registry) RegisterDriver(driver string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[driver] = factory
}

// Supports reports whether a factory is registered for driver.
func (r *Registry) Supports(driver string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[driver]
	return ok
}

// Open creates a connector for cfg.Driver, connects it and stores it under
// key, replacing (and disconnecting) any connector already stored there.
// The registry lock is not held while the backend connects.
func (r *Registry) Open(ctx context.Context, key string, cfg ConnectionConfig) (Connector, error) {
	r.mu.RLock()
	factory, ok := r.factories[cfg.Driver]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported driver: %s (available: %v)", cfg.Driver, r.Drivers())
	}

	cfg.DSN = SanitizeDSN(cfg.Driver, cfg.DSN)
	conn := factory()
	if err := conn.Connect(ctx, cfg); err != nil {
		return nil, fmt.Errorf("failed to connect %q: %w", key, err)
	}

	r.mu.Lock()
	existing, replaced := r.active[key]
	r.active[key] = conn
	r.mu.Unlock()

	if replaced {
		_ = existing.Disconnect()
	}
	return conn, nil
}

// Get returns the connector stored under key.
func (r *Registry) Get(key string) (Connector, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, ok := r.active[key]
	if !ok {
		return nil, fmt.Errorf("connection %q not found (active: %v)", key, r.activeKeys())
	}
	return conn, nil
}

// Close removes and disconnects the connector stored under key.
func (r *Registry) Close(key string) error {
	r.mu.Lock()
	conn, ok := r.active[key]
	delete(r.active, key)
	r.mu.Unlock()

	if !ok {
		return fmt.Errorf("connection %q not found", key)
	}
	return conn.Disconnect()
}

// CloseAll disconnects every active connector.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	active := r.active
	r.active = make(map[string]Connector)
	r.mu.Unlock()

	for _, conn := range active {
		_ = conn.Disconnect()
	}
}

// Active returns the keys of all active connectors, sorted.
func (r *Registry) Active() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.activeKeys()
}

// Drivers returns the registered type tags, sorted.
func (r *Registry) Drivers() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	drivers := make([]string, 0, len(r.factories))
	for d := range r.factories {
		drivers = append(drivers, d)
	}
	sort.Strings(drivers)
	return drivers
}

func (r *Registry) activeKeys() []string {
	names := make([]string, 0, len(r.active))
	for n := range r.active {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
