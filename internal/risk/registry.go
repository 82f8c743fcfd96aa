package risk

import (
	"strings"
	"sync"
)

// Registry is the in-memory lookup of published model versions. Versions are
// write-once; a recalibration is published as a new version.
type Registry struct {
	mu       sync.RWMutex
	models   map[string]Model
	order    []string
	fallback string
}

func NewRegistry() *Registry {
	return &Registry{models: make(map[string]Model)}
}

// Register validates and publishes m.
func (r *Registry) Register(m Model) error {
	m.Version = strings.TrimSpace(m.Version)
	if err := m.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[m.Version]; ok {
		return &ConfigError{Err: ErrModelVersionExists, Version: m.Version}
	}
	r.models[m.Version] = m.clone()
	r.order = append(r.order, m.Version)
	return nil
}

// SetDefault selects the version used when callers do not name one.
func (r *Registry) SetDefault(version string) error {
	version = strings.TrimSpace(version)
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.models[version]; !ok {
		return &ConfigError{Err: ErrUnknownModelVersion, Version: version}
	}
	r.fallback = version
	return nil
}

// Default returns the configured default version, or the most recently
// registered one.
func (r *Registry) Default() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.fallback != "" {
		return r.fallback
	}
	if len(r.order) == 0 {
		return ""
	}
	return r.order[len(r.order)-1]
}

// Lookup returns a copy of the model for version. An empty version resolves
// to Default.
func (r *Registry) Lookup(version string) (Model, error) {
	version = strings.TrimSpace(version)
	if version == "" {
		version = r.Default()
	}
	r.mu.RLock()
	m, ok := r.models[version]
	r.mu.RUnlock()
	if !ok {
		return Model{}, &ConfigError{Err: ErrUnknownModelVersion, Version: version}
	}
	return m.clone(), nil
}

// Versions lists published versions in registration order.
func (r *Registry) Versions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}
