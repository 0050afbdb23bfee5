package config

import (
	"errors"
	"fmt"
	"sync"

	"github.com/tkoehlman/vadgate/pkg/capture"
	"github.com/tkoehlman/vadgate/pkg/vad"
)

// ErrNotRegistered is returned by Create* methods when no factory has been
// registered under the requested name.
var ErrNotRegistered = errors.New("config: not registered")

// Registry maps backend and capture-source names to their constructor
// functions. It is safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	vad     map[Backend]func(*Config) (vad.Engine, error)
	capture map[CaptureKind]func(*Config) (capture.Source, error)
}

// NewRegistry returns an empty, ready-to-use [Registry].
func NewRegistry() *Registry {
	return &Registry{
		vad:     make(map[Backend]func(*Config) (vad.Engine, error)),
		capture: make(map[CaptureKind]func(*Config) (capture.Source, error)),
	}
}

// RegisterVAD registers a VAD engine factory under name.
// Subsequent calls with the same name overwrite the previous registration.
func (r *Registry) RegisterVAD(name Backend, factory func(*Config) (vad.Engine, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.vad[name] = factory
}

// RegisterCapture registers a capture source factory under name.
func (r *Registry) RegisterCapture(name CaptureKind, factory func(*Config) (capture.Source, error)) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.capture[name] = factory
}

// CreateVAD instantiates the VAD engine selected by cfg.
func (r *Registry) CreateVAD(cfg *Config) (vad.Engine, error) {
	return r.CreateVADBackend(cfg, cfg.VAD.Backend)
}

// CreateVADBackend instantiates the named VAD engine regardless of which
// backend cfg selects. Used to build the failover chain's fallback.
func (r *Registry) CreateVADBackend(cfg *Config, name Backend) (vad.Engine, error) {
	r.mu.RLock()
	factory, ok := r.vad[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("vad backend %q: %w", name, ErrNotRegistered)
	}
	return factory(cfg)
}

// CreateCapture instantiates the capture source selected by cfg.
func (r *Registry) CreateCapture(cfg *Config) (capture.Source, error) {
	r.mu.RLock()
	factory, ok := r.capture[cfg.Capture.Kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("capture kind %q: %w", cfg.Capture.Kind, ErrNotRegistered)
	}
	return factory(cfg)
}
