package config

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

type ContextKey string

const ManagerCtxKey ContextKey = "config_manager"

// Manager holds the active configuration and the sources it was built from.
type Manager struct {
	Service Service
	current atomic.Pointer[Config]
	sources []Source
	mu      sync.Mutex
}

func NewManager(service Service) *Manager {
	if service == nil {
		service = NewService()
	}
	return &Manager{Service: service}
}

// Load builds the configuration from sources and stores it as current.
func (m *Manager) Load(ctx context.Context, sources ...Source) (*Config, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg, err := m.Service.Load(ctx, sources...)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	m.sources = append([]Source(nil), sources...)
	m.current.Store(cfg)
	return cfg, nil
}

// Reload rebuilds the configuration from the sources of the last Load.
func (m *Manager) Reload(ctx context.Context) (*Config, error) {
	m.mu.Lock()
	sources := append([]Source(nil), m.sources...)
	m.mu.Unlock()
	return m.Load(ctx, sources...)
}

func (m *Manager) Get() *Config {
	return m.current.Load()
}

func ContextWithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, ManagerCtxKey, m)
}

// ManagerFromContext returns the manager stored in ctx, or nil.
func ManagerFromContext(ctx context.Context) *Manager {
	if ctx == nil {
		return nil
	}
	m, _ := ctx.Value(ManagerCtxKey).(*Manager)
	return m
}

// FromContext returns the active configuration for ctx. Without a manager in
// the context it falls back to Default.
func FromContext(ctx context.Context) *Config {
	if m := ManagerFromContext(ctx); m != nil {
		if cfg := m.Get(); cfg != nil {
			return cfg
		}
	}
	return Default()
}
