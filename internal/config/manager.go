package config

import (
	"fmt"
	"sync"
)

// Manager provides thread-safe access to live configuration.
type Manager interface {
	Get() *Config
	Reload(path string) error
}

// RWMutexManager provides thread-safe read-heavy config access using RWMutex.
type RWMutexManager struct {
	mu  sync.RWMutex
	cfg *Config
}

// NewManager constructs a manager with an initial config.
func NewManager(initial *Config) *RWMutexManager {
	return &RWMutexManager{cfg: initial.Clone()}
}

// Get returns a cloned config snapshot under a shared lock.
//
// Returning a clone prevents shared mutable state from leaking across readers.
func (m *RWMutexManager) Get() *Config {
	if m == nil {
		return nil
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Clone()
}

// Reload re-reads path, validates it is safe to swap in, and replaces the
// live config atomically. Fields that require a restart (§ValidateReload)
// cause Reload to fail without mutating the live config.
func (m *RWMutexManager) Reload(path string) error {
	next, err := Load(path)
	if err != nil {
		return fmt.Errorf("config: reload: %w", err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ValidateReload(m.cfg, next); err != nil {
		return err
	}
	m.cfg = next
	return nil
}

// LoadManager reads config from path and returns an RWMutex-backed manager.
func LoadManager(path string) (Manager, error) {
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewManager(cfg), nil
}
