package config

import "sync/atomic"

// Store holds the current configuration snapshot.
// Readers always observe one complete snapshot; Swap replaces it wholesale.
type Store struct {
	current atomic.Pointer[Config]
}

// NewStore creates a store seeded with the startup configuration
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.current.Store(cfg)
	return s
}

// Load returns the current snapshot. Callers must treat it as read-only.
func (s *Store) Load() *Config {
	return s.current.Load()
}

// Swap installs cfg and returns the previous snapshot
func (s *Store) Swap(cfg *Config) *Config {
	return s.current.Swap(cfg)
}
