package config

import "sync/atomic"

// Store holds the current configuration and supports atomic swaps.
// The pipeline reads it on every line, so lookups must stay cheap.
type Store struct {
	v atomic.Value // *Config
}

// NewStore creates a Store with the initial configuration.
func NewStore(cfg *Config) *Store {
	s := &Store{}
	s.v.Store(cfg)
	return s
}

// Current returns the current configuration.
func (s *Store) Current() *Config {
	v := s.v.Load()
	if v == nil {
		return nil
	}
	cfg, ok := v.(*Config)
	if !ok {
		return nil
	}
	return cfg
}

// Update replaces the current configuration.
func (s *Store) Update(cfg *Config) {
	s.v.Store(cfg)
}

// ApplyRuntime merges the runtime-tunable fields of next into the current
// configuration and stores the result. Only the CDN table and the stats
// tuning take effect on reload; log path, tail mode, and the listener
// address keep their boot values and require a restart to change.
func (s *Store) ApplyRuntime(next *Config) *Config {
	cur := s.Current()
	if cur == nil {
		s.v.Store(next)
		return next
	}
	merged := *cur
	merged.CDNs = next.CDNs
	merged.Stats = next.Stats
	s.v.Store(&merged)
	return &merged
}
