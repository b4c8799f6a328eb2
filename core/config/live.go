package config

import "sync/atomic"

// Live holds the active configuration. Readers always observe a complete
// Config; replacement swaps the whole value.
type Live struct {
	current atomic.Pointer[Config]
}

// NewLive wraps the initial configuration.
func NewLive(cfg *Config) *Live {
	l := &Live{}
	l.current.Store(cfg)
	return l
}

// Current returns the active configuration.
func (l *Live) Current() *Config {
	return l.current.Load()
}

// Swap installs cfg and returns the configuration it replaced. A nil cfg is ignored.
func (l *Live) Swap(cfg *Config) *Config {
	if cfg == nil {
		return l.current.Load()
	}
	return l.current.Swap(cfg)
}
