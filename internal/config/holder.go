package config

import (
	"errors"
	"sync"

	"showsync/internal/tuxedo"
)

// Holder owns the live configuration. Reads are concurrent; updates are
// validated, persisted and then published to subscribers.
type Holder struct {
	path string

	mu       sync.RWMutex
	cfg      Config
	onChange []func(Config)
}

// NewHolder wraps cfg. An empty path keeps updates in memory only.
func NewHolder(path string, cfg *Config) *Holder {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Holder{path: path, cfg: *cfg}
}

// Get returns a copy of the current configuration.
func (h *Holder) Get() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

// Credentials returns the current provider credentials.
func (h *Holder) Credentials() tuxedo.Credentials {
	cfg := h.Get()
	return cfg.Credentials()
}

// Active reports whether scheduled imports are enabled.
func (h *Holder) Active() bool {
	return h.Get().Tuxedo.Active
}

// OnChange registers fn to run after each successful Update.
func (h *Holder) OnChange(fn func(Config)) {
	h.mu.Lock()
	h.onChange = append(h.onChange, fn)
	h.mu.Unlock()
}

// Update applies fn to a copy of the configuration, validates and saves
// it, then makes it current. The current configuration is left untouched
// on any error.
func (h *Holder) Update(fn func(*Config) error) (Config, error) {
	if fn == nil {
		return Config{}, errors.New("config: nil update")
	}

	h.mu.Lock()
	next := h.cfg
	if err := fn(&next); err != nil {
		h.mu.Unlock()
		return Config{}, err
	}
	next.Normalize()
	if err := next.Validate(); err != nil {
		h.mu.Unlock()
		return Config{}, err
	}
	if h.path != "" {
		if err := Save(h.path, &next); err != nil {
			h.mu.Unlock()
			return Config{}, err
		}
	}
	h.cfg = next
	subs := append([]func(Config){}, h.onChange...)
	h.mu.Unlock()

	for _, fn := range subs {
		fn(next)
	}
	return next, nil
}
