package plugin

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/tjfontaine/actiongate/internal/pkg/config"
)

// Factory defines how to create a hook of a specific type.
type Factory struct {
	// Type is the identifier used in configuration (e.g. "webhook").
	Type string

	// Description provides a human-readable description of the hook type.
	Description string

	// Create instantiates a hook from configuration.
	Create func(cfg config.PluginConfig) (Hook, error)

	// ValidateConfig performs type-specific validation.
	// Optional: if nil, no additional validation is performed.
	ValidateConfig func(cfg config.PluginConfig) error
}

// Registry holds hook factories by type.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{factories: make(map[string]Factory)}
}

// NewDefaultRegistry returns a registry with the built-in hook types.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	RegisterBuiltins(r)
	return r
}

// RegisterBuiltins registers the webhook, ratelimit and log hook types.
func RegisterBuiltins(r *Registry) {
	r.MustRegister(Factory{
		Type:           WebhookType,
		Description:    "Calls an external HTTP service for a verdict",
		Create:         newWebhookFromConfig,
		ValidateConfig: validateWebhookConfig,
	})
	r.MustRegister(Factory{
		Type:           RateLimitType,
		Description:    "Token bucket per client key",
		Create:         newRateLimitFromConfig,
		ValidateConfig: validateRateLimitConfig,
	})
	r.MustRegister(Factory{
		Type:        LogType,
		Description: "Structured log line per invocation",
		Create:      newLogFromConfig,
	})
}

// Register adds a factory. Type must be non-empty and unique.
func (r *Registry) Register(f Factory) error {
	if f.Type == "" {
		return fmt.Errorf("hook factory type cannot be empty")
	}
	if f.Create == nil {
		return fmt.Errorf("hook factory %q must have a Create function", f.Type)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[f.Type]; exists {
		return fmt.Errorf("hook factory %q already registered", f.Type)
	}
	r.factories[f.Type] = f
	return nil
}

// MustRegister is Register that panics on error.
func (r *Registry) MustRegister(f Factory) {
	if err := r.Register(f); err != nil {
		panic(err)
	}
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.factories))
	for t := range r.factories {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Create builds a hook with the factory registered for cfg.Type.
func (r *Registry) Create(cfg config.PluginConfig) (Hook, error) {
	r.mu.RLock()
	f, ok := r.factories[cfg.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown hook type: %s (registered types: %v)", cfg.Type, r.Types())
	}
	if f.ValidateConfig != nil {
		if err := f.ValidateConfig(cfg); err != nil {
			return nil, err
		}
	}
	return f.Create(cfg)
}

// NewChainFromConfig creates every defined hook and binds them to their
// scopes. A config without definitions yields an empty chain.
func NewChainFromConfig(cfg config.PluginsConfig, reg *Registry) (*Chain, error) {
	if reg == nil {
		reg = NewDefaultRegistry()
	}

	hooks := make([]Hook, 0, len(cfg.Definitions))
	for _, def := range cfg.Definitions {
		if def.Name == "" {
			return nil, fmt.Errorf("hook of type %q has no name", def.Type)
		}
		h, err := reg.Create(def)
		if err != nil {
			return nil, fmt.Errorf("hook %s: %w", def.Name, err)
		}
		hooks = append(hooks, h)
	}

	return NewChain(hooks, scopesFromConfig(cfg.Pre), scopesFromConfig(cfg.Post))
}

func scopesFromConfig(c config.HookScopesConfig) Scopes {
	return Scopes{Global: c.Global, Controllers: c.Controllers, Actions: c.Actions}
}

func parseTimeout(s string, def time.Duration) (time.Duration, error) {
	if s == "" {
		return def, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	return d, nil
}
