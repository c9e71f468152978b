package provider

import (
	"context"
	"fmt"
	"sync"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
)

// Registry resolves configured backends to ChatProvider adapters and
// caches them per provider id.
type Registry struct {
	mu        sync.RWMutex
	configs   map[string]chat.Provider
	instances map[string]ChatProvider
}

// NewRegistry creates a registry over the given backend configurations.
func NewRegistry(configs []chat.Provider) *Registry {
	byID := make(map[string]chat.Provider, len(configs))
	for _, c := range configs {
		byID[c.ID] = c
	}
	return &Registry{
		configs:   byID,
		instances: make(map[string]ChatProvider),
	}
}

// Len reports the number of known backends, configured or directly
// registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ids := make(map[string]struct{}, len(r.configs)+len(r.instances))
	for id := range r.configs {
		ids[id] = struct{}{}
	}
	for id := range r.instances {
		ids[id] = struct{}{}
	}
	return len(ids)
}

// Register adds or replaces an adapter for the given provider id.
// Used for custom adapters and test fakes.
func (r *Registry) Register(id string, p ChatProvider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.instances[id] = p
}

// Get returns the adapter for the provider id, constructing it on first
// use.
func (r *Registry) Get(ctx context.Context, id string) (ChatProvider, error) {
	r.mu.RLock()
	if p, ok := r.instances[id]; ok {
		r.mu.RUnlock()
		return p, nil
	}
	cfg, ok := r.configs[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown provider %q", id)
	}

	var (
		p   ChatProvider
		err error
	)
	switch cfg.Kind {
	case "gemini":
		p, err = NewGeminiProvider(ctx, cfg)
	case "openai", "":
		p = NewOpenAIProvider(cfg)
	default:
		err = fmt.Errorf("unsupported provider kind %q", cfg.Kind)
	}
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.instances[id] = p
	r.mu.Unlock()
	return p, nil
}

// UpdateConfigs replaces the backend configurations, dropping cached
// adapters whose config changed. Called on config reload.
func (r *Registry) UpdateConfigs(configs []chat.Provider) {
	r.mu.Lock()
	defer r.mu.Unlock()
	next := make(map[string]chat.Provider, len(configs))
	for _, c := range configs {
		next[c.ID] = c
		if old, ok := r.configs[c.ID]; ok && old != c {
			delete(r.instances, c.ID)
		}
	}
	for id := range r.configs {
		if _, ok := next[id]; !ok {
			delete(r.instances, id)
		}
	}
	r.configs = next
}
