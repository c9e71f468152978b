package provider

import (
	"context"
	"sync"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
	"github.com/compass-ai-chat/compass-sub000/internal/logging"
)

// Catalog is the in-memory list of models currently believed available.
// The orchestrator prunes entries when a backend reports a model gone.
type Catalog struct {
	mu     sync.RWMutex
	models []chat.Model
}

// NewCatalog creates a catalog seeded with the given models.
func NewCatalog(models []chat.Model) *Catalog {
	c := &Catalog{}
	c.models = append(c.models, models...)
	return c
}

// Models returns a copy of the current model list.
func (c *Catalog) Models() []chat.Model {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]chat.Model, len(c.models))
	copy(out, c.models)
	return out
}

// Remove drops the one model matching both the model id and provider id.
// Other models, including same-id models on other providers, stay.
func (c *Catalog) Remove(modelID, providerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	kept := c.models[:0]
	for _, m := range c.models {
		if m.ID == modelID && m.Provider.ID == providerID {
			continue
		}
		kept = append(kept, m)
	}
	c.models = kept
}

// Refresh repopulates the catalog by querying every configured backend.
// Backends that fail to answer are skipped and logged.
func (c *Catalog) Refresh(ctx context.Context, registry *Registry, providerIDs []string) {
	var models []chat.Model
	for _, id := range providerIDs {
		p, err := registry.Get(ctx, id)
		if err != nil {
			logging.Error(err, logging.ComponentProvider, "Refresh")
			continue
		}
		listed, err := p.ListModels(ctx)
		if err != nil {
			logging.Error(err, logging.ComponentProvider, "Refresh")
			continue
		}
		models = append(models, listed...)
	}
	c.mu.Lock()
	c.models = models
	c.mu.Unlock()
}
