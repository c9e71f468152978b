package pipeline

import (
	"context"

	"github.com/compass-ai-chat/compass-sub000/internal/logging"
)

// Transform is one named pipeline stage. Apply receives the shared
// context and returns the (possibly extended) context. Stages must be
// idempotent no-ops when their preconditions are unmet rather than
// returning an error.
type Transform struct {
	Name  string
	Apply func(ctx context.Context, m *MessageContext) (*MessageContext, error)
}

// Pipeline is an ordered list of transforms, constructed once and run
// per turn.
type Pipeline struct {
	transforms []Transform
}

// NewPipeline creates a pipeline over the given transforms, in order.
func NewPipeline(transforms ...Transform) *Pipeline {
	return &Pipeline{transforms: transforms}
}

// Add appends a transform and returns the pipeline for chaining.
func (p *Pipeline) Add(t Transform) *Pipeline {
	p.transforms = append(p.transforms, t)
	return p
}

// Names returns the registered stage names in execution order.
func (p *Pipeline) Names() []string {
	names := make([]string, len(p.transforms))
	for i, t := range p.transforms {
		names[i] = t.Name
	}
	return names
}

// Process runs every stage in registration order. Each stage works on a
// deep copy of the current context; a stage that returns an error is
// logged under its name and its copy discarded, so the next stage sees
// the pre-failure context with no partial mutation.
func (p *Pipeline) Process(ctx context.Context, initial *MessageContext) *MessageContext {
	current := initial
	for _, t := range p.transforms {
		next, err := t.Apply(ctx, current.Clone())
		if err != nil {
			logging.Error(err, logging.ComponentPipeline, t.Name)
			continue
		}
		current = next
	}
	return current
}
