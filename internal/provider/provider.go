// Package provider abstracts heterogeneous model backends behind one
// capability interface. Concrete adapters translate a vendor wire
// protocol into streaming fragments, simple completions, JSON
// completions and embeddings.
package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
)

// ChatProvider is the uniform capability interface over one vendor
// backend. Every adapter implements all of it; callers never see vendor
// payload shapes.
type ChatProvider interface {
	// StreamMessage sends the conversation and returns a channel of text
	// fragments plus a single-shot error channel. Cancelling ctx must end
	// the fragment channel promptly without a user-visible error.
	StreamMessage(ctx context.Context, messages []chat.Message, model *chat.Model, character *chat.Character) (<-chan string, <-chan error)

	// SendSimpleMessage runs a cheap non-streaming completion, used for
	// side tasks such as thread title generation.
	SendSimpleMessage(ctx context.Context, message string, model *chat.Model, systemPrompt string) (string, error)

	// SendJSONMessage requests a structured completion. On parse failure
	// it returns a safe empty value rather than an error.
	SendJSONMessage(ctx context.Context, message string, model *chat.Model, systemPrompt string) (map[string]any, error)

	// EmbedText returns one vector per input text, in input order.
	EmbedText(ctx context.Context, texts []string) ([][]float32, error)

	// ListModels enumerates the models the backend currently serves.
	ListModels(ctx context.Context) ([]chat.Model, error)
}

// ModelNotFoundError reports that the requested model id is not
// recognized by the backend. It is the one error that crosses component
// boundaries uncaught; the orchestrator catches it and prunes the model
// from the catalog.
type ModelNotFoundError struct {
	ModelID    string
	ProviderID string
}

func (e *ModelNotFoundError) Error() string {
	return fmt.Sprintf("model %q not found on provider %q", e.ModelID, e.ProviderID)
}

// IsModelNotFound reports whether err wraps a ModelNotFoundError.
func IsModelNotFound(err error) bool {
	var mnf *ModelNotFoundError
	return errors.As(err, &mnf)
}
