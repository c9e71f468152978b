package semantic

import (
	"context"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
)

// JSONMessenger is the structured-completion capability of a chat
// provider.
type JSONMessenger interface {
	SendJSONMessage(ctx context.Context, message string, model *chat.Model, systemPrompt string) (map[string]any, error)
}

// SearchDecision is the outcome of the search classification routine.
type SearchDecision struct {
	SearchRequired bool
	Query          string
}

const searchClassifierPrompt = `You decide whether answering the user's message requires a live web search for current information. Respond with a JSON object: {"searchRequired": boolean, "query": string}. The query must be a short search engine query, empty when no search is required.`

// IsSearchRequired asks the provider whether the message warrants a live
// web search and, if so, what query to issue. Any failure or malformed
// response resolves to "no search required".
func IsSearchRequired(ctx context.Context, message string, p JSONMessenger, model *chat.Model) SearchDecision {
	parsed, err := p.SendJSONMessage(ctx, message, model, searchClassifierPrompt)
	if err != nil {
		return SearchDecision{}
	}

	decision := SearchDecision{}
	if v, ok := parsed["searchRequired"].(bool); ok {
		decision.SearchRequired = v
	}
	if v, ok := parsed["query"].(string); ok {
		decision.Query = v
	}
	if decision.Query == "" {
		decision.SearchRequired = false
	}
	return decision
}
