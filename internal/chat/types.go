// Package chat defines the conversation data model shared by the transform
// pipeline, the stream consumer and the turn orchestrator.
package chat

import "github.com/google/uuid"

// Thread is an ordered conversation. The core receives thread snapshots
// and emits update instructions through the store dispatcher; it never
// owns thread storage.
type Thread struct {
	ID            string          `json:"id" yaml:"id"`
	Title         string          `json:"title" yaml:"title"`
	Messages      []Message       `json:"messages" yaml:"messages"`
	SelectedModel *Model          `json:"selectedModel,omitempty" yaml:"selected_model,omitempty"`
	Character     *Character      `json:"character,omitempty" yaml:"character,omitempty"`
	Metadata      *ThreadMetadata `json:"metadata,omitempty" yaml:"metadata,omitempty"`
}

// ThreadMetadata carries free-form per-thread attachments.
type ThreadMetadata struct {
	DocumentIDs []string `json:"documentIds,omitempty" yaml:"document_ids,omitempty"`
	WebContent  []string `json:"webContent,omitempty" yaml:"web_content,omitempty"`
	URLs        []string `json:"urls,omitempty" yaml:"urls,omitempty"`
}

// Message is one conversational turn. Immutable once appended; the
// streaming accumulator only materializes into a copy at dispatch time.
type Message struct {
	Content string `json:"content"`
	IsUser  bool   `json:"isUser"`
	// IsSystem marks orchestration-injected context rather than a true
	// conversational turn.
	IsSystem bool `json:"isSystem,omitempty"`
	// Character attributes a reply to a mentioned persona.
	Character *Character `json:"character,omitempty"`
}

// Character is a persona definition. Read-only input to the pipeline.
type Character struct {
	ID            string         `json:"id" yaml:"id"`
	Name          string         `json:"name" yaml:"name"`
	Content       string         `json:"content" yaml:"content"`
	DocumentIDs   []string       `json:"documentIds,omitempty" yaml:"document_ids,omitempty"`
	AllowedModels []AllowedModel `json:"allowedModels,omitempty" yaml:"allowed_models,omitempty"`
	ToolIDs       []string       `json:"toolIds,omitempty" yaml:"tool_ids,omitempty"`
}

// AllowedModel restricts a character to a model on a specific provider.
type AllowedModel struct {
	ID         string `json:"id" yaml:"id"`
	ProviderID string `json:"providerId" yaml:"provider_id"`
	Priority   int    `json:"priority" yaml:"priority"`
}

// Allows reports whether the character may use the given model. A
// character with no allow-list may use any model.
func (c *Character) Allows(m *Model) bool {
	if c == nil || len(c.AllowedModels) == 0 || m == nil {
		return true
	}
	for _, am := range c.AllowedModels {
		if am.ID == m.ID && am.ProviderID == m.Provider.ID {
			return true
		}
	}
	return false
}

// Model identifies one model on one provider backend.
type Model struct {
	ID       string   `json:"id" yaml:"id"`
	Name     string   `json:"name" yaml:"name"`
	Provider Provider `json:"provider" yaml:"provider"`
}

// Provider describes a model-serving backend endpoint.
type Provider struct {
	ID       string `json:"id" yaml:"id"`
	Name     string `json:"name,omitempty" yaml:"name,omitempty"`
	Kind     string `json:"kind" yaml:"kind"` // "openai" (OpenAI-compatible) or "gemini"
	Endpoint string `json:"endpoint" yaml:"endpoint"`
	APIKey   string `json:"apiKey,omitempty" yaml:"api_key,omitempty"`
}

// Document is a read-only text source consulted by the documentContext
// stage. Chunks are ordered segments; Embeddings, when present, are
// precomputed vectors aligned with Chunks.
type Document struct {
	ID         string      `json:"id"`
	Name       string      `json:"name"`
	Type       string      `json:"type"` // "pdf", "note" or "text"
	Chunks     []string    `json:"chunks,omitempty"`
	Embeddings [][]float32 `json:"embeddings,omitempty"`
}

// MentionedCharacter pairs a character with the position it was first
// mentioned in the message, ordered by first mention.
type MentionedCharacter struct {
	Character *Character
	Position  int
}

// NewThread creates an empty thread seeded with the given character and
// model selection.
func NewThread(character *Character, model *Model) Thread {
	return Thread{
		ID:            uuid.NewString(),
		Title:         "New Thread",
		Messages:      nil,
		SelectedModel: model,
		Character:     character,
	}
}

// CloneMessages returns a shallow copy of the thread's message slice.
// Dispatches always carry complete message arrays, never partial
// mutations of a shared backing array.
func (t *Thread) CloneMessages() []Message {
	out := make([]Message, len(t.Messages))
	copy(out, t.Messages)
	return out
}
