// Package pipeline implements the message transform pipeline: an
// ordered sequence of enrichment stages that build up the message list
// for one chat turn. Stages are individually failable; a stage error
// never aborts the turn.
package pipeline

import (
	"context"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
	"github.com/compass-ai-chat/compass-sub000/internal/provider"
	"github.com/compass-ai-chat/compass-sub000/internal/store"
)

// SearchResult is one hit from the caller-supplied search function.
type SearchResult struct {
	Content string `json:"content"`
	URL     string `json:"url,omitempty"`
	Title   string `json:"title,omitempty"`
}

// SearchResponse wraps search hits.
type SearchResponse struct {
	Results []SearchResult `json:"results"`
}

// SearchFunc performs a live web search for the webSearch stage.
type SearchFunc func(ctx context.Context, query string) (SearchResponse, error)

// TurnContext is the prepared working set for one turn: what will be
// sent, replayed history, the assistant placeholder and the resolved
// persona.
type TurnContext struct {
	// MessagesToSend accumulates context/system messages plus the user's
	// message. It never contains the assistant placeholder; the
	// orchestrator appends that after the pipeline completes.
	MessagesToSend []chat.Message

	// HistoryToSend is prior thread history transformed for
	// transmission.
	HistoryToSend []chat.Message

	// AssistantPlaceholder is the empty assistant message the stream
	// consumer fills.
	AssistantPlaceholder chat.Message

	// UseMention reports whether a mention override is active.
	UseMention bool

	// CharacterToUse is the persona governing this turn, if any.
	CharacterToUse *chat.Character
}

// Metadata is the typed inter-stage communication record. Each stage
// documents which fields it reads and writes.
type Metadata struct {
	// Messages is the thread's message list at turn start (after any
	// edit truncation). Read by threadUpdate.
	Messages []chat.Message

	// SearchEnabled gates the webSearch stage.
	SearchEnabled bool

	// Search is the caller-supplied search function. Read by webSearch.
	Search SearchFunc

	// Dispatch is the thread persistence dispatcher. Used by
	// threadUpdate and firstMessage.
	Dispatch store.Dispatcher

	// Documents is the caller-supplied document set. Read by
	// documentContext.
	Documents []chat.Document

	// UserName substitutes ${user-name}. Read by templateVariable.
	UserName string

	// WebContent and URLs are written by urlContent and read by
	// relevantPassages.
	WebContent []string
	URLs       []string

	// UpdatedThread is written by threadUpdate for firstMessage and the
	// stream consumer to target.
	UpdatedThread *chat.Thread
}

// MessageContext is the pipeline's working state, created once per turn
// and threaded through every stage.
type MessageContext struct {
	// Message is the raw user input. Immutable after creation.
	Message string

	// Provider is the resolved chat provider for this turn.
	Provider provider.ChatProvider

	// Thread is the turn's thread snapshot.
	Thread chat.Thread

	// MentionedCharacters are personas invoked via mention syntax,
	// ordered by first mention.
	MentionedCharacters []chat.MentionedCharacter

	// SystemPrompt is seeded from the active character's content and
	// rewritten by template substitution. Stages that find nothing to
	// substitute must leave it untouched, never blank it.
	SystemPrompt string

	Context  TurnContext
	Metadata Metadata
}

// Clone returns a deep copy of the context's turn-owned state. Shared
// collaborators (provider, dispatcher, search function, documents) are
// carried by reference; stages treat them as read-only.
func (m *MessageContext) Clone() *MessageContext {
	out := *m
	out.MentionedCharacters = append([]chat.MentionedCharacter(nil), m.MentionedCharacters...)
	out.Thread.Messages = append([]chat.Message(nil), m.Thread.Messages...)
	if m.Thread.Metadata != nil {
		md := *m.Thread.Metadata
		md.DocumentIDs = append([]string(nil), m.Thread.Metadata.DocumentIDs...)
		md.WebContent = append([]string(nil), m.Thread.Metadata.WebContent...)
		md.URLs = append([]string(nil), m.Thread.Metadata.URLs...)
		out.Thread.Metadata = &md
	}
	out.Context.MessagesToSend = append([]chat.Message(nil), m.Context.MessagesToSend...)
	out.Context.HistoryToSend = append([]chat.Message(nil), m.Context.HistoryToSend...)
	out.Metadata.Messages = append([]chat.Message(nil), m.Metadata.Messages...)
	out.Metadata.WebContent = append([]string(nil), m.Metadata.WebContent...)
	out.Metadata.URLs = append([]string(nil), m.Metadata.URLs...)
	return &out
}
