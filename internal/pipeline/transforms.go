package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
	"github.com/compass-ai-chat/compass-sub000/internal/embedding"
	"github.com/compass-ai-chat/compass-sub000/internal/logging"
	"github.com/compass-ai-chat/compass-sub000/internal/notify"
	"github.com/compass-ai-chat/compass-sub000/internal/provider"
	"github.com/compass-ai-chat/compass-sub000/internal/semantic"
	"github.com/compass-ai-chat/compass-sub000/internal/store"
	"github.com/compass-ai-chat/compass-sub000/internal/web"
)

// Document search bounds shared by the three semantic stages.
const (
	searchChunkSize     = 512
	searchMinSimilarity = 0.3

	documentContextMaxResults  = 3
	relevantPassagesMaxResults = 5
	webSearchMaxResults        = 3
)

const titlePrompt = `Based on the user message, generate a concise 3-word title that captures the essence of the conversation. Format: "Word1 Word2 Word3" (no quotes, no periods but do include spaces).`

// titleWordLimit bounds generated thread titles.
const titleWordLimit = 5

// Stages carries the injected collaborators every transform needs.
// Stages never reach into ambient globals; everything arrives here or in
// the per-turn Metadata.
type Stages struct {
	Fetcher  web.Fetcher
	Notifier notify.Notifier

	// EmbedderFor resolves the embedding backend for a turn, typically
	// the turn's own provider.
	EmbedderFor func(p provider.ChatProvider) embedding.Embedder

	// Now supplies the template clock. Defaults to time.Now.
	Now func() time.Time
}

func (s *Stages) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *Stages) embedderFor(m *MessageContext) embedding.Embedder {
	if s.EmbedderFor != nil {
		return s.EmbedderFor(m.Provider)
	}
	return embedding.NewProviderEmbedder(m.Provider, "chat")
}

// Standard returns the fixed stage order for a normal chat turn.
func (s *Stages) Standard() []Transform {
	return []Transform{
		{Name: "templateVariable", Apply: s.TemplateVariable},
		{Name: "documentContext", Apply: s.DocumentContext},
		{Name: "urlContent", Apply: s.URLContent},
		{Name: "relevantPassages", Apply: s.RelevantPassages},
		{Name: "webSearch", Apply: s.WebSearch},
		{Name: "threadUpdate", Apply: s.ThreadUpdate},
		{Name: "firstMessage", Apply: s.FirstMessage},
	}
}

// TemplateVariable substitutes runtime tokens in the system prompt:
// ${current-date}, ${current-time}, ${current-datetime}, ${day-of-week},
// ${month-name}, ${year} and ${user-name}. No-op when the active
// character has no content or nothing is queued to send.
func (s *Stages) TemplateVariable(_ context.Context, m *MessageContext) (*MessageContext, error) {
	character := m.Context.CharacterToUse
	if character == nil || character.Content == "" || len(m.Context.MessagesToSend) == 0 {
		return m, nil
	}

	now := s.now()
	userName := m.Metadata.UserName
	if userName == "" {
		userName = "User"
	}

	replacer := strings.NewReplacer(
		"${current-date}", now.Format("2006-01-02"),
		"${current-time}", now.Format("15:04:05"),
		"${current-datetime}", now.Format("2006-01-02 15:04:05"),
		"${day-of-week}", now.Weekday().String(),
		"${month-name}", now.Month().String(),
		"${year}", fmt.Sprintf("%d", now.Year()),
		"${user-name}", userName,
	)
	m.SystemPrompt = replacer.Replace(m.SystemPrompt)
	return m, nil
}

// DocumentContext merges document ids from the thread metadata and the
// active character, ranks their chunks against the user's message and
// appends hits as a user-attributed grounding message. No-op without an
// active character or resolvable documents.
func (s *Stages) DocumentContext(ctx context.Context, m *MessageContext) (*MessageContext, error) {
	character := m.Context.CharacterToUse
	if character == nil {
		return m, nil
	}

	var documentIDs []string
	if m.Thread.Metadata != nil {
		documentIDs = append(documentIDs, m.Thread.Metadata.DocumentIDs...)
	}
	documentIDs = append(documentIDs, character.DocumentIDs...)
	documentIDs = dedupe(documentIDs)
	if len(documentIDs) == 0 {
		return m, nil
	}

	wanted := make(map[string]bool, len(documentIDs))
	for _, id := range documentIDs {
		wanted[id] = true
	}

	var chunks []string
	var vectors [][]float32
	for _, doc := range m.Metadata.Documents {
		if !wanted[doc.ID] {
			continue
		}
		for i, chunk := range doc.Chunks {
			chunks = append(chunks, chunk)
			if i < len(doc.Embeddings) {
				vectors = append(vectors, doc.Embeddings[i])
			} else {
				vectors = append(vectors, nil)
			}
		}
	}
	if len(chunks) == 0 {
		return m, nil
	}

	passages, err := semantic.SearchChunks(ctx, m.Message, chunks, vectors, s.embedderFor(m), semantic.Options{
		MaxChunkSize:  searchChunkSize,
		MinSimilarity: searchMinSimilarity,
		MaxResults:    documentContextMaxResults,
	})
	if err != nil {
		return nil, fmt.Errorf("document search failed: %w", err)
	}
	if len(passages) == 0 {
		return m, nil
	}

	// User-attributed so the model treats document content as grounding
	// supplied by the user, unlike the system-attributed web stages.
	m.Context.MessagesToSend = append(m.Context.MessagesToSend, chat.Message{
		Content: "Relevant document context:\n" + joinPassages(passages),
		IsUser:  true,
	})
	return m, nil
}

// URLContent scans the raw message for http(s) URLs and fetches each
// page's text. Per-URL failures are logged and reported as warnings; the
// stage continues. Fetched bodies land in Metadata.WebContent for the
// relevantPassages stage. No-op when the message contains no URLs.
func (s *Stages) URLContent(ctx context.Context, m *MessageContext) (*MessageContext, error) {
	urls := web.URLPattern.FindAllString(m.Message, -1)
	if len(urls) == 0 {
		return m, nil
	}

	s.Notifier.Info("Processing URLs", "Fetching content from links...")

	var webContent []string
	for _, url := range urls {
		content, err := s.Fetcher.FetchSiteText(ctx, url)
		if err != nil {
			logging.Error(err, "urlContentTransform", "transform")
			s.Notifier.Warning("URL Processing Error", fmt.Sprintf("Failed to process %s", url))
			continue
		}
		webContent = append(webContent, fmt.Sprintf("Content from %s:\n%s\n", url, content))
	}

	m.Metadata.WebContent = webContent
	m.Metadata.URLs = urls
	return m, nil
}

// RelevantPassages ranks the fetched web content against the message
// (URLs stripped) and appends hits as a system-attributed context
// message. No-op without web content or a selected model.
func (s *Stages) RelevantPassages(ctx context.Context, m *MessageContext) (*MessageContext, error) {
	if len(m.Metadata.WebContent) == 0 {
		return m, nil
	}
	if m.Thread.SelectedModel == nil {
		return m, nil
	}

	query := m.Message
	for _, url := range m.Metadata.URLs {
		query = strings.ReplaceAll(query, url, "")
	}
	query = strings.TrimSpace(query)

	passages, err := semantic.SearchRelevantPassages(ctx, query,
		strings.Join(m.Metadata.WebContent, "\n"), s.embedderFor(m), semantic.Options{
			MaxChunkSize:  searchChunkSize,
			MinSimilarity: searchMinSimilarity,
			MaxResults:    relevantPassagesMaxResults,
		})
	if err != nil {
		return nil, fmt.Errorf("web content search failed: %w", err)
	}
	if len(passages) == 0 {
		return m, nil
	}

	m.Context.MessagesToSend = append(m.Context.MessagesToSend, chat.Message{
		Content:  "Web content context:\n" + joinPassages(passages),
		IsUser:   false,
		IsSystem: true,
	})
	return m, nil
}

// WebSearch asks the provider whether the message warrants a live
// search, runs the caller-supplied search function and appends the top
// results as a system-attributed context message. No-op unless the
// searchEnabled flag is set.
func (s *Stages) WebSearch(ctx context.Context, m *MessageContext) (*MessageContext, error) {
	if !m.Metadata.SearchEnabled || m.Metadata.Search == nil {
		return m, nil
	}

	decision := semantic.IsSearchRequired(ctx, m.Message, m.Provider, m.Thread.SelectedModel)
	if !decision.SearchRequired {
		return m, nil
	}

	resp, err := m.Metadata.Search(ctx, decision.Query)
	if err != nil {
		return nil, fmt.Errorf("web search failed: %w", err)
	}
	if len(resp.Results) == 0 {
		return m, nil
	}

	results := resp.Results
	if len(results) > webSearchMaxResults {
		results = results[:webSearchMaxResults]
	}
	contents := make([]string, len(results))
	for i, r := range results {
		contents[i] = r.Content
	}

	m.Context.MessagesToSend = append(m.Context.MessagesToSend, chat.Message{
		Content:  "Web search results: " + strings.Join(contents, "\n"),
		IsUser:   false,
		IsSystem: true,
	})
	return m, nil
}

// ThreadUpdate builds the updated thread (prior messages + the user's
// message + the assistant placeholder), dispatches an update action and
// records the result in Metadata.UpdatedThread for firstMessage and the
// stream consumer.
func (s *Stages) ThreadUpdate(ctx context.Context, m *MessageContext) (*MessageContext, error) {
	updated := m.Thread
	messages := append([]chat.Message(nil), m.Metadata.Messages...)
	messages = append(messages, chat.Message{Content: m.Message, IsUser: true})
	messages = append(messages, m.Context.AssistantPlaceholder)
	updated.Messages = messages

	if err := m.Metadata.Dispatch.Dispatch(ctx, store.ThreadAction{
		Type:   store.ActionUpdate,
		Thread: &updated,
	}); err != nil {
		return nil, fmt.Errorf("thread update dispatch failed: %w", err)
	}

	m.Metadata.UpdatedThread = &updated
	return m, nil
}

// FirstMessage generates a short thread title on the very first turn via
// the provider's simple-message capability and dispatches a title
// update. Failures are reported and swallowed; they never abort the
// turn. No-op unless the thread has no prior messages and a model is
// selected.
func (s *Stages) FirstMessage(ctx context.Context, m *MessageContext) (*MessageContext, error) {
	if len(m.Thread.Messages) != 0 || m.Thread.SelectedModel == nil {
		return m, nil
	}

	title, err := m.Provider.SendSimpleMessage(ctx, m.Message, m.Thread.SelectedModel, titlePrompt)
	if err != nil {
		s.Notifier.Danger("Error generating title", err.Error())
		logging.Error(err, "firstMessageTransform", "transform")
		return m, nil
	}

	words := strings.Fields(title)
	if len(words) > titleWordLimit {
		words = words[:titleWordLimit]
	}
	limited := strings.Join(words, " ")

	titled := m.Thread
	if m.Metadata.UpdatedThread != nil {
		titled = *m.Metadata.UpdatedThread
	}
	titled.Title = limited

	if err := m.Metadata.Dispatch.Dispatch(ctx, store.ThreadAction{
		Type:   store.ActionUpdate,
		Thread: &titled,
	}); err != nil {
		s.Notifier.Danger("Error generating title", err.Error())
		logging.Error(err, "firstMessageTransform", "transform")
		return m, nil
	}

	m.Metadata.UpdatedThread = &titled
	return m, nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func joinPassages(passages []semantic.Passage) string {
	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	return strings.Join(texts, "\n")
}
