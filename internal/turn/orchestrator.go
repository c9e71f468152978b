// Package turn orchestrates one chat turn end to end: precondition
// checks, context preparation, the transform pipeline, streaming and
// recovery. It owns the generating flag and the single cancellation
// handle per in-flight turn.
package turn

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
	"github.com/compass-ai-chat/compass-sub000/internal/embedding"
	"github.com/compass-ai-chat/compass-sub000/internal/logging"
	"github.com/compass-ai-chat/compass-sub000/internal/notify"
	"github.com/compass-ai-chat/compass-sub000/internal/pipeline"
	"github.com/compass-ai-chat/compass-sub000/internal/provider"
	"github.com/compass-ai-chat/compass-sub000/internal/speech"
	"github.com/compass-ai-chat/compass-sub000/internal/store"
	"github.com/compass-ai-chat/compass-sub000/internal/stream"
	"github.com/compass-ai-chat/compass-sub000/internal/web"
)

// ErrBusy reports that a turn is already streaming.
var ErrBusy = errors.New("a turn is already in progress")

// ErrNoProvider reports that no provider is configured.
var ErrNoProvider = errors.New("no provider found")

// Options wires the orchestrator's collaborators.
type Options struct {
	Registry  *provider.Registry
	Catalog   *provider.Catalog
	Dispatch  store.Dispatcher
	Notifier  notify.Notifier
	Speech    speech.Synthesizer
	Documents store.DocumentStore
	Fetcher   web.Fetcher

	// Search enables the webSearch stage when non-nil and SearchEnabled
	// is set.
	Search        pipeline.SearchFunc
	SearchEnabled bool

	// UserName substitutes ${user-name} in character prompts.
	UserName string

	// UpdateDelay tunes the stream consumer's per-fragment pause. Zero
	// keeps the default.
	UpdateDelay time.Duration

	// EmbedderFor overrides the embedding backend per turn. Nil uses
	// the turn's own provider.
	EmbedderFor func(p provider.ChatProvider) embedding.Embedder

	// Now overrides the template clock in tests.
	Now func() time.Time
}

// Orchestrator runs chat turns against an in-memory thread list. The
// UI observes thread state through the dispatcher; the orchestrator
// keeps its own copy current so consecutive turns see prior messages.
type Orchestrator struct {
	opts     Options
	pipe     *pipeline.Pipeline
	consumer *stream.Consumer

	mu         sync.Mutex
	threads    []chat.Thread
	current    int
	persisted  map[string]bool
	generating bool
	editing    int
	cancel     context.CancelFunc
}

// NewOrchestrator builds an orchestrator with the standard stage order.
func NewOrchestrator(opts Options) *Orchestrator {
	if opts.Notifier == nil {
		opts.Notifier = notify.Nop{}
	}
	if opts.Speech == nil {
		opts.Speech = speech.Null{}
	}
	if opts.Fetcher == nil {
		opts.Fetcher = web.NewHTTPFetcher()
	}
	stages := &pipeline.Stages{
		Fetcher:     opts.Fetcher,
		Notifier:    opts.Notifier,
		EmbedderFor: opts.EmbedderFor,
		Now:         opts.Now,
	}
	return &Orchestrator{
		opts: opts,
		pipe: pipeline.NewPipeline(stages.Standard()...),
		consumer: &stream.Consumer{
			Dispatch:    opts.Dispatch,
			Notifier:    opts.Notifier,
			Speech:      opts.Speech,
			UpdateDelay: opts.UpdateDelay,
		},
		persisted: make(map[string]bool),
		current:   -1,
		editing:   -1,
	}
}

// SetThread installs a thread as the current one, appending it to the
// thread list if unknown. Threads loaded from storage are marked
// persisted so the first turn does not re-add them.
func (o *Orchestrator) SetThread(t chat.Thread, alreadyPersisted bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.threads {
		if o.threads[i].ID == t.ID {
			o.threads[i] = t
			o.current = i
			if alreadyPersisted {
				o.persisted[t.ID] = true
			}
			return
		}
	}
	o.threads = append(o.threads, t)
	o.current = len(o.threads) - 1
	if alreadyPersisted {
		o.persisted[t.ID] = true
	}
}

// CurrentThread returns a snapshot of the active thread.
func (o *Orchestrator) CurrentThread() (chat.Thread, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.current < 0 || o.current >= len(o.threads) {
		return chat.Thread{}, false
	}
	t := o.threads[o.current]
	t.Messages = append([]chat.Message(nil), t.Messages...)
	return t, true
}

// Generating reports whether a turn is streaming.
func (o *Orchestrator) Generating() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.generating
}

// SetEditingIndex marks a prior message as being edited. The next Send
// truncates the thread at that index and clears the marker.
func (o *Orchestrator) SetEditingIndex(i int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.editing = i
}

// Interrupt cancels the in-flight turn, if any, and stops speech
// playback. Safe to call at any time.
func (o *Orchestrator) Interrupt() {
	o.mu.Lock()
	cancel := o.cancel
	o.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	o.opts.Speech.Stop()
}

// AddNewThread creates and persists a fresh thread seeded with the
// current thread's character and model. It refuses when the latest
// thread is still empty, so abandoned threads do not accumulate.
func (o *Orchestrator) AddNewThread(ctx context.Context) (chat.Thread, error) {
	o.mu.Lock()
	var character *chat.Character
	var model *chat.Model
	if n := len(o.threads); n > 0 {
		latest := o.threads[n-1]
		if len(latest.Messages) == 0 {
			o.current = n - 1
			o.mu.Unlock()
			return latest, nil
		}
		character = latest.Character
		model = latest.SelectedModel
	}
	t := chat.NewThread(character, model)
	o.threads = append(o.threads, t)
	o.current = len(o.threads) - 1
	o.persisted[t.ID] = true
	o.mu.Unlock()

	if err := o.opts.Dispatch.Dispatch(ctx, store.ThreadAction{
		Type:   store.ActionAdd,
		Thread: &t,
	}); err != nil {
		return t, fmt.Errorf("failed to persist new thread: %w", err)
	}
	return t, nil
}

// Send runs one complete chat turn against the current thread. It
// returns ErrBusy while a turn is streaming and ErrNoProvider when no
// provider is configured. Stream-level failures are reported through
// the notifier and do not return an error; a model-not-found response
// prunes the model from the catalog.
func (o *Orchestrator) Send(ctx context.Context, message string, mentioned []chat.MentionedCharacter) error {
	o.mu.Lock()
	if o.generating {
		o.mu.Unlock()
		return ErrBusy
	}
	if o.opts.Registry.Len() == 0 {
		o.mu.Unlock()
		o.opts.Notifier.Danger("No provider found", "Please configure a provider before chatting.")
		return ErrNoProvider
	}
	if o.current < 0 || o.current >= len(o.threads) {
		o.mu.Unlock()
		return errors.New("no active thread")
	}

	thread := o.threads[o.current]
	thread.Messages = append([]chat.Message(nil), thread.Messages...)
	if o.editing >= 0 && o.editing <= len(thread.Messages) {
		thread.Messages = thread.Messages[:o.editing]
	}
	o.editing = -1

	characterToUse := thread.Character
	if len(mentioned) > 0 {
		characterToUse = mentioned[0].Character
	}
	model := thread.SelectedModel
	if model == nil {
		o.mu.Unlock()
		o.opts.Notifier.Danger("No model selected", "Select a model before sending a message.")
		return errors.New("no model selected")
	}
	if !characterToUse.Allows(model) {
		o.mu.Unlock()
		o.opts.Notifier.Danger("Model not allowed",
			fmt.Sprintf("%s cannot use %s.", characterToUse.Name, model.Name))
		return fmt.Errorf("character %q does not allow model %q", characterToUse.Name, model.ID)
	}

	needsAdd := len(thread.Messages) == 0 && !o.persisted[thread.ID]

	o.generating = true
	turnCtx, cancel := context.WithCancel(ctx)
	o.cancel = cancel
	o.mu.Unlock()

	defer func() {
		cancel()
		o.mu.Lock()
		o.generating = false
		o.cancel = nil
		o.mu.Unlock()
	}()

	p, err := o.opts.Registry.Get(turnCtx, model.Provider.ID)
	if err != nil {
		o.opts.Notifier.Danger("Provider error", err.Error())
		return err
	}

	if needsAdd {
		if err := o.opts.Dispatch.Dispatch(turnCtx, store.ThreadAction{
			Type:   store.ActionAdd,
			Thread: &thread,
		}); err != nil {
			o.opts.Notifier.Danger("Storage error", err.Error())
			return err
		}
		o.mu.Lock()
		o.persisted[thread.ID] = true
		o.mu.Unlock()
	}

	result := o.pipe.Process(turnCtx, o.buildContext(turnCtx, message, thread, mentioned, p))

	updated := result.Metadata.UpdatedThread
	if updated == nil {
		// threadUpdate failed; stream against a local copy so the turn
		// still completes.
		fallback := thread
		fallback.Messages = append(thread.CloneMessages(),
			chat.Message{Content: message, IsUser: true},
			result.Context.AssistantPlaceholder)
		updated = &fallback
	}

	payload := outgoingMessages(result)

	final, err := o.consumer.Consume(turnCtx, p, payload, updated, model, characterToUse)
	if err != nil {
		if provider.IsModelNotFound(err) {
			o.opts.Catalog.Remove(model.ID, model.Provider.ID)
			o.opts.Notifier.Danger("Model removed",
				fmt.Sprintf("%s is no longer available and was removed from the model list.", model.Name))
			o.commitThread(*updated)
			return nil
		}
		logging.Error(err, logging.ComponentTurn, "send")
		o.opts.Notifier.Danger("Chat error", err.Error())
		return err
	}

	done := *updated
	done.Messages = append(done.Messages[:len(done.Messages)-1:len(done.Messages)-1], final)
	o.commitThread(done)
	return nil
}

// buildContext assembles the pipeline's per-turn working state.
func (o *Orchestrator) buildContext(ctx context.Context, message string, thread chat.Thread, mentioned []chat.MentionedCharacter, p provider.ChatProvider) *pipeline.MessageContext {
	turnContext := pipeline.PrepareContext(message, thread, mentioned)

	systemPrompt := ""
	if turnContext.CharacterToUse != nil {
		systemPrompt = turnContext.CharacterToUse.Content
	}

	var documents []chat.Document
	if o.opts.Documents != nil {
		docs, err := o.opts.Documents.Documents(ctx)
		if err != nil {
			logging.Error(err, logging.ComponentTurn, "loadDocuments")
		} else {
			documents = docs
		}
	}

	return &pipeline.MessageContext{
		Message:             message,
		Provider:            p,
		Thread:              thread,
		MentionedCharacters: mentioned,
		SystemPrompt:        systemPrompt,
		Context:             turnContext,
		Metadata: pipeline.Metadata{
			Messages:      thread.CloneMessages(),
			SearchEnabled: o.opts.SearchEnabled && o.opts.Search != nil,
			Search:        o.opts.Search,
			Dispatch:      o.opts.Dispatch,
			Documents:     documents,
			UserName:      o.opts.UserName,
		},
	}
}

// outgoingMessages flattens the processed context into the provider
// payload: system prompt first when non-blank, then replayed history,
// then the accumulated context and user messages. The assistant
// placeholder never rides along; adapters receive only what the model
// should read.
func outgoingMessages(m *pipeline.MessageContext) []chat.Message {
	out := make([]chat.Message, 0, len(m.Context.HistoryToSend)+len(m.Context.MessagesToSend)+1)
	if prompt := strings.TrimSpace(m.SystemPrompt); prompt != "" {
		out = append(out, chat.Message{Content: prompt, IsSystem: true})
	}
	out = append(out, m.Context.HistoryToSend...)
	out = append(out, m.Context.MessagesToSend...)
	return out
}

func (o *Orchestrator) commitThread(t chat.Thread) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := range o.threads {
		if o.threads[i].ID == t.ID {
			o.threads[i] = t
			return
		}
	}
	o.threads = append(o.threads, t)
}
