// Package stream consumes model output fragments and materializes them
// into thread updates. Fragments are processed strictly sequentially;
// each one extends an accumulator value and dispatches a complete
// message array, so observers always see a coherent thread.
package stream

import (
	"context"
	"encoding/json"
	"strings"
	"time"
	"unicode"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
	"github.com/compass-ai-chat/compass-sub000/internal/logging"
	"github.com/compass-ai-chat/compass-sub000/internal/notify"
	"github.com/compass-ai-chat/compass-sub000/internal/provider"
	"github.com/compass-ai-chat/compass-sub000/internal/speech"
	"github.com/compass-ai-chat/compass-sub000/internal/store"
)

// DefaultUpdateDelay paces per-fragment thread updates so rapid token
// streams don't flood the dispatcher.
const DefaultUpdateDelay = 100 * time.Millisecond

// Consumer drains one streaming response into thread updates and,
// optionally, a speech synthesizer.
type Consumer struct {
	Dispatch store.Dispatcher
	Notifier notify.Notifier
	Speech   speech.Synthesizer

	// UpdateDelay is the pause after each dispatched fragment. Zero
	// means DefaultUpdateDelay; negative disables pacing.
	UpdateDelay time.Duration
}

func (c *Consumer) delay() time.Duration {
	if c.UpdateDelay == 0 {
		return DefaultUpdateDelay
	}
	if c.UpdateDelay < 0 {
		return 0
	}
	return c.UpdateDelay
}

func (c *Consumer) synth() speech.Synthesizer {
	if c.Speech == nil {
		return speech.Null{}
	}
	return c.Speech
}

// Consume streams a completion for the given conversation and folds the
// fragments into the thread's trailing assistant message. The thread's
// last message must be the assistant placeholder; Consume never mutates
// it in place, it dispatches fresh message arrays built from an
// accumulator copy.
//
// A ModelNotFoundError from the backend is returned to the caller; every
// other stream error is surfaced as a notification and swallowed. The
// accumulated message so far is always returned.
func (c *Consumer) Consume(ctx context.Context, p provider.ChatProvider, messages []chat.Message, thread *chat.Thread, model *chat.Model, character *chat.Character) (chat.Message, error) {
	fragments, errs := p.StreamMessage(ctx, messages, model, character)

	accumulated := thread.Messages[len(thread.Messages)-1]
	base := thread.Messages[:len(thread.Messages)-1]
	synth := c.synth()
	ttsActive := synth.Supported()
	first := true

	for fragment := range fragments {
		if first {
			first = false
			if ttsActive {
				// A leading space primes some synthesizers that drop
				// the first utterance otherwise.
				if err := synth.StreamText(" "); err != nil {
					logging.Error(err, logging.ComponentStream, "streamText")
					ttsActive = false
				}
			}
		}

		accumulated.Content += fragment
		if ttsActive {
			if err := synth.StreamText(fragment); err != nil {
				logging.Error(err, logging.ComponentStream, "streamText")
				ttsActive = false
			}
		}

		updated := make([]chat.Message, 0, len(base)+1)
		updated = append(updated, base...)
		updated = append(updated, accumulated)
		if err := c.Dispatch.Dispatch(ctx, store.ThreadAction{
			Type:     store.ActionUpdateMessages,
			ThreadID: thread.ID,
			Messages: updated,
		}); err != nil {
			logging.Error(err, logging.ComponentStream, "dispatch")
		}

		if d := c.delay(); d > 0 {
			select {
			case <-time.After(d):
			case <-ctx.Done():
			}
		}
	}

	if ttsActive {
		// Empty fragment signals end-of-utterance.
		if err := synth.StreamText(""); err != nil {
			logging.Error(err, logging.ComponentStream, "streamText")
		}
	}

	// Adapters buffer at most one error and close both channels when the
	// stream ends, so this receive cannot block once the range above
	// finishes.
	streamErr := <-errs

	if streamErr != nil && ctx.Err() == nil {
		if provider.IsModelNotFound(streamErr) {
			return accumulated, streamErr
		}
		logging.Error(streamErr, logging.ComponentStream, "consume")
		if description, parsed := describeStreamError(streamErr); parsed {
			c.Notifier.Warning("Chat error", description)
		} else {
			c.Notifier.Danger("Chat error", description)
		}
	}

	return accumulated, nil
}

// describeStreamError extracts a readable notification from a vendor
// error. Backends often return a JSON body with an "error" field; when
// present that message is shown, capitalized, as a warning. Only a raw
// body nothing could be parsed out of escalates to a danger toast.
func describeStreamError(err error) (description string, parsed bool) {
	msg := err.Error()
	if start := strings.Index(msg, "{"); start >= 0 {
		var body struct {
			Error string `json:"error"`
		}
		if jsonErr := json.Unmarshal([]byte(msg[start:]), &body); jsonErr == nil && body.Error != "" {
			return capitalize(body.Error), true
		}
	}
	return msg, false
}

func capitalize(s string) string {
	runes := []rune(s)
	if len(runes) == 0 {
		return s
	}
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
