package pipeline

import (
	"fmt"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
)

// PrepareContext builds the initial working set for a turn: the messages
// to send, replayed history, the assistant placeholder and the persona
// governing the turn.
//
// With no mentions, the turn sends just the new user message under the
// thread's own character. With mentions, the first mentioned character
// takes over: the placeholder is pre-tagged with it so the reply renders
// attributed, and a synthetic system line summarizing the latest
// exchange is prepended when the thread has enough history.
func PrepareContext(message string, thread chat.Thread, mentioned []chat.MentionedCharacter) TurnContext {
	newMessage := chat.Message{Content: message, IsUser: true}
	placeholder := chat.Message{IsUser: false}
	var messagesToSend []chat.Message

	if len(mentioned) > 0 {
		placeholder.Character = mentioned[0].Character
		if contextLine := buildContextMessage(thread); contextLine != "" {
			messagesToSend = append(messagesToSend, chat.Message{
				Content:  contextLine,
				IsUser:   false,
				IsSystem: true,
			})
		}
		messagesToSend = append(messagesToSend, newMessage)
	} else {
		messagesToSend = []chat.Message{newMessage}
	}

	// Replies from other personas are replayed as third-person system
	// notes so the model doesn't mistake them for its own turns. The
	// first history item always passes through as-is.
	var historyToSend []chat.Message
	for _, msg := range thread.Messages {
		if msg.Character != nil && len(historyToSend) > 0 {
			historyToSend = append(historyToSend, chat.Message{
				Content:  fmt.Sprintf("%s responded: %q", msg.Character.Name, msg.Content),
				IsUser:   false,
				IsSystem: true,
			})
			continue
		}
		historyToSend = append(historyToSend, msg)
	}

	characterToUse := thread.Character
	if len(mentioned) > 0 {
		characterToUse = mentioned[0].Character
	}

	return TurnContext{
		MessagesToSend:       messagesToSend,
		HistoryToSend:        historyToSend,
		AssistantPlaceholder: placeholder,
		UseMention:           len(mentioned) > 0,
		CharacterToUse:       characterToUse,
	}
}

// buildContextMessage summarizes the most recent exchange for a
// mention-invoked character. Empty when the thread has fewer than two
// messages or no active character.
func buildContextMessage(thread chat.Thread) string {
	if len(thread.Messages) < 2 || thread.Character == nil {
		return ""
	}
	userLast := thread.Messages[len(thread.Messages)-2]
	assistantLast := thread.Messages[len(thread.Messages)-1]
	return fmt.Sprintf("User told %s %q and they responded with %q",
		thread.Character.Name, userLast.Content, assistantLast.Content)
}
