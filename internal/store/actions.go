// Package store owns thread persistence behind a typed action
// dispatcher, plus the read-only document store consulted by the
// documentContext stage.
package store

import (
	"context"

	"github.com/compass-ai-chat/compass-sub000/internal/chat"
)

// ActionType enumerates thread persistence actions.
type ActionType string

const (
	ActionAdd            ActionType = "add"
	ActionUpdate         ActionType = "update"
	ActionUpdateMessages ActionType = "updateMessages"
	ActionSetCurrent     ActionType = "setCurrent"
	ActionDelete         ActionType = "delete"
	ActionClearAll       ActionType = "clearAll"
)

// ThreadAction is one typed persistence instruction. The turn core only
// emits add, update and updateMessages.
type ThreadAction struct {
	Type ActionType

	// Thread carries the payload for add and update.
	Thread *chat.Thread

	// ThreadID and Messages carry the payload for updateMessages,
	// setCurrent and delete.
	ThreadID string
	Messages []chat.Message
}

// Dispatcher accepts thread actions. The core treats it as a black box.
type Dispatcher interface {
	Dispatch(ctx context.Context, action ThreadAction) error
}

// DispatcherFunc adapts a function to the Dispatcher interface.
type DispatcherFunc func(ctx context.Context, action ThreadAction) error

func (f DispatcherFunc) Dispatch(ctx context.Context, action ThreadAction) error {
	return f(ctx, action)
}

// DocumentStore lists the documents available to the pipeline.
type DocumentStore interface {
	Documents(ctx context.Context) ([]chat.Document, error)
}
