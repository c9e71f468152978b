// Package notify delivers fire-and-forget user notifications. The core
// never blocks on a notification and never lets one fail a turn.
package notify

import (
	"go.uber.org/zap"

	"github.com/compass-ai-chat/compass-sub000/internal/logging"
)

// Notifier receives toast-style notifications with a title and
// description.
type Notifier interface {
	Success(title, description string)
	Info(title, description string)
	Warning(title, description string)
	Danger(title, description string)
}

// LogNotifier renders notifications into the structured log. The default
// sink for headless use; UIs supply their own Notifier.
type LogNotifier struct{}

func (LogNotifier) Success(title, description string) {
	logging.L("notify").Info(title, zap.String("description", description), zap.String("level", "success"))
}

func (LogNotifier) Info(title, description string) {
	logging.L("notify").Info(title, zap.String("description", description), zap.String("level", "info"))
}

func (LogNotifier) Warning(title, description string) {
	logging.L("notify").Warn(title, zap.String("description", description), zap.String("level", "warning"))
}

func (LogNotifier) Danger(title, description string) {
	logging.L("notify").Error(title, zap.String("description", description), zap.String("level", "danger"))
}

// Nop drops all notifications. Used in tests.
type Nop struct{}

func (Nop) Success(title, description string) {}
func (Nop) Info(title, description string)    {}
func (Nop) Warning(title, description string) {}
func (Nop) Danger(title, description string)  {}
