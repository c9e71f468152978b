// Package logging provides component-tagged structured logging for compass.
// All core components report through here; failures inside the transform
// pipeline are logged with the failing stage name so they stay observable
// without aborting a turn.
package logging

import (
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Component names used across the core.
const (
	ComponentPipeline     = "pipeline"
	ComponentPrepare      = "contextPreparer"
	ComponentStream       = "streamHandler"
	ComponentTurn         = "turnOrchestrator"
	ComponentProvider     = "provider"
	ComponentEmbedding    = "embedding"
	ComponentSemantic     = "semanticSearch"
	ComponentWeb          = "webFetch"
	ComponentStore        = "store"
	ComponentConfig       = "config"
)

var (
	mu   sync.RWMutex
	base = zap.NewNop()
)

// Init builds the process logger. Debug mode switches to the development
// encoder with debug-level output. Safe to call more than once; the last
// call wins.
func Init(debug bool) error {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
	}
	logger, err := cfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return err
	}
	mu.Lock()
	base = logger
	mu.Unlock()
	return nil
}

// SetLogger replaces the process logger. Tests use this to capture output.
func SetLogger(l *zap.Logger) {
	mu.Lock()
	if l == nil {
		l = zap.NewNop()
	}
	base = l
	mu.Unlock()
}

// L returns a logger named after the given component.
func L(component string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return base.Named(component)
}

// Error records a failure with component and function tags. This is the
// single structured channel every swallowed error goes through.
func Error(err error, component, function string) {
	if err == nil {
		return
	}
	L(component).Error(err.Error(),
		zap.String("component", component),
		zap.String("function", function))
}

// Warn records a non-fatal condition with component and function tags.
func Warn(msg, component, function string) {
	L(component).Warn(msg,
		zap.String("component", component),
		zap.String("function", function))
}

// Sync flushes buffered log entries. Called on shutdown.
func Sync() {
	mu.RLock()
	defer mu.RUnlock()
	_ = base.Sync()
}
