package config

import (
	"github.com/fsnotify/fsnotify"

	"github.com/compass-ai-chat/compass-sub000/internal/logging"
)

// Watch reloads the config file on change and delivers each successful
// reload to onChange. It returns a stop function. Malformed intermediate
// writes are logged and skipped.
func Watch(path string, onChange func(*Config)) (stop func(), err error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(path); err != nil {
		watcher.Close()
		return nil, err
	}

	done := make(chan struct{})
	go func() {
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logging.Error(err, logging.ComponentConfig, "Watch")
					continue
				}
				onChange(cfg)
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logging.Error(err, logging.ComponentConfig, "Watch")
			case <-done:
				return
			}
		}
	}()

	return func() {
		close(done)
		watcher.Close()
	}, nil
}
