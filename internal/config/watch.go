package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce coalesces the burst of events editors emit for one save.
const DefaultDebounce = 500 * time.Millisecond

// Watch reloads the settings file whenever it changes and passes the new
// config to onChange. It returns once the watcher is installed; watching stops
// when ctx is cancelled.
func Watch(ctx context.Context, path string, debounce time.Duration, log logrus.FieldLogger, onChange func(*Config)) error {
	if path == "" {
		path = DefaultPath()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", path, err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	// Watch the directory containing the file; editors often replace the file
	// rather than writing in place.
	dir := filepath.Dir(absPath)
	filename := filepath.Base(absPath)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return fmt.Errorf("failed to watch directory %s: %w", dir, err)
	}

	log.WithField("path", absPath).Info("Watching settings for changes")

	go func() {
		defer watcher.Close()

		var debounceTimer *time.Timer
		defer func() {
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
		}()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != filename {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounce, func() {
					if ctx.Err() != nil {
						return
					}
					cfg, err := Load(absPath)
					if err != nil {
						log.WithError(err).Warn("Failed to reload settings")
						return
					}
					log.Info("Settings changed, reloaded")
					onChange(cfg)
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				log.WithError(err).Warn("Settings watcher error")
			}
		}
	}()

	return nil
}
