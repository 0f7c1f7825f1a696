package defs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period Watch waits for before refreshing.
const DefaultDebounce = 250 * time.Millisecond

// Watch refreshes the definitions whenever files under the bot directory
// change, until ctx is done. Bursts of events within debounce collapse into
// one Refresh.
func (s *Service) Watch(ctx context.Context, debounce time.Duration) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	for _, d := range []string{filepath.Join(s.dir, intentsDir), filepath.Join(s.dir, entitiesDir)} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
		if err := w.Add(d); err != nil {
			return fmt.Errorf("watch %s: %w", d, err)
		}
	}
	s.log.Debug().Str("event", "watch_start").Msg("watching definitions")

	timer := time.NewTimer(debounce)
	if !timer.Stop() {
		<-timer.C
	}
	defer timer.Stop()
	for {
		select {
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if relevant(ev) {
				timer.Reset(debounce)
			}
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.log.Error().Err(err).Msg("watcher error")
		case <-timer.C:
			if _, err := s.Refresh(); err != nil {
				s.log.Error().Err(err).Str("event", "refresh_error").Msg("reload definitions")
			}
		case <-ctx.Done():
			s.log.Debug().Str("event", "watch_stop").Msg("stopped watching definitions")
			return nil
		}
	}
}

func relevant(ev fsnotify.Event) bool {
	if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return false
	}
	return isDefinitionFile(filepath.Base(ev.Name))
}
