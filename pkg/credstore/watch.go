package credstore

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

const defaultWatchPoll = 15 * time.Second

// Watch observes the primary backend for changes made by another process
// sharing the same representation (a second dashboard instance, a report
// worker) and re-derives events from the store contents. It hybridises
// filesystem change notification with a low-frequency poll: notification
// is fast but only available for path-backed primaries, the poll catches
// everything else. Blocks until ctx is cancelled.
func (s *Store) Watch(ctx context.Context, poll time.Duration) error {
	if poll <= 0 {
		poll = defaultWatchPoll
	}

	var fsEvents <-chan fsnotify.Event
	var fsErrors <-chan error
	var path string

	if p, ok := s.primary().(Pathed); ok {
		watcher, err := fsnotify.NewWatcher()
		if err != nil {
			s.opts.Logger.Warn("credstore: fsnotify unavailable, polling only", "err", err)
		} else {
			defer watcher.Close()
			path = p.Path()
			// Watch the directory: databases rewrite sidecar files
			// (-wal, -journal) rather than the main file in place.
			if err := watcher.Add(filepath.Dir(path)); err != nil {
				s.opts.Logger.Warn("credstore: watch add failed, polling only",
					"path", path, "err", err)
			} else {
				fsEvents = watcher.Events
				fsErrors = watcher.Errors
			}
		}
	}

	last, _ := s.primary().Read(ctx)

	ticker := time.NewTicker(poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fsEvents:
			if !ok {
				fsEvents = nil
				continue
			}
			if !strings.HasPrefix(ev.Name, path) {
				continue
			}
			last = s.recheck(ctx, last)

		case err, ok := <-fsErrors:
			if !ok {
				fsErrors = nil
				continue
			}
			s.opts.Logger.Warn("credstore: watch error", "err", err)

		case <-ticker.C:
			last = s.recheck(ctx, last)
		}
	}
}

// recheck compares the primary's current contents against the last
// observation and emits the matching event on change. External writes are
// confirmed by definition: we just read them.
func (s *Store) recheck(ctx context.Context, last *Triple) *Triple {
	cur, err := s.primary().Read(ctx)
	if err != nil {
		s.opts.Logger.Warn("credstore: watch read failed", "err", err)
		return last
	}

	if tripleEqual(last, cur) {
		return last
	}

	if cur == nil || !cur.Complete() {
		s.emit(Event{Kind: EventCleared})
	} else {
		s.emit(Event{Kind: EventUpdated, Verified: true})
	}
	return cur
}

func tripleEqual(a, b *Triple) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
