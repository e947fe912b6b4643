// Package credstore persists the credential triple across every storage
// backend the two execution contexts can read, and keeps them consistent.
// Writers write to all backends; readers fall back through them in order
// and reconcile fallback hits back into the primary. No other component
// touches the underlying backends directly.
package credstore

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// EventKind distinguishes the two lifecycle events the store emits.
type EventKind string

const (
	// EventUpdated fires after Set. Verified carries whether the write
	// was confirmed present on a re-read of the primary backend.
	EventUpdated EventKind = "credentials-updated"
	// EventCleared fires after Clear.
	EventCleared EventKind = "credentials-cleared"
)

// Event is a store lifecycle notification.
type Event struct {
	Kind     EventKind
	Verified bool
}

// Options carries the empirically tuned store constants. Zero fields take
// the defaults; tests shrink them to keep suites fast.
type Options struct {
	// ConfirmTimeout bounds how long Set waits for the primary backend
	// to reflect the written triple before giving up and reporting the
	// write as unverified.
	ConfirmTimeout time.Duration
	// ConfirmPoll is the interval between confirmation reads.
	ConfirmPoll time.Duration

	Logger *slog.Logger
}

const (
	defaultConfirmTimeout = 3 * time.Second
	defaultConfirmPoll    = 100 * time.Millisecond
)

func (o Options) withDefaults() Options {
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = defaultConfirmTimeout
	}
	if o.ConfirmPoll <= 0 {
		o.ConfirmPoll = defaultConfirmPoll
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// Store owns the persisted credential triple.
type Store struct {
	backends []Backend
	opts     Options

	mu      sync.Mutex
	subs    map[int]chan Event
	nextSub int
}

// New builds a store over an ordered backend list. The first backend is
// the primary; at least one backend is required.
func New(backends []Backend, opts Options) *Store {
	if len(backends) == 0 {
		panic("credstore: at least one backend required")
	}
	return &Store{
		backends: backends,
		opts:     opts.withDefaults(),
		subs:     make(map[int]chan Event),
	}
}

func (s *Store) primary() Backend { return s.backends[0] }

// Set writes the triple to every backend, then confirm-reads the primary
// until it reflects the write or ConfirmTimeout elapses. It returns
// whether the write was verified and always emits EventUpdated. Callers
// that need certainty before proceeding must use the returned flag or
// wait for the event; cross-context propagation is not synchronous.
func (s *Store) Set(ctx context.Context, t Triple) bool {
	if !t.Complete() {
		s.opts.Logger.Warn("credstore: refusing to store incomplete triple")
		return false
	}

	for _, b := range s.backends {
		if err := b.Write(ctx, t); err != nil {
			s.opts.Logger.Warn("credstore: backend write failed",
				"backend", b.Name(), "err", err)
		}
	}

	verified := s.confirm(ctx, t)
	s.emit(Event{Kind: EventUpdated, Verified: verified})
	return verified
}

// confirm polls the primary backend until it returns exactly t.
func (s *Store) confirm(ctx context.Context, t Triple) bool {
	deadline := time.Now().Add(s.opts.ConfirmTimeout)
	for {
		got, err := s.primary().Read(ctx)
		if err == nil && got != nil && *got == t {
			return true
		}

		if time.Now().After(deadline) {
			s.opts.Logger.Warn("credstore: write confirmation timed out",
				"backend", s.primary().Name())
			return false
		}
		select {
		case <-ctx.Done():
			return false
		case <-time.After(s.opts.ConfirmPoll):
		}
	}
}

// Get returns the first complete triple found walking the backend list,
// or nil. A complete triple recovered from a fallback backend is written
// back to the primary so later reads take the fast path. Backend failures
// degrade to "no credentials": forcing a re-login beats crashing session
// resolution.
func (s *Store) Get(ctx context.Context) *Triple {
	for i, b := range s.backends {
		t, err := b.Read(ctx)
		if err != nil {
			s.opts.Logger.Warn("credstore: backend read failed",
				"backend", b.Name(), "err", err)
			continue
		}
		if t == nil || !t.Complete() {
			continue
		}

		if i > 0 {
			if err := s.primary().Write(ctx, *t); err != nil {
				s.opts.Logger.Warn("credstore: reconcile write failed",
					"backend", s.primary().Name(), "err", err)
			} else {
				s.opts.Logger.Debug("credstore: reconciled fallback hit into primary",
					"source", b.Name())
			}
		}
		return t
	}
	return nil
}

// Clear removes the triple from every backend and emits EventCleared.
func (s *Store) Clear(ctx context.Context) {
	for _, b := range s.backends {
		if err := b.Clear(ctx); err != nil {
			s.opts.Logger.Warn("credstore: backend clear failed",
				"backend", b.Name(), "err", err)
		}
	}
	s.emit(Event{Kind: EventCleared})
}

// Subscribe registers a listener for store lifecycle events. The returned
// cancel func must be called to release the subscription. Events are
// delivered best-effort: a subscriber that is not draining its channel
// loses events rather than blocking the store.
func (s *Store) Subscribe() (<-chan Event, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSub
	s.nextSub++
	ch := make(chan Event, 8)
	s.subs[id] = ch

	cancel := func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if _, ok := s.subs[id]; ok {
			delete(s.subs, id)
			close(ch)
		}
	}
	return ch, cancel
}

func (s *Store) emit(ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ch := range s.subs {
		select {
		case ch <- ev:
		default:
			s.opts.Logger.Warn("credstore: dropping event for slow subscriber",
				"subscriber", id, "kind", ev.Kind)
		}
	}
}
