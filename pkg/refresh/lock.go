package refresh

import "sync"

// renewalLock is the process-wide single-flight primitive guarding the
// renewal exchange. The renewal credential is effectively one-time: the
// provider rotates or invalidates it on use, so two concurrent exchanges
// would double-spend it and desynchronise the session. At most one
// renewal is in flight; every concurrent caller observes the leader's
// outcome.
type renewalLock struct {
	mu       sync.Mutex
	inFlight bool
	waiters  []chan bool
}

// acquire either elects the caller leader (wait == nil) or registers it
// as a waiter on the in-flight renewal's outcome.
func (l *renewalLock) acquire() (leader bool, wait <-chan bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.inFlight {
		ch := make(chan bool, 1)
		l.waiters = append(l.waiters, ch)
		return false, ch
	}
	l.inFlight = true
	return true, nil
}

// join registers a waiter only if a renewal is in flight.
func (l *renewalLock) join() (wait <-chan bool, inFlight bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.inFlight {
		return nil, false
	}
	ch := make(chan bool, 1)
	l.waiters = append(l.waiters, ch)
	return ch, true
}

// release publishes the leader's outcome to every waiter and opens the
// lock for the next renewal.
func (l *renewalLock) release(outcome bool) {
	l.mu.Lock()
	waiters := l.waiters
	l.waiters = nil
	l.inFlight = false
	l.mu.Unlock()

	for _, ch := range waiters {
		ch <- outcome
	}
}

func (l *renewalLock) active() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.inFlight
}
