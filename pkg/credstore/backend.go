package credstore

import "context"

// Backend is one physical representation of the credential triple. The
// store iterates an ordered list of these: the first backend is the
// primary, the rest are fallbacks read in order.
type Backend interface {
	// Name identifies the backend in logs and diagnostics.
	Name() string

	// Read returns the stored triple, possibly incomplete, or nil when
	// the backend holds nothing. Completeness is judged by the store.
	Read(ctx context.Context) (*Triple, error)

	// Write persists the triple, replacing whatever was there.
	Write(ctx context.Context, t Triple) error

	// Clear removes every trace of the triple.
	Clear(ctx context.Context) error
}

// Pathed is implemented by backends whose representation lives in a
// filesystem path. The store watcher uses it to subscribe to external
// change notifications.
type Pathed interface {
	Path() string
}
