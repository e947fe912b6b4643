// Package session owns the client context's view of the session: a small
// state machine fed by the credential store's events, a background
// renewal check, and the login/logout entry points the rest of the client
// application calls.
package session

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/nortesoft/gestor/pkg/credstore"
	"github.com/nortesoft/gestor/pkg/provider"
	"github.com/nortesoft/gestor/pkg/refresh"
	"github.com/nortesoft/gestor/pkg/tokenx"
)

// Authenticator is the slice of the provider client the controller needs.
type Authenticator interface {
	Authenticate(ctx context.Context, identifier, secret string) (*provider.TokenResponse, error)
	Terminate(ctx context.Context, access string)
}

// State is the controller's answer to "am I authenticated". It starts
// Initializing and resolves after the first validation pass; from then on
// only store events and explicit login/logout/refresh calls mutate it.
type State struct {
	Identity      *tokenx.ClaimSet
	Authenticated bool
	Initializing  bool
}

// LoginResult reports a login outcome with a human-readable failure
// reason. Login never panics and never leaks raw errors past this
// boundary.
type LoginResult struct {
	OK     bool
	Reason string
}

// Options carries the controller's tuning constants; all empirically
// tuned, all overridable. Zero fields take the defaults.
type Options struct {
	// ResolveRetries bounds the initial session-resolution attempts.
	// Retrying absorbs the race where a prior process wrote credentials
	// that have not yet propagated to every backend.
	ResolveRetries int
	// ResolveBackoff is the pause between resolution attempts.
	ResolveBackoff time.Duration
	// DebounceVerified delays re-derivation after a verified update.
	DebounceVerified time.Duration
	// DebounceUnverified delays re-derivation after an unverified
	// update, giving propagation more time.
	DebounceUnverified time.Duration
	// BackgroundInterval paces the proactive renewal check.
	BackgroundInterval time.Duration
	// TerminateTimeout bounds the best-effort provider notification on
	// logout.
	TerminateTimeout time.Duration

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ResolveRetries <= 0 {
		o.ResolveRetries = 3
	}
	if o.ResolveBackoff <= 0 {
		o.ResolveBackoff = 200 * time.Millisecond
	}
	if o.DebounceVerified <= 0 {
		o.DebounceVerified = 100 * time.Millisecond
	}
	if o.DebounceUnverified <= 0 {
		o.DebounceUnverified = 800 * time.Millisecond
	}
	if o.BackgroundInterval <= 0 {
		o.BackgroundInterval = time.Minute
	}
	if o.TerminateTimeout <= 0 {
		o.TerminateTimeout = 2 * time.Second
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type Controller struct {
	store *credstore.Store
	coord *refresh.Coordinator
	auth  Authenticator
	opts  Options

	mu    sync.RWMutex
	state State
}

func NewController(store *credstore.Store, coord *refresh.Coordinator, auth Authenticator, opts Options) *Controller {
	return &Controller{
		store: store,
		coord: coord,
		auth:  auth,
		opts:  opts.withDefaults(),
		state: State{Initializing: true},
	}
}

// Credentials exposes the stored triple for callers that need to mirror
// it elsewhere, such as the signin handler writing browser cookies.
func (c *Controller) Credentials(ctx context.Context) *credstore.Triple {
	return c.store.Get(ctx)
}

// Snapshot returns a copy of the current session state.
func (c *Controller) Snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Run drives the controller: initial resolution, store event handling
// with debounced re-derivation, and the background renewal check. Blocks
// until ctx is cancelled.
func (c *Controller) Run(ctx context.Context) error {
	events, unsub := c.store.Subscribe()
	defer unsub()

	c.initialResolve(ctx)

	ticker := time.NewTicker(c.opts.BackgroundInterval)
	defer ticker.Stop()

	debounce := time.NewTimer(time.Hour)
	if !debounce.Stop() {
		<-debounce.C
	}
	defer debounce.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-events:
			if !ok {
				return nil
			}
			switch ev.Kind {
			case credstore.EventCleared:
				// No re-derivation needed: cleared means gone.
				c.setState(State{})
			case credstore.EventUpdated:
				delay := c.opts.DebounceUnverified
				if ev.Verified {
					delay = c.opts.DebounceVerified
				}
				debounce.Reset(delay)
			}

		case <-debounce.C:
			c.resolve(ctx)

		case <-ticker.C:
			// EnsureLive is free when the credential is healthy and
			// renews inside the pre-emptive window, so user-visible
			// requests rarely meet an expired credential.
			if !c.coord.EnsureLive(ctx) {
				c.resolve(ctx)
			}
		}
	}
}

// initialResolve absorbs the propagation race at process start: a prior
// process may have written credentials that are not yet visible in every
// backend.
func (c *Controller) initialResolve(ctx context.Context) {
	for attempt := 1; ; attempt++ {
		c.coord.EnsureLive(ctx)
		if c.resolve(ctx) {
			return
		}
		if attempt >= c.opts.ResolveRetries {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.ResolveBackoff):
		}
	}
}

// resolve re-derives session state from the store. Returns whether it
// found an authenticated session.
func (c *Controller) resolve(ctx context.Context) bool {
	triple := c.store.Get(ctx)
	if triple == nil {
		c.setState(State{})
		return false
	}

	claims, err := tokenx.Decode(triple.Identity)
	if err != nil || !claims.IsLive(time.Now(), tokenx.ValiditySkew) {
		c.setState(State{})
		return false
	}

	c.setState(State{Identity: claims, Authenticated: true})
	return true
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.state = s
}

// Login authenticates against the identity provider, stores the returned
// triple and waits (bounded, inside Set) for the store's confirmation
// before re-deriving state.
func (c *Controller) Login(ctx context.Context, identifier, secret string) LoginResult {
	tokens, err := c.auth.Authenticate(ctx, identifier, secret)
	if err != nil {
		return LoginResult{Reason: loginFailureReason(err)}
	}

	triple := credstore.Triple{
		Access:   tokens.AccessCredential,
		Identity: tokens.IdentityCredential,
		Renewal:  tokens.RenewalCredential,
	}
	if !triple.Complete() {
		c.opts.Logger.Error("session: provider returned incomplete credentials")
		return LoginResult{Reason: "the identity provider returned an incomplete session"}
	}

	if verified := c.store.Set(ctx, triple); !verified {
		c.opts.Logger.Warn("session: login credentials stored without confirmation")
	}

	if !c.resolve(ctx) {
		return LoginResult{Reason: "the new session could not be validated"}
	}
	return LoginResult{OK: true}
}

func loginFailureReason(err error) string {
	var pe *provider.Error
	if errors.As(err, &pe) && pe.Description != "" {
		return pe.Description
	}
	return "the identity provider could not be reached"
}

// Logout clears every credential representation, notifies the provider
// best-effort and flips the state to unauthenticated. Provider failures
// never block a local logout.
func (c *Controller) Logout(ctx context.Context) {
	triple := c.store.Get(ctx)
	c.store.Clear(ctx)
	c.setState(State{})

	if triple != nil && triple.Access != "" {
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.opts.TerminateTimeout)
		defer cancel()
		c.auth.Terminate(tctx, triple.Access)
	}
}
