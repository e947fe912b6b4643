// Package refresh orchestrates credential renewal against the identity
// provider. It owns the single-flight guarantee: however many callers ask
// at once, the provider sees one exchange and everybody shares its
// outcome.
package refresh

import (
	"context"
	"log/slog"
	"time"

	"github.com/nortesoft/gestor/pkg/credstore"
	"github.com/nortesoft/gestor/pkg/provider"
	"github.com/nortesoft/gestor/pkg/tokenx"
)

// Renewer is the slice of the provider client the coordinator needs.
type Renewer interface {
	Renew(ctx context.Context, renewal, derivedUsername string) (*provider.TokenResponse, error)
}

// Options carries the coordinator's tuning constants. Zero fields take
// the package defaults from tokenx.
type Options struct {
	// ValiditySkew is the margin under which a credential counts as
	// expired.
	ValiditySkew time.Duration
	// RenewAhead is the pre-emptive renewal window.
	RenewAhead time.Duration

	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.ValiditySkew <= 0 {
		o.ValiditySkew = tokenx.ValiditySkew
	}
	if o.RenewAhead <= 0 {
		o.RenewAhead = tokenx.RenewAhead
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

type Coordinator struct {
	store   *credstore.Store
	renewer Renewer
	opts    Options
	lock    renewalLock
}

func NewCoordinator(store *credstore.Store, renewer Renewer, opts Options) *Coordinator {
	return &Coordinator{
		store:   store,
		renewer: renewer,
		opts:    opts.withDefaults(),
	}
}

// InFlight reports whether a renewal exchange is currently outstanding.
func (c *Coordinator) InFlight() bool { return c.lock.active() }

// Wait blocks until an in-flight renewal (if any) completes. It never
// starts one. Returns immediately when nothing is in flight.
func (c *Coordinator) Wait(ctx context.Context) {
	wait, inFlight := c.lock.join()
	if !inFlight {
		return
	}
	select {
	case <-wait:
	case <-ctx.Done():
	}
}

// Refresh performs one renewal exchange, or joins the one already in
// flight. Returns whether a live credential triple is now stored. A
// definitive provider rejection clears the store: that session is over.
// Transient failures (network, provider outage, timeout) return false
// without clearing so the caller can keep whatever validity remains.
func (c *Coordinator) Refresh(ctx context.Context) bool {
	leader, wait := c.lock.acquire()
	if !leader {
		select {
		case outcome := <-wait:
			return outcome
		case <-ctx.Done():
			// Fail closed rather than hang; the leader's outcome will
			// still land in the store for the next caller.
			return false
		}
	}

	outcome := c.renew(ctx)
	c.lock.release(outcome)
	return outcome
}

func (c *Coordinator) renew(ctx context.Context) bool {
	triple := c.store.Get(ctx)
	if triple == nil || triple.Renewal == "" {
		return false
	}

	claims, err := tokenx.Decode(triple.Identity)
	if err != nil {
		// Without a decodable identity there is no derived username to
		// satisfy the provider's integrity check.
		c.opts.Logger.Warn("refresh: identity credential undecodable, cannot renew")
		return false
	}

	tokens, err := c.renewer.Renew(ctx, triple.Renewal, claims.Email)
	if err != nil {
		if provider.IsRejection(err) {
			c.opts.Logger.Info("refresh: renewal credential rejected, ending session", "err", err)
			c.store.Clear(ctx)
			return false
		}
		c.opts.Logger.Warn("refresh: renewal exchange failed", "err", err)
		return false
	}

	next := credstore.Triple{
		Access:   tokens.AccessCredential,
		Identity: tokens.IdentityCredential,
		Renewal:  tokens.RenewalCredential,
	}
	if next.Renewal == "" {
		// Provider did not rotate the renewal credential; keep ours.
		next.Renewal = triple.Renewal
	}

	// Set bounds its own confirmation wait; an unverified write is
	// best-effort, not a failure.
	if verified := c.store.Set(ctx, next); !verified {
		c.opts.Logger.Warn("refresh: stored renewed credentials without confirmation")
	}
	return true
}

// EnsureLive guarantees a usable identity credential or reports that none
// can be had. Expired credentials force a renewal; credentials inside the
// pre-emptive window renew opportunistically, tolerating failure; healthy
// credentials cause zero network activity.
func (c *Coordinator) EnsureLive(ctx context.Context) bool {
	triple := c.store.Get(ctx)
	if triple == nil {
		return false
	}

	claims, err := tokenx.Decode(triple.Identity)
	if err != nil {
		return c.Refresh(ctx)
	}

	now := time.Now()
	if !claims.IsLive(now, c.opts.ValiditySkew) {
		return c.Refresh(ctx)
	}

	if claims.ShouldRenew(now, c.opts.RenewAhead) {
		if !c.Refresh(ctx) {
			// Still-valid credential; renewal can be retried later. Push
			// the triple back through every backend so a lagging
			// representation catches up before it matters.
			c.store.Set(ctx, *triple)
		}
		return true
	}

	return true
}
