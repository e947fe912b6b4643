package refresh_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nortesoft/gestor/pkg/credstore"
	"github.com/nortesoft/gestor/pkg/provider"
	"github.com/nortesoft/gestor/pkg/refresh"
	"github.com/stretchr/testify/require"
)

func mintIdentity(t *testing.T, email string, expiresIn time.Duration) string {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"sub":   "u-1",
		"email": email,
		"exp":   time.Now().Add(expiresIn).Unix(),
	})
	require.NoError(t, err)

	return "h." + base64.RawURLEncoding.EncodeToString(payload) + ".s"
}

// fakeRenewer counts exchanges and can be made to block, fail or reject.
type fakeRenewer struct {
	calls   atomic.Int64
	block   chan struct{} // nil means answer immediately
	rejects bool
	fails   bool
	errOut  error // overrides rejects/fails when set
	respond func() *provider.TokenResponse
}

func (f *fakeRenewer) Renew(ctx context.Context, renewal, username string) (*provider.TokenResponse, error) {
	f.calls.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.errOut != nil {
		return nil, f.errOut
	}
	if f.rejects {
		return nil, &provider.Error{Status: 400, Code: "invalid_grant", Description: "renewal credential expired"}
	}
	if f.fails {
		return nil, context.DeadlineExceeded
	}
	if f.respond != nil {
		return f.respond(), nil
	}
	return &provider.TokenResponse{
		AccessCredential:   "access-new",
		IdentityCredential: renewalIdentity,
		RenewalCredential:  "renewal-new",
		ExpiresIn:          3600,
	}, nil
}

// renewalIdentity is set in TestMain-like fashion per test via helper.
var renewalIdentity string

func newStore(t *testing.T, triple *credstore.Triple) *credstore.Store {
	t.Helper()

	backend := credstore.NewMemoryBackend()
	store := credstore.New([]credstore.Backend{backend}, credstore.Options{
		ConfirmTimeout: 200 * time.Millisecond,
		ConfirmPoll:    10 * time.Millisecond,
	})
	if triple != nil {
		require.True(t, store.Set(context.Background(), *triple))
	}
	return store
}

func TestRefreshSingleFlight(t *testing.T) {
	ctx := context.Background()
	renewalIdentity = mintIdentity(t, "a@b.com", time.Hour)

	triple := credstore.Triple{
		Access:   "access-old",
		Identity: mintIdentity(t, "a@b.com", -time.Minute),
		Renewal:  "renewal-old",
	}
	store := newStore(t, &triple)

	renewer := &fakeRenewer{block: make(chan struct{})}
	coord := refresh.NewCoordinator(store, renewer, refresh.Options{})

	const n = 16
	results := make(chan bool, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for range n {
		go func() {
			defer wg.Done()
			results <- coord.Refresh(ctx)
		}()
	}

	// Let every goroutine either become leader or queue up, then answer.
	require.Eventually(t, coord.InFlight, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	close(renewer.block)
	wg.Wait()
	close(results)

	for outcome := range results {
		require.True(t, outcome, "every caller must observe the leader's outcome")
	}
	require.Equal(t, int64(1), renewer.calls.Load(),
		"exactly one exchange must reach the provider")

	got := store.Get(ctx)
	require.NotNil(t, got)
	require.Equal(t, "access-new", got.Access)
	require.Equal(t, "renewal-new", got.Renewal)
}

func TestRefreshOutcomes(t *testing.T) {
	ctx := context.Background()
	renewalIdentity = mintIdentity(t, "a@b.com", time.Hour)

	expired := func(t *testing.T) credstore.Triple {
		return credstore.Triple{
			Access:   "access-old",
			Identity: mintIdentity(t, "a@b.com", -time.Minute),
			Renewal:  "renewal-old",
		}
	}

	t.Run("no credentials at all", func(t *testing.T) {
		store := newStore(t, nil)
		renewer := &fakeRenewer{}
		coord := refresh.NewCoordinator(store, renewer, refresh.Options{})

		require.False(t, coord.Refresh(ctx))
		require.Zero(t, renewer.calls.Load())
	})

	t.Run("rejection clears the store", func(t *testing.T) {
		triple := expired(t)
		store := newStore(t, &triple)
		coord := refresh.NewCoordinator(store, &fakeRenewer{rejects: true}, refresh.Options{})

		require.False(t, coord.Refresh(ctx))
		require.Nil(t, store.Get(ctx), "a rejected renewal is a terminal session end")
	})

	t.Run("throttled renewal keeps the store", func(t *testing.T) {
		triple := expired(t)
		store := newStore(t, &triple)
		coord := refresh.NewCoordinator(store, &fakeRenewer{
			errOut: &provider.Error{Status: 429, Code: "too_many_requests", Description: "slow down"},
		}, refresh.Options{})

		require.False(t, coord.Refresh(ctx))
		require.NotNil(t, store.Get(ctx), "throttling is transient; the renewal credential is still valid")
	})

	t.Run("transient failure keeps the store", func(t *testing.T) {
		triple := expired(t)
		store := newStore(t, &triple)
		coord := refresh.NewCoordinator(store, &fakeRenewer{fails: true}, refresh.Options{})

		require.False(t, coord.Refresh(ctx))
		require.NotNil(t, store.Get(ctx), "transient failures must not end the session")
	})

	t.Run("unrotated renewal credential is preserved", func(t *testing.T) {
		triple := expired(t)
		store := newStore(t, &triple)
		renewer := &fakeRenewer{respond: func() *provider.TokenResponse {
			return &provider.TokenResponse{
				AccessCredential:   "access-new",
				IdentityCredential: renewalIdentity,
				ExpiresIn:          3600,
			}
		}}
		coord := refresh.NewCoordinator(store, renewer, refresh.Options{})

		require.True(t, coord.Refresh(ctx))
		got := store.Get(ctx)
		require.Equal(t, "renewal-old", got.Renewal)
	})

	t.Run("undecodable identity cannot renew", func(t *testing.T) {
		triple := credstore.Triple{Access: "a", Identity: "junk", Renewal: "r"}
		store := newStore(t, &triple)
		renewer := &fakeRenewer{}
		coord := refresh.NewCoordinator(store, renewer, refresh.Options{})

		require.False(t, coord.Refresh(ctx))
		require.Zero(t, renewer.calls.Load())
	})
}

func TestEnsureLive(t *testing.T) {
	ctx := context.Background()
	renewalIdentity = mintIdentity(t, "a@b.com", time.Hour)

	t.Run("healthy credential makes zero network calls", func(t *testing.T) {
		triple := credstore.Triple{
			Access:   "access",
			Identity: mintIdentity(t, "a@b.com", time.Hour),
			Renewal:  "renewal",
		}
		store := newStore(t, &triple)
		renewer := &fakeRenewer{}
		coord := refresh.NewCoordinator(store, renewer, refresh.Options{})

		for range 3 {
			require.True(t, coord.EnsureLive(ctx))
		}
		require.Zero(t, renewer.calls.Load(), "EnsureLive must be idempotent on a live credential")
	})

	t.Run("expired credential forces renewal", func(t *testing.T) {
		triple := credstore.Triple{
			Access:   "access",
			Identity: mintIdentity(t, "a@b.com", -time.Minute),
			Renewal:  "renewal",
		}
		store := newStore(t, &triple)
		renewer := &fakeRenewer{}
		coord := refresh.NewCoordinator(store, renewer, refresh.Options{})

		require.True(t, coord.EnsureLive(ctx))
		require.Equal(t, int64(1), renewer.calls.Load())
	})

	t.Run("pre-emptive window tolerates renewal failure", func(t *testing.T) {
		triple := credstore.Triple{
			Access:   "access",
			Identity: mintIdentity(t, "a@b.com", 2*time.Minute),
			Renewal:  "renewal",
		}
		store := newStore(t, &triple)
		renewer := &fakeRenewer{fails: true}
		coord := refresh.NewCoordinator(store, renewer, refresh.Options{})

		require.True(t, coord.EnsureLive(ctx),
			"a still-valid credential survives a failed pre-emptive renewal")
		require.Equal(t, int64(1), renewer.calls.Load())

		// The defensive re-propagation must keep the triple available.
		require.NotNil(t, store.Get(ctx))
	})

	t.Run("empty store", func(t *testing.T) {
		store := newStore(t, nil)
		coord := refresh.NewCoordinator(store, &fakeRenewer{}, refresh.Options{})
		require.False(t, coord.EnsureLive(ctx))
	})
}

func TestWait(t *testing.T) {
	ctx := context.Background()
	renewalIdentity = mintIdentity(t, "a@b.com", time.Hour)

	t.Run("returns immediately when idle", func(t *testing.T) {
		store := newStore(t, nil)
		coord := refresh.NewCoordinator(store, &fakeRenewer{}, refresh.Options{})

		done := make(chan struct{})
		go func() { coord.Wait(ctx); close(done) }()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatal("Wait blocked with no renewal in flight")
		}
	})

	t.Run("joins an in-flight renewal", func(t *testing.T) {
		triple := credstore.Triple{
			Access:   "access",
			Identity: mintIdentity(t, "a@b.com", -time.Minute),
			Renewal:  "renewal",
		}
		store := newStore(t, &triple)
		renewer := &fakeRenewer{block: make(chan struct{})}
		coord := refresh.NewCoordinator(store, renewer, refresh.Options{})

		go coord.Refresh(ctx)
		require.Eventually(t, coord.InFlight, time.Second, 5*time.Millisecond)

		waited := make(chan struct{})
		go func() { coord.Wait(ctx); close(waited) }()

		select {
		case <-waited:
			t.Fatal("Wait returned while the renewal was still in flight")
		case <-time.After(50 * time.Millisecond):
		}

		close(renewer.block)
		select {
		case <-waited:
		case <-time.After(time.Second):
			t.Fatal("Wait did not return after the renewal completed")
		}
	})
}
