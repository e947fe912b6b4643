package integration_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/nortesoft/gestor/internal/gestor/api"
	"github.com/nortesoft/gestor/pkg/credstore"
	"github.com/nortesoft/gestor/pkg/credstore/drivers/sqlite"
	"github.com/nortesoft/gestor/pkg/cryptox"
	"github.com/nortesoft/gestor/pkg/provider"
	"github.com/nortesoft/gestor/pkg/refresh"
	"github.com/nortesoft/gestor/pkg/session"
	"github.com/nortesoft/gestor/pkg/transport"
)

const (
	testEmail    = "ana@nortesoft.com"
	testPassword = "s3creta"
)

func mintIdentity(t *testing.T, role string, expiresIn time.Duration) string {
	t.Helper()

	payload, err := json.Marshal(map[string]any{
		"sub":         "u-1",
		"email":       testEmail,
		"custom:role": role,
		"exp":         time.Now().Add(expiresIn).Unix(),
	})
	require.NoError(t, err)

	return "h." + base64.RawURLEncoding.EncodeToString(payload) + ".s"
}

// fakeProvider imitates the hosted identity provider: password auth,
// renewal and termination.
type fakeProvider struct {
	t           *testing.T
	role        string
	identityTTL time.Duration
	renewals    atomic.Int64
}

func (p *fakeProvider) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/sessions", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Identifier string `json:"identifier"`
			Secret     string `json:"secret"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}

		if body.Identifier != testEmail || body.Secret != testPassword {
			w.WriteHeader(http.StatusBadRequest)
			json.NewEncoder(w).Encode(map[string]string{
				"error":             "invalid_grant",
				"error_description": "Incorrect username or password.",
			})
			return
		}
		p.writeTokens(w, "renewal-1")
	})

	mux.HandleFunc("POST /v1/sessions/renew", func(w http.ResponseWriter, r *http.Request) {
		p.renewals.Add(1)
		p.writeTokens(w, "renewal-rotated")
	})

	mux.HandleFunc("POST /v1/sessions/terminate", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}

// writeTokens answers both exchanges. The access credential is a claim
// set too, matching the hosted provider, so the edge can authorize
// bearer requests from it directly.
func (p *fakeProvider) writeTokens(w http.ResponseWriter, renewal string) {
	json.NewEncoder(w).Encode(map[string]any{
		"access_credential":   mintIdentity(p.t, p.role, p.identityTTL),
		"identity_credential": mintIdentity(p.t, p.role, p.identityTTL),
		"renewal_credential":  renewal,
		"expires_in":          int(p.identityTTL.Seconds()),
	})
}

type stack struct {
	store    *credstore.Store
	coord    *refresh.Coordinator
	sessions *session.Controller
	server   *httptest.Server
	provider *fakeProvider
}

func newStack(t *testing.T, role string, identityTTL time.Duration) *stack {
	t.Helper()

	fp := &fakeProvider{t: t, role: role, identityTTL: identityTTL}
	providerSrv := httptest.NewServer(fp.handler())
	t.Cleanup(providerSrv.Close)

	sealer, err := cryptox.NewSealer([]byte("integration-test-key"))
	require.NoError(t, err)

	db, err := sqlite.NewBackend(filepath.Join(t.TempDir(), "gestor.db"), sealer)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	store := credstore.New([]credstore.Backend{db}, credstore.Options{
		ConfirmTimeout: time.Second,
		ConfirmPoll:    10 * time.Millisecond,
	})

	client := provider.NewClient(providerSrv.URL, "client-1", "client-secret")
	coord := refresh.NewCoordinator(store, client, refresh.Options{})
	sessions := session.NewController(store, coord, client, session.Options{})

	router := api.NewRouter(api.Options{
		Sessions:     sessions,
		BuildVersion: "integration",
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return &stack{store: store, coord: coord, sessions: sessions, server: srv, provider: fp}
}

func TestSigninFlow(t *testing.T) {
	s := newStack(t, "ADMIN", time.Hour)

	// Protected API before any login.
	resp, err := http.Get(s.server.URL + "/api/perfil")
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Wrong password surfaces the provider's reason.
	resp, err = http.Post(s.server.URL+"/auth/signin", "application/json",
		strings.NewReader(`{"identifier":"ana@nortesoft.com","secret":"wrong"}`))
	require.NoError(t, err)
	var failed struct {
		Reason string `json:"reason"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&failed))
	resp.Body.Close()
	require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	require.Equal(t, "Incorrect username or password.", failed.Reason)

	// Correct login returns the session cookies.
	resp, err = http.Post(s.server.URL+"/auth/signin", "application/json",
		strings.NewReader(`{"identifier":"ana@nortesoft.com","secret":"s3creta"}`))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	cookies := resp.Cookies()
	require.NotEmpty(t, cookies)

	// The cookies carry the session into a protected API call.
	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/api/perfil", nil)
	require.NoError(t, err)
	for _, c := range cookies {
		req.AddCookie(c)
	}
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var perfil struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Role  string `json:"role"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&perfil))
	require.Equal(t, "u-1", perfil.ID)
	require.Equal(t, testEmail, perfil.Email)
	require.Equal(t, "ADMIN", perfil.Role)
}

func TestRoleEnforcementAcrossTheStack(t *testing.T) {
	s := newStack(t, "VENTAS", time.Hour)

	result := s.sessions.Login(context.Background(), testEmail, testPassword)
	require.True(t, result.OK)

	client := transport.New(s.store, s.coord, transport.Options{})

	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/api/ventas", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	req, err = http.NewRequest(http.MethodGet, s.server.URL+"/api/admin/resumen", nil)
	require.NoError(t, err)
	resp, err = client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPreemptiveRenewalThroughTransport(t *testing.T) {
	// Identity lives 2 minutes: valid, but inside the renewal window.
	s := newStack(t, "ADMIN", 2*time.Minute)

	result := s.sessions.Login(context.Background(), testEmail, testPassword)
	require.True(t, result.OK)

	client := transport.New(s.store, s.coord, transport.Options{})

	req, err := http.NewRequest(http.MethodGet, s.server.URL+"/api/perfil", nil)
	require.NoError(t, err)
	resp, err := client.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	require.EqualValues(t, 1, s.provider.renewals.Load())

	triple := s.store.Get(context.Background())
	require.NotNil(t, triple)
	require.Equal(t, "renewal-rotated", triple.Renewal)
}

func TestCredentialsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "gestor.db")

	sealer, err := cryptox.NewSealer([]byte("integration-test-key"))
	require.NoError(t, err)

	db, err := sqlite.NewBackend(path, sealer)
	require.NoError(t, err)
	store := credstore.New([]credstore.Backend{db}, credstore.Options{})

	identity := mintIdentity(t, "ADMIN", time.Hour)
	require.True(t, store.Set(context.Background(), credstore.Triple{
		Access: "access-1", Identity: identity, Renewal: "renewal-1",
	}))
	require.NoError(t, db.Close())

	// Reopen with the same key: the sealed renewal credential comes back.
	db2, err := sqlite.NewBackend(path, sealer)
	require.NoError(t, err)
	defer db2.Close()
	store2 := credstore.New([]credstore.Backend{db2}, credstore.Options{})

	triple := store2.Get(context.Background())
	require.NotNil(t, triple)
	require.Equal(t, "renewal-1", triple.Renewal)
	require.Equal(t, identity, triple.Identity)
}
