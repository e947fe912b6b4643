// Package provider implements the HTTP client for the external identity
// provider. Sign-up, password policy and the token-issuing exchange are
// the provider's business; this package only speaks its fixed
// request/response contract.
package provider

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nortesoft/gestor/pkg/slogx"
)

// Client talks to the identity provider. Zero value is not usable; build
// one with NewClient.
type Client struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	HTTPClient   *http.Client
}

func NewClient(baseURL, clientID, clientSecret string) *Client {
	return &Client{
		BaseURL:      strings.TrimSuffix(baseURL, "/"),
		ClientID:     clientID,
		ClientSecret: clientSecret,
		HTTPClient: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Authenticate exchanges user credentials for a fresh credential triple.
func (c *Client) Authenticate(ctx context.Context, identifier, secret string) (*TokenResponse, error) {
	return c.postTokens(ctx, "/v1/sessions", authenticateRequest{
		Identifier: identifier,
		Secret:     secret,
		ClientID:   c.ClientID,
		SecretHash: c.secretHash(identifier),
	})
}

// Renew exchanges a renewal credential for a fresh triple. The provider
// verifies an integrity check derived from the username used at the
// original authenticate call, so derivedUsername must be that same
// subject identifier (the email, in this system).
func (c *Client) Renew(ctx context.Context, renewal, derivedUsername string) (*TokenResponse, error) {
	return c.postTokens(ctx, "/v1/sessions/renew", renewRequest{
		RenewalCredential: renewal,
		Username:          derivedUsername,
		ClientID:          c.ClientID,
		SecretHash:        c.secretHash(derivedUsername),
	})
}

// Terminate notifies the provider that the session ended. Fire and
// forget: a failure here never blocks a local logout.
func (c *Client) Terminate(ctx context.Context, access string) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+"/v1/sessions/terminate", nil)
	if err != nil {
		return
	}
	req.Header.Set("Authorization", "Bearer "+access)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		slogx.FromContext(ctx).Warn("provider: terminate notification failed", "err", err)
		return
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
}

// secretHash computes the provider-side integrity check:
// base64(HMAC-SHA256(username + clientID, clientSecret)).
func (c *Client) secretHash(username string) string {
	mac := hmac.New(sha256.New, []byte(c.ClientSecret))
	mac.Write([]byte(username + c.ClientID))
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func (c *Client) postTokens(ctx context.Context, path string, payload any) (*TokenResponse, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("provider: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("provider: create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("provider: send request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("provider: read response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, parseErrorResponse(resp.StatusCode, raw)
	}

	var tokens TokenResponse
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("provider: decode response: %w", err)
	}
	return &tokens, nil
}
