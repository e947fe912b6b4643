// Package transport wraps an http.Client so every outgoing API request
// rides a live session: it joins in-flight renewals, renews expired
// credentials before sending, and absorbs exactly one 401-triggered
// renew-and-retry cycle per request.
package transport

import (
	"bytes"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/nortesoft/gestor/pkg/credstore"
	"github.com/nortesoft/gestor/pkg/refresh"
)

// IdentityHeader carries the identity credential alongside the access
// credential so the edge can authorize without a second lookup.
const IdentityHeader = "X-Identity-Token"

type Options struct {
	HTTPClient *http.Client
	Logger     *slog.Logger
}

type Client struct {
	store  *credstore.Store
	coord  *refresh.Coordinator
	http   *http.Client
	logger *slog.Logger
}

func New(store *credstore.Store, coord *refresh.Coordinator, opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 15 * time.Second}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{store: store, coord: coord, http: httpClient, logger: logger}
}

// Do sends req with fresh credentials attached. A renewal already in
// flight is joined rather than raced. A 401 answer triggers at most one
// renewal and one retry; a second 401, or a failed renewal, clears the
// stored credentials and returns ErrSessionExpired. 5xx answers map to
// *ServerError.
func (c *Client) Do(req *http.Request) (*http.Response, error) {
	ctx := req.Context()

	c.coord.Wait(ctx)

	if !c.coord.EnsureLive(ctx) {
		return nil, ErrSessionExpired
	}
	triple := c.store.Get(ctx)
	if triple == nil {
		return nil, ErrSessionExpired
	}

	if err := bufferBody(req); err != nil {
		return nil, err
	}

	resp, err := c.send(req, triple)
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusUnauthorized {
		drain(resp)
		c.logger.Debug("transport: request rejected, renewing once",
			"method", req.Method, "path", req.URL.Path)

		if !c.coord.Refresh(ctx) {
			c.store.Clear(ctx)
			return nil, ErrSessionExpired
		}
		triple = c.store.Get(ctx)
		if triple == nil {
			return nil, ErrSessionExpired
		}

		resp, err = c.send(req, triple)
		if err != nil {
			return nil, err
		}
		if resp.StatusCode == http.StatusUnauthorized {
			drain(resp)
			c.store.Clear(ctx)
			return nil, ErrSessionExpired
		}
	}

	if resp.StatusCode >= 500 {
		drain(resp)
		return nil, &ServerError{Status: resp.StatusCode}
	}

	return resp, nil
}

func (c *Client) send(req *http.Request, triple *credstore.Triple) (*http.Response, error) {
	attempt := req.Clone(req.Context())
	if req.GetBody != nil {
		body, err := req.GetBody()
		if err != nil {
			return nil, err
		}
		attempt.Body = body
	}

	// Every convention the edge's extraction chain accepts, so a hit on
	// any one of them authorizes the request.
	attempt.Header.Set("Authorization", "Bearer "+triple.Access)
	if triple.Identity != "" {
		attempt.Header.Set(IdentityHeader, triple.Identity)
		attempt.AddCookie(&http.Cookie{Name: credstore.CookieIdentity, Value: triple.Identity})
	}

	return c.http.Do(attempt)
}

// bufferBody makes the request body replayable so the 401 retry can
// resend it.
func bufferBody(req *http.Request) error {
	if req.Body == nil || req.GetBody != nil {
		return nil
	}
	data, err := io.ReadAll(req.Body)
	req.Body.Close()
	if err != nil {
		return err
	}
	req.GetBody = func() (io.ReadCloser, error) {
		return io.NopCloser(bytes.NewReader(data)), nil
	}
	return nil
}

func drain(resp *http.Response) {
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
}
