// Package kratos is the HTTP client for the Ory-Kratos-compatible identity
// provider that backs the platform's self-service authentication flows. It is
// the only package that speaks the provider's wire format and the only
// package allowed to interpret its HTTP status codes.
package kratos

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/vehicert/vehicert/internal/flow"
)

const defaultTimeout = 10 * time.Second

// Client drives the provider's self-service API. The zero client is not
// usable; construct with New. Per-request copies carrying forwarded browser
// credentials are cheap (see WithForward).
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger

	// forward carries the browser's Cookie / X-Session-Token headers so the
	// provider binds flows to the right anti-forgery and session state.
	forward http.Header
	// onResponse lets the HTTP surface relay provider Set-Cookie headers back
	// to the browser. Optional.
	onResponse func(*http.Response)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient substitutes the underlying HTTP client (tests, custom TLS).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// New creates a provider client for the given base URL.
func New(baseURL string, logger *zap.Logger, opts ...Option) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: defaultTimeout},
		logger:  logger,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// WithForward returns a shallow copy of the client that forwards the given
// request headers (Cookie, X-Session-Token) on every provider call.
func (c *Client) WithForward(h http.Header) *Client {
	cp := *c
	cp.forward = h
	return &cp
}

// WithResponseHook returns a shallow copy of the client that invokes fn on
// every provider response, before the body is decoded.
func (c *Client) WithResponseHook(fn func(*http.Response)) *Client {
	cp := *c
	cp.onResponse = fn
	return &cp
}

// CreateFlow requests a brand-new self-service flow of the given kind.
func (c *Client) CreateFlow(ctx context.Context, kind flow.Kind, opts flow.CreateOptions) (*flow.Flow, error) {
	q := url.Values{}
	if opts.Refresh {
		q.Set("refresh", "true")
	}
	if opts.AAL != "" {
		q.Set("aal", opts.AAL)
	}
	if opts.ReturnTo != "" {
		q.Set("return_to", opts.ReturnTo)
	}
	endpoint := fmt.Sprintf("%s/self-service/%s/browser", c.baseURL, kind)
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}

	body, err := c.do(ctx, http.MethodGet, endpoint, nil, kind)
	if err != nil {
		return nil, err
	}
	return parseFlow(kind, body)
}

// GetFlow retrieves an existing flow by id.
func (c *Client) GetFlow(ctx context.Context, kind flow.Kind, id string) (*flow.Flow, error) {
	endpoint := fmt.Sprintf("%s/self-service/%s/flows?id=%s", c.baseURL, kind, url.QueryEscape(id))
	body, err := c.do(ctx, http.MethodGet, endpoint, nil, kind)
	if err != nil {
		return nil, err
	}
	return parseFlow(kind, body)
}

// SubmitFlow posts the method-specific body to the flow. The caller (the flow
// store) is responsible for merging in the CSRF token beforehand.
func (c *Client) SubmitFlow(ctx context.Context, kind flow.Kind, id string, payload map[string]any) (*flow.Result, error) {
	endpoint := fmt.Sprintf("%s/self-service/%s?flow=%s", c.baseURL, kind, url.QueryEscape(id))
	body, err := c.do(ctx, http.MethodPost, endpoint, payload, kind)
	if err != nil {
		return nil, err
	}
	return parseResult(kind, body)
}

// ToSession fetches the session bound to the forwarded credentials.
func (c *Client) ToSession(ctx context.Context) (*Session, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/sessions/whoami", nil, "")
	if err != nil {
		return nil, err
	}
	var s Session
	if err := json.Unmarshal(body, &s); err != nil {
		return nil, fmt.Errorf("decoding session: %w", err)
	}
	return &s, nil
}

// LogoutFlow is the provider's logout confirmation: navigating the browser to
// LogoutURL terminates the session provider-side.
type LogoutFlow struct {
	LogoutURL   string `json:"logout_url"`
	LogoutToken string `json:"logout_token"`
}

// CreateLogoutFlow requests a logout URL for the current session. Local
// session state is not cleared here; the provider's redirect target is the
// source of truth for post-logout state.
func (c *Client) CreateLogoutFlow(ctx context.Context) (*LogoutFlow, error) {
	body, err := c.do(ctx, http.MethodGet, c.baseURL+"/self-service/logout/browser", nil, "")
	if err != nil {
		return nil, err
	}
	var lf LogoutFlow
	if err := json.Unmarshal(body, &lf); err != nil {
		return nil, fmt.Errorf("decoding logout flow: %w", err)
	}
	return &lf, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, payload any, kind flow.Kind) ([]byte, error) {
	var reqBody io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("encoding request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.forward != nil {
		if cookie := c.forward.Get("Cookie"); cookie != "" {
			req.Header.Set("Cookie", cookie)
		}
		if token := c.forward.Get("X-Session-Token"); token != "" {
			req.Header.Set("X-Session-Token", token)
		}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		// Transport failures and timeouts are indistinguishable from any
		// other unclassifiable failure upstream.
		return nil, &flow.Error{Outcome: flow.OutcomeUnknown, Reason: "provider unreachable", Err: err}
	}
	defer resp.Body.Close()

	if c.onResponse != nil {
		c.onResponse(resp)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &flow.Error{Outcome: flow.OutcomeUnknown, Reason: "reading provider response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		c.logger.Debug("provider request failed",
			zap.String("method", method),
			zap.String("endpoint", endpoint),
			zap.Int("status", resp.StatusCode),
		)
		return nil, classify(kind, resp.StatusCode, body)
	}
	return body, nil
}
