package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/vehicert/vehicert/internal/flow"
)

// MeResponse is the backend's "current user" document: entity memberships and
// pending invitations, keyed off the session credentials.
type MeResponse struct {
	Entities           []EntityMembership  `json:"entities"`
	PendingInvitations *PendingInvitations `json:"pendingInvitations,omitempty"`
}

// MeClient fetches the current-user document. Implemented by BackendClient;
// substituted by fakes in tests.
type MeClient interface {
	Me(ctx context.Context) (*MeResponse, error)
}

// BackendClient is the HTTP client for the platform backend.
type BackendClient struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	forward http.Header
}

// NewBackendClient creates a backend client for the given base URL.
func NewBackendClient(baseURL string, logger *zap.Logger) *BackendClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BackendClient{
		baseURL: baseURL,
		http:    &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// WithForward returns a shallow copy forwarding the browser's credentials on
// every backend call.
func (c *BackendClient) WithForward(h http.Header) *BackendClient {
	cp := *c
	cp.forward = h
	return &cp
}

// Me fetches entity memberships and pending invitations for the session user.
func (c *BackendClient) Me(ctx context.Context) (*MeResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/me", nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
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
		return nil, fmt.Errorf("fetching current user: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusUnauthorized {
		return nil, &flow.Error{Outcome: flow.OutcomeForbidden, Reason: "backend rejected session"}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("current user endpoint answered %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading current user response: %w", err)
	}
	var me MeResponse
	if err := json.Unmarshal(body, &me); err != nil {
		return nil, fmt.Errorf("decoding current user response: %w", err)
	}
	return &me, nil
}
