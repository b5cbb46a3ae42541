// Package account handles account creation and credential maintenance: the
// registration flow and the settings-flow password change.
package account

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/vehicert/vehicert/internal/flow"
)

// MinPasswordLength is enforced locally before the provider sees the
// submission; the provider applies its own, stricter policy on top.
const MinPasswordLength = 8

var (
	ErrEmptyEmail       = errors.New("email must not be empty")
	ErrPasswordTooShort = errors.New("password too short")
)

// SessionRefresher re-derives the local session view from the provider.
type SessionRefresher interface {
	Refresh(ctx context.Context) error
}

// Service drives registration and password-change flows.
type Service struct {
	client    flow.Client
	refresher SessionRefresher
	logger    *zap.Logger
}

// NewService creates the account service.
func NewService(client flow.Client, refresher SessionRefresher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, refresher: refresher, logger: logger}
}

// Registration is one in-progress account signup.
type Registration struct {
	svc   *Service
	store *flow.Store
	done  bool
}

// BeginRegistration bootstraps a registration flow, resuming flowID when the
// address carries one.
func (s *Service) BeginRegistration(ctx context.Context, flowID string) (*Registration, error) {
	store := flow.NewStore(s.client, flow.KindRegistration, s.logger)
	if _, err := store.Bootstrap(ctx, flowID, flow.CreateOptions{}); err != nil {
		return nil, err
	}
	return &Registration{svc: s, store: store}, nil
}

// Flow returns the current registration flow document, for rendering.
func (r *Registration) Flow() *flow.Flow {
	return r.store.Current()
}

// Done reports whether the signup completed and a session was established.
func (r *Registration) Done() bool {
	return r.done
}

// Submit sends the signup credentials. A terminal response establishes a
// session; the local session view is refreshed before Done turns true.
func (r *Registration) Submit(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return ErrEmptyEmail
	}
	if len(password) < MinPasswordLength {
		return ErrPasswordTooShort
	}

	res, err := r.store.Submit(ctx, "password", map[string]any{
		"traits.email": email,
		"password":     password,
	})
	if err != nil {
		return err
	}
	if res.Terminal() {
		if refreshErr := r.svc.refresher.Refresh(ctx); refreshErr != nil {
			r.svc.logger.Warn("session refresh after registration failed", zap.Error(refreshErr))
		}
		r.done = true
	}
	return nil
}
