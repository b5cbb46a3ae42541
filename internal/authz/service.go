package authz

import (
	"context"
	"net/url"
	"sync"

	"go.uber.org/zap"

	"github.com/vehicert/vehicert/internal/kratos"
)

// SessionClient is the provider surface the service needs. Implemented by the
// kratos client.
type SessionClient interface {
	ToSession(ctx context.Context) (*kratos.Session, error)
	CreateLogoutFlow(ctx context.Context) (*kratos.LogoutFlow, error)
}

// Service resolves and holds the session and derived profile. Refresh and
// Clear replace both together under one lock, so readers always see a
// matching session/profile pair.
type Service struct {
	provider SessionClient
	backend  MeClient
	cache    *ProfileCache
	loginURL string
	logger   *zap.Logger

	mu      sync.RWMutex
	session *kratos.Session
	profile *Profile
}

// Config wires the service's collaborators. Cache is optional.
type Config struct {
	Provider SessionClient
	Backend  MeClient
	Cache    *ProfileCache
	// LoginURL is the public login entry point used for step-up navigation.
	LoginURL string
	Logger   *zap.Logger
}

// NewService creates the authorization derivation service.
func NewService(cfg Config) *Service {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		provider: cfg.Provider,
		backend:  cfg.Backend,
		cache:    cfg.Cache,
		loginURL: cfg.LoginURL,
		logger:   logger,
	}
}

// Refresh re-derives session and profile from the provider and backend. The
// provider session is authoritative: when it cannot be fetched, local state
// is cleared and the classified error returned. Backend failure is not fatal;
// the profile degrades to an empty entity list with the error logged, since
// admin flags and session state are still meaningful without entity data.
func (s *Service) Refresh(ctx context.Context) error {
	sess, err := s.provider.ToSession(ctx)
	if err != nil {
		s.Clear()
		return err
	}

	profile := &Profile{
		ID:          sess.Identity.ID,
		Email:       sess.Identity.Email(),
		Name:        sess.Identity.DisplayName(),
		GlobalAdmin: sess.Identity.IsAdmin(),
		Entities:    []EntityMembership{},
	}

	if me := s.currentUser(ctx, sess.Identity.ID); me != nil {
		if me.Entities != nil {
			profile.Entities = me.Entities
		}
		profile.PendingInvitations = me.PendingInvitations
	}

	s.mu.Lock()
	s.session = sess
	s.profile = profile
	s.mu.Unlock()
	return nil
}

func (s *Service) currentUser(ctx context.Context, identityID string) *MeResponse {
	if s.cache != nil {
		if me, ok := s.cache.Get(ctx, identityID); ok {
			return me
		}
	}
	me, err := s.backend.Me(ctx)
	if err != nil {
		s.logger.Error("current user fetch failed, degrading to empty entities",
			zap.String("identity_id", identityID),
			zap.Error(err),
		)
		return nil
	}
	if s.cache != nil {
		s.cache.Set(ctx, identityID, me)
	}
	return me
}

// Clear drops session and profile together. Used on logout completion and
// whenever the provider rejects the session.
func (s *Service) Clear() {
	s.mu.Lock()
	s.session = nil
	s.profile = nil
	s.mu.Unlock()
}

// Authenticated reports whether a session is currently held.
func (s *Service) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil
}

// Profile returns the last-derived profile, or nil when signed out. The
// returned value is shared and must be treated as read-only.
func (s *Service) Profile() *Profile {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile
}

// IsGlobalAdmin reports whether public metadata marks the user as a platform
// administrator.
func (s *Service) IsGlobalAdmin() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.profile != nil && s.profile.GlobalAdmin
}

// HasAdminAccess reports whether the user may enter the administration
// surface: global admins and anyone with at least one entity membership.
func (s *Service) HasAdminAccess() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return false
	}
	return s.profile.GlobalAdmin || len(s.profile.Entities) > 0
}

// EntityRole returns the user's role in the given entity, or ok=false when
// they are not a member.
func (s *Service) EntityRole(entityID string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return "", false
	}
	for _, e := range s.profile.Entities {
		if e.EntityID == entityID {
			return e.Role, true
		}
	}
	return "", false
}

// UserEntities returns the user's entity memberships.
func (s *Service) UserEntities() []EntityMembership {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return nil
	}
	return s.profile.Entities
}

// IsCertifierAdmin reports whether the user administers the given entity and
// that entity is a certifier.
func (s *Service) IsCertifierAdmin(entityID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.profile == nil {
		return false
	}
	for _, e := range s.profile.Entities {
		if e.EntityID == entityID {
			return e.Role == RoleAdmin && e.EntityType == EntityTypeCertifier
		}
	}
	return false
}

// HasMFA reports whether a second factor (authenticator code or backup code)
// backed the current session.
func (s *Service) HasMFA() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session != nil && s.session.HasMFA()
}

// AAL returns the session's authenticator assurance level, or "" when signed
// out.
func (s *Service) AAL() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return ""
	}
	return s.session.AAL
}

// RequireAAL2URL builds the login entry point that demands a second factor
// and returns to returnTo afterwards. Callers perform a full browser
// navigation to it; this is the only place step-up is actively requested.
func (s *Service) RequireAAL2URL(returnTo string) string {
	u, err := url.Parse(s.loginURL)
	if err != nil {
		u = &url.URL{Path: "/login"}
	}
	q := u.Query()
	q.Set("aal", "aal2")
	q.Set("return_to", returnTo)
	u.RawQuery = q.Encode()
	return u.String()
}

// LogoutURL asks the provider for the logout confirmation URL. Local state is
// deliberately not cleared here: the browser navigates to the returned URL
// and the provider's redirect decides what the user sees next.
func (s *Service) LogoutURL(ctx context.Context) (string, error) {
	lf, err := s.provider.CreateLogoutFlow(ctx)
	if err != nil {
		return "", err
	}
	return lf.LogoutURL, nil
}
