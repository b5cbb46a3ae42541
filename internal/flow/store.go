package flow

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

// ErrNoFlow is returned by Submit when the store has no current flow.
var ErrNoFlow = errors.New("no current flow")

// CreateOptions tunes flow creation.
type CreateOptions struct {
	// Refresh forces re-authentication of an already-authenticated session.
	Refresh bool
	// AAL requests a specific assurance level, e.g. "aal2" for step-up login.
	AAL string
	// ReturnTo is propagated to the provider so post-flow redirects land back
	// where the user started.
	ReturnTo string
}

// Client is the provider API surface the store drives. Implemented by the
// kratos package; substituted by fakes in tests.
type Client interface {
	CreateFlow(ctx context.Context, kind Kind, opts CreateOptions) (*Flow, error)
	GetFlow(ctx context.Context, kind Kind, id string) (*Flow, error)
	SubmitFlow(ctx context.Context, kind Kind, id string, body map[string]any) (*Result, error)
}

// Store holds the single current flow of one self-service operation and
// exposes create/fetch/submit against the provider. A store instance serves
// one user interaction at a time; calls are assumed serialized by the caller
// (submit buttons stay disabled while a submission is in flight).
type Store struct {
	client  Client
	kind    Kind
	current *Flow
	logger  *zap.Logger
}

// NewStore creates a flow store for one flow kind.
func NewStore(client Client, kind Kind, logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Store{client: client, kind: kind, logger: logger}
}

// Kind returns the flow kind this store drives.
func (s *Store) Kind() Kind {
	return s.kind
}

// Current returns the flow the store is holding, or nil before Bootstrap.
func (s *Store) Current() *Flow {
	return s.current
}

// Create requests a brand-new flow from the provider and makes it current.
func (s *Store) Create(ctx context.Context, opts CreateOptions) (*Flow, error) {
	f, err := s.client.CreateFlow(ctx, s.kind, opts)
	if err != nil {
		return nil, err
	}
	s.current = f
	return f, nil
}

// Fetch retrieves an existing flow by id and makes it current. Used when the
// page loads with a flow id in its address after a provider redirect.
func (s *Store) Fetch(ctx context.Context, id string) (*Flow, error) {
	f, err := s.client.GetFlow(ctx, s.kind, id)
	if err != nil {
		return nil, err
	}
	s.current = f
	return f, nil
}

// Bootstrap resumes the flow identified by id, falling back to creating a
// fresh one when id is empty or the fetch fails (the flow may have expired
// while the address was stale).
func (s *Store) Bootstrap(ctx context.Context, id string, opts CreateOptions) (*Flow, error) {
	if id != "" {
		f, err := s.Fetch(ctx, id)
		if err == nil {
			return f, nil
		}
		s.logger.Debug("flow fetch failed, creating replacement",
			zap.String("kind", string(s.kind)),
			zap.String("flow_id", id),
			zap.Error(err),
		)
	}
	return s.Create(ctx, opts)
}

// Submit posts method-specific fields merged with the CSRF token read fresh
// from the current flow. A non-terminal response replaces the current flow in
// place. An expired flow is recovered transparently with exactly one
// re-creation; a failure during that re-creation escalates to OutcomeUnknown
// instead of retrying again.
func (s *Store) Submit(ctx context.Context, method string, payload map[string]any) (*Result, error) {
	if s.current == nil {
		return nil, ErrNoFlow
	}

	token, err := s.current.CSRFToken()
	if err != nil {
		return nil, err
	}

	body := make(map[string]any, len(payload)+2)
	for k, v := range payload {
		body[k] = v
	}
	body["method"] = method
	body["csrf_token"] = token

	res, err := s.client.SubmitFlow(ctx, s.kind, s.current.ID, body)
	if err == nil {
		if res.Flow != nil {
			s.current = res.Flow
		}
		return res, nil
	}

	fe, ok := AsError(err)
	if !ok {
		return nil, err
	}

	switch fe.Outcome {
	case OutcomeValidationFailed:
		// The error payload is itself the refreshed flow; redisplay it.
		if fe.Flow != nil {
			s.current = fe.Flow
		}
		return nil, fe

	case OutcomeFlowExpired:
		replacement, createErr := s.client.CreateFlow(ctx, s.kind, CreateOptions{ReturnTo: s.current.ReturnTo})
		if createErr != nil {
			return nil, &Error{
				Outcome: OutcomeUnknown,
				Reason:  fmt.Sprintf("%s flow expired and replacement creation failed", s.kind),
				Err:     createErr,
			}
		}
		s.logger.Info("expired flow replaced",
			zap.String("kind", string(s.kind)),
			zap.String("old_flow_id", s.current.ID),
			zap.String("new_flow_id", replacement.ID),
		)
		s.current = replacement
		fe.Flow = replacement
		return nil, fe

	default:
		return nil, fe
	}
}
