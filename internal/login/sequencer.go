// Package login drives the interactive login challenge sequence against the
// identity provider: password first, then an authenticator code or a backup
// recovery code when the account has a second factor enrolled.
package login

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/vehicert/vehicert/internal/flow"
)

// State is the sequencer's position in the challenge sequence.
type State int

const (
	// StatePassword collects identifier and password.
	StatePassword State = iota
	// StateTOTP collects a six-digit authenticator code.
	StateTOTP
	// StateBackupCode collects a one-time backup recovery code.
	StateBackupCode
	// StateSuccess means the provider established a session and the local
	// session view has been refreshed.
	StateSuccess
)

func (s State) String() string {
	switch s {
	case StatePassword:
		return "password"
	case StateTOTP:
		return "totp"
	case StateBackupCode:
		return "backup_code"
	case StateSuccess:
		return "success"
	default:
		return "unknown"
	}
}

// Input gates applied before anything is sent to the provider.
var (
	ErrTOTPCodeFormat  = errors.New("authenticator code must be six digits")
	ErrEmptyBackupCode = errors.New("backup code must not be empty")
	ErrWrongState      = errors.New("submission does not match current challenge")
)

// SessionRefresher re-derives the local session and authorization view from
// the provider. Implemented by the authz service.
type SessionRefresher interface {
	Refresh(ctx context.Context) error
}

// Sequencer is the login challenge state machine. It owns a login flow store
// and advances strictly forward through challenges, except for the reversible
// TOTP / backup-code alternation which involves no network traffic.
type Sequencer struct {
	store     *flow.Store
	refresher SessionRefresher
	logger    *zap.Logger
	state     State
}

// NewSequencer creates a login sequencer on top of the given provider client.
func NewSequencer(client flow.Client, refresher SessionRefresher, logger *zap.Logger) *Sequencer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequencer{
		store:     flow.NewStore(client, flow.KindLogin, logger),
		refresher: refresher,
		logger:    logger,
		state:     StatePassword,
	}
}

// State returns the current challenge.
func (s *Sequencer) State() State {
	return s.state
}

// Flow returns the current login flow document, for rendering.
func (s *Sequencer) Flow() *flow.Flow {
	return s.store.Current()
}

// Begin bootstraps the login flow, resuming flowID when the address carries
// one. A resumed flow that already exposes the totp group starts at the TOTP
// challenge: the provider only adds that group once the password check has
// been passed.
func (s *Sequencer) Begin(ctx context.Context, flowID string, opts flow.CreateOptions) (State, error) {
	f, err := s.store.Bootstrap(ctx, flowID, opts)
	if err != nil {
		return s.state, err
	}
	if f.HasGroup(flow.GroupTOTP) {
		s.state = StateTOTP
	} else {
		s.state = StatePassword
	}
	return s.state, nil
}

// SubmitPassword sends the first-factor credentials.
func (s *Sequencer) SubmitPassword(ctx context.Context, identifier, password string) (State, error) {
	if s.state != StatePassword {
		return s.state, ErrWrongState
	}
	return s.submit(ctx, "password", map[string]any{
		"identifier": identifier,
		"password":   password,
	})
}

// SubmitTOTP sends an authenticator code. Codes that are not exactly six
// digits are rejected locally without touching the provider.
func (s *Sequencer) SubmitTOTP(ctx context.Context, code string) (State, error) {
	if s.state != StateTOTP {
		return s.state, ErrWrongState
	}
	code = strings.TrimSpace(code)
	if !isSixDigits(code) {
		return s.state, ErrTOTPCodeFormat
	}
	return s.submit(ctx, "totp", map[string]any{"totp_code": code})
}

// SubmitBackupCode sends a backup recovery code, normalized to upper case the
// way the provider stores them.
func (s *Sequencer) SubmitBackupCode(ctx context.Context, code string) (State, error) {
	if s.state != StateBackupCode {
		return s.state, ErrWrongState
	}
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return s.state, ErrEmptyBackupCode
	}
	return s.submit(ctx, "lookup_secret", map[string]any{"lookup_secret": code})
}

// UseBackupCode switches from the authenticator challenge to the backup-code
// challenge. Purely local.
func (s *Sequencer) UseBackupCode() (State, error) {
	if s.state != StateTOTP {
		return s.state, ErrWrongState
	}
	s.state = StateBackupCode
	return s.state, nil
}

// Back returns from the backup-code challenge to the authenticator challenge.
// Purely local.
func (s *Sequencer) Back() (State, error) {
	if s.state != StateBackupCode {
		return s.state, ErrWrongState
	}
	s.state = StateTOTP
	return s.state, nil
}

func (s *Sequencer) submit(ctx context.Context, method string, payload map[string]any) (State, error) {
	res, err := s.store.Submit(ctx, method, payload)
	if err == nil {
		return s.advance(ctx, res)
	}

	fe, ok := flow.AsError(err)
	if !ok {
		return s.state, err
	}
	switch fe.Outcome {
	case flow.OutcomeValidationFailed:
		// The store already swapped in the refreshed flow; the challenge
		// stays where it is and the flow's messages explain the rejection.
		return s.state, fe
	case flow.OutcomeFlowExpired:
		// The store created the one replacement flow. All challenge progress
		// is gone with the old flow, so the sequence restarts at password.
		s.state = StatePassword
		s.logger.Info("login sequence restarted after flow expiry",
			zap.String("method", method))
		return s.state, fe
	default:
		return s.state, fe
	}
}

// advance moves past a successful submission. The session view is refreshed
// before StateSuccess is ever reported, so callers may act on authorization
// data the moment they observe success.
func (s *Sequencer) advance(ctx context.Context, res *flow.Result) (State, error) {
	if res.Terminal() {
		if err := s.refresher.Refresh(ctx); err != nil {
			s.logger.Warn("session refresh after login failed", zap.Error(err))
			s.state = StateSuccess
			return s.state, err
		}
		s.state = StateSuccess
		return s.state, nil
	}
	if res.Flow != nil && res.Flow.HasGroup(flow.GroupTOTP) {
		s.state = StateTOTP
		return s.state, nil
	}
	return s.state, nil
}

func isSixDigits(code string) bool {
	if len(code) != 6 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
