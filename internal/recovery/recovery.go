// Package recovery drives account recovery: the user requests a code by
// email, enters it, and is handed off to a settings flow to set a new
// password.
package recovery

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/vehicert/vehicert/internal/flow"
)

// Phase is the workflow's position.
type Phase int

const (
	// PhaseEmail collects the account email.
	PhaseEmail Phase = iota
	// PhaseCode waits for the emailed recovery code.
	PhaseCode
	// PhaseDone means the code was accepted; the provider hands off to a
	// settings flow for the password reset.
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseEmail:
		return "email"
	case PhaseCode:
		return "code"
	case PhaseDone:
		return "done"
	default:
		return "unknown"
	}
}

var (
	ErrEmptyEmail         = errors.New("email must not be empty")
	ErrRecoveryCodeFormat = errors.New("recovery code must be six digits")
	ErrWrongPhase         = errors.New("submission does not match current phase")
)

// Workflow is one in-progress account recovery.
type Workflow struct {
	store  *flow.Store
	logger *zap.Logger
	phase  Phase

	// settingsFlowID is the flow the provider handed off to after the code
	// was accepted.
	settingsFlowID string
	email          string
}

// NewWorkflow creates a recovery workflow on top of the given provider client.
func NewWorkflow(client flow.Client, logger *zap.Logger) *Workflow {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Workflow{
		store:  flow.NewStore(client, flow.KindRecovery, logger),
		logger: logger,
		phase:  PhaseEmail,
	}
}

// Phase returns the workflow's current phase.
func (w *Workflow) Phase() Phase {
	return w.phase
}

// Flow returns the current recovery flow document, for rendering.
func (w *Workflow) Flow() *flow.Flow {
	return w.store.Current()
}

// Begin bootstraps the recovery flow, resuming flowID when given. A resumed
// flow that already sent its email continues at code entry.
func (w *Workflow) Begin(ctx context.Context, flowID string) (Phase, error) {
	f, err := w.store.Bootstrap(ctx, flowID, flow.CreateOptions{})
	if err != nil {
		return w.phase, err
	}
	if f.State == flow.StateSentEmail {
		w.phase = PhaseCode
	} else {
		w.phase = PhaseEmail
	}
	return w.phase, nil
}

// SubmitEmail asks the provider to email a recovery code.
func (w *Workflow) SubmitEmail(ctx context.Context, email string) (Phase, error) {
	if w.phase != PhaseEmail {
		return w.phase, ErrWrongPhase
	}
	email = strings.TrimSpace(email)
	if email == "" {
		return w.phase, ErrEmptyEmail
	}

	res, err := w.store.Submit(ctx, "code", map[string]any{"email": email})
	if err != nil {
		return w.recoverPhase(err)
	}
	w.email = email
	if res.Flow != nil && res.Flow.State == flow.StateSentEmail {
		w.phase = PhaseCode
	}
	return w.phase, nil
}

// SubmitCode sends the emailed code. An accepted code terminates the flow
// with a settings handoff for the password reset.
func (w *Workflow) SubmitCode(ctx context.Context, code string) (Phase, error) {
	if w.phase != PhaseCode {
		return w.phase, ErrWrongPhase
	}
	code = strings.TrimSpace(code)
	if !isSixDigits(code) {
		return w.phase, ErrRecoveryCodeFormat
	}

	res, err := w.store.Submit(ctx, "code", map[string]any{"code": code})
	if err != nil {
		return w.recoverPhase(err)
	}
	if res.Terminal() {
		if id, ok := res.SettingsFlowID(); ok {
			w.settingsFlowID = id
		}
		w.phase = PhaseDone
	}
	return w.phase, nil
}

// Resend requests a fresh recovery flow and re-sends the code to the email
// captured earlier. The old code stops working with the old flow.
func (w *Workflow) Resend(ctx context.Context) (Phase, error) {
	if w.phase != PhaseCode {
		return w.phase, ErrWrongPhase
	}
	if _, err := w.store.Create(ctx, flow.CreateOptions{}); err != nil {
		return w.phase, err
	}
	w.phase = PhaseEmail
	return w.SubmitEmail(ctx, w.email)
}

// SettingsFlowID returns the settings flow the provider handed off to, once
// PhaseDone is reached.
func (w *Workflow) SettingsFlowID() (string, bool) {
	if w.settingsFlowID == "" {
		return "", false
	}
	return w.settingsFlowID, true
}

func (w *Workflow) recoverPhase(err error) (Phase, error) {
	fe, ok := flow.AsError(err)
	if !ok {
		return w.phase, err
	}
	if fe.Outcome == flow.OutcomeFlowExpired {
		// Replacement flow starts over; the emailed code died with the old
		// flow.
		w.phase = PhaseEmail
		w.logger.Info("recovery restarted after flow expiry")
	}
	return w.phase, fe
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
