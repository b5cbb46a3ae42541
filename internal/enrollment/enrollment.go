// Package enrollment drives authenticator-app (TOTP) enrollment and removal
// through the provider's settings flow: scan the QR code, verify a first
// code, reveal the one-time backup codes, confirm.
package enrollment

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"github.com/vehicert/vehicert/internal/flow"
)

// Step is the workflow's position.
type Step int

const (
	// StepScan shows the QR code and manual-entry secret.
	StepScan Step = iota
	// StepVerify waits for the first authenticator code.
	StepVerify
	// StepComplete is reached after verification; backup codes, when the
	// provider issued them, are available exactly until Confirm.
	StepComplete
)

func (s Step) String() string {
	switch s {
	case StepScan:
		return "scan"
	case StepVerify:
		return "verify"
	case StepComplete:
		return "complete"
	default:
		return "unknown"
	}
}

var (
	ErrTOTPCodeFormat     = errors.New("authenticator code must be six digits")
	ErrWrongStep          = errors.New("action does not match current step")
	ErrUnlinkNotConfirmed = errors.New("unlink requires explicit confirmation")
)

// SessionRefresher re-derives the local session view from the provider.
type SessionRefresher interface {
	Refresh(ctx context.Context) error
}

// Service creates enrollment workflows and handles authenticator removal.
type Service struct {
	client    flow.Client
	refresher SessionRefresher
	logger    *zap.Logger
}

// NewService creates the enrollment service.
func NewService(client flow.Client, refresher SessionRefresher, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{client: client, refresher: refresher, logger: logger}
}

// Workflow is one in-progress authenticator enrollment. Backup codes are held
// in memory only and discarded on Confirm; they are never persisted and the
// provider will not repeat them.
type Workflow struct {
	svc    *Service
	store  *flow.Store
	step   Step
	qrCode string
	secret string
	codes  []string
}

// Start bootstraps a settings flow (resuming flowID when given) and prepares
// the scan step. It fails when the flow exposes no pending authenticator,
// which is the case once TOTP is already enrolled.
func (s *Service) Start(ctx context.Context, flowID string) (*Workflow, error) {
	store := flow.NewStore(s.client, flow.KindSettings, s.logger)
	f, err := store.Bootstrap(ctx, flowID, flow.CreateOptions{})
	if err != nil {
		return nil, err
	}
	w := &Workflow{svc: s, store: store}
	if err := w.loadScanFields(f); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *Workflow) loadScanFields(f *flow.Flow) error {
	qr, err := f.TOTPQRCode()
	if err != nil {
		return err
	}
	secret, err := f.TOTPSecret()
	if err != nil {
		return err
	}
	w.qrCode = qr
	w.secret = secret
	w.step = StepScan
	return nil
}

// Step returns the workflow's current step.
func (w *Workflow) Step() Step {
	return w.step
}

// QRCode returns the provisioning QR image data URL.
func (w *Workflow) QRCode() string {
	return w.qrCode
}

// Secret returns the manual-entry secret shown alongside the QR code.
func (w *Workflow) Secret() string {
	return w.secret
}

// Flow returns the underlying settings flow, for rendering messages.
func (w *Workflow) Flow() *flow.Flow {
	return w.store.Current()
}

// Proceed moves from scan to verification. Purely local.
func (w *Workflow) Proceed() (Step, error) {
	if w.step != StepScan {
		return w.step, ErrWrongStep
	}
	w.step = StepVerify
	return w.step, nil
}

// Verify submits the first authenticator code. On success the provider
// activates TOTP for the identity and, on first enrollment, issues backup
// codes that surface in the response exactly once.
func (w *Workflow) Verify(ctx context.Context, code string) (Step, error) {
	if w.step != StepVerify {
		return w.step, ErrWrongStep
	}
	code = strings.TrimSpace(code)
	if !isSixDigits(code) {
		return w.step, ErrTOTPCodeFormat
	}

	res, err := w.store.Submit(ctx, "totp", map[string]any{"totp_code": code})
	if err == nil {
		if res.Flow != nil {
			if codes, ok := res.Flow.LookupSecretCodes(); ok {
				w.codes = codes
			}
		}
		w.step = StepComplete
		if refreshErr := w.svc.refresher.Refresh(ctx); refreshErr != nil {
			w.svc.logger.Warn("session refresh after enrollment failed", zap.Error(refreshErr))
		}
		return w.step, nil
	}

	fe, ok := flow.AsError(err)
	if !ok {
		return w.step, err
	}
	switch fe.Outcome {
	case flow.OutcomeValidationFailed:
		return w.step, fe
	case flow.OutcomeFlowExpired:
		// The replacement flow carries a fresh secret; the authenticator must
		// be re-provisioned from the new QR code.
		if fe.Flow != nil {
			if loadErr := w.loadScanFields(fe.Flow); loadErr != nil {
				return w.step, loadErr
			}
		}
		return w.step, fe
	default:
		return w.step, fe
	}
}

// BackupCodes returns the one-time backup codes issued during verification.
// ok is false when the provider issued none, which happens on re-enrollment
// when codes already exist.
func (w *Workflow) BackupCodes() ([]string, bool) {
	if len(w.codes) == 0 {
		return nil, false
	}
	return w.codes, true
}

// Confirm acknowledges the backup codes and discards them. After Confirm they
// are unrecoverable.
func (w *Workflow) Confirm() error {
	if w.step != StepComplete {
		return ErrWrongStep
	}
	w.codes = nil
	return nil
}

// Unlink removes the enrolled authenticator. It refuses to act without
// explicit confirmation, then submits the removal, opens a fresh settings
// flow for rendering and refreshes the session view so HasMFA flips off.
func (s *Service) Unlink(ctx context.Context, confirmed bool) (*flow.Flow, error) {
	if !confirmed {
		return nil, ErrUnlinkNotConfirmed
	}

	store := flow.NewStore(s.client, flow.KindSettings, s.logger)
	if _, err := store.Create(ctx, flow.CreateOptions{}); err != nil {
		return nil, err
	}
	if _, err := store.Submit(ctx, "totp", map[string]any{"totp_unlink": true}); err != nil {
		return nil, err
	}

	fresh, err := s.client.CreateFlow(ctx, flow.KindSettings, flow.CreateOptions{})
	if err != nil {
		return nil, err
	}
	if refreshErr := s.refresher.Refresh(ctx); refreshErr != nil {
		s.logger.Warn("session refresh after unlink failed", zap.Error(refreshErr))
	}
	s.logger.Info("authenticator unlinked")
	return fresh, nil
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
