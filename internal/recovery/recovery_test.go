package recovery

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vehicert/vehicert/internal/flow"
)

type fakeProvider struct {
	createCalls int
	submitCalls int

	submitFn func(body map[string]any) (*flow.Result, error)
	getFn    func(id string) (*flow.Flow, error)
}

func (p *fakeProvider) CreateFlow(context.Context, flow.Kind, flow.CreateOptions) (*flow.Flow, error) {
	p.createCalls++
	return emailFlow(fmt.Sprintf("rec-%d", p.createCalls)), nil
}

func (p *fakeProvider) GetFlow(_ context.Context, _ flow.Kind, id string) (*flow.Flow, error) {
	if p.getFn != nil {
		return p.getFn(id)
	}
	return emailFlow(id), nil
}

func (p *fakeProvider) SubmitFlow(_ context.Context, _ flow.Kind, _ string, body map[string]any) (*flow.Result, error) {
	p.submitCalls++
	return p.submitFn(body)
}

func emailFlow(id string) *flow.Flow {
	return &flow.Flow{
		ID:    id,
		Kind:  flow.KindRecovery,
		State: flow.StateChooseMethod,
		Fields: []flow.Field{
			{Group: flow.GroupDefault, Name: "csrf_token", Type: "hidden", Value: "tok-" + id},
			{Group: flow.GroupCode, Name: "email", Type: "email"},
		},
	}
}

func codeFlow(id string) *flow.Flow {
	f := emailFlow(id)
	f.State = flow.StateSentEmail
	f.Fields = append(f.Fields, flow.Field{Group: flow.GroupCode, Name: "code", Type: "text"})
	return f
}

func TestEmailToCodeToSettingsHandoff(t *testing.T) {
	p := &fakeProvider{
		submitFn: func(body map[string]any) (*flow.Result, error) {
			if email, ok := body["email"]; ok {
				assert.Equal(t, "ada@example.com", email)
				return &flow.Result{Flow: codeFlow("rec-1")}, nil
			}
			assert.Equal(t, "012345", body["code"])
			return &flow.Result{
				ContinueWith: []flow.ContinueWith{{Action: flow.ActionShowSettingsUI, FlowID: "settings-9"}},
			}, nil
		},
	}
	w := NewWorkflow(p, zap.NewNop())

	phase, err := w.Begin(context.Background(), "")
	require.NoError(t, err)
	require.Equal(t, PhaseEmail, phase)

	phase, err = w.SubmitEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	assert.Equal(t, PhaseCode, phase)

	phase, err = w.SubmitCode(context.Background(), "012345")
	require.NoError(t, err)
	assert.Equal(t, PhaseDone, phase)

	id, ok := w.SettingsFlowID()
	require.True(t, ok)
	assert.Equal(t, "settings-9", id)
}

func TestBeginResumesAtCodeEntry(t *testing.T) {
	p := &fakeProvider{
		getFn: func(id string) (*flow.Flow, error) { return codeFlow(id), nil },
	}
	w := NewWorkflow(p, zap.NewNop())

	phase, err := w.Begin(context.Background(), "rec-5")
	require.NoError(t, err)
	assert.Equal(t, PhaseCode, phase)
}

func TestCodeFormatGatedLocally(t *testing.T) {
	p := &fakeProvider{
		getFn: func(id string) (*flow.Flow, error) { return codeFlow(id), nil },
	}
	w := NewWorkflow(p, zap.NewNop())
	_, err := w.Begin(context.Background(), "rec-1")
	require.NoError(t, err)

	_, err = w.SubmitCode(context.Background(), "12ab")
	assert.ErrorIs(t, err, ErrRecoveryCodeFormat)
	assert.Equal(t, 0, p.submitCalls)
}

func TestEmptyEmailRejected(t *testing.T) {
	p := &fakeProvider{}
	w := NewWorkflow(p, zap.NewNop())
	_, err := w.Begin(context.Background(), "")
	require.NoError(t, err)

	_, err = w.SubmitEmail(context.Background(), "  ")
	assert.ErrorIs(t, err, ErrEmptyEmail)
	assert.Equal(t, 0, p.submitCalls)
}

func TestResendCreatesFreshFlowAndResends(t *testing.T) {
	var emails []string
	p := &fakeProvider{
		submitFn: func(body map[string]any) (*flow.Result, error) {
			email, _ := body["email"].(string)
			emails = append(emails, email)
			return &flow.Result{Flow: codeFlow("rec-next")}, nil
		},
	}
	w := NewWorkflow(p, zap.NewNop())
	_, err := w.Begin(context.Background(), "")
	require.NoError(t, err)
	_, err = w.SubmitEmail(context.Background(), "ada@example.com")
	require.NoError(t, err)
	require.Equal(t, 1, p.createCalls)

	phase, err := w.Resend(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseCode, phase)
	assert.Equal(t, 2, p.createCalls, "resend opens a fresh flow")
	assert.Equal(t, []string{"ada@example.com", "ada@example.com"}, emails)
}

func TestExpiredCodeRestartsAtEmail(t *testing.T) {
	p := &fakeProvider{}
	p.getFn = func(id string) (*flow.Flow, error) { return codeFlow(id), nil }
	p.submitFn = func(map[string]any) (*flow.Result, error) {
		return nil, &flow.Error{Outcome: flow.OutcomeFlowExpired}
	}
	w := NewWorkflow(p, zap.NewNop())
	_, err := w.Begin(context.Background(), "rec-1")
	require.NoError(t, err)

	phase, err := w.SubmitCode(context.Background(), "012345")
	assert.Equal(t, flow.OutcomeFlowExpired, flow.OutcomeOf(err))
	assert.Equal(t, PhaseEmail, phase)
	assert.Equal(t, 1, p.createCalls, "exactly one replacement flow")
}

func TestPhaseOrderEnforced(t *testing.T) {
	p := &fakeProvider{}
	w := NewWorkflow(p, zap.NewNop())
	_, err := w.Begin(context.Background(), "")
	require.NoError(t, err)

	_, err = w.SubmitCode(context.Background(), "012345")
	assert.ErrorIs(t, err, ErrWrongPhase)
	_, err = w.Resend(context.Background())
	assert.ErrorIs(t, err, ErrWrongPhase)
}
