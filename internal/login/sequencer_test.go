package login

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/vehicert/vehicert/internal/flow"
)

type fakeProvider struct {
	createCalls int
	getCalls    int
	submitCalls int

	// scripted answers keyed by method.
	submitFn func(method string, body map[string]any) (*flow.Result, error)
	getFn    func(id string) (*flow.Flow, error)
}

func (p *fakeProvider) CreateFlow(_ context.Context, _ flow.Kind, _ flow.CreateOptions) (*flow.Flow, error) {
	p.createCalls++
	return passwordFlow(fmt.Sprintf("login-%d", p.createCalls)), nil
}

func (p *fakeProvider) GetFlow(_ context.Context, _ flow.Kind, id string) (*flow.Flow, error) {
	p.getCalls++
	if p.getFn != nil {
		return p.getFn(id)
	}
	return passwordFlow(id), nil
}

func (p *fakeProvider) SubmitFlow(_ context.Context, _ flow.Kind, _ string, body map[string]any) (*flow.Result, error) {
	p.submitCalls++
	method, _ := body["method"].(string)
	return p.submitFn(method, body)
}

func passwordFlow(id string) *flow.Flow {
	return &flow.Flow{
		ID:    id,
		Kind:  flow.KindLogin,
		State: flow.StateChooseMethod,
		Fields: []flow.Field{
			{Group: flow.GroupDefault, Name: "csrf_token", Type: "hidden", Value: "tok-" + id},
			{Group: flow.GroupPassword, Name: "identifier", Type: "text"},
			{Group: flow.GroupPassword, Name: "password", Type: "password"},
		},
	}
}

func totpFlow(id string) *flow.Flow {
	f := passwordFlow(id)
	f.Fields = append(f.Fields, flow.Field{Group: flow.GroupTOTP, Name: "totp_code", Type: "text"})
	return f
}

type fakeRefresher struct {
	calls int
	err   error
}

func (r *fakeRefresher) Refresh(context.Context) error {
	r.calls++
	return r.err
}

func TestBeginStartsAtPassword(t *testing.T) {
	p := &fakeProvider{}
	seq := NewSequencer(p, &fakeRefresher{}, zap.NewNop())

	state, err := seq.Begin(context.Background(), "", flow.CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, StatePassword, state)
	assert.Equal(t, 1, p.createCalls)
}

func TestBeginResumedFlowWithTOTPGroupStartsAtTOTP(t *testing.T) {
	p := &fakeProvider{
		getFn: func(id string) (*flow.Flow, error) { return totpFlow(id), nil },
	}
	seq := NewSequencer(p, &fakeRefresher{}, zap.NewNop())

	state, err := seq.Begin(context.Background(), "login-7", flow.CreateOptions{})
	require.NoError(t, err)
	assert.Equal(t, StateTOTP, state)
}

func TestFullSequencePasswordThenTOTP(t *testing.T) {
	refresher := &fakeRefresher{}
	p := &fakeProvider{
		submitFn: func(method string, body map[string]any) (*flow.Result, error) {
			switch method {
			case "password":
				return &flow.Result{Flow: totpFlow("login-1")}, nil
			case "totp":
				return &flow.Result{SessionEstablished: true}, nil
			default:
				return nil, errors.New("unexpected method " + method)
			}
		},
	}
	seq := NewSequencer(p, refresher, zap.NewNop())
	_, err := seq.Begin(context.Background(), "", flow.CreateOptions{})
	require.NoError(t, err)

	state, err := seq.SubmitPassword(context.Background(), "ada@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, StateTOTP, state)
	assert.Equal(t, 0, refresher.calls, "no session refresh before the sequence completes")

	state, err = seq.SubmitTOTP(context.Background(), "123456")
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, state)
	assert.Equal(t, 1, refresher.calls, "session refreshed before success is reported")
}

func TestPasswordOnlyAccountSkipsSecondFactor(t *testing.T) {
	refresher := &fakeRefresher{}
	p := &fakeProvider{
		submitFn: func(string, map[string]any) (*flow.Result, error) {
			return &flow.Result{SessionEstablished: true}, nil
		},
	}
	seq := NewSequencer(p, refresher, zap.NewNop())
	_, err := seq.Begin(context.Background(), "", flow.CreateOptions{})
	require.NoError(t, err)

	state, err := seq.SubmitPassword(context.Background(), "ada@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, state)
	assert.Equal(t, 1, refresher.calls)
}

func TestTOTPCodeGateRejectsLocally(t *testing.T) {
	p := &fakeProvider{
		getFn: func(id string) (*flow.Flow, error) { return totpFlow(id), nil },
	}
	seq := NewSequencer(p, &fakeRefresher{}, zap.NewNop())
	_, err := seq.Begin(context.Background(), "login-1", flow.CreateOptions{})
	require.NoError(t, err)

	for _, code := range []string{"", "12345", "1234567", "12345a", "abcdef"} {
		state, err := seq.SubmitTOTP(context.Background(), code)
		assert.ErrorIs(t, err, ErrTOTPCodeFormat, "code %q", code)
		assert.Equal(t, StateTOTP, state)
	}
	assert.Equal(t, 0, p.submitCalls, "malformed codes never reach the provider")
}

func TestBackupCodeAlternationIsLocal(t *testing.T) {
	p := &fakeProvider{
		getFn: func(id string) (*flow.Flow, error) { return totpFlow(id), nil },
	}
	seq := NewSequencer(p, &fakeRefresher{}, zap.NewNop())
	_, err := seq.Begin(context.Background(), "login-1", flow.CreateOptions{})
	require.NoError(t, err)
	networkCalls := p.createCalls + p.getCalls + p.submitCalls

	state, err := seq.UseBackupCode()
	require.NoError(t, err)
	assert.Equal(t, StateBackupCode, state)

	state, err = seq.Back()
	require.NoError(t, err)
	assert.Equal(t, StateTOTP, state)

	assert.Equal(t, networkCalls, p.createCalls+p.getCalls+p.submitCalls)
}

func TestBackupCodeIsUppercasedAndTrimmed(t *testing.T) {
	var sent string
	p := &fakeProvider{
		getFn: func(id string) (*flow.Flow, error) { return totpFlow(id), nil },
		submitFn: func(method string, body map[string]any) (*flow.Result, error) {
			sent, _ = body["lookup_secret"].(string)
			return &flow.Result{SessionEstablished: true}, nil
		},
	}
	seq := NewSequencer(p, &fakeRefresher{}, zap.NewNop())
	_, err := seq.Begin(context.Background(), "login-1", flow.CreateOptions{})
	require.NoError(t, err)
	_, err = seq.UseBackupCode()
	require.NoError(t, err)

	state, err := seq.SubmitBackupCode(context.Background(), "  abcd-1234 ")
	require.NoError(t, err)
	assert.Equal(t, StateSuccess, state)
	assert.Equal(t, "ABCD-1234", sent)

	_, err = seq.SubmitBackupCode(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestEmptyBackupCodeRejectedLocally(t *testing.T) {
	p := &fakeProvider{
		getFn: func(id string) (*flow.Flow, error) { return totpFlow(id), nil },
	}
	seq := NewSequencer(p, &fakeRefresher{}, zap.NewNop())
	_, err := seq.Begin(context.Background(), "login-1", flow.CreateOptions{})
	require.NoError(t, err)
	_, err = seq.UseBackupCode()
	require.NoError(t, err)

	state, err := seq.SubmitBackupCode(context.Background(), "   ")
	assert.ErrorIs(t, err, ErrEmptyBackupCode)
	assert.Equal(t, StateBackupCode, state)
	assert.Equal(t, 0, p.submitCalls)
}

func TestValidationFailureKeepsChallenge(t *testing.T) {
	p := &fakeProvider{
		getFn: func(id string) (*flow.Flow, error) { return totpFlow(id), nil },
		submitFn: func(string, map[string]any) (*flow.Result, error) {
			refreshed := totpFlow("login-1")
			refreshed.Messages = []flow.Message{{Severity: "error", Text: "The code is invalid."}}
			return nil, &flow.Error{Outcome: flow.OutcomeValidationFailed, Flow: refreshed}
		},
	}
	seq := NewSequencer(p, &fakeRefresher{}, zap.NewNop())
	_, err := seq.Begin(context.Background(), "login-1", flow.CreateOptions{})
	require.NoError(t, err)

	state, err := seq.SubmitTOTP(context.Background(), "000000")
	assert.Equal(t, flow.OutcomeValidationFailed, flow.OutcomeOf(err))
	assert.Equal(t, StateTOTP, state)
	assert.Equal(t, "The code is invalid.", seq.Flow().FirstError())
}

func TestExpiredFlowRestartsAtPassword(t *testing.T) {
	p := &fakeProvider{
		getFn: func(id string) (*flow.Flow, error) { return totpFlow(id), nil },
		submitFn: func(string, map[string]any) (*flow.Result, error) {
			return nil, &flow.Error{Outcome: flow.OutcomeFlowExpired}
		},
	}
	seq := NewSequencer(p, &fakeRefresher{}, zap.NewNop())
	_, err := seq.Begin(context.Background(), "login-1", flow.CreateOptions{})
	require.NoError(t, err)
	require.Equal(t, 0, p.createCalls)

	state, err := seq.SubmitTOTP(context.Background(), "123456")
	assert.Equal(t, flow.OutcomeFlowExpired, flow.OutcomeOf(err))
	assert.Equal(t, StatePassword, state)
	assert.Equal(t, 1, p.createCalls, "exactly one replacement flow")
	require.NotNil(t, seq.Flow())
	assert.Equal(t, "login-1", seq.Flow().ID, "replacement flow is current")
}

func TestStepUpAndForbiddenLeaveStateAlone(t *testing.T) {
	for _, outcome := range []flow.Outcome{flow.OutcomeStepUpRequired, flow.OutcomeForbidden, flow.OutcomeUnknown} {
		p := &fakeProvider{
			submitFn: func(string, map[string]any) (*flow.Result, error) {
				return nil, &flow.Error{Outcome: outcome}
			},
		}
		seq := NewSequencer(p, &fakeRefresher{}, zap.NewNop())
		_, err := seq.Begin(context.Background(), "", flow.CreateOptions{})
		require.NoError(t, err)

		state, err := seq.SubmitPassword(context.Background(), "a", "b")
		assert.Equal(t, outcome, flow.OutcomeOf(err))
		assert.Equal(t, StatePassword, state)
	}
}

func TestWrongStateSubmissionsRejected(t *testing.T) {
	p := &fakeProvider{}
	seq := NewSequencer(p, &fakeRefresher{}, zap.NewNop())
	_, err := seq.Begin(context.Background(), "", flow.CreateOptions{})
	require.NoError(t, err)

	_, err = seq.SubmitTOTP(context.Background(), "123456")
	assert.ErrorIs(t, err, ErrWrongState)
	_, err = seq.SubmitBackupCode(context.Background(), "X")
	assert.ErrorIs(t, err, ErrWrongState)
	_, err = seq.Back()
	assert.ErrorIs(t, err, ErrWrongState)
}

func TestRefreshFailureStillReportsSuccess(t *testing.T) {
	refresher := &fakeRefresher{err: errors.New("backend down")}
	p := &fakeProvider{
		submitFn: func(string, map[string]any) (*flow.Result, error) {
			return &flow.Result{SessionEstablished: true}, nil
		},
	}
	seq := NewSequencer(p, refresher, zap.NewNop())
	_, err := seq.Begin(context.Background(), "", flow.CreateOptions{})
	require.NoError(t, err)

	state, err := seq.SubmitPassword(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Equal(t, StateSuccess, state)
	assert.Equal(t, 1, refresher.calls)
}
