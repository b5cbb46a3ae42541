package flow

import "errors"

// Outcome is the classified result of a failed flow interaction. It is the
// only failure vocabulary exposed past the provider client: callers branch on
// Outcome and never on raw HTTP status codes.
type Outcome int

const (
	// OutcomeUnknown covers transport failures and unrecognized provider
	// responses. Surfaced as a generic error without flow mutation.
	OutcomeUnknown Outcome = iota
	// OutcomeValidationFailed means the provider rejected the submitted
	// values and answered with a refreshed flow carrying inline messages.
	OutcomeValidationFailed
	// OutcomeFlowExpired means the flow document is gone and a replacement
	// was (or must be) created. MFA progress does not survive replacement.
	OutcomeFlowExpired
	// OutcomeStepUpRequired means the provider demands a browser navigation
	// to an external URL before the operation may continue.
	OutcomeStepUpRequired
	// OutcomeForbidden means the session backing the operation is invalid;
	// local session state must be cleared and the user routed to login.
	OutcomeForbidden
)

func (o Outcome) String() string {
	switch o {
	case OutcomeValidationFailed:
		return "validation_failed"
	case OutcomeFlowExpired:
		return "flow_expired"
	case OutcomeStepUpRequired:
		return "step_up_required"
	case OutcomeForbidden:
		return "forbidden"
	default:
		return "unknown"
	}
}

// Error is a classified flow failure.
type Error struct {
	Outcome Outcome
	// Flow is the refreshed flow for OutcomeValidationFailed, or the
	// replacement flow after transparent OutcomeFlowExpired recovery.
	Flow *Flow
	// RedirectTo is the external URL for OutcomeStepUpRequired.
	RedirectTo string
	// Reason is a short diagnostic, never shown to users directly.
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Reason != "" {
		return "flow " + e.Outcome.String() + ": " + e.Reason
	}
	return "flow " + e.Outcome.String()
}

func (e *Error) Unwrap() error {
	return e.Err
}

// AsError unwraps err into a classified flow Error.
func AsError(err error) (*Error, bool) {
	var fe *Error
	if errors.As(err, &fe) {
		return fe, true
	}
	return nil, false
}

// OutcomeOf returns the classified outcome of err, defaulting to
// OutcomeUnknown for anything that is not a flow Error.
func OutcomeOf(err error) Outcome {
	if fe, ok := AsError(err); ok {
		return fe.Outcome
	}
	return OutcomeUnknown
}
