package kratos

import (
	"encoding/json"
	"net/http"

	"github.com/vehicert/vehicert/internal/flow"
)

// classify turns a non-2xx provider response into a *flow.Error. It is total:
// every failure maps to exactly one outcome, and no status code escapes this
// function. Callers upstream branch on the Outcome alone.
func classify(kind flow.Kind, status int, body []byte) *flow.Error {
	switch status {
	case http.StatusBadRequest:
		// The 400 payload is itself the refreshed flow, field errors and a
		// fresh anti-forgery token included.
		if kind != "" {
			if f, err := parseFlow(kind, body); err == nil && f.ID != "" {
				return &flow.Error{
					Outcome: flow.OutcomeValidationFailed,
					Flow:    f,
					Reason:  firstErrorText(f),
				}
			}
		}
		return &flow.Error{Outcome: flow.OutcomeUnknown, Reason: "unreadable validation response"}

	case http.StatusGone:
		return &flow.Error{Outcome: flow.OutcomeFlowExpired, Reason: "flow expired"}

	case http.StatusUnprocessableEntity:
		var br struct {
			RedirectBrowserTo string `json:"redirect_browser_to"`
			Error             struct {
				ID string `json:"id"`
			} `json:"error"`
		}
		if err := json.Unmarshal(body, &br); err == nil && br.RedirectBrowserTo != "" {
			return &flow.Error{
				Outcome:    flow.OutcomeStepUpRequired,
				RedirectTo: br.RedirectBrowserTo,
				Reason:     br.Error.ID,
			}
		}
		return &flow.Error{Outcome: flow.OutcomeUnknown, Reason: "browser redirect expected but absent"}

	case http.StatusForbidden, http.StatusUnauthorized:
		return &flow.Error{Outcome: flow.OutcomeForbidden, Reason: "session rejected"}

	default:
		return &flow.Error{Outcome: flow.OutcomeUnknown, Reason: http.StatusText(status)}
	}
}

func firstErrorText(f *flow.Flow) string {
	if msg := f.FirstError(); msg != "" {
		return msg
	}
	return "validation failed"
}
