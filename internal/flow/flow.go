// Package flow models the identity provider's self-service flow documents
// and provides typed access to their dynamically-shaped UI fields.
package flow

import (
	"errors"
	"fmt"
	"strings"
)

// Kind identifies the self-service operation a flow belongs to.
type Kind string

const (
	KindLogin        Kind = "login"
	KindRegistration Kind = "registration"
	KindRecovery     Kind = "recovery"
	KindSettings     Kind = "settings"
)

// Group classifies a flow field by the authentication method it belongs to.
type Group string

const (
	GroupDefault      Group = "default"
	GroupPassword     Group = "password"
	GroupTOTP         Group = "totp"
	GroupLookupSecret Group = "lookup_secret"
	GroupCode         Group = "code"
	GroupOIDC         Group = "oidc"
	GroupProfile      Group = "profile"
)

// Flow states the orchestrator recognizes. Everything else is treated as
// opaque and carried through verbatim.
const (
	StateChooseMethod    = "choose_method"
	StateSentEmail       = "sent_email"
	StatePassedChallenge = "passed_challenge"
	StateShowForm        = "show_form"
	StateSuccess         = "success"
)

// ErrFieldMissing is returned when a typed accessor cannot locate the field
// it was asked for. Missing fields fail here, at the flow boundary, instead
// of surfacing as empty values deep in a caller.
var ErrFieldMissing = errors.New("flow field missing")

// Field is a single input descriptor from the provider's flow UI.
type Field struct {
	Group Group
	Name  string
	Type  string // node type as reported by the provider: "input", "img", "text"
	Value any
	Src   string // populated for image nodes (TOTP QR code)
}

// Message is a user-facing feedback item attached to a flow. Severity is
// "error", "info" or "success"; the text is surfaced to the user verbatim.
type Message struct {
	Severity string `json:"severity"`
	Text     string `json:"text"`
}

// Flow is a server-issued, multi-step form document for one in-progress
// identity operation. The orchestrator never fabricates flows; every Flow
// originates from the provider and is replaced wholesale on mutation.
type Flow struct {
	ID       string    `json:"id"`
	Kind     Kind      `json:"kind"`
	State    string    `json:"state"`
	ReturnTo string    `json:"return_to,omitempty"`
	Fields   []Field   `json:"-"`
	Messages []Message `json:"messages,omitempty"`
}

// HasGroup reports whether any field in the flow belongs to the given group.
// A login flow exposing the totp group means the password challenge has
// already been passed and a second factor is pending.
func (f *Flow) HasGroup(g Group) bool {
	for _, fld := range f.Fields {
		if fld.Group == g {
			return true
		}
	}
	return false
}

// Lookup returns the first field matching group and name.
func (f *Flow) Lookup(g Group, name string) (Field, bool) {
	for _, fld := range f.Fields {
		if fld.Group == g && fld.Name == name {
			return fld, true
		}
	}
	return Field{}, false
}

// CSRFToken extracts the anti-forgery token the provider embedded in this
// flow. The token rotates on every flow mutation, so callers must re-read it
// from the current flow immediately before each submission.
func (f *Flow) CSRFToken() (string, error) {
	for _, fld := range f.Fields {
		if fld.Name == "csrf_token" {
			if s, ok := fld.Value.(string); ok && s != "" {
				return s, nil
			}
			break
		}
	}
	return "", fmt.Errorf("%w: csrf_token in %s flow %s", ErrFieldMissing, f.Kind, f.ID)
}

// TOTPQRCode returns the data URL of the QR image exposed by a settings flow
// during authenticator enrollment.
func (f *Flow) TOTPQRCode() (string, error) {
	for _, fld := range f.Fields {
		if fld.Group == GroupTOTP && fld.Type == "img" && fld.Src != "" {
			return fld.Src, nil
		}
	}
	return "", fmt.Errorf("%w: totp qr image in %s flow %s", ErrFieldMissing, f.Kind, f.ID)
}

// TOTPSecret returns the manual-entry secret shown alongside the QR code.
func (f *Flow) TOTPSecret() (string, error) {
	for _, fld := range f.Fields {
		if fld.Group == GroupTOTP && fld.Type == "text" {
			if s, ok := fld.Value.(string); ok && s != "" {
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("%w: totp secret in %s flow %s", ErrFieldMissing, f.Kind, f.ID)
}

// LookupSecretCodes returns the one-time backup codes embedded in a settings
// flow response right after TOTP verification. The provider never repeats
// them; absence is a normal condition, not an error.
func (f *Flow) LookupSecretCodes() ([]string, bool) {
	fld, ok := f.Lookup(GroupLookupSecret, "lookup_secret_codes")
	if !ok {
		return nil, false
	}
	switch v := fld.Value.(type) {
	case string:
		// Text nodes render the whole code list as one comma-separated string.
		var codes []string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				codes = append(codes, part)
			}
		}
		if len(codes) == 0 {
			return nil, false
		}
		return codes, true
	case []string:
		if len(v) == 0 {
			return nil, false
		}
		return v, true
	case []any:
		codes := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				codes = append(codes, s)
			}
		}
		if len(codes) == 0 {
			return nil, false
		}
		return codes, true
	}
	return nil, false
}

// MessageTexts returns the flow's feedback messages in order, optionally
// filtered to a single severity. Pass "" for all severities.
func (f *Flow) MessageTexts(severity string) []string {
	var texts []string
	for _, m := range f.Messages {
		if severity == "" || m.Severity == severity {
			texts = append(texts, m.Text)
		}
	}
	return texts
}

// FirstError returns the first error-severity message, or "" when the flow
// carries none.
func (f *Flow) FirstError() string {
	for _, m := range f.Messages {
		if m.Severity == "error" {
			return m.Text
		}
	}
	return ""
}

// ContinueWith is a provider instruction to proceed with another flow after a
// terminal submission, e.g. recovery handing off to a settings flow.
type ContinueWith struct {
	Action string `json:"action"`
	FlowID string `json:"flow_id,omitempty"`
}

// ActionShowSettingsUI asks the browser to open the settings form for the
// referenced flow.
const ActionShowSettingsUI = "show_settings_ui"

/// Result is the outcome of a flow submission: either an updated non-terminal
// Flow, or a terminal signal (session established, or a continue-with
// instruction pointing at another flow).
type Result struct {
	// Flow is the updated flow when the submission did not terminate it.
	Flow *Flow
	// SessionEstablished is true when the provider answered with a session
	// document instead of a flow.
	SessionEstablished bool
	// ContinueWith carries follow-up instructions attached to a terminal
	// recovery response.
	ContinueWith []ContinueWith
}

// Terminal reports whether the submission ended the flow.
func (r *Result) Terminal() bool {
	return r.SessionEstablished || len(r.ContinueWith) > 0 ||
		(r.Flow != nil && (r.Flow.State == StatePassedChallenge || r.Flow.State == StateSuccess))
}

// SettingsFlowID returns the settings flow referenced by a show_settings_ui
// instruction, if the result carries one.
func (r *Result) SettingsFlowID() (string, bool) {
	for _, cw := range r.ContinueWith {
		if cw.Action == ActionShowSettingsUI && cw.FlowID != "" {
			return cw.FlowID, true
		}
	}
	return "", false
}
