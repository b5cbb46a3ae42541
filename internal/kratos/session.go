package kratos

import (
	"encoding/json"
	"time"
)

// Authentication method names reported by the provider.
const (
	MethodPassword     = "password"
	MethodTOTP         = "totp"
	MethodLookupSecret = "lookup_secret"
	MethodCode         = "code"
)

// Session is the provider's view of an authenticated browser session.
type Session struct {
	ID                    string                 `json:"id"`
	Active                bool                   `json:"active"`
	AAL                   string                 `json:"authenticator_assurance_level"`
	AuthenticationMethods []AuthenticationMethod `json:"authentication_methods"`
	ExpiresAt             time.Time              `json:"expires_at"`
	Identity              Identity               `json:"identity"`
}

// AuthenticationMethod records one completed credential check.
type AuthenticationMethod struct {
	Method      string    `json:"method"`
	AAL         string    `json:"aal,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}

// Identity is the provider-side identity record. Traits and public metadata
// are schema-defined so they stay as raw maps here; typed accessors cover the
// fields the platform relies on.
type Identity struct {
	ID             string          `json:"id"`
	Traits         json.RawMessage `json:"traits"`
	MetadataPublic json.RawMessage `json:"metadata_public"`
}

type identityTraits struct {
	Email string `json:"email"`
	Name  struct {
		First string `json:"first"`
		Last  string `json:"last"`
	} `json:"name"`
}

// Email returns the identity's email trait, or "" when absent.
func (i Identity) Email() string {
	var t identityTraits
	if err := json.Unmarshal(i.Traits, &t); err != nil {
		return ""
	}
	return t.Email
}

// DisplayName returns "First Last" from the name trait, falling back to the
// email when no name is set.
func (i Identity) DisplayName() string {
	var t identityTraits
	if err := json.Unmarshal(i.Traits, &t); err != nil {
		return ""
	}
	switch {
	case t.Name.First != "" && t.Name.Last != "":
		return t.Name.First + " " + t.Name.Last
	case t.Name.First != "":
		return t.Name.First
	default:
		return t.Email
	}
}

// IsAdmin reports whether public metadata marks the identity as a global
// administrator. Anything but an explicit true is false.
func (i Identity) IsAdmin() bool {
	var meta struct {
		IsAdmin bool `json:"isAdmin"`
	}
	if err := json.Unmarshal(i.MetadataPublic, &meta); err != nil {
		return false
	}
	return meta.IsAdmin
}

// HasMethod reports whether the session completed the named authentication
// method.
func (s *Session) HasMethod(method string) bool {
	for _, m := range s.AuthenticationMethods {
		if m.Method == method {
			return true
		}
	}
	return false
}

// HasMFA reports whether a second factor backed this session, either an
// authenticator app code or a backup recovery code.
func (s *Session) HasMFA() bool {
	return s.HasMethod(MethodTOTP) || s.HasMethod(MethodLookupSecret)
}
