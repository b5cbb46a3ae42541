// Package authz derives the authorization view the rest of the platform
// reads: who the user is, which entities they belong to with which role, and
// what assurance level backs the session. Derivation happens only on explicit
// refresh; every reader is a pure function over the last-resolved state.
package authz

// Entity types and membership roles used across the platform.
const (
	EntityTypeCertifier = "certifier"
	EntityTypePartner   = "partner"

	RoleAdmin  = "admin"
	RoleMember = "member"
)

// EntityMembership is one entity the user belongs to.
type EntityMembership struct {
	EntityID   string `json:"entityId"`
	EntityName string `json:"entityName"`
	EntityType string `json:"entityType"`
	Role       string `json:"role"`
}

// InvitationVehicle summarizes a vehicle attached to a pending invitation.
type InvitationVehicle struct {
	VehicleID    string `json:"vehicleId"`
	Make         string `json:"make,omitempty"`
	Model        string `json:"model,omitempty"`
	Year         int    `json:"year,omitempty"`
	LicensePlate string `json:"licensePlate,omitempty"`
}

// PendingInvitations lists outstanding vehicle-ownership invitations.
type PendingInvitations struct {
	Count    int                 `json:"count"`
	Vehicles []InvitationVehicle `json:"vehicles"`
}

// Profile is the derived user profile. It is always replaced wholesale; no
// caller ever observes a partially updated profile.
type Profile struct {
	ID                 string              `json:"id"`
	Email              string              `json:"email"`
	Name               string              `json:"name,omitempty"`
	GlobalAdmin        bool                `json:"isAdmin"`
	Entities           []EntityMembership  `json:"entities"`
	PendingInvitations *PendingInvitations `json:"pendingInvitations,omitempty"`
}
