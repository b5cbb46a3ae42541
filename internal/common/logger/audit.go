// Package logger provides structured logging utilities for vehicert services
package logger

import (
	"time"

	"go.uber.org/zap"
)

// AuditEvent represents an audit log event
type AuditEvent struct {
	EventType  string                 `json:"event_type"`
	Actor      string                 `json:"actor"` // identity id or submitted identifier
	ActorEmail string                 `json:"actor_email,omitempty"`
	Action     string                 `json:"action"`
	Resource   string                 `json:"resource"`
	ResourceID string                 `json:"resource_id"`
	Status     string                 `json:"status"` // success, failure, denied
	Reason     string                 `json:"reason,omitempty"`
	IPAddress  string                 `json:"ip_address,omitempty"`
	UserAgent  string                 `json:"user_agent,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
	Timestamp  time.Time              `json:"timestamp"`
}

// AuditLogger provides audit logging functionality
type AuditLogger struct {
	logger *zap.Logger
}

// NewAuditLogger creates a new audit logger
func NewAuditLogger(logger *zap.Logger) *AuditLogger {
	return &AuditLogger{
		logger: logger.With(zap.String("log_type", "audit")),
	}
}

// Log logs an audit event
func (a *AuditLogger) Log(event *AuditEvent) {
	fields := []zap.Field{
		zap.String("event_type", event.EventType),
		zap.String("actor", event.Actor),
		zap.String("action", event.Action),
		zap.String("resource", event.Resource),
		zap.String("resource_id", event.ResourceID),
		zap.String("status", event.Status),
		zap.Time("timestamp", event.Timestamp),
	}

	if event.ActorEmail != "" {
		fields = append(fields, zap.String("actor_email", event.ActorEmail))
	}

	if event.Reason != "" {
		fields = append(fields, zap.String("reason", event.Reason))
	}

	if event.IPAddress != "" {
		fields = append(fields, zap.String("ip_address", event.IPAddress))
	}

	if event.UserAgent != "" {
		fields = append(fields, zap.String("user_agent", event.UserAgent))
	}

	if len(event.Metadata) > 0 {
		fields = append(fields, zap.Any("metadata", event.Metadata))
	}

	// Log at appropriate level based on status
	switch event.Status {
	case "failure", "error":
		a.logger.Error("Audit event", fields...)
	case "denied", "forbidden":
		a.logger.Warn("Audit event", fields...)
	default:
		a.logger.Info("Audit event", fields...)
	}
}

// LogLoginSuccess logs a completed login challenge sequence
func (a *AuditLogger) LogLoginSuccess(userID, email, ipAddress, userAgent string) {
	a.Log(&AuditEvent{
		EventType:  "auth.login.success",
		Actor:      userID,
		ActorEmail: email,
		Action:     "login",
		Resource:   "session",
		ResourceID: userID,
		Status:     "success",
		IPAddress:  ipAddress,
		UserAgent:  userAgent,
		Timestamp:  time.Now(),
	})
}

// LogLoginFailure logs a rejected login submission
func (a *AuditLogger) LogLoginFailure(identifier, challenge, ipAddress, userAgent, reason string) {
	a.Log(&AuditEvent{
		EventType: "auth.login.failure",
		Actor:     identifier,
		Action:    "login",
		Resource:  "session",
		Status:    "failure",
		Reason:    reason,
		IPAddress: ipAddress,
		UserAgent: userAgent,
		Metadata:  map[string]interface{}{"challenge": challenge},
		Timestamp: time.Now(),
	})
}

// LogLogout logs a logout handoff to the provider
func (a *AuditLogger) LogLogout(userID, email string) {
	a.Log(&AuditEvent{
		EventType:  "auth.logout",
		Actor:      userID,
		ActorEmail: email,
		Action:     "logout",
		Resource:   "session",
		ResourceID: userID,
		Status:     "success",
		Timestamp:  time.Now(),
	})
}

// LogMFAEnrolled logs a completed authenticator enrollment
func (a *AuditLogger) LogMFAEnrolled(userID, email string) {
	a.Log(&AuditEvent{
		EventType:  "auth.mfa.enrolled",
		Actor:      userID,
		ActorEmail: email,
		Action:     "enroll",
		Resource:   "totp",
		ResourceID: userID,
		Status:     "success",
		Timestamp:  time.Now(),
	})
}

// LogMFAUnlinked logs an authenticator removal
func (a *AuditLogger) LogMFAUnlinked(userID, email string) {
	a.Log(&AuditEvent{
		EventType:  "auth.mfa.unlinked",
		Actor:      userID,
		ActorEmail: email,
		Action:     "unlink",
		Resource:   "totp",
		ResourceID: userID,
		Status:     "success",
		Timestamp:  time.Now(),
	})
}

// LogRecoveryRequested logs a recovery code being sent
func (a *AuditLogger) LogRecoveryRequested(email, ipAddress string) {
	a.Log(&AuditEvent{
		EventType: "auth.recovery.requested",
		Actor:     email,
		Action:    "recover",
		Resource:  "account",
		Status:    "success",
		IPAddress: ipAddress,
		Timestamp: time.Now(),
	})
}

// LogRegistration logs a completed signup
func (a *AuditLogger) LogRegistration(userID, email, ipAddress string) {
	a.Log(&AuditEvent{
		EventType:  "auth.registration",
		Actor:      userID,
		ActorEmail: email,
		Action:     "register",
		Resource:   "account",
		ResourceID: userID,
		Status:     "success",
		IPAddress:  ipAddress,
		Timestamp:  time.Now(),
	})
}

// LogSessionRejected logs the provider invalidating a session mid-use
func (a *AuditLogger) LogSessionRejected(userID, ipAddress, reason string) {
	a.Log(&AuditEvent{
		EventType:  "auth.session.rejected",
		Actor:      userID,
		Action:     "refresh",
		Resource:   "session",
		ResourceID: userID,
		Status:     "denied",
		Reason:     reason,
		IPAddress:  ipAddress,
		Timestamp:  time.Now(),
	})
}
