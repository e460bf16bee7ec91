package domain

import "time"

// Event types emitted by the identity subsystem.
const (
	EventRegister       = "register"
	EventLoginSuccess   = "login_success"
	EventLoginFailure   = "login_failure"
	EventRefresh        = "refresh"
	EventRefreshFailure = "refresh_failure"
	EventLogout         = "logout"
	EventLogoutAll      = "logout_all"
	EventSessionRevoked = "session_revoked"
	Event2FASetup       = "2fa_setup"
	Event2FAEnabled     = "2fa_enabled"
	Event2FADisabled    = "2fa_disabled"
)

// SecurityEvent is a security-relevant fact about an identity, streamed to
// Kafka and Loki. It never carries passwords, refresh secrets or TOTP secrets.
type SecurityEvent struct {
	ID         string            `json:"id"`
	IdentityID string            `json:"identityId,omitempty"`
	SessionID  string            `json:"sessionId,omitempty"`
	EventType  string            `json:"eventType"`
	Source     string            `json:"source"`
	IPAddress  string            `json:"ipAddress,omitempty"`
	DeviceInfo string            `json:"deviceInfo,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"createdAt"`
}
