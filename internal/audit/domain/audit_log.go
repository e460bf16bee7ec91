package domain

import "time"

// AuditLog is one persisted security-relevant action. IdentityID is empty for
// events that cannot be attributed, such as a login with an unknown email.
type AuditLog struct {
	ID         string
	IdentityID string
	SessionID  string
	Action     string
	IP         string
	DeviceInfo string
	Metadata   map[string]string
	CreatedAt  time.Time
}
