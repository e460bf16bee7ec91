package domain

import "time"

// Session binds the hash of the current refresh secret to an identity and the
// device it was issued to. The raw refresh secret is never stored.
type Session struct {
	ID               string
	IdentityID       string
	RefreshTokenHash string
	DeviceInfo       string
	IPAddress        string
	ExpiresAt        time.Time
	LastUsedAt       time.Time
	CreatedAt        time.Time
}

// IsLive reports whether the session can still be used at now. Expired rows may
// linger in storage until purged; they are treated as nonexistent.
func (s *Session) IsLive(now time.Time) bool {
	return s != nil && now.Before(s.ExpiresAt)
}

// Rotation describes the in-place update applied to a session when its refresh
// secret is exchanged. Empty DeviceInfo or IPAddress keeps the stored value.
type Rotation struct {
	OldHash    string
	NewHash    string
	DeviceInfo string
	IPAddress  string
	Now        time.Time
	ExpiresAt  time.Time
}
