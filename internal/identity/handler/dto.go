package handler

import (
	"time"

	auditdomain "mymessenger/backend/internal/audit/domain"
	identitydomain "mymessenger/backend/internal/identity/domain"
	"mymessenger/backend/internal/identity/service"
	sessiondomain "mymessenger/backend/internal/session/domain"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	TOTPCode string `json:"totp_code,omitempty"`
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type codeRequest struct {
	Code string `json:"code"`
}

type tokenResponse struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	TokenType        string    `json:"token_type"`
	ExpiresIn        int64     `json:"expires_in"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

type identityResponse struct {
	ID               string    `json:"id"`
	Email            string    `json:"email"`
	Name             string    `json:"name"`
	Active           bool      `json:"is_active"`
	TwoFactorEnabled bool      `json:"two_factor_enabled"`
	CreatedAt        time.Time `json:"created_at"`
}

// registeredResponse answers a registration whose automatic login needs a second factor.
type registeredResponse struct {
	Identity          identityResponse `json:"identity"`
	TwoFactorRequired bool             `json:"two_factor_required"`
}

type sessionResponse struct {
	ID         string    `json:"id"`
	DeviceInfo string    `json:"device_info,omitempty"`
	IPAddress  string    `json:"ip_address,omitempty"`
	LastUsedAt time.Time `json:"last_used_at"`
	ExpiresAt  time.Time `json:"expires_at"`
	CreatedAt  time.Time `json:"created_at"`
}

type auditResponse struct {
	ID         string            `json:"id"`
	Action     string            `json:"action"`
	SessionID  string            `json:"session_id,omitempty"`
	IP         string            `json:"ip,omitempty"`
	DeviceInfo string            `json:"device_info,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
	CreatedAt  time.Time         `json:"created_at"`
}

type setupResponse struct {
	Secret          string `json:"secret"`
	ProvisioningURI string `json:"provisioning_uri"`
	QRCode          string `json:"qr_code"`
}

type statusResponse struct {
	Enabled bool   `json:"enabled"`
	State   string `json:"state"`
}

type resultResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func toTokenResponse(p *service.TokenPair, now time.Time) tokenResponse {
	return tokenResponse{
		AccessToken:      p.AccessToken,
		RefreshToken:     p.RefreshToken,
		TokenType:        "bearer",
		ExpiresIn:        int64(p.AccessExpiresAt.Sub(now).Seconds()),
		RefreshExpiresAt: p.RefreshExpiresAt,
	}
}

func toIdentityResponse(i *identitydomain.Identity) identityResponse {
	return identityResponse{
		ID:               i.ID,
		Email:            i.Email,
		Name:             i.Name,
		Active:           i.Active,
		TwoFactorEnabled: i.TOTPEnabled,
		CreatedAt:        i.CreatedAt,
	}
}

func toSessionResponses(list []*sessiondomain.Session) []sessionResponse {
	out := make([]sessionResponse, 0, len(list))
	for _, s := range list {
		out = append(out, sessionResponse{
			ID:         s.ID,
			DeviceInfo: s.DeviceInfo,
			IPAddress:  s.IPAddress,
			LastUsedAt: s.LastUsedAt,
			ExpiresAt:  s.ExpiresAt,
			CreatedAt:  s.CreatedAt,
		})
	}
	return out
}

func toAuditResponses(list []*auditdomain.AuditLog) []auditResponse {
	out := make([]auditResponse, 0, len(list))
	for _, a := range list {
		out = append(out, auditResponse{
			ID:         a.ID,
			Action:     a.Action,
			SessionID:  a.SessionID,
			IP:         a.IP,
			DeviceInfo: a.DeviceInfo,
			Metadata:   a.Metadata,
			CreatedAt:  a.CreatedAt,
		})
	}
	return out
}
