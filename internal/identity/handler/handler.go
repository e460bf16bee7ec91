package handler

import (
	"context"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	identitydomain "mymessenger/backend/internal/identity/domain"
	"mymessenger/backend/internal/identity/service"
	"mymessenger/backend/internal/server/interceptors"
)

var codePattern = regexp.MustCompile(`^\d{6}$`)

type contextKey struct{ name string }

var identityKey = contextKey{"identity"}

// Handler exposes the auth service over HTTP.
type Handler struct {
	svc *service.AuthService
	log *zap.Logger
	now func() time.Time
}

// NewHandler returns a Handler backed by svc. logger may be nil.
func NewHandler(svc *service.AuthService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{svc: svc, log: logger, now: time.Now}
}

// Routes registers the /auth and /2fa routes on r. Requests are expected to
// pass through interceptors.Client so client IP and device are available.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/login", h.login)
		r.Post("/refresh", h.refresh)
		r.Post("/logout", h.logout)

		r.Group(func(r chi.Router) {
			r.Use(h.Authenticate)
			r.Post("/logout-all", h.logoutAll)
			r.Get("/me", h.me)
			r.Get("/sessions", h.listSessions)
			r.Delete("/sessions/{id}", h.revokeSession)
			r.Get("/audit", h.auditTrail)
		})
	})
	r.Route("/2fa", func(r chi.Router) {
		r.Use(h.Authenticate)
		r.Get("/status", h.twoFactorStatus)
		r.Post("/setup", h.setup2FA)
		r.Post("/verify", h.verify2FA)
		r.Post("/disable", h.disable2FA)
	})
}

// Authenticate requires a valid Bearer access token of an active identity.
func (h *Handler) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := interceptors.BearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeError(w, http.StatusUnauthorized, string(service.CodeInvalidToken), "missing bearer token")
			return
		}
		identityID, err := h.svc.VerifyAccessToken(token)
		if err != nil {
			h.writeServiceError(w, r, err)
			return
		}
		ident, err := h.svc.GetIdentity(r.Context(), identityID)
		if err != nil {
			if code, _ := service.CodeOf(err); code == service.CodeNotFound {
				writeError(w, http.StatusUnauthorized, string(service.CodeInvalidToken), "identity no longer exists")
				return
			}
			h.writeServiceError(w, r, err)
			return
		}
		if !ident.Active {
			h.writeServiceError(w, r, service.ErrAccountInactive)
			return
		}
		ctx := interceptors.WithIdentity(r.Context(), ident.ID)
		ctx = context.WithValue(ctx, identityKey, ident)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func currentIdentity(r *http.Request) *identitydomain.Identity {
	ident, _ := r.Context().Value(identityKey).(*identitydomain.Identity)
	return ident
}

// register creates the identity and logs it in with the same request's client info.
// When the login policy demands a second factor the account still exists, so the
// answer is 201 with the identity and no tokens.
func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	ident, err := h.svc.Register(r.Context(), req.Email, req.Password, req.Name)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	client := interceptors.GetClient(r.Context())
	res, err := h.svc.Login(r.Context(), service.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		DeviceInfo: client.DeviceInfo,
		IP:         client.IP,
	})
	if errors.Is(err, service.ErrTwoFactorRequired) {
		writeJSON(w, http.StatusCreated, registeredResponse{
			Identity:          toIdentityResponse(ident),
			TwoFactorRequired: true,
		})
		return
	}
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTokenResponse(&res.TokenPair, h.now()))
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeBody(w, r, &req) {
		return
	}
	client := interceptors.GetClient(r.Context())
	res, err := h.svc.Login(r.Context(), service.LoginInput{
		Email:      req.Email,
		Password:   req.Password,
		TOTPCode:   req.TOTPCode,
		DeviceInfo: client.DeviceInfo,
		IP:         client.IP,
	})
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(&res.TokenPair, h.now()))
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	client := interceptors.GetClient(r.Context())
	pair, err := h.svc.Refresh(r.Context(), req.RefreshToken, client.DeviceInfo, client.IP)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTokenResponse(pair, h.now()))
}

func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	var req refreshRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := h.svc.Logout(r.Context(), req.RefreshToken); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) logoutAll(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.LogoutAll(r.Context(), currentIdentity(r).ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"count": n})
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, toIdentityResponse(currentIdentity(r)))
}

func (h *Handler) listSessions(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListSessions(r.Context(), currentIdentity(r).ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": toSessionResponses(list)})
}

func (h *Handler) revokeSession(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RevokeSession(r.Context(), currentIdentity(r).ID, chi.URLParam(r, "id")); err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) auditTrail(w http.ResponseWriter, r *http.Request) {
	limit := int64(50)
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, string(service.CodeInvalidInput), "limit must be a positive integer")
			return
		}
		limit = n
	}
	list, err := h.svc.RecentActivity(r.Context(), currentIdentity(r).ID, int32(limit))
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": toAuditResponses(list)})
}

func (h *Handler) twoFactorStatus(w http.ResponseWriter, r *http.Request) {
	ident := currentIdentity(r)
	writeJSON(w, http.StatusOK, statusResponse{Enabled: ident.TOTPEnabled, State: string(ident.TwoFactorState())})
}

func (h *Handler) setup2FA(w http.ResponseWriter, r *http.Request) {
	setup, err := h.svc.Setup2FA(r.Context(), currentIdentity(r).ID)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, setupResponse{
		Secret:          setup.Secret,
		ProvisioningURI: setup.ProvisioningURI,
		QRCode:          setup.QRCode,
	})
}

func (h *Handler) verify2FA(w http.ResponseWriter, r *http.Request) {
	code, ok := h.decodeCode(w, r)
	if !ok {
		return
	}
	h.writeCodeResult(w, r, h.svc.Verify2FA(r.Context(), currentIdentity(r).ID, code), "two-factor authentication enabled")
}

func (h *Handler) disable2FA(w http.ResponseWriter, r *http.Request) {
	code, ok := h.decodeCode(w, r)
	if !ok {
		return
	}
	h.writeCodeResult(w, r, h.svc.Disable2FA(r.Context(), currentIdentity(r).ID, code), "two-factor authentication disabled")
}

func (h *Handler) decodeCode(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req codeRequest
	if !decodeBody(w, r, &req) {
		return "", false
	}
	if !codePattern.MatchString(req.Code) {
		writeError(w, http.StatusBadRequest, string(service.CodeInvalidInput), "code must be 6 digits")
		return "", false
	}
	return req.Code, true
}

// writeCodeResult reports a wrong code as an unsuccessful result rather than an
// error, so clients can prompt again.
func (h *Handler) writeCodeResult(w http.ResponseWriter, r *http.Request, err error, okMessage string) {
	if err == nil {
		writeJSON(w, http.StatusOK, resultResponse{Success: true, Message: okMessage})
		return
	}
	if code, _ := service.CodeOf(err); code == service.CodeWrongCode {
		writeJSON(w, http.StatusOK, resultResponse{Success: false, Message: service.ErrWrongCode.Message})
		return
	}
	h.writeServiceError(w, r, err)
}
