// Package handler serves the dev-only TOTP lookup route.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"mymessenger/backend/internal/devotp"
)

const devOTPNote = "DEV MODE ONLY"

// CodeSource returns the current code of an identity; see devotp.Source.
type CodeSource interface {
	Current(ctx context.Context, identityID string) (devotp.Code, bool, error)
}

// Handler serves GET /dev/totp/{identityID}. Only mounted when dev TOTP is enabled and not production.
type Handler struct {
	source CodeSource
	log    *zap.Logger
}

// NewHandler returns a Handler reading codes from source.
func NewHandler(source CodeSource, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{source: source, log: logger}
}

// Routes registers the dev routes on r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/dev/totp/{identityID}", h.getCode)
}

type codeResponse struct {
	Code            string `json:"code"`
	State           string `json:"state"`
	ValidForSeconds int    `json:"valid_for_seconds"`
	Note            string `json:"note"`
}

func (h *Handler) getCode(w http.ResponseWriter, r *http.Request) {
	identityID := chi.URLParam(r, "identityID")
	code, ok, err := h.source.Current(r.Context(), identityID)
	if err != nil {
		h.log.Error("dev totp lookup failed", zap.String("identity_id", identityID), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "no TOTP secret for identity"})
		return
	}
	h.log.Warn("dev totp code served", zap.String("identity_id", identityID))
	writeJSON(w, http.StatusOK, codeResponse{
		Code:            code.Code,
		State:           string(code.State),
		ValidForSeconds: int(code.ValidFor.Seconds()),
		Note:            devOTPNote,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
