package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"mymessenger/backend/internal/identity/service"
	"mymessenger/backend/internal/server/interceptors"
)

const maxBodyBytes = 1 << 20

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

// statusFor maps service error codes to HTTP statuses.
func statusFor(code service.Code) int {
	switch code {
	case service.CodeInvalidInput, service.CodeAlreadyEnabled, service.CodeNotEnabled, service.CodeNotConfigured:
		return http.StatusBadRequest
	case service.CodeInvalidCredentials, service.CodeInvalidToken, service.CodeTwoFactorRequired, service.CodeWrongCode:
		return http.StatusUnauthorized
	case service.CodeAccountInactive:
		return http.StatusForbidden
	case service.CodeNotFound:
		return http.StatusNotFound
	case service.CodeEmailExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeServiceError writes err as a JSON error. Errors without a service code
// are logged and reported as 500 without details.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var se *service.Error
	if errors.As(err, &se) {
		writeError(w, statusFor(se.Code), string(se.Code), se.Message)
		return
	}
	h.log.Error("request failed",
		zap.String("path", r.URL.Path),
		zap.String("request_id", interceptors.GetRequestID(r.Context())),
		zap.Error(err),
	)
	writeError(w, http.StatusInternalServerError, "internal", "internal server error")
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, string(service.CodeInvalidInput), "malformed JSON body")
		return false
	}
	return true
}
