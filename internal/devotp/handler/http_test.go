package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"mymessenger/backend/internal/devotp"
	"mymessenger/backend/internal/identity/domain"
)

type stubSource struct {
	code devotp.Code
	ok   bool
	err  error
	got  string
}

func (s *stubSource) Current(ctx context.Context, identityID string) (devotp.Code, bool, error) {
	s.got = identityID
	return s.code, s.ok, s.err
}

func serve(src CodeSource, path string) *httptest.ResponseRecorder {
	r := chi.NewRouter()
	NewHandler(src, nil).Routes(r)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestGetCode_OK(t *testing.T) {
	src := &stubSource{ok: true, code: devotp.Code{Code: "123456", State: domain.TwoFactorEnabled, ValidFor: 12 * time.Second}}
	rec := serve(src, "/dev/totp/u1")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if src.got != "u1" {
		t.Errorf("identity = %q, want u1", src.got)
	}
	var body codeResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Code != "123456" || body.State != "enabled" || body.ValidForSeconds != 12 || body.Note != devOTPNote {
		t.Errorf("body = %+v", body)
	}
}

func TestGetCode_NotFound(t *testing.T) {
	if rec := serve(&stubSource{}, "/dev/totp/u1"); rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestGetCode_Error(t *testing.T) {
	if rec := serve(&stubSource{err: errors.New("db down")}, "/dev/totp/u1"); rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
