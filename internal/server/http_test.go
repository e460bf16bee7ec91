package server

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"mymessenger/backend/internal/devotp"
	devotphandler "mymessenger/backend/internal/devotp/handler"
	healthhandler "mymessenger/backend/internal/health/handler"
)

type noCodes struct{}

func (noCodes) Current(context.Context, string) (devotp.Code, bool, error) {
	return devotp.Code{}, false, nil
}

func get(h http.Handler, path string, header map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewRouter_Health(t *testing.T) {
	down := healthhandler.PingerFunc(func(context.Context) error { return errors.New("down") })
	r := NewRouter(RouterDeps{Health: healthhandler.NewServer(down, nil, nil)})

	rec := get(r, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec = get(r, "/readyz", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "database")
}

func TestNewRouter_DevRoutesOnlyWhenProvided(t *testing.T) {
	without := NewRouter(RouterDeps{})
	require.Equal(t, http.StatusNotFound, get(without, "/dev/totp/u1", nil).Code)

	with := NewRouter(RouterDeps{Dev: devotphandler.NewHandler(noCodes{}, nil)})
	rec := get(with, "/dev/totp/u1", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Contains(t, rec.Body.String(), "no TOTP secret")
}

func TestNewRouter_CORS(t *testing.T) {
	r := NewRouter(RouterDeps{
		Health:      healthhandler.NewServer(nil, nil, nil),
		CORSOrigins: []string{"https://app.example.com"},
	})

	rec := get(r, "/healthz", map[string]string{"Origin": "https://app.example.com"})
	require.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))

	rec = get(r, "/healthz", map[string]string{"Origin": "https://evil.example.com"})
	require.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
}
