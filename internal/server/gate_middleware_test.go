package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ashita-ai/scratchnotebook/internal/gate"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestGateMiddleware_AllowsWhenRunning(t *testing.T) {
	g := gate.New()
	h := gateMiddleware(g, okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/mcp", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestGateMiddleware_RejectsWithServiceUnavailableWhenDraining(t *testing.T) {
	g := gate.New()
	g.Drain()
	h := gateMiddleware(g, okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/mcp", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestGateMiddleware_HealthStaysReachableWhileDraining(t *testing.T) {
	g := gate.New()
	g.Drain()
	h := gateMiddleware(g, okHandler())

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}
