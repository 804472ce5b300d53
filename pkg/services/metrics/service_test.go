package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestHealthEndpoint(t *testing.T) {
	s := NewService("127.0.0.1:0", zaptest.NewLogger(t))

	get := func() *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		return w
	}

	w := get()
	require.Equal(t, http.StatusServiceUnavailable, w.Code)
	require.JSONEq(t, `{"status":"starting"}`, w.Body.String())

	s.MarkReady()
	w = get()
	require.Equal(t, http.StatusOK, w.Code)
	require.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestMetricsEndpoint(t *testing.T) {
	TickProcessed(31337)
	TradeExecuted()
	TradeFailed()

	s := NewService("127.0.0.1:0", zaptest.NewLogger(t))
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	require.Contains(t, w.Body.String(), "solver_trades_executed_total")
	require.Contains(t, w.Body.String(), "solver_ticks_total")
}
