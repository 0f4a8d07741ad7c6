package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Shoebbirader4/Upstockbot/internal/gates"
	"github.com/Shoebbirader4/Upstockbot/internal/telemetry/metrics"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type fakeStore struct {
	saves int
	err   error
	state string
}

func (f *fakeStore) SaveGate(ctx context.Context, g *gates.RiskGate) error {
	f.saves++
	return f.err
}

func (f *fakeStore) BreakerState() string { return f.state }

func newTestServer(t *testing.T, cfg ServerConfig, store *fakeStore) (*Server, *metrics.Registry) {
	t.Helper()
	riskCfg := gates.DefaultRiskConfig()
	riskCfg.Timezone = "UTC"
	reg := metrics.NewRegistry()

	gate, err := gates.NewRiskGate(riskCfg,
		gates.WithClock(fixedClock{now: time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)}),
		gates.WithRiskRecorder(reg))
	require.NoError(t, err)

	deps := Deps{Gate: gate, Metrics: reg, Version: "test"}
	if store != nil {
		deps.Store = store
	}
	srv, err := NewServer(cfg, deps)
	require.NoError(t, err)
	return srv, reg
}

func do(t *testing.T, srv *Server, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func TestServer_Health(t *testing.T) {
	srv, _ := newTestServer(t, DefaultServerConfig(), &fakeStore{state: "closed"})

	rec := do(t, srv, "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Len(t, rec.Header().Get("X-Request-ID"), 8)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp.Status)
	assert.Equal(t, "test", resp.Version)
	assert.Equal(t, "pass", resp.Checks["risk_gate"].Status)
	assert.Equal(t, "pass", resp.Checks["state_store"].Status)
}

func TestServer_HealthDegradedWhenBreakerOpen(t *testing.T) {
	srv, _ := newTestServer(t, DefaultServerConfig(), &fakeStore{state: "open"})

	rec := do(t, srv, "GET", "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "degraded", resp.Status)
}

func TestServer_RiskCheck(t *testing.T) {
	srv, reg := newTestServer(t, DefaultServerConfig(), nil)

	rec := do(t, srv, "POST", "/risk/check", `{"signal":"buy","price":22000,"atr":40,"avg_atr":35,"capital":1000000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Allowed)
	assert.Equal(t, gates.CheckPassed, resp.Check)
	assert.Equal(t, "Trade allowed", resp.Reason)
	assert.Equal(t, 2, resp.PositionSize)

	rec = do(t, srv, "POST", "/risk/check", `{"signal":1,"price":22000,"atr":40,"avg_atr":35}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var hold CheckResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hold))
	assert.False(t, hold.Allowed)
	assert.Equal(t, "Signal is Hold", hold.Reason)
	assert.Zero(t, hold.PositionSize)

	assert.Equal(t, 1.0, testutil.ToFloat64(reg.RiskDecisions.WithLabelValues("passed", "true")))
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.RiskDecisions.WithLabelValues("hold_signal", "false")))
}

func TestServer_RiskCheckRejectsBadBodies(t *testing.T) {
	srv, _ := newTestServer(t, DefaultServerConfig(), nil)

	for name, body := range map[string]string{
		"missing signal": `{"price":1,"atr":1,"avg_atr":1}`,
		"unknown signal": `{"signal":"maybe","price":1,"atr":1,"avg_atr":1}`,
		"negative atr":   `{"signal":"buy","price":1,"atr":-1,"avg_atr":1}`,
		"unknown field":  `{"signal":"buy","qty":3}`,
		"not json":       `signal=buy`,
	} {
		t.Run(name, func(t *testing.T) {
			rec := do(t, srv, "POST", "/risk/check", body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)

			var resp ErrorResponse
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
			assert.Equal(t, "invalid_body", resp.Code)
			assert.NotEmpty(t, resp.RequestID)
		})
	}
}

func TestServer_RecordTradesAndFlatten(t *testing.T) {
	store := &fakeStore{state: "closed"}
	srv, _ := newTestServer(t, DefaultServerConfig(), store)

	rec := do(t, srv, "POST", "/risk/trades", `{"pnl":-12000}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var st gates.Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, -12000.0, st.DailyPnL)
	assert.Equal(t, 1, st.DailyTrades)

	rec = do(t, srv, "GET", "/risk/flatten", "")
	var flat FlattenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flat))
	assert.False(t, flat.Flatten)

	store.err = errors.New("redis down")
	rec = do(t, srv, "POST", "/risk/trades", `{"pnl":-8000}`)
	require.Equal(t, http.StatusOK, rec.Code, "persistence failure does not fail the request")
	assert.Equal(t, 2, store.saves)

	rec = do(t, srv, "GET", "/risk/flatten", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &flat))
	assert.True(t, flat.Flatten)
	assert.Equal(t, "Daily loss limit breached", flat.Reason)

	rec = do(t, srv, "GET", "/risk/status", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, -20000.0, st.DailyPnL)
	assert.Equal(t, 20000.0, st.MaxDailyLoss)

	rec = do(t, srv, "POST", "/risk/trades", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_Size(t *testing.T) {
	srv, _ := newTestServer(t, DefaultServerConfig(), nil)

	rec := do(t, srv, "GET", "/risk/size?capital=100000&atr=1000", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var size SizeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &size))
	assert.Equal(t, 1, size.Lots)

	rec = do(t, srv, "GET", "/risk/size?capital=1000000&atr=50&risk_per_trade=0.01", "")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &size))
	assert.Equal(t, 2, size.Lots)

	rec = do(t, srv, "GET", "/risk/size?atr=50", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	for _, q := range []string{
		"capital=NaN&atr=50",
		"capital=Inf&atr=50",
		"capital=1000000&atr=50&risk_per_trade=NaN",
		"capital=1000000&atr=50&risk_per_trade=-Inf",
	} {
		rec = do(t, srv, "GET", "/risk/size?"+q, "")
		assert.Equal(t, http.StatusBadRequest, rec.Code, q)
	}
}

func TestServer_MetricsAndRouting(t *testing.T) {
	srv, reg := newTestServer(t, DefaultServerConfig(), nil)

	do(t, srv, "GET", "/risk/status", "")
	rec := do(t, srv, "GET", "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `upstockbot_http_requests_total{code="200",method="GET",route="/risk/status"} 1`)
	assert.Equal(t, 1.0, testutil.ToFloat64(reg.HTTPRequests.WithLabelValues("/risk/status", "GET", "200")))

	rec = do(t, srv, "GET", "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = do(t, srv, "GET", "/risk/check", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &errResp))
	assert.Equal(t, "method_not_allowed", errResp.Code)

	rec = do(t, srv, "POST", "/risk/status", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, srv, "GET", "/health", "")
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
}

func TestServer_RateLimit(t *testing.T) {
	cfg := DefaultServerConfig()
	cfg.RateLimitRPS = 0.001
	cfg.RateLimitBurst = 2
	srv, _ := newTestServer(t, cfg, nil)

	assert.Equal(t, http.StatusOK, do(t, srv, "GET", "/risk/status", "").Code)
	assert.Equal(t, http.StatusOK, do(t, srv, "GET", "/risk/status", "").Code)
	rec := do(t, srv, "GET", "/risk/status", "")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(DefaultServerConfig(), Deps{})
	assert.Error(t, err)

	cfg := DefaultServerConfig()
	cfg.Port = 0
	_, err = NewServer(cfg, Deps{Gate: &gates.RiskGate{}})
	assert.Error(t, err)
}
