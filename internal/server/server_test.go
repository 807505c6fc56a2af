package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/metrics"
	"github.com/alanyoungcy/consensusbot/internal/server/handler"
	"github.com/alanyoungcy/consensusbot/internal/service"
)

type stubSettlement struct {
	settled []int64
}

func (s *stubSettlement) Settle(_ context.Context, id int64, _ *domain.FinalScore) (domain.SettlementResult, error) {
	s.settled = append(s.settled, id)
	return domain.SettlementResult{FixtureID: id}, nil
}

func (s *stubSettlement) HandleMatchEnded(_ context.Context, ev service.MatchEnded) (domain.SettlementResult, error) {
	return domain.SettlementResult{FixtureID: ev.FixtureID}, nil
}

func (s *stubSettlement) Reset(context.Context, int64, string) (int64, error) {
	return 0, nil
}

type denyAfter struct{ n int }

func (d *denyAfter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	d.n--
	return d.n >= 0, nil
}

func newTestRouter(t *testing.T, limiter domain.RateLimiter) (http.Handler, *stubSettlement) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	settle := &stubSettlement{}

	cfg := Config{
		Port:          0,
		APIKey:        "secret",
		WebhookSecret: "hook",
		RateLimit:     100,
		RateWindow:    time.Minute,
	}
	h := Handlers{
		Health:     handler.NewHealthHandler("server", nil, logger),
		Settlement: handler.NewSettlementHandler(settle, logger),
	}
	srv := NewServer(cfg, h, Deps{Limiter: limiter, Metrics: metrics.New()}, logger)
	return srv.Handler(), settle
}

func TestRouterAuth(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		path     string
		headers  map[string]string
		body     string
		wantCode int
	}{
		{"health is public", http.MethodGet, "/api/health", nil, "", http.StatusOK},
		{"settle needs key", http.MethodPost, "/api/fixtures/1/settle", nil, "", http.StatusUnauthorized},
		{"settle with bearer", http.MethodPost, "/api/fixtures/1/settle",
			map[string]string{"Authorization": "Bearer secret"}, "", http.StatusOK},
		{"settle with api key header", http.MethodPost, "/api/fixtures/1/settle",
			map[string]string{"X-API-Key": "secret"}, "", http.StatusOK},
		{"webhook needs secret", http.MethodPost, "/api/webhooks/match-ended",
			nil, `{"fixture_id":1}`, http.StatusUnauthorized},
		{"webhook with secret", http.MethodPost, "/api/webhooks/match-ended",
			map[string]string{"X-Webhook-Secret": "hook"}, `{"fixture_id":1}`, http.StatusOK},
		{"unregistered group", http.MethodGet, "/api/leaderboard", nil, "", http.StatusNotFound},
		{"metrics", http.MethodGet, "/metrics", nil, "", http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h, _ := newTestRouter(t, nil)
			var body io.Reader
			if tt.body != "" {
				body = strings.NewReader(tt.body)
			}
			req := httptest.NewRequest(tt.method, tt.path, body)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			assert.Equal(t, tt.wantCode, rec.Code, rec.Body.String())
		})
	}
}

func TestRouterRateLimit(t *testing.T) {
	h, _ := newTestRouter(t, &denyAfter{n: 1})

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "60", rec.Header().Get("Retry-After"))

	// /metrics sits outside the limited group.
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterPassesFixtureID(t *testing.T) {
	h, settle := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodPost, "/api/fixtures/17/settle", nil)
	req.Header.Set("X-API-Key", "secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []int64{17}, settle.settled)
}
