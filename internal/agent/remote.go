package agent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// RemoteConfig describes one remote opinion service.
type RemoteConfig struct {
	ID        string
	URL       string
	APIKey    string
	Markets   []domain.Market
	RateLimit float64 // requests per second, 0 means unlimited
	Timeout   time.Duration
}

// Remote asks an HTTP service for opinions. The service receives the match
// facts as JSON and answers with normalized per-market opinions; how it
// produces them is its own business.
type Remote struct {
	cfg        RemoteConfig
	limiter    *rate.Limiter
	httpClient *http.Client
	now        func() time.Time
}

// NewRemote creates a remote agent client.
func NewRemote(cfg RemoteConfig) *Remote {
	if len(cfg.Markets) == 0 {
		cfg.Markets = domain.ConsensusMarkets
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Remote{
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, 1),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		now:        time.Now,
	}
}

func (r *Remote) Agent() domain.Agent {
	return domain.Agent{ID: domain.AgentID(r.cfg.ID), Markets: r.cfg.Markets}
}

type remoteRequest struct {
	Agent   string            `json:"agent"`
	Markets []domain.Market   `json:"markets"`
	Facts   domain.MatchFacts `json:"facts"`
}

type remoteResponse struct {
	Opinions []struct {
		Market     string  `json:"market"`
		Label      string  `json:"label"`
		Confidence float64 `json:"confidence"`
	} `json:"opinions"`
	Error string `json:"error,omitempty"`
}

// Opine posts the facts and returns the opinions for supported markets.
// Opinions with unknown markets or labels are dropped.
func (r *Remote) Opine(ctx context.Context, f domain.MatchFacts) ([]domain.AgentMarketOpinion, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("agent %s: rate limit: %w", r.cfg.ID, err)
	}

	body, err := json.Marshal(remoteRequest{Agent: r.cfg.ID, Markets: r.cfg.Markets, Facts: f})
	if err != nil {
		return nil, fmt.Errorf("agent %s: marshal request: %w", r.cfg.ID, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("agent %s: build request: %w", r.cfg.ID, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key := strings.TrimSpace(r.cfg.APIKey); key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("agent %s: request: %w", r.cfg.ID, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("agent %s: read response: %w", r.cfg.ID, err)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("agent %s: %w", r.cfg.ID, domain.ErrRateLimited)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("agent %s: status %d: %s", r.cfg.ID, resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	var out remoteResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("agent %s: decode response: %w", r.cfg.ID, err)
	}
	if out.Error != "" {
		return nil, fmt.Errorf("agent %s: %s", r.cfg.ID, out.Error)
	}

	agent := r.Agent()
	now := r.now().UTC()
	opinions := make([]domain.AgentMarketOpinion, 0, len(out.Opinions))
	for _, o := range out.Opinions {
		op := domain.AgentMarketOpinion{
			FixtureID:  f.FixtureID,
			AgentID:    agent.ID,
			Market:     domain.Market(o.Market),
			Label:      domain.Label(strings.ToLower(o.Label)),
			Confidence: o.Confidence,
			CreatedAt:  now,
		}
		if !agent.Supports(op.Market) || !op.Valid() {
			continue
		}
		opinions = append(opinions, op)
	}
	return opinions, nil
}
