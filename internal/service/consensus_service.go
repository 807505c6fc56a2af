package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/consensusbot/internal/consensus"
	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/metrics"
)

// SkipSettled is the Skipped reason of a market whose stored prediction is
// already settled and therefore kept.
const SkipSettled = "already settled"

// Publisher delivers domain events.
type Publisher interface {
	Publish(ctx context.Context, channel string, ev domain.Event) error
}

// ConsensusService runs produceConsensus: it gathers agent opinions for a
// fixture, combines them per market and stores the result.
type ConsensusService struct {
	providers    []domain.OpinionProvider
	facts        domain.FactsProvider
	fixtures     domain.FixtureStore
	predictions  domain.PredictionStore
	cache        domain.ConsensusCache
	events       Publisher
	metrics      *metrics.Metrics
	builder      consensus.Builder
	agentTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger
}

// ConsensusDeps groups the collaborators of a ConsensusService. Facts, Cache,
// Events and Metrics are optional.
type ConsensusDeps struct {
	Providers    []domain.OpinionProvider
	Facts        domain.FactsProvider
	Fixtures     domain.FixtureStore
	Predictions  domain.PredictionStore
	Cache        domain.ConsensusCache
	Events       Publisher
	Metrics      *metrics.Metrics
	Builder      consensus.Builder
	AgentTimeout time.Duration
}

// NewConsensusService creates a ConsensusService.
func NewConsensusService(deps ConsensusDeps, logger *slog.Logger) *ConsensusService {
	if deps.AgentTimeout <= 0 {
		deps.AgentTimeout = 45 * time.Second
	}
	return &ConsensusService{
		providers:    deps.Providers,
		facts:        deps.Facts,
		fixtures:     deps.Fixtures,
		predictions:  deps.Predictions,
		cache:        deps.Cache,
		events:       deps.Events,
		metrics:      deps.Metrics,
		builder:      deps.Builder,
		agentTimeout: deps.AgentTimeout,
		now:          time.Now,
		logger:       logger.With(slog.String("component", "consensus_service")),
	}
}

// ProduceConsensus builds and stores the consensus of a fixture. When facts is
// nil they are fetched from the facts provider, falling back to the stored
// snapshot.
//
// A market that cannot be produced is listed in Skipped; the call only fails
// when no market could be produced at all, in which case the error carries
// the taxonomy error of the first failing market.
func (s *ConsensusService) ProduceConsensus(ctx context.Context, fixtureID int64, facts *domain.MatchFacts) (domain.FixtureConsensus, error) {
	f, err := s.resolveFacts(ctx, fixtureID, facts)
	if err != nil {
		s.metrics.RecordConsensus("error")
		return domain.FixtureConsensus{}, err
	}
	if err := s.fixtures.Upsert(ctx, f); err != nil {
		s.metrics.RecordConsensus("error")
		return domain.FixtureConsensus{}, fmt.Errorf("consensus_service: save facts: %w", err)
	}

	opinions, agents, outcomes := s.collect(ctx, f)
	if len(opinions) == 0 {
		s.metrics.RecordConsensus("insufficient")
		return domain.FixtureConsensus{FixtureID: fixtureID, Agents: outcomes},
			&domain.InsufficientDataError{FixtureID: fixtureID}
	}

	fc, buildErr := s.builder.Build(f, agents, opinions, s.now().UTC())
	fc.Agents = outcomes
	for m, reason := range fc.Skipped {
		s.metrics.RecordSkipped(string(m), reason)
	}
	if len(fc.Predictions) == 0 {
		s.metrics.RecordConsensus("insufficient")
		return fc, buildErr
	}
	if buildErr != nil {
		s.logger.WarnContext(ctx, "partial consensus",
			slog.Int64("fixture_id", fixtureID),
			slog.Int("produced", len(fc.Predictions)),
			slog.String("error", buildErr.Error()),
		)
	}

	saved, skipped, err := s.predictions.SaveConsensus(ctx, fc, opinions)
	if err != nil {
		s.metrics.RecordConsensus("error")
		return fc, fmt.Errorf("consensus_service: save fixture %d: %w", fixtureID, err)
	}
	fc.Predictions = saved
	for _, m := range skipped {
		if fc.Skipped == nil {
			fc.Skipped = make(map[domain.Market]string)
		}
		fc.Skipped[m] = SkipSettled
		s.logger.InfoContext(ctx, "kept settled prediction",
			slog.Int64("fixture_id", fixtureID),
			slog.String("market", string(m)),
		)
	}
	fc.BestBet = s.builder.Calibration.BestBet(fc.Predictions)

	for _, p := range fc.Predictions {
		s.metrics.RecordPrediction(string(p.Market), p.Confidence, p.Agreement)
	}
	s.metrics.RecordConsensus("ok")

	if s.cache != nil {
		if err := s.cache.Set(ctx, fc); err != nil {
			s.logger.WarnContext(ctx, "consensus cache set failed",
				slog.Int64("fixture_id", fixtureID),
				slog.String("error", err.Error()),
			)
		}
	}
	if s.events != nil {
		_ = s.events.Publish(ctx, domain.ChannelConsensus, domain.Event{
			Type:      domain.EventConsensus,
			FixtureID: fixtureID,
			Payload:   fc,
		})
	}

	s.logger.InfoContext(ctx, "consensus produced",
		slog.Int64("fixture_id", fixtureID),
		slog.Int("predictions", len(fc.Predictions)),
		slog.Int("opinions", len(opinions)),
	)
	return fc, nil
}

func (s *ConsensusService) resolveFacts(ctx context.Context, fixtureID int64, facts *domain.MatchFacts) (domain.MatchFacts, error) {
	if facts != nil {
		f := *facts
		f.FixtureID = fixtureID
		return f, nil
	}
	if s.facts != nil {
		f, err := s.facts.MatchFacts(ctx, fixtureID)
		if err == nil {
			f.FixtureID = fixtureID
			return f, nil
		}
		s.logger.WarnContext(ctx, "facts provider failed, using stored facts",
			slog.Int64("fixture_id", fixtureID),
			slog.String("error", err.Error()),
		)
	}
	f, err := s.fixtures.Get(ctx, fixtureID)
	if err != nil {
		return domain.MatchFacts{}, fmt.Errorf("consensus_service: facts for fixture %d: %w", fixtureID, err)
	}
	return f, nil
}

// collect asks every provider in parallel. A provider that fails or times out
// is recorded in the outcomes and simply contributes no opinions; the weights
// of the responding agents are re-normalized downstream.
func (s *ConsensusService) collect(ctx context.Context, f domain.MatchFacts) ([]domain.AgentMarketOpinion, []domain.AgentID, map[domain.AgentID]domain.AgentOutcome) {
	var (
		mu       sync.Mutex
		opinions []domain.AgentMarketOpinion
		agents   []domain.AgentID
		outcomes = make(map[domain.AgentID]domain.AgentOutcome, len(s.providers))
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, p := range s.providers {
		p := p
		g.Go(func() error {
			id := p.Agent().ID
			actx, cancel := context.WithTimeout(gctx, s.agentTimeout)
			defer cancel()

			start := time.Now()
			ops, err := opine(actx, p, f)
			latency := time.Since(start)
			s.metrics.RecordAgent(string(id), latency, err != nil)

			outcome := domain.AgentOutcome{Latency: latency}
			if err != nil {
				outcome.Error = err.Error()
				s.logger.WarnContext(ctx, "agent failed",
					slog.String("agent", string(id)),
					slog.Int64("fixture_id", f.FixtureID),
					slog.Duration("latency", latency),
					slog.String("error", err.Error()),
				)
			} else {
				ops = validOpinions(id, f.FixtureID, ops)
				outcome.Opinions = len(ops)
			}

			mu.Lock()
			defer mu.Unlock()
			outcomes[id] = outcome
			if err == nil {
				agents = append(agents, id)
				opinions = append(opinions, ops...)
			}
			return nil
		})
	}
	_ = g.Wait()

	sort.Slice(agents, func(i, j int) bool { return agents[i] < agents[j] })
	return opinions, agents, outcomes
}

// opine returns when p answers or ctx ends, whichever comes first. A provider
// that ignores ctx is abandoned; its late answer is dropped.
func opine(ctx context.Context, p domain.OpinionProvider, f domain.MatchFacts) ([]domain.AgentMarketOpinion, error) {
	type answer struct {
		ops []domain.AgentMarketOpinion
		err error
	}
	done := make(chan answer, 1)
	go func() {
		ops, err := p.Opine(ctx, f)
		done <- answer{ops: ops, err: err}
	}()
	select {
	case a := <-done:
		return a.ops, a.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// validOpinions stamps the agent and fixture onto copies of ops and drops
// malformed opinions. ops itself is not modified.
func validOpinions(id domain.AgentID, fixtureID int64, ops []domain.AgentMarketOpinion) []domain.AgentMarketOpinion {
	out := make([]domain.AgentMarketOpinion, 0, len(ops))
	for _, o := range ops {
		o.AgentID = id
		o.FixtureID = fixtureID
		if o.Valid() {
			out = append(out, o)
		}
	}
	return out
}

// Consensus returns the stored consensus of a fixture, preferring the cache.
func (s *ConsensusService) Consensus(ctx context.Context, fixtureID int64) (domain.FixtureConsensus, error) {
	if s.cache != nil {
		if fc, err := s.cache.Get(ctx, fixtureID); err == nil {
			return fc, nil
		}
	}

	preds, err := s.predictions.ListByFixture(ctx, fixtureID)
	if err != nil {
		return domain.FixtureConsensus{}, fmt.Errorf("consensus_service: list fixture %d: %w", fixtureID, err)
	}
	if len(preds) == 0 {
		return domain.FixtureConsensus{}, fmt.Errorf("consensus_service: fixture %d: %w", fixtureID, domain.ErrNotFound)
	}

	fc := domain.FixtureConsensus{
		FixtureID:   fixtureID,
		Predictions: preds,
		BestBet:     s.builder.Calibration.BestBet(preds),
	}
	for _, p := range preds {
		if p.CreatedAt.After(fc.ProducedAt) {
			fc.ProducedAt = p.CreatedAt
		}
	}
	if f, err := s.fixtures.Get(ctx, fixtureID); err == nil {
		fc.League = f.League
		fc.MatchType = f.PrimaryMatchType()
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "load fixture facts failed",
			slog.Int64("fixture_id", fixtureID),
			slog.String("error", err.Error()),
		)
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, fc); err != nil {
			s.logger.WarnContext(ctx, "consensus cache set failed",
				slog.Int64("fixture_id", fixtureID),
				slog.String("error", err.Error()),
			)
		}
	}
	return fc, nil
}

// Opinions returns the agent opinions stored for a fixture.
func (s *ConsensusService) Opinions(ctx context.Context, fixtureID int64) ([]domain.AgentMarketOpinion, error) {
	ops, err := s.predictions.ListOpinions(ctx, fixtureID)
	if err != nil {
		return nil, fmt.Errorf("consensus_service: list opinions %d: %w", fixtureID, err)
	}
	return ops, nil
}
