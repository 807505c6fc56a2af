package consensus

import (
	"errors"
	"fmt"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/weights"
)

// SkipInsufficient is the Skipped reason of a market without opinions.
const SkipInsufficient = "insufficient signal"

// Builder runs the weight model, aggregator and calibrator over every market
// of a fixture.
type Builder struct {
	Weights     weights.Config
	Calibration Calibration
	Markets     []domain.Market
}

// Build produces the consensus of one fixture. A failing market is recorded in
// Skipped and its error joined into the returned error; the other markets are
// still produced. Callers treat a non-nil error with predictions present as a
// partial result.
func (b Builder) Build(facts domain.MatchFacts, agents []domain.AgentID, opinions []domain.AgentMarketOpinion, now time.Time) (domain.FixtureConsensus, error) {
	markets := b.Markets
	if len(markets) == 0 {
		markets = domain.ConsensusMarkets
	}
	fc := domain.FixtureConsensus{
		FixtureID:  facts.FixtureID,
		League:     facts.League,
		MatchType:  facts.PrimaryMatchType(),
		Skipped:    make(map[domain.Market]string),
		ProducedAt: now,
	}

	var errs []error
	for _, m := range markets {
		profile, err := b.Weights.Resolve(agents, facts.League, m, fc.MatchType)
		if err != nil {
			fc.Skipped[m] = err.Error()
			errs = append(errs, err)
			continue
		}
		raw, err := Aggregate(facts.FixtureID, m, opinions, profile)
		if err != nil {
			var insufficient *domain.InsufficientDataError
			if errors.As(err, &insufficient) {
				fc.Skipped[m] = SkipInsufficient
			} else {
				fc.Skipped[m] = err.Error()
			}
			errs = append(errs, err)
			continue
		}
		fc.Predictions = append(fc.Predictions, b.Calibration.Calibrate(raw, now))
	}
	fc.BestBet = b.Calibration.BestBet(fc.Predictions)
	if len(fc.Skipped) == 0 {
		fc.Skipped = nil
	}
	if len(errs) > 0 {
		return fc, fmt.Errorf("consensus: fixture %d: %w", facts.FixtureID, errors.Join(errs...))
	}
	return fc, nil
}
