package consensus

import (
	"fmt"
	"math"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// MaxConfidence is the highest confidence ever reported.
const MaxConfidence = 95.0

// StakeBands maps confidence to a stake hint.
type StakeBands struct {
	High   float64 // confidence >= High -> high
	Medium float64 // confidence >= Medium -> medium, otherwise low
}

// Calibration holds the agreement bands and caps applied to raw confidence.
type Calibration struct {
	LowAgreement     float64 // below this, confidence is capped at LowCap
	HighAgreement    float64 // at or above this, confidence is capped at HighCap
	LowCap           float64
	MidCap           float64
	HighCap          float64
	BestBetThreshold float64
	Stake            StakeBands
}

// DefaultCalibration returns the production bands.
func DefaultCalibration() Calibration {
	return Calibration{
		LowAgreement:     0.5,
		HighAgreement:    0.8,
		LowCap:           60,
		MidCap:           95,
		HighCap:          95,
		BestBetThreshold: 60,
		Stake:            StakeBands{High: 75, Medium: 65},
	}
}

// Validate checks that caps never decrease with agreement and stay at or
// below MaxConfidence.
func (c Calibration) Validate() error {
	switch {
	case c.LowAgreement < 0 || c.HighAgreement > 1 || c.LowAgreement > c.HighAgreement:
		return fmt.Errorf("consensus: agreement bands must satisfy 0 <= low (%g) <= high (%g) <= 1", c.LowAgreement, c.HighAgreement)
	case c.LowCap < 0 || c.LowCap > c.MidCap || c.MidCap > c.HighCap || c.HighCap > MaxConfidence:
		return fmt.Errorf("consensus: caps must satisfy 0 <= low (%g) <= mid (%g) <= high (%g) <= %g", c.LowCap, c.MidCap, c.HighCap, MaxConfidence)
	case c.Stake.Medium > c.Stake.High:
		return fmt.Errorf("consensus: stake medium band %g above high band %g", c.Stake.Medium, c.Stake.High)
	}
	return nil
}

// Cap returns the confidence ceiling for an agreement ratio.
func (c Calibration) Cap(agreement float64) float64 {
	switch {
	case agreement < c.LowAgreement:
		return c.LowCap
	case agreement >= c.HighAgreement:
		return c.HighCap
	default:
		return c.MidCap
	}
}

// Confidence caps raw confidence by agreement and rounds to one decimal. The
// result is always within [0, MaxConfidence].
func (c Calibration) Confidence(raw, agreement float64) float64 {
	v := math.Min(raw, c.Cap(agreement))
	v = math.Max(0, math.Min(v, MaxConfidence))
	return math.Round(v*10) / 10
}

// StakeFor returns the stake hint of a calibrated confidence.
func (c Calibration) StakeFor(confidence float64) domain.StakeHint {
	switch {
	case confidence >= c.Stake.High:
		return domain.StakeHigh
	case confidence >= c.Stake.Medium:
		return domain.StakeMedium
	default:
		return domain.StakeLow
	}
}

// Calibrate turns a raw consensus into an unsettled prediction.
func (c Calibration) Calibrate(raw domain.RawConsensus, now time.Time) domain.ConsensusPrediction {
	conf := c.Confidence(raw.RawConfidence, raw.Agreement)
	return domain.ConsensusPrediction{
		FixtureID:      raw.FixtureID,
		Market:         raw.Market,
		Label:          raw.Label,
		Confidence:     conf,
		RawConfidence:  math.Round(raw.RawConfidence*10) / 10,
		Agreement:      math.Round(raw.Agreement*1000) / 1000,
		AgentsTotal:    raw.AgentsTotal,
		AgentsAgreeing: raw.AgentsAgreeing,
		Weights:        raw.Weights.Clone(),
		Stake:          c.StakeFor(conf),
		CreatedAt:      now,
	}
}

// BestBet picks the most confident prediction at or above the threshold.
// Equal confidences keep the earlier market in preds. It returns nil when no
// prediction clears the threshold.
func (c Calibration) BestBet(preds []domain.ConsensusPrediction) *domain.BestBet {
	var best *domain.ConsensusPrediction
	for i := range preds {
		p := &preds[i]
		if p.Confidence < c.BestBetThreshold {
			continue
		}
		if best == nil || p.Confidence > best.Confidence {
			best = p
		}
	}
	if best == nil {
		return nil
	}
	return &domain.BestBet{
		Market:     best.Market,
		Label:      best.Label,
		Confidence: best.Confidence,
		Stake:      best.Stake,
	}
}
