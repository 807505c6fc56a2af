package settlement

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/scoring"
)

// CouponStatus derives a coupon's status from its picks:
//   - any lost pick: lost
//   - otherwise any pending pick: pending
//   - every pick void: cancelled
//   - every pick won: won
//   - won picks mixed with void picks: partial
func CouponStatus(picks []domain.Pick) domain.CouponStatus {
	var won, void, pending int
	for _, p := range picks {
		switch p.Result {
		case domain.PickLost:
			return domain.CouponLost
		case domain.PickWon:
			won++
		case domain.PickVoid:
			void++
		default:
			pending++
		}
	}
	switch {
	case pending > 0:
		return domain.CouponPending
	case won == 0:
		return domain.CouponCancelled
	case void == 0:
		return domain.CouponWon
	default:
		return domain.CouponPartial
	}
}

// CouponPoints returns the points of a settled coupon. A partial coupon is
// scored as if its void legs had never been on it.
func CouponPoints(picks []domain.Pick, status domain.CouponStatus, m scoring.Multipliers) float64 {
	var odds []float64
	switch status {
	case domain.CouponWon:
		for _, p := range picks {
			odds = append(odds, p.Odds)
		}
	case domain.CouponPartial:
		for _, p := range picks {
			if p.Result == domain.PickWon {
				odds = append(odds, p.Odds)
			}
		}
	default:
		return 0
	}
	return m.Points(scoring.CombinedOdds(odds), len(odds))
}

// Planner turns a loaded settlement unit and a final score into the writes
// that settle it. It never mutates its input.
type Planner struct {
	TiePolicy   domain.TotalsTiePolicy
	Multipliers scoring.Multipliers
}

// SettleCoupon derives c's terminal outcome from its picks. It reports false
// while any pick is pending. Stores call it on the picks they have committed,
// so a coupon whose legs settle in parallel still ends terminal.
func (p Planner) SettleCoupon(c domain.Coupon) (domain.CouponSettlement, bool) {
	status := CouponStatus(c.Picks)
	if !status.Terminal() {
		return domain.CouponSettlement{}, false
	}
	return domain.CouponSettlement{
		CouponID:  c.ID,
		UserID:    c.UserID,
		Status:    status,
		Points:    CouponPoints(c.Picks, status, p.Multipliers),
		PickCount: len(c.Picks),
		TotalOdds: c.TotalOdds,
	}, true
}

// Plan grades everything in unit that is not yet terminal. Predictions that
// are already settled are reported in alreadySettled and left alone.
func (p Planner) Plan(unit domain.SettlementUnit, score domain.FinalScore, now time.Time) (batch domain.SettlementBatch, alreadySettled []domain.Market, err error) {
	batch = domain.SettlementBatch{FixtureID: unit.FixtureID, Score: score, SettledAt: now}

	for _, pred := range unit.Predictions {
		if pred.IsSettled {
			alreadySettled = append(alreadySettled, pred.Market)
			continue
		}
		result, actual, err := Grade(pred.Market, 0, pred.Label, score, p.TiePolicy)
		if err != nil {
			return domain.SettlementBatch{}, nil, fmt.Errorf("prediction %d: %w", pred.ID, err)
		}
		batch.Predictions = append(batch.Predictions, domain.PredictionGrade{
			PredictionID: pred.ID,
			FixtureID:    pred.FixtureID,
			Market:       pred.Market,
			Predicted:    pred.Label,
			Actual:       actual,
			Correct:      result == domain.PickWon,
		})
	}

	for _, op := range unit.Opinions {
		if op.IsSettled {
			continue
		}
		result, _, err := Grade(op.Market, 0, op.Label, score, p.TiePolicy)
		if err != nil {
			return domain.SettlementBatch{}, nil, fmt.Errorf("opinion %s/%s: %w", op.AgentID, op.Market, err)
		}
		batch.Opinions = append(batch.Opinions, domain.OpinionGrade{
			FixtureID: op.FixtureID,
			AgentID:   op.AgentID,
			Market:    op.Market,
			Predicted: op.Label,
			Correct:   result == domain.PickWon,
		})
	}

	for _, c := range unit.Coupons {
		if c.Status.Terminal() {
			continue
		}
		picks := make([]domain.Pick, len(c.Picks))
		copy(picks, c.Picks)
		for i := range picks {
			pk := &picks[i]
			if pk.FixtureID != unit.FixtureID || pk.Result.Terminal() {
				continue
			}
			result, _, err := Grade(pk.Market, pk.Line, pk.Selection, score, p.TiePolicy)
			if err != nil {
				return domain.SettlementBatch{}, nil, fmt.Errorf("coupon %s pick %s: %w", c.ID, pk.ID, err)
			}
			pk.Result = result
			batch.Picks = append(batch.Picks, domain.PickGrade{PickID: pk.ID, CouponID: c.ID, Result: result})
		}

		graded := c
		graded.Picks = picks
		if cs, ok := p.SettleCoupon(graded); ok {
			batch.Coupons = append(batch.Coupons, cs)
		}
	}
	return batch, alreadySettled, nil
}
