// Package settlement grades predictions and coupon picks against final scores
// and drives the per-fixture settlement unit.
package settlement

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// Outcome returns the actual label of a market for a score. For totals markets
// a total exactly on the line returns ("", true) and the caller applies a tie
// policy. Double chance returns the match-result label; see Wins.
func Outcome(market domain.Market, line float64, score domain.FinalScore) (label domain.Label, onLine bool, err error) {
	switch market {
	case domain.MarketMatchResult, domain.MarketDoubleChance:
		return matchResult(score), false, nil
	case domain.MarketOverUnder25, domain.MarketOverUnder35, domain.MarketOverUnder:
		l := market.Line(line)
		if l <= 0 {
			return "", false, fmt.Errorf("settlement: market %s has no line", market)
		}
		total := float64(score.TotalGoals())
		switch {
		case total > l:
			return domain.LabelOver, false, nil
		case total < l:
			return domain.LabelUnder, false, nil
		default:
			return "", true, nil
		}
	case domain.MarketBTTS:
		if score.HomeGoals > 0 && score.AwayGoals > 0 {
			return domain.LabelYes, false, nil
		}
		return domain.LabelNo, false, nil
	default:
		return "", false, fmt.Errorf("settlement: unknown market %q", market)
	}
}

func matchResult(score domain.FinalScore) domain.Label {
	switch d := score.HomeGoals - score.AwayGoals; {
	case d > 0:
		return domain.LabelHome
	case d < 0:
		return domain.LabelAway
	default:
		return domain.LabelDraw
	}
}

// Wins reports whether selection covers the actual label. A double-chance
// selection is the union of its two single outcomes.
func Wins(selection, actual domain.Label) bool {
	switch selection {
	case domain.LabelHomeDraw:
		return actual == domain.LabelHome || actual == domain.LabelDraw
	case domain.LabelHomeAway:
		return actual == domain.LabelHome || actual == domain.LabelAway
	case domain.LabelDrawAway:
		return actual == domain.LabelDraw || actual == domain.LabelAway
	default:
		return selection == actual
	}
}

// Grade grades one selection. A totals selection whose line is hit exactly is
// graded by policy: TieAsUnder and TieAsOver treat the total as that side,
// TieAsVoid voids the selection. actual is empty for a void.
func Grade(market domain.Market, line float64, selection domain.Label, score domain.FinalScore, policy domain.TotalsTiePolicy) (result domain.PickResult, actual domain.Label, err error) {
	if !market.Accepts(selection) {
		return "", "", fmt.Errorf("settlement: selection %q is not valid for market %s", selection, market)
	}
	actual, onLine, err := Outcome(market, line, score)
	if err != nil {
		return "", "", err
	}
	if onLine {
		switch policy {
		case domain.TieAsOver:
			actual = domain.LabelOver
		case domain.TieAsVoid:
			return domain.PickVoid, "", nil
		default:
			actual = domain.LabelUnder
		}
	}
	if Wins(selection, actual) {
		return domain.PickWon, actual, nil
	}
	return domain.PickLost, actual, nil
}

// ValidLine reports whether line is a positive whole or half goal line.
func ValidLine(line float64) bool {
	return line > 0 && line*2 == math.Trunc(line*2)
}
