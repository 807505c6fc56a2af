package domain

import "fmt"

// Market is a betting question about a fixture.
type Market string

const (
	MarketMatchResult  Market = "match_result"
	MarketOverUnder25  Market = "over_under_25"
	MarketOverUnder35  Market = "over_under_35"
	MarketBTTS         Market = "btts"
	MarketDoubleChance Market = "double_chance"
	// MarketOverUnder is a totals market whose line is carried by the pick.
	MarketOverUnder Market = "over_under"
)

// ConsensusMarkets are the markets a consensus run produces predictions for.
var ConsensusMarkets = []Market{
	MarketMatchResult,
	MarketOverUnder25,
	MarketOverUnder35,
	MarketBTTS,
	MarketDoubleChance,
}

// Label is a discrete outcome of a market.
type Label string

const (
	LabelHome     Label = "home"
	LabelDraw     Label = "draw"
	LabelAway     Label = "away"
	LabelOver     Label = "over"
	LabelUnder    Label = "under"
	LabelYes      Label = "yes"
	LabelNo       Label = "no"
	LabelHomeDraw Label = "home_draw"
	LabelHomeAway Label = "home_away"
	LabelDrawAway Label = "draw_away"
)

// Labels returns the valid outcome labels of m in tie-break priority order.
func (m Market) Labels() []Label {
	switch m {
	case MarketMatchResult:
		return []Label{LabelHome, LabelDraw, LabelAway}
	case MarketOverUnder25, MarketOverUnder35, MarketOverUnder:
		return []Label{LabelOver, LabelUnder}
	case MarketBTTS:
		return []Label{LabelYes, LabelNo}
	case MarketDoubleChance:
		return []Label{LabelHomeDraw, LabelHomeAway, LabelDrawAway}
	default:
		return nil
	}
}

// Valid reports whether m is a known market.
func (m Market) Valid() bool {
	return len(m.Labels()) > 0
}

// IsTotals reports whether m is an over/under goals market.
func (m Market) IsTotals() bool {
	return m == MarketOverUnder25 || m == MarketOverUnder35 || m == MarketOverUnder
}

// Line returns the goal line of a totals market. For MarketOverUnder the line
// comes from the pick, so the fallback is returned.
func (m Market) Line(fallback float64) float64 {
	switch m {
	case MarketOverUnder25:
		return 2.5
	case MarketOverUnder35:
		return 3.5
	default:
		return fallback
	}
}

// Accepts reports whether l is a valid outcome of m.
func (m Market) Accepts(l Label) bool {
	for _, v := range m.Labels() {
		if v == l {
			return true
		}
	}
	return false
}

// Priority returns the tie-break rank of l within m; lower wins.
func (m Market) Priority(l Label) int {
	for i, v := range m.Labels() {
		if v == l {
			return i
		}
	}
	return len(m.Labels())
}

// ParseMarket validates a market string.
func ParseMarket(s string) (Market, error) {
	m := Market(s)
	if !m.Valid() {
		return "", fmt.Errorf("unknown market %q", s)
	}
	return m, nil
}

// TotalsTiePolicy decides how a totals pick is graded when the goal total
// lands exactly on an integer line.
type TotalsTiePolicy string

const (
	TieAsUnder TotalsTiePolicy = "under"
	TieAsOver  TotalsTiePolicy = "over"
	TieAsVoid  TotalsTiePolicy = "void"
)

// Valid reports whether p is a known policy.
func (p TotalsTiePolicy) Valid() bool {
	return p == TieAsUnder || p == TieAsOver || p == TieAsVoid
}
