package domain

import (
	"context"
	"time"
)

// Match-type flags used for weight overrides.
const (
	MatchTypeDerby      = "derby"
	MatchTypeHighLeague = "highLeague"
	MatchTypeLowLeague  = "lowLeague"
	MatchTypeHomeGame   = "homeGame"
	MatchTypeAwayGame   = "awayGame"
)

// TeamForm is a team's recent record as supplied by the data collaborator.
type TeamForm struct {
	Form      string  `json:"form"` // most recent first, e.g. "WWDLW"
	Over25Pct float64 `json:"over25_pct"`
	BTTSPct   float64 `json:"btts_pct"`
	AvgScored float64 `json:"avg_scored"`
	AvgConced float64 `json:"avg_conceded"`
}

// HeadToHead summarises previous meetings from the home side's perspective.
type HeadToHead struct {
	TotalMatches int     `json:"total_matches"`
	HomeWins     int     `json:"home_wins"`
	AwayWins     int     `json:"away_wins"`
	Draws        int     `json:"draws"`
	Over25Pct    float64 `json:"over25_pct"`
	BTTSPct      float64 `json:"btts_pct"`
}

// MarketOdds holds decimal odds; zero means unavailable.
type MarketOdds struct {
	Home    float64 `json:"home"`
	Draw    float64 `json:"draw"`
	Away    float64 `json:"away"`
	Over25  float64 `json:"over25"`
	Under25 float64 `json:"under25"`
	Over35  float64 `json:"over35"`
	Under35 float64 `json:"under35"`
	BTTSYes float64 `json:"btts_yes"`
	BTTSNo  float64 `json:"btts_no"`
}

// MatchFacts is the normalized fixture description consumed by the core.
type MatchFacts struct {
	FixtureID  int64      `json:"fixture_id"`
	HomeTeam   string     `json:"home_team"`
	AwayTeam   string     `json:"away_team"`
	League     string     `json:"league"`
	Kickoff    time.Time  `json:"kickoff"`
	MatchTypes []string   `json:"match_types"` // most specific first
	HomeForm   TeamForm   `json:"home_form"`
	AwayForm   TeamForm   `json:"away_form"`
	H2H        HeadToHead `json:"h2h"`
	Odds       MarketOdds `json:"odds"`
}

// PrimaryMatchType returns the first match-type flag, or "".
func (f MatchFacts) PrimaryMatchType() string {
	if len(f.MatchTypes) == 0 {
		return ""
	}
	return f.MatchTypes[0]
}

// FinalScore is the full-time result of a fixture.
type FinalScore struct {
	FixtureID int64  `json:"fixture_id"`
	HomeGoals int    `json:"home_goals"`
	AwayGoals int    `json:"away_goals"`
	State     string `json:"state,omitempty"`
}

// Valid reports whether the score is well formed.
func (s FinalScore) Valid() bool {
	return s.FixtureID > 0 && s.HomeGoals >= 0 && s.AwayGoals >= 0
}

// TotalGoals returns home + away goals.
func (s FinalScore) TotalGoals() int {
	return s.HomeGoals + s.AwayGoals
}

// finishedStates are provider states that carry a final score.
var finishedStates = map[string]bool{
	"FT":       true,
	"FT_PEN":   true,
	"AET":      true,
	"PEN":      true,
	"FINISHED": true,
	"ended":    true,
}

// finishedStateIDs are the numeric equivalents of finishedStates.
var finishedStateIDs = map[int]bool{5: true, 8: true, 11: true, 12: true}

// IsFinishedState reports whether a provider state name or id means the
// fixture is over.
func IsFinishedState(name string, id int) bool {
	return finishedStates[name] || finishedStateIDs[id]
}

// FactsProvider supplies match facts for a fixture.
type FactsProvider interface {
	MatchFacts(ctx context.Context, fixtureID int64) (MatchFacts, error)
}

// ScoreProvider supplies final scores. It returns an *UnresolvedFixtureError
// while the fixture is not finished.
type ScoreProvider interface {
	FinalScore(ctx context.Context, fixtureID int64) (FinalScore, error)
}
