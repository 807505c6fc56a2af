// Package sportmonks is a client for the Sportmonks football API v3. It
// supplies normalized match facts and final scores.
package sportmonks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

const defaultBaseURL = "https://api.sportmonks.com/v3/football"

// Odds market ids.
const (
	marketFulltimeResult = 1
	marketBTTS           = 14
	marketGoalsOverUnder = 80
)

// Config configures the client.
type Config struct {
	BaseURL     string
	APIKey      string
	RateLimit   float64 // requests per second, 0 means unlimited
	Timeout     time.Duration
	FormMatches int
	// HighLeagues marks fixtures in these leagues as highLeague, every other
	// league as lowLeague. Empty disables both flags.
	HighLeagues []int64
	// Derbies lists team id pairs whose meetings are flagged as derbies.
	Derbies [][2]int64
}

// Client talks to the Sportmonks REST API.
type Client struct {
	cfg        Config
	limiter    *rate.Limiter
	httpClient *http.Client
}

// NewClient creates a new Sportmonks client.
func NewClient(cfg Config) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	cfg.APIKey = strings.TrimSpace(cfg.APIKey)
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.FormMatches <= 0 {
		cfg.FormMatches = 5
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	return &Client{
		cfg:        cfg,
		limiter:    rate.NewLimiter(limit, 1),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// Fixture fetches one fixture with the given includes.
func (c *Client) Fixture(ctx context.Context, fixtureID int64, include ...string) (Fixture, error) {
	var out envelope[Fixture]
	if err := c.get(ctx, fmt.Sprintf("/fixtures/%d", fixtureID), include, &out); err != nil {
		return Fixture{}, fmt.Errorf("sportmonks: fixture %d: %w", fixtureID, err)
	}
	return out.Data, nil
}

// FinalScore returns the full-time score of a finished fixture, or an
// *UnresolvedFixtureError while it is still being played or not started.
func (c *Client) FinalScore(ctx context.Context, fixtureID int64) (domain.FinalScore, error) {
	f, err := c.Fixture(ctx, fixtureID, "state", "scores")
	if err != nil {
		return domain.FinalScore{}, err
	}
	state := f.State.Label()
	if !domain.IsFinishedState(state, f.StateID) && (f.State == nil || f.State.ShortName != "FT") {
		return domain.FinalScore{}, &domain.UnresolvedFixtureError{
			FixtureID: fixtureID,
			Reason:    fmt.Sprintf("not finished (state %q, id %d)", state, f.StateID),
		}
	}
	home, away := goals(f.Scores)
	if state == "" {
		state = "FT"
	}
	return domain.FinalScore{FixtureID: fixtureID, HomeGoals: home, AwayGoals: away, State: state}, nil
}

// goals reads the CURRENT score entries, falling back to the highest
// 2ND_HALF or FULLTIME entries when no current score is present.
func goals(scores []Score) (home, away int) {
	for _, s := range scores {
		if s.Description != "CURRENT" {
			continue
		}
		switch s.Score.Participant {
		case "home":
			home = s.Score.Goals
		case "away":
			away = s.Score.Goals
		}
	}
	if home != 0 || away != 0 {
		return home, away
	}
	for _, s := range scores {
		if s.Description != "2ND_HALF" && s.Description != "FULLTIME" {
			continue
		}
		switch {
		case s.Score.Participant == "home" && s.Score.Goals > home:
			home = s.Score.Goals
		case s.Score.Participant == "away" && s.Score.Goals > away:
			away = s.Score.Goals
		}
	}
	return home, away
}

// MatchFacts builds the normalized facts for an upcoming fixture: teams,
// league, odds, recent form of both sides and the head-to-head record.
func (c *Client) MatchFacts(ctx context.Context, fixtureID int64) (domain.MatchFacts, error) {
	f, err := c.Fixture(ctx, fixtureID, "participants", "league", "odds")
	if err != nil {
		return domain.MatchFacts{}, err
	}
	home, away, ok := sides(f.Participants)
	if !ok {
		return domain.MatchFacts{}, fmt.Errorf("sportmonks: fixture %d: missing participants", fixtureID)
	}

	facts := domain.MatchFacts{
		FixtureID:  fixtureID,
		HomeTeam:   home.Name,
		AwayTeam:   away.Name,
		MatchTypes: c.matchTypes(f.LeagueID, home.ID, away.ID),
		Odds:       parseOdds(f.Odds),
	}
	if f.League != nil {
		facts.League = f.League.Name
	}
	if f.StartingAtTimestamp > 0 {
		facts.Kickoff = time.Unix(f.StartingAtTimestamp, 0).UTC()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		form, err := c.teamForm(gctx, home.ID)
		facts.HomeForm = form
		return err
	})
	g.Go(func() error {
		form, err := c.teamForm(gctx, away.ID)
		facts.AwayForm = form
		return err
	})
	g.Go(func() error {
		h2h, err := c.headToHead(gctx, home.ID, away.ID)
		facts.H2H = h2h
		return err
	})
	if err := g.Wait(); err != nil {
		return domain.MatchFacts{}, fmt.Errorf("sportmonks: facts for fixture %d: %w", fixtureID, err)
	}
	return facts, nil
}

func sides(ps []Participant) (home, away Participant, ok bool) {
	var gotHome, gotAway bool
	for _, p := range ps {
		switch p.Meta.Location {
		case "home":
			home, gotHome = p, true
		case "away":
			away, gotAway = p, true
		}
	}
	return home, away, gotHome && gotAway
}

func (c *Client) matchTypes(leagueID, homeID, awayID int64) []string {
	var types []string
	for _, d := range c.cfg.Derbies {
		if (d[0] == homeID && d[1] == awayID) || (d[0] == awayID && d[1] == homeID) {
			types = append(types, domain.MatchTypeDerby)
			break
		}
	}
	if len(c.cfg.HighLeagues) > 0 {
		flag := domain.MatchTypeLowLeague
		for _, id := range c.cfg.HighLeagues {
			if id == leagueID {
				flag = domain.MatchTypeHighLeague
				break
			}
		}
		types = append(types, flag)
	}
	return types
}

// parseOdds keeps the first price seen for every outcome.
func parseOdds(odds []Odd) domain.MarketOdds {
	var out domain.MarketOdds
	set := func(dst *float64, v float64) {
		if *dst == 0 && v > 1 {
			*dst = v
		}
	}
	for _, o := range odds {
		label := strings.ToLower(strings.TrimSpace(o.Label))
		v := o.Value.Float()
		switch o.MarketID {
		case marketFulltimeResult:
			switch label {
			case "home", "1":
				set(&out.Home, v)
			case "draw", "x":
				set(&out.Draw, v)
			case "away", "2":
				set(&out.Away, v)
			}
		case marketGoalsOverUnder:
			total := strings.TrimSpace(string(o.Total))
			if total == "" {
				total = strings.TrimSpace(o.Name)
			}
			switch {
			case total == "2.5" && label == "over":
				set(&out.Over25, v)
			case total == "2.5" && label == "under":
				set(&out.Under25, v)
			case total == "3.5" && label == "over":
				set(&out.Over35, v)
			case total == "3.5" && label == "under":
				set(&out.Under35, v)
			}
		case marketBTTS:
			switch label {
			case "yes":
				set(&out.BTTSYes, v)
			case "no":
				set(&out.BTTSNo, v)
			}
		}
	}
	return out
}

// result is one finished fixture seen from a team's side.
type result struct {
	at       int64
	scored   int
	conceded int
	opponent int64
}

// teamResults extracts the finished fixtures of teamID, most recent first.
func teamResults(teamID int64, fixtures []Fixture) []result {
	out := make([]result, 0, len(fixtures))
	for _, f := range fixtures {
		if !domain.IsFinishedState(f.State.Label(), f.StateID) {
			continue
		}
		home, away, ok := sides(f.Participants)
		if !ok {
			continue
		}
		hg, ag := goals(f.Scores)
		switch teamID {
		case home.ID:
			out = append(out, result{at: f.StartingAtTimestamp, scored: hg, conceded: ag, opponent: away.ID})
		case away.ID:
			out = append(out, result{at: f.StartingAtTimestamp, scored: ag, conceded: hg, opponent: home.ID})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].at > out[j].at })
	return out
}

func (c *Client) teamForm(ctx context.Context, teamID int64) (domain.TeamForm, error) {
	var out envelope[Team]
	path := fmt.Sprintf("/teams/%d", teamID)
	if err := c.get(ctx, path, []string{"latest.participants", "latest.scores", "latest.state"}, &out); err != nil {
		return domain.TeamForm{}, fmt.Errorf("team %d: %w", teamID, err)
	}
	results := teamResults(teamID, out.Data.Latest)
	if len(results) > c.cfg.FormMatches {
		results = results[:c.cfg.FormMatches]
	}
	return summarizeForm(results), nil
}

func summarizeForm(results []result) domain.TeamForm {
	if len(results) == 0 {
		return domain.TeamForm{}
	}
	var b strings.Builder
	var over, btts, scored, conceded int
	for _, r := range results {
		switch {
		case r.scored > r.conceded:
			b.WriteByte('W')
		case r.scored < r.conceded:
			b.WriteByte('L')
		default:
			b.WriteByte('D')
		}
		if r.scored+r.conceded > 2 {
			over++
		}
		if r.scored > 0 && r.conceded > 0 {
			btts++
		}
		scored += r.scored
		conceded += r.conceded
	}
	n := float64(len(results))
	return domain.TeamForm{
		Form:      b.String(),
		Over25Pct: round1(float64(over) / n * 100),
		BTTSPct:   round1(float64(btts) / n * 100),
		AvgScored: round2(float64(scored) / n),
		AvgConced: round2(float64(conceded) / n),
	}
}

func (c *Client) headToHead(ctx context.Context, homeID, awayID int64) (domain.HeadToHead, error) {
	var out envelope[[]Fixture]
	path := fmt.Sprintf("/fixtures/head-to-head/%d/%d", homeID, awayID)
	if err := c.get(ctx, path, []string{"participants", "scores", "state"}, &out); err != nil {
		return domain.HeadToHead{}, fmt.Errorf("head to head %d-%d: %w", homeID, awayID, err)
	}
	var h domain.HeadToHead
	var over, btts int
	for _, r := range teamResults(homeID, out.Data) {
		if r.opponent != awayID {
			continue
		}
		h.TotalMatches++
		switch {
		case r.scored > r.conceded:
			h.HomeWins++
		case r.scored < r.conceded:
			h.AwayWins++
		default:
			h.Draws++
		}
		if r.scored+r.conceded > 2 {
			over++
		}
		if r.scored > 0 && r.conceded > 0 {
			btts++
		}
	}
	if h.TotalMatches > 0 {
		h.Over25Pct = round1(float64(over) / float64(h.TotalMatches) * 100)
		h.BTTSPct = round1(float64(btts) / float64(h.TotalMatches) * 100)
	}
	return h, nil
}

func (c *Client) get(ctx context.Context, path string, include []string, dst any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit: %w", err)
	}

	q := url.Values{}
	q.Set("api_token", c.cfg.APIKey)
	if len(include) > 0 {
		q.Set("include", strings.Join(include, ";"))
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.cfg.BaseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return domain.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests:
		return domain.ErrRateLimited
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func round1(v float64) float64 { return float64(int64(v*10+0.5)) / 10 }

func round2(v float64) float64 { return float64(int64(v*100+0.5)) / 100 }
