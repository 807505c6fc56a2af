package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// FixtureStore implements domain.FixtureStore using PostgreSQL. The full
// facts snapshot is kept as JSONB; kickoff is a column so sweeps can filter.
type FixtureStore struct {
	pool *pgxpool.Pool
}

// NewFixtureStore creates a new FixtureStore backed by the given connection pool.
func NewFixtureStore(pool *pgxpool.Pool) *FixtureStore {
	return &FixtureStore{pool: pool}
}

// Upsert stores the latest facts of a fixture.
func (s *FixtureStore) Upsert(ctx context.Context, f domain.MatchFacts) error {
	facts, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("postgres: marshal facts %d: %w", f.FixtureID, err)
	}
	var kickoff *time.Time
	if !f.Kickoff.IsZero() {
		k := f.Kickoff.UTC()
		kickoff = &k
	}

	const query = `
		INSERT INTO fixtures (id, home_team, away_team, league, kickoff, facts, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, NOW())
		ON CONFLICT (id) DO UPDATE SET
			home_team  = EXCLUDED.home_team,
			away_team  = EXCLUDED.away_team,
			league     = EXCLUDED.league,
			kickoff    = COALESCE(EXCLUDED.kickoff, fixtures.kickoff),
			facts      = EXCLUDED.facts,
			updated_at = NOW()`
	if _, err := s.pool.Exec(ctx, query, f.FixtureID, f.HomeTeam, f.AwayTeam, f.League, kickoff, facts); err != nil {
		return fmt.Errorf("postgres: upsert fixture %d: %w", f.FixtureID, err)
	}
	return nil
}

// Get returns the stored facts of a fixture.
func (s *FixtureStore) Get(ctx context.Context, fixtureID int64) (domain.MatchFacts, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx, `SELECT facts FROM fixtures WHERE id = $1`, fixtureID).Scan(&raw)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.MatchFacts{}, domain.ErrNotFound
		}
		return domain.MatchFacts{}, fmt.Errorf("postgres: get fixture %d: %w", fixtureID, err)
	}
	var f domain.MatchFacts
	if err := json.Unmarshal(raw, &f); err != nil {
		return domain.MatchFacts{}, fmt.Errorf("postgres: unmarshal facts %d: %w", fixtureID, err)
	}
	return f, nil
}
