package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// LeaderboardStore implements domain.LeaderboardStore using PostgreSQL.
// Entries are only written by SettlementStore.ApplySettlement.
type LeaderboardStore struct {
	pool *pgxpool.Pool
}

// NewLeaderboardStore creates a new LeaderboardStore backed by the given connection pool.
func NewLeaderboardStore(pool *pgxpool.Pool) *LeaderboardStore {
	return &LeaderboardStore{pool: pool}
}

// List returns every entry of a period in rank order.
func (s *LeaderboardStore) List(ctx context.Context, period string) ([]domain.LeaderboardEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+entrySelectCols+` FROM leaderboard_entries
		WHERE period = $1
		ORDER BY total_points DESC, points_at DESC, user_id ASC`, period)
	if err != nil {
		return nil, fmt.Errorf("postgres: list leaderboard %s: %w", period, err)
	}
	defer rows.Close()

	var out []domain.LeaderboardEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan leaderboard %s: %w", period, err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Get returns a single user's entry for a period.
func (s *LeaderboardStore) Get(ctx context.Context, userID, period string) (domain.LeaderboardEntry, error) {
	e, err := scanEntry(s.pool.QueryRow(ctx,
		`SELECT `+entrySelectCols+` FROM leaderboard_entries WHERE user_id = $1 AND period = $2`,
		userID, period))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.LeaderboardEntry{}, domain.ErrNotFound
		}
		return domain.LeaderboardEntry{}, fmt.Errorf("postgres: get leaderboard %s/%s: %w", userID, period, err)
	}
	return e, nil
}
