package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// PrizeStore implements domain.PrizeStore using PostgreSQL.
type PrizeStore struct {
	pool *pgxpool.Pool
}

// NewPrizeStore creates a new PrizeStore backed by the given connection pool.
func NewPrizeStore(pool *pgxpool.Pool) *PrizeStore {
	return &PrizeStore{pool: pool}
}

// Award records the winner of a period. It returns false when the period was
// already awarded.
func (s *PrizeStore) Award(ctx context.Context, p domain.MonthlyPrize) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		INSERT INTO monthly_prizes (period, user_id, points, awarded_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (period) DO NOTHING`,
		p.Period, p.UserID, p.Points, p.AwardedAt)
	if err != nil {
		return false, fmt.Errorf("postgres: award prize %s: %w", p.Period, err)
	}
	return tag.RowsAffected() > 0, nil
}

// List returns every awarded prize, newest period first.
func (s *PrizeStore) List(ctx context.Context) ([]domain.MonthlyPrize, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT period, user_id, points, awarded_at FROM monthly_prizes ORDER BY period DESC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list prizes: %w", err)
	}
	defer rows.Close()

	var out []domain.MonthlyPrize
	for rows.Next() {
		var p domain.MonthlyPrize
		if err := rows.Scan(&p.Period, &p.UserID, &p.Points, &p.AwardedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan prize: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
