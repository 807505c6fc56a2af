package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// SettlementStore implements domain.SettlementStore using PostgreSQL. Every
// write is guarded by a terminal-state predicate, so replaying a batch
// changes nothing.
type SettlementStore struct {
	pool *pgxpool.Pool
}

// NewSettlementStore creates a new SettlementStore backed by the given connection pool.
func NewSettlementStore(pool *pgxpool.Pool) *SettlementStore {
	return &SettlementStore{pool: pool}
}

// LoadUnit reads a fixture's predictions, opinions and every coupon with a
// pick on it.
func (s *SettlementStore) LoadUnit(ctx context.Context, fixtureID int64) (domain.SettlementUnit, error) {
	unit := domain.SettlementUnit{FixtureID: fixtureID}

	rows, err := s.pool.Query(ctx,
		`SELECT `+predictionSelectCols+` FROM consensus_predictions WHERE fixture_id = $1 ORDER BY market`,
		fixtureID)
	if err != nil {
		return unit, fmt.Errorf("postgres: load predictions %d: %w", fixtureID, err)
	}
	if unit.Predictions, err = scanPredictionRows(rows); err != nil {
		return unit, fmt.Errorf("postgres: scan predictions %d: %w", fixtureID, err)
	}

	rows, err = s.pool.Query(ctx,
		`SELECT `+opinionSelectCols+` FROM agent_opinions WHERE fixture_id = $1 ORDER BY agent_id, market`,
		fixtureID)
	if err != nil {
		return unit, fmt.Errorf("postgres: load opinions %d: %w", fixtureID, err)
	}
	if unit.Opinions, err = scanOpinionRows(rows); err != nil {
		return unit, fmt.Errorf("postgres: scan opinions %d: %w", fixtureID, err)
	}

	rows, err = s.pool.Query(ctx, `
		SELECT `+couponSelectCols+` FROM coupons
		WHERE id IN (SELECT coupon_id FROM coupon_picks WHERE fixture_id = $1)
		ORDER BY created_at, id`, fixtureID)
	if err != nil {
		return unit, fmt.Errorf("postgres: load coupons %d: %w", fixtureID, err)
	}
	if unit.Coupons, err = scanCouponRows(rows); err != nil {
		return unit, fmt.Errorf("postgres: scan coupons %d: %w", fixtureID, err)
	}
	if err := loadPicks(ctx, s.pool, unit.Coupons); err != nil {
		return unit, fmt.Errorf("postgres: load picks %d: %w", fixtureID, err)
	}
	return unit, nil
}

// ApplySettlement commits a batch in one transaction. Predictions, opinions
// and picks are only written while still unsettled, and a prediction only
// while it still carries the label it was graded on. Every coupon the batch
// touches is then locked and settled from the picks committed so far, so the
// last of two fixtures settling in parallel completes it. A coupon that
// transitions is folded into its owner's all-time and monthly leaderboard
// rows, which are locked for the update.
func (s *SettlementStore) ApplySettlement(ctx context.Context, batch domain.SettlementBatch, rules domain.SettlementRules) (domain.SettlementApplied, error) {
	var applied domain.SettlementApplied

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return applied, fmt.Errorf("postgres: begin settlement %d: %w", batch.FixtureID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	at := batch.SettledAt.UTC()

	for _, g := range batch.Predictions {
		tag, err := tx.Exec(ctx, `
			UPDATE consensus_predictions
			SET is_settled = TRUE, actual_outcome = $2, was_correct = $3, settled_at = $4
			WHERE id = $1 AND NOT is_settled AND label = $5`,
			g.PredictionID, string(g.Actual), g.Correct, at, string(g.Predicted))
		if err != nil {
			return applied, fmt.Errorf("postgres: settle prediction %d: %w", g.PredictionID, err)
		}
		applied.Predictions += int(tag.RowsAffected())
	}

	for _, g := range batch.Opinions {
		tag, err := tx.Exec(ctx, `
			UPDATE agent_opinions
			SET is_settled = TRUE, was_correct = $4, settled_at = $5
			WHERE agent_id = $1 AND fixture_id = $2 AND market = $3 AND NOT is_settled AND label = $6`,
			string(g.AgentID), g.FixtureID, string(g.Market), g.Correct, at, string(g.Predicted))
		if err != nil {
			return applied, fmt.Errorf("postgres: settle opinion %s/%s: %w", g.AgentID, g.Market, err)
		}
		applied.Opinions += int(tag.RowsAffected())
	}

	for _, g := range batch.Picks {
		tag, err := tx.Exec(ctx, `
			UPDATE coupon_picks SET result = $2, settled_at = $3
			WHERE id = $1 AND result = 'pending'`,
			g.PickID, string(g.Result), at)
		if err != nil {
			return applied, fmt.Errorf("postgres: settle pick %s: %w", g.PickID, err)
		}
		applied.Picks += int(tag.RowsAffected())
	}

	// Coupons are locked in id order so two fixtures sharing coupons cannot
	// deadlock.
	for _, id := range batch.CouponIDs() {
		coupon, ok, err := lockPendingCoupon(ctx, tx, id)
		if err != nil {
			return applied, fmt.Errorf("postgres: lock coupon %s: %w", id, err)
		}
		if !ok {
			continue
		}
		c, ok := rules.Coupon(coupon)
		if !ok {
			continue
		}
		tag, err := tx.Exec(ctx, `
			UPDATE coupons SET status = $2, points = $3, settled_at = $4
			WHERE id = $1 AND status = 'pending'`,
			c.CouponID, string(c.Status), c.Points, at)
		if err != nil {
			return applied, fmt.Errorf("postgres: settle coupon %s: %w", c.CouponID, err)
		}
		if tag.RowsAffected() == 0 {
			continue
		}
		applied.Coupons = append(applied.Coupons, c)

		for _, period := range []string{domain.PeriodAllTime, domain.MonthPeriod(at)} {
			entry, err := lockEntry(ctx, tx, c.UserID, period)
			if err != nil {
				return applied, fmt.Errorf("postgres: lock leaderboard %s/%s: %w", c.UserID, period, err)
			}
			next, changed := rules.Leaderboard(entry, c, at)
			if !changed {
				continue
			}
			if err := upsertEntry(ctx, tx, next); err != nil {
				return applied, fmt.Errorf("postgres: update leaderboard %s/%s: %w", c.UserID, period, err)
			}
			applied.Leaderboard = append(applied.Leaderboard, next)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.SettlementApplied{}, fmt.Errorf("postgres: commit settlement %d: %w", batch.FixtureID, err)
	}
	return applied, nil
}

// lockPendingCoupon locks a pending coupon and reads its picks inside tx. The
// picks reflect every settlement committed before the lock was granted.
func lockPendingCoupon(ctx context.Context, tx pgx.Tx, id string) (domain.Coupon, bool, error) {
	rows, err := tx.Query(ctx,
		`SELECT `+couponSelectCols+` FROM coupons WHERE id = $1 AND status = 'pending' FOR UPDATE`, id)
	if err != nil {
		return domain.Coupon{}, false, err
	}
	cs, err := scanCouponRows(rows)
	if err != nil || len(cs) == 0 {
		return domain.Coupon{}, false, err
	}
	if err := loadPicks(ctx, tx, cs); err != nil {
		return domain.Coupon{}, false, err
	}
	return cs[0], true, nil
}

const entrySelectCols = `user_id, period, total_points, total_coupons, won_coupons,
	current_streak, best_streak, points_at`

func scanEntry(row pgx.Row) (domain.LeaderboardEntry, error) {
	var e domain.LeaderboardEntry
	err := row.Scan(&e.UserID, &e.Period, &e.TotalPoints, &e.TotalCoupons, &e.WonCoupons,
		&e.CurrentStreak, &e.BestStreak, &e.PointsAt)
	return e, err
}

// lockEntry returns the entry under a row lock, or a zero entry for a user's
// first settlement in the period.
func lockEntry(ctx context.Context, tx pgx.Tx, userID, period string) (domain.LeaderboardEntry, error) {
	e, err := scanEntry(tx.QueryRow(ctx,
		`SELECT `+entrySelectCols+` FROM leaderboard_entries WHERE user_id = $1 AND period = $2 FOR UPDATE`,
		userID, period))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.LeaderboardEntry{UserID: userID, Period: period}, nil
	}
	return e, err
}

func upsertEntry(ctx context.Context, tx pgx.Tx, e domain.LeaderboardEntry) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO leaderboard_entries (
			user_id, period, total_points, total_coupons, won_coupons,
			current_streak, best_streak, points_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (user_id, period) DO UPDATE SET
			total_points   = EXCLUDED.total_points,
			total_coupons  = EXCLUDED.total_coupons,
			won_coupons    = EXCLUDED.won_coupons,
			current_streak = EXCLUDED.current_streak,
			best_streak    = EXCLUDED.best_streak,
			points_at      = EXCLUDED.points_at,
			updated_at     = NOW()`,
		e.UserID, e.Period, e.TotalPoints, e.TotalCoupons, e.WonCoupons,
		e.CurrentStreak, e.BestStreak, e.PointsAt)
	return err
}

// ListSettleable returns fixtures that kicked off before cutoff and still have
// unsettled predictions or pending picks. A pending coupon whose picks are all
// terminal lists its first fixture, so settling that fixture again completes
// the coupon.
func (s *SettlementStore) ListSettleable(ctx context.Context, cutoff time.Time, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.pool.Query(ctx, `
		SELECT fixture_id FROM (
			SELECT p.fixture_id
			FROM consensus_predictions p
			JOIN fixtures f ON f.id = p.fixture_id
			WHERE NOT p.is_settled AND f.kickoff < $1
			UNION
			SELECT fixture_id FROM coupon_picks
			WHERE result = 'pending' AND kickoff < $1
			UNION
			SELECT MIN(cp.fixture_id)
			FROM coupons c
			JOIN coupon_picks cp ON cp.coupon_id = c.id
			WHERE c.status = 'pending'
			GROUP BY c.id
			HAVING bool_and(cp.result <> 'pending')
		) due
		ORDER BY fixture_id
		LIMIT $2`, cutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settleable: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settleable: %w", err)
	}
	return ids, nil
}
