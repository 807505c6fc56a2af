package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// CouponStore implements domain.CouponStore using PostgreSQL.
type CouponStore struct {
	pool *pgxpool.Pool
}

// NewCouponStore creates a new CouponStore backed by the given connection pool.
func NewCouponStore(pool *pgxpool.Pool) *CouponStore {
	return &CouponStore{pool: pool}
}

const couponSelectCols = `id, user_id, total_odds, potential_points, status, points, created_at, settled_at`

const pickSelectCols = `id, coupon_id, position, fixture_id, market, selection, line, odds,
	kickoff, result, settled_at`

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func scanCouponRows(rows pgx.Rows) ([]domain.Coupon, error) {
	defer rows.Close()
	var out []domain.Coupon
	for rows.Next() {
		var c domain.Coupon
		var status string
		if err := rows.Scan(&c.ID, &c.UserID, &c.TotalOdds, &c.PotentialPoints, &status, &c.Points, &c.CreatedAt, &c.SettledAt); err != nil {
			return nil, err
		}
		c.Status = domain.CouponStatus(status)
		out = append(out, c)
	}
	return out, rows.Err()
}

// loadPicks attaches the picks of every coupon in cs, ordered by position.
func loadPicks(ctx context.Context, q querier, cs []domain.Coupon) error {
	if len(cs) == 0 {
		return nil
	}
	ids := make([]string, len(cs))
	index := make(map[string]int, len(cs))
	for i, c := range cs {
		ids[i] = c.ID
		index[c.ID] = i
	}

	rows, err := q.Query(ctx,
		`SELECT `+pickSelectCols+` FROM coupon_picks WHERE coupon_id = ANY($1) ORDER BY coupon_id, position`,
		ids)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var p domain.Pick
		var market, selection, result string
		if err := rows.Scan(
			&p.ID, &p.CouponID, &p.Position, &p.FixtureID, &market, &selection, &p.Line, &p.Odds,
			&p.Kickoff, &result, &p.SettledAt,
		); err != nil {
			return err
		}
		p.Market = domain.Market(market)
		p.Selection = domain.Label(selection)
		p.Result = domain.PickResult(result)
		i := index[p.CouponID]
		cs[i].Picks = append(cs[i].Picks, p)
	}
	return rows.Err()
}

// Create inserts a coupon with all its picks in one transaction.
func (s *CouponStore) Create(ctx context.Context, c domain.Coupon) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin create coupon: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		INSERT INTO coupons (id, user_id, total_odds, potential_points, status, points, created_at)
		VALUES ($1, $2, $3, $4, $5, 0, $6)`,
		c.ID, c.UserID, c.TotalOdds, c.PotentialPoints, string(c.Status), c.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("postgres: insert coupon %s: %w", c.ID, err)
	}

	batch := &pgx.Batch{}
	for _, p := range c.Picks {
		batch.Queue(`
			INSERT INTO coupon_picks (id, coupon_id, position, fixture_id, market, selection, line, odds, kickoff, result)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			p.ID, c.ID, p.Position, p.FixtureID, string(p.Market), string(p.Selection), p.Line, p.Odds, p.Kickoff, string(p.Result),
		)
	}
	br := tx.SendBatch(ctx, batch)
	for i := range c.Picks {
		if _, err := br.Exec(); err != nil {
			_ = br.Close()
			return fmt.Errorf("postgres: insert pick %d of coupon %s: %w", i, c.ID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("postgres: close pick batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit coupon %s: %w", c.ID, err)
	}
	return nil
}

// GetByID returns a coupon with its picks.
func (s *CouponStore) GetByID(ctx context.Context, id string) (domain.Coupon, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+couponSelectCols+` FROM coupons WHERE id = $1`, id)
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("postgres: get coupon %s: %w", id, err)
	}
	cs, err := scanCouponRows(rows)
	if err != nil {
		return domain.Coupon{}, fmt.Errorf("postgres: scan coupon %s: %w", id, err)
	}
	if len(cs) == 0 {
		return domain.Coupon{}, domain.ErrNotFound
	}
	if err := loadPicks(ctx, s.pool, cs); err != nil {
		return domain.Coupon{}, fmt.Errorf("postgres: load picks %s: %w", id, err)
	}
	return cs[0], nil
}

// ListByUser returns a user's coupons, newest first.
func (s *CouponStore) ListByUser(ctx context.Context, userID string, opts domain.ListOpts) ([]domain.Coupon, error) {
	query, args := withListOpts(`SELECT `+couponSelectCols+` FROM coupons WHERE user_id = $1`,
		[]any{userID}, "created_at", opts)
	return s.list(ctx, "list user coupons", query, args...)
}

// ListStale returns pending coupons whose latest pick kicked off before cutoff.
func (s *CouponStore) ListStale(ctx context.Context, cutoff time.Time) ([]domain.Coupon, error) {
	const query = `
		SELECT ` + couponSelectCols + ` FROM coupons c
		WHERE c.status = 'pending'
		  AND (SELECT MAX(kickoff) FROM coupon_picks p WHERE p.coupon_id = c.id) < $1
		ORDER BY c.created_at`
	return s.list(ctx, "list stale coupons", query, cutoff)
}

// ListSettledBefore returns coupons settled before the cutoff, oldest first.
func (s *CouponStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.Coupon, error) {
	const query = `SELECT ` + couponSelectCols + ` FROM coupons
		WHERE status <> 'pending' AND settled_at < $1 ORDER BY settled_at`
	return s.list(ctx, "list settled coupons", query, before)
}

func (s *CouponStore) list(ctx context.Context, action, query string, args ...any) ([]domain.Coupon, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", action, err)
	}
	cs, err := scanCouponRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: scan: %w", action, err)
	}
	if err := loadPicks(ctx, s.pool, cs); err != nil {
		return nil, fmt.Errorf("postgres: %s: picks: %w", action, err)
	}
	return cs, nil
}
