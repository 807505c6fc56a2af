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

// PredictionStore implements domain.PredictionStore using PostgreSQL.
type PredictionStore struct {
	pool *pgxpool.Pool
}

// NewPredictionStore creates a new PredictionStore backed by the given connection pool.
func NewPredictionStore(pool *pgxpool.Pool) *PredictionStore {
	return &PredictionStore{pool: pool}
}

const predictionSelectCols = `id, fixture_id, market, label, confidence, raw_confidence,
	agreement, agents_total, agents_agreeing, weights, stake, version, created_at,
	is_settled, actual_outcome, was_correct, settled_at`

func scanPrediction(row pgx.Row) (domain.ConsensusPrediction, error) {
	var p domain.ConsensusPrediction
	var market, label, stake string
	var actual *string
	var weights []byte

	if err := row.Scan(
		&p.ID, &p.FixtureID, &market, &label, &p.Confidence, &p.RawConfidence,
		&p.Agreement, &p.AgentsTotal, &p.AgentsAgreeing, &weights, &stake, &p.Version, &p.CreatedAt,
		&p.IsSettled, &actual, &p.WasCorrect, &p.SettledAt,
	); err != nil {
		return domain.ConsensusPrediction{}, err
	}
	p.Market = domain.Market(market)
	p.Label = domain.Label(label)
	p.Stake = domain.StakeHint(stake)
	if actual != nil {
		p.ActualOutcome = domain.Label(*actual)
	}
	if len(weights) > 0 {
		if err := json.Unmarshal(weights, &p.Weights); err != nil {
			return domain.ConsensusPrediction{}, fmt.Errorf("unmarshal weights: %w", err)
		}
	}
	return p, nil
}

func scanPredictionRows(rows pgx.Rows) ([]domain.ConsensusPrediction, error) {
	defer rows.Close()
	var out []domain.ConsensusPrediction
	for rows.Next() {
		p, err := scanPrediction(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

const opinionSelectCols = `fixture_id, agent_id, market, label, confidence, created_at,
	is_settled, was_correct, settled_at`

func scanOpinionRows(rows pgx.Rows) ([]domain.AgentMarketOpinion, error) {
	defer rows.Close()
	var out []domain.AgentMarketOpinion
	for rows.Next() {
		var o domain.AgentMarketOpinion
		var agent, market, label string
		if err := rows.Scan(
			&o.FixtureID, &agent, &market, &label, &o.Confidence, &o.CreatedAt,
			&o.IsSettled, &o.WasCorrect, &o.SettledAt,
		); err != nil {
			return nil, err
		}
		o.AgentID = domain.AgentID(agent)
		o.Market = domain.Market(market)
		o.Label = domain.Label(label)
		out = append(out, o)
	}
	return out, rows.Err()
}

// SaveConsensus writes every prediction of fc and the opinions behind them in
// one transaction. An existing unsettled prediction is replaced and its
// version bumped; a settled one is never overwritten and its market is
// returned in skipped.
func (s *PredictionStore) SaveConsensus(ctx context.Context, fc domain.FixtureConsensus, opinions []domain.AgentMarketOpinion) ([]domain.ConsensusPrediction, []domain.Market, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("postgres: begin save consensus: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const upsertPrediction = `
		INSERT INTO consensus_predictions (
			fixture_id, market, label, confidence, raw_confidence, agreement,
			agents_total, agents_agreeing, weights, stake, version, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, 1, $11)
		ON CONFLICT (fixture_id, market) DO UPDATE SET
			label           = EXCLUDED.label,
			confidence      = EXCLUDED.confidence,
			raw_confidence  = EXCLUDED.raw_confidence,
			agreement       = EXCLUDED.agreement,
			agents_total    = EXCLUDED.agents_total,
			agents_agreeing = EXCLUDED.agents_agreeing,
			weights         = EXCLUDED.weights,
			stake           = EXCLUDED.stake,
			version         = consensus_predictions.version + 1,
			created_at      = EXCLUDED.created_at
		WHERE NOT consensus_predictions.is_settled
		RETURNING ` + predictionSelectCols

	var saved []domain.ConsensusPrediction
	var skipped []domain.Market
	for _, p := range fc.Predictions {
		weights, err := json.Marshal(p.Weights)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: marshal weights: %w", err)
		}
		row := tx.QueryRow(ctx, upsertPrediction,
			fc.FixtureID, string(p.Market), string(p.Label), p.Confidence, p.RawConfidence, p.Agreement,
			p.AgentsTotal, p.AgentsAgreeing, weights, string(p.Stake), p.CreatedAt,
		)
		stored, err := scanPrediction(row)
		if errors.Is(err, pgx.ErrNoRows) {
			skipped = append(skipped, p.Market)
			continue
		}
		if err != nil {
			return nil, nil, fmt.Errorf("postgres: upsert prediction %d/%s: %w", fc.FixtureID, p.Market, err)
		}
		saved = append(saved, stored)
	}

	if len(opinions) > 0 {
		batch := &pgx.Batch{}
		const upsertOpinion = `
			INSERT INTO agent_opinions (fixture_id, agent_id, market, label, confidence, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (agent_id, fixture_id, market) DO UPDATE SET
				label      = EXCLUDED.label,
				confidence = EXCLUDED.confidence,
				created_at = EXCLUDED.created_at
			WHERE NOT agent_opinions.is_settled`
		for _, o := range opinions {
			batch.Queue(upsertOpinion, fc.FixtureID, string(o.AgentID), string(o.Market), string(o.Label), o.Confidence, o.CreatedAt)
		}
		br := tx.SendBatch(ctx, batch)
		for range opinions {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				return nil, nil, fmt.Errorf("postgres: upsert opinions %d: %w", fc.FixtureID, err)
			}
		}
		if err := br.Close(); err != nil {
			return nil, nil, fmt.Errorf("postgres: close opinion batch: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, fmt.Errorf("postgres: commit save consensus: %w", err)
	}
	return saved, skipped, nil
}

// ListByFixture returns every stored prediction of a fixture.
func (s *PredictionStore) ListByFixture(ctx context.Context, fixtureID int64) ([]domain.ConsensusPrediction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+predictionSelectCols+` FROM consensus_predictions WHERE fixture_id = $1 ORDER BY market`,
		fixtureID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list predictions %d: %w", fixtureID, err)
	}
	preds, err := scanPredictionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan predictions %d: %w", fixtureID, err)
	}
	return preds, nil
}

// ListOpinions returns every stored agent opinion of a fixture.
func (s *PredictionStore) ListOpinions(ctx context.Context, fixtureID int64) ([]domain.AgentMarketOpinion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+opinionSelectCols+` FROM agent_opinions WHERE fixture_id = $1 ORDER BY agent_id, market`,
		fixtureID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list opinions %d: %w", fixtureID, err)
	}
	ops, err := scanOpinionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan opinions %d: %w", fixtureID, err)
	}
	return ops, nil
}

// ListSince returns predictions created at or after since.
func (s *PredictionStore) ListSince(ctx context.Context, since time.Time) ([]domain.ConsensusPrediction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+predictionSelectCols+` FROM consensus_predictions WHERE created_at >= $1 ORDER BY created_at`,
		since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list predictions since: %w", err)
	}
	preds, err := scanPredictionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan predictions since: %w", err)
	}
	return preds, nil
}

// ListSettledOpinionsSince returns opinions settled at or after since.
func (s *PredictionStore) ListSettledOpinionsSince(ctx context.Context, since time.Time) ([]domain.AgentMarketOpinion, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+opinionSelectCols+` FROM agent_opinions WHERE is_settled AND settled_at >= $1`,
		since)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled opinions: %w", err)
	}
	ops, err := scanOpinionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settled opinions: %w", err)
	}
	return ops, nil
}

// ListSettledBefore returns predictions settled before the cutoff, oldest first.
func (s *PredictionStore) ListSettledBefore(ctx context.Context, before time.Time) ([]domain.ConsensusPrediction, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+predictionSelectCols+` FROM consensus_predictions WHERE is_settled AND settled_at < $1 ORDER BY settled_at`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list settled predictions: %w", err)
	}
	preds, err := scanPredictionRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan settled predictions: %w", err)
	}
	return preds, nil
}

// ResetFixture clears the settlement fields of a fixture's predictions and
// opinions. It returns the number of predictions reset.
func (s *PredictionStore) ResetFixture(ctx context.Context, fixtureID int64) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin reset %d: %w", fixtureID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		UPDATE consensus_predictions
		SET is_settled = FALSE, actual_outcome = NULL, was_correct = NULL, settled_at = NULL
		WHERE fixture_id = $1 AND is_settled`, fixtureID)
	if err != nil {
		return 0, fmt.Errorf("postgres: reset predictions %d: %w", fixtureID, err)
	}
	if _, err := tx.Exec(ctx, `
		UPDATE agent_opinions
		SET is_settled = FALSE, was_correct = NULL, settled_at = NULL
		WHERE fixture_id = $1 AND is_settled`, fixtureID); err != nil {
		return 0, fmt.Errorf("postgres: reset opinions %d: %w", fixtureID, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit reset %d: %w", fixtureID, err)
	}
	return tag.RowsAffected(), nil
}
