package service

import (
	"context"
	"fmt"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/stats"
)

// StatsService reports prediction and agent accuracy.
type StatsService struct {
	predictions domain.PredictionStore
	now         func() time.Time
}

func NewStatsService(predictions domain.PredictionStore) *StatsService {
	return &StatsService{predictions: predictions, now: time.Now}
}

// Performance summarizes the predictions of the last days days (1..365).
func (s *StatsService) Performance(ctx context.Context, days int) (stats.PerformanceReport, error) {
	if days <= 0 || days > 365 {
		return stats.PerformanceReport{}, fmt.Errorf("stats_service: %w: days must be 1..365, got %d", domain.ErrInvalidInput, days)
	}
	since := s.now().UTC().AddDate(0, 0, -days)
	preds, err := s.predictions.ListSince(ctx, since)
	if err != nil {
		return stats.PerformanceReport{}, fmt.Errorf("stats_service: list predictions: %w", err)
	}
	return stats.Performance(preds, since, days), nil
}

// Agents reports per-agent accuracy over opinions settled in the last days
// days.
func (s *StatsService) Agents(ctx context.Context, days int) ([]stats.AgentReport, error) {
	if days <= 0 || days > 365 {
		return nil, fmt.Errorf("stats_service: %w: days must be 1..365, got %d", domain.ErrInvalidInput, days)
	}
	ops, err := s.predictions.ListSettledOpinionsSince(ctx, s.now().UTC().AddDate(0, 0, -days))
	if err != nil {
		return nil, fmt.Errorf("stats_service: list opinions: %w", err)
	}
	return stats.Agents(ops), nil
}
