package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/domain"
	"github.com/alanyoungcy/consensusbot/internal/scoring"
)

// LeaderboardService serves ranked leaderboards and awards monthly prizes.
type LeaderboardService struct {
	entries domain.LeaderboardStore
	prizes  domain.PrizeStore
	audit   domain.AuditStore
	events  Publisher
	now     func() time.Time
	logger  *slog.Logger
}

// NewLeaderboardService creates a LeaderboardService. audit and events may be
// nil.
func NewLeaderboardService(entries domain.LeaderboardStore, prizes domain.PrizeStore, audit domain.AuditStore, events Publisher, logger *slog.Logger) *LeaderboardService {
	return &LeaderboardService{
		entries: entries,
		prizes:  prizes,
		audit:   audit,
		events:  events,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "leaderboard_service")),
	}
}

// Period maps the API query parameters to a period key: "alltime" (the
// default) or "monthly" with an optional month, defaulting to the current one.
func (s *LeaderboardService) Period(kind, month string) (string, error) {
	switch kind {
	case "", domain.PeriodAllTime:
		return domain.PeriodAllTime, nil
	case "monthly":
		if month == "" {
			return domain.MonthPeriod(s.now()), nil
		}
		p, err := domain.ParsePeriod(month)
		if err != nil || p == domain.PeriodAllTime {
			return "", fmt.Errorf("leaderboard_service: %w: month %q", domain.ErrInvalidInput, month)
		}
		return p, nil
	default:
		return "", fmt.Errorf("leaderboard_service: %w: period %q", domain.ErrInvalidInput, kind)
	}
}

// Leaderboard returns the ranked entries of a period, at most limit when
// limit is positive.
func (s *LeaderboardService) Leaderboard(ctx context.Context, period string, limit int) ([]domain.RankedEntry, error) {
	entries, err := s.entries.List(ctx, period)
	if err != nil {
		return nil, fmt.Errorf("leaderboard_service: list %s: %w", period, err)
	}
	ranked := scoring.Rank(entries)
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked, nil
}

// User returns a user's ranked entry in a period.
func (s *LeaderboardService) User(ctx context.Context, userID, period string) (domain.RankedEntry, error) {
	ranked, err := s.Leaderboard(ctx, period, 0)
	if err != nil {
		return domain.RankedEntry{}, err
	}
	for _, r := range ranked {
		if r.UserID == userID {
			return r, nil
		}
	}
	return domain.RankedEntry{}, fmt.Errorf("leaderboard_service: user %s in %s: %w", userID, period, domain.ErrNotFound)
}

// AwardMonthlyPrize records the leader of the month before now as that
// month's winner. It is idempotent per month; the returned bool is false when
// there was nobody to award or the month already had a winner.
func (s *LeaderboardService) AwardMonthlyPrize(ctx context.Context, now time.Time) (domain.MonthlyPrize, bool, error) {
	first := time.Date(now.UTC().Year(), now.UTC().Month(), 1, 0, 0, 0, 0, time.UTC)
	period := domain.MonthPeriod(first.AddDate(0, -1, 0))

	ranked, err := s.Leaderboard(ctx, period, 1)
	if err != nil {
		return domain.MonthlyPrize{}, false, err
	}
	if len(ranked) == 0 || ranked[0].TotalPoints <= 0 {
		s.logger.InfoContext(ctx, "no monthly prize winner", slog.String("period", period))
		return domain.MonthlyPrize{}, false, nil
	}

	prize := domain.MonthlyPrize{
		Period:    period,
		UserID:    ranked[0].UserID,
		Points:    ranked[0].TotalPoints,
		AwardedAt: now.UTC(),
	}
	awarded, err := s.prizes.Award(ctx, prize)
	if err != nil {
		return domain.MonthlyPrize{}, false, fmt.Errorf("leaderboard_service: award %s: %w", period, err)
	}
	if !awarded {
		s.logger.InfoContext(ctx, "monthly prize already awarded", slog.String("period", period))
		return prize, false, nil
	}

	if s.audit != nil {
		if err := s.audit.Log(ctx, "prize.awarded", map[string]any{
			"period":  period,
			"user_id": prize.UserID,
			"points":  prize.Points,
		}); err != nil {
			s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
		}
	}
	if s.events != nil {
		_ = s.events.Publish(ctx, domain.ChannelPrize, domain.Event{Type: domain.EventPrizeAwarded, Payload: prize})
	}
	s.logger.InfoContext(ctx, "monthly prize awarded",
		slog.String("period", period),
		slog.String("user_id", prize.UserID),
		slog.Float64("points", prize.Points),
	)
	return prize, true, nil
}

// Prizes lists every awarded monthly prize.
func (s *LeaderboardService) Prizes(ctx context.Context) ([]domain.MonthlyPrize, error) {
	ps, err := s.prizes.List(ctx)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("leaderboard_service: list prizes: %w", err)
	}
	return ps, nil
}
