package pipeline

import (
	"context"
	"log/slog"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// PrizeAwarder records the previous month's leaderboard winner.
type PrizeAwarder interface {
	AwardMonthlyPrize(ctx context.Context, now time.Time) (domain.MonthlyPrize, bool, error)
}

// PrizeJob awards the monthly prize on a schedule.
type PrizeJob struct {
	awarder PrizeAwarder
	now     func() time.Time
	logger  *slog.Logger
}

// NewPrizeJob creates a PrizeJob.
func NewPrizeJob(awarder PrizeAwarder, logger *slog.Logger) *PrizeJob {
	return &PrizeJob{
		awarder: awarder,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "prize_job")),
	}
}

// Run awards the prize of the month before now. It is safe to repeat: a
// month that already has a winner is left alone.
func (j *PrizeJob) Run(ctx context.Context) error {
	prize, awarded, err := j.awarder.AwardMonthlyPrize(ctx, j.now().UTC())
	if err != nil {
		return err
	}
	if !awarded {
		j.logger.InfoContext(ctx, "no monthly prize awarded")
		return nil
	}
	j.logger.InfoContext(ctx, "monthly prize awarded",
		slog.String("period", prize.Period),
		slog.String("user_id", prize.UserID),
		slog.Float64("points", prize.Points),
	)
	return nil
}

// RunCron runs the job on a cron schedule, by default "5 0 1 * *".
func (j *PrizeJob) RunCron(ctx context.Context, cronExpr string) error {
	return runCron(ctx, "monthly_prize", cronExpr, j.logger, j.Run)
}
