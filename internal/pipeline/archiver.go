package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// Archiver copies settled predictions and coupons older than the retention
// window to cold storage.
type Archiver struct {
	blobArchiver  domain.Archiver
	retentionDays int
	now           func() time.Time
	logger        *slog.Logger
}

// NewArchiver creates a new Archiver.
func NewArchiver(blobArchiver domain.Archiver, retentionDays int, logger *slog.Logger) *Archiver {
	if retentionDays <= 0 {
		retentionDays = 90
	}
	return &Archiver{
		blobArchiver:  blobArchiver,
		retentionDays: retentionDays,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "archiver")),
	}
}

// Run archives everything settled before now minus the retention window.
// A failure of one kind does not prevent the other from being archived.
func (a *Archiver) Run(ctx context.Context) error {
	cutoff := a.now().UTC().AddDate(0, 0, -a.retentionDays)
	a.logger.InfoContext(ctx, "starting archive run",
		slog.Time("cutoff", cutoff),
		slog.Int("retention_days", a.retentionDays),
	)

	var errs []error
	preds, err := a.blobArchiver.ArchivePredictions(ctx, cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("archiving predictions before %v: %w", cutoff, err))
	}
	coupons, err := a.blobArchiver.ArchiveCoupons(ctx, cutoff)
	if err != nil {
		errs = append(errs, fmt.Errorf("archiving coupons before %v: %w", cutoff, err))
	}

	a.logger.InfoContext(ctx, "archive run complete",
		slog.Int64("predictions_archived", preds),
		slog.Int64("coupons_archived", coupons),
	)
	return errors.Join(errs...)
}

// RunCron runs the archiver on a 5-field cron schedule until ctx is
// cancelled, e.g. "0 3 1 * *" for 03:00 UTC on the 1st of every month.
func (a *Archiver) RunCron(ctx context.Context, cronExpr string) error {
	return runCron(ctx, "archive", cronExpr, a.logger, a.Run)
}
