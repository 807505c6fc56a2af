// Package pipeline runs the scheduled background work: settlement sweeps,
// cold-storage archival and the monthly prize.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator runs every configured pipeline under one errgroup. Nil
// components are skipped.
type Orchestrator struct {
	sweeper     *Sweeper
	archiver    *Archiver
	prizes      *PrizeJob
	archiveCron string
	prizeCron   string
	logger      *slog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(sweeper *Sweeper, archiver *Archiver, prizes *PrizeJob, archiveCron, prizeCron string, logger *slog.Logger) *Orchestrator {
	if archiveCron == "" {
		archiveCron = "0 3 * * *"
	}
	if prizeCron == "" {
		prizeCron = "5 0 1 * *"
	}
	return &Orchestrator{
		sweeper:     sweeper,
		archiver:    archiver,
		prizes:      prizes,
		archiveCron: archiveCron,
		prizeCron:   prizeCron,
		logger:      logger.With(slog.String("component", "pipeline")),
	}
}

// Run blocks until ctx is cancelled or a pipeline fails with a non-context
// error, which cancels the others.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "pipeline orchestrator starting",
		slog.Bool("sweeper", o.sweeper != nil),
		slog.String("archive_cron", o.archiveCron),
		slog.String("prize_cron", o.prizeCron),
	)

	g, ctx := errgroup.WithContext(ctx)
	if o.sweeper != nil {
		g.Go(func() error { return o.stopped(ctx, "sweeper", o.sweeper.RunLoop(ctx)) })
	}
	if o.archiver != nil {
		g.Go(func() error { return o.stopped(ctx, "archiver", o.archiver.RunCron(ctx, o.archiveCron)) })
	}
	if o.prizes != nil {
		g.Go(func() error { return o.stopped(ctx, "monthly prize", o.prizes.RunCron(ctx, o.prizeCron)) })
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}
	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}

func (o *Orchestrator) stopped(ctx context.Context, name string, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return fmt.Errorf("%s: %w", name, err)
}
