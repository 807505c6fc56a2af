// Package events fans domain events out to the Redis bus, the durable event
// stream and operator notifications.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// Notifier is the subset of notify.Notifier used here.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Publisher publishes events. Bus and notifier are both optional.
type Publisher struct {
	bus      domain.SignalBus
	notifier Notifier
	now      func() time.Time
	logger   *slog.Logger
}

// NewPublisher creates a Publisher.
func NewPublisher(bus domain.SignalBus, notifier Notifier, logger *slog.Logger) *Publisher {
	return &Publisher{
		bus:      bus,
		notifier: notifier,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "events")),
	}
}

// Publish stamps ev, sends it on channel and appends it to the event stream.
// Failures are logged and returned joined; publishing never rolls back the
// state change that produced the event.
func (p *Publisher) Publish(ctx context.Context, channel string, ev domain.Event) error {
	if p == nil {
		return nil
	}
	if ev.ID == "" {
		ev.ID = uuid.New().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = p.now().UTC()
	}

	var errs []error
	if p.bus != nil {
		payload, err := json.Marshal(ev)
		if err != nil {
			return fmt.Errorf("events: marshal %s: %w", ev.Type, err)
		}
		if err := p.bus.Publish(ctx, channel, payload); err != nil {
			errs = append(errs, fmt.Errorf("events: publish %s: %w", ev.Type, err))
		}
		if err := p.bus.StreamAppend(ctx, domain.StreamEvents, payload); err != nil {
			errs = append(errs, fmt.Errorf("events: stream %s: %w", ev.Type, err))
		}
	}
	if p.notifier != nil {
		if title, msg, ok := Summarize(ev); ok {
			if err := p.notifier.Notify(ctx, ev.Type, title, msg); err != nil {
				errs = append(errs, fmt.Errorf("events: notify %s: %w", ev.Type, err))
			}
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		p.logger.WarnContext(ctx, "event delivery incomplete",
			slog.String("type", ev.Type),
			slog.String("error", err.Error()),
		)
	}
	return err
}

// Summarize renders a human readable title and message for the event types
// operators are notified about.
func Summarize(ev domain.Event) (title, message string, ok bool) {
	switch v := ev.Payload.(type) {
	case domain.FixtureConsensus:
		if v.BestBet == nil {
			return fmt.Sprintf("Consensus %d", v.FixtureID),
				fmt.Sprintf("%d markets, no best bet (insufficient signal)", len(v.Predictions)), true
		}
		return fmt.Sprintf("Consensus %d", v.FixtureID),
			fmt.Sprintf("Best bet %s %s at %.1f%% (%s stake)", v.BestBet.Market, v.BestBet.Label, v.BestBet.Confidence, v.BestBet.Stake), true
	case domain.SettlementResult:
		correct := 0
		for _, p := range v.Predictions {
			if p.State() == domain.PredictionCorrect {
				correct++
			}
		}
		return fmt.Sprintf("Fixture %d settled %d-%d", v.FixtureID, v.Score.HomeGoals, v.Score.AwayGoals),
			fmt.Sprintf("%d/%d predictions correct, %d coupons settled, %d still pending",
				correct, len(v.Predictions), len(v.Applied.Coupons), v.PendingCoupons), true
	case domain.CouponSettlement:
		return fmt.Sprintf("Coupon %s %s", v.CouponID, v.Status),
			fmt.Sprintf("User %s: %d picks at %.2f, %.1f points", v.UserID, v.PickCount, v.TotalOdds, v.Points), true
	case domain.MonthlyPrize:
		return fmt.Sprintf("Monthly prize %s", v.Period),
			fmt.Sprintf("Winner %s with %.1f points", v.UserID, v.Points), true
	case StaleCoupons:
		return "Stale coupons",
			fmt.Sprintf("%d coupons pending more than %s after their last kickoff", v.Count, v.Grace), true
	default:
		return "", "", false
	}
}

// StaleCoupons is the payload of a stale coupon warning.
type StaleCoupons struct {
	Count     int           `json:"count"`
	Grace     time.Duration `json:"grace"`
	CouponIDs []string      `json:"coupon_ids"`
}
