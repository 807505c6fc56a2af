// Package notify delivers operator notifications (settlement summaries,
// monthly prizes, stale coupon warnings) to Telegram and Discord, filtered by
// event type.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// Sender is one notification channel.
type Sender interface {
	Send(ctx context.Context, event, title, message string) error
	Name() string
}

// Notifier fans a notification out to every sender. Only event types in the
// allow list are forwarded; an empty list allows everything.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	repeats *Dedup // nil delivers every repeat
	logger  *slog.Logger
}

// NewNotifier creates a Notifier.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// SuppressRepeats drops a notification identical to one delivered within
// window. A non-positive window leaves repeats enabled.
func (n *Notifier) SuppressRepeats(window time.Duration) *Notifier {
	if window > 0 {
		n.repeats = NewDedup(window)
	}
	return n
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool {
	return n != nil && len(n.senders) > 0
}

// Notify delivers to every sender when event passes the filter. One failing
// sender does not stop delivery to the others.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if !n.Enabled() {
		return nil
	}
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out", slog.String("event", event))
		return nil
	}
	key := event + "\x00" + title + "\x00" + message
	if n.repeats != nil && n.repeats.IsRepeat(key) {
		n.logger.DebugContext(ctx, "repeat notification suppressed", slog.String("event", event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, event, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		n.logger.DebugContext(ctx, "notification sent",
			slog.String("sender", s.Name()),
			slog.String("title", title),
		)
	}
	if err := errors.Join(errs...); err != nil {
		if n.repeats != nil && len(errs) == len(n.senders) {
			n.repeats.Forget(key)
		}
		return fmt.Errorf("notify: %w", err)
	}
	return nil
}
