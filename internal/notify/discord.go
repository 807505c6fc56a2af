package notify

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/alanyoungcy/consensusbot/internal/domain"
)

// DiscordSender delivers notifications through a Discord webhook as embeds.
type DiscordSender struct {
	webhookURL string
	client     *http.Client
	now        func() time.Time
}

// NewDiscordSender creates a DiscordSender for a webhook URL.
func NewDiscordSender(webhookURL string) *DiscordSender {
	return &DiscordSender{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: sendTimeout},
		now:        time.Now,
	}
}

type discordEmbed struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Color       int    `json:"color"`
	Footer      struct {
		Text string `json:"text"`
	} `json:"footer"`
	Timestamp string `json:"timestamp"`
}

// embedColor picks the sidebar colour of an event.
func embedColor(event string) int {
	switch event {
	case domain.EventPrizeAwarded:
		return 0xF1C40F
	case domain.EventStaleCoupons:
		return 0xE67E22
	case domain.EventFixtureSettle, domain.EventCouponSettle:
		return 0x2ECC71
	default:
		return 0x3498DB
	}
}

// Send posts one embed. Discord answers 204 on success.
func (d *DiscordSender) Send(ctx context.Context, event, title, message string) error {
	embed := discordEmbed{
		Title:       title,
		Description: message,
		Color:       embedColor(event),
		Timestamp:   d.now().UTC().Format(time.RFC3339),
	}
	embed.Footer.Text = event
	if err := postJSON(ctx, d.client, d.webhookURL, map[string]any{"embeds": []discordEmbed{embed}}, 2); err != nil {
		return fmt.Errorf("discord: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (d *DiscordSender) Name() string {
	return "discord"
}
