package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/bfmr-deal-bot/internal/models"
)

const (
	colorSuccess = 3066993  // #2ECC71
	colorManual  = 3447003  // #3498DB
	colorWarning = 16753920 // #FFA500
	colorFailure = 15158332 // #E74C3C
	colorNeutral = 9807270  // #95A5A6

	maxSendRetries = 3
	baseBackoff    = time.Second
	maxBackoff     = 30 * time.Second
)

type Client struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
}

// New returns a webhook client limited to Discord's documented 5 requests
// per 2 seconds per webhook.
func New(webhookURL string) *Client {
	return &Client{
		webhookURL:  webhookURL,
		client:      &http.Client{Timeout: 10 * time.Second},
		rateLimiter: rate.NewLimiter(rate.Every(400*time.Millisecond), 5),
	}
}

// NotifyOutcome posts one processing outcome. It is a no-op without a webhook.
func (c *Client) NotifyOutcome(ctx context.Context, deal models.Deal, outcome models.ProcessingOutcome) error {
	if c.webhookURL == "" {
		return nil
	}
	return c.send(ctx, formatOutcomeEmbed(deal, outcome))
}

// NotifyPaused posts an alert when the bot stops itself.
func (c *Client) NotifyPaused(ctx context.Context, reason string) error {
	if c.webhookURL == "" {
		return nil
	}
	return c.send(ctx, discordEmbed{
		Title:       "Bot paused",
		Description: reason + "\nResume with /resume once the board login works again.",
		Color:       colorFailure,
		Timestamp:   time.Now().UTC().Format(time.RFC3339),
	})
}

type discordWebhookPayload struct {
	Content string         `json:"content,omitempty"`
	Embeds  []discordEmbed `json:"embeds"`
}

type discordEmbedThumbnail struct {
	URL string `json:"url,omitempty"`
}

type discordEmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

type discordEmbedFooter struct {
	Text string `json:"text,omitempty"`
}

type discordEmbed struct {
	Title       string                 `json:"title,omitempty"`
	Description string                 `json:"description,omitempty"`
	URL         string                 `json:"url,omitempty"`
	Timestamp   string                 `json:"timestamp,omitempty"`
	Color       int                    `json:"color,omitempty"`
	Thumbnail   *discordEmbedThumbnail `json:"thumbnail,omitempty"`
	Fields      []discordEmbedField    `json:"fields,omitempty"`
	Footer      *discordEmbedFooter    `json:"footer,omitempty"`
}

var actionLabels = map[models.Action]string{
	models.ActionCartAdded:         "Added to cart",
	models.ActionCartAddFailed:     "Cart add failed",
	models.ActionReadyForManualAdd: "Ready for manual add",
	models.ActionReservationFailed: "Reservation failed",
	models.ActionRolledBack:        "Rolled back",
	models.ActionDryRun:            "Dry run",
	models.ActionError:             "Error",
}

func actionColor(a models.Action) int {
	switch a {
	case models.ActionCartAdded:
		return colorSuccess
	case models.ActionReadyForManualAdd:
		return colorManual
	case models.ActionRolledBack, models.ActionCartAddFailed:
		return colorWarning
	case models.ActionReservationFailed, models.ActionError:
		return colorFailure
	}
	return colorNeutral
}

func formatOutcomeEmbed(deal models.Deal, outcome models.ProcessingOutcome) discordEmbed {
	label, ok := actionLabels[outcome.Action]
	if !ok {
		label = string(outcome.Action)
	}

	title := fmt.Sprintf("%s: %s", label, deal.DealCode)
	if deal.Title != "" {
		title = fmt.Sprintf("%s: %s", label, deal.Title)
	}

	embed := discordEmbed{
		Title:       title,
		Description: outcome.ResultDetail,
		Color:       actionColor(outcome.Action),
		Footer:      &discordEmbedFooter{Text: "Deal " + deal.DealCode},
	}
	if link, ok := deal.LinkFor(outcome.Retailer); ok {
		embed.URL = link.URL
	}
	if deal.ImageURL != "" {
		embed.Thumbnail = &discordEmbedThumbnail{URL: deal.ImageURL}
	}
	if !outcome.Timestamp.IsZero() {
		embed.Timestamp = outcome.Timestamp.UTC().Format(time.RFC3339)
	}

	if outcome.Retailer != "" {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Retailer", Value: string(outcome.Retailer), Inline: true})
	}
	if outcome.Quantity > 0 {
		embed.Fields = append(embed.Fields, discordEmbedField{Name: "Quantity", Value: strconv.Itoa(outcome.Quantity), Inline: true})
	}
	if deal.RetailPrice.IsPositive() {
		embed.Fields = append(embed.Fields, discordEmbedField{
			Name:   "Price / Payout",
			Value:  fmt.Sprintf("$%s / $%s (%+.1f%%)", deal.RetailPrice.StringFixed(2), deal.PayoutPrice.StringFixed(2), deal.MarginPercent()),
			Inline: true,
		})
	}
	return embed
}

func (c *Client) send(ctx context.Context, embed discordEmbed) error {
	payloadBytes, err := json.Marshal(discordWebhookPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return err
	}

	for attempt := 0; ; attempt++ {
		if err := c.rateLimiter.Wait(ctx); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.webhookURL, bytes.NewReader(payloadBytes))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("discord request: %w", err)
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return nil
		}

		backoff := retryBackoff(resp, attempt)
		if backoff == 0 || attempt >= maxSendRetries {
			return fmt.Errorf("discord status: %s, body: %s", resp.Status, string(bodyBytes))
		}
		slog.Warn("Discord webhook failed, retrying", "status", resp.StatusCode, "attempt", attempt+1, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// retryBackoff returns how long to wait before retrying resp, or zero when
// the status is not retryable. Retry-After wins for 429.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.ParseFloat(resp.Header.Get("Retry-After"), 64); err == nil && secs > 0 {
			return min(time.Duration(secs*float64(time.Second)), maxBackoff)
		}
	case resp.StatusCode >= 500:
	default:
		return 0
	}
	return min(baseBackoff*time.Duration(1<<attempt), maxBackoff)
}
