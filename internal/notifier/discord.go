package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/pauljones0/dealboard/internal/models"
)

const (
	colorPending   = 3092790  // #2F3136
	colorSmallDeal = 16753920 // #FFA500
	colorBigDeal   = 16711680 // #FF0000
	colorApproved  = 5763719  // #57F287

	discountThresholdSmall = 20
	discountThresholdBig   = 50
)

// Event says why moderators are being told about a deal.
type Event int

const (
	EventSubmitted Event = iota
	EventApproved
)

// Client posts moderation messages to a Discord webhook. A Client with an
// empty webhook URL is a no-op.
type Client struct {
	webhookURL  string
	client      *http.Client
	rateLimiter *rate.Limiter
}

func New(webhookURL string) *Client {
	return &Client{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		// Discord allows 5 webhook requests per 2 seconds.
		rateLimiter: rate.NewLimiter(rate.Every(400*time.Millisecond), 5),
	}
}

// Send posts a new message for the deal and returns the Discord message ID.
func (c *Client) Send(ctx context.Context, deal models.Deal, event Event) (string, error) {
	if c.webhookURL == "" {
		return "", nil
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return "", err
	}
	return c.sendAndGetMessageID(ctx, formatDealToEmbed(deal, event))
}

// Update edits a message previously returned by Send.
func (c *Client) Update(ctx context.Context, messageID string, deal models.Deal, event Event) error {
	if c.webhookURL == "" || messageID == "" {
		return nil
	}
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return err
	}
	return c.updateDiscordMessage(ctx, messageID, formatDealToEmbed(deal, event))
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
	Title       string                `json:"title,omitempty"`
	Description string                `json:"description,omitempty"`
	URL         string                `json:"url,omitempty"`
	Timestamp   string                `json:"timestamp,omitempty"`
	Color       int                   `json:"color,omitempty"`
	Thumbnail   discordEmbedThumbnail `json:"thumbnail,omitempty"`
	Fields      []discordEmbedField   `json:"fields,omitempty"`
	Footer      discordEmbedFooter    `json:"footer,omitempty"`
}

type discordMessageResponse struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
}

func formatDealToEmbed(deal models.Deal, event Event) discordEmbed {
	title := deal.Title
	if deal.DiscountPct != nil {
		title = fmt.Sprintf("%s (-%d%%)", deal.Title, *deal.DiscountPct)
	}

	var description string
	if deal.DeepLink != "" {
		description = fmt.Sprintf("[Link to Deal](%s)", deal.DeepLink)
	}

	fields := []discordEmbedField{
		{Name: "Merchant", Value: deal.MerchantName, Inline: true},
		{Name: "City", Value: deal.City, Inline: true},
	}
	if price := formatPrices(deal); price != "" {
		fields = append(fields, discordEmbedField{Name: "Price", Value: price, Inline: true})
	}
	if deal.Category != "" {
		fields = append(fields, discordEmbedField{Name: "Category", Value: deal.Category, Inline: true})
	}

	footer := "Awaiting approval · " + deal.ID
	color := getDiscountColor(deal.DiscountPct)
	if event == EventApproved {
		footer = "Approved · " + deal.ID
		color = colorApproved
	}

	var isoTimestamp string
	if !deal.CreatedAt.IsZero() {
		isoTimestamp = deal.CreatedAt.Format(time.RFC3339)
	}

	return discordEmbed{
		Title:       title,
		Description: description,
		Timestamp:   isoTimestamp,
		Color:       color,
		Thumbnail:   discordEmbedThumbnail{URL: deal.ImageURL},
		Fields:      fields,
		Footer:      discordEmbedFooter{Text: footer},
	}
}

func formatPrices(deal models.Deal) string {
	var parts []string
	if deal.OldPrice != nil {
		parts = append(parts, "~~"+formatAmount(*deal.OldPrice)+"~~")
	}
	if deal.NewPrice != nil {
		parts = append(parts, "**"+formatAmount(*deal.NewPrice)+"**")
	}
	return strings.Join(parts, " → ")
}

func formatAmount(f float64) string {
	if f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprintf("%.2f", f)
}

func getDiscountColor(pct *int) int {
	switch {
	case pct == nil:
		return colorPending
	case *pct >= discountThresholdBig:
		return colorBigDeal
	case *pct >= discountThresholdSmall:
		return colorSmallDeal
	}
	return colorPending
}

const maxAttempts = 3

// retryBackoff returns how long to wait before retrying resp, or zero when
// the response should not be retried.
func retryBackoff(resp *http.Response, attempt int) time.Duration {
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
		return time.Second << attempt
	case resp.StatusCode >= 500:
		return 500 * time.Millisecond << attempt
	}
	return 0
}

// do sends the request built by newReq, retrying 429 and 5xx responses.
// It returns the body of the first 2xx response.
func (c *Client) do(ctx context.Context, newReq func() (*http.Request, error)) ([]byte, error) {
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		req, err := newReq()
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if err != nil {
			return nil, err
		}
		bodyBytes, _ := io.ReadAll(resp.Body)
		resp.Body.Close()

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			return bodyBytes, nil
		}
		lastErr = fmt.Errorf("discord status: %s, body: %s", resp.Status, string(bodyBytes))
		wait := retryBackoff(resp, attempt)
		if wait == 0 || attempt == maxAttempts-1 {
			break
		}
		slog.Warn("Discord request failed, retrying", "status", resp.StatusCode, "attempt", attempt+1, "wait", wait)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

func (c *Client) sendAndGetMessageID(ctx context.Context, embed discordEmbed) (string, error) {
	payloadBytes, err := json.Marshal(discordWebhookPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return "", err
	}

	parsedURL, err := url.Parse(c.webhookURL)
	if err != nil {
		return "", err
	}
	q := parsedURL.Query()
	q.Set("wait", "true")
	parsedURL.RawQuery = q.Encode()

	bodyBytes, err := c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, parsedURL.String(), bytes.NewReader(payloadBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", err
	}
	var msgResponse discordMessageResponse
	if err := json.Unmarshal(bodyBytes, &msgResponse); err != nil {
		return "", err
	}
	return msgResponse.ID, nil
}

func (c *Client) updateDiscordMessage(ctx context.Context, messageID string, embed discordEmbed) error {
	payloadBytes, err := json.Marshal(discordWebhookPayload{Embeds: []discordEmbed{embed}})
	if err != nil {
		return err
	}

	parsedBaseURL, err := url.Parse(c.webhookURL)
	if err != nil {
		return err
	}
	finalPatchURL := fmt.Sprintf("%s://%s%s/messages/%s", parsedBaseURL.Scheme, parsedBaseURL.Host, parsedBaseURL.Path, messageID)

	_, err = c.do(ctx, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPatch, finalPatchURL, bytes.NewReader(payloadBytes))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return fmt.Errorf("discord update failed: %w", err)
	}
	return nil
}
