package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// AppriseChannel posts notifications to an Apprise API server
type AppriseChannel struct {
	name   string
	url    string
	apiURL string
	logger zerolog.Logger
	client *http.Client
}

// NewAppriseChannel creates an Apprise channel. url is the Apprise service
// URL or config key; apiURL is the Apprise API base. Without an apiURL the
// channel only logs what it would send.
func NewAppriseChannel(name, url, apiURL string, logger zerolog.Logger) *AppriseChannel {
	return &AppriseChannel{
		name:   name,
		url:    url,
		apiURL: strings.TrimRight(apiURL, "/"),
		logger: logger.With().Str("channel", name).Logger(),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Name implements Channel
func (c *AppriseChannel) Name() string { return c.name }

// Send implements Channel
func (c *AppriseChannel) Send(ctx context.Context, event Event) error {
	if c.url == "" {
		return fmt.Errorf("apprise channel %s has no url", c.name)
	}

	title, body := FormatMessage(event)

	if c.apiURL == "" {
		c.logger.Info().
			Str("url", c.url).
			Str("title", title).
			Msg("Would send notification (Apprise not configured)")
		return nil
	}

	payload := map[string]string{
		"title":  title,
		"body":   body,
		"type":   appriseType(event),
		"format": "text",
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, fmt.Sprintf("%s/notify/%s", c.apiURL, c.url), bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("apprise API error: %d - %s", resp.StatusCode, string(respBody))
	}

	return nil
}

// appriseType maps an event to Apprise's notification type
func appriseType(event Event) string {
	if event.State == StateResolved {
		return "success"
	}
	switch event.Alert.Severity {
	case "critical", "high":
		return "failure"
	case "medium":
		return "warning"
	default:
		return "info"
	}
}
