package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/jacklau/repolens/internal/retry"
)

// SlackNotifier sends notices to a Slack webhook.
type SlackNotifier struct {
	webhookURL string
	client     *http.Client
	policy     retry.Policy
}

// NewSlackNotifier creates a SlackNotifier with the given webhook URL.
// A failed post is retried once.
func NewSlackNotifier(webhookURL string) *SlackNotifier {
	return &SlackNotifier{
		webhookURL: webhookURL,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
		policy: retry.Policy{
			MaxAttempts:  2,
			InitialDelay: 500 * time.Millisecond,
			Multiplier:   1,
			MaxDelay:     500 * time.Millisecond,
			OnRetry: func(attempt int, _ time.Duration, err error) {
				slog.Warn("slack notify failed, retrying", "attempt", attempt, "error", err)
			},
		},
	}
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
}

// slackText represents a text object in Slack Block Kit.
type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// slackPayload is the top-level Slack message payload.
type slackPayload struct {
	Blocks []slackBlock `json:"blocks"`
}

func mrkdwn(format string, args ...any) slackBlock {
	return slackBlock{Type: "section", Text: &slackText{Type: "mrkdwn", Text: fmt.Sprintf(format, args...)}}
}

// BuildSlackPayload creates the Slack Block Kit message payload for a notice.
func BuildSlackPayload(n Notice) slackPayload {
	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{Type: "plain_text", Text: Title(n)},
		},
		mrkdwn(":link: Repository: *<%s|%s>*", n.URL, n.Repository),
		mrkdwn("*Result:* %s", FormatCounts(n)),
		mrkdwn("*Duration:* %s", FormatDuration(n.Duration)),
	}

	if n.Error != "" {
		blocks = append(blocks, mrkdwn("*Error:*\n%s", n.Error))
	}

	return slackPayload{Blocks: blocks}
}

// Notify sends a Slack notification for the given notice.
func (s *SlackNotifier) Notify(ctx context.Context, n Notice) error {
	body, err := json.Marshal(BuildSlackPayload(n))
	if err != nil {
		return fmt.Errorf("marshaling slack payload: %w", err)
	}

	if err := s.policy.Do(ctx, func(ctx context.Context) error { return s.post(ctx, body) }); err != nil {
		return fmt.Errorf("slack notify failed: %w", err)
	}
	return nil
}

func (s *SlackNotifier) post(ctx context.Context, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sending request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("slack webhook returned %d: %s", resp.StatusCode, string(respBody))
	}

	return nil
}
