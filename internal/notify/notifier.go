package notify

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Kind identifies what finished.
type Kind string

const (
	KindIngestion Kind = "ingestion"
	KindCommits   Kind = "commits"
)

// Notice reports a finished ingestion or commit refresh of a repository.
type Notice struct {
	Kind       Kind
	Repository string // owner/repo
	URL        string

	// Ingestion counts.
	Quote    int
	Indexed  int
	Degraded int
	Failed   int

	// Commits is the number of new commits summarized.
	Commits int

	Error    string
	Duration time.Duration
}

// Succeeded reports whether the work finished without a run error.
func (n Notice) Succeeded() bool {
	return n.Error == ""
}

// Notifier sends notices.
type Notifier interface {
	Notify(ctx context.Context, n Notice) error
}

// MultiNotifier sends notifications to multiple notifiers.
type MultiNotifier struct {
	notifiers []Notifier
	logger    *slog.Logger
}

// NewMultiNotifier creates a MultiNotifier from the given notifiers.
func NewMultiNotifier(notifiers ...Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers, logger: slog.Default()}
}

// Notify sends the notice to all configured notifiers.
// It logs errors from individual notifiers but continues to the rest.
// Returns the last error encountered, if any.
func (m *MultiNotifier) Notify(ctx context.Context, n Notice) error {
	var lastErr error
	for _, nt := range m.notifiers {
		if err := nt.Notify(ctx, n); err != nil {
			m.logger.Warn("notifier error", "error", err)
			lastErr = err
		}
	}
	return lastErr
}

// NewNotifier creates a Notifier based on the notifyType.
// Supported types: "slack", "discord", "both".
func NewNotifier(notifyType string, slackURL, discordURL string) (Notifier, error) {
	switch notifyType {
	case "slack":
		if slackURL == "" {
			return nil, fmt.Errorf("slack webhook URL is required for slack notifier")
		}
		return NewSlackNotifier(slackURL), nil
	case "discord":
		if discordURL == "" {
			return nil, fmt.Errorf("discord webhook URL is required for discord notifier")
		}
		return NewDiscordNotifier(discordURL), nil
	case "both":
		if slackURL == "" {
			return nil, fmt.Errorf("slack webhook URL is required for 'both' notifier")
		}
		if discordURL == "" {
			return nil, fmt.Errorf("discord webhook URL is required for 'both' notifier")
		}
		return NewMultiNotifier(
			NewSlackNotifier(slackURL),
			NewDiscordNotifier(discordURL),
		), nil
	default:
		return nil, fmt.Errorf("unsupported notifier type: %q", notifyType)
	}
}
