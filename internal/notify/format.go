package notify

import (
	"fmt"
	"time"
)

// Title returns the headline of a notice.
func Title(n Notice) string {
	switch {
	case n.Kind == KindCommits && n.Succeeded():
		return "Commit Log Updated"
	case n.Kind == KindCommits:
		return "Commit Log Update Failed"
	case n.Succeeded():
		return "Repository Indexed"
	default:
		return "Repository Indexing Stopped"
	}
}

// FormatCounts summarizes the outcome counts of a notice.
// Example: "12 indexed, 1 degraded, 0 failed of 13 quoted"
func FormatCounts(n Notice) string {
	if n.Kind == KindCommits {
		if n.Commits == 1 {
			return "1 new commit summarized"
		}
		return fmt.Sprintf("%d new commits summarized", n.Commits)
	}
	return fmt.Sprintf("%d indexed, %d degraded, %d failed of %d quoted",
		n.Indexed, n.Degraded, n.Failed, n.Quote)
}

// FormatDuration rounds d for display.
func FormatDuration(d time.Duration) string {
	switch {
	case d < time.Second:
		return d.Round(time.Millisecond).String()
	case d < time.Minute:
		return d.Round(100 * time.Millisecond).String()
	default:
		return d.Round(time.Second).String()
	}
}
