package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

var watchInterval string

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Continuously refresh the commit logs of all repositories",
	Long: `Polls every active repository for new commits, summarizes their diffs
and sends a notification for each repository with new commits.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchInterval, "interval", "", "poll interval, e.g. 10m (default from config)")
	rootCmd.AddCommand(watchCmd)
}

// resolveInterval parses the flag value, falling back to the configured
// interval when the flag is empty.
func resolveInterval(flag string, configured time.Duration) (time.Duration, error) {
	if flag == "" {
		return configured, nil
	}
	d, err := time.ParseDuration(flag)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", flag, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("interval must be positive, got %q", flag)
	}
	return d, nil
}

func runWatch(cmd *cobra.Command, args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.requireProviders(); err != nil {
		return err
	}

	interval, err := resolveInterval(watchInterval, c.Config.Commits.PollInterval())
	if err != nil {
		return err
	}

	ctx, cancel := signalContext(c.Logger)
	defer cancel()

	c.Logger.Info("starting watch", "interval", interval.String())
	err = c.Projects.WatchCommits(ctx, userID(c.Config), interval)
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("watching commits: %w", err)
	}

	c.Logger.Info("watch stopped")
	return nil
}
