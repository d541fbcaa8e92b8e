package cmd

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jacklau/repolens/internal/store"
)

var statusArchived bool

var statusCmd = &cobra.Command{
	Use:   "status [repository-id]",
	Short: "Show indexed repositories and their health",
	Long: `Without arguments, lists every repository with its indexed file count,
degraded files, commits, saved questions and last ingestion. With a
repository id, shows the details of that repository.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusArchived, "archived", false, "list archived repositories instead")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	if len(args) == 1 {
		stats, err := c.Projects.Stats(ctx, args[0])
		if err != nil {
			return err
		}
		printRepositoryStats(out, stats)
		return nil
	}

	if statusArchived {
		repos, err := c.Projects.List(ctx, userID(c.Config), true)
		if err != nil {
			return err
		}
		if len(repos) == 0 {
			fmt.Fprintln(out, "No archived repositories.")
			return nil
		}
		for _, r := range repos {
			fmt.Fprintf(out, "%s %s %s\n", cyan.Sprint(r.ID), r.Name, faint.Sprint(r.URL))
		}
		return nil
	}

	allStats, err := c.Projects.AllStats(ctx, userID(c.Config))
	if err != nil {
		return fmt.Errorf("querying stats: %w", err)
	}

	if len(allStats) == 0 {
		fmt.Fprintln(out, "No repositories indexed yet.")
		fmt.Fprintln(out, "Run 'repolens index <repo-url>' to get started.")
		return nil
	}

	if err := renderStats(out, allStats); err != nil {
		return err
	}

	// Print database file size
	fmt.Fprintln(out)
	dbSize, err := dbFileSize(c.Config.Store.Path)
	if err != nil {
		fmt.Fprintf(out, "Database: %s (size unknown)\n", c.Config.Store.Path)
	} else {
		fmt.Fprintf(out, "Database: %s (%s)\n", c.Config.Store.Path, formatBytes(dbSize))
	}
	fmt.Fprintf(out, "Vector index: %s\n", c.Config.Vector.Backend)
	return nil
}

func renderStats(w io.Writer, allStats []store.RepositoryStats) error {
	table := tablewriter.NewWriter(w)
	table.Header("ID", "Repository", "Files", "Degraded", "Commits", "Questions", "Last Indexed")

	var totalFiles, totalDegraded int
	for _, s := range allStats {
		lastRun := "never"
		if s.LastRun != nil {
			lastRun = formatTimeAgo(s.LastRun.StartedAt)
		}
		row := []string{
			s.Repository.ID,
			fmt.Sprintf("%s/%s", s.Repository.Owner, s.Repository.Repo),
			strconv.Itoa(s.Files),
			strconv.Itoa(s.Degraded),
			strconv.Itoa(s.Commits),
			strconv.Itoa(s.Questions),
			lastRun,
		}
		if err := table.Append(row); err != nil {
			return err
		}
		totalFiles += s.Files
		totalDegraded += s.Degraded
	}

	if len(allStats) > 1 {
		table.Footer("", "TOTAL", strconv.Itoa(totalFiles), strconv.Itoa(totalDegraded), "", "", "")
	}
	return table.Render()
}

func printRepositoryStats(w io.Writer, s *store.RepositoryStats) {
	r := s.Repository
	fmt.Fprintf(w, "%s %s\n", bold.Sprint(r.Name), faint.Sprint(r.URL))
	fmt.Fprintf(w, "  id:        %s\n", r.ID)
	fmt.Fprintf(w, "  files:     %d (%d degraded)\n", s.Files, s.Degraded)
	fmt.Fprintf(w, "  commits:   %d\n", s.Commits)
	fmt.Fprintf(w, "  questions: %d\n", s.Questions)
	if r.Archived() {
		warn(w, "archived %s", formatTimeAgo(*r.ArchivedAt))
	}

	run := s.LastRun
	if run == nil {
		fmt.Fprintln(w, "  last run:  never")
		return
	}
	fmt.Fprintf(w, "  last run:  %s, %d quoted, %d indexed, %d degraded, %d failed\n",
		formatTimeAgo(run.StartedAt), run.Quote, run.Indexed, run.Degraded, run.Failed)
	switch {
	case run.FinishedAt == nil:
		warn(w, "ingestion in progress or interrupted")
	case run.Error != "":
		failure(w, "last run stopped: %s", run.Error)
	}
}

// formatTimeAgo formats a time as a human-readable relative string.
func formatTimeAgo(t time.Time) string {
	d := time.Since(t)

	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		mins := int(d.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case d < 24*time.Hour:
		hours := int(d.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	default:
		days := int(d.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	}
}

// formatBytes formats bytes into a human-readable string.
func formatBytes(b int64) string {
	const unit = 1024
	if b < unit {
		return fmt.Sprintf("%d B", b)
	}
	div, exp := int64(unit), 0
	for n := b / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(b)/float64(div), "KMGTPE"[exp])
}

// dbFileSize returns the size in bytes of the database file.
func dbFileSize(path string) (int64, error) {
	// Expand ~ in path
	if len(path) > 0 && path[0] == '~' {
		home, err := os.UserHomeDir()
		if err != nil {
			return 0, err
		}
		path = home + path[1:]
	}

	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
