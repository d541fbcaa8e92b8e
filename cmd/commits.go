package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/jacklau/repolens/internal/store"
)

var commitsRefresh bool

var commitsCmd = &cobra.Command{
	Use:   "commits <repository-id>",
	Short: "Show the AI-summarized commit log of a repository",
	Long: `Lists stored commit summaries, newest first. With --refresh the latest
commits are fetched from GitHub first and every commit not seen before gets
its diff summarized.`,
	Args: cobra.ExactArgs(1),
	RunE: runCommits,
}

func init() {
	commitsCmd.Flags().BoolVar(&commitsRefresh, "refresh", false, "fetch and summarize new commits first")
	rootCmd.AddCommand(commitsCmd)
}

func runCommits(cmd *cobra.Command, args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := signalContext(c.Logger)
	defer cancel()

	out := cmd.OutOrStdout()
	if commitsRefresh {
		if err := c.requireProviders(); err != nil {
			return err
		}
		n, err := c.Projects.RefreshCommits(ctx, args[0])
		if err != nil {
			return err
		}
		success(out, "%d new commits summarized", n)
	}

	commits, err := c.Projects.Commits(ctx, args[0])
	if err != nil {
		return err
	}
	if len(commits) == 0 {
		fmt.Fprintln(out, "No commits stored yet. Run with --refresh to fetch them.")
		return nil
	}
	return renderCommits(out, commits)
}

func renderCommits(w io.Writer, commits []store.Commit) error {
	table := tablewriter.NewWriter(w)
	table.Header("Commit", "Author", "When", "Summary")
	for _, cm := range commits {
		hash := cm.Hash
		if len(hash) > 7 {
			hash = hash[:7]
		}
		if err := table.Append([]string{hash, cm.AuthorName, formatTimeAgo(cm.Date), firstLines(cm.Summary, 3)}); err != nil {
			return err
		}
	}
	return table.Render()
}

// firstLines returns at most n non-empty lines of s.
func firstLines(s string, n int) string {
	var lines []string
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
		if len(lines) == n {
			break
		}
	}
	return strings.Join(lines, "\n")
}
