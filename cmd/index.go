package cmd

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/jacklau/repolens/internal/ingest"
	"github.com/jacklau/repolens/internal/project"
)

var (
	indexName  string
	indexToken string
)

var indexCmd = &cobra.Command{
	Use:   "index <repo-url>",
	Short: "Link a repository and index every file",
	Long: `Checks that your credits cover the file count, links the repository,
then summarizes and embeds each file. Files whose summary failed after
retries are kept with a placeholder summary and are never used as context.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

var reindexCmd = &cobra.Command{
	Use:   "reindex <repository-id>",
	Short: "Charge the current file count again and re-index a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runReindex,
}

func init() {
	indexCmd.Flags().StringVar(&indexName, "name", "", "display name (default repository name)")
	indexCmd.Flags().StringVar(&indexToken, "token", "", "GitHub token for a private repository")
	rootCmd.AddCommand(indexCmd)
	rootCmd.AddCommand(reindexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.requireProviders(); err != nil {
		return err
	}

	ctx, cancel := signalContext(c.Logger)
	defer cancel()

	out := cmd.OutOrStdout()
	repo, quote, err := c.Projects.Create(ctx, project.CreateRequest{
		UserID: userID(c.Config),
		Name:   indexName,
		URL:    args[0],
		Token:  indexToken,
	})
	if errors.Is(err, project.ErrInsufficientCredits) && quote != nil {
		failure(out, "%d files to index but only %d credits left", quote.Files, quote.Balance)
		return err
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Linked %s as %s (%d credits charged, %d left)\n",
		bold.Sprint(repo.Name), cyan.Sprint(repo.ID), quote.Files, quote.Balance)

	report, err := c.Projects.Index(ctx, repo.ID, quote.Files, observer(quote.Files))
	printReport(out, report)
	return err
}

func runReindex(cmd *cobra.Command, args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	if err := c.requireProviders(); err != nil {
		return err
	}

	ctx, cancel := signalContext(c.Logger)
	defer cancel()

	quote, err := c.Projects.ChargeReindex(ctx, args[0])
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Re-indexing %s (%d credits charged)\n", cyan.Sprint(args[0]), quote)

	report, err := c.Projects.Index(ctx, args[0], quote, observer(quote))
	printReport(out, report)
	return err
}

func observer(total int) ingest.Observer {
	if !showProgress() {
		return nil
	}
	return progressObserver(newProgressBar(os.Stderr, total, "indexing"))
}

// printReport summarizes a run. A nil report means the walk failed before
// the first file.
func printReport(w io.Writer, r *ingest.Report) {
	if r == nil {
		return
	}
	success(w, "%d files indexed in %s", r.Indexed, r.Duration.Round(10*time.Millisecond))
	if r.Degraded > 0 {
		warn(w, "%d files stored without a summary (rate limited)", r.Degraded)
	}
	if n := r.Failed(); n > 0 {
		failure(w, "%d files skipped", n)
		if verbose {
			for _, f := range r.Failures {
				fmt.Fprintf(w, "  %s %s\n", f.Path, faint.Sprint(f.Err))
			}
		}
	}
}
