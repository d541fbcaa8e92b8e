package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var estimateToken string

var estimateCmd = &cobra.Command{
	Use:   "estimate <repo-url>",
	Short: "Count the files of a repository and compare with your credits",
	Long: `Walks the repository tree without downloading file contents and prints
the number of files an ingestion would process. Each file costs one credit.`,
	Args: cobra.ExactArgs(1),
	RunE: runEstimate,
}

func init() {
	estimateCmd.Flags().StringVar(&estimateToken, "token", "", "GitHub token for a private repository")
	rootCmd.AddCommand(estimateCmd)
}

func runEstimate(cmd *cobra.Command, args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := signalContext(c.Logger)
	defer cancel()

	q, err := c.Projects.Quote(ctx, userID(c.Config), args[0], estimateToken)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s %d files\n", bold.Sprint("Quote:"), q.Files)
	fmt.Fprintf(out, "%s %d credits\n", bold.Sprint("Balance:"), q.Balance)
	if q.Sufficient() {
		success(out, "enough credits to index this repository")
	} else {
		warn(out, "%d more credits needed", q.Files-q.Balance)
	}
	return nil
}
