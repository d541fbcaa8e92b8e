package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

var (
	askSave      bool
	askShowFiles bool
)

var askCmd = &cobra.Command{
	Use:   "ask <repository-id> <question>",
	Short: "Ask a question about an indexed repository",
	Long: `Embeds the question, retrieves the most similar indexed files and
streams an answer grounded only in those files. When no file is relevant
enough the answer says so instead of guessing.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().BoolVar(&askSave, "save", false, "save the question and answer with its file references")
	askCmd.Flags().BoolVar(&askShowFiles, "files", true, "list the files used as context")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
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

	repoID := args[0]
	question := strings.Join(args[1:], " ")

	answer, err := c.Projects.Ask(ctx, repoID, question)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	var text strings.Builder
	for delta, err := range answer.Stream {
		if err != nil {
			fmt.Fprintln(out)
			return err
		}
		text.WriteString(delta)
		fmt.Fprint(out, delta)
	}
	fmt.Fprintln(out)

	if askShowFiles && len(answer.Files) > 0 {
		fmt.Fprintln(out)
		bold.Fprintln(out, "Files:")
		for _, f := range answer.Files {
			fmt.Fprintf(out, "  %s %s\n", f.FileName, faint.Sprintf("(%.2f)", f.Similarity))
		}
	}

	if askSave {
		q, err := c.Projects.SaveAnswer(ctx, userID(c.Config), repoID, question, text.String(), answer.Files)
		if err != nil {
			return fmt.Errorf("saving answer: %w", err)
		}
		success(out, "saved as %s", q.ID)
	}
	return nil
}
