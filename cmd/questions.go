package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var questionsCmd = &cobra.Command{
	Use:   "questions <repository-id>",
	Short: "List saved questions of a repository",
	Args:  cobra.ExactArgs(1),
	RunE:  runQuestions,
}

var forgetCmd = &cobra.Command{
	Use:   "forget <question-id>",
	Short: "Delete a saved question",
	Args:  cobra.ExactArgs(1),
	RunE:  runForget,
}

func init() {
	rootCmd.AddCommand(questionsCmd)
	rootCmd.AddCommand(forgetCmd)
}

func runQuestions(cmd *cobra.Command, args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := signalContext(c.Logger)
	defer cancel()

	questions, err := c.Projects.Questions(ctx, args[0])
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(questions) == 0 {
		fmt.Fprintln(out, "No saved questions.")
		return nil
	}
	for _, q := range questions {
		fmt.Fprintf(out, "%s %s %s\n", cyan.Sprint(q.ID), bold.Sprint(q.Question), faint.Sprint(formatTimeAgo(q.CreatedAt)))
		fmt.Fprintf(out, "%s\n", q.Answer)
		for _, ref := range q.FileReferences {
			fmt.Fprintf(out, "  - %s\n", ref.FileName)
		}
		fmt.Fprintln(out)
	}
	return nil
}

func runForget(cmd *cobra.Command, args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx, cancel := signalContext(c.Logger)
	defer cancel()

	if err := c.Projects.DeleteQuestion(ctx, userID(c.Config), args[0]); err != nil {
		return err
	}
	success(cmd.OutOrStdout(), "question %s deleted", args[0])
	return nil
}
