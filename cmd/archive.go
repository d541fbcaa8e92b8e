package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

var deleteYes bool

var archiveCmd = &cobra.Command{
	Use:   "archive <repository-id>",
	Short: "Hide a repository without deleting its index",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProjects(cmd, func(c *components) error {
			if err := c.Projects.Archive(cmd.Context(), args[0]); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "repository %s archived", args[0])
			return nil
		})
	},
}

var unarchiveCmd = &cobra.Command{
	Use:   "unarchive <repository-id>",
	Short: "Restore an archived repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withProjects(cmd, func(c *components) error {
			if err := c.Projects.Unarchive(cmd.Context(), args[0]); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "repository %s restored", args[0])
			return nil
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <repository-id>",
	Short: "Delete a repository with its index, commits and questions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if !deleteYes && !confirm(fmt.Sprintf("Delete %s and everything indexed for it? [y/N]: ", args[0])) {
			fmt.Fprintln(cmd.OutOrStdout(), "Aborted.")
			return nil
		}
		return withProjects(cmd, func(c *components) error {
			if err := c.Projects.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "repository %s deleted", args[0])
			return nil
		})
	},
}

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", false, "skip the confirmation prompt")
	rootCmd.AddCommand(archiveCmd)
	rootCmd.AddCommand(unarchiveCmd)
	rootCmd.AddCommand(deleteCmd)
}

// withProjects runs fn with initialized components.
func withProjects(cmd *cobra.Command, fn func(c *components) error) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()
	return fn(c)
}

func confirm(prompt string) bool {
	fmt.Print(prompt)
	answer, _ := bufio.NewReader(os.Stdin).ReadString('\n')
	answer = strings.TrimSpace(strings.ToLower(answer))
	return answer == "y" || answer == "yes"
}
