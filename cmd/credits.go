package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var creditsGrant int

var creditsCmd = &cobra.Command{
	Use:   "credits",
	Short: "Show your credit balance",
	Long: `Shows the credit balance of the local user. Each indexed file costs one
credit. --grant tops the balance up.`,
	Args: cobra.NoArgs,
	RunE: runCredits,
}

func init() {
	creditsCmd.Flags().IntVar(&creditsGrant, "grant", 0, "add credits to the balance")
	rootCmd.AddCommand(creditsCmd)
}

func runCredits(cmd *cobra.Command, args []string) error {
	c, err := setup()
	if err != nil {
		return err
	}
	defer c.Close()

	ctx := cmd.Context()
	user := userID(c.Config)
	out := cmd.OutOrStdout()

	if creditsGrant != 0 {
		if err := c.Store.Grant(ctx, user, creditsGrant); err != nil {
			return err
		}
		success(out, "%d credits added", creditsGrant)
	}

	balance, err := c.Projects.Credits(ctx, user)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "%s %d credits\n", bold.Sprint("Balance:"), balance)
	return nil
}
