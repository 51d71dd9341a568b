package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var tokenCmd = &cobra.Command{
	Use:     "token",
	Short:   "Manage user tokens",
	GroupID: "keepalive",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Issue or rotate a user's token",
	Long: `Issue a new token for a user, replacing any existing one. Requests
carrying the previous token are rejected from then on.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		rec, err := app.Services.KeepAlive.RotateToken(cmd.Context(), userID)
		if err != nil {
			return fmt.Errorf("issuing token: %w", err)
		}

		if jsonOutput {
			return printJSON(os.Stdout, rec)
		}
		fmt.Printf("User:  %s\nToken: %s\n", rec.UserID, rec.UserToken)
		return nil
	},
}

func init() {
	tokenIssueCmd.Flags().String("user", "", "user id (required)")
	_ = tokenIssueCmd.MarkFlagRequired("user")
	tokenCmd.AddCommand(tokenIssueCmd)
}
