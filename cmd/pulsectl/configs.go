package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sitepulse/internal/keepalive"
)

var configsCmd = &cobra.Command{
	Use:     "configs",
	Short:   "Inspect stored keep-alive configs",
	GroupID: "keepalive",
}

var configsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List keep-alive configs",
	Long: `List stored keep-alive configs. Credentials are never printed.

Examples:
  pulsectl configs list
  pulsectl configs list --user alice`,
	RunE: func(cmd *cobra.Command, args []string) error {
		userID, _ := cmd.Flags().GetString("user")

		var (
			records []keepalive.ConfigRecord
			err     error
		)
		if userID != "" {
			records, err = app.Services.KeepAlive.ListOwned(cmd.Context(), userID)
		} else {
			records, err = app.Services.KeepAlive.ListAll(cmd.Context())
		}
		if err != nil {
			return fmt.Errorf("listing configs: %w", err)
		}

		if jsonOutput {
			return printJSON(os.Stdout, records)
		}
		return printConfigs(records)
	},
}

func init() {
	configsListCmd.Flags().String("user", "", "only show configs owned by this user")
	configsCmd.AddCommand(configsListCmd)
}

func printConfigs(records []keepalive.ConfigRecord) error {
	if len(records) == 0 {
		fmt.Println("No configs found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tUSER\tNAME\tTARGET\tACTIVE\tRUNS\tLAST RUN\tNEXT RUN\tLAST RESULT")
	for _, r := range records {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%d\t%s\t%s\t%s\n",
			r.ConfigID, r.UserID, truncate(r.ConfigName, 30), r.TargetUID, r.IsActive,
			r.ExecutionCount, formatTime(r.LastExecuted), formatTime(r.NextExecution),
			truncate(r.LastResult, 40))
	}
	return w.Flush()
}
