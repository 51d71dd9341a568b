package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var sweepCmd = &cobra.Command{
	Use:     "sweep",
	Short:   "Run one keep-alive sweep now",
	GroupID: "keepalive",
	Long: `Run one keep-alive sweep over every stored config, calling the targets
that are due in the current window. Use this when the server is not running
or to check a freshly created config without waiting for the next tick.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		summary := app.Services.KeepAlive.Sweep(cmd.Context())

		if jsonOutput {
			return printJSON(os.Stdout, summary)
		}

		fmt.Printf("Scanned %d configs, %d due: %d succeeded, %d failed, %d skipped (%s)\n",
			summary.Scanned, summary.Due, summary.Succeeded, summary.Failed, summary.Skipped,
			summary.FinishedAt.Sub(summary.StartedAt).Round(time.Millisecond))
		for _, e := range summary.Errors {
			fmt.Printf("  - %s\n", e)
		}
		return nil
	},
}
