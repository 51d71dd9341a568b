package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var rankCmd = &cobra.Command{
	Use:     "rank",
	Short:   "Show view totals and the most viewed pages",
	GroupID: "analytics",
	RunE: func(cmd *cobra.Command, args []string) error {
		report := app.Services.Reporter.Rank(cmd.Context())

		if jsonOutput {
			return printJSON(os.Stdout, report)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', tabwriter.AlignRight)
		fmt.Fprintln(w, "TOTAL\tMONTH\tWEEK\tDAY\t")
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t\n",
			formatCount(report.Summary.Total), formatCount(report.Summary.Month),
			formatCount(report.Summary.Week), formatCount(report.Summary.Day))
		if err := w.Flush(); err != nil {
			return err
		}

		if len(report.Pages) == 0 {
			fmt.Println("\nNo page views recorded.")
			return nil
		}

		fmt.Println()
		w = tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "#\tVIEWS\tPAGE")
		for i, p := range report.Pages {
			fmt.Fprintf(w, "%d\t%s\t%s\n", i+1, formatCount(p.Views), p.Page)
		}
		return w.Flush()
	},
}
