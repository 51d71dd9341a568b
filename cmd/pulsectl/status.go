package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"sitepulse/internal/analytics"
	"sitepulse/internal/kv"
)

type statusReport struct {
	Database           string `json:"database"`
	AnalyticsMode      string `json:"analyticsMode"`
	StoredEntries      int64  `json:"storedEntries"`
	StoredPageViews    int64  `json:"storedPageViews"`
	MaxOpenConnections int    `json:"maxOpenConnections"`
	OpenConnections    int    `json:"openConnections"`
	InUse              int    `json:"inUse"`
	Idle               int    `json:"idle"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show database and engine status",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		db := app.DBManager.GetConnection().WithContext(cmd.Context())

		report := statusReport{
			Database:      "connected",
			AnalyticsMode: app.Services.Config.AnalyticsMode,
		}
		if err := db.Model(&kv.Entry{}).Count(&report.StoredEntries).Error; err != nil {
			return fmt.Errorf("database error: %w", err)
		}
		if app.Services.Local != nil {
			if err := db.Model(&analytics.PageView{}).Count(&report.StoredPageViews).Error; err != nil {
				return fmt.Errorf("database error: %w", err)
			}
		}

		sqlDB, err := db.DB()
		if err != nil {
			return fmt.Errorf("failed to get SQL DB: %w", err)
		}
		stats := sqlDB.Stats()
		report.MaxOpenConnections = stats.MaxOpenConnections
		report.OpenConnections = stats.OpenConnections
		report.InUse = stats.InUse
		report.Idle = stats.Idle

		if jsonOutput {
			return printJSON(os.Stdout, report)
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Database:\t%s\n", report.Database)
		fmt.Fprintf(w, "Analytics mode:\t%s\n", report.AnalyticsMode)
		fmt.Fprintf(w, "Stored entries:\t%s\n", formatCount(report.StoredEntries))
		if app.Services.Local != nil {
			fmt.Fprintf(w, "Stored page views:\t%s\n", formatCount(report.StoredPageViews))
		}
		fmt.Fprintf(w, "Max open connections:\t%d\n", report.MaxOpenConnections)
		fmt.Fprintf(w, "Open connections:\t%d\n", report.OpenConnections)
		fmt.Fprintf(w, "In use:\t%d\n", report.InUse)
		fmt.Fprintf(w, "Idle:\t%d\n", report.Idle)
		return w.Flush()
	},
}
