package main

import (
	"errors"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"sitepulse/internal"
	"sitepulse/internal/seeder"
)

var seedCmd = &cobra.Command{
	Use:     "seed",
	Short:   "Fill the embedded engine with sample page views",
	GroupID: "analytics",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := app.Services.Config
		if app.Services.Local == nil {
			return errors.New("seeding needs the local analytics engine (analyticsMode=local)")
		}
		if cfg.IsProduction() {
			return errors.New("refusing to seed a production database")
		}

		views, _ := cmd.Flags().GetInt("views")
		days, _ := cmd.Flags().GetInt("days")
		site, _ := cmd.Flags().GetString("site")
		if site == "" {
			site = cfg.AnalyticsSite
		}

		s := newSeeder(app, site, views, days)
		inserted, err := s.Run(cmd.Context())
		if err != nil {
			return fmt.Errorf("seeding failed after %d views: %w", inserted, err)
		}

		log.Printf("Seeded %s page views for %s", formatCount(int64(inserted)), site)
		return nil
	},
}

// newSeeder builds a seeder that logs through the application's logger.
func newSeeder(a *internal.Application, site string, views, days int) *seeder.Seeder {
	s := seeder.NewSeeder(a.DBManager, a.Logger, site, a.Services.Config.VisitorSalt, views)
	s.Days = days
	return s
}

func init() {
	seedCmd.Flags().Int("views", 5000, "number of page views to generate")
	seedCmd.Flags().Int("days", 60, "spread views over this many past days")
	seedCmd.Flags().String("site", "", "site to record views for (defaults to analyticsSite)")
}
