package main

import (
	"fmt"
	"log"

	"github.com/spf13/cobra"
)

var migrateCmd = &cobra.Command{
	Use:     "migrate",
	Short:   "Run database migrations",
	GroupID: "system",
	RunE: func(cmd *cobra.Command, args []string) error {
		log.Println("Running database migrations...")
		if err := app.DBManager.MigrateDatabase(); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
		log.Println("Migrations completed successfully")
		return nil
	},
}
