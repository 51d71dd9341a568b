// main.go - Admin control tool for sitepulse
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"sitepulse/internal"
)

const (
	defaultShutdownTimeout = 30 * time.Second
)

var (
	jsonOutput bool

	app *internal.Application
)

var rootCmd = &cobra.Command{
	Use:           "pulsectl <command>",
	Short:         "Admin tool for the sitepulse server",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		a, err := internal.NewApp()
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}
		app = a
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if app == nil {
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer cancel()
		if err := app.Shutdown(ctx); err != nil {
			log.Printf("Warning: Cleanup error: %v", err)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output as JSON")

	rootCmd.AddGroup(
		&cobra.Group{ID: "keepalive", Title: "Keep-alive:"},
		&cobra.Group{ID: "analytics", Title: "Analytics:"},
		&cobra.Group{ID: "system", Title: "System:"},
	)

	// Keep-alive
	rootCmd.AddCommand(configsCmd)
	rootCmd.AddCommand(tokenCmd)
	rootCmd.AddCommand(sweepCmd)

	// Analytics
	rootCmd.AddCommand(rankCmd)
	rootCmd.AddCommand(seedCmd)

	// System
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(statusCmd)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
