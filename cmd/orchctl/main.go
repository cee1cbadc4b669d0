package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/cmd/orchctl/commands"
	"github.com/wombat2006/5-tier-hybrid-llm-orchestrator-sub001/internal/database"
)

var (
	dbURL      string
	apiURL     string
	outputJSON bool
	verbose    bool
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "orchctl",
		Short: "Orchestrator management CLI",
		Long: `Inspect and manage the orchestrator's budget, pricing, models, usage
sessions, and alerts. Works against the database directly (when run on the
server) or against the HTTP API (when run remotely).`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	rootCmd.PersistentFlags().StringVar(&dbURL, "db-url", "", "database URL for direct access (falls back to DATABASE_URL)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "API base URL for remote access, e.g. http://localhost:8080")
	rootCmd.PersistentFlags().BoolVar(&outputJSON, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "verbose output")

	ctx := context.Background()
	rootCmd.AddCommand(commands.NewBudgetCommand(ctx))
	rootCmd.AddCommand(commands.NewPricingCommand(ctx))
	rootCmd.AddCommand(commands.NewModelsCommand(ctx))
	rootCmd.AddCommand(commands.NewSessionsCommand(ctx))
	rootCmd.AddCommand(commands.NewAlertsCommand(ctx))

	return rootCmd
}

// initConfig wires up whichever access path the flags select. Schema
// migrations belong to the server; the CLI only reads and updates rows.
func initConfig() error {
	if dbURL != "" || os.Getenv("DATABASE_URL") != "" {
		db, err := database.Connect(&database.Config{
			DSN:            dbURL,
			MaxConnections: 2,
			MaxIdleConns:   1,
		}, zap.NewNop())
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		commands.SetDB(db)
	}

	if apiURL != "" {
		commands.SetAPIURL(apiURL)
	}

	commands.SetOutputJSON(outputJSON)
	commands.SetVerbose(verbose)

	return nil
}
