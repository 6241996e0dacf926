// Package app provides the entry point for the flowstate command-line
// application.
package app

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/flowstate-dev/flowstate/pkg/engine"
	"github.com/flowstate-dev/flowstate/pkg/logger"
	"github.com/flowstate-dev/flowstate/pkg/storage"
	"github.com/flowstate-dev/flowstate/pkg/storage/sqlite"
)

var rootCmd = &cobra.Command{
	Use:               "flowstate",
	DisableAutoGenTag: true,
	Short:             "Durable workflow orchestration engine",
	Long: `flowstate runs workflows defined as step graphs: each step invokes an
action, transitions between steps can be guarded by conditions over the
workflow data, and instance state is persisted after every step so
workflows survive restarts.

Instances are stored in SQLite when --db points at a database file, or in
memory for single-run use.`,
	Run: func(cmd *cobra.Command, _ []string) {
		// If no subcommand is provided, print help
		if err := cmd.Help(); err != nil {
			logger.Errorf("Error displaying help: %v", err)
		}
	},
	PersistentPreRun: func(_ *cobra.Command, _ []string) {
		logger.Initialize()
	},
}

// NewRootCmd creates a new root command for the flowstate CLI.
func NewRootCmd() *cobra.Command {
	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug mode")
	if err := viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug")); err != nil {
		logger.Errorf("Error binding debug flag: %v", err)
	}

	rootCmd.PersistentFlags().String("db", "", "Path to the SQLite database (in-memory store when empty)")
	if err := viper.BindPFlag("db", rootCmd.PersistentFlags().Lookup("db")); err != nil {
		logger.Errorf("Error binding db flag: %v", err)
	}

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newStatusCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newCancelCmd())
	rootCmd.AddCommand(newVersionCmd())

	// Silence printing the usage on error
	rootCmd.SilenceUsage = true

	return rootCmd
}

// openStore opens the configured instance store: SQLite when --db is set,
// in-memory otherwise.
func openStore(ctx context.Context) (storage.Store, error) {
	if path := viper.GetString("db"); path != "" {
		return sqlite.New(ctx, path)
	}
	return storage.NewMemoryStore(), nil
}

// newEngine builds an engine over the configured store.
func newEngine(ctx context.Context) (*engine.Engine, storage.Store, error) {
	store, err := openStore(ctx)
	if err != nil {
		return nil, nil, err
	}
	eng, err := engine.New(store)
	if err != nil {
		_ = store.Close()
		return nil, nil, err
	}
	return eng, store, nil
}
