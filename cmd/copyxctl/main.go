// copyxctl manages the copyx snippet collection and helps debug expansion.
//
//	copyxctl list [--search text]       List snippets in stored order
//	copyxctl add <shortcut> <body>      Add a snippet
//	copyxctl rm <id|shortcut>           Remove a snippet
//	copyxctl import <file> [--replace]  Import a JSON collection
//	copyxctl export [file]              Export the collection as JSON
//	copyxctl expand <template>          Resolve a template and show the caret
//	copyxctl simulate <text>            Type text through the expander
//	copyxctl stats                      Show the daemon's last metrics snapshot
//	copyxctl config [--init]            Print or create the configuration
//
// copyxd picks up every change made here without a restart.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"copyx/internal/config"
	"copyx/internal/logging"
	"copyx/internal/store"
)

// app carries what every subcommand needs once the root command has run.
type app struct {
	configPath string
	verbose    bool

	cfg    *config.Config
	logger *slog.Logger
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:   "copyxctl",
		Short: "Manage copyx snippets",
		Long: `copyxctl edits the snippet collection that copyxd expands from.

Snippets are stored in the backend named by the storage section of the
copyx config (a JSON file by default, or SQLite).`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.init(cmd)
		},
	}

	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "Config file (default: platform config dir)")
	root.PersistentFlags().BoolVarP(&a.verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		a.listCmd(),
		a.addCmd(),
		a.rmCmd(),
		a.importCmd(),
		a.exportCmd(),
		a.expandCmd(),
		a.simulateCmd(),
		a.statsCmd(),
		a.configCmd(),
	)
	return root
}

func (a *app) init(cmd *cobra.Command) error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	a.cfg = cfg

	level := logging.LevelWarn
	if a.verbose {
		level = logging.LevelDebug
	}
	l, err := logging.New(&logging.Config{
		Level:     level,
		Format:    logging.FormatText,
		Output:    "stderr",
		Component: "copyxctl",
	})
	if err != nil {
		return fmt.Errorf("setup logging: %w", err)
	}
	a.logger = l.Logger
	return nil
}

func (a *app) openStore() (store.Store, error) {
	st, err := store.Open(a.cfg.Storage.Type, a.cfg.Storage.Path, store.SQLiteOptions{
		BusyTimeout: a.cfg.BusyTimeout(),
		Logger:      a.logger,
	})
	if err != nil {
		return nil, fmt.Errorf("open snippet store: %w", err)
	}
	return st, nil
}
