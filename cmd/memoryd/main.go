package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"memoryd/internal/config"
	"memoryd/internal/logging"
)

var (
	// Global flags
	cfgPath string
	dataDir string
	verbose bool

	// Loaded in PersistentPreRunE, shared by all subcommands.
	cfg *config.Config

	// Logger
	logger *zap.Logger
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "memoryd",
	Short: "memoryd - multi-tenant agent memory daemon",
	Long: `memoryd is a local-first memory daemon for AI agents.

It records interaction events into an append-only log, derives searchable
chunks and entities from them, and assembles mode-budgeted Active Context
Bundles (ACBs) on demand. Memory is never destructively rewritten: edits
are proposals that compose on read, and the raw event log stays intact.

Run 'memoryd serve' to start the JSON tool-dispatch loop on stdin/stdout.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgPath)
		if err != nil {
			return err
		}
		if dataDir != "" {
			cfg.DataDir = dataDir
		}
		if verbose {
			cfg.Logging.DebugMode = true
			logging.SetDebugMode(true)
		}
		if err := logging.Initialize(cfg.DataDir); err != nil {
			fmt.Fprintf(os.Stderr, "warning: file logging unavailable: %v\n", err)
		}

		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "Config file (JSON or YAML); defaults apply when missing")
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "Override the data directory")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(recordCmd)
	rootCmd.AddCommand(acbCmd)
	rootCmd.AddCommand(toolsCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
