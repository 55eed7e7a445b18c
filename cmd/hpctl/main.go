package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/config"
	"github.com/danielpatrickdp/hanging-protocols/go-resolver/internal/logging"
)

// #region globals
var (
	cfg    config.Config
	logger *zap.Logger

	verbose      bool
	logLevel     string
	protocolsDir string
	dbPath       string
	minScore     float64
	tieBreak     string
	noBuiltins   bool
)

// #endregion globals

// #region root
var rootCmd = &cobra.Command{
	Use:   "hpctl",
	Short: "Hanging protocol resolver",
	Long: `hpctl picks a hanging protocol for a set of loaded studies and prints the
resulting viewport layout.

Protocols come from the built-in library plus any YAML or JSON files in the
protocol directory (--protocols or HP_PROTOCOLS).`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		applyFlagOverrides(cmd)

		level := cfg.LogLevel
		if verbose {
			level = "debug"
		}
		logger, err = logging.NewLogger(level, false)
		if err != nil {
			return err
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func applyFlagOverrides(cmd *cobra.Command) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if flags.Changed("protocols") {
		cfg.ProtocolsDir = protocolsDir
	}
	if flags.Changed("db") {
		cfg.DBPath = dbPath
	}
	if flags.Changed("min-score") {
		cfg.MinimumScore = minScore
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (or set HP_LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&protocolsDir, "protocols", "", "Protocol library directory (or set HP_PROTOCOLS)")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "History database path (or set HP_DB)")
	rootCmd.PersistentFlags().Float64Var(&minScore, "min-score", 0, "Lowest score a protocol may win with (or set HP_MIN_SCORE)")
	rootCmd.PersistentFlags().StringVar(&tieBreak, "tie-break", "registration", "Equal-score order: registration or protocol_id")
	rootCmd.PersistentFlags().BoolVar(&noBuiltins, "no-builtins", false, "Do not load the built-in protocol library")

	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(replayCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(watchCmd)
}

// #endregion root

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
