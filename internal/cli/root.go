// Package cli provides the command-line interface for urdufact.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/urdufact-go/internal/config"
	"github.com/raphaelgruber/urdufact-go/internal/db"
	"github.com/raphaelgruber/urdufact-go/internal/metrics"
	"github.com/spf13/cobra"
)

var (
	// Version is set at build time.
	Version = "0.1.0"

	// Global flags
	cfgFile      string
	verbose      bool
	showProgress bool

	// Global config, logger and optional db client
	v          = config.NewViper()
	cfg        config.Config
	logger     = slog.Default()
	logCleanup = func() error { return nil }
	collector  = metrics.NewCollector()
	dbClient   *db.Client
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "urdufact",
	Short: "Urdu fact-checking benchmark pipeline",
	Long: `Urdufact translates English QA and claim datasets into Urdu with an LLM,
runs fact-checking evaluations over the translated claims and reports
classification scores together with the model and search cost of every run.

Every run is resumable: records already present in the output file are
skipped, and the output is rewritten after each processed record.`,
	Version:      Version,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		// No config needed for version and help
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		cfg, err = config.Load(v, cfgFile)
		if err != nil {
			return err
		}

		level := cfg.LogLevel()
		if verbose {
			level = slog.LevelDebug
		}
		logger, logCleanup = config.SetupLogger(cfg.Log.File, level, progressEnabled())
		slog.SetDefault(logger)

		if cfg.SurrealDB.URL == "" {
			return nil
		}

		ctx := cmd.Context()
		dbClient, err = db.NewClient(ctx, db.ConfigFrom(cfg.SurrealDB), logger, collector)
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		if err := dbClient.InitSchema(ctx); err != nil {
			return fmt.Errorf("initialize schema: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if dbClient != nil {
			if err := dbClient.Close(context.Background()); err != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to close database: %v\n", err)
			}
		}
		_ = logCleanup()
	},
}

// Execute runs the root command. SIGINT and SIGTERM cancel the command
// context; a cancelled run can be resumed by running it again.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&cfgFile, "config", "c", "", "config file (default ./urdufact.yaml)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	flags.BoolVar(&showProgress, "progress", false, "show a progress bar when attached to a terminal")

	// Flags override config file and environment
	flags.String("provider", "", "LLM provider (openai, anthropic, ollama, bedrock, gemini)")
	flags.String("model", "", "LLM model name")
	flags.String("cost-dir", "", "root directory of cost ledgers and results")
	flags.String("log-file", "", "JSON log file")
	flags.String("log-level", "", "log level (DEBUG, INFO, WARN, ERROR)")
	flags.String("surrealdb-url", "", "SurrealDB URL for usage mirroring and run history")
	for key, name := range map[string]string{
		"llm.provider":  "provider",
		"llm.model":     "model",
		"cost.dir":      "cost-dir",
		"log.file":      "log-file",
		"log.level":     "log-level",
		"surrealdb.url": "surrealdb-url",
	} {
		_ = v.BindPFlag(key, flags.Lookup(name))
	}

	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(usageCmd)
	rootCmd.AddCommand(runsCmd)
	rootCmd.AddCommand(versionCmd)
}
