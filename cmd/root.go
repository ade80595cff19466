package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/CosmoTheDev/devsecwatch-worker/internal/config"
	"github.com/spf13/cobra"
)

// Version is set at build time via -ldflags.
var Version = "dev"

var (
	cfgFile string
	verbose bool
)

// rootCmd is the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "devsecwatch",
	Short: "Scan job worker for repository security analysis",
	Long: `devsecwatch consumes scan jobs from a durable queue, clones each
repository, runs static analysis, explains every finding through the AI
explanation service (with cached and templated fallbacks), stores the
report and notifies the job owner.

Get started:
  devsecwatch doctor     Verify database, redis, analyzer and AI service
  devsecwatch migrate    Apply database migrations
  devsecwatch worker     Run the queue consumer
  devsecwatch submit     Create a scan job and publish it`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute is the entry point called from main.go.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		"config file (default: ~/.devsecwatch/config.json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable verbose/debug output")

	rootCmd.Version = Version
	rootCmd.AddCommand(
		workerCmd,
		submitCmd,
		migrateCmd,
		configCmd,
		doctorCmd,
	)
}

func initConfig() {
	if verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
		slog.Debug("Verbose logging enabled")
	}
}

// loadConfig loads the config and installs the configured slog handler.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	setupLogger(cfg.Logging)
	return cfg, nil
}

func setupLogger(cfg config.LoggingConfig) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level, AddSource: verbose}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(handler))
}
