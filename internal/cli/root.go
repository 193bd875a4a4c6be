package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/dispatch/internal/config"
	"github.com/harun/dispatch/internal/demotools"
	"github.com/harun/dispatch/internal/logger"
	"github.com/harun/dispatch/pkg/approval"
	"github.com/harun/dispatch/pkg/scheduler"
	"github.com/harun/dispatch/pkg/toolregistry"
)

const version = "0.1.0"

var (
	cfgFile  string
	logLevel string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "dispatch",
	Short: "Dispatch - tool-call scheduling and execution engine",
	Long: `Dispatch runs batches of model-requested tool calls through a
validating, approval-gated, concurrency-aware scheduler. It ships a small
set of demonstration tools, a terminal approval flow, and a WebSocket
gateway for remote batch submission and approval resolution.`,
	Version: version,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.dispatch/dispatch.json)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	// Version template
	rootCmd.SetVersionTemplate(`{{with .Name}}{{printf "%s " .}}{{end}}{{printf "version %s" .Version}}
`)
}

// GetRootCmd returns the root command for testing
func GetRootCmd() *cobra.Command {
	return rootCmd
}

// GetVersion returns the current version
func GetVersion() string {
	return version
}

// loadConfig reads the config file and applies the command-line log level
// override.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger from config. Pretty console output
// is for interactive commands; serve logs structured JSON.
func newLogger(cfg *config.Config, pretty bool) (*logger.Logger, error) {
	return logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   true,
		Pretty:    pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSize:   cfg.Logging.MaxSize,
		MaxAge:    cfg.Logging.MaxAge,
		Compress:  cfg.Logging.Compress,
	})
}

// buildEngine assembles the registry with the demo tools, the approval
// gate around the given handler, and the scheduler.
func buildEngine(cfg *config.Config, handler approval.Handler) (*scheduler.Scheduler, *toolregistry.Registry, error) {
	registry := toolregistry.New(
		toolregistry.WithDefaultTimeout(time.Duration(cfg.Tools.ExecTimeoutSeconds) * time.Second),
	)
	if err := demotools.Register(registry); err != nil {
		return nil, nil, fmt.Errorf("failed to register demo tools: %w", err)
	}

	gate := approval.NewGate(approval.NewSession(), handler)
	sched := scheduler.New(registry, gate)
	return sched, registry, nil
}
