package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/dispatch/internal/config"
	"github.com/harun/dispatch/internal/observability"
	"github.com/harun/dispatch/internal/tracing"
	"github.com/harun/dispatch/pkg/approval"
	"github.com/harun/dispatch/pkg/gateway"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the dispatch gateway server",
	Long: `Start the gateway server and keep it in the foreground until
interrupted. Clients connect over WebSocket to submit tool-call batches,
resolve approval prompts, and stream live output. The config file is
watched while serving, so log level and rate limit edits apply without a
restart.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if cfg.Gateway.SharedSecret == "" {
		return fmt.Errorf("gateway shared secret is required: set gateway.shared_secret in %s or DISPATCH_GATEWAY_SHARED_SECRET",
			config.NewLoader(cfgFile).GetConfigPath())
	}

	appLogger, err := newLogger(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLogger.Close()

	if cfg.Tracing.Enabled {
		if err := tracing.Init(tracing.Config{
			ServiceName: cfg.Tracing.ServiceName,
			SampleRatio: cfg.Tracing.SampleRatio,
		}); err != nil {
			appLogger.Warn().Err(err).Msg("Tracing disabled")
		} else {
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = tracing.Shutdown(ctx)
			}()
		}
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := observability.InitAuditLogger(filepath.Join(cfg.DataDir, "audit.log")); err != nil {
		appLogger.Warn().Err(err).Msg("Audit log disabled")
	} else {
		defer func() { _ = observability.GetAuditLogger().Close() }()
	}

	server, err := gateway.NewServer(gateway.Config{
		Host:              cfg.Gateway.Host,
		Port:              cfg.Gateway.Port,
		SharedSecret:      cfg.Gateway.SharedSecret,
		TickInterval:      time.Duration(cfg.Gateway.TickInterval) * time.Millisecond,
		RequestsPerMinute: cfg.Gateway.RequestsPerMinute,
		MaxConcurrent:     cfg.Gateway.MaxConcurrent,
		Logger:            appLogger.GetZerolog(),
	})
	if err != nil {
		return fmt.Errorf("failed to create gateway server: %w", err)
	}

	// In prompt mode approvals park on the bridge and are resolved by
	// connected clients over RPC. The other modes answer locally, so no
	// bridge is attached and the approval RPC methods stay unregistered.
	var handler approval.Handler
	var bridge *approval.Bridge
	switch cfg.Approval.Mode {
	case "auto-approve":
		handler = approval.AutoApprove{}
	case "deny-all":
		handler = approval.DenyAll{}
	default:
		bridge = approval.NewBridge(gateway.NewPromptForwarder(server))
		handler = bridge
	}

	sched, registry, err := buildEngine(cfg, handler)
	if err != nil {
		return err
	}
	defer sched.Close()

	server.AttachScheduler(sched, bridge)

	if err := server.Start(); err != nil {
		return fmt.Errorf("failed to start gateway server: %w", err)
	}

	watcher, err := config.NewWatcher(config.WatcherConfig{
		Loader: config.NewLoader(cfgFile),
		OnChange: func(next *config.Config) {
			if err := appLogger.SetLevel(next.Logging.Level); err != nil {
				appLogger.Warn().Err(err).Msg("Ignoring log level from reloaded config")
			}
			server.SetRateLimits(next.Gateway.RequestsPerMinute, next.Gateway.MaxConcurrent)
		},
	})
	if err != nil {
		appLogger.Warn().Err(err).Msg("Config watcher disabled")
	} else if err := watcher.Start(); err != nil {
		appLogger.Warn().Err(err).Msg("Config watcher disabled")
	} else {
		defer func() { _ = watcher.Stop() }()
	}

	appLogger.Info().
		Str("host", cfg.Gateway.Host).
		Int("port", cfg.Gateway.Port).
		Int("tools", registry.Count()).
		Str("approval_mode", cfg.Approval.Mode).
		Msg("Dispatch gateway running")
	fmt.Fprintf(cmd.OutOrStdout(), "Dispatch gateway listening on %s:%d (%d tools registered)\n",
		cfg.Gateway.Host, cfg.Gateway.Port, registry.Count())

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	appLogger.Info().Str("signal", sig.String()).Msg("Received signal, shutting down")

	sched.CancelAll("gateway shutting down")
	if err := server.Stop(); err != nil {
		return fmt.Errorf("failed to stop gateway server: %w", err)
	}
	return nil
}
