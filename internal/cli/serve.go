package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/FinnMacCumail/claude-agentic-netbox/internal/config"
	"github.com/FinnMacCumail/claude-agentic-netbox/internal/gateway"
	"github.com/FinnMacCumail/claude-agentic-netbox/internal/infra"
	"github.com/FinnMacCumail/claude-agentic-netbox/internal/system/logger"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the chat gateway server",
	Long: `Start the WebSocket + HTTP gateway that turns natural-language
questions into Netbox lookups via an Anthropic model and a Netbox MCP
tool server.`,
	RunE: runServe,
}

var (
	serveAddr    string
	serveVerbose bool
	serveLogDir  string
)

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "Listen address, overrides GATEWAY_ADDR (default 127.0.0.1:8787)")
	serveCmd.Flags().BoolVarP(&serveVerbose, "verbose", "v", false, "Enable debug logging")
	serveCmd.Flags().StringVar(&serveLogDir, "log-dir", "", "Log file directory (default ~/.netboxgw/logs)")
}

func runServe(cmd *cobra.Command, args []string) error {
	level := slog.LevelInfo
	if serveVerbose {
		level = slog.LevelDebug
	}

	logCfg := logger.DefaultConfig()
	logCfg.Level = level
	if serveLogDir != "" {
		logCfg.Dir = serveLogDir
	}
	logMgr, err := logger.New(logCfg)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer logMgr.Close()

	slogger := logMgr.NewLogger()
	slog.SetDefault(slogger)

	infra.PrintBanner(version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if cmd.Flags().Changed("addr") {
		cfg.ListenAddr = serveAddr
	}

	slogger.Info("starting netboxgw gateway",
		"version", version,
		"addr", cfg.ListenAddr,
		"default_model", cfg.DefaultModelID,
		"log_file", logMgr.CurrentLogFile(),
	)

	srv := gateway.NewServer(cfg, slogger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(ctx, cfg.ListenAddr); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		slogger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		cancel()
		return err
	}

	return nil
}
