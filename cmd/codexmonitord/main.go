// Command codexmonitord is the workspace-session daemon: it owns the
// registry, the per-workspace child sessions, and the TCP server that
// multiplexes client requests and events onto them.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/workspace/codexmonitord/internal/appsettings"
	"github.com/workspace/codexmonitord/internal/audit"
	"github.com/workspace/codexmonitord/internal/config"
	"github.com/workspace/codexmonitord/internal/dispatcher"
	"github.com/workspace/codexmonitord/internal/eventbus"
	"github.com/workspace/codexmonitord/internal/logging"
	"github.com/workspace/codexmonitord/internal/ops"
	"github.com/workspace/codexmonitord/internal/registry"
	"github.com/workspace/codexmonitord/internal/server"
	"github.com/workspace/codexmonitord/internal/sessions"
)

// version is set at build time via -ldflags; "dev" otherwise.
var version = "dev"

func main() {
	cfg, err := config.Parse(os.Args[1:], os.Stderr)
	if err != nil {
		if _, ok := err.(*config.UsageError); ok {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(2)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	logging.SetupWithConfig(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	log := slog.Default()

	if err := run(cfg, log); err != nil {
		log.Error("daemon exited with error", "err", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *slog.Logger) error {
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	reg, err := registry.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open registry: %w", err)
	}

	settings, err := appsettings.Open(cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open app settings: %w", err)
	}

	auditStore, err := audit.Open(filepath.Join(cfg.DataDir, "audit.db"))
	if err != nil {
		return fmt.Errorf("open audit store: %w", err)
	}
	defer auditStore.Close()

	bus := eventbus.New(eventbus.DefaultCapacity)
	defer bus.Close()

	sessionMgr := sessions.New(bus, settings, log)
	defer sessionMgr.StopAll()

	promptsDir := filepath.Join(cfg.DataDir, "prompts")
	if err := os.MkdirAll(promptsDir, 0o755); err != nil {
		return fmt.Errorf("create prompts dir: %w", err)
	}

	shutdownCh := make(chan struct{}, 1)
	deps := &ops.Deps{
		Registry:       reg,
		Sessions:       sessionMgr,
		Bus:            bus,
		Settings:       settings,
		Audit:          auditStore,
		PolicyPath:     filepath.Join(cfg.DataDir, "policy.toml"),
		PromptsDir:     promptsDir,
		Log:            log,
		Version:        version,
		InsecureNoAuth: cfg.InsecureNoAuth,
		ShutdownFunc: func() {
			select {
			case shutdownCh <- struct{}{}:
			default:
			}
		},
	}

	usageCtx, stopUsageListener := context.WithCancel(context.Background())
	defer stopUsageListener()
	go deps.RunUsageListener(usageCtx)

	d := dispatcher.New(deps)
	srv := server.New(server.Config{
		Listen:         cfg.Listen,
		Token:          cfg.Token,
		InsecureNoAuth: cfg.InsecureNoAuth,
		Dispatcher:     d,
		Bus:            bus,
		Log:            log,
	})

	errCh := make(chan error, 1)
	go func() {
		if err := srv.Start(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		log.Info("received signal, shutting down", "signal", sig.String())
	case <-shutdownCh:
		log.Info("daemon_shutdown requested, shutting down")
	}

	srv.Stop()
	return nil
}
