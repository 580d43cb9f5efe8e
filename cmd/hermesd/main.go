// Package main implements the hermesd entry point: the per-host broker
// process that drives discovery, clock sync, Node lifecycle, and storage
// for one HERMES session.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	hermeserrors "github.com/emedia-lab/hermes/errors"

	"github.com/emedia-lab/hermes/broker"
	"github.com/emedia-lab/hermes/config"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "hermesd"
)

// Exit codes, spec.md §6.
const (
	exitClean           = 0
	exitUserAbort       = 1
	exitConfigError     = 2
	exitDiscoverySync   = 3
	exitStorageOverflow = 4
	exitFatalRuntime    = 5
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(exitFatalRuntime)
		}
	}()
	os.Exit(run())
}

func run() int {
	cliCfg, logger, shouldExit, code := initializeCLI()
	if shouldExit {
		return code
	}

	cfg, err := loadConfig(cliCfg.ConfigPath)
	if err != nil {
		slog.Error("configuration load failed", "error", err)
		return exitConfigError
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("configuration invalid", "error", err)
		return exitConfigError
	}
	if cliCfg.Validate {
		slog.Info("configuration is valid")
		return exitClean
	}

	b, err := broker.New(cfg, os.Stdin, logger)
	if err != nil {
		slog.Error("broker construction failed", "error", err)
		return exitConfigError
	}

	return runWithSignalHandling(b, cliCfg.ShutdownTimeout)
}

// initializeCLI parses flags, installs the logger, and reports whether
// the process should exit immediately (for --version/--help/bad flags).
func initializeCLI() (*CLIConfig, *slog.Logger, bool, int) {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		return nil, nil, true, exitConfigError
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s version %s (%s)\n", appName, Version, BuildTime)
		return nil, nil, true, exitClean
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil, nil, true, exitClean
	}

	logger := setupLogger(cliCfg.LogLevel, cliCfg.LogFormat)
	slog.SetDefault(logger)
	slog.Info("starting hermesd", "version", Version, "config_path", cliCfg.ConfigPath)
	return cliCfg, logger, false, exitClean
}

func loadConfig(path string) (*config.Config, error) {
	loader := config.NewLoader()
	cfg, err := loader.LoadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

// runWithSignalHandling drives the Broker's FSM to completion, translating
// the first SIGINT/SIGTERM into a graceful DRAIN and a second into an
// immediate abort, per spec.md §6's exit-code table. A DRAIN still running
// shutdownTimeout after the first signal is abandoned the same way.
func runWithSignalHandling(b *broker.Broker, shutdownTimeout time.Duration) int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runDone := make(chan error, 1)
	go func() { runDone <- b.Run(ctx) }()

	select {
	case err := <-runDone:
		return exitCodeFor(err)
	case <-ctx.Done():
		slog.Info("received shutdown signal, draining")
	}

	select {
	case err := <-runDone:
		return exitCodeFor(err)
	case <-forceAbortSignal():
		slog.Warn("second shutdown signal received, aborting")
		return exitUserAbort
	case <-time.After(shutdownTimeout):
		slog.Warn("shutdown grace period elapsed, aborting", "timeout", shutdownTimeout)
		return exitUserAbort
	}
}

// forceAbortSignal returns a channel that fires on a second SIGINT/SIGTERM.
func forceAbortSignal() <-chan os.Signal {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	return ch
}

func exitCodeFor(err error) int {
	if err == nil {
		return exitClean
	}
	switch {
	case errors.Is(err, hermeserrors.ErrDiscoveryTimeout),
		errors.Is(err, hermeserrors.ErrSyncAmbiguous),
		errors.Is(err, hermeserrors.ErrSyncTimeout):
		slog.Error("discovery/sync failure", "error", err)
		return exitDiscoverySync
	case errors.Is(err, hermeserrors.ErrStorageOverflow):
		slog.Error("storage overflow", "error", err)
		return exitStorageOverflow
	case errors.Is(err, hermeserrors.ErrInvalidConfig), errors.Is(err, hermeserrors.ErrMissingConfig):
		slog.Error("configuration error", "error", err)
		return exitConfigError
	default:
		slog.Error("broker run failed", "error", err)
		return exitFatalRuntime
	}
}
