// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

// Keel-calculator serves the tutorial Calculator service, SharedService
// methods included, over the transport and protocol stack described by
// its config file. It logs JSON to stderr and shuts down cleanly on
// SIGINT or SIGTERM, waiting for open connections to finish.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/keel-rpc/keel/lib/config"
	"github.com/keel-rpc/keel/lib/process"
	"github.com/keel-rpc/keel/lib/rpc"
	"github.com/keel-rpc/keel/lib/tutorial"
	"github.com/keel-rpc/keel/lib/version"
	"github.com/keel-rpc/keel/transport"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr, nil); err != nil {
		process.Fatal(err)
	}
}

// run serves until ctx is cancelled. When ready is non-nil it receives
// the listening address once the socket is bound.
func run(ctx context.Context, args []string, stdout, stderr io.Writer, ready chan<- string) error {
	var (
		configPath     string
		network        string
		address        string
		maxConnections int
		logLevel       string
		showVersion    bool
	)
	defaults := config.Default()
	flagSet := pflag.NewFlagSet("keel-calculator", pflag.ContinueOnError)
	flagSet.SetOutput(stderr)
	flagSet.StringVar(&configPath, "config", "", "keel config file (default $"+config.EnvironmentVariable+" when set)")
	flagSet.StringVar(&network, "network", defaults.Server.Network, "tcp or unix")
	flagSet.StringVar(&address, "address", defaults.Server.Address, "listen address or socket path")
	flagSet.IntVar(&maxConnections, "max-connections", 0, "cap on concurrent connections (0 is unlimited)")
	flagSet.StringVar(&logLevel, "log-level", defaults.LogLevel, "debug, info, warn, or error")
	flagSet.BoolVar(&showVersion, "version", false, "print version information and exit")
	if err := flagSet.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	if showVersion {
		fmt.Fprintf(stdout, "keel-calculator %s\n", version.Info())
		return nil
	}

	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	if flagSet.Changed("network") {
		cfg.Server.Network = network
	}
	if flagSet.Changed("address") {
		cfg.Server.Address = address
	}
	if flagSet.Changed("max-connections") {
		cfg.Server.MaxConnections = maxConnections
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	level, _ := cfg.Level()
	logger := slog.New(slog.NewJSONHandler(stderr, &slog.HandlerOptions{Level: level}))

	if cfg.Server.Network == "unix" {
		// A socket left by a previous run would fail the bind.
		if err := os.Remove(cfg.Server.Address); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("removing stale socket: %w", err)
		}
	}
	listener := transport.NewServerSocket(cfg.Server.Network, cfg.Server.Address, transport.SocketConfig{})
	if err := listener.Listen(); err != nil {
		return err
	}

	processor := tutorial.NewCalculatorProcessor(tutorial.NewCalculatorHandler(logger), logger)
	server := rpc.NewServer(listener, processor, rpc.ServerConfig{
		Transport:      cfg.Transport.Wrap(),
		Protocol:       cfg.Protocol.Factory(),
		MaxConnections: cfg.Server.MaxConnections,
	}, logger)

	logger.Info("calculator starting",
		"version", version.Short(),
		"framing", cfg.Transport.Framing,
		"compression", cfg.Transport.Compression,
	)
	if ready != nil {
		ready <- server.Addr().String()
	}
	if err := server.Serve(ctx); err != nil {
		return err
	}
	logger.Info("calculator stopped")
	return nil
}

// loadConfig loads path, or the file KEEL_CONFIG names, or falls back
// to the defaults when neither is given.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	if os.Getenv(config.EnvironmentVariable) != "" {
		return config.Load()
	}
	return config.Default(), nil
}
