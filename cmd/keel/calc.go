// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"

	"github.com/keel-rpc/keel/cmd/keel/cli"
	"github.com/keel-rpc/keel/lib/config"
	"github.com/keel-rpc/keel/lib/rpc"
	"github.com/keel-rpc/keel/lib/tutorial"
	"github.com/keel-rpc/keel/transport"
)

// connectionOptions are the flags every calc subcommand shares.
type connectionOptions struct {
	configPath  string
	network     string
	address     string
	framing     string
	compression string
	concurrent  bool
	timeout     time.Duration
}

// declaredExceptionExit is the exit status of a call answered with a
// declared exception.
const declaredExceptionExit = 2

func calcCommand(stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "calc",
		Summary: "Call a tutorial Calculator server",
		Description: `Call a tutorial Calculator server.

Connection settings come from --config (or KEEL_CONFIG when set), then
from flags. A calculation rejected with InvalidOperation prints the
exception and exits with status 2.`,
		Subcommands: []*cli.Command{
			calcSubcommand(stdout, "ping", "", "Check that the server answers", 0,
				func(args []string) (calcCall, error) {
					return func(ctx context.Context, client *tutorial.CalculatorClient) (string, error) {
						return "pong", client.Ping(ctx)
					}, nil
				}),
			calcSubcommand(stdout, "add", "<num1> <num2>", "Add two integers", 2,
				func(args []string) (calcCall, error) {
					operands, err := parseInt32s(args...)
					if err != nil {
						return nil, err
					}
					return func(ctx context.Context, client *tutorial.CalculatorClient) (string, error) {
						sum, err := client.Add(ctx, operands[0], operands[1])
						return strconv.Itoa(int(sum)), err
					}, nil
				}),
			calcSubcommand(stdout, "calculate", "<logid> <num1> <op> <num2> [comment]",
				"Run one calculation and log it under logid", -4,
				func(args []string) (calcCall, error) {
					numbers, err := parseInt32s(args[0], args[1], args[3])
					if err != nil {
						return nil, err
					}
					op, err := tutorial.ParseOperation(args[2])
					if err != nil {
						return nil, err
					}
					work := &tutorial.Work{Num1: numbers[1], Num2: numbers[2], Op: op}
					if len(args) > 4 {
						work.SetComment(strings.Join(args[4:], " "))
					}
					return func(ctx context.Context, client *tutorial.CalculatorClient) (string, error) {
						result, err := client.Calculate(ctx, numbers[0], work)
						return strconv.Itoa(int(result)), err
					}, nil
				}),
			calcSubcommand(stdout, "get", "<logid>", "Fetch a logged calculation", 1,
				func(args []string) (calcCall, error) {
					keys, err := parseInt32s(args[0])
					if err != nil {
						return nil, err
					}
					return func(ctx context.Context, client *tutorial.CalculatorClient) (string, error) {
						logged, err := client.GetStruct(ctx, keys[0])
						if err != nil {
							return "", err
						}
						return fmt.Sprintf("%d: %s", logged.Key, logged.Value), nil
					}, nil
				}),
			calcSubcommand(stdout, "zip", "", "Send the oneway zip call", 0,
				func(args []string) (calcCall, error) {
					return func(ctx context.Context, client *tutorial.CalculatorClient) (string, error) {
						return "", client.Zip(ctx)
					}, nil
				}),
		},
	}
}

// calcCall performs one parsed call and returns the line to print.
type calcCall func(ctx context.Context, client *tutorial.CalculatorClient) (string, error)

// calcSubcommand builds one calc subcommand. arity is the exact number
// of arguments, or its negation for a minimum. parse runs before the
// connection is made, so argument mistakes never reach the server.
func calcSubcommand(stdout io.Writer, name, arguments, summary string, arity int,
	parse func(args []string) (calcCall, error)) *cli.Command {
	var options connectionOptions
	var flagSet *pflag.FlagSet

	return &cli.Command{
		Name:    name,
		Summary: summary,
		Usage:   "keel calc " + name + " [flags] " + arguments,
		Flags: func() *pflag.FlagSet {
			flagSet = connectionFlags(name, &options)
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if (arity >= 0 && len(args) != arity) || (arity < 0 && len(args) < -arity) {
				return fmt.Errorf("usage: keel calc %s %s", name, arguments)
			}
			call, err := parse(args)
			if err != nil {
				return err
			}
			cfg, err := options.load(flagSet)
			if err != nil {
				return err
			}
			level, _ := cfg.Level()
			logger := cli.NewCommandLogger(level).With("command", "calc/"+name)

			client, closeClient, err := dialCalculator(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer closeClient()

			output, err := call(ctx, client)
			var invalid *tutorial.InvalidOperation
			if errors.As(err, &invalid) {
				fmt.Fprintf(stdout, "InvalidOperation: %s (op %s)\n", invalid.Why, tutorial.Operation(invalid.WhatOp))
				return &cli.ExitError{Code: declaredExceptionExit}
			}
			if err != nil {
				return fmt.Errorf("%s: %w", name, err)
			}
			if output != "" {
				fmt.Fprintln(stdout, output)
			}
			return nil
		},
	}
}

func connectionFlags(name string, options *connectionOptions) *pflag.FlagSet {
	defaults := config.Default()
	flagSet := pflag.NewFlagSet(name, pflag.ContinueOnError)
	flagSet.StringVar(&options.configPath, "config", "", "keel config file (default $"+config.EnvironmentVariable+" when set)")
	flagSet.StringVar(&options.network, "network", defaults.Client.Network, "tcp or unix")
	flagSet.StringVar(&options.address, "address", defaults.Client.Address, "server address or socket path")
	flagSet.StringVar(&options.framing, "framing", defaults.Transport.Framing, "framed, buffered, or none")
	flagSet.StringVar(&options.compression, "compression", defaults.Transport.Compression, "none, lz4, or zstd")
	flagSet.BoolVar(&options.concurrent, "concurrent", false, "use the pipelining client")
	flagSet.DurationVar(&options.timeout, "timeout", defaults.Client.SocketTimeout, "fail a read or write that stalls this long (0 waits forever)")
	return flagSet
}

// load builds the effective configuration: the config file, if any,
// with explicitly set flags on top.
func (o *connectionOptions) load(flagSet *pflag.FlagSet) (*config.Config, error) {
	cfg := config.Default()
	var err error
	switch {
	case o.configPath != "":
		cfg, err = config.LoadFile(o.configPath)
	case flagSet.Changed("address"):
		// Flags alone describe the server; KEEL_CONFIG is not consulted.
	default:
		if loaded, loadErr := config.Load(); loadErr == nil {
			cfg = loaded
		}
	}
	if err != nil {
		return nil, err
	}

	if flagSet.Changed("network") {
		cfg.Client.Network = o.network
	}
	if flagSet.Changed("address") {
		cfg.Client.Address = o.address
	}
	if flagSet.Changed("framing") {
		cfg.Transport.Framing = o.framing
	}
	if flagSet.Changed("compression") {
		cfg.Transport.Compression = o.compression
	}
	if flagSet.Changed("concurrent") {
		cfg.Client.Concurrent = o.concurrent
	}
	if flagSet.Changed("timeout") {
		cfg.Client.SocketTimeout = o.timeout
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// dialCalculator connects to the configured server and returns a
// Calculator client with its close function.
func dialCalculator(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*tutorial.CalculatorClient, func() error, error) {
	socket := transport.NewSocket(cfg.Client.Network, cfg.Client.Address, cfg.Client.SocketConfig())
	if err := socket.OpenContext(ctx); err != nil {
		return nil, nil, err
	}
	logger.Debug("connected", "network", cfg.Client.Network, "address", cfg.Client.Address)

	p := cfg.Protocol.Factory()(cfg.Transport.Wrap()(socket))
	if cfg.Client.Concurrent {
		client := rpc.NewConcurrentClient(p, p, logger)
		return tutorial.NewCalculatorClient(client), client.Close, nil
	}
	client := rpc.NewClient(p, p)
	return tutorial.NewCalculatorClient(client), client.Close, nil
}

func parseInt32s(values ...string) ([]int32, error) {
	parsed := make([]int32, len(values))
	for i, value := range values {
		number, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%q is not a 32-bit integer", value)
		}
		parsed[i] = int32(number)
	}
	return parsed, nil
}
