// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"sync"

	"github.com/spf13/pflag"

	"github.com/keel-rpc/keel/cmd/keel/cli"
	"github.com/keel-rpc/keel/lib/netutil"
	"github.com/keel-rpc/keel/transport"
)

type tapOptions struct {
	network         string
	listen          string
	upstreamNetwork string
	upstream        string
	outputDirectory string
	logLevel        string
}

func tapCommand() *cli.Command {
	var options tapOptions

	return &cli.Command{
		Name:    "tap",
		Summary: "Proxy connections to a server and record the traffic",
		Description: `Proxy connections to a server and record the traffic.

Every accepted connection is forwarded to the upstream server. The bytes
each side sends are written, unmodified, to conn-N.calls.bin and
conn-N.replies.bin in the output directory, ready for keel dump with the
same transport flags the peers use. Runs until interrupted, then waits
for open connections to close.`,
		Usage: "keel tap [flags] --listen <address> --upstream <address>",
		Examples: []cli.Example{
			{
				Description: "Record calls to a local calculator",
				Command:     "keel tap --listen 127.0.0.1:9091 --upstream 127.0.0.1:9090 --output /tmp/capture",
			},
		},
		Flags: func() *pflag.FlagSet {
			flagSet := pflag.NewFlagSet("tap", pflag.ContinueOnError)
			flagSet.StringVar(&options.network, "network", "tcp", "network to listen on: tcp or unix")
			flagSet.StringVar(&options.listen, "listen", "", "address or socket path to listen on")
			flagSet.StringVar(&options.upstreamNetwork, "upstream-network", "tcp", "network of the upstream server: tcp or unix")
			flagSet.StringVar(&options.upstream, "upstream", "", "address or socket path of the upstream server")
			flagSet.StringVarP(&options.outputDirectory, "output", "o", ".", "directory for the capture files")
			flagSet.StringVar(&options.logLevel, "log-level", "info", "debug, info, warn, or error")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			if len(args) > 0 {
				return fmt.Errorf("unexpected argument %q", args[0])
			}
			if options.listen == "" || options.upstream == "" {
				return fmt.Errorf("--listen and --upstream are required")
			}
			var level slog.Level
			if err := level.UnmarshalText([]byte(options.logLevel)); err != nil {
				return fmt.Errorf("--log-level: %w", err)
			}
			if err := os.MkdirAll(options.outputDirectory, 0o755); err != nil {
				return err
			}
			return runTap(ctx, options, cli.NewCommandLogger(level).With("command", "tap"))
		},
	}
}

func runTap(ctx context.Context, options tapOptions, logger *slog.Logger) error {
	listener := transport.NewServerSocket(options.network, options.listen, transport.SocketConfig{})
	if err := listener.Listen(); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		listener.Close()
	}()
	logger.Info("tap listening", "address", listener.Addr().String(), "upstream", options.upstream)

	var connections sync.WaitGroup
	defer connections.Wait()
	for sequence := 1; ; sequence++ {
		client, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) || errors.Is(err, transport.ErrNotOpen) {
				return nil
			}
			return err
		}
		connections.Add(1)
		go func() {
			defer connections.Done()
			tapConnection(ctx, options, sequence, client, logger.With("connection", sequence))
		}()
	}
}

// tapConnection forwards one client connection upstream, recording each
// direction to its own file.
func tapConnection(ctx context.Context, options tapOptions, sequence int, client *transport.Socket, logger *slog.Logger) {
	defer client.Close()

	upstream := transport.NewSocket(options.upstreamNetwork, options.upstream, transport.SocketConfig{})
	if err := upstream.OpenContext(ctx); err != nil {
		logger.Error("connecting upstream", "error", err)
		return
	}
	defer upstream.Close()

	prefix := filepath.Join(options.outputDirectory, fmt.Sprintf("conn-%d", sequence))
	calls, err := os.Create(prefix + ".calls.bin")
	if err != nil {
		logger.Error("creating capture file", "error", err)
		return
	}
	defer calls.Close()
	replies, err := os.Create(prefix + ".replies.bin")
	if err != nil {
		logger.Error("creating capture file", "error", err)
		return
	}
	defer replies.Close()

	clientConn, upstreamConn := client.Conn(), upstream.Conn()

	// Closing the client side ends the bridge when the tap shuts down.
	stop := context.AfterFunc(ctx, func() { clientConn.Close() })
	defer stop()

	stats, err := netutil.Bridge(
		clientConn, io.TeeReader(clientConn, calls),
		upstreamConn, io.TeeReader(upstreamConn, replies),
	)
	if err != nil {
		logger.Warn("connection ended on error", "error", err, "call_bytes", stats.AToB, "reply_bytes", stats.BToA)
		return
	}
	logger.Info("connection recorded", "call_bytes", stats.AToB, "reply_bytes", stats.BToA, "capture", prefix)
}
