// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"io"

	"github.com/keel-rpc/keel/cmd/keel/cli"
	"github.com/keel-rpc/keel/lib/version"
)

// Root returns the keel command tree. Commands read input from stdin
// and write results to stdout; help and logs go to stderr.
func Root(stdin io.Reader, stdout io.Writer) *cli.Command {
	return &cli.Command{
		Name:    "keel",
		Summary: "Keel RPC toolkit",
		Description: `Keel RPC toolkit.

Records and decodes binary-protocol traffic without a schema, and
drives the tutorial Calculator service from the command line.`,
		Subcommands: []*cli.Command{
			dumpCommand(stdin, stdout),
			calcCommand(stdout),
			tapCommand(),
			{
				Name:    "version",
				Summary: "Print version information",
				Run: func(ctx context.Context, args []string) error {
					_, err := fmt.Fprintln(stdout, "keel "+version.Full())
					return err
				},
			},
		},
	}
}
