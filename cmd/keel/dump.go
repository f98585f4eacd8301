// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/keel-rpc/keel/cmd/keel/cli"
	"github.com/keel-rpc/keel/lib/config"
	"github.com/keel-rpc/keel/lib/inspect"
	"github.com/keel-rpc/keel/transport"
)

type dumpOptions struct {
	configPath  string
	format      string
	framing     string
	compression string
	strict      bool
}

func dumpCommand(stdin io.Reader, stdout io.Writer) *cli.Command {
	var options dumpOptions
	var flagSet *pflag.FlagSet
	defaults := config.Default()

	return &cli.Command{
		Name:    "dump",
		Summary: "Decode a captured message stream",
		Description: `Decode a captured message stream without a schema.

Every message is printed with its header and the fields of its body,
each known only by field id and wire type. Input is read from the named
files in order, or from stdin when no file (or "-") is given. The
transport settings must match the ones the stream was captured with.`,
		Usage: "keel dump [flags] [file...]",
		Examples: []cli.Example{
			{Description: "Print a framed capture as a tree", Command: "keel dump capture.bin"},
			{Description: "Decode an unframed, zstd-compressed capture as JSON", Command: "keel dump --framing none --compression zstd -f json < capture.bin"},
		},
		Flags: func() *pflag.FlagSet {
			flagSet = pflag.NewFlagSet("dump", pflag.ContinueOnError)
			flagSet.StringVarP(&options.format, "format", "f", string(inspect.FormatTree),
				fmt.Sprintf("output format: %v", inspect.Formats))
			flagSet.StringVar(&options.configPath, "config", "", "read transport and protocol settings from a keel config file")
			flagSet.StringVar(&options.framing, "framing", defaults.Transport.Framing, "framing of the capture: framed, buffered, or none")
			flagSet.StringVar(&options.compression, "compression", defaults.Transport.Compression, "compression of the capture: none, lz4, or zstd")
			flagSet.BoolVar(&options.strict, "strict", false, "reject message headers without a version word")
			return flagSet
		},
		Run: func(ctx context.Context, args []string) error {
			return runDump(options, flagSet, args, stdin, stdout)
		},
	}
}

func runDump(options dumpOptions, flagSet *pflag.FlagSet, args []string, stdin io.Reader, stdout io.Writer) error {
	format, err := inspect.ParseFormat(options.format)
	if err != nil {
		return err
	}

	cfg := config.Default()
	if options.configPath != "" {
		if cfg, err = config.LoadFile(options.configPath); err != nil {
			return err
		}
	}
	if flagSet.Changed("framing") {
		cfg.Transport.Framing = options.framing
	}
	if flagSet.Changed("compression") {
		cfg.Transport.Compression = options.compression
	}
	if flagSet.Changed("strict") {
		cfg.Protocol.StrictRead = options.strict
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	data, err := readInputs(args, stdin)
	if err != nil {
		return err
	}

	stack := cfg.Transport.Wrap()(transport.NewMemoryBuffer(data))
	messages, decodeErr := inspect.ReadAll(cfg.Protocol.Factory()(stack))
	if err := inspect.Render(stdout, messages, format); err != nil {
		return err
	}
	if decodeErr != nil {
		return fmt.Errorf("after %d messages: %w", len(messages), decodeErr)
	}
	return nil
}

// readInputs concatenates the named files, reading "-" (or no names at
// all) from stdin.
func readInputs(names []string, stdin io.Reader) ([]byte, error) {
	if len(names) == 0 {
		names = []string{"-"}
	}
	var data bytes.Buffer
	for _, name := range names {
		if name == "-" {
			if _, err := data.ReadFrom(stdin); err != nil {
				return nil, fmt.Errorf("reading stdin: %w", err)
			}
			continue
		}
		contents, err := os.ReadFile(name)
		if err != nil {
			return nil, err
		}
		data.Write(contents)
	}
	return data.Bytes(), nil
}
