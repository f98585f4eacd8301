// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"

	"github.com/keel-rpc/keel/lib/protocol"
	"github.com/keel-rpc/keel/transport"
)

// EnvironmentVariable names the variable Load reads the config path
// from.
const EnvironmentVariable = "KEEL_CONFIG"

// Config is the configuration shared by Keel servers and clients.
type Config struct {
	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Server configures the listener of a service binary.
	Server ServerConfig `yaml:"server"`

	// Client configures outbound connections.
	Client ClientConfig `yaml:"client"`

	// Transport configures the layers between a socket and the
	// protocol. Both ends of a connection must agree on it.
	Transport TransportConfig `yaml:"transport"`

	// Protocol configures the binary protocol.
	Protocol ProtocolConfig `yaml:"protocol"`
}

// ServerConfig configures a listener.
type ServerConfig struct {
	// Network is "tcp" or "unix".
	Network string `yaml:"network"`

	// Address is host:port for tcp or a socket path for unix. Path
	// addresses may use ${VAR} and ${VAR:-default}.
	Address string `yaml:"address"`

	// MaxConnections caps concurrently served connections. Zero means
	// no limit.
	MaxConnections int `yaml:"max_connections"`
}

// ClientConfig configures outbound connections.
type ClientConfig struct {
	Network string `yaml:"network"`
	Address string `yaml:"address"`

	// ConnectTimeout bounds the dial. Default: 5s
	ConnectTimeout time.Duration `yaml:"connect_timeout"`

	// SocketTimeout bounds every read and write on the connection,
	// which makes it the effective call timeout. Zero disables it.
	SocketTimeout time.Duration `yaml:"socket_timeout"`

	// Concurrent selects the multiplexing client, which lets many
	// goroutines share one connection.
	Concurrent bool `yaml:"concurrent"`
}

// SocketConfig returns the socket-layer settings of the client.
func (c ClientConfig) SocketConfig() transport.SocketConfig {
	return transport.SocketConfig{ConnectTimeout: c.ConnectTimeout, SocketTimeout: c.SocketTimeout}
}

// Framing values.
const (
	FramingFramed   = "framed"
	FramingBuffered = "buffered"
	FramingNone     = "none"
)

var framings = []string{FramingFramed, FramingBuffered, FramingNone}

// TransportConfig configures the transport stack.
type TransportConfig struct {
	// Framing is framed (length-prefixed frames), buffered (a plain
	// buffered stream), or none. Default: framed
	Framing string `yaml:"framing"`

	// MaxFrameSize is the largest frame accepted or sent. Default:
	// 16384000
	MaxFrameSize int `yaml:"max_frame_size"`

	// BufferSize sizes the write buffer of framed transports and both
	// buffers of buffered ones. Default: 4096
	BufferSize int `yaml:"buffer_size"`

	// Compression is none, lz4, or zstd. It is applied beneath the
	// framing layer, one compressed block per flush. Default: none
	Compression string `yaml:"compression"`
}

// Wrap returns the Wrapper that builds the configured stack over a
// socket. Call Validate first; Wrap panics on values Validate rejects.
func (c TransportConfig) Wrap() transport.Wrapper {
	compression, err := transport.ParseCompression(c.Compression)
	if err != nil {
		panic("config: " + err.Error())
	}
	var compress transport.Wrapper
	if compression != transport.CompressionNone {
		compress = transport.CompressedWrapper(compression, c.MaxFrameSize)
	}

	switch c.Framing {
	case FramingFramed:
		return transport.Chain(compress, transport.FramedWrapper(
			transport.WithMaxFrameSize(c.MaxFrameSize),
			transport.WithWriteBufferSize(c.BufferSize),
		))
	case FramingBuffered:
		return transport.Chain(compress, transport.BufferedWrapper(c.BufferSize))
	case FramingNone:
		return transport.Chain(compress)
	default:
		panic(fmt.Sprintf("config: unknown framing %q", c.Framing))
	}
}

// ProtocolConfig configures the binary protocol.
type ProtocolConfig struct {
	// StrictRead rejects message headers without a version word.
	StrictRead bool `yaml:"strict_read"`

	// StrictWrite writes message headers with a version word.
	StrictWrite bool `yaml:"strict_write"`

	// MaxStringSize and MaxContainerSize cap what a peer can make the
	// reader allocate. Zero means no limit.
	MaxStringSize    int `yaml:"max_string_size"`
	MaxContainerSize int `yaml:"max_container_size"`
}

// Factory returns the protocol factory for the configured settings.
func (c ProtocolConfig) Factory() protocol.Factory {
	return protocol.BinaryFactory(protocol.BinaryConfig{
		StrictRead:       c.StrictRead,
		StrictWrite:      c.StrictWrite,
		MaxStringSize:    c.MaxStringSize,
		MaxContainerSize: c.MaxContainerSize,
	})
}

// Default returns the default configuration, the base every file is
// loaded over.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Server: ServerConfig{
			Network: "tcp",
			Address: "127.0.0.1:9090",
		},
		Client: ClientConfig{
			Network:        "tcp",
			Address:        "127.0.0.1:9090",
			ConnectTimeout: 5 * time.Second,
		},
		Transport: TransportConfig{
			Framing:      FramingFramed,
			MaxFrameSize: transport.DefaultMaxFrameSize,
			BufferSize:   transport.DefaultBufferSize,
			Compression:  transport.CompressionNone.String(),
		},
	}
}

// Load loads the file named by the KEEL_CONFIG environment variable.
// There is no search path: if the variable is unset, Load fails.
func Load() (*Config, error) {
	configPath := os.Getenv(EnvironmentVariable)
	if configPath == "" {
		return nil, fmt.Errorf("%s environment variable not set; "+
			"set it to the path of your keel.yaml config file, or use --config flag", EnvironmentVariable)
	}
	return LoadFile(configPath)
}

// LoadFile loads configuration from path over the defaults. Files
// ending in .json or .jsonc may contain comments and trailing commas;
// every other file is read as YAML. Both use the yaml field names.
// Unknown fields are errors.
func LoadFile(path string) (*Config, error) {
	cfg := Default()
	if err := cfg.loadFile(path); err != nil {
		return nil, err
	}
	cfg.expandVariables()
	return cfg, nil
}

func (c *Config) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", ".jsonc":
		// JSON is YAML, so the stripped document decodes with the
		// same field tags.
		data = jsonc.ToJSON(data)
	}
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("parsing %s: %w", path, err)
	}
	return nil
}

// expandVariables expands ${VAR} and ${VAR:-default} in addresses.
func (c *Config) expandVariables() {
	c.Server.Address = expandVars(c.Server.Address)
	c.Client.Address = expandVars(c.Client.Address)
}

var varPattern = regexp.MustCompile(`\$\{([^}:]+)(?::-([^}]*))?\}`)

func expandVars(s string) string {
	return varPattern.ReplaceAllStringFunc(s, func(match string) string {
		parts := varPattern.FindStringSubmatch(match)
		if value := os.Getenv(parts[1]); value != "" {
			return value
		}
		return parts[2]
	})
}

// Validate checks the configuration for errors, reporting all of them.
func (c *Config) Validate() error {
	var errs []error

	if _, err := c.Level(); err != nil {
		errs = append(errs, err)
	}

	networks := []string{"tcp", "unix"}
	if !slices.Contains(networks, c.Server.Network) {
		errs = append(errs, fmt.Errorf("server.network must be one of: %v", networks))
	}
	if c.Server.Address == "" {
		errs = append(errs, fmt.Errorf("server.address is required"))
	}
	if c.Server.MaxConnections < 0 {
		errs = append(errs, fmt.Errorf("server.max_connections must not be negative"))
	}

	if !slices.Contains(networks, c.Client.Network) {
		errs = append(errs, fmt.Errorf("client.network must be one of: %v", networks))
	}
	if c.Client.Address == "" {
		errs = append(errs, fmt.Errorf("client.address is required"))
	}
	if c.Client.ConnectTimeout < 0 || c.Client.SocketTimeout < 0 {
		errs = append(errs, fmt.Errorf("client timeouts must not be negative"))
	}

	if !slices.Contains(framings, c.Transport.Framing) {
		errs = append(errs, fmt.Errorf("transport.framing must be one of: %v", framings))
	}
	if c.Transport.MaxFrameSize <= 0 {
		errs = append(errs, fmt.Errorf("transport.max_frame_size must be positive"))
	}
	if c.Transport.BufferSize <= 0 {
		errs = append(errs, fmt.Errorf("transport.buffer_size must be positive"))
	}
	if _, err := transport.ParseCompression(c.Transport.Compression); err != nil {
		errs = append(errs, fmt.Errorf("transport.compression: %w", err))
	}

	if c.Protocol.MaxStringSize < 0 || c.Protocol.MaxContainerSize < 0 {
		errs = append(errs, fmt.Errorf("protocol size limits must not be negative"))
	}

	return errors.Join(errs...)
}

// Level returns LogLevel as a slog.Level.
func (c *Config) Level() (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}
