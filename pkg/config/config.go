// Package config loads pulse client and server settings and counter
// directory definitions from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pulse-protocol/pulse-go/pkg/buffer"
	"github.com/pulse-protocol/pulse-go/pkg/transport"
	"github.com/pulse-protocol/pulse-go/pkg/wire"
	"gopkg.in/yaml.v3"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// LoadError reports a configuration file that could not be used.
type LoadError struct {
	File    string
	Message string
	Cause   error
}

func (e *LoadError) Error() string {
	msg := e.Message
	if e.File != "" {
		msg = e.File + ": " + msg
	}
	if e.Cause != nil {
		msg += ": " + e.Cause.Error()
	}
	return msg
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// File is the top-level configuration document.
type File struct {
	Client    Client    `yaml:"client"`
	Server    Server    `yaml:"server"`
	Directory Directory `yaml:"directory"`
}

// Client configures the runtime side.
type Client struct {
	Network string `yaml:"network"`
	Address string `yaml:"address"`

	// Endianness is "big", "little" or "native".
	Endianness string `yaml:"endianness"`

	ProcessName     string `yaml:"process_name"`
	Info            string `yaml:"info"`
	HardwareVersion string `yaml:"hardware_version"`
	SoftwareVersion string `yaml:"software_version"`

	BufferCount int `yaml:"buffer_count"`
	BufferSize  int `yaml:"buffer_size"`

	// BufferPolicy is "block" or "fail".
	BufferPolicy string `yaml:"buffer_policy"`

	ReadTimeout      time.Duration `yaml:"read_timeout"`
	FlushTimeout     time.Duration `yaml:"flush_timeout"`
	MinCapturePeriod uint32        `yaml:"min_capture_period_us"`
}

// Server configures the mock server.
type Server struct {
	Network       string `yaml:"network"`
	Address       string `yaml:"address"`
	MaxBodyLength uint32 `yaml:"max_body_length"`

	// Advertise publishes a tcp listener over mDNS.
	Advertise    bool   `yaml:"advertise"`
	InstanceName string `yaml:"instance_name"`

	// RequestDirectory asks every new session for its counter directory.
	RequestDirectory bool `yaml:"request_directory"`

	// Selection is sent once the directory arrives.
	Selection *Selection `yaml:"selection"`

	// CaptureLog is a .plog path receiving protocol events.
	CaptureLog string `yaml:"capture_log"`
}

// Selection is a periodic counter selection.
type Selection struct {
	PeriodUs uint32   `yaml:"period_us"`
	Counters []uint16 `yaml:"counters"`
}

// DefaultClient returns the client defaults.
func DefaultClient() Client {
	return Client{
		Network:          "unix",
		Address:          transport.DefaultSocketAddress,
		Endianness:       "native",
		BufferCount:      16,
		BufferSize:       1 << 16,
		BufferPolicy:     "block",
		ReadTimeout:      500 * time.Millisecond,
		FlushTimeout:     100 * time.Millisecond,
		MinCapturePeriod: 10000,
	}
}

// DefaultServer returns the server defaults.
func DefaultServer() Server {
	return Server{
		Network:          "unix",
		Address:          transport.DefaultSocketAddress,
		MaxBodyLength:    transport.DefaultMaxBodyLength,
		InstanceName:     "pulse-mock",
		RequestDirectory: true,
	}
}

// Default returns a File with every default applied.
func Default() File {
	return File{Client: DefaultClient(), Server: DefaultServer()}
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (File, error) {
	f := Default()
	if err := yaml.Unmarshal(data, &f); err != nil {
		return File{}, &LoadError{Message: "failed to parse YAML", Cause: err}
	}
	if err := f.Validate(); err != nil {
		return File{}, &LoadError{Message: "validation failed", Cause: err}
	}
	return f, nil
}

// Load reads and parses a configuration file.
func Load(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	f, err := Parse(data)
	if err != nil {
		var le *LoadError
		if errors.As(err, &le) {
			le.File = path
		}
		return File{}, err
	}
	return f, nil
}

// Validate checks every section.
func (f File) Validate() error {
	if err := f.Client.Validate(); err != nil {
		return fmt.Errorf("client: %w", err)
	}
	if err := f.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := f.Directory.Validate(); err != nil {
		return fmt.Errorf("directory: %w", err)
	}
	return nil
}

// Validate checks the client settings.
func (c Client) Validate() error {
	if err := validNetwork(c.Network, c.Address); err != nil {
		return err
	}
	if _, err := wire.ParseEndianness(c.Endianness); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	if c.BufferCount < 0 || c.BufferSize < 0 {
		return fmt.Errorf("%w: negative buffer settings", ErrInvalid)
	}
	if c.BufferSize != 0 && c.BufferSize < 64 {
		return fmt.Errorf("%w: buffer_size %d below 64", ErrInvalid, c.BufferSize)
	}
	return nil
}

// ByteOrder returns the parsed endianness.
func (c Client) ByteOrder() wire.Endianness {
	e, _ := wire.ParseEndianness(c.Endianness)
	return e
}

// Policy returns the parsed buffer policy.
func (c Client) Policy() (buffer.Policy, error) {
	switch c.BufferPolicy {
	case "", "block":
		return buffer.PolicyBlock, nil
	case "fail":
		return buffer.PolicyFail, nil
	default:
		return buffer.PolicyBlock, fmt.Errorf("%w: buffer_policy %q", ErrInvalid, c.BufferPolicy)
	}
}

// Validate checks the server settings.
func (s Server) Validate() error {
	if err := validNetwork(s.Network, s.Address); err != nil {
		return err
	}
	if s.Advertise && s.Network != "tcp" {
		return fmt.Errorf("%w: advertise requires network tcp", ErrInvalid)
	}
	if s.Selection != nil && s.Selection.PeriodUs == 0 && len(s.Selection.Counters) > 0 {
		return fmt.Errorf("%w: selection with counters needs period_us", ErrInvalid)
	}
	return nil
}

func validNetwork(network, address string) error {
	switch network {
	case "unix", "tcp":
	default:
		return fmt.Errorf("%w: network %q", ErrInvalid, network)
	}
	if address == "" {
		return fmt.Errorf("%w: empty address", ErrInvalid)
	}
	return nil
}
