package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/coreman2200/funtimes-atomcontroller/internal/glyph"
	"github.com/coreman2200/funtimes-atomcontroller/internal/input"
	"github.com/coreman2200/funtimes-atomcontroller/internal/matrix"
	"github.com/coreman2200/funtimes-atomcontroller/internal/radio"
)

var ErrInvalid = errors.New("invalid config")

type Matrix struct {
	Driver     string `yaml:"driver"`            // "spi" | "console" | "none"
	SPIDev     string `yaml:"spi_dev,omitempty"` // e.g. /dev/spidev0.0; empty picks the first port
	Brightness uint8  `yaml:"brightness"`        // 0..255
}

type Radio struct {
	Driver       string `yaml:"driver"`            // "sim" | "udp"
	Gateway      string `yaml:"gateway,omitempty"` // host:port of the ESP-NOW gateway
	AckTimeoutMs int    `yaml:"ack_timeout_ms"`
	SimDelayMs   int    `yaml:"sim_delay_ms"`
	SimFailEvery int    `yaml:"sim_fail_every"`
}

type Preview struct {
	Addr string `yaml:"addr,omitempty"` // empty disables the preview server
}

type Config struct {
	PeerAddress    string   `yaml:"peer_address"`
	BaudRate       int      `yaml:"baud_rate"`
	SerialPort     string   `yaml:"serial_port,omitempty"` // empty: no wired line
	Pins           []string `yaml:"pins"`
	PollIntervalMs int      `yaml:"poll_interval_ms"`
	LogLevel       string   `yaml:"log_level"`

	Matrix  Matrix  `yaml:"matrix"`
	Radio   Radio   `yaml:"radio"`
	Preview Preview `yaml:"preview,omitempty"`
}

// Default mirrors the M5Atom controller: 115200 baud, the stock pin map
// and a simulated radio.
func Default() *Config {
	return &Config{
		PeerAddress:    "24:0a:c4:00:00:01",
		BaudRate:       115200,
		Pins:           append([]string(nil), input.DefaultPins...),
		PollIntervalMs: 10,
		LogLevel:       "info",
		Matrix: Matrix{
			Driver:     matrix.DriverSPI,
			Brightness: 64,
		},
		Radio: Radio{
			Driver:       "sim",
			AckTimeoutMs: 100,
			SimDelayMs:   5,
		},
	}
}

// Load reads path over the defaults; fields missing from the file keep
// their default value.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

// Peer parses PeerAddress.
func (c *Config) Peer() (radio.PeerAddr, error) {
	return radio.ParsePeerAddr(c.PeerAddress)
}

func (c *Config) Validate() error {
	var errs []error
	if _, err := c.Peer(); err != nil {
		errs = append(errs, err)
	}
	if c.BaudRate <= 0 {
		errs = append(errs, fmt.Errorf("baud_rate %d must be positive", c.BaudRate))
	}
	if len(c.Pins) != glyph.Count {
		errs = append(errs, fmt.Errorf("pins: need %d, got %d", glyph.Count, len(c.Pins)))
	}
	switch c.Matrix.Driver {
	case matrix.DriverSPI, matrix.DriverConsole, matrix.DriverNone:
	default:
		errs = append(errs, fmt.Errorf("matrix.driver %q", c.Matrix.Driver))
	}
	switch c.Radio.Driver {
	case "sim":
	case "udp":
		if c.Radio.Gateway == "" {
			errs = append(errs, errors.New("radio.gateway required for udp"))
		}
	default:
		errs = append(errs, fmt.Errorf("radio.driver %q", c.Radio.Driver))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %v", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
