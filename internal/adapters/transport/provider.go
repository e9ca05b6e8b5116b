package transport

import (
	"fmt"
	"time"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

const (
	KindTCP    = "tcp"
	KindSerial = "serial"
	KindFile   = "file"
)

// Config selects and parameterizes a transport for one channel.
type Config struct {
	Kind        string        `yaml:"kind"`
	Address     string        `yaml:"address"`
	Device      string        `yaml:"device"`
	BaudRate    int           `yaml:"baud_rate"`
	DataBits    int           `yaml:"data_bits"`
	Parity      string        `yaml:"parity"`
	StopBits    string        `yaml:"stop_bits"`
	Path        string        `yaml:"path"`
	Interval    time.Duration `yaml:"interval"`
	Delimiter   string        `yaml:"delimiter"`
	ReadTimeout time.Duration `yaml:"read_timeout"`
	DialTimeout time.Duration `yaml:"dial_timeout"`
}

// Validate checks the settings of the selected kind.
func (c Config) Validate() error {
	if len(c.delimiter()) != 1 {
		return fmt.Errorf("transport: delimiter must be a single byte, got %q: %w", c.Delimiter, domain.ErrConfiguration)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("transport: read_timeout must be >= 0: %w", domain.ErrConfiguration)
	}
	switch c.Kind {
	case KindTCP:
		if c.Address == "" {
			return fmt.Errorf("transport tcp: address is required: %w", domain.ErrConfiguration)
		}
	case KindSerial:
		if c.Device == "" {
			return fmt.Errorf("transport serial: device is required: %w", domain.ErrConfiguration)
		}
		if _, err := c.serialMode(); err != nil {
			return err
		}
	case KindFile:
		if c.Path == "" {
			return fmt.Errorf("transport file: path is required: %w", domain.ErrConfiguration)
		}
	default:
		return fmt.Errorf("transport: unknown kind %q: %w", c.Kind, domain.ErrConfiguration)
	}
	return nil
}

func (c Config) delimiter() string {
	if c.Delimiter == "" {
		return "\n"
	}
	return c.Delimiter
}

// NewProvider builds the provider for cfg.Kind.
func NewProvider(cfg Config) (ports.TransportProvider, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	delim := cfg.delimiter()[0]
	switch cfg.Kind {
	case KindTCP:
		return &TCPProvider{
			Address:     cfg.Address,
			Delimiter:   delim,
			ReadTimeout: cfg.ReadTimeout,
			DialTimeout: cfg.DialTimeout,
		}, nil
	case KindSerial:
		mode, _ := cfg.serialMode()
		return &SerialProvider{
			Device:      cfg.Device,
			Mode:        mode,
			Delimiter:   delim,
			ReadTimeout: cfg.ReadTimeout,
		}, nil
	default:
		return &FileProvider{
			Path:      cfg.Path,
			Delimiter: delim,
			Interval:  cfg.Interval,
		}, nil
	}
}
