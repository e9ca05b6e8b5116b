package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ghalamif/SensorHub/internal/adapters/codec"
	"github.com/ghalamif/SensorHub/internal/adapters/sink"
	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/module"
	"github.com/ghalamif/SensorHub/internal/ports"
)

// Sink kinds accepted in forward.sink.kind.
const (
	SinkNone      = "none"
	SinkTimescale = "timescale"
	SinkMQTT      = "mqtt"
	SinkNATS      = "nats"
)

type Config struct {
	Module  module.Config `yaml:"module"`
	Forward ForwardConfig `yaml:"forward"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ForwardConfig controls the optional pipeline that ships records to a sink.
type ForwardConfig struct {
	Policy ports.Policy `yaml:"policy"`
	WAL    WALConfig    `yaml:"wal"`
	Sink   SinkConfig   `yaml:"sink"`
}

type SinkConfig struct {
	Kind      string          `yaml:"kind"`
	Codec     string          `yaml:"codec"`
	Encoding  domain.Encoding `yaml:"encoding"`
	Timescale TimescaleConfig `yaml:"timescale"`
	MQTT      sink.MQTTConfig `yaml:"mqtt"`
	NATS      sink.NATSConfig `yaml:"nats"`
}

type TimescaleConfig struct {
	ConnString string `yaml:"conn_string"`
	Table      string `yaml:"table"`
}

type MetricsConfig struct {
	Addr string `yaml:"addr"`
}

type WALConfig struct {
	Dir string `yaml:"dir"`
}

// Enabled reports whether a sink is configured.
func (f ForwardConfig) Enabled() bool {
	return f.Sink.Kind != "" && f.Sink.Kind != SinkNone
}

func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse decodes a YAML document, applies defaults and validates the result.
func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode: %w: %w", err, domain.ErrConfiguration)
	}

	if err := cfg.Prepare(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Prepare fills in defaults and validates. Configs built in code go through
// it before a runtime uses them.
func (c *Config) Prepare() error {
	c.applyDefaults()
	return c.validate()
}

func (c *Config) applyDefaults() {
	c.Module.ApplyDefaults()

	p := &c.Forward.Policy
	if p.MaxWALSizeBytes == 0 {
		p.MaxWALSizeBytes = 1 << 30
	}
	if p.MaxQueueLen == 0 {
		p.MaxQueueLen = 100_000
	}
	if p.MaxBatchSize == 0 {
		p.MaxBatchSize = 500
	}
	if p.IdleSleep == 0 {
		p.IdleSleep = 5 * time.Millisecond
	}
	if p.OnQueueFull == "" {
		p.OnQueueFull = "block"
	}
	if p.OnWALFull == "" {
		p.OnWALFull = "block"
	}

	s := &c.Forward.Sink
	if s.Kind == "" {
		s.Kind = SinkNone
	}
	if s.Codec == "" {
		s.Codec = codec.JSON
	}
	if s.Encoding.Kind == "" {
		s.Encoding = domain.TextEncoding(",", "\n")
	}
	if s.Timescale.Table == "" {
		s.Timescale.Table = "observations"
	}

	if c.Forward.WAL.Dir == "" {
		c.Forward.WAL.Dir = "./data/wal"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9100"
	}
}

func (c *Config) validate() error {
	if err := c.Module.Validate(); err != nil {
		return err
	}
	if c.Metrics.Addr == "" {
		return fmt.Errorf("config: metrics.addr is required: %w", domain.ErrConfiguration)
	}
	if !c.Forward.Enabled() {
		return nil
	}

	p := c.Forward.Policy
	switch p.OnQueueFull {
	case "block", "drop", "reject":
	default:
		return fmt.Errorf("config: forward.policy.on_queue_full %q: %w", p.OnQueueFull, domain.ErrConfiguration)
	}
	switch p.OnWALFull {
	case "block", "drop":
	default:
		return fmt.Errorf("config: forward.policy.on_wal_full %q: %w", p.OnWALFull, domain.ErrConfiguration)
	}
	if p.MaxQueueLen < 1 || p.MaxBatchSize < 1 {
		return fmt.Errorf("config: forward.policy queue and batch sizes must be positive: %w", domain.ErrConfiguration)
	}
	if c.Forward.WAL.Dir == "" {
		return fmt.Errorf("config: forward.wal.dir is required: %w", domain.ErrConfiguration)
	}
	if _, err := codec.New(c.Forward.Sink.Codec, c.Forward.Sink.Encoding); err != nil {
		return fmt.Errorf("config: forward.sink.codec: %w", err)
	}

	s := c.Forward.Sink
	switch s.Kind {
	case SinkTimescale:
		if s.Timescale.ConnString == "" {
			return fmt.Errorf("config: forward.sink.timescale.conn_string is required: %w", domain.ErrConfiguration)
		}
	case SinkMQTT:
		if s.MQTT.Broker == "" {
			return fmt.Errorf("config: forward.sink.mqtt.broker is required: %w", domain.ErrConfiguration)
		}
		if s.MQTT.QoS > 2 {
			return fmt.Errorf("config: forward.sink.mqtt.qos must be 0, 1 or 2: %w", domain.ErrConfiguration)
		}
	case SinkNATS:
		if s.NATS.URL == "" {
			return fmt.Errorf("config: forward.sink.nats.url is required: %w", domain.ErrConfiguration)
		}
	default:
		return fmt.Errorf("config: unknown forward.sink.kind %q: %w", s.Kind, domain.ErrConfiguration)
	}
	return nil
}
