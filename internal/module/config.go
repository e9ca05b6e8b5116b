package module

import (
	"fmt"
	"time"

	"github.com/ghalamif/SensorHub/internal/adapters/transport"
	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/protocol"
)

const defaultStopTimeout = 5 * time.Second

// Config describes one sensor module and its channels.
type Config struct {
	ID          string          `yaml:"id"`
	Name        string          `yaml:"name"`
	StopTimeout time.Duration   `yaml:"stop_timeout"`
	Channels    []ChannelConfig `yaml:"channels"`
}

// ChannelConfig describes one data channel. Enabled and Push default to true.
type ChannelConfig struct {
	Name            string           `yaml:"name"`
	Enabled         *bool            `yaml:"enabled"`
	Push            *bool            `yaml:"push"`
	StorageCapacity int              `yaml:"storage_capacity"`
	SamplingPeriod  time.Duration    `yaml:"sampling_period"`
	Decimation      int              `yaml:"decimation"`
	Protocol        ProtocolConfig   `yaml:"protocol"`
	Transport       transport.Config `yaml:"transport"`
}

// ProtocolConfig names a built-in frame layout or declares one inline.
type ProtocolConfig struct {
	Preset string           `yaml:"preset"`
	Layout *protocol.Layout `yaml:"layout"`
}

func (c ChannelConfig) IsEnabled() bool { return c.Enabled == nil || *c.Enabled }
func (c ChannelConfig) IsPush() bool    { return c.Push == nil || *c.Push }

// ResolveLayout returns the frame layout of the channel.
func (p ProtocolConfig) ResolveLayout() (protocol.Layout, error) {
	switch {
	case p.Preset != "" && p.Layout != nil:
		return protocol.Layout{}, fmt.Errorf("protocol: set either preset or layout, not both: %w", domain.ErrConfiguration)
	case p.Layout != nil:
		return *p.Layout, nil
	case p.Preset != "":
		l, err := protocol.Preset(p.Preset)
		if err != nil {
			return protocol.Layout{}, fmt.Errorf("protocol: %w: %w", err, domain.ErrConfiguration)
		}
		return l, nil
	default:
		return protocol.Layout{}, fmt.Errorf("protocol: preset or layout is required: %w", domain.ErrConfiguration)
	}
}

func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = "sensorhub"
	}
	if c.StopTimeout == 0 {
		c.StopTimeout = defaultStopTimeout
	}
	for i := range c.Channels {
		ch := &c.Channels[i]
		if ch.Decimation == 0 {
			ch.Decimation = 1
		}
		if layout, err := ch.Protocol.ResolveLayout(); err == nil {
			if ch.Name == "" {
				ch.Name = layout.Name
			}
			if ch.SamplingPeriod == 0 {
				ch.SamplingPeriod = layout.SamplingPeriod
			}
		}
	}
}

// Validate checks the module settings. Transport settings are checked only for
// channels that declare a transport kind; the others need a provider supplied
// by the embedding program.
func (c *Config) Validate() error {
	if c.StopTimeout < 0 {
		return fmt.Errorf("module %q: stop_timeout must be >= 0: %w", c.Name, domain.ErrConfiguration)
	}
	if len(c.Channels) == 0 {
		return fmt.Errorf("module %q: at least one channel is required: %w", c.Name, domain.ErrConfiguration)
	}
	seen := make(map[string]struct{}, len(c.Channels))
	for _, ch := range c.Channels {
		if ch.Name == "" {
			return fmt.Errorf("module %q: channel name is required: %w", c.Name, domain.ErrConfiguration)
		}
		if _, dup := seen[ch.Name]; dup {
			return fmt.Errorf("module %q: duplicate channel %q: %w", c.Name, ch.Name, domain.ErrConfiguration)
		}
		seen[ch.Name] = struct{}{}

		if ch.StorageCapacity < 0 {
			return fmt.Errorf("channel %q: storage_capacity must be >= 0: %w", ch.Name, domain.ErrConfiguration)
		}
		if ch.Decimation < 1 {
			return fmt.Errorf("channel %q: decimation must be >= 1: %w", ch.Name, domain.ErrConfiguration)
		}
		layout, err := ch.Protocol.ResolveLayout()
		if err != nil {
			return fmt.Errorf("channel %q: %w", ch.Name, err)
		}
		if err := layout.Validate(); err != nil {
			return fmt.Errorf("channel %q: %w: %w", ch.Name, err, domain.ErrConfiguration)
		}
		if ch.Transport.Kind != "" {
			if err := ch.Transport.Validate(); err != nil {
				return fmt.Errorf("channel %q: %w", ch.Name, err)
			}
		}
	}
	return nil
}
