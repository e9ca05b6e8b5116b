package sensorhub

import (
	"github.com/ghalamif/SensorHub/internal/adapters/sink"
	"github.com/ghalamif/SensorHub/internal/adapters/transport"
	"github.com/ghalamif/SensorHub/internal/app/config"
	"github.com/ghalamif/SensorHub/internal/module"
	"github.com/ghalamif/SensorHub/internal/ports"
	"github.com/ghalamif/SensorHub/internal/protocol"
)

// Config re-exports the root configuration struct so downstream projects can
// construct or modify it programmatically.
type Config = config.Config

type (
	// ModuleConfig holds the module identity and its channels.
	ModuleConfig = module.Config
	// ChannelConfig describes one data channel.
	ChannelConfig = module.ChannelConfig
	// ProtocolConfig selects a preset or an inline frame layout.
	ProtocolConfig = module.ProtocolConfig
	// Layout describes a delimited text frame.
	Layout = protocol.Layout
	// FieldSpec places one field in a Layout.
	FieldSpec = protocol.FieldSpec
	// TransportConfig configures the built-in tcp, serial and file transports.
	TransportConfig = transport.Config
	// ForwardConfig controls the forwarding pipeline.
	ForwardConfig = config.ForwardConfig
	// Policy controls WAL/queue thresholds.
	Policy = ports.Policy
	// SinkConfig selects and configures the forwarding sink.
	SinkConfig = config.SinkConfig
	// TimescaleConfig configures the Timescale sink.
	TimescaleConfig = config.TimescaleConfig
	// MQTTConfig configures the MQTT sink.
	MQTTConfig = sink.MQTTConfig
	// NATSConfig configures the NATS sink.
	NATSConfig = sink.NATSConfig
	// MetricsConfig configures the metrics HTTP server.
	MetricsConfig = config.MetricsConfig
	// WALConfig configures on-disk durability.
	WALConfig = config.WALConfig
)

// Names accepted by ProtocolConfig.Preset and SinkConfig.Kind.
const (
	PresetTruPulseHV = protocol.PresetTruPulseHV

	SinkNone      = config.SinkNone
	SinkTimescale = config.SinkTimescale
	SinkMQTT      = config.SinkMQTT
	SinkNATS      = config.SinkNATS
)

// LoadConfig loads YAML from disk using the internal config reader.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// ParseConfig decodes YAML held in memory.
func ParseConfig(raw []byte) (*Config, error) {
	return config.Parse(raw)
}
