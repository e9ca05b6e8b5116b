package sensorhub

import (
	"log/slog"

	base "github.com/ghalamif/SensorHub/pkg/sensorhub"
)

// Re-exported errors for convenience.
var (
	ErrConfiguration     = base.ErrConfiguration
	ErrLifecycle         = base.ErrLifecycle
	ErrChannelDisabled   = base.ErrChannelDisabled
	ErrNotInitialized    = base.ErrNotInitialized
	ErrTransport         = base.ErrTransport
	ErrReadTimeout       = base.ErrReadTimeout
	ErrRejected          = base.ErrRejected
	ErrChannelSinkClosed = base.ErrChannelSinkClosed
)

// Type aliases so consumers can import github.com/ghalamif/SensorHub directly.
type (
	Config               = base.Config
	ModuleConfig         = base.ModuleConfig
	ChannelConfig        = base.ChannelConfig
	ProtocolConfig       = base.ProtocolConfig
	TransportConfig      = base.TransportConfig
	Layout               = base.Layout
	FieldSpec            = base.FieldSpec
	ForwardConfig        = base.ForwardConfig
	Policy               = base.Policy
	SinkConfig           = base.SinkConfig
	TimescaleConfig      = base.TimescaleConfig
	MQTTConfig           = base.MQTTConfig
	NATSConfig           = base.NATSConfig
	MetricsConfig        = base.MetricsConfig
	WALConfig            = base.WALConfig
	Flow                 = base.Flow
	FlowOption           = base.FlowOption
	StreamInOption       = base.StreamInOption
	StreamOutOption      = base.StreamOutOption
	Runtime              = base.Runtime
	RuntimeOption        = base.RuntimeOption
	Registry             = base.Registry
	Record               = base.Record
	Schema               = base.Schema
	Encoding             = base.Encoding
	Event                = base.Event
	Observation          = base.Observation
	ObservationBatchSink = base.ObservationBatchSink
	Status               = base.Status
	Channel              = base.Channel
	ChannelSnapshot      = base.ChannelSnapshot
	Bus                  = base.Bus
	Subscription         = base.Subscription
	Filter               = base.Filter
	Transport            = base.Transport
	TransportProvider    = base.TransportProvider
	Sink                 = base.Sink
	ObservationQueue     = base.ObservationQueue
	WAL                  = base.WAL
	Observability        = base.Observability
	Field                = base.Field
	QueuedObservation    = base.QueuedObservation
	WALEntryID           = base.WALEntryID
	WALStats             = base.WALStats
)

const (
	EventData        = base.EventData
	EventFailure     = base.EventFailure
	PresetTruPulseHV = base.PresetTruPulseHV
)

// Config helpers.
func LoadConfig(path string) (*Config, error) {
	return base.LoadConfig(path)
}

func ParseConfig(raw []byte) (*Config, error) {
	return base.ParseConfig(raw)
}

// Flow builder helpers.
func Conf(path string, opts ...FlowOption) (*Flow, error) {
	return base.Conf(path, opts...)
}

func ConfFromConfig(cfg *Config, opts ...FlowOption) (*Flow, error) {
	return base.ConfFromConfig(cfg, opts...)
}

func WithFlowOptions(opts ...RuntimeOption) FlowOption {
	return base.WithFlowOptions(opts...)
}

func StreamInTransport(channel string, p TransportProvider) StreamInOption {
	return base.StreamInTransport(channel, p)
}

func StreamInQueue(q ObservationQueue) StreamInOption {
	return base.StreamInQueue(q)
}

func StreamInWAL(w WAL) StreamInOption {
	return base.StreamInWAL(w)
}

func StreamInObservability(obs Observability) StreamInOption {
	return base.StreamInObservability(obs)
}

func StreamInLogger(l *slog.Logger) StreamInOption {
	return base.StreamInLogger(l)
}

func StreamOutSink(s Sink) StreamOutOption {
	return base.StreamOutSink(s)
}

func StreamOutObservability(obs Observability) StreamOutOption {
	return base.StreamOutObservability(obs)
}

func StreamOutCallback(name string, fn ObservationBatchSink) StreamOutOption {
	return base.StreamOutCallback(name, fn)
}

// Runtime and options.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	return base.NewRuntime(cfg, opts...)
}

func WithTransportProvider(channel string, p TransportProvider) RuntimeOption {
	return base.WithTransportProvider(channel, p)
}

func WithSink(s Sink) RuntimeOption {
	return base.WithSink(s)
}

func WithWAL(w WAL) RuntimeOption {
	return base.WithWAL(w)
}

func WithObservationQueue(q ObservationQueue) RuntimeOption {
	return base.WithObservationQueue(q)
}

func WithObservability(obs Observability) RuntimeOption {
	return base.WithObservability(obs)
}

func WithLogger(l *slog.Logger) RuntimeOption {
	return base.WithLogger(l)
}

func WithRegisterer(reg Registry) RuntimeOption {
	return base.WithRegisterer(reg)
}

func WithoutMetricsServer() RuntimeOption {
	return base.WithoutMetricsServer()
}

// Sink adapters.
func NewCallbackSink(name string, fn ObservationBatchSink) Sink {
	return base.NewCallbackSink(name, fn)
}

func NewChannelSink(name string, buffer int) (Sink, <-chan []Observation, func()) {
	return base.NewChannelSink(name, buffer)
}

// ChannelFilter passes events of the named channels only.
func ChannelFilter(names ...string) Filter {
	return base.ChannelFilter(names...)
}
