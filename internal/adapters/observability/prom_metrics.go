package observability

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
	"github.com/prometheus/client_golang/prometheus"
)

const channelLabel = "channel"

// metrics is shared by every scoped view of one PromObs.
type metrics struct {
	counters map[string]*prometheus.CounterVec
	gauges   map[string]prometheus.Gauge
	histos   map[string]prometheus.Observer
}

// PromObs logs through slog and records metrics on a caller-supplied registerer.
// Counters carry a channel label taken from the scope set with With.
type PromObs struct {
	m       *metrics
	logger  *slog.Logger
	channel string
}

// NewPromObs registers the sensorhub collectors on reg. A nil logger discards
// logs; a nil reg keeps the collectors unregistered.
func NewPromObs(logger *slog.Logger, reg prometheus.Registerer) (*PromObs, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	counter := func(name, help string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{Name: name, Help: help}, []string{channelLabel})
	}
	m := &metrics{
		counters: map[string]*prometheus.CounterVec{
			"sensorhub_records_produced_total":   counter("sensorhub_records_produced_total", "Records published on a channel."),
			"sensorhub_frames_rejected_total":    counter("sensorhub_frames_rejected_total", "Frames dropped because they could not be parsed."),
			"sensorhub_records_decimated_total":  counter("sensorhub_records_decimated_total", "Parsed frames skipped by decimation."),
			"sensorhub_history_evicted_total":    counter("sensorhub_history_evicted_total", "Records evicted from a full history."),
			"sensorhub_transport_failures_total": counter("sensorhub_transport_failures_total", "Acquisition loops stopped by a transport failure."),
			"sensorhub_events_dropped_total":     counter("sensorhub_events_dropped_total", "Events dropped for a subscriber with a full buffer."),
			"sensorhub_forwarded_records_total":  counter("sensorhub_forwarded_records_total", "Observations committed to the forwarding sink."),
			"sensorhub_forward_dropped_total":    counter("sensorhub_forward_dropped_total", "Observations lost to forwarding backpressure policies."),
			"sensorhub_dlq_total":                counter("sensorhub_dlq_total", "Observations the forwarding sink rejected."),
		},
		gauges: map[string]prometheus.Gauge{
			"sensorhub_wal_size_bytes": prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "sensorhub_wal_size_bytes",
				Help: "Size of the forwarding WAL on disk.",
			}),
			"sensorhub_queue_length": prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "sensorhub_queue_length",
				Help: "Observations buffered in the forwarding queue.",
			}),
		},
	}
	latency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "sensorhub_sink_latency_seconds",
		Help:    "Latency from dequeued batch to sink commit.",
		Buckets: prometheus.ExponentialBuckets(0.001, 2, 12),
	})
	m.histos = map[string]prometheus.Observer{"sensorhub_sink_latency_seconds": latency}

	if reg != nil {
		collectors := []prometheus.Collector{latency}
		for _, c := range m.counters {
			collectors = append(collectors, c)
		}
		for _, g := range m.gauges {
			collectors = append(collectors, g)
		}
		for _, c := range collectors {
			if err := reg.Register(c); err != nil {
				return nil, fmt.Errorf("observability: register metrics: %w", err)
			}
		}
	}
	return &PromObs{m: m, logger: logger}, nil
}

// Nop discards logs and keeps its metrics unregistered.
func Nop() *PromObs {
	p, _ := NewPromObs(nil, nil)
	return p
}

// With scopes logs to fields. A "channel" field also labels counters.
func (p *PromObs) With(fields ...ports.Field) ports.Observability {
	scoped := &PromObs{m: p.m, logger: p.logger.With(attrs(fields)...), channel: p.channel}
	for _, f := range fields {
		if f.Key == channelLabel {
			scoped.channel = fmt.Sprint(f.Value)
		}
	}
	return scoped
}

func (p *PromObs) LogInfo(msg string, fields ...ports.Field) {
	p.logger.Info(msg, attrs(fields)...)
}

func (p *PromObs) LogWarn(msg string, err error, fields ...ports.Field) {
	p.logger.Warn(msg, withErr(err, fields)...)
}

func (p *PromObs) LogError(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, withErr(err, fields)...)
}

func (p *PromObs) LogCritical(msg string, err error, fields ...ports.Field) {
	p.logger.Error(msg, append(withErr(err, fields), "critical", true)...)
}

func (p *PromObs) IncCounter(name string, v float64) {
	if c, ok := p.m.counters[name]; ok {
		c.WithLabelValues(p.channel).Add(v)
	}
}

func (p *PromObs) ObserveLatency(name string, seconds float64) {
	if h, ok := p.m.histos[name]; ok {
		h.Observe(seconds)
	}
}

func (p *PromObs) SetGauge(name string, v float64) {
	if g, ok := p.m.gauges[name]; ok {
		g.Set(v)
	}
}

func (p *PromObs) RecordDLQ(id ports.WALEntryID, o *domain.Observation, err error) {
	scoped := p
	if o != nil && p.channel == "" {
		scoped = &PromObs{m: p.m, logger: p.logger, channel: o.Channel}
	}
	scoped.IncCounter("sensorhub_dlq_total", 1)
	if err == nil {
		return
	}
	args := []any{"wal_id", uint64(id), "err", err}
	if o != nil {
		args = append(args, "module", o.ModuleID, "channel", o.Channel, "seq", o.Seq)
	}
	p.logger.Warn("observation sent to DLQ", args...)
}

func attrs(fields []ports.Field) []any {
	out := make([]any, 0, len(fields)*2)
	for _, f := range fields {
		out = append(out, f.Key, f.Value)
	}
	return out
}

func withErr(err error, fields []ports.Field) []any {
	out := attrs(fields)
	if err != nil {
		out = append(out, "err", err)
	}
	return out
}

var _ ports.Observability = (*PromObs)(nil)
