package sensorhub

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ghalamif/SensorHub/internal/adapters/codec"
	"github.com/ghalamif/SensorHub/internal/adapters/observability"
	"github.com/ghalamif/SensorHub/internal/adapters/queue"
	"github.com/ghalamif/SensorHub/internal/adapters/sink"
	"github.com/ghalamif/SensorHub/internal/adapters/wal"
	"github.com/ghalamif/SensorHub/internal/app/config"
	"github.com/ghalamif/SensorHub/internal/app/pipeline"
	"github.com/ghalamif/SensorHub/internal/module"
	"github.com/ghalamif/SensorHub/internal/ports"
)

// Registry is where the runtime registers its collectors and what /metrics serves.
type Registry interface {
	prometheus.Registerer
	prometheus.Gatherer
}

// RuntimeOption customizes the dependencies used by Runtime.
type RuntimeOption func(*runtimeOverrides)

type runtimeOverrides struct {
	providers     map[string]TransportProvider
	sink          Sink
	wal           WAL
	queue         ObservationQueue
	observability Observability
	logger        *slog.Logger
	registry      Registry
	noMetricsSrv  bool
}

// WithTransportProvider reads the named channel from p instead of the
// transport declared in its config.
func WithTransportProvider(channel string, p TransportProvider) RuntimeOption {
	return func(o *runtimeOverrides) {
		if o.providers == nil {
			o.providers = make(map[string]TransportProvider)
		}
		o.providers[channel] = p
	}
}

// WithSink forwards records to s. It enables forwarding even when the config
// declares no sink.
func WithSink(s Sink) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.sink = s
	}
}

// WithWAL lets callers bring their own WAL implementation or reuse an existing instance.
func WithWAL(w WAL) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.wal = w
	}
}

// WithObservationQueue replaces the bounded in-memory forwarding queue.
func WithObservationQueue(q ObservationQueue) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.queue = q
	}
}

// WithObservability plugs in a custom observability backend. The logger and
// registry options are ignored when it is set.
func WithObservability(obs Observability) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.observability = obs
	}
}

// WithLogger sets the structured logger of the default observability backend.
func WithLogger(l *slog.Logger) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.logger = l
	}
}

// WithRegisterer registers metrics on reg and serves them from it.
func WithRegisterer(reg Registry) RuntimeOption {
	return func(o *runtimeOverrides) {
		o.registry = reg
	}
}

// WithoutMetricsServer keeps Start from listening on metrics.addr. Handler
// still serves the same endpoints.
func WithoutMetricsServer() RuntimeOption {
	return func(o *runtimeOverrides) {
		o.noMetricsSrv = true
	}
}

// Runtime wires a sensor module to the optional bus → WAL → queue → sink
// forwarding pipeline and exposes lifecycle hooks for embedding SensorHub in
// any Go service.
type Runtime struct {
	cfg      *Config
	policy   ports.Policy
	obs      ports.Observability
	logger   *slog.Logger
	gatherer prometheus.Gatherer
	module   *module.Module

	forward bool
	wal     ports.WAL
	queue   ports.ObservationQueue
	sink    ports.Sink
	closers []func() error
	db      *sql.DB

	serveMetrics bool

	mu           sync.Mutex
	started      bool
	metricsSrv   *http.Server
	gaugeStopCh  chan struct{}
	cancelFwd    context.CancelFunc
	ingestDoneCh chan struct{}
}

// NewRuntime prepares cfg, builds and initializes the module, and bootstraps
// the forwarding adapters (file WAL, in-memory queue, configured sink).
// Nothing reads from a transport until Start.
func NewRuntime(cfg *Config, opts ...RuntimeOption) (*Runtime, error) {
	if cfg == nil {
		return nil, fmt.Errorf("sensorhub: config is required: %w", ErrConfiguration)
	}
	if err := cfg.Prepare(); err != nil {
		return nil, err
	}

	var overrides runtimeOverrides
	for _, opt := range opts {
		if opt != nil {
			opt(&overrides)
		}
	}

	logger := overrides.logger
	if logger == nil {
		logger = slog.Default()
	}
	reg := overrides.registry
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	obs := overrides.observability
	if obs == nil {
		prom, err := observability.NewPromObs(logger, reg)
		if err != nil {
			return nil, err
		}
		obs = prom
	}

	modOpts := make([]module.Option, 0, len(overrides.providers))
	for name, p := range overrides.providers {
		modOpts = append(modOpts, module.WithTransportProvider(name, p))
	}
	mod := module.New(obs, modOpts...)
	if err := mod.Initialize(cfg.Module); err != nil {
		return nil, err
	}

	rt := &Runtime{
		cfg:          cfg,
		policy:       cfg.Forward.Policy,
		obs:          obs,
		logger:       logger,
		gatherer:     reg,
		module:       mod,
		serveMetrics: !overrides.noMetricsSrv,
	}

	if overrides.sink == nil && !cfg.Forward.Enabled() {
		return rt, nil
	}
	if err := rt.buildForwarding(overrides); err != nil {
		_ = rt.closeForwarding()
		_ = mod.Cleanup()
		return nil, err
	}
	return rt, nil
}

func (r *Runtime) buildForwarding(overrides runtimeOverrides) error {
	r.forward = true

	if overrides.wal != nil {
		r.wal = overrides.wal
	} else {
		w, err := wal.NewFileWAL(r.cfg.Forward.WAL.Dir)
		if err != nil {
			return err
		}
		r.wal = w
		r.closers = append(r.closers, w.Close)
	}

	r.queue = overrides.queue
	if r.queue == nil {
		r.queue = queue.NewMemQueue(r.policy.MaxQueueLen)
	}

	if overrides.sink != nil {
		r.sink = overrides.sink
		return nil
	}
	return r.buildSink(r.cfg.Forward.Sink)
}

func (r *Runtime) buildSink(sc config.SinkConfig) error {
	c, err := codec.New(sc.Codec, sc.Encoding)
	if err != nil {
		return err
	}

	switch sc.Kind {
	case config.SinkTimescale:
		db, err := sql.Open("postgres", sc.Timescale.ConnString)
		if err != nil {
			return fmt.Errorf("timescale: open: %w", err)
		}
		r.db = db
		r.sink = sink.NewTimescaleSink(db, sc.Timescale.Table)
		r.closers = append(r.closers, db.Close)
	case config.SinkMQTT:
		client, err := sink.ConnectMQTT(sc.MQTT, r.obs)
		if err != nil {
			return err
		}
		r.sink = sink.NewMQTTSink(client, c, sc.MQTT)
		r.closers = append(r.closers, func() error {
			client.Disconnect(250)
			return nil
		})
	case config.SinkNATS:
		nc, err := sink.ConnectNATS(sc.NATS, r.obs)
		if err != nil {
			return err
		}
		r.sink = sink.NewNATSSink(nc, c, sc.NATS)
		r.closers = append(r.closers, nc.Drain)
	default:
		return fmt.Errorf("sensorhub: sink kind %q: %w", sc.Kind, ErrConfiguration)
	}
	return nil
}

// Start begins the ingest and forwarding pipelines, starts acquisition on
// every push channel and launches the metrics server. It returns once the
// transports are open; call Run to block on a context instead.
func (r *Runtime) Start(ctx context.Context) error {
	if r == nil {
		return fmt.Errorf("sensorhub: runtime is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return nil
	}

	if r.forward {
		fwdCtx, cancel := context.WithCancel(context.Background())
		done := make(chan struct{})
		go func() {
			defer close(done)
			pipeline.RunIngestPipeline(fwdCtx, r.wal, r.queue, r.sink, r.policy, r.obs)
		}()
		if err := pipeline.RunEdgePipeline(fwdCtx, r.module.Bus(), r.wal, r.queue, r.policy, r.obs); err != nil {
			cancel()
			<-done
			return err
		}
		r.cancelFwd = cancel
		r.ingestDoneCh = done
	}

	if err := r.module.Start(ctx); err != nil {
		r.stopForwarding(ctx)
		return err
	}

	r.startMetrics()
	r.started = true
	r.obs.LogInfo("runtime started",
		ports.Field{Key: "module_id", Value: r.module.ID()},
		ports.Field{Key: "forwarding", Value: r.forward})
	return nil
}

// Run starts the runtime and blocks until the provided context is cancelled.
// Upon cancellation it attempts a graceful shutdown.
func (r *Runtime) Run(ctx context.Context) error {
	if err := r.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), r.cfg.Module.StopTimeout+5*time.Second)
	defer cancel()
	return r.Shutdown(shutdownCtx)
}

// Shutdown stops acquisition, drains the forwarder, closes the sink
// connections and releases the module. Records still queued stay in the WAL
// and are replayed on the next start.
func (r *Runtime) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error

	if r.gaugeStopCh != nil {
		close(r.gaugeStopCh)
		r.gaugeStopCh = nil
	}
	if r.metricsSrv != nil {
		if err := r.metricsSrv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errs = append(errs, err)
		}
		r.metricsSrv = nil
	}

	if r.module.State() == module.StateStarted {
		if err := r.module.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if err := r.stopForwarding(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := r.closeForwarding(); err != nil {
		errs = append(errs, err)
	}
	if err := r.module.Cleanup(); err != nil {
		errs = append(errs, err)
	}

	r.started = false
	return errors.Join(errs...)
}

// stopForwarding detaches the forwarder from the bus and waits for the ingest
// loop to return.
func (r *Runtime) stopForwarding(ctx context.Context) error {
	if r.cancelFwd == nil {
		return nil
	}
	r.cancelFwd()
	r.cancelFwd = nil
	_ = r.module.Bus().Unsubscribe(pipeline.ForwarderID)

	done := r.ingestDoneCh
	r.ingestDoneCh = nil
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("sensorhub: waiting for ingest loop: %w", ctx.Err())
	}
}

func (r *Runtime) closeForwarding() error {
	var errs []error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	r.closers = nil
	return errors.Join(errs...)
}

func (r *Runtime) startMetrics() {
	if r.forward {
		r.gaugeStopCh = make(chan struct{})
		go r.recordResourceGauges(r.gaugeStopCh, time.Second)
	}
	if !r.serveMetrics {
		return
	}

	r.metricsSrv = &http.Server{
		Addr:              r.cfg.Metrics.Addr,
		Handler:           r.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	srv := r.metricsSrv
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.obs.LogError("metrics server exited", err, ports.Field{Key: "addr", Value: srv.Addr})
		}
	}()
}

func (r *Runtime) recordResourceGauges(stop <-chan struct{}, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			stats := r.wal.Stats()
			r.obs.SetGauge("sensorhub_wal_size_bytes", float64(stats.SizeBytes))
			r.obs.SetGauge("sensorhub_queue_length", float64(r.queue.Len()))
		}
	}
}

// Module exposes the underlying sensor module for channel queries.
func (r *Runtime) Module() *Module { return r.module }

// Bus is the module's event bus; subscribe to it for push delivery.
func (r *Runtime) Bus() *Bus { return r.module.Bus() }

// Channel returns the named data channel.
func (r *Runtime) Channel(name string) (Channel, bool) { return r.module.Channel(name) }

// Status reports the module state and a snapshot of every channel.
func (r *Runtime) Status() Status { return r.module.Status() }

// Forwarding reports whether records are shipped to a sink.
func (r *Runtime) Forwarding() bool { return r.forward }
