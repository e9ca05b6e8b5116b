package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"

	"github.com/ghalamif/SensorHub"
)

func main() {
	if len(os.Args) < 2 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	cmd := os.Args[1]
	var err error

	switch cmd {
	case "run":
		err = runCommand(os.Args[2:])
	case "validate":
		err = validateCommand(os.Args[2:])
	case "stats":
		err = statsCommand(os.Args[2:])
	case "channels":
		err = channelsCommand(os.Args[2:])
	case "help", "-h", "--help":
		printUsage(os.Stdout)
		return
	default:
		printUsage(os.Stderr)
		err = fmt.Errorf("unknown command %q", cmd)
	}

	if err != nil {
		log.Fatalf("sensorhub-edge %s: %v", cmd, err)
	}
}

func runCommand(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to module configuration file")
	logFormat := fs.String("log-format", "text", "Log format: text or json")
	debug := fs.Bool("debug", false, "Enable debug logging")
	if err := fs.Parse(args); err != nil {
		return err
	}

	logger := newLogger(os.Stderr, *logFormat, *debug)
	flow, err := sensorhub.Conf(*cfgPath, sensorhub.WithFlowOptions(sensorhub.WithLogger(logger)))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return flow.Run(ctx)
}

func newLogger(w io.Writer, format string, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func validateCommand(args []string) error {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	cfgPath := fs.String("config", "./data/config.yaml", "Path to configuration file to validate")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := sensorhub.LoadConfig(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Printf("config %s looks good: module %q, %d channel(s), sink %s\n",
		*cfgPath, cfg.Module.Name, len(cfg.Module.Channels), cfg.Forward.Sink.Kind)
	return nil
}

func statsCommand(args []string) error {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/metrics", "Prometheus metrics endpoint")
	interval := fs.Duration("interval", 2*time.Second, "Refresh interval")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ticker := time.NewTicker(*interval)
	defer ticker.Stop()

	client := &http.Client{Timeout: *interval}
	fmt.Printf("Streaming metrics from %s (Ctrl+C to stop)\n", *url)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if err := printMetricsSnapshot(ctx, client, *url); err != nil {
				fmt.Fprintf(os.Stderr, "stats error: %v\n", err)
			}
		}
	}
}

var statsMetrics = []struct{ name, label string }{
	{"sensorhub_records_produced_total", "records"},
	{"sensorhub_frames_rejected_total", "rejected"},
	{"sensorhub_transport_failures_total", "failures"},
	{"sensorhub_events_dropped_total", "dropped"},
	{"sensorhub_forwarded_records_total", "forwarded"},
	{"sensorhub_queue_length", "queue"},
	{"sensorhub_wal_size_bytes", "wal_bytes"},
}

func printMetricsSnapshot(ctx context.Context, client *http.Client, url string) error {
	body, err := get(ctx, client, url)
	if err != nil {
		return err
	}
	defer body.Close()

	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(body)
	if err != nil {
		return fmt.Errorf("parse metrics: %w", err)
	}

	parts := make([]string, 0, len(statsMetrics))
	for _, m := range statsMetrics {
		parts = append(parts, fmt.Sprintf("%s=%.0f", m.label, sumFamily(families[m.name])))
	}
	fmt.Printf("[%s] %s\n", time.Now().Format(time.RFC3339), strings.Join(parts, " "))
	return nil
}

// sumFamily adds up every labelled series of a counter or gauge family.
func sumFamily(f *dto.MetricFamily) float64 {
	if f == nil {
		return 0
	}
	var total float64
	for _, m := range f.GetMetric() {
		switch {
		case m.GetCounter() != nil:
			total += m.GetCounter().GetValue()
		case m.GetGauge() != nil:
			total += m.GetGauge().GetValue()
		}
	}
	return total
}

func channelsCommand(args []string) error {
	fs := flag.NewFlagSet("channels", flag.ExitOnError)
	url := fs.String("url", "http://localhost:9100/channels", "Runtime status endpoint")
	asJSON := fs.Bool("json", false, "Print the raw JSON document")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	body, err := get(ctx, http.DefaultClient, *url)
	if err != nil {
		return err
	}
	defer body.Close()

	var status sensorhub.Status
	if err := json.NewDecoder(body).Decode(&status); err != nil {
		return fmt.Errorf("decode status: %w", err)
	}
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(status)
	}
	return printChannels(os.Stdout, status)
}

func printChannels(w io.Writer, status sensorhub.Status) error {
	fmt.Fprintf(w, "module %s (%s) %s\n", status.Name, status.ID, status.State)

	channels := status.Channels
	sort.Slice(channels, func(i, j int) bool { return channels[i].Name < channels[j].Name })

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CHANNEL\tSTATUS\tENABLED\tPUSH\tAVAILABLE\tCAPACITY\tPRODUCED\tLAST RECORD\tERROR")
	for _, ch := range channels {
		last := "-"
		if !ch.LastRecord.IsZero() {
			last = ch.LastRecord.Format(time.RFC3339)
		}
		fmt.Fprintf(tw, "%s\t%s\t%t\t%t\t%d\t%d\t%d\t%s\t%s\n",
			ch.Name, ch.Status, ch.Enabled, ch.Push, ch.Available, ch.StorageCapacity, ch.Produced, last, ch.LastError)
	}
	return tw.Flush()
}

func get(ctx context.Context, client *http.Client, url string) (io.ReadCloser, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return resp.Body, nil
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `SensorHub CLI

Usage:
  sensorhub-edge <command> [flags]

Commands:
  run        Start the module and its forwarding pipeline from a config file
  validate   Load and validate a config file without opening any transport
  stats      Poll the Prometheus metrics endpoint and print live counters
  channels   Print the channel status table served on /channels

Examples:
  sensorhub-edge run -config ./data/config.yaml
  sensorhub-edge validate -config ./data/config.yaml
  sensorhub-edge stats -url http://localhost:9100/metrics -interval 1s
  sensorhub-edge channels -url http://localhost:9100/channels
`)
}
