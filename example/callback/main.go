package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/SensorHub/pkg/sensorhub"
)

// Replays a file of rangefinder sentences and prints every forwarded record.
func main() {
	frames := flag.String("frames", "../frames.txt", "File with one sentence per line")
	flag.Parse()

	cfg := &sensorhub.Config{
		Module: sensorhub.ModuleConfig{
			Name: "replay",
			Channels: []sensorhub.ChannelConfig{{
				StorageCapacity: 16,
				Protocol:        sensorhub.ProtocolConfig{Preset: sensorhub.PresetTruPulseHV},
				Transport: sensorhub.TransportConfig{
					Kind:     "file",
					Path:     *frames,
					Interval: 500 * time.Millisecond,
				},
			}},
		},
		Forward: sensorhub.ForwardConfig{WAL: sensorhub.WALConfig{Dir: "./data/replay-wal"}},
	}

	flow, err := sensorhub.ConfFromConfig(cfg, sensorhub.WithFlowOptions(sensorhub.WithoutMetricsServer()))
	if err != nil {
		log.Fatalf("build flow: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	callback := func(batch []sensorhub.Observation) error {
		for _, o := range batch {
			fmt.Printf("%s channel=%s seq=%d values=%v\n",
				o.Timestamp.Format(time.RFC3339Nano),
				o.Channel,
				o.Seq,
				o.AvailableValues(),
			)
		}
		return nil
	}

	if err := flow.Run(ctx, sensorhub.StreamOutCallback("stdout", callback)); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}
