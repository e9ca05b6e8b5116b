package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/ghalamif/SensorHub"
)

// Shows both delivery paths: forwarded batches through a channel sink, and
// live events straight from the module's bus.
func main() {
	cfgPath := flag.String("config", "../config.yaml", "Path to module configuration file")
	flag.Parse()

	flow, err := sensorhub.Conf(*cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	sink, batches, closeBatches := sensorhub.NewChannelSink("fanout", 32)
	defer closeBatches()
	go fanoutWorker("forward", batches)

	rt, err := flow.StreamOUT(sensorhub.StreamOutSink(sink))
	if err != nil {
		log.Fatalf("build runtime: %v", err)
	}

	sub, err := rt.Bus().Subscribe("console", 16, nil)
	if err != nil {
		log.Fatalf("subscribe: %v", err)
	}
	go func() {
		for ev := range sub.Events() {
			if ev.Kind == sensorhub.EventFailure {
				fmt.Printf("[live] channel %s failed: %v\n", ev.Channel, ev.Err)
				continue
			}
			fmt.Printf("[live] channel %s seq=%d\n", ev.Channel, ev.Record.Seq())
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rt.Run(ctx); err != nil && err != context.Canceled {
		log.Fatalf("runtime error: %v", err)
	}
}

func fanoutWorker(name string, batches <-chan []sensorhub.Observation) {
	for batch := range batches {
		fmt.Printf("[%s] %d observations at %s\n", name, len(batch), time.Now().Format(time.RFC3339))
	}
}
