// Package main implements a standalone producer/consumer latency harness,
// the Go counterpart to the dummy-producer/dummy-consumer benchmark rig
// used to characterize HERMES's end-to-end delivery latency. It never
// touches hermesd or broker.Broker: it drives one Producer Node directly
// against a transport.Bus and measures how long each sample takes to
// reach a subscriber.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strconv"
	"time"

	"github.com/emedia-lab/hermes/clock"
	"github.com/emedia-lab/hermes/delay"
	"github.com/emedia-lab/hermes/node"
	"github.com/emedia-lab/hermes/sample"
	"github.com/emedia-lab/hermes/topology"
	"github.com/emedia-lab/hermes/transport"
)

const streamID = "bench"

func main() {
	rateHz := envFloat("HERMES_EXP_RATE", 100)
	numBytes := envInt("HERMES_EXP_NUM_BYTES", 8)
	numSamples := envInt("HERMES_EXP_NUM_SAMPLES", 500)

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	latenciesNS, err := runHarness(rateHz, numBytes, numSamples, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "latency harness failed:", err)
		os.Exit(1)
	}
	report(rateHz, numBytes, latenciesNS)
}

func runHarness(rateHz float64, numBytes, numSamples int, logger *slog.Logger) ([]int64, error) {
	bus := transport.NewBus()
	defer bus.Close()
	clk := clock.New()

	stream := sample.Stream{StreamID: streamID, NodeID: "dummy-producer", NominalRate: rateHz}
	device := node.NewEmulatorDevice(streamID, rateHz, numBytes)

	desc := topology.NodeDescriptor{
		NodeID: "dummy-producer", BrokerID: "harness",
		Role: topology.RoleProducer, OutputStreams: []string{streamID},
	}
	brokerEnd, nodeEnd := node.NewChanCoordinationPair(4)
	producer := node.NewProducer(desc, nodeEnd, stream, device, clk, delay.Zero, bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	serveDone := make(chan error, 1)
	go func() { serveDone <- producer.Serve(ctx) }()

	sub := bus.Subscribe(streamID)

	if err := brokerEnd.Send(ctx, node.CoordinationMessage{Kind: node.CoordPrepare}); err != nil {
		return nil, err
	}
	if _, err := brokerEnd.Recv(ctx); err != nil {
		return nil, err
	}
	if err := brokerEnd.Send(ctx, node.CoordinationMessage{Kind: node.CoordStart}); err != nil {
		return nil, err
	}

	latencies := make([]int64, 0, numSamples)
	for len(latencies) < numSamples {
		select {
		case env := <-sub:
			latencies = append(latencies, clk.ReferenceTime()-env.ReferenceTSNS)
		case <-time.After(5 * time.Second):
			logger.Warn("harness timed out waiting for samples", "collected", len(latencies))
			goto stop
		}
	}
stop:
	_ = brokerEnd.Send(ctx, node.CoordinationMessage{Kind: node.CoordStop})
	select {
	case <-serveDone:
	case <-time.After(time.Second):
	}
	return latencies, nil
}

func report(rateHz float64, numBytes int, latenciesNS []int64) {
	if len(latenciesNS) == 0 {
		fmt.Println("no samples collected")
		return
	}
	sorted := append([]int64(nil), latenciesNS...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var sum int64
	for _, v := range sorted {
		sum += v
	}
	mean := float64(sum) / float64(len(sorted))
	median := sorted[len(sorted)/2]

	fmt.Printf("rate_hz=%g num_bytes=%d n=%d mean_ns=%.0f median_ns=%d min_ns=%d max_ns=%d\n",
		rateHz, numBytes, len(sorted), mean, median, sorted[0], sorted[len(sorted)-1])
}

func envFloat(key string, def float64) float64 {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			return parsed
		}
	}
	return def
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}
