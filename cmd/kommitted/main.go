// Command kommitted runs the Kafka consumer-lag exporter: it polls cluster
// metadata, consumer group membership, partition watermarks, and committed
// offsets, estimates offset and time lag per partition, and exposes
// everything on a Prometheus /metrics endpoint.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"syscall"

	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/tmancill/kommitted/internal/clusterstatus"
	"github.com/tmancill/kommitted/internal/config"
	"github.com/tmancill/kommitted/internal/emitters"
	"github.com/tmancill/kommitted/internal/httpserver"
	"github.com/tmancill/kommitted/internal/kafkaclient"
	"github.com/tmancill/kommitted/internal/lagerrors"
	"github.com/tmancill/kommitted/internal/lagregister"
	"github.com/tmancill/kommitted/internal/logging"
	"github.com/tmancill/kommitted/internal/partitionoffsets"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "kommitted: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Parse(os.Args[1:])
	if err != nil {
		return err
	}

	logger := logging.New(cfg.LogLevel)
	level.Info(logger).Log("msg", "starting kommitted",
		"brokers", len(cfg.Brokers), "bind", cfg.Bind, "history_size", cfg.HistorySize)

	client, err := kafkaclient.New(cfg.Brokers, cfg.KafkaConf)
	if err != nil {
		return lagerrors.NewFatalStartupError(err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if _, err := client.DescribeCluster(ctx); err != nil {
		return lagerrors.NewFatalStartupError(err)
	}

	clusterReg := clusterstatus.New()

	clusterMetaEmitter := emitters.NewClusterMeta(client, logger, cfg.ClusterMetaInterval)
	clusterMetaOut := clusterMetaEmitter.Spawn(ctx)
	go clusterReg.Run(clusterMetaOut)

	partitionWatermarksEmitter := emitters.NewPartitionWatermarks(client, logger, cfg.PartitionWatermarksInterval, clusterReg, min(runtime.GOMAXPROCS(0), 8))
	partitionWatermarksOut := partitionWatermarksEmitter.Spawn(ctx)
	offsetsReg := partitionoffsets.New(logger, partitionWatermarksOut, cfg.HistorySize)

	consumerGroupsEmitter := emitters.NewConsumerGroups(client, logger, cfg.ConsumerGroupsInterval)
	consumerGroupsOut := consumerGroupsEmitter.Spawn(ctx)

	committedOffsetsEmitter := emitters.NewCommittedOffsets(client, logger, cfg.CommittedOffsetsInterval, clusterReg)
	committedOffsetsOut := committedOffsetsEmitter.Spawn(ctx)

	lagReg := lagregister.New(logger, offsetsReg, committedOffsetsOut, consumerGroupsOut)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		collectors.NewGoCollector(),
	)

	srv := httpserver.New(cfg.Bind, logger, httpserver.Dependencies{
		Registry:         registry,
		ClusterStatus:    clusterReg,
		PartitionOffsets: offsetsReg,
		LagRegister:      lagReg,
	})

	srv.MarkHealthy()

	go func() {
		if offsetsReg.AwaitReady(ctx, cfg.ReadinessThreshold) {
			srv.MarkReady()
		} else {
			srv.MarkNotReady()
		}
	}()

	level.Info(logger).Log("msg", "http server listening", "bind", cfg.Bind)
	if err := srv.ListenAndServe(ctx); err != nil {
		if ctx.Err() == nil {
			return lagerrors.NewFatalStartupError(err)
		}
		return err
	}

	level.Info(logger).Log("msg", "shutdown complete")
	return nil
}
