// Package emitters runs the four poll loops that feed the registers:
// cluster metadata, consumer group membership, partition watermarks, and
// committed offsets. Each is spawned with its own ticker and cadence,
// grounded on the teacher's pkg/scraper.MetricsScraper.Run loop (immediate
// first fetch, ticker thereafter, context-cancellation exit) generalized
// from one fetch shape to four, and on lagregister's close-to-terminate
// sink convention: every emitter closes its output channel when its loop
// exits so the owning register's sink drains and returns on its own.
package emitters

import (
	"context"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/tmancill/kommitted/internal/kafkaclient"
	"github.com/tmancill/kommitted/internal/kafkatypes"
	"github.com/tmancill/kommitted/internal/lagerrors"
)

// runTicker drives fetch immediately, then once per interval, until ctx is
// canceled, at which point the loop returns (each Spawn closes its output
// channel once runTicker has returned). A transient
// poll failure is logged and the loop continues; it never escapes the
// emitter, matching the TransientPollFailure containment spec.
func runTicker(ctx context.Context, logger log.Logger, source string, interval time.Duration, fetch func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	attempt := func() {
		if err := fetch(ctx); err != nil {
			if ctx.Err() != nil {
				return
			}
			level.Warn(logger).Log("msg", "transient poll failure", "source", source, "err", lagerrors.NewTransientPollFailure(source, err))
		}
	}

	attempt()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			attempt()
		}
	}
}

// ClusterMeta polls cluster identity, brokers, and the topic partition set.
type ClusterMeta struct {
	client   *kafkaclient.Client
	logger   log.Logger
	interval time.Duration
}

// NewClusterMeta constructs a ClusterMeta emitter.
func NewClusterMeta(client *kafkaclient.Client, logger log.Logger, interval time.Duration) *ClusterMeta {
	return &ClusterMeta{client: client, logger: logger, interval: interval}
}

// Spawn starts the poll loop and returns a channel of snapshots that closes
// when ctx is canceled.
func (e *ClusterMeta) Spawn(ctx context.Context) <-chan kafkatypes.ClusterStatus {
	out := make(chan kafkatypes.ClusterStatus)
	go func() {
		defer close(out)
		runTicker(ctx, e.logger, "cluster-meta", e.interval, func(ctx context.Context) error {
			status, err := e.client.DescribeCluster(ctx)
			if err != nil {
				return err
			}
			select {
			case out <- status:
			case <-ctx.Done():
			}
			return nil
		})
	}()
	return out
}

// ConsumerGroups polls consumer group membership and per-member partition
// assignment.
type ConsumerGroups struct {
	client   *kafkaclient.Client
	logger   log.Logger
	interval time.Duration
}

// NewConsumerGroups constructs a ConsumerGroups emitter.
func NewConsumerGroups(client *kafkaclient.Client, logger log.Logger, interval time.Duration) *ConsumerGroups {
	return &ConsumerGroups{client: client, logger: logger, interval: interval}
}

// Spawn starts the poll loop, emitting one value per discovered group on
// every tick.
func (e *ConsumerGroups) Spawn(ctx context.Context) <-chan kafkatypes.ConsumerGroup {
	out := make(chan kafkatypes.ConsumerGroup)
	go func() {
		defer close(out)
		runTicker(ctx, e.logger, "consumer-groups", e.interval, func(ctx context.Context) error {
			groups, err := e.client.ListConsumerGroups(ctx)
			if err != nil {
				return err
			}
			for _, g := range groups {
				select {
				case out <- g:
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		})
	}()
	return out
}

// PartitionWatermarkSource supplies the partition set a PartitionWatermarks
// emitter should poll on each tick; ClusterStatusRegister satisfies this.
type PartitionWatermarkSource interface {
	GetTopicPartitions() []kafkatypes.TopicPartition
}

// PartitionWatermarks polls the earliest/latest available offset of every
// partition in topicSource's current snapshot, fanning the per-partition
// watermark fetches out across a bounded worker pool.
type PartitionWatermarks struct {
	client      *kafkaclient.Client
	logger      log.Logger
	interval    time.Duration
	topicSource PartitionWatermarkSource
	fanout      int
}

// NewPartitionWatermarks constructs a PartitionWatermarks emitter. fanout
// bounds concurrent in-flight watermark fetches, per SPEC_FULL.md §4.4
// (GOMAXPROCS capped at 8).
func NewPartitionWatermarks(client *kafkaclient.Client, logger log.Logger, interval time.Duration, topicSource PartitionWatermarkSource, fanout int) *PartitionWatermarks {
	if fanout < 1 {
		fanout = 1
	}
	return &PartitionWatermarks{client: client, logger: logger, interval: interval, topicSource: topicSource, fanout: fanout}
}

// Spawn starts the poll loop, emitting one PartitionOffset sample per
// partition on every tick.
func (e *PartitionWatermarks) Spawn(ctx context.Context) <-chan kafkatypes.PartitionOffset {
	out := make(chan kafkatypes.PartitionOffset)
	go func() {
		defer close(out)
		runTicker(ctx, e.logger, "partition-watermarks", e.interval, func(ctx context.Context) error {
			tps := e.topicSource.GetTopicPartitions()
			if len(tps) == 0 {
				return nil
			}
			watermarks, err := e.fetchWatermarks(ctx, tps)
			if err != nil {
				return err
			}
			now := time.Now()
			for tp, wm := range watermarks {
				sample := kafkatypes.PartitionOffset{
					Topic:          tp.Topic,
					Partition:      tp.Partition,
					EarliestOffset: wm.Earliest,
					LatestOffset:   wm.Latest,
					ReadAt:         now,
				}
				select {
				case out <- sample:
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		})
	}()
	return out
}

// fetchWatermarks shards tps by topic and fetches each topic's watermarks
// concurrently, bounded by e.fanout in-flight requests at a time. A single
// GetWatermarks call already batches all partitions of one topic into one
// ListOffsets request; the fan-out is across topics, not partitions.
func (e *PartitionWatermarks) fetchWatermarks(ctx context.Context, tps []kafkatypes.TopicPartition) (map[kafkatypes.TopicPartition]kafkaclient.Watermark, error) {
	byTopic := make(map[string][]kafkatypes.TopicPartition)
	for _, tp := range tps {
		byTopic[tp.Topic] = append(byTopic[tp.Topic], tp)
	}

	type result struct {
		watermarks map[kafkatypes.TopicPartition]kafkaclient.Watermark
		err        error
	}

	jobs := make(chan []kafkatypes.TopicPartition)
	results := make(chan result)

	var wg sync.WaitGroup
	workers := e.fanout
	if workers > len(byTopic) {
		workers = len(byTopic)
	}
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for group := range jobs {
				wm, err := e.client.GetWatermarks(ctx, group)
				results <- result{watermarks: wm, err: err}
			}
		}()
	}

	go func() {
		for _, group := range byTopic {
			jobs <- group
		}
		close(jobs)
		wg.Wait()
		close(results)
	}()

	merged := make(map[kafkatypes.TopicPartition]kafkaclient.Watermark, len(tps))
	var firstErr error
	for r := range results {
		if r.err != nil {
			if firstErr == nil {
				firstErr = r.err
			}
			continue
		}
		for tp, wm := range r.watermarks {
			merged[tp] = wm
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	return merged, nil
}

// CommittedOffsets polls the committed offset of every known consumer group
// against topicSource's current partition snapshot.
type CommittedOffsets struct {
	client      *kafkaclient.Client
	logger      log.Logger
	interval    time.Duration
	topicSource PartitionWatermarkSource
}

// NewCommittedOffsets constructs a CommittedOffsets emitter.
func NewCommittedOffsets(client *kafkaclient.Client, logger log.Logger, interval time.Duration, topicSource PartitionWatermarkSource) *CommittedOffsets {
	return &CommittedOffsets{client: client, logger: logger, interval: interval, topicSource: topicSource}
}

// Spawn starts the poll loop, emitting one CommittedOffset sample per
// group/partition pair on every tick.
func (e *CommittedOffsets) Spawn(ctx context.Context) <-chan kafkatypes.CommittedOffset {
	out := make(chan kafkatypes.CommittedOffset)
	go func() {
		defer close(out)
		runTicker(ctx, e.logger, "committed-offsets", e.interval, func(ctx context.Context) error {
			tps := e.topicSource.GetTopicPartitions()
			if len(tps) == 0 {
				return nil
			}
			committed, err := e.client.GetCommittedOffsets(ctx, tps)
			if err != nil {
				return err
			}
			for _, co := range committed {
				select {
				case out <- co:
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		})
	}()
	return out
}
