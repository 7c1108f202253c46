// Package partitionoffsets implements PartitionOffsetsRegister: the
// aggregate of every partition's PartitionLagEstimator, fed by a channel of
// watermark samples and queried by the lag register and the exposition
// handler.
package partitionoffsets

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/tmancill/kommitted/internal/kafkatypes"
	"github.com/tmancill/kommitted/internal/lagerrors"
	"github.com/tmancill/kommitted/internal/lagestimator"
)

// readinessCheckInterval is how often AwaitReady polls usage while waiting.
const readinessCheckInterval = 2 * time.Second

// partitionEntry pairs one partition's estimator with the lock that
// serializes access to it. The outer register lock only ever needs to be
// held long enough to find or create this entry; all the actual estimator
// work happens under entry.mu, so writes to one partition never block reads
// of another.
type partitionEntry struct {
	mu  sync.RWMutex
	est *lagestimator.PartitionLagEstimator
}

// Register aggregates watermark samples into per-TopicPartition estimators.
type Register struct {
	logger          log.Logger
	historyCapacity int

	mu         sync.RWMutex
	estimators map[kafkatypes.TopicPartition]*partitionEntry

	done chan struct{}
}

// New constructs a Register and immediately starts its sink goroutine
// draining in. The sink exits, closing the channel returned by Stopped,
// once in is closed and drained — it never polls a cancellation signal
// directly, matching the emitter/register shutdown contract of spec §5.
func New(logger log.Logger, in <-chan kafkatypes.PartitionOffset, historyCapacity int) *Register {
	r := &Register{
		logger:          logger,
		historyCapacity: historyCapacity,
		estimators:      make(map[kafkatypes.TopicPartition]*partitionEntry),
		done:            make(chan struct{}),
	}
	go r.sink(in)
	return r
}

// Stopped is closed once the sink goroutine has drained a closed input
// channel and returned.
func (r *Register) Stopped() <-chan struct{} {
	return r.done
}

func (r *Register) sink(in <-chan kafkatypes.PartitionOffset) {
	defer close(r.done)

	for po := range in {
		tp := kafkatypes.TopicPartition{Topic: po.Topic, Partition: po.Partition}
		entry := r.getOrCreate(tp)

		entry.mu.Lock()
		outcome := entry.est.Update(po.EarliestOffset, po.LatestOffset, po.ReadAt)
		entry.mu.Unlock()

		if outcome == lagestimator.UpdateDiscardedWatermarkDecrease {
			level.Warn(r.logger).Log(
				"msg", "watermark decreased; discarding sample",
				"topic", po.Topic, "partition", po.Partition, "latest", po.LatestOffset,
			)
		}
	}

	level.Info(r.logger).Log("msg", "partition offsets sink stopped: input channel closed")
}

// getOrCreate finds the entry for tp, inserting a fresh one under the write
// lock only if it is not already present. Once found or created, the map
// lock is released before the entry's own lock is touched.
func (r *Register) getOrCreate(tp kafkatypes.TopicPartition) *partitionEntry {
	r.mu.RLock()
	entry, ok := r.estimators[tp]
	r.mu.RUnlock()
	if ok {
		return entry
	}

	r.mu.Lock()
	entry, ok = r.estimators[tp]
	if !ok {
		entry = &partitionEntry{est: lagestimator.New(r.historyCapacity)}
		r.estimators[tp] = entry
	}
	r.mu.Unlock()
	return entry
}

func (r *Register) get(tp kafkatypes.TopicPartition) (*partitionEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entry, ok := r.estimators[tp]
	if !ok {
		return nil, lagerrors.NewLagEstimatorNotFound(tp.Topic, tp.Partition)
	}
	return entry, nil
}

// EstimateOffsetLag estimates offset lag for tp at consumedOffset.
func (r *Register) EstimateOffsetLag(tp kafkatypes.TopicPartition, consumedOffset uint64) (uint64, error) {
	entry, err := r.get(tp)
	if err != nil {
		return 0, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.est.EstimateOffsetLag(consumedOffset)
}

// EstimateTimeLag estimates time lag for tp given a consumed offset and the
// instant it was committed.
func (r *Register) EstimateTimeLag(tp kafkatypes.TopicPartition, consumedOffset uint64, consumedAt time.Time) (time.Duration, error) {
	entry, err := r.get(tp)
	if err != nil {
		return 0, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.est.EstimateTimeLag(consumedOffset, consumedAt)
}

// GetEarliestTrackedOffset returns the oldest history entry for tp.
func (r *Register) GetEarliestTrackedOffset(tp kafkatypes.TopicPartition) (kafkatypes.TrackedOffset, error) {
	entry, err := r.get(tp)
	if err != nil {
		return kafkatypes.TrackedOffset{}, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.est.EarliestTrackedOffset()
}

// GetLatestTrackedOffset returns the newest history entry for tp.
func (r *Register) GetLatestTrackedOffset(tp kafkatypes.TopicPartition) (kafkatypes.TrackedOffset, error) {
	entry, err := r.get(tp)
	if err != nil {
		return kafkatypes.TrackedOffset{}, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.est.LatestTrackedOffset()
}

// GetEarliestAvailableOffset returns the most recently observed low
// watermark for tp.
func (r *Register) GetEarliestAvailableOffset(tp kafkatypes.TopicPartition) (uint64, error) {
	entry, err := r.get(tp)
	if err != nil {
		return 0, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.est.EarliestAvailableOffset()
}

// GetLatestAvailableOffset returns the latest observed high watermark for tp.
func (r *Register) GetLatestAvailableOffset(tp kafkatypes.TopicPartition) (uint64, error) {
	entry, err := r.get(tp)
	if err != nil {
		return 0, err
	}
	entry.mu.RLock()
	defer entry.mu.RUnlock()
	return entry.est.LatestAvailableOffset()
}

// TrackedPartitions returns every topic partition with a live estimator, for
// exposition to iterate over.
func (r *Register) TrackedPartitions() []kafkatypes.TopicPartition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kafkatypes.TopicPartition, 0, len(r.estimators))
	for tp := range r.estimators {
		out = append(out, tp)
	}
	return out
}

// GetUsage aggregates UsagePercent across every tracked estimator, returning
// (min, max, avg, count). It returns all zeros when no partition is tracked
// yet.
func (r *Register) GetUsage() (min, max, avg float64, count int) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	count = len(r.estimators)
	if count == 0 {
		return 0, 0, 0, 0
	}

	min = math.MaxFloat64
	max = -math.MaxFloat64
	var sum float64
	for _, entry := range r.estimators {
		entry.mu.RLock()
		usage := entry.est.UsagePercent()
		entry.mu.RUnlock()

		sum += usage
		if usage > max {
			max = usage
		}
		if usage < min {
			min = usage
		}
	}
	return min, max, sum / float64(count), count
}

// IsReady reports whether average usage across all tracked partitions
// exceeds thresholdPercent.
func (r *Register) IsReady(thresholdPercent float64) bool {
	min, max, avg, count := r.GetUsage()
	ready := avg > thresholdPercent

	level.Info(r.logger).Log(
		"msg", "partition offsets usage",
		"tracked_partitions", count, "min_pct", min, "max_pct", max, "avg_pct", avg, "ready", ready,
	)
	return ready
}

// AwaitReady polls IsReady every readinessCheckInterval until it returns
// true or ctx is cancelled. It returns false if ctx is cancelled first.
func (r *Register) AwaitReady(ctx context.Context, thresholdPercent float64) bool {
	ticker := time.NewTicker(readinessCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if r.IsReady(thresholdPercent) {
				return true
			}
		case <-ctx.Done():
			level.Info(r.logger).Log("msg", "await ready: cancelled before threshold reached")
			return false
		}
	}
}
