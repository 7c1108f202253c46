// Package lagestimator implements PartitionLagEstimator: a bounded,
// monotonic history of watermark observations for one partition, and the
// arithmetic that turns that history into offset-lag and time-lag
// estimates for an arbitrary consumed offset.
//
// An estimator holds no lock of its own. It is owned exclusively by one
// entry of a PartitionOffsetsRegister, which serializes access to it; see
// that package for the concurrency story.
package lagestimator

import (
	"sort"
	"time"

	"github.com/tmancill/kommitted/internal/kafkatypes"
	"github.com/tmancill/kommitted/internal/lagerrors"
)

// UpdateOutcome reports what Update did with a sample, so a caller that
// wants to log can decide what (if anything) is worth a warning.
type UpdateOutcome int

const (
	// UpdateApplied means the sample extended the history (first sample,
	// or a new tail entry).
	UpdateApplied UpdateOutcome = iota
	// UpdateDiscardedClockRegression means the sample's timestamp did not
	// advance past the current tail; this is expected on a duplicate or
	// out-of-order poll and is not worth more than a debug log.
	UpdateDiscardedClockRegression
	// UpdateDiscardedWatermarkDecrease means the sample's latest offset
	// regressed below the tracked tail; this should never happen in a
	// healthy cluster and is worth a warning.
	UpdateDiscardedWatermarkDecrease
	// UpdateMergedFlat means the sample's offset matched the tail exactly;
	// the tail's timestamp was advanced in place rather than growing
	// history.
	UpdateMergedFlat
)

// PartitionLagEstimator tracks one partition's watermark history and
// answers offset-lag / time-lag queries against it.
type PartitionLagEstimator struct {
	capacity          int
	history           []kafkatypes.TrackedOffset
	earliestAvailable uint64
	hasEarliest       bool
}

// New constructs an estimator with the given history capacity. Capacity is
// shared by every partition in a PartitionOffsetsRegister and must be at
// least 1.
func New(capacity int) *PartitionLagEstimator {
	return &PartitionLagEstimator{
		capacity: capacity,
		history:  make([]kafkatypes.TrackedOffset, 0, capacity),
	}
}

// Update applies one watermark observation. See the package doc and
// spec §4.1 for the exact contract:
//
//   - earliestAvailable is set unconditionally, even when the sample is
//     otherwise discarded (the low watermark only moves forward, so it is
//     trustworthy independent of the timestamp check below).
//   - a sample whose timestamp does not advance past the tail is a clock
//     regression / duplicate poll and is discarded.
//   - a sample whose offset regresses below the tail is discarded (the
//     watermark must not decrease).
//   - a sample whose offset exactly matches the tail extends the flat
//     segment by advancing the tail's timestamp, rather than growing
//     history.
//   - otherwise the sample is appended, evicting the head if the history
//     now exceeds capacity.
func (e *PartitionLagEstimator) Update(earliest, latest uint64, at time.Time) UpdateOutcome {
	e.earliestAvailable = earliest
	e.hasEarliest = true

	if len(e.history) == 0 {
		e.history = append(e.history, kafkatypes.TrackedOffset{Offset: latest, At: at})
		return UpdateApplied
	}

	tailIdx := len(e.history) - 1
	tail := e.history[tailIdx]

	switch {
	case !at.After(tail.At):
		return UpdateDiscardedClockRegression
	case latest < tail.Offset:
		return UpdateDiscardedWatermarkDecrease
	case latest == tail.Offset:
		e.history[tailIdx].At = at
		return UpdateMergedFlat
	default:
		e.history = append(e.history, kafkatypes.TrackedOffset{Offset: latest, At: at})
		if len(e.history) > e.capacity {
			e.history = e.history[1:]
		}
		return UpdateApplied
	}
}

// EstimateOffsetLag returns latest_tracked_offset - consumedOffset,
// saturating at 0 when the consumer is caught up or ahead.
func (e *PartitionLagEstimator) EstimateOffsetLag(consumedOffset uint64) (uint64, error) {
	if len(e.history) == 0 {
		return 0, lagerrors.ErrNotEnoughData
	}
	latest := e.history[len(e.history)-1].Offset
	if consumedOffset >= latest {
		return 0, nil
	}
	return latest - consumedOffset, nil
}

// EstimateTimeLag estimates the wall-clock delay between consumedAt (when
// consumedOffset was committed) and the tracked tail, interpolating linearly
// over the bucket of history that brackets consumedOffset.
func (e *PartitionLagEstimator) EstimateTimeLag(consumedOffset uint64, consumedAt time.Time) (time.Duration, error) {
	if len(e.history) == 0 {
		return 0, lagerrors.ErrNotEnoughData
	}

	head := e.history[0]
	tail := e.history[len(e.history)-1]

	if consumedOffset >= tail.Offset {
		return 0, nil
	}
	if consumedOffset < head.Offset {
		return saturateNonNegative(tail.At.Sub(consumedAt)), nil
	}

	// History offsets are strictly increasing between distinct entries
	// (Update merges same-offset samples into the tail rather than
	// appending a duplicate), so a binary search for the first entry whose
	// offset is >= consumedOffset is well defined.
	idx := sort.Search(len(e.history), func(i int) bool {
		return e.history[i].Offset >= consumedOffset
	})
	if e.history[idx].Offset == consumedOffset {
		return saturateNonNegative(tail.At.Sub(e.history[idx].At)), nil
	}

	a, b := e.history[idx-1], e.history[idx]
	estimated := interpolate(a, b, consumedOffset)
	return saturateNonNegative(tail.At.Sub(estimated)), nil
}

// interpolate computes the estimated instant offset was reached, assuming a
// uniform arrival rate between a and b. The ratio is computed in integer
// offset-units and applied to the time delta in nanoseconds, to avoid
// floating point in the offset math.
func interpolate(a, b kafkatypes.TrackedOffset, offset uint64) time.Time {
	offsetDelta := b.Offset - a.Offset
	if offsetDelta == 0 {
		offsetDelta = 1
	}
	numerator := offset - a.Offset
	timeDeltaNanos := b.At.Sub(a.At).Nanoseconds()
	scaledNanos := timeDeltaNanos * int64(numerator) / int64(offsetDelta)
	return a.At.Add(time.Duration(scaledNanos))
}

func saturateNonNegative(d time.Duration) time.Duration {
	if d < 0 {
		return 0
	}
	return d
}

// EarliestTrackedOffset returns the oldest entry still in history.
func (e *PartitionLagEstimator) EarliestTrackedOffset() (kafkatypes.TrackedOffset, error) {
	if len(e.history) == 0 {
		return kafkatypes.TrackedOffset{}, lagerrors.ErrNotEnoughData
	}
	return e.history[0], nil
}

// LatestTrackedOffset returns the newest entry in history.
func (e *PartitionLagEstimator) LatestTrackedOffset() (kafkatypes.TrackedOffset, error) {
	if len(e.history) == 0 {
		return kafkatypes.TrackedOffset{}, lagerrors.ErrNotEnoughData
	}
	return e.history[len(e.history)-1], nil
}

// EarliestAvailableOffset returns the most recently observed low watermark.
func (e *PartitionLagEstimator) EarliestAvailableOffset() (uint64, error) {
	if !e.hasEarliest {
		return 0, lagerrors.ErrNotEnoughData
	}
	return e.earliestAvailable, nil
}

// LatestAvailableOffset returns the tracked tail's offset: the latest
// high-watermark this estimator has observed.
func (e *PartitionLagEstimator) LatestAvailableOffset() (uint64, error) {
	if len(e.history) == 0 {
		return 0, lagerrors.ErrNotEnoughData
	}
	return e.history[len(e.history)-1].Offset, nil
}

// UsagePercent returns how full the bounded history is, as a percentage of
// capacity.
func (e *PartitionLagEstimator) UsagePercent() float64 {
	return 100 * float64(len(e.history)) / float64(e.capacity)
}
