// Package lagregister implements LagRegister: per consumer group, per
// partition, the committed offset and the offset/time lag derived by
// joining it against a PartitionOffsetsRegister at the moment the sample
// arrives.
package lagregister

import (
	"sync"
	"time"

	"github.com/go-kit/log"

	"github.com/tmancill/kommitted/internal/kafkatypes"
	"github.com/tmancill/kommitted/internal/partitionoffsets"
)

// PartitionLag is one consumer group's view of one partition: its last
// committed offset and the lag derived from it. OffsetLag and TimeLag are
// nil when the join against PartitionOffsetsRegister could not produce a
// value (LagEstimatorNotFound or NotEnoughData) — the "unknown" fallback of
// spec §4.3.
type PartitionLag struct {
	CommittedOffset uint64
	CommittedAt     time.Time
	OffsetLag       *uint64
	TimeLag         *time.Duration
	OwnerMemberID   string
}

// Entry flattens one group/partition pair for iteration by the exposition
// layer.
type Entry struct {
	Group          string
	TopicPartition kafkatypes.TopicPartition
	PartitionLag
}

type groupState struct {
	mu         sync.RWMutex
	partitions map[kafkatypes.TopicPartition]PartitionLag
	members    []kafkatypes.GroupMember
}

// offsetEstimator is the subset of *partitionoffsets.Register the lag
// register depends on, so tests can supply a fake without spinning up a
// real sink goroutine.
type offsetEstimator interface {
	EstimateOffsetLag(tp kafkatypes.TopicPartition, consumedOffset uint64) (uint64, error)
	EstimateTimeLag(tp kafkatypes.TopicPartition, consumedOffset uint64, consumedAt time.Time) (time.Duration, error)
}

var _ offsetEstimator = (*partitionoffsets.Register)(nil)

// Register aggregates GroupLag per consumer group.
type Register struct {
	logger log.Logger
	poReg  offsetEstimator

	mu     sync.RWMutex
	groups map[string]*groupState

	committedDone  chan struct{}
	membershipDone chan struct{}
}

// New constructs a Register and starts its two sink goroutines: one
// draining committed-offset samples, one draining consumer-group
// membership updates. Both exit once their respective channel is closed.
func New(logger log.Logger, poReg offsetEstimator, committedIn <-chan kafkatypes.CommittedOffset, membershipIn <-chan kafkatypes.ConsumerGroup) *Register {
	r := &Register{
		logger:         logger,
		poReg:          poReg,
		groups:         make(map[string]*groupState),
		committedDone:  make(chan struct{}),
		membershipDone: make(chan struct{}),
	}
	go r.sinkCommitted(committedIn)
	go r.sinkMembership(membershipIn)
	return r
}

// CommittedStopped is closed once the committed-offset sink has drained a
// closed channel and returned.
func (r *Register) CommittedStopped() <-chan struct{} { return r.committedDone }

// MembershipStopped is closed once the membership sink has drained a closed
// channel and returned.
func (r *Register) MembershipStopped() <-chan struct{} { return r.membershipDone }

func (r *Register) sinkCommitted(in <-chan kafkatypes.CommittedOffset) {
	defer close(r.committedDone)
	for co := range in {
		r.applyCommitted(co)
	}
}

func (r *Register) sinkMembership(in <-chan kafkatypes.ConsumerGroup) {
	defer close(r.membershipDone)
	for cg := range in {
		gs := r.getOrCreateGroup(cg.GroupID)
		gs.mu.Lock()
		gs.members = cg.Members
		gs.mu.Unlock()
	}
}

func (r *Register) applyCommitted(co kafkatypes.CommittedOffset) {
	offsetLag, err := r.poReg.EstimateOffsetLag(co.TopicPartition, co.CommittedOffset)
	var offsetLagPtr *uint64
	if err == nil {
		offsetLagPtr = &offsetLag
	}

	timeLag, err := r.poReg.EstimateTimeLag(co.TopicPartition, co.CommittedOffset, co.CommittedAt)
	var timeLagPtr *time.Duration
	if err == nil {
		timeLagPtr = &timeLag
	}

	owner := co.MemberID
	if owner == "" {
		owner = r.lookupOwner(co.Group, co.TopicPartition)
	}

	gs := r.getOrCreateGroup(co.Group)
	gs.mu.Lock()
	gs.partitions[co.TopicPartition] = PartitionLag{
		CommittedOffset: co.CommittedOffset,
		CommittedAt:     co.CommittedAt,
		OffsetLag:       offsetLagPtr,
		TimeLag:         timeLagPtr,
		OwnerMemberID:   owner,
	}
	gs.mu.Unlock()
}

func (r *Register) lookupOwner(group string, tp kafkatypes.TopicPartition) string {
	r.mu.RLock()
	gs, ok := r.groups[group]
	r.mu.RUnlock()
	if !ok {
		return ""
	}

	gs.mu.RLock()
	defer gs.mu.RUnlock()
	for _, member := range gs.members {
		for _, assigned := range member.AssignedPartitions {
			if assigned == tp {
				return member.MemberID
			}
		}
	}
	return ""
}

func (r *Register) getOrCreateGroup(group string) *groupState {
	r.mu.RLock()
	gs, ok := r.groups[group]
	r.mu.RUnlock()
	if ok {
		return gs
	}

	r.mu.Lock()
	gs, ok = r.groups[group]
	if !ok {
		gs = &groupState{partitions: make(map[kafkatypes.TopicPartition]PartitionLag)}
		r.groups[group] = gs
	}
	r.mu.Unlock()
	return gs
}

// Snapshot flattens every tracked group/partition pair for iteration by the
// exposition layer. It is not a globally atomic snapshot: groups are read
// one at a time, matching spec §5's "not a globally consistent snapshot
// across partitions" guarantee.
func (r *Register) Snapshot() []Entry {
	r.mu.RLock()
	names := make([]string, 0, len(r.groups))
	states := make([]*groupState, 0, len(r.groups))
	for name, gs := range r.groups {
		names = append(names, name)
		states = append(states, gs)
	}
	r.mu.RUnlock()

	var out []Entry
	for i, gs := range states {
		gs.mu.RLock()
		for tp, pl := range gs.partitions {
			out = append(out, Entry{Group: names[i], TopicPartition: tp, PartitionLag: pl})
		}
		gs.mu.RUnlock()
	}
	return out
}

// Get returns the PartitionLag of one group/partition pair, or
// LagEstimatorNotFound-shaped behavior (ok=false) if it has never been
// observed.
func (r *Register) Get(group string, tp kafkatypes.TopicPartition) (PartitionLag, bool) {
	r.mu.RLock()
	gs, ok := r.groups[group]
	r.mu.RUnlock()
	if !ok {
		return PartitionLag{}, false
	}
	gs.mu.RLock()
	defer gs.mu.RUnlock()
	pl, ok := gs.partitions[tp]
	return pl, ok
}
