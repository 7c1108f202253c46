// Package clusterstatus implements ClusterStatusRegister: a wholesale-
// replaced snapshot of cluster identity, brokers, and topic partitions.
package clusterstatus

import (
	"sync"

	"github.com/tmancill/kommitted/internal/kafkatypes"
)

// Register holds the most recent ClusterStatus snapshot, replaced entirely
// on each poll by the cluster-meta emitter.
type Register struct {
	mu       sync.RWMutex
	snapshot kafkatypes.ClusterStatus
}

// New constructs an empty Register.
func New() *Register {
	return &Register{}
}

// Run drains in, replacing the snapshot with each received ClusterStatus.
// It returns once in is closed.
func (r *Register) Run(in <-chan kafkatypes.ClusterStatus) {
	for status := range in {
		r.Replace(status)
	}
}

// Replace atomically swaps the held snapshot.
func (r *Register) Replace(status kafkatypes.ClusterStatus) {
	r.mu.Lock()
	r.snapshot = status
	r.mu.Unlock()
}

// GetClusterID returns the cluster id of the most recent snapshot, or "" if
// none has been received yet.
func (r *Register) GetClusterID() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshot.ClusterID
}

// GetTopicPartitions returns a copy of the topic partition list of the most
// recent snapshot.
func (r *Register) GetTopicPartitions() []kafkatypes.TopicPartition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kafkatypes.TopicPartition, len(r.snapshot.TopicPartitions))
	copy(out, r.snapshot.TopicPartitions)
	return out
}

// GetBrokers returns a copy of the broker list of the most recent snapshot.
func (r *Register) GetBrokers() []kafkatypes.Broker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]kafkatypes.Broker, len(r.snapshot.Brokers))
	copy(out, r.snapshot.Brokers)
	return out
}

// Snapshot returns a copy of the full cluster status.
func (r *Register) Snapshot() kafkatypes.ClusterStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return kafkatypes.ClusterStatus{
		ClusterID:       r.snapshot.ClusterID,
		Brokers:         append([]kafkatypes.Broker(nil), r.snapshot.Brokers...),
		TopicPartitions: append([]kafkatypes.TopicPartition(nil), r.snapshot.TopicPartitions...),
	}
}
