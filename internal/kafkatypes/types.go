// Package kafkatypes holds the plain value types shared across the
// emitters, registers, and exposition layer. None of them carry behavior;
// they exist purely to give the pipeline a common vocabulary.
package kafkatypes

import "time"

// TopicPartition identifies a single partition of a topic. It is immutable
// and comparable, so it can be used directly as a map key.
type TopicPartition struct {
	Topic     string
	Partition uint32
}

// PartitionOffset is a single watermark observation emitted by the
// partition-watermarks emitter.
type PartitionOffset struct {
	Topic          string
	Partition      uint32
	EarliestOffset uint64
	LatestOffset   uint64
	ReadAt         time.Time
}

// TrackedOffset is one entry in a PartitionLagEstimator's bounded history:
// "at instant At, the latest watermark observed was Offset".
type TrackedOffset struct {
	Offset uint64
	At     time.Time
}

// Broker is a single member of the cluster's broker list.
type Broker struct {
	ID   int32
	Host string
	Port int32
}

// ClusterStatus is a point-in-time snapshot of cluster identity, brokers,
// and the full set of topic partitions known to exist.
type ClusterStatus struct {
	ClusterID       string
	Brokers         []Broker
	TopicPartitions []TopicPartition
}

// GroupMember is one member of a consumer group, with the partitions it
// currently owns (as reported by the group coordinator).
type GroupMember struct {
	MemberID           string
	ClientID           string
	AssignedPartitions []TopicPartition
}

// ConsumerGroup is a group and its current membership, as produced by the
// consumer-groups emitter.
type ConsumerGroup struct {
	GroupID string
	State   string
	Members []GroupMember
}

// CommittedOffset is a single committed-offset observation emitted by the
// committed-offsets emitter, joined against one TopicPartition of one group.
type CommittedOffset struct {
	Group           string
	TopicPartition  TopicPartition
	CommittedOffset uint64
	CommittedAt     time.Time
	MemberID        string
}
