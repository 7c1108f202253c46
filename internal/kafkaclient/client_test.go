package kafkaclient

import (
	"errors"
	"testing"
	"time"

	kafka "github.com/segmentio/kafka-go"
)

func TestFlattenPartitions(t *testing.T) {
	resp := &kafka.MetadataResponse{
		Topics: []kafka.Topic{
			{
				Name: "orders",
				Partitions: []kafka.Partition{
					{ID: 0},
					{ID: 1},
				},
			},
			{
				Name:       "payments",
				Partitions: []kafka.Partition{{ID: 0}},
			},
		},
	}

	tps, err := flattenPartitions(resp)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tps) != 3 {
		t.Fatalf("flattenPartitions returned %d entries; want 3", len(tps))
	}
}

func TestFlattenPartitions_TopicError(t *testing.T) {
	resp := &kafka.MetadataResponse{
		Topics: []kafka.Topic{
			{Name: "orders", Error: errors.New("unknown topic")},
		},
	}

	if _, err := flattenPartitions(resp); err == nil {
		t.Fatal("expected error to propagate from topic metadata")
	}
}

func TestMax64(t *testing.T) {
	if got := max64(-1, 0); got != 0 {
		t.Errorf("max64(-1, 0) = %d; want 0", got)
	}
	if got := max64(5, 0); got != 5 {
		t.Errorf("max64(5, 0) = %d; want 5", got)
	}
}

func TestDurationConf_MissingKeyReturnsFallback(t *testing.T) {
	d, err := durationConf(map[string]string{}, "read-timeout", 7*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d != 7*time.Second {
		t.Errorf("durationConf fallback = %s; want 7s", d)
	}
}

func TestDurationConf_InvalidValue(t *testing.T) {
	_, err := durationConf(map[string]string{"read-timeout": "not-a-duration"}, "read-timeout", time.Second)
	if err == nil {
		t.Fatal("expected an error for an invalid duration")
	}
}

func TestNew_RejectsUnsupportedSASLMechanism(t *testing.T) {
	_, err := New([]string{"localhost:9092"}, map[string]string{
		"sasl-username":  "alice",
		"sasl-mechanism": "scram-sha-512",
	})
	if err == nil {
		t.Fatal("expected an error for an unsupported sasl-mechanism")
	}
}

func TestNew_RejectsUnreadableCAFile(t *testing.T) {
	_, err := New([]string{"localhost:9092"}, map[string]string{"tls-ca-file": "/does/not/exist.pem"})
	if err == nil {
		t.Fatal("expected an error for a missing tls-ca-file")
	}
}
