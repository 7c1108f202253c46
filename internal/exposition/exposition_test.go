package exposition

import (
	"strings"
	"testing"
	"time"

	"github.com/go-kit/log"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/tmancill/kommitted/internal/clusterstatus"
	"github.com/tmancill/kommitted/internal/kafkatypes"
	"github.com/tmancill/kommitted/internal/lagregister"
)

type fakeOffsetsSource struct {
	tps []kafkatypes.TopicPartition
}

func (f fakeOffsetsSource) TrackedPartitions() []kafkatypes.TopicPartition { return f.tps }

func (f fakeOffsetsSource) GetEarliestAvailableOffset(tp kafkatypes.TopicPartition) (uint64, error) {
	return 10, nil
}

func (f fakeOffsetsSource) GetLatestAvailableOffset(tp kafkatypes.TopicPartition) (uint64, error) {
	return 100, nil
}

func (f fakeOffsetsSource) GetEarliestTrackedOffset(tp kafkatypes.TopicPartition) (kafkatypes.TrackedOffset, error) {
	return kafkatypes.TrackedOffset{Offset: 50, At: time.UnixMilli(1000)}, nil
}

func (f fakeOffsetsSource) GetLatestTrackedOffset(tp kafkatypes.TopicPartition) (kafkatypes.TrackedOffset, error) {
	return kafkatypes.TrackedOffset{Offset: 90, At: time.UnixMilli(2000)}, nil
}

type fakeEstimator struct{}

func (fakeEstimator) EstimateOffsetLag(kafkatypes.TopicPartition, uint64) (uint64, error) {
	return 15, nil
}

func (fakeEstimator) EstimateTimeLag(kafkatypes.TopicPartition, uint64, time.Time) (time.Duration, error) {
	return 3 * time.Second, nil
}

func TestRender_IncludesAllSevenFamiliesInOrder(t *testing.T) {
	clusterReg := clusterstatus.New()
	clusterReg.Replace(kafkatypes.ClusterStatus{ClusterID: "test-cluster"})

	tp := kafkatypes.TopicPartition{Topic: "orders", Partition: 0}
	committedIn := make(chan kafkatypes.CommittedOffset, 1)
	membershipIn := make(chan kafkatypes.ConsumerGroup, 1)
	lagReg := lagregister.New(log.NewNopLogger(), fakeEstimator{}, committedIn, membershipIn)
	committedIn <- kafkatypes.CommittedOffset{Group: "billing", TopicPartition: tp, CommittedOffset: 85, CommittedAt: time.Now()}
	time.Sleep(20 * time.Millisecond)

	offsetsReg := fakeOffsetsSource{tps: []kafkatypes.TopicPartition{tp}}
	registry := prometheus.NewRegistry()

	body, err := Render(log.NewNopLogger(), registry, clusterReg, offsetsReg, lagReg)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantInOrder := []string{
		"consumer_partition_offset",
		"consumer_partition_lag_offset",
		"consumer_partition_lag_milliseconds",
		"partition_earliest_available_offset",
		"partition_latest_available_offset",
		"partition_earliest_tracked_offset",
		"partition_latest_tracked_offset",
	}

	lastIdx := -1
	for _, name := range wantInOrder {
		idx := strings.Index(body, "# HELP "+name+" ")
		if idx == -1 {
			t.Fatalf("missing HELP header for %s; body:\n%s", name, body)
		}
		if idx <= lastIdx {
			t.Fatalf("family %s out of order", name)
		}
		lastIdx = idx
	}

	if !strings.Contains(body, `cluster_id="test-cluster"`) {
		t.Error("expected cluster_id label to be populated")
	}
	if !strings.Contains(body, `member_id=""`) {
		t.Error("expected member_id label to default to empty when ownership is unknown")
	}
}
