package emitters

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/go-kit/log"

	"github.com/tmancill/kommitted/internal/kafkatypes"
)

func TestRunTicker_FetchesImmediatelyThenOnTick(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	calls := make(chan struct{}, 8)
	done := make(chan struct{})
	go func() {
		runTicker(ctx, log.NewNopLogger(), "test", 10*time.Millisecond, func(context.Context) error {
			calls <- struct{}{}
			return nil
		})
		close(done)
	}()

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("expected an immediate first fetch")
	}

	select {
	case <-calls:
	case <-time.After(time.Second):
		t.Fatal("expected a second fetch after the tick interval")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("runTicker did not return after context cancellation")
	}
}

func TestRunTicker_TransientFailureDoesNotStopLoop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	attempts := 0
	calls := make(chan struct{}, 8)
	done := make(chan struct{})
	go func() {
		runTicker(ctx, log.NewNopLogger(), "test", 5*time.Millisecond, func(context.Context) error {
			attempts++
			calls <- struct{}{}
			if attempts == 1 {
				return errors.New("transient failure")
			}
			return nil
		})
		close(done)
	}()

	<-calls
	<-calls
	cancel()
	<-done

	if attempts < 2 {
		t.Fatalf("attempts = %d; want at least 2 (a failure must not stop the loop)", attempts)
	}
}

type fakeTopicSource struct {
	tps []kafkatypes.TopicPartition
}

func (f fakeTopicSource) GetTopicPartitions() []kafkatypes.TopicPartition { return f.tps }

func TestPartitionWatermarks_NoPartitionsSkipsFetch(t *testing.T) {
	e := NewPartitionWatermarks(nil, log.NewNopLogger(), 5*time.Millisecond, fakeTopicSource{}, 4)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	out := e.Spawn(ctx)
	for range out {
		t.Fatal("expected no samples when the topic source has no partitions")
	}
}
