package config

import (
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]string{"--brokers", "localhost:9092"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(cfg.Brokers) != 1 || cfg.Brokers[0] != "localhost:9092" {
		t.Errorf("Brokers = %v", cfg.Brokers)
	}
	if cfg.Bind != DefaultBind {
		t.Errorf("Bind = %s, want %s", cfg.Bind, DefaultBind)
	}
	if cfg.HistorySize != DefaultHistorySize {
		t.Errorf("HistorySize = %d, want %d", cfg.HistorySize, DefaultHistorySize)
	}
	if cfg.ReadinessThreshold != DefaultReadinessThreshold {
		t.Errorf("ReadinessThreshold = %v, want %v", cfg.ReadinessThreshold, DefaultReadinessThreshold)
	}
	if cfg.PartitionWatermarksInterval != DefaultPartitionWatermarksInterval {
		t.Errorf("PartitionWatermarksInterval = %s", cfg.PartitionWatermarksInterval)
	}
}

func TestParse_BrokerListSplitsAndTrims(t *testing.T) {
	cfg, err := Parse([]string{"--brokers", " b1:9092, b2:9092 ,b3:9092"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []string{"b1:9092", "b2:9092", "b3:9092"}
	if len(cfg.Brokers) != len(want) {
		t.Fatalf("Brokers = %v, want %v", cfg.Brokers, want)
	}
	for i := range want {
		if cfg.Brokers[i] != want[i] {
			t.Errorf("Brokers[%d] = %s, want %s", i, cfg.Brokers[i], want[i])
		}
	}
}

func TestParse_MissingBrokers(t *testing.T) {
	_, err := Parse([]string{})
	if err == nil {
		t.Fatal("expected error for missing --brokers")
	}
}

func TestParse_InvalidHistorySize(t *testing.T) {
	_, err := Parse([]string{"--brokers", "localhost:9092", "--history-size", "0"})
	if err == nil {
		t.Fatal("expected error for --history-size 0")
	}
}

func TestParse_ReadinessThresholdOutOfRange(t *testing.T) {
	_, err := Parse([]string{"--brokers", "localhost:9092", "--readiness-threshold", "150"})
	if err == nil {
		t.Fatal("expected error for --readiness-threshold out of range")
	}
}

func TestParse_KafkaConfAccumulatesRepeats(t *testing.T) {
	cfg, err := Parse([]string{
		"--brokers", "localhost:9092",
		"--kafka-conf", "client-id=kommitted",
		"--kafka-conf", "dial-timeout=5s",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.KafkaConf["client-id"] != "kommitted" {
		t.Errorf("KafkaConf[client-id] = %q", cfg.KafkaConf["client-id"])
	}
	if cfg.KafkaConf["dial-timeout"] != "5s" {
		t.Errorf("KafkaConf[dial-timeout] = %q", cfg.KafkaConf["dial-timeout"])
	}
}

func TestParse_KafkaConfUnrecognizedKey(t *testing.T) {
	_, err := Parse([]string{"--brokers", "localhost:9092", "--kafka-conf", "bogus-key=1"})
	if err == nil {
		t.Fatal("expected error for unrecognized --kafka-conf key")
	}
}

func TestParse_KafkaConfMissingEquals(t *testing.T) {
	_, err := Parse([]string{"--brokers", "localhost:9092", "--kafka-conf", "client-id"})
	if err == nil {
		t.Fatal("expected error for --kafka-conf without '='")
	}
}

func TestParse_CadenceOverrides(t *testing.T) {
	cfg, err := Parse([]string{
		"--brokers", "localhost:9092",
		"--committed-offsets-interval", "10s",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.CommittedOffsetsInterval != 10*time.Second {
		t.Errorf("CommittedOffsetsInterval = %s, want 10s", cfg.CommittedOffsetsInterval)
	}
}
