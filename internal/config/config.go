// Package config parses and validates the CLI surface described in
// SPEC_FULL.md §6. CLI parsing itself is named out of scope by the spec (an
// external collaborator whose contract is fixed, not its framework), so
// this sticks to stdlib flag the way the teacher's own secondary binary
// (examples/sample-app/main.go) does.
package config

import (
	"flag"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tmancill/kommitted/internal/lagerrors"
)

// Defaults for every optional flag.
const (
	DefaultBind                        = ":9090"
	DefaultHistorySize                 = 120
	DefaultReadinessThreshold          = 75.0
	DefaultClusterMetaInterval         = 30 * time.Second
	DefaultConsumerGroupsInterval      = 30 * time.Second
	DefaultPartitionWatermarksInterval = 500 * time.Millisecond
	DefaultCommittedOffsetsInterval    = 5 * time.Second
)

// knownKafkaConfKeys is the allowlist of keys --kafka-conf may forward into
// the Kafka client's dialer/transport configuration. An unrecognized key is
// a FatalStartupError rather than a silently ignored one, per SPEC_FULL.md
// §6.
var knownKafkaConfKeys = map[string]bool{
	"client-id":                true,
	"dial-timeout":             true,
	"read-timeout":             true,
	"write-timeout":            true,
	"sasl-mechanism":           true,
	"sasl-username":            true,
	"sasl-password":            true,
	"tls-insecure-skip-verify": true,
	"tls-ca-file":              true,
}

// Config is the fully parsed and validated CLI input.
type Config struct {
	Brokers            []string
	Bind               string
	HistorySize        int
	ReadinessThreshold float64
	KafkaConf          map[string]string

	ClusterMetaInterval         time.Duration
	ConsumerGroupsInterval      time.Duration
	PartitionWatermarksInterval time.Duration
	CommittedOffsetsInterval    time.Duration

	LogLevel string
}

// kafkaConfFlag accumulates repeated --kafka-conf key=value pairs into a map.
type kafkaConfFlag struct {
	values map[string]string
}

func (f *kafkaConfFlag) String() string {
	if f.values == nil {
		return ""
	}
	parts := make([]string, 0, len(f.values))
	for k, v := range f.values {
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ",")
}

func (f *kafkaConfFlag) Set(raw string) error {
	key, value, ok := strings.Cut(raw, "=")
	if !ok {
		return fmt.Errorf("invalid --kafka-conf %q: want key=value", raw)
	}
	if f.values == nil {
		f.values = make(map[string]string)
	}
	f.values[key] = value
	return nil
}

// Parse parses args (typically os.Args[1:]) into a validated Config.
// Any error returned is a FatalStartupError.
func Parse(args []string) (*Config, error) {
	fs := flag.NewFlagSet("kommitted", flag.ContinueOnError)

	brokers := fs.String("brokers", "", "comma-separated host:port list of Kafka brokers (required)")
	bind := fs.String("bind", DefaultBind, "metrics HTTP listen address")
	historySize := fs.Int("history-size", DefaultHistorySize, "per-partition watermark history capacity")
	readinessThreshold := fs.Float64("readiness-threshold", DefaultReadinessThreshold, "average history fill percent required for readiness")
	logLevel := fs.String("log-level", "info", "log level: debug, info, warn, error")

	clusterMetaInterval := fs.Duration("cluster-meta-interval", DefaultClusterMetaInterval, "cluster metadata poll period")
	consumerGroupsInterval := fs.Duration("consumer-groups-interval", DefaultConsumerGroupsInterval, "consumer group membership poll period")
	partitionWatermarksInterval := fs.Duration("partition-watermarks-interval", DefaultPartitionWatermarksInterval, "partition watermark poll period")
	committedOffsetsInterval := fs.Duration("committed-offsets-interval", DefaultCommittedOffsetsInterval, "committed offset poll period")

	var kafkaConf kafkaConfFlag
	fs.Var(&kafkaConf, "kafka-conf", "key=value pair forwarded to the Kafka client config (repeatable)")

	if err := fs.Parse(args); err != nil {
		return nil, lagerrors.NewFatalStartupError(err)
	}

	if strings.TrimSpace(*brokers) == "" {
		return nil, lagerrors.NewFatalStartupError(fmt.Errorf("--brokers is required"))
	}

	brokerList := splitAndTrim(*brokers)
	if len(brokerList) == 0 {
		return nil, lagerrors.NewFatalStartupError(fmt.Errorf("--brokers must name at least one host:port"))
	}

	if *historySize < 1 {
		return nil, lagerrors.NewFatalStartupError(fmt.Errorf("--history-size must be >= 1, got %d", *historySize))
	}

	if *readinessThreshold < 0 || *readinessThreshold > 100 {
		return nil, lagerrors.NewFatalStartupError(fmt.Errorf("--readiness-threshold must be between 0 and 100, got %s", strconv.FormatFloat(*readinessThreshold, 'f', -1, 64)))
	}

	for key := range kafkaConf.values {
		if !knownKafkaConfKeys[key] {
			return nil, lagerrors.NewFatalStartupError(fmt.Errorf("unrecognized --kafka-conf key %q", key))
		}
	}

	return &Config{
		Brokers:                     brokerList,
		Bind:                        *bind,
		HistorySize:                 *historySize,
		ReadinessThreshold:          *readinessThreshold,
		KafkaConf:                   kafkaConf.values,
		ClusterMetaInterval:         *clusterMetaInterval,
		ConsumerGroupsInterval:      *consumerGroupsInterval,
		PartitionWatermarksInterval: *partitionWatermarksInterval,
		CommittedOffsetsInterval:    *committedOffsetsInterval,
		LogLevel:                    *logLevel,
	}, nil
}

func splitAndTrim(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
