// Package exposition renders the /metrics response: seven bespoke metric
// families in a fixed order, HELP/TYPE headers, blank-line separation,
// followed by the standard process/runtime metrics gathered from a
// prometheus.Registry. Grounded on original_source/src/http/mod.rs's
// append_headers/append_metric helpers for the bespoke half, and on
// grafana-tempo's use of prometheus/client_golang + prometheus/common/expfmt
// for the gathered half (the teacher carries no metrics library of its
// own).
package exposition

import (
	"bytes"
	"fmt"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/tmancill/kommitted/internal/clusterstatus"
	"github.com/tmancill/kommitted/internal/kafkatypes"
	"github.com/tmancill/kommitted/internal/lagregister"
	"github.com/tmancill/kommitted/internal/partitionoffsets"
)

// offsetsSource is the subset of partitionoffsets.Register the exposition
// handler needs.
type offsetsSource interface {
	TrackedPartitions() []kafkatypes.TopicPartition
	GetEarliestAvailableOffset(tp kafkatypes.TopicPartition) (uint64, error)
	GetLatestAvailableOffset(tp kafkatypes.TopicPartition) (uint64, error)
	GetEarliestTrackedOffset(tp kafkatypes.TopicPartition) (kafkatypes.TrackedOffset, error)
	GetLatestTrackedOffset(tp kafkatypes.TopicPartition) (kafkatypes.TrackedOffset, error)
}

var (
	_ offsetsSource = (*partitionoffsets.Register)(nil)
)

type family struct {
	name string
	help string
	typ  string
}

var families = []family{
	{"consumer_partition_offset", "Last committed offset for a consumer group partition.", "gauge"},
	{"consumer_partition_lag_offset", "Estimated offset lag for a consumer group partition.", "gauge"},
	{"consumer_partition_lag_milliseconds", "Estimated time lag in milliseconds for a consumer group partition.", "gauge"},
	{"partition_earliest_available_offset", "Earliest offset available on the broker for a partition.", "gauge"},
	{"partition_latest_available_offset", "Latest offset available on the broker for a partition.", "gauge"},
	{"partition_earliest_tracked_offset", "Oldest offset still held in the in-memory watermark history.", "gauge"},
	{"partition_latest_tracked_offset", "Newest offset held in the in-memory watermark history.", "gauge"},
}

func writeHeaders(buf *bytes.Buffer, f family) {
	fmt.Fprintf(buf, "# HELP %s %s\n", f.name, f.help)
	fmt.Fprintf(buf, "# TYPE %s %s\n", f.name, f.typ)
}

// Render builds the full /metrics response body: the seven bespoke families
// followed by the gathered registry metrics. logger receives a warning per
// skipped per-partition failure; those failures never abort the response.
func Render(logger log.Logger, registry *prometheus.Registry, clusterReg *clusterstatus.Register, offsetsReg offsetsSource, lagReg *lagregister.Register) (string, error) {
	var buf bytes.Buffer
	clusterID := clusterReg.GetClusterID()

	renderConsumerFamilies(&buf, logger, clusterID, lagReg)
	buf.WriteByte('\n')
	renderPartitionFamilies(&buf, logger, clusterID, offsetsReg)

	gathered, err := registry.Gather()
	if err != nil {
		return "", fmt.Errorf("gather registry metrics: %w", err)
	}
	buf.WriteByte('\n')
	encoder := expfmt.NewEncoder(&buf, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range gathered {
		if err := encoder.Encode(mf); err != nil {
			return "", fmt.Errorf("encode registry metrics: %w", err)
		}
	}

	return buf.String(), nil
}

func renderConsumerFamilies(buf *bytes.Buffer, logger log.Logger, clusterID string, lagReg *lagregister.Register) {
	entries := lagReg.Snapshot()

	writeHeaders(buf, families[0])
	for _, e := range entries {
		fmt.Fprintf(buf, "%s{cluster_id=%q,group=%q,topic=%q,partition=\"%d\",member_id=%q} %d\n",
			families[0].name, clusterID, e.Group, e.TopicPartition.Topic, e.TopicPartition.Partition, e.OwnerMemberID, e.CommittedOffset)
	}
	buf.WriteByte('\n')

	writeHeaders(buf, families[1])
	for _, e := range entries {
		if e.OffsetLag == nil {
			level.Warn(logger).Log("msg", "skipping consumer_partition_lag_offset: lag unknown",
				"group", e.Group, "topic", e.TopicPartition.Topic, "partition", e.TopicPartition.Partition)
			continue
		}
		fmt.Fprintf(buf, "%s{cluster_id=%q,group=%q,topic=%q,partition=\"%d\",member_id=%q} %d\n",
			families[1].name, clusterID, e.Group, e.TopicPartition.Topic, e.TopicPartition.Partition, e.OwnerMemberID, *e.OffsetLag)
	}
	buf.WriteByte('\n')

	writeHeaders(buf, families[2])
	for _, e := range entries {
		if e.TimeLag == nil {
			level.Warn(logger).Log("msg", "skipping consumer_partition_lag_milliseconds: lag unknown",
				"group", e.Group, "topic", e.TopicPartition.Topic, "partition", e.TopicPartition.Partition)
			continue
		}
		fmt.Fprintf(buf, "%s{cluster_id=%q,group=%q,topic=%q,partition=\"%d\",member_id=%q} %d\n",
			families[2].name, clusterID, e.Group, e.TopicPartition.Topic, e.TopicPartition.Partition, e.OwnerMemberID, e.TimeLag.Milliseconds())
	}
}

func renderPartitionFamilies(buf *bytes.Buffer, logger log.Logger, clusterID string, offsetsReg offsetsSource) {
	tps := offsetsReg.TrackedPartitions()

	writeHeaders(buf, families[3])
	for _, tp := range tps {
		v, err := offsetsReg.GetEarliestAvailableOffset(tp)
		if err != nil {
			level.Warn(logger).Log("msg", "skipping partition_earliest_available_offset", "topic", tp.Topic, "partition", tp.Partition, "err", err)
			continue
		}
		fmt.Fprintf(buf, "%s{cluster_id=%q,topic=%q,partition=\"%d\"} %d\n", families[3].name, clusterID, tp.Topic, tp.Partition, v)
	}
	buf.WriteByte('\n')

	writeHeaders(buf, families[4])
	for _, tp := range tps {
		v, err := offsetsReg.GetLatestAvailableOffset(tp)
		if err != nil {
			level.Warn(logger).Log("msg", "skipping partition_latest_available_offset", "topic", tp.Topic, "partition", tp.Partition, "err", err)
			continue
		}
		fmt.Fprintf(buf, "%s{cluster_id=%q,topic=%q,partition=\"%d\"} %d\n", families[4].name, clusterID, tp.Topic, tp.Partition, v)
	}
	buf.WriteByte('\n')

	writeHeaders(buf, families[5])
	for _, tp := range tps {
		to, err := offsetsReg.GetEarliestTrackedOffset(tp)
		if err != nil {
			level.Warn(logger).Log("msg", "skipping partition_earliest_tracked_offset", "topic", tp.Topic, "partition", tp.Partition, "err", err)
			continue
		}
		fmt.Fprintf(buf, "%s{cluster_id=%q,topic=%q,partition=\"%d\",tracked_at_ms=\"%d\"} %d\n",
			families[5].name, clusterID, tp.Topic, tp.Partition, to.At.UnixMilli(), to.Offset)
	}
	buf.WriteByte('\n')

	writeHeaders(buf, families[6])
	for _, tp := range tps {
		to, err := offsetsReg.GetLatestTrackedOffset(tp)
		if err != nil {
			level.Warn(logger).Log("msg", "skipping partition_latest_tracked_offset", "topic", tp.Topic, "partition", tp.Partition, "err", err)
			continue
		}
		fmt.Fprintf(buf, "%s{cluster_id=%q,topic=%q,partition=\"%d\",tracked_at_ms=\"%d\"} %d\n",
			families[6].name, clusterID, tp.Topic, tp.Partition, to.At.UnixMilli(), to.Offset)
	}
}
