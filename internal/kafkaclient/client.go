// Package kafkaclient wraps segmentio/kafka-go's *kafka.Client with the four
// admin queries the emitters need. It is the sole place in the repo that
// speaks the Kafka wire protocol, grounded on the teacher's
// pkg/kafka/client.go LagFetcher.
package kafkaclient

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"net"
	"os"
	"time"

	kafka "github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl/plain"

	"github.com/tmancill/kommitted/internal/kafkatypes"
)

// Client issues the admin RPCs the emitters poll on a cadence.
type Client struct {
	kc *kafka.Client
}

// New builds a Client dialing brokers, optionally configured by the
// recognized --kafka-conf keys (see internal/config).
func New(brokers []string, conf map[string]string) (*Client, error) {
	transport := &kafka.Transport{}

	if clientID, ok := conf["client-id"]; ok {
		transport.ClientID = clientID
	}

	if user, ok := conf["sasl-username"]; ok {
		switch mechanism := conf["sasl-mechanism"]; mechanism {
		case "", "plain":
			transport.SASL = plain.Mechanism{Username: user, Password: conf["sasl-password"]}
		default:
			return nil, fmt.Errorf("unsupported sasl-mechanism %q: only \"plain\" is implemented", mechanism)
		}
	}

	if conf["tls-insecure-skip-verify"] == "true" || conf["tls-ca-file"] != "" {
		tlsConfig := &tls.Config{InsecureSkipVerify: conf["tls-insecure-skip-verify"] == "true"}
		if caFile := conf["tls-ca-file"]; caFile != "" {
			pem, err := os.ReadFile(caFile)
			if err != nil {
				return nil, fmt.Errorf("reading tls-ca-file: %w", err)
			}
			pool := x509.NewCertPool()
			if !pool.AppendCertsFromPEM(pem) {
				return nil, fmt.Errorf("tls-ca-file %s contains no usable certificates", caFile)
			}
			tlsConfig.RootCAs = pool
		}
		transport.TLS = tlsConfig
	}

	readTimeout, err := durationConf(conf, "read-timeout", 10*time.Second)
	if err != nil {
		return nil, err
	}
	writeTimeout, err := durationConf(conf, "write-timeout", 10*time.Second)
	if err != nil {
		return nil, err
	}
	// kafka-go's Client exposes one round-trip Timeout rather than separate
	// read/write deadlines, so the wider of the two bounds it.
	timeout := readTimeout
	if writeTimeout > timeout {
		timeout = writeTimeout
	}

	dialTimeout, err := durationConf(conf, "dial-timeout", 0)
	if err != nil {
		return nil, err
	}
	if dialTimeout > 0 {
		dialer := &net.Dialer{Timeout: dialTimeout}
		transport.Dial = dialer.DialContext
	}

	return &Client{
		kc: &kafka.Client{
			Addr:      kafka.TCP(brokers...),
			Transport: transport,
			Timeout:   timeout,
		},
	}, nil
}

func durationConf(conf map[string]string, key string, fallback time.Duration) (time.Duration, error) {
	v, ok := conf[key]
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

// DescribeCluster returns cluster identity, brokers, and the current topic
// partition set, all from one Metadata call with no topic filter.
func (c *Client) DescribeCluster(ctx context.Context) (kafkatypes.ClusterStatus, error) {
	resp, err := c.kc.Metadata(ctx, &kafka.MetadataRequest{Addr: c.kc.Addr})
	if err != nil {
		return kafkatypes.ClusterStatus{}, fmt.Errorf("metadata request failed: %w", err)
	}

	brokers := make([]kafkatypes.Broker, 0, len(resp.Brokers))
	for _, b := range resp.Brokers {
		brokers = append(brokers, kafkatypes.Broker{ID: int32(b.ID), Host: b.Host, Port: int32(b.Port)})
	}

	tps, err := flattenPartitions(resp)
	if err != nil {
		return kafkatypes.ClusterStatus{}, err
	}

	return kafkatypes.ClusterStatus{
		ClusterID:       resp.ClusterID,
		Brokers:         brokers,
		TopicPartitions: tps,
	}, nil
}

// ListTopicsAndPartitions returns every topic partition the cluster reports.
func (c *Client) ListTopicsAndPartitions(ctx context.Context) ([]kafkatypes.TopicPartition, error) {
	resp, err := c.kc.Metadata(ctx, &kafka.MetadataRequest{Addr: c.kc.Addr})
	if err != nil {
		return nil, fmt.Errorf("metadata request failed: %w", err)
	}
	return flattenPartitions(resp)
}

func flattenPartitions(resp *kafka.MetadataResponse) ([]kafkatypes.TopicPartition, error) {
	var tps []kafkatypes.TopicPartition
	for _, topic := range resp.Topics {
		if topic.Error != nil {
			return nil, fmt.Errorf("topic %s metadata error: %w", topic.Name, topic.Error)
		}
		for _, p := range topic.Partitions {
			tps = append(tps, kafkatypes.TopicPartition{Topic: topic.Name, Partition: uint32(p.ID)})
		}
	}
	return tps, nil
}

// Watermark is the earliest and latest available offset of one partition.
type Watermark struct {
	Earliest uint64
	Latest   uint64
}

// GetWatermarks fetches the earliest and latest available offset of every
// partition named, in a single ListOffsets call keyed by topic. Each
// partition carries one kafka.FirstOffset and one kafka.LastOffset request,
// which kafka-go merges into the FirstOffset and LastOffset fields of that
// partition's response entry.
func (c *Client) GetWatermarks(ctx context.Context, tps []kafkatypes.TopicPartition) (map[kafkatypes.TopicPartition]Watermark, error) {
	byTopic := make(map[string][]kafka.OffsetRequest)
	for _, tp := range tps {
		byTopic[tp.Topic] = append(byTopic[tp.Topic],
			kafka.OffsetRequest{Partition: int(tp.Partition), Timestamp: kafka.FirstOffset},
			kafka.OffsetRequest{Partition: int(tp.Partition), Timestamp: kafka.LastOffset},
		)
	}

	resp, err := c.kc.ListOffsets(ctx, &kafka.ListOffsetsRequest{Addr: c.kc.Addr, Topics: byTopic})
	if err != nil {
		return nil, fmt.Errorf("list offsets failed: %w", err)
	}

	out := make(map[kafkatypes.TopicPartition]Watermark, len(tps))
	for topic, partitions := range resp.Topics {
		for _, po := range partitions {
			if po.Error != nil {
				return nil, fmt.Errorf("offset error for %s/%d: %w", topic, po.Partition, po.Error)
			}
			tp := kafkatypes.TopicPartition{Topic: topic, Partition: uint32(po.Partition)}
			out[tp] = Watermark{
				Earliest: uint64(max64(po.FirstOffset, 0)),
				Latest:   uint64(max64(po.LastOffset, 0)),
			}
		}
	}
	return out, nil
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

// ListGroupIDs lists every consumer group the cluster knows about. It is the
// cheap half of group discovery: no per-member assignment detail, suitable
// for the high-frequency committed-offsets poll.
func (c *Client) ListGroupIDs(ctx context.Context) ([]string, error) {
	resp, err := c.kc.ListGroups(ctx, &kafka.ListGroupsRequest{Addr: c.kc.Addr})
	if err != nil {
		return nil, fmt.Errorf("list groups failed: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("list groups failed: %w", resp.Error)
	}
	ids := make([]string, 0, len(resp.Groups))
	for _, g := range resp.Groups {
		ids = append(ids, g.GroupID)
	}
	return ids, nil
}

// ListConsumerGroups discovers every consumer group's membership and
// per-member partition assignment. This is the heavier call (DescribeGroups
// per group), meant for the lower-frequency group-membership poll.
func (c *Client) ListConsumerGroups(ctx context.Context) ([]kafkatypes.ConsumerGroup, error) {
	groupIDs, err := c.ListGroupIDs(ctx)
	if err != nil {
		return nil, err
	}
	if len(groupIDs) == 0 {
		return nil, nil
	}

	describeResp, err := c.kc.DescribeGroups(ctx, &kafka.DescribeGroupsRequest{Addr: c.kc.Addr, GroupIDs: groupIDs})
	if err != nil {
		return nil, fmt.Errorf("describe groups failed: %w", err)
	}

	groups := make([]kafkatypes.ConsumerGroup, 0, len(describeResp.Groups))
	for _, g := range describeResp.Groups {
		if g.Error != nil {
			continue
		}
		members := make([]kafkatypes.GroupMember, 0, len(g.Members))
		for _, m := range g.Members {
			var assigned []kafkatypes.TopicPartition
			for _, t := range m.MemberAssignments.Topics {
				for _, p := range t.Partitions {
					assigned = append(assigned, kafkatypes.TopicPartition{Topic: t.Topic, Partition: uint32(p)})
				}
			}
			members = append(members, kafkatypes.GroupMember{
				MemberID:           m.MemberID,
				ClientID:           m.ClientID,
				AssignedPartitions: assigned,
			})
		}
		groups = append(groups, kafkatypes.ConsumerGroup{GroupID: g.GroupID, State: g.State, Members: members})
	}
	return groups, nil
}

// GetCommittedOffsets fetches, for every known consumer group, the committed
// offset of each of the given topic partitions. MemberID is left empty here;
// LagRegister joins ownership in from the separately-polled membership
// stream, so a cheap OffsetFetch-only call suffices at this cadence.
func (c *Client) GetCommittedOffsets(ctx context.Context, tps []kafkatypes.TopicPartition) ([]kafkatypes.CommittedOffset, error) {
	groupIDs, err := c.ListGroupIDs(ctx)
	if err != nil {
		return nil, err
	}

	topicPartitions := make(map[string][]int)
	for _, tp := range tps {
		topicPartitions[tp.Topic] = append(topicPartitions[tp.Topic], int(tp.Partition))
	}

	var out []kafkatypes.CommittedOffset
	now := time.Now()

	for _, groupID := range groupIDs {
		fetchResp, err := c.kc.OffsetFetch(ctx, &kafka.OffsetFetchRequest{
			Addr:    c.kc.Addr,
			GroupID: groupID,
			Topics:  topicPartitions,
		})
		if err != nil {
			return nil, fmt.Errorf("offset fetch failed for group %s: %w", groupID, err)
		}

		for topic, partitions := range fetchResp.Topics {
			for _, po := range partitions {
				if po.Error != nil || po.CommittedOffset < 0 {
					continue
				}
				out = append(out, kafkatypes.CommittedOffset{
					Group:           groupID,
					TopicPartition:  kafkatypes.TopicPartition{Topic: topic, Partition: uint32(po.Partition)},
					CommittedOffset: uint64(po.CommittedOffset),
					CommittedAt:     now,
				})
			}
		}
	}

	return out, nil
}
