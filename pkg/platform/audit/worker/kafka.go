package worker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/twmb/franz-go/pkg/kgo"

	audit "kycgate/pkg/platform/audit"
)

// KafkaSink produces entries to a Kafka topic keyed by session ID, so one
// session's entries stay ordered within a partition.
type KafkaSink struct {
	client *kgo.Client
}

// NewKafkaSink connects a producer for topic.
func NewKafkaSink(brokers []string, topic string) (*KafkaSink, error) {
	client, err := kgo.NewClient(
		kgo.SeedBrokers(brokers...),
		kgo.DefaultProduceTopic(topic),
		kgo.RequiredAcks(kgo.AllISRAcks()),
	)
	if err != nil {
		return nil, fmt.Errorf("create kafka client: %w", err)
	}
	return &KafkaSink{client: client}, nil
}

// Publish writes one entry synchronously.
func (s *KafkaSink) Publish(ctx context.Context, entry audit.Entry) error {
	value, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal entry: %w", err)
	}
	record := &kgo.Record{
		Key:   []byte(entry.SessionID.String()),
		Value: value,
		Headers: []kgo.RecordHeader{
			{Key: "event_type", Value: []byte(entry.EventType)},
		},
	}
	return s.client.ProduceSync(ctx, record).FirstErr()
}

// Close flushes pending records and closes the client.
func (s *KafkaSink) Close() {
	s.client.Close()
}
