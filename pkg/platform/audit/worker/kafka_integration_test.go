//go:build integration

package worker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/twmb/franz-go/pkg/kgo"

	id "kycgate/pkg/domain"
	audit "kycgate/pkg/platform/audit"
	"kycgate/pkg/platform/audit/publishers/compliance"
	"kycgate/pkg/platform/audit/store/memory"
	"kycgate/pkg/platform/audit/worker"
	"kycgate/pkg/testutil/containers"
)

func TestRelayDeliversLedgerEntriesToKafka(t *testing.T) {
	kafka := containers.NewKafkaContainer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	const topic = "kycgate.ledger.test"
	kafka.CreateTopic(ctx, t, topic)

	sink, err := worker.NewKafkaSink([]string{kafka.Broker}, topic)
	require.NoError(t, err)
	defer sink.Close()

	relay := make(chan audit.Entry, 8)
	publisher := compliance.New(memory.NewInMemoryStore(), compliance.WithRelay(relay))
	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- worker.NewWorker(sink, relay, nil).Run(runCtx) }()

	sessionID := id.NewSessionID()
	var sealed []audit.Entry
	for _, event := range []audit.EventType{audit.EventSessionStarted, audit.EventStageRecorded} {
		entry, err := audit.NewEntry(sessionID, event, audit.ActorSystem, time.Now(), map[string]string{"event": string(event)})
		require.NoError(t, err)
		got, err := publisher.Emit(ctx, entry)
		require.NoError(t, err)
		sealed = append(sealed, *got)
	}

	consumer, err := kgo.NewClient(
		kgo.SeedBrokers(kafka.Broker),
		kgo.ConsumeTopics(topic),
		kgo.ConsumeResetOffset(kgo.NewOffset().AtStart()),
	)
	require.NoError(t, err)
	defer consumer.Close()

	var received []audit.Entry
	for len(received) < len(sealed) {
		fetches := consumer.PollFetches(ctx)
		require.Empty(t, fetches.Errors())
		fetches.EachRecord(func(r *kgo.Record) {
			assert.Equal(t, sessionID.String(), string(r.Key))
			var e audit.Entry
			require.NoError(t, json.Unmarshal(r.Value, &e))
			received = append(received, e)
		})
	}
	stop()
	<-done

	require.Len(t, received, 2)
	assert.Equal(t, sealed[0].Hash, received[0].Hash)
	assert.Equal(t, sealed[1].PrevHash, received[0].Hash)
	assert.NoError(t, audit.VerifyChain(received))
}
