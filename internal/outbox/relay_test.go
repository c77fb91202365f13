package outbox_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/agri-procurement/internal/event"
	"github.com/example/agri-procurement/internal/infrastructure/store"
	"github.com/example/agri-procurement/internal/outbox"
)

type published struct {
	Topic string
	Key   string
	Value []byte
}

type fakePublisher struct {
	err       error
	published []published
}

func (f *fakePublisher) Publish(ctx context.Context, topic, key string, value []byte) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, published{Topic: topic, Key: key, Value: value})
	return nil
}

func newTestRelay(cfg outbox.Config) (*outbox.Relay, *store.MemoryOutbox, *fakePublisher) {
	ob := store.NewMemoryOutbox()
	pub := &fakePublisher{}
	return outbox.NewRelay(ob, pub, cfg), ob, pub
}

func addRecord(t *testing.T, ob *store.MemoryOutbox, eventType, aggregateID string) outbox.Record {
	t.Helper()
	env, err := event.New(eventType, aggregateID, map[string]string{"id": aggregateID})
	require.NoError(t, err)
	rec, err := outbox.NewRecord(env)
	require.NoError(t, err)
	ob.Add(rec)
	return rec
}

func testConfig() outbox.Config {
	cfg := outbox.DefaultConfig()
	cfg.PollInterval = time.Millisecond
	cfg.MaxRetries = 3
	return cfg
}

// ============================================
// Relay Tick Tests
// ============================================

func TestRelay_Tick_PublishesAndMarksProcessed(t *testing.T) {
	relay, ob, pub := newTestRelay(testConfig())
	addRecord(t, ob, event.TypeOrderCreated, "order-1")

	require.NoError(t, relay.Tick(context.Background()))

	require.Len(t, pub.published, 1)
	assert.Equal(t, "order-events", pub.published[0].Topic)
	assert.Equal(t, "order-1", pub.published[0].Key)

	records := ob.All()
	require.Len(t, records, 1)
	assert.True(t, records[0].Processed)
	assert.NotNil(t, records[0].ProcessedAt)
}

func TestRelay_Tick_OldestFirst(t *testing.T) {
	relay, ob, pub := newTestRelay(testConfig())
	first := addRecord(t, ob, event.TypeProcurementCreated, "proc-1")
	time.Sleep(time.Millisecond)
	second := addRecord(t, ob, event.TypeBidSubmitted, "proc-1")

	require.NoError(t, relay.Tick(context.Background()))

	require.Len(t, pub.published, 2)
	firstEnv, err := event.Unmarshal(pub.published[0].Value)
	require.NoError(t, err)
	secondEnv, err := event.Unmarshal(pub.published[1].Value)
	require.NoError(t, err)
	assert.Equal(t, first.EventType, firstEnv.EventType)
	assert.Equal(t, second.EventType, secondEnv.EventType)
}

func TestRelay_Tick_EmptyOutbox(t *testing.T) {
	relay, _, pub := newTestRelay(testConfig())

	require.NoError(t, relay.Tick(context.Background()))

	assert.Empty(t, pub.published)
}

func TestRelay_Tick_TopicRouting(t *testing.T) {
	relay, ob, pub := newTestRelay(testConfig())
	addRecord(t, ob, event.TypeInventoryReserved, "order-1")
	time.Sleep(time.Millisecond)
	addRecord(t, ob, event.TypeProcurementAwarded, "proc-1")

	require.NoError(t, relay.Tick(context.Background()))

	require.Len(t, pub.published, 2)
	assert.Equal(t, "inventory-events", pub.published[0].Topic)
	assert.Equal(t, "procurement-events", pub.published[1].Topic)
}

// ============================================
// Retry and Failure Tests
// ============================================

func TestRelay_Tick_FailureIncrementsRetryCount(t *testing.T) {
	relay, ob, pub := newTestRelay(testConfig())
	addRecord(t, ob, event.TypeOrderCreated, "order-1")
	pub.err = errors.New("broker unreachable")

	require.NoError(t, relay.Tick(context.Background()))

	records := ob.All()
	require.Len(t, records, 1)
	assert.False(t, records[0].Processed)
	assert.Equal(t, 1, records[0].RetryCount)
	assert.Equal(t, "broker unreachable", records[0].LastError)
}

func TestRelay_Tick_ExhaustedRetriesLeaveRecordUnprocessed(t *testing.T) {
	cfg := testConfig()
	cfg.MaxRetries = 3
	relay, ob, pub := newTestRelay(cfg)
	addRecord(t, ob, event.TypeOrderCreated, "order-1")
	pub.err = errors.New("broker unreachable")

	for i := 0; i < 5; i++ {
		require.NoError(t, relay.Tick(context.Background()))
	}

	// Attempts stop at MaxRetries; the record stays visible to operators
	// instead of being dropped.
	records := ob.All()
	require.Len(t, records, 1)
	assert.False(t, records[0].Processed)
	assert.Equal(t, 3, records[0].RetryCount)
	assert.NotEmpty(t, records[0].LastError)
}

func TestRelay_Tick_RecoversAfterBrokerReturns(t *testing.T) {
	relay, ob, pub := newTestRelay(testConfig())
	addRecord(t, ob, event.TypeOrderCreated, "order-1")
	pub.err = errors.New("broker unreachable")
	require.NoError(t, relay.Tick(context.Background()))

	pub.err = nil
	require.NoError(t, relay.Tick(context.Background()))

	records := ob.All()
	require.Len(t, records, 1)
	assert.True(t, records[0].Processed)
	assert.Len(t, pub.published, 1)
}

func TestRelay_Tick_BadRecordDoesNotBlockBatch(t *testing.T) {
	relay, ob, pub := newTestRelay(testConfig())
	ob.Add(outbox.Record{
		ID:        "bad-record",
		Payload:   []byte("not an envelope"),
		CreatedAt: time.Now().Add(-time.Minute),
	})
	addRecord(t, ob, event.TypeOrderCreated, "order-1")

	require.NoError(t, relay.Tick(context.Background()))

	assert.Len(t, pub.published, 1)
	for _, rec := range ob.All() {
		if rec.ID == "bad-record" {
			assert.False(t, rec.Processed)
			assert.Equal(t, 1, rec.RetryCount)
			assert.NotEmpty(t, rec.LastError)
		}
	}
}

// ============================================
// Retention Cleanup Tests
// ============================================

func TestRelay_Cleanup_PurgesOnlyOldProcessed(t *testing.T) {
	cfg := testConfig()
	cfg.Retention = time.Hour
	relay, ob, _ := newTestRelay(cfg)

	old := time.Now().Add(-2 * time.Hour)
	processedAt := old.Add(time.Minute)
	ob.Add(outbox.Record{ID: "old-processed", Payload: []byte("{}"), CreatedAt: old, Processed: true, ProcessedAt: &processedAt})
	ob.Add(outbox.Record{ID: "old-unprocessed", Payload: []byte("{}"), CreatedAt: old})
	ob.Add(outbox.Record{ID: "fresh-processed", Payload: []byte("{}"), CreatedAt: time.Now(), Processed: true})

	require.NoError(t, relay.Cleanup(context.Background()))

	var ids []string
	for _, rec := range ob.All() {
		ids = append(ids, rec.ID)
	}
	assert.ElementsMatch(t, []string{"old-unprocessed", "fresh-processed"}, ids)
}
