package event

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ============================================
// Envelope Tests
// ============================================

func TestNew_WrapsPayload(t *testing.T) {
	env, err := New(TypeOrderCreated, "order-1", OrderCreated{OrderID: "order-1"})

	require.NoError(t, err)
	assert.NotEmpty(t, env.EventID)
	assert.Equal(t, TypeOrderCreated, env.EventType)
	assert.Equal(t, "order-1", env.AggregateID)
	assert.False(t, env.OccurredAt.IsZero())
	assert.NotEmpty(t, env.Payload)
}

func TestNew_UnserializablePayload(t *testing.T) {
	_, err := New(TypeOrderCreated, "order-1", func() {})

	assert.Error(t, err)
}

func TestEnvelope_MarshalRoundTrip(t *testing.T) {
	env, err := New(TypeBidSubmitted, "proc-1", BidSubmitted{ProcurementID: "proc-1", BidID: "bid-1"})
	require.NoError(t, err)

	data, err := env.Marshal()
	require.NoError(t, err)

	decoded, err := Unmarshal(data)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
	assert.Equal(t, env.EventType, decoded.EventType)
	assert.Equal(t, env.AggregateID, decoded.AggregateID)
}

func TestUnmarshal_Garbage(t *testing.T) {
	_, err := Unmarshal([]byte("not json"))

	assert.Error(t, err)
}

// ============================================
// Topic Routing Tests
// ============================================

func TestTopicFor(t *testing.T) {
	tests := []struct {
		eventType string
		topic     string
	}{
		{TypeOrderCreated, "order-events"},
		{TypeOrderConfirmed, "order-events"},
		{TypeOrderFailed, "order-events"},
		{TypeInventoryReserved, "inventory-events"},
		{TypeProcurementCreated, "procurement-events"},
		{TypeBidSubmitted, "procurement-events"},
		{TypeProcurementAwarded, "procurement-events"},
		{TypeBiddingClosed, "procurement-events"},
		{TypeProcurementCanceled, "procurement-events"},
		{"SOMETHING_ELSE", "domain-events"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.topic, TopicFor(tt.eventType), tt.eventType)
	}
}
