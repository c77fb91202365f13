// Package event defines the envelope written to the outbox and relayed to
// the message bus, plus the event-type-to-topic routing.
package event

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TypeOrderCreated        = "ORDER_CREATED"
	TypeInventoryReserved   = "INVENTORY_RESERVED"
	TypeOrderConfirmed      = "ORDER_CONFIRMED"
	TypeOrderFailed         = "ORDER_FAILED"
	TypeProcurementCreated  = "PROCUREMENT_CREATED"
	TypeBidSubmitted        = "BID_SUBMITTED"
	TypeProcurementAwarded  = "PROCUREMENT_AWARDED"
	TypeBiddingClosed       = "BIDDING_CLOSED"
	TypeProcurementCanceled = "PROCUREMENT_CANCELLED"
)

// Envelope is the wire shape published to the bus. The outbox stores it
// fully serialized so the relay needs no knowledge of payload types.
type Envelope struct {
	EventID     string          `json:"event_id"`
	EventType   string          `json:"event_type"`
	AggregateID string          `json:"aggregate_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	Payload     json.RawMessage `json:"payload"`
}

// New wraps payload in an envelope. A payload that cannot be serialized is
// reported before anything is written, so the business transaction can
// decide to proceed without the event.
func New(eventType, aggregateID string, payload any) (Envelope, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("serialize %s payload: %w", eventType, err)
	}
	return Envelope{
		EventID:     uuid.New().String(),
		EventType:   eventType,
		AggregateID: aggregateID,
		OccurredAt:  time.Now().UTC(),
		Payload:     data,
	}, nil
}

// Marshal returns the wire encoding of the envelope.
func (e Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal decodes a stored envelope.
func Unmarshal(data []byte) (Envelope, error) {
	var e Envelope
	if err := json.Unmarshal(data, &e); err != nil {
		return Envelope{}, fmt.Errorf("decode event envelope: %w", err)
	}
	return e, nil
}

// TopicFor routes an event type to its bus topic.
func TopicFor(eventType string) string {
	switch eventType {
	case TypeProcurementCreated, TypeBidSubmitted, TypeProcurementAwarded, TypeBiddingClosed, TypeProcurementCanceled:
		return "procurement-events"
	case TypeOrderCreated, TypeOrderConfirmed, TypeOrderFailed:
		return "order-events"
	case TypeInventoryReserved:
		return "inventory-events"
	default:
		return "domain-events"
	}
}
