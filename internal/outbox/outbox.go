// Package outbox implements the transactional outbox relay. Records are
// written by the aggregate stores in the same local transaction as the
// state change they document; the relay forwards them to the bus
// asynchronously and tolerates broker downtime up to a max-retry policy.
package outbox

import (
	"time"

	"github.com/google/uuid"

	"github.com/example/agri-procurement/internal/event"
)

// Record is one durably stored, not-yet-published event.
type Record struct {
	ID          string
	AggregateID string
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
	ProcessedAt *time.Time
	Processed   bool
	RetryCount  int
	LastError   string
}

// NewRecord serializes an envelope into an unprocessed record. The stores
// persist it alongside the aggregate mutation.
func NewRecord(env event.Envelope) (Record, error) {
	payload, err := env.Marshal()
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:          uuid.New().String(),
		AggregateID: env.AggregateID,
		EventType:   env.EventType,
		Payload:     payload,
		CreatedAt:   time.Now().UTC(),
	}, nil
}
