package outbox

import (
	"context"
	"log"
	"time"

	"github.com/example/agri-procurement/internal/event"
)

// Store is what the relay needs from persistence. Pending returns up to
// limit unprocessed records with RetryCount below maxRetries, oldest first.
type Store interface {
	Pending(ctx context.Context, limit, maxRetries int) ([]Record, error)
	MarkProcessed(ctx context.Context, id string, at time.Time) error
	MarkFailed(ctx context.Context, id string, lastError string) error
	PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int, error)
}

// Publisher hands a serialized event to a broker topic.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, value []byte) error
}

type Config struct {
	PollInterval    time.Duration
	CleanupInterval time.Duration
	BatchSize       int
	MaxRetries      int
	PublishTimeout  time.Duration
	Retention       time.Duration
}

func DefaultConfig() Config {
	return Config{
		PollInterval:    5 * time.Second,
		CleanupInterval: 6 * time.Hour,
		BatchSize:       100,
		MaxRetries:      3,
		PublishTimeout:  10 * time.Second,
		Retention:       7 * 24 * time.Hour,
	}
}

// Relay polls the outbox and forwards records to the bus. Records that
// exhaust MaxRetries stay unprocessed for operator inspection; they are
// never deleted automatically.
type Relay struct {
	store Store
	pub   Publisher
	cfg   Config
}

func NewRelay(store Store, pub Publisher, cfg Config) *Relay {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = DefaultConfig().MaxRetries
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultConfig().PublishTimeout
	}
	return &Relay{store: store, pub: pub, cfg: cfg}
}

// Run drives the relay and the retention cleanup on their intervals until
// ctx is done.
func (r *Relay) Run(ctx context.Context) {
	poll := time.NewTicker(r.cfg.PollInterval)
	defer poll.Stop()
	cleanup := time.NewTicker(r.cfg.CleanupInterval)
	defer cleanup.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-poll.C:
			if err := r.Tick(ctx); err != nil {
				log.Printf("[Outbox] Relay tick failed: %v", err)
			}
		case <-cleanup.C:
			if err := r.Cleanup(ctx); err != nil {
				log.Printf("[Outbox] Cleanup failed: %v", err)
			}
		}
	}
}

// Tick relays one batch. Each record's publish attempt is independent: a
// failure increments its retry count and the loop moves on, so one bad
// record never blocks the rest of the batch. Within one aggregate the
// oldest-first selection plus retry-in-place keeps relay order equal to
// creation order.
func (r *Relay) Tick(ctx context.Context) error {
	records, err := r.store.Pending(ctx, r.cfg.BatchSize, r.cfg.MaxRetries)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return nil
	}

	for _, rec := range records {
		env, err := event.Unmarshal(rec.Payload)
		if err != nil {
			// Deterministic failure; it exhausts the retry budget and the
			// record stays visible to operators.
			log.Printf("[Outbox] Record %s has undecodable payload: %v", rec.ID, err)
			if markErr := r.store.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
				log.Printf("[Outbox] Failed to record error for %s: %v", rec.ID, markErr)
			}
			continue
		}

		pubCtx, cancel := context.WithTimeout(ctx, r.cfg.PublishTimeout)
		err = r.pub.Publish(pubCtx, event.TopicFor(env.EventType), env.AggregateID, rec.Payload)
		cancel()
		if err != nil {
			log.Printf("[Outbox] Failed to publish record %s (%s), attempt %d: %v",
				rec.ID, rec.EventType, rec.RetryCount+1, err)
			if markErr := r.store.MarkFailed(ctx, rec.ID, err.Error()); markErr != nil {
				log.Printf("[Outbox] Failed to record error for %s: %v", rec.ID, markErr)
			}
			continue
		}

		if err := r.store.MarkProcessed(ctx, rec.ID, time.Now().UTC()); err != nil {
			// The publish stands; the record is republished next tick, which
			// is the at-least-once half of the delivery contract.
			log.Printf("[Outbox] Failed to mark record %s processed: %v", rec.ID, err)
			continue
		}
		log.Printf("[Outbox] Relayed record %s (%s) for aggregate %s", rec.ID, rec.EventType, rec.AggregateID)
	}
	return nil
}

// Cleanup deletes processed records older than the retention window.
// Unprocessed records are kept regardless of age.
func (r *Relay) Cleanup(ctx context.Context) error {
	purged, err := r.store.PurgeProcessedBefore(ctx, time.Now().Add(-r.cfg.Retention))
	if err != nil {
		return err
	}
	if purged > 0 {
		log.Printf("[Outbox] Purged %d processed records older than %s", purged, r.cfg.Retention)
	}
	return nil
}
