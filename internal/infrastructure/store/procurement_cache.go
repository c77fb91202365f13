package store

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/example/agri-procurement/internal/domain/procurement"
	"github.com/example/agri-procurement/internal/event"
	"github.com/example/agri-procurement/internal/infrastructure/cache"
)

const procurementKeyPrefix = "procurement:"

// CachedProcurementStore is a read-through cache in front of a procurement
// store. Get serves from the cache when it can; every Save invalidates the
// entry after the write commits, so readers never see a version the store
// has already superseded. List queries stay on the store: they are
// filter-shaped and the database is authoritative for them.
//
// Cache failures degrade to the inner store. A procurement read must not
// fail because Redis is down.
type CachedProcurementStore struct {
	inner procurement.Store
	kv    cache.KV
	ttl   time.Duration
}

func NewCachedProcurementStore(inner procurement.Store, kv cache.KV, ttl time.Duration) *CachedProcurementStore {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedProcurementStore{inner: inner, kv: kv, ttl: ttl}
}

func (s *CachedProcurementStore) Save(ctx context.Context, p *procurement.Procurement, events ...event.Envelope) error {
	if err := s.inner.Save(ctx, p, events...); err != nil {
		return err
	}
	if err := s.kv.Del(ctx, procurementKeyPrefix+p.ID); err != nil {
		// The entry expires by TTL anyway; log and move on.
		log.Printf("[Cache] Failed to invalidate procurement %s: %v", p.ID, err)
	}
	return nil
}

func (s *CachedProcurementStore) Get(ctx context.Context, id string) (*procurement.Procurement, error) {
	key := procurementKeyPrefix + id
	data, err := s.kv.Get(ctx, key)
	if err == nil {
		var p procurement.Procurement
		if err := json.Unmarshal(data, &p); err == nil {
			return &p, nil
		}
		log.Printf("[Cache] Dropping undecodable entry for procurement %s", id)
		if err := s.kv.Del(ctx, key); err != nil {
			log.Printf("[Cache] Failed to drop entry for procurement %s: %v", id, err)
		}
	} else if !errors.Is(err, cache.ErrMiss) {
		log.Printf("[Cache] Read failed for procurement %s: %v", id, err)
	}

	p, err := s.inner.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(p); err == nil {
		if err := s.kv.Set(ctx, key, data, s.ttl); err != nil {
			log.Printf("[Cache] Write failed for procurement %s: %v", id, err)
		}
	}
	return p, nil
}

func (s *CachedProcurementStore) List(ctx context.Context, filter procurement.Filter) ([]*procurement.Procurement, error) {
	return s.inner.List(ctx, filter)
}

func (s *CachedProcurementStore) ListExpiredBidding(ctx context.Context, now time.Time) ([]*procurement.Procurement, error) {
	return s.inner.ListExpiredBidding(ctx, now)
}
