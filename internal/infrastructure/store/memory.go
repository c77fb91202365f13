package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/example/agri-procurement/internal/domain/order"
	"github.com/example/agri-procurement/internal/domain/procurement"
	"github.com/example/agri-procurement/internal/errs"
	"github.com/example/agri-procurement/internal/event"
	"github.com/example/agri-procurement/internal/outbox"
)

// MemoryOutbox is the in-memory outbox partition shared with the aggregate
// stores, for tests and local single-process mode.
type MemoryOutbox struct {
	mu      sync.Mutex
	records []outbox.Record
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{}
}

// Add appends records, standing in for the co-committed transaction write.
func (m *MemoryOutbox) Add(records ...outbox.Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, records...)
}

func (m *MemoryOutbox) Pending(ctx context.Context, limit, maxRetries int) ([]outbox.Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []outbox.Record
	for _, r := range m.records {
		if !r.Processed && r.RetryCount < maxRetries {
			pending = append(pending, r)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	if len(pending) > limit {
		pending = pending[:limit]
	}
	return pending, nil
}

func (m *MemoryOutbox) MarkProcessed(ctx context.Context, id string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].Processed = true
			m.records[i].ProcessedAt = &at
			return nil
		}
	}
	return fmt.Errorf("%w: outbox record %s", errs.ErrNotFound, id)
}

func (m *MemoryOutbox) MarkFailed(ctx context.Context, id string, lastError string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.records {
		if m.records[i].ID == id {
			m.records[i].RetryCount++
			m.records[i].LastError = lastError
			return nil
		}
	}
	return fmt.Errorf("%w: outbox record %s", errs.ErrNotFound, id)
}

func (m *MemoryOutbox) PurgeProcessedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.records[:0]
	purged := 0
	for _, r := range m.records {
		if r.Processed && r.CreatedAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, r)
	}
	m.records = kept
	return purged, nil
}

// All returns a snapshot of every record, unprocessed included.
func (m *MemoryOutbox) All() []outbox.Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]outbox.Record, len(m.records))
	copy(out, m.records)
	return out
}

// MemoryOrderStore keeps orders in a map guarded by a mutex. Version checks
// mirror the Postgres store so tests exercise the same concurrency
// semantics, and outbox appends happen under the same lock as the aggregate
// write, standing in for the shared transaction.
type MemoryOrderStore struct {
	mu     sync.Mutex
	orders map[string]*order.Order
	outbox *MemoryOutbox
}

func NewMemoryOrderStore(ob *MemoryOutbox) *MemoryOrderStore {
	return &MemoryOrderStore{
		orders: make(map[string]*order.Order),
		outbox: ob,
	}
}

func cloneOrder(o *order.Order) *order.Order {
	cp := *o
	cp.Lines = make([]order.Line, len(o.Lines))
	copy(cp.Lines, o.Lines)
	return &cp
}

func (m *MemoryOrderStore) Save(ctx context.Context, o *order.Order, events ...event.Envelope) error {
	records, err := toRecords(events)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.orders[o.ID]
	switch {
	case !ok:
		if o.Version != 0 {
			return fmt.Errorf("%w: order %s", errs.ErrNotFound, o.ID)
		}
		o.Version = 1
	case existing.Version != o.Version:
		return fmt.Errorf("%w: order %s version %d, expected %d", errs.ErrConcurrency, o.ID, existing.Version, o.Version)
	default:
		o.Version++
	}

	m.orders[o.ID] = cloneOrder(o)
	if m.outbox != nil {
		m.outbox.Add(records...)
	}
	return nil
}

func (m *MemoryOrderStore) Get(ctx context.Context, id string) (*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("%w: order %s", errs.ErrNotFound, id)
	}
	return cloneOrder(o), nil
}

func (m *MemoryOrderStore) ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*order.Order
	for _, o := range m.orders {
		if o.CustomerID == customerID {
			result = append(result, cloneOrder(o))
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryOrderStore) ListStalled(ctx context.Context, statuses []order.SagaStatus, updatedBefore time.Time) ([]*order.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*order.Order
	for _, o := range m.orders {
		for _, status := range statuses {
			if o.SagaStatus == status && o.UpdatedAt.Before(updatedBefore) {
				result = append(result, cloneOrder(o))
				break
			}
		}
	}
	return result, nil
}

// MemoryProcurementStore mirrors the Postgres procurement store semantics.
type MemoryProcurementStore struct {
	mu           sync.Mutex
	procurements map[string]*procurement.Procurement
	outbox       *MemoryOutbox
}

func NewMemoryProcurementStore(ob *MemoryOutbox) *MemoryProcurementStore {
	return &MemoryProcurementStore{
		procurements: make(map[string]*procurement.Procurement),
		outbox:       ob,
	}
}

func cloneProcurement(p *procurement.Procurement) *procurement.Procurement {
	cp := *p
	cp.Bids = make([]procurement.Bid, len(p.Bids))
	copy(cp.Bids, p.Bids)
	return &cp
}

func (m *MemoryProcurementStore) Save(ctx context.Context, p *procurement.Procurement, events ...event.Envelope) error {
	records, err := toRecords(events)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	existing, ok := m.procurements[p.ID]
	switch {
	case !ok:
		if p.Version != 0 {
			return fmt.Errorf("%w: procurement %s", errs.ErrNotFound, p.ID)
		}
		p.Version = 1
	case existing.Version != p.Version:
		return fmt.Errorf("%w: procurement %s version %d, expected %d", errs.ErrConcurrency, p.ID, existing.Version, p.Version)
	default:
		p.Version++
	}

	m.procurements[p.ID] = cloneProcurement(p)
	if m.outbox != nil {
		m.outbox.Add(records...)
	}
	return nil
}

func (m *MemoryProcurementStore) Get(ctx context.Context, id string) (*procurement.Procurement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.procurements[id]
	if !ok {
		return nil, fmt.Errorf("%w: procurement %s", errs.ErrNotFound, id)
	}
	return cloneProcurement(p), nil
}

func (m *MemoryProcurementStore) List(ctx context.Context, filter procurement.Filter) ([]*procurement.Procurement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	var result []*procurement.Procurement
	for _, p := range m.procurements {
		if filter.BuyerID != "" && p.BuyerID != filter.BuyerID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		if filter.ActiveOnly {
			active := (p.Status == procurement.StatusPublished || p.Status == procurement.StatusBiddingOpen) &&
				p.Deadline.After(now)
			if !active {
				continue
			}
		}
		result = append(result, cloneProcurement(p))
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].CreatedAt.Before(result[j].CreatedAt)
	})
	return result, nil
}

func (m *MemoryProcurementStore) ListExpiredBidding(ctx context.Context, now time.Time) ([]*procurement.Procurement, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result []*procurement.Procurement
	for _, p := range m.procurements {
		if p.Status == procurement.StatusBiddingOpen && p.Deadline.Before(now) {
			result = append(result, cloneProcurement(p))
		}
	}
	return result, nil
}

func toRecords(events []event.Envelope) ([]outbox.Record, error) {
	records := make([]outbox.Record, 0, len(events))
	for _, env := range events {
		rec, err := outbox.NewRecord(env)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
