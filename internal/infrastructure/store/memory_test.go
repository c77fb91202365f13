package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/agri-procurement/internal/domain/order"
	"github.com/example/agri-procurement/internal/domain/procurement"
	"github.com/example/agri-procurement/internal/domain/valueobject"
	"github.com/example/agri-procurement/internal/errs"
	"github.com/example/agri-procurement/internal/event"
)

func newTestOrder(t *testing.T) *order.Order {
	t.Helper()
	ord, err := order.New("customer-1", []order.LineInput{
		{ProductID: "prod-1", Quantity: 2, UnitPrice: valueobject.MustMoney("10", "USD")},
	})
	require.NoError(t, err)
	return ord
}

func newDraftProcurement(t *testing.T, buyerID string) *procurement.Procurement {
	t.Helper()
	p, err := procurement.New("Seed Procurement", "wheat seed",
		valueobject.MustQuantity("500", valueobject.UnitKilogram),
		valueobject.MustMoney("10000", "USD"),
		time.Now().Add(30*24*time.Hour), buyerID)
	require.NoError(t, err)
	return p
}

// ============================================
// Optimistic Concurrency Tests
// ============================================

func TestMemoryOrderStore_Save_InsertSetsVersion(t *testing.T) {
	st := NewMemoryOrderStore(NewMemoryOutbox())
	ord := newTestOrder(t)

	require.NoError(t, st.Save(context.Background(), ord))

	assert.Equal(t, 1, ord.Version)
}

func TestMemoryOrderStore_Save_StaleVersionConflicts(t *testing.T) {
	st := NewMemoryOrderStore(NewMemoryOutbox())
	ctx := context.Background()
	ord := newTestOrder(t)
	require.NoError(t, st.Save(ctx, ord))

	// Two readers load version 1; the second writer must lose.
	first, err := st.Get(ctx, ord.ID)
	require.NoError(t, err)
	second, err := st.Get(ctx, ord.ID)
	require.NoError(t, err)

	require.NoError(t, st.Save(ctx, first))
	err = st.Save(ctx, second)

	assert.ErrorIs(t, err, errs.ErrConcurrency)
}

func TestMemoryOrderStore_Save_UnknownNonZeroVersion(t *testing.T) {
	st := NewMemoryOrderStore(NewMemoryOutbox())
	ord := newTestOrder(t)
	ord.Version = 3

	err := st.Save(context.Background(), ord)

	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMemoryProcurementStore_Save_StaleVersionConflicts(t *testing.T) {
	st := NewMemoryProcurementStore(NewMemoryOutbox())
	ctx := context.Background()
	p := newDraftProcurement(t, "buyer-1")
	require.NoError(t, st.Save(ctx, p))

	first, err := st.Get(ctx, p.ID)
	require.NoError(t, err)
	second, err := st.Get(ctx, p.ID)
	require.NoError(t, err)

	require.NoError(t, st.Save(ctx, first))
	assert.ErrorIs(t, st.Save(ctx, second), errs.ErrConcurrency)
}

// ============================================
// Outbox Co-Write Tests
// ============================================

func TestMemoryOrderStore_Save_AppendsEventsToOutbox(t *testing.T) {
	ob := NewMemoryOutbox()
	st := NewMemoryOrderStore(ob)
	ord := newTestOrder(t)
	env, err := event.New(event.TypeOrderCreated, ord.ID, event.OrderCreated{OrderID: ord.ID})
	require.NoError(t, err)

	require.NoError(t, st.Save(context.Background(), ord, env))

	records := ob.All()
	require.Len(t, records, 1)
	assert.Equal(t, event.TypeOrderCreated, records[0].EventType)
	assert.Equal(t, ord.ID, records[0].AggregateID)
	assert.False(t, records[0].Processed)
}

func TestMemoryOrderStore_Save_ConflictWritesNoEvents(t *testing.T) {
	ob := NewMemoryOutbox()
	st := NewMemoryOrderStore(ob)
	ctx := context.Background()
	ord := newTestOrder(t)
	require.NoError(t, st.Save(ctx, ord))
	stale, err := st.Get(ctx, ord.ID)
	require.NoError(t, err)
	fresh, err := st.Get(ctx, ord.ID)
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, fresh))

	env, err := event.New(event.TypeOrderConfirmed, ord.ID, event.OrderConfirmed{OrderID: ord.ID})
	require.NoError(t, err)
	require.ErrorIs(t, st.Save(ctx, stale, env), errs.ErrConcurrency)

	assert.Empty(t, ob.All())
}

// ============================================
// Query Tests
// ============================================

func TestMemoryOrderStore_Get_NotFound(t *testing.T) {
	st := NewMemoryOrderStore(NewMemoryOutbox())

	_, err := st.Get(context.Background(), "no-such-order")

	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestMemoryOrderStore_ListByCustomer(t *testing.T) {
	st := NewMemoryOrderStore(NewMemoryOutbox())
	ctx := context.Background()
	mine := newTestOrder(t)
	require.NoError(t, st.Save(ctx, mine))
	other, err := order.New("customer-2", []order.LineInput{
		{ProductID: "prod-1", Quantity: 1, UnitPrice: valueobject.MustMoney("1", "USD")},
	})
	require.NoError(t, err)
	require.NoError(t, st.Save(ctx, other))

	result, err := st.ListByCustomer(ctx, "customer-1")

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, mine.ID, result[0].ID)
}

func TestMemoryProcurementStore_List_Filters(t *testing.T) {
	st := NewMemoryProcurementStore(NewMemoryOutbox())
	ctx := context.Background()

	draft := newDraftProcurement(t, "buyer-1")
	require.NoError(t, st.Save(ctx, draft))

	open := newDraftProcurement(t, "buyer-2")
	require.NoError(t, open.Publish(time.Now()))
	require.NoError(t, open.OpenBidding())
	require.NoError(t, st.Save(ctx, open))

	all, err := st.List(ctx, procurement.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	byBuyer, err := st.List(ctx, procurement.Filter{BuyerID: "buyer-1"})
	require.NoError(t, err)
	require.Len(t, byBuyer, 1)
	assert.Equal(t, draft.ID, byBuyer[0].ID)

	byStatus, err := st.List(ctx, procurement.Filter{Status: procurement.StatusBiddingOpen})
	require.NoError(t, err)
	require.Len(t, byStatus, 1)
	assert.Equal(t, open.ID, byStatus[0].ID)

	active, err := st.List(ctx, procurement.Filter{ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, open.ID, active[0].ID)
}

func TestMemoryProcurementStore_ListExpiredBidding(t *testing.T) {
	st := NewMemoryProcurementStore(NewMemoryOutbox())
	ctx := context.Background()

	expired := newDraftProcurement(t, "buyer-1")
	require.NoError(t, expired.Publish(time.Now()))
	require.NoError(t, expired.OpenBidding())
	expired.Deadline = time.Now().Add(-time.Hour)
	require.NoError(t, st.Save(ctx, expired))

	current := newDraftProcurement(t, "buyer-1")
	require.NoError(t, current.Publish(time.Now()))
	require.NoError(t, current.OpenBidding())
	require.NoError(t, st.Save(ctx, current))

	result, err := st.ListExpiredBidding(ctx, time.Now())

	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, expired.ID, result[0].ID)
}

// Mutations on a returned aggregate must not leak into the store without a
// Save.
func TestMemoryOrderStore_Get_ReturnsCopy(t *testing.T) {
	st := NewMemoryOrderStore(NewMemoryOutbox())
	ctx := context.Background()
	ord := newTestOrder(t)
	require.NoError(t, st.Save(ctx, ord))

	loaded, err := st.Get(ctx, ord.ID)
	require.NoError(t, err)
	loaded.CustomerID = "tampered"

	fresh, err := st.Get(ctx, ord.ID)
	require.NoError(t, err)
	assert.Equal(t, "customer-1", fresh.CustomerID)
}
