package procurement_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/agri-procurement/internal/domain/procurement"
	"github.com/example/agri-procurement/internal/domain/valueobject"
	"github.com/example/agri-procurement/internal/errs"
	"github.com/example/agri-procurement/internal/event"
	"github.com/example/agri-procurement/internal/infrastructure/store"
)

func newTestService() (*procurement.Service, *store.MemoryProcurementStore, *store.MemoryOutbox) {
	ob := store.NewMemoryOutbox()
	st := store.NewMemoryProcurementStore(ob)
	return procurement.NewService(st), st, ob
}

func seedInput() procurement.CreateInput {
	return procurement.CreateInput{
		Title:       "Seed Procurement",
		Description: "Winter wheat seed for the northern fields",
		Quantity:    valueobject.MustQuantity("500", valueobject.UnitKilogram),
		Budget:      valueobject.MustMoney("10000", "USD"),
		Deadline:    time.Now().Add(30 * 24 * time.Hour),
		BuyerID:     "buyer-1",
	}
}

func outboxEventTypes(ob *store.MemoryOutbox) []string {
	var types []string
	for _, rec := range ob.All() {
		types = append(types, rec.EventType)
	}
	return types
}

// ============================================
// Create Tests
// ============================================

func TestService_Create_Success(t *testing.T) {
	svc, _, ob := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, seedInput())

	require.NoError(t, err)
	assert.Equal(t, procurement.StatusDraft, p.Status)
	assert.Equal(t, 1, p.Version)
	assert.Equal(t, []string{event.TypeProcurementCreated}, outboxEventTypes(ob))
}

func TestService_Create_ValidationFailureWritesNothing(t *testing.T) {
	svc, _, ob := newTestService()
	in := seedInput()
	in.Title = ""

	p, err := svc.Create(context.Background(), in)

	assert.ErrorIs(t, err, errs.ErrValidation)
	assert.Nil(t, p)
	assert.Empty(t, ob.All())
}

// ============================================
// Bidding Flow Tests
// ============================================

func TestService_FullBiddingFlow(t *testing.T) {
	svc, _, ob := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, seedInput())
	require.NoError(t, err)

	p, err = svc.Publish(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.StatusBiddingOpen, p.Status)

	p, err = svc.SubmitBid(ctx, procurement.SubmitBidInput{
		ProcurementID: p.ID,
		VendorID:      "vendor-a",
		Amount:        valueobject.MustMoney("9000", "USD"),
	})
	require.NoError(t, err)
	p, err = svc.SubmitBid(ctx, procurement.SubmitBidInput{
		ProcurementID: p.ID,
		VendorID:      "vendor-b",
		Amount:        valueobject.MustMoney("9500", "USD"),
	})
	require.NoError(t, err)
	require.Len(t, p.Bids, 2)
	winnerID := p.Bids[0].ID
	loserID := p.Bids[1].ID

	p, err = svc.CloseBidding(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.StatusBiddingClosed, p.Status)

	p, err = svc.Award(ctx, p.ID, winnerID)
	require.NoError(t, err)

	assert.Equal(t, procurement.StatusAwarded, p.Status)
	assert.Equal(t, winnerID, p.AwardedBidID)
	winner, _ := p.FindBid(winnerID)
	assert.Equal(t, procurement.BidAccepted, winner.Status)
	loser, _ := p.FindBid(loserID)
	assert.Equal(t, procurement.BidRejected, loser.Status)

	assert.Equal(t, []string{
		event.TypeProcurementCreated,
		event.TypeBidSubmitted,
		event.TypeBidSubmitted,
		event.TypeBiddingClosed,
		event.TypeProcurementAwarded,
	}, outboxEventTypes(ob))
}

func TestService_SubmitBid_DuplicateVendor(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, seedInput())
	require.NoError(t, err)
	_, err = svc.Publish(ctx, p.ID)
	require.NoError(t, err)

	in := procurement.SubmitBidInput{
		ProcurementID: p.ID,
		VendorID:      "vendor-a",
		Amount:        valueobject.MustMoney("9000", "USD"),
	}
	_, err = svc.SubmitBid(ctx, in)
	require.NoError(t, err)

	_, err = svc.SubmitBid(ctx, in)
	assert.ErrorIs(t, err, errs.ErrDuplicateBid)
}

func TestService_SubmitBid_UnknownProcurement(t *testing.T) {
	svc, _, _ := newTestService()

	_, err := svc.SubmitBid(context.Background(), procurement.SubmitBidInput{
		ProcurementID: "no-such-id",
		VendorID:      "vendor-a",
		Amount:        valueobject.MustMoney("9000", "USD"),
	})

	assert.ErrorIs(t, err, errs.ErrNotFound)
}

func TestService_Cancel(t *testing.T) {
	svc, _, ob := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, seedInput())
	require.NoError(t, err)

	p, err = svc.Cancel(ctx, p.ID)

	require.NoError(t, err)
	assert.Equal(t, procurement.StatusCancelled, p.Status)
	types := outboxEventTypes(ob)
	assert.Equal(t, event.TypeProcurementCanceled, types[len(types)-1])
}

func TestService_Update_DraftOnly(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, seedInput())
	require.NoError(t, err)
	_, err = svc.Publish(ctx, p.ID)
	require.NoError(t, err)

	_, err = svc.Update(ctx, p.ID, procurement.UpdateInput{
		Title:       "Updated",
		Description: "desc",
		Quantity:    valueobject.MustQuantity("1", valueobject.UnitTon),
		Budget:      valueobject.MustMoney("100", "USD"),
		Deadline:    time.Now().Add(48 * time.Hour),
	})

	assert.ErrorIs(t, err, errs.ErrDomainRule)
}

// ============================================
// Deadline Sweep Tests
// ============================================

func TestService_CloseExpiredBidding(t *testing.T) {
	svc, st, ob := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, seedInput())
	require.NoError(t, err)
	_, err = svc.Publish(ctx, p.ID)
	require.NoError(t, err)

	// Move the deadline into the past while bidding is still open.
	stale, err := st.Get(ctx, p.ID)
	require.NoError(t, err)
	stale.Deadline = time.Now().Add(-time.Hour)
	require.NoError(t, st.Save(ctx, stale))

	closed, err := svc.CloseExpiredBidding(ctx)

	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	after, err := st.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, procurement.StatusBiddingClosed, after.Status)
	types := outboxEventTypes(ob)
	assert.Equal(t, event.TypeBiddingClosed, types[len(types)-1])
}

func TestService_CloseExpiredBidding_NothingExpired(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	p, err := svc.Create(ctx, seedInput())
	require.NoError(t, err)
	_, err = svc.Publish(ctx, p.ID)
	require.NoError(t, err)

	closed, err := svc.CloseExpiredBidding(ctx)

	require.NoError(t, err)
	assert.Zero(t, closed)
}
