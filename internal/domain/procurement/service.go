package procurement

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/example/agri-procurement/internal/domain/valueobject"
	"github.com/example/agri-procurement/internal/event"
)

// Filter narrows List results. Zero value lists everything.
type Filter struct {
	BuyerID    string
	Status     Status
	ActiveOnly bool // published or bidding open, deadline in the future
}

// Store is what the service needs from persistence. Save persists the
// aggregate with an optimistic version check and appends the given events
// to the outbox in the same local transaction.
type Store interface {
	Save(ctx context.Context, p *Procurement, events ...event.Envelope) error
	Get(ctx context.Context, id string) (*Procurement, error)
	List(ctx context.Context, filter Filter) ([]*Procurement, error)
	ListExpiredBidding(ctx context.Context, now time.Time) ([]*Procurement, error)
}

type Service struct {
	store Store
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

type CreateInput struct {
	Title       string
	Description string
	Quantity    valueobject.Quantity
	Budget      valueobject.Money
	Deadline    time.Time
	BuyerID     string
}

func (s *Service) Create(ctx context.Context, in CreateInput) (*Procurement, error) {
	p, err := New(in.Title, in.Description, in.Quantity, in.Budget, in.Deadline, in.BuyerID)
	if err != nil {
		return nil, err
	}

	created, err := event.New(event.TypeProcurementCreated, p.ID, event.ProcurementCreated{
		ProcurementID: p.ID,
		Title:         p.Title,
		Description:   p.Description,
		Quantity:      p.Quantity.Amount,
		Budget:        p.Budget.Amount,
		Deadline:      p.Deadline,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, p, created); err != nil {
		return nil, err
	}

	log.Printf("[Procurement] Created procurement %s: %s", p.ID, p.Title)
	return p, nil
}

type SubmitBidInput struct {
	ProcurementID string
	VendorID      string
	Amount        valueobject.Money
	Notes         string
}

func (s *Service) SubmitBid(ctx context.Context, in SubmitBidInput) (*Procurement, error) {
	p, err := s.store.Get(ctx, in.ProcurementID)
	if err != nil {
		return nil, err
	}

	bid, err := p.AddBid(in.VendorID, in.Amount, in.Notes, time.Now())
	if err != nil {
		return nil, err
	}

	submitted, err := event.New(event.TypeBidSubmitted, p.ID, event.BidSubmitted{
		ProcurementID: p.ID,
		BidID:         bid.ID,
		VendorID:      bid.VendorID,
		Amount:        bid.Amount.Amount,
		SubmittedAt:   bid.SubmittedAt,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, p, submitted); err != nil {
		return nil, err
	}

	log.Printf("[Procurement] Bid %s submitted on %s by vendor %s", bid.ID, p.ID, bid.VendorID)
	return p, nil
}

func (s *Service) Award(ctx context.Context, procurementID, bidID string) (*Procurement, error) {
	p, err := s.store.Get(ctx, procurementID)
	if err != nil {
		return nil, err
	}

	if err := p.AwardBid(bidID); err != nil {
		return nil, err
	}
	winner, _ := p.FindBid(bidID)

	awarded, err := event.New(event.TypeProcurementAwarded, p.ID, event.ProcurementAwarded{
		ProcurementID: p.ID,
		BidID:         bidID,
		VendorID:      winner.VendorID,
	})
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, p, awarded); err != nil {
		return nil, err
	}

	log.Printf("[Procurement] Procurement %s awarded to bid %s", p.ID, bidID)
	return p, nil
}

// Publish moves a draft through Published straight into BiddingOpen, the
// sequence the buyer-facing operation exposes.
func (s *Service) Publish(ctx context.Context, procurementID string) (*Procurement, error) {
	p, err := s.store.Get(ctx, procurementID)
	if err != nil {
		return nil, err
	}

	if err := p.Publish(time.Now()); err != nil {
		return nil, err
	}
	if err := p.OpenBidding(); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, p); err != nil {
		return nil, err
	}

	log.Printf("[Procurement] Procurement %s published, bidding open until %s", p.ID, p.Deadline.Format(time.RFC3339))
	return p, nil
}

func (s *Service) CloseBidding(ctx context.Context, procurementID string) (*Procurement, error) {
	p, err := s.store.Get(ctx, procurementID)
	if err != nil {
		return nil, err
	}

	if err := p.CloseBidding(); err != nil {
		return nil, err
	}
	closed, err := event.New(event.TypeBiddingClosed, p.ID, event.BiddingClosed{ProcurementID: p.ID})
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, p, closed); err != nil {
		return nil, err
	}

	log.Printf("[Procurement] Bidding closed for procurement %s", p.ID)
	return p, nil
}

func (s *Service) Cancel(ctx context.Context, procurementID string) (*Procurement, error) {
	p, err := s.store.Get(ctx, procurementID)
	if err != nil {
		return nil, err
	}

	if err := p.Cancel(); err != nil {
		return nil, err
	}
	cancelled, err := event.New(event.TypeProcurementCanceled, p.ID, event.ProcurementCancelled{ProcurementID: p.ID})
	if err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, p, cancelled); err != nil {
		return nil, err
	}

	log.Printf("[Procurement] Procurement %s cancelled", p.ID)
	return p, nil
}

type UpdateInput struct {
	Title       string
	Description string
	Quantity    valueobject.Quantity
	Budget      valueobject.Money
	Deadline    time.Time
}

func (s *Service) Update(ctx context.Context, procurementID string, in UpdateInput) (*Procurement, error) {
	p, err := s.store.Get(ctx, procurementID)
	if err != nil {
		return nil, err
	}
	if err := p.UpdateDetails(in.Title, in.Description, in.Quantity, in.Budget, in.Deadline); err != nil {
		return nil, err
	}
	if err := s.store.Save(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Service) Get(ctx context.Context, procurementID string) (*Procurement, error) {
	return s.store.Get(ctx, procurementID)
}

func (s *Service) List(ctx context.Context, filter Filter) ([]*Procurement, error) {
	return s.store.List(ctx, filter)
}

// CloseExpiredBidding closes bidding on every procurement whose deadline
// has passed while still open. Run periodically; each save is independent
// so one conflict does not block the rest of the sweep.
func (s *Service) CloseExpiredBidding(ctx context.Context) (int, error) {
	expired, err := s.store.ListExpiredBidding(ctx, time.Now())
	if err != nil {
		return 0, fmt.Errorf("list expired bidding: %w", err)
	}

	closed := 0
	for _, p := range expired {
		if err := p.CloseBidding(); err != nil {
			log.Printf("[Procurement] Skipping expired %s: %v", p.ID, err)
			continue
		}
		ev, err := event.New(event.TypeBiddingClosed, p.ID, event.BiddingClosed{ProcurementID: p.ID})
		if err != nil {
			log.Printf("[Procurement] Skipping expired %s: %v", p.ID, err)
			continue
		}
		if err := s.store.Save(ctx, p, ev); err != nil {
			log.Printf("[Procurement] Failed to close expired %s: %v", p.ID, err)
			continue
		}
		closed++
	}
	if closed > 0 {
		log.Printf("[Procurement] Closed bidding for %d expired procurements", closed)
	}
	return closed, nil
}

// RunDeadlineSweep periodically closes expired bidding until ctx is done.
func (s *Service) RunDeadlineSweep(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.CloseExpiredBidding(ctx); err != nil {
				log.Printf("[Procurement] Deadline sweep failed: %v", err)
			}
		}
	}
}
