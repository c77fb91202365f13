// Package procurement holds the Procurement aggregate and its bidding state
// machine. Every bid mutation goes through the aggregate root so the
// one-submitted-bid-per-vendor and budget invariants hold.
package procurement

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/example/agri-procurement/internal/domain/valueobject"
	"github.com/example/agri-procurement/internal/errs"
)

const AggregateType = "Procurement"

type Status string

const (
	StatusDraft         Status = "draft"
	StatusPublished     Status = "published"
	StatusBiddingOpen   Status = "bidding_open"
	StatusBiddingClosed Status = "bidding_closed"
	StatusAwarded       Status = "awarded"
	StatusCancelled     Status = "cancelled"
)

type BidStatus string

const (
	BidSubmitted BidStatus = "submitted"
	BidAccepted  BidStatus = "accepted"
	BidRejected  BidStatus = "rejected"
)

type Bid struct {
	ID          string            `json:"id"`
	VendorID    string            `json:"vendor_id"`
	Amount      valueobject.Money `json:"amount"`
	SubmittedAt time.Time         `json:"submitted_at"`
	Status      BidStatus         `json:"status"`
	Notes       string            `json:"notes,omitempty"`
}

type Procurement struct {
	ID           string               `json:"id"`
	Title        string               `json:"title"`
	Description  string               `json:"description"`
	Quantity     valueobject.Quantity `json:"quantity"`
	Budget       valueobject.Money    `json:"budget"`
	Deadline     time.Time            `json:"deadline"`
	BuyerID      string               `json:"buyer_id"`
	Status       Status               `json:"status"`
	Bids         []Bid                `json:"bids"`
	AwardedBidID string               `json:"awarded_bid_id,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	UpdatedAt    time.Time            `json:"updated_at"`
	Version      int                  `json:"version"`
}

func New(title, description string, quantity valueobject.Quantity, budget valueobject.Money, deadline time.Time, buyerID string) (*Procurement, error) {
	now := time.Now().UTC()
	p := &Procurement{
		ID:          uuid.New().String(),
		Title:       title,
		Description: description,
		Quantity:    quantity,
		Budget:      budget,
		Deadline:    deadline,
		BuyerID:     buyerID,
		Status:      StatusDraft,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := p.validate(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Procurement) validate() error {
	if p.Title == "" {
		return fmt.Errorf("%w: title is required", errs.ErrValidation)
	}
	if p.Description == "" {
		return fmt.Errorf("%w: description is required", errs.ErrValidation)
	}
	if p.Budget.IsZero() {
		return fmt.Errorf("%w: budget must be greater than zero", errs.ErrValidation)
	}
	if p.Deadline.IsZero() {
		return fmt.Errorf("%w: deadline is required", errs.ErrValidation)
	}
	if p.BuyerID == "" {
		return fmt.Errorf("%w: buyer id is required", errs.ErrValidation)
	}
	return nil
}

func (p *Procurement) touch() { p.UpdatedAt = time.Now().UTC() }

// Publish requires a deadline at least one full day out, so vendors always
// get a bidding window.
func (p *Procurement) Publish(now time.Time) error {
	if p.Status != StatusDraft {
		return fmt.Errorf("%w: only draft procurements can be published", errs.ErrDomainRule)
	}
	if p.Deadline.Before(now.Add(24 * time.Hour)) {
		return fmt.Errorf("%w: deadline must be at least 1 day in the future", errs.ErrDomainRule)
	}
	p.Status = StatusPublished
	p.touch()
	return nil
}

func (p *Procurement) OpenBidding() error {
	if p.Status != StatusPublished {
		return fmt.Errorf("%w: only published procurements can open bidding", errs.ErrDomainRule)
	}
	p.Status = StatusBiddingOpen
	p.touch()
	return nil
}

func (p *Procurement) CloseBidding() error {
	if p.Status != StatusBiddingOpen {
		return fmt.Errorf("%w: only procurements with open bidding can be closed", errs.ErrDomainRule)
	}
	p.Status = StatusBiddingClosed
	p.touch()
	return nil
}

// AddBid creates a Submitted bid after checking the deadline, the budget
// ceiling and the one-submitted-bid-per-vendor rule.
func (p *Procurement) AddBid(vendorID string, amount valueobject.Money, notes string, now time.Time) (*Bid, error) {
	if vendorID == "" {
		return nil, fmt.Errorf("%w: vendor id is required", errs.ErrValidation)
	}
	if amount.IsZero() {
		return nil, fmt.Errorf("%w: bid amount must be greater than zero", errs.ErrValidation)
	}
	if now.After(p.Deadline) {
		return nil, fmt.Errorf("%w: bidding deadline has passed", errs.ErrDomainRule)
	}
	if p.Status != StatusBiddingOpen {
		return nil, fmt.Errorf("%w: bidding is not open for this procurement", errs.ErrDomainRule)
	}
	over, err := amount.GreaterThan(p.Budget)
	if err != nil {
		return nil, err
	}
	if over {
		return nil, fmt.Errorf("%w: bid amount cannot exceed budget", errs.ErrDomainRule)
	}
	for _, b := range p.Bids {
		if b.VendorID == vendorID && b.Status == BidSubmitted {
			return nil, errs.ErrDuplicateBid
		}
	}

	bid := Bid{
		ID:          uuid.New().String(),
		VendorID:    vendorID,
		Amount:      amount,
		SubmittedAt: now.UTC(),
		Status:      BidSubmitted,
		Notes:       notes,
	}
	p.Bids = append(p.Bids, bid)
	p.touch()
	return &p.Bids[len(p.Bids)-1], nil
}

// AwardBid accepts one bid and rejects every other still-submitted bid as a
// single atomic side effect. Award is always explicit by bid id.
func (p *Procurement) AwardBid(bidID string) error {
	if p.Status != StatusBiddingClosed {
		return fmt.Errorf("%w: bidding must be closed before awarding", errs.ErrDomainRule)
	}

	idx := -1
	for i := range p.Bids {
		if p.Bids[i].ID == bidID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("%w: bid %s", errs.ErrNotFound, bidID)
	}
	if p.Bids[idx].Status != BidSubmitted {
		return fmt.Errorf("%w: only submitted bids can be awarded", errs.ErrDomainRule)
	}

	p.Bids[idx].Status = BidAccepted
	p.AwardedBidID = bidID
	p.Status = StatusAwarded
	for i := range p.Bids {
		if p.Bids[i].ID != bidID && p.Bids[i].Status == BidSubmitted {
			p.Bids[i].Status = BidRejected
		}
	}
	p.touch()
	return nil
}

// Cancel is legal from any state except Awarded and rejects all still
// submitted bids.
func (p *Procurement) Cancel() error {
	if p.Status == StatusAwarded {
		return fmt.Errorf("%w: cannot cancel an awarded procurement", errs.ErrDomainRule)
	}
	p.Status = StatusCancelled
	for i := range p.Bids {
		if p.Bids[i].Status == BidSubmitted {
			p.Bids[i].Status = BidRejected
		}
	}
	p.touch()
	return nil
}

// UpdateDetails replaces the editable fields of a draft and revalidates.
func (p *Procurement) UpdateDetails(title, description string, quantity valueobject.Quantity, budget valueobject.Money, deadline time.Time) error {
	if p.Status != StatusDraft {
		return fmt.Errorf("%w: only draft procurements can be updated", errs.ErrDomainRule)
	}
	p.Title = title
	p.Description = description
	p.Quantity = quantity
	p.Budget = budget
	p.Deadline = deadline
	if err := p.validate(); err != nil {
		return err
	}
	p.touch()
	return nil
}

// LowestBid returns the submitted bid with the minimal amount, first seen
// winning ties, or nil when no submitted bids exist. Used by reporting; the
// award algorithm never calls it.
func (p *Procurement) LowestBid() *Bid {
	var lowest *Bid
	for i := range p.Bids {
		b := &p.Bids[i]
		if b.Status != BidSubmitted {
			continue
		}
		if lowest == nil {
			lowest = b
			continue
		}
		less, err := b.Amount.LessThan(lowest.Amount)
		if err == nil && less {
			lowest = b
		}
	}
	return lowest
}

// FindBid looks up a bid by id.
func (p *Procurement) FindBid(bidID string) (*Bid, bool) {
	for i := range p.Bids {
		if p.Bids[i].ID == bidID {
			return &p.Bids[i], true
		}
	}
	return nil, false
}
