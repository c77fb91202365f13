// Package order holds the Order aggregate driven by the purchase saga.
package order

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/example/agri-procurement/internal/domain/valueobject"
	"github.com/example/agri-procurement/internal/errs"
)

const AggregateType = "Order"

type Status string

const (
	StatusPending   Status = "pending"
	StatusConfirmed Status = "confirmed"
	StatusCancelled Status = "cancelled"
	StatusFailed    Status = "failed"
)

// SagaStatus tracks how far the reserve-pay-confirm saga has advanced.
type SagaStatus string

const (
	SagaStarted            SagaStatus = "started"
	SagaInventoryReserved  SagaStatus = "inventory_reserved"
	SagaPaymentProcessed   SagaStatus = "payment_processed"
	SagaCompleted          SagaStatus = "completed"
	SagaCompensating       SagaStatus = "compensating"
	SagaCompensated        SagaStatus = "compensated"
)

// validSagaTransitions defines the allowed saga progressions. Forward moves
// are strictly monotonic; the only backward-looking branch is entering
// compensation from any pre-completion state.
var validSagaTransitions = map[SagaStatus][]SagaStatus{
	SagaStarted:           {SagaInventoryReserved, SagaCompensating},
	SagaInventoryReserved: {SagaPaymentProcessed, SagaCompensating},
	SagaPaymentProcessed:  {SagaCompleted, SagaCompensating},
	SagaCompleted:         {}, // terminal
	SagaCompensating:      {SagaCompensated},
	SagaCompensated:       {}, // terminal
}

// Line is one ordered product position. LineTotal is derived and kept in
// sync with quantity and unit price.
type Line struct {
	ID        string            `json:"id"`
	ProductID string            `json:"product_id"`
	Quantity  int               `json:"quantity"`
	UnitPrice valueobject.Money `json:"unit_price"`
	LineTotal valueobject.Money `json:"line_total"`
}

// LineInput is the caller-supplied shape for a new order line.
type LineInput struct {
	ProductID string
	Quantity  int
	UnitPrice valueobject.Money
}

type Order struct {
	ID            string            `json:"id"`
	CustomerID    string            `json:"customer_id"`
	Lines         []Line            `json:"lines"`
	TotalAmount   valueobject.Money `json:"total_amount"`
	Status        Status            `json:"status"`
	SagaStatus    SagaStatus        `json:"saga_status"`
	FailureReason string            `json:"failure_reason,omitempty"`
	ReservationID string            `json:"reservation_id,omitempty"`
	PaymentID     string            `json:"payment_id,omitempty"`
	CreatedAt     time.Time         `json:"created_at"`
	UpdatedAt     time.Time         `json:"updated_at"`
	Version       int               `json:"version"`
}

// New validates the inputs and builds a Pending/Started order with the
// total recomputed from its lines.
func New(customerID string, inputs []LineInput) (*Order, error) {
	if customerID == "" {
		return nil, fmt.Errorf("%w: customer id is required", errs.ErrValidation)
	}
	if len(inputs) == 0 {
		return nil, fmt.Errorf("%w: order must have at least one line", errs.ErrValidation)
	}

	now := time.Now().UTC()
	o := &Order{
		ID:         uuid.New().String(),
		CustomerID: customerID,
		Status:     StatusPending,
		SagaStatus: SagaStarted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	for _, in := range inputs {
		if in.ProductID == "" {
			return nil, fmt.Errorf("%w: line product id is required", errs.ErrValidation)
		}
		if in.Quantity <= 0 {
			return nil, fmt.Errorf("%w: line quantity must be positive", errs.ErrValidation)
		}
		if in.UnitPrice.Amount.IsNegative() {
			return nil, fmt.Errorf("%w: line unit price cannot be negative", errs.ErrValidation)
		}
		o.Lines = append(o.Lines, Line{
			ID:        uuid.New().String(),
			ProductID: in.ProductID,
			Quantity:  in.Quantity,
			UnitPrice: in.UnitPrice,
			LineTotal: in.UnitPrice.Multiply(decimal.NewFromInt(int64(in.Quantity))),
		})
	}

	if err := o.recalculateTotal(); err != nil {
		return nil, err
	}
	return o, nil
}

// recalculateTotal keeps the invariant that TotalAmount equals the sum of
// line totals. All lines must share one currency.
func (o *Order) recalculateTotal() error {
	total := valueobject.ZeroMoney(o.Lines[0].UnitPrice.Currency)
	for _, line := range o.Lines {
		sum, err := total.Add(line.LineTotal)
		if err != nil {
			return err
		}
		total = sum
	}
	o.TotalAmount = total
	return nil
}

// CanTransitionSagaTo checks whether the saga may move to target.
func (o *Order) CanTransitionSagaTo(target SagaStatus) bool {
	for _, s := range validSagaTransitions[o.SagaStatus] {
		if s == target {
			return true
		}
	}
	return false
}

func (o *Order) transitionSaga(target SagaStatus) error {
	if !o.CanTransitionSagaTo(target) {
		return fmt.Errorf("%w: saga cannot move from %s to %s", errs.ErrDomainRule, o.SagaStatus, target)
	}
	o.SagaStatus = target
	o.UpdatedAt = time.Now().UTC()
	return nil
}

// MarkInventoryReserved records the reservation id together with the status
// so compensation always knows what to undo.
func (o *Order) MarkInventoryReserved(reservationID string) error {
	if err := o.transitionSaga(SagaInventoryReserved); err != nil {
		return err
	}
	o.ReservationID = reservationID
	return nil
}

func (o *Order) MarkPaymentProcessed(paymentID string) error {
	if err := o.transitionSaga(SagaPaymentProcessed); err != nil {
		return err
	}
	o.PaymentID = paymentID
	return nil
}

// MarkConfirmed completes the saga. Confirmed is reachable only through
// SagaCompleted.
func (o *Order) MarkConfirmed() error {
	if err := o.transitionSaga(SagaCompleted); err != nil {
		return err
	}
	o.Status = StatusConfirmed
	return nil
}

func (o *Order) MarkCompensating() error {
	return o.transitionSaga(SagaCompensating)
}

// MarkCompensated finalizes a failed saga. The triggering error is recorded
// verbatim; Failed is only set once compensation has been attempted.
func (o *Order) MarkCompensated(reason string) error {
	if err := o.transitionSaga(SagaCompensated); err != nil {
		return err
	}
	o.Status = StatusFailed
	o.FailureReason = reason
	return nil
}
