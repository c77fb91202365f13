// Package saga drives an order through reserve -> pay -> confirm, with
// compensating undo on failure. The saga runs synchronously inside the
// request that created the order.
package saga

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/example/agri-procurement/internal/domain/order"
	"github.com/example/agri-procurement/internal/errs"
	"github.com/example/agri-procurement/internal/event"
	"github.com/example/agri-procurement/internal/resilience"
)

// OrderStore is the persistence surface the orchestrator needs. Save
// applies an optimistic version check and appends the given events to the
// outbox in the same local transaction.
type OrderStore interface {
	Save(ctx context.Context, o *order.Order, events ...event.Envelope) error
	Get(ctx context.Context, id string) (*order.Order, error)
	ListByCustomer(ctx context.Context, customerID string) ([]*order.Order, error)
	ListStalled(ctx context.Context, statuses []order.SagaStatus, updatedBefore time.Time) ([]*order.Order, error)
}

type Config struct {
	// StepTimeout bounds each remote call. Exceeding it counts as a step
	// failure and triggers compensation.
	StepTimeout     time.Duration
	InventoryPolicy resilience.Policy
	PaymentPolicy   resilience.Policy
}

func DefaultConfig() Config {
	return Config{
		StepTimeout:     5 * time.Second,
		InventoryPolicy: resilience.DefaultPolicy(),
		PaymentPolicy:   resilience.DefaultPolicy(),
	}
}

type Orchestrator struct {
	orders      OrderStore
	inventory   InventoryClient
	payments    PaymentClient
	invGuard    *resilience.Guard
	payGuard    *resilience.Guard
	stepTimeout time.Duration
}

func NewOrchestrator(orders OrderStore, inventory InventoryClient, payments PaymentClient, cfg Config) *Orchestrator {
	if cfg.StepTimeout <= 0 {
		cfg = DefaultConfig()
	}
	return &Orchestrator{
		orders:      orders,
		inventory:   inventory,
		payments:    payments,
		invGuard:    resilience.NewGuard("inventory-service", cfg.InventoryPolicy),
		payGuard:    resilience.NewGuard("payment-service", cfg.PaymentPolicy),
		stepTimeout: cfg.StepTimeout,
	}
}

// CreateOrder validates and persists the order, then drives the saga to
// completion or failure before returning. A remote step failure is not an
// error to the caller: the returned order carries Failed status and the
// failure reason. Errors are reserved for validation and persistence
// problems; a stale-version save fails the whole call rather than retrying,
// because re-running a step that may have partially succeeded remotely
// risks a double reservation or double charge.
func (s *Orchestrator) CreateOrder(ctx context.Context, customerID string, lines []order.LineInput) (*order.Order, error) {
	ord, err := order.New(customerID, lines)
	if err != nil {
		return nil, err
	}
	log.Printf("[Saga] Starting order saga %s for customer %s, total %s", ord.ID, customerID, ord.TotalAmount)

	created, err := event.New(event.TypeOrderCreated, ord.ID, event.OrderCreated{
		OrderID:     ord.ID,
		CustomerID:  ord.CustomerID,
		TotalAmount: ord.TotalAmount.Amount,
		Currency:    ord.TotalAmount.Currency,
		CreatedAt:   ord.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	if err := s.orders.Save(ctx, ord, created); err != nil {
		return nil, err
	}

	reservationID, err := s.reserveInventory(ctx, ord)
	if err != nil {
		return s.failAndCompensate(ctx, ord, err)
	}
	if err := ord.MarkInventoryReserved(reservationID); err != nil {
		return nil, err
	}
	reserved, err := event.New(event.TypeInventoryReserved, ord.ID, event.InventoryReserved{
		OrderID:       ord.ID,
		ReservationID: reservationID,
	})
	if err != nil {
		return nil, err
	}
	// Persisted before the payment attempt so compensation knows what to
	// undo even if the process dies right here.
	if err := s.orders.Save(ctx, ord, reserved); err != nil {
		return nil, err
	}

	paymentID, err := s.processPayment(ctx, ord)
	if err != nil {
		return s.failAndCompensate(ctx, ord, err)
	}
	if err := ord.MarkPaymentProcessed(paymentID); err != nil {
		return nil, err
	}
	if err := s.orders.Save(ctx, ord); err != nil {
		return nil, err
	}

	if err := ord.MarkConfirmed(); err != nil {
		return nil, err
	}
	confirmed, err := event.New(event.TypeOrderConfirmed, ord.ID, event.OrderConfirmed{
		OrderID:   ord.ID,
		PaymentID: paymentID,
	})
	if err != nil {
		return nil, err
	}
	if err := s.orders.Save(ctx, ord, confirmed); err != nil {
		return nil, err
	}

	log.Printf("[Saga] Order saga %s completed", ord.ID)
	return ord, nil
}

func (s *Orchestrator) reserveInventory(ctx context.Context, ord *order.Order) (string, error) {
	items := make([]ReservationItem, 0, len(ord.Lines))
	for _, line := range ord.Lines {
		items = append(items, ReservationItem{ProductID: line.ProductID, Quantity: line.Quantity})
	}

	var result ReservationResult
	err := s.invGuard.Do(ctx, func() error {
		stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
		defer cancel()
		r, err := s.inventory.ReserveInventory(stepCtx, ord.ID, items)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: inventory service: %v", errs.ErrRemoteStep, err)
	}
	if !result.Success {
		return "", fmt.Errorf("%w: inventory reservation rejected: %s", errs.ErrRemoteStep, result.Message)
	}
	log.Printf("[Saga] Inventory reserved for order %s, reservation %s", ord.ID, result.ReservationID)
	return result.ReservationID, nil
}

func (s *Orchestrator) processPayment(ctx context.Context, ord *order.Order) (string, error) {
	req := PaymentRequest{
		OrderID:    ord.ID,
		CustomerID: ord.CustomerID,
		Amount:     ord.TotalAmount.Amount,
		Currency:   ord.TotalAmount.Currency,
	}

	var result PaymentResult
	err := s.payGuard.Do(ctx, func() error {
		stepCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
		defer cancel()
		r, err := s.payments.ProcessPayment(stepCtx, req)
		if err != nil {
			return err
		}
		result = r
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("%w: payment service: %v", errs.ErrRemoteStep, err)
	}
	if !result.Success {
		return "", fmt.Errorf("%w: payment rejected: %s", errs.ErrRemoteStep, result.Message)
	}
	log.Printf("[Saga] Payment processed for order %s, payment %s", ord.ID, result.PaymentID)
	return result.PaymentID, nil
}

func (s *Orchestrator) failAndCompensate(ctx context.Context, ord *order.Order, cause error) (*order.Order, error) {
	log.Printf("[Saga] Order saga %s failed, compensating: %v", ord.ID, cause)
	if err := s.compensate(ctx, ord, cause.Error()); err != nil {
		return nil, err
	}
	return ord, nil
}

// compensate undoes completed steps in reverse order. Each undo is
// attempted independently; an undo failure is logged and noted on the order
// but never blocks the other undo or the final Compensated/Failed marking.
// Finalizing with a possibly-incomplete compensation recorded for manual
// reconciliation beats blocking the order indefinitely. Undo calls are
// idempotent downstream (keyed by reservation/payment id), so a remote call
// that raced past its timeout and later succeeded is still undone by the
// release/refund already issued here or by the recovery sweep.
func (s *Orchestrator) compensate(ctx context.Context, ord *order.Order, reason string) error {
	if err := ord.MarkCompensating(); err != nil {
		return err
	}
	if err := s.orders.Save(ctx, ord); err != nil {
		return err
	}

	var incomplete []string

	if ord.PaymentID != "" {
		log.Printf("[Saga] Refunding payment %s for order %s", ord.PaymentID, ord.ID)
		undoCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
		err := s.payments.RefundPayment(undoCtx, ord.PaymentID)
		cancel()
		if err != nil {
			log.Printf("[Saga] Failed to refund payment %s: %v", ord.PaymentID, err)
			incomplete = append(incomplete, "refund payment "+ord.PaymentID)
		}
	}

	if ord.ReservationID != "" {
		log.Printf("[Saga] Releasing reservation %s for order %s", ord.ReservationID, ord.ID)
		undoCtx, cancel := context.WithTimeout(ctx, s.stepTimeout)
		err := s.inventory.ReleaseReservation(undoCtx, ord.ReservationID)
		cancel()
		if err != nil {
			log.Printf("[Saga] Failed to release reservation %s: %v", ord.ReservationID, err)
			incomplete = append(incomplete, "release reservation "+ord.ReservationID)
		}
	}

	if len(incomplete) > 0 {
		reason = reason + "; compensation unconfirmed: " + strings.Join(incomplete, ", ")
	}
	if err := ord.MarkCompensated(reason); err != nil {
		return err
	}
	failed, err := event.New(event.TypeOrderFailed, ord.ID, event.OrderFailed{
		OrderID: ord.ID,
		Reason:  reason,
	})
	if err != nil {
		return err
	}
	if err := s.orders.Save(ctx, ord, failed); err != nil {
		return err
	}

	log.Printf("[Saga] Compensation completed for order %s", ord.ID)
	return nil
}

// GetOrder returns the order projection.
func (s *Orchestrator) GetOrder(ctx context.Context, orderID string) (*order.Order, error) {
	return s.orders.Get(ctx, orderID)
}

// ListCustomerOrders returns all orders of one customer.
func (s *Orchestrator) ListCustomerOrders(ctx context.Context, customerID string) ([]*order.Order, error) {
	return s.orders.ListByCustomer(ctx, customerID)
}
