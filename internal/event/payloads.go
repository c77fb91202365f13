package event

import (
	"time"

	"github.com/shopspring/decimal"
)

// Payload shapes for the events this core emits. Consumers in other
// services deserialize these from the envelope's payload field.

type OrderCreated struct {
	OrderID     string          `json:"order_id"`
	CustomerID  string          `json:"customer_id"`
	TotalAmount decimal.Decimal `json:"total_amount"`
	Currency    string          `json:"currency"`
	CreatedAt   time.Time       `json:"created_at"`
}

type InventoryReserved struct {
	OrderID       string `json:"order_id"`
	ReservationID string `json:"reservation_id"`
}

type OrderConfirmed struct {
	OrderID   string `json:"order_id"`
	PaymentID string `json:"payment_id"`
}

type OrderFailed struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

type ProcurementCreated struct {
	ProcurementID string          `json:"procurement_id"`
	Title         string          `json:"title"`
	Description   string          `json:"description"`
	Quantity      decimal.Decimal `json:"quantity"`
	Budget        decimal.Decimal `json:"budget"`
	Deadline      time.Time       `json:"deadline"`
}

type BidSubmitted struct {
	ProcurementID string          `json:"procurement_id"`
	BidID         string          `json:"bid_id"`
	VendorID      string          `json:"vendor_id"`
	Amount        decimal.Decimal `json:"amount"`
	SubmittedAt   time.Time       `json:"submitted_at"`
}

type ProcurementAwarded struct {
	ProcurementID string `json:"procurement_id"`
	BidID         string `json:"bid_id"`
	VendorID      string `json:"vendor_id"`
}

type BiddingClosed struct {
	ProcurementID string `json:"procurement_id"`
}

type ProcurementCancelled struct {
	ProcurementID string `json:"procurement_id"`
}
