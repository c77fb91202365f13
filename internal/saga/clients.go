package saga

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"
)

// ReservationItem is one line of an inventory reservation request.
type ReservationItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type ReservationResult struct {
	ReservationID string `json:"reservation_id"`
	Success       bool   `json:"success"`
	Message       string `json:"message"`
}

type PaymentRequest struct {
	OrderID    string          `json:"order_id"`
	CustomerID string          `json:"customer_id"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
}

type PaymentResult struct {
	PaymentID string `json:"payment_id"`
	Success   bool   `json:"success"`
	Message   string `json:"message"`
}

// InventoryClient is the narrow capability surface of the inventory service.
// ReleaseReservation is idempotent on the downstream side, keyed by
// reservation id.
type InventoryClient interface {
	ReserveInventory(ctx context.Context, orderID string, items []ReservationItem) (ReservationResult, error)
	ReleaseReservation(ctx context.Context, reservationID string) error
}

// PaymentClient is the narrow capability surface of the payment service.
// RefundPayment is idempotent, keyed by payment id.
type PaymentClient interface {
	ProcessPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error)
	RefundPayment(ctx context.Context, paymentID string) error
}

// HTTPInventoryClient talks to the inventory service's reservation API.
type HTTPInventoryClient struct {
	baseURL string
	hc      *http.Client
}

func NewHTTPInventoryClient(baseURL string, timeout time.Duration) *HTTPInventoryClient {
	return &HTTPInventoryClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: timeout},
	}
}

func (c *HTTPInventoryClient) ReserveInventory(ctx context.Context, orderID string, items []ReservationItem) (ReservationResult, error) {
	body := struct {
		OrderID string            `json:"order_id"`
		Items   []ReservationItem `json:"items"`
	}{OrderID: orderID, Items: items}

	var result ReservationResult
	err := postJSON(ctx, c.hc, c.baseURL+"/api/v1/inventory/reservations", body, &result)
	if err != nil {
		return ReservationResult{}, err
	}
	return result, nil
}

func (c *HTTPInventoryClient) ReleaseReservation(ctx context.Context, reservationID string) error {
	return doDelete(ctx, c.hc, c.baseURL+"/api/v1/inventory/reservations/"+reservationID)
}

// HTTPPaymentClient talks to the payment service.
type HTTPPaymentClient struct {
	baseURL string
	hc      *http.Client
}

func NewHTTPPaymentClient(baseURL string, timeout time.Duration) *HTTPPaymentClient {
	return &HTTPPaymentClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: timeout},
	}
}

func (c *HTTPPaymentClient) ProcessPayment(ctx context.Context, req PaymentRequest) (PaymentResult, error) {
	var result PaymentResult
	err := postJSON(ctx, c.hc, c.baseURL+"/api/v1/payments", req, &result)
	if err != nil {
		return PaymentResult{}, err
	}
	return result, nil
}

func (c *HTTPPaymentClient) RefundPayment(ctx context.Context, paymentID string) error {
	return doDelete(ctx, c.hc, c.baseURL+"/api/v1/payments/"+paymentID+"/refund")
}

func postJSON(ctx context.Context, hc *http.Client, url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("POST %s: unexpected status %d", url, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func doDelete(ctx context.Context, hc *http.Client, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return err
	}
	resp, err := hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("DELETE %s: unexpected status %d", url, resp.StatusCode)
	}
	return nil
}
