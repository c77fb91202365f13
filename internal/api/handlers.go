// Package api exposes the order and procurement operations over HTTP. The
// handlers are a thin translation layer; all business rules live in the
// saga orchestrator and the aggregates.
package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/example/agri-procurement/internal/domain/order"
	"github.com/example/agri-procurement/internal/domain/procurement"
	"github.com/example/agri-procurement/internal/domain/valueobject"
	"github.com/example/agri-procurement/internal/saga"
)

type Handlers struct {
	orders       *saga.Orchestrator
	procurements *procurement.Service
}

func NewHandlers(orders *saga.Orchestrator, procurements *procurement.Service) *Handlers {
	return &Handlers{orders: orders, procurements: procurements}
}

// Order handlers

type createOrderRequest struct {
	CustomerID string `json:"customer_id"`
	Lines      []struct {
		ProductID string          `json:"product_id"`
		Quantity  int             `json:"quantity"`
		UnitPrice decimal.Decimal `json:"unit_price"`
		Currency  string          `json:"currency"`
	} `json:"lines"`
}

func (h *Handlers) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	lines := make([]order.LineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		price, err := valueobject.NewMoney(l.UnitPrice, l.Currency)
		if err != nil {
			respondError(w, err)
			return
		}
		lines = append(lines, order.LineInput{
			ProductID: l.ProductID,
			Quantity:  l.Quantity,
			UnitPrice: price,
		})
	}

	// A failed saga is still a created order; the projection carries the
	// failure, so the status code stays 201.
	ord, err := h.orders.CreateOrder(r.Context(), req.CustomerID, lines)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, ord)
}

func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	id := extractPathParam(r.URL.Path, "/orders/")
	ord, err := h.orders.GetOrder(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ord)
}

func (h *Handlers) ListOrders(w http.ResponseWriter, r *http.Request) {
	customerID := r.URL.Query().Get("customer_id")
	if customerID == "" {
		http.Error(w, "customer_id query parameter is required", http.StatusBadRequest)
		return
	}
	orders, err := h.orders.ListCustomerOrders(r.Context(), customerID)
	if err != nil {
		respondError(w, err)
		return
	}
	if orders == nil {
		orders = []*order.Order{}
	}
	respondJSON(w, http.StatusOK, orders)
}

// Procurement handlers

type procurementRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Quantity    struct {
		Amount decimal.Decimal `json:"amount"`
		Unit   string          `json:"unit"`
	} `json:"quantity"`
	Budget struct {
		Amount   decimal.Decimal `json:"amount"`
		Currency string          `json:"currency"`
	} `json:"budget"`
	Deadline time.Time `json:"deadline"`
	BuyerID  string    `json:"buyer_id"`
}

func (r procurementRequest) values() (valueobject.Quantity, valueobject.Money, error) {
	quantity, err := valueobject.NewQuantity(r.Quantity.Amount, valueobject.Unit(r.Quantity.Unit))
	if err != nil {
		return valueobject.Quantity{}, valueobject.Money{}, err
	}
	budget, err := valueobject.NewMoney(r.Budget.Amount, r.Budget.Currency)
	if err != nil {
		return valueobject.Quantity{}, valueobject.Money{}, err
	}
	return quantity, budget, nil
}

func (h *Handlers) CreateProcurement(w http.ResponseWriter, r *http.Request) {
	var req procurementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	quantity, budget, err := req.values()
	if err != nil {
		respondError(w, err)
		return
	}

	p, err := h.procurements.Create(r.Context(), procurement.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		Quantity:    quantity,
		Budget:      budget,
		Deadline:    req.Deadline,
		BuyerID:     req.BuyerID,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handlers) UpdateProcurement(w http.ResponseWriter, r *http.Request, id string) {
	var req procurementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	quantity, budget, err := req.values()
	if err != nil {
		respondError(w, err)
		return
	}

	p, err := h.procurements.Update(r.Context(), id, procurement.UpdateInput{
		Title:       req.Title,
		Description: req.Description,
		Quantity:    quantity,
		Budget:      budget,
		Deadline:    req.Deadline,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) GetProcurement(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.procurements.Get(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) ListProcurements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := procurement.Filter{
		BuyerID:    q.Get("buyer_id"),
		Status:     procurement.Status(q.Get("status")),
		ActiveOnly: q.Get("active") == "true",
	}
	result, err := h.procurements.List(r.Context(), filter)
	if err != nil {
		respondError(w, err)
		return
	}
	if result == nil {
		result = []*procurement.Procurement{}
	}
	respondJSON(w, http.StatusOK, result)
}

type submitBidRequest struct {
	VendorID string          `json:"vendor_id"`
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Notes    string          `json:"notes"`
}

func (h *Handlers) SubmitBid(w http.ResponseWriter, r *http.Request, id string) {
	var req submitBidRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	amount, err := valueobject.NewMoney(req.Amount, req.Currency)
	if err != nil {
		respondError(w, err)
		return
	}

	p, err := h.procurements.SubmitBid(r.Context(), procurement.SubmitBidInput{
		ProcurementID: id,
		VendorID:      req.VendorID,
		Amount:        amount,
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, p)
}

func (h *Handlers) AwardProcurement(w http.ResponseWriter, r *http.Request, id string) {
	var req struct {
		BidID string `json:"bid_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	p, err := h.procurements.Award(r.Context(), id, req.BidID)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) PublishProcurement(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.procurements.Publish(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) CloseBidding(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.procurements.CloseBidding(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (h *Handlers) CancelProcurement(w http.ResponseWriter, r *http.Request, id string) {
	p, err := h.procurements.Cancel(r.Context(), id)
	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}
