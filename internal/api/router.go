package api

import (
	"net/http"
	"strings"
)

// NewOrderRouter serves the order-service endpoints.
func NewOrderRouter(handlers *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/orders", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.CreateOrder(w, r)
		case http.MethodGet:
			handlers.ListOrders(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/orders/", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			handlers.GetOrder(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/health", healthHandler)
	return mux
}

// NewProcurementRouter serves the procurement-service endpoints.
func NewProcurementRouter(handlers *Handlers) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/procurements", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			handlers.CreateProcurement(w, r)
		case http.MethodGet:
			handlers.ListProcurements(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/procurements/", func(w http.ResponseWriter, r *http.Request) {
		rest := strings.TrimPrefix(r.URL.Path, "/procurements/")
		parts := strings.Split(strings.Trim(rest, "/"), "/")
		id := parts[0]
		if id == "" {
			http.Error(w, "procurement id is required", http.StatusBadRequest)
			return
		}

		if len(parts) == 1 {
			switch r.Method {
			case http.MethodGet:
				handlers.GetProcurement(w, r, id)
			case http.MethodPut:
				handlers.UpdateProcurement(w, r, id)
			default:
				http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			}
			return
		}

		if len(parts) == 2 && r.Method == http.MethodPost {
			switch parts[1] {
			case "bids":
				handlers.SubmitBid(w, r, id)
			case "award":
				handlers.AwardProcurement(w, r, id)
			case "publish":
				handlers.PublishProcurement(w, r, id)
			case "close":
				handlers.CloseBidding(w, r, id)
			case "cancel":
				handlers.CancelProcurement(w, r, id)
			default:
				http.NotFound(w, r)
			}
			return
		}
		http.NotFound(w, r)
	})

	mux.HandleFunc("/health", healthHandler)
	return mux
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
