package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/example/agri-procurement/internal/errs"
)

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// respondError maps the error taxonomy to status codes. Remote step
// failures never reach here: the orchestrator converts them into a failed
// order projection.
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errs.Any(err, errs.ErrValidation, errs.ErrCurrencyMismatch, errs.ErrUnitMismatch):
		status = http.StatusBadRequest
	case errors.Is(err, errs.ErrDomainRule):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, errs.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, errs.ErrConcurrency):
		status = http.StatusConflict
	}
	http.Error(w, err.Error(), status)
}

func extractPathParam(path, prefix string) string {
	param := strings.TrimPrefix(path, prefix)
	if idx := strings.Index(param, "/"); idx >= 0 {
		param = param[:idx]
	}
	return param
}
