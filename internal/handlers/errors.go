package handlers

import (
	"errors"
	"net/http"

	"github.com/avelaine/stocktrack/internal/httpx"
	"github.com/avelaine/stocktrack/internal/services"
	"go.uber.org/zap"
)

// writeServiceError maps the core's typed failures to HTTP responses. The
// offending ids travel in the details payload so clients can render a
// specific message.
func writeServiceError(w http.ResponseWriter, err error) {
	var (
		validationErr *services.ValidationError
		notFoundErr   *services.NotFoundError
		archivedErr   *services.ArchivedProductError
		compErr       *services.InvalidCompositionError
		stockErr      *services.InsufficientStockError
		dupErr        *services.DuplicateReferenceError
		stateErr      *services.InvalidStateTransitionError
	)
	switch {
	case errors.As(err, &validationErr):
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validationErr.Violations)
	case errors.As(err, &notFoundErr):
		httpx.JSONError(w, http.StatusNotFound, "not_found", map[string]any{"entity": notFoundErr.Entity, "id": notFoundErr.ID})
	case errors.As(err, &archivedErr):
		httpx.JSONError(w, http.StatusConflict, "product_archived", map[string]any{"product_id": archivedErr.ProductID})
	case errors.As(err, &compErr):
		httpx.JSONError(w, http.StatusUnprocessableEntity, "invalid_composition", map[string]any{
			"bundle_id": compErr.BundleID, "component_id": compErr.ComponentID, "reason": compErr.Reason,
		})
	case errors.As(err, &stockErr):
		httpx.JSONError(w, http.StatusConflict, "insufficient_stock", map[string]any{
			"product_id": stockErr.ProductID, "required": stockErr.Required, "available": stockErr.Available,
		})
	case errors.As(err, &dupErr):
		httpx.JSONError(w, http.StatusConflict, "duplicate_reference", map[string]any{"reference": dupErr.Reference})
	case errors.As(err, &stateErr):
		httpx.JSONError(w, http.StatusConflict, "invalid_state_transition", map[string]any{"status": stateErr.From})
	default:
		zap.S().Errorw("unhandled service error", "error", err)
		httpx.JSONError(w, http.StatusInternalServerError, "internal_error", nil)
	}
}
