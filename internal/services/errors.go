package services

import (
	"fmt"

	"github.com/avelaine/stocktrack/internal/models"
	"github.com/avelaine/stocktrack/internal/validation"
)

// Typed failures surfaced by the order core. Handlers map these to HTTP
// statuses with errors.As; each carries enough detail to render a specific
// message.

// ValidationError reports malformed input. Nothing was applied.
type ValidationError struct {
	Violations validation.Violations
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %v", map[string]string(e.Violations))
}

func newValidationError(field, reason string) *ValidationError {
	return &ValidationError{Violations: validation.Violations{field: reason}}
}

// NotFoundError reports that a referenced entity does not exist or is not
// owned by the caller. Ownership misses are deliberately indistinguishable
// from absence.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

// ArchivedProductError reports an attempt to order an archived product.
type ArchivedProductError struct {
	ProductID uint
}

func (e *ArchivedProductError) Error() string {
	return fmt.Sprintf("product %d is archived and cannot be ordered", e.ProductID)
}

// InvalidCompositionError reports an illegal bundle definition: a component
// that is not a simple product, a self-reference, or an archived component.
type InvalidCompositionError struct {
	BundleID    uint
	ComponentID uint
	Reason      string
}

func (e *InvalidCompositionError) Error() string {
	return fmt.Sprintf("invalid bundle composition (bundle %d, component %d): %s", e.BundleID, e.ComponentID, e.Reason)
}

// InsufficientStockError identifies the base product whose on-hand quantity
// is less than required.
type InsufficientStockError struct {
	ProductID uint
	Required  int
	Available int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %d: required %d, available %d", e.ProductID, e.Required, e.Available)
}

// DuplicateReferenceError reports a reference collision for the same owner.
type DuplicateReferenceError struct {
	Reference string
}

func (e *DuplicateReferenceError) Error() string {
	return fmt.Sprintf("order reference %q already exists", e.Reference)
}

// InvalidStateTransitionError reports an operation that is illegal for the
// order's current status.
type InvalidStateTransitionError struct {
	From models.OrderStatus
	Op   string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("cannot %s an order in status %q", e.Op, e.From)
}
