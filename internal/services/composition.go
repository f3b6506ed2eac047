package services

import (
	"github.com/avelaine/stocktrack/internal/models"
	"gorm.io/gorm"
)

// BundleComponentInput is one requested component of a bundle definition.
type BundleComponentInput struct {
	ProductID uint
	Quantity  int
}

// ValidateBundleComposition checks a bundle definition before it is
// persisted: at least one component, quantities >= 1, no self-reference, and
// every component an existing, non-archived simple product of the same
// owner. Keeping this at definition time is what makes expansion exactly one
// level deep.
//
// bundleID is zero when the bundle is being created.
func ValidateBundleComposition(tx *gorm.DB, userID, bundleID uint, comps []BundleComponentInput) error {
	if len(comps) == 0 {
		return newValidationError("components", "required")
	}
	seen := make(map[uint]bool, len(comps))
	ids := make([]uint, 0, len(comps))
	for _, c := range comps {
		if c.Quantity < 1 {
			return newValidationError("components", "quantity_must_be_positive")
		}
		if bundleID != 0 && c.ProductID == bundleID {
			return &InvalidCompositionError{BundleID: bundleID, ComponentID: c.ProductID, Reason: "bundle cannot reference itself"}
		}
		if seen[c.ProductID] {
			return newValidationError("components", "duplicate_component")
		}
		seen[c.ProductID] = true
		ids = append(ids, c.ProductID)
	}
	var products []models.Product
	if err := tx.Where("id IN ? AND user_id = ?", ids, userID).Find(&products).Error; err != nil {
		return err
	}
	byID := make(map[uint]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, c := range comps {
		p, ok := byID[c.ProductID]
		if !ok {
			return &NotFoundError{Entity: "product", ID: c.ProductID}
		}
		if p.IsArchived() {
			return &InvalidCompositionError{BundleID: bundleID, ComponentID: c.ProductID, Reason: "component is archived"}
		}
		if p.IsBundle() {
			return &InvalidCompositionError{BundleID: bundleID, ComponentID: c.ProductID, Reason: "component must be a simple product"}
		}
	}
	return nil
}
