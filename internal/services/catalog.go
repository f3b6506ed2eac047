package services

import (
	"github.com/avelaine/stocktrack/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CatalogEntry is the pricing/stock/composition view of one owned product.
type CatalogEntry struct {
	ID           uint
	PriceTaxFree decimal.Decimal
	VATPercent   decimal.Decimal
	Quantity     int
	Kind         models.ProductKind
	Archived     bool
}

// BundleComponent is one (component, quantity) pair of a bundle definition.
type BundleComponent struct {
	ProductID uint
	Quantity  int
}

// CatalogReader resolves product ids to pricing, stock, and composition
// metadata. Ids that do not exist or belong to another user are simply
// absent from the result; callers must check for missing ids themselves.
// Archived products ARE returned, flagged, so callers can tell "archived"
// apart from "not found".
//
// All methods take the transaction handle explicitly so reads participate in
// the caller's transaction.
type CatalogReader interface {
	Products(tx *gorm.DB, userID uint, ids []uint) (map[uint]CatalogEntry, error)
	BundleComponents(tx *gorm.DB, bundleIDs []uint) (map[uint][]BundleComponent, error)
}

type gormCatalog struct{}

// NewCatalogReader returns the GORM-backed catalog reader.
func NewCatalogReader() CatalogReader { return gormCatalog{} }

func (gormCatalog) Products(tx *gorm.DB, userID uint, ids []uint) (map[uint]CatalogEntry, error) {
	out := make(map[uint]CatalogEntry, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var products []models.Product
	if err := tx.Where("id IN ? AND user_id = ?", ids, userID).Find(&products).Error; err != nil {
		return nil, err
	}
	for _, p := range products {
		out[p.ID] = CatalogEntry{
			ID:           p.ID,
			PriceTaxFree: p.PriceTaxFree,
			VATPercent:   p.VATPercent,
			Quantity:     p.Quantity,
			Kind:         p.Kind,
			Archived:     p.IsArchived(),
		}
	}
	return out, nil
}

func (gormCatalog) BundleComponents(tx *gorm.DB, bundleIDs []uint) (map[uint][]BundleComponent, error) {
	out := make(map[uint][]BundleComponent, len(bundleIDs))
	if len(bundleIDs) == 0 {
		return out, nil
	}
	var items []models.BundleItem
	if err := tx.Where("bundle_id IN ?", bundleIDs).Order("id asc").Find(&items).Error; err != nil {
		return nil, err
	}
	for _, it := range items {
		out[it.BundleID] = append(out[it.BundleID], BundleComponent{ProductID: it.ComponentID, Quantity: it.Quantity})
	}
	return out, nil
}
