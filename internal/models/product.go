package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductKind distinguishes stock-tracked items from composite bundles.
type ProductKind string

const (
	ProductKindSimple ProductKind = "simple"
	ProductKindBundle ProductKind = "bundle"
)

// Product is an owner-scoped catalog item.
// A simple product tracks its own on-hand quantity; a bundle has no stock of
// its own and is defined entirely by its BundleItems.
type Product struct {
	ID     uint `gorm:"primaryKey" json:"id"`
	UserID uint `gorm:"not null;index:idx_product_user_sku,priority:1" json:"user_id"`
	User   User `gorm:"foreignKey:UserID" json:"-"`

	// SKU is unique per owner and gives the product a readable identifier.
	SKU  string `gorm:"size:40;not null;index:idx_product_user_sku,unique,priority:2" json:"sku"`
	Name string `gorm:"not null" json:"name"`

	PriceTaxFree decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"price_tax_free"`
	VATPercent   decimal.Decimal `gorm:"type:decimal(5,2);not null" json:"vat_percent"` // 0..100

	Kind     ProductKind `gorm:"size:16;not null;default:'simple'" json:"kind"`
	Quantity int         `gorm:"not null;default:0" json:"quantity"` // always 0 for bundles

	// Bundle composition; only populated when Kind is bundle.
	Components []BundleItem `gorm:"foreignKey:BundleID" json:"components,omitempty"`

	// Archived products stay referenceable by past orders but cannot be ordered.
	ArchivedAt *time.Time `gorm:"index" json:"archived_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (p *Product) IsBundle() bool   { return p.Kind == ProductKindBundle }
func (p *Product) IsArchived() bool { return p.ArchivedAt != nil }

// BundleItem maps one component of a bundle to a simple product.
// Composition is exactly one level deep: components are never bundles.
type BundleItem struct {
	ID          uint     `gorm:"primaryKey" json:"id"`
	BundleID    uint     `gorm:"not null;index:idx_bundle_component,unique,priority:1" json:"bundle_id"`
	ComponentID uint     `gorm:"not null;index:idx_bundle_component,unique,priority:2" json:"component_id"`
	Component   *Product `gorm:"foreignKey:ComponentID" json:"component,omitempty"`
	Quantity    int      `gorm:"not null" json:"quantity"` // >= 1
}
