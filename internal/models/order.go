package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OrderStatus represents the lifecycle state of an order.
type OrderStatus string

const (
	OrderStatusPrepared OrderStatus = "prepared"
	OrderStatusPaid     OrderStatus = "paid"
	OrderStatusSent     OrderStatus = "sent"
)

// Order is an owner-scoped customer order with a human-readable reference.
type Order struct {
	ID       uint      `gorm:"primaryKey" json:"-"`
	PublicID uuid.UUID `gorm:"type:uuid;uniqueIndex;not null" json:"id"`
	UserID   uint      `gorm:"not null;index:idx_order_user_reference,priority:1" json:"user_id"`
	User     User      `gorm:"foreignKey:UserID" json:"-"`

	Reference   string      `gorm:"size:60;not null;index:idx_order_user_reference,unique,priority:2" json:"reference"`
	Status      OrderStatus `gorm:"size:16;not null;default:'prepared'" json:"status"`
	Description string      `gorm:"size:500" json:"description,omitempty"`

	Items []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`

	PaidAt    *time.Time `json:"paid_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (o *Order) IsPrepared() bool { return o.Status == OrderStatusPrepared }

// CanDelete reports whether the order may still be removed. Once stock has
// been decremented (paid) the order is immutable.
func (o *Order) CanDelete() bool { return o.Status == OrderStatusPrepared }

// OrderItem is a line of an order. Prices are captured at creation time and
// never change when the product's catalog price does.
type OrderItem struct {
	ID        uint     `gorm:"primaryKey" json:"id"`
	OrderID   uint     `gorm:"not null;index" json:"-"`
	ProductID uint     `gorm:"not null;index" json:"product_id"`
	Product   *Product `gorm:"foreignKey:ProductID" json:"product,omitempty"`

	Quantity int `gorm:"not null" json:"quantity"` // >= 1

	UnitPriceTaxFree     decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price_tax_free"`
	UnitPriceTaxIncluded decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"unit_price_tax_included"`

	// Modifications applied to reach the effective unit price, kept as part
	// of the snapshot.
	Modifications datatypes.JSONSlice[PriceModification] `json:"modifications,omitempty"`
}

// TotalTaxFree is the line total excluding VAT.
func (it *OrderItem) TotalTaxFree() decimal.Decimal {
	return it.UnitPriceTaxFree.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// TotalTaxIncluded is the line total including VAT.
func (it *OrderItem) TotalTaxIncluded() decimal.Decimal {
	return it.UnitPriceTaxIncluded.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

// ModificationType says which direction a price modification moves the price.
type ModificationType string

// ModificationKind says whether the value is an absolute amount or a percentage.
type ModificationKind string

const (
	ModificationIncrease ModificationType = "increase"
	ModificationDecrease ModificationType = "decrease"

	ModificationFlat     ModificationKind = "flat"
	ModificationRelative ModificationKind = "relative"
)

// PriceModification is a flat or percentage adjustment applied to a line's
// unit price at order-creation time.
type PriceModification struct {
	Type  ModificationType `json:"type"`
	Kind  ModificationKind `json:"kind"`
	Value decimal.Decimal  `json:"value"` // > 0; percent when Kind is relative
}
