package services

import (
	"context"
	"errors"
	"time"

	"github.com/avelaine/stocktrack/internal/models"
	"github.com/avelaine/stocktrack/internal/validation"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// maxReferenceAttempts bounds the retry loop for generated references that
// lose the allocation race. Explicit references are never retried.
const maxReferenceAttempts = 3

// referenceRacedError aborts the transaction so Create can re-generate the
// reference and try again.
type referenceRacedError struct{ reference string }

func (e *referenceRacedError) Error() string {
	return "generated reference " + e.reference + " raced"
}

// OrderItemInput is one requested order line. UnitPriceTaxFree, when set,
// overrides the catalog price before modifications are applied.
type OrderItemInput struct {
	ProductID        uint
	Quantity         int
	UnitPriceTaxFree *decimal.Decimal
	Modifications    []models.PriceModification
}

// CreateOrderInput describes a new order. Exactly one of Reference and
// PrefixID must be provided; with PrefixID the reference is generated.
type CreateOrderInput struct {
	Items       []OrderItemInput
	Status      models.OrderStatus // prepared (default) or paid
	Reference   string
	PrefixID    uint
	Description string
}

// OrderService owns the order state machine and the transaction boundary
// around stock validation and decrement.
type OrderService struct {
	db      *gorm.DB
	catalog CatalogReader
}

func NewOrderService(db *gorm.DB, catalog CatalogReader) *OrderService {
	return &OrderService{db: db, catalog: catalog}
}

// Create validates the input, resolves pricing per line, and persists the
// order with its items in one transaction. When the order is created
// directly as paid, stock for the expanded base products is validated and
// decremented inside the same transaction; any failure leaves no partial
// effect.
func (s *OrderService) Create(ctx context.Context, userID uint, in CreateOrderInput) (*models.Order, error) {
	if err := validateCreateInput(in); err != nil {
		return nil, err
	}
	if in.Status == "" {
		in.Status = models.OrderStatusPrepared
	}

	lastRaced := ""
	for attempt := 0; attempt < maxReferenceAttempts; attempt++ {
		order, err := s.createOnce(ctx, userID, in)
		if err == nil {
			return order, nil
		}
		var raced *referenceRacedError
		if errors.As(err, &raced) {
			lastRaced = raced.reference
			continue
		}
		return nil, err
	}
	return nil, &DuplicateReferenceError{Reference: lastRaced}
}

func (s *OrderService) createOnce(ctx context.Context, userID uint, in CreateOrderInput) (*models.Order, error) {
	var created models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		reference := in.Reference
		generated := false
		if reference == "" {
			var prefix models.OrderReferencePrefix
			if err := tx.Where("id = ? AND user_id = ?", in.PrefixID, userID).First(&prefix).Error; err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return &NotFoundError{Entity: "prefix", ID: in.PrefixID}
				}
				return err
			}
			var err error
			reference, err = NextReference(tx, userID, prefix.Token)
			if err != nil {
				return err
			}
			generated = true
		}

		ids := make([]uint, 0, len(in.Items))
		for _, it := range in.Items {
			ids = append(ids, it.ProductID)
		}
		entries, err := s.catalog.Products(tx, userID, ids)
		if err != nil {
			return err
		}
		items := make([]models.OrderItem, 0, len(in.Items))
		for _, it := range in.Items {
			entry, ok := entries[it.ProductID]
			if !ok {
				return &NotFoundError{Entity: "product", ID: it.ProductID}
			}
			if entry.Archived {
				return &ArchivedProductError{ProductID: it.ProductID}
			}
			taxFree, err := ResolveUnitPrice(entry.PriceTaxFree, it.UnitPriceTaxFree, it.Modifications)
			if err != nil {
				return err
			}
			items = append(items, models.OrderItem{
				ProductID:            it.ProductID,
				Quantity:             it.Quantity,
				UnitPriceTaxFree:     taxFree,
				UnitPriceTaxIncluded: TaxIncluded(taxFree, entry.VATPercent),
				Modifications:        it.Modifications,
			})
		}

		order := models.Order{
			PublicID:    uuid.New(),
			UserID:      userID,
			Reference:   reference,
			Status:      in.Status,
			Description: in.Description,
		}
		if in.Status == models.OrderStatusPaid {
			if err := s.settleStock(tx, userID, orderLines(in.Items), entries); err != nil {
				return err
			}
			now := time.Now()
			order.PaidAt = &now
		}

		if err := tx.Create(&order).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				if generated {
					return &referenceRacedError{reference: reference}
				}
				return &DuplicateReferenceError{Reference: reference}
			}
			return err
		}
		for i := range items {
			items[i].OrderID = order.ID
		}
		if err := tx.Create(&items).Error; err != nil {
			return err
		}
		order.Items = items
		created = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// MarkPaid transitions prepared → paid. The persisted items are re-expanded
// through the current bundle composition and stock is re-validated and
// decremented atomically with the status change.
func (s *OrderService) MarkPaid(ctx context.Context, userID uint, orderID uuid.UUID) (*models.Order, error) {
	var updated models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := loadOrder(tx, userID, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPrepared {
			return &InvalidStateTransitionError{From: order.Status, Op: "pay"}
		}
		lines := make([]OrderLine, 0, len(order.Items))
		ids := make([]uint, 0, len(order.Items))
		for _, it := range order.Items {
			lines = append(lines, OrderLine{ProductID: it.ProductID, Quantity: it.Quantity})
			ids = append(ids, it.ProductID)
		}
		entries, err := s.catalog.Products(tx, userID, ids)
		if err != nil {
			return err
		}
		for _, it := range order.Items {
			entry, ok := entries[it.ProductID]
			if !ok {
				return &NotFoundError{Entity: "product", ID: it.ProductID}
			}
			if entry.Archived {
				return &ArchivedProductError{ProductID: it.ProductID}
			}
		}
		if err := s.settleStock(tx, userID, lines, entries); err != nil {
			return err
		}
		now := time.Now()
		order.Status = models.OrderStatusPaid
		order.PaidAt = &now
		order.UpdatedAt = now
		if err := transitionOrder(tx, order.ID, models.OrderStatusPrepared, "pay", map[string]any{
			"status": order.Status, "paid_at": order.PaidAt, "updated_at": now,
		}); err != nil {
			return err
		}
		updated = *order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// MarkSent transitions paid → sent. Pure status change, no stock effect.
func (s *OrderService) MarkSent(ctx context.Context, userID uint, orderID uuid.UUID) (*models.Order, error) {
	var updated models.Order
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := loadOrder(tx, userID, orderID)
		if err != nil {
			return err
		}
		if order.Status != models.OrderStatusPaid {
			return &InvalidStateTransitionError{From: order.Status, Op: "send"}
		}
		now := time.Now()
		order.Status = models.OrderStatusSent
		order.UpdatedAt = now
		if err := transitionOrder(tx, order.ID, models.OrderStatusPaid, "send", map[string]any{
			"status": order.Status, "updated_at": now,
		}); err != nil {
			return err
		}
		updated = *order
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes a prepared order and its items. Stock is untouched because
// it was never decremented; paid and sent orders are immutable.
func (s *OrderService) Delete(ctx context.Context, userID uint, orderID uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		order, err := loadOrder(tx, userID, orderID)
		if err != nil {
			return err
		}
		if !order.CanDelete() {
			return &InvalidStateTransitionError{From: order.Status, Op: "delete"}
		}
		if err := tx.Where("order_id = ?", order.ID).Delete(&models.OrderItem{}).Error; err != nil {
			return err
		}
		// Conditioned on status so a concurrent pay cannot slip in between the
		// read above and the delete.
		res := tx.Where("id = ? AND status = ?", order.ID, models.OrderStatusPrepared).Delete(&models.Order{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return staleTransition(tx, order.ID, "delete")
		}
		return nil
	})
}

// Get returns one owned order with its items.
func (s *OrderService) Get(ctx context.Context, userID uint, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := s.db.WithContext(ctx).Preload("Items").
		Where("public_id = ? AND user_id = ?", orderID, userID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "order", ID: orderID}
		}
		return nil, err
	}
	return &order, nil
}

// List returns owned orders, newest first, optionally filtered by status.
func (s *OrderService) List(ctx context.Context, userID uint, status models.OrderStatus, limit, offset int) ([]models.Order, int64, error) {
	q := s.db.WithContext(ctx).Where("user_id = ?", userID)
	if status != "" {
		q = q.Where("status = ?", status)
	}
	var total int64
	if err := q.Model(&models.Order{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var orders []models.Order
	if err := q.Preload("Items").Order("id desc").Limit(limit).Offset(offset).Find(&orders).Error; err != nil {
		return nil, 0, err
	}
	return orders, total, nil
}

// settleStock expands lines into base-product requirements, validates
// availability, and decrements. Runs inside the caller's transaction.
func (s *OrderService) settleStock(tx *gorm.DB, userID uint, lines []OrderLine, entries map[uint]CatalogEntry) error {
	bundleIDs := make([]uint, 0)
	for _, line := range lines {
		if e, ok := entries[line.ProductID]; ok && e.Kind == models.ProductKindBundle {
			bundleIDs = append(bundleIDs, line.ProductID)
		}
	}
	components, err := s.catalog.BundleComponents(tx, bundleIDs)
	if err != nil {
		return err
	}
	required, err := ExpandLines(lines, entries, components)
	if err != nil {
		return err
	}
	if err := ValidateStock(tx, userID, required); err != nil {
		return err
	}
	return DecrementStock(tx, userID, required)
}

func loadOrder(tx *gorm.DB, userID uint, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := tx.Preload("Items").Where("public_id = ? AND user_id = ?", orderID, userID).First(&order).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, &NotFoundError{Entity: "order", ID: orderID}
		}
		return nil, err
	}
	return &order, nil
}

// transitionOrder applies a status change conditioned on the expected prior
// status, mirroring the stock compare-and-swap. Zero affected rows means a
// concurrent transition won; the caller's transaction rolls back, which also
// undoes any stock decrement made for this transition.
func transitionOrder(tx *gorm.DB, orderID uint, from models.OrderStatus, op string, updates map[string]any) error {
	res := tx.Model(&models.Order{}).Where("id = ? AND status = ?", orderID, from).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return staleTransition(tx, orderID, op)
	}
	return nil
}

func staleTransition(tx *gorm.DB, orderID uint, op string) error {
	var current models.Order
	if err := tx.Select("status").First(&current, orderID).Error; err != nil {
		return err
	}
	return &InvalidStateTransitionError{From: current.Status, Op: op}
}

func orderLines(items []OrderItemInput) []OrderLine {
	lines := make([]OrderLine, 0, len(items))
	for _, it := range items {
		lines = append(lines, OrderLine{ProductID: it.ProductID, Quantity: it.Quantity})
	}
	return lines
}

func validateCreateInput(in CreateOrderInput) error {
	v := validation.Violations{}
	if len(in.Items) == 0 {
		v["items"] = "required"
	}
	seen := make(map[uint]bool, len(in.Items))
	for _, it := range in.Items {
		if it.ProductID == 0 {
			v["items"] = "invalid_product"
			break
		}
		if it.Quantity < 1 {
			v["items"] = "quantity_must_be_positive"
			break
		}
		if seen[it.ProductID] {
			v["items"] = "duplicate_product"
			break
		}
		seen[it.ProductID] = true
	}
	switch in.Status {
	case "", models.OrderStatusPrepared, models.OrderStatusPaid:
	default:
		v["status"] = "must_be_prepared_or_paid"
	}
	if in.Reference == "" && in.PrefixID == 0 {
		v["reference"] = "reference_or_prefix_required"
	}
	if in.Reference != "" && in.PrefixID != 0 {
		v["reference"] = "reference_and_prefix_exclusive"
	}
	if !v.Empty() {
		return &ValidationError{Violations: v}
	}
	return nil
}
