package services

import (
	"sort"

	"github.com/avelaine/stocktrack/internal/models"
	"gorm.io/gorm"
)

// ValidateStock checks that every required base product has sufficient
// on-hand quantity, reading current quantities inside the caller's
// transaction. It also rejects archived components and anything that is not
// a simple product, since only simple products carry stock.
func ValidateStock(tx *gorm.DB, userID uint, required map[uint]int) error {
	if len(required) == 0 {
		return nil
	}
	ids := sortedKeys(required)
	var products []models.Product
	if err := tx.Where("id IN ? AND user_id = ?", ids, userID).Find(&products).Error; err != nil {
		return err
	}
	byID := make(map[uint]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}
	for _, id := range ids {
		p, ok := byID[id]
		if !ok {
			return &NotFoundError{Entity: "product", ID: id}
		}
		if p.IsArchived() {
			return &ArchivedProductError{ProductID: id}
		}
		if p.IsBundle() {
			return &InvalidCompositionError{BundleID: id, Reason: "bundle used as a base product"}
		}
		if p.Quantity < required[id] {
			return &InsufficientStockError{ProductID: id, Required: required[id], Available: p.Quantity}
		}
	}
	return nil
}

// DecrementStock atomically subtracts the required quantities using a
// compare-and-swap update. A zero affected-row count means a concurrent
// order consumed the stock between validation and decrement; the caller's
// transaction must then roll back. Products are touched in ascending id
// order to keep lock acquisition deterministic.
func DecrementStock(tx *gorm.DB, userID uint, required map[uint]int) error {
	for _, id := range sortedKeys(required) {
		n := required[id]
		res := tx.Model(&models.Product{}).
			Where("id = ? AND user_id = ? AND quantity >= ?", id, userID, n).
			UpdateColumn("quantity", gorm.Expr("quantity - ?", n))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var p models.Product
			available := 0
			if err := tx.Select("quantity").Where("id = ? AND user_id = ?", id, userID).First(&p).Error; err == nil {
				available = p.Quantity
			}
			return &InsufficientStockError{ProductID: id, Required: n, Available: available}
		}
	}
	return nil
}

func sortedKeys(m map[uint]int) []uint {
	ids := make([]uint, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
