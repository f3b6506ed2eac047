package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/avelaine/stocktrack/internal/models"
	"gorm.io/gorm"
)

// NextReference computes the next sequential reference "{prefix}-{n}" for
// the owner, comparing existing suffixes numerically so ORD-10 follows ORD-9.
// Scanning for the max suffix (rather than counting rows) keeps references
// from being recycled after deletions.
//
// Two concurrent allocations can still pick the same n; the unique index on
// (user_id, reference) arbitrates and the order creator retries. See
// OrderService.Create.
func NextReference(tx *gorm.DB, userID uint, prefix string) (string, error) {
	var refs []string
	err := tx.Model(&models.Order{}).
		Where("user_id = ? AND reference LIKE ?", userID, prefix+"-%").
		Pluck("reference", &refs).Error
	if err != nil {
		return "", err
	}
	max := 0
	for _, ref := range refs {
		suffix := strings.TrimPrefix(ref, prefix+"-")
		n, err := strconv.Atoi(suffix)
		if err != nil || n <= 0 {
			// Foreign shapes like ORD-2024-1 match the LIKE but are not ours.
			continue
		}
		if n > max {
			max = n
		}
	}
	return fmt.Sprintf("%s-%d", prefix, max+1), nil
}
