package services

import (
	"testing"

	"github.com/avelaine/stocktrack/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func seedOrder(t *testing.T, db *gorm.DB, userID uint, reference string) {
	t.Helper()
	order := models.Order{PublicID: uuid.New(), UserID: userID, Reference: reference, Status: models.OrderStatusPrepared}
	if err := db.Create(&order).Error; err != nil {
		t.Fatalf("order %s: %v", reference, err)
	}
}

func TestNextReferenceStartsAtOne(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "ref@test")

	got, err := NextReference(db, user.ID, "ORD")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != "ORD-1" {
		t.Fatalf("expected ORD-1, got %s", got)
	}
}

func TestNextReferenceNumericComparison(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "ref@test")
	for _, ref := range []string{"ORD-1", "ORD-2", "ORD-9"} {
		seedOrder(t, db, user.ID, ref)
	}

	got, err := NextReference(db, user.ID, "ORD")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	// lexicographic comparison would pick ORD-9 as the max even after ORD-10
	if got != "ORD-10" {
		t.Fatalf("expected ORD-10, got %s", got)
	}
	seedOrder(t, db, user.ID, "ORD-10")
	got, err = NextReference(db, user.ID, "ORD")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != "ORD-11" {
		t.Fatalf("expected ORD-11, got %s", got)
	}
}

func TestNextReferenceScopedPerPrefixAndUser(t *testing.T) {
	db := setupTestDB(t)
	alice := seedUser(t, db, "alice@test")
	bob := seedUser(t, db, "bob@test")
	seedOrder(t, db, alice.ID, "ORD-7")
	seedOrder(t, db, alice.ID, "INV-3")
	seedOrder(t, db, bob.ID, "ORD-99")

	got, err := NextReference(db, alice.ID, "ORD")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != "ORD-8" {
		t.Fatalf("expected ORD-8, got %s", got)
	}
}

func TestNextReferenceIgnoresForeignShapes(t *testing.T) {
	db := setupTestDB(t)
	user := seedUser(t, db, "ref@test")
	seedOrder(t, db, user.ID, "ORD-2024-5") // matches LIKE but has no numeric suffix
	seedOrder(t, db, user.ID, "ORD-3")

	got, err := NextReference(db, user.ID, "ORD")
	if err != nil {
		t.Fatalf("next: %v", err)
	}
	if got != "ORD-4" {
		t.Fatalf("expected ORD-4, got %s", got)
	}
}
