package services

import (
	"fmt"
	"testing"

	"github.com/avelaine/stocktrack/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := db.AutoMigrate(
		&models.User{}, &models.Product{}, &models.BundleItem{},
		&models.OrderReferencePrefix{}, &models.Order{}, &models.OrderItem{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func seedUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Email: email, Password: "x", Name: "Test"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("user: %v", err)
	}
	return user
}

func seedPrefix(t *testing.T, db *gorm.DB, userID uint, token string) models.OrderReferencePrefix {
	t.Helper()
	prefix := models.OrderReferencePrefix{UserID: userID, Token: token}
	if err := db.Create(&prefix).Error; err != nil {
		t.Fatalf("prefix: %v", err)
	}
	return prefix
}

func seedSimple(t *testing.T, db *gorm.DB, userID uint, sku string, qty int, price float64, vat float64) models.Product {
	t.Helper()
	p := models.Product{
		UserID:       userID,
		SKU:          sku,
		Name:         sku,
		Kind:         models.ProductKindSimple,
		Quantity:     qty,
		PriceTaxFree: decimal.NewFromFloat(price),
		VATPercent:   decimal.NewFromFloat(vat),
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("product %s: %v", sku, err)
	}
	return p
}

func seedBundle(t *testing.T, db *gorm.DB, userID uint, sku string, price float64, vat float64, comps ...models.BundleItem) models.Product {
	t.Helper()
	b := models.Product{
		UserID:       userID,
		SKU:          sku,
		Name:         sku,
		Kind:         models.ProductKindBundle,
		PriceTaxFree: decimal.NewFromFloat(price),
		VATPercent:   decimal.NewFromFloat(vat),
	}
	if err := db.Create(&b).Error; err != nil {
		t.Fatalf("bundle %s: %v", sku, err)
	}
	for _, c := range comps {
		c.BundleID = b.ID
		if err := db.Create(&c).Error; err != nil {
			t.Fatalf("bundle item: %v", err)
		}
	}
	return b
}

func productQty(t *testing.T, db *gorm.DB, id uint) int {
	t.Helper()
	var p models.Product
	if err := db.First(&p, id).Error; err != nil {
		t.Fatalf("reload product %d: %v", id, err)
	}
	return p.Quantity
}
