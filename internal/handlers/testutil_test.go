package handlers

import (
	"fmt"
	"testing"

	"github.com/avelaine/stocktrack/internal/models"
	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupHandlerDB(t *testing.T) *gorm.DB {
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

func seedHandlerUser(t *testing.T, db *gorm.DB, email string) models.User {
	t.Helper()
	user := models.User{Email: email, Password: "x", Name: "Test"}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("user: %v", err)
	}
	return user
}

func seedHandlerPrefix(t *testing.T, db *gorm.DB, userID uint, token string) models.OrderReferencePrefix {
	t.Helper()
	prefix := models.OrderReferencePrefix{UserID: userID, Token: token}
	if err := db.Create(&prefix).Error; err != nil {
		t.Fatalf("prefix: %v", err)
	}
	return prefix
}

func seedHandlerProduct(t *testing.T, db *gorm.DB, userID uint, sku string, qty int, price string) models.Product {
	t.Helper()
	p := models.Product{
		UserID:       userID,
		SKU:          sku,
		Name:         sku,
		Kind:         models.ProductKindSimple,
		Quantity:     qty,
		PriceTaxFree: decimal.RequireFromString(price),
		VATPercent:   decimal.NewFromInt(20),
	}
	if err := db.Create(&p).Error; err != nil {
		t.Fatalf("product %s: %v", sku, err)
	}
	return p
}
