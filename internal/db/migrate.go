package db

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/avelaine/stocktrack/internal/models"
	migrate "github.com/golang-migrate/migrate/v4"
	// The following blank imports register the postgres driver and file source for golang-migrate.
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models in dependency order; shared with AutoMigrate and the test helpers.
func AllModels() []any {
	return []any{
		&models.User{},
		&models.Product{},
		&models.BundleItem{},
		&models.OrderReferencePrefix{},
		&models.Order{},
		&models.OrderItem{},
	}
}

// ConnectAndMigrate opens the postgres store with retry, runs migrations,
// and optionally seeds demo data (DB_SEED=1). With MIGRATIONS=1 the SQL
// files under ./migrations are applied via golang-migrate; otherwise
// AutoMigrate keeps the dev schema in sync.
func ConnectAndMigrate() (*gorm.DB, error) {
	dsn := GetNormalizedDSN()
	if dsn == "" {
		return nil, fmt.Errorf("DATABASE_DSN is empty, check the environment configuration")
	}
	logLevel := logger.Silent
	if os.Getenv("DB_DEBUG") == "1" {
		logLevel = logger.Info
	}
	cfg := &gorm.Config{Logger: logger.Default.LogMode(logLevel), TranslateError: true}
	var db *gorm.DB
	var err error
	for i := 0; i < 10; i++ {
		db, err = gorm.Open(postgres.Open(dsn), cfg)
		if err == nil {
			break
		}
		zap.S().Warnw("retrying db connection", "error", err)
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to connect database after retries: %w", err)
	}
	if pingErr := db.Exec("SELECT 1").Error; pingErr != nil {
		return nil, fmt.Errorf("db ping failed: %w", pingErr)
	}

	if v := strings.ToLower(os.Getenv("MIGRATIONS")); v == "1" || v == "true" || v == "yes" {
		if err := runSQLMigrations(dsn); err != nil {
			return nil, fmt.Errorf("sql migrations failed: %w", err)
		}
	} else {
		for _, m := range AllModels() {
			if migErr := db.AutoMigrate(m); migErr != nil {
				return nil, fmt.Errorf("automigrate %T: %w", m, migErr)
			}
		}
	}

	// sanity check: ensure required core tables exist
	for _, table := range []string{"users", "products", "orders"} {
		if !db.Migrator().HasTable(table) {
			return nil, errors.New("missing table after migration: " + table)
		}
	}
	if v := strings.ToLower(os.Getenv("DB_SEED")); v == "1" || v == "true" || v == "yes" {
		Seed(db)
	}
	return db, nil
}

// Seed inserts a demo user with a small catalog. Idempotent on email.
func Seed(db *gorm.DB) {
	var existing models.User
	if err := db.Where("email = ?", "demo@stocktrack.local").First(&existing).Error; err == nil {
		return
	}
	hash, _ := bcrypt.GenerateFromPassword([]byte("demo1234"), bcrypt.DefaultCost)
	user := models.User{Email: "demo@stocktrack.local", Password: string(hash), Name: "Demo"}
	if err := db.Create(&user).Error; err != nil {
		zap.S().Warnw("seed user failed", "error", err)
		return
	}
	db.Create(&models.OrderReferencePrefix{UserID: user.ID, Token: models.DefaultPrefixToken})

	mug := models.Product{UserID: user.ID, SKU: "MUG", Name: "Coffee mug", Kind: models.ProductKindSimple,
		PriceTaxFree: decimal.NewFromFloat(8.50), VATPercent: decimal.NewFromInt(20), Quantity: 100}
	beans := models.Product{UserID: user.ID, SKU: "BEANS", Name: "Coffee beans 250g", Kind: models.ProductKindSimple,
		PriceTaxFree: decimal.NewFromFloat(6.00), VATPercent: decimal.NewFromFloat(5.5), Quantity: 40}
	db.Create(&mug)
	db.Create(&beans)
	kit := models.Product{UserID: user.ID, SKU: "KIT", Name: "Starter kit", Kind: models.ProductKindBundle,
		PriceTaxFree: decimal.NewFromFloat(18.00), VATPercent: decimal.NewFromInt(20)}
	if err := db.Create(&kit).Error; err == nil {
		db.Create(&models.BundleItem{BundleID: kit.ID, ComponentID: mug.ID, Quantity: 1})
		db.Create(&models.BundleItem{BundleID: kit.ID, ComponentID: beans.ID, Quantity: 2})
	}
}

// runSQLMigrations executes migrations in ./migrations using golang-migrate file source.
func runSQLMigrations(dsn string) error {
	m, err := migrate.New("file://migrations", dsn)
	if err != nil {
		return err
	}
	if err = m.Up(); err != nil && err != migrate.ErrNoChange {
		return err
	}
	return nil
}
