package main

import (
	"net/http"

	"github.com/avelaine/stocktrack/internal/auth"
	"github.com/avelaine/stocktrack/internal/handlers"
	"github.com/avelaine/stocktrack/internal/services"
	"gorm.io/gorm"
)

// NewApp wires all routes. The API is JSON-only; the order routes are a thin
// shell over the order service, which owns all business rules.
func NewApp(dbConn *gorm.DB) http.Handler {
	mux := http.NewServeMux()

	ah := handlers.NewAuthHandler(dbConn)
	ph := handlers.NewProductHandler(dbConn)
	rh := handlers.NewPrefixHandler(dbConn)
	oh := handlers.NewOrderHandler(services.NewOrderService(dbConn, services.NewCatalogReader()))

	// Public routes
	mux.HandleFunc("POST /signup", ah.Signup)
	mux.HandleFunc("POST /login", ah.Login)
	mux.HandleFunc("POST /logout", ah.Logout)

	// Products
	mux.Handle("GET /api/products", auth.RequireAuth(http.HandlerFunc(ph.List)))
	mux.Handle("POST /api/products", auth.RequireAuth(http.HandlerFunc(ph.Create)))
	mux.Handle("PATCH /api/products/{id}", auth.RequireAuth(http.HandlerFunc(ph.Update)))
	mux.Handle("POST /api/products/{id}/archive", auth.RequireAuth(http.HandlerFunc(ph.Archive)))
	mux.Handle("POST /api/products/{id}/unarchive", auth.RequireAuth(http.HandlerFunc(ph.Unarchive)))

	// Reference prefixes
	mux.Handle("GET /api/prefixes", auth.RequireAuth(http.HandlerFunc(rh.List)))
	mux.Handle("POST /api/prefixes", auth.RequireAuth(http.HandlerFunc(rh.Create)))
	mux.Handle("DELETE /api/prefixes/{id}", auth.RequireAuth(http.HandlerFunc(rh.Delete)))

	// Orders
	mux.Handle("GET /api/orders", auth.RequireAuth(http.HandlerFunc(oh.List)))
	mux.Handle("POST /api/orders", auth.RequireAuth(http.HandlerFunc(oh.Create)))
	mux.Handle("GET /api/orders/{id}", auth.RequireAuth(http.HandlerFunc(oh.Get)))
	mux.Handle("POST /api/orders/{id}/pay", auth.RequireAuth(http.HandlerFunc(oh.MarkPaid)))
	mux.Handle("POST /api/orders/{id}/send", auth.RequireAuth(http.HandlerFunc(oh.MarkSent)))
	mux.Handle("DELETE /api/orders/{id}", auth.RequireAuth(http.HandlerFunc(oh.Delete)))

	return auth.Middleware(mux)
}
