package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/avelaine/stocktrack/internal/auth"
	"github.com/avelaine/stocktrack/internal/httpx"
	"github.com/avelaine/stocktrack/internal/models"
	"github.com/avelaine/stocktrack/internal/services"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// OrderHandler is the thin JSON caller of the order core.
type OrderHandler struct {
	Svc *services.OrderService
}

func NewOrderHandler(svc *services.OrderService) *OrderHandler { return &OrderHandler{Svc: svc} }

type orderItemReq struct {
	ProductID        uint                       `json:"product_id"`
	Quantity         int                        `json:"quantity"`
	UnitPriceTaxFree *decimal.Decimal           `json:"unit_price_tax_free,omitempty"`
	Modifications    []models.PriceModification `json:"modifications,omitempty"`
}

type createOrderReq struct {
	Items       []orderItemReq `json:"items"`
	Status      string         `json:"status"`
	Reference   string         `json:"reference"`
	PrefixID    uint           `json:"prefix_id"`
	Description string         `json:"description"`
}

func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var req createOrderReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	in := services.CreateOrderInput{
		Status:      models.OrderStatus(req.Status),
		Reference:   req.Reference,
		PrefixID:    req.PrefixID,
		Description: req.Description,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, services.OrderItemInput{
			ProductID:        it.ProductID,
			Quantity:         it.Quantity,
			UnitPriceTaxFree: it.UnitPriceTaxFree,
			Modifications:    it.Modifications,
		})
	}
	order, err := h.Svc.Create(r.Context(), uid, in)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *OrderHandler) MarkPaid(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.Svc.MarkPaid(r.Context(), uid, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *OrderHandler) MarkSent(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.Svc.MarkSent(r.Context(), uid, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	if err := h.Svc.Delete(r.Context(), uid, id); err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, ok := orderID(w, r)
	if !ok {
		return
	}
	order, err := h.Svc.Get(r.Context(), uid, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			offset = (n - 1) * limit
		}
	}
	status := models.OrderStatus(r.URL.Query().Get("status"))
	orders, total, err := h.Svc.List(r.Context(), uid, status, limit, offset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": orders, "total": total, "limit": limit, "offset": offset})
}

func orderID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return uuid.UUID{}, false
	}
	return id, true
}
