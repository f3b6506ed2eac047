package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/avelaine/stocktrack/internal/auth"
	"github.com/avelaine/stocktrack/internal/httpx"
	"github.com/avelaine/stocktrack/internal/models"
	"github.com/avelaine/stocktrack/internal/services"
	"github.com/avelaine/stocktrack/internal/validation"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type ProductHandler struct {
	DB *gorm.DB
}

func NewProductHandler(db *gorm.DB) *ProductHandler { return &ProductHandler{DB: db} }

type componentReq struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

type productReq struct {
	SKU          string          `json:"sku"`
	Name         string          `json:"name"`
	PriceTaxFree decimal.Decimal `json:"price_tax_free"`
	VATPercent   decimal.Decimal `json:"vat_percent"`
	Kind         string          `json:"kind"`
	Quantity     int             `json:"quantity"`
	Components   []componentReq  `json:"components"`
}

func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	pageSize := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			pageSize = n
		}
	}
	offset := 0
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 1 {
			offset = (n - 1) * pageSize
		}
	}
	query := strings.TrimSpace(r.URL.Query().Get("q"))
	dbq := h.DB.Where("user_id = ?", uid)
	if r.URL.Query().Get("archived") != "1" {
		dbq = dbq.Where("archived_at IS NULL")
	}
	if query != "" {
		// Very basic safe pattern: allow alnum, dash, space; strip others
		safe := regexp.MustCompile(`[^a-zA-Z0-9 \-_]`).ReplaceAllString(query, "")
		like := "%" + strings.ToLower(safe) + "%"
		dbq = dbq.Where("lower(name) LIKE ? OR lower(sku) LIKE ?", like, like)
	}
	var total int64
	if err := dbq.Model(&models.Product{}).Count(&total).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_products", nil)
		return
	}
	var products []models.Product
	if err := dbq.Preload("Components").Order("id desc").Limit(pageSize).Offset(offset).Find(&products).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_products", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": products, "total": total, "limit": pageSize, "offset": offset})
}

func (h *ProductHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var in productReq
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if in.Kind == "" {
		in.Kind = string(models.ProductKindSimple)
	}
	v := validation.Violations{}
	validation.Required("sku", in.SKU, v)
	validation.Required("name", in.Name, v)
	if in.PriceTaxFree.LessThan(decimal.Zero) {
		v["price_tax_free"] = "must_not_be_negative"
	}
	if in.VATPercent.LessThan(decimal.Zero) || in.VATPercent.GreaterThan(decimal.NewFromInt(100)) {
		v["vat_percent"] = "out_of_range"
	}
	if in.Quantity < 0 {
		v["quantity"] = "must_not_be_negative"
	}
	if in.Kind != string(models.ProductKindSimple) && in.Kind != string(models.ProductKindBundle) {
		v["kind"] = "must_be_simple_or_bundle"
	}
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}

	p := models.Product{
		UserID:       uid,
		SKU:          strings.ToUpper(strings.TrimSpace(in.SKU)),
		Name:         in.Name,
		PriceTaxFree: in.PriceTaxFree,
		VATPercent:   in.VATPercent,
		Kind:         models.ProductKind(in.Kind),
		Quantity:     in.Quantity,
	}
	if p.IsBundle() {
		// Bundles track no stock of their own.
		p.Quantity = 0
	}
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if p.IsBundle() {
			comps := make([]services.BundleComponentInput, 0, len(in.Components))
			for _, c := range in.Components {
				comps = append(comps, services.BundleComponentInput{ProductID: c.ProductID, Quantity: c.Quantity})
			}
			if err := services.ValidateBundleComposition(tx, uid, 0, comps); err != nil {
				return err
			}
		}
		if err := tx.Create(&p).Error; err != nil {
			return err
		}
		for _, c := range in.Components {
			if !p.IsBundle() {
				break
			}
			if err := tx.Create(&models.BundleItem{BundleID: p.ID, ComponentID: c.ProductID, Quantity: c.Quantity}).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			httpx.JSONError(w, http.StatusConflict, "sku_already_exists", nil)
			return
		}
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, p)
}

// Update allows editing name, price, vat_percent, quantity, and (for
// bundles) the component list; sku immutable for simplicity.
func (h *ProductHandler) Update(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	p, ok := h.ownedProduct(w, r, uid)
	if !ok {
		return
	}
	var body struct {
		Name         *string          `json:"name"`
		PriceTaxFree *decimal.Decimal `json:"price_tax_free"`
		VATPercent   *decimal.Decimal `json:"vat_percent"`
		Quantity     *int             `json:"quantity"`
		Components   *[]componentReq  `json:"components"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	if body.Name != nil {
		p.Name = *body.Name
	}
	if body.PriceTaxFree != nil {
		if body.PriceTaxFree.LessThan(decimal.Zero) {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validation.Violations{"price_tax_free": "must_not_be_negative"})
			return
		}
		p.PriceTaxFree = *body.PriceTaxFree
	}
	if body.VATPercent != nil {
		if body.VATPercent.LessThan(decimal.Zero) || body.VATPercent.GreaterThan(decimal.NewFromInt(100)) {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validation.Violations{"vat_percent": "out_of_range"})
			return
		}
		p.VATPercent = *body.VATPercent
	}
	if body.Quantity != nil && !p.IsBundle() {
		if *body.Quantity < 0 {
			httpx.JSONError(w, http.StatusBadRequest, "validation_failed", validation.Violations{"quantity": "must_not_be_negative"})
			return
		}
		p.Quantity = *body.Quantity
	}
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		if body.Components != nil && p.IsBundle() {
			comps := make([]services.BundleComponentInput, 0, len(*body.Components))
			for _, c := range *body.Components {
				comps = append(comps, services.BundleComponentInput{ProductID: c.ProductID, Quantity: c.Quantity})
			}
			if err := services.ValidateBundleComposition(tx, uid, p.ID, comps); err != nil {
				return err
			}
			if err := tx.Where("bundle_id = ?", p.ID).Delete(&models.BundleItem{}).Error; err != nil {
				return err
			}
			replaced := make([]models.BundleItem, 0, len(comps))
			for _, c := range comps {
				item := models.BundleItem{BundleID: p.ID, ComponentID: c.ProductID, Quantity: c.Quantity}
				if err := tx.Create(&item).Error; err != nil {
					return err
				}
				replaced = append(replaced, item)
			}
			p.Components = replaced
		}
		// Saving the association too would re-upsert the preloaded rows and
		// undo the replacement above.
		return tx.Omit("Components").Save(&p).Error
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, p)
}

// Archive takes a product off the orderable catalog without breaking the
// price snapshots of past orders.
func (h *ProductHandler) Archive(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	p, ok := h.ownedProduct(w, r, uid)
	if !ok {
		return
	}
	if !p.IsArchived() {
		now := time.Now()
		if err := h.DB.Model(&p).Update("archived_at", &now).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "archive_failed", nil)
			return
		}
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *ProductHandler) Unarchive(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	p, ok := h.ownedProduct(w, r, uid)
	if !ok {
		return
	}
	if p.IsArchived() {
		if err := h.DB.Model(&p).Update("archived_at", nil).Error; err != nil {
			httpx.JSONError(w, http.StatusInternalServerError, "unarchive_failed", nil)
			return
		}
		p.ArchivedAt = nil
	}
	httpx.JSON(w, http.StatusOK, p)
}

func (h *ProductHandler) ownedProduct(w http.ResponseWriter, r *http.Request, uid uint) (models.Product, bool) {
	id, _ := strconv.Atoi(r.PathValue("id"))
	if id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return models.Product{}, false
	}
	var p models.Product
	if err := h.DB.Preload("Components").Where("id = ? AND user_id = ?", id, uid).First(&p).Error; err != nil {
		httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		return models.Product{}, false
	}
	return p, true
}
