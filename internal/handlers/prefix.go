package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/avelaine/stocktrack/internal/auth"
	"github.com/avelaine/stocktrack/internal/httpx"
	"github.com/avelaine/stocktrack/internal/models"
	"github.com/avelaine/stocktrack/internal/validation"
	"gorm.io/gorm"
)

type PrefixHandler struct {
	DB *gorm.DB
}

func NewPrefixHandler(db *gorm.DB) *PrefixHandler { return &PrefixHandler{DB: db} }

func (h *PrefixHandler) List(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var prefixes []models.OrderReferencePrefix
	if err := h.DB.Where("user_id = ?", uid).Order("id asc").Find(&prefixes).Error; err != nil {
		httpx.JSONError(w, http.StatusInternalServerError, "failed_to_list_prefixes", nil)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": prefixes})
}

func (h *PrefixHandler) Create(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	var in struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_json", nil)
		return
	}
	token := strings.ToUpper(strings.TrimSpace(in.Token))
	v := validation.Violations{}
	validation.Required("token", token, v)
	validation.MaxLen("token", token, 20, v)
	validation.Alphanumeric("token", token, v)
	if !v.Empty() {
		httpx.JSONError(w, http.StatusBadRequest, "validation_failed", v)
		return
	}
	prefix := models.OrderReferencePrefix{UserID: uid, Token: token}
	if err := h.DB.Create(&prefix).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			httpx.JSONError(w, http.StatusConflict, "token_already_exists", nil)
			return
		}
		httpx.JSONError(w, http.StatusInternalServerError, "prefix_create_failed", nil)
		return
	}
	httpx.JSON(w, http.StatusCreated, prefix)
}

// Delete refuses to remove a user's last prefix: reference generation must
// always have a prefix to work with.
func (h *PrefixHandler) Delete(w http.ResponseWriter, r *http.Request) {
	uid, _ := auth.UserIDFromContext(r.Context())
	id, _ := strconv.Atoi(r.PathValue("id"))
	if id <= 0 {
		httpx.JSONError(w, http.StatusBadRequest, "invalid_id", nil)
		return
	}
	err := h.DB.Transaction(func(tx *gorm.DB) error {
		var prefix models.OrderReferencePrefix
		if err := tx.Where("id = ? AND user_id = ?", id, uid).First(&prefix).Error; err != nil {
			return err
		}
		var count int64
		if err := tx.Model(&models.OrderReferencePrefix{}).Where("user_id = ?", uid).Count(&count).Error; err != nil {
			return err
		}
		if count <= 1 {
			return errLastPrefix
		}
		return tx.Delete(&prefix).Error
	})
	if err != nil {
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			httpx.JSONError(w, http.StatusNotFound, "not_found", nil)
		case errors.Is(err, errLastPrefix):
			httpx.JSONError(w, http.StatusConflict, "cannot_delete_last_prefix", nil)
		default:
			httpx.JSONError(w, http.StatusInternalServerError, "prefix_delete_failed", nil)
		}
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"deleted": id})
}

var errLastPrefix = errors.New("last prefix cannot be deleted")
