package http

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/shophub/storefront/internal/cart"
	"github.com/shophub/storefront/internal/domain"
)

// Carts hands out the cart of a session.
type Carts interface {
	Cart(sessionID string) *cart.Cart
}

type CartHandler struct {
	carts   Carts
	catalog Catalog
	timeout time.Duration
	logger  *zap.Logger
}

func NewCartHandler(carts Carts, catalog Catalog, timeout time.Duration, logger *zap.Logger) *CartHandler {
	return &CartHandler{
		carts:   carts,
		catalog: catalog,
		timeout: timeout,
		logger:  logger,
	}
}

type AddItemRequestDTO struct {
	ProductID domain.ProductID `json:"product_id"`
}

type UpdateQuantityRequestDTO struct {
	Quantity json.Number `json:"quantity"`
}

func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.sessionCart(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, c.State())
}

func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.sessionCart(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	product, err := h.catalog.Product(ctx, req.ProductID)
	if err != nil {
		h.logger.Warn("product lookup failed", zap.String("product_id", string(req.ProductID)), zap.Error(err))
		respondCatalogError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, c.AddToCart(product))
}

func (h *CartHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	c, ok := h.sessionCart(w, r)
	if !ok {
		return
	}

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	quantity, ok := parseQuantity(req.Quantity)
	if !ok {
		respondError(w, http.StatusBadRequest, "invalid_quantity",
			fmt.Sprintf("quantity must be a whole number no greater than %d", cart.MaxQuantity))
		return
	}

	respondJSON(w, http.StatusOK, c.UpdateQuantity(productID, quantity))
}

func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	c, ok := h.sessionCart(w, r)
	if !ok {
		return
	}

	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	respondJSON(w, http.StatusOK, c.RemoveFromCart(productID))
}

// ClearCart empties the cart. The caller has to confirm with ?confirm=true.
func (h *CartHandler) ClearCart(w http.ResponseWriter, r *http.Request) {
	c, ok := h.sessionCart(w, r)
	if !ok {
		return
	}

	if r.URL.Query().Get("confirm") != "true" {
		respondErrorDetails(w, http.StatusConflict, "confirmation_required",
			"clearing the cart must be confirmed", "repeat the request with ?confirm=true")
		return
	}

	respondJSON(w, http.StatusOK, c.ClearCart())
}

func (h *CartHandler) sessionCart(w http.ResponseWriter, r *http.Request) (*cart.Cart, bool) {
	sessionID := sessionFromContext(r.Context())
	if sessionID == "" {
		respondError(w, http.StatusUnauthorized, "missing_session", "missing shopper session")
		return nil, false
	}
	return h.carts.Cart(sessionID), true
}

func productIDParam(w http.ResponseWriter, r *http.Request) (domain.ProductID, bool) {
	productID := chi.URLParam(r, "product_id")
	if productID == "" {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id is required")
		return "", false
	}
	return domain.ProductID(productID), true
}

// parseQuantity accepts any value that is a whole number, including 2.0 and
// 1e2. Values of zero or less collapse to 0 since they remove the line, and
// fractional values are allowed there too. Positive values must not exceed
// cart.MaxQuantity.
func parseQuantity(n json.Number) (int, bool) {
	if n == "" {
		return 0, false
	}
	if i, err := n.Int64(); err == nil {
		if i <= 0 {
			return 0, true
		}
		if i > cart.MaxQuantity {
			return 0, false
		}
		return int(i), true
	}

	f, err := n.Float64()
	if err != nil {
		return 0, false
	}
	if f <= 0 {
		return 0, true
	}
	if f != math.Trunc(f) || f > cart.MaxQuantity {
		return 0, false
	}
	return int(f), true
}
