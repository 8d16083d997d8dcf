package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/shophub/storefront/internal/catalog"
	"github.com/shophub/storefront/internal/domain"
)

// Catalog is what the handlers need from the product catalog.
type Catalog interface {
	Products(ctx context.Context) ([]domain.Product, error)
	Product(ctx context.Context, id domain.ProductID) (domain.Product, error)
	Refresh(ctx context.Context) error
}

type ProductHandler struct {
	catalog Catalog
	timeout time.Duration
	logger  *zap.Logger
}

func NewProductHandler(catalog Catalog, timeout time.Duration, logger *zap.Logger) *ProductHandler {
	return &ProductHandler{
		catalog: catalog,
		timeout: timeout,
		logger:  logger,
	}
}

type ProductsResponse struct {
	Products []domain.Product `json:"products"`
	Count    int              `json:"count"`
}

// List returns the catalog. With ?refresh=true the cached copy is dropped
// first, which is how clients retry after a failed load.
func (h *ProductHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	if r.URL.Query().Get("refresh") == "true" {
		if err := h.catalog.Refresh(ctx); err != nil {
			h.logger.Warn("failed to drop cached catalog", zap.Error(err))
		}
	}

	products, err := h.catalog.Products(ctx)
	if err != nil {
		h.logger.Error("failed to load products", zap.Error(err))
		respondCatalogError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, &ProductsResponse{Products: products, Count: len(products)})
}

func respondCatalogError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, catalog.ErrProductNotFound):
		respondError(w, http.StatusNotFound, "product_not_found", "product not found")
	case errors.Is(err, context.DeadlineExceeded):
		w.Header().Set("Retry-After", "5")
		respondErrorDetails(w, http.StatusGatewayTimeout, "timeout",
			"timed out loading products", "please try again")
	default:
		w.Header().Set("Retry-After", "5")
		respondErrorDetails(w, http.StatusServiceUnavailable, "catalog_unavailable",
			"failed to load products", "please check your connection and try again")
	}
}
