package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
}

func NewRouter(cfg RouterConfig, products *ProductHandler, carts *CartHandler, sessions *SessionHandler, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	r.Use(BodyLimitMiddleware(cfg.MaxRequestBodySize))

	r.Get("/health", Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", products.List)
		r.Delete("/session", sessions.End)

		r.Route("/cart", func(r chi.Router) {
			r.Use(SessionMiddleware)
			r.Get("/", carts.GetCart)
			r.Delete("/", carts.ClearCart)
			r.Post("/items", carts.AddItem)
			r.Put("/items/{product_id}", carts.UpdateQuantity)
			r.Delete("/items/{product_id}", carts.RemoveItem)
		})
	})

	return r
}
