package catalog

import (
	"context"
	"errors"

	"github.com/shophub/storefront/internal/domain"
)

// Cache holds the most recently fetched catalog.
type Cache interface {
	Get(ctx context.Context) ([]domain.Product, error)
	Set(ctx context.Context, products []domain.Product) error
	Delete(ctx context.Context) error
}

var ErrCacheMiss = errors.New("cache miss")

// NopCache is used when no cache backend is configured. Every Get misses.
type NopCache struct{}

func (NopCache) Get(context.Context) ([]domain.Product, error) { return nil, ErrCacheMiss }
func (NopCache) Set(context.Context, []domain.Product) error { return nil }
func (NopCache) Delete(context.Context) error { return nil }
