package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/shophub/storefront/internal/domain"
)

var ErrProductNotFound = errors.New("product not found")

// Fetcher loads the catalog from its source of truth.
type Fetcher interface {
	FetchProducts(ctx context.Context) ([]domain.Product, error)
}

// SnapshotStore persists the last good catalog.
type SnapshotStore interface {
	SaveSnapshot(ctx context.Context, products []domain.Product) error
	LoadSnapshot(ctx context.Context) ([]domain.Product, error)
}

type Service struct {
	fetcher   Fetcher
	cache     Cache
	snapshots SnapshotStore
	logger    *zap.Logger
	sfg       singleflight.Group // Prevents cache stampede
}

func NewService(fetcher Fetcher, cache Cache, snapshots SnapshotStore, logger *zap.Logger) *Service {
	return &Service{
		fetcher:   fetcher,
		cache:     cache,
		snapshots: snapshots,
		logger:    logger,
	}
}

// loadTimeout bounds a shared catalog load.
const loadTimeout = 15 * time.Second

// Products returns the catalog. The cache is consulted first, then the
// upstream; when the upstream fails the stored snapshot is served instead.
// Concurrent callers share one load, and each caller stops waiting when its
// own ctx is done.
func (s *Service) Products(ctx context.Context) ([]domain.Product, error) {
	ch := s.sfg.DoChan(cacheKey, func() (interface{}, error) {
		// detached: the load outlives the caller that started it
		loadCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), loadTimeout)
		defer cancel()
		return s.load(loadCtx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]domain.Product), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Service) load(ctx context.Context) ([]domain.Product, error) {
	products, err := s.cache.Get(ctx)
	if err == nil {
		return products, nil
	}
	if !errors.Is(err, ErrCacheMiss) {
		s.logger.Warn("catalog cache get failed", zap.Error(err))
	}

	products, errFetch := s.fetcher.FetchProducts(ctx)
	if errFetch != nil {
		return s.fallback(ctx, errFetch)
	}

	go s.remember(products)
	return products, nil
}

// Product looks a single product up in the catalog.
func (s *Service) Product(ctx context.Context, id domain.ProductID) (domain.Product, error) {
	products, err := s.Products(ctx)
	if err != nil {
		return domain.Product{}, err
	}
	for _, p := range products {
		if p.ID == id {
			return p, nil
		}
	}
	return domain.Product{}, fmt.Errorf("%w: %s", ErrProductNotFound, id)
}

// Refresh drops the cached catalog so the next read goes upstream.
func (s *Service) Refresh(ctx context.Context) error {
	return s.cache.Delete(ctx)
}

func (s *Service) fallback(ctx context.Context, cause error) ([]domain.Product, error) {
	s.logger.Warn("catalog fetch failed, trying snapshot", zap.Error(cause))

	products, err := s.snapshots.LoadSnapshot(ctx)
	if err != nil {
		if !errors.Is(err, ErrSnapshotEmpty) {
			s.logger.Error("catalog snapshot load failed", zap.Error(err))
		}
		return nil, cause
	}
	return products, nil
}

func (s *Service) remember(products []domain.Product) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.cache.Set(ctx, products); err != nil {
		s.logger.Warn("catalog cache set failed", zap.Error(err))
	}
	if err := s.snapshots.SaveSnapshot(ctx, products); err != nil {
		s.logger.Warn("catalog snapshot save failed", zap.Error(err))
	}
}
