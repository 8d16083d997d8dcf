package catalog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shophub/storefront/internal/domain"
)

type mockFetcher struct {
	m        sync.Mutex
	products []domain.Product
	err      error
	calls    int
	delay    time.Duration
}

func (f *mockFetcher) FetchProducts(context.Context) ([]domain.Product, error) {
	time.Sleep(f.delay)
	f.m.Lock()
	defer f.m.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.products, nil
}

func (f *mockFetcher) callCount() int {
	f.m.Lock()
	defer f.m.Unlock()
	return f.calls
}

type mockCache struct {
	m        sync.RWMutex
	products []domain.Product
	err      error
}

func (c *mockCache) Get(context.Context) ([]domain.Product, error) {
	c.m.RLock()
	defer c.m.RUnlock()
	if c.err != nil {
		return nil, c.err
	}
	if c.products == nil {
		return nil, ErrCacheMiss
	}
	return c.products, nil
}

func (c *mockCache) Set(_ context.Context, products []domain.Product) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.products = products
	return nil
}

func (c *mockCache) Delete(context.Context) error {
	c.m.Lock()
	defer c.m.Unlock()
	c.products = nil
	return nil
}

func (c *mockCache) cached() []domain.Product {
	c.m.RLock()
	defer c.m.RUnlock()
	return c.products
}

type mockSnapshots struct {
	m        sync.RWMutex
	products []domain.Product
	err      error
}

func (s *mockSnapshots) SaveSnapshot(_ context.Context, products []domain.Product) error {
	s.m.Lock()
	defer s.m.Unlock()
	s.products = products
	return nil
}

func (s *mockSnapshots) LoadSnapshot(context.Context) ([]domain.Product, error) {
	s.m.RLock()
	defer s.m.RUnlock()
	if s.err != nil {
		return nil, s.err
	}
	if s.products == nil {
		return nil, ErrSnapshotEmpty
	}
	return s.products, nil
}

func (s *mockSnapshots) saved() []domain.Product {
	s.m.RLock()
	defer s.m.RUnlock()
	return s.products
}

func TestProducts_CacheMissFetchesAndRemembers(t *testing.T) {
	fetcher := &mockFetcher{products: testProducts()}
	cache := &mockCache{}
	snapshots := &mockSnapshots{}

	sut := NewService(fetcher, cache, snapshots, zap.NewNop())
	products, err := sut.Products(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 2)
	assert.Equal(t, 1, fetcher.callCount())

	require.Eventually(t, func() bool {
		return cache.cached() != nil && snapshots.saved() != nil
	}, 100*time.Millisecond, 10*time.Millisecond, "catalog was not remembered")
}

func TestProducts_CacheHit(t *testing.T) {
	fetcher := &mockFetcher{err: errors.New("fetcher should not be called")}
	cache := &mockCache{products: testProducts()[:1]}

	sut := NewService(fetcher, cache, &mockSnapshots{}, zap.NewNop())
	products, err := sut.Products(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 1)
	assert.Equal(t, 0, fetcher.callCount())
}

func TestProducts_CacheErrorStillFetches(t *testing.T) {
	fetcher := &mockFetcher{products: testProducts()}
	cache := &mockCache{err: errors.New("redis down")}

	sut := NewService(fetcher, cache, &mockSnapshots{}, zap.NewNop())
	products, err := sut.Products(context.Background())
	require.NoError(t, err)
	assert.Len(t, products, 2)
}

func TestProducts_UpstreamDownServesSnapshot(t *testing.T) {
	fetcher := &mockFetcher{err: fmt.Errorf("%w: status 503", ErrUpstream)}
	snapshots := &mockSnapshots{products: testProducts()[1:]}

	sut := NewService(fetcher, &mockCache{}, snapshots, zap.NewNop())
	products, err := sut.Products(context.Background())
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, domain.ProductID("2"), products[0].ID)
}

func TestProducts_UpstreamDownNoSnapshot(t *testing.T) {
	fetcher := &mockFetcher{err: fmt.Errorf("%w: status 503", ErrUpstream)}

	sut := NewService(fetcher, &mockCache{}, &mockSnapshots{}, zap.NewNop())
	products, err := sut.Products(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
	assert.Nil(t, products)
}

func TestProducts_SnapshotErrorReturnsUpstreamError(t *testing.T) {
	fetcher := &mockFetcher{err: fmt.Errorf("%w: status 503", ErrUpstream)}
	snapshots := &mockSnapshots{err: errors.New("disk on fire")}

	sut := NewService(fetcher, &mockCache{}, snapshots, zap.NewNop())
	_, err := sut.Products(context.Background())
	require.ErrorIs(t, err, ErrUpstream)
}

func TestProducts_ConcurrentMissesFetchOnce(t *testing.T) {
	fetcher := &mockFetcher{products: testProducts(), delay: 50 * time.Millisecond}

	sut := NewService(fetcher, &mockCache{}, &mockSnapshots{}, zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := sut.Products(context.Background())
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Less(t, fetcher.callCount(), 10)
}

type gatedFetcher struct {
	products []domain.Product
	started  chan struct{}
	release  chan struct{}
	once     sync.Once
}

func newGatedFetcher(products []domain.Product) *gatedFetcher {
	return &gatedFetcher{
		products: products,
		started:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (f *gatedFetcher) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	f.once.Do(func() { close(f.started) })
	select {
	case <-f.release:
		return f.products, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestProducts_CanceledCallerDoesNotFailOthers(t *testing.T) {
	fetcher := newGatedFetcher(testProducts())
	sut := NewService(fetcher, &mockCache{}, &mockSnapshots{}, zap.NewNop())

	ctxA, cancelA := context.WithCancel(context.Background())
	errA := make(chan error, 1)
	go func() {
		_, err := sut.Products(ctxA)
		errA <- err
	}()
	<-fetcher.started

	type result struct {
		products []domain.Product
		err      error
	}
	resB := make(chan result, 1)
	go func() {
		products, err := sut.Products(context.Background())
		resB <- result{products, err}
	}()
	time.Sleep(20 * time.Millisecond) // let the second caller join the load

	cancelA()
	require.ErrorIs(t, <-errA, context.Canceled)

	close(fetcher.release)
	select {
	case r := <-resB:
		require.NoError(t, r.err)
		assert.Len(t, r.products, 2)
	case <-time.After(time.Second):
		t.Fatal("second caller never returned")
	}
}

func TestProducts_CallerDeadlineStopsWaiting(t *testing.T) {
	fetcher := newGatedFetcher(testProducts())
	defer close(fetcher.release)
	sut := NewService(fetcher, &mockCache{}, &mockSnapshots{}, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := sut.Products(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestProduct_Found(t *testing.T) {
	sut := NewService(&mockFetcher{products: testProducts()}, &mockCache{}, &mockSnapshots{}, zap.NewNop())

	p, err := sut.Product(context.Background(), "2")
	require.NoError(t, err)
	assert.Equal(t, "T-Shirt", p.Title)
}

func TestProduct_NotFound(t *testing.T) {
	sut := NewService(&mockFetcher{products: testProducts()}, &mockCache{}, &mockSnapshots{}, zap.NewNop())

	_, err := sut.Product(context.Background(), "404")
	require.ErrorIs(t, err, ErrProductNotFound)
}

func TestRefresh_DropsCache(t *testing.T) {
	cache := &mockCache{products: testProducts()}
	sut := NewService(&mockFetcher{}, cache, &mockSnapshots{}, zap.NewNop())

	require.NoError(t, sut.Refresh(context.Background()))
	assert.Nil(t, cache.cached())
}
