package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/shophub/storefront/internal/domain"
)

var ErrUpstream = errors.New("catalog upstream failed")

// Client fetches the product list from the remote catalog API.
type Client struct {
	baseURL string
	http    *http.Client
	breaker *gobreaker.CircuitBreaker[[]domain.Product]
	logger  *zap.Logger
}

func NewClient(baseURL string, timeout time.Duration, logger *zap.Logger) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		logger: logger,
	}

	c.breaker = gobreaker.NewCircuitBreaker[[]domain.Product](gobreaker.Settings{
		Name:        "catalog",
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 3
		},
		IsSuccessful: func(err error) bool {
			// caller cancellations say nothing about upstream health
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
	})
	return c
}

// FetchProducts returns the full upstream catalog.
func (c *Client) FetchProducts(ctx context.Context) ([]domain.Product, error) {
	products, err := c.breaker.Execute(func() ([]domain.Product, error) {
		return c.fetch(ctx)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUpstream, err)
	}
	return products, err
}

func (c *Client) fetch(ctx context.Context) ([]domain.Product, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/products", nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
	}

	var products []domain.Product
	if err := json.NewDecoder(resp.Body).Decode(&products); err != nil {
		return nil, fmt.Errorf("%w: decode products: %v", ErrUpstream, err)
	}
	products = c.sanitize(products)

	c.logger.Debug("catalog fetched", zap.Int("count", len(products)))
	return products, nil
}

// sanitize drops products a cart cannot hold: negative prices and repeated
// ids. The first occurrence of an id wins.
func (c *Client) sanitize(products []domain.Product) []domain.Product {
	seen := make(map[domain.ProductID]bool, len(products))
	valid := make([]domain.Product, 0, len(products))
	for _, p := range products {
		switch {
		case p.Price.IsNegative():
			c.logger.Warn("skipping product with negative price",
				zap.String("product_id", string(p.ID)),
				zap.String("price", p.Price.String()))
		case seen[p.ID]:
			c.logger.Warn("skipping duplicate product", zap.String("product_id", string(p.ID)))
		default:
			seen[p.ID] = true
			valid = append(valid, p)
		}
	}
	return valid
}
