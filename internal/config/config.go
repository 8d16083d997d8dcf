package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

type Config struct {
	Env      string `env:"APP_ENV" envDefault:"dev"`
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort           string        `env:"HTTP_PORT" envDefault:"8080"`
	RequestTimeout     time.Duration `env:"REQUEST_TIMEOUT" envDefault:"30s"`
	ShutdownTimeout    time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	MaxRequestBodySize int64         `env:"MAX_REQUEST_BODY_SIZE" envDefault:"1048576"`

	CatalogURL      string        `env:"CATALOG_URL" envDefault:"https://fakestoreapi.com"`
	CatalogTimeout  time.Duration `env:"CATALOG_TIMEOUT" envDefault:"10s"`
	CatalogCacheTTL time.Duration `env:"CATALOG_CACHE_TTL" envDefault:"15m"`
	CatalogDBPath   string        `env:"CATALOG_DB_PATH" envDefault:"./catalog.db"`

	// Empty disables the Redis catalog cache.
	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`

	// Empty disables cart event publishing and the checkout poller.
	KafkaBrokers     []string `env:"KAFKA_BROKERS" envSeparator:","`
	CartEventsTopic  string   `env:"CART_EVENTS_TOPIC" envDefault:"cart-events"`
	CheckoutTopic    string   `env:"CHECKOUT_TOPIC" envDefault:"checkout-outbox"`
	CheckoutConsumer string   `env:"CHECKOUT_CONSUMER_GROUP" envDefault:"storefront-consumer"`

	SessionTTL time.Duration `env:"SESSION_TTL" envDefault:"2h"`
}

// Load reads the configuration from the environment.
func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
