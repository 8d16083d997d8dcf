package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/shophub/storefront/internal/domain"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

var ErrSnapshotEmpty = errors.New("no catalog snapshot stored")

// Repository keeps the last catalog that was fetched successfully so the
// storefront can keep serving products while the upstream is down.
type Repository struct {
	db *sql.DB
}

func NewRepository(dbPath string) (*Repository, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations() error {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open migrations: %w", err)
	}

	driver, err := sqlite.WithInstance(r.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", err)
	}

	return nil
}

// SaveSnapshot replaces the stored catalog with products. When an id repeats,
// the first occurrence is kept.
func (r *Repository) SaveSnapshot(ctx context.Context, products []domain.Product) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM products`); err != nil {
		return fmt.Errorf("failed to clear products: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO products (id, position, title, price, description, category, image, rating_rate, rating_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, p := range products {
		_, err := stmt.ExecContext(ctx,
			string(p.ID), i, p.Title, p.Price.String(), p.Description,
			p.Category, p.Image, p.Rating.Rate, p.Rating.Count,
		)
		if err != nil {
			return fmt.Errorf("failed to insert product %s: %w", p.ID, err)
		}
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO catalog_snapshots (id, taken_at) VALUES (1, ?)
		ON CONFLICT(id) DO UPDATE SET taken_at = excluded.taken_at
	`, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to record snapshot: %w", err)
	}

	return tx.Commit()
}

// LoadSnapshot returns the stored catalog in its original order, or
// ErrSnapshotEmpty when no catalog was ever saved.
func (r *Repository) LoadSnapshot(ctx context.Context) ([]domain.Product, error) {
	var exists int
	err := r.db.QueryRowContext(ctx, `SELECT 1 FROM catalog_snapshots WHERE id = 1`).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSnapshotEmpty
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, title, price, description, category, image, rating_rate, rating_count
		FROM products
		ORDER BY position
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query products: %w", err)
	}
	defer rows.Close()

	products := []domain.Product{}
	for rows.Next() {
		var (
			p     domain.Product
			id    string
			price string
		)
		err := rows.Scan(&id, &p.Title, &price, &p.Description, &p.Category, &p.Image, &p.Rating.Rate, &p.Rating.Count)
		if err != nil {
			return nil, fmt.Errorf("failed to scan product: %w", err)
		}
		p.ID = domain.ProductID(id)
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("failed to parse price of product %s: %w", id, err)
		}
		products = append(products, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return products, nil
}

func (r *Repository) Close() error {
	return r.db.Close()
}
