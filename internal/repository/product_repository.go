package repository

import (
	"context"
	"errors"
	"fmt"

	"shop-cart/internal/domain"

	"github.com/jackc/pgx/v5"
)

var (
	ErrProductNotFound = errors.New("product not found")
)

// ProductRepository is the read side of the catalog that the cart depends on.
type ProductRepository interface {
	Create(ctx context.Context, product *domain.Product) error
	FindByID(ctx context.Context, id string) (*domain.Product, error)
}

type productRepository struct {
	db DBPool
}

// NewProductRepository creates a new instance of ProductRepository
func NewProductRepository(db DBPool) ProductRepository {
	return &productRepository{db: db}
}

// Create inserts a catalog product. The catalog service owns this table; the
// cart service only writes to it when seeding local and test databases.
func (r *productRepository) Create(ctx context.Context, product *domain.Product) error {
	query := `
		INSERT INTO products (id, name, description, price, images, stock, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	images := product.Images
	if images == nil {
		images = []string{}
	}

	_, err := r.db.Exec(
		ctx,
		query,
		product.ID,
		product.Name,
		product.Description,
		product.Price,
		images,
		product.Stock,
		product.CreatedAt,
		product.UpdatedAt,
	)

	if err != nil {
		return fmt.Errorf("failed to create product: %w", err)
	}

	return nil
}

// FindByID returns the current catalog snapshot of a product
func (r *productRepository) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	query := `
		SELECT id, name, description, price, images, stock, created_at, updated_at
		FROM products
		WHERE id = $1
	`

	product := &domain.Product{}
	err := r.db.QueryRow(ctx, query, id).Scan(
		&product.ID,
		&product.Name,
		&product.Description,
		&product.Price,
		&product.Images,
		&product.Stock,
		&product.CreatedAt,
		&product.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrProductNotFound
		}
		return nil, fmt.Errorf("failed to find product by ID: %w", err)
	}

	return product, nil
}
