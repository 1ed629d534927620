package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"shop-cart/internal/domain"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrCartNotFound      = errors.New("cart not found")
	ErrCartAlreadyExists = errors.New("cart already exists for this identity")
)

const uniqueViolation = "23505"

// CartRepository stores one cart document per customer or guest session.
type CartRepository interface {
	FindByCustomer(ctx context.Context, customerID string) (*domain.Cart, error)
	FindBySession(ctx context.Context, sessionID string) (*domain.Cart, error)
	Save(ctx context.Context, cart *domain.Cart) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type cartRepository struct {
	db DBPool
}

// NewCartRepository creates a new instance of CartRepository
func NewCartRepository(db DBPool) CartRepository {
	return &cartRepository{db: db}
}

const selectCart = `
		SELECT id, COALESCE(customer_id, ''), COALESCE(session_id, ''), items, created_at, updated_at
		FROM carts
	`

// FindByCustomer retrieves the cart of an authenticated customer
func (r *cartRepository) FindByCustomer(ctx context.Context, customerID string) (*domain.Cart, error) {
	return r.findOne(ctx, selectCart+`WHERE customer_id = $1`, customerID)
}

// FindBySession retrieves the cart of a guest session
func (r *cartRepository) FindBySession(ctx context.Context, sessionID string) (*domain.Cart, error) {
	return r.findOne(ctx, selectCart+`WHERE session_id = $1`, sessionID)
}

func (r *cartRepository) findOne(ctx context.Context, query string, key string) (*domain.Cart, error) {
	cart := &domain.Cart{}
	var items []byte

	err := r.db.QueryRow(ctx, query, key).Scan(
		&cart.ID,
		&cart.CustomerID,
		&cart.SessionID,
		&items,
		&cart.CreatedAt,
		&cart.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrCartNotFound
		}
		return nil, fmt.Errorf("failed to find cart: %w", err)
	}

	if err := json.Unmarshal(items, &cart.Items); err != nil {
		return nil, fmt.Errorf("failed to decode cart items: %w", err)
	}
	if cart.Items == nil {
		cart.Items = []domain.LineItem{}
	}

	cart.MarkPersisted()
	return cart, nil
}

// Save writes the whole cart document, inserting it on first save. The
// identity columns are never rewritten once the row exists.
func (r *cartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	query := `
		INSERT INTO carts (id, customer_id, session_id, items, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE
		SET items = EXCLUDED.items, updated_at = EXCLUDED.updated_at
	`

	items, err := json.Marshal(cart.ItemsOrEmpty())
	if err != nil {
		return fmt.Errorf("failed to encode cart items: %w", err)
	}

	_, err = r.db.Exec(
		ctx,
		query,
		cart.ID,
		nullIfEmpty(cart.CustomerID),
		nullIfEmpty(cart.SessionID),
		items,
		cart.CreatedAt,
		cart.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			return ErrCartAlreadyExists
		}
		return fmt.Errorf("failed to save cart: %w", err)
	}

	cart.MarkPersisted()
	return nil
}

// Delete removes the cart document entirely
func (r *cartRepository) Delete(ctx context.Context, id uuid.UUID) error {
	result, err := r.db.Exec(ctx, `DELETE FROM carts WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete cart: %w", err)
	}

	if result.RowsAffected() == 0 {
		return ErrCartNotFound
	}

	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
