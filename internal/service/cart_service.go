package service

import (
	"context"
	"errors"

	"shop-cart/internal/domain"
	"shop-cart/internal/events"
	"shop-cart/internal/repository"

	"go.uber.org/zap"
)

// ProductCatalog returns the current catalog snapshot of a product.
type ProductCatalog interface {
	FindByID(ctx context.Context, id string) (*domain.Product, error)
}

// AddInput is an add-to-cart request after identity resolution.
type AddInput struct {
	Identity domain.Identity
	// GuestSessionID is a guest session presented alongside a customer
	// identity. When set, the guest cart is merged before the add.
	GuestSessionID string
	ProductID      string
	Quantity       int
}

// CartService defines the cart operations exposed to the HTTP layer
type CartService interface {
	Add(ctx context.Context, in AddInput) ([]domain.LineItem, error)
	List(ctx context.Context, identity domain.Identity) ([]domain.LineItem, error)
	UpdateQuantity(ctx context.Context, identity domain.Identity, productID string, quantity int) ([]domain.LineItem, error)
	Remove(ctx context.Context, identity domain.Identity, productID string) ([]domain.LineItem, error)
	MergeGuestCart(ctx context.Context, customerID, sessionID string) (*domain.Cart, error)
}

type cartService struct {
	carts     repository.CartRepository
	catalog   ProductCatalog
	publisher events.Publisher
	logger    *zap.Logger
}

// NewCartService creates a new instance of CartService
func NewCartService(
	carts repository.CartRepository,
	catalog ProductCatalog,
	publisher events.Publisher,
	logger *zap.Logger,
) CartService {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}
	return &cartService{
		carts:     carts,
		catalog:   catalog,
		publisher: publisher,
		logger:    logger,
	}
}

// Add puts quantity units of a product in the caller's cart, merging a
// presented guest cart into the customer cart first.
func (s *cartService) Add(ctx context.Context, in AddInput) ([]domain.LineItem, error) {
	if err := domain.ValidateQuantity(in.Quantity); err != nil {
		return nil, err
	}
	if in.Identity.IsZero() {
		return nil, domain.ErrIdentityRequired
	}

	var cart *domain.Cart
	if in.Identity.IsCustomer() && in.GuestSessionID != "" {
		merged, err := s.MergeGuestCart(ctx, in.Identity.CustomerID, in.GuestSessionID)
		if err != nil {
			return nil, err
		}
		cart = merged
	}

	if cart == nil {
		loaded, err := s.loadOrCreate(ctx, in.Identity)
		if err != nil {
			return nil, err
		}
		cart = loaded
	}

	product, err := s.product(ctx, in.ProductID)
	if err != nil {
		return nil, err
	}

	work := cart.Clone()
	if err := work.AddItem(product, in.Quantity); err != nil {
		return nil, err
	}

	if err := s.carts.Save(ctx, work); err != nil {
		return nil, domain.Internal("Failed to save cart", err)
	}

	return work.ItemsOrEmpty(), nil
}

// List returns the caller's lines, or an empty list when no cart exists.
func (s *cartService) List(ctx context.Context, identity domain.Identity) ([]domain.LineItem, error) {
	if identity.IsZero() {
		return []domain.LineItem{}, nil
	}

	cart, err := s.find(ctx, identity)
	if errors.Is(err, repository.ErrCartNotFound) {
		return []domain.LineItem{}, nil
	}
	if err != nil {
		return nil, domain.Internal("Failed to load cart", err)
	}

	return cart.ItemsOrEmpty(), nil
}

// UpdateQuantity overwrites the quantity of an existing line and refreshes
// its catalog snapshot.
func (s *cartService) UpdateQuantity(ctx context.Context, identity domain.Identity, productID string, quantity int) ([]domain.LineItem, error) {
	if err := domain.ValidateQuantity(quantity); err != nil {
		return nil, err
	}
	if identity.IsZero() {
		return nil, domain.ErrIdentityRequired
	}

	product, err := s.product(ctx, productID)
	if err != nil {
		return nil, err
	}

	cart, err := s.loadOrCreate(ctx, identity)
	if err != nil {
		return nil, err
	}

	work := cart.Clone()
	if err := work.UpdateItem(product, quantity); err != nil {
		return nil, err
	}

	if err := s.carts.Save(ctx, work); err != nil {
		return nil, domain.Internal("Failed to save cart", err)
	}

	return work.ItemsOrEmpty(), nil
}

// Remove deletes a line. A cart left without lines is deleted from the store.
func (s *cartService) Remove(ctx context.Context, identity domain.Identity, productID string) ([]domain.LineItem, error) {
	if identity.IsZero() {
		return nil, domain.ErrIdentityRequired
	}

	cart, err := s.find(ctx, identity)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, domain.ErrItemNotInCart
	}
	if err != nil {
		return nil, domain.Internal("Failed to load cart", err)
	}

	work := cart.Clone()
	if err := work.RemoveItem(productID); err != nil {
		return nil, err
	}

	if work.IsEmpty() {
		if err := s.carts.Delete(ctx, work.ID); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
			return nil, domain.Internal("Failed to delete cart", err)
		}
		return []domain.LineItem{}, nil
	}

	if err := s.carts.Save(ctx, work); err != nil {
		return nil, domain.Internal("Failed to save cart", err)
	}

	return work.ItemsOrEmpty(), nil
}

// MergeGuestCart moves the lines of the guest cart for sessionID into the
// customer's cart, saves it and deletes the guest document. It returns nil
// when the session has no cart.
func (s *cartService) MergeGuestCart(ctx context.Context, customerID, sessionID string) (*domain.Cart, error) {
	guest, err := s.carts.FindBySession(ctx, sessionID)
	if errors.Is(err, repository.ErrCartNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, domain.Internal("Failed to load guest cart", err)
	}

	customer, err := s.loadOrCreate(ctx, domain.CustomerIdentity(customerID))
	if err != nil {
		return nil, err
	}

	merged := customer.Clone()
	res := merged.MergeFrom(guest)
	if res.Dropped > 0 {
		s.logger.Warn("Guest cart lines dropped during merge, customer cart is full",
			zap.String("customer_id", customerID),
			zap.String("guest_cart_id", guest.ID.String()),
			zap.Int("dropped", res.Dropped),
		)
	}

	if !merged.IsEmpty() {
		if err := s.carts.Save(ctx, merged); err != nil {
			return nil, domain.Internal("Failed to save cart", err)
		}
	}

	if err := s.carts.Delete(ctx, guest.ID); err != nil && !errors.Is(err, repository.ErrCartNotFound) {
		return nil, domain.Internal("Failed to delete guest cart", err)
	}

	s.logger.Info("Guest cart merged",
		zap.String("customer_id", customerID),
		zap.String("cart_id", merged.ID.String()),
		zap.Int("merged", res.Merged),
		zap.Int("added", res.Added),
	)

	if err := s.publisher.PublishCartMerged(ctx, events.NewCartMerged(merged, guest, res)); err != nil {
		s.logger.Warn("Failed to publish cart merged event", zap.Error(err))
	}

	return merged, nil
}

// loadOrCreate returns the stored cart for identity or a new, unpersisted one.
func (s *cartService) loadOrCreate(ctx context.Context, identity domain.Identity) (*domain.Cart, error) {
	cart, err := s.find(ctx, identity)
	if errors.Is(err, repository.ErrCartNotFound) {
		return domain.NewCart(identity), nil
	}
	if err != nil {
		return nil, domain.Internal("Failed to load cart", err)
	}
	return cart, nil
}

func (s *cartService) find(ctx context.Context, identity domain.Identity) (*domain.Cart, error) {
	if identity.IsCustomer() {
		return s.carts.FindByCustomer(ctx, identity.CustomerID)
	}
	return s.carts.FindBySession(ctx, identity.SessionID)
}

func (s *cartService) product(ctx context.Context, productID string) (*domain.Product, error) {
	product, err := s.catalog.FindByID(ctx, productID)
	if errors.Is(err, repository.ErrProductNotFound) {
		return nil, domain.ErrProductNotFound
	}
	if err != nil {
		return nil, domain.Internal("Failed to look up product", err)
	}
	return product, nil
}
