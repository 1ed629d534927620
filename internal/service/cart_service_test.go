package service

import (
	"context"
	"errors"
	"testing"

	"shop-cart/internal/domain"
	"shop-cart/internal/events"
	"shop-cart/internal/repository"

	"github.com/google/uuid"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// Mock repositories for testing
type mockCartRepository struct {
	carts   map[uuid.UUID]*domain.Cart
	saves   int
	deletes int
	failOn  string
}

func newMockCartRepository() *mockCartRepository {
	return &mockCartRepository{
		carts: make(map[uuid.UUID]*domain.Cart),
	}
}

func (m *mockCartRepository) FindByCustomer(ctx context.Context, customerID string) (*domain.Cart, error) {
	if m.failOn == "find" {
		return nil, errors.New("connection refused")
	}
	for _, cart := range m.carts {
		if cart.CustomerID == customerID {
			return cart.Clone(), nil
		}
	}
	return nil, repository.ErrCartNotFound
}

func (m *mockCartRepository) FindBySession(ctx context.Context, sessionID string) (*domain.Cart, error) {
	if m.failOn == "find" {
		return nil, errors.New("connection refused")
	}
	for _, cart := range m.carts {
		if cart.SessionID == sessionID {
			return cart.Clone(), nil
		}
	}
	return nil, repository.ErrCartNotFound
}

func (m *mockCartRepository) Save(ctx context.Context, cart *domain.Cart) error {
	if m.failOn == "save" {
		return errors.New("connection refused")
	}
	for id, existing := range m.carts {
		if id == cart.ID {
			continue
		}
		if (cart.CustomerID != "" && existing.CustomerID == cart.CustomerID) ||
			(cart.SessionID != "" && existing.SessionID == cart.SessionID) {
			return repository.ErrCartAlreadyExists
		}
	}
	m.saves++
	cart.MarkPersisted()
	m.carts[cart.ID] = cart.Clone()
	return nil
}

func (m *mockCartRepository) Delete(ctx context.Context, id uuid.UUID) error {
	if _, ok := m.carts[id]; !ok {
		return repository.ErrCartNotFound
	}
	m.deletes++
	delete(m.carts, id)
	return nil
}

func (m *mockCartRepository) put(cart *domain.Cart) {
	cart.MarkPersisted()
	m.carts[cart.ID] = cart.Clone()
}

type mockCatalog struct {
	products map[string]*domain.Product
	err      error
}

func newMockCatalog(products ...*domain.Product) *mockCatalog {
	c := &mockCatalog{products: make(map[string]*domain.Product)}
	for _, p := range products {
		c.products[p.ID] = p
	}
	return c
}

func (m *mockCatalog) FindByID(ctx context.Context, id string) (*domain.Product, error) {
	if m.err != nil {
		return nil, m.err
	}
	p, ok := m.products[id]
	if !ok {
		return nil, repository.ErrProductNotFound
	}
	cp := *p
	return &cp, nil
}

type recordingPublisher struct {
	events []events.CartMerged
	err    error
}

func (p *recordingPublisher) PublishCartMerged(ctx context.Context, ev events.CartMerged) error {
	p.events = append(p.events, ev)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func product(id string, stock int) *domain.Product {
	return &domain.Product{
		ID:     id,
		Name:   "Product " + id,
		Price:  9.99,
		Images: []string{"https://cdn.example.com/" + id + ".png"},
		Stock:  stock,
	}
}

type fixture struct {
	carts     *mockCartRepository
	catalog   *mockCatalog
	publisher *recordingPublisher
	logs      *observer.ObservedLogs
	service   CartService
}

func newFixture(products ...*domain.Product) *fixture {
	core, logs := observer.New(zap.DebugLevel)
	f := &fixture{
		carts:     newMockCartRepository(),
		catalog:   newMockCatalog(products...),
		publisher: &recordingPublisher{},
		logs:      logs,
	}
	f.service = NewCartService(f.carts, f.catalog, f.publisher, zap.New(core))
	return f
}

func TestAdd_GuestCreatesCart(t *testing.T) {
	f := newFixture(product("A", 10))
	ctx := context.Background()

	items, err := f.service.Add(ctx, AddInput{
		Identity:  domain.SessionIdentity("sess-1"),
		ProductID: "A",
		Quantity:  2,
	})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "A", items[0].ProductID)
	assert.Equal(t, 2, items[0].Quantity)
	assert.Equal(t, "Product A", items[0].Name)
	assert.Equal(t, "https://cdn.example.com/A.png", items[0].Image)

	stored, err := f.carts.FindBySession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Empty(t, stored.CustomerID)
	assert.Equal(t, items, stored.Items)
}

func TestAdd_AccumulatesExistingLine(t *testing.T) {
	f := newFixture(product("A", 10))
	ctx := context.Background()
	id := domain.CustomerIdentity("cust-1")

	_, err := f.service.Add(ctx, AddInput{Identity: id, ProductID: "A", Quantity: 3})
	require.NoError(t, err)
	items, err := f.service.Add(ctx, AddInput{Identity: id, ProductID: "A", Quantity: 4})
	require.NoError(t, err)

	require.Len(t, items, 1)
	assert.Equal(t, 7, items[0].Quantity)
	assert.Len(t, f.carts.carts, 1)
}

func TestAdd_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    AddInput
		setup    func(f *fixture)
		expected error
		kind     domain.ErrorKind
	}{
		{
			name:     "quantity zero",
			input:    AddInput{Identity: domain.SessionIdentity("s"), ProductID: "A", Quantity: 0},
			expected: domain.ErrInvalidQuantity,
			kind:     domain.KindValidation,
		},
		{
			name:     "quantity above ceiling",
			input:    AddInput{Identity: domain.SessionIdentity("s"), ProductID: "A", Quantity: 101},
			expected: domain.ErrInvalidQuantity,
			kind:     domain.KindValidation,
		},
		{
			name:     "no identity",
			input:    AddInput{ProductID: "A", Quantity: 1},
			expected: domain.ErrIdentityRequired,
			kind:     domain.KindValidation,
		},
		{
			name:     "unknown product",
			input:    AddInput{Identity: domain.SessionIdentity("s"), ProductID: "missing", Quantity: 1},
			expected: domain.ErrProductNotFound,
			kind:     domain.KindNotFound,
		},
		{
			name:     "insufficient stock",
			input:    AddInput{Identity: domain.SessionIdentity("s"), ProductID: "A", Quantity: 11},
			expected: domain.ErrInsufficientStock,
			kind:     domain.KindConflict,
		},
		{
			name:  "catalog unavailable",
			input: AddInput{Identity: domain.SessionIdentity("s"), ProductID: "A", Quantity: 1},
			setup: func(f *fixture) { f.catalog.err = errors.New("timeout") },
			kind:  domain.KindInternal,
		},
		{
			name:  "store unavailable",
			input: AddInput{Identity: domain.SessionIdentity("s"), ProductID: "A", Quantity: 1},
			setup: func(f *fixture) { f.carts.failOn = "save" },
			kind:  domain.KindInternal,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(product("A", 10))
			if tt.setup != nil {
				tt.setup(f)
			}

			items, err := f.service.Add(context.Background(), tt.input)
			require.Error(t, err)
			assert.Nil(t, items)
			if tt.expected != nil {
				assert.ErrorIs(t, err, tt.expected)
			}
			assert.Equal(t, tt.kind, domain.KindOf(err))
			assert.Zero(t, f.carts.saves)
		})
	}
}

func TestAdd_MergesGuestCartOnFirstAuthenticatedAdd(t *testing.T) {
	f := newFixture(product("A", 10), product("B", 10))
	ctx := context.Background()

	guest := domain.NewCart(domain.SessionIdentity("sess-1"))
	guest.Items = []domain.LineItem{{ProductID: "A", Name: "Product A", Quantity: 3}}
	f.carts.put(guest)

	items, err := f.service.Add(ctx, AddInput{
		Identity:       domain.CustomerIdentity("cust-1"),
		GuestSessionID: "sess-1",
		ProductID:      "B",
		Quantity:       1,
	})
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "A", items[0].ProductID)
	assert.Equal(t, 3, items[0].Quantity)
	assert.Equal(t, "B", items[1].ProductID)

	_, err = f.carts.FindBySession(ctx, "sess-1")
	assert.ErrorIs(t, err, repository.ErrCartNotFound)
	assert.Len(t, f.publisher.events, 1)
}

func TestMergeGuestCart_SumsQuantitiesAndDeletesGuest(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer := domain.NewCart(domain.CustomerIdentity("cust-1"))
	customer.Items = []domain.LineItem{{ProductID: "A", Quantity: 3}}
	f.carts.put(customer)

	guest := domain.NewCart(domain.SessionIdentity("sess-1"))
	guest.Items = []domain.LineItem{{ProductID: "A", Quantity: 2}}
	f.carts.put(guest)

	merged, err := f.service.MergeGuestCart(ctx, "cust-1", "sess-1")
	require.NoError(t, err)
	require.NotNil(t, merged)
	assert.Equal(t, customer.ID, merged.ID)
	require.Len(t, merged.Items, 1)
	assert.Equal(t, 5, merged.Items[0].Quantity)

	stored, err := f.carts.FindByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.Equal(t, 5, stored.Items[0].Quantity)

	_, err = f.carts.FindBySession(ctx, "sess-1")
	assert.ErrorIs(t, err, repository.ErrCartNotFound)

	require.Len(t, f.publisher.events, 1)
	ev := f.publisher.events[0]
	assert.Equal(t, "cust-1", ev.CustomerID)
	assert.Equal(t, guest.ID.String(), ev.GuestCartID)
	assert.Equal(t, 1, ev.Merged)
}

func TestMergeGuestCart_ClampsAtCeiling(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer := domain.NewCart(domain.CustomerIdentity("cust-1"))
	customer.Items = []domain.LineItem{{ProductID: "A", Quantity: 80}}
	f.carts.put(customer)

	guest := domain.NewCart(domain.SessionIdentity("sess-1"))
	guest.Items = []domain.LineItem{{ProductID: "A", Quantity: 50}}
	f.carts.put(guest)

	merged, err := f.service.MergeGuestCart(ctx, "cust-1", "sess-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MaxQuantity, merged.Items[0].Quantity)
}

func TestMergeGuestCart_NoGuestCart(t *testing.T) {
	f := newFixture()

	merged, err := f.service.MergeGuestCart(context.Background(), "cust-1", "unknown")
	require.NoError(t, err)
	assert.Nil(t, merged)
	assert.Zero(t, f.carts.saves)
	assert.Empty(t, f.publisher.events)
}

func TestMergeGuestCart_CreatesCustomerCart(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	guest := domain.NewCart(domain.SessionIdentity("sess-1"))
	guest.Items = []domain.LineItem{{ProductID: "A", Quantity: 2}, {ProductID: "B", Quantity: 1}}
	f.carts.put(guest)

	merged, err := f.service.MergeGuestCart(ctx, "cust-1", "sess-1")
	require.NoError(t, err)
	assert.NotEqual(t, guest.ID, merged.ID)
	assert.Equal(t, "cust-1", merged.CustomerID)
	assert.Empty(t, merged.SessionID)
	assert.Len(t, merged.Items, 2)
	assert.Len(t, f.carts.carts, 1)
}

func TestMergeGuestCart_LogsDroppedLines(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	customer := domain.NewCart(domain.CustomerIdentity("cust-1"))
	for i := 0; i < domain.MaxCartItems; i++ {
		customer.Items = append(customer.Items, domain.LineItem{ProductID: uuid.NewString(), Quantity: 1})
	}
	f.carts.put(customer)

	guest := domain.NewCart(domain.SessionIdentity("sess-1"))
	guest.Items = []domain.LineItem{{ProductID: "new-1", Quantity: 1}, {ProductID: "new-2", Quantity: 1}}
	f.carts.put(guest)

	merged, err := f.service.MergeGuestCart(ctx, "cust-1", "sess-1")
	require.NoError(t, err)
	assert.Len(t, merged.Items, domain.MaxCartItems)

	warnings := f.logs.FilterMessageSnippet("dropped").All()
	require.Len(t, warnings, 1)
	assert.EqualValues(t, 2, warnings[0].ContextMap()["dropped"])
}

func TestMergeGuestCart_PublishFailureDoesNotFailMerge(t *testing.T) {
	f := newFixture()
	f.publisher.err = errors.New("channel closed")

	guest := domain.NewCart(domain.SessionIdentity("sess-1"))
	guest.Items = []domain.LineItem{{ProductID: "A", Quantity: 1}}
	f.carts.put(guest)

	merged, err := f.service.MergeGuestCart(context.Background(), "cust-1", "sess-1")
	require.NoError(t, err)
	assert.NotNil(t, merged)
	assert.Equal(t, 1, f.logs.FilterMessage("Failed to publish cart merged event").Len())
}

func TestList(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	items, err := f.service.List(ctx, domain.Identity{})
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	items, err = f.service.List(ctx, domain.SessionIdentity("nobody"))
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)

	cart := domain.NewCart(domain.CustomerIdentity("cust-1"))
	cart.Items = []domain.LineItem{{ProductID: "A", Quantity: 4}}
	f.carts.put(cart)

	items, err = f.service.List(ctx, domain.CustomerIdentity("cust-1"))
	require.NoError(t, err)
	assert.Equal(t, cart.Items, items)

	f.carts.failOn = "find"
	_, err = f.service.List(ctx, domain.CustomerIdentity("cust-1"))
	assert.Equal(t, domain.KindInternal, domain.KindOf(err))
}

func TestUpdateQuantity(t *testing.T) {
	f := newFixture(product("A", 10))
	ctx := context.Background()
	id := domain.SessionIdentity("sess-1")

	cart := domain.NewCart(id)
	cart.Items = []domain.LineItem{{ProductID: "A", Name: "Old name", Price: 1, Quantity: 2}}
	f.carts.put(cart)

	items, err := f.service.UpdateQuantity(ctx, id, "A", 7)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 7, items[0].Quantity)
	assert.Equal(t, "Product A", items[0].Name)
	assert.Equal(t, 9.99, items[0].Price)

	_, err = f.service.UpdateQuantity(ctx, id, "A", 11)
	assert.ErrorIs(t, err, domain.ErrInsufficientStock)

	_, err = f.service.UpdateQuantity(ctx, id, "A", 0)
	assert.ErrorIs(t, err, domain.ErrInvalidQuantity)

	_, err = f.service.UpdateQuantity(ctx, id, "missing", 1)
	assert.ErrorIs(t, err, domain.ErrProductNotFound)

	_, err = f.service.UpdateQuantity(ctx, domain.Identity{}, "A", 1)
	assert.ErrorIs(t, err, domain.ErrIdentityRequired)

	stored, err := f.carts.FindBySession(ctx, "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 7, stored.Items[0].Quantity)
}

func TestUpdateQuantity_ItemNotInCart(t *testing.T) {
	f := newFixture(product("A", 10))

	_, err := f.service.UpdateQuantity(context.Background(), domain.SessionIdentity("sess-1"), "A", 1)
	assert.ErrorIs(t, err, domain.ErrItemNotInCart)
	assert.Zero(t, f.carts.saves)
}

func TestRemove(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	id := domain.CustomerIdentity("cust-1")

	cart := domain.NewCart(id)
	cart.Items = []domain.LineItem{{ProductID: "A", Quantity: 1}, {ProductID: "B", Quantity: 2}}
	f.carts.put(cart)

	items, err := f.service.Remove(ctx, id, "A")
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "B", items[0].ProductID)

	_, err = f.service.Remove(ctx, id, "A")
	assert.ErrorIs(t, err, domain.ErrItemNotInCart)

	items, err = f.service.Remove(ctx, id, "B")
	require.NoError(t, err)
	assert.NotNil(t, items)
	assert.Empty(t, items)
	assert.Empty(t, f.carts.carts, "empty carts are deleted")

	_, err = f.service.Remove(ctx, id, "B")
	assert.ErrorIs(t, err, domain.ErrItemNotInCart)

	_, err = f.service.Remove(ctx, domain.Identity{}, "B")
	assert.ErrorIs(t, err, domain.ErrIdentityRequired)
}

// Merging never loses quantity below the ceiling and never leaves the guest
// document behind.
func TestProperty_MergePreservesQuantities(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("merged quantity is min(customer+guest, ceiling)", prop.ForAll(
		func(customerQty, guestQty int) bool {
			f := newFixture()
			ctx := context.Background()

			customer := domain.NewCart(domain.CustomerIdentity("cust"))
			customer.Items = []domain.LineItem{{ProductID: "P", Quantity: customerQty}}
			f.carts.put(customer)

			guest := domain.NewCart(domain.SessionIdentity("sess"))
			guest.Items = []domain.LineItem{{ProductID: "P", Quantity: guestQty}}
			f.carts.put(guest)

			merged, err := f.service.MergeGuestCart(ctx, "cust", "sess")
			if err != nil || merged == nil {
				return false
			}

			expected := customerQty + guestQty
			if expected > domain.MaxQuantity {
				expected = domain.MaxQuantity
			}
			if merged.Items[0].Quantity != expected {
				t.Logf("FAIL: %d + %d merged to %d", customerQty, guestQty, merged.Items[0].Quantity)
				return false
			}

			_, err = f.carts.FindBySession(ctx, "sess")
			return errors.Is(err, repository.ErrCartNotFound)
		},
		gen.IntRange(1, domain.MaxQuantity),
		gen.IntRange(1, domain.MaxQuantity),
	))

	properties.TestingRun(t)
}

// A failing add leaves the stored cart byte-for-byte unchanged.
func TestProperty_FailedAddWritesNothing(t *testing.T) {
	properties := gopter.NewProperties(nil)

	properties.Property("rejected adds do not touch the store", prop.ForAll(
		func(existing, add, stock int) bool {
			f := newFixture(product("A", stock))
			ctx := context.Background()
			id := domain.SessionIdentity("sess")

			cart := domain.NewCart(id)
			cart.Items = []domain.LineItem{{ProductID: "A", Quantity: existing}}
			f.carts.put(cart)

			_, err := f.service.Add(ctx, AddInput{Identity: id, ProductID: "A", Quantity: add})

			stored, findErr := f.carts.FindBySession(ctx, "sess")
			if findErr != nil {
				return false
			}
			if err != nil {
				return f.carts.saves == 0 && stored.Items[0].Quantity == existing
			}
			return stored.Items[0].Quantity <= stock && stored.Items[0].Quantity <= domain.MaxQuantity
		},
		gen.IntRange(1, domain.MaxQuantity),
		gen.IntRange(-5, 120),
		gen.IntRange(0, 150),
	))

	properties.TestingRun(t)
}
