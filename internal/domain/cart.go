package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// MaxQuantity is the per-line quantity ceiling.
	MaxQuantity = 100
	// MaxCartItems is the number of distinct products a cart may hold.
	MaxCartItems = 50
)

// Identity names the owner of a cart. Exactly one field is set on a usable identity.
type Identity struct {
	CustomerID string
	SessionID  string
}

// CustomerIdentity returns the identity of an authenticated customer.
func CustomerIdentity(customerID string) Identity {
	return Identity{CustomerID: customerID}
}

// SessionIdentity returns the identity of a guest session.
func SessionIdentity(sessionID string) Identity {
	return Identity{SessionID: sessionID}
}

// IsCustomer reports whether the identity belongs to an authenticated customer.
func (i Identity) IsCustomer() bool {
	return i.CustomerID != ""
}

// IsZero reports whether no identity could be resolved.
func (i Identity) IsZero() bool {
	return i.CustomerID == "" && i.SessionID == ""
}

// LineItem is one product in a cart with a snapshot of catalog data taken
// when the line was added or last updated.
type LineItem struct {
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Image     string  `json:"image"`
	Price     float64 `json:"price"`
	Quantity  int     `json:"quantity"`
}

// Cart is the line-item collection owned by a single identity.
type Cart struct {
	ID         uuid.UUID  `json:"id"`
	CustomerID string     `json:"customerId,omitempty"`
	SessionID  string     `json:"sessionId,omitempty"`
	Items      []LineItem `json:"items"`
	CreatedAt  time.Time  `json:"createdAt"`
	UpdatedAt  time.Time  `json:"updatedAt"`

	persisted bool
}

// NewCart builds an empty, unpersisted cart for identity. A customer id wins
// over a session id so the result never carries both.
func NewCart(identity Identity) *Cart {
	now := time.Now().UTC()
	c := &Cart{
		ID:        uuid.New(),
		Items:     []LineItem{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if identity.IsCustomer() {
		c.CustomerID = identity.CustomerID
	} else {
		c.SessionID = identity.SessionID
	}
	return c
}

// Identity returns the key the cart is stored under.
func (c *Cart) Identity() Identity {
	if c.CustomerID != "" {
		return CustomerIdentity(c.CustomerID)
	}
	return SessionIdentity(c.SessionID)
}

// Persisted reports whether the cart was loaded from or saved to the store.
func (c *Cart) Persisted() bool {
	return c.persisted
}

// MarkPersisted is called by repositories after a load or a successful save.
func (c *Cart) MarkPersisted() {
	c.persisted = true
}

// IsEmpty reports whether the cart holds no lines. Empty carts are deleted, not saved.
func (c *Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Clone returns a deep copy so a request can mutate it without touching the original.
func (c *Cart) Clone() *Cart {
	cp := *c
	cp.Items = make([]LineItem, len(c.Items))
	copy(cp.Items, c.Items)
	return &cp
}

// ItemsOrEmpty returns the lines, never nil.
func (c *Cart) ItemsOrEmpty() []LineItem {
	if c == nil || c.Items == nil {
		return []LineItem{}
	}
	return c.Items
}

func (c *Cart) indexOf(productID string) int {
	for i := range c.Items {
		if c.Items[i].ProductID == productID {
			return i
		}
	}
	return -1
}

// Item returns the line for productID.
func (c *Cart) Item(productID string) (LineItem, bool) {
	if i := c.indexOf(productID); i >= 0 {
		return c.Items[i], true
	}
	return LineItem{}, false
}
