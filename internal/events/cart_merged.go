package events

import (
	"time"

	"shop-cart/internal/domain"

	"github.com/google/uuid"
)

const (
	EventTypeCartMerged  = "CartMerged"
	CartMergedRoutingKey = "cart.merged.v1"
)

// CartMerged is emitted after a guest cart has been folded into a customer
// cart and the guest document deleted.
type CartMerged struct {
	EventID     string    `json:"eventId"`
	EventType   string    `json:"eventType"`
	Producer    string    `json:"producer"`
	CartID      string    `json:"cartId"`
	CustomerID  string    `json:"customerId"`
	GuestCartID string    `json:"guestCartId"`
	Merged      int       `json:"mergedLines"`
	Added       int       `json:"addedLines"`
	Dropped     int       `json:"droppedLines"`
	ItemCount   int       `json:"itemCount"`
	OccurredAt  time.Time `json:"occurredAt"`
}

// NewCartMerged builds the event for a completed merge.
func NewCartMerged(customer, guest *domain.Cart, res domain.MergeResult) CartMerged {
	return CartMerged{
		EventID:     uuid.NewString(),
		EventType:   EventTypeCartMerged,
		Producer:    producerName,
		CartID:      customer.ID.String(),
		CustomerID:  customer.CustomerID,
		GuestCartID: guest.ID.String(),
		Merged:      res.Merged,
		Added:       res.Added,
		Dropped:     res.Dropped,
		ItemCount:   len(customer.Items),
		OccurredAt:  time.Now().UTC(),
	}
}
