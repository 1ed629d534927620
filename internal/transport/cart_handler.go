package transport

import (
	"errors"
	"net/http"

	"shop-cart/internal/domain"
	"shop-cart/internal/identity"
	"shop-cart/internal/logger"
	"shop-cart/internal/middleware"
	"shop-cart/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// AddToCartRequest represents the add-to-cart request payload
type AddToCartRequest struct {
	ProductID string `json:"productId" validate:"required,productid"`
	Quantity  int    `json:"quantity"`
	SessionID string `json:"sessionId" validate:"omitempty,max=128"`
}

// UpdateCartRequest represents the quantity update payload
type UpdateCartRequest struct {
	ProductID string `json:"productId" validate:"required,productid"`
	Quantity  int    `json:"quantity"`
	SessionID string `json:"sessionId" validate:"omitempty,max=128"`
}

// RemoveFromCartRequest represents the remove payload
type RemoveFromCartRequest struct {
	ProductID string `json:"productId" validate:"required,productid"`
	SessionID string `json:"sessionId" validate:"omitempty,max=128"`
}

// CartQuery holds the query parameters of GET /cart
type CartQuery struct {
	SessionID string `json:"sessionId" validate:"omitempty,max=128"`
}

// CartHandler handles HTTP requests for cart operations
type CartHandler struct {
	cartService   service.CartService
	resolver      *identity.Resolver
	logger        *zap.Logger
	exposeDetails bool
}

// NewCartHandler creates a new CartHandler. exposeDetails adds internal error
// text to 500 responses and must be off in production.
func NewCartHandler(cartService service.CartService, resolver *identity.Resolver, logger *zap.Logger, exposeDetails bool) *CartHandler {
	return &CartHandler{
		cartService:   cartService,
		resolver:      resolver,
		logger:        logger,
		exposeDetails: exposeDetails,
	}
}

// RegisterRoutes registers the cart routes under /cart and /api/cart
func (h *CartHandler) RegisterRoutes(r chi.Router, mw ...func(http.Handler) http.Handler) {
	for _, prefix := range []string{"/cart", "/api/cart"} {
		r.Route(prefix, func(r chi.Router) {
			r.Use(mw...)
			r.Post("/", h.AddItem)
			r.Get("/", h.GetCart)
			r.Patch("/", h.UpdateItem)
			r.Delete("/", h.RemoveItem)
		})
	}
}

// AddItem handles POST /cart. It is the only route that mints a guest session.
func (h *CartHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	var req AddToCartRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.resolver.Resolve(r, req.SessionID, true)

	items, err := h.cartService.Add(r.Context(), service.AddInput{
		Identity:       res.Identity,
		GuestSessionID: res.GuestSessionID,
		ProductID:      req.ProductID,
		Quantity:       req.Quantity,
	})
	if err != nil {
		h.respondError(w, r, err, "Failed to add item to cart",
			zap.String("product_id", req.ProductID),
			zap.Bool("customer", res.Identity.IsCustomer()),
		)
		return
	}

	if res.Minted {
		http.SetCookie(w, h.resolver.SessionCookie(res.Identity.SessionID))
	}

	logger.ForRequest(h.logger, r).Debug("Item added to cart",
		zap.String("product_id", req.ProductID),
		zap.Int("quantity", req.Quantity),
		zap.Bool("minted_session", res.Minted),
	)
	middleware.RespondWithData(w, http.StatusCreated, "Item added to cart", items)
}

// GetCart handles GET /cart
func (h *CartHandler) GetCart(w http.ResponseWriter, r *http.Request) {
	query := CartQuery{SessionID: r.URL.Query().Get("sessionId")}
	if err := middleware.ValidateRequest(&query); err != nil {
		middleware.RespondWithValidationErrors(w, middleware.FormatValidationErrors(err))
		return
	}

	res := h.resolver.Resolve(r, query.SessionID, false)

	items, err := h.cartService.List(r.Context(), res.Identity)
	if err != nil {
		h.respondError(w, r, err, "Failed to load cart")
		return
	}

	middleware.RespondWithData(w, http.StatusOK, "Cart retrieved", items)
}

// UpdateItem handles PATCH /cart
func (h *CartHandler) UpdateItem(w http.ResponseWriter, r *http.Request) {
	var req UpdateCartRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.resolver.Resolve(r, req.SessionID, false)

	items, err := h.cartService.UpdateQuantity(r.Context(), res.Identity, req.ProductID, req.Quantity)
	if err != nil {
		h.respondError(w, r, err, "Failed to update cart item",
			zap.String("product_id", req.ProductID),
		)
		return
	}

	middleware.RespondWithData(w, http.StatusOK, "Cart updated", items)
}

// RemoveItem handles DELETE /cart
func (h *CartHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	var req RemoveFromCartRequest
	if !h.decode(w, r, &req) {
		return
	}

	res := h.resolver.Resolve(r, req.SessionID, false)

	items, err := h.cartService.Remove(r.Context(), res.Identity, req.ProductID)
	if err != nil {
		h.respondError(w, r, err, "Failed to remove cart item",
			zap.String("product_id", req.ProductID),
		)
		return
	}

	middleware.RespondWithData(w, http.StatusOK, "Item removed from cart", items)
}

// decode writes a 400 and returns false when the body is malformed or invalid.
func (h *CartHandler) decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	err := middleware.DecodeAndValidate(r, v)
	if err == nil {
		return true
	}

	logger.ForRequest(h.logger, r).Debug("Cart request validation failed", zap.Error(err))

	if validationErrors := middleware.FormatValidationErrors(err); len(validationErrors) > 0 {
		middleware.RespondWithValidationErrors(w, validationErrors)
		return false
	}

	var decodeErr *middleware.DecodeError
	if errors.As(err, &decodeErr) {
		if decodeErr.Field() == "quantity" {
			middleware.RespondWithError(w, http.StatusBadRequest, domain.ErrInvalidQuantity.Message)
			return false
		}
		middleware.RespondWithError(w, http.StatusBadRequest, decodeErr.Message())
		return false
	}

	middleware.RespondWithError(w, http.StatusBadRequest, "Invalid request body")
	return false
}

// respondError maps classified errors to their status. Anything else is a 500
// whose cause is logged and, outside production, returned as details.
func (h *CartHandler) respondError(w http.ResponseWriter, r *http.Request, err error, msg string, fields ...zap.Field) {
	log := logger.ForRequest(h.logger, r)

	var cartErr *domain.Error
	if errors.As(err, &cartErr) && cartErr.Kind != domain.KindInternal {
		log.Debug(msg, append(fields, zap.String("reason", cartErr.Message))...)
		middleware.RespondWithError(w, statusFor(cartErr.Kind), cartErr.Message)
		return
	}

	log.Error(msg, append(fields, zap.Error(err))...)

	if h.exposeDetails {
		middleware.RespondWithErrorDetails(w, http.StatusInternalServerError, "Internal server error", err.Error())
		return
	}
	middleware.RespondWithError(w, http.StatusInternalServerError, "Internal server error")
}

func statusFor(kind domain.ErrorKind) int {
	switch kind {
	case domain.KindValidation, domain.KindConflict:
		return http.StatusBadRequest
	case domain.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
