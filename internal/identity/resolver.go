// Package identity decides who owns the cart a request operates on.
package identity

import (
	"net/http"
	"time"

	"shop-cart/internal/domain"
	"shop-cart/internal/middleware"

	"github.com/google/uuid"
)

const (
	// CookieName carries the guest session token.
	CookieName = "cartSessionId"
	// MaxSessionIDLength matches the width of carts.session_id.
	MaxSessionIDLength = 128
)

// Resolution is the outcome of resolving a request's identity.
type Resolution struct {
	Identity domain.Identity
	// GuestSessionID is a guest session presented by an authenticated
	// customer, used to merge the guest cart.
	GuestSessionID string
	// Minted is set when a new guest session was generated and must be
	// returned to the client in a cookie.
	Minted bool
}

// Resolver derives cart identities from requests. It never fails.
type Resolver struct {
	secure bool
	maxAge time.Duration
}

func NewResolver(secure bool, maxAge time.Duration) *Resolver {
	return &Resolver{secure: secure, maxAge: maxAge}
}

// Resolve returns the customer identity set by the auth middleware or, for
// guests, the session presented in the request (explicit value first, then
// the cookie). Without either, a session is minted only when mint is true;
// otherwise the returned identity is zero.
func (res *Resolver) Resolve(r *http.Request, presentedSessionID string, mint bool) Resolution {
	sessionID := presentedSessionID
	if sessionID == "" {
		sessionID = sessionFromCookie(r)
	}

	if customerID, ok := middleware.GetCustomerID(r.Context()); ok {
		return Resolution{
			Identity:       domain.CustomerIdentity(customerID),
			GuestSessionID: sessionID,
		}
	}

	if sessionID != "" {
		return Resolution{Identity: domain.SessionIdentity(sessionID)}
	}

	if !mint {
		return Resolution{}
	}

	return Resolution{
		Identity: domain.SessionIdentity(uuid.NewString()),
		Minted:   true,
	}
}

func sessionFromCookie(r *http.Request) string {
	cookie, err := r.Cookie(CookieName)
	if err != nil || len(cookie.Value) > MaxSessionIDLength {
		return ""
	}
	return cookie.Value
}

// SessionCookie builds the cookie that hands a minted guest session to the client.
func (res *Resolver) SessionCookie(sessionID string) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   int(res.maxAge / time.Second),
		Expires:  time.Now().Add(res.maxAge),
		HttpOnly: true,
		Secure:   res.secure,
		SameSite: http.SameSiteLaxMode,
	}
}
