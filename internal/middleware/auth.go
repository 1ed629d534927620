package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

type contextKey string

const CustomerIDKey contextKey = "customer_id"

// MaxCustomerIDLength matches the width of carts.customer_id.
const MaxCustomerIDLength = 128

var (
	ErrMissingToken       = errors.New("missing bearer token")
	ErrInvalidTokenClaims = errors.New("invalid token claims")
)

// OptionalAuthMiddleware attaches the customer id of a valid bearer token to
// the request context. Requests without a token, or with one that fails
// validation, continue as guests.
func OptionalAuthMiddleware(jwtSecret string, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, err := bearerToken(r.Header.Get("Authorization"))
			if err != nil {
				if !errors.Is(err, ErrMissingToken) {
					logger.Debug("Ignoring malformed authorization header")
				}
				next.ServeHTTP(w, r)
				return
			}

			customerID, err := ParseCustomerToken(tokenString, jwtSecret)
			if err != nil {
				logger.Debug("Token validation failed, continuing as guest", zap.Error(err))
				next.ServeHTTP(w, r)
				return
			}

			logger.Debug("Customer authenticated", zap.String("customer_id", customerID))

			next.ServeHTTP(w, r.WithContext(WithCustomerID(r.Context(), customerID)))
		})
	}
}

func bearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrMissingToken
	}

	parts := strings.Split(header, " ")
	if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
		return "", jwt.ErrTokenMalformed
	}
	return parts[1], nil
}

// ParseCustomerToken validates an HMAC-signed token and returns its customer
// id, taken from the user_id claim or, failing that, the subject.
func ParseCustomerToken(tokenString, jwtSecret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(jwtSecret), nil
	})
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrTokenSignatureInvalid
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return "", ErrInvalidTokenClaims
	}

	customerID, _ := claims["user_id"].(string)
	if customerID == "" {
		customerID, _ = claims.GetSubject()
	}
	// customer_id is VARCHAR(128); longer ids could never own a cart
	if customerID == "" || len(customerID) > MaxCustomerIDLength {
		return "", ErrInvalidTokenClaims
	}
	return customerID, nil
}

// WithCustomerID returns a copy of ctx carrying an authenticated customer id.
func WithCustomerID(ctx context.Context, customerID string) context.Context {
	return context.WithValue(ctx, CustomerIDKey, customerID)
}

// GetCustomerID extracts the customer id from request context
func GetCustomerID(ctx context.Context) (string, bool) {
	customerID, ok := ctx.Value(CustomerIDKey).(string)
	return customerID, ok && customerID != ""
}
