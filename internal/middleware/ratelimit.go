package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// RateLimitConfig holds rate limiting configuration
type RateLimitConfig struct {
	RequestsPerWindow int           // Number of requests allowed per window
	Window            time.Duration // Time window for rate limiting
	KeyPrefix         string        // Redis key prefix
}

// windowUsage is one client's position in the current window.
type windowUsage struct {
	count int64
	reset time.Duration
}

func (u windowUsage) remaining(limit int) int {
	if left := int64(limit) - u.count; left > 0 {
		return int(left)
	}
	return 0
}

// fixedWindow counts requests per key in redis. A key expires one window
// after its first request.
type fixedWindow struct {
	client *redis.Client
	config RateLimitConfig
}

func (fw fixedWindow) take(ctx context.Context, clientID string) (windowUsage, error) {
	key := fmt.Sprintf("%s:%s", fw.config.KeyPrefix, clientID)

	var incr *redis.IntCmd
	var ttl *redis.DurationCmd
	_, err := fw.client.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		ttl = pipe.TTL(ctx, key)
		return nil
	})
	if err != nil {
		return windowUsage{}, fmt.Errorf("rate limit counter %s: %w", key, err)
	}

	usage := windowUsage{count: incr.Val(), reset: ttl.Val()}
	// Fresh key, or one left without expiry by an earlier failure
	if usage.reset < 0 {
		usage.reset = fw.config.Window
		if err := fw.client.Expire(ctx, key, fw.config.Window).Err(); err != nil {
			return usage, fmt.Errorf("rate limit expiry %s: %w", key, err)
		}
	}
	return usage, nil
}

// RateLimitMiddleware implements rate limiting using Redis. Customers are
// counted per account, guests per client address. Redis failures let the
// request through.
func RateLimitMiddleware(redisClient *redis.Client, config RateLimitConfig, logger *zap.Logger) func(http.Handler) http.Handler {
	limiter := fixedWindow{client: redisClient, config: config}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientID := rateLimitClientID(r)

			usage, err := limiter.take(r.Context(), clientID)
			if err != nil {
				logger.Error("Rate limiter unavailable, allowing request",
					zap.Error(err),
					zap.String("client_id", clientID),
				)
				if usage.count == 0 {
					next.ServeHTTP(w, r)
					return
				}
			}

			setRateLimitHeaders(w, config.RequestsPerWindow, usage)

			if usage.count > int64(config.RequestsPerWindow) {
				logger.Warn("Rate limit exceeded",
					zap.String("client_id", clientID),
					zap.Int64("count", usage.count),
					zap.Int("limit", config.RequestsPerWindow),
				)
				w.Header().Set("Retry-After", strconv.Itoa(int(usage.reset.Seconds())))
				RespondWithError(w, http.StatusTooManyRequests, "Too many requests, please try again later")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func setRateLimitHeaders(w http.ResponseWriter, limit int, usage windowUsage) {
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(usage.remaining(limit)))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Add(usage.reset).Unix(), 10))
}

func rateLimitClientID(r *http.Request) string {
	if customerID, ok := GetCustomerID(r.Context()); ok {
		return "customer:" + customerID
	}
	return "ip:" + clientIP(r.RemoteAddr)
}

// clientIP strips the port chi's RealIP leaves on RemoteAddr when no proxy header was present.
func clientIP(remoteAddr string) string {
	if host, _, err := net.SplitHostPort(remoteAddr); err == nil {
		return host
	}
	return remoteAddr
}
