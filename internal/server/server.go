package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"shop-cart/internal/config"
	"shop-cart/internal/database"
	"shop-cart/internal/events"
	"shop-cart/internal/identity"
	custommiddleware "shop-cart/internal/middleware"
	"shop-cart/internal/repository"
	"shop-cart/internal/service"
	"shop-cart/internal/transport"

	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	*http.Server
	config    *config.Config
	logger    *zap.Logger
	db        database.Service
	redis     *redis.Client
	publisher events.Publisher
}

// NewServer wires repositories, services and handlers onto a chi router.
// redisClient may be nil, which disables rate limiting.
func NewServer(cfg *config.Config, logger *zap.Logger, db database.Service, redisClient *redis.Client, publisher events.Publisher) *Server {
	if publisher == nil {
		publisher = events.NoopPublisher{}
	}

	s := &Server{
		config:    cfg,
		logger:    logger,
		db:        db,
		redis:     redisClient,
		publisher: publisher,
	}

	router := chi.NewRouter()

	// Add basic middleware
	for _, mw := range custommiddleware.DefaultMiddlewareStack() {
		router.Use(mw)
	}
	router.Use(custommiddleware.LoggingMiddleware(logger))
	router.Use(custommiddleware.ErrorHandlingMiddleware(logger))
	router.Use(custommiddleware.CORSMiddleware(cfg.Server.AllowedOrigins, !cfg.Server.IsProduction()))

	router.Get("/health", s.health)

	// Initialize repositories
	cartRepo := repository.NewCartRepository(db.Pool())
	productRepo := repository.NewProductRepository(db.Pool())

	// Initialize services
	cartService := service.NewCartService(cartRepo, productRepo, publisher, logger)

	// Initialize handlers
	resolver := identity.NewResolver(cfg.Server.IsProduction(), cfg.Cart.SessionMaxAge)
	cartHandler := transport.NewCartHandler(cartService, resolver, logger, !cfg.Server.IsProduction())

	// Auth runs first so the rate limiter can key on the customer
	cartMiddleware := []func(http.Handler) http.Handler{
		custommiddleware.OptionalAuthMiddleware(cfg.JWT.Secret, logger),
	}
	if cfg.RateLimit.Enabled && redisClient != nil {
		cartMiddleware = append(cartMiddleware, custommiddleware.RateLimitMiddleware(redisClient, custommiddleware.RateLimitConfig{
			RequestsPerWindow: cfg.RateLimit.Requests,
			Window:            cfg.RateLimit.Window,
			KeyPrefix:         "cart_rate_limit",
		}, logger))
	}

	// Register routes
	cartHandler.RegisterRoutes(router, cartMiddleware...)

	s.Server = &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Server.Port),
		Handler:      router,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	return s
}

// health reports database and redis status; 503 when either is down.
func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := map[string]interface{}{}

	dbHealth := s.db.Health(ctx)
	checks["database"] = dbHealth
	if dbHealth["status"] != "up" {
		status = http.StatusServiceUnavailable
	}

	if s.redis != nil {
		if err := s.redis.Ping(ctx).Err(); err != nil {
			checks["redis"] = map[string]string{"status": "down", "error": err.Error()}
			status = http.StatusServiceUnavailable
		} else {
			checks["redis"] = map[string]string{"status": "up"}
		}
	}

	if status != http.StatusOK {
		s.logger.Warn("Health check failed", zap.Any("checks", checks))
		custommiddleware.RespondWithJSON(w, status, custommiddleware.Envelope{
			Error:   true,
			Message: "Service unavailable",
			Data:    checks,
		})
		return
	}

	custommiddleware.RespondWithData(w, status, "ok", checks)
}

func (s *Server) Close() error {
	s.logger.Info("Closing server resources")

	if err := s.publisher.Close(); err != nil {
		s.logger.Error("Failed to close event publisher", zap.Error(err))
	}

	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			s.logger.Error("Failed to close redis client", zap.Error(err))
		}
	}

	// Close database connection
	if s.db != nil {
		s.db.Close()
	}

	s.logger.Sync()
	return nil
}
