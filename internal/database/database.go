package database

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"time"

	"shop-cart/internal/config"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
)

// Service owns the connection pool shared by the repositories.
type Service interface {
	// Pool is used by the repositories.
	Pool() *pgxpool.Pool
	// DB exposes the same pool through database/sql for goose.
	DB() *sql.DB
	Health(ctx context.Context) map[string]string
	Close()
}

type service struct {
	pool *pgxpool.Pool
	db   *sql.DB
}

// DSN builds a postgres connection string from configuration
func DSN(cfg config.DatabaseConfig) string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   cfg.Host + ":" + cfg.Port,
		Path:   "/" + cfg.Database,
	}
	q := u.Query()
	q.Set("sslmode", "disable")
	q.Set("search_path", cfg.Schema)
	u.RawQuery = q.Encode()
	return u.String()
}

// New opens a connection pool and verifies it with a ping
func New(ctx context.Context, cfg config.DatabaseConfig) (Service, error) {
	return Open(ctx, DSN(cfg))
}

// Open connects to an explicit DSN
func Open(ctx context.Context, dsn string) (Service, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}
	poolCfg.MaxConns = 20
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &service{pool: pool, db: stdlib.OpenDBFromPool(pool)}, nil
}

func (s *service) Pool() *pgxpool.Pool {
	return s.pool
}

func (s *service) DB() *sql.DB {
	return s.db
}

// Health reports pool statistics, or the ping error when the database is down
func (s *service) Health(ctx context.Context) map[string]string {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	stats := make(map[string]string)
	if err := s.pool.Ping(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}

	st := s.pool.Stat()
	stats["status"] = "up"
	stats["total_conns"] = fmt.Sprint(st.TotalConns())
	stats["idle_conns"] = fmt.Sprint(st.IdleConns())
	stats["acquired_conns"] = fmt.Sprint(st.AcquiredConns())
	return stats
}

func (s *service) Close() {
	_ = s.db.Close()
	s.pool.Close()
}
