package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/autoguides/contentfix/internal/config"
	_ "github.com/lib/pq" // PostgreSQL driver
)

// Config holds database connection configuration.
type Config struct {
	URL                string
	MaxConnections     int
	MaxIdleConnections int
	ConnMaxLifetime    time.Duration
	ConnectTimeout     time.Duration
}

// DefaultConfig returns sensible defaults for database configuration.
func DefaultConfig() Config {
	return Config{
		MaxConnections:     10,
		MaxIdleConnections: 2,
		ConnMaxLifetime:    5 * time.Minute,
		ConnectTimeout:     10 * time.Second,
	}
}

// ConfigFrom fills a Config from the application settings, keeping defaults
// for unset pool values.
func ConfigFrom(cfg config.DatabaseConfig) Config {
	out := DefaultConfig()
	out.URL = cfg.URL
	if cfg.MaxConnections > 0 {
		out.MaxConnections = cfg.MaxConnections
	}
	if cfg.MaxIdleConnections > 0 {
		out.MaxIdleConnections = cfg.MaxIdleConnections
	}
	if cfg.ConnMaxLifetime > 0 {
		out.ConnMaxLifetime = cfg.ConnMaxLifetime
	}
	if cfg.ConnectTimeout > 0 {
		out.ConnectTimeout = cfg.ConnectTimeout
	}
	return out
}

// Connect establishes a connection to the PostgreSQL database.
func Connect(ctx context.Context, cfg Config) (*sql.DB, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("database URL is required")
	}

	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxConnections)
	db.SetMaxIdleConns(cfg.MaxIdleConnections)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// HealthCheck performs a database health check.
func HealthCheck(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result != 1 {
		return fmt.Errorf("unexpected health check result: %d", result)
	}
	return nil
}

// Stats returns connection pool statistics.
func Stats(db *sql.DB) map[string]interface{} {
	stats := db.Stats()
	return map[string]interface{}{
		"max_open_connections": stats.MaxOpenConnections,
		"open_connections":     stats.OpenConnections,
		"in_use":               stats.InUse,
		"idle":                 stats.Idle,
		"wait_count":           stats.WaitCount,
		"wait_duration_ms":     stats.WaitDuration.Milliseconds(),
	}
}
