package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/radiusdt/shop-insights/internal/config"
	"go.uber.org/zap"
)

// ClickHouseDB is a database/sql handle to the event tracker store.
type ClickHouseDB struct {
	DB     *sql.DB
	logger *zap.Logger
}

func clickHouseOptions(cfg config.ClickHouseConfig) *clickhouse.Options {
	return &clickhouse.Options{
		Addr: []string{cfg.Addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		DialTimeout: 5 * time.Second,
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	}
}

// NewClickHouseDB opens and pings the tracker store.
func NewClickHouseDB(ctx context.Context, cfg config.ClickHouseConfig, logger *zap.Logger) (*ClickHouseDB, error) {
	db := clickhouse.OpenDB(clickHouseOptions(cfg))
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	logger.Info("connected to ClickHouse",
		zap.String("addr", cfg.Addr),
		zap.String("database", cfg.Database),
	)

	return &ClickHouseDB{DB: db, logger: logger}, nil
}

// Close closes the connection pool.
func (c *ClickHouseDB) Close() error {
	if c.DB != nil {
		c.logger.Info("ClickHouse connection closed")
		return c.DB.Close()
	}
	return nil
}

// Health checks if ClickHouse is reachable.
func (c *ClickHouseDB) Health(ctx context.Context) error {
	return c.DB.PingContext(ctx)
}
