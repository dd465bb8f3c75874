package database

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/radiusdt/ivt-audit/internal/config"
	"go.uber.org/zap"
)

// ClickHouseDB holds the native connection backing the ClickHouse event
// store.
type ClickHouseDB struct {
	Conn   driver.Conn
	logger *zap.Logger
}

// NewClickHouseDB opens a ClickHouse connection and verifies it.
func NewClickHouseDB(ctx context.Context, cfg config.ClickHouseConfig, logger *zap.Logger) (*ClickHouseDB, error) {
	dial := cfg.DialTimeout
	if dial <= 0 {
		dial = connectTimeout
	}

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: cfg.Addrs,
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		DialTimeout: dial,
		// Full-table scans stream a lot of text columns.
		ReadTimeout: 5 * time.Minute,
		Compression: &clickhouse.Compression{Method: clickhouse.CompressionLZ4},
		Settings: clickhouse.Settings{
			"log_comment": appName,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open ClickHouse connection: %w", err)
	}

	if err := pingBackend(ctx, "ClickHouse", conn.Ping); err != nil {
		conn.Close()
		return nil, err
	}

	logger.Info("connected to ClickHouse",
		zap.Strings("addrs", cfg.Addrs),
		zap.String("database", cfg.Database),
	)

	return &ClickHouseDB{Conn: conn, logger: logger}, nil
}

func (db *ClickHouseDB) Close() error {
	if db.Conn == nil {
		return nil
	}
	db.logger.Info("ClickHouse connection closed")
	return db.Conn.Close()
}

func (db *ClickHouseDB) Health(ctx context.Context) error {
	return pingBackend(ctx, "ClickHouse", db.Conn.Ping)
}
