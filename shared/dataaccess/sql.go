package dataaccess

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLConfig holds a DSN and database/sql pool settings.
type SQLConfig struct {
	DSN             string
	MaxIdleConns    int
	MaxOpenConns    int
	ConnMaxLifetime time.Duration
}

// OpenSQL opens a database/sql handle for driver and verifies it with a ping.
// The handle is closed when the ping fails.
func OpenSQL(ctx context.Context, driver string, cfg SQLConfig) (*sql.DB, error) {
	db, err := sql.Open(driver, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", driver, err)
	}
	ConfigureSQL(db, cfg)
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping %s: %w", driver, err)
	}
	return db, nil
}

// ConfigureSQL applies pooling parameters. Zero values keep the driver defaults.
func ConfigureSQL(db *sql.DB, cfg SQLConfig) {
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
}
