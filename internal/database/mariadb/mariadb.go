// Package mariadb reads the enrollment gallery from an external MariaDB/MySQL
// database owned by the enrollment subsystem. Access is read-only.
package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/kozaktomas/checkpoint/internal/config"
)

// Pool wraps the enrollment database connection.
type Pool struct {
	db *sql.DB
}

// dsnConfig parses the DSN and forces the options the gallery queries rely on.
func dsnConfig(dsn string) (*mysql.Config, error) {
	if dsn == "" {
		return nil, errors.New("enrollment database DSN is required")
	}
	mc, err := mysql.ParseDSN(dsn)
	if err != nil {
		return nil, fmt.Errorf("invalid enrollment database DSN: %w", err)
	}
	mc.ParseTime = true
	if mc.Timeout == 0 {
		mc.Timeout = 10 * time.Second
	}
	if mc.ReadTimeout == 0 {
		mc.ReadTimeout = 30 * time.Second
	}
	// Reference images can be several megabytes each.
	if mc.MaxAllowedPacket < 16<<20 {
		mc.MaxAllowedPacket = 16 << 20
	}
	return mc, nil
}

// NewPool connects to the enrollment database and verifies it is reachable.
func NewPool(cfg config.EnrollmentConfig) (*Pool, error) {
	mc, err := dsnConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, fmt.Errorf("failed to configure enrollment database: %w", err)
	}

	db := sql.OpenDB(connector)
	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = 5
	}
	db.SetMaxOpenConns(maxOpen)
	db.SetMaxIdleConns(min(2, maxOpen))
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), mc.Timeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to reach enrollment database %s: %w", mc.Addr, err)
	}

	return &Pool{db: db}, nil
}

// Close closes the connection pool.
func (p *Pool) Close() error {
	if p.db == nil {
		return nil
	}
	if err := p.db.Close(); err != nil {
		return fmt.Errorf("closing enrollment database: %w", err)
	}
	return nil
}
