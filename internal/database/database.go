// Package database wraps the GORM/Postgres connection pool with a
// transaction helper and a classifier that turns driver-level constraint
// violations into the typed errors the service layer expects.
package database

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Errors every service layer classifies against. Classify wraps the driver
// errors it recognises into one of these; any other error passes through
// unchanged.
var (
	ErrNotFound         = errors.New("database: resource not found")
	ErrAlreadyExists    = errors.New("database: resource already exists")
	ErrForeignKeyMissing = errors.New("database: referenced resource does not exist")
)

// postgres constraint-violation SQLSTATE codes, per
// https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
)

// DB wraps *gorm.DB with the connection-pool defaults and transaction
// helper the rest of the service layer depends on.
type DB struct {
	*gorm.DB
}

// Config controls pool sizing; zero values fall back to CPU-count-derived
// defaults matching the concurrency model's default of CPU-count x 2 max
// connections.
type Config struct {
	DSN         string
	MaxOpenConns int
	MaxIdleConns int
}

// Open connects to Postgres and configures the pool.
func Open(cfg Config) (*DB, error) {
	gormDB, err := gorm.Open(postgres.Open(cfg.DSN), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := gormDB.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}

	maxOpen := cfg.MaxOpenConns
	if maxOpen <= 0 {
		maxOpen = runtime.NumCPU() * 2
	}
	sqlDB.SetMaxOpenConns(maxOpen)

	maxIdle := cfg.MaxIdleConns
	if maxIdle <= 0 {
		maxIdle = maxOpen
	}
	sqlDB.SetMaxIdleConns(maxIdle)

	return &DB{DB: gormDB}, nil
}

// WithTx runs fn inside a transaction bound to ctx. Any error returned from
// fn (or a panic) rolls the transaction back; a nil return commits. This is
// the sole way service packages open transactions, so every multi-entity
// write goes through a single choke point.
func WithTx(ctx context.Context, db *DB, fn func(tx *gorm.DB) error) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(tx)
	})
}

// Classify maps a not-found, unique-violation or foreign-key-violation error
// into one of this package's sentinel errors, preserving the original as the
// wrapped cause so callers can still log/inspect it. Any other error is
// returned unchanged.
func Classify(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%w: %w", ErrNotFound, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation:
			return fmt.Errorf("%w: %s: %w", ErrAlreadyExists, pgErr.ConstraintName, err)
		case sqlStateForeignKeyViolation:
			return fmt.Errorf("%w: %s: %w", ErrForeignKeyMissing, pgErr.ConstraintName, err)
		}
	}

	return err
}
