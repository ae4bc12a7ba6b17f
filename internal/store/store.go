// Package store is the persistence layer (treated by spec.md §1 as an
// external collaborator, "a transactional document/row store with
// unique-key and range-query capability"); this package gives it a
// concrete Postgres implementation so the repository layer has something
// real to exercise SELECT ... FOR UPDATE row locks and composite-PK
// dedup-on-insert against. Grounded on the teacher's
// internal/database/connection_test.go (DefaultConfig/LoadFromEnv shape),
// generalized from its SLM/action_history schema to this engine's
// Device/Asset/Application/Datastream/Datafeed schema.
package store

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/jmoiron/sqlx"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
)

// Config configures the connection pool backing Store.
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig mirrors the teacher's database.DefaultConfig: sane local
// development defaults, overridden by LoadFromEnv in any real deployment.
func DefaultConfig() *Config {
	return &Config{
		Host:            "localhost",
		Port:            5432,
		User:            "monapps",
		Database:        "monapps",
		SSLMode:         "disable",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 5 * time.Minute,
	}
}

// LoadFromEnv overrides c's fields from DB_HOST/DB_PORT/DB_USER/
// DB_PASSWORD/DB_NAME/DB_SSL_MODE, matching the teacher's LoadFromEnv
// whitelist. An unparsable DB_PORT is ignored, keeping the prior value.
func (c *Config) LoadFromEnv() {
	if v := os.Getenv("DB_HOST"); v != "" {
		c.Host = v
	}
	if v := os.Getenv("DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			c.Port = port
		}
	}
	if v := os.Getenv("DB_USER"); v != "" {
		c.User = v
	}
	if v := os.Getenv("DB_PASSWORD"); v != "" {
		c.Password = v
	}
	if v := os.Getenv("DB_NAME"); v != "" {
		c.Database = v
	}
	if v := os.Getenv("DB_SSL_MODE"); v != "" {
		c.SSLMode = v
	}
}

// DSN renders c as a libpq-style connection string for the pgx stdlib
// driver.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// Store wraps a connection pool and the composed per-entity repositories.
// Every repository method that read-modifies-writes a row takes an
// explicit *sqlx.Tx so the caller controls the transaction and the
// row-lock boundary (spec.md §5's "take the row's exclusive lock" rule).
type Store struct {
	DB *sqlx.DB

	Devices      *DeviceRepo
	Assets       *AssetRepo
	Applications *ApplicationRepo
	Datastreams  *DatastreamRepo
	Datafeeds    *DatafeedRepo
	Tasks        *TaskRepo
	DsReadings   *DsReadingRepo
	DfReadings   *DfReadingRepo
	NoDataMarkers *NoDataMarkerRepo
}

// Open dials cfg's DSN through the pgx stdlib driver, wraps it in sqlx for
// struct scanning, and wires the per-entity repositories on top.
func Open(ctx context.Context, cfg *Config) (*Store, error) {
	db, err := sqlx.Open("pgx", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &Store{
		DB:           db,
		Devices:      &DeviceRepo{db: db},
		Assets:       &AssetRepo{db: db},
		Applications: &ApplicationRepo{db: db},
		Datastreams:  &DatastreamRepo{db: db},
		Datafeeds:    &DatafeedRepo{db: db},
		Tasks:        &TaskRepo{db: db},
		DsReadings:   &DsReadingRepo{db: db},
		DfReadings:   &DfReadingRepo{db: db},
		NoDataMarkers: &NoDataMarkerRepo{db: db},
	}, nil
}

// Close releases the pool.
func (s *Store) Close() error { return s.DB.Close() }

// WithTx runs fn inside a transaction, committing on a nil return and
// rolling back otherwise — the shared wrapper every row-locking update
// (§5) goes through.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.DB.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("store: rollback after %w: %v", err, rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}
