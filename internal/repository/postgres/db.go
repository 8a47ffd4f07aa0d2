// Package postgres stores the raw, staging and mart namespaces of the
// warehouse in PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/ignite/channel-warehouse/internal/config"
	"github.com/ignite/channel-warehouse/internal/domain"
	"github.com/ignite/channel-warehouse/internal/pkg/logger"
)

// Open opens the warehouse pool and waits until it answers a ping.
func Open(ctx context.Context, cfg config.DatabaseConfig) (*sql.DB, error) {
	db, err := sql.Open("postgres", cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime())

	if err := Connect(ctx, db, cfg.ConnectRetries, cfg.ConnectRetryWait()); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("postgres: connected", "database_url", cfg.URL)
	return db, nil
}

// Connect pings db up to attempts times, pausing wait between tries. Once
// attempts are exhausted it returns an error wrapping ErrStorageUnavailable.
func Connect(ctx context.Context, db *sql.DB, attempts int, wait time.Duration) error {
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		lastErr = db.PingContext(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}

		logger.Warn("postgres: connection attempt failed",
			"attempt", attempt, "max", attempts, "error", lastErr)
		if attempt == attempts {
			break
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return fmt.Errorf("%w: %v", domain.ErrStorageUnavailable, ctx.Err())
		case <-timer.C:
		}
	}
	return fmt.Errorf("%w: after %d attempts: %v", domain.ErrStorageUnavailable, attempts, lastErr)
}

// withTx runs fn inside a transaction, committing on success.
func withTx(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// Store is the whole warehouse behind one handle: the raw namespace and
// the marts.
type Store struct {
	*RawRepo
	*MartRepo
}

// NewStore wraps db.
func NewStore(db *sql.DB) *Store {
	return &Store{RawRepo: NewRawRepo(db), MartRepo: NewMartRepo(db)}
}
