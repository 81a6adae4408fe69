package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/relaycore/outbox"
)

const (
	defaultCleanupLimit = 10000
	defaultCleanupEvery = time.Hour
	advisoryLockSalt    = 0x6f75746278 // "outbx" as a fixed 64-bit salt for pg_advisory_lock
)

// CleanupConfig controls periodic cleanup via CleanupMaintainer.
type CleanupConfig struct {
	// CheckEvery is the interval between cleanup runs.
	CheckEvery time.Duration
	// Limit caps the number of rows deleted per run (0 uses the default).
	Limit int
	// Logger receives warnings about cleanup failures.
	Logger outbox.Logger
	// Clock overrides the time source.
	Clock outbox.Clock
}

func (c CleanupConfig) withDefaults() CleanupConfig {
	if c.CheckEvery <= 0 {
		c.CheckEvery = defaultCleanupEvery
	}
	if c.Limit <= 0 {
		c.Limit = defaultCleanupLimit
	}
	if c.Logger == nil {
		c.Logger = outbox.NopLogger{}
	}
	if c.Clock == nil {
		c.Clock = outbox.SystemClock{}
	}

	return c
}

// CleanupMaintainer periodically purges processed, expired entries,
// coordinating across multiple application instances with a dialect-native
// advisory lock so only one instance runs a cleanup pass at a time. This
// generalizes the MySQL-only GET_LOCK/RELEASE_LOCK approach to also cover
// Postgres's pg_try_advisory_lock, since the outbox Persistor itself
// targets both dialects.
type CleanupMaintainer struct {
	persistor *Persistor
	db        *sql.DB
	table     string
	dialect   Dialect
	cfg       CleanupConfig
}

// NewCleanupMaintainer builds a CleanupMaintainer bound to persistor.
func NewCleanupMaintainer(db *sql.DB, persistor *Persistor, cfg CleanupConfig) *CleanupMaintainer {
	return &CleanupMaintainer{
		persistor: persistor,
		db:        db,
		table:     persistor.table,
		dialect:   persistor.cfg.Dialect,
		cfg:       cfg.withDefaults(),
	}
}

// Run periodically deletes expired entries until ctx is canceled.
func (m *CleanupMaintainer) Run(ctx context.Context) error {
	ticker := time.NewTicker(m.cfg.CheckEvery)
	defer ticker.Stop()

	if _, err := m.Ensure(ctx); err != nil {
		m.cfg.Logger.Warn("outbox cleanup failed", "error", err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Ensure(ctx); err != nil {
				m.cfg.Logger.Warn("outbox cleanup failed", "error", err)
			}
		}
	}
}

// Ensure executes a single cleanup pass, skipping it entirely if another
// instance already holds the advisory lock.
func (m *CleanupMaintainer) Ensure(ctx context.Context) (int64, error) {
	conn, err := m.db.Conn(ctx)
	if err != nil {
		return 0, fmt.Errorf("outbox sqlstore: cleanup conn: %w", err)
	}
	defer conn.Close()

	locked, err := m.tryLock(ctx, conn)
	if err != nil {
		return 0, err
	}
	if !locked {
		m.cfg.Logger.Debug("outbox cleanup lock held by another instance")

		return 0, nil
	}
	defer m.releaseLock(ctx, conn)

	now := m.cfg.Clock.Now()

	tx, err := m.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("outbox sqlstore: cleanup begin tx: %w", err)
	}

	deleted, err := m.persistor.DeleteProcessedAndExpired(ctx, tx, m.cfg.Limit, now)
	if err != nil {
		_ = tx.Rollback()

		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("outbox sqlstore: cleanup commit: %w", err)
	}

	return deleted, nil
}

func (m *CleanupMaintainer) tryLock(ctx context.Context, conn *sql.Conn) (bool, error) {
	if m.dialect.Family == FamilyPostgres {
		var got bool
		if err := conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock($1)", int64(advisoryLockSalt)).Scan(&got); err != nil {
			return false, fmt.Errorf("outbox sqlstore: acquire cleanup lock: %w", err)
		}

		return got, nil
	}

	var got sql.NullInt64
	if err := conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, 0)", m.lockName()).Scan(&got); err != nil {
		return false, fmt.Errorf("outbox sqlstore: acquire cleanup lock: %w", err)
	}

	return got.Valid && got.Int64 == 1, nil
}

func (m *CleanupMaintainer) releaseLock(ctx context.Context, conn *sql.Conn) {
	if m.dialect.Family == FamilyPostgres {
		if _, err := conn.ExecContext(ctx, "SELECT pg_advisory_unlock($1)", int64(advisoryLockSalt)); err != nil {
			m.cfg.Logger.Warn("outbox cleanup release lock failed", "error", err)
		}

		return
	}

	if _, err := conn.ExecContext(ctx, "SELECT RELEASE_LOCK(?)", m.lockName()); err != nil {
		m.cfg.Logger.Warn("outbox cleanup release lock failed", "error", err)
	}
}

func (m *CleanupMaintainer) lockName() string {
	return "outbox:cleanup:" + m.table
}
