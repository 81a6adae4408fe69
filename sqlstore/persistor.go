package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/relaycore/outbox"
)

// Persistor is a database/sql-backed outbox.Persistor[*sql.Tx]. It is
// deliberately ignorant of transaction lifecycle: every method takes an
// already-open *sql.Tx, leaving begin/commit/rollback to TxManager.
type Persistor struct {
	db      *sql.DB
	cfg     Config
	table   string
	queries queries
}

var _ outbox.Persistor[*sql.Tx] = (*Persistor)(nil)

// New constructs a Persistor. db is retained only for Migrate; all other
// methods work purely against the *sql.Tx passed in.
func New(db *sql.DB, opts ...Option) (*Persistor, error) {
	if db == nil {
		return nil, ErrDBRequired
	}

	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg = cfg.withDefaults()

	if cfg.Dialect.Placeholder == nil {
		return nil, ErrDialectRequired
	}

	table, err := sanitizeTableName(cfg.Table)
	if err != nil {
		return nil, err
	}

	return &Persistor{
		db:      db,
		cfg:     cfg,
		table:   table,
		queries: newQueries(table, cfg.Dialect),
	}, nil
}

// Save implements outbox.Persistor.
func (p *Persistor) Save(ctx context.Context, tx *sql.Tx, entry *outbox.Entry) error {
	if entry.ID == "" {
		id, err := outbox.NewEntryID(p.cfg.Generator)
		if err != nil {
			return fmt.Errorf("outbox sqlstore: generate id: %w", err)
		}
		entry.ID = id
	}

	payload, err := p.cfg.Serializer.Serialize(entry.Invocation)
	if err != nil {
		return err
	}

	_, err = tx.ExecContext(
		ctx,
		p.queries.insert,
		entry.ID,
		entry.UniqueRequestID,
		payload,
		entry.NextAttemptTime.UTC(),
		entry.Attempts,
		entry.Blocklisted,
		entry.Processed,
		entry.Version,
	)
	if err != nil {
		if p.cfg.Dialect.DuplicateKey(err) {
			return outbox.ErrAlreadyScheduled
		}

		return fmt.Errorf("outbox sqlstore: insert entry: %w", err)
	}

	return nil
}

// Update implements outbox.Persistor.
func (p *Persistor) Update(ctx context.Context, tx *sql.Tx, entry *outbox.Entry) error {
	payload, err := p.cfg.Serializer.Serialize(entry.Invocation)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(
		ctx,
		p.queries.update,
		entry.UniqueRequestID,
		payload,
		entry.NextAttemptTime.UTC(),
		entry.Attempts,
		entry.Blocklisted,
		entry.Processed,
		entry.ID,
		entry.Version,
	)
	if err != nil {
		return fmt.Errorf("outbox sqlstore: update entry: %w", err)
	}

	if err := checkOptimisticLock(res); err != nil {
		return err
	}

	entry.Version++

	return nil
}

// Delete implements outbox.Persistor.
func (p *Persistor) Delete(ctx context.Context, tx *sql.Tx, entry outbox.Entry) error {
	res, err := tx.ExecContext(ctx, p.queries.del, entry.ID, entry.Version)
	if err != nil {
		return fmt.Errorf("outbox sqlstore: delete entry: %w", err)
	}

	return checkOptimisticLock(res)
}

// Lock implements outbox.Persistor. It applies the configured write-lock
// timeout for the duration of the query so a contended row fails fast
// instead of stalling the caller's transaction indefinitely; a lock-wait
// timeout is reported as not acquired (false, nil).
func (p *Persistor) Lock(ctx context.Context, tx *sql.Tx, entry outbox.Entry) (bool, error) {
	if err := p.applyLockTimeout(ctx, tx); err != nil {
		return false, err
	}

	var (
		version  int
		mysqlErr *mysql.MySQLError
		pgErr    *pgconn.PgError
	)
	err := tx.QueryRowContext(ctx, p.queries.lock, entry.ID, entry.Version).Scan(&version)
	switch {
	case err == nil:
		return true, nil
	case err == sql.ErrNoRows:
		return false, nil
	// MySQL 1205 is a lock wait timeout; Postgres 55P03 is lock_not_available.
	case errors.As(err, &mysqlErr) && mysqlErr.Number == 1205,
		errors.As(err, &pgErr) && pgErr.Code == "55P03":
		return false, nil
	default:
		return false, fmt.Errorf("outbox sqlstore: lock entry: %w", err)
	}
}

// Whitelist implements outbox.Persistor.
func (p *Persistor) Whitelist(ctx context.Context, tx *sql.Tx, entryID string) (bool, error) {
	res, err := tx.ExecContext(ctx, p.queries.whitelist, entryID)
	if err != nil {
		return false, fmt.Errorf("outbox sqlstore: whitelist entry: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("outbox sqlstore: whitelist rows affected: %w", err)
	}

	return affected > 0, nil
}

// SelectBatch implements outbox.Persistor.
func (p *Persistor) SelectBatch(ctx context.Context, tx *sql.Tx, size int, now time.Time) ([]outbox.Entry, error) {
	if size <= 0 {
		return nil, outbox.ErrInvalidBatchSize
	}

	rows, err := tx.QueryContext(ctx, p.queries.selectBatch, now.UTC(), size)
	if err != nil {
		return nil, fmt.Errorf("outbox sqlstore: select batch: %w", err)
	}
	defer rows.Close()

	entries := make([]outbox.Entry, 0, size)
	for rows.Next() {
		entry, err := p.scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("outbox sqlstore: select batch rows: %w", err)
	}

	return entries, nil
}

// DeleteProcessedAndExpired implements outbox.Persistor.
func (p *Persistor) DeleteProcessedAndExpired(ctx context.Context, tx *sql.Tx, size int, now time.Time) (int64, error) {
	if size <= 0 {
		return 0, outbox.ErrInvalidBatchSize
	}

	res, err := tx.ExecContext(ctx, p.queries.deleteExpired, now.UTC(), size)
	if err != nil {
		return 0, fmt.Errorf("outbox sqlstore: delete expired: %w", err)
	}

	return res.RowsAffected()
}

// Migrate implements outbox.Persistor. The actual migration sequence lives
// in migrate.go (golang-migrate when a migration source is configured,
// direct CREATE TABLE statements otherwise). The outbox engine does not call
// Migrate itself; callers run it before use (e.g. outbox-flush -migrate).
func (p *Persistor) Migrate(ctx context.Context) error {
	return runMigrations(ctx, p.db, p.cfg)
}

func (p *Persistor) applyLockTimeout(ctx context.Context, tx *sql.Tx) error {
	timeout := p.cfg.WriteLockTimeout
	stmt := p.cfg.Dialect.TimeoutSetup
	if p.cfg.Dialect.Family == FamilyPostgres {
		stmt = fmt.Sprintf(stmt, int(timeout.Seconds()))
		_, err := tx.ExecContext(ctx, stmt)

		return err
	}

	_, err := tx.ExecContext(ctx, stmt, int(timeout.Seconds()))

	return err
}

func (p *Persistor) scanEntry(rows *sql.Rows) (outbox.Entry, error) {
	var (
		entry           outbox.Entry
		uniqueRequestID sql.NullString
		payload         string
	)

	if err := rows.Scan(
		&entry.ID,
		&uniqueRequestID,
		&payload,
		&entry.NextAttemptTime,
		&entry.Attempts,
		&entry.Blocklisted,
		&entry.Processed,
		&entry.Version,
	); err != nil {
		return outbox.Entry{}, fmt.Errorf("outbox sqlstore: scan entry: %w", err)
	}

	if uniqueRequestID.Valid {
		entry.UniqueRequestID = &uniqueRequestID.String
	}

	inv, err := p.cfg.Serializer.Deserialize(payload)
	if err != nil {
		return outbox.Entry{}, err
	}
	entry.Invocation = inv

	return entry, nil
}

func checkOptimisticLock(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("outbox sqlstore: rows affected: %w", err)
	}
	if affected == 0 {
		return outbox.ErrOptimisticLock
	}

	return nil
}
