package outbox

import (
	"context"
	"time"
)

// Persistor is the pure-SQL core: CRUD, batch-select-with-lock, and
// expired-record cleanup, parameterized by whatever the TransactionManager
// exposes as a connection (CN, typically *sql.Tx).
type Persistor[CN any] interface {
	// Save inserts a new entry. If UniqueRequestID is nil the insert may be
	// batched on the active transaction; otherwise it must execute
	// immediately and translate a unique-constraint violation into
	// ErrAlreadyScheduled.
	Save(ctx context.Context, conn CN, entry *Entry) error
	// Update writes entry's mutable fields with an optimistic-lock check on
	// Version, bumping Version by 1 on success. Zero rows affected returns
	// ErrOptimisticLock and leaves entry untouched.
	Update(ctx context.Context, conn CN, entry *Entry) error
	// Delete removes entry with an optimistic-lock check on Version. Zero
	// rows affected returns ErrOptimisticLock.
	Delete(ctx context.Context, conn CN, entry Entry) error
	// Lock attempts to acquire a row-level lock on entry.ID at entry.Version,
	// bounded by the persistor's configured write-lock timeout. It returns
	// false (not an error) if the row is missing, versioned differently, or
	// the lock could not be acquired within the timeout.
	Lock(ctx context.Context, conn CN, entry Entry) (bool, error)
	// Whitelist conditionally resets a blocklisted, unprocessed entry to
	// Attempts=0, Blocklisted=false. It reports whether a row changed;
	// repeated calls after the first success are idempotent no-ops.
	Whitelist(ctx context.Context, conn CN, entryID string) (bool, error)
	// SelectBatch returns up to size selectable entries due strictly before
	// now, locked for the caller under FOR UPDATE [SKIP LOCKED] where the
	// dialect supports it.
	SelectBatch(ctx context.Context, conn CN, size int, now time.Time) ([]Entry, error)
	// DeleteProcessedAndExpired removes up to size processed, non-blocklisted
	// rows whose NextAttemptTime is before now. It never deletes a
	// non-processed row.
	DeleteProcessedAndExpired(ctx context.Context, conn CN, size int, now time.Time) (int64, error)
	// Migrate applies the append-only, idempotent schema migration sequence.
	Migrate(ctx context.Context) error
}
