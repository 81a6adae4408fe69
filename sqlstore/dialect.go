// Package sqlstore is a database/sql-backed Persistor and TransactionManager
// for github.com/relaycore/outbox, supporting MySQL and PostgreSQL through a
// small per-dialect difference table rather than separate packages per
// driver.
package sqlstore

import "fmt"

// Family groups dialects that share the same SQL surface (placeholder
// style, row-locking syntax, error codes).
type Family int

const (
	FamilyMySQL Family = iota
	FamilyPostgres
)

// String implements fmt.Stringer.
func (f Family) String() string {
	switch f {
	case FamilyMySQL:
		return "mysql"
	case FamilyPostgres:
		return "postgres"
	default:
		return fmt.Sprintf("family(%d)", int(f))
	}
}

// Dialect captures the handful of SQL differences the persistor needs to
// paper over: family, SKIP LOCKED support, placeholder style, the statement
// that applies a lock-wait timeout, a delete-expired template (Postgres has
// no DELETE ... LIMIT form, so its template uses a subselect), and
// duplicate-key error classification. It has no integer-cast or date-time
// type field; schema.go picks the column type by Family.
type Dialect struct {
	Name             string
	Family           Family
	SupportsSkipLock bool
	Placeholder      func(n int) string
	TimeoutSetup     string
	DeleteExpired    string
	DuplicateKey     func(err error) bool
}

// questionPlaceholder returns "?" regardless of position, MySQL's style.
func questionPlaceholder(int) string { return "?" }

// dollarPlaceholder returns "$n", Postgres's style. n is 1-based.
func dollarPlaceholder(n int) string { return fmt.Sprintf("$%d", n) }

var (
	// MySQL5 lacks SKIP LOCKED; selecting a batch under load serializes on
	// whatever rows a concurrent flusher is already holding.
	MySQL5 = Dialect{
		Name:             "mysql5",
		Family:           FamilyMySQL,
		SupportsSkipLock: false,
		Placeholder:      questionPlaceholder,
		TimeoutSetup:     "SET innodb_lock_wait_timeout = ?",
		DeleteExpired:    "DELETE FROM %s WHERE next_attempt_time < ? AND processed = true AND blocklisted = false LIMIT ?",
		DuplicateKey:     isMySQLDuplicateKey,
	}

	// MySQL8 adds SKIP LOCKED, letting concurrent flushers skip rows already
	// locked by another worker instead of blocking on them.
	MySQL8 = Dialect{
		Name:             "mysql8",
		Family:           FamilyMySQL,
		SupportsSkipLock: true,
		Placeholder:      questionPlaceholder,
		TimeoutSetup:     "SET innodb_lock_wait_timeout = ?",
		DeleteExpired:    "DELETE FROM %s WHERE next_attempt_time < ? AND processed = true AND blocklisted = false LIMIT ?",
		DuplicateKey:     isMySQLDuplicateKey,
	}

	// Postgres9 is the default Postgres dialect: SKIP LOCKED has been
	// available since 9.5, and the delete-expired statement uses a
	// subselect since Postgres has no UPDATE/DELETE-with-JOIN-and-LIMIT form.
	Postgres9 = Dialect{
		Name:             "postgres9",
		Family:           FamilyPostgres,
		SupportsSkipLock: true,
		Placeholder:      dollarPlaceholder,
		TimeoutSetup:     "SET LOCAL lock_timeout = '%ds'",
		DeleteExpired: "DELETE FROM %[1]s WHERE id IN (" +
			"SELECT id FROM %[1]s WHERE next_attempt_time < $1 AND processed = true AND blocklisted = false LIMIT $2)",
		DuplicateKey: isPostgresDuplicateKey,
	}

	// PostgresNoSkipLock exists for exercising the SKIP LOCKED fallback path
	// against a real Postgres server in tests, matching the deprecated
	// POSTGRESQL__TEST_NO_SKIP_LOCK dialect this was ported from.
	PostgresNoSkipLock = Dialect{
		Name:             "postgres_no_skip_lock",
		Family:           FamilyPostgres,
		SupportsSkipLock: false,
		Placeholder:      dollarPlaceholder,
		TimeoutSetup:     "SET LOCAL lock_timeout = '%ds'",
		DeleteExpired: "DELETE FROM %[1]s WHERE id IN (" +
			"SELECT id FROM %[1]s WHERE next_attempt_time < $1 AND processed = true AND blocklisted = false LIMIT $2)",
		DuplicateKey: isPostgresDuplicateKey,
	}
)

// All returns every built-in dialect.
func All() []Dialect {
	return []Dialect{MySQL5, MySQL8, Postgres9, PostgresNoSkipLock}
}

// Only returns the built-in dialects belonging to family.
func Only(family Family) []Dialect {
	var out []Dialect
	for _, d := range All() {
		if d.Family == family {
			out = append(out, d)
		}
	}

	return out
}

// Excluding returns every built-in dialect not belonging to family.
func Excluding(family Family) []Dialect {
	var out []Dialect
	for _, d := range All() {
		if d.Family != family {
			out = append(out, d)
		}
	}

	return out
}
