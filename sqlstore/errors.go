package sqlstore

import "errors"

var (
	// ErrDBRequired is returned when a nil *sql.DB is provided.
	ErrDBRequired = errors.New("outbox sqlstore: db is required")
	// ErrTableNameRequired is returned when the table name is empty.
	ErrTableNameRequired = errors.New("outbox sqlstore: table name is required")
	// ErrInvalidTableName is returned when the table name has disallowed characters.
	ErrInvalidTableName = errors.New("outbox sqlstore: invalid table name")
	// ErrDialectRequired is returned when no Dialect is configured.
	ErrDialectRequired = errors.New("outbox sqlstore: dialect is required")
	// ErrCleanupRetentionInvalid reports a non-positive cleanup retention.
	// CleanupConfig has no retention setting, and no function in this
	// package returns it.
	ErrCleanupRetentionInvalid = errors.New("outbox sqlstore: cleanup retention must be positive")
	// ErrMigrationsRequired reports a missing migration source. Migrate does
	// not return it: without a source it creates the base tables directly.
	ErrMigrationsRequired = errors.New("outbox sqlstore: no migration source configured")
)
