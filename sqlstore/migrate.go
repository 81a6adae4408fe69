package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepostgres "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

// runMigrations applies the outbox schema. When cfg.MigrationsSource is
// set, golang-migrate drives versioned migration files from that source
// against the database; otherwise the base entry and schema-version tables
// are created directly, matching a fresh install with no migration history
// to replay. Either path finishes by upserting the schema-version row, so
// callers can always query it regardless of which path ran.
func runMigrations(ctx context.Context, db *sql.DB, cfg Config) error {
	if cfg.MigrationsSource != "" {
		if err := runGolangMigrate(db, cfg); err != nil {
			return err
		}
	} else if err := bootstrapSchema(ctx, db, cfg); err != nil {
		return err
	}

	return upsertSchemaVersion(ctx, db, cfg)
}

func runGolangMigrate(db *sql.DB, cfg Config) error {
	driver, err := newMigrateDriver(db, cfg.Dialect)
	if err != nil {
		return err
	}

	m, err := migrate.NewWithDatabaseInstance(cfg.MigrationsSource, cfg.Dialect.Family.String(), driver)
	if err != nil {
		return fmt.Errorf("outbox sqlstore: open migrate instance: %w", err)
	}

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("outbox sqlstore: run migrations: %w", err)
	}

	return nil
}

func newMigrateDriver(db *sql.DB, d Dialect) (database.Driver, error) {
	switch d.Family {
	case FamilyPostgres:
		driver, err := migratepostgres.WithInstance(db, &migratepostgres.Config{})
		if err != nil {
			return nil, fmt.Errorf("outbox sqlstore: postgres migrate driver: %w", err)
		}

		return driver, nil
	default:
		driver, err := migratemysql.WithInstance(db, &migratemysql.Config{})
		if err != nil {
			return nil, fmt.Errorf("outbox sqlstore: mysql migrate driver: %w", err)
		}

		return driver, nil
	}
}

func bootstrapSchema(ctx context.Context, db *sql.DB, cfg Config) error {
	entryStmts, err := EntrySchema(cfg.Table, cfg.Dialect)
	if err != nil {
		return err
	}
	for _, stmt := range entryStmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("outbox sqlstore: create entry table: %w", err)
		}
	}

	versionStmt, err := SchemaVersionSchema(cfg.SchemaVersionTable, cfg.Dialect)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, versionStmt); err != nil {
		return fmt.Errorf("outbox sqlstore: create schema version table: %w", err)
	}

	return nil
}

func upsertSchemaVersion(ctx context.Context, db *sql.DB, cfg Config) error {
	table, err := sanitizeTableName(cfg.SchemaVersionTable)
	if err != nil {
		return err
	}

	if _, err := db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s", table)); err != nil {
		return fmt.Errorf("outbox sqlstore: clear schema version: %w", err)
	}

	ph := placeholders(cfg.Dialect, 2)
	stmt := fmt.Sprintf("INSERT INTO %s (version, applied_at) VALUES (%s, %s)", table, ph[0], ph[1])
	if _, err := db.ExecContext(ctx, stmt, schemaVersion, cfg.Clock.Now().UTC()); err != nil {
		return fmt.Errorf("outbox sqlstore: record schema version: %w", err)
	}

	return nil
}

// schemaVersion is the version this package's own schema corresponds to.
// It has nothing to do with golang-migrate's own per-migration-file
// versioning; it is the row this package writes for operators who just
// want a quick answer to "what outbox schema is installed".
const schemaVersion = 1
