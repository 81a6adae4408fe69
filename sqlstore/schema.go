package sqlstore

import "fmt"

// entryTableTemplate's trailing %[3]s slot carries the MySQL-only inline
// INDEX clause; Postgres has no inline INDEX syntax inside CREATE TABLE and
// gets its index from a separate CREATE INDEX IF NOT EXISTS statement
// instead, since only Postgres (not MySQL) supports IF NOT EXISTS there.
const entryTableTemplate = `CREATE TABLE IF NOT EXISTS %[1]s (
	id VARCHAR(36) NOT NULL PRIMARY KEY,
	unique_request_id VARCHAR(512) NULL,
	invocation TEXT NOT NULL,
	next_attempt_time %[2]s NOT NULL,
	attempts INT NOT NULL DEFAULT 0,
	blocklisted BOOLEAN NOT NULL DEFAULT FALSE,
	processed BOOLEAN NOT NULL DEFAULT FALSE,
	version INT NOT NULL DEFAULT 1,
	UNIQUE (unique_request_id)%[3]s
);`

const mysqlInlineIndexClause = `,
	INDEX idx_%[1]s_selectable (next_attempt_time, blocklisted, processed)`

const postgresIndexTemplate = `CREATE INDEX IF NOT EXISTS idx_%[1]s_selectable ON %[1]s (next_attempt_time, blocklisted, processed);`

const schemaVersionTableTemplate = `CREATE TABLE IF NOT EXISTS %[1]s (
	version INT NOT NULL,
	applied_at %[2]s NOT NULL
);`

func dateTimeType(d Dialect) string {
	if d.Family == FamilyPostgres {
		return "TIMESTAMP(6)"
	}

	return "DATETIME(6)"
}

// EntrySchema returns the CREATE TABLE / CREATE INDEX statements for the
// outbox's entry table under dialect d.
func EntrySchema(table string, d Dialect) ([]string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return nil, err
	}

	if d.Family == FamilyPostgres {
		return []string{
			fmt.Sprintf(entryTableTemplate, name, dateTimeType(d), ""),
			fmt.Sprintf(postgresIndexTemplate, name),
		}, nil
	}

	return []string{
		fmt.Sprintf(entryTableTemplate, name, dateTimeType(d), fmt.Sprintf(mysqlInlineIndexClause, name)),
	}, nil
}

// SchemaVersionSchema returns the CREATE TABLE statement for the migration
// tracking table under dialect d.
func SchemaVersionSchema(table string, d Dialect) (string, error) {
	name, err := sanitizeTableName(table)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf(schemaVersionTableTemplate, name, dateTimeType(d)), nil
}
