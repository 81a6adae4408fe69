package sqlstore

import (
	"strings"
	"testing"
)

func TestEntrySchemaUsesDialectDateTimeType(t *testing.T) {
	stmts, err := EntrySchema("outbox", MySQL8)
	if err != nil {
		t.Fatalf("entry schema: %v", err)
	}
	if !strings.Contains(stmts[0], "DATETIME(6)") {
		t.Fatalf("expected MySQL schema to use DATETIME(6): %s", stmts[0])
	}

	stmts, err = EntrySchema("outbox", Postgres9)
	if err != nil {
		t.Fatalf("entry schema: %v", err)
	}
	if !strings.Contains(stmts[0], "TIMESTAMP(6)") {
		t.Fatalf("expected Postgres schema to use TIMESTAMP(6): %s", stmts[0])
	}
}

func TestEntrySchemaRejectsInvalidTableName(t *testing.T) {
	if _, err := EntrySchema("bad;name", MySQL8); err == nil {
		t.Fatalf("expected error for invalid table name")
	}
}

func TestSchemaVersionSchema(t *testing.T) {
	stmt, err := SchemaVersionSchema("outbox_schema_version", Postgres9)
	if err != nil {
		t.Fatalf("schema version schema: %v", err)
	}
	if !strings.Contains(stmt, "outbox_schema_version") {
		t.Fatalf("expected table name in statement: %s", stmt)
	}
}
