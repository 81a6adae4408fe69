//go:build integration

package sqlstore_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/docker/go-connections/nat"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/relaycore/outbox"
	"github.com/relaycore/outbox/sqlstore"
)

func TestPersistorPostgresRoundTripIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startPostgresContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	persistor, err := sqlstore.New(db, sqlstore.WithDialect(sqlstore.Postgres9))
	require.NoError(t, err)
	require.NoError(t, persistor.Migrate(ctx))

	entry := outbox.Entry{
		Invocation: outbox.Invocation{ClassName: "OrderShipper", MethodName: "Ship", Args: []any{"order-1"}},
		Version:    1,
	}

	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, persistor.Save(ctx, tx, &entry))
	require.NoError(t, tx.Commit())

	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	due, err := persistor.SelectBatch(ctx, tx, 10, time.Now().Add(time.Second))
	require.NoError(t, err)
	require.Len(t, due, 1)
	require.Equal(t, entry.ID, due[0].ID)
	require.Equal(t, "OrderShipper", due[0].Invocation.ClassName)
	require.NoError(t, tx.Commit())

	tx, err = db.BeginTx(ctx, nil)
	require.NoError(t, err)
	require.NoError(t, persistor.Delete(ctx, tx, due[0]))
	require.NoError(t, tx.Commit())
}

func startPostgresContainer(t *testing.T, ctx context.Context) (testcontainers.Container, *sql.DB) {
	t.Helper()
	port := nat.Port("5432/tcp")
	req := testcontainers.ContainerRequest{
		Image:        "postgres:16",
		ExposedPorts: []string{string(port)},
		Env: map[string]string{
			"POSTGRES_PASSWORD": "secret",
			"POSTGRES_DB":       "outbox",
		},
		WaitingFor: wait.ForSQL(port, "pgx", func(host string, port nat.Port) string {
			return fmt.Sprintf("postgres://postgres:secret@%s:%s/outbox?sslmode=disable", host, port.Port())
		}).WithStartupTimeout(2 * time.Minute),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("start postgres container: %v", err)
	}

	host, err := container.Host(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve host: %v", err)
	}
	mappedPort, err := container.MappedPort(ctx, port)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("resolve port: %v", err)
	}

	dsn := fmt.Sprintf("postgres://postgres:secret@%s:%s/outbox?sslmode=disable", host, mappedPort.Port())
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("open db: %v", err)
	}

	return container, db
}
