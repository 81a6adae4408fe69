//go:build integration

package sqlstore_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"

	"github.com/relaycore/outbox"
	"github.com/relaycore/outbox/sqlstore"
)

type shipper struct {
	mu      sync.Mutex
	shipped []string
}

func (s *shipper) Ship(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shipped = append(s.shipped, orderID)

	return nil
}

func TestOutboxEndToEndDeliversScheduledInvocationIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("integration test disabled in short mode")
	}

	ctx := context.Background()
	container, db := startMySQLContainer(t, ctx)
	t.Cleanup(func() {
		_ = db.Close()
		_ = container.Terminate(ctx)
	})

	persistor, err := sqlstore.New(db, sqlstore.WithDialect(sqlstore.MySQL8))
	require.NoError(t, err)
	require.NoError(t, persistor.Migrate(ctx))

	tm := sqlstore.NewTxManager(db, nil, outbox.NopLogger{})

	target := &shipper{}
	instantiator := outbox.NewMapInstantiator()
	instantiator.Register("shipper", func() any { return target })

	ob, err := outbox.New(
		outbox.WithTransactionManager[*sql.Tx](tm),
		outbox.WithPersistor[*sql.Tx](persistor),
		outbox.WithInstantiator[*sql.Tx](instantiator),
	)
	require.NoError(t, err)

	ob.Start(ctx)
	t.Cleanup(func() { _ = ob.Shutdown(ctx) })

	err = tm.InTransaction(ctx, func(tx outbox.Transaction[*sql.Tx]) error {
		return ob.Schedule(tx.Context(), "shipper", "Ship", []any{"order-42"})
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		target.mu.Lock()
		defer target.mu.Unlock()

		return len(target.shipped) == 1 && target.shipped[0] == "order-42"
	}, 5*time.Second, 20*time.Millisecond)
}
