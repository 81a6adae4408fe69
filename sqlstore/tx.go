package sqlstore

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/relaycore/outbox"
)

type txContextKey struct{}

// TxManager is a database/sql-backed outbox.TransactionManager[*sql.Tx]. It
// stores the active transaction on the context it hands to work, rejects
// nested InTransaction calls, and drains post-commit hooks synchronously,
// on the committing goroutine, before InTransaction returns.
type TxManager struct {
	db     *sql.DB
	txOpts *sql.TxOptions
	logger outbox.Logger
}

var _ outbox.TransactionManager[*sql.Tx] = (*TxManager)(nil)

// NewTxManager constructs a TxManager over db. txOpts is passed verbatim to
// BeginTx; nil uses the driver's default isolation level.
func NewTxManager(db *sql.DB, txOpts *sql.TxOptions, logger outbox.Logger) *TxManager {
	if logger == nil {
		logger = outbox.NopLogger{}
	}

	return &TxManager{db: db, txOpts: txOpts, logger: logger}
}

type activeTx struct {
	tx    *sql.Tx
	ctx   context.Context
	hooks []func(ctx context.Context) error
}

func (a *activeTx) Connection() *sql.Tx        { return a.tx }
func (a *activeTx) Context() context.Context   { return a.ctx }
func (a *activeTx) AddPostCommitHook(hook func(ctx context.Context) error) {
	a.hooks = append(a.hooks, hook)
}

// InTransaction implements outbox.TransactionManager.
func (m *TxManager) InTransaction(ctx context.Context, work func(tx outbox.Transaction[*sql.Tx]) error) error {
	if _, ok := ctx.Value(txContextKey{}).(*activeTx); ok {
		return outbox.ErrNestedTransaction
	}

	sqlTx, err := m.db.BeginTx(ctx, m.txOpts)
	if err != nil {
		return fmt.Errorf("outbox sqlstore: begin transaction: %w", err)
	}

	active := &activeTx{tx: sqlTx}
	active.ctx = context.WithValue(ctx, txContextKey{}, active)

	if err := m.runWork(active, work); err != nil {
		_ = sqlTx.Rollback()

		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("outbox sqlstore: commit transaction: %w", err)
	}

	m.runPostCommitHooks(ctx, active)

	return nil
}

func (m *TxManager) runWork(active *activeTx, work func(tx outbox.Transaction[*sql.Tx]) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("outbox sqlstore: transaction work panicked: %v", r)
		}
	}()

	return work(active)
}

func (m *TxManager) runPostCommitHooks(ctx context.Context, active *activeTx) {
	for _, hook := range active.hooks {
		func() {
			defer func() {
				if r := recover(); r != nil {
					m.logger.Warn("outbox post-commit hook panic", "panic", r)
				}
			}()
			if err := hook(ctx); err != nil {
				m.logger.Warn("outbox post-commit hook failed", "error", err)
			}
		}()
	}
}

// RequireTransaction implements outbox.TransactionManager.
func (m *TxManager) RequireTransaction(ctx context.Context) (outbox.Transaction[*sql.Tx], error) {
	active, ok := ctx.Value(txContextKey{}).(*activeTx)
	if !ok {
		return nil, outbox.ErrNoTransactionActive
	}

	return active, nil
}
