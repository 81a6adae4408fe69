package outbox

import "context"

// Transaction gives access to the currently-active business transaction.
// CN is the type a Persistor implementation uses to interact with the data
// store (e.g. *sql.Tx).
type Transaction[CN any] interface {
	// Connection returns the object the associated Persistor uses to talk
	// to the data store.
	Connection() CN
	// Context returns the transaction-scoped context.
	Context() context.Context
	// AddPostCommitHook registers work to run immediately after the
	// database commit, synchronously, on the committing goroutine, before
	// InTransaction returns. A hook's error is not returned by InTransaction
	// and is not reported to the Listener; sqlstore.TxManager logs hook
	// errors and recovered hook panics as warnings.
	AddPostCommitHook(hook func(ctx context.Context) error)
}

// TransactionManager fronts a connection/transaction library with the
// minimal surface the outbox engine needs: start a transaction, run work
// inside it, and commit/rollback.
type TransactionManager[CN any] interface {
	// InTransaction runs work inside a new transaction, committing on
	// success and rolling back on error or panic. Calling InTransaction
	// while a transaction is already active on ctx returns
	// ErrNestedTransaction.
	InTransaction(ctx context.Context, work func(tx Transaction[CN]) error) error
	// RequireTransaction returns the transaction active on ctx, or
	// ErrNoTransactionActive if none is active.
	RequireTransaction(ctx context.Context) (Transaction[CN], error)
}

// InTransactionReturns runs work inside a new transaction and returns its
// result, using Go generics in place of the source system's overload set
// for "run in transaction and return a value".
func InTransactionReturns[CN, T any](ctx context.Context, tm TransactionManager[CN], work func(tx Transaction[CN]) (T, error)) (T, error) {
	var result T
	err := tm.InTransaction(ctx, func(tx Transaction[CN]) error {
		v, err := work(tx)
		if err != nil {
			return err
		}
		result = v

		return nil
	})

	return result, err
}
