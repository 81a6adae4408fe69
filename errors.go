package outbox

import "errors"

var (
	// ErrAlreadyScheduled is returned by Schedule when uniqueRequestId collides
	// with an existing, not-yet-reaped entry.
	ErrAlreadyScheduled = errors.New("outbox: request already scheduled")
	// ErrOptimisticLock indicates a row changed underneath an update/delete.
	// Internal: callers of the engine never observe this; submitter and
	// flusher swallow it and let another worker retry.
	ErrOptimisticLock = errors.New("outbox: optimistic lock failure")
	// ErrNoTransactionActive is returned by Schedule when called outside a
	// required business transaction.
	ErrNoTransactionActive = errors.New("outbox: no transaction active")
	// ErrNestedTransaction is returned when InTransaction is called while a
	// transaction is already active on the context.
	ErrNestedTransaction = errors.New("outbox: nested transaction")
	// ErrSerializationUnsupported is returned by a Serializer when an argument
	// cannot be represented in the wire format.
	ErrSerializationUnsupported = errors.New("outbox: invocation argument not serializable")
	// ErrNoRecords signals that no due entries are available for processing.
	ErrNoRecords = errors.New("outbox: no due records")
	// ErrInvalidBatchSize indicates that the requested batch size is not positive.
	ErrInvalidBatchSize = errors.New("outbox: batch size must be positive")
	// ErrWorkerPanic indicates a Flusher poll worker panicked; Flusher.Run
	// returns it after stopping every worker.
	ErrWorkerPanic = errors.New("outbox: worker panic")
	// ErrHandlerNotRegistered is returned when the Instantiator has no factory
	// for an invocation's class name, or the resolved target has no method
	// named by the invocation.
	ErrHandlerNotRegistered = errors.New("outbox: handler not registered")
	// ErrInvalidID is returned when parsing or scanning an ID fails.
	ErrInvalidID = errors.New("outbox: id is invalid")
)
