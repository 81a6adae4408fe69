package outbox

import (
	"context"
	"errors"
)

// dispatchImmediate hands entry to the post-commit worker pool for an
// optimistic, right-now attempt. It never blocks the committing goroutine:
// if the pool's queue is full the entry is simply dropped on the floor and
// picked up on the next Flusher poll instead, per the source system's
// "best-effort immediate, guaranteed eventual" design.
func (o *Outbox[CN]) dispatchImmediate(_ context.Context, entry Entry) {
	o.dispatchMu.RLock()
	defer o.dispatchMu.RUnlock()

	if o.shutdown {
		o.logger.Debug("outbox shutting down, deferring to flusher", "entry_id", entry.ID)

		return
	}

	select {
	case o.dispatch <- entry:
	default:
		o.logger.Debug("outbox dispatch queue full, deferring to flusher", "entry_id", entry.ID)
	}
}

// runDispatchWorker drains o.dispatch until it is closed. It is started
// dispatchPoolSize times by Start. A panicking handler is contained to the
// entry that triggered it so one bad invocation can't take down the pool.
func (o *Outbox[CN]) runDispatchWorker(ctx context.Context) {
	defer o.poolWG.Done()

	for entry := range o.dispatch {
		o.attemptRecovering(ctx, entry)
	}
}

func (o *Outbox[CN]) attemptRecovering(ctx context.Context, entry Entry) {
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("outbox dispatch worker panic", "entry_id", entry.ID, "panic", rec)
		}
	}()

	o.attempt(ctx, entry)
}

// attempt is the single code path both the immediate post-commit dispatch
// and the Flusher's periodic scan funnel through: acquire a row lock in a
// short-lived transaction, release it, run the invocation outside of any
// transaction, then record the outcome in a second, fresh transaction. The
// lock transaction never spans the invocation: a slow handler risks a
// second worker re-locking and re-running the same entry, which the source
// system accepts as a bounded, documented race rather than serializing all
// work behind a held connection.
func (o *Outbox[CN]) attempt(ctx context.Context, entry Entry) {
	locked, err := InTransactionReturns(ctx, o.tm, func(tx Transaction[CN]) (bool, error) {
		return o.persistor.Lock(ctx, tx.Connection(), entry)
	})
	if err != nil {
		o.logger.Warn("outbox lock attempt failed", "entry_id", entry.ID, "error", err)

		return
	}
	if !locked {
		return
	}

	target, err := o.instantiator.Instantiate(ctx, entry.Invocation.ClassName)
	if err != nil {
		o.handleOutcome(ctx, entry, err)

		return
	}

	fut := o.executor.Execute(ctx, target, entry.Invocation)
	err = Await(ctx, fut)
	o.handleOutcome(ctx, entry, err)
}

// handleOutcome records the result of an invocation attempt, routing to a
// success or failure write depending on err. Both branches run inside a
// fresh transaction and tolerate ErrOptimisticLock by abandoning silently:
// a concurrent writer already moved the entry on.
func (o *Outbox[CN]) handleOutcome(ctx context.Context, entry Entry, err error) {
	if err == nil {
		o.handleSuccess(ctx, entry)

		return
	}
	o.handleFailure(ctx, entry, err)
}

func (o *Outbox[CN]) handleSuccess(ctx context.Context, entry Entry) {
	entry.Attempts++

	writeErr := o.tm.InTransaction(ctx, func(tx Transaction[CN]) error {
		conn := tx.Connection()
		if entry.UniqueRequestID == nil {
			return o.persistor.Delete(ctx, conn, entry)
		}

		entry.Processed = true
		entry.NextAttemptTime = o.clock.Now().Add(o.retry.RetentionThreshold)

		return o.persistor.Update(ctx, conn, &entry)
	})

	if writeErr != nil {
		if errors.Is(writeErr, ErrOptimisticLock) {
			return
		}
		o.logger.Warn("outbox success write failed", "entry_id", entry.ID, "error", writeErr)

		return
	}

	o.metrics.AddProcessed(1)
	safeNotify(o.logger, "success", func() { o.listener.Success(entry) })
}

func (o *Outbox[CN]) handleFailure(ctx context.Context, entry Entry, cause error) {
	entry.Attempts++
	blocklist := o.retry.ShouldBlocklist(entry.Attempts)

	if blocklist {
		entry.Blocklisted = true
	} else {
		entry.NextAttemptTime = o.retry.NextAttemptTime(o.clock.Now(), entry.Attempts)
	}

	writeErr := o.tm.InTransaction(ctx, func(tx Transaction[CN]) error {
		return o.persistor.Update(ctx, tx.Connection(), &entry)
	})

	if writeErr != nil {
		if errors.Is(writeErr, ErrOptimisticLock) {
			return
		}
		o.logger.Warn("outbox failure write failed", "entry_id", entry.ID, "error", writeErr)

		return
	}

	o.metrics.AddErrors(1)
	if blocklist {
		o.metrics.AddBlocklisted(1)
		safeNotify(o.logger, "blocklisted", func() { o.listener.Blocklisted(entry, cause) })

		return
	}

	o.metrics.AddRetries(1)
	safeNotify(o.logger, "failure", func() { o.listener.Failure(entry, cause) })
}
