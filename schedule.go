package outbox

import (
	"context"
	"reflect"
	"time"
)

// ScheduleOptions are gathered by ScheduleOption functions passed to Schedule.
type ScheduleOptions struct {
	UniqueRequestID *string
	Delay           time.Duration
}

// ScheduleOption configures a single Schedule call.
type ScheduleOption func(*ScheduleOptions)

// WithUniqueRequestID makes the scheduled entry idempotent: a second
// Schedule call with the same key fails with ErrAlreadyScheduled until the
// first is reaped by GC.
func WithUniqueRequestID(id string) ScheduleOption {
	return func(o *ScheduleOptions) {
		o.UniqueRequestID = &id
	}
}

// WithDelay sets the entry's initial NextAttemptTime to now+delay.
func WithDelay(delay time.Duration) ScheduleOption {
	return func(o *ScheduleOptions) {
		o.Delay = delay
	}
}

// Schedule captures a single deferred call as an Invocation and persists it
// as an Entry within the transaction currently active on ctx. Go has no
// runtime dynamic-proxy mechanism equivalent to a generated surrogate, so
// this is the explicit, string-addressed form the source system's design
// notes call out as always required; ScheduleAs layers a type-checked
// convenience on top of it.
//
// Schedule returns ErrNoTransactionActive if ctx has no active transaction,
// and ErrAlreadyScheduled if a WithUniqueRequestID key collides with an
// existing, unreaped entry.
func (o *Outbox[CN]) Schedule(ctx context.Context, className, methodName string, args []any, opts ...ScheduleOption) error {
	var options ScheduleOptions
	for _, opt := range opts {
		opt(&options)
	}

	tx, err := o.tm.RequireTransaction(ctx)
	if err != nil {
		return err
	}

	id, err := o.newEntryID()
	if err != nil {
		return err
	}

	now := o.clock.Now()
	entry := Entry{
		ID:              id,
		UniqueRequestID: options.UniqueRequestID,
		Invocation: Invocation{
			ClassName:          className,
			MethodName:         methodName,
			ParameterTypeNames: nil,
			Args:               args,
		},
		NextAttemptTime: now.Add(options.Delay),
		Attempts:        0,
		Blocklisted:     false,
		Processed:       false,
		Version:         1,
	}

	if err := o.persistor.Save(ctx, tx.Connection(), &entry); err != nil {
		return err
	}

	safeNotify(o.logger, "scheduled", func() { o.listener.Scheduled(entry) })

	submit := entry
	tx.AddPostCommitHook(func(hookCtx context.Context) error {
		o.dispatchImmediate(hookCtx, submit)

		return nil
	})

	return nil
}

// ScheduleAs is a type-checked convenience over Schedule: it derives the
// class name from T's reflected name instead of requiring the caller to
// spell it out, while still resolving through the same instantiator
// dispatch table at run time. T is typically an interface describing the
// target's callable surface.
func ScheduleAs[CN, T any](o *Outbox[CN], ctx context.Context, methodName string, args []any, opts ...ScheduleOption) error {
	className := typeName[T]()

	return o.Schedule(ctx, className, methodName, args, opts...)
}

func typeName[T any]() string {
	t := reflect.TypeOf((*T)(nil)).Elem()

	return t.Name()
}
