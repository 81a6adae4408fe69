package outbox

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAttemptRunsHandlerAndDeletesOneShotEntryOnSuccess(t *testing.T) {
	ob, tm, persistor, instantiator := newTestOutbox(t)

	target := &greeter{}
	instantiator.Register("greeter", func() any { return target })

	entry := Entry{ID: "e1", Invocation: Invocation{ClassName: "greeter", MethodName: "Greet", Args: []any{"ada"}}, Version: 1}
	if err := persistor.Save(context.Background(), "conn", &entry); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ob.attempt(context.Background(), entry)

	if len(target.greeted) != 1 {
		t.Fatalf("expected handler invoked once, got %v", target.greeted)
	}
	if _, ok := persistor.get("e1"); ok {
		t.Fatalf("expected one-shot entry to be deleted after success")
	}
	_ = tm
}

func TestAttemptRetainsDedupedEntryOnSuccess(t *testing.T) {
	ob, _, persistor, instantiator := newTestOutbox(t)
	instantiator.Register("greeter", func() any { return &greeter{} })

	reqID := "req-1"
	entry := Entry{ID: "e1", UniqueRequestID: &reqID, Invocation: Invocation{ClassName: "greeter", MethodName: "Greet", Args: []any{"ada"}}, Version: 1}
	if err := persistor.Save(context.Background(), "conn", &entry); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ob.attempt(context.Background(), entry)

	got, ok := persistor.get("e1")
	if !ok {
		t.Fatalf("expected deduped entry to be retained")
	}
	if !got.Processed {
		t.Fatalf("expected entry to be marked processed")
	}
}

func TestAttemptReschedulesOnFailureBelowBudget(t *testing.T) {
	ob, _, persistor, instantiator := newTestOutbox(t)
	instantiator.Register("greeter", func() any { return &greeter{} })
	ob.retry = RetryPolicy{AttemptFrequency: time.Minute, BlocklistAfterAttempts: 5, Backoff: IdentityBackoff}

	entry := Entry{ID: "e1", Invocation: Invocation{ClassName: "greeter", MethodName: "Fail"}, Version: 1}
	if err := persistor.Save(context.Background(), "conn", &entry); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ob.attempt(context.Background(), entry)

	got, ok := persistor.get("e1")
	if !ok {
		t.Fatalf("expected entry to remain after failure")
	}
	if got.Blocklisted {
		t.Fatalf("did not expect blocklisting below budget")
	}
	if got.Attempts != 1 {
		t.Fatalf("expected 1 attempt recorded, got %d", got.Attempts)
	}
}

func TestAttemptBlocklistsAfterBudgetExhausted(t *testing.T) {
	ob, _, persistor, instantiator := newTestOutbox(t)
	instantiator.Register("greeter", func() any { return &greeter{} })
	ob.retry = RetryPolicy{AttemptFrequency: time.Minute, BlocklistAfterAttempts: 1, Backoff: IdentityBackoff}

	entry := Entry{ID: "e1", Invocation: Invocation{ClassName: "greeter", MethodName: "Fail"}, Version: 1}
	if err := persistor.Save(context.Background(), "conn", &entry); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ob.attempt(context.Background(), entry)

	got, ok := persistor.get("e1")
	if !ok {
		t.Fatalf("expected entry to remain after blocklisting")
	}
	if !got.Blocklisted {
		t.Fatalf("expected entry to be blocklisted")
	}
}

func TestAttemptSkipsAlreadyLockedEntry(t *testing.T) {
	ob, _, persistor, instantiator := newTestOutbox(t)
	target := &greeter{}
	instantiator.Register("greeter", func() any { return target })

	entry := Entry{ID: "e1", Invocation: Invocation{ClassName: "greeter", MethodName: "Greet", Args: []any{"ada"}}, Version: 1}
	if err := persistor.Save(context.Background(), "conn", &entry); err != nil {
		t.Fatalf("seed: %v", err)
	}
	persistor.locked["e1"] = true

	ob.attempt(context.Background(), entry)

	if len(target.greeted) != 0 {
		t.Fatalf("expected handler not invoked while locked, got %v", target.greeted)
	}
}

func TestAttemptHandlesUnregisteredClassAsFailure(t *testing.T) {
	ob, _, persistor, _ := newTestOutbox(t)
	ob.retry = RetryPolicy{AttemptFrequency: time.Minute, BlocklistAfterAttempts: 5, Backoff: IdentityBackoff}

	entry := Entry{ID: "e1", Invocation: Invocation{ClassName: "missing", MethodName: "Greet"}, Version: 1}
	if err := persistor.Save(context.Background(), "conn", &entry); err != nil {
		t.Fatalf("seed: %v", err)
	}

	ob.attempt(context.Background(), entry)

	got, ok := persistor.get("e1")
	if !ok {
		t.Fatalf("expected entry to remain")
	}
	if got.Attempts != 1 {
		t.Fatalf("expected attempt to be recorded even for unregistered class, got %d", got.Attempts)
	}
}

func TestDispatchImmediateDropsWhenQueueFull(t *testing.T) {
	ob, _, _, _ := newTestOutbox(t)
	ob.dispatch = make(chan Entry) // unbuffered, nothing draining it

	ob.dispatchImmediate(context.Background(), Entry{ID: "e1"})

	select {
	case <-ob.dispatch:
		t.Fatalf("expected nothing to have been enqueued")
	default:
	}
}

func TestHandleSuccessSwallowsOptimisticLockWhenEntryMovedUnderneath(t *testing.T) {
	ob, _, persistor, _ := newTestOutbox(t)

	entry := Entry{ID: "e1", Invocation: Invocation{ClassName: "greeter", MethodName: "Greet"}, Version: 1}
	if err := persistor.Save(context.Background(), "conn", &entry); err != nil {
		t.Fatalf("seed: %v", err)
	}
	// A concurrent writer bumps the version after this attempt read its copy.
	moved, _ := persistor.get("e1")
	moved.Version = 2
	persistor.entries["e1"] = moved

	ob.handleSuccess(context.Background(), entry)

	got, ok := persistor.get("e1")
	if !ok || got.Version != 2 {
		t.Fatalf("expected the concurrent writer's version to survive untouched, got %+v", got)
	}
}

func TestHandleSuccessLogsNonOptimisticWriteFailure(t *testing.T) {
	ob, tm, _, _ := newTestOutbox(t)
	logger := &recordingLogger{}
	ob.logger = logger
	tm.failNext = errors.New("unrelated failure")

	ob.handleSuccess(context.Background(), Entry{ID: "e1", Version: 1})

	if len(logger.warnings) != 1 {
		t.Fatalf("expected one warning logged, got %d", len(logger.warnings))
	}
}
