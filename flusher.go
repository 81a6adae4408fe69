package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// FlusherConfig configures Flusher. NewFlusher replaces zero values with
// defaults (1 worker, batch size 4096, 2s poll interval, cleanup batch size
// equal to BatchSize); a zero CleanupInterval stays zero.
type FlusherConfig struct {
	// Workers is the number of concurrent poll loops.
	Workers int
	// BatchSize is the maximum number of entries fetched per poll.
	BatchSize int
	// PollInterval is how long a worker sleeps after finding no selectable
	// entries before polling again.
	PollInterval time.Duration
	// CleanupInterval is how often expired, processed entries are purged.
	// Zero disables the cleanup tick.
	CleanupInterval time.Duration
	// CleanupBatchSize bounds a single cleanup delete.
	CleanupBatchSize int
}

func (c FlusherConfig) withDefaults() FlusherConfig {
	if c.Workers <= 0 {
		c.Workers = 1
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 4096
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 2 * time.Second
	}
	if c.CleanupBatchSize <= 0 {
		c.CleanupBatchSize = c.BatchSize
	}

	return c
}

// Flusher polls the Persistor for selectable entries and funnels every one
// it locks through the Outbox's shared attempt path, guaranteeing eventual
// delivery for entries the post-commit dispatch pool missed or dropped. A
// second, slower tick purges processed entries past their retention
// threshold.
type Flusher[CN any] struct {
	outbox *Outbox[CN]
	cfg    FlusherConfig
}

// NewFlusher builds a Flusher bound to outbox.
func NewFlusher[CN any](outbox *Outbox[CN], cfg FlusherConfig) *Flusher[CN] {
	return &Flusher[CN]{outbox: outbox, cfg: cfg.withDefaults()}
}

// Run blocks, polling until ctx is canceled or a worker panics or returns a
// non-cancellation error, in which case every worker is stopped and the
// error is returned.
func (f *Flusher[CN]) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, f.cfg.Workers+1)
	var wg sync.WaitGroup

	for i := 0; i < f.cfg.Workers; i++ {
		wg.Add(1)
		workerID := i
		go func() {
			defer wg.Done()
			defer func() {
				if rec := recover(); rec != nil {
					err := fmt.Errorf("%w: %v", ErrWorkerPanic, rec)
					f.outbox.logger.Error("outbox flusher worker panic", "worker", workerID, "panic", rec)
					errCh <- err
					cancel()
				}
			}()

			if err := f.runPollLoop(ctx); err != nil && !errors.Is(err, context.Canceled) {
				f.outbox.logger.Error("outbox flusher worker error", "worker", workerID, "error", err)
				errCh <- err
				cancel()
			}
		}()
	}

	if f.cfg.CleanupInterval > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			f.runCleanupLoop(ctx)
		}()
	}

	wg.Wait()
	close(errCh)

	if err := <-errCh; err != nil {
		return err
	}
	if err := ctx.Err(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func (f *Flusher[CN]) runPollLoop(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		found, err := f.pollOnce(ctx)
		if err != nil {
			return err
		}
		if !found {
			if err := f.sleep(ctx, f.cfg.PollInterval); err != nil {
				return err
			}
		}
	}
}

// pollOnce fetches a single batch and hands every entry to the shared
// attempt path, reporting whether it found any work.
func (f *Flusher[CN]) pollOnce(ctx context.Context) (bool, error) {
	entries, err := InTransactionReturns(ctx, f.outbox.tm, func(tx Transaction[CN]) ([]Entry, error) {
		return f.outbox.persistor.SelectBatch(ctx, tx.Connection(), f.cfg.BatchSize, f.outbox.clock.Now())
	})
	if err != nil {
		return false, err
	}
	if len(entries) == 0 {
		return false, nil
	}

	f.outbox.metrics.SetPending(len(entries))
	for _, entry := range entries {
		f.outbox.attempt(ctx, entry)
	}

	return true, nil
}

func (f *Flusher[CN]) runCleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(f.cfg.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.cleanupOnce(ctx); err != nil {
				f.outbox.logger.Error("outbox cleanup failed", "error", err)
			}
		}
	}
}

func (f *Flusher[CN]) cleanupOnce(ctx context.Context) error {
	deleted, err := InTransactionReturns(ctx, f.outbox.tm, func(tx Transaction[CN]) (int64, error) {
		return f.outbox.persistor.DeleteProcessedAndExpired(ctx, tx.Connection(), f.cfg.CleanupBatchSize, f.outbox.clock.Now())
	})
	if err != nil {
		return err
	}
	if deleted > 0 {
		f.outbox.logger.Debug("outbox cleanup removed entries", "count", deleted)
	}

	return nil
}

func (f *Flusher[CN]) sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
