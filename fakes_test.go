package outbox

import (
	"context"
	"sync"
	"time"
)

// fakeConn is the CN type used by every fake in this package's unit tests:
// a label, not a real connection, since the fakes never touch a database.
type fakeConn string

type fakeTxKey struct{}

type fakeTx struct {
	conn  fakeConn
	ctx   context.Context
	hooks []func(context.Context) error
}

func (f *fakeTx) Connection() fakeConn { return f.conn }
func (f *fakeTx) Context() context.Context { return f.ctx }
func (f *fakeTx) AddPostCommitHook(hook func(ctx context.Context) error) {
	f.hooks = append(f.hooks, hook)
}

// fakeTxManager is a minimal in-process TransactionManager: it tracks the
// active transaction on the context it threads through work, rejects
// nesting, and drains post-commit hooks synchronously, mirroring what a
// real implementation (e.g. sqlstore.TxManager) does against a database.
type fakeTxManager struct {
	mu        sync.Mutex
	commits   int
	failNext  error
	hookErr   error
}

func (m *fakeTxManager) InTransaction(ctx context.Context, work func(tx Transaction[fakeConn]) error) error {
	if _, ok := ctx.Value(fakeTxKey{}).(*fakeTx); ok {
		return ErrNestedTransaction
	}

	m.mu.Lock()
	failNext := m.failNext
	m.failNext = nil
	m.mu.Unlock()
	if failNext != nil {
		return failNext
	}

	tx := &fakeTx{conn: "conn"}
	tx.ctx = context.WithValue(ctx, fakeTxKey{}, tx)

	if err := work(tx); err != nil {
		return err
	}

	m.mu.Lock()
	m.commits++
	m.mu.Unlock()

	for _, hook := range tx.hooks {
		if err := hook(ctx); err != nil {
			m.mu.Lock()
			m.hookErr = err
			m.mu.Unlock()
		}
	}

	return nil
}

func (m *fakeTxManager) RequireTransaction(ctx context.Context) (Transaction[fakeConn], error) {
	tx, ok := ctx.Value(fakeTxKey{}).(*fakeTx)
	if !ok {
		return nil, ErrNoTransactionActive
	}

	return tx, nil
}

// fakePersistor is an in-memory Persistor[fakeConn]: a map keyed by ID,
// guarded by a mutex since the dispatch pool and Flusher both reach it
// concurrently in tests exercising the full Outbox.
type fakePersistor struct {
	mu      sync.Mutex
	entries map[string]Entry
	locked  map[string]bool
}

func newFakePersistor() *fakePersistor {
	return &fakePersistor{entries: make(map[string]Entry), locked: make(map[string]bool)}
}

func (p *fakePersistor) Save(_ context.Context, _ fakeConn, entry *Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if entry.ID == "" {
		entry.ID = "generated"
	}
	if entry.UniqueRequestID != nil {
		for _, e := range p.entries {
			if e.UniqueRequestID != nil && *e.UniqueRequestID == *entry.UniqueRequestID {
				return ErrAlreadyScheduled
			}
		}
	}
	p.entries[entry.ID] = *entry

	return nil
}

func (p *fakePersistor) Update(_ context.Context, _ fakeConn, entry *Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok := p.entries[entry.ID]
	if !ok || existing.Version != entry.Version {
		return ErrOptimisticLock
	}
	entry.Version++
	p.entries[entry.ID] = *entry

	return nil
}

func (p *fakePersistor) Delete(_ context.Context, _ fakeConn, entry Entry) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok := p.entries[entry.ID]
	if !ok || existing.Version != entry.Version {
		return ErrOptimisticLock
	}
	delete(p.entries, entry.ID)

	return nil
}

func (p *fakePersistor) Lock(_ context.Context, _ fakeConn, entry Entry) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	existing, ok := p.entries[entry.ID]
	if !ok || existing.Version != entry.Version || p.locked[entry.ID] {
		return false, nil
	}
	p.locked[entry.ID] = true

	return true, nil
}

func (p *fakePersistor) Whitelist(_ context.Context, _ fakeConn, entryID string) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	entry, ok := p.entries[entryID]
	if !ok || !entry.Blocklisted || entry.Processed {
		return false, nil
	}
	entry.Blocklisted = false
	entry.Attempts = 0
	entry.Version++
	p.entries[entryID] = entry

	return true, nil
}

func (p *fakePersistor) SelectBatch(_ context.Context, _ fakeConn, size int, now time.Time) ([]Entry, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []Entry
	for _, e := range p.entries {
		if len(out) >= size {
			break
		}
		if e.Selectable(now) {
			out = append(out, e)
		}
	}

	return out, nil
}

func (p *fakePersistor) DeleteProcessedAndExpired(_ context.Context, _ fakeConn, size int, now time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var deleted int64
	for id, e := range p.entries {
		if deleted >= int64(size) {
			break
		}
		if e.Processed && !e.Blocklisted && e.NextAttemptTime.Before(now) {
			delete(p.entries, id)
			deleted++
		}
	}

	return deleted, nil
}

func (p *fakePersistor) Migrate(context.Context) error { return nil }

func (p *fakePersistor) get(id string) (Entry, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[id]

	return e, ok
}

// fakeClock is a settable Clock for deterministic scheduling tests.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
