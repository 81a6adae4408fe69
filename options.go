package outbox

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

const (
	defaultDispatchPoolSize       = 4
	defaultDispatchQueueSize      = 256
	defaultAttemptFrequency       = 2 * time.Second
	defaultBlocklistAfterAttempts = 5
	defaultRetentionThreshold     = 7 * 24 * time.Hour
)

// ErrNilDependency is returned by New when a required dependency was not
// supplied via an Option.
var ErrNilDependency = errors.New("outbox: required dependency not configured")

// Outbox is the transactional outbox engine: it lets callers durably
// schedule deferred invocations from within a business transaction
// (Schedule), then guarantees they eventually run at least once, via a
// best-effort immediate attempt right after commit and a periodic Flusher
// sweep for everything that attempt missed. CN is the connection type the
// configured Persistor and TransactionManager agree on (typically *sql.Tx).
type Outbox[CN any] struct {
	tm           TransactionManager[CN]
	persistor    Persistor[CN]
	instantiator Instantiator
	executor     Executor
	clock        Clock
	idGenerator  IDGenerator
	retry        RetryPolicy
	listener     Listener
	logger       Logger
	metrics      Metrics

	dispatch         chan Entry
	dispatchPoolSize int
	poolWG           sync.WaitGroup

	startMu sync.Mutex
	started bool

	dispatchMu sync.RWMutex
	shutdown   bool
}

// Config gathers the Outbox's dependencies before New validates and
// defaults them. Callers assemble one via Option functions rather than
// constructing it directly.
type Config[CN any] struct {
	tm               TransactionManager[CN]
	persistor        Persistor[CN]
	instantiator     Instantiator
	executor         Executor
	clock            Clock
	idGenerator      IDGenerator
	retry            RetryPolicy
	listener         Listener
	logger           Logger
	metrics          Metrics
	dispatchPoolSize int
	dispatchQueue    int
}

// Option configures a Config passed to New.
type Option[CN any] func(*Config[CN])

// WithTransactionManager sets the required TransactionManager.
func WithTransactionManager[CN any](tm TransactionManager[CN]) Option[CN] {
	return func(c *Config[CN]) { c.tm = tm }
}

// WithPersistor sets the required Persistor.
func WithPersistor[CN any](p Persistor[CN]) Option[CN] {
	return func(c *Config[CN]) { c.persistor = p }
}

// WithInstantiator sets the required Instantiator.
func WithInstantiator[CN any](i Instantiator) Option[CN] {
	return func(c *Config[CN]) { c.instantiator = i }
}

// WithExecutor overrides the default CallerThreadExecutor.
func WithExecutor[CN any](e Executor) Option[CN] {
	return func(c *Config[CN]) { c.executor = e }
}

// WithClock overrides the default SystemClock.
func WithClock[CN any](clock Clock) Option[CN] {
	return func(c *Config[CN]) { c.clock = clock }
}

// WithIDGenerator overrides the default UUIDv7Generator.
func WithIDGenerator[CN any](gen IDGenerator) Option[CN] {
	return func(c *Config[CN]) { c.idGenerator = gen }
}

// WithRetryPolicy overrides the default RetryPolicy.
func WithRetryPolicy[CN any](policy RetryPolicy) Option[CN] {
	return func(c *Config[CN]) { c.retry = policy }
}

// WithListener overrides the default NopListener.
func WithListener[CN any](l Listener) Option[CN] {
	return func(c *Config[CN]) { c.listener = l }
}

// WithLogger overrides the default NopLogger.
func WithLogger[CN any](logger Logger) Option[CN] {
	return func(c *Config[CN]) { c.logger = logger }
}

// WithMetrics overrides the default NopMetrics.
func WithMetrics[CN any](m Metrics) Option[CN] {
	return func(c *Config[CN]) { c.metrics = m }
}

// WithDispatchPool sets the number of workers draining the post-commit
// immediate-attempt queue and the queue's buffer size. A full queue is not
// an error: entries simply wait for the next Flusher poll.
func WithDispatchPool[CN any](workers, queueSize int) Option[CN] {
	return func(c *Config[CN]) {
		c.dispatchPoolSize = workers
		c.dispatchQueue = queueSize
	}
}

func (c *Config[CN]) withDefaults() {
	if c.executor == nil {
		c.executor = CallerThreadExecutor{}
	}
	if c.clock == nil {
		c.clock = SystemClock{}
	}
	if c.idGenerator == nil {
		c.idGenerator = NewUUIDv7Generator(c.clock)
	}
	if c.retry.AttemptFrequency <= 0 {
		c.retry.AttemptFrequency = defaultAttemptFrequency
	}
	if c.retry.BlocklistAfterAttempts <= 0 {
		c.retry.BlocklistAfterAttempts = defaultBlocklistAfterAttempts
	}
	if c.retry.RetentionThreshold <= 0 {
		c.retry.RetentionThreshold = defaultRetentionThreshold
	}
	if c.retry.Backoff == nil {
		c.retry.Backoff = IdentityBackoff
	}
	if c.listener == nil {
		c.listener = NopListener{}
	}
	if c.logger == nil {
		c.logger = NopLogger{}
	}
	if c.metrics == nil {
		c.metrics = NopMetrics{}
	}
	if c.dispatchPoolSize <= 0 {
		c.dispatchPoolSize = defaultDispatchPoolSize
	}
	if c.dispatchQueue <= 0 {
		c.dispatchQueue = defaultDispatchQueueSize
	}
}

func (c *Config[CN]) validate() error {
	if c.tm == nil {
		return fmt.Errorf("%w: TransactionManager", ErrNilDependency)
	}
	if c.persistor == nil {
		return fmt.Errorf("%w: Persistor", ErrNilDependency)
	}
	if c.instantiator == nil {
		return fmt.Errorf("%w: Instantiator", ErrNilDependency)
	}

	return nil
}

// New builds an Outbox from the supplied Options. WithTransactionManager,
// WithPersistor, and WithInstantiator are required; every other dependency
// has a default matching the source system's own defaults (caller-thread
// executor, system clock, UUID v7 generator, no-op listener/logger/metrics).
func New[CN any](opts ...Option[CN]) (*Outbox[CN], error) {
	var cfg Config[CN]
	for _, opt := range opts {
		opt(&cfg)
	}
	cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &Outbox[CN]{
		tm:               cfg.tm,
		persistor:        cfg.persistor,
		instantiator:     cfg.instantiator,
		executor:         cfg.executor,
		clock:            cfg.clock,
		idGenerator:      cfg.idGenerator,
		retry:            cfg.retry,
		listener:         cfg.listener,
		logger:           cfg.logger,
		metrics:          cfg.metrics,
		dispatch:         make(chan Entry, cfg.dispatchQueue),
		dispatchPoolSize: cfg.dispatchPoolSize,
	}, nil
}

// Start launches the post-commit dispatch pool. It must be called once,
// before any Schedule call whose post-commit hook is expected to attempt
// immediate delivery, and is idempotent after the first call.
func (o *Outbox[CN]) Start(ctx context.Context) {
	o.startMu.Lock()
	defer o.startMu.Unlock()
	if o.started {
		return
	}
	o.started = true

	workers := o.dispatchPoolSize
	if workers <= 0 {
		workers = defaultDispatchPoolSize
	}
	o.poolWG.Add(workers)
	for i := 0; i < workers; i++ {
		go o.runDispatchWorker(ctx)
	}
}

// Shutdown closes the dispatch queue and waits for in-flight attempts to
// finish, or for ctx to be done, whichever comes first.
func (o *Outbox[CN]) Shutdown(ctx context.Context) error {
	o.startMu.Lock()
	if !o.started {
		o.startMu.Unlock()

		return nil
	}
	o.startMu.Unlock()

	o.dispatchMu.Lock()
	o.shutdown = true
	close(o.dispatch)
	o.dispatchMu.Unlock()

	done := make(chan struct{})
	go func() {
		o.poolWG.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Outbox[CN]) newEntryID() (string, error) {
	return NewEntryID(o.idGenerator)
}
