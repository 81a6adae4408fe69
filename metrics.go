package outbox

import "time"

// Metrics captures engine-level telemetry: the flusher's batch throughput
// plus the outbox-specific state transitions (blocklist/whitelist) the
// teacher's event-relay metrics surface has no equivalent for.
type Metrics interface {
	// ObserveBatchDuration records the time to process a selected batch.
	ObserveBatchDuration(duration time.Duration)
	// ObserveLockWait records the time spent waiting on a row lock.
	ObserveLockWait(duration time.Duration)
	// AddProcessed increments the count of successfully completed entries.
	AddProcessed(count int)
	// AddErrors increments the count of handler errors.
	AddErrors(count int)
	// AddRetries increments the count of entries rescheduled after failure.
	AddRetries(count int)
	// AddBlocklisted increments the count of entries that crossed the retry budget.
	AddBlocklisted(count int)
	// AddWhitelisted increments the count of entries explicitly un-blocklisted.
	AddWhitelisted(count int)
	// SetPending updates the current count of selectable entries.
	SetPending(count int)
}

// NopMetrics is a no-op metrics recorder.
type NopMetrics struct{}

// ObserveBatchDuration implements Metrics.
func (NopMetrics) ObserveBatchDuration(time.Duration) {}

// ObserveLockWait implements Metrics.
func (NopMetrics) ObserveLockWait(time.Duration) {}

// AddProcessed implements Metrics.
func (NopMetrics) AddProcessed(int) {}

// AddErrors implements Metrics.
func (NopMetrics) AddErrors(int) {}

// AddRetries implements Metrics.
func (NopMetrics) AddRetries(int) {}

// AddBlocklisted implements Metrics.
func (NopMetrics) AddBlocklisted(int) {}

// AddWhitelisted implements Metrics.
func (NopMetrics) AddWhitelisted(int) {}

// SetPending implements Metrics.
func (NopMetrics) SetPending(int) {}
