package outbox

import "time"

// Entry is a durable outbox row: one pending or retained invocation.
//
// Invariants (enforced by Persistor implementations, not by this struct):
//  1. Selectable iff Blocklisted=false, Processed=false, NextAttemptTime<now.
//  2. Every successful mutation increments Version by exactly 1 against the
//     prior version; a mismatch is an optimistic-lock failure and leaves the
//     row untouched.
//  3. UniqueRequestID, when non-nil, is globally unique; a duplicate insert
//     fails with ErrAlreadyScheduled and is never retried.
//  4. A processed row retains its UniqueRequestID until reaped by GC.
//  5. A blocklisted row has Processed=false and is only reset by Whitelist.
type Entry struct {
	ID              string
	UniqueRequestID *string
	Invocation      Invocation
	NextAttemptTime time.Time
	Attempts        int
	Blocklisted     bool
	Processed       bool
	Version         int
}

// Description returns a short human-readable identifier for logging.
func (e Entry) Description() string {
	return e.ID + " " + e.Invocation.Description()
}

// Status reports the entry's derived lifecycle state. RUNNING is not
// represented here: it is ephemeral and visible only as a held row lock.
func (e Entry) Status() Status {
	switch {
	case e.Processed:
		return StatusDone
	case e.Blocklisted:
		return StatusBlocklisted
	default:
		return StatusPending
	}
}

// Selectable reports whether the entry would be picked up by SelectBatch at
// the given time: not blocklisted, not processed, and due.
func (e Entry) Selectable(now time.Time) bool {
	return !e.Blocklisted && !e.Processed && e.NextAttemptTime.Before(now)
}
