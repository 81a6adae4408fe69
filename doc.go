// Package outbox provides a transactional outbox engine: durable enqueue of
// invocations inside a business transaction, and an asynchronous flusher
// that drives them to completion with retries, optimistic-lock versioning,
// and dead-lettering ("blocklisting").
//
// Typical flow:
//  1. Inside a business transaction, call Outbox.Schedule to persist an
//     Entry alongside the business data.
//  2. On commit, a post-commit hook best-effort submits the entry for
//     immediate execution.
//  3. Independently, a Flusher polls for due entries, locks them, and
//     submits them to the same execution path.
//
// For the relational persistor and transaction-manager adapter (MySQL and
// PostgreSQL), see the sqlstore package.
package outbox
