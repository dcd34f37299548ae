// Package store provides the SQLite-backed persistence layer shared by the
// reflexd kernel components.
//
// A single database file holds four relations: episodes, abstractions,
// strategy_weights, and modifications. Each relation is owned by exactly one
// service; this package only provides the schema, connection management, and
// the exclusive-write transaction discipline that serializes mutations from
// concurrent callers.
//
// Writes go through DB.Write, which holds an in-process mutex and opens a
// BEGIN IMMEDIATE transaction so that cross-process writers are also
// excluded. Transient lock contention is retried with exponential backoff up
// to a bounded budget; once the budget is exhausted the caller receives
// ErrContention. Reads run outside the mutex and rely on WAL mode, so they
// never observe a partially committed write.
package store
