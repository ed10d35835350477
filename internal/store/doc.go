// Package store implements the storage batch layer on PostgreSQL.
//
// Writes:
//   - News: insert-or-ignore on normalized URL; symbol links upsert their importance flag
//   - Prices: insert-or-ignore on (symbol, timestamp)
//   - Social: upsert on (source, source_id)
//
// Every write call runs in one transaction, so a rejected row rolls back the
// whole call. Rows carry inserted_at, the insertion clock that GetBefore and
// CommitBatch use to select and prune processed data.
//
// Timestamps are stored as fixed-width UTC text (see TimeLayout) and prices as
// exact decimal text.
package store
