// Package database provides the PostgreSQL connection pool and schema migration.
//
// One ingestor process writes at a time. The schema stores every timestamp as
// fixed-width UTC text ending in Z and every money value as exact decimal text,
// with CHECK constraints enforcing enums, positivity and the watermark
// exclusive-or at the database level.
package database
