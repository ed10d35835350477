package store

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// TimeLayout is the persisted timestamp format. Fixed width keeps text order
// equal to time order.
const TimeLayout = "2006-01-02T15:04:05.000000Z"

// FormatTime renders t in TimeLayout after converting to UTC.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime parses a TimeLayout value.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(TimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse stored time %q: %w", s, err)
	}
	return t, nil
}

// WriteResult counts the outcome of one write call.
type WriteResult struct {
	Inserts   int // new rows
	Updates   int // upserted existing rows
	Conflicts int // ignored duplicates
}

// Total returns the number of entities handled.
func (r WriteResult) Total() int {
	return r.Inserts + r.Updates + r.Conflicts
}

// Store writes and reads raw ingestion data.
type Store struct {
	db     *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// New creates a Store.
func New(db *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{
		db:     db,
		logger: logger.With("component", "store"),
		now:    time.Now,
	}
}

// Ping checks database connectivity.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.Ping(ctx)
}

// execBatch runs a queued batch inside one transaction and reports, per
// statement, whether it affected a row.
func (s *Store) execBatch(ctx context.Context, op string, batch *pgx.Batch) ([]bool, error) {
	affected := make([]bool, 0, batch.Len())
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			ct, err := results.Exec()
			if err != nil {
				results.Close()
				return err
			}
			affected = append(affected, ct.RowsAffected() > 0)
		}
		return results.Close()
	})
	if err != nil {
		return nil, wrapErr(op, err)
	}
	return affected, nil
}
