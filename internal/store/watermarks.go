package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rickgao/marketfeed/internal/model"
)

// querier is satisfied by *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// WatermarkStore persists cursors in last_seen_state.
type WatermarkStore struct {
	db     *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewWatermarkStore creates a WatermarkStore.
func NewWatermarkStore(db *pgxpool.Pool, logger *slog.Logger) *WatermarkStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &WatermarkStore{
		db:     db,
		logger: logger.With("component", "watermark_store"),
		now:    time.Now,
	}
}

// Get returns the cursor for key, or nil when none exists.
func (s *WatermarkStore) Get(ctx context.Context, key model.WatermarkKey) (*model.Watermark, error) {
	key = key.Normalize()
	if err := key.Validate(); err != nil {
		return nil, fmt.Errorf("get watermark: %w", err)
	}
	return getWatermark(ctx, s.db, key)
}

// List returns every stored cursor ordered by key.
func (s *WatermarkStore) List(ctx context.Context) ([]model.Watermark, error) {
	rows, err := s.db.Query(ctx, `
		SELECT provider, stream, scope, symbol, last_timestamp, last_id, updated_at
		FROM last_seen_state
		ORDER BY provider, stream, scope, symbol
	`)
	if err != nil {
		return nil, wrapErr("list watermarks", err)
	}
	defer rows.Close()

	var out []model.Watermark
	for rows.Next() {
		var (
			provider, stream, scope string
			w                       model.Watermark
			ts                      *string
			updated                 string
		)
		if err := rows.Scan(&provider, &stream, &scope, &w.Key.Symbol, &ts, &w.ID, &updated); err != nil {
			return nil, fmt.Errorf("scan watermark: %w", err)
		}
		w.Key.Provider = model.Provider(provider)
		w.Key.Stream = model.Stream(stream)
		w.Key.Scope = model.Scope(scope)
		if err := fillTimes(&w, ts, updated); err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list watermarks", err)
	}
	return out, nil
}

// Upsert inserts or advances a cursor. The stored value never decreases.
func (s *WatermarkStore) Upsert(ctx context.Context, w model.Watermark) error {
	w.Key = w.Key.Normalize()
	if err := w.Validate(); err != nil {
		return fmt.Errorf("upsert watermark %s: %w", w.Key, err)
	}
	if err := upsertWatermark(ctx, s.db, w, s.now()); err != nil {
		return wrapErr("upsert watermark", err)
	}
	return nil
}

func getWatermark(ctx context.Context, q querier, key model.WatermarkKey) (*model.Watermark, error) {
	w := model.Watermark{Key: key}
	var (
		ts      *string
		updated string
	)
	err := q.QueryRow(ctx, `
		SELECT last_timestamp, last_id, updated_at
		FROM last_seen_state
		WHERE provider = $1 AND stream = $2 AND scope = $3 AND symbol = $4
	`, string(key.Provider), string(key.Stream), string(key.Scope), key.Symbol).Scan(&ts, &w.ID, &updated)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, wrapErr("get watermark", err)
	}
	if err := fillTimes(&w, ts, updated); err != nil {
		return nil, err
	}
	return &w, nil
}

// A kind change (timestamp <-> id) replaces the value; otherwise GREATEST keeps
// the cursor monotonic. Fixed-width text compares in time order.
const upsertWatermarkSQL = `
	INSERT INTO last_seen_state (provider, stream, scope, symbol, last_timestamp, last_id, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (provider, stream, scope, symbol) DO UPDATE
	SET last_timestamp = CASE WHEN EXCLUDED.last_timestamp IS NULL THEN NULL
	                          ELSE GREATEST(last_seen_state.last_timestamp, EXCLUDED.last_timestamp) END,
	    last_id = CASE WHEN EXCLUDED.last_id IS NULL THEN NULL
	                   ELSE GREATEST(last_seen_state.last_id, EXCLUDED.last_id) END,
	    updated_at = EXCLUDED.updated_at
`

func upsertWatermark(ctx context.Context, q querier, w model.Watermark, now time.Time) error {
	var ts *string
	if w.Timestamp != nil {
		v := FormatTime(*w.Timestamp)
		ts = &v
	}
	_, err := q.Exec(ctx, upsertWatermarkSQL,
		string(w.Key.Provider), string(w.Key.Stream), string(w.Key.Scope), w.Key.Symbol,
		ts, w.ID, FormatTime(now),
	)
	return err
}

func fillTimes(w *model.Watermark, ts *string, updated string) error {
	if ts != nil {
		t, err := ParseTime(*ts)
		if err != nil {
			return err
		}
		w.Timestamp = &t
	}
	t, err := ParseTime(updated)
	if err != nil {
		return err
	}
	w.UpdatedAt = t
	return nil
}
