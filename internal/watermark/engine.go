package watermark

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/rickgao/marketfeed/internal/model"
)

// Mark is the timestamp of one persisted entity, attributed to a symbol for
// per-symbol cursors. Symbol is ignored for global cursors.
type Mark struct {
	Symbol string
	At     time.Time
}

// Engine builds cursor plans and commits cursor advances.
type Engine struct {
	store  Store
	logger *slog.Logger
}

// NewEngine creates an Engine over store.
func NewEngine(store Store, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:  store,
		logger: logger.With("component", "watermark"),
	}
}

// BuildPlan computes the fetch parameters for one source.
//
// Timestamp cursors yield since = cursor - overlap, or now - first run when no
// cursor exists. Per-symbol sources get one since per symbol; a symbol without
// its own cursor falls back to the global cursor and then to the first-run
// window, and plan.Since is the earliest of them. Id cursors yield MinID, or a
// first-run Since when no cursor exists. Snapshot sources get an empty plan.
func (e *Engine) BuildPlan(ctx context.Context, d Descriptor, symbols []string, now time.Time) (model.CursorPlan, error) {
	now = now.UTC()
	bootstrap := now.Add(-d.Rule.FirstRun)

	switch d.Rule.Cursor {
	case CursorNone:
		return model.CursorPlan{}, nil

	case CursorID:
		w, err := e.get(ctx, d, d.GlobalKey())
		if err != nil {
			return model.CursorPlan{}, err
		}
		if w != nil && w.ID != nil {
			id := *w.ID
			return model.CursorPlan{MinID: &id}, nil
		}
		return model.CursorPlan{Since: bootstrap}, nil

	case CursorTimestamp:
		global, err := e.get(ctx, d, d.GlobalKey())
		if err != nil {
			return model.CursorPlan{}, err
		}
		fallback := bootstrap
		if global != nil && global.Timestamp != nil {
			fallback = global.Timestamp.Add(-d.Rule.Overlap)
		}

		if d.Rule.Scope == model.ScopeGlobal {
			return model.CursorPlan{Since: fallback}, nil
		}
		return e.symbolPlan(ctx, d, symbols, fallback)
	}

	return model.CursorPlan{}, fmt.Errorf("source %s: unknown cursor kind %q", d.Source, d.Rule.Cursor)
}

func (e *Engine) symbolPlan(ctx context.Context, d Descriptor, symbols []string, fallback time.Time) (model.CursorPlan, error) {
	plan := model.CursorPlan{SymbolSince: make(map[string]time.Time, len(symbols))}

	for _, sym := range uniqueSymbols(symbols) {
		since := fallback
		w, err := e.get(ctx, d, d.SymbolKey(sym))
		if err != nil {
			return model.CursorPlan{}, err
		}
		if w != nil && w.Timestamp != nil {
			since = w.Timestamp.Add(-d.Rule.Overlap)
		}
		plan.SymbolSince[sym] = since
		if plan.Since.IsZero() || since.Before(plan.Since) {
			plan.Since = since
		}
	}

	if plan.Since.IsZero() {
		plan.Since = fallback
	}
	return plan, nil
}

// get reads a cursor, treating a value of the wrong kind as absent.
func (e *Engine) get(ctx context.Context, d Descriptor, key model.WatermarkKey) (*model.Watermark, error) {
	w, err := e.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("source %s: read watermark %s: %w", d.Source, key, err)
	}
	if w == nil {
		return nil, nil
	}
	if (d.Rule.Cursor == CursorID && w.ID == nil) || (d.Rule.Cursor == CursorTimestamp && w.Timestamp == nil) {
		e.logger.Warn("stored watermark has wrong cursor kind, ignoring",
			"source", d.Source,
			"key", key.String(),
			"cursor", d.Rule.Cursor,
		)
		return nil, nil
	}
	return w, nil
}

// Commit advances the source's cursors from what was persisted.
//
// Timestamp cursors move to max(stored, max(marks)) clamped to now; per-symbol
// cursors are committed independently and a failure on one symbol does not
// stop the others. Id cursors move to max(stored, maxID) and are left
// untouched when maxID is nil. Returns the cursors that were written.
func (e *Engine) Commit(ctx context.Context, d Descriptor, stored []Mark, maxID *int64, now time.Time) ([]model.Watermark, error) {
	now = now.UTC()

	switch d.Rule.Cursor {
	case CursorNone:
		return nil, nil

	case CursorID:
		if maxID == nil {
			return nil, nil
		}
		w, err := e.commitID(ctx, d, *maxID)
		if err != nil || w == nil {
			return nil, err
		}
		return []model.Watermark{*w}, nil

	case CursorTimestamp:
		if d.Rule.Scope == model.ScopeGlobal {
			latest, ok := latestMark(stored)
			if !ok {
				return nil, nil
			}
			w, err := e.commitTimestamp(ctx, d, d.GlobalKey(), latest, now)
			if err != nil || w == nil {
				return nil, err
			}
			return []model.Watermark{*w}, nil
		}
		return e.commitSymbols(ctx, d, stored, now)
	}

	return nil, fmt.Errorf("source %s: unknown cursor kind %q", d.Source, d.Rule.Cursor)
}

func (e *Engine) commitSymbols(ctx context.Context, d Descriptor, stored []Mark, now time.Time) ([]model.Watermark, error) {
	latest := make(map[string]time.Time)
	for _, m := range stored {
		sym := model.NormalizeSymbol(m.Symbol)
		if sym == "" || sym == model.GlobalSymbol {
			continue
		}
		if cur, ok := latest[sym]; !ok || m.At.After(cur) {
			latest[sym] = m.At
		}
	}

	syms := make([]string, 0, len(latest))
	for sym := range latest {
		syms = append(syms, sym)
	}
	sort.Strings(syms)

	var (
		written []model.Watermark
		errs    []error
	)
	for _, sym := range syms {
		w, err := e.commitTimestamp(ctx, d, d.SymbolKey(sym), latest[sym], now)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if w != nil {
			written = append(written, *w)
		}
	}
	return written, errors.Join(errs...)
}

func (e *Engine) commitTimestamp(ctx context.Context, d Descriptor, key model.WatermarkKey, ts, now time.Time) (*model.Watermark, error) {
	ts = ts.UTC()
	if ts.After(now) {
		e.logger.Warn("clamping future watermark to now",
			"source", d.Source,
			"key", key.String(),
			"observed", ts,
			"now", now,
		)
		ts = now
	}

	cur, err := e.get(ctx, d, key)
	if err != nil {
		return nil, err
	}
	if cur != nil && !ts.After(*cur.Timestamp) {
		return nil, nil
	}

	w := model.TimestampWatermark(key, ts)
	if err := e.store.Upsert(ctx, w); err != nil {
		return nil, fmt.Errorf("source %s: write watermark %s: %w", d.Source, key, err)
	}
	e.logger.Debug("watermark advanced", "source", d.Source, "key", key.String(), "timestamp", ts)
	return &w, nil
}

func (e *Engine) commitID(ctx context.Context, d Descriptor, maxID int64) (*model.Watermark, error) {
	key := d.GlobalKey()
	cur, err := e.get(ctx, d, key)
	if err != nil {
		return nil, err
	}
	if cur != nil && maxID <= *cur.ID {
		return nil, nil
	}

	w := model.IDWatermark(key, maxID)
	if err := e.store.Upsert(ctx, w); err != nil {
		return nil, fmt.Errorf("source %s: write watermark %s: %w", d.Source, key, err)
	}
	e.logger.Debug("watermark advanced", "source", d.Source, "key", key.String(), "id", maxID)
	return &w, nil
}

func latestMark(marks []Mark) (time.Time, bool) {
	var latest time.Time
	for _, m := range marks {
		if m.At.After(latest) {
			latest = m.At
		}
	}
	return latest, !latest.IsZero()
}

func uniqueSymbols(symbols []string) []string {
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = model.NormalizeSymbol(s)
		if s == "" || s == model.GlobalSymbol {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
