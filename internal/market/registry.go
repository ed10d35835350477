package market

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rickgao/marketfeed/internal/model"
)

// HoldingsSource lists the symbols of tracked positions.
type HoldingsSource interface {
	HoldingSymbols(ctx context.Context) ([]string, error)
}

// Config holds Registry configuration.
type Config struct {
	Symbols         []string
	IncludeHoldings bool
}

// Registry resolves the active symbol universe. It is safe for concurrent use.
type Registry struct {
	cfg      Config
	holdings HoldingsSource
	logger   *slog.Logger
	base     []string

	mu         sync.RWMutex
	active     []string
	lastSyncAt time.Time
}

// NewRegistry creates a Registry. holdings may be nil when IncludeHoldings is false.
func NewRegistry(cfg Config, holdings HoldingsSource, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	base := merge(cfg.Symbols)
	return &Registry{
		cfg:      cfg,
		holdings: holdings,
		logger:   logger.With("component", "market"),
		base:     base,
		active:   base,
	}
}

// ActiveSymbols returns the configured symbols merged with the holdings
// symbols, uppercased, de-duplicated and sorted. When the holdings read fails
// it logs a warning and returns the last good universe, or the configured
// symbols when there is none. It never returns an error.
func (r *Registry) ActiveSymbols(ctx context.Context) ([]string, error) {
	if !r.cfg.IncludeHoldings || r.holdings == nil {
		return clone(r.base), nil
	}

	held, err := r.holdings.HoldingSymbols(ctx)
	if err != nil {
		r.mu.RLock()
		fallback := clone(r.active)
		r.mu.RUnlock()
		r.logger.Warn("holdings lookup failed, using previous symbol universe",
			"error", err,
			"symbols", len(fallback),
		)
		return fallback, nil
	}

	active := merge(r.base, held)

	r.mu.Lock()
	changed := !equal(r.active, active)
	r.active = active
	r.lastSyncAt = time.Now()
	r.mu.Unlock()

	if changed {
		r.logger.Info("symbol universe changed", "symbols", len(active), "holdings", len(held))
	}
	return clone(active), nil
}

// LastSyncAt returns when holdings were last read successfully.
func (r *Registry) LastSyncAt() time.Time {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.lastSyncAt
}

func merge(lists ...[]string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, l := range lists {
		for _, s := range l {
			s = model.NormalizeSymbol(s)
			if s == "" || strings.EqualFold(s, model.GlobalSymbol) || seen[s] {
				continue
			}
			seen[s] = true
			out = append(out, s)
		}
	}
	sort.Strings(out)
	return out
}

func clone(s []string) []string {
	if s == nil {
		return nil
	}
	return append([]string(nil), s...)
}

func equal(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
