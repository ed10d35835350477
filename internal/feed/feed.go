package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/rickgao/marketfeed/internal/api"
	"github.com/rickgao/marketfeed/internal/model"
	"github.com/rickgao/marketfeed/internal/source"
)

// Config describes one feed endpoint.
type Config struct {
	Name       string
	Provider   model.Provider
	Stream     model.Stream
	Path       string // fetch path, default "/"
	HealthPath string // ValidateConnection path, default "/"
}

// base carries what every feed kind shares.
type base struct {
	cfg    Config
	client *api.Client
	logger *slog.Logger
}

func newBase(cfg Config, client *api.Client, logger *slog.Logger) base {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if cfg.HealthPath == "" {
		cfg.HealthPath = "/"
	}
	return base{
		cfg:    cfg,
		client: client,
		logger: logger.With("component", "feed", "source", cfg.Name),
	}
}

// Describe returns the source descriptor.
func (b *base) Describe() source.Descriptor {
	return source.Descriptor{Name: b.cfg.Name, Provider: b.cfg.Provider, Stream: b.cfg.Stream}
}

// ValidateConnection reports whether the health path answers with a 2xx.
func (b *base) ValidateConnection(ctx context.Context) bool {
	if err := b.client.Ping(ctx, b.cfg.HealthPath); err != nil {
		b.logger.Warn("connection check failed", "error", err)
		return false
	}
	return true
}

// fetchEnvelope GETs the feed path and returns the raw items under field.
func (b *base) fetchEnvelope(ctx context.Context, query url.Values, field string) ([]json.RawMessage, error) {
	var env map[string]json.RawMessage
	if err := b.client.Get(ctx, b.cfg.Path, query, &env); err != nil {
		return nil, err
	}
	raw, ok := env[field]
	if !ok {
		return nil, &source.StructuralError{Source: b.cfg.Name, Msg: "missing " + field}
	}
	var items []json.RawMessage
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil, &source.StructuralError{Source: b.cfg.Name, Msg: field + " is not an array", Err: err}
	}
	return items, nil
}

// skip logs an item that could not be parsed.
func (b *base) skip(item string, err error) {
	perr := &source.ItemParseError{Source: b.cfg.Name, Item: item, Err: err}
	b.logger.Warn("skipping item", "error", perr)
}

// requestFailed handles a failed request. A source-wide request, or any
// request once ctx is done, fails the whole fetch. A per-symbol failure is
// logged and collected so the remaining symbols still make progress.
func (b *base) requestFailed(ctx context.Context, req planRequest, err error, failed *[]error) error {
	if req.symbol == "" || ctx.Err() != nil {
		return err
	}
	b.logger.Warn("symbol request failed", "symbol", req.symbol, "error", err)
	*failed = append(*failed, fmt.Errorf("fetch %s: %w", req.symbol, err))
	return nil
}

// planRequest is one request derived from a cursor plan.
type planRequest struct {
	symbol string // empty for a source-wide request
	query  url.Values
}

// planRequests turns a plan into requests: one per symbol for per-symbol plans,
// otherwise a single request.
func planRequests(plan model.CursorPlan) []planRequest {
	if len(plan.SymbolSince) == 0 {
		q := url.Values{}
		if !plan.Since.IsZero() {
			q.Set("since", formatSince(plan.Since))
		}
		if plan.MinID != nil {
			q.Set("min_id", strconv.FormatInt(*plan.MinID, 10))
		}
		return []planRequest{{query: q}}
	}

	symbols := make([]string, 0, len(plan.SymbolSince))
	for s := range plan.SymbolSince {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	reqs := make([]planRequest, 0, len(symbols))
	for _, s := range symbols {
		q := url.Values{}
		q.Set("symbol", s)
		if since := plan.SymbolSince[s]; !since.IsZero() {
			q.Set("since", formatSince(since))
		}
		reqs = append(reqs, planRequest{symbol: s, query: q})
	}
	return reqs
}

func formatSince(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
