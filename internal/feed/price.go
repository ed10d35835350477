package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/rickgao/marketfeed/internal/api"
	"github.com/rickgao/marketfeed/internal/model"
	"github.com/rickgao/marketfeed/internal/source"
)

// Universe supplies the symbols a price feed quotes.
type Universe interface {
	ActiveSymbols(ctx context.Context) ([]string, error)
}

type quoteItem struct {
	Symbol    string          `json:"symbol"`
	Price     decimal.Decimal `json:"price"` // string or number
	Volume    *int64          `json:"volume"`
	Timestamp string          `json:"timestamp"`
	Session   string          `json:"session"`
}

// PriceFeed is a source.PriceSource over a JSON quote endpoint.
type PriceFeed struct {
	base
	universe Universe
}

var _ source.PriceSource = (*PriceFeed)(nil)

// NewPriceFeed creates a price feed quoting the symbols of universe.
func NewPriceFeed(cfg Config, client *api.Client, universe Universe, logger *slog.Logger) *PriceFeed {
	return &PriceFeed{base: newBase(cfg, client, logger), universe: universe}
}

// FetchIncremental returns the current quote snapshot. Quotes without a
// session label are returned with an empty Session.
func (f *PriceFeed) FetchIncremental(ctx context.Context) ([]model.PriceObservation, error) {
	symbols, err := f.universe.ActiveSymbols(ctx)
	if err != nil {
		return nil, fmt.Errorf("active symbols: %w", err)
	}
	if len(symbols) == 0 {
		return nil, nil
	}

	q := url.Values{}
	q.Set("symbols", strings.Join(symbols, ","))
	raws, err := f.fetchEnvelope(ctx, q, "quotes")
	if err != nil {
		return nil, err
	}

	out := make([]model.PriceObservation, 0, len(raws))
	for i, raw := range raws {
		obs, err := f.parse(raw)
		if err != nil {
			f.skip(itemLabel(i, obs.Symbol), err)
			continue
		}
		out = append(out, obs)
	}
	return out, nil
}

func (f *PriceFeed) parse(raw json.RawMessage) (model.PriceObservation, error) {
	var it quoteItem
	if err := json.Unmarshal(raw, &it); err != nil {
		return model.PriceObservation{}, err
	}
	obs := model.PriceObservation{
		Symbol:  model.NormalizeSymbol(it.Symbol),
		Price:   it.Price,
		Volume:  it.Volume,
		Session: model.Session(strings.ToLower(it.Session)),
		Source:  f.cfg.Name,
	}
	if obs.Symbol == "" {
		return obs, errors.New("missing symbol")
	}
	if !obs.Price.IsPositive() {
		return obs, fmt.Errorf("price must be positive, got %s", obs.Price)
	}
	if obs.Volume != nil && *obs.Volume < 0 {
		return obs, fmt.Errorf("negative volume %d", *obs.Volume)
	}
	if obs.Session != "" && !obs.Session.Valid() {
		return obs, fmt.Errorf("unknown session %q", it.Session)
	}
	ts, err := parseTime(it.Timestamp)
	if err != nil {
		return obs, fmt.Errorf("timestamp: %w", err)
	}
	obs.Timestamp = ts
	return obs, nil
}
