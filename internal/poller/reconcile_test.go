package poller

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/rickgao/marketfeed/internal/model"
)

func obsAt(symbol, price string, minute int) model.PriceObservation {
	return model.PriceObservation{
		Symbol:    symbol,
		Price:     decimal.RequireFromString(price),
		Timestamp: time.Date(2024, 1, 16, 15, minute, 0, 0, time.UTC),
	}
}

func TestReconcilePrices(t *testing.T) {
	cent := decimal.RequireFromString("0.01")
	resolver := primaryResolver{fallback: "primary"}

	tests := []struct {
		name           string
		fetches        []priceFetch
		resolver       primaryResolver
		threshold      decimal.Decimal
		wantStored     int
		wantMismatches int
		wantWarnings   int
	}{
		{
			name: "diff at threshold is a mismatch",
			fetches: []priceFetch{
				{source: "primary", obs: []model.PriceObservation{obsAt("AAPL", "150.25", 0)}},
				{source: "secondary", obs: []model.PriceObservation{obsAt("AAPL", "150.24", 0)}},
			},
			resolver: resolver, threshold: cent,
			wantStored: 1, wantMismatches: 1,
		},
		{
			name: "diff below threshold",
			fetches: []priceFetch{
				{source: "primary", obs: []model.PriceObservation{obsAt("AAPL", "150.250", 0)}},
				{source: "secondary", obs: []model.PriceObservation{obsAt("AAPL", "150.241", 0)}},
			},
			resolver: resolver, threshold: cent,
			wantStored: 1,
		},
		{
			name: "equal prices with zero threshold",
			fetches: []priceFetch{
				{source: "primary", obs: []model.PriceObservation{obsAt("AAPL", "150.25", 0)}},
				{source: "secondary", obs: []model.PriceObservation{obsAt("AAPL", "150.250", 0)}},
			},
			resolver: resolver, threshold: decimal.Zero,
			wantStored: 1,
		},
		{
			name: "primary omits symbol",
			fetches: []priceFetch{
				{source: "primary", obs: []model.PriceObservation{obsAt("AAPL", "150.25", 0)}},
				{source: "secondary", obs: []model.PriceObservation{obsAt("MSFT", "402.10", 0)}},
			},
			resolver: resolver, threshold: cent,
			wantStored: 1, wantWarnings: 1,
		},
		{
			name: "per-symbol primary override",
			fetches: []priceFetch{
				{source: "primary", obs: []model.PriceObservation{obsAt("AAPL", "150.25", 0)}},
				{source: "secondary", obs: []model.PriceObservation{obsAt("AAPL", "150.00", 0)}},
			},
			resolver:   primaryResolver{fallback: "primary", perSymbol: map[string]string{"AAPL": "secondary"}},
			threshold:  cent,
			wantStored: 1, wantMismatches: 1,
		},
		{
			name: "latest observations are compared",
			fetches: []priceFetch{
				{source: "primary", obs: []model.PriceObservation{obsAt("AAPL", "149.00", 0), obsAt("AAPL", "150.25", 5)}},
				{source: "secondary", obs: []model.PriceObservation{obsAt("AAPL", "150.25", 5), obsAt("AAPL", "148.00", 1)}},
			},
			resolver: resolver, threshold: cent,
			wantStored: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := reconcilePrices(tt.fetches, tt.resolver, tt.threshold)

			stored := 0
			for _, obs := range rec.stored {
				stored += len(obs)
			}
			if stored != tt.wantStored {
				t.Errorf("stored = %d, want %d", stored, tt.wantStored)
			}
			if len(rec.mismatches) != tt.wantMismatches {
				t.Errorf("mismatches = %+v, want %d", rec.mismatches, tt.wantMismatches)
			}
			if len(rec.warnings) != tt.wantWarnings {
				t.Errorf("warnings = %v, want %d", rec.warnings, tt.wantWarnings)
			}
		})
	}
}

func TestReconcilePrices_PerSymbolPrimaryStoresItsValue(t *testing.T) {
	rec := reconcilePrices([]priceFetch{
		{source: "polygon", obs: []model.PriceObservation{obsAt("aapl", "150.25", 0)}},
		{source: "alpaca", obs: []model.PriceObservation{obsAt("AAPL", "150.00", 0)}},
	}, primaryResolver{fallback: "polygon", perSymbol: map[string]string{"AAPL": "alpaca"}}, decimal.RequireFromString("0.01"))

	got := rec.stored["alpaca"]
	if len(got) != 1 || !got[0].Price.Equal(decimal.RequireFromString("150.00")) {
		t.Fatalf("stored = %+v, want alpaca's 150.00", rec.stored)
	}
	if got[0].Source != "alpaca" {
		t.Errorf("Source = %q, want alpaca", got[0].Source)
	}
	if len(rec.stored["polygon"]) != 0 {
		t.Errorf("polygon stored %d rows, want none", len(rec.stored["polygon"]))
	}
	m := rec.mismatches[0]
	if m.Primary != "alpaca" || !m.Diff.Equal(decimal.RequireFromString("0.25")) {
		t.Errorf("mismatch = %+v", m)
	}
}
