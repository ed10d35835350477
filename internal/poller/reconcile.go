package poller

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/rickgao/marketfeed/internal/model"
)

// priceFetch is the successful result of one price source.
type priceFetch struct {
	source string
	obs    []model.PriceObservation
}

// reconciliation is the outcome of reconcilePrices.
type reconciliation struct {
	// stored holds the primary's observations, grouped by the primary source.
	stored     map[string][]model.PriceObservation
	mismatches []Mismatch
	warnings   []string
}

// primaryResolver picks the primary price source of a symbol.
type primaryResolver struct {
	perSymbol map[string]string
	fallback  string
}

func (r primaryResolver) primary(symbol string) string {
	if p, ok := r.perSymbol[symbol]; ok {
		return p
	}
	return r.fallback
}

// reconcilePrices keeps only the primary's observations for each symbol.
// A secondary whose latest price differs from the primary's latest price by at
// least threshold is reported as a mismatch; equal prices never are. A symbol
// the primary did not report is dropped with a warning.
func reconcilePrices(fetches []priceFetch, resolver primaryResolver, threshold decimal.Decimal) reconciliation {
	// symbol -> source -> observations
	bySymbol := make(map[string]map[string][]model.PriceObservation)
	for _, f := range fetches {
		for _, o := range f.obs {
			sym := model.NormalizeSymbol(o.Symbol)
			if sym == "" {
				continue
			}
			o.Symbol = sym
			if o.Source == "" {
				o.Source = f.source
			}
			if bySymbol[sym] == nil {
				bySymbol[sym] = make(map[string][]model.PriceObservation)
			}
			bySymbol[sym][f.source] = append(bySymbol[sym][f.source], o)
		}
	}

	symbols := make([]string, 0, len(bySymbol))
	for sym := range bySymbol {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	out := reconciliation{stored: make(map[string][]model.PriceObservation)}
	for _, sym := range symbols {
		sources := bySymbol[sym]
		primary := resolver.primary(sym)
		pobs, ok := sources[primary]
		if !ok {
			out.warnings = append(out.warnings, fmt.Sprintf(
				"price %s skipped: primary source %q did not report it (reported by %v)",
				sym, primary, sortedKeys(sources)))
			continue
		}
		out.stored[primary] = append(out.stored[primary], pobs...)

		want := latest(pobs).Price
		for _, name := range sortedKeys(sources) {
			if name == primary {
				continue
			}
			got := latest(sources[name]).Price
			diff := got.Sub(want).Abs()
			if diff.IsPositive() && diff.GreaterThanOrEqual(threshold) {
				out.mismatches = append(out.mismatches, Mismatch{
					Symbol:         sym,
					Primary:        primary,
					Secondary:      name,
					PrimaryPrice:   want,
					SecondaryPrice: got,
					Diff:           diff,
				})
			}
		}
	}
	return out
}

func latest(obs []model.PriceObservation) model.PriceObservation {
	best := obs[0]
	for _, o := range obs[1:] {
		if o.Timestamp.After(best.Timestamp) {
			best = o
		}
	}
	return best
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
