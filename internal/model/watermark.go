package model

import (
	"errors"
	"fmt"
	"time"
)

// Provider identifies an external data vendor.
type Provider string

const (
	ProviderFinnhub Provider = "finnhub"
	ProviderPolygon Provider = "polygon"
	ProviderAlpaca  Provider = "alpaca"
	ProviderReddit  Provider = "reddit"
	ProviderRSS     Provider = "rss"

	// ProviderBatch owns the processing watermark written by batch commits.
	ProviderBatch Provider = "batch"
)

// Valid reports whether p is a known provider.
func (p Provider) Valid() bool {
	switch p {
	case ProviderFinnhub, ProviderPolygon, ProviderAlpaca, ProviderReddit, ProviderRSS, ProviderBatch:
		return true
	}
	return false
}

// Stream is a provider's data category, used for routing and cursor rules.
type Stream string

const (
	StreamMacroNews   Stream = "macro_news"
	StreamCompanyNews Stream = "company_news"
	StreamPrice       Stream = "price"
	StreamSocial      Stream = "social"
	StreamProcessed   Stream = "processed"
)

// Valid reports whether s is a known stream.
func (s Stream) Valid() bool {
	switch s {
	case StreamMacroNews, StreamCompanyNews, StreamPrice, StreamSocial, StreamProcessed:
		return true
	}
	return false
}

// NewsKind returns the news kind a news stream carries, or "" for non-news streams.
func (s Stream) NewsKind() NewsKind {
	switch s {
	case StreamMacroNews:
		return NewsMacro
	case StreamCompanyNews:
		return NewsCompany
	}
	return ""
}

// Scope says whether a cursor is shared by the whole source or kept per symbol.
type Scope string

const (
	ScopeGlobal Scope = "global"
	ScopeSymbol Scope = "symbol"
)

// GlobalSymbol is the symbol stored for every global-scope watermark.
const GlobalSymbol = "__all__"

// WatermarkKey identifies one cursor.
type WatermarkKey struct {
	Provider Provider
	Stream   Stream
	Scope    Scope
	Symbol   string
}

// GlobalKey returns the global-scope key for a provider stream.
func GlobalKey(p Provider, s Stream) WatermarkKey {
	return WatermarkKey{Provider: p, Stream: s, Scope: ScopeGlobal, Symbol: GlobalSymbol}
}

// SymbolKey returns the per-symbol key for a provider stream.
func SymbolKey(p Provider, s Stream, symbol string) WatermarkKey {
	return WatermarkKey{Provider: p, Stream: s, Scope: ScopeSymbol, Symbol: NormalizeSymbol(symbol)}
}

// Normalize forces the symbol to the sentinel for global scope and uppercases it otherwise.
func (k WatermarkKey) Normalize() WatermarkKey {
	if k.Scope == ScopeGlobal {
		k.Symbol = GlobalSymbol
	} else {
		k.Symbol = NormalizeSymbol(k.Symbol)
	}
	return k
}

// Validate checks the key after normalization.
func (k WatermarkKey) Validate() error {
	if !k.Provider.Valid() {
		return fmt.Errorf("unknown provider %q", k.Provider)
	}
	if !k.Stream.Valid() {
		return fmt.Errorf("unknown stream %q", k.Stream)
	}
	switch k.Scope {
	case ScopeGlobal:
		if k.Symbol != GlobalSymbol {
			return fmt.Errorf("global watermark must use symbol %q, got %q", GlobalSymbol, k.Symbol)
		}
	case ScopeSymbol:
		if k.Symbol == "" || k.Symbol == GlobalSymbol {
			return errors.New("symbol watermark requires a ticker")
		}
		if k.Symbol != NormalizeSymbol(k.Symbol) {
			return fmt.Errorf("symbol watermark ticker %q must be uppercase", k.Symbol)
		}
	default:
		return fmt.Errorf("unknown scope %q", k.Scope)
	}
	return nil
}

func (k WatermarkKey) String() string {
	return string(k.Provider) + "/" + string(k.Stream) + "/" + string(k.Scope) + "/" + k.Symbol
}

// Watermark is a stored cursor. Exactly one of Timestamp and ID is set.
type Watermark struct {
	Key       WatermarkKey
	Timestamp *time.Time
	ID        *int64
	UpdatedAt time.Time
}

// TimestampWatermark builds a time-based cursor value.
func TimestampWatermark(key WatermarkKey, ts time.Time) Watermark {
	ts = ts.UTC()
	return Watermark{Key: key.Normalize(), Timestamp: &ts}
}

// IDWatermark builds an id-based cursor value.
func IDWatermark(key WatermarkKey, id int64) Watermark {
	return Watermark{Key: key.Normalize(), ID: &id}
}

// ErrWatermarkValue is returned when a watermark carries both or neither value.
var ErrWatermarkValue = errors.New("watermark must set exactly one of timestamp and id")

// Validate checks the key and the exclusive-or on the value.
func (w Watermark) Validate() error {
	if err := w.Key.Validate(); err != nil {
		return err
	}
	if (w.Timestamp == nil) == (w.ID == nil) {
		return ErrWatermarkValue
	}
	if w.ID != nil && *w.ID < 0 {
		return fmt.Errorf("watermark id must be >= 0, got %d", *w.ID)
	}
	return nil
}

// CursorPlan holds the fetch parameters for one source in one cycle.
// Zero Since and nil MinID mean "no filter".
type CursorPlan struct {
	Since       time.Time
	MinID       *int64
	SymbolSince map[string]time.Time
}

// Bootstrap reports whether the plan has no cursor at all.
func (p CursorPlan) Bootstrap() bool {
	return p.Since.IsZero() && p.MinID == nil && len(p.SymbolSince) == 0
}
