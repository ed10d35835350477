package watermark

import (
	"errors"
	"fmt"
	"time"

	"github.com/rickgao/marketfeed/internal/model"
)

// CursorKind says how a source's progress is tracked.
type CursorKind string

const (
	CursorNone      CursorKind = "none" // snapshot sources (prices)
	CursorTimestamp CursorKind = "timestamp"
	CursorID        CursorKind = "id"
)

// Rule is the static cursor behaviour of one (provider, stream).
type Rule struct {
	Cursor   CursorKind
	Scope    model.Scope
	Overlap  time.Duration // rewind applied to an existing cursor
	FirstRun time.Duration // lookback when no cursor exists
}

// Validate checks that the rule is internally consistent.
func (r Rule) Validate() error {
	switch r.Cursor {
	case CursorNone:
		return nil
	case CursorTimestamp:
		if r.Scope != model.ScopeGlobal && r.Scope != model.ScopeSymbol {
			return fmt.Errorf("unknown scope %q", r.Scope)
		}
	case CursorID:
		if r.Scope != model.ScopeGlobal {
			return errors.New("id cursors must use global scope")
		}
	default:
		return fmt.Errorf("unknown cursor kind %q", r.Cursor)
	}
	if r.Overlap < 0 {
		return fmt.Errorf("overlap must be >= 0, got %s", r.Overlap)
	}
	if r.FirstRun <= 0 {
		return fmt.Errorf("first run window must be > 0, got %s", r.FirstRun)
	}
	return nil
}

// RuleKey identifies a rule.
type RuleKey struct {
	Provider model.Provider
	Stream   model.Stream
}

func (k RuleKey) String() string {
	return string(k.Provider) + "/" + string(k.Stream)
}

// RuleTable maps provider streams to cursor rules.
type RuleTable map[RuleKey]Rule

// ErrNoRule is returned when a provider stream has no cursor rule.
var ErrNoRule = errors.New("no cursor rule")

const day = 24 * time.Hour

// DefaultRules returns the built-in rule table.
func DefaultRules() RuleTable {
	return RuleTable{
		{model.ProviderFinnhub, model.StreamMacroNews}:   {Cursor: CursorID, Scope: model.ScopeGlobal, FirstRun: 2 * day},
		{model.ProviderFinnhub, model.StreamCompanyNews}: {Cursor: CursorTimestamp, Scope: model.ScopeSymbol, Overlap: 5 * time.Minute, FirstRun: 2 * day},
		{model.ProviderPolygon, model.StreamCompanyNews}: {Cursor: CursorTimestamp, Scope: model.ScopeGlobal, Overlap: 5 * time.Minute, FirstRun: 2 * day},
		{model.ProviderPolygon, model.StreamPrice}:       {Cursor: CursorNone, Scope: model.ScopeGlobal},
		{model.ProviderAlpaca, model.StreamPrice}:        {Cursor: CursorNone, Scope: model.ScopeGlobal},
		{model.ProviderAlpaca, model.StreamCompanyNews}:  {Cursor: CursorTimestamp, Scope: model.ScopeGlobal, Overlap: 2 * time.Minute, FirstRun: day},
		{model.ProviderRSS, model.StreamMacroNews}:       {Cursor: CursorTimestamp, Scope: model.ScopeGlobal, Overlap: 10 * time.Minute, FirstRun: day},
		{model.ProviderReddit, model.StreamSocial}:       {Cursor: CursorTimestamp, Scope: model.ScopeSymbol, Overlap: 10 * time.Minute, FirstRun: day},
	}
}

// Override adjusts the windows of an existing rule. Nil fields keep the default.
type Override struct {
	Provider model.Provider
	Stream   model.Stream
	Overlap  *time.Duration
	FirstRun *time.Duration
}

// WithOverrides returns a copy of t with the overrides applied.
func (t RuleTable) WithOverrides(overrides []Override) (RuleTable, error) {
	out := make(RuleTable, len(t))
	for k, r := range t {
		out[k] = r
	}
	for _, o := range overrides {
		key := RuleKey{Provider: o.Provider, Stream: o.Stream}
		r, ok := out[key]
		if !ok {
			return nil, fmt.Errorf("override %s: %w", key, ErrNoRule)
		}
		if o.Overlap != nil {
			r.Overlap = *o.Overlap
		}
		if o.FirstRun != nil {
			r.FirstRun = *o.FirstRun
		}
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("override %s: %w", key, err)
		}
		out[key] = r
	}
	return out, nil
}

// Resolve returns the rule for a provider stream.
func (t RuleTable) Resolve(p model.Provider, s model.Stream) (Rule, error) {
	key := RuleKey{Provider: p, Stream: s}
	r, ok := t[key]
	if !ok {
		return Rule{}, fmt.Errorf("%s: %w", key, ErrNoRule)
	}
	if err := r.Validate(); err != nil {
		return Rule{}, fmt.Errorf("%s: %w", key, err)
	}
	return r, nil
}

// Descriptor is a configured source together with its resolved rule.
type Descriptor struct {
	Source   string // configured source name, used in logs
	Provider model.Provider
	Stream   model.Stream
	Rule     Rule
}

// Describe resolves the rule for a named source.
func (t RuleTable) Describe(name string, p model.Provider, s model.Stream) (Descriptor, error) {
	r, err := t.Resolve(p, s)
	if err != nil {
		return Descriptor{}, fmt.Errorf("source %s: %w", name, err)
	}
	return Descriptor{Source: name, Provider: p, Stream: s, Rule: r}, nil
}

// GlobalKey returns the global cursor key of the source.
func (d Descriptor) GlobalKey() model.WatermarkKey {
	return model.GlobalKey(d.Provider, d.Stream)
}

// SymbolKey returns the per-symbol cursor key of the source.
func (d Descriptor) SymbolKey(symbol string) model.WatermarkKey {
	return model.SymbolKey(d.Provider, d.Stream, symbol)
}
