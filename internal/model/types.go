package model

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// -----------------------------------------------------------------------------
// Enumerations
// -----------------------------------------------------------------------------

// NewsKind separates market-wide news from company-specific news.
type NewsKind string

const (
	NewsMacro   NewsKind = "macro"
	NewsCompany NewsKind = "company"
)

// Valid reports whether k is a known news kind.
func (k NewsKind) Valid() bool {
	return k == NewsMacro || k == NewsCompany
}

// Session is the market-hours label attached to a price observation.
type Session string

const (
	SessionPre     Session = "pre"
	SessionRegular Session = "regular"
	SessionPost    Session = "post"
	SessionClosed  Session = "closed"
)

// Valid reports whether s is a known session label.
func (s Session) Valid() bool {
	switch s {
	case SessionPre, SessionRegular, SessionPost, SessionClosed:
		return true
	}
	return false
}

// EntityKind names the raw entity kinds counted per cycle.
type EntityKind string

const (
	KindMacroNews   EntityKind = "macro_news"
	KindCompanyNews EntityKind = "company_news"
	KindPrice       EntityKind = "price"
	KindSocial      EntityKind = "social"
)

// -----------------------------------------------------------------------------
// Raw entities
// -----------------------------------------------------------------------------

// SymbolLink ties an article to a ticker it concerns.
type SymbolLink struct {
	Symbol    string
	Important *bool // nil = unknown
}

// NewsArticle is a single news item. URL is the identity after NormalizeURL.
type NewsArticle struct {
	URL         string
	Headline    string
	Content     string // optional body
	PublishedAt time.Time
	Source      string // publisher name as reported by the vendor
	Kind        NewsKind
	Symbols     []SymbolLink

	// SourceID is the vendor's own sequence number, 0 when the vendor has none.
	SourceID int64
}

// PriceObservation is one price for a symbol at a timestamp.
type PriceObservation struct {
	Symbol    string
	Timestamp time.Time
	Price     decimal.Decimal
	Volume    *int64
	Session   Session
	Source    string // name of the source that reported it
}

// SocialDiscussion is a post or thread about a symbol.
type SocialDiscussion struct {
	Source      string
	SourceID    string
	Symbol      string
	Community   string
	Title       string
	PublishedAt time.Time
	Content     string
}

// Holding is a position the operator tracks; its symbols join the poll universe.
type Holding struct {
	Symbol         string
	Quantity       decimal.Decimal
	BreakEvenPrice decimal.Decimal
	TotalCost      decimal.Decimal
	Notes          string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// NormalizeSymbol uppercases and trims a ticker.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}
