package source

import (
	"context"

	"github.com/rickgao/marketfeed/internal/model"
)

// Descriptor identifies a configured source.
type Descriptor struct {
	Name     string // unique per configuration, e.g. "finnhub-company"
	Provider model.Provider
	Stream   model.Stream
}

// Source is the capability every provider shares.
type Source interface {
	Describe() Descriptor
	ValidateConnection(ctx context.Context) bool
}

// NewsBatch is the result of one news fetch.
type NewsBatch struct {
	Articles []model.NewsArticle

	// MaxID is the highest vendor sequence number seen, nil for date-based sources.
	MaxID *int64
}

// NewsSource fetches articles newer than the plan's cursor.
// Date-based sources ignore plan.MinID, id-based sources ignore plan.Since.
type NewsSource interface {
	Source
	FetchIncremental(ctx context.Context, plan model.CursorPlan) (NewsBatch, error)
}

// PriceSource returns a snapshot of current prices. It has no cursor.
type PriceSource interface {
	Source
	FetchIncremental(ctx context.Context) ([]model.PriceObservation, error)
}

// SocialSource fetches discussions newer than the plan's cursor.
type SocialSource interface {
	Source
	FetchIncremental(ctx context.Context, plan model.CursorPlan) ([]model.SocialDiscussion, error)
}

// Set is the full list of sources the poller drives.
type Set struct {
	News   []NewsSource
	Prices []PriceSource
	Social []SocialSource
}

// All returns every source in the set.
func (s Set) All() []Source {
	out := make([]Source, 0, len(s.News)+len(s.Prices)+len(s.Social))
	for _, n := range s.News {
		out = append(out, n)
	}
	for _, p := range s.Prices {
		out = append(out, p)
	}
	for _, so := range s.Social {
		out = append(out, so)
	}
	return out
}

// Len returns the number of sources in the set.
func (s Set) Len() int {
	return len(s.News) + len(s.Prices) + len(s.Social)
}
