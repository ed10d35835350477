package router

import (
	"github.com/rickgao/marketfeed/internal/model"
	"github.com/rickgao/marketfeed/internal/source"
)

// NewsRoute is one source's news after routing.
type NewsRoute struct {
	Macro   []model.NewsArticle
	Company []model.NewsArticle
	Skipped []*source.ItemParseError
}

// Articles returns both buckets, macro first.
func (r NewsRoute) Articles() []model.NewsArticle {
	out := make([]model.NewsArticle, 0, len(r.Macro)+len(r.Company))
	out = append(out, r.Macro...)
	return append(out, r.Company...)
}

// SocialRoute is one source's discussions after routing.
type SocialRoute struct {
	Posts   []model.SocialDiscussion
	Skipped []*source.ItemParseError
}

// Stats contains runtime statistics.
type Stats struct {
	Routed     int64
	Macro      int64
	Company    int64
	Social     int64
	Skipped    int64
	Duplicates int64
}
