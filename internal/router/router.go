package router

import (
	"errors"
	"log/slog"
	"sync"

	"github.com/rickgao/marketfeed/internal/model"
	"github.com/rickgao/marketfeed/internal/source"
)

// Router routes fetched items. It is safe for concurrent use.
type Router struct {
	logger *slog.Logger

	mu    sync.Mutex
	stats Stats
}

// New creates a Router.
func New(logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{logger: logger.With("component", "router")}
}

// News routes the articles fetched from one news source.
func (r *Router) News(src source.Descriptor, articles []model.NewsArticle) NewsRoute {
	var route NewsRoute
	index := make(map[string]*model.NewsArticle, len(articles))
	order := make([]string, 0, len(articles))
	var dups int64

	for _, a := range articles {
		u, err := model.NormalizeURL(a.URL)
		if err != nil {
			route.Skipped = append(route.Skipped, r.skip(src, a.URL, err))
			continue
		}
		a.URL = u
		a.Symbols = MergeLinks(nil, a.Symbols)
		if a.Kind == "" {
			a.Kind = defaultKind(src.Stream, a)
		}
		if !a.Kind.Valid() {
			route.Skipped = append(route.Skipped, r.skip(src, u, errors.New("unknown news kind "+string(a.Kind))))
			continue
		}

		if prev, ok := index[u]; ok {
			prev.Symbols = MergeLinks(prev.Symbols, a.Symbols)
			dups++
			continue
		}
		cp := a
		index[u] = &cp
		order = append(order, u)
	}

	for _, u := range order {
		a := *index[u]
		if a.Kind == model.NewsMacro {
			route.Macro = append(route.Macro, a)
		} else {
			route.Company = append(route.Company, a)
		}
	}

	r.mu.Lock()
	r.stats.Routed += int64(len(order))
	r.stats.Macro += int64(len(route.Macro))
	r.stats.Company += int64(len(route.Company))
	r.stats.Skipped += int64(len(route.Skipped))
	r.stats.Duplicates += dups
	r.mu.Unlock()

	return route
}

// Social routes the discussions fetched from one social source, dropping
// duplicate (source, id) pairs.
func (r *Router) Social(src source.Descriptor, posts []model.SocialDiscussion) SocialRoute {
	var route SocialRoute
	seen := make(map[string]bool, len(posts))
	var dups int64

	for _, p := range posts {
		p.Symbol = model.NormalizeSymbol(p.Symbol)
		if p.Source == "" {
			p.Source = src.Name
		}
		if p.SourceID == "" || p.Symbol == "" {
			route.Skipped = append(route.Skipped, r.skip(src, p.SourceID, errors.New("missing id or symbol")))
			continue
		}
		key := p.Source + "\x00" + p.SourceID
		if seen[key] {
			dups++
			continue
		}
		seen[key] = true
		route.Posts = append(route.Posts, p)
	}

	r.mu.Lock()
	r.stats.Routed += int64(len(route.Posts))
	r.stats.Social += int64(len(route.Posts))
	r.stats.Skipped += int64(len(route.Skipped))
	r.stats.Duplicates += dups
	r.mu.Unlock()

	return route
}

// Stats returns the counters accumulated since New.
func (r *Router) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}

func (r *Router) skip(src source.Descriptor, item string, err error) *source.ItemParseError {
	perr := &source.ItemParseError{Source: src.Name, Item: item, Err: err}
	r.logger.Debug("dropping item", "source", src.Name, "error", perr)
	return perr
}

// defaultKind picks a kind for an article that carries none: the source
// stream's kind, else company when the article names symbols.
func defaultKind(stream model.Stream, a model.NewsArticle) model.NewsKind {
	if k := stream.NewsKind(); k != "" {
		return k
	}
	if len(a.Symbols) > 0 {
		return model.NewsCompany
	}
	return model.NewsMacro
}

// MergeLinks appends add to links, normalizing symbols and dropping
// duplicates. A known importance flag replaces an unknown one and true wins
// over false.
func MergeLinks(links, add []model.SymbolLink) []model.SymbolLink {
	index := make(map[string]int, len(links)+len(add))
	out := make([]model.SymbolLink, 0, len(links)+len(add))
	for _, l := range append(append([]model.SymbolLink(nil), links...), add...) {
		sym := model.NormalizeSymbol(l.Symbol)
		if sym == "" {
			continue
		}
		i, ok := index[sym]
		if !ok {
			index[sym] = len(out)
			out = append(out, model.SymbolLink{Symbol: sym, Important: l.Important})
			continue
		}
		if l.Important != nil && (out[i].Important == nil || *l.Important) {
			v := *l.Important
			out[i].Important = &v
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
