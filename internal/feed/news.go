package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/rickgao/marketfeed/internal/api"
	"github.com/rickgao/marketfeed/internal/model"
	"github.com/rickgao/marketfeed/internal/source"
)

type newsItem struct {
	ID          *int64     `json:"id"`
	URL         string     `json:"url"`
	Headline    string     `json:"headline"`
	Summary     string     `json:"summary"`
	PublishedAt string     `json:"published_at"`
	Source      string     `json:"source"`
	Kind        string     `json:"kind"`
	Symbols     []linkItem `json:"symbols"`
}

type linkItem struct {
	Symbol    string `json:"symbol"`
	Important *bool  `json:"important"`
}

// NewsFeed is a source.NewsSource over a JSON news endpoint.
type NewsFeed struct {
	base
}

var _ source.NewsSource = (*NewsFeed)(nil)

// NewNewsFeed creates a news feed.
func NewNewsFeed(cfg Config, client *api.Client, logger *slog.Logger) *NewsFeed {
	return &NewsFeed{base: newBase(cfg, client, logger)}
}

// FetchIncremental fetches articles newer than the plan's cursor. Per-symbol
// plans issue one request per symbol; articles from those requests with no
// symbol links are linked to the requested symbol. A failed symbol request is
// skipped, and the fetch only fails when every symbol request failed.
func (f *NewsFeed) FetchIncremental(ctx context.Context, plan model.CursorPlan) (source.NewsBatch, error) {
	var (
		batch  source.NewsBatch
		failed []error
	)
	reqs := planRequests(plan)
	for _, req := range reqs {
		raws, err := f.fetchEnvelope(ctx, req.query, "items")
		if err != nil {
			if err := f.requestFailed(ctx, req, err, &failed); err != nil {
				return source.NewsBatch{}, err
			}
			continue
		}

		for i, raw := range raws {
			a, id, err := f.parse(raw, req.symbol)
			if err != nil {
				f.skip(itemLabel(i, a.URL), err)
				continue
			}
			if id != nil && (batch.MaxID == nil || *id > *batch.MaxID) {
				v := *id
				batch.MaxID = &v
			}
			batch.Articles = append(batch.Articles, a)
		}
	}

	if len(failed) == len(reqs) {
		return source.NewsBatch{}, errors.Join(failed...)
	}
	f.logger.Debug("fetched news", "articles", len(batch.Articles), "requests", len(reqs), "failed", len(failed))
	return batch, nil
}

func (f *NewsFeed) parse(raw json.RawMessage, symbol string) (model.NewsArticle, *int64, error) {
	var it newsItem
	if err := json.Unmarshal(raw, &it); err != nil {
		return model.NewsArticle{}, nil, err
	}
	a := model.NewsArticle{
		URL:      strings.TrimSpace(it.URL),
		Headline: strings.TrimSpace(it.Headline),
		Content:  it.Summary,
		Source:   it.Source,
		Kind:     model.NewsKind(strings.ToLower(it.Kind)),
	}
	if a.URL == "" {
		return a, nil, errors.New("missing url")
	}
	if a.Headline == "" {
		return a, nil, errors.New("missing headline")
	}
	if a.Kind != "" && !a.Kind.Valid() {
		return a, nil, fmt.Errorf("unknown kind %q", it.Kind)
	}
	ts, err := parseTime(it.PublishedAt)
	if err != nil {
		return a, nil, fmt.Errorf("published_at: %w", err)
	}
	a.PublishedAt = ts
	if it.ID != nil {
		if *it.ID < 0 {
			return a, nil, fmt.Errorf("negative id %d", *it.ID)
		}
		a.SourceID = *it.ID
	}

	for _, l := range it.Symbols {
		if s := model.NormalizeSymbol(l.Symbol); s != "" {
			a.Symbols = append(a.Symbols, model.SymbolLink{Symbol: s, Important: l.Important})
		}
	}
	if len(a.Symbols) == 0 && symbol != "" {
		a.Symbols = []model.SymbolLink{{Symbol: symbol}}
	}
	return a, it.ID, nil
}

func itemLabel(i int, id string) string {
	if id != "" {
		return id
	}
	return fmt.Sprintf("#%d", i)
}
