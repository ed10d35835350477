package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/marketfeed/internal/model"
)

type newsRow struct {
	URL         string
	Headline    string
	Content     *string
	PublishedAt string
	Source      string
	Kind        string
	Provider    string
	SourceID    *int64
	InsertedAt  string
	Links       []linkRow
}

type linkRow struct {
	Symbol    string
	Important *bool
}

// transformNews converts an article into its row, normalizing the URL and
// symbol links. Duplicate links keep the last known importance.
func transformNews(a model.NewsArticle, provider model.Provider, insertedAt time.Time) (newsRow, error) {
	u, err := model.NormalizeURL(a.URL)
	if err != nil {
		return newsRow{}, err
	}

	row := newsRow{
		URL:         u,
		Headline:    a.Headline,
		PublishedAt: FormatTime(a.PublishedAt),
		Source:      a.Source,
		Kind:        string(a.Kind),
		Provider:    string(provider),
		InsertedAt:  FormatTime(insertedAt),
	}
	if a.Content != "" {
		content := a.Content
		row.Content = &content
	}
	if a.SourceID > 0 {
		id := a.SourceID
		row.SourceID = &id
	}

	index := make(map[string]int, len(a.Symbols))
	for _, l := range a.Symbols {
		sym := model.NormalizeSymbol(l.Symbol)
		if sym == "" {
			continue
		}
		if i, ok := index[sym]; ok {
			if l.Important != nil {
				row.Links[i].Important = l.Important
			}
			continue
		}
		index[sym] = len(row.Links)
		row.Links = append(row.Links, linkRow{Symbol: sym, Important: l.Important})
	}

	return row, nil
}

const insertNewsSQL = `
	INSERT INTO news_items (url, headline, content, published_at, source, news_kind, provider, source_id, inserted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	ON CONFLICT (url) DO NOTHING
`

const upsertLinkSQL = `
	INSERT INTO news_symbols (url, symbol, is_important)
	VALUES ($1, $2, $3)
	ON CONFLICT (url, symbol) DO UPDATE
	SET is_important = COALESCE(EXCLUDED.is_important, news_symbols.is_important)
`

// StoreNews inserts articles from one provider in a single transaction.
// Articles whose URL is already stored are ignored; their symbol links are
// still upserted.
func (s *Store) StoreNews(ctx context.Context, provider model.Provider, articles []model.NewsArticle) (WriteResult, error) {
	var res WriteResult
	if len(articles) == 0 {
		return res, nil
	}

	now := s.now()
	batch := &pgx.Batch{}
	articleStmt := make([]bool, 0, len(articles)*2)

	for _, a := range articles {
		row, err := transformNews(a, provider, now)
		if err != nil {
			return res, fmt.Errorf("store news: %w", err)
		}
		batch.Queue(insertNewsSQL,
			row.URL, row.Headline, row.Content, row.PublishedAt, row.Source,
			row.Kind, row.Provider, row.SourceID, row.InsertedAt,
		)
		articleStmt = append(articleStmt, true)
		for _, l := range row.Links {
			batch.Queue(upsertLinkSQL, row.URL, l.Symbol, l.Important)
			articleStmt = append(articleStmt, false)
		}
	}

	affected, err := s.execBatch(ctx, "store news", batch)
	if err != nil {
		return res, err
	}

	for i, isArticle := range articleStmt {
		if !isArticle {
			continue
		}
		if affected[i] {
			res.Inserts++
		} else {
			res.Conflicts++
		}
	}

	s.logger.Debug("stored news",
		"provider", provider,
		"count", len(articles),
		"inserts", res.Inserts,
		"conflicts", res.Conflicts,
	)
	return res, nil
}
