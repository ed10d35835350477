package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/marketfeed/internal/model"
)

type socialRow struct {
	Source      string
	SourceID    string
	Symbol      string
	Community   string
	Title       string
	PublishedAt string
	Content     *string
	InsertedAt  string
}

func transformSocial(d model.SocialDiscussion, insertedAt time.Time) socialRow {
	row := socialRow{
		Source:      d.Source,
		SourceID:    d.SourceID,
		Symbol:      model.NormalizeSymbol(d.Symbol),
		Community:   d.Community,
		Title:       d.Title,
		PublishedAt: FormatTime(d.PublishedAt),
		InsertedAt:  FormatTime(insertedAt),
	}
	if d.Content != "" {
		content := d.Content
		row.Content = &content
	}
	return row
}

// xmax is 0 only for a freshly inserted tuple.
const upsertSocialSQL = `
	INSERT INTO social_discussions (source, source_id, symbol, community, title, published_at, content, inserted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	ON CONFLICT (source, source_id) DO UPDATE
	SET symbol = EXCLUDED.symbol,
	    community = EXCLUDED.community,
	    title = EXCLUDED.title,
	    published_at = EXCLUDED.published_at,
	    content = EXCLUDED.content
	RETURNING (xmax = 0) AS inserted
`

// StoreSocial upserts discussions on (source, source_id) in a single transaction.
func (s *Store) StoreSocial(ctx context.Context, items []model.SocialDiscussion) (WriteResult, error) {
	var res WriteResult
	if len(items) == 0 {
		return res, nil
	}

	now := s.now()
	batch := &pgx.Batch{}
	for _, d := range items {
		r := transformSocial(d, now)
		batch.Queue(upsertSocialSQL, r.Source, r.SourceID, r.Symbol, r.Community, r.Title, r.PublishedAt, r.Content, r.InsertedAt)
	}

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		results := tx.SendBatch(ctx, batch)
		for range items {
			var inserted bool
			if err := results.QueryRow().Scan(&inserted); err != nil {
				results.Close()
				return err
			}
			if inserted {
				res.Inserts++
			} else {
				res.Updates++
			}
		}
		return results.Close()
	})
	if err != nil {
		return WriteResult{}, wrapErr("store social", err)
	}

	s.logger.Debug("stored social", "count", len(items), "inserts", res.Inserts, "updates", res.Updates)
	return res, nil
}
