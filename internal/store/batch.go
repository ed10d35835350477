package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/rickgao/marketfeed/internal/model"
)

// Batch is the raw data inserted at or before a cutoff.
type Batch struct {
	Cutoff time.Time
	News   []model.NewsArticle
	Prices []model.PriceObservation
	Social []model.SocialDiscussion
}

// Len returns the number of entities in the batch.
func (b Batch) Len() int {
	return len(b.News) + len(b.Prices) + len(b.Social)
}

// PruneResult counts rows deleted by CommitBatch.
type PruneResult struct {
	News   int64
	Prices int64
	Social int64
}

// Total returns the number of deleted rows.
func (r PruneResult) Total() int64 {
	return r.News + r.Prices + r.Social
}

// ProcessedKey is the watermark recording the last committed batch cutoff.
var ProcessedKey = model.GlobalKey(model.ProviderBatch, model.StreamProcessed)

// GetBefore returns every raw entity whose insertion time is at or before
// cutoff. It selects on the insertion clock, not the entity timestamp, so data
// that arrives late stays for the next batch. Reads share one snapshot.
func (s *Store) GetBefore(ctx context.Context, cutoff time.Time) (Batch, error) {
	b := Batch{Cutoff: cutoff.UTC()}
	c := FormatTime(cutoff)

	err := pgx.BeginTxFunc(ctx, s.db, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}, func(tx pgx.Tx) error {
		var err error
		if b.News, err = readNews(ctx, tx, c); err != nil {
			return err
		}
		if b.Prices, err = readPrices(ctx, tx, c); err != nil {
			return err
		}
		b.Social, err = readSocial(ctx, tx, c)
		return err
	})
	if err != nil {
		return Batch{}, wrapErr("get before", err)
	}
	return b, nil
}

func readNews(ctx context.Context, tx pgx.Tx, cutoff string) ([]model.NewsArticle, error) {
	rows, err := tx.Query(ctx, `
		SELECT url, headline, COALESCE(content, ''), published_at, source, news_kind, COALESCE(source_id, 0)
		FROM news_items
		WHERE inserted_at <= $1
		ORDER BY published_at, url
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query news: %w", err)
	}
	defer rows.Close()

	var (
		out   []model.NewsArticle
		index = make(map[string]int)
	)
	for rows.Next() {
		var (
			a         model.NewsArticle
			published string
			kind      string
		)
		if err := rows.Scan(&a.URL, &a.Headline, &a.Content, &published, &a.Source, &kind, &a.SourceID); err != nil {
			return nil, fmt.Errorf("scan news: %w", err)
		}
		if a.PublishedAt, err = ParseTime(published); err != nil {
			return nil, err
		}
		a.Kind = model.NewsKind(kind)
		index[a.URL] = len(out)
		out = append(out, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read news: %w", err)
	}

	links, err := tx.Query(ctx, `
		SELECT s.url, s.symbol, s.is_important
		FROM news_symbols s
		JOIN news_items n ON n.url = s.url
		WHERE n.inserted_at <= $1
		ORDER BY s.url, s.symbol
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query news symbols: %w", err)
	}
	defer links.Close()

	for links.Next() {
		var (
			u string
			l model.SymbolLink
		)
		if err := links.Scan(&u, &l.Symbol, &l.Important); err != nil {
			return nil, fmt.Errorf("scan news symbol: %w", err)
		}
		if i, ok := index[u]; ok {
			out[i].Symbols = append(out[i].Symbols, l)
		}
	}
	if err := links.Err(); err != nil {
		return nil, fmt.Errorf("read news symbols: %w", err)
	}
	return out, nil
}

func readPrices(ctx context.Context, tx pgx.Tx, cutoff string) ([]model.PriceObservation, error) {
	rows, err := tx.Query(ctx, `
		SELECT symbol, timestamp_at, price, volume, session, source
		FROM price_data
		WHERE inserted_at <= $1
		ORDER BY symbol, timestamp_at
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query prices: %w", err)
	}
	defer rows.Close()

	var out []model.PriceObservation
	for rows.Next() {
		var (
			p       model.PriceObservation
			ts      string
			price   string
			session string
		)
		if err := rows.Scan(&p.Symbol, &ts, &price, &p.Volume, &session, &p.Source); err != nil {
			return nil, fmt.Errorf("scan price: %w", err)
		}
		if p.Timestamp, err = ParseTime(ts); err != nil {
			return nil, err
		}
		if p.Price, err = decimal.NewFromString(price); err != nil {
			return nil, fmt.Errorf("parse stored price %q: %w", price, err)
		}
		p.Session = model.Session(session)
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read prices: %w", err)
	}
	return out, nil
}

func readSocial(ctx context.Context, tx pgx.Tx, cutoff string) ([]model.SocialDiscussion, error) {
	rows, err := tx.Query(ctx, `
		SELECT source, source_id, symbol, community, title, published_at, COALESCE(content, '')
		FROM social_discussions
		WHERE inserted_at <= $1
		ORDER BY published_at, source, source_id
	`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query social: %w", err)
	}
	defer rows.Close()

	var out []model.SocialDiscussion
	for rows.Next() {
		var (
			d         model.SocialDiscussion
			published string
		)
		if err := rows.Scan(&d.Source, &d.SourceID, &d.Symbol, &d.Community, &d.Title, &published, &d.Content); err != nil {
			return nil, fmt.Errorf("scan social: %w", err)
		}
		if d.PublishedAt, err = ParseTime(published); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read social: %w", err)
	}
	return out, nil
}

// MinCommitLag is how far behind the store clock a batch cutoff must be.
// Writers stamp inserted_at before their transaction commits, so a row
// stamped just before the cutoff can become visible after GetBefore read its
// snapshot. Holding the cutoff back by more than the longest write
// transaction means such a row is never pruned unread.
const MinCommitLag = time.Minute

// checkCutoff rejects cutoffs newer than now - MinCommitLag.
func checkCutoff(cutoff, now time.Time) error {
	if limit := now.Add(-MinCommitLag); cutoff.After(limit) {
		return fmt.Errorf("commit batch: cutoff %s is newer than %s (must lag now by %s)",
			FormatTime(cutoff), FormatTime(limit), MinCommitLag)
	}
	return nil
}

// CommitBatch deletes all raw rows inserted at or before cutoff and records
// cutoff as the processing watermark, in one transaction. Calling it again
// with the same cutoff deletes nothing and succeeds. The cutoff must lag the
// store clock by at least MinCommitLag; callers pass the same cutoff they gave
// GetBefore.
func (s *Store) CommitBatch(ctx context.Context, cutoff time.Time) (PruneResult, error) {
	var res PruneResult
	now := s.now()
	if err := checkCutoff(cutoff, now); err != nil {
		return res, err
	}
	c := FormatTime(cutoff)

	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		// Links cascade with their articles.
		ct, err := tx.Exec(ctx, `DELETE FROM news_items WHERE inserted_at <= $1`, c)
		if err != nil {
			return err
		}
		res.News = ct.RowsAffected()

		if ct, err = tx.Exec(ctx, `DELETE FROM price_data WHERE inserted_at <= $1`, c); err != nil {
			return err
		}
		res.Prices = ct.RowsAffected()

		if ct, err = tx.Exec(ctx, `DELETE FROM social_discussions WHERE inserted_at <= $1`, c); err != nil {
			return err
		}
		res.Social = ct.RowsAffected()

		return upsertWatermark(ctx, tx, model.TimestampWatermark(ProcessedKey, cutoff), now)
	})
	if err != nil {
		return PruneResult{}, wrapErr("commit batch", err)
	}

	s.logger.Info("batch committed",
		"cutoff", c,
		"news", res.News,
		"prices", res.Prices,
		"social", res.Social,
	)
	return res, nil
}

// LastProcessed returns the cutoff of the last committed batch, or zero time.
func (s *Store) LastProcessed(ctx context.Context) (time.Time, error) {
	w, err := getWatermark(ctx, s.db, ProcessedKey)
	if err != nil || w == nil || w.Timestamp == nil {
		return time.Time{}, err
	}
	return *w.Timestamp, nil
}
