package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/marketfeed/internal/model"
)

type priceRow struct {
	Symbol     string
	Timestamp  string
	Price      string
	Volume     *int64
	Session    string
	Source     string
	InsertedAt string
}

func transformPrice(p model.PriceObservation, insertedAt time.Time) priceRow {
	return priceRow{
		Symbol:     model.NormalizeSymbol(p.Symbol),
		Timestamp:  FormatTime(p.Timestamp),
		Price:      p.Price.String(),
		Volume:     p.Volume,
		Session:    string(p.Session),
		Source:     p.Source,
		InsertedAt: FormatTime(insertedAt),
	}
}

const insertPriceSQL = `
	INSERT INTO price_data (symbol, timestamp_at, price, volume, session, source, inserted_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)
	ON CONFLICT (symbol, timestamp_at) DO NOTHING
`

// StorePrices inserts price observations in a single transaction. An
// observation for an already stored (symbol, timestamp) is ignored.
func (s *Store) StorePrices(ctx context.Context, prices []model.PriceObservation) (WriteResult, error) {
	var res WriteResult
	if len(prices) == 0 {
		return res, nil
	}

	now := s.now()
	batch := &pgx.Batch{}
	for _, p := range prices {
		if !p.Session.Valid() {
			return res, fmt.Errorf("store prices: %s at %s has no session label", p.Symbol, FormatTime(p.Timestamp))
		}
		r := transformPrice(p, now)
		batch.Queue(insertPriceSQL, r.Symbol, r.Timestamp, r.Price, r.Volume, r.Session, r.Source, r.InsertedAt)
	}

	affected, err := s.execBatch(ctx, "store prices", batch)
	if err != nil {
		return res, err
	}
	for _, ok := range affected {
		if ok {
			res.Inserts++
		} else {
			res.Conflicts++
		}
	}

	s.logger.Debug("stored prices", "count", len(prices), "inserts", res.Inserts, "conflicts", res.Conflicts)
	return res, nil
}
