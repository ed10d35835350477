package store

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/rickgao/marketfeed/internal/model"
)

// ListHoldings returns all holdings ordered by symbol.
func (s *Store) ListHoldings(ctx context.Context) ([]model.Holding, error) {
	rows, err := s.db.Query(ctx, `
		SELECT symbol, quantity, break_even_price, total_cost, COALESCE(notes, ''), created_at, updated_at
		FROM holdings
		ORDER BY symbol
	`)
	if err != nil {
		return nil, wrapErr("list holdings", err)
	}
	defer rows.Close()

	var out []model.Holding
	for rows.Next() {
		var (
			h                         model.Holding
			qty, breakEven, totalCost string
			created, updated          string
		)
		if err := rows.Scan(&h.Symbol, &qty, &breakEven, &totalCost, &h.Notes, &created, &updated); err != nil {
			return nil, fmt.Errorf("scan holding: %w", err)
		}
		if h.Quantity, err = decimal.NewFromString(qty); err != nil {
			return nil, fmt.Errorf("parse quantity for %s: %w", h.Symbol, err)
		}
		if h.BreakEvenPrice, err = decimal.NewFromString(breakEven); err != nil {
			return nil, fmt.Errorf("parse break even price for %s: %w", h.Symbol, err)
		}
		if h.TotalCost, err = decimal.NewFromString(totalCost); err != nil {
			return nil, fmt.Errorf("parse total cost for %s: %w", h.Symbol, err)
		}
		if h.CreatedAt, err = ParseTime(created); err != nil {
			return nil, err
		}
		if h.UpdatedAt, err = ParseTime(updated); err != nil {
			return nil, err
		}
		out = append(out, h)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapErr("list holdings", err)
	}
	return out, nil
}

// HoldingSymbols returns the symbols of all holdings.
func (s *Store) HoldingSymbols(ctx context.Context) ([]string, error) {
	holdings, err := s.ListHoldings(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(holdings))
	for i, h := range holdings {
		out[i] = h.Symbol
	}
	return out, nil
}

// UpsertHolding inserts or replaces a holding. Non-positive amounts are
// rejected by the schema.
func (s *Store) UpsertHolding(ctx context.Context, h model.Holding) error {
	now := FormatTime(s.now())
	var notes *string
	if h.Notes != "" {
		notes = &h.Notes
	}
	_, err := s.db.Exec(ctx, `
		INSERT INTO holdings (symbol, quantity, break_even_price, total_cost, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $6)
		ON CONFLICT (symbol) DO UPDATE
		SET quantity = EXCLUDED.quantity,
		    break_even_price = EXCLUDED.break_even_price,
		    total_cost = EXCLUDED.total_cost,
		    notes = EXCLUDED.notes,
		    updated_at = EXCLUDED.updated_at
	`, model.NormalizeSymbol(h.Symbol), h.Quantity.String(), h.BreakEvenPrice.String(), h.TotalCost.String(), notes, now)
	return wrapErr("upsert holding", err)
}
