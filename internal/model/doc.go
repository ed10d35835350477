// Package model defines shared data types used across the ingestion engine.
//
// Conventions:
//   - Timestamps: time.Time, always UTC once they pass through a constructor or store
//   - Money: decimal.Decimal, never float64
//   - Symbols: uppercase tickers (e.g. "AAPL")
//   - Articles: identified by normalized URL
package model
