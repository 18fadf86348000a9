package models

import "github.com/shopspring/decimal"

// PriceTick represents a single oracle price observation for a trading pair.
// Prices are decimals, never binary floats, so the value survives relaying
// between feed, cache and clients without representation drift.
type PriceTick struct {
	Pair      string          `json:"pair"`
	Price     decimal.Decimal `json:"price"`
	Timestamp int64           `json:"timestamp"` // unix milli, source time
	SeqID     int64           `json:"seq_id"`    // monotonic counter per pair
}
