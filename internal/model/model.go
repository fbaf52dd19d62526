// Package model defines the core domain types shared across the share engine.
// All monetary values use shopspring/decimal — never float64 for money.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Track is a minted catalog record whose shares trade against the external
// ledger. The token ID doubles as the seed key for reconstructed price
// history, so charts stay stable per track across sessions and devices.
type Track struct {
	ID            string          `json:"id" db:"id"`
	TokenID       string          `json:"token_id" db:"token_id"`
	Title         string          `json:"title" db:"title"`
	ArtistName    string          `json:"artist_name" db:"artist_name"`
	CoverURL      string          `json:"cover_url,omitempty" db:"cover_url"`
	InvestorShare decimal.Decimal `json:"investor_share" db:"investor_share"` // dividend percent, e.g. 30
	Minted        bool            `json:"minted" db:"minted"`
	CreatedAt     time.Time       `json:"created_at" db:"created_at"`
}

// LedgerSnapshot is the per-asset state read from the external share ledger.
// A snapshot is immutable once read; the engine never treats a cached copy as
// authoritative — every computation re-derives from the latest read.
type LedgerSnapshot struct {
	TotalSupply    uint64          `json:"total_supply"`
	JackpotBalance decimal.Decimal `json:"jackpot_balance"`
	RoundExpiry    int64           `json:"round_expiry"` // unix seconds; 0 = round not started
}

// TradeSide is the direction of a trade intent.
type TradeSide string

const (
	SideBuy  TradeSide = "BUY"
	SideSell TradeSide = "SELL"
)

// TradeIntent captures what the user is about to do. It is recomputed on
// every amount or snapshot change and never persisted.
type TradeIntent struct {
	Side     TradeSide       `json:"side"`
	Amount   uint64          `json:"amount"`
	Expected decimal.Decimal `json:"expected"` // cost for buys, payout for sells
}

// PricePoint is one element of a reconstructed, display-only price series.
// Synthetic points are never mixed with real ledger data.
type PricePoint struct {
	Index int             `json:"index"`
	Value decimal.Decimal `json:"value"`
}

// TradeReceipt reports the outcome of a submitted ledger write. It is not
// persisted; the ledger owns trade history.
type TradeReceipt struct {
	ID        string          `json:"id"`
	TrackID   string          `json:"track_id"`
	Account   string          `json:"account"`
	Side      TradeSide       `json:"side"`
	Amount    uint64          `json:"amount"`
	Quoted    decimal.Decimal `json:"quoted"`
	Timestamp time.Time       `json:"timestamp"`
}
