// Package ledger defines the typed interface to the external share ledger.
//
// The ledger owns all authoritative state: balances, supplies, minting,
// settlement, fee splits, round timers. This engine never reimplements any
// of it — it reads immutable snapshots and submits user-confirmed writes,
// then re-reads whatever the ledger says afterwards.
package ledger

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/tunevest/share-engine/internal/model"
)

var (
	// ErrCallRejected means the ledger declined or reverted a write (or the
	// user declined signing upstream). The caller surfaces it and returns to
	// idle; no automatic retry.
	ErrCallRejected = errors.New("ledger: call rejected")

	// ErrAssetNotFound means the asset ID is unknown to the ledger.
	ErrAssetNotFound = errors.New("ledger: asset not found")
)

// Reader is the read side of the ledger. Reads are idempotent and may be
// issued concurrently; each result carries its own fresh values, so later
// responses simply supersede earlier ones.
type Reader interface {
	// GetSnapshot returns the current per-asset state.
	GetSnapshot(ctx context.Context, assetID string) (model.LedgerSnapshot, error)

	// GetMyShares returns the account's share balance for an asset.
	GetMyShares(ctx context.Context, assetID, account string) (uint64, error)

	// GetPendingReward returns the account's unclaimed dividend balance.
	GetPendingReward(ctx context.Context, assetID, account string) (decimal.Decimal, error)

	// GetInvestorSharePercent returns the asset's dividend percentage.
	GetInvestorSharePercent(ctx context.Context, assetID string) (decimal.Decimal, error)

	// QuoteBuy returns the ledger's own fee-inclusive cost of buying amount shares.
	QuoteBuy(ctx context.Context, assetID string, amount uint64) (decimal.Decimal, error)

	// QuoteSell returns the ledger's payout for selling amount shares.
	QuoteSell(ctx context.Context, assetID string, amount uint64) (decimal.Decimal, error)

	// GetAllowance returns how much of the account's token balance the
	// spender is authorized to transfer.
	GetAllowance(ctx context.Context, account, spender string) (decimal.Decimal, error)

	// GetBalance returns the account's token balance.
	GetBalance(ctx context.Context, account string) (decimal.Decimal, error)
}

// Writer is the write side. Each call is a single user-confirmed action;
// success means the caller should re-read the affected snapshot fields.
// Writes are fire-and-forget once sent — they cannot be cancelled.
type Writer interface {
	BuyShares(ctx context.Context, assetID, account string, amount uint64) error
	SellShares(ctx context.Context, assetID, account string, amount uint64) error
	ClaimRewards(ctx context.Context, assetID, account string) error
	Approve(ctx context.Context, account, spender string, amount decimal.Decimal) error

	// RequestTestFunds is the non-production funding helper.
	RequestTestFunds(ctx context.Context, account string) error
}

// Ledger is the full external collaborator surface.
type Ledger interface {
	Reader
	Writer
}
