// Package tradeflow drives the funding→approval→purchase/sale/claim sequence
// against the external ledger as one explicit state machine, replacing the
// ad hoc boolean flags a UI layer would otherwise scatter around a trade
// dialog.
//
// Transitions are functions of (current state, latest snapshot, user action).
// At most one ledger write is in flight per flow; reads may be issued freely.
// Failed submissions surface the error and fall back to idle — no automatic
// retries, ever.
package tradeflow

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/tunevest/share-engine/internal/curve"
	"github.com/tunevest/share-engine/internal/ledger"
	"github.com/tunevest/share-engine/internal/model"
	"github.com/tunevest/share-engine/internal/round"
)

var (
	// ErrInvalidAmount rejects zero trade amounts before any external call.
	ErrInvalidAmount = errors.New("tradeflow: trade amount must be positive")

	// ErrRoundEnded rejects buys client-side once the funding round is over.
	// Sells and claims are never rejected on this basis.
	ErrRoundEnded = errors.New("tradeflow: funding round has ended, buying is closed")

	// ErrInsufficientShares rejects sells exceeding the account's holdings
	// before any external call.
	ErrInsufficientShares = errors.New("tradeflow: not enough shares to sell")

	// ErrBusy means a ledger write is already in flight for this flow.
	ErrBusy = errors.New("tradeflow: a submission is already in flight")
)

// State is the trade dialog's machine state.
type State int

const (
	StateIdle State = iota
	StateAwaitingFunds
	StateAwaitingApproval
	StateSubmitting
	StateSuccess
	StateFailed
)

// String returns the wire/log label for a state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFunds:
		return "awaiting_funds"
	case StateAwaitingApproval:
		return "awaiting_approval"
	case StateSubmitting:
		return "submitting"
	case StateSuccess:
		return "success"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Evaluation is the result of a pre-flight check for a buy intent.
type Evaluation struct {
	State        State           `json:"state"`
	RequiredCost decimal.Decimal `json:"required_cost"`
	Balance      decimal.Decimal `json:"balance"`
	Allowance    decimal.Decimal `json:"allowance"`
	Round        round.State     `json:"-"`
	RoundLabel   string          `json:"round"`
}

// Flow is one trade dialog's state machine, created on open and discarded
// (or Reset) on close. Safe for concurrent use; the internal mutex serializes
// state transitions while ledger calls run outside it.
type Flow struct {
	ledger  ledger.Ledger
	assetID string
	account string
	spender string
	fee     decimal.Decimal

	mu          sync.Mutex
	state       State
	submittedAt time.Time

	now func() time.Time
}

// New creates a flow for one (asset, account) trade dialog. spender is the
// ledger-side transfer authority the allowance check runs against.
func New(l ledger.Ledger, assetID, account, spender string) *Flow {
	return &Flow{
		ledger:  l,
		assetID: assetID,
		account: account,
		spender: spender,
		fee:     curve.DefaultFeeMultiplier,
		state:   StateIdle,
		now:     time.Now,
	}
}

// WithFeeMultiplier overrides the buy-side fee multiplier used for pre-flight
// cost checks.
func (f *Flow) WithFeeMultiplier(m decimal.Decimal) *Flow {
	if m.GreaterThan(decimal.Zero) {
		f.fee = m
	}
	return f
}

// WithClock overrides the wall clock, for tests.
func (f *Flow) WithClock(now func() time.Time) *Flow {
	f.now = now
	return f
}

// State returns the current machine state.
func (f *Flow) State() State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

// Reset returns the flow to idle, as on dialog close. An already-submitted
// ledger write is not (and cannot be) cancelled; the next snapshot read
// reflects whatever happened.
func (f *Flow) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state != StateSubmitting {
		f.state = StateIdle
	}
}

// calibrated reads the latest snapshot and derives a fresh curve from it.
// The curve is never carried across snapshots: the ledger owns the true
// constant and the client only ever approximates it from the current pair.
func (f *Flow) calibrated(ctx context.Context) (model.LedgerSnapshot, curve.Curve, error) {
	snap, err := f.ledger.GetSnapshot(ctx, f.assetID)
	if err != nil {
		return model.LedgerSnapshot{}, curve.Curve{}, fmt.Errorf("read snapshot: %w", err)
	}
	unit, err := f.ledger.QuoteBuy(ctx, f.assetID, 1)
	if err != nil {
		return model.LedgerSnapshot{}, curve.Curve{}, fmt.Errorf("read unit price: %w", err)
	}
	return snap, curve.Calibrate(snap.TotalSupply, unit).WithFeeMultiplier(f.fee), nil
}

// EvaluateBuy runs the entry decision for a buy intent: compute the
// fee-inclusive required cost from the freshly calibrated curve, then route
// to AwaitingFunds, AwaitingApproval, or ready (idle). Called on every
// render while idle.
func (f *Flow) EvaluateBuy(ctx context.Context, amount uint64) (Evaluation, error) {
	if amount == 0 {
		return Evaluation{}, ErrInvalidAmount
	}

	snap, c, err := f.calibrated(ctx)
	if err != nil {
		return Evaluation{}, err
	}

	rs := round.Classify(snap.RoundExpiry, f.now())
	if !rs.CanBuy() {
		return Evaluation{State: f.State(), Round: rs, RoundLabel: rs.Label()}, ErrRoundEnded
	}

	required := c.BuyCost(snap.TotalSupply, amount)

	balance, err := f.ledger.GetBalance(ctx, f.account)
	if err != nil {
		return Evaluation{}, fmt.Errorf("read balance: %w", err)
	}
	allowance, err := f.ledger.GetAllowance(ctx, f.account, f.spender)
	if err != nil {
		return Evaluation{}, fmt.Errorf("read allowance: %w", err)
	}

	next := StateIdle
	switch {
	case balance.LessThan(required):
		next = StateAwaitingFunds
	case allowance.LessThan(required):
		next = StateAwaitingApproval
	}

	f.mu.Lock()
	if f.state != StateSubmitting {
		f.state = next
	}
	f.mu.Unlock()

	return Evaluation{
		State:        next,
		RequiredCost: required,
		Balance:      balance,
		Allowance:    allowance,
		Round:        rs,
		RoundLabel:   rs.Label(),
	}, nil
}

// Intent quotes a prospective trade from the calibrated curve without
// touching flow state. Recomputed on every amount or snapshot change.
func (f *Flow) Intent(ctx context.Context, side model.TradeSide, amount uint64) (model.TradeIntent, error) {
	if amount == 0 {
		return model.TradeIntent{}, ErrInvalidAmount
	}
	snap, c, err := f.calibrated(ctx)
	if err != nil {
		return model.TradeIntent{}, err
	}

	intent := model.TradeIntent{Side: side, Amount: amount}
	if side == model.SideBuy {
		intent.Expected = c.BuyCost(snap.TotalSupply, amount)
	} else {
		intent.Expected = c.SellPayout(snap.TotalSupply, amount)
	}
	return intent, nil
}

// Approve submits a transfer authorization for the given amount. Allowed
// from awaiting-approval (and idle); refused while a write is in flight.
func (f *Flow) Approve(ctx context.Context, amount decimal.Decimal) error {
	if err := f.beginWrite(); err != nil {
		return err
	}
	err := f.ledger.Approve(ctx, f.account, f.spender, amount)
	f.endWrite(err)
	if err != nil {
		return fmt.Errorf("approve: %w", err)
	}
	return nil
}

// RequestFunds asks the non-production faucet for test funds. Success means
// the caller should re-read the balance and re-evaluate.
func (f *Flow) RequestFunds(ctx context.Context) error {
	if err := f.beginWrite(); err != nil {
		return err
	}
	err := f.ledger.RequestTestFunds(ctx, f.account)
	f.endWrite(err)
	if err != nil {
		return fmt.Errorf("request funds: %w", err)
	}
	return nil
}

// SubmitBuy executes a buy. The round gate is re-checked against a fresh
// snapshot immediately before submission so an expired round is rejected
// without contacting the ledger's write path.
func (f *Flow) SubmitBuy(ctx context.Context, amount uint64) (model.TradeReceipt, error) {
	if amount == 0 {
		return model.TradeReceipt{}, ErrInvalidAmount
	}

	snap, c, err := f.calibrated(ctx)
	if err != nil {
		return model.TradeReceipt{}, err
	}
	if !round.Classify(snap.RoundExpiry, f.now()).CanBuy() {
		return model.TradeReceipt{}, ErrRoundEnded
	}
	quoted := c.BuyCost(snap.TotalSupply, amount)

	if err := f.beginWrite(); err != nil {
		return model.TradeReceipt{}, err
	}
	err = f.ledger.BuyShares(ctx, f.assetID, f.account, amount)
	f.endWrite(err)
	if err != nil {
		return model.TradeReceipt{}, fmt.Errorf("buy shares: %w", err)
	}

	return f.receipt(model.SideBuy, amount, quoted), nil
}

// SubmitSell executes a sell. Never gated on round state; rejected before
// any external call when the account holds fewer shares than requested.
func (f *Flow) SubmitSell(ctx context.Context, amount uint64) (model.TradeReceipt, error) {
	if amount == 0 {
		return model.TradeReceipt{}, ErrInvalidAmount
	}

	shares, err := f.ledger.GetMyShares(ctx, f.assetID, f.account)
	if err != nil {
		return model.TradeReceipt{}, fmt.Errorf("read shares: %w", err)
	}
	if shares < amount {
		return model.TradeReceipt{}, ErrInsufficientShares
	}

	snap, c, err := f.calibrated(ctx)
	if err != nil {
		return model.TradeReceipt{}, err
	}
	quoted := c.SellPayout(snap.TotalSupply, amount)

	if err := f.beginWrite(); err != nil {
		return model.TradeReceipt{}, err
	}
	err = f.ledger.SellShares(ctx, f.assetID, f.account, amount)
	f.endWrite(err)
	if err != nil {
		return model.TradeReceipt{}, fmt.Errorf("sell shares: %w", err)
	}

	return f.receipt(model.SideSell, amount, quoted), nil
}

// Claim collects pending dividends. A standalone one-shot independent of the
// buy/sell sub-flow: it shares only the single-write-in-flight guard and
// leaves the machine state alone. Success should trigger a re-read of the
// pending-reward balance.
func (f *Flow) Claim(ctx context.Context) error {
	f.mu.Lock()
	if f.state == StateSubmitting {
		f.mu.Unlock()
		return ErrBusy
	}
	f.mu.Unlock()

	if err := f.ledger.ClaimRewards(ctx, f.assetID, f.account); err != nil {
		return fmt.Errorf("claim rewards: %w", err)
	}
	return nil
}

// beginWrite transitions into Submitting, refusing re-entry while another
// write is outstanding.
func (f *Flow) beginWrite() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.state == StateSubmitting {
		return ErrBusy
	}
	f.state = StateSubmitting
	f.submittedAt = f.now()
	return nil
}

// endWrite records the outcome. Failure lands on StateFailed; the next
// evaluation or Reset returns the flow to idle — re-triggering is up to the
// user.
func (f *Flow) endWrite(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.state = StateFailed
		return
	}
	f.state = StateSuccess
}

func (f *Flow) receipt(side model.TradeSide, amount uint64, quoted decimal.Decimal) model.TradeReceipt {
	return model.TradeReceipt{
		ID:        uuid.New().String(),
		TrackID:   f.assetID,
		Account:   f.account,
		Side:      side,
		Amount:    amount,
		Quoted:    quoted,
		Timestamp: f.now().UTC(),
	}
}
