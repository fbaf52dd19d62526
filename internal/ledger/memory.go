package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/tunevest/share-engine/internal/model"
)

// RoundDuration is the funding window the in-memory double opens or extends
// on every buy.
const RoundDuration = 72 * time.Hour

var (
	memFeeMultiplier = decimal.NewFromFloat(1.10)
	faucetGrant      = decimal.NewFromInt(1000)
	memTwo           = decimal.NewFromInt(2)
)

// MemoryLedger is an in-memory stand-in for the external share ledger, used
// for tests and the dev server. It is a double, not a reimplementation: it
// mimics only the observable contract (linear-curve quotes, 10% buy fee into
// the jackpot, round extension on buy, allowance/balance bookkeeping).
type MemoryLedger struct {
	mu       sync.RWMutex
	assets   map[string]*memAsset
	balances map[string]decimal.Decimal
	// allowances[account][spender]
	allowances map[string]map[string]decimal.Decimal

	// Now is the clock hook; tests override it to pin round state.
	Now func() time.Time

	// FailWrites makes every write return ErrCallRejected, for failure-path
	// tests.
	FailWrites bool
}

type memAsset struct {
	slope         decimal.Decimal // the ledger's true curve constant, invisible to clients
	supply        uint64
	jackpot       decimal.Decimal
	expiry        int64
	investorShare decimal.Decimal
	shares        map[string]uint64
	pending       map[string]decimal.Decimal
}

// NewMemoryLedger creates an empty in-memory ledger double.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{
		assets:     make(map[string]*memAsset),
		balances:   make(map[string]decimal.Decimal),
		allowances: make(map[string]map[string]decimal.Decimal),
		Now:        time.Now,
	}
}

// SeedAsset registers an asset with the ledger's internal curve constant and
// dividend percentage.
func (l *MemoryLedger) SeedAsset(assetID string, slope, investorShare decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.assets[assetID] = &memAsset{
		slope:         slope,
		jackpot:       decimal.Zero,
		investorShare: investorShare,
		shares:        make(map[string]uint64),
		pending:       make(map[string]decimal.Decimal),
	}
}

// SetBalance sets an account's token balance.
func (l *MemoryLedger) SetBalance(account string, balance decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.balances[account] = balance
}

// SetSupply pins an asset's total supply.
func (l *MemoryLedger) SetSupply(assetID string, supply uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.assets[assetID]; ok {
		a.supply = supply
	}
}

// SetExpiry pins an asset's round expiry (unix seconds).
func (l *MemoryLedger) SetExpiry(assetID string, expiry int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.assets[assetID]; ok {
		a.expiry = expiry
	}
}

// SetPendingReward pins an account's unclaimed dividend balance.
func (l *MemoryLedger) SetPendingReward(assetID, account string, pending decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if a, ok := l.assets[assetID]; ok {
		a.pending[account] = pending
	}
}

// --- Reads ---

func (l *MemoryLedger) GetSnapshot(_ context.Context, assetID string) (model.LedgerSnapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[assetID]
	if !ok {
		return model.LedgerSnapshot{}, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}
	return model.LedgerSnapshot{
		TotalSupply:    a.supply,
		JackpotBalance: a.jackpot,
		RoundExpiry:    a.expiry,
	}, nil
}

func (l *MemoryLedger) GetMyShares(_ context.Context, assetID, account string) (uint64, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[assetID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}
	return a.shares[account], nil
}

func (l *MemoryLedger) GetPendingReward(_ context.Context, assetID, account string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}
	return a.pending[account], nil
}

func (l *MemoryLedger) GetInvestorSharePercent(_ context.Context, assetID string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}
	return a.investorShare, nil
}

func (l *MemoryLedger) QuoteBuy(_ context.Context, assetID string, amount uint64) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}
	return reserve(a.slope, a.supply, amount).Mul(memFeeMultiplier), nil
}

func (l *MemoryLedger) QuoteSell(_ context.Context, assetID string, amount uint64) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.assets[assetID]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}
	if amount > a.supply {
		amount = a.supply
	}
	return reserve(a.slope, a.supply-amount, amount), nil
}

func (l *MemoryLedger) GetAllowance(_ context.Context, account, spender string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.allowances[account][spender], nil
}

func (l *MemoryLedger) GetBalance(_ context.Context, account string) (decimal.Decimal, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.balances[account], nil
}

// --- Writes ---

func (l *MemoryLedger) BuyShares(_ context.Context, assetID, account string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailWrites {
		return ErrCallRejected
	}
	a, ok := l.assets[assetID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}

	now := l.Now()
	if a.expiry != 0 && a.expiry <= now.Unix() {
		return fmt.Errorf("%w: funding round ended", ErrCallRejected)
	}

	base := reserve(a.slope, a.supply, amount)
	cost := base.Mul(memFeeMultiplier)
	if l.balances[account].LessThan(cost) {
		return fmt.Errorf("%w: insufficient balance", ErrCallRejected)
	}
	if l.allowanceOf(account).LessThan(cost) {
		return fmt.Errorf("%w: insufficient allowance", ErrCallRejected)
	}

	l.balances[account] = l.balances[account].Sub(cost)
	l.spendAllowance(account, cost)
	a.supply += amount
	a.shares[account] += amount
	a.jackpot = a.jackpot.Add(cost.Sub(base)) // fee feeds the pool
	a.expiry = now.Add(RoundDuration).Unix()  // buying opens or extends the window
	return nil
}

func (l *MemoryLedger) SellShares(_ context.Context, assetID, account string, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailWrites {
		return ErrCallRejected
	}
	a, ok := l.assets[assetID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}
	if a.shares[account] < amount {
		return fmt.Errorf("%w: insufficient shares", ErrCallRejected)
	}

	payout := reserve(a.slope, a.supply-amount, amount)
	a.supply -= amount
	a.shares[account] -= amount
	l.balances[account] = l.balances[account].Add(payout)
	return nil
}

func (l *MemoryLedger) ClaimRewards(_ context.Context, assetID, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailWrites {
		return ErrCallRejected
	}
	a, ok := l.assets[assetID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, assetID)
	}
	pending := a.pending[account]
	a.pending[account] = decimal.Zero
	l.balances[account] = l.balances[account].Add(pending)
	return nil
}

func (l *MemoryLedger) Approve(_ context.Context, account, spender string, amount decimal.Decimal) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailWrites {
		return ErrCallRejected
	}
	if l.allowances[account] == nil {
		l.allowances[account] = make(map[string]decimal.Decimal)
	}
	l.allowances[account][spender] = amount
	return nil
}

func (l *MemoryLedger) RequestTestFunds(_ context.Context, account string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FailWrites {
		return ErrCallRejected
	}
	l.balances[account] = l.balances[account].Add(faucetGrant)
	return nil
}

// allowanceOf sums an account's allowances; the double tracks a single
// effective spender, so this is the total the ledger may transfer.
func (l *MemoryLedger) allowanceOf(account string) decimal.Decimal {
	total := decimal.Zero
	for _, v := range l.allowances[account] {
		total = total.Add(v)
	}
	return total
}

func (l *MemoryLedger) spendAllowance(account string, cost decimal.Decimal) {
	for spender, v := range l.allowances[account] {
		l.allowances[account][spender] = v.Sub(cost)
		return
	}
}

// reserve is the double's internal integral cost. Matches the curve package
// formula by construction, but is computed against the asset's private
// slope, which clients can only approximate.
func reserve(slope decimal.Decimal, startSupply, amount uint64) decimal.Decimal {
	if amount == 0 {
		return decimal.Zero
	}
	start := decimal.NewFromUint64(startSupply)
	end := decimal.NewFromUint64(startSupply + amount)
	return slope.Div(memTwo).Mul(end.Mul(end).Sub(start.Mul(start)))
}
