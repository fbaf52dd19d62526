package tradeflow

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tunevest/share-engine/internal/ledger"
	"github.com/tunevest/share-engine/internal/model"
)

func d(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f)
}

// stubLedger pins exact read values so pre-flight math can be asserted to
// the digit, and instruments the write path.
type stubLedger struct {
	mu        sync.Mutex
	snapshot  model.LedgerSnapshot
	unitQuote decimal.Decimal
	balance   decimal.Decimal
	allowance decimal.Decimal
	shares    uint64

	writeErr   error
	buyCalls   int
	sellCalls  int
	claimCalls int

	// blockWrites, when non-nil, makes BuyShares park until released.
	blockWrites chan struct{}
	buyStarted  chan struct{}
}

func (s *stubLedger) GetSnapshot(context.Context, string) (model.LedgerSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot, nil
}

func (s *stubLedger) GetMyShares(context.Context, string, string) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.shares, nil
}

func (s *stubLedger) GetPendingReward(context.Context, string, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *stubLedger) GetInvestorSharePercent(context.Context, string) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *stubLedger) QuoteBuy(context.Context, string, uint64) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unitQuote, nil
}

func (s *stubLedger) QuoteSell(context.Context, string, uint64) (decimal.Decimal, error) {
	return decimal.Zero, nil
}

func (s *stubLedger) GetAllowance(context.Context, string, string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.allowance, nil
}

func (s *stubLedger) GetBalance(context.Context, string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balance, nil
}

func (s *stubLedger) BuyShares(context.Context, string, string, uint64) error {
	s.mu.Lock()
	s.buyCalls++
	block := s.blockWrites
	started := s.buyStarted
	err := s.writeErr
	s.mu.Unlock()

	if started != nil {
		close(started)
	}
	if block != nil {
		<-block
	}
	return err
}

func (s *stubLedger) SellShares(context.Context, string, string, uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sellCalls++
	return s.writeErr
}

func (s *stubLedger) ClaimRewards(context.Context, string, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.claimCalls++
	return s.writeErr
}

func (s *stubLedger) Approve(_ context.Context, _, _ string, amount decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.allowance = amount
	return s.writeErr
}

func (s *stubLedger) RequestTestFunds(context.Context, string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.balance = s.balance.Add(d(1000))
	return s.writeErr
}

// newStub pins a concrete scenario: supply 1000, observed 1-share price 5,
// so the calibrated slope is 0.005 and the required buy cost for 10 shares
// is exactly 55.275.
func newStub() *stubLedger {
	return &stubLedger{
		snapshot:  model.LedgerSnapshot{TotalSupply: 1000, RoundExpiry: 0},
		unitQuote: d(5),
	}
}

func newFlow(l ledger.Ledger) *Flow {
	return New(l, "track-1", "acct-1", "share-ledger")
}

// --- Entry decision ---

func TestEvaluateBuy_AwaitingFundsWhenBroke(t *testing.T) {
	stub := newStub()
	stub.balance = decimal.Zero
	f := newFlow(stub)

	ev, err := f.EvaluateBuy(context.Background(), 10)
	require.NoError(t, err)

	assert.True(t, ev.RequiredCost.Equal(d(55.275)), "required cost = %s", ev.RequiredCost)
	assert.Equal(t, StateAwaitingFunds, ev.State)
	assert.Equal(t, StateAwaitingFunds, f.State())
}

func TestEvaluateBuy_AwaitingApprovalWhenFundedButUnapproved(t *testing.T) {
	stub := newStub()
	stub.balance = d(1000)
	stub.allowance = decimal.Zero
	f := newFlow(stub)

	ev, err := f.EvaluateBuy(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, StateAwaitingApproval, ev.State)
}

func TestEvaluateBuy_ReadyAfterApproval(t *testing.T) {
	stub := newStub()
	stub.balance = d(1000)
	f := newFlow(stub)

	require.NoError(t, f.Approve(context.Background(), d(1000)))

	ev, err := f.EvaluateBuy(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, ev.State, "funded and approved means ready to submit")
}

func TestEvaluateBuy_ZeroAmountRejected(t *testing.T) {
	f := newFlow(newStub())
	_, err := f.EvaluateBuy(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestEvaluateBuy_FundsThenApprovalSequence(t *testing.T) {
	// Balance 0 means AwaitingFunds; the faucet grants 1000 but allowance is
	// still 0, so AwaitingApproval; approval makes the flow ready.
	stub := newStub()
	f := newFlow(stub)
	ctx := context.Background()

	ev, err := f.EvaluateBuy(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingFunds, ev.State)

	require.NoError(t, f.RequestFunds(ctx))
	ev, err = f.EvaluateBuy(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingApproval, ev.State)

	require.NoError(t, f.Approve(ctx, d(1000)))
	ev, err = f.EvaluateBuy(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, ev.State)
}

// --- Round gating ---

func TestBuy_RejectedWhenRoundEnded(t *testing.T) {
	stub := newStub()
	stub.balance = d(1000)
	stub.allowance = d(1000)
	stub.snapshot.RoundExpiry = time.Now().Unix() - 1
	f := newFlow(stub)

	_, err := f.EvaluateBuy(context.Background(), 10)
	assert.ErrorIs(t, err, ErrRoundEnded)

	_, err = f.SubmitBuy(context.Background(), 10)
	assert.ErrorIs(t, err, ErrRoundEnded)
	assert.Zero(t, stub.buyCalls, "ended round must be rejected without a ledger write")
}

func TestBuy_PermittedBeforeRoundStartsAndWhileActive(t *testing.T) {
	for _, expiry := range []int64{0, time.Now().Unix() + 600} {
		stub := newStub()
		stub.balance = d(1000)
		stub.allowance = d(1000)
		stub.snapshot.RoundExpiry = expiry
		f := newFlow(stub)

		_, err := f.SubmitBuy(context.Background(), 10)
		require.NoError(t, err, "expiry=%d", expiry)
	}
}

func TestSell_NeverGatedOnRound(t *testing.T) {
	stub := newStub()
	stub.shares = 50
	stub.snapshot.RoundExpiry = time.Now().Unix() - 1
	f := newFlow(stub)

	_, err := f.SubmitSell(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, stub.sellCalls)
}

func TestClaim_NeverGatedOnRound(t *testing.T) {
	stub := newStub()
	stub.snapshot.RoundExpiry = time.Now().Unix() - 1
	f := newFlow(stub)

	require.NoError(t, f.Claim(context.Background()))
	assert.Equal(t, 1, stub.claimCalls)
}

// --- Submission ---

func TestSubmitBuy_SuccessYieldsReceipt(t *testing.T) {
	stub := newStub()
	stub.balance = d(1000)
	stub.allowance = d(1000)
	f := newFlow(stub)

	receipt, err := f.SubmitBuy(context.Background(), 10)
	require.NoError(t, err)

	assert.NotEmpty(t, receipt.ID)
	assert.Equal(t, model.SideBuy, receipt.Side)
	assert.Equal(t, uint64(10), receipt.Amount)
	assert.True(t, receipt.Quoted.Equal(d(55.275)), "quoted = %s", receipt.Quoted)
	assert.Equal(t, StateSuccess, f.State())
}

func TestSubmitBuy_FailureLandsOnFailedThenReEvaluates(t *testing.T) {
	stub := newStub()
	stub.balance = d(1000)
	stub.allowance = d(1000)
	stub.writeErr = ledger.ErrCallRejected
	f := newFlow(stub)

	_, err := f.SubmitBuy(context.Background(), 10)
	require.ErrorIs(t, err, ledger.ErrCallRejected)
	assert.Equal(t, StateFailed, f.State())

	// No automatic retry happened.
	assert.Equal(t, 1, stub.buyCalls)

	// The next evaluation returns the flow to a live state.
	stub.writeErr = nil
	ev, err := f.EvaluateBuy(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, StateIdle, ev.State)
	assert.Equal(t, StateIdle, f.State())
}

func TestSubmitSell_InsufficientSharesRejectedBeforeWrite(t *testing.T) {
	stub := newStub()
	stub.shares = 5
	f := newFlow(stub)

	_, err := f.SubmitSell(context.Background(), 10)
	assert.ErrorIs(t, err, ErrInsufficientShares)
	assert.Zero(t, stub.sellCalls)
}

func TestSubmit_ZeroAmountRejected(t *testing.T) {
	f := newFlow(newStub())
	_, err := f.SubmitBuy(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	_, err = f.SubmitSell(context.Background(), 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestSubmit_SingleWriteInFlight(t *testing.T) {
	stub := newStub()
	stub.balance = d(1000)
	stub.allowance = d(1000)
	stub.blockWrites = make(chan struct{})
	stub.buyStarted = make(chan struct{})
	f := newFlow(stub)

	done := make(chan error, 1)
	go func() {
		_, err := f.SubmitBuy(context.Background(), 10)
		done <- err
	}()

	<-stub.buyStarted
	assert.Equal(t, StateSubmitting, f.State())

	// A second write of any kind is refused while the first is pending.
	_, err := f.SubmitSell(context.Background(), 1)
	assert.ErrorIs(t, err, ErrBusy)
	assert.ErrorIs(t, f.Claim(context.Background()), ErrBusy)
	assert.ErrorIs(t, f.Approve(context.Background(), d(1)), ErrBusy)

	close(stub.blockWrites)
	require.NoError(t, <-done)
	assert.Equal(t, StateSuccess, f.State())
}

func TestReset_ReturnsToIdleButNotDuringSubmit(t *testing.T) {
	stub := newStub()
	stub.balance = d(1000)
	stub.allowance = d(1000)
	f := newFlow(stub)

	_, err := f.SubmitBuy(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, StateSuccess, f.State())

	f.Reset()
	assert.Equal(t, StateIdle, f.State())
}

// --- Intent quoting ---

func TestIntent_BuyAndSellAsymmetry(t *testing.T) {
	stub := newStub()
	f := newFlow(stub)
	ctx := context.Background()

	buy, err := f.Intent(ctx, model.SideBuy, 10)
	require.NoError(t, err)
	assert.True(t, buy.Expected.Equal(d(55.275)), "buy expected = %s", buy.Expected)

	// Sell payout carries no fee multiplier:
	// integral(0.005, 990, 10) = 0.0025 * (1000² - 990²) = 49.75.
	sell, err := f.Intent(ctx, model.SideSell, 10)
	require.NoError(t, err)
	assert.True(t, sell.Expected.Equal(d(49.75)), "sell expected = %s", sell.Expected)
}

// --- Progress indicator ---

func TestProgress_Lifecycle(t *testing.T) {
	stub := newStub()
	stub.balance = d(1000)
	stub.allowance = d(1000)
	stub.blockWrites = make(chan struct{})
	stub.buyStarted = make(chan struct{})

	var clockMu sync.Mutex
	now := time.Unix(1_700_000_000, 0)
	clock := func() time.Time {
		clockMu.Lock()
		defer clockMu.Unlock()
		return now
	}

	f := newFlow(stub).WithClock(clock)
	assert.Zero(t, f.Progress(), "idle progress is 0")

	done := make(chan error, 1)
	go func() {
		_, err := f.SubmitBuy(context.Background(), 10)
		done <- err
	}()
	<-stub.buyStarted

	early := f.Progress()
	clockMu.Lock()
	now = now.Add(60 * time.Second)
	clockMu.Unlock()
	late := f.Progress()

	assert.Greater(t, late, early, "progress advances with time")
	assert.Less(t, late, 90.0+1e-9, "progress stalls below the ceiling until the call resolves")
	assert.Greater(t, late, 89.0, "after many time constants it sits just under the ceiling")

	close(stub.blockWrites)
	require.NoError(t, <-done)
	assert.Equal(t, 100.0, f.Progress(), "success snaps to 100")
}

// --- End to end against the in-memory double ---

func TestFlow_EndToEndAgainstMemoryLedger(t *testing.T) {
	mem := ledger.NewMemoryLedger()
	mem.SeedAsset("track-9", d(0.005), d(30))
	mem.SetSupply("track-9", 1000)

	f := New(mem, "track-9", "alice", "share-ledger")
	ctx := context.Background()

	// Broke and unapproved.
	ev, err := f.EvaluateBuy(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, StateAwaitingFunds, ev.State)

	// Faucet, then approve, then buy.
	require.NoError(t, f.RequestFunds(ctx))
	require.NoError(t, f.Approve(ctx, d(1000)))

	ev, err = f.EvaluateBuy(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, StateIdle, ev.State)

	_, err = f.SubmitBuy(ctx, 10)
	require.NoError(t, err)

	shares, err := mem.GetMyShares(ctx, "track-9", "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(10), shares)

	// Buying opened the funding round.
	snap, err := mem.GetSnapshot(ctx, "track-9")
	require.NoError(t, err)
	assert.NotZero(t, snap.RoundExpiry)
	assert.True(t, snap.JackpotBalance.IsPositive(), "buy fee feeds the jackpot")

	// Sell part of the position back.
	f.Reset()
	_, err = f.SubmitSell(ctx, 4)
	require.NoError(t, err)

	shares, err = mem.GetMyShares(ctx, "track-9", "alice")
	require.NoError(t, err)
	assert.Equal(t, uint64(6), shares)

	// Claim pending dividends.
	mem.SetPendingReward("track-9", "alice", d(12.5))
	balBefore, _ := mem.GetBalance(ctx, "alice")
	f.Reset()
	require.NoError(t, f.Claim(ctx))
	balAfter, _ := mem.GetBalance(ctx, "alice")
	assert.True(t, balAfter.Sub(balBefore).Equal(d(12.5)))
}

func TestFlow_MemoryLedgerRejectsBuyAfterRoundEnds(t *testing.T) {
	mem := ledger.NewMemoryLedger()
	mem.SeedAsset("track-9", d(0.005), d(30))
	mem.SetSupply("track-9", 1000)
	mem.SetBalance("alice", d(10000))
	mem.SetExpiry("track-9", time.Now().Unix()-10)

	f := New(mem, "track-9", "alice", "share-ledger")
	require.NoError(t, f.Approve(context.Background(), d(10000)))

	_, err := f.SubmitBuy(context.Background(), 10)
	assert.ErrorIs(t, err, ErrRoundEnded)

	shares, _ := mem.GetMyShares(context.Background(), "track-9", "alice")
	assert.Zero(t, shares, "gating is client-side, the double was never asked to write")
}
