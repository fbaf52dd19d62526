// Package market provides the HTTP handlers and business logic for the
// investing surface: track listings, live market state, reconstructed price
// history, profit projections, and trade submission against the external
// share ledger.
//
// All monetary values use shopspring/decimal — never float64 for money.
package market

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/tunevest/share-engine/internal/catalog"
	"github.com/tunevest/share-engine/internal/curve"
	"github.com/tunevest/share-engine/internal/history"
	"github.com/tunevest/share-engine/internal/ledger"
	"github.com/tunevest/share-engine/internal/metrics"
	"github.com/tunevest/share-engine/internal/model"
	"github.com/tunevest/share-engine/internal/round"
	"github.com/tunevest/share-engine/internal/simulator"
	"github.com/tunevest/share-engine/internal/tradeflow"
)

// Service handles market operations. One trade flow exists per (track,
// account) pair; the flow itself serializes writes, so no service-level
// trade mutex is needed.
type Service struct {
	catalog catalog.Store
	ledger  ledger.Ledger
	hub     *WSHub // optional WebSocket hub for real-time broadcasts
	spender string
	fee     decimal.Decimal
	jackpot decimal.Decimal

	mu    sync.Mutex
	flows map[string]*tradeflow.Flow
}

// NewService creates a new market service. Pass nil for hub if WebSocket
// broadcasting is not needed.
func NewService(cat catalog.Store, led ledger.Ledger, hub *WSHub, spender string) *Service {
	return &Service{
		catalog: cat,
		ledger:  led,
		hub:     hub,
		spender: spender,
		fee:     curve.DefaultFeeMultiplier,
		jackpot: simulator.JackpotRatio,
		flows:   make(map[string]*tradeflow.Flow),
	}
}

// WithMarketParams overrides the buy-side fee multiplier and the jackpot
// display ratio. Non-positive values keep the defaults.
func (s *Service) WithMarketParams(fee, jackpotRatio decimal.Decimal) *Service {
	if fee.GreaterThan(decimal.Zero) {
		s.fee = fee
	}
	if jackpotRatio.GreaterThan(decimal.Zero) {
		s.jackpot = jackpotRatio
	}
	return s
}

// flowFor returns the trade flow for a (track, account) pair, creating it on
// first use. Flows are long-lived: the single-write-in-flight guard only
// works if concurrent requests share the same instance.
func (s *Service) flowFor(tokenID, account string) *tradeflow.Flow {
	key := tokenID + "|" + account
	s.mu.Lock()
	defer s.mu.Unlock()
	f, ok := s.flows[key]
	if !ok {
		f = tradeflow.New(s.ledger, tokenID, account, s.spender).WithFeeMultiplier(s.fee)
		s.flows[key] = f
	}
	return f
}

// calibrated reads the track's latest ledger state and derives a fresh curve.
// Snapshots are never cached; every request recalibrates.
func (s *Service) calibrated(ctx context.Context, tokenID string) (model.LedgerSnapshot, curve.Curve, error) {
	snap, err := s.ledger.GetSnapshot(ctx, tokenID)
	if err != nil {
		return model.LedgerSnapshot{}, curve.Curve{}, err
	}
	unit, err := s.ledger.QuoteBuy(ctx, tokenID, 1)
	if err != nil {
		return model.LedgerSnapshot{}, curve.Curve{}, err
	}
	return snap, curve.Calibrate(snap.TotalSupply, unit).WithFeeMultiplier(s.fee), nil
}

// --- Request/Response types ---

// TradeRequest is the JSON body for POST /api/v1/trade.
type TradeRequest struct {
	TrackID string `json:"track_id"`
	Account string `json:"account"`
	Side    string `json:"side"` // "BUY" or "SELL"
	Amount  uint64 `json:"amount"`
}

// ClaimRequest is the JSON body for POST /api/v1/claim.
type ClaimRequest struct {
	TrackID string `json:"track_id"`
	Account string `json:"account"`
}

// ApproveRequest is the JSON body for POST /api/v1/approve.
type ApproveRequest struct {
	TrackID string          `json:"track_id"`
	Account string          `json:"account"`
	Amount  decimal.Decimal `json:"amount"`
}

// FaucetRequest is the JSON body for POST /api/v1/faucet.
type FaucetRequest struct {
	Account string `json:"account"`
}

// MarketView is the per-track market state returned from GET
// /api/v1/tracks/{trackID}/market. Account-scoped fields are present only
// when ?account= is given.
type MarketView struct {
	Track         model.Track      `json:"track"`
	TotalSupply   uint64           `json:"total_supply"`
	UnitPrice     decimal.Decimal  `json:"unit_price"`
	Jackpot       decimal.Decimal  `json:"jackpot"`
	InvestorShare decimal.Decimal  `json:"investor_share"`
	Round         string           `json:"round"`
	RoundLabel    string           `json:"round_label"`
	CanBuy        bool             `json:"can_buy"`
	MyShares      *uint64          `json:"my_shares,omitempty"`
	PendingReward *decimal.Decimal `json:"pending_reward,omitempty"`
}

// --- HTTP Handlers ---

// ListTracks handles GET /api/v1/tracks — all minted, investable tracks.
func (s *Service) ListTracks(w http.ResponseWriter, r *http.Request) {
	tracks, err := s.catalog.ListMinted(r.Context())
	if err != nil {
		writeError(w, "failed to list tracks", http.StatusInternalServerError)
		return
	}
	if tracks == nil {
		tracks = []model.Track{}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tracks)
}

// GetMarket handles GET /api/v1/tracks/{trackID}/market
// Returns the live ledger state, the observed unit price, and the round
// phase; account-scoped holdings when ?account= is present.
func (s *Service) GetMarket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, err := s.catalog.GetTrack(ctx, chi.URLParam(r, "trackID"))
	if err != nil {
		writeError(w, "track not found", http.StatusNotFound)
		return
	}

	snap, c, err := s.calibrated(ctx, track.TokenID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	share, err := s.ledger.GetInvestorSharePercent(ctx, track.TokenID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	rs := round.Classify(snap.RoundExpiry, time.Now())
	view := MarketView{
		Track:         *track,
		TotalSupply:   snap.TotalSupply,
		UnitPrice:     c.PriceAt(maxUint64(snap.TotalSupply, 1)),
		Jackpot:       snap.JackpotBalance,
		InvestorShare: share,
		Round:         rs.Phase.String(),
		RoundLabel:    rs.Label(),
		CanBuy:        rs.CanBuy(),
	}

	if account := r.URL.Query().Get("account"); account != "" {
		shares, err := s.ledger.GetMyShares(ctx, track.TokenID, account)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		pending, err := s.ledger.GetPendingReward(ctx, track.TokenID, account)
		if err != nil {
			writeLedgerError(w, err)
			return
		}
		view.MyShares = &shares
		view.PendingReward = &pending
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(view)
}

// GetHistory handles GET /api/v1/tracks/{trackID}/history?span=7
// Returns the reconstructed, display-only price series seeded by the token
// ID and anchored to the live price.
func (s *Service) GetHistory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, err := s.catalog.GetTrack(ctx, chi.URLParam(r, "trackID"))
	if err != nil {
		writeError(w, "track not found", http.StatusNotFound)
		return
	}

	span := 7
	if v := r.URL.Query().Get("span"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, "span must be a positive number of days", http.StatusBadRequest)
			return
		}
		span = n
	}

	snap, c, err := s.calibrated(ctx, track.TokenID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	current := c.PriceAt(maxUint64(snap.TotalSupply, 1))
	points := history.Generate(track.TokenID, current, span)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(points)
}

// GetProjections handles GET /api/v1/tracks/{trackID}/projections
// Optional ?others_max= and ?others_step= reshape the demand axis.
func (s *Service) GetProjections(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, err := s.catalog.GetTrack(ctx, chi.URLParam(r, "trackID"))
	if err != nil {
		writeError(w, "track not found", http.StatusNotFound)
		return
	}

	snap, c, err := s.calibrated(ctx, track.TokenID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	othersMax := simulator.DefaultOthersMax
	othersStep := simulator.DefaultOthersStep
	if v := r.URL.Query().Get("others_max"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			othersMax = n
		}
	}
	if v := r.URL.Query().Get("others_step"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil && n > 0 {
			othersStep = n
		}
	}

	sim := simulator.New(c).WithJackpotRatio(s.jackpot)
	grid := sim.ProjectMatrix(snap.TotalSupply, simulator.DefaultMyAmounts, othersMax, othersStep)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(grid)
}

// GetQuote handles GET /api/v1/tracks/{trackID}/quote?side=BUY&amount=10
// Prices a prospective trade without touching flow state.
func (s *Service) GetQuote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, err := s.catalog.GetTrack(ctx, chi.URLParam(r, "trackID"))
	if err != nil {
		writeError(w, "track not found", http.StatusNotFound)
		return
	}

	side, ok := parseSide(r.URL.Query().Get("side"))
	if !ok {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}
	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil || amount == 0 {
		writeError(w, "amount must be a positive integer", http.StatusBadRequest)
		return
	}

	snap, c, err := s.calibrated(ctx, track.TokenID)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	intent := model.TradeIntent{Side: side, Amount: amount}
	if side == model.SideBuy {
		intent.Expected = c.BuyCost(snap.TotalSupply, amount)
	} else {
		intent.Expected = c.SellPayout(snap.TotalSupply, amount)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(intent)
}

// Evaluate handles GET /api/v1/tracks/{trackID}/evaluate?account=a&amount=10
// Runs the buy entry decision: required cost, balance, allowance, and the
// resulting flow state.
func (s *Service) Evaluate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	track, err := s.catalog.GetTrack(ctx, chi.URLParam(r, "trackID"))
	if err != nil {
		writeError(w, "track not found", http.StatusNotFound)
		return
	}

	account := r.URL.Query().Get("account")
	if account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}
	amount, err := strconv.ParseUint(r.URL.Query().Get("amount"), 10, 64)
	if err != nil || amount == 0 {
		writeError(w, "amount must be a positive integer", http.StatusBadRequest)
		return
	}

	flow := s.flowFor(track.TokenID, account)
	ev, err := flow.EvaluateBuy(ctx, amount)
	if errors.Is(err, tradeflow.ErrRoundEnded) {
		metrics.RoundRejections.Inc()
		// Still a useful response: the caller renders the ended state.
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"state": "round_ended",
			"round": ev.RoundLabel,
		})
		return
	}
	if err != nil {
		writeFlowError(w, err)
		return
	}
	metrics.FlowStates.WithLabelValues(ev.State.String()).Inc()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"state":         ev.State.String(),
		"required_cost": ev.RequiredCost,
		"balance":       ev.Balance,
		"allowance":     ev.Allowance,
		"round":         ev.RoundLabel,
		"progress":      flow.Progress(),
	})
}

// ExecuteTrade handles POST /api/v1/trade
// Submits a buy or sell through the account's trade flow, exactly once.
func (s *Service) ExecuteTrade(w http.ResponseWriter, r *http.Request) {
	var req TradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}
	side, ok := parseSide(req.Side)
	if !ok {
		writeError(w, "side must be BUY or SELL", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	track, err := s.catalog.GetTrack(ctx, req.TrackID)
	if err != nil {
		writeError(w, "track not found: "+req.TrackID, http.StatusNotFound)
		return
	}

	flow := s.flowFor(track.TokenID, req.Account)

	start := time.Now()
	var receipt model.TradeReceipt
	if side == model.SideBuy {
		receipt, err = flow.SubmitBuy(ctx, req.Amount)
	} else {
		receipt, err = flow.SubmitSell(ctx, req.Amount)
	}
	if err != nil {
		if errors.Is(err, tradeflow.ErrRoundEnded) {
			metrics.RoundRejections.Inc()
		}
		metrics.FlowStates.WithLabelValues(flow.State().String()).Inc()
		writeFlowError(w, err)
		return
	}
	receipt.TrackID = track.ID // flows key by token; report the catalog ID

	sideLabel := string(side)
	metrics.TradesTotal.WithLabelValues(sideLabel).Inc()
	metrics.TradeLatency.WithLabelValues(sideLabel).Observe(time.Since(start).Seconds())
	metrics.TradeVolume.WithLabelValues(track.ID, sideLabel).Add(float64(req.Amount))
	metrics.FlowStates.WithLabelValues(flow.State().String()).Inc()

	slog.Info("trade executed",
		"trade_id", receipt.ID,
		"track", track.ID,
		"account", req.Account,
		"side", sideLabel,
		"amount", req.Amount,
		"quoted", receipt.Quoted.String(),
	)

	s.broadcastTrade(ctx, track, side, req.Amount)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(receipt)
}

// Claim handles POST /api/v1/claim — collects pending dividends.
func (s *Service) Claim(w http.ResponseWriter, r *http.Request) {
	var req ClaimRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	track, err := s.catalog.GetTrack(ctx, req.TrackID)
	if err != nil {
		writeError(w, "track not found: "+req.TrackID, http.StatusNotFound)
		return
	}

	if err := s.flowFor(track.TokenID, req.Account).Claim(ctx); err != nil {
		writeFlowError(w, err)
		return
	}
	metrics.ClaimsTotal.Inc()

	slog.Info("rewards claimed", "track", track.ID, "account", req.Account)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "claimed"})
}

// Approve handles POST /api/v1/approve — authorizes the ledger to transfer
// funds on the account's behalf.
func (s *Service) Approve(w http.ResponseWriter, r *http.Request) {
	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}
	if req.Amount.LessThanOrEqual(decimal.Zero) {
		writeError(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	track, err := s.catalog.GetTrack(ctx, req.TrackID)
	if err != nil {
		writeError(w, "track not found: "+req.TrackID, http.StatusNotFound)
		return
	}

	if err := s.flowFor(track.TokenID, req.Account).Approve(ctx, req.Amount); err != nil {
		writeFlowError(w, err)
		return
	}

	slog.Info("allowance approved", "account", req.Account, "amount", req.Amount.String())

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "approved"})
}

// Faucet handles POST /api/v1/faucet — forwards a test-fund request to the
// ledger's faucet. Dev and test environments only; the ledger rejects it in
// production.
func (s *Service) Faucet(w http.ResponseWriter, r *http.Request) {
	var req FaucetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if req.Account == "" {
		writeError(w, "account is required", http.StatusBadRequest)
		return
	}

	if err := s.ledger.RequestTestFunds(r.Context(), req.Account); err != nil {
		writeFlowError(w, err)
		return
	}
	metrics.FaucetRequests.Inc()

	balance, err := s.ledger.GetBalance(r.Context(), req.Account)
	if err != nil {
		writeLedgerError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"status": "funded", "balance": balance})
}

// --- Round countdown broadcasting ---

// RunRoundTicker broadcasts each minted track's round phase at the given
// cadence until ctx is cancelled. Clients use it to drive countdown labels
// without polling.
func (s *Service) RunRoundTicker(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			if s.hub == nil {
				continue
			}
			tracks, err := s.catalog.ListMinted(ctx)
			if err != nil {
				slog.Error("round ticker: list tracks", "err", err)
				continue
			}
			for _, t := range tracks {
				snap, err := s.ledger.GetSnapshot(ctx, t.TokenID)
				if err != nil {
					continue
				}
				rs := round.Classify(snap.RoundExpiry, now)
				s.hub.Broadcast(WSMessage{
					Type:      "round_tick",
					TrackID:   t.ID,
					TokenID:   t.TokenID,
					Round:     rs.Phase.String(),
					Remaining: rs.Label(),
				})
			}
		}
	}
}

// broadcastTrade pushes the post-trade market state to WebSocket clients.
// Best effort: a failed read just skips the broadcast.
func (s *Service) broadcastTrade(ctx context.Context, track *model.Track, side model.TradeSide, amount uint64) {
	if s.hub == nil {
		return
	}
	snap, c, err := s.calibrated(ctx, track.TokenID)
	if err != nil {
		return
	}
	s.hub.Broadcast(WSMessage{
		Type:      "trade_executed",
		TrackID:   track.ID,
		TokenID:   track.TokenID,
		Side:      string(side),
		Amount:    amount,
		UnitPrice: c.PriceAt(maxUint64(snap.TotalSupply, 1)).String(),
		Supply:    snap.TotalSupply,
		Jackpot:   snap.JackpotBalance.String(),
	})
}

// --- Helpers ---

func parseSide(s string) (model.TradeSide, bool) {
	switch model.TradeSide(s) {
	case model.SideBuy:
		return model.SideBuy, true
	case model.SideSell:
		return model.SideSell, true
	default:
		return "", false
	}
}

func maxUint64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

// writeFlowError maps flow and ledger errors onto HTTP status codes.
func writeFlowError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tradeflow.ErrInvalidAmount):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, tradeflow.ErrRoundEnded),
		errors.Is(err, tradeflow.ErrInsufficientShares),
		errors.Is(err, tradeflow.ErrBusy):
		writeError(w, err.Error(), http.StatusConflict)
	case errors.Is(err, ledger.ErrAssetNotFound):
		writeError(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrCallRejected):
		writeError(w, err.Error(), http.StatusBadGateway)
	default:
		writeError(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeLedgerError maps ledger read errors onto HTTP status codes.
func writeLedgerError(w http.ResponseWriter, err error) {
	if errors.Is(err, ledger.ErrAssetNotFound) {
		writeError(w, err.Error(), http.StatusNotFound)
		return
	}
	writeError(w, "ledger read failed: "+err.Error(), http.StatusBadGateway)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
