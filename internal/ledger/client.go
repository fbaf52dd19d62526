package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/tunevest/share-engine/internal/model"
)

const (
	// Reads are cheap gateway lookups; writes settle transactions and get
	// no client-side rate limiting or retries at all.
	readRatePerSec = 50
	readBurst      = 20

	defaultTimeout = 15 * time.Second
)

// Client talks to the share-ledger gateway over HTTP/JSON. Reads are rate
// limited; writes are submitted exactly once — a failed write surfaces
// ErrCallRejected and is never retried automatically.
type Client struct {
	http        *http.Client
	baseURL     string
	readLimiter *rate.Limiter
}

// NewClient creates a ledger client for the given gateway base URL.
func NewClient(baseURL string) *Client {
	return &Client{
		http:        &http.Client{Timeout: defaultTimeout},
		baseURL:     baseURL,
		readLimiter: rate.NewLimiter(readRatePerSec, readBurst),
	}
}

// --- Reads ---

func (c *Client) GetSnapshot(ctx context.Context, assetID string) (model.LedgerSnapshot, error) {
	var snap model.LedgerSnapshot
	err := c.get(ctx, fmt.Sprintf("/v1/assets/%s/snapshot", url.PathEscape(assetID)), &snap)
	return snap, err
}

func (c *Client) GetMyShares(ctx context.Context, assetID, account string) (uint64, error) {
	var out struct {
		Shares uint64 `json:"shares"`
	}
	path := fmt.Sprintf("/v1/assets/%s/shares/%s", url.PathEscape(assetID), url.PathEscape(account))
	if err := c.get(ctx, path, &out); err != nil {
		return 0, err
	}
	return out.Shares, nil
}

func (c *Client) GetPendingReward(ctx context.Context, assetID, account string) (decimal.Decimal, error) {
	var out struct {
		Pending decimal.Decimal `json:"pending"`
	}
	path := fmt.Sprintf("/v1/assets/%s/rewards/%s", url.PathEscape(assetID), url.PathEscape(account))
	if err := c.get(ctx, path, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Pending, nil
}

func (c *Client) GetInvestorSharePercent(ctx context.Context, assetID string) (decimal.Decimal, error) {
	var out struct {
		Percent decimal.Decimal `json:"percent"`
	}
	path := fmt.Sprintf("/v1/assets/%s/investor-share", url.PathEscape(assetID))
	if err := c.get(ctx, path, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Percent, nil
}

func (c *Client) QuoteBuy(ctx context.Context, assetID string, amount uint64) (decimal.Decimal, error) {
	return c.quote(ctx, assetID, "buy", amount)
}

func (c *Client) QuoteSell(ctx context.Context, assetID string, amount uint64) (decimal.Decimal, error) {
	return c.quote(ctx, assetID, "sell", amount)
}

func (c *Client) quote(ctx context.Context, assetID, side string, amount uint64) (decimal.Decimal, error) {
	var out struct {
		Quote decimal.Decimal `json:"quote"`
	}
	path := fmt.Sprintf("/v1/assets/%s/quote/%s?amount=%d", url.PathEscape(assetID), side, amount)
	if err := c.get(ctx, path, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Quote, nil
}

func (c *Client) GetAllowance(ctx context.Context, account, spender string) (decimal.Decimal, error) {
	var out struct {
		Allowance decimal.Decimal `json:"allowance"`
	}
	path := fmt.Sprintf("/v1/accounts/%s/allowance/%s", url.PathEscape(account), url.PathEscape(spender))
	if err := c.get(ctx, path, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Allowance, nil
}

func (c *Client) GetBalance(ctx context.Context, account string) (decimal.Decimal, error) {
	var out struct {
		Balance decimal.Decimal `json:"balance"`
	}
	path := fmt.Sprintf("/v1/accounts/%s/balance", url.PathEscape(account))
	if err := c.get(ctx, path, &out); err != nil {
		return decimal.Zero, err
	}
	return out.Balance, nil
}

// --- Writes ---

func (c *Client) BuyShares(ctx context.Context, assetID, account string, amount uint64) error {
	return c.post(ctx, "/v1/trades/buy", map[string]any{
		"asset_id": assetID, "account": account, "amount": amount,
	})
}

func (c *Client) SellShares(ctx context.Context, assetID, account string, amount uint64) error {
	return c.post(ctx, "/v1/trades/sell", map[string]any{
		"asset_id": assetID, "account": account, "amount": amount,
	})
}

func (c *Client) ClaimRewards(ctx context.Context, assetID, account string) error {
	return c.post(ctx, "/v1/rewards/claim", map[string]any{
		"asset_id": assetID, "account": account,
	})
}

func (c *Client) Approve(ctx context.Context, account, spender string, amount decimal.Decimal) error {
	return c.post(ctx, "/v1/approvals", map[string]any{
		"account": account, "spender": spender, "amount": amount,
	})
}

func (c *Client) RequestTestFunds(ctx context.Context, account string) error {
	return c.post(ctx, "/v1/faucet", map[string]any{"account": account})
}

// --- Transport helpers ---

func (c *Client) get(ctx context.Context, path string, out any) error {
	if err := c.readLimiter.Wait(ctx); err != nil {
		return fmt.Errorf("ledger read limiter: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("ledger read %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return fmt.Errorf("%w: %s", ErrAssetNotFound, path)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("ledger read %s: status %d: %s", path, resp.StatusCode, body)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func (c *Client) post(ctx context.Context, path string, body any) error {
	b, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal body: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCallRejected, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: status %d: %s", ErrCallRejected, resp.StatusCode, msg)
	}
	return nil
}
