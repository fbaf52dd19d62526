// Package curve models share price as linear in supply and provides the
// closed-form integral ("reserve") cost used for all buy/sell quoting.
//
//	price(s) = slope * s
//	reserve(s, n) = slope/2 * ((s+n)² - s²)
//
// The true curve constant lives in the external ledger; this package only
// approximates it from the latest observed (supply, unit price) pair. That
// approximation is inherent — the client can never read the ledger's exact
// internal constant, only the two numbers it exposes.
//
// All monetary values use shopspring/decimal — never float64 for money.
package curve

import (
	"github.com/shopspring/decimal"
)

var (
	// CalibrationEpsilon is the slope used when the observed unit price is
	// zero or unavailable. Keeps every derived cost strictly positive and
	// monotonic instead of collapsing to zero.
	CalibrationEpsilon = decimal.NewFromFloat(0.000001)

	// DefaultFeeMultiplier is the flat buy-side surcharge. The ledger's
	// internal allocation of the surcharge (jackpot/dividend/royalty) is
	// opaque at this layer; only the aggregate multiplier is visible.
	DefaultFeeMultiplier = decimal.NewFromFloat(1.10)

	two = decimal.NewFromInt(2)
)

// Curve is a calibrated linear bonding curve. It is stateless beyond its
// parameters — supplies and amounts are passed as arguments, not stored,
// and a fresh Curve is calibrated from every new snapshot.
type Curve struct {
	slope decimal.Decimal
	fee   decimal.Decimal
}

// Calibrate derives the slope from an observed supply and the observed price
// of one share: slope = unitPrice / max(supply, 1). Total by construction —
// a zero or negative price falls back to CalibrationEpsilon, so the returned
// slope is always strictly positive.
func Calibrate(observedSupply uint64, observedUnitPrice decimal.Decimal) Curve {
	if observedUnitPrice.LessThanOrEqual(decimal.Zero) {
		return Curve{slope: CalibrationEpsilon, fee: DefaultFeeMultiplier}
	}
	denom := observedSupply
	if denom == 0 {
		denom = 1
	}
	return Curve{
		slope: observedUnitPrice.Div(decimal.NewFromUint64(denom)),
		fee:   DefaultFeeMultiplier,
	}
}

// WithFeeMultiplier returns a copy of the curve using the given buy-side fee
// multiplier. A non-positive multiplier keeps the default.
func (c Curve) WithFeeMultiplier(m decimal.Decimal) Curve {
	if m.LessThanOrEqual(decimal.Zero) {
		return c
	}
	c.fee = m
	return c
}

// Slope returns the calibrated curve parameter.
func (c Curve) Slope() decimal.Decimal {
	return c.slope
}

// FeeMultiplier returns the buy-side fee multiplier in effect.
func (c Curve) FeeMultiplier() decimal.Decimal {
	return c.fee
}

// PriceAt returns the instantaneous unit price at the given supply.
func (c Curve) PriceAt(supply uint64) decimal.Decimal {
	return c.slope.Mul(decimal.NewFromUint64(supply))
}

// IntegralCost computes the reserve cost of minting amount units starting
// from startSupply:
//
//	slope/2 * ((startSupply+amount)² - startSupply²)
//
// Exact decimal arithmetic, so the additivity invariant
// IntegralCost(s, a+b) == IntegralCost(s, a) + IntegralCost(s+a, b)
// holds exactly, not just within tolerance. amount == 0 returns exactly zero.
func (c Curve) IntegralCost(startSupply, amount uint64) decimal.Decimal {
	if amount == 0 {
		return decimal.Zero
	}
	start := decimal.NewFromUint64(startSupply)
	end := decimal.NewFromUint64(startSupply + amount)
	return c.slope.Div(two).Mul(end.Mul(end).Sub(start.Mul(start)))
}

// BuyCost is the fee-inclusive cost of buying amount shares at the current
// supply: IntegralCost * feeMultiplier.
func (c Curve) BuyCost(supply, amount uint64) decimal.Decimal {
	return c.IntegralCost(supply, amount).Mul(c.fee)
}

// SellPayout is the reserve released by burning amount shares from the
// current supply. No fee multiplier applies on the sell side; the asymmetry
// mirrors the ledger's observable quoting and is intentional.
// Amounts above the current supply are clamped to it.
func (c Curve) SellPayout(supply, amount uint64) decimal.Decimal {
	if amount > supply {
		amount = supply
	}
	return c.IntegralCost(supply-amount, amount)
}
