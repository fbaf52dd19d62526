// Package simulator projects profit across hypothetical future demand:
// "if I buy A shares now and the market buys O more before I exit, what is
// my profit, and what jackpot pool should I expect?"
//
// All projections are pure functions of the calibrated curve and are cheap
// to recompute per hover/interaction; nothing here caches or touches the
// external ledger.
package simulator

import (
	"github.com/shopspring/decimal"

	"github.com/tunevest/share-engine/internal/curve"
)

// JackpotRatio is the assumed share of the total reserve feeding the jackpot
// pool. The ledger's real split may differ; this is a documented display
// assumption, not a read value.
var JackpotRatio = decimal.NewFromFloat(0.5)

// DefaultMyAmounts are the purchase sizes rendered as separate lines on the
// profit chart.
var DefaultMyAmounts = []uint64{10, 50, 100}

// Default demand axis: others' purchases from 0 to 1000 in steps of 50.
const (
	DefaultOthersMax  uint64 = 1000
	DefaultOthersStep uint64 = 50
)

// Projection is one profit scenario. Identity is the (MyAmount, OthersAmount)
// pair; everything else is derived.
type Projection struct {
	MyAmount       uint64          `json:"my_amount"`
	OthersAmount   uint64          `json:"others_amount"`
	Cost           decimal.Decimal `json:"cost"`
	Value          decimal.Decimal `json:"value"`
	Profit         decimal.Decimal `json:"profit"`
	ImpliedJackpot decimal.Decimal `json:"implied_jackpot"`
}

// Simulator composes a calibrated curve with the jackpot assumption.
type Simulator struct {
	curve        curve.Curve
	jackpotRatio decimal.Decimal
}

// New creates a simulator over the given curve with the default jackpot
// ratio.
func New(c curve.Curve) Simulator {
	return Simulator{curve: c, jackpotRatio: JackpotRatio}
}

// WithJackpotRatio overrides the jackpot assumption. Non-positive ratios are
// ignored.
func (s Simulator) WithJackpotRatio(r decimal.Decimal) Simulator {
	if r.LessThanOrEqual(decimal.Zero) {
		return s
	}
	s.jackpotRatio = r
	return s
}

// Project computes one scenario.
//
// Cost is the un-fee'd integral of acquiring myAmount now — the fee is
// excluded so scenarios stay comparable on a single basis. Value prices the
// same myAmount shares as the last units minted into the enlarged supply,
// i.e. at the top of the curve after othersAmount more shares exist.
// ImpliedJackpot is the reserve from genesis to the hypothetical future total
// supply, scaled by the jackpot ratio.
//
// By integral additivity, othersAmount == 0 yields exactly zero profit: no
// market movement, no gain.
func (s Simulator) Project(currentSupply, myAmount, othersAmount uint64) Projection {
	cost := s.curve.IntegralCost(currentSupply, myAmount)
	value := s.curve.IntegralCost(currentSupply+othersAmount, myAmount)
	jackpot := s.curve.IntegralCost(0, currentSupply+myAmount+othersAmount).Mul(s.jackpotRatio)

	return Projection{
		MyAmount:       myAmount,
		OthersAmount:   othersAmount,
		Cost:           cost,
		Value:          value,
		Profit:         value.Sub(cost),
		ImpliedJackpot: jackpot,
	}
}

// ProjectMatrix computes the scenario grid used for the multi-line profit
// chart: one row per purchase size, one column per future-demand step
// (0 through othersMax inclusive). A zero step defaults to DefaultOthersStep.
func (s Simulator) ProjectMatrix(currentSupply uint64, myAmounts []uint64, othersMax, othersStep uint64) [][]Projection {
	if len(myAmounts) == 0 {
		myAmounts = DefaultMyAmounts
	}
	if othersStep == 0 {
		othersStep = DefaultOthersStep
	}

	grid := make([][]Projection, len(myAmounts))
	for i, my := range myAmounts {
		var row []Projection
		for others := uint64(0); others <= othersMax; others += othersStep {
			row = append(row, s.Project(currentSupply, my, others))
		}
		grid[i] = row
	}
	return grid
}

// DefaultMatrix is ProjectMatrix with the standard chart axes.
func (s Simulator) DefaultMatrix(currentSupply uint64) [][]Projection {
	return s.ProjectMatrix(currentSupply, DefaultMyAmounts, DefaultOthersMax, DefaultOthersStep)
}
