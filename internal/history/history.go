// Package history reconstructs a plausible past-price series for charting
// when no real time series is persisted server-side.
//
// The output is display-only and strictly one-way: nothing in the trade flow
// or the profit simulator may read it, so no decision is ever made on
// fabricated data. Float64 is acceptable here for the transcendental noise
// math; the result is converted to decimal at the boundary.
package history

import (
	"math"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/tunevest/share-engine/internal/model"
)

const (
	// DefaultSeed is used when the seed key does not parse as an integer,
	// keeping Generate total and deterministic for any input.
	DefaultSeed = 999

	// hourlyPoints is the series length for a 1-day span.
	hourlyPoints = 24

	// pointsPerDay is the series density for multi-day spans.
	pointsPerDay = 10
)

// floorValue keeps every synthetic point strictly positive so charts and
// percentage-change math stay well-defined.
var floorValue = decimal.NewFromFloat(0.000001)

// Seed parses an integer seed from a seed key, falling back to DefaultSeed.
// Track token IDs are the usual seed keys.
func Seed(seedKey string) int64 {
	n, err := strconv.ParseInt(seedKey, 10, 64)
	if err != nil {
		return DefaultSeed
	}
	return n
}

// PointCount returns the series length for a chart span in days:
// 24 points for a single day, 10 per day otherwise.
func PointCount(spanDays int) int {
	if spanDays <= 1 {
		return hourlyPoints
	}
	return spanDays * pointsPerDay
}

// Generate produces a deterministic synthetic price series of PointCount
// elements that terminates exactly at currentPrice. Identical arguments
// always yield an identical series, across sessions and devices.
//
// Each point sits at normalized position t in [0,1):
//
//	noise = sin(10t + seed) * cos(5t + seed)
//	value = currentPrice * (1 - 0.05*noise - 0.02*(1-t))
//
// floored at a small positive constant. The final element overrides the
// formula with currentPrice itself so the chart always lands on the live
// price regardless of synthetic noise.
func Generate(seedKey string, currentPrice decimal.Decimal, spanDays int) []model.PricePoint {
	count := PointCount(spanDays)
	seed := float64(Seed(seedKey))

	points := make([]model.PricePoint, count)
	for i := 0; i < count; i++ {
		t := float64(i) / float64(count)
		noise := math.Sin(10*t+seed) * math.Cos(5*t+seed)
		factor := 1 - 0.05*noise - 0.02*(1-t)

		value := currentPrice.Mul(decimal.NewFromFloat(factor))
		if value.LessThan(floorValue) {
			value = floorValue
		}
		points[i] = model.PricePoint{Index: i, Value: value}
	}

	// Terminal invariant: the series always ends on the observed live price.
	points[count-1].Value = currentPrice
	return points
}
