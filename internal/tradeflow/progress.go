package tradeflow

import (
	"math"
	"time"
)

// progressCeiling is where the indicator stalls while a write is pending;
// it snaps to 100 only when the ledger call resolves.
const progressCeiling = 90.0

// progressTau controls how fast the indicator approaches the ceiling.
const progressTau = 4 * time.Second

// Progress returns the indeterminate progress indicator for the current
// state, in [0, 100]. While submitting it advances asymptotically toward 90
// as a pure function of elapsed time, so polling callers see a monotone,
// deterministic value; success snaps to 100.
func (f *Flow) Progress() float64 {
	f.mu.Lock()
	state := f.state
	submittedAt := f.submittedAt
	f.mu.Unlock()

	switch state {
	case StateSuccess:
		return 100
	case StateSubmitting:
		elapsed := f.now().Sub(submittedAt)
		if elapsed < 0 {
			elapsed = 0
		}
		return progressCeiling * (1 - math.Exp(-float64(elapsed)/float64(progressTau)))
	default:
		return 0
	}
}
