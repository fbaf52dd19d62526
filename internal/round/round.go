// Package round classifies a funding round's temporal state from its expiry
// timestamp, for both UI labeling and trade gating.
//
// The engine never sets the timer itself: a zero expiry means the round has
// not started, and the external ledger will set a real expiry when the first
// buy lands.
package round

import (
	"fmt"
	"time"
)

// Phase is the coarse temporal state of a funding round.
type Phase int

const (
	NotStarted Phase = iota
	Active
	Ended
)

// String returns the wire/log label for a phase.
func (p Phase) String() string {
	switch p {
	case NotStarted:
		return "not_started"
	case Active:
		return "active"
	case Ended:
		return "ended"
	default:
		return "unknown"
	}
}

// State is the classified round state. Remaining is meaningful only while
// the phase is Active.
type State struct {
	Phase     Phase
	Remaining time.Duration
}

// Classify derives the round state from an expiry timestamp (unix seconds,
// 0 = not started) and the current wall-clock time. Callers on round-bearing
// screens re-classify at least once per second.
func Classify(expiry int64, now time.Time) State {
	switch {
	case expiry == 0:
		return State{Phase: NotStarted}
	case expiry > now.Unix():
		return State{Phase: Active, Remaining: time.Duration(expiry-now.Unix()) * time.Second}
	default:
		return State{Phase: Ended}
	}
}

// CanBuy reports whether buying is permitted: allowed while the round has
// not started (the first buy initiates it) or is active, forbidden once
// ended. Selling and claiming are never gated on round state; the asymmetry
// is intentional.
func (s State) CanBuy() bool {
	return s.Phase != Ended
}

// Label is the human-readable round label: "Ready" before the round starts,
// the remaining time while active, "Ended" after.
func (s State) Label() string {
	switch s.Phase {
	case NotStarted:
		return "Ready"
	case Active:
		return FormatRemaining(s.Remaining)
	default:
		return "Ended"
	}
}

// FormatRemaining renders a duration as H:MM:SS.
func FormatRemaining(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	total := int64(d / time.Second)
	h := total / 3600
	m := (total % 3600) / 60
	s := total % 60
	return fmt.Sprintf("%d:%02d:%02d", h, m, s)
}
