// Package counter turns raw CounterChanged events into normalized records and
// folds them into the derived views shown to users: totals, percentage
// breakdown, leaderboard and a bounded evolution series.
//
// Everything here is pure: callers hand in a complete snapshot and get a fresh
// result back. Malformed per-event data never produces an error; the event is
// still counted in the total but lands in no reason bucket.
package counter

import "fmt"

// Reason is the decoded form of the CounterChanged reason union.
type Reason int

const (
	Unknown Reason = iota
	Increase
	Decrease
	Reset
	Set
)

// variantOrder is the fixed priority used when several variant keys are present.
var variantOrder = [...]Reason{Increase, Decrease, Reset, Set}

func (r Reason) String() string {
	switch r {
	case Increase:
		return "Increase"
	case Decrease:
		return "Decrease"
	case Reset:
		return "Reset"
	case Set:
		return "Set"
	default:
		return "Unknown"
	}
}

// ParseReason matches s against the four variant names exactly.
func ParseReason(s string) Reason {
	for _, r := range variantOrder {
		if r.String() == s {
			return r
		}
	}
	return Unknown
}

// Known reports whether r is one of the four variants.
func (r Reason) Known() bool {
	return r >= Increase && r <= Set
}

// Emoji returns the icon used in notifications and event listings.
func (r Reason) Emoji() string {
	switch r {
	case Increase:
		return "📈"
	case Decrease:
		return "📉"
	case Reset:
		return "🔄"
	case Set:
		return "⚙️"
	default:
		return "📊"
	}
}

// Severity maps a reason onto a notification level.
func (r Reason) Severity() string {
	switch r {
	case Increase:
		return "success"
	case Decrease:
		return "warning"
	case Reset:
		return "error"
	default:
		return "info"
	}
}

func (r Reason) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

func (r *Reason) UnmarshalText(b []byte) error {
	s := string(b)
	parsed := ParseReason(s)
	if parsed == Unknown && s != "Unknown" {
		return fmt.Errorf("unknown reason %q", s)
	}
	*r = parsed
	return nil
}
