package pressure

import (
	"sort"
	"time"
)

// Tier pairs a memory cutoff with the idle time a group of at least that
// share is allowed before warnings start. A zero allowance warns on the
// first idle tick.
type Tier struct {
	// Cutoff is the fraction of host memory a group must exceed
	// (strictly) for this tier to govern it.
	Cutoff float64

	// MaxIdle is how long such a group may sit idle unwarned.
	MaxIdle time.Duration
}

// Policy is the escalation configuration. It is assembled once at startup
// and never mutated afterwards, so the monitor, tracker and guard share it
// without locking.
type Policy struct {
	// CriticalFraction is the available-memory fraction below which the
	// host is considered critical and a system warning goes out.
	CriticalFraction float64

	// TerminateEnabled arms the termination path. When false the guard
	// never escalates past a warning.
	TerminateEnabled bool

	// TerminateFraction is the available-memory fraction below which the
	// heaviest group is terminated. Meaningful only below
	// CriticalFraction.
	TerminateFraction float64

	// Interval is the polling period.
	Interval time.Duration

	// ActiveUsage is the CPU share (of one core) a group must burn over
	// an interval to count as active.
	ActiveUsage float64

	// WarningCooldown floors the per-group re-warn window.
	WarningCooldown time.Duration

	// MinIdle is a display threshold only: groups idle for less are
	// reported as active. It never gates warnings.
	MinIdle time.Duration

	// Tiers is the idle-allowance ladder, kept sorted by descending
	// cutoff. Use Normalize after assembling by hand.
	Tiers []Tier
}

// DefaultPolicy returns the shipped configuration: warn when available
// memory drops under 5%, never terminate, and forgive idle time on a
// ladder from "none at half the host" down to "a month at 1%".
func DefaultPolicy() *Policy {
	return &Policy{
		CriticalFraction:  0.05,
		TerminateEnabled:  false,
		TerminateFraction: 0.01,
		Interval:          5 * time.Minute,
		ActiveUsage:       0.05,
		WarningCooldown:   24 * time.Hour,
		MinIdle:           10 * time.Minute,
		Tiers: []Tier{
			{Cutoff: 0.50, MaxIdle: 0},
			{Cutoff: 0.20, MaxIdle: 6 * time.Hour},
			{Cutoff: 0.10, MaxIdle: 24 * time.Hour},
			{Cutoff: 0.05, MaxIdle: 7 * 24 * time.Hour},
			{Cutoff: 0.01, MaxIdle: 30 * 24 * time.Hour},
		},
	}
}

// Normalize sorts the tier ladder by descending cutoff. TierFor assumes
// this order.
func (p *Policy) Normalize() {
	sort.Slice(p.Tiers, func(i, j int) bool {
		return p.Tiers[i].Cutoff > p.Tiers[j].Cutoff
	})
}

// TierFor returns the tier governing a group holding the given fraction of
// host memory: the one with the largest cutoff strictly below the fraction.
// ok is false when no cutoff is cleared; such groups are never warned no
// matter how long they idle.
func (p *Policy) TierFor(fraction float64) (Tier, bool) {
	for _, t := range p.Tiers {
		if t.Cutoff < fraction {
			return t, true
		}
	}
	return Tier{}, false
}
