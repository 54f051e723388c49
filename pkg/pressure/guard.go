package pressure

import (
	"fmt"

	"github.com/ravell/memwatchd/pkg/types"
)

// Action is the host-wide pressure decision for one snapshot.
type Action int

const (
	// ActionOK means available memory clears every threshold.
	ActionOK Action = iota

	// ActionWarn means available memory fell under the critical fraction.
	ActionWarn

	// ActionTerminate means available memory fell under the terminate
	// fraction with termination armed. A terminate always carries the
	// critical warning with it.
	ActionTerminate
)

func (a Action) String() string {
	switch a {
	case ActionWarn:
		return "warn"
	case ActionTerminate:
		return "terminate"
	default:
		return "ok"
	}
}

// Guard turns host-wide snapshots into pressure decisions and composes the
// system warning payloads.
type Guard struct {
	policy   *Policy
	hostname string
}

// NewGuard returns a guard reporting under the given hostname.
func NewGuard(policy *Policy, hostname string) *Guard {
	return &Guard{policy: policy, hostname: hostname}
}

// Decide maps a snapshot to an action. Termination is checked first and
// wins over a plain warning; both thresholds are strict less-than, so a
// fraction sitting exactly on a threshold does not trip it.
func (gd *Guard) Decide(snap SystemSnapshot) Action {
	frac := snap.AvailableFraction()
	switch {
	case gd.policy.TerminateEnabled && frac < gd.policy.TerminateFraction:
		return ActionTerminate
	case frac < gd.policy.CriticalFraction:
		return ActionWarn
	default:
		return ActionOK
	}
}

func (gd *Guard) systemSubject() string {
	return "System Memory Critical"
}

func (gd *Guard) terminatedSubject(pgid int) string {
	return fmt.Sprintf("System Memory Critical (Terminated %d)", pgid)
}

func (gd *Guard) systemBody(snap SystemSnapshot) string {
	return fmt.Sprintf(
		"Critical warning: %s memory usage high: %.1fGB of %.1fGB available (%.2f%%).",
		gd.hostname, snap.Available.GB(), snap.Total.GB(),
		100*snap.AvailableFraction(),
	)
}

// terminatedBody appends the kill report to the critical warning. The
// victim's numbers are its last-known reading, the memory the kill is
// expected to free.
func (gd *Guard) terminatedBody(snap SystemSnapshot, victim *Group, total types.Bytes) string {
	return gd.systemBody(snap) + fmt.Sprintf(
		"\n\nTerminated %s's process group %d and freed %.1fGB (%.2f%%) of RAM.",
		victim.user, victim.pgid,
		victim.memory.GB(), 100*victim.memory.Fraction(total),
	)
}
