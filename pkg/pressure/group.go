package pressure

import (
	"fmt"
	"time"

	"github.com/ravell/memwatchd/pkg/types"
)

// timeLayout renders wall-clock times in warning bodies.
const timeLayout = "2006-01-02 15:04:05"

// Verdict classifies one group evaluation.
type Verdict int

const (
	// VerdictOK means the group is under its idle allowance or too small
	// to matter.
	VerdictOK Verdict = iota

	// VerdictWarned means the group crossed its allowance this tick and a
	// warning is due.
	VerdictWarned

	// VerdictMuted means the group is over its allowance but was warned
	// recently enough that the warning is suppressed.
	VerdictMuted
)

func (v Verdict) String() string {
	switch v {
	case VerdictWarned:
		return "warned"
	case VerdictMuted:
		return "muted"
	default:
		return "ok"
	}
}

// Group tracks one live process group: its owner, last readings, activity
// clock and warning history. Identity (pgid, user) is fixed at creation;
// a pgid that vanishes and comes back starts over as a new Group.
type Group struct {
	pgid       int
	user       string
	memory     types.Bytes
	cpuTime    float64
	firstSeen  time.Time
	lastActive time.Time
	lastWarned time.Time
	warnCount  int
}

func newGroup(pgid int, s GroupSample, now time.Time) *Group {
	return &Group{
		pgid:       pgid,
		user:       s.User,
		memory:     s.Memory,
		cpuTime:    s.CPUTime,
		firstSeen:  now,
		lastActive: now,
	}
}

// PGID returns the process group id.
func (g *Group) PGID() int { return g.pgid }

// User returns the owning user name.
func (g *Group) User() string { return g.user }

// Memory returns the last sampled memory usage.
func (g *Group) Memory() types.Bytes { return g.memory }

// IdleFor returns how long the group has gone without meaningful CPU use.
func (g *Group) IdleFor(now time.Time) time.Duration {
	return now.Sub(g.lastActive)
}

// WarnCount returns how many warnings this group has triggered.
func (g *Group) WarnCount() int { return g.warnCount }

// Update folds a fresh sample into the group. The CPU counter delta since
// the previous sample decides activity: burning more than the policy's
// active share of one core over the interval stamps the activity clock.
// Negative deltas (counter resets after member churn) clamp to zero, so a
// shrinking group stays idle rather than flapping active.
func (g *Group) Update(s GroupSample, now time.Time, p *Policy) {
	delta := s.CPUTime - g.cpuTime
	if delta < 0 {
		delta = 0
	}
	if delta > p.ActiveUsage*p.Interval.Seconds() {
		g.lastActive = now
	}
	g.cpuTime = s.CPUTime
	g.memory = s.Memory
}

// Evaluate decides whether the group deserves a warning this tick. The
// governing tier comes from the group's share of host memory; groups under
// every cutoff are always OK. Over-allowance groups warn unless they were
// warned within the throttle window, in which case they are muted. A
// VerdictWarned stamps the warning history.
func (g *Group) Evaluate(now time.Time, p *Policy, total types.Bytes) Verdict {
	tier, ok := p.TierFor(g.memory.Fraction(total))
	if !ok {
		return VerdictOK
	}
	if g.IdleFor(now) <= tier.MaxIdle {
		return VerdictOK
	}
	if g.recentlyWarned(now, tier.MaxIdle, p.WarningCooldown) {
		return VerdictMuted
	}
	g.lastWarned = now
	g.warnCount++
	return VerdictWarned
}

// recentlyWarned reports whether the last warning falls inside the throttle
// window: the governing tier's idle allowance or the configured cooldown,
// whichever is longer.
func (g *Group) recentlyWarned(now time.Time, maxIdle, cooldown time.Duration) bool {
	if g.lastWarned.IsZero() {
		return false
	}
	window := maxIdle
	if cooldown > window {
		window = cooldown
	}
	return now.Sub(g.lastWarned) <= window
}

func (g *Group) warningSubject() string {
	return "Memory Usage Warning: " + g.user
}

func (g *Group) warningBody(now time.Time, total types.Bytes) string {
	return fmt.Sprintf(
		"Warning: %s's process group %d has been idle since %s (%.1f hours ago) and is using %.1fGB (%.2f%%) of RAM. Kill it with `kill -- -%d`.",
		g.user, g.pgid,
		g.lastActive.Format(timeLayout), g.IdleFor(now).Hours(),
		g.memory.GB(), 100*g.memory.Fraction(total),
		g.pgid,
	)
}
