package pressure

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ravell/memwatchd/pkg/types"
)

// Monitor drives the polling loop: sample process groups, reconcile and
// evaluate each one, then check host-wide pressure and escalate to
// termination when armed. All state lives on the monitor's goroutine;
// sampler and notifier are the only things it shares.
type Monitor struct {
	policy   *Policy
	sampler  Sampler
	notifier Notifier
	tracker  *Tracker
	guard    *Guard
	total    types.Bytes
	log      *slog.Logger
	now      func() time.Time
}

// NewMonitor wires a monitor and measures host memory once. The total is
// fixed for the monitor's lifetime; every percentage reported later is
// relative to it. Failing to read it means the host cannot be monitored
// at all, so that error surfaces before the loop ever starts.
func NewMonitor(policy *Policy, sampler Sampler, notifier Notifier, hostname string, logger *slog.Logger) (*Monitor, error) {
	if logger == nil {
		logger = slog.Default()
	}
	snap, err := sampler.SnapshotSystemMemory()
	if err != nil {
		return nil, fmt.Errorf("read host memory size: %w", err)
	}
	return &Monitor{
		policy:   policy,
		sampler:  sampler,
		notifier: notifier,
		tracker:  NewTracker(policy),
		guard:    NewGuard(policy, hostname),
		total:    snap.Total,
		log:      logger.With("component", "monitor"),
		now:      time.Now,
	}, nil
}

// Run polls until the context is cancelled. The first tick fires
// immediately, the rest on the policy interval. Cancellation is honored
// between ticks only; an in-flight tick, including a termination cascade,
// always completes.
func (m *Monitor) Run(ctx context.Context) {
	m.log.Info("monitoring started",
		"interval", m.policy.Interval,
		"total", m.total.Humanized(),
		"terminate", m.policy.TerminateEnabled)

	ticker := time.NewTicker(m.policy.Interval)
	defer ticker.Stop()

	m.Tick()
	for {
		select {
		case <-ctx.Done():
			m.log.Info("monitoring stopped")
			return
		case <-ticker.C:
			m.Tick()
		}
	}
}

// Tick executes one full pass. Errors never escape: an unreadable process
// table skips the whole tick with every group's state intact, and an
// unreadable host snapshot skips just the system check.
func (m *Monitor) Tick() {
	if err := m.updateGroups(m.now()); err != nil {
		m.log.Warn("skipping tick", "err", err)
		return
	}
	m.checkSystem()
}

// updateGroups samples the process table, reconciles the tracked set and
// evaluates every live group, delivering warnings for those newly over
// their idle allowance.
func (m *Monitor) updateGroups(now time.Time) error {
	samples, err := m.sampler.SnapshotGroups()
	if err != nil {
		return err
	}

	live := m.tracker.Reconcile(samples, now)
	m.log.Info("tick", "groups", len(live))

	warned, muted := 0, 0
	for _, g := range live {
		verdict := g.Evaluate(now, m.policy, m.total)
		m.logGroup(g, verdict, now)
		switch verdict {
		case VerdictWarned:
			warned++
			m.notifier.Send(g.warningSubject(), g.warningBody(now, m.total))
		case VerdictMuted:
			muted++
		}
	}
	if warned+muted > 0 {
		m.log.Info("idle pressure",
			"groups", len(live), "warned", warned, "muted", muted)
	}
	return nil
}

// checkSystem evaluates host-wide pressure and delivers whatever the
// decision calls for, running the termination cascade first when it
// escalates that far.
func (m *Monitor) checkSystem() {
	snap, err := m.sampler.SnapshotSystemMemory()
	if err != nil {
		m.log.Warn("skipping system check", "err", err)
		return
	}

	action := m.guard.Decide(snap)
	if action == ActionTerminate {
		action, snap = m.terminateCascade(snap)
	}

	switch action {
	case ActionWarn:
		m.log.Warn("system memory critical",
			"action", action,
			"available", snap.Available.Humanized(),
			"total", snap.Total.Humanized(),
			"available_pct", fmt.Sprintf("%.2f", 100*snap.AvailableFraction()))
		m.notifier.Send(m.guard.systemSubject(), m.guard.systemBody(snap))
	default:
		m.log.Info("system memory ok",
			"action", action,
			"available", snap.Available.Humanized(),
			"available_pct", fmt.Sprintf("%.2f", 100*snap.AvailableFraction()))
	}
}

// terminateCascade kills the heaviest tracked group, re-runs a full group
// pass, re-samples the host and re-decides, repeating while the terminate
// condition holds. It returns the residual action and the snapshot backing
// it. The kill count is capped at the population when the cascade engaged:
// each pass removes one group, so going past that means the sampler keeps
// resurrecting pgids. Running out of victims downgrades to a warning
// rather than an error.
func (m *Monitor) terminateCascade(snap SystemSnapshot) (Action, SystemSnapshot) {
	limit := m.tracker.Len()
	for kills := 0; ; {
		victim, err := m.tracker.Heaviest()
		if err != nil {
			m.log.Warn("memory critical with no process groups to terminate")
			return ActionWarn, snap
		}

		if err := m.sampler.Terminate(victim.pgid); err != nil {
			m.log.Error("terminate failed",
				"pgid", victim.pgid, "user", victim.user, "err", err)
		} else {
			m.log.Warn("terminated heaviest process group",
				"pgid", victim.pgid, "user", victim.user,
				"freed", victim.memory.Humanized())
		}
		m.notifier.Send(
			m.guard.terminatedSubject(victim.pgid),
			m.guard.terminatedBody(snap, victim, m.total))
		kills++

		if err := m.updateGroups(m.now()); err != nil {
			m.log.Warn("stopping cascade", "err", err)
			return ActionWarn, snap
		}
		next, err := m.sampler.SnapshotSystemMemory()
		if err != nil {
			m.log.Warn("stopping cascade", "err", err)
			return ActionWarn, snap
		}
		snap = next

		if a := m.guard.Decide(snap); a != ActionTerminate {
			return a, snap
		}
		if kills >= limit {
			m.log.Warn("cascade exhausted tracked groups, still critical",
				"kills", kills)
			return ActionWarn, snap
		}
	}
}

// logGroup traces one group's standing: active groups by name, idle ones
// by the hours since their last activity. MinIdle only shapes this trace,
// never the verdict.
func (m *Monitor) logGroup(g *Group, v Verdict, now time.Time) {
	attrs := []any{
		"pgid", g.pgid,
		"user", g.user,
		"verdict", v,
		"memory", g.memory.Humanized(),
		"memory_pct", fmt.Sprintf("%.2f", 100*g.memory.Fraction(m.total)),
	}
	if idle := g.IdleFor(now); idle > m.policy.MinIdle {
		attrs = append(attrs, "idle_hours", fmt.Sprintf("%.2f", idle.Hours()))
	} else {
		attrs = append(attrs, "state", "active")
	}

	switch v {
	case VerdictWarned:
		m.log.Warn("group over idle allowance", attrs...)
	case VerdictMuted:
		m.log.Info("group over idle allowance, warning muted", attrs...)
	default:
		m.log.Debug("group", attrs...)
	}
}
