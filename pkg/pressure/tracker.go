package pressure

import (
	"sort"
	"time"
)

// Tracker owns the set of live process groups and reconciles it against
// each snapshot. It is driven from the monitor's single goroutine and does
// no locking of its own.
type Tracker struct {
	policy *Policy
	groups map[int]*Group
}

// NewTracker returns an empty tracker evaluating against the given policy.
func NewTracker(policy *Policy) *Tracker {
	return &Tracker{
		policy: policy,
		groups: make(map[int]*Group),
	}
}

// Reconcile folds one snapshot into the tracked set: existing groups are
// updated, newcomers enter idle-as-of-now, and every pgid absent from the
// snapshot is dropped on the spot. No grace period: a group that exits
// and a new one reusing its pgid share nothing. The live set is returned
// sorted by descending memory, ties by ascending pgid, so reporting and
// evaluation order is stable across ticks.
func (t *Tracker) Reconcile(samples map[int]GroupSample, now time.Time) []*Group {
	for pgid, s := range samples {
		if g, ok := t.groups[pgid]; ok {
			g.Update(s, now, t.policy)
			continue
		}
		t.groups[pgid] = newGroup(pgid, s, now)
	}
	for pgid := range t.groups {
		if _, ok := samples[pgid]; !ok {
			delete(t.groups, pgid)
		}
	}

	live := make([]*Group, 0, len(t.groups))
	for _, g := range t.groups {
		live = append(live, g)
	}
	sort.Slice(live, func(i, j int) bool {
		if live[i].memory != live[j].memory {
			return live[i].memory > live[j].memory
		}
		return live[i].pgid < live[j].pgid
	})
	return live
}

// Heaviest returns the tracked group using the most memory, ties going to
// the lowest pgid. ErrNoGroupsTracked when the set is empty.
func (t *Tracker) Heaviest() (*Group, error) {
	var best *Group
	for _, g := range t.groups {
		if best == nil ||
			g.memory > best.memory ||
			(g.memory == best.memory && g.pgid < best.pgid) {
			best = g
		}
	}
	if best == nil {
		return nil, ErrNoGroupsTracked
	}
	return best, nil
}

// Len returns the number of groups currently tracked.
func (t *Tracker) Len() int { return len(t.groups) }
