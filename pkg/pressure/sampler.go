package pressure

import "github.com/ravell/memwatchd/pkg/types"

// GroupSample is one process group's reading within a snapshot: the owning
// user, the cumulative CPU seconds of all members, and the summed memory.
type GroupSample struct {
	User    string
	CPUTime float64
	Memory  types.Bytes
}

// SystemSnapshot is a host-wide memory reading. Available counts free swap
// as headroom, so it can exceed Total on hosts with generous swap.
type SystemSnapshot struct {
	Total     types.Bytes
	Available types.Bytes
	SwapFree  types.Bytes
}

// AvailableFraction returns Available/Total, 0 when Total is unknown.
func (s SystemSnapshot) AvailableFraction() float64 {
	return s.Available.Fraction(s.Total)
}

// Sampler supplies the raw readings the monitor works from and carries out
// terminations. The production implementation reads /proc; tests substitute
// scripted fakes.
type Sampler interface {
	// SnapshotGroups returns the current process groups keyed by pgid.
	// An empty map is a valid reading (nothing to track). Errors wrap
	// ErrSamplingUnavailable when the process table cannot be read.
	SnapshotGroups() (map[int]GroupSample, error)

	// SnapshotSystemMemory reads host-wide totals.
	SnapshotSystemMemory() (SystemSnapshot, error)

	// Terminate signals the whole process group. Failure to deliver the
	// signal is reported, not fatal; monitoring continues either way.
	Terminate(pgid int) error
}

// Notifier delivers a composed warning to its recipients. Delivery is
// best-effort: implementations log failures and never block the caller
// beyond their own timeout.
type Notifier interface {
	Send(subject, body string)
}
