package pressure

import "errors"

var (
	// ErrSamplingUnavailable reports that the process table could not be
	// read this tick. Callers skip the tick and keep all tracked state.
	ErrSamplingUnavailable = errors.New("pressure: process sampling unavailable")

	// ErrNoGroupsTracked reports that the tracker holds no process groups,
	// so there is nothing to pick as a termination victim.
	ErrNoGroupsTracked = errors.New("pressure: no process groups tracked")
)
