// Package pressure implements the memory-pressure monitoring core: a
// polling loop that tracks per-user process groups, warns the owners of
// large groups left idle, and guards host-wide available memory, with an
// optional last-resort termination of the heaviest group.
//
// The package is deliberately free of platform code. Readings come in
// through the Sampler interface and warnings go out through the Notifier
// interface, so the core runs the same against a live /proc tree or a
// scripted test double.
//
// One Monitor.Tick is a full pass: reconcile the tracked set against a
// fresh snapshot, evaluate every group against the Policy's idle-allowance
// ladder, then decide the host-wide action. All escalation state, per-group
// warning history included, lives inside the Monitor's goroutine.
package pressure
