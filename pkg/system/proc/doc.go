// Package proc samples per-user process groups and host-wide memory on
// Linux, implementing the pressure.Sampler contract.
//
// Process groups are assembled from /proc: every live process contributes
// its cumulative CPU time and its memory to the group keyed by its pgid.
// Memory is proportional set size from smaps_rollup when readable, falling
// back to resident set size from stat, so shared pages are attributed
// fairly when privileges allow and never double an entire group otherwise.
// A group's owner is the user of its lowest-pid member.
//
// Three filters shape the result: kernel threads and other zero-memory
// entries are dropped, configured users (typically root and the display
// manager) are excluded, and without root privileges sampling restricts
// itself to the invoking user's own processes.
//
// Termination signals SIGTERM to the whole group, exactly what a user
// would do with kill -- -<pgid>.
package proc
