//go:build linux

package proc

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/prometheus/procfs"
	"golang.org/x/sys/unix"

	"github.com/ravell/memwatchd/pkg/pressure"
	"github.com/ravell/memwatchd/pkg/types"
)

// Options configures a Collector.
type Options struct {
	// ProcRoot is the proc filesystem mount point, /proc when empty.
	ProcRoot string

	// ExcludeUsers lists user names whose processes are never tracked.
	ExcludeUsers []string

	// DryRun makes Terminate log instead of signalling.
	DryRun bool
}

// Collector reads process groups and host memory from a proc filesystem.
// It is driven from a single goroutine.
type Collector struct {
	fs         procfs.FS
	exclude    map[string]struct{}
	users      *userCache
	uidOf      func(pid int) (uint32, error)
	restricted bool
	onlyUID    uint32
	dryRun     bool
	log        *slog.Logger
}

var _ pressure.Sampler = (*Collector)(nil)

// NewCollector opens the proc filesystem and prepares the filters. Without
// root privileges the collector restricts itself to the invoking user's
// processes, since other users' CPU counters and memory maps are not
// reliably readable anyway.
func NewCollector(opts Options, logger *slog.Logger) (*Collector, error) {
	if logger == nil {
		logger = slog.Default()
	}
	root := opts.ProcRoot
	if root == "" {
		root = procfs.DefaultMountPoint
	}
	fs, err := procfs.NewFS(root)
	if err != nil {
		return nil, fmt.Errorf("open proc filesystem %s: %w", root, err)
	}

	c := &Collector{
		fs:      fs,
		exclude: make(map[string]struct{}, len(opts.ExcludeUsers)),
		users:   newUserCache(),
		uidOf:   statUID(root),
		dryRun:  opts.DryRun,
		log:     logger.With("component", "proc"),
	}
	for _, u := range opts.ExcludeUsers {
		c.exclude[u] = struct{}{}
	}
	if os.Geteuid() != 0 {
		c.restricted = true
		c.onlyUID = uint32(os.Getuid())
		c.log.Info("running without root, monitoring own processes only",
			"uid", c.onlyUID)
	}
	return c, nil
}

type accum struct {
	lowestPID int
	user      string
	cpu       float64
	mem       types.Bytes
}

// SnapshotGroups walks the process table and folds every surviving process
// into its group. Processes that exit mid-walk are skipped silently; a
// table that cannot be listed at all comes back wrapping
// pressure.ErrSamplingUnavailable so the caller skips the tick.
func (c *Collector) SnapshotGroups() (map[int]pressure.GroupSample, error) {
	procs, err := c.fs.AllProcs()
	if err != nil {
		return nil, fmt.Errorf("list processes: %w: %w", pressure.ErrSamplingUnavailable, err)
	}
	if len(procs) == 0 {
		return nil, fmt.Errorf("%w: %w", ErrEmptyProcTable, pressure.ErrSamplingUnavailable)
	}

	accums := make(map[int]*accum)
	for _, p := range procs {
		stat, err := p.Stat()
		if err != nil {
			continue
		}
		// pgid 0 marks kernel threads; signalling -0 would hit our own
		// group, so they must never enter the tracked set.
		if stat.PGRP <= 0 {
			continue
		}
		uid, err := c.uidOf(p.PID)
		if err != nil {
			continue
		}
		if c.restricted && uid != c.onlyUID {
			continue
		}
		name := c.users.name(uid)
		if _, drop := c.exclude[name]; drop {
			continue
		}
		mem := c.memberMemory(p, stat)
		if mem == 0 {
			continue
		}

		a, ok := accums[stat.PGRP]
		if !ok {
			a = &accum{lowestPID: p.PID, user: name}
			accums[stat.PGRP] = a
		} else if p.PID < a.lowestPID {
			a.lowestPID = p.PID
			a.user = name
		}
		a.cpu += stat.CPUTime()
		a.mem += mem
	}

	samples := make(map[int]pressure.GroupSample, len(accums))
	for pgid, a := range accums {
		samples[pgid] = pressure.GroupSample{
			User:    a.user,
			CPUTime: a.cpu,
			Memory:  a.mem,
		}
	}
	c.log.Debug("sampled process table",
		"processes", len(procs), "groups", len(samples))
	return samples, nil
}

// memberMemory prefers proportional set size, falling back to resident set
// size when smaps_rollup is unreadable for this process.
func (c *Collector) memberMemory(p procfs.Proc, stat procfs.ProcStat) types.Bytes {
	if rollup, err := p.ProcSMapsRollup(); err == nil && rollup.Pss > 0 {
		return types.Bytes(rollup.Pss)
	}
	rss := stat.ResidentMemory()
	if rss < 0 {
		return 0
	}
	return types.Bytes(rss)
}

// Terminate sends SIGTERM to the whole process group.
func (c *Collector) Terminate(pgid int) error {
	if c.dryRun {
		c.log.Info("dry run, not signalling", "pgid", pgid)
		return nil
	}
	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil {
		return fmt.Errorf("signal process group %d: %w", pgid, err)
	}
	return nil
}
