//go:build linux

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ravell/memwatchd/pkg/config"
	"github.com/ravell/memwatchd/pkg/notify"
	"github.com/ravell/memwatchd/pkg/pressure"
	"github.com/ravell/memwatchd/pkg/system/proc"
	"github.com/ravell/memwatchd/pkg/system/util"
)

const (
	notifyQueueDepth  = 64
	defaultConfigFile = "config.yml"
)

type opts struct {
	configPath string
	dryRun     bool
	once       bool
	debug      bool
}

func main() {
	var o opts

	root := &cobra.Command{
		Use:   "memwatchd",
		Short: "Memory pressure watchdog for shared Linux hosts",
		Long: `memwatchd watches per-user process groups on a shared host, mails the
owners of large groups left idle, and guards host-wide available memory.
With termination armed it kills the heaviest group as a last resort when
the host is about to run out entirely.

Run it as root under your service manager for whole-host coverage; without
root it monitors the invoking user's own processes.

Examples:
  memwatchd --config /etc/memwatchd/config.yml
  memwatchd --dry-run --debug
  memwatchd --once --config ./config.yml`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), o)
		},
	}

	root.Flags().StringVarP(&o.configPath, "config", "c", "", "YAML configuration file (built-in defaults when omitted)")
	root.Flags().BoolVar(&o.dryRun, "dry-run", false, "evaluate and log without mailing or signalling anything")
	root.Flags().BoolVar(&o.once, "once", false, "run a single pass and exit")
	root.Flags().BoolVar(&o.debug, "debug", false, "log per-group detail every tick")

	if err := root.Execute(); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, o opts) error {
	logger := newLogger(o.debug)
	slog.SetDefault(logger)
	log := logger.With("component", "main")

	cfg := config.Default()
	path := o.configPath
	if path == "" {
		if _, err := os.Stat(defaultConfigFile); err == nil {
			path = defaultConfigFile
		}
	}
	if path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return err
		}
		log.Info("configuration loaded", "path", path)
	} else {
		log.Info("no configuration file, using built-in defaults")
	}

	sum := util.SystemSummary()
	log.Info("starting memwatchd",
		"host", sum.Hostname,
		"kernel", sum.Kernel,
		"cpus", sum.CPUs,
		"memory", sum.Memory.Humanized(),
		"dry_run", o.dryRun)
	cfg.LogSummary(log)

	collector, err := proc.NewCollector(proc.Options{
		ExcludeUsers: cfg.ExcludeUsers,
		DryRun:       o.dryRun,
	}, logger)
	if err != nil {
		return fmt.Errorf("collector: %w", err)
	}

	var sink pressure.Notifier = notify.NewLog(logger)
	if cfg.Email != "" && !o.dryRun {
		sink = notify.Fanout{notify.NewLog(logger), notify.NewMail(cfg.Email, logger)}
	}
	async := notify.NewAsync(sink, notifyQueueDepth, logger)
	defer async.Close()

	mon, err := pressure.NewMonitor(cfg.Policy, collector, async, sum.Hostname, logger)
	if err != nil {
		return fmt.Errorf("monitor: %w", err)
	}

	if o.once {
		mon.Tick()
		return nil
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	mon.Run(ctx)
	return nil
}

func newLogger(debug bool) *slog.Logger {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}
