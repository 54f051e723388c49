package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ravell/memwatchd/pkg/pressure"
)

// Config is the fully resolved runtime configuration: the escalation
// policy plus everything around it.
type Config struct {
	// Email receives every warning. Empty means log-only operation.
	Email string

	// ExcludeUsers lists users whose processes are never tracked.
	ExcludeUsers []string

	// Policy is the escalation policy handed to the monitor.
	Policy *pressure.Policy
}

// Default returns the built-in configuration: conservative thresholds,
// termination disarmed, root and the display manager excluded.
func Default() *Config {
	return &Config{
		ExcludeUsers: []string{"root", "sddm"},
		Policy:       pressure.DefaultPolicy(),
	}
}

// fileConfig is the on-disk schema. Durations are plain seconds and the
// idle ladder maps memory fraction to hours, so thresholds read naturally
// next to each other in the file.
type fileConfig struct {
	Email  string `yaml:"email"`
	Memory struct {
		CriticalFraction float64 `yaml:"critical_fraction"`
		Terminate        struct {
			Active            *bool   `yaml:"active"`
			TerminateFraction float64 `yaml:"terminate_fraction"`
		} `yaml:"terminate"`
		IdleTimeoutHours map[float64]float64 `yaml:"idle_timeout_hours"`
	} `yaml:"memory"`
	Time struct {
		Update          float64 `yaml:"update"`
		WarningCooldown float64 `yaml:"warning_cooldown"`
		MinIdleTime     float64 `yaml:"min_idle_time"`
	} `yaml:"time"`
	CPU struct {
		ActiveUsage float64 `yaml:"active_usage"`
	} `yaml:"cpu"`
	Process struct {
		ExcludeUsers []string `yaml:"exclude_users"`
	} `yaml:"process"`
}

// Load reads a YAML file and merges it over the defaults. Only keys the
// file actually sets override; everything else keeps its default, so a
// two-line config is a perfectly good one.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	c := Default()
	fc.apply(c)
	return c, nil
}

func (fc *fileConfig) apply(c *Config) {
	if fc.Email != "" {
		c.Email = fc.Email
	}
	if len(fc.Process.ExcludeUsers) > 0 {
		c.ExcludeUsers = fc.Process.ExcludeUsers
	}

	p := c.Policy
	if fc.Memory.CriticalFraction > 0 {
		p.CriticalFraction = fc.Memory.CriticalFraction
	}
	if fc.Memory.Terminate.Active != nil {
		p.TerminateEnabled = *fc.Memory.Terminate.Active
	}
	if fc.Memory.Terminate.TerminateFraction > 0 {
		p.TerminateFraction = fc.Memory.Terminate.TerminateFraction
	}
	if len(fc.Memory.IdleTimeoutHours) > 0 {
		tiers := make([]pressure.Tier, 0, len(fc.Memory.IdleTimeoutHours))
		for cutoff, hours := range fc.Memory.IdleTimeoutHours {
			tiers = append(tiers, pressure.Tier{
				Cutoff:  cutoff,
				MaxIdle: time.Duration(hours * float64(time.Hour)),
			})
		}
		p.Tiers = tiers
	}
	if fc.Time.Update > 0 {
		p.Interval = seconds(fc.Time.Update)
	}
	if fc.Time.WarningCooldown > 0 {
		p.WarningCooldown = seconds(fc.Time.WarningCooldown)
	}
	if fc.Time.MinIdleTime > 0 {
		p.MinIdle = seconds(fc.Time.MinIdleTime)
	}
	if fc.CPU.ActiveUsage > 0 {
		p.ActiveUsage = fc.CPU.ActiveUsage
	}
	p.Normalize()
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

// LogSummary reports the effective settings once at startup, the full
// picture an operator needs to sanity-check a deployment.
func (c *Config) LogSummary(log *slog.Logger) {
	p := c.Policy
	email := c.Email
	if email == "" {
		email = "(log only)"
	}
	log.Info("effective configuration",
		"interval", p.Interval,
		"critical_fraction", p.CriticalFraction,
		"terminate", p.TerminateEnabled,
		"terminate_fraction", p.TerminateFraction,
		"warning_cooldown", p.WarningCooldown,
		"min_idle", p.MinIdle,
		"active_usage", p.ActiveUsage,
		"idle_ladder", ladderString(p.Tiers),
		"exclude_users", strings.Join(c.ExcludeUsers, ","),
		"email", email,
	)
}

func ladderString(tiers []pressure.Tier) string {
	parts := make([]string, len(tiers))
	for i, t := range tiers {
		parts[i] = fmt.Sprintf("%g%%:%s", t.Cutoff*100, t.MaxIdle)
	}
	return strings.Join(parts, " ")
}
