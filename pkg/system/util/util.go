//go:build linux

package util

import (
	"os"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ravell/memwatchd/pkg/types"
)

// Summary describes the host for the startup banner. Fields that cannot
// be read stay at their zero values; the banner is informational only.
type Summary struct {
	Hostname string
	Kernel   string
	CPUs     int
	Memory   types.Bytes
}

// SystemSummary collects a best-effort host description.
func SystemSummary() Summary {
	var s Summary
	s.Hostname = Hostname()
	if info, err := host.Info(); err == nil {
		s.Kernel = info.KernelVersion
	}
	if n, err := cpu.Counts(true); err == nil {
		s.CPUs = n
	}
	if vm, err := mem.VirtualMemory(); err == nil {
		s.Memory = types.Bytes(vm.Total)
	}
	return s
}

// Hostname names this host for warning messages, falling back through the
// kernel's own idea of the name before giving up with localhost.
func Hostname() string {
	if info, err := host.Info(); err == nil && info.Hostname != "" {
		return info.Hostname
	}
	if h, err := os.Hostname(); err == nil && h != "" {
		return h
	}
	return "localhost"
}
