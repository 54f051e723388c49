//go:build linux

package proc

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/ravell/memwatchd/pkg/pressure"
	"github.com/ravell/memwatchd/pkg/types"
)

// SnapshotSystemMemory reads host-wide totals. Free swap counts toward
// available headroom: memory the kernel can still push idle pages into is
// memory the host has not run out of.
func (c *Collector) SnapshotSystemMemory() (pressure.SystemSnapshot, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return pressure.SystemSnapshot{}, fmt.Errorf("read memory info: %w", err)
	}
	sw, err := mem.SwapMemory()
	if err != nil {
		return pressure.SystemSnapshot{}, fmt.Errorf("read swap info: %w", err)
	}
	return buildSnapshot(vm, sw), nil
}

func buildSnapshot(vm *mem.VirtualMemoryStat, sw *mem.SwapMemoryStat) pressure.SystemSnapshot {
	return pressure.SystemSnapshot{
		Total:     types.Bytes(vm.Total),
		Available: types.Bytes(vm.Available + sw.Free),
		SwapFree:  types.Bytes(sw.Free),
	}
}
