// Package sysstats samples host and GPU utilization for telemetry payloads.
// All probes are best-effort: a source that cannot be read leaves its field
// at the zero value and never returns an error to the caller.
package sysstats

import (
	"sync"

	"metricd/pkg/types"
)

// Collector samples CPU, RAM and (when available) VRAM usage. CPU percent
// is computed from /proc/stat deltas between successive Collect calls, so
// the first call reports 0.
type Collector struct {
	mu       sync.Mutex
	prevBusy uint64
	prevTot  uint64

	gpu        *gpuProbe
	deviceType string
	deviceName string
}

// NewCollector detects the device once and returns a ready collector.
func NewCollector() *Collector {
	c := &Collector{deviceType: "cpu", deviceName: "CPU"}
	if g := initGPU(); g != nil {
		c.gpu = g
		c.deviceType = "cuda"
		c.deviceName = g.name
	}
	return c
}

// Collect returns a snapshot of current utilization.
func (c *Collector) Collect() *types.SysStats {
	st := &types.SysStats{
		DeviceType: c.deviceType,
		DeviceName: c.deviceName,
	}
	st.CPUPercent = c.cpuPercent()
	st.RAMPercent = ramPercent()
	if c.gpu != nil {
		if p, ok := c.gpu.vramPercent(); ok {
			st.VRAMPercent = &p
		}
	}
	return st
}

// Close releases GPU handles, if any were acquired.
func (c *Collector) Close() {
	if c.gpu != nil {
		c.gpu.shutdown()
		c.gpu = nil
	}
}

func (c *Collector) cpuPercent() float64 {
	busy, tot, ok := readCPUCounters()
	if !ok {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	dBusy := busy - c.prevBusy
	dTot := tot - c.prevTot
	first := c.prevTot == 0
	c.prevBusy, c.prevTot = busy, tot
	if first || dTot == 0 {
		return 0
	}
	return float64(dBusy) / float64(dTot) * 100.0
}
