package sysstats

import (
	"github.com/NVIDIA/go-nvml/pkg/nvml"
)

// gpuProbe holds an initialized NVML handle for device 0. Hosts without an
// NVIDIA driver simply never get one.
type gpuProbe struct {
	dev  nvml.Device
	name string
}

func initGPU() *gpuProbe {
	if ret := nvml.Init(); ret != nvml.SUCCESS {
		return nil
	}
	count, ret := nvml.DeviceGetCount()
	if ret != nvml.SUCCESS || count == 0 {
		nvml.Shutdown()
		return nil
	}
	dev, ret := nvml.DeviceGetHandleByIndex(0)
	if ret != nvml.SUCCESS {
		nvml.Shutdown()
		return nil
	}
	name, ret := dev.GetName()
	if ret != nvml.SUCCESS {
		name = "NVIDIA GPU"
	}
	return &gpuProbe{dev: dev, name: name}
}

func (g *gpuProbe) vramPercent() (float64, bool) {
	mem, ret := g.dev.GetMemoryInfo()
	if ret != nvml.SUCCESS || mem.Total == 0 {
		return 0, false
	}
	return float64(mem.Used) / float64(mem.Total) * 100.0, true
}

func (g *gpuProbe) shutdown() {
	nvml.Shutdown()
}
