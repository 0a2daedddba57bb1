//go:build !nogpu

package gpu

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	// Import the Vulkan backend so it registers itself via init().
	_ "github.com/gogpu/wgpu/hal/vulkan"

	"github.com/ath92/splat-renderer/internal/splat"
)

// BackendGPU is the identifier for the GPU backend.
const BackendGPU = "gpu"

// Backend owns the hal.Instance/Device/Queue for one rasterisation
// session. It supports a single SplatDispatcher at a time; the device and
// queue are shared across frames (spec.md §5: "no state retained across
// frames except sized allocations").
type Backend struct {
	mu sync.RWMutex

	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	gpuInfo *GPUInfo

	initialized bool
}

// GPUInfo describes the selected GPU adapter.
type GPUInfo struct {
	Name       string
	DeviceType gputypes.DeviceType
}

// String returns a human-readable description of the GPU.
func (g *GPUInfo) String() string {
	return fmt.Sprintf("%s (%s)", g.Name, g.DeviceType)
}

// NewBackend creates a new GPU backend. The backend must be initialized
// with Init() before use.
func NewBackend() *Backend {
	return &Backend{}
}

// Name returns the backend identifier.
func (b *Backend) Name() string { return BackendGPU }

// Init creates the instance, selects a discrete or integrated adapter,
// opens a device, and retrieves its queue.
func (b *Backend) Init() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.initialized {
		return nil
	}

	halBackend, ok := hal.GetBackend(gputypes.BackendVulkan)
	if !ok {
		return fmt.Errorf("splat/gpu: vulkan backend not available")
	}

	instance, err := halBackend.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	if err != nil {
		return fmt.Errorf("splat/gpu: create instance: %w", err)
	}
	b.instance = instance

	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		b.instance = nil
		return fmt.Errorf("splat/gpu: no GPU adapters found")
	}

	selected := &adapters[0]
	for i := range adapters {
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU {
			selected = &adapters[i]
			break
		}
		if adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
			selected = &adapters[i]
		}
	}

	openDev, err := selected.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		b.instance = nil
		return fmt.Errorf("splat/gpu: open device: %w", err)
	}
	b.device = openDev.Device
	b.queue = openDev.Queue
	b.gpuInfo = &GPUInfo{
		Name:       selected.Info.Name,
		DeviceType: selected.Info.DeviceType,
	}

	b.initialized = true
	slogger().Info("backend initialized", "gpu", b.gpuInfo)
	return nil
}

// Close releases all backend resources. The backend must not be used
// after Close returns.
func (b *Backend) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.initialized {
		return
	}

	if b.device != nil {
		b.device.Destroy()
		b.device = nil
	}
	if b.instance != nil {
		b.instance.Destroy()
		b.instance = nil
	}

	b.queue = nil
	b.gpuInfo = nil
	b.initialized = false
	slogger().Info("backend closed")
}

// IsInitialized reports whether Init has completed successfully.
func (b *Backend) IsInitialized() bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.initialized
}

// GPUInfo returns information about the selected GPU, or nil if
// uninitialized.
func (b *Backend) GPUInfo() *GPUInfo {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.gpuInfo
}

// Device returns the hal device, or nil if uninitialized.
func (b *Backend) Device() hal.Device {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.device
}

// Queue returns the hal queue, or nil if uninitialized.
func (b *Backend) Queue() hal.Queue {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queue
}

// HalDevice implements the device-sharing interface that
// internal/present's halProvider consumes, so a single hal.Device can be
// reused across subsystems instead of opening a second one.
func (b *Backend) HalDevice() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.device
}

// HalQueue mirrors HalDevice for the queue half of the pair.
func (b *Backend) HalQueue() any {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.queue
}

func (b *Backend) checkInitialized() error {
	if !b.IsInitialized() {
		return splat.ErrNotInitialized
	}
	return nil
}
