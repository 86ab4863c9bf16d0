// Package gputest provides an in-memory implementation of the gpu device
// port. It tracks every live object, records queue and command activity in
// order, and lets tests control when submitted work completes.
package gputest

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/twotriangles/gpu"
)

// Adapter describes one fake physical device.
type Adapter struct {
	Name          string
	QueueFamilies []gpu.QueueFamily
	// PresentFamilies lists the families that can present to a surface.
	// nil means every family can.
	PresentFamilies []int
	MemoryTypes     []gpu.MemoryType
	Capabilities    khr_surface.SurfaceCapabilities
	Formats         []khr_surface.SurfaceFormat
	PresentModes    []khr_surface.PresentMode
}

// DefaultAdapter returns an adapter with a single graphics queue family
// that can present, a device-local and a host-visible memory type, the
// B8G8R8A8 sRGB-nonlinear format and mailbox presentation.
func DefaultAdapter() Adapter {
	return Adapter{
		Name: "fake adapter",
		QueueFamilies: []gpu.QueueFamily{
			{QueueCount: 1, Flags: core1_0.QueueGraphics},
		},
		MemoryTypes: []gpu.MemoryType{
			{Flags: core1_0.MemoryPropertyDeviceLocal},
			{Flags: core1_0.MemoryPropertyHostVisible | core1_0.MemoryPropertyHostCoherent},
		},
		Capabilities: khr_surface.SurfaceCapabilities{
			MinImageCount:  2,
			MaxImageCount:  3,
			CurrentExtent:  core1_0.Extent2D{Width: 800, Height: 600},
			MinImageExtent: core1_0.Extent2D{Width: 1, Height: 1},
			MaxImageExtent: core1_0.Extent2D{Width: 4096, Height: 4096},
		},
		Formats: []khr_surface.SurfaceFormat{
			{Format: core1_0.FormatB8G8R8A8SRGB, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
			{Format: core1_0.FormatB8G8R8A8UnsignedNormalized, ColorSpace: khr_surface.ColorSpaceSRGBNonlinear},
		},
		PresentModes: []khr_surface.PresentMode{
			khr_surface.PresentModeFIFO,
			khr_surface.PresentModeMailbox,
		},
	}
}

// Instance is a fake gpu.Instance.
type Instance struct {
	mu          sync.Mutex
	adapters    []Adapter
	surfaces    map[gpu.Surface]bool
	nextSurface gpu.Surface
	devices     []*Device
	destroyed   bool
	violations  []string
}

var _ gpu.Instance = (*Instance)(nil)

// NewInstance returns an instance exposing the given adapters, or a single
// DefaultAdapter if none are given.
func NewInstance(adapters ...Adapter) *Instance {
	if len(adapters) == 0 {
		adapters = []Adapter{DefaultAdapter()}
	}
	return &Instance{
		adapters: adapters,
		surfaces: map[gpu.Surface]bool{},
	}
}

// NewSurface creates a live surface handle.
func (i *Instance) NewSurface() gpu.Surface {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.nextSurface++
	i.surfaces[i.nextSurface] = true
	return i.nextSurface
}

// SetCapabilities replaces the surface capabilities reported for an adapter.
func (i *Instance) SetCapabilities(adapter int, caps khr_surface.SurfaceCapabilities) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.adapters[adapter].Capabilities = caps
}

// SetCurrentExtent changes the current extent every adapter reports, as a
// window resize would.
func (i *Instance) SetCurrentExtent(extent core1_0.Extent2D) {
	i.mu.Lock()
	defer i.mu.Unlock()
	for idx := range i.adapters {
		i.adapters[idx].Capabilities.CurrentExtent = extent
	}
}

// Devices returns the logical devices created so far.
func (i *Instance) Devices() []*Device {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]*Device(nil), i.devices...)
}

// LiveSurfaces returns the number of surfaces not yet destroyed.
func (i *Instance) LiveSurfaces() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.surfaces)
}

func (i *Instance) Destroyed() bool {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.destroyed
}

// Violations lists misuse detected by the instance.
func (i *Instance) Violations() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return append([]string(nil), i.violations...)
}

func (i *Instance) adapter(pd gpu.PhysicalDevice) (Adapter, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	idx := int(pd) - 1
	if idx < 0 || idx >= len(i.adapters) {
		return Adapter{}, errors.Errorf("unknown physical device %d", pd)
	}
	return i.adapters[idx], nil
}

func (i *Instance) PhysicalDevices() ([]gpu.PhysicalDevice, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	pds := make([]gpu.PhysicalDevice, len(i.adapters))
	for idx := range i.adapters {
		pds[idx] = gpu.PhysicalDevice(idx + 1)
	}
	return pds, nil
}

func (i *Instance) AdapterInfo(pd gpu.PhysicalDevice) (gpu.AdapterInfo, error) {
	a, err := i.adapter(pd)
	if err != nil {
		return gpu.AdapterInfo{}, err
	}
	return gpu.AdapterInfo{Name: a.Name}, nil
}

func (i *Instance) QueueFamilies(pd gpu.PhysicalDevice) ([]gpu.QueueFamily, error) {
	a, err := i.adapter(pd)
	if err != nil {
		return nil, err
	}
	return append([]gpu.QueueFamily(nil), a.QueueFamilies...), nil
}

func (i *Instance) MemoryTypes(pd gpu.PhysicalDevice) ([]gpu.MemoryType, error) {
	a, err := i.adapter(pd)
	if err != nil {
		return nil, err
	}
	return append([]gpu.MemoryType(nil), a.MemoryTypes...), nil
}

func (i *Instance) checkSurface(surface gpu.Surface) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.surfaces[surface] {
		return errors.Errorf("unknown surface %d", surface)
	}
	return nil
}

func (i *Instance) SurfaceSupport(pd gpu.PhysicalDevice, surface gpu.Surface, family int) (bool, error) {
	a, err := i.adapter(pd)
	if err != nil {
		return false, err
	}
	if err := i.checkSurface(surface); err != nil {
		return false, err
	}
	if a.PresentFamilies == nil {
		return true, nil
	}
	for _, f := range a.PresentFamilies {
		if f == family {
			return true, nil
		}
	}
	return false, nil
}

func (i *Instance) SurfaceCapabilities(pd gpu.PhysicalDevice, surface gpu.Surface) (khr_surface.SurfaceCapabilities, error) {
	a, err := i.adapter(pd)
	if err != nil {
		return khr_surface.SurfaceCapabilities{}, err
	}
	if err := i.checkSurface(surface); err != nil {
		return khr_surface.SurfaceCapabilities{}, err
	}
	return a.Capabilities, nil
}

func (i *Instance) SurfaceFormats(pd gpu.PhysicalDevice, surface gpu.Surface) ([]khr_surface.SurfaceFormat, error) {
	a, err := i.adapter(pd)
	if err != nil {
		return nil, err
	}
	if err := i.checkSurface(surface); err != nil {
		return nil, err
	}
	return append([]khr_surface.SurfaceFormat(nil), a.Formats...), nil
}

func (i *Instance) PresentModes(pd gpu.PhysicalDevice, surface gpu.Surface) ([]khr_surface.PresentMode, error) {
	a, err := i.adapter(pd)
	if err != nil {
		return nil, err
	}
	if err := i.checkSurface(surface); err != nil {
		return nil, err
	}
	return append([]khr_surface.PresentMode(nil), a.PresentModes...), nil
}

func (i *Instance) DestroySurface(surface gpu.Surface) {
	if surface == 0 {
		return
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	if !i.surfaces[surface] {
		i.violations = append(i.violations, "destroy of unknown surface")
		return
	}
	for _, d := range i.devices {
		if !d.Destroyed() {
			i.violations = append(i.violations, "surface destroyed before its device")
		}
	}
	delete(i.surfaces, surface)
}

func (i *Instance) CreateDevice(pd gpu.PhysicalDevice, info gpu.DeviceCreateInfo) (gpu.Device, error) {
	a, err := i.adapter(pd)
	if err != nil {
		return nil, err
	}
	if info.QueueFamilyIndex < 0 || info.QueueFamilyIndex >= len(a.QueueFamilies) {
		return nil, errors.Errorf("queue family %d out of range", info.QueueFamilyIndex)
	}

	d := newDevice(i, pd, a, info)

	i.mu.Lock()
	i.devices = append(i.devices, d)
	i.mu.Unlock()

	return d, nil
}

func (i *Instance) Destroy() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.destroyed {
		i.violations = append(i.violations, "instance destroyed twice")
	}
	if len(i.surfaces) > 0 {
		i.violations = append(i.violations, "instance destroyed with live surfaces")
	}
	for _, d := range i.devices {
		if !d.Destroyed() {
			i.violations = append(i.violations, "instance destroyed with a live device")
		}
	}
	i.destroyed = true
}
