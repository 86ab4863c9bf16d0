// Package vkng implements the gpu device port on a real Vulkan driver
// through vkngwrapper.
package vkng

import (
	"math"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/ext_debug_utils"
	"github.com/vkngwrapper/extensions/v3/khr_portability_enumeration"
	"github.com/vkngwrapper/extensions/v3/khr_portability_subset"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/twotriangles/gpu"
)

const validationLayer = "VK_LAYER_KHRONOS_validation"

type InstanceConfig struct {
	AppName string
	// Extensions are the instance extensions the window system requires.
	Extensions []string
	// Validation enables the Khronos validation layer and a debug
	// messenger that forwards its reports to Log.
	Validation bool
	Log        logrus.FieldLogger
}

// SurfaceFunc creates a presentation surface for a window system.
type SurfaceFunc func(instance core1_0.Instance, ext khr_surface.ExtensionDriver) (khr_surface.Surface, error)

type Instance struct {
	log    logrus.FieldLogger
	driver core1_0.CoreInstanceDriver

	debug     ext_debug_utils.ExtensionDriver
	messenger ext_debug_utils.DebugUtilsMessenger
	surfaces  khr_surface.ExtensionDriver

	physical     table[core1_0.PhysicalDevice]
	enumerated   []gpu.PhysicalDevice
	surfaceTable table[khr_surface.Surface]
}

var _ gpu.Instance = (*Instance)(nil)

// NewInstance loads the Vulkan loader through procAddr, which is a
// vkGetInstanceProcAddr pointer, and creates an instance with the window
// system extensions enabled.
func NewInstance(procAddr unsafe.Pointer, cfg InstanceConfig) (*Instance, error) {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	i := &Instance{log: log.WithField("component", "vulkan")}

	global, err := core.CreateDriverFromProcAddr(procAddr)
	if err != nil {
		return nil, errors.Wrap(err, "load vulkan")
	}

	info := core1_0.InstanceCreateInfo{
		ApplicationName:    cfg.AppName,
		ApplicationVersion: common.CreateVersion(1, 0, 0),
		EngineName:         "twotriangles",
		EngineVersion:      common.CreateVersion(1, 0, 0),
		APIVersion:         common.Vulkan1_2,
	}

	available, _, err := global.AvailableExtensions()
	if err != nil {
		return nil, errors.Wrap(err, "list instance extensions")
	}
	for _, ext := range cfg.Extensions {
		if _, ok := available[ext]; !ok {
			return nil, gpu.Unsatisfiable("instance extension %s is not available", ext)
		}
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext)
	}
	if _, ok := available[khr_portability_enumeration.ExtensionName]; ok {
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, khr_portability_enumeration.ExtensionName)
		info.Flags |= khr_portability_enumeration.InstanceCreateEnumeratePortability
	}

	if cfg.Validation {
		layers, _, err := global.AvailableLayers()
		if err != nil {
			return nil, errors.Wrap(err, "list instance layers")
		}
		if _, ok := layers[validationLayer]; !ok {
			return nil, gpu.Unsatisfiable("layer %s is not available; install the Vulkan SDK", validationLayer)
		}
		info.EnabledLayerNames = append(info.EnabledLayerNames, validationLayer)
		info.EnabledExtensionNames = append(info.EnabledExtensionNames, ext_debug_utils.ExtensionName)
		// Chained so instance creation itself is covered.
		info.Next = i.messengerInfo()
	}

	i.driver, _, err = global.CreateInstance(nil, info)
	if err != nil {
		return nil, gpu.Creation(err, "instance")
	}

	if cfg.Validation {
		i.debug = ext_debug_utils.CreateExtensionDriverFromCoreDriver(i.driver)
		i.messenger, _, err = i.debug.CreateDebugUtilsMessenger(nil, i.messengerInfo())
		if err != nil {
			i.driver.DestroyInstance(nil)
			return nil, gpu.Creation(err, "debug messenger")
		}
	}
	i.surfaces = khr_surface.CreateExtensionDriverFromCoreDriver(i.driver)

	i.log.WithFields(logrus.Fields{
		"extensions": info.EnabledExtensionNames,
		"layers":     info.EnabledLayerNames,
	}).Debug("instance created")
	return i, nil
}

func (i *Instance) messengerInfo() ext_debug_utils.DebugUtilsMessengerCreateInfo {
	return ext_debug_utils.DebugUtilsMessengerCreateInfo{
		MessageSeverity: ext_debug_utils.SeverityError | ext_debug_utils.SeverityWarning,
		MessageType:     ext_debug_utils.TypeGeneral | ext_debug_utils.TypeValidation | ext_debug_utils.TypePerformance,
		UserCallback:    i.logDebug,
	}
}

func (i *Instance) logDebug(msgType ext_debug_utils.DebugUtilsMessageTypeFlags, severity ext_debug_utils.DebugUtilsMessageSeverityFlags, data *ext_debug_utils.DebugUtilsMessengerCallbackData) bool {
	entry := i.log.WithField("type", msgType.String())
	if severity&ext_debug_utils.SeverityError != 0 {
		entry.Error(data.Message)
	} else {
		entry.Warn(data.Message)
	}
	return false
}

// AttachSurface creates a surface with create and registers it with the
// instance. The instance destroys it in DestroySurface.
func (i *Instance) AttachSurface(create SurfaceFunc) (gpu.Surface, error) {
	s, err := create(i.driver.Instance(), i.surfaces)
	if err != nil {
		return 0, err
	}
	return gpu.Surface(i.surfaceTable.add(s)), nil
}

func (i *Instance) surface(s gpu.Surface) (khr_surface.Surface, error) {
	v, ok := i.surfaceTable.get(uint64(s))
	if !ok {
		return v, errors.Errorf("unknown surface %d", s)
	}
	return v, nil
}

func (i *Instance) device(pd gpu.PhysicalDevice) (core1_0.PhysicalDevice, error) {
	v, ok := i.physical.get(uint64(pd))
	if !ok {
		return v, errors.Errorf("unknown physical device %d", pd)
	}
	return v, nil
}

// PhysicalDevices enumerates once; later calls return the same handles.
func (i *Instance) PhysicalDevices() ([]gpu.PhysicalDevice, error) {
	if i.enumerated != nil {
		return i.enumerated, nil
	}
	devices, _, err := i.driver.EnumeratePhysicalDevices()
	if err != nil {
		return nil, errors.Wrap(err, "enumerate physical devices")
	}
	i.enumerated = make([]gpu.PhysicalDevice, 0, len(devices))
	for _, d := range devices {
		i.enumerated = append(i.enumerated, gpu.PhysicalDevice(i.physical.add(d)))
	}
	return i.enumerated, nil
}

func (i *Instance) AdapterInfo(pd gpu.PhysicalDevice) (gpu.AdapterInfo, error) {
	d, err := i.device(pd)
	if err != nil {
		return gpu.AdapterInfo{}, err
	}
	props, err := i.driver.GetPhysicalDeviceProperties(d)
	if err != nil {
		return gpu.AdapterInfo{}, errors.Wrap(err, "physical device properties")
	}
	return gpu.AdapterInfo{Name: props.DriverName}, nil
}

func (i *Instance) QueueFamilies(pd gpu.PhysicalDevice) ([]gpu.QueueFamily, error) {
	d, err := i.device(pd)
	if err != nil {
		return nil, err
	}
	var out []gpu.QueueFamily
	for _, f := range i.driver.GetPhysicalDeviceQueueFamilyProperties(d) {
		out = append(out, gpu.QueueFamily{QueueCount: f.QueueCount, Flags: f.QueueFlags})
	}
	return out, nil
}

func (i *Instance) MemoryTypes(pd gpu.PhysicalDevice) ([]gpu.MemoryType, error) {
	d, err := i.device(pd)
	if err != nil {
		return nil, err
	}
	var out []gpu.MemoryType
	for _, t := range i.driver.GetPhysicalDeviceMemoryProperties(d).MemoryTypes {
		out = append(out, gpu.MemoryType{Flags: t.PropertyFlags})
	}
	return out, nil
}

func (i *Instance) SurfaceSupport(pd gpu.PhysicalDevice, surface gpu.Surface, family int) (bool, error) {
	d, err := i.device(pd)
	if err != nil {
		return false, err
	}
	s, err := i.surface(surface)
	if err != nil {
		return false, err
	}
	ok, _, err := i.surfaces.GetPhysicalDeviceSurfaceSupport(s, d, family)
	return ok, errors.Wrap(err, "surface support")
}

// SurfaceCapabilities reports an undefined current extent as -1 by -1.
func (i *Instance) SurfaceCapabilities(pd gpu.PhysicalDevice, surface gpu.Surface) (khr_surface.SurfaceCapabilities, error) {
	d, err := i.device(pd)
	if err != nil {
		return khr_surface.SurfaceCapabilities{}, err
	}
	s, err := i.surface(surface)
	if err != nil {
		return khr_surface.SurfaceCapabilities{}, err
	}
	caps, res, err := i.surfaces.GetPhysicalDeviceSurfaceCapabilities(s, d)
	if err := check(res, err, "surface capabilities"); err != nil {
		return khr_surface.SurfaceCapabilities{}, err
	}
	out := *caps
	if uint32(out.CurrentExtent.Width) == math.MaxUint32 {
		out.CurrentExtent = core1_0.Extent2D{Width: -1, Height: -1}
	}
	return out, nil
}

func (i *Instance) SurfaceFormats(pd gpu.PhysicalDevice, surface gpu.Surface) ([]khr_surface.SurfaceFormat, error) {
	d, err := i.device(pd)
	if err != nil {
		return nil, err
	}
	s, err := i.surface(surface)
	if err != nil {
		return nil, err
	}
	formats, _, err := i.surfaces.GetPhysicalDeviceSurfaceFormats(s, d)
	return formats, errors.Wrap(err, "surface formats")
}

func (i *Instance) PresentModes(pd gpu.PhysicalDevice, surface gpu.Surface) ([]khr_surface.PresentMode, error) {
	d, err := i.device(pd)
	if err != nil {
		return nil, err
	}
	s, err := i.surface(surface)
	if err != nil {
		return nil, err
	}
	modes, _, err := i.surfaces.GetPhysicalDeviceSurfacePresentModes(s, d)
	return modes, errors.Wrap(err, "surface present modes")
}

func (i *Instance) DestroySurface(surface gpu.Surface) {
	if s, ok := i.surfaceTable.remove(uint64(surface)); ok {
		i.surfaces.DestroySurface(s, nil)
	}
}

// CreateDevice creates a logical device with one queue from
// info.QueueFamilyIndex. The swapchain extension is always enabled, and
// the portability subset whenever the adapter offers it.
func (i *Instance) CreateDevice(pd gpu.PhysicalDevice, info gpu.DeviceCreateInfo) (gpu.Device, error) {
	d, err := i.device(pd)
	if err != nil {
		return nil, err
	}
	available, _, err := i.driver.EnumerateDeviceExtensionProperties(d)
	if err != nil {
		return nil, errors.Wrap(err, "list device extensions")
	}

	names := []string{khr_swapchain.ExtensionName}
	names = append(names, info.Extensions...)
	for _, name := range names {
		if _, ok := available[name]; !ok {
			return nil, gpu.Unsatisfiable("device extension %s is not available", name)
		}
	}
	if _, ok := available[khr_portability_subset.ExtensionName]; ok {
		names = append(names, khr_portability_subset.ExtensionName)
	}

	driver, _, err := i.driver.CreateDevice(d, nil, core1_0.DeviceCreateInfo{
		QueueCreateInfos: []core1_0.DeviceQueueCreateInfo{{
			QueueFamilyIndex: info.QueueFamilyIndex,
			QueuePriorities:  []float32{1},
		}},
		EnabledExtensionNames: names,
	})
	if err != nil {
		return nil, err
	}
	return newDevice(i, pd, driver, khr_swapchain.CreateExtensionDriverFromCoreDriver(driver), info.QueueFamilyIndex), nil
}

// Destroy releases the debug messenger and the instance. Surfaces still
// registered are destroyed first.
func (i *Instance) Destroy() {
	for _, s := range i.surfaceTable.removeIf(func(khr_surface.Surface) bool { return true }) {
		i.surfaces.DestroySurface(s, nil)
	}
	if i.messenger.Initialized() {
		i.debug.DestroyDebugUtilsMessenger(i.messenger, nil)
	}
	i.driver.DestroyInstance(nil)
}
