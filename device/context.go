// Package device owns the long-lived GPU objects of the renderer: the
// instance, the window surface, the chosen adapter, the logical device, its
// graphics queue and the command pool.
package device

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"golang.org/x/sync/errgroup"

	"github.com/vkngwrapper/twotriangles/gpu"
)

// ErrNotIdle is returned by teardown methods given an Idle token that was
// taken before the most recent queue work.
var ErrNotIdle = errors.New("device not idle")

// Window is the collaborator the renderer draws into.
type Window interface {
	// Extent is the current drawable size in pixels.
	Extent() core1_0.Extent2D
	CreateSurface(instance gpu.Instance) (gpu.Surface, error)
}

// Config is fixed at construction.
type Config struct {
	// DeviceExtensions are enabled in addition to the swapchain extension.
	DeviceExtensions []string
	Log              logrus.FieldLogger
}

// Idle proves the device finished all queue work issued before it was
// taken. Obtain one from Context.WaitIdle.
type Idle struct {
	ctx   *Context
	epoch uint64
}

type Context struct {
	log logrus.FieldLogger

	instance gpu.Instance
	surface  gpu.Surface
	physical gpu.PhysicalDevice
	adapter  gpu.AdapterInfo
	family   int
	memory   []gpu.MemoryType

	device gpu.Device
	queue  gpu.Queue
	pool   gpu.CommandPool

	mu     sync.Mutex
	epoch  uint64
	closed bool
}

type candidate struct {
	graphics int
	present  int
}

// New creates the surface for win, picks the first adapter whose graphics
// queue family can present to it, and creates the logical device and a
// command pool whose buffers can be reset individually.
//
// The Context takes ownership of instance and destroys it in Close.
func New(instance gpu.Instance, win Window, cfg Config) (_ *Context, err error) {
	log := cfg.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := &Context{
		log:      log.WithField("component", "device"),
		instance: instance,
	}
	defer func() {
		if err != nil {
			c.release()
		}
	}()

	c.surface, err = win.CreateSurface(instance)
	if err != nil {
		return nil, gpu.Creation(err, "surface")
	}

	if err = c.pickPhysicalDevice(); err != nil {
		return nil, err
	}

	c.memory, err = instance.MemoryTypes(c.physical)
	if err != nil {
		return nil, errors.Wrap(err, "query memory types")
	}

	c.device, err = instance.CreateDevice(c.physical, gpu.DeviceCreateInfo{
		QueueFamilyIndex: c.family,
		Extensions:       append([]string(nil), cfg.DeviceExtensions...),
	})
	if err != nil {
		return nil, gpu.Creation(err, "logical device")
	}
	c.queue = c.device.Queue()

	c.pool, err = c.device.CreateCommandPool(gpu.CommandPoolCreateInfo{
		QueueFamilyIndex: c.family,
		ResetBuffers:     true,
	})
	if err != nil {
		return nil, gpu.Creation(err, "command pool")
	}

	c.log.WithFields(logrus.Fields{
		"adapter":      c.adapter.Name,
		"queue_family": c.family,
	}).Info("device ready")
	return c, nil
}

func (c *Context) pickPhysicalDevice() error {
	devices, err := c.instance.PhysicalDevices()
	if err != nil {
		return errors.Wrap(err, "enumerate adapters")
	}
	if len(devices) == 0 {
		return gpu.Unsatisfiable("no adapters available")
	}

	// Queries are read-only so adapters are examined in parallel; the pick
	// below is still made in enumeration order.
	candidates := make([]candidate, len(devices))
	var g errgroup.Group
	for i, pd := range devices {
		i, pd := i, pd
		g.Go(func() error {
			cand, err := c.examine(pd)
			if err != nil {
				return errors.Wrapf(err, "examine adapter %d", i)
			}
			candidates[i] = cand
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	for i, cand := range candidates {
		if cand.graphics < 0 || cand.present < 0 {
			continue
		}
		if cand.graphics != cand.present {
			return gpu.Unsatisfiable("adapter %d: graphics queue family %d differs from present family %d",
				i, cand.graphics, cand.present)
		}

		c.physical = devices[i]
		c.family = cand.graphics
		c.adapter, err = c.instance.AdapterInfo(devices[i])
		if err != nil {
			return errors.Wrapf(err, "query adapter %d", i)
		}
		return nil
	}

	return gpu.Unsatisfiable("no adapter has a graphics queue that can present to the surface")
}

func (c *Context) examine(pd gpu.PhysicalDevice) (candidate, error) {
	cand := candidate{graphics: -1, present: -1}

	families, err := c.instance.QueueFamilies(pd)
	if err != nil {
		return cand, err
	}

	for idx, family := range families {
		if family.QueueCount == 0 {
			continue
		}
		if cand.graphics < 0 && family.Flags&core1_0.QueueGraphics != 0 {
			cand.graphics = idx
		}
		if cand.present < 0 {
			supported, err := c.instance.SurfaceSupport(pd, c.surface, idx)
			if err != nil {
				return cand, err
			}
			if supported {
				cand.present = idx
			}
		}
	}
	return cand, nil
}

func (c *Context) Log() logrus.FieldLogger { return c.log }
func (c *Context) Device() gpu.Device { return c.device }
func (c *Context) Instance() gpu.Instance { return c.instance }
func (c *Context) Surface() gpu.Surface { return c.surface }
func (c *Context) PhysicalDevice() gpu.PhysicalDevice { return c.physical }
func (c *Context) Adapter() gpu.AdapterInfo { return c.adapter }
func (c *Context) QueueFamily() int { return c.family }
func (c *Context) CommandPool() gpu.CommandPool { return c.pool }

// SurfaceCapabilities queries the surface's current capabilities. They
// change with the window, so they are never cached.
func (c *Context) SurfaceCapabilities() (khr_surface.SurfaceCapabilities, error) {
	return c.instance.SurfaceCapabilities(c.physical, c.surface)
}

func (c *Context) SurfaceFormats() ([]khr_surface.SurfaceFormat, error) {
	return c.instance.SurfaceFormats(c.physical, c.surface)
}

func (c *Context) PresentModes() ([]khr_surface.PresentMode, error) {
	return c.instance.PresentModes(c.physical, c.surface)
}

// MemoryTypeIndex returns the first memory type allowed by typeBits whose
// flags include all of properties.
func (c *Context) MemoryTypeIndex(typeBits uint32, properties core1_0.MemoryPropertyFlags) (int, error) {
	for i, t := range c.memory {
		if typeBits&(1<<uint(i)) != 0 && t.Flags&properties == properties {
			return i, nil
		}
	}
	return -1, gpu.Unsatisfiable("no memory type matches bits %b with flags %v", typeBits, properties)
}

func (c *Context) bump() {
	c.mu.Lock()
	c.epoch++
	c.mu.Unlock()
}

// Submit queues a batch on the graphics queue.
func (c *Context) Submit(info gpu.SubmitInfo, fence gpu.Fence) error {
	c.bump()
	return c.device.QueueSubmit(info, fence)
}

// Acquire requests the next presentable image, signaling semaphore when it
// is ready.
func (c *Context) Acquire(swapchain gpu.Swapchain, semaphore gpu.Semaphore) (int, bool, error) {
	c.bump()
	return c.device.AcquireNextImage(swapchain, semaphore)
}

// Present queues image index of swapchain for display once wait is signaled.
func (c *Context) Present(swapchain gpu.Swapchain, index int, wait gpu.Semaphore) (bool, error) {
	c.bump()
	return c.device.QueuePresent(gpu.PresentInfo{
		Swapchain:      swapchain,
		ImageIndex:     index,
		WaitSemaphores: []gpu.Semaphore{wait},
	})
}

// WaitIdle blocks until the device finished all queue work and returns a
// token proving it.
func (c *Context) WaitIdle() (Idle, error) {
	c.mu.Lock()
	epoch := c.epoch
	c.mu.Unlock()

	if err := c.device.WaitIdle(); err != nil {
		return Idle{}, errors.Wrap(err, "wait for device idle")
	}
	return Idle{ctx: c, epoch: epoch}, nil
}

// CheckIdle fails with ErrNotIdle if queue work was issued after idle was
// taken, or if idle belongs to another Context.
func (c *Context) CheckIdle(idle Idle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if idle.ctx != c || idle.epoch != c.epoch {
		return errors.WithStack(ErrNotIdle)
	}
	return nil
}

// Close destroys the command pool, the device, the surface and the
// instance, in that order. Every object created from the device must have
// been destroyed already.
func (c *Context) Close(idle Idle) error {
	if err := c.CheckIdle(idle); err != nil {
		return err
	}
	c.release()
	c.log.Info("device closed")
	return nil
}

func (c *Context) release() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	if c.device != nil {
		c.device.DestroyCommandPool(c.pool)
		c.device.Destroy()
	}
	if c.instance != nil {
		c.instance.DestroySurface(c.surface)
		c.instance.Destroy()
	}
}
