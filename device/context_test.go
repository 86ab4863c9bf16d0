package device_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/twotriangles/device"
	"github.com/vkngwrapper/twotriangles/gpu"
	"github.com/vkngwrapper/twotriangles/gpu/gputest"
)

func computeOnly() gputest.Adapter {
	a := gputest.DefaultAdapter()
	a.Name = "compute only"
	a.QueueFamilies = []gpu.QueueFamily{{QueueCount: 2, Flags: core1_0.QueueCompute}}
	return a
}

func TestNewPicksFirstAdapterThatCanPresent(t *testing.T) {
	c := qt.New(t)
	log, hook := test.NewNullLogger()

	inst := gputest.NewInstance(computeOnly(), gputest.DefaultAdapter())
	win := gputest.NewWindow(640, 480)
	ctx, err := device.New(inst, win, device.Config{
		DeviceExtensions: []string{"VK_KHR_swapchain"},
		Log:              log,
	})
	c.Assert(err, qt.IsNil)

	c.Assert(ctx.PhysicalDevice(), qt.Equals, gpu.PhysicalDevice(2))
	c.Assert(ctx.Adapter().Name, qt.Equals, "fake adapter")
	c.Assert(ctx.QueueFamily(), qt.Equals, 0)
	c.Assert(win.Surfaces, qt.Equals, 1)

	devices := inst.Devices()
	c.Assert(devices, qt.HasLen, 1)
	c.Assert(devices[0].Info(), qt.DeepEquals, gpu.DeviceCreateInfo{
		QueueFamilyIndex: 0,
		Extensions:       []string{"VK_KHR_swapchain"},
	})
	c.Assert(devices[0].Live(gputest.KindCommandPool), qt.Equals, 1)

	entry := hook.LastEntry()
	c.Assert(entry, qt.Not(qt.IsNil))
	c.Assert(entry.Message, qt.Equals, "device ready")
	c.Assert(entry.Level, qt.Equals, logrus.InfoLevel)

	idle, err := ctx.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(ctx.Close(idle), qt.IsNil)
	c.Assert(devices[0].Violations(), qt.HasLen, 0)
}

func TestNewSkipsEmptyQueueFamilies(t *testing.T) {
	c := qt.New(t)
	log, _ := test.NewNullLogger()

	a := gputest.DefaultAdapter()
	a.QueueFamilies = []gpu.QueueFamily{
		{QueueCount: 0, Flags: core1_0.QueueGraphics},
		{QueueCount: 1, Flags: core1_0.QueueGraphics | core1_0.QueueTransfer},
	}
	inst := gputest.NewInstance(a)
	ctx, err := device.New(inst, gputest.NewWindow(64, 64), device.Config{Log: log})
	c.Assert(err, qt.IsNil)
	c.Assert(ctx.QueueFamily(), qt.Equals, 1)

	idle, err := ctx.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(ctx.Close(idle), qt.IsNil)
}

func TestNewUnsatisfiable(t *testing.T) {
	split := gputest.DefaultAdapter()
	split.QueueFamilies = []gpu.QueueFamily{
		{QueueCount: 1, Flags: core1_0.QueueGraphics},
		{QueueCount: 1, Flags: core1_0.QueueCompute},
	}
	split.PresentFamilies = []int{1}

	noPresent := gputest.DefaultAdapter()
	noPresent.PresentFamilies = []int{}

	tests := []struct {
		name     string
		adapters []gputest.Adapter
		message  string
	}{{
		name:     "graphics and present families differ",
		adapters: []gputest.Adapter{split},
		message:  "adapter 0: graphics queue family 0 differs from present family 1",
	}, {
		name:     "no graphics family",
		adapters: []gputest.Adapter{computeOnly()},
		message:  "no adapter has a graphics queue that can present to the surface",
	}, {
		name:     "no family can present",
		adapters: []gputest.Adapter{noPresent},
		message:  "no adapter has a graphics queue that can present to the surface",
	}}

	for _, tt := range tests {
		tt := tt
		qt.New(t).Run(tt.name, func(c *qt.C) {
			log := logrus.New()
			log.SetLevel(logrus.PanicLevel)

			inst := gputest.NewInstance(tt.adapters...)
			_, err := device.New(inst, gputest.NewWindow(64, 64), device.Config{Log: log})
			c.Assert(errors.Is(err, gpu.ErrUnsatisfiable), qt.IsTrue)
			c.Assert(err, qt.ErrorMatches, tt.message)

			// The instance and surface are released on failure.
			c.Assert(inst.Devices(), qt.HasLen, 0)
			c.Assert(inst.LiveSurfaces(), qt.Equals, 0)
			c.Assert(inst.Destroyed(), qt.IsTrue)
			c.Assert(inst.Violations(), qt.HasLen, 0)
		})
	}
}

func TestMemoryTypeIndex(t *testing.T) {
	c := qt.New(t)
	log, _ := test.NewNullLogger()
	inst := gputest.NewInstance()
	ctx, err := device.New(inst, gputest.NewWindow(64, 64), device.Config{Log: log})
	c.Assert(err, qt.IsNil)

	idx, err := ctx.MemoryTypeIndex(0b11, core1_0.MemoryPropertyHostVisible)
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, 1)

	idx, err = ctx.MemoryTypeIndex(0b11, core1_0.MemoryPropertyDeviceLocal)
	c.Assert(err, qt.IsNil)
	c.Assert(idx, qt.Equals, 0)

	_, err = ctx.MemoryTypeIndex(0b10, core1_0.MemoryPropertyDeviceLocal)
	c.Assert(errors.Is(err, gpu.ErrUnsatisfiable), qt.IsTrue)

	idle, err := ctx.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(ctx.Close(idle), qt.IsNil)
}

func TestSurfaceQueriesFollowTheWindow(t *testing.T) {
	c := qt.New(t)
	log, _ := test.NewNullLogger()
	inst := gputest.NewInstance()
	win := gputest.NewWindow(640, 480)
	ctx, err := device.New(inst, win, device.Config{Log: log})
	c.Assert(err, qt.IsNil)

	caps, err := ctx.SurfaceCapabilities()
	c.Assert(err, qt.IsNil)
	c.Assert(caps.CurrentExtent, qt.Equals, core1_0.Extent2D{Width: 640, Height: 480})

	win.Resize(320, 200)
	caps, err = ctx.SurfaceCapabilities()
	c.Assert(err, qt.IsNil)
	c.Assert(caps.CurrentExtent, qt.Equals, core1_0.Extent2D{Width: 320, Height: 200})

	idle, err := ctx.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(ctx.Close(idle), qt.IsNil)
}

func TestCloseRequiresFreshIdleToken(t *testing.T) {
	c := qt.New(t)
	log, _ := test.NewNullLogger()
	inst := gputest.NewInstance()
	ctx, err := device.New(inst, gputest.NewWindow(64, 64), device.Config{Log: log})
	c.Assert(err, qt.IsNil)
	dev := inst.Devices()[0]

	stale, err := ctx.WaitIdle()
	c.Assert(err, qt.IsNil)

	fence, err := dev.CreateFence(false)
	c.Assert(err, qt.IsNil)
	c.Assert(ctx.Submit(gpu.SubmitInfo{}, fence), qt.IsNil)
	c.Assert(dev.FenceSignaled(fence), qt.IsTrue)

	c.Assert(errors.Is(ctx.Close(stale), device.ErrNotIdle), qt.IsTrue)
	c.Assert(dev.Destroyed(), qt.IsFalse)

	dev.DestroyFence(fence)
	idle, err := ctx.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(ctx.Close(idle), qt.IsNil)

	// Pool, then device, then surface, then instance.
	calls := dev.Calls()
	c.Assert(calls[len(calls)-2].Op, qt.Equals, "Destroy "+gputest.KindCommandPool)
	c.Assert(calls[len(calls)-1].Op, qt.Equals, "DestroyDevice")
	c.Assert(inst.LiveSurfaces(), qt.Equals, 0)
	c.Assert(inst.Destroyed(), qt.IsTrue)
	c.Assert(inst.Violations(), qt.HasLen, 0)
	c.Assert(dev.Violations(), qt.HasLen, 0)
}

func TestIdleTokenBelongsToItsContext(t *testing.T) {
	c := qt.New(t)
	log, _ := test.NewNullLogger()

	a, err := device.New(gputest.NewInstance(), gputest.NewWindow(64, 64), device.Config{Log: log})
	c.Assert(err, qt.IsNil)
	b, err := device.New(gputest.NewInstance(), gputest.NewWindow(64, 64), device.Config{Log: log})
	c.Assert(err, qt.IsNil)

	idleA, err := a.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(errors.Is(b.CheckIdle(idleA), device.ErrNotIdle), qt.IsTrue)
	c.Assert(errors.Is(b.CheckIdle(device.Idle{}), device.ErrNotIdle), qt.IsTrue)

	idleB, err := b.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(a.Close(idleA), qt.IsNil)
	c.Assert(b.Close(idleB), qt.IsNil)
}
