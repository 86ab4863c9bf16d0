package gputest_test

import (
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"

	"github.com/vkngwrapper/twotriangles/gpu"
	"github.com/vkngwrapper/twotriangles/gpu/gputest"
)

func newDevice(c *qt.C) (*gputest.Instance, *gputest.Device) {
	inst := gputest.NewInstance()
	pds, err := inst.PhysicalDevices()
	c.Assert(err, qt.IsNil)
	c.Assert(pds, qt.HasLen, 1)
	d, err := inst.CreateDevice(pds[0], gpu.DeviceCreateInfo{})
	c.Assert(err, qt.IsNil)
	return inst, d.(*gputest.Device)
}

func TestFenceWaitBlocksUntilComplete(t *testing.T) {
	c := qt.New(t)
	_, d := newDevice(c)

	pool, err := d.CreateCommandPool(gpu.CommandPoolCreateInfo{ResetBuffers: true})
	c.Assert(err, qt.IsNil)
	buffers, err := d.AllocateCommandBuffers(pool, 1)
	c.Assert(err, qt.IsNil)
	fence, err := d.CreateFence(false)
	c.Assert(err, qt.IsNil)

	c.Assert(d.BeginCommandBuffer(buffers[0]), qt.IsNil)
	c.Assert(d.EndCommandBuffer(buffers[0]), qt.IsNil)

	d.Hold(true)
	c.Assert(d.QueueSubmit(gpu.SubmitInfo{CommandBuffers: buffers}, fence), qt.IsNil)
	c.Assert(d.Pending(), qt.Equals, 1)

	done := make(chan error, 1)
	go func() { done <- d.WaitForFences(fence) }()
	select {
	case <-done:
		c.Fatalf("wait returned before completion")
	case <-time.After(20 * time.Millisecond):
	}

	d.Complete()
	c.Assert(<-done, qt.IsNil)
	c.Assert(d.FenceSignaled(fence), qt.IsTrue)

	d.DestroyFence(fence)
	d.DestroyCommandPool(pool)
	d.Destroy()
	c.Assert(d.Violations(), qt.HasLen, 0)
}

func TestViolationsAreRecorded(t *testing.T) {
	c := qt.New(t)
	_, d := newDevice(c)

	pool, err := d.CreateCommandPool(gpu.CommandPoolCreateInfo{})
	c.Assert(err, qt.IsNil)
	buffers, err := d.AllocateCommandBuffers(pool, 1)
	c.Assert(err, qt.IsNil)
	fence, err := d.CreateFence(true)
	c.Assert(err, qt.IsNil)

	d.Hold(true)
	c.Assert(d.QueueSubmit(gpu.SubmitInfo{CommandBuffers: buffers}, fence), qt.IsNil)
	c.Assert(d.ResetCommandBuffer(buffers[0]), qt.IsNil)
	d.DestroyFence(fence)
	d.DestroyFence(fence)
	d.Destroy()

	c.Assert(d.Violations(), qt.DeepEquals, []string{
		"command pool created without individual buffer reset",
		"submit with signaled fence 3",
		"reset of pending command buffer 2",
		"destroy of fence 3 with pending work",
		"destroy of fence 3 with pending work",
		"destroy of unknown fence 3",
		"device destroyed with live objects: [command buffer command pool]",
	})
}

func TestLostDeviceFailsQueueWork(t *testing.T) {
	c := qt.New(t)
	_, d := newDevice(c)

	fence, err := d.CreateFence(false)
	c.Assert(err, qt.IsNil)
	d.Lose()

	c.Assert(errors.Is(d.WaitForFences(fence), gpu.ErrDeviceLost), qt.IsTrue)
	c.Assert(errors.Is(d.QueueSubmit(gpu.SubmitInfo{}, fence), gpu.ErrDeviceLost), qt.IsTrue)
	c.Assert(errors.Is(d.WaitIdle(), gpu.ErrDeviceLost), qt.IsTrue)
}

func TestFailNextAffectsOneCreation(t *testing.T) {
	c := qt.New(t)
	_, d := newDevice(c)

	boom := errors.New("boom")
	d.FailNext(gputest.KindSemaphore, boom)
	_, err := d.CreateSemaphore()
	c.Assert(err, qt.Equals, boom)

	s, err := d.CreateSemaphore()
	c.Assert(err, qt.IsNil)
	c.Assert(d.IsLive(gputest.KindSemaphore, uint64(s)), qt.IsTrue)
	d.DestroySemaphore(s)
	d.Destroy()
	c.Assert(d.Violations(), qt.HasLen, 0)
}

func TestWindowResizeUpdatesSurfaceExtent(t *testing.T) {
	c := qt.New(t)
	inst := gputest.NewInstance()
	win := gputest.NewWindow(10, 20)

	surface, err := win.CreateSurface(inst)
	c.Assert(err, qt.IsNil)
	pds, err := inst.PhysicalDevices()
	c.Assert(err, qt.IsNil)

	caps, err := inst.SurfaceCapabilities(pds[0], surface)
	c.Assert(err, qt.IsNil)
	c.Assert(caps.CurrentExtent.Width, qt.Equals, 10)

	win.Resize(30, 40)
	caps, err = inst.SurfaceCapabilities(pds[0], surface)
	c.Assert(err, qt.IsNil)
	c.Assert(caps.CurrentExtent.Height, qt.Equals, 40)

	inst.DestroySurface(surface)
	inst.Destroy()
	c.Assert(inst.Violations(), qt.HasLen, 0)
}
