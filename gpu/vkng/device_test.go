package vkng

import (
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/core/v3/mocks"
	"github.com/vkngwrapper/core/v3/mocks/mocks1_0"
	"go.uber.org/mock/gomock"

	"github.com/vkngwrapper/twotriangles/gpu"
)

type driverFixture struct {
	driver *mocks1_0.MockCoreDeviceDriver
	device core1_0.Device
	queue  core1_0.Queue
	dev    *Device
	hook   *test.Hook
}

func newDriverFixture(t *testing.T) *driverFixture {
	ctrl := gomock.NewController(t)
	f := &driverFixture{
		driver: mocks1_0.NewMockCoreDeviceDriver(ctrl),
		device: mocks.NewDummyDevice(common.Vulkan1_0, []string{}),
	}
	f.queue = mocks.NewDummyQueue(f.device)
	f.driver.EXPECT().GetQueue(0, 0).Return(f.queue)

	log, hook := test.NewNullLogger()
	f.hook = hook
	// Chain calls go through the swapchain extension, which these tests
	// leave out.
	f.dev = newDevice(&Instance{log: log}, 1, f.driver, nil, 0)
	return f
}

// commandBuffer allocates one command buffer from a fresh resettable pool.
func (f *driverFixture) commandBuffer(c *qt.C) (gpu.CommandPool, gpu.CommandBuffer, core1_0.CommandPool, core1_0.CommandBuffer) {
	pool := mocks.NewDummyCommandPool(f.device)
	buffer := mocks.NewDummyCommandBuffer(pool, f.device)
	f.driver.EXPECT().CreateCommandPool(gomock.Any(), core1_0.CommandPoolCreateInfo{
		QueueFamilyIndex: 0,
		Flags:            core1_0.CommandPoolCreateResetBuffer,
	}).Return(pool, core1_0.VKSuccess, nil)
	f.driver.EXPECT().AllocateCommandBuffers(gomock.Any()).Return([]core1_0.CommandBuffer{buffer}, core1_0.VKSuccess, nil)

	p, err := f.dev.CreateCommandPool(gpu.CommandPoolCreateInfo{QueueFamilyIndex: 0, ResetBuffers: true})
	c.Assert(err, qt.IsNil)
	bufs, err := f.dev.AllocateCommandBuffers(p, 1)
	c.Assert(err, qt.IsNil)
	c.Assert(bufs, qt.HasLen, 1)
	return p, bufs[0], pool, buffer
}

func (f *driverFixture) fence(c *qt.C) (gpu.Fence, core1_0.Fence) {
	fence := mocks.NewDummyFence(f.device)
	f.driver.EXPECT().CreateFence(gomock.Any(), core1_0.FenceCreateInfo{Flags: core1_0.FenceCreateSignaled}).
		Return(fence, core1_0.VKSuccess, nil)
	h, err := f.dev.CreateFence(true)
	c.Assert(err, qt.IsNil)
	return h, fence
}

func TestCmdDrawPassesFirstIndicesUnsigned(t *testing.T) {
	c := qt.New(t)
	f := newDriverFixture(t)
	_, cb, _, buffer := f.commandBuffer(c)

	gomock.InOrder(
		f.driver.EXPECT().BeginCommandBuffer(buffer, gomock.Any()).Return(core1_0.VKSuccess, nil),
		f.driver.EXPECT().CmdDraw(buffer, 6, 1, uint32(2), uint32(3)),
		f.driver.EXPECT().EndCommandBuffer(buffer).Return(core1_0.VKSuccess, nil),
	)

	c.Assert(f.dev.BeginCommandBuffer(cb), qt.IsNil)
	f.dev.CmdDraw(cb, gpu.DrawInfo{VertexCount: 6, InstanceCount: 1, FirstVertex: 2, FirstInstance: 3})
	c.Assert(f.dev.EndCommandBuffer(cb), qt.IsNil)
}

func TestUnknownHandleFailsRecording(t *testing.T) {
	c := qt.New(t)
	f := newDriverFixture(t)
	_, cb, _, buffer := f.commandBuffer(c)

	f.driver.EXPECT().BeginCommandBuffer(buffer, gomock.Any()).Return(core1_0.VKSuccess, nil).Times(2)
	f.driver.EXPECT().EndCommandBuffer(buffer).Return(core1_0.VKSuccess, nil).Times(2)

	// Neither the bind nor the draw after it may reach the driver.
	c.Assert(f.dev.BeginCommandBuffer(cb), qt.IsNil)
	f.dev.CmdBindPipeline(cb, gpu.Pipeline(99))
	f.dev.CmdDraw(cb, gpu.DrawInfo{VertexCount: 3, InstanceCount: 1})
	err := f.dev.EndCommandBuffer(cb)
	c.Assert(errors.Is(err, ErrUnknownHandle), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, "end command buffer: unknown pipeline 99")

	// A fresh recording starts clean.
	c.Assert(f.dev.BeginCommandBuffer(cb), qt.IsNil)
	c.Assert(f.dev.EndCommandBuffer(cb), qt.IsNil)
}

func TestUnknownCommandBufferIsLogged(t *testing.T) {
	c := qt.New(t)
	f := newDriverFixture(t)

	f.dev.CmdEndRenderPass(gpu.CommandBuffer(42))

	entry := f.hook.LastEntry()
	c.Assert(entry, qt.IsNotNil)
	c.Assert(entry.Level, qt.Equals, logrus.ErrorLevel)
	c.Assert(entry.Message, qt.Equals, "command dropped")
	c.Assert(errors.Is(entry.Data[logrus.ErrorKey].(error), ErrUnknownHandle), qt.IsTrue)
}

func TestQueueSubmitSignalsFence(t *testing.T) {
	c := qt.New(t)
	f := newDriverFixture(t)
	_, cb, _, buffer := f.commandBuffer(c)
	fh, fence := f.fence(c)

	f.driver.EXPECT().QueueSubmit(f.queue, &fence, core1_0.SubmitInfo{
		CommandBuffers:   []core1_0.CommandBuffer{buffer},
		WaitSemaphores:   []core1_0.Semaphore{},
		SignalSemaphores: []core1_0.Semaphore{},
	}).Return(core1_0.VKSuccess, nil)

	c.Assert(f.dev.QueueSubmit(gpu.SubmitInfo{CommandBuffers: []gpu.CommandBuffer{cb}}, fh), qt.IsNil)
}

func TestQueueSubmitReportsDeviceLost(t *testing.T) {
	c := qt.New(t)
	f := newDriverFixture(t)
	fh, _ := f.fence(c)

	f.driver.EXPECT().QueueSubmit(f.queue, gomock.Any(), gomock.Any()).
		Return(core1_0.VKErrorDeviceLost, core1_0.VKErrorDeviceLost.ToError())

	err := f.dev.QueueSubmit(gpu.SubmitInfo{}, fh)
	c.Assert(errors.Is(err, gpu.ErrDeviceLost), qt.IsTrue)
}

func TestQueueSubmitRejectsUnknownFence(t *testing.T) {
	c := qt.New(t)
	f := newDriverFixture(t)

	err := f.dev.QueueSubmit(gpu.SubmitInfo{}, gpu.Fence(7))
	c.Assert(errors.Is(err, ErrUnknownHandle), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, "unknown fence 7")
}

func TestWaitForFencesHasNoTimeout(t *testing.T) {
	c := qt.New(t)
	f := newDriverFixture(t)
	fh, fence := f.fence(c)

	f.driver.EXPECT().WaitForFences(true, common.NoTimeout, fence).Return(core1_0.VKSuccess, nil)

	c.Assert(f.dev.WaitForFences(fh), qt.IsNil)
}

func TestDestroyCommandPoolForgetsItsBuffers(t *testing.T) {
	c := qt.New(t)
	f := newDriverFixture(t)
	p, cb, pool, _ := f.commandBuffer(c)

	f.driver.EXPECT().DestroyCommandPool(pool, gomock.Any())
	f.dev.DestroyCommandPool(p)

	err := f.dev.ResetCommandBuffer(cb)
	c.Assert(errors.Is(err, ErrUnknownHandle), qt.IsTrue)
	// Destroying twice is a no-op.
	f.dev.DestroyCommandPool(p)
}

func TestBindBufferMemoryRejectsUnknownMemory(t *testing.T) {
	c := qt.New(t)
	f := newDriverFixture(t)

	buffer := mocks.NewDummyBuffer(f.device)
	f.driver.EXPECT().CreateBuffer(gomock.Any(), gomock.Any()).Return(buffer, core1_0.VKSuccess, nil)
	b, err := f.dev.CreateBuffer(gpu.BufferCreateInfo{Size: 64, Usage: core1_0.BufferUsageVertexBuffer})
	c.Assert(err, qt.IsNil)

	err = f.dev.BindBufferMemory(b, gpu.Memory(5), 0)
	c.Assert(errors.Is(err, ErrUnknownHandle), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, "unknown memory 5")
}

func TestAdapterInfoUsesDriverName(t *testing.T) {
	c := qt.New(t)
	ctrl := gomock.NewController(t)
	driver := mocks1_0.NewMockCoreInstanceDriver(ctrl)
	log, _ := test.NewNullLogger()

	instance := mocks.NewDummyInstance(common.Vulkan1_2, []string{})
	pd := mocks.NewDummyPhysicalDevice(instance, common.Vulkan1_2)
	i := &Instance{log: log, driver: driver}
	h := gpu.PhysicalDevice(i.physical.add(pd))

	driver.EXPECT().GetPhysicalDeviceProperties(pd).Return(&core1_0.PhysicalDeviceProperties{DriverName: "Fake GPU"}, nil)

	info, err := i.AdapterInfo(h)
	c.Assert(err, qt.IsNil)
	c.Assert(info.Name, qt.Equals, "Fake GPU")
}

func TestCreateDeviceRequiresSwapchainExtension(t *testing.T) {
	c := qt.New(t)
	ctrl := gomock.NewController(t)
	driver := mocks1_0.NewMockCoreInstanceDriver(ctrl)
	log, _ := test.NewNullLogger()

	instance := mocks.NewDummyInstance(common.Vulkan1_2, []string{})
	pd := mocks.NewDummyPhysicalDevice(instance, common.Vulkan1_2)
	i := &Instance{log: log, driver: driver}
	h := gpu.PhysicalDevice(i.physical.add(pd))

	driver.EXPECT().EnumerateDeviceExtensionProperties(pd).
		Return(map[string]*core1_0.ExtensionProperties{}, core1_0.VKSuccess, nil)

	_, err := i.CreateDevice(h, gpu.DeviceCreateInfo{QueueFamilyIndex: 0})
	c.Assert(errors.Is(err, gpu.ErrUnsatisfiable), qt.IsTrue)
	c.Assert(err, qt.ErrorMatches, "device extension VK_KHR_swapchain is not available")
}
