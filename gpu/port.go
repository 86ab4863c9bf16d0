package gpu

import (
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
)

// AdapterInfo describes a physical device.
type AdapterInfo struct {
	Name string
}

// QueueFamily describes one queue family of a physical device.
type QueueFamily struct {
	QueueCount int
	Flags      core1_0.QueueFlags
}

// MemoryType is one entry of a physical device's memory type table.
type MemoryType struct {
	Flags core1_0.MemoryPropertyFlags
}

type MemoryRequirements struct {
	Size           int
	Alignment      int
	MemoryTypeBits uint32
}

type DeviceCreateInfo struct {
	QueueFamilyIndex int
	// Extensions are enabled in addition to the swapchain extension, which
	// is always enabled.
	Extensions []string
}

// Instance is the process-level API object: adapters, surfaces and
// logical device creation.
type Instance interface {
	PhysicalDevices() ([]PhysicalDevice, error)
	AdapterInfo(pd PhysicalDevice) (AdapterInfo, error)
	QueueFamilies(pd PhysicalDevice) ([]QueueFamily, error)
	MemoryTypes(pd PhysicalDevice) ([]MemoryType, error)

	SurfaceSupport(pd PhysicalDevice, surface Surface, family int) (bool, error)
	SurfaceCapabilities(pd PhysicalDevice, surface Surface) (khr_surface.SurfaceCapabilities, error)
	SurfaceFormats(pd PhysicalDevice, surface Surface) ([]khr_surface.SurfaceFormat, error)
	PresentModes(pd PhysicalDevice, surface Surface) ([]khr_surface.PresentMode, error)
	DestroySurface(surface Surface)

	CreateDevice(pd PhysicalDevice, info DeviceCreateInfo) (Device, error)
	Destroy()
}

type SwapchainCreateInfo struct {
	Surface       Surface
	MinImageCount int
	SurfaceFormat khr_surface.SurfaceFormat
	Extent        core1_0.Extent2D
	PresentMode   khr_surface.PresentMode
	OldSwapchain  Swapchain
}

// ImageViewCreateInfo describes a 2D view with identity swizzle over the
// first mip level and array layer of an image.
type ImageViewCreateInfo struct {
	Image  Image
	Format core1_0.Format
	Aspect core1_0.ImageAspectFlags
}

// ImageCreateInfo describes an optimally tiled, exclusively owned 2D image.
type ImageCreateInfo struct {
	Extent core1_0.Extent2D
	Format core1_0.Format
	Usage  core1_0.ImageUsageFlags
}

type FramebufferCreateInfo struct {
	RenderPass  RenderPass
	Attachments []ImageView
	Extent      core1_0.Extent2D
}

type CommandPoolCreateInfo struct {
	QueueFamilyIndex int
	ResetBuffers     bool
}

type RenderPassBeginInfo struct {
	RenderPass  RenderPass
	Framebuffer Framebuffer
	Area        core1_0.Rect2D
	ClearValues []core1_0.ClearValue
}

type DrawInfo struct {
	VertexCount   int
	InstanceCount int
	FirstVertex   int
	FirstInstance int
}

type SubmitInfo struct {
	WaitSemaphores   []Semaphore
	WaitStages       []core1_0.PipelineStageFlags
	CommandBuffers   []CommandBuffer
	SignalSemaphores []Semaphore
}

type PresentInfo struct {
	Swapchain      Swapchain
	ImageIndex     int
	WaitSemaphores []Semaphore
}

type BufferCreateInfo struct {
	Size  int
	Usage core1_0.BufferUsageFlags
}

type DescriptorBufferWrite struct {
	Set     DescriptorSet
	Binding int
	Type    core1_0.DescriptorType
	Buffer  Buffer
	Offset  int
	Range   int
}

type ShaderStage struct {
	Stage  core1_0.ShaderStageFlags
	Module ShaderModule
	Entry  string
}

type PipelineLayoutCreateInfo struct {
	SetLayouts         []DescriptorSetLayout
	PushConstantRanges []core1_0.PushConstantRange
}

type GraphicsPipelineCreateInfo struct {
	Stages     []ShaderStage
	State      PipelineState
	Layout     PipelineLayout
	RenderPass RenderPass
	Subpass    int
	// BaseIndex is the base pipeline index; -1 means none.
	BaseIndex int
}

// Device is a logical device together with the queue it was created with.
// Destroy calls ignore null handles.
type Device interface {
	Queue() Queue

	CreateCommandPool(info CommandPoolCreateInfo) (CommandPool, error)
	DestroyCommandPool(pool CommandPool)
	AllocateCommandBuffers(pool CommandPool, count int) ([]CommandBuffer, error)
	FreeCommandBuffers(pool CommandPool, buffers []CommandBuffer)
	ResetCommandBuffer(buffer CommandBuffer) error
	BeginCommandBuffer(buffer CommandBuffer) error
	EndCommandBuffer(buffer CommandBuffer) error

	CmdBeginRenderPass(buffer CommandBuffer, info RenderPassBeginInfo) error
	CmdBindPipeline(buffer CommandBuffer, pipeline Pipeline)
	CmdBindVertexBuffers(buffer CommandBuffer, buffers []Buffer, offsets []int)
	CmdBindDescriptorSets(buffer CommandBuffer, layout PipelineLayout, firstSet int, sets []DescriptorSet)
	CmdDraw(buffer CommandBuffer, draw DrawInfo)
	CmdEndRenderPass(buffer CommandBuffer)

	CreateSemaphore() (Semaphore, error)
	DestroySemaphore(semaphore Semaphore)
	CreateFence(signaled bool) (Fence, error)
	DestroyFence(fence Fence)
	// WaitForFences blocks without a timeout until every fence is signaled.
	WaitForFences(fences ...Fence) error
	ResetFences(fences ...Fence) error

	QueueSubmit(info SubmitInfo, fence Fence) error
	// AcquireNextImage signals semaphore once the returned image is ready.
	// suboptimal reports a usable image from a chain that should be rebuilt.
	AcquireNextImage(swapchain Swapchain, semaphore Semaphore) (index int, suboptimal bool, err error)
	QueuePresent(info PresentInfo) (suboptimal bool, err error)
	WaitIdle() error

	CreateSwapchain(info SwapchainCreateInfo) (Swapchain, error)
	SwapchainImages(swapchain Swapchain) ([]Image, error)
	DestroySwapchain(swapchain Swapchain)

	CreateImage(info ImageCreateInfo) (Image, error)
	DestroyImage(image Image)
	ImageMemoryRequirements(image Image) MemoryRequirements
	CreateImageView(info ImageViewCreateInfo) (ImageView, error)
	DestroyImageView(view ImageView)

	CreateBuffer(info BufferCreateInfo) (Buffer, error)
	DestroyBuffer(buffer Buffer)
	BufferMemoryRequirements(buffer Buffer) MemoryRequirements

	AllocateMemory(size int, typeIndex int) (Memory, error)
	FreeMemory(memory Memory)
	BindImageMemory(image Image, memory Memory, offset int) error
	BindBufferMemory(buffer Buffer, memory Memory, offset int) error
	MapMemory(memory Memory, offset, size int) ([]byte, error)
	FlushMemory(memory Memory, offset, size int) error
	UnmapMemory(memory Memory)

	CreateRenderPass(info core1_0.RenderPassCreateInfo) (RenderPass, error)
	DestroyRenderPass(pass RenderPass)
	CreateFramebuffer(info FramebufferCreateInfo) (Framebuffer, error)
	DestroyFramebuffer(framebuffer Framebuffer)

	CreateShaderModule(code []uint32) (ShaderModule, error)
	DestroyShaderModule(module ShaderModule)

	CreateDescriptorSetLayout(bindings []core1_0.DescriptorSetLayoutBinding) (DescriptorSetLayout, error)
	DestroyDescriptorSetLayout(layout DescriptorSetLayout)
	CreateDescriptorPool(maxSets int, sizes []core1_0.DescriptorPoolSize) (DescriptorPool, error)
	DestroyDescriptorPool(pool DescriptorPool)
	AllocateDescriptorSets(pool DescriptorPool, layouts []DescriptorSetLayout) ([]DescriptorSet, error)
	UpdateDescriptorSets(writes []DescriptorBufferWrite) error

	CreatePipelineLayout(info PipelineLayoutCreateInfo) (PipelineLayout, error)
	DestroyPipelineLayout(layout PipelineLayout)
	CreateGraphicsPipeline(info GraphicsPipelineCreateInfo) (Pipeline, error)
	DestroyPipeline(pipeline Pipeline)

	Destroy()
}
