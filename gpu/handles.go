// Package gpu is the narrow device interface the presentation engine is
// written against. Enumerations and plain value types are the vkngwrapper
// core1_0 / khr_surface ones; objects are referred to by opaque handles so
// the engine can run against a real Vulkan device (package vkng) or an
// in-memory one (package gputest).
package gpu

// Handles identify objects owned by an Instance or a Device.
// The zero value of every handle type is the null handle.
type (
	PhysicalDevice      uint64
	Surface             uint64
	Queue               uint64
	CommandPool         uint64
	CommandBuffer       uint64
	Semaphore           uint64
	Fence               uint64
	Swapchain           uint64
	Image               uint64
	ImageView           uint64
	Memory              uint64
	Buffer              uint64
	RenderPass          uint64
	Framebuffer         uint64
	ShaderModule        uint64
	DescriptorSetLayout uint64
	DescriptorPool      uint64
	DescriptorSet       uint64
	PipelineLayout      uint64
	Pipeline            uint64
)
