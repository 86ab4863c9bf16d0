package vkng

import (
	"sync"
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/common"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/twotriangles/gpu"
)

// ErrUnknownHandle marks a call naming a handle this device never issued
// or has already destroyed.
var ErrUnknownHandle = errors.New("unknown handle")

func lookup[T any](t *table[T], kind string, h uint64) (T, error) {
	v, ok := t.get(h)
	if !ok {
		return v, errors.Mark(errors.Newf("unknown %s %d", kind, h), ErrUnknownHandle)
	}
	return v, nil
}

func lookupAll[T any, H ~uint64](t *table[T], kind string, hs []H) ([]T, error) {
	out := make([]T, len(hs))
	for i, h := range hs {
		v, err := lookup(t, kind, uint64(h))
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// recording is a command buffer and the first error hit while recording
// into it. Commands that cannot fail in the driver report bad handles
// from EndCommandBuffer.
type recording struct {
	buffer core1_0.CommandBuffer
	pool   gpu.CommandPool
	err    error
}

type pooledSet struct {
	set  core1_0.DescriptorSet
	pool gpu.DescriptorPool
}

// Device is a gpu.Device backed by a vkngwrapper device driver.
type Device struct {
	instance  *Instance
	physical  gpu.PhysicalDevice
	log       logrus.FieldLogger
	driver    core1_0.CoreDeviceDriver
	swapchain khr_swapchain.ExtensionDriver
	queue     core1_0.Queue

	commandPools    table[core1_0.CommandPool]
	commandBuffers  table[*recording]
	semaphores      table[core1_0.Semaphore]
	fences          table[core1_0.Fence]
	swapchains      table[khr_swapchain.Swapchain]
	images          table[core1_0.Image]
	imageViews      table[core1_0.ImageView]
	buffers         table[core1_0.Buffer]
	memory          table[core1_0.DeviceMemory]
	renderPasses    table[core1_0.RenderPass]
	framebuffers    table[core1_0.Framebuffer]
	shaderModules   table[core1_0.ShaderModule]
	setLayouts      table[core1_0.DescriptorSetLayout]
	descriptorPools table[core1_0.DescriptorPool]
	descriptorSets  table[pooledSet]
	pipelineLayouts table[core1_0.PipelineLayout]
	pipelines       table[core1_0.Pipeline]

	// Swapchain images are owned by their swapchain.
	mu              sync.Mutex
	swapchainImages map[gpu.Swapchain][]gpu.Image
}

var _ gpu.Device = (*Device)(nil)

func newDevice(instance *Instance, pd gpu.PhysicalDevice, driver core1_0.CoreDeviceDriver, swapchain khr_swapchain.ExtensionDriver, family int) *Device {
	return &Device{
		instance:        instance,
		physical:        pd,
		log:             instance.log,
		driver:          driver,
		swapchain:       swapchain,
		queue:           driver.GetQueue(family, 0),
		swapchainImages: map[gpu.Swapchain][]gpu.Image{},
	}
}

func (d *Device) Queue() gpu.Queue { return 1 }

func (d *Device) CreateCommandPool(info gpu.CommandPoolCreateInfo) (gpu.CommandPool, error) {
	create := core1_0.CommandPoolCreateInfo{QueueFamilyIndex: info.QueueFamilyIndex}
	if info.ResetBuffers {
		create.Flags = core1_0.CommandPoolCreateResetBuffer
	}
	pool, _, err := d.driver.CreateCommandPool(nil, create)
	if err != nil {
		return 0, err
	}
	return gpu.CommandPool(d.commandPools.add(pool)), nil
}

func (d *Device) DestroyCommandPool(pool gpu.CommandPool) {
	p, ok := d.commandPools.remove(uint64(pool))
	if !ok {
		return
	}
	d.commandBuffers.removeIf(func(r *recording) bool { return r.pool == pool })
	d.driver.DestroyCommandPool(p, nil)
}

func (d *Device) AllocateCommandBuffers(pool gpu.CommandPool, count int) ([]gpu.CommandBuffer, error) {
	p, err := lookup(&d.commandPools, "command pool", uint64(pool))
	if err != nil {
		return nil, err
	}
	buffers, _, err := d.driver.AllocateCommandBuffers(core1_0.CommandBufferAllocateInfo{
		CommandPool:        p,
		Level:              core1_0.CommandBufferLevelPrimary,
		CommandBufferCount: count,
	})
	if err != nil {
		return nil, err
	}
	out := make([]gpu.CommandBuffer, len(buffers))
	for i, b := range buffers {
		out[i] = gpu.CommandBuffer(d.commandBuffers.add(&recording{buffer: b, pool: pool}))
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(pool gpu.CommandPool, buffers []gpu.CommandBuffer) {
	var free []core1_0.CommandBuffer
	for _, h := range buffers {
		if r, ok := d.commandBuffers.remove(uint64(h)); ok {
			free = append(free, r.buffer)
		}
	}
	if len(free) > 0 {
		d.driver.FreeCommandBuffers(free...)
	}
}

func (d *Device) commandBuffer(h gpu.CommandBuffer) (*recording, error) {
	return lookup(&d.commandBuffers, "command buffer", uint64(h))
}

// record runs cmd against the command buffer unless an earlier command
// already failed. A bad command buffer handle itself is only logged since
// there is nowhere to keep the error.
func (d *Device) record(h gpu.CommandBuffer, cmd func(core1_0.CommandBuffer) error) {
	r, err := d.commandBuffer(h)
	if err != nil {
		d.log.WithError(err).Error("command dropped")
		return
	}
	if r.err != nil {
		return
	}
	r.err = cmd(r.buffer)
}

func (d *Device) ResetCommandBuffer(buffer gpu.CommandBuffer) error {
	r, err := d.commandBuffer(buffer)
	if err != nil {
		return err
	}
	r.err = nil
	res, err := d.driver.ResetCommandBuffer(r.buffer, 0)
	return check(res, err, "reset command buffer")
}

func (d *Device) BeginCommandBuffer(buffer gpu.CommandBuffer) error {
	r, err := d.commandBuffer(buffer)
	if err != nil {
		return err
	}
	r.err = nil
	res, err := d.driver.BeginCommandBuffer(r.buffer, core1_0.CommandBufferBeginInfo{})
	return check(res, err, "begin command buffer")
}

// EndCommandBuffer also reports the first command that could not be
// recorded since BeginCommandBuffer.
func (d *Device) EndCommandBuffer(buffer gpu.CommandBuffer) error {
	r, err := d.commandBuffer(buffer)
	if err != nil {
		return err
	}
	res, err := d.driver.EndCommandBuffer(r.buffer)
	if r.err != nil {
		recorded := r.err
		r.err = nil
		return errors.Wrap(recorded, "end command buffer")
	}
	return check(res, err, "end command buffer")
}

func (d *Device) CmdBeginRenderPass(buffer gpu.CommandBuffer, info gpu.RenderPassBeginInfo) error {
	r, err := d.commandBuffer(buffer)
	if err != nil {
		return err
	}
	pass, err := lookup(&d.renderPasses, "render pass", uint64(info.RenderPass))
	if err != nil {
		return err
	}
	fb, err := lookup(&d.framebuffers, "framebuffer", uint64(info.Framebuffer))
	if err != nil {
		return err
	}
	return d.driver.CmdBeginRenderPass(r.buffer, core1_0.SubpassContentsInline,
		core1_0.RenderPassBeginInfo{
			RenderPass:  pass,
			Framebuffer: fb,
			RenderArea:  info.Area,
			ClearValues: info.ClearValues,
		})
}

func (d *Device) CmdBindPipeline(buffer gpu.CommandBuffer, pipeline gpu.Pipeline) {
	d.record(buffer, func(cb core1_0.CommandBuffer) error {
		p, err := lookup(&d.pipelines, "pipeline", uint64(pipeline))
		if err != nil {
			return err
		}
		d.driver.CmdBindPipeline(cb, core1_0.PipelineBindPointGraphics, p)
		return nil
	})
}

func (d *Device) CmdBindVertexBuffers(buffer gpu.CommandBuffer, buffers []gpu.Buffer, offsets []int) {
	d.record(buffer, func(cb core1_0.CommandBuffer) error {
		bs, err := lookupAll(&d.buffers, "buffer", buffers)
		if err != nil {
			return err
		}
		d.driver.CmdBindVertexBuffers(cb, 0, bs, offsets)
		return nil
	})
}

func (d *Device) CmdBindDescriptorSets(buffer gpu.CommandBuffer, layout gpu.PipelineLayout, firstSet int, sets []gpu.DescriptorSet) {
	d.record(buffer, func(cb core1_0.CommandBuffer) error {
		l, err := lookup(&d.pipelineLayouts, "pipeline layout", uint64(layout))
		if err != nil {
			return err
		}
		pooled, err := lookupAll(&d.descriptorSets, "descriptor set", sets)
		if err != nil {
			return err
		}
		ss := make([]core1_0.DescriptorSet, len(pooled))
		for i, s := range pooled {
			ss[i] = s.set
		}
		d.driver.CmdBindDescriptorSets(cb, core1_0.PipelineBindPointGraphics, l, firstSet, ss, nil)
		return nil
	})
}

func (d *Device) CmdDraw(buffer gpu.CommandBuffer, draw gpu.DrawInfo) {
	d.record(buffer, func(cb core1_0.CommandBuffer) error {
		d.driver.CmdDraw(cb, draw.VertexCount, draw.InstanceCount, uint32(draw.FirstVertex), uint32(draw.FirstInstance))
		return nil
	})
}

func (d *Device) CmdEndRenderPass(buffer gpu.CommandBuffer) {
	d.record(buffer, func(cb core1_0.CommandBuffer) error {
		d.driver.CmdEndRenderPass(cb)
		return nil
	})
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	s, _, err := d.driver.CreateSemaphore(nil, core1_0.SemaphoreCreateInfo{})
	if err != nil {
		return 0, err
	}
	return gpu.Semaphore(d.semaphores.add(s)), nil
}

func (d *Device) DestroySemaphore(semaphore gpu.Semaphore) {
	if s, ok := d.semaphores.remove(uint64(semaphore)); ok {
		d.driver.DestroySemaphore(s, nil)
	}
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	var info core1_0.FenceCreateInfo
	if signaled {
		info.Flags = core1_0.FenceCreateSignaled
	}
	f, _, err := d.driver.CreateFence(nil, info)
	if err != nil {
		return 0, err
	}
	return gpu.Fence(d.fences.add(f)), nil
}

func (d *Device) DestroyFence(fence gpu.Fence) {
	if f, ok := d.fences.remove(uint64(fence)); ok {
		d.driver.DestroyFence(f, nil)
	}
}

func (d *Device) WaitForFences(fences ...gpu.Fence) error {
	fs, err := lookupAll(&d.fences, "fence", fences)
	if err != nil {
		return err
	}
	res, err := d.driver.WaitForFences(true, common.NoTimeout, fs...)
	return check(res, err, "wait for fences")
}

func (d *Device) ResetFences(fences ...gpu.Fence) error {
	fs, err := lookupAll(&d.fences, "fence", fences)
	if err != nil {
		return err
	}
	res, err := d.driver.ResetFences(fs...)
	return check(res, err, "reset fences")
}

// QueueSubmit signals fence when it is non-zero.
func (d *Device) QueueSubmit(info gpu.SubmitInfo, fence gpu.Fence) error {
	recs, err := lookupAll(&d.commandBuffers, "command buffer", info.CommandBuffers)
	if err != nil {
		return err
	}
	buffers := make([]core1_0.CommandBuffer, len(recs))
	for i, r := range recs {
		buffers[i] = r.buffer
	}
	wait, err := lookupAll(&d.semaphores, "semaphore", info.WaitSemaphores)
	if err != nil {
		return err
	}
	signal, err := lookupAll(&d.semaphores, "semaphore", info.SignalSemaphores)
	if err != nil {
		return err
	}
	var f *core1_0.Fence
	if fence != 0 {
		v, err := lookup(&d.fences, "fence", uint64(fence))
		if err != nil {
			return err
		}
		f = &v
	}
	res, err := d.driver.QueueSubmit(d.queue, f, core1_0.SubmitInfo{
		WaitSemaphores:   wait,
		WaitDstStageMask: info.WaitStages,
		CommandBuffers:   buffers,
		SignalSemaphores: signal,
	})
	return check(res, err, "queue submit")
}

func (d *Device) AcquireNextImage(swapchain gpu.Swapchain, semaphore gpu.Semaphore) (int, bool, error) {
	sc, err := lookup(&d.swapchains, "swapchain", uint64(swapchain))
	if err != nil {
		return 0, false, err
	}
	s, err := lookup(&d.semaphores, "semaphore", uint64(semaphore))
	if err != nil {
		return 0, false, err
	}
	index, res, err := d.swapchain.AcquireNextImage(sc, common.NoTimeout, &s, nil)
	if err := check(res, err, "acquire next image"); err != nil {
		return 0, false, err
	}
	return index, suboptimal(res), nil
}

func (d *Device) QueuePresent(info gpu.PresentInfo) (bool, error) {
	sc, err := lookup(&d.swapchains, "swapchain", uint64(info.Swapchain))
	if err != nil {
		return false, err
	}
	wait, err := lookupAll(&d.semaphores, "semaphore", info.WaitSemaphores)
	if err != nil {
		return false, err
	}
	res, err := d.swapchain.QueuePresent(d.queue, khr_swapchain.PresentInfo{
		WaitSemaphores: wait,
		Swapchains:     []khr_swapchain.Swapchain{sc},
		ImageIndices:   []int{info.ImageIndex},
	})
	if err := check(res, err, "queue present"); err != nil {
		return false, err
	}
	return suboptimal(res), nil
}

func (d *Device) WaitIdle() error {
	res, err := d.driver.DeviceWaitIdle()
	return check(res, err, "device wait idle")
}

func (d *Device) CreateSwapchain(info gpu.SwapchainCreateInfo) (gpu.Swapchain, error) {
	surface, err := d.instance.surface(info.Surface)
	if err != nil {
		return 0, err
	}
	caps, err := d.instance.SurfaceCapabilities(d.physical, info.Surface)
	if err != nil {
		return 0, err
	}
	create := khr_swapchain.SwapchainCreateInfo{
		Surface:          surface,
		MinImageCount:    info.MinImageCount,
		ImageFormat:      info.SurfaceFormat.Format,
		ImageColorSpace:  info.SurfaceFormat.ColorSpace,
		ImageExtent:      info.Extent,
		ImageArrayLayers: 1,
		ImageUsage:       core1_0.ImageUsageColorAttachment,
		ImageSharingMode: core1_0.SharingModeExclusive,
		PreTransform:     caps.CurrentTransform,
		CompositeAlpha:   khr_surface.CompositeAlphaOpaque,
		PresentMode:      info.PresentMode,
		Clipped:          true,
	}
	if info.OldSwapchain != 0 {
		if create.OldSwapchain, err = lookup(&d.swapchains, "swapchain", uint64(info.OldSwapchain)); err != nil {
			return 0, err
		}
	}
	sc, _, err := d.swapchain.CreateSwapchain(nil, create)
	if err != nil {
		return 0, err
	}
	return gpu.Swapchain(d.swapchains.add(sc)), nil
}

func (d *Device) SwapchainImages(swapchain gpu.Swapchain) ([]gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if images, ok := d.swapchainImages[swapchain]; ok {
		return images, nil
	}
	sc, err := lookup(&d.swapchains, "swapchain", uint64(swapchain))
	if err != nil {
		return nil, err
	}
	images, _, err := d.swapchain.GetSwapchainImages(sc)
	if err != nil {
		return nil, errors.Wrap(err, "swapchain images")
	}
	out := make([]gpu.Image, len(images))
	for i, img := range images {
		out[i] = gpu.Image(d.images.add(img))
	}
	d.swapchainImages[swapchain] = out
	return out, nil
}

func (d *Device) DestroySwapchain(swapchain gpu.Swapchain) {
	sc, ok := d.swapchains.remove(uint64(swapchain))
	if !ok {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, img := range d.swapchainImages[swapchain] {
		d.images.remove(uint64(img))
	}
	delete(d.swapchainImages, swapchain)
	d.swapchain.DestroySwapchain(sc, nil)
}

func (d *Device) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, error) {
	img, _, err := d.driver.CreateImage(nil, core1_0.ImageCreateInfo{
		ImageType:     core1_0.ImageType2D,
		Extent:        core1_0.Extent3D{Width: info.Extent.Width, Height: info.Extent.Height, Depth: 1},
		MipLevels:     1,
		ArrayLayers:   1,
		Format:        info.Format,
		Tiling:        core1_0.ImageTilingOptimal,
		InitialLayout: core1_0.ImageLayoutUndefined,
		Usage:         info.Usage,
		SharingMode:   core1_0.SharingModeExclusive,
		Samples:       core1_0.Samples1,
	})
	if err != nil {
		return 0, err
	}
	return gpu.Image(d.images.add(img)), nil
}

func (d *Device) DestroyImage(image gpu.Image) {
	if img, ok := d.images.remove(uint64(image)); ok {
		d.driver.DestroyImage(img, nil)
	}
}

func requirements(r *core1_0.MemoryRequirements) gpu.MemoryRequirements {
	return gpu.MemoryRequirements{Size: r.Size, Alignment: r.Alignment, MemoryTypeBits: r.MemoryTypeBits}
}

// ImageMemoryRequirements logs an unknown image and reports zero
// requirements, which no memory type satisfies.
func (d *Device) ImageMemoryRequirements(image gpu.Image) gpu.MemoryRequirements {
	img, err := lookup(&d.images, "image", uint64(image))
	if err != nil {
		d.log.WithError(err).Error("memory requirements")
		return gpu.MemoryRequirements{}
	}
	return requirements(d.driver.GetImageMemoryRequirements(img))
}

func (d *Device) CreateImageView(info gpu.ImageViewCreateInfo) (gpu.ImageView, error) {
	img, err := lookup(&d.images, "image", uint64(info.Image))
	if err != nil {
		return 0, err
	}
	view, _, err := d.driver.CreateImageView(nil, core1_0.ImageViewCreateInfo{
		Image:    img,
		ViewType: core1_0.ImageViewType2D,
		Format:   info.Format,
		SubresourceRange: core1_0.ImageSubresourceRange{
			AspectMask:     info.Aspect,
			BaseMipLevel:   0,
			LevelCount:     1,
			BaseArrayLayer: 0,
			LayerCount:     1,
		},
	})
	if err != nil {
		return 0, err
	}
	return gpu.ImageView(d.imageViews.add(view)), nil
}

func (d *Device) DestroyImageView(view gpu.ImageView) {
	if v, ok := d.imageViews.remove(uint64(view)); ok {
		d.driver.DestroyImageView(v, nil)
	}
}

func (d *Device) CreateBuffer(info gpu.BufferCreateInfo) (gpu.Buffer, error) {
	b, _, err := d.driver.CreateBuffer(nil, core1_0.BufferCreateInfo{
		Size:        info.Size,
		Usage:       info.Usage,
		SharingMode: core1_0.SharingModeExclusive,
	})
	if err != nil {
		return 0, err
	}
	return gpu.Buffer(d.buffers.add(b)), nil
}

func (d *Device) DestroyBuffer(buffer gpu.Buffer) {
	if b, ok := d.buffers.remove(uint64(buffer)); ok {
		d.driver.DestroyBuffer(b, nil)
	}
}

func (d *Device) BufferMemoryRequirements(buffer gpu.Buffer) gpu.MemoryRequirements {
	b, err := lookup(&d.buffers, "buffer", uint64(buffer))
	if err != nil {
		d.log.WithError(err).Error("memory requirements")
		return gpu.MemoryRequirements{}
	}
	return requirements(d.driver.GetBufferMemoryRequirements(b))
}

func (d *Device) AllocateMemory(size int, typeIndex int) (gpu.Memory, error) {
	m, _, err := d.driver.AllocateMemory(nil, core1_0.MemoryAllocateInfo{
		AllocationSize:  size,
		MemoryTypeIndex: typeIndex,
	})
	if err != nil {
		return 0, err
	}
	return gpu.Memory(d.memory.add(m)), nil
}

func (d *Device) FreeMemory(memory gpu.Memory) {
	if m, ok := d.memory.remove(uint64(memory)); ok {
		d.driver.FreeMemory(m, nil)
	}
}

func (d *Device) BindImageMemory(image gpu.Image, memory gpu.Memory, offset int) error {
	img, err := lookup(&d.images, "image", uint64(image))
	if err != nil {
		return err
	}
	m, err := lookup(&d.memory, "memory", uint64(memory))
	if err != nil {
		return err
	}
	res, err := d.driver.BindImageMemory(img, m, offset)
	return check(res, err, "bind image memory")
}

func (d *Device) BindBufferMemory(buffer gpu.Buffer, memory gpu.Memory, offset int) error {
	b, err := lookup(&d.buffers, "buffer", uint64(buffer))
	if err != nil {
		return err
	}
	m, err := lookup(&d.memory, "memory", uint64(memory))
	if err != nil {
		return err
	}
	res, err := d.driver.BindBufferMemory(b, m, offset)
	return check(res, err, "bind buffer memory")
}

func (d *Device) MapMemory(memory gpu.Memory, offset, size int) ([]byte, error) {
	m, err := lookup(&d.memory, "memory", uint64(memory))
	if err != nil {
		return nil, err
	}
	ptr, res, err := d.driver.MapMemory(m, offset, size, 0)
	if err := check(res, err, "map memory"); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(ptr), size), nil
}

func (d *Device) FlushMemory(memory gpu.Memory, offset, size int) error {
	m, err := lookup(&d.memory, "memory", uint64(memory))
	if err != nil {
		return err
	}
	res, err := d.driver.FlushMappedMemoryRanges(core1_0.MappedMemoryRange{
		Memory: m,
		Offset: offset,
		Size:   size,
	})
	return check(res, err, "flush memory")
}

func (d *Device) UnmapMemory(memory gpu.Memory) {
	if m, ok := d.memory.get(uint64(memory)); ok {
		d.driver.UnmapMemory(m)
	}
}

func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (gpu.RenderPass, error) {
	p, _, err := d.driver.CreateRenderPass(nil, info)
	if err != nil {
		return 0, err
	}
	return gpu.RenderPass(d.renderPasses.add(p)), nil
}

func (d *Device) DestroyRenderPass(pass gpu.RenderPass) {
	if p, ok := d.renderPasses.remove(uint64(pass)); ok {
		d.driver.DestroyRenderPass(p, nil)
	}
}

func (d *Device) CreateFramebuffer(info gpu.FramebufferCreateInfo) (gpu.Framebuffer, error) {
	pass, err := lookup(&d.renderPasses, "render pass", uint64(info.RenderPass))
	if err != nil {
		return 0, err
	}
	views, err := lookupAll(&d.imageViews, "image view", info.Attachments)
	if err != nil {
		return 0, err
	}
	fb, _, err := d.driver.CreateFramebuffer(nil, core1_0.FramebufferCreateInfo{
		RenderPass:  pass,
		Layers:      1,
		Attachments: views,
		Width:       info.Extent.Width,
		Height:      info.Extent.Height,
	})
	if err != nil {
		return 0, err
	}
	return gpu.Framebuffer(d.framebuffers.add(fb)), nil
}

func (d *Device) DestroyFramebuffer(framebuffer gpu.Framebuffer) {
	if fb, ok := d.framebuffers.remove(uint64(framebuffer)); ok {
		d.driver.DestroyFramebuffer(fb, nil)
	}
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	m, _, err := d.driver.CreateShaderModule(nil, core1_0.ShaderModuleCreateInfo{Code: code})
	if err != nil {
		return 0, err
	}
	return gpu.ShaderModule(d.shaderModules.add(m)), nil
}

func (d *Device) DestroyShaderModule(module gpu.ShaderModule) {
	if m, ok := d.shaderModules.remove(uint64(module)); ok {
		d.driver.DestroyShaderModule(m, nil)
	}
}

func (d *Device) CreateDescriptorSetLayout(bindings []core1_0.DescriptorSetLayoutBinding) (gpu.DescriptorSetLayout, error) {
	l, _, err := d.driver.CreateDescriptorSetLayout(nil, core1_0.DescriptorSetLayoutCreateInfo{Bindings: bindings})
	if err != nil {
		return 0, err
	}
	return gpu.DescriptorSetLayout(d.setLayouts.add(l)), nil
}

func (d *Device) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayout) {
	if l, ok := d.setLayouts.remove(uint64(layout)); ok {
		d.driver.DestroyDescriptorSetLayout(l, nil)
	}
}

func (d *Device) CreateDescriptorPool(maxSets int, sizes []core1_0.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	p, _, err := d.driver.CreateDescriptorPool(nil, core1_0.DescriptorPoolCreateInfo{
		MaxSets:   maxSets,
		PoolSizes: sizes,
	})
	if err != nil {
		return 0, err
	}
	return gpu.DescriptorPool(d.descriptorPools.add(p)), nil
}

// DestroyDescriptorPool also forgets the sets allocated from it.
func (d *Device) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	p, ok := d.descriptorPools.remove(uint64(pool))
	if !ok {
		return
	}
	d.descriptorSets.removeIf(func(s pooledSet) bool { return s.pool == pool })
	d.driver.DestroyDescriptorPool(p, nil)
}

func (d *Device) AllocateDescriptorSets(pool gpu.DescriptorPool, layouts []gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	p, err := lookup(&d.descriptorPools, "descriptor pool", uint64(pool))
	if err != nil {
		return nil, err
	}
	ls, err := lookupAll(&d.setLayouts, "descriptor set layout", layouts)
	if err != nil {
		return nil, err
	}
	sets, _, err := d.driver.AllocateDescriptorSets(core1_0.DescriptorSetAllocateInfo{
		DescriptorPool: p,
		SetLayouts:     ls,
	})
	if err != nil {
		return nil, err
	}
	out := make([]gpu.DescriptorSet, len(sets))
	for i, s := range sets {
		out[i] = gpu.DescriptorSet(d.descriptorSets.add(pooledSet{set: s, pool: pool}))
	}
	return out, nil
}

func (d *Device) UpdateDescriptorSets(writes []gpu.DescriptorBufferWrite) error {
	ws := make([]core1_0.WriteDescriptorSet, len(writes))
	for i, w := range writes {
		set, err := lookup(&d.descriptorSets, "descriptor set", uint64(w.Set))
		if err != nil {
			return err
		}
		buffer, err := lookup(&d.buffers, "buffer", uint64(w.Buffer))
		if err != nil {
			return err
		}
		ws[i] = core1_0.WriteDescriptorSet{
			DstSet:         set.set,
			DstBinding:     w.Binding,
			DescriptorType: w.Type,
			BufferInfo: []core1_0.DescriptorBufferInfo{{
				Buffer: buffer,
				Offset: w.Offset,
				Range:  w.Range,
			}},
		}
	}
	return d.driver.UpdateDescriptorSets(ws, nil)
}

func (d *Device) CreatePipelineLayout(info gpu.PipelineLayoutCreateInfo) (gpu.PipelineLayout, error) {
	ls, err := lookupAll(&d.setLayouts, "descriptor set layout", info.SetLayouts)
	if err != nil {
		return 0, err
	}
	l, _, err := d.driver.CreatePipelineLayout(nil, core1_0.PipelineLayoutCreateInfo{
		SetLayouts:         ls,
		PushConstantRanges: info.PushConstantRanges,
	})
	if err != nil {
		return 0, err
	}
	return gpu.PipelineLayout(d.pipelineLayouts.add(l)), nil
}

func (d *Device) DestroyPipelineLayout(layout gpu.PipelineLayout) {
	if l, ok := d.pipelineLayouts.remove(uint64(layout)); ok {
		d.driver.DestroyPipelineLayout(l, nil)
	}
}

func (d *Device) CreateGraphicsPipeline(info gpu.GraphicsPipelineCreateInfo) (gpu.Pipeline, error) {
	create, err := d.pipelineInfo(info)
	if err != nil {
		return 0, err
	}
	pipelines, _, err := d.driver.CreateGraphicsPipelines(nil, nil, create)
	if err != nil {
		return 0, err
	}
	return gpu.Pipeline(d.pipelines.add(pipelines[0])), nil
}

func (d *Device) DestroyPipeline(pipeline gpu.Pipeline) {
	if p, ok := d.pipelines.remove(uint64(pipeline)); ok {
		d.driver.DestroyPipeline(p, nil)
	}
}

// Destroy destroys the logical device. Objects still registered are
// reported; they are owned by callers and are not released here.
func (d *Device) Destroy() {
	live := map[string]int{
		"command pool":    d.commandPools.len(),
		"semaphore":       d.semaphores.len(),
		"fence":           d.fences.len(),
		"swapchain":       d.swapchains.len(),
		"buffer":          d.buffers.len(),
		"memory":          d.memory.len(),
		"render pass":     d.renderPasses.len(),
		"framebuffer":     d.framebuffers.len(),
		"pipeline":        d.pipelines.len(),
		"shader module":   d.shaderModules.len(),
		"set layout":      d.setLayouts.len(),
		"pipeline layout": d.pipelineLayouts.len(),
	}
	for kind, n := range live {
		if n > 0 {
			d.log.WithFields(logrus.Fields{"kind": kind, "count": n}).Warn("device destroyed with live objects")
		}
	}
	d.driver.DestroyDevice(nil)
}
