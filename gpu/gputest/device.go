package gputest

import (
	"fmt"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/twotriangles/gpu"
)

// Object kinds tracked by Device.
const (
	KindCommandPool         = "command pool"
	KindCommandBuffer       = "command buffer"
	KindSemaphore           = "semaphore"
	KindFence               = "fence"
	KindSwapchain           = "swapchain"
	KindSwapchainImage      = "swapchain image"
	KindImage               = "image"
	KindImageView           = "image view"
	KindBuffer              = "buffer"
	KindMemory              = "memory"
	KindRenderPass          = "render pass"
	KindFramebuffer         = "framebuffer"
	KindShaderModule        = "shader module"
	KindDescriptorSetLayout = "descriptor set layout"
	KindDescriptorPool      = "descriptor pool"
	KindDescriptorSet       = "descriptor set"
	KindPipelineLayout      = "pipeline layout"
	KindPipeline            = "pipeline"
)

const submitFailure = "queue submit"

// Call is one entry of the device's ordered activity log.
type Call struct {
	Op     string
	Handle uint64
}

func (c Call) String() string {
	return fmt.Sprintf("%s(%d)", c.Op, c.Handle)
}

// Command is one command recorded into a command buffer.
type Command struct {
	Op         string
	RenderPass gpu.RenderPassBeginInfo
	Pipeline   gpu.Pipeline
	Buffers    []gpu.Buffer
	Layout     gpu.PipelineLayout
	Sets       []gpu.DescriptorSet
	Draw       gpu.DrawInfo
}

// Outcome is an injected result for the next acquire or present.
type Outcome struct {
	Suboptimal bool
	Err        error
}

type object struct {
	kind  string
	owner uint64
}

type fence struct {
	signaled bool
}

type submission struct {
	fence   gpu.Fence
	buffers []gpu.CommandBuffer
}

type swapchain struct {
	info   gpu.SwapchainCreateInfo
	images []gpu.Image
	next   int
}

type commandBuffer struct {
	recording bool
	pending   bool
	commands  []Command
}

// Device is a fake gpu.Device. It is safe for concurrent use; WaitForFences
// blocks until the fences are signaled by completed submissions.
type Device struct {
	mu   sync.Mutex
	cond *sync.Cond

	instance *Instance
	physical gpu.PhysicalDevice
	adapter  Adapter
	info     gpu.DeviceCreateInfo

	next       uint64
	objects    map[uint64]object
	calls      []Call
	violations []string
	destroyed  bool
	lost       bool

	hold       bool
	pending    []submission
	fences     map[gpu.Fence]*fence
	buffers    map[gpu.CommandBuffer]*commandBuffer
	swapchains map[gpu.Swapchain]*swapchain
	memory     map[gpu.Memory][]byte
	memoryType map[gpu.Memory]int
	mapped     map[gpu.Memory]bool
	sizes      map[uint64]int

	acquireSequence []int
	acquireOutcomes []Outcome
	presentOutcomes []Outcome
	failures        map[string]error

	swapchainInfos   []gpu.SwapchainCreateInfo
	renderPasses     map[gpu.RenderPass]core1_0.RenderPassCreateInfo
	framebuffers     map[gpu.Framebuffer]gpu.FramebufferCreateInfo
	pipelines        map[gpu.Pipeline]gpu.GraphicsPipelineCreateInfo
	pipelineLayouts  map[gpu.PipelineLayout]gpu.PipelineLayoutCreateInfo
	setLayouts       map[gpu.DescriptorSetLayout][]core1_0.DescriptorSetLayoutBinding
	descriptorWrites []gpu.DescriptorBufferWrite
	submits          []gpu.SubmitInfo
	presents         []gpu.PresentInfo
}

var _ gpu.Device = (*Device)(nil)

func newDevice(instance *Instance, pd gpu.PhysicalDevice, adapter Adapter, info gpu.DeviceCreateInfo) *Device {
	d := &Device{
		instance:        instance,
		physical:        pd,
		adapter:         adapter,
		info:            info,
		objects:         map[uint64]object{},
		fences:          map[gpu.Fence]*fence{},
		buffers:         map[gpu.CommandBuffer]*commandBuffer{},
		swapchains:      map[gpu.Swapchain]*swapchain{},
		memory:          map[gpu.Memory][]byte{},
		memoryType:      map[gpu.Memory]int{},
		mapped:          map[gpu.Memory]bool{},
		sizes:           map[uint64]int{},
		failures:        map[string]error{},
		renderPasses:    map[gpu.RenderPass]core1_0.RenderPassCreateInfo{},
		framebuffers:    map[gpu.Framebuffer]gpu.FramebufferCreateInfo{},
		pipelines:       map[gpu.Pipeline]gpu.GraphicsPipelineCreateInfo{},
		pipelineLayouts: map[gpu.PipelineLayout]gpu.PipelineLayoutCreateInfo{},
		setLayouts:      map[gpu.DescriptorSetLayout][]core1_0.DescriptorSetLayoutBinding{},
	}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// Test controls.

// Hold makes submissions that carry command buffers stay pending until
// Complete is called. Empty submissions always complete immediately.
func (d *Device) Hold(hold bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hold = hold
}

// Complete finishes every pending submission and signals their fences.
func (d *Device) Complete() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.completeLocked()
}

// Pending returns the number of submissions not yet completed.
func (d *Device) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.pending)
}

// Lose puts the device into the lost state; blocked and later queue
// operations fail with gpu.ErrDeviceLost.
func (d *Device) Lose() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lost = true
	d.cond.Broadcast()
}

// AcquireSequence sets the image indices returned by the next acquisitions.
// Once exhausted, acquisition falls back to round-robin.
func (d *Device) AcquireSequence(indices ...int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireSequence = append(d.acquireSequence, indices...)
}

// InjectAcquire queues an outcome for the next acquisition.
func (d *Device) InjectAcquire(o Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.acquireOutcomes = append(d.acquireOutcomes, o)
}

// InjectPresent queues an outcome for the next presentation.
func (d *Device) InjectPresent(o Outcome) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.presentOutcomes = append(d.presentOutcomes, o)
}

// FailNext makes the next creation of the given object kind fail with err.
func (d *Device) FailNext(kind string, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failures[kind] = err
}

// FailNextSubmit makes the next queue submission fail with err. Nothing of
// the failed submission takes effect.
func (d *Device) FailNextSubmit(err error) {
	d.FailNext(submitFailure, err)
}

// Inspection.

func (d *Device) Destroyed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.destroyed
}

func (d *Device) Info() gpu.DeviceCreateInfo {
	return d.info
}

func (d *Device) PhysicalDevice() gpu.PhysicalDevice {
	return d.physical
}

// Calls returns the ordered activity log.
func (d *Device) Calls() []Call {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Call(nil), d.calls...)
}

// Violations lists misuse the device detected, such as destroying an object
// twice or resetting a command buffer the GPU may still be reading.
func (d *Device) Violations() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.violations...)
}

// Live returns the number of live objects of a kind.
func (d *Device) Live(kind string) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	n := 0
	for _, o := range d.objects {
		if o.kind == kind {
			n++
		}
	}
	return n
}

// LiveKinds returns the kinds that still have live objects, sorted.
func (d *Device) LiveKinds() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.liveKindsLocked()
}

func (d *Device) liveKindsLocked() []string {
	seen := map[string]bool{}
	for _, o := range d.objects {
		seen[o.kind] = true
	}
	kinds := make([]string, 0, len(seen))
	for k := range seen {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// IsLive reports whether handle names a live object of the kind.
func (d *Device) IsLive(kind string, handle uint64) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	o, ok := d.objects[handle]
	return ok && o.kind == kind
}

func (d *Device) Commands(buffer gpu.CommandBuffer) []Command {
	d.mu.Lock()
	defer d.mu.Unlock()
	if cb, ok := d.buffers[buffer]; ok {
		return append([]Command(nil), cb.commands...)
	}
	return nil
}

func (d *Device) FenceSignaled(f gpu.Fence) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.fences[f] != nil && d.fences[f].signaled
}

func (d *Device) SwapchainInfos() []gpu.SwapchainCreateInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.SwapchainCreateInfo(nil), d.swapchainInfos...)
}

func (d *Device) RenderPassInfo(pass gpu.RenderPass) core1_0.RenderPassCreateInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.renderPasses[pass]
}

func (d *Device) FramebufferInfo(fb gpu.Framebuffer) gpu.FramebufferCreateInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.framebuffers[fb]
}

func (d *Device) PipelineInfo(p gpu.Pipeline) gpu.GraphicsPipelineCreateInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipelines[p]
}

func (d *Device) PipelineLayoutInfo(l gpu.PipelineLayout) gpu.PipelineLayoutCreateInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pipelineLayouts[l]
}

func (d *Device) SetLayoutBindings(l gpu.DescriptorSetLayout) []core1_0.DescriptorSetLayoutBinding {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.setLayouts[l]
}

func (d *Device) DescriptorWrites() []gpu.DescriptorBufferWrite {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.DescriptorBufferWrite(nil), d.descriptorWrites...)
}

func (d *Device) Submits() []gpu.SubmitInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.SubmitInfo(nil), d.submits...)
}

func (d *Device) Presents() []gpu.PresentInfo {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]gpu.PresentInfo(nil), d.presents...)
}

// MemoryContents returns a copy of an allocation's bytes.
func (d *Device) MemoryContents(m gpu.Memory) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.memory[m]...)
}

func (d *Device) MemoryTypeOf(m gpu.Memory) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.memoryType[m]
}

// Internal helpers. All expect d.mu to be held.

func (d *Device) record(op string, handle uint64) {
	d.calls = append(d.calls, Call{Op: op, Handle: handle})
}

func (d *Device) violate(format string, args ...interface{}) {
	d.violations = append(d.violations, fmt.Sprintf(format, args...))
}

func (d *Device) create(kind string) (uint64, error) {
	if d.destroyed {
		d.violate("create %s on destroyed device", kind)
	}
	if err, ok := d.failures[kind]; ok {
		delete(d.failures, kind)
		return 0, err
	}
	d.next++
	d.objects[d.next] = object{kind: kind}
	d.record("Create "+kind, d.next)
	return d.next, nil
}

func (d *Device) destroy(kind string, handle uint64) bool {
	if handle == 0 {
		return false
	}
	o, ok := d.objects[handle]
	if !ok {
		d.violate("destroy of unknown %s %d", kind, handle)
		return false
	}
	if o.kind != kind {
		d.violate("destroy of %s %d as %s", o.kind, handle, kind)
		return false
	}
	delete(d.objects, handle)
	d.record("Destroy "+kind, handle)
	return true
}

func (d *Device) check(kind string, handle uint64) bool {
	o, ok := d.objects[handle]
	if !ok || o.kind != kind {
		d.violate("use of invalid %s %d", kind, handle)
		return false
	}
	return true
}

func (d *Device) lostErr(op string) error {
	return errors.Mark(errors.Newf("%s: device lost", op), gpu.ErrDeviceLost)
}

func (d *Device) completeLocked() {
	for _, s := range d.pending {
		d.finish(s)
	}
	d.pending = nil
	d.cond.Broadcast()
}

func (d *Device) finish(s submission) {
	if f, ok := d.fences[s.fence]; ok {
		f.signaled = true
	}
	for _, b := range s.buffers {
		if cb, ok := d.buffers[b]; ok {
			cb.pending = false
		}
	}
}

// gpu.Device implementation.

func (d *Device) Queue() gpu.Queue {
	return gpu.Queue(1)
}

func (d *Device) CreateCommandPool(info gpu.CommandPoolCreateInfo) (gpu.CommandPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !info.ResetBuffers {
		d.violate("command pool created without individual buffer reset")
	}
	h, err := d.create(KindCommandPool)
	return gpu.CommandPool(h), err
}

func (d *Device) DestroyCommandPool(pool gpu.CommandPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.destroy(KindCommandPool, uint64(pool)) {
		return
	}
	for h, o := range d.objects {
		if o.kind == KindCommandBuffer && o.owner == uint64(pool) {
			delete(d.objects, h)
			delete(d.buffers, gpu.CommandBuffer(h))
		}
	}
}

func (d *Device) AllocateCommandBuffers(pool gpu.CommandPool, count int) ([]gpu.CommandBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.check(KindCommandPool, uint64(pool)) {
		return nil, errors.Errorf("invalid command pool %d", pool)
	}
	out := make([]gpu.CommandBuffer, 0, count)
	for i := 0; i < count; i++ {
		h, err := d.create(KindCommandBuffer)
		if err != nil {
			for _, b := range out {
				d.destroy(KindCommandBuffer, uint64(b))
			}
			return nil, err
		}
		d.objects[h] = object{kind: KindCommandBuffer, owner: uint64(pool)}
		d.buffers[gpu.CommandBuffer(h)] = &commandBuffer{}
		out = append(out, gpu.CommandBuffer(h))
	}
	return out, nil
}

func (d *Device) FreeCommandBuffers(pool gpu.CommandPool, buffers []gpu.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range buffers {
		if cb, ok := d.buffers[b]; ok && cb.pending {
			d.violate("free of pending command buffer %d", b)
		}
		if d.destroy(KindCommandBuffer, uint64(b)) {
			delete(d.buffers, b)
		}
	}
}

func (d *Device) ResetCommandBuffer(buffer gpu.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("ResetCommandBuffer", uint64(buffer))
	cb, ok := d.buffers[buffer]
	if !ok {
		return errors.Errorf("invalid command buffer %d", buffer)
	}
	if cb.pending {
		d.violate("reset of pending command buffer %d", buffer)
	}
	cb.commands = nil
	cb.recording = false
	return nil
}

func (d *Device) BeginCommandBuffer(buffer gpu.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("BeginCommandBuffer", uint64(buffer))
	cb, ok := d.buffers[buffer]
	if !ok {
		return errors.Errorf("invalid command buffer %d", buffer)
	}
	if cb.pending {
		d.violate("begin of pending command buffer %d", buffer)
	}
	cb.commands = nil
	cb.recording = true
	return nil
}

func (d *Device) EndCommandBuffer(buffer gpu.CommandBuffer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("EndCommandBuffer", uint64(buffer))
	cb, ok := d.buffers[buffer]
	if !ok || !cb.recording {
		return errors.Errorf("command buffer %d is not recording", buffer)
	}
	cb.recording = false
	return nil
}

func (d *Device) appendCommand(buffer gpu.CommandBuffer, c Command) {
	cb, ok := d.buffers[buffer]
	if !ok || !cb.recording {
		d.violate("%s outside recording on command buffer %d", c.Op, buffer)
		return
	}
	cb.commands = append(cb.commands, c)
}

func (d *Device) CmdBeginRenderPass(buffer gpu.CommandBuffer, info gpu.RenderPassBeginInfo) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.check(KindRenderPass, uint64(info.RenderPass))
	d.check(KindFramebuffer, uint64(info.Framebuffer))
	d.appendCommand(buffer, Command{Op: "BeginRenderPass", RenderPass: info})
	return nil
}

func (d *Device) CmdBindPipeline(buffer gpu.CommandBuffer, pipeline gpu.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.check(KindPipeline, uint64(pipeline))
	d.appendCommand(buffer, Command{Op: "BindPipeline", Pipeline: pipeline})
}

func (d *Device) CmdBindVertexBuffers(buffer gpu.CommandBuffer, buffers []gpu.Buffer, offsets []int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, b := range buffers {
		d.check(KindBuffer, uint64(b))
	}
	d.appendCommand(buffer, Command{Op: "BindVertexBuffers", Buffers: append([]gpu.Buffer(nil), buffers...)})
}

func (d *Device) CmdBindDescriptorSets(buffer gpu.CommandBuffer, layout gpu.PipelineLayout, firstSet int, sets []gpu.DescriptorSet) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.check(KindPipelineLayout, uint64(layout))
	for _, s := range sets {
		d.check(KindDescriptorSet, uint64(s))
	}
	d.appendCommand(buffer, Command{Op: "BindDescriptorSets", Layout: layout, Sets: append([]gpu.DescriptorSet(nil), sets...)})
}

func (d *Device) CmdDraw(buffer gpu.CommandBuffer, draw gpu.DrawInfo) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appendCommand(buffer, Command{Op: "Draw", Draw: draw})
}

func (d *Device) CmdEndRenderPass(buffer gpu.CommandBuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.appendCommand(buffer, Command{Op: "EndRenderPass"})
}

func (d *Device) CreateSemaphore() (gpu.Semaphore, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindSemaphore)
	return gpu.Semaphore(h), err
}

func (d *Device) DestroySemaphore(semaphore gpu.Semaphore) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindSemaphore, uint64(semaphore))
}

func (d *Device) CreateFence(signaled bool) (gpu.Fence, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindFence)
	if err != nil {
		return 0, err
	}
	d.fences[gpu.Fence(h)] = &fence{signaled: signaled}
	return gpu.Fence(h), nil
}

func (d *Device) DestroyFence(f gpu.Fence) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.pending {
		if s.fence == f {
			d.violate("destroy of fence %d with pending work", f)
		}
	}
	if d.destroy(KindFence, uint64(f)) {
		delete(d.fences, f)
	}
}

func (d *Device) WaitForFences(fences ...gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		d.record("WaitForFences", uint64(f))
	}
	for {
		if d.lost {
			return d.lostErr("wait for fences")
		}
		done := true
		for _, f := range fences {
			st, ok := d.fences[f]
			if !ok {
				return errors.Errorf("invalid fence %d", f)
			}
			if !st.signaled {
				done = false
			}
		}
		if done {
			return nil
		}
		d.cond.Wait()
	}
}

func (d *Device) ResetFences(fences ...gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, f := range fences {
		d.record("ResetFences", uint64(f))
		st, ok := d.fences[f]
		if !ok {
			return errors.Errorf("invalid fence %d", f)
		}
		for _, s := range d.pending {
			if s.fence == f {
				d.violate("reset of fence %d with pending work", f)
			}
		}
		st.signaled = false
	}
	return nil
}

func (d *Device) QueueSubmit(info gpu.SubmitInfo, f gpu.Fence) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("QueueSubmit", uint64(f))
	if d.lost {
		return d.lostErr("queue submit")
	}
	if err, ok := d.failures[submitFailure]; ok {
		delete(d.failures, submitFailure)
		return err
	}
	if f != 0 {
		st, ok := d.fences[f]
		if !ok {
			return errors.Errorf("invalid fence %d", f)
		}
		if st.signaled {
			d.violate("submit with signaled fence %d", f)
		}
	}
	for _, s := range append(append([]gpu.Semaphore(nil), info.WaitSemaphores...), info.SignalSemaphores...) {
		d.check(KindSemaphore, uint64(s))
	}
	if len(info.WaitSemaphores) != len(info.WaitStages) {
		d.violate("submit with %d wait semaphores and %d wait stages", len(info.WaitSemaphores), len(info.WaitStages))
	}
	for _, b := range info.CommandBuffers {
		cb, ok := d.buffers[b]
		if !ok {
			return errors.Errorf("invalid command buffer %d", b)
		}
		if cb.recording {
			d.violate("submit of command buffer %d still recording", b)
		}
		cb.pending = true
	}
	d.submits = append(d.submits, info)

	s := submission{fence: f, buffers: append([]gpu.CommandBuffer(nil), info.CommandBuffers...)}
	if d.hold && len(info.CommandBuffers) > 0 {
		d.pending = append(d.pending, s)
		return nil
	}
	d.finish(s)
	d.cond.Broadcast()
	return nil
}

func (d *Device) AcquireNextImage(sc gpu.Swapchain, semaphore gpu.Semaphore) (int, bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("AcquireNextImage", uint64(semaphore))
	if d.lost {
		return 0, false, d.lostErr("acquire")
	}
	d.check(KindSemaphore, uint64(semaphore))
	chain, ok := d.swapchains[sc]
	if !ok {
		return 0, false, errors.Errorf("invalid swapchain %d", sc)
	}

	var outcome Outcome
	if len(d.acquireOutcomes) > 0 {
		outcome = d.acquireOutcomes[0]
		d.acquireOutcomes = d.acquireOutcomes[1:]
	}
	if outcome.Err != nil {
		return 0, false, outcome.Err
	}

	var idx int
	if len(d.acquireSequence) > 0 {
		idx = d.acquireSequence[0]
		d.acquireSequence = d.acquireSequence[1:]
	} else {
		idx = chain.next
	}
	chain.next = (idx + 1) % len(chain.images)
	return idx, outcome.Suboptimal, nil
}

func (d *Device) QueuePresent(info gpu.PresentInfo) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("QueuePresent", uint64(info.ImageIndex))
	if d.lost {
		return false, d.lostErr("present")
	}
	if _, ok := d.swapchains[info.Swapchain]; !ok {
		return false, errors.Errorf("invalid swapchain %d", info.Swapchain)
	}
	for _, s := range info.WaitSemaphores {
		d.check(KindSemaphore, uint64(s))
	}
	d.presents = append(d.presents, info)

	var outcome Outcome
	if len(d.presentOutcomes) > 0 {
		outcome = d.presentOutcomes[0]
		d.presentOutcomes = d.presentOutcomes[1:]
	}
	return outcome.Suboptimal, outcome.Err
}

func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("WaitIdle", 0)
	if d.lost {
		return d.lostErr("wait idle")
	}
	d.completeLocked()
	return nil
}

func (d *Device) CreateSwapchain(info gpu.SwapchainCreateInfo) (gpu.Swapchain, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if info.OldSwapchain != 0 {
		d.check(KindSwapchain, uint64(info.OldSwapchain))
	}
	h, err := d.create(KindSwapchain)
	if err != nil {
		return 0, err
	}
	chain := &swapchain{info: info}
	for i := 0; i < info.MinImageCount; i++ {
		d.next++
		d.objects[d.next] = object{kind: KindSwapchainImage, owner: h}
		d.sizes[d.next] = info.Extent.Width * info.Extent.Height * 4
		chain.images = append(chain.images, gpu.Image(d.next))
	}
	d.swapchains[gpu.Swapchain(h)] = chain
	d.swapchainInfos = append(d.swapchainInfos, info)
	return gpu.Swapchain(h), nil
}

func (d *Device) SwapchainImages(sc gpu.Swapchain) ([]gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	chain, ok := d.swapchains[sc]
	if !ok {
		return nil, errors.Errorf("invalid swapchain %d", sc)
	}
	return append([]gpu.Image(nil), chain.images...), nil
}

func (d *Device) DestroySwapchain(sc gpu.Swapchain) {
	d.mu.Lock()
	defer d.mu.Unlock()
	chain, ok := d.swapchains[sc]
	if !d.destroy(KindSwapchain, uint64(sc)) || !ok {
		return
	}
	for _, img := range chain.images {
		delete(d.objects, uint64(img))
	}
	delete(d.swapchains, sc)
}

func (d *Device) CreateImage(info gpu.ImageCreateInfo) (gpu.Image, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindImage)
	if err != nil {
		return 0, err
	}
	d.sizes[h] = info.Extent.Width * info.Extent.Height * 4
	return gpu.Image(h), nil
}

func (d *Device) DestroyImage(image gpu.Image) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindImage, uint64(image))
}

func (d *Device) allTypeBits() uint32 {
	return uint32(1)<<uint(len(d.adapter.MemoryTypes)) - 1
}

func (d *Device) ImageMemoryRequirements(image gpu.Image) gpu.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.check(KindImage, uint64(image))
	return gpu.MemoryRequirements{Size: d.sizes[uint64(image)], Alignment: 256, MemoryTypeBits: d.allTypeBits()}
}

func (d *Device) CreateImageView(info gpu.ImageViewCreateInfo) (gpu.ImageView, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if o, ok := d.objects[uint64(info.Image)]; !ok || (o.kind != KindImage && o.kind != KindSwapchainImage) {
		d.violate("image view of invalid image %d", info.Image)
	}
	h, err := d.create(KindImageView)
	return gpu.ImageView(h), err
}

func (d *Device) DestroyImageView(view gpu.ImageView) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindImageView, uint64(view))
}

func (d *Device) CreateBuffer(info gpu.BufferCreateInfo) (gpu.Buffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindBuffer)
	if err != nil {
		return 0, err
	}
	d.sizes[h] = info.Size
	return gpu.Buffer(h), nil
}

func (d *Device) DestroyBuffer(buffer gpu.Buffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindBuffer, uint64(buffer))
}

func (d *Device) BufferMemoryRequirements(buffer gpu.Buffer) gpu.MemoryRequirements {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.check(KindBuffer, uint64(buffer))
	return gpu.MemoryRequirements{Size: d.sizes[uint64(buffer)], Alignment: 16, MemoryTypeBits: d.allTypeBits()}
}

func (d *Device) AllocateMemory(size int, typeIndex int) (gpu.Memory, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if typeIndex < 0 || typeIndex >= len(d.adapter.MemoryTypes) {
		return 0, errors.Errorf("memory type %d out of range", typeIndex)
	}
	h, err := d.create(KindMemory)
	if err != nil {
		return 0, err
	}
	d.memory[gpu.Memory(h)] = make([]byte, size)
	d.memoryType[gpu.Memory(h)] = typeIndex
	return gpu.Memory(h), nil
}

func (d *Device) FreeMemory(memory gpu.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mapped[memory] {
		d.violate("free of mapped memory %d", memory)
	}
	if d.destroy(KindMemory, uint64(memory)) {
		delete(d.memory, memory)
	}
}

func (d *Device) BindImageMemory(image gpu.Image, memory gpu.Memory, offset int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.check(KindImage, uint64(image)) || !d.check(KindMemory, uint64(memory)) {
		return errors.New("invalid image memory binding")
	}
	return nil
}

func (d *Device) BindBufferMemory(buffer gpu.Buffer, memory gpu.Memory, offset int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.check(KindBuffer, uint64(buffer)) || !d.check(KindMemory, uint64(memory)) {
		return errors.New("invalid buffer memory binding")
	}
	return nil
}

func (d *Device) MapMemory(memory gpu.Memory, offset, size int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	data, ok := d.memory[memory]
	if !ok {
		return nil, errors.Errorf("invalid memory %d", memory)
	}
	if d.mapped[memory] {
		return nil, errors.Errorf("memory %d already mapped", memory)
	}
	if !d.hostVisible(memory) {
		return nil, errors.Errorf("memory %d is not host visible", memory)
	}
	if offset < 0 || offset+size > len(data) {
		return nil, errors.Errorf("map range %d+%d exceeds allocation of %d", offset, size, len(data))
	}
	d.mapped[memory] = true
	return data[offset : offset+size], nil
}

func (d *Device) hostVisible(memory gpu.Memory) bool {
	t := d.memoryType[memory]
	return d.adapter.MemoryTypes[t].Flags&core1_0.MemoryPropertyHostVisible != 0
}

func (d *Device) FlushMemory(memory gpu.Memory, offset, size int) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.record("FlushMemory", uint64(memory))
	if !d.mapped[memory] {
		return errors.Errorf("flush of unmapped memory %d", memory)
	}
	return nil
}

func (d *Device) UnmapMemory(memory gpu.Memory) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.mapped[memory] {
		d.violate("unmap of unmapped memory %d", memory)
	}
	delete(d.mapped, memory)
}

func (d *Device) CreateRenderPass(info core1_0.RenderPassCreateInfo) (gpu.RenderPass, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindRenderPass)
	if err != nil {
		return 0, err
	}
	d.renderPasses[gpu.RenderPass(h)] = info
	return gpu.RenderPass(h), nil
}

func (d *Device) DestroyRenderPass(pass gpu.RenderPass) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindRenderPass, uint64(pass))
}

func (d *Device) CreateFramebuffer(info gpu.FramebufferCreateInfo) (gpu.Framebuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.check(KindRenderPass, uint64(info.RenderPass))
	for _, v := range info.Attachments {
		d.check(KindImageView, uint64(v))
	}
	h, err := d.create(KindFramebuffer)
	if err != nil {
		return 0, err
	}
	info.Attachments = append([]gpu.ImageView(nil), info.Attachments...)
	d.framebuffers[gpu.Framebuffer(h)] = info
	return gpu.Framebuffer(h), nil
}

func (d *Device) DestroyFramebuffer(framebuffer gpu.Framebuffer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindFramebuffer, uint64(framebuffer))
}

func (d *Device) CreateShaderModule(code []uint32) (gpu.ShaderModule, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(code) == 0 {
		return 0, errors.New("empty shader code")
	}
	h, err := d.create(KindShaderModule)
	return gpu.ShaderModule(h), err
}

func (d *Device) DestroyShaderModule(module gpu.ShaderModule) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindShaderModule, uint64(module))
}

func (d *Device) CreateDescriptorSetLayout(bindings []core1_0.DescriptorSetLayoutBinding) (gpu.DescriptorSetLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindDescriptorSetLayout)
	if err != nil {
		return 0, err
	}
	d.setLayouts[gpu.DescriptorSetLayout(h)] = append([]core1_0.DescriptorSetLayoutBinding(nil), bindings...)
	return gpu.DescriptorSetLayout(h), nil
}

func (d *Device) DestroyDescriptorSetLayout(layout gpu.DescriptorSetLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindDescriptorSetLayout, uint64(layout))
}

func (d *Device) CreateDescriptorPool(maxSets int, sizes []core1_0.DescriptorPoolSize) (gpu.DescriptorPool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	h, err := d.create(KindDescriptorPool)
	if err != nil {
		return 0, err
	}
	d.sizes[h] = maxSets
	return gpu.DescriptorPool(h), nil
}

func (d *Device) DestroyDescriptorPool(pool gpu.DescriptorPool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.destroy(KindDescriptorPool, uint64(pool)) {
		return
	}
	for h, o := range d.objects {
		if o.kind == KindDescriptorSet && o.owner == uint64(pool) {
			delete(d.objects, h)
		}
	}
}

func (d *Device) AllocateDescriptorSets(pool gpu.DescriptorPool, layouts []gpu.DescriptorSetLayout) ([]gpu.DescriptorSet, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.check(KindDescriptorPool, uint64(pool)) {
		return nil, errors.Errorf("invalid descriptor pool %d", pool)
	}
	used := 0
	for _, o := range d.objects {
		if o.kind == KindDescriptorSet && o.owner == uint64(pool) {
			used++
		}
	}
	if used+len(layouts) > d.sizes[uint64(pool)] {
		return nil, errors.Errorf("descriptor pool %d exhausted", pool)
	}
	out := make([]gpu.DescriptorSet, 0, len(layouts))
	for _, l := range layouts {
		d.check(KindDescriptorSetLayout, uint64(l))
		h, err := d.create(KindDescriptorSet)
		if err != nil {
			return nil, err
		}
		d.objects[h] = object{kind: KindDescriptorSet, owner: uint64(pool)}
		out = append(out, gpu.DescriptorSet(h))
	}
	return out, nil
}

func (d *Device) UpdateDescriptorSets(writes []gpu.DescriptorBufferWrite) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, w := range writes {
		if !d.check(KindDescriptorSet, uint64(w.Set)) || !d.check(KindBuffer, uint64(w.Buffer)) {
			return errors.New("invalid descriptor write")
		}
	}
	d.descriptorWrites = append(d.descriptorWrites, writes...)
	return nil
}

func (d *Device) CreatePipelineLayout(info gpu.PipelineLayoutCreateInfo) (gpu.PipelineLayout, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, l := range info.SetLayouts {
		d.check(KindDescriptorSetLayout, uint64(l))
	}
	h, err := d.create(KindPipelineLayout)
	if err != nil {
		return 0, err
	}
	d.pipelineLayouts[gpu.PipelineLayout(h)] = info
	return gpu.PipelineLayout(h), nil
}

func (d *Device) DestroyPipelineLayout(layout gpu.PipelineLayout) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindPipelineLayout, uint64(layout))
}

func (d *Device) CreateGraphicsPipeline(info gpu.GraphicsPipelineCreateInfo) (gpu.Pipeline, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.check(KindPipelineLayout, uint64(info.Layout))
	d.check(KindRenderPass, uint64(info.RenderPass))
	for _, s := range info.Stages {
		d.check(KindShaderModule, uint64(s.Module))
	}
	h, err := d.create(KindPipeline)
	if err != nil {
		return 0, err
	}
	info.State = info.State.Clone()
	d.pipelines[gpu.Pipeline(h)] = info
	return gpu.Pipeline(h), nil
}

func (d *Device) DestroyPipeline(pipeline gpu.Pipeline) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.destroy(KindPipeline, uint64(pipeline))
}

func (d *Device) Destroy() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.destroyed {
		d.violate("device destroyed twice")
	}
	if kinds := d.liveKindsLocked(); len(kinds) > 0 {
		d.violate("device destroyed with live objects: %v", kinds)
	}
	d.destroyed = true
	d.record("DestroyDevice", 0)
}
