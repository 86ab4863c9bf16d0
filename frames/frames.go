// Package frames builds the per-chain resources frames are rendered with:
// the depth buffer, the render pass, and one slot per swapchain image
// holding its framebuffer, command buffer and synchronization objects.
package frames

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_swapchain"

	"github.com/vkngwrapper/twotriangles/device"
	"github.com/vkngwrapper/twotriangles/gpu"
	"github.com/vkngwrapper/twotriangles/swapchain"
)

// DepthFormat is the format of the depth attachment.
var DepthFormat = core1_0.FormatD32SignedFloat

// Slot holds the resources of one swapchain image. Slot i is only ever used
// with image i.
type Slot struct {
	Framebuffer    gpu.Framebuffer
	CommandBuffer  gpu.CommandBuffer
	Fence          gpu.Fence
	ImageReady     gpu.Semaphore
	RenderComplete gpu.Semaphore

	state State
}

func (s *Slot) State() State { return s.state }

// Set is the resource set of one chain. Its length equals the chain's image
// count.
type Set struct {
	ctx *device.Context
	log logrus.FieldLogger

	extent      core1_0.Extent2D
	depthImage  gpu.Image
	depthMemory gpu.Memory
	depthView   gpu.ImageView
	renderPass  gpu.RenderPass
	slots       []Slot
	// spare is signaled by the next acquisition; the acquired slot's
	// ImageReady semaphore becomes the new spare.
	spare gpu.Semaphore
}

// Build creates the resource set for chain.
func Build(ctx *device.Context, chain *swapchain.Chain) (_ *Set, err error) {
	s := &Set{
		ctx:    ctx,
		log:    ctx.Log().WithField("component", "frames"),
		extent: chain.Extent(),
	}
	defer func() {
		if err != nil {
			s.release()
		}
	}()

	if err = s.createDepthResources(); err != nil {
		return nil, err
	}
	if err = s.createRenderPass(chain.Format().Format); err != nil {
		return nil, err
	}

	s.slots = make([]Slot, chain.ImageCount())
	if err = s.createFramebuffers(chain.Views()); err != nil {
		return nil, err
	}
	if err = s.createCommandBuffers(); err != nil {
		return nil, err
	}
	if err = s.createSyncObjects(); err != nil {
		return nil, err
	}

	s.log.WithField("slots", len(s.slots)).Debug("frame resources built")
	return s, nil
}

func (s *Set) createDepthResources() error {
	dev := s.ctx.Device()

	var err error
	s.depthImage, err = dev.CreateImage(gpu.ImageCreateInfo{
		Extent: s.extent,
		Format: DepthFormat,
		Usage:  core1_0.ImageUsageDepthStencilAttachment,
	})
	if err != nil {
		return gpu.Creation(err, "depth image")
	}

	reqs := dev.ImageMemoryRequirements(s.depthImage)
	typeIndex, err := s.ctx.MemoryTypeIndex(reqs.MemoryTypeBits, core1_0.MemoryPropertyDeviceLocal)
	if err != nil {
		return err
	}
	s.depthMemory, err = dev.AllocateMemory(reqs.Size, typeIndex)
	if err != nil {
		return gpu.Creation(err, "depth memory")
	}
	if err = dev.BindImageMemory(s.depthImage, s.depthMemory, 0); err != nil {
		return errors.Wrap(err, "bind depth memory")
	}

	s.depthView, err = dev.CreateImageView(gpu.ImageViewCreateInfo{
		Image:  s.depthImage,
		Format: DepthFormat,
		Aspect: core1_0.ImageAspectDepth,
	})
	if err != nil {
		return gpu.Creation(err, "depth view")
	}
	return nil
}

// RenderPassInfo describes a single subpass writing one color attachment
// (presented afterwards) and one depth attachment (discarded afterwards).
func RenderPassInfo(colorFormat core1_0.Format) core1_0.RenderPassCreateInfo {
	return core1_0.RenderPassCreateInfo{
		Attachments: []core1_0.AttachmentDescription{
			{
				Format:         colorFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpStore,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    khr_swapchain.ImageLayoutPresentSrc,
			},
			{
				Format:         DepthFormat,
				Samples:        core1_0.Samples1,
				LoadOp:         core1_0.AttachmentLoadOpClear,
				StoreOp:        core1_0.AttachmentStoreOpDontCare,
				StencilLoadOp:  core1_0.AttachmentLoadOpDontCare,
				StencilStoreOp: core1_0.AttachmentStoreOpDontCare,
				InitialLayout:  core1_0.ImageLayoutUndefined,
				FinalLayout:    core1_0.ImageLayoutDepthStencilAttachmentOptimal,
			},
		},
		Subpasses: []core1_0.SubpassDescription{
			{
				PipelineBindPoint: core1_0.PipelineBindPointGraphics,
				ColorAttachments: []core1_0.AttachmentReference{
					{
						Attachment: 0,
						Layout:     core1_0.ImageLayoutColorAttachmentOptimal,
					},
				},
				DepthStencilAttachment: &core1_0.AttachmentReference{
					Attachment: 1,
					Layout:     core1_0.ImageLayoutDepthStencilAttachmentOptimal,
				},
			},
		},
		SubpassDependencies: []core1_0.SubpassDependency{
			{
				SrcSubpass:    core1_0.SubpassExternal,
				DstSubpass:    0,
				SrcStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				SrcAccessMask: 0,
				DstStageMask:  core1_0.PipelineStageColorAttachmentOutput,
				DstAccessMask: core1_0.AccessColorAttachmentRead | core1_0.AccessColorAttachmentWrite,
			},
		},
	}
}

func (s *Set) createRenderPass(colorFormat core1_0.Format) error {
	var err error
	s.renderPass, err = s.ctx.Device().CreateRenderPass(RenderPassInfo(colorFormat))
	if err != nil {
		return gpu.Creation(err, "render pass")
	}
	return nil
}

func (s *Set) createFramebuffers(views []gpu.ImageView) error {
	for i, view := range views {
		fb, err := s.ctx.Device().CreateFramebuffer(gpu.FramebufferCreateInfo{
			RenderPass:  s.renderPass,
			Attachments: []gpu.ImageView{view, s.depthView},
			Extent:      s.extent,
		})
		if err != nil {
			return gpu.Creation(err, fmt.Sprintf("framebuffer %d", i))
		}
		s.slots[i].Framebuffer = fb
	}
	return nil
}

func (s *Set) createCommandBuffers() error {
	buffers, err := s.ctx.Device().AllocateCommandBuffers(s.ctx.CommandPool(), len(s.slots))
	if err != nil {
		return gpu.Creation(err, "command buffers")
	}
	for i := range s.slots {
		s.slots[i].CommandBuffer = buffers[i]
	}
	return nil
}

func (s *Set) createSyncObjects() error {
	dev := s.ctx.Device()

	var err error
	s.spare, err = dev.CreateSemaphore()
	if err != nil {
		return gpu.Creation(err, "acquire semaphore")
	}

	for i := range s.slots {
		slot := &s.slots[i]

		slot.ImageReady, err = dev.CreateSemaphore()
		if err != nil {
			return gpu.Creation(err, fmt.Sprintf("image-ready semaphore %d", i))
		}
		slot.RenderComplete, err = dev.CreateSemaphore()
		if err != nil {
			return gpu.Creation(err, fmt.Sprintf("render-complete semaphore %d", i))
		}

		// Created unsignaled and signaled by an empty submission, so the
		// first wait on a slot returns once the queue reaches it.
		slot.Fence, err = dev.CreateFence(false)
		if err != nil {
			return gpu.Creation(err, fmt.Sprintf("fence %d", i))
		}
		if err = s.ctx.Submit(gpu.SubmitInfo{}, slot.Fence); err != nil {
			return errors.Wrapf(err, "signal fence %d", i)
		}
		slot.state = StateIdle
	}
	return nil
}

func (s *Set) Len() int { return len(s.slots) }
func (s *Set) RenderPass() gpu.RenderPass { return s.renderPass }
func (s *Set) Extent() core1_0.Extent2D { return s.extent }
func (s *Set) DepthView() gpu.ImageView { return s.depthView }

// Slot returns slot i. The pointer stays valid until the set is destroyed.
func (s *Set) Slot(i int) *Slot {
	return &s.slots[i]
}

// AcquireSemaphore is the semaphore the next acquisition must signal.
func (s *Set) AcquireSemaphore() gpu.Semaphore {
	return s.spare
}

// Acquired records that the acquisition signaling AcquireSemaphore returned
// image index. The semaphore becomes the slot's ImageReady and the slot's
// previous one becomes the spare. Call it after Wait(index), so the work
// that last waited on the outgoing semaphore has completed.
func (s *Set) Acquired(index int) error {
	slot, err := s.slotFor(index, StateRecording)
	if err != nil {
		return err
	}
	slot.ImageReady, s.spare = s.spare, slot.ImageReady
	return nil
}

// Destroy releases everything in reverse creation order: synchronization
// objects, command buffers, framebuffers, render pass, then the depth view,
// image and memory.
func (s *Set) Destroy(idle device.Idle) error {
	if err := s.ctx.CheckIdle(idle); err != nil {
		return errors.Wrap(err, "destroy frame resources")
	}
	s.release()
	s.log.Debug("frame resources destroyed")
	return nil
}

func (s *Set) release() {
	dev := s.ctx.Device()

	for i := range s.slots {
		dev.DestroyFence(s.slots[i].Fence)
		dev.DestroySemaphore(s.slots[i].ImageReady)
		dev.DestroySemaphore(s.slots[i].RenderComplete)
	}
	dev.DestroySemaphore(s.spare)
	s.spare = 0

	var buffers []gpu.CommandBuffer
	for i := range s.slots {
		if s.slots[i].CommandBuffer != 0 {
			buffers = append(buffers, s.slots[i].CommandBuffer)
		}
	}
	if len(buffers) > 0 {
		dev.FreeCommandBuffers(s.ctx.CommandPool(), buffers)
	}

	for i := range s.slots {
		dev.DestroyFramebuffer(s.slots[i].Framebuffer)
	}
	s.slots = nil

	dev.DestroyRenderPass(s.renderPass)
	dev.DestroyImageView(s.depthView)
	dev.DestroyImage(s.depthImage)
	dev.FreeMemory(s.depthMemory)
	s.renderPass, s.depthView, s.depthImage, s.depthMemory = 0, 0, 0, 0
}
