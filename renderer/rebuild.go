package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/twotriangles/device"
	"github.com/vkngwrapper/twotriangles/frames"
	"github.com/vkngwrapper/twotriangles/mesh"
	"github.com/vkngwrapper/twotriangles/pipeline"
	"github.com/vkngwrapper/twotriangles/swapchain"
)

// rebuild waits for the device, then replaces the swapchain and everything
// sized by it. The old swapchain is handed to the new one as its
// predecessor and destroyed once the new one exists. A surface with no area
// suspends rendering until the next rebuild.
func (r *Renderer) rebuild(reason string) error {
	idle, err := r.ctx.WaitIdle()
	if err != nil {
		return err
	}

	support, err := swapchain.Query(r.ctx)
	if err != nil {
		return err
	}
	window := r.win.Extent()
	r.builtFor = window
	extent := swapchain.Extent(support.Capabilities, window)
	if extent.Width == 0 || extent.Height == 0 {
		if !r.suspended {
			r.log.WithField("reason", reason).Info("surface has no area, rendering suspended")
		}
		r.suspended = true
		return nil
	}
	r.suspended = false

	if err = r.releaseDerived(idle); err != nil {
		return err
	}

	chain, err := swapchain.Build(r.ctx, support, window, r.chain)
	if err != nil {
		return errors.Wrap(err, "rebuild swapchain")
	}
	if r.chain != nil {
		if err = r.chain.Destroy(idle); err != nil {
			chain.Destroy(idle)
			return err
		}
	}
	r.chain = chain

	r.frames, err = frames.Build(r.ctx, chain)
	if err != nil {
		return err
	}
	r.uniforms, err = buildUniforms(r.ctx, r.cameraLayout, r.frames.Len(), uniformSize)
	if err != nil {
		return err
	}
	r.pipeline, err = r.buildPipeline()
	if err != nil {
		return err
	}

	r.stats.Rebuilds++
	r.log.WithFields(logrus.Fields{
		"reason": reason,
		"width":  chain.Extent().Width,
		"height": chain.Extent().Height,
		"images": chain.ImageCount(),
	}).Info("swapchain resources built")
	return nil
}

func (r *Renderer) buildPipeline() (*pipeline.Pipeline, error) {
	extent := r.chain.Extent()
	return pipeline.NewBuilder().
		Device(r.ctx).
		VertexShader(r.vertexShader).
		FragmentShader(r.fragmentShader).
		SharedLayouts(r.cameraLayout).
		RenderPass(r.frames.RenderPass()).
		VertexBindings(mesh.BindingDescriptions()...).
		VertexAttributes(mesh.AttributeDescriptions()...).
		Viewports(core1_0.Viewport{
			Width:    float32(extent.Width),
			Height:   float32(extent.Height),
			MinDepth: 0,
			MaxDepth: 1,
		}).
		Scissors(core1_0.Rect2D{Extent: extent}).
		ColorBlendAttachments(core1_0.PipelineColorBlendAttachmentState{
			BlendEnabled:   false,
			ColorWriteMask: core1_0.ColorComponentRed | core1_0.ColorComponentGreen | core1_0.ColorComponentBlue | core1_0.ColorComponentAlpha,
		}).
		Build()
}

// releaseDerived destroys what depends on the swapchain, newest first. The
// swapchain itself is kept for handoff to its replacement.
func (r *Renderer) releaseDerived(idle device.Idle) error {
	if r.pipeline != nil {
		if err := r.pipeline.Destroy(idle); err != nil {
			return err
		}
		r.pipeline = nil
	}
	if r.uniforms != nil {
		if err := r.uniforms.destroy(idle); err != nil {
			return err
		}
		r.uniforms = nil
	}
	if r.frames != nil {
		if err := r.frames.Destroy(idle); err != nil {
			return err
		}
		r.frames = nil
	}
	return nil
}

// Destroy releases every object the renderer created. The device must be
// idle.
func (r *Renderer) Destroy(idle device.Idle) error {
	if err := r.ctx.CheckIdle(idle); err != nil {
		return errors.Wrap(err, "destroy renderer")
	}
	if err := r.releaseDerived(idle); err != nil {
		return err
	}
	if r.chain != nil {
		if err := r.chain.Destroy(idle); err != nil {
			return err
		}
		r.chain = nil
	}

	dev := r.ctx.Device()
	if r.vertices.buffer != 0 || r.vertices.memory != 0 {
		r.vertices.destroy(dev)
		r.vertices = hostBuffer{}
	}
	if r.cameraLayout != 0 {
		dev.DestroyDescriptorSetLayout(r.cameraLayout)
		r.cameraLayout = 0
	}
	if r.fragmentShader != 0 {
		dev.DestroyShaderModule(r.fragmentShader)
		r.fragmentShader = 0
	}
	if r.vertexShader != 0 {
		dev.DestroyShaderModule(r.vertexShader)
		r.vertexShader = 0
	}
	r.log.Debug("renderer destroyed")
	return nil
}
