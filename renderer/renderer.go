// Package renderer drives frames: it acquires an image, records and
// submits the draw for it, presents it, and rebuilds the swapchain and
// everything derived from it when the surface changes.
package renderer

import (
	"github.com/cockroachdb/errors"
	"github.com/go-gl/mathgl/mgl32"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/twotriangles/device"
	"github.com/vkngwrapper/twotriangles/frames"
	"github.com/vkngwrapper/twotriangles/gpu"
	"github.com/vkngwrapper/twotriangles/mesh"
	"github.com/vkngwrapper/twotriangles/pipeline"
	"github.com/vkngwrapper/twotriangles/swapchain"
)

// Assets are the inputs uploaded once at construction.
type Assets struct {
	VertexShader   []uint32
	FragmentShader []uint32
	Vertices       []mesh.Vertex
}

type Config struct {
	ClearColor [4]float32
	Log        logrus.FieldLogger
}

// DefaultConfig clears to opaque black.
func DefaultConfig() Config {
	return Config{ClearColor: [4]float32{0, 0, 0, 1}}
}

type Stats struct {
	// Frames counts frames the presentation engine accepted. A present
	// that reports the swapchain out of date is not counted.
	Frames int
	// Rebuilds counts swapchain rebuilds after construction.
	Rebuilds int
	// Skipped counts frame requests dropped while the surface had no area.
	Skipped int
}

type Renderer struct {
	ctx *device.Context
	win device.Window
	log logrus.FieldLogger
	cfg Config

	vertexShader   gpu.ShaderModule
	fragmentShader gpu.ShaderModule
	cameraLayout   gpu.DescriptorSetLayout
	vertices       hostBuffer
	vertexCount    int

	chain    *swapchain.Chain
	frames   *frames.Set
	uniforms *uniformSet
	pipeline *pipeline.Pipeline

	// builtFor is the window extent the current chain was built for.
	builtFor  core1_0.Extent2D
	suspended bool
	// abandoned is set when a frame failed after acquiring its image.
	abandoned bool
	stats     Stats
}

var uniformSize = len(mgl32.Mat4{}) * 4

// New uploads the assets and builds the swapchain, the frame resources and
// the pipeline for win's current extent.
func New(ctx *device.Context, win device.Window, assets Assets, cfg Config) (_ *Renderer, err error) {
	log := cfg.Log
	if log == nil {
		log = ctx.Log()
	}
	if len(assets.Vertices) == 0 {
		return nil, errors.New("renderer needs at least one vertex")
	}

	r := &Renderer{
		ctx:         ctx,
		win:         win,
		log:         log.WithField("component", "renderer"),
		cfg:         cfg,
		vertexCount: len(assets.Vertices),
	}
	defer func() {
		if err == nil {
			return
		}
		idle, waitErr := ctx.WaitIdle()
		if waitErr != nil {
			r.log.WithError(waitErr).Warn("cannot release partially built renderer")
			return
		}
		if destroyErr := r.Destroy(idle); destroyErr != nil {
			r.log.WithError(destroyErr).Warn("release partially built renderer")
		}
	}()

	dev := ctx.Device()
	r.vertexShader, err = dev.CreateShaderModule(assets.VertexShader)
	if err != nil {
		return nil, gpu.Creation(err, "vertex shader")
	}
	if len(assets.FragmentShader) > 0 {
		r.fragmentShader, err = dev.CreateShaderModule(assets.FragmentShader)
		if err != nil {
			return nil, gpu.Creation(err, "fragment shader")
		}
	}

	r.cameraLayout, err = dev.CreateDescriptorSetLayout([]core1_0.DescriptorSetLayoutBinding{
		{
			Binding:         0,
			DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
			DescriptorCount: 1,
			StageFlags:      core1_0.StageVertex,
		},
	})
	if err != nil {
		return nil, gpu.Creation(err, "camera descriptor set layout")
	}

	r.vertices, err = createHostBuffer(ctx, len(assets.Vertices)*mesh.VertexSize, core1_0.BufferUsageVertexBuffer)
	if err != nil {
		return nil, errors.Wrap(err, "vertex buffer")
	}
	if err = r.vertices.write(dev, assets.Vertices); err != nil {
		return nil, errors.Wrap(err, "upload vertices")
	}

	if err = r.rebuild("initial build"); err != nil {
		return nil, err
	}
	r.stats.Rebuilds = 0
	return r, nil
}

func (r *Renderer) Chain() *swapchain.Chain { return r.chain }
func (r *Renderer) Frames() *frames.Set { return r.frames }
func (r *Renderer) Pipeline() *pipeline.Pipeline { return r.pipeline }
func (r *Renderer) Suspended() bool { return r.suspended }
func (r *Renderer) Stats() Stats { return r.stats }

// Update rebuilds when the window's extent changed since the last build.
func (r *Renderer) Update() error {
	extent := r.win.Extent()
	if extent == r.builtFor {
		return nil
	}
	return r.Resized()
}

// Resized rebuilds the swapchain, the frame resources and the pipeline.
func (r *Renderer) Resized() error {
	return r.rebuild("window resized")
}

// AdvanceFrame renders and presents one frame with transform as the camera
// matrix. An out-of-date or suboptimal swapchain is rebuilt and the frame is
// dropped or finished, respectively. Device loss is returned.
//
// A frame that fails between acquisition and submission hands its slot back
// and the swapchain is rebuilt on the next call, which returns the image that
// was acquired but never presented.
func (r *Renderer) AdvanceFrame(transform mgl32.Mat4) error {
	if r.abandoned && !r.suspended {
		if err := r.rebuild("frame abandoned"); err != nil {
			return err
		}
		r.abandoned = false
	}
	if r.suspended || r.chain == nil {
		r.stats.Skipped++
		return nil
	}

	index, acquireSuboptimal, err := r.ctx.Acquire(r.chain.Handle(), r.frames.AcquireSemaphore())
	if gpu.IsInvalidation(err) {
		return r.rebuild("swapchain out of date at acquire")
	}
	if err != nil {
		return errors.Wrap(err, "acquire image")
	}

	if err = r.frames.Wait(index); err != nil {
		return err
	}
	if err = r.frames.Acquired(index); err != nil {
		return err
	}
	if err = r.draw(index, transform); err != nil {
		if abandonErr := r.frames.Abandon(index); abandonErr != nil {
			return errors.CombineErrors(err, abandonErr)
		}
		r.abandoned = true
		r.log.WithError(err).WithField("image", index).Warn("frame abandoned")
		return err
	}

	presentSuboptimal, err := r.ctx.Present(r.chain.Handle(), index, r.frames.Slot(index).RenderComplete)
	if err != nil && !gpu.IsInvalidation(err) {
		return errors.Wrap(err, "present")
	}
	if err == nil {
		r.stats.Frames++
		r.log.WithField("image", index).Trace("frame presented")
	}

	if err != nil || acquireSuboptimal || presentSuboptimal {
		return r.rebuild("swapchain invalidated at present")
	}
	return nil
}

// draw records, updates the camera and submits slot index.
func (r *Renderer) draw(index int, transform mgl32.Mat4) error {
	err := r.frames.Record(index, func(buffer gpu.CommandBuffer) error {
		return r.record(buffer, index)
	})
	if err != nil {
		return err
	}
	if err = r.uniforms.write(index, transform); err != nil {
		return err
	}
	return r.frames.Submit(index)
}

func (r *Renderer) record(buffer gpu.CommandBuffer, index int) error {
	dev := r.ctx.Device()
	slot := r.frames.Slot(index)

	err := dev.CmdBeginRenderPass(buffer, gpu.RenderPassBeginInfo{
		RenderPass:  r.frames.RenderPass(),
		Framebuffer: slot.Framebuffer,
		Area: core1_0.Rect2D{
			Offset: core1_0.Offset2D{X: 0, Y: 0},
			Extent: r.chain.Extent(),
		},
		ClearValues: []core1_0.ClearValue{
			core1_0.ClearValueFloat(r.cfg.ClearColor),
			core1_0.ClearValueDepthStencil{Depth: 1.0, Stencil: 0},
		},
	})
	if err != nil {
		return errors.Wrap(err, "begin render pass")
	}

	dev.CmdBindPipeline(buffer, r.pipeline.Handle())
	dev.CmdBindVertexBuffers(buffer, []gpu.Buffer{r.vertices.buffer}, []int{0})
	dev.CmdBindDescriptorSets(buffer, r.pipeline.Layout(), 0, []gpu.DescriptorSet{r.uniforms.sets[index]})
	dev.CmdDraw(buffer, gpu.DrawInfo{VertexCount: r.vertexCount, InstanceCount: 1})
	dev.CmdEndRenderPass(buffer)
	return nil
}
