package pipeline_test

import (
	"testing"

	"github.com/cockroachdb/errors"
	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/twotriangles/device"
	"github.com/vkngwrapper/twotriangles/frames"
	"github.com/vkngwrapper/twotriangles/gpu"
	"github.com/vkngwrapper/twotriangles/gpu/gputest"
	"github.com/vkngwrapper/twotriangles/mesh"
	"github.com/vkngwrapper/twotriangles/pipeline"
)

type fixture struct {
	ctx    *device.Context
	dev    *gputest.Device
	pass   gpu.RenderPass
	vertex gpu.ShaderModule
	frag   gpu.ShaderModule
	shared gpu.DescriptorSetLayout
}

var cameraBinding = []core1_0.DescriptorSetLayoutBinding{{
	Binding:         0,
	DescriptorType:  core1_0.DescriptorTypeUniformBuffer,
	DescriptorCount: 1,
	StageFlags:      core1_0.StageVertex,
}}

func newFixture(c *qt.C) *fixture {
	log, _ := test.NewNullLogger()
	inst := gputest.NewInstance()
	ctx, err := device.New(inst, gputest.NewWindow(64, 64), device.Config{Log: log})
	c.Assert(err, qt.IsNil)

	f := &fixture{ctx: ctx, dev: inst.Devices()[0]}
	f.pass, err = f.dev.CreateRenderPass(frames.RenderPassInfo(core1_0.FormatB8G8R8A8UnsignedNormalized))
	c.Assert(err, qt.IsNil)
	f.vertex, err = f.dev.CreateShaderModule([]uint32{0x07230203, 1})
	c.Assert(err, qt.IsNil)
	f.frag, err = f.dev.CreateShaderModule([]uint32{0x07230203, 2})
	c.Assert(err, qt.IsNil)
	f.shared, err = f.dev.CreateDescriptorSetLayout(cameraBinding)
	c.Assert(err, qt.IsNil)
	return f
}

func (f *fixture) builder() *pipeline.Builder {
	return pipeline.NewBuilder().
		Device(f.ctx).
		VertexShader(f.vertex).
		FragmentShader(f.frag).
		RenderPass(f.pass).
		VertexBindings(mesh.BindingDescriptions()...).
		VertexAttributes(mesh.AttributeDescriptions()...)
}

func (f *fixture) close(c *qt.C) {
	f.dev.DestroyDescriptorSetLayout(f.shared)
	f.dev.DestroyShaderModule(f.frag)
	f.dev.DestroyShaderModule(f.vertex)
	f.dev.DestroyRenderPass(f.pass)

	idle, err := f.ctx.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(f.ctx.Close(idle), qt.IsNil)
	c.Assert(f.dev.Violations(), qt.HasLen, 0)
}

func TestDefaults(t *testing.T) {
	c := qt.New(t)
	s := pipeline.NewBuilder().State()

	c.Assert(s.Topology, qt.Equals, core1_0.PrimitiveTopologyTriangleList)
	c.Assert(s.PrimitiveRestartEnable, qt.IsFalse)
	c.Assert(s.PolygonMode, qt.Equals, core1_0.PolygonModeFill)
	c.Assert(s.CullMode, qt.Equals, gpu.CullModeNone)
	c.Assert(s.FrontFace, qt.Equals, core1_0.FrontFaceClockwise)
	c.Assert(s.LineWidth, qt.Equals, float32(1))
	c.Assert(s.RasterizationSamples, qt.Equals, core1_0.Samples1)
	c.Assert(s.DepthTestEnable, qt.IsTrue)
	c.Assert(s.DepthWriteEnable, qt.IsTrue)
	c.Assert(s.DepthCompareOp, qt.Equals, core1_0.CompareOpLessOrEqual)
	c.Assert(s.StencilTestEnable, qt.IsFalse)
	c.Assert(s.LogicOpEnable, qt.IsFalse)
	c.Assert(s.MaxDepthBounds, qt.Equals, float32(1))
	c.Assert(s.ColorBlendAttachments, qt.HasLen, 0)
	c.Assert(s.DynamicStates, qt.HasLen, 0)
}

func TestBuildValidatesBeforeTouchingTheDevice(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	tests := []struct {
		name    string
		builder *pipeline.Builder
		field   string
	}{
		{"device", pipeline.NewBuilder().VertexShader(f.vertex).RenderPass(f.pass), "device"},
		{"vertex shader", pipeline.NewBuilder().Device(f.ctx).RenderPass(f.pass), "vertex shader"},
		{"render pass", pipeline.NewBuilder().Device(f.ctx).VertexShader(f.vertex), "render pass"},
	}

	calls := len(f.dev.Calls())
	for _, tt := range tests {
		_, err := tt.builder.Build()
		c.Assert(errors.Is(err, pipeline.ErrMissingField), qt.IsTrue, qt.Commentf("%s", tt.name))
		c.Assert(err, qt.ErrorMatches, tt.field+": pipeline builder: required field not set")
	}
	c.Assert(f.dev.Calls(), qt.HasLen, calls)

	f.close(c)
}

func TestBuildPassesStateThrough(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	viewport := core1_0.Viewport{Width: 640, Height: 480, MaxDepth: 1}
	scissor := core1_0.Rect2D{Extent: core1_0.Extent2D{Width: 640, Height: 480}}
	p, err := f.builder().
		Viewports(viewport).
		Scissors(scissor).
		CullMode(core1_0.CullModeBack).
		DepthCompareOp(core1_0.CompareOpLess).
		Subpass(0).
		Build()
	c.Assert(err, qt.IsNil)

	info := f.dev.PipelineInfo(p.Handle())
	c.Assert(info.Layout, qt.Equals, p.Layout())
	c.Assert(info.RenderPass, qt.Equals, f.pass)
	c.Assert(info.BaseIndex, qt.Equals, -1)
	c.Assert(info.Stages, qt.DeepEquals, []gpu.ShaderStage{
		{Stage: core1_0.StageVertex, Module: f.vertex, Entry: "main"},
		{Stage: core1_0.StageFragment, Module: f.frag, Entry: "main"},
	})
	c.Assert(info.State.Viewports, qt.DeepEquals, []core1_0.Viewport{viewport})
	c.Assert(info.State.Scissors, qt.DeepEquals, []core1_0.Rect2D{scissor})
	c.Assert(info.State.CullMode, qt.Equals, core1_0.CullModeBack)
	c.Assert(info.State.DepthCompareOp, qt.Equals, core1_0.CompareOpLess)
	c.Assert(info.State.VertexAttributes, qt.HasLen, 2)

	idle, err := f.ctx.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(p.Destroy(idle), qt.IsNil)
	f.close(c)
}

func TestBuildIsDeterministic(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	b := f.builder().
		SampleMask(0xff).
		LogicOp(false, core1_0.LogicOpCopy).
		BlendConstants([4]float32{0.25, 0.5, 0.75, 1})
	first, err := b.Build()
	c.Assert(err, qt.IsNil)
	second, err := b.Build()
	c.Assert(err, qt.IsNil)

	c.Assert(first.Handle(), qt.Not(qt.Equals), second.Handle())
	c.Assert(first.Dump(), qt.Equals, second.Dump())
	c.Assert(first.State(), qt.DeepEquals, second.State())
	c.Assert(first.State().SampleMaskEnable, qt.IsTrue)

	// Changing the builder afterwards does not reach built pipelines.
	b.LineWidth(4)
	c.Assert(first.State().LineWidth, qt.Equals, float32(1))
	c.Assert(pipeline.Dump(b.State()), qt.Not(qt.Equals), first.Dump())

	idle, err := f.ctx.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(first.Destroy(idle), qt.IsNil)
	c.Assert(second.Destroy(idle), qt.IsNil)
	f.close(c)
}

func TestSharedLayoutsSurvivePipeline(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)

	p, err := f.builder().
		SharedLayouts(f.shared).
		DescriptorSetLayouts(cameraBinding, cameraBinding).
		PushConstantRanges(core1_0.PushConstantRange{StageFlags: core1_0.StageVertex, Offset: 0, Size: 64}).
		Build()
	c.Assert(err, qt.IsNil)

	owned := p.OwnedLayouts()
	c.Assert(owned, qt.HasLen, 2)
	layout := f.dev.PipelineLayoutInfo(p.Layout())
	c.Assert(layout.SetLayouts, qt.DeepEquals, []gpu.DescriptorSetLayout{f.shared, owned[0], owned[1]})
	c.Assert(layout.PushConstantRanges, qt.HasLen, 1)
	c.Assert(f.dev.SetLayoutBindings(owned[1]), qt.DeepEquals, cameraBinding)

	idle, err := f.ctx.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(p.Destroy(idle), qt.IsNil)

	c.Assert(f.dev.IsLive(gputest.KindDescriptorSetLayout, uint64(f.shared)), qt.IsTrue)
	for _, l := range owned {
		c.Assert(f.dev.IsLive(gputest.KindDescriptorSetLayout, uint64(l)), qt.IsFalse)
	}
	c.Assert(f.dev.Live(gputest.KindPipelineLayout), qt.Equals, 0)
	c.Assert(f.dev.Live(gputest.KindPipeline), qt.Equals, 0)
	f.close(c)
}

func TestBuildReleasesOnFailure(t *testing.T) {
	for _, kind := range []string{
		gputest.KindDescriptorSetLayout,
		gputest.KindPipelineLayout,
		gputest.KindPipeline,
	} {
		kind := kind
		qt.New(t).Run(kind, func(c *qt.C) {
			f := newFixture(c)
			before := map[string]int{}
			for _, k := range f.dev.LiveKinds() {
				before[k] = f.dev.Live(k)
			}

			f.dev.FailNext(kind, errors.New("out of device memory"))
			_, err := f.builder().
				SharedLayouts(f.shared).
				DescriptorSetLayouts(cameraBinding).
				Build()
			c.Assert(errors.Is(err, gpu.ErrCreation), qt.IsTrue)

			after := map[string]int{}
			for _, k := range f.dev.LiveKinds() {
				after[k] = f.dev.Live(k)
			}
			c.Assert(after, qt.DeepEquals, before)
			f.close(c)
		})
	}
}

func TestDestroyRejectsStaleIdle(t *testing.T) {
	c := qt.New(t)
	f := newFixture(c)
	p, err := f.builder().Build()
	c.Assert(err, qt.IsNil)

	idle, err := f.ctx.WaitIdle()
	c.Assert(err, qt.IsNil)
	fence, err := f.dev.CreateFence(false)
	c.Assert(err, qt.IsNil)
	c.Assert(f.ctx.Submit(gpu.SubmitInfo{}, fence), qt.IsNil)

	c.Assert(errors.Is(p.Destroy(idle), device.ErrNotIdle), qt.IsTrue)
	c.Assert(f.dev.IsLive(gputest.KindPipeline, uint64(p.Handle())), qt.IsTrue)

	f.dev.DestroyFence(fence)
	idle, err = f.ctx.WaitIdle()
	c.Assert(err, qt.IsNil)
	c.Assert(p.Destroy(idle), qt.IsNil)
	f.close(c)
}
