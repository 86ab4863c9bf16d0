// Package pipeline assembles graphics pipelines from fixed-function state,
// shader modules and descriptor-set layouts.
package pipeline

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/twotriangles/device"
	"github.com/vkngwrapper/twotriangles/gpu"
)

// ErrMissingField is returned by Build when a required input was never set.
var ErrMissingField = errors.New("pipeline builder: required field not set")

// Builder accumulates pipeline configuration. Every setter returns the
// builder so calls can be chained. A Builder can be built any number of
// times; each Pipeline gets its own copy of the configuration.
type Builder struct {
	ctx *device.Context

	vertexShader   gpu.ShaderModule
	fragmentShader gpu.ShaderModule

	sharedLayouts        []gpu.DescriptorSetLayout
	descriptorSetLayouts [][]core1_0.DescriptorSetLayoutBinding
	pushConstantRanges   []core1_0.PushConstantRange

	renderPass        gpu.RenderPass
	subpass           int
	basePipelineIndex int

	state gpu.PipelineState
}

// NewBuilder returns a builder with the default state: triangle lists,
// filled polygons with no culling and clockwise front faces, one sample,
// depth test and write with less-or-equal, and no blending or stencil.
func NewBuilder() *Builder {
	return &Builder{
		basePipelineIndex: -1,
		state: gpu.PipelineState{
			Topology:             core1_0.PrimitiveTopologyTriangleList,
			PolygonMode:          core1_0.PolygonModeFill,
			CullMode:             gpu.CullModeNone,
			FrontFace:            core1_0.FrontFaceClockwise,
			LineWidth:            1,
			RasterizationSamples: core1_0.Samples1,
			MinSampleShading:     1,
			DepthTestEnable:      true,
			DepthWriteEnable:     true,
			DepthCompareOp:       core1_0.CompareOpLessOrEqual,
			MinDepthBounds:       0,
			MaxDepthBounds:       1,
			LogicOp:              core1_0.LogicOpClear,
		},
	}
}

func (b *Builder) Device(ctx *device.Context) *Builder {
	b.ctx = ctx
	return b
}

func (b *Builder) VertexShader(m gpu.ShaderModule) *Builder {
	b.vertexShader = m
	return b
}

func (b *Builder) FragmentShader(m gpu.ShaderModule) *Builder {
	b.fragmentShader = m
	return b
}

// SharedLayouts are descriptor-set layouts owned by the caller. They come
// first in the pipeline layout and are never destroyed by the pipeline.
func (b *Builder) SharedLayouts(layouts ...gpu.DescriptorSetLayout) *Builder {
	b.sharedLayouts = append([]gpu.DescriptorSetLayout(nil), layouts...)
	return b
}

// DescriptorSetLayouts are binding lists the pipeline creates layouts for,
// after the shared ones. The pipeline owns those layouts.
func (b *Builder) DescriptorSetLayouts(layouts ...[]core1_0.DescriptorSetLayoutBinding) *Builder {
	b.descriptorSetLayouts = append([][]core1_0.DescriptorSetLayoutBinding(nil), layouts...)
	return b
}

func (b *Builder) PushConstantRanges(ranges ...core1_0.PushConstantRange) *Builder {
	b.pushConstantRanges = append([]core1_0.PushConstantRange(nil), ranges...)
	return b
}

func (b *Builder) RenderPass(pass gpu.RenderPass) *Builder {
	b.renderPass = pass
	return b
}

func (b *Builder) Subpass(subpass int) *Builder {
	b.subpass = subpass
	return b
}

func (b *Builder) BasePipelineIndex(index int) *Builder {
	b.basePipelineIndex = index
	return b
}

func (b *Builder) VertexBindings(bindings ...core1_0.VertexInputBindingDescription) *Builder {
	b.state.VertexBindings = append([]core1_0.VertexInputBindingDescription(nil), bindings...)
	return b
}

func (b *Builder) VertexAttributes(attributes ...core1_0.VertexInputAttributeDescription) *Builder {
	b.state.VertexAttributes = append([]core1_0.VertexInputAttributeDescription(nil), attributes...)
	return b
}

func (b *Builder) Topology(t core1_0.PrimitiveTopology) *Builder {
	b.state.Topology = t
	return b
}

func (b *Builder) PrimitiveRestart(enable bool) *Builder {
	b.state.PrimitiveRestartEnable = enable
	return b
}

func (b *Builder) PatchControlPoints(n int) *Builder {
	b.state.PatchControlPoints = n
	return b
}

func (b *Builder) Viewports(viewports ...core1_0.Viewport) *Builder {
	b.state.Viewports = append([]core1_0.Viewport(nil), viewports...)
	return b
}

func (b *Builder) Scissors(scissors ...core1_0.Rect2D) *Builder {
	b.state.Scissors = append([]core1_0.Rect2D(nil), scissors...)
	return b
}

func (b *Builder) DepthClamp(enable bool) *Builder {
	b.state.DepthClampEnable = enable
	return b
}

func (b *Builder) RasterizerDiscard(enable bool) *Builder {
	b.state.RasterizerDiscardEnable = enable
	return b
}

func (b *Builder) PolygonMode(mode core1_0.PolygonMode) *Builder {
	b.state.PolygonMode = mode
	return b
}

func (b *Builder) CullMode(mode core1_0.CullModeFlags) *Builder {
	b.state.CullMode = mode
	return b
}

func (b *Builder) FrontFace(face core1_0.FrontFace) *Builder {
	b.state.FrontFace = face
	return b
}

func (b *Builder) DepthBias(enable bool) *Builder {
	b.state.DepthBiasEnable = enable
	return b
}

func (b *Builder) DepthBiasConstantFactor(f float32) *Builder {
	b.state.DepthBiasConstantFactor = f
	return b
}

func (b *Builder) DepthBiasClamp(f float32) *Builder {
	b.state.DepthBiasClamp = f
	return b
}

func (b *Builder) DepthBiasSlopeFactor(f float32) *Builder {
	b.state.DepthBiasSlopeFactor = f
	return b
}

func (b *Builder) LineWidth(w float32) *Builder {
	b.state.LineWidth = w
	return b
}

func (b *Builder) RasterizationSamples(samples core1_0.SampleCountFlags) *Builder {
	b.state.RasterizationSamples = samples
	return b
}

func (b *Builder) SampleShading(enable bool) *Builder {
	b.state.SampleShadingEnable = enable
	return b
}

func (b *Builder) MinSampleShading(f float32) *Builder {
	b.state.MinSampleShading = f
	return b
}

// SampleMask sets a single-word sample mask and enables it.
func (b *Builder) SampleMask(mask uint32) *Builder {
	b.state.SampleMaskEnable = true
	b.state.SampleMask = mask
	return b
}

func (b *Builder) AlphaToCoverage(enable bool) *Builder {
	b.state.AlphaToCoverageEnable = enable
	return b
}

func (b *Builder) AlphaToOne(enable bool) *Builder {
	b.state.AlphaToOneEnable = enable
	return b
}

func (b *Builder) DepthTest(enable bool) *Builder {
	b.state.DepthTestEnable = enable
	return b
}

func (b *Builder) DepthWrite(enable bool) *Builder {
	b.state.DepthWriteEnable = enable
	return b
}

func (b *Builder) DepthCompareOp(op core1_0.CompareOp) *Builder {
	b.state.DepthCompareOp = op
	return b
}

func (b *Builder) DepthBoundsTest(enable bool) *Builder {
	b.state.DepthBoundsTestEnable = enable
	return b
}

func (b *Builder) DepthBounds(lo, hi float32) *Builder {
	b.state.MinDepthBounds = lo
	b.state.MaxDepthBounds = hi
	return b
}

func (b *Builder) StencilTest(enable bool) *Builder {
	b.state.StencilTestEnable = enable
	return b
}

func (b *Builder) Front(op core1_0.StencilOpState) *Builder {
	b.state.Front = op
	return b
}

func (b *Builder) Back(op core1_0.StencilOpState) *Builder {
	b.state.Back = op
	return b
}

func (b *Builder) LogicOp(enable bool, op core1_0.LogicOp) *Builder {
	b.state.LogicOpEnable = enable
	b.state.LogicOp = op
	return b
}

func (b *Builder) ColorBlendAttachments(attachments ...core1_0.PipelineColorBlendAttachmentState) *Builder {
	b.state.ColorBlendAttachments = append([]core1_0.PipelineColorBlendAttachmentState(nil), attachments...)
	return b
}

func (b *Builder) BlendConstants(c [4]float32) *Builder {
	b.state.BlendConstants = c
	return b
}

func (b *Builder) DynamicStates(states ...core1_0.DynamicState) *Builder {
	b.state.DynamicStates = append([]core1_0.DynamicState(nil), states...)
	return b
}

// State returns a copy of the fixed-function state as currently set.
func (b *Builder) State() gpu.PipelineState {
	return b.state.Clone()
}

func (b *Builder) validate() error {
	switch {
	case b.ctx == nil:
		return errors.Wrap(ErrMissingField, "device")
	case b.vertexShader == 0:
		return errors.Wrap(ErrMissingField, "vertex shader")
	case b.renderPass == 0:
		return errors.Wrap(ErrMissingField, "render pass")
	}
	return nil
}

// Build creates the owned descriptor-set layouts, the pipeline layout and
// the pipeline. On failure everything created so far is destroyed.
func (b *Builder) Build() (_ *Pipeline, err error) {
	if err := b.validate(); err != nil {
		return nil, err
	}

	p := &Pipeline{
		ctx:   b.ctx,
		state: b.state.Clone(),
	}
	defer func() {
		if err != nil {
			p.release()
		}
	}()

	dev := b.ctx.Device()
	setLayouts := append([]gpu.DescriptorSetLayout(nil), b.sharedLayouts...)
	for i, bindings := range b.descriptorSetLayouts {
		layout, err := dev.CreateDescriptorSetLayout(bindings)
		if err != nil {
			return nil, gpu.Creation(err, fmt.Sprintf("descriptor set layout %d", i))
		}
		p.ownedLayouts = append(p.ownedLayouts, layout)
		setLayouts = append(setLayouts, layout)
	}

	p.layout, err = dev.CreatePipelineLayout(gpu.PipelineLayoutCreateInfo{
		SetLayouts:         setLayouts,
		PushConstantRanges: append([]core1_0.PushConstantRange(nil), b.pushConstantRanges...),
	})
	if err != nil {
		return nil, gpu.Creation(err, "pipeline layout")
	}

	stages := []gpu.ShaderStage{
		{Stage: core1_0.StageVertex, Module: b.vertexShader, Entry: "main"},
	}
	if b.fragmentShader != 0 {
		stages = append(stages, gpu.ShaderStage{Stage: core1_0.StageFragment, Module: b.fragmentShader, Entry: "main"})
	}

	p.handle, err = dev.CreateGraphicsPipeline(gpu.GraphicsPipelineCreateInfo{
		Stages:     stages,
		State:      p.state.Clone(),
		Layout:     p.layout,
		RenderPass: b.renderPass,
		Subpass:    b.subpass,
		BaseIndex:  b.basePipelineIndex,
	})
	if err != nil {
		return nil, gpu.Creation(err, "graphics pipeline")
	}
	return p, nil
}
