package vkng

import (
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/twotriangles/gpu"
)

// pipelineInfo expands a port pipeline description into the wrapper's
// per-stage create infos.
func (d *Device) pipelineInfo(info gpu.GraphicsPipelineCreateInfo) (core1_0.GraphicsPipelineCreateInfo, error) {
	layout, err := lookup(&d.pipelineLayouts, "pipeline layout", uint64(info.Layout))
	if err != nil {
		return core1_0.GraphicsPipelineCreateInfo{}, err
	}
	pass, err := lookup(&d.renderPasses, "render pass", uint64(info.RenderPass))
	if err != nil {
		return core1_0.GraphicsPipelineCreateInfo{}, err
	}

	stages := make([]core1_0.PipelineShaderStageCreateInfo, len(info.Stages))
	for i, s := range info.Stages {
		module, err := lookup(&d.shaderModules, "shader module", uint64(s.Module))
		if err != nil {
			return core1_0.GraphicsPipelineCreateInfo{}, err
		}
		stages[i] = core1_0.PipelineShaderStageCreateInfo{
			Stage:  s.Stage,
			Module: module,
			Name:   s.Entry,
		}
	}

	s := info.State
	out := core1_0.GraphicsPipelineCreateInfo{
		Stages: stages,
		VertexInputState: &core1_0.PipelineVertexInputStateCreateInfo{
			VertexBindingDescriptions:   s.VertexBindings,
			VertexAttributeDescriptions: s.VertexAttributes,
		},
		InputAssemblyState: &core1_0.PipelineInputAssemblyStateCreateInfo{
			Topology:               s.Topology,
			PrimitiveRestartEnable: s.PrimitiveRestartEnable,
		},
		ViewportState: &core1_0.PipelineViewportStateCreateInfo{
			Viewports: s.Viewports,
			Scissors:  s.Scissors,
		},
		RasterizationState: &core1_0.PipelineRasterizationStateCreateInfo{
			DepthClampEnable:        s.DepthClampEnable,
			RasterizerDiscardEnable: s.RasterizerDiscardEnable,
			PolygonMode:             s.PolygonMode,
			CullMode:                s.CullMode,
			FrontFace:               s.FrontFace,
			DepthBiasEnable:         s.DepthBiasEnable,
			DepthBiasConstantFactor: s.DepthBiasConstantFactor,
			DepthBiasClamp:          s.DepthBiasClamp,
			DepthBiasSlopeFactor:    s.DepthBiasSlopeFactor,
			LineWidth:               s.LineWidth,
		},
		MultisampleState: &core1_0.PipelineMultisampleStateCreateInfo{
			RasterizationSamples:  s.RasterizationSamples,
			SampleShadingEnable:   s.SampleShadingEnable,
			MinSampleShading:      s.MinSampleShading,
			AlphaToCoverageEnable: s.AlphaToCoverageEnable,
			AlphaToOneEnable:      s.AlphaToOneEnable,
		},
		DepthStencilState: &core1_0.PipelineDepthStencilStateCreateInfo{
			DepthTestEnable:       s.DepthTestEnable,
			DepthWriteEnable:      s.DepthWriteEnable,
			DepthCompareOp:        s.DepthCompareOp,
			DepthBoundsTestEnable: s.DepthBoundsTestEnable,
			StencilTestEnable:     s.StencilTestEnable,
			Front:                 s.Front,
			Back:                  s.Back,
			MinDepthBounds:        s.MinDepthBounds,
			MaxDepthBounds:        s.MaxDepthBounds,
		},
		ColorBlendState: &core1_0.PipelineColorBlendStateCreateInfo{
			LogicOpEnabled: s.LogicOpEnable,
			LogicOp:        s.LogicOp,
			Attachments:    s.ColorBlendAttachments,
			BlendConstants: s.BlendConstants,
		},
		Layout:            layout,
		RenderPass:        pass,
		Subpass:           info.Subpass,
		BasePipelineIndex: info.BaseIndex,
	}
	if s.SampleMaskEnable {
		out.MultisampleState.SampleMask = []uint32{s.SampleMask}
	}
	if s.PatchControlPoints > 0 {
		out.TessellationState = &core1_0.PipelineTessellationStateCreateInfo{
			PatchControlPoints: uint32(s.PatchControlPoints),
		}
	}
	if len(s.DynamicStates) > 0 {
		out.DynamicState = &core1_0.PipelineDynamicStateCreateInfo{
			DynamicStates: s.DynamicStates,
		}
	}
	return out, nil
}
