package gpu

import "github.com/vkngwrapper/core/v3/core1_0"

// CullModeNone disables face culling. core1_0 only names the set bits.
const CullModeNone core1_0.CullModeFlags = 0

// PipelineState is the fixed-function configuration of a graphics pipeline.
type PipelineState struct {
	VertexBindings   []core1_0.VertexInputBindingDescription
	VertexAttributes []core1_0.VertexInputAttributeDescription

	Topology               core1_0.PrimitiveTopology
	PrimitiveRestartEnable bool
	PatchControlPoints     int

	Viewports []core1_0.Viewport
	Scissors  []core1_0.Rect2D

	DepthClampEnable        bool
	RasterizerDiscardEnable bool
	PolygonMode             core1_0.PolygonMode
	CullMode                core1_0.CullModeFlags
	FrontFace               core1_0.FrontFace
	DepthBiasEnable         bool
	DepthBiasConstantFactor float32
	DepthBiasClamp          float32
	DepthBiasSlopeFactor    float32
	LineWidth               float32

	RasterizationSamples  core1_0.SampleCountFlags
	SampleShadingEnable   bool
	MinSampleShading      float32
	SampleMaskEnable      bool
	SampleMask            uint32
	AlphaToCoverageEnable bool
	AlphaToOneEnable      bool

	DepthTestEnable       bool
	DepthWriteEnable      bool
	DepthCompareOp        core1_0.CompareOp
	DepthBoundsTestEnable bool
	StencilTestEnable     bool
	Front                 core1_0.StencilOpState
	Back                  core1_0.StencilOpState
	MinDepthBounds        float32
	MaxDepthBounds        float32

	LogicOpEnable         bool
	LogicOp               core1_0.LogicOp
	ColorBlendAttachments []core1_0.PipelineColorBlendAttachmentState
	BlendConstants        [4]float32

	DynamicStates []core1_0.DynamicState
}

// Clone returns a copy of s that shares no slices with it.
func (s PipelineState) Clone() PipelineState {
	c := s
	c.VertexBindings = append([]core1_0.VertexInputBindingDescription(nil), s.VertexBindings...)
	c.VertexAttributes = append([]core1_0.VertexInputAttributeDescription(nil), s.VertexAttributes...)
	c.Viewports = append([]core1_0.Viewport(nil), s.Viewports...)
	c.Scissors = append([]core1_0.Rect2D(nil), s.Scissors...)
	c.ColorBlendAttachments = append([]core1_0.PipelineColorBlendAttachmentState(nil), s.ColorBlendAttachments...)
	c.DynamicStates = append([]core1_0.DynamicState(nil), s.DynamicStates...)
	return c
}
