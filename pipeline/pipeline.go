package pipeline

import (
	"github.com/cockroachdb/errors"
	"github.com/kr/pretty"

	"github.com/vkngwrapper/twotriangles/device"
	"github.com/vkngwrapper/twotriangles/gpu"
)

type Pipeline struct {
	ctx          *device.Context
	handle       gpu.Pipeline
	layout       gpu.PipelineLayout
	ownedLayouts []gpu.DescriptorSetLayout
	state        gpu.PipelineState
}

func (p *Pipeline) Handle() gpu.Pipeline { return p.handle }
func (p *Pipeline) Layout() gpu.PipelineLayout { return p.layout }

// OwnedLayouts are the descriptor-set layouts the pipeline created from
// binding lists, in order.
func (p *Pipeline) OwnedLayouts() []gpu.DescriptorSetLayout {
	return append([]gpu.DescriptorSetLayout(nil), p.ownedLayouts...)
}

// State returns the fixed-function state the pipeline was built with.
func (p *Pipeline) State() gpu.PipelineState {
	return p.state.Clone()
}

// Dump renders the pipeline's state as text. Two pipelines built from the
// same builder configuration dump identically.
func (p *Pipeline) Dump() string {
	return Dump(p.state)
}

// Dump renders state as text.
func Dump(state gpu.PipelineState) string {
	return pretty.Sprint(state)
}

// Destroy releases the pipeline, its layout and the descriptor-set layouts
// it owns. Shared layouts are left alone.
func (p *Pipeline) Destroy(idle device.Idle) error {
	if err := p.ctx.CheckIdle(idle); err != nil {
		return errors.Wrap(err, "destroy pipeline")
	}
	p.release()
	return nil
}

func (p *Pipeline) release() {
	dev := p.ctx.Device()
	dev.DestroyPipeline(p.handle)
	dev.DestroyPipelineLayout(p.layout)
	for _, l := range p.ownedLayouts {
		dev.DestroyDescriptorSetLayout(l)
	}
	p.handle, p.layout, p.ownedLayouts = 0, 0, nil
}
