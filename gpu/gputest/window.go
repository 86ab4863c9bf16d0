package gputest

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/vkngwrapper/core/v3/core1_0"

	"github.com/vkngwrapper/twotriangles/gpu"
)

// Window is a fake window with a settable drawable extent. Resizing it
// also changes the current extent the instance reports for its surface.
type Window struct {
	mu       sync.Mutex
	extent   core1_0.Extent2D
	instance *Instance
	Surfaces int
}

func NewWindow(width, height int) *Window {
	return &Window{extent: core1_0.Extent2D{Width: width, Height: height}}
}

func (w *Window) Extent() core1_0.Extent2D {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.extent
}

func (w *Window) Resize(width, height int) {
	w.mu.Lock()
	w.extent = core1_0.Extent2D{Width: width, Height: height}
	inst := w.instance
	w.mu.Unlock()

	if inst != nil {
		inst.SetCurrentExtent(core1_0.Extent2D{Width: width, Height: height})
	}
}

func (w *Window) CreateSurface(instance gpu.Instance) (gpu.Surface, error) {
	inst, ok := instance.(*Instance)
	if !ok {
		return 0, errors.Errorf("gputest window cannot create a surface on %T", instance)
	}

	w.mu.Lock()
	w.instance = inst
	w.Surfaces++
	extent := w.extent
	w.mu.Unlock()

	inst.SetCurrentExtent(extent)
	return inst.NewSurface(), nil
}
