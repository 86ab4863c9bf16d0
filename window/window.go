// Package window is the SDL2 window the renderer presents to.
package window

import (
	"unsafe"

	"github.com/cockroachdb/errors"
	"github.com/veandco/go-sdl2/sdl"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"
	vkng_sdl2 "github.com/vkngwrapper/integrations/sdl2/v3"

	"github.com/vkngwrapper/twotriangles/gpu"
	"github.com/vkngwrapper/twotriangles/gpu/vkng"
)

// Event is what Poll reports since the previous call.
type Event struct {
	Quit    bool
	Resized bool
}

type Window struct {
	window *sdl.Window
}

// New initializes SDL video and opens a resizable Vulkan window. SDL must
// be driven from the thread that called New.
func New(title string, width, height int) (*Window, error) {
	if err := sdl.Init(sdl.INIT_VIDEO); err != nil {
		return nil, errors.Wrap(err, "init sdl")
	}
	w, err := sdl.CreateWindow(title, sdl.WINDOWPOS_UNDEFINED, sdl.WINDOWPOS_UNDEFINED,
		int32(width), int32(height), sdl.WINDOW_SHOWN|sdl.WINDOW_VULKAN|sdl.WINDOW_RESIZABLE)
	if err != nil {
		sdl.Quit()
		return nil, errors.Wrap(err, "create window")
	}
	return &Window{window: w}, nil
}

// ProcAddr is the loader's vkGetInstanceProcAddr.
func (w *Window) ProcAddr() unsafe.Pointer {
	return sdl.VulkanGetVkGetInstanceProcAddr()
}

func (w *Window) InstanceExtensions() []string {
	return w.window.VulkanGetInstanceExtensions()
}

// Extent is the drawable size in pixels, or zero while minimized.
func (w *Window) Extent() core1_0.Extent2D {
	if w.window.GetFlags()&sdl.WINDOW_MINIMIZED != 0 {
		return core1_0.Extent2D{}
	}
	width, height := w.window.VulkanGetDrawableSize()
	return core1_0.Extent2D{Width: int(width), Height: int(height)}
}

func (w *Window) CreateSurface(instance gpu.Instance) (gpu.Surface, error) {
	inst, ok := instance.(*vkng.Instance)
	if !ok {
		return 0, errors.Errorf("sdl window cannot create a surface on %T", instance)
	}
	return inst.AttachSurface(func(handle core1_0.Instance, ext khr_surface.ExtensionDriver) (khr_surface.Surface, error) {
		return vkng_sdl2.CreateSurface(handle, ext, w.window)
	})
}

// Poll drains pending SDL events.
func (w *Window) Poll() Event {
	var ev Event
	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		switch e := event.(type) {
		case *sdl.QuitEvent:
			ev.Quit = true
		case *sdl.WindowEvent:
			switch e.Event {
			case sdl.WINDOWEVENT_RESIZED, sdl.WINDOWEVENT_SIZE_CHANGED,
				sdl.WINDOWEVENT_MINIMIZED, sdl.WINDOWEVENT_RESTORED:
				ev.Resized = true
			}
		}
	}
	return ev
}

func (w *Window) Close() {
	w.window.Destroy()
	sdl.Quit()
}
