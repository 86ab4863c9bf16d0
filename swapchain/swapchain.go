// Package swapchain builds the presentation chain: the swapchain, its
// images and one color view per image.
package swapchain

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/vkngwrapper/core/v3/core1_0"
	"github.com/vkngwrapper/extensions/v3/khr_surface"

	"github.com/vkngwrapper/twotriangles/device"
	"github.com/vkngwrapper/twotriangles/gpu"
)

var (
	// RequiredFormat is the only surface format the chain accepts.
	RequiredFormat = khr_surface.SurfaceFormat{
		Format:     core1_0.FormatB8G8R8A8UnsignedNormalized,
		ColorSpace: khr_surface.ColorSpaceSRGBNonlinear,
	}

	// RequiredPresentMode is the only present mode the chain accepts.
	RequiredPresentMode = khr_surface.PresentModeMailbox
)

// Support is what a surface offers at one point in time.
type Support struct {
	Capabilities khr_surface.SurfaceCapabilities
	Formats      []khr_surface.SurfaceFormat
	PresentModes []khr_surface.PresentMode
}

// Query reads the surface's current support from the device.
func Query(ctx *device.Context) (Support, error) {
	var s Support
	var err error

	s.Capabilities, err = ctx.SurfaceCapabilities()
	if err != nil {
		return s, errors.Wrap(err, "query surface capabilities")
	}
	s.Formats, err = ctx.SurfaceFormats()
	if err != nil {
		return s, errors.Wrap(err, "query surface formats")
	}
	s.PresentModes, err = ctx.PresentModes()
	if err != nil {
		return s, errors.Wrap(err, "query present modes")
	}
	return s, nil
}

// ImageCount asks for one image more than the minimum, capped at the
// maximum. A maximum of zero means there is none.
func ImageCount(caps khr_surface.SurfaceCapabilities) int {
	count := caps.MinImageCount + 1
	if caps.MaxImageCount > 0 && count > caps.MaxImageCount {
		count = caps.MaxImageCount
	}
	return count
}

// Extent returns the surface's current extent, or window clamped to the
// surface limits when the surface leaves the size to the swapchain.
func Extent(caps khr_surface.SurfaceCapabilities, window core1_0.Extent2D) core1_0.Extent2D {
	if caps.CurrentExtent.Width != -1 {
		return caps.CurrentExtent
	}
	return core1_0.Extent2D{
		Width:  clamp(window.Width, caps.MinImageExtent.Width, caps.MaxImageExtent.Width),
		Height: clamp(window.Height, caps.MinImageExtent.Height, caps.MaxImageExtent.Height),
	}
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// ChooseFormat returns RequiredFormat if the surface offers it.
func ChooseFormat(formats []khr_surface.SurfaceFormat) (khr_surface.SurfaceFormat, error) {
	for _, f := range formats {
		if f.Format == RequiredFormat.Format && f.ColorSpace == RequiredFormat.ColorSpace {
			return f, nil
		}
	}
	return khr_surface.SurfaceFormat{}, gpu.Unsatisfiable("surface does not offer format %v in color space %v",
		RequiredFormat.Format, RequiredFormat.ColorSpace)
}

// ChoosePresentMode returns RequiredPresentMode if the surface offers it.
func ChoosePresentMode(modes []khr_surface.PresentMode) (khr_surface.PresentMode, error) {
	for _, m := range modes {
		if m == RequiredPresentMode {
			return m, nil
		}
	}
	return 0, gpu.Unsatisfiable("surface does not offer present mode %v", RequiredPresentMode)
}

// Chain is a built swapchain with one view per image. Images and views are
// index-aligned with the indices acquisition returns.
type Chain struct {
	ctx *device.Context
	log logrus.FieldLogger

	handle      gpu.Swapchain
	format      khr_surface.SurfaceFormat
	presentMode khr_surface.PresentMode
	extent      core1_0.Extent2D
	images      []gpu.Image
	views       []gpu.ImageView
	generation  uuid.UUID
}

// Build creates a chain for the current surface. When old is non-nil its
// swapchain is handed over for retirement; old itself must still be
// destroyed by the caller.
func Build(ctx *device.Context, support Support, window core1_0.Extent2D, old *Chain) (_ *Chain, err error) {
	format, err := ChooseFormat(support.Formats)
	if err != nil {
		return nil, err
	}
	mode, err := ChoosePresentMode(support.PresentModes)
	if err != nil {
		return nil, err
	}

	c := &Chain{
		ctx:         ctx,
		format:      format,
		presentMode: mode,
		extent:      Extent(support.Capabilities, window),
		generation:  uuid.New(),
	}
	c.log = ctx.Log().WithFields(logrus.Fields{
		"component":  "swapchain",
		"generation": c.generation.String(),
	})

	info := gpu.SwapchainCreateInfo{
		Surface:       ctx.Surface(),
		MinImageCount: ImageCount(support.Capabilities),
		SurfaceFormat: format,
		Extent:        c.extent,
		PresentMode:   mode,
	}
	if old != nil {
		info.OldSwapchain = old.handle
	}

	dev := ctx.Device()
	c.handle, err = dev.CreateSwapchain(info)
	if err != nil {
		return nil, gpu.Creation(err, "swapchain")
	}
	defer func() {
		if err != nil {
			c.release()
		}
	}()

	c.images, err = dev.SwapchainImages(c.handle)
	if err != nil {
		return nil, errors.Wrap(err, "get swapchain images")
	}

	for i, img := range c.images {
		view, err := dev.CreateImageView(gpu.ImageViewCreateInfo{
			Image:  img,
			Format: format.Format,
			Aspect: core1_0.ImageAspectColor,
		})
		if err != nil {
			return nil, gpu.Creation(err, fmt.Sprintf("image view %d", i))
		}
		c.views = append(c.views, view)
	}

	c.log.WithFields(logrus.Fields{
		"images": len(c.images),
		"format": format.Format,
		"width":  c.extent.Width,
		"height": c.extent.Height,
	}).Info("swapchain built")
	return c, nil
}

func (c *Chain) Handle() gpu.Swapchain { return c.handle }
func (c *Chain) Format() khr_surface.SurfaceFormat { return c.format }
func (c *Chain) PresentMode() khr_surface.PresentMode { return c.presentMode }
func (c *Chain) Extent() core1_0.Extent2D { return c.extent }
func (c *Chain) Images() []gpu.Image { return c.images }
func (c *Chain) Views() []gpu.ImageView { return c.views }
func (c *Chain) ImageCount() int { return len(c.images) }
func (c *Chain) Generation() uuid.UUID { return c.generation }

// Destroy releases the views and then the swapchain.
func (c *Chain) Destroy(idle device.Idle) error {
	if err := c.ctx.CheckIdle(idle); err != nil {
		return errors.Wrap(err, "destroy swapchain")
	}
	c.release()
	c.log.Debug("swapchain destroyed")
	return nil
}

func (c *Chain) release() {
	dev := c.ctx.Device()
	for _, v := range c.views {
		dev.DestroyImageView(v)
	}
	c.views = nil
	dev.DestroySwapchain(c.handle)
	c.handle = 0
	c.images = nil
}
