// Command twotriangles opens a window and draws two triangles, or an OBJ
// mesh, under an orbiting camera until the window is closed.
package main

//go:generate glslc ../../shaders/shader.vert -o ../../shaders/vert.spv
//go:generate glslc ../../shaders/shader.frag -o ../../shaders/frag.spv

import (
	"os"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/loov/hrtime"
	"github.com/sirupsen/logrus"

	"github.com/vkngwrapper/twotriangles/config"
	"github.com/vkngwrapper/twotriangles/device"
	"github.com/vkngwrapper/twotriangles/gpu/vkng"
	"github.com/vkngwrapper/twotriangles/mesh"
	"github.com/vkngwrapper/twotriangles/renderer"
	"github.com/vkngwrapper/twotriangles/window"
)

func main() {
	// SDL and the Vulkan surface must stay on the main thread.
	runtime.LockOSThread()

	log := logrus.New()
	if err := run(log); err != nil {
		log.Fatalf("%+v", err)
	}
}

func run(log *logrus.Logger) (err error) {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log.SetLevel(cfg.LogLevel)

	assets, err := loadAssets(cfg)
	if err != nil {
		return err
	}

	win, err := window.New(cfg.Title, cfg.Width, cfg.Height)
	if err != nil {
		return err
	}
	defer win.Close()

	instance, err := vkng.NewInstance(win.ProcAddr(), vkng.InstanceConfig{
		AppName:    cfg.Title,
		Extensions: win.InstanceExtensions(),
		Validation: cfg.Validation,
		Log:        log,
	})
	if err != nil {
		return err
	}

	ctx, err := device.New(instance, win, device.Config{Log: log})
	if err != nil {
		return err
	}
	defer func() {
		idle, waitErr := ctx.WaitIdle()
		if waitErr == nil {
			waitErr = ctx.Close(idle)
		}
		if err == nil {
			err = waitErr
		}
	}()

	r, err := renderer.New(ctx, win, assets, renderer.DefaultConfig())
	if err != nil {
		return err
	}
	defer func() {
		idle, waitErr := ctx.WaitIdle()
		if waitErr == nil {
			waitErr = r.Destroy(idle)
		}
		if err == nil {
			err = waitErr
		}
	}()

	start := hrtime.Now()
	for {
		ev := win.Poll()
		if ev.Quit {
			break
		}
		if ev.Resized {
			if err := r.Resized(); err != nil {
				return err
			}
		} else if err := r.Update(); err != nil {
			return err
		}
		if r.Suspended() {
			// Nothing to draw into; don't spin.
			time.Sleep(16 * time.Millisecond)
			continue
		}

		extent := r.Chain().Extent()
		aspect := float32(extent.Width) / float32(extent.Height)
		if err := r.AdvanceFrame(orbit(hrtime.Since(start).Seconds(), aspect)); err != nil {
			return err
		}
	}

	stats := r.Stats()
	log.WithFields(logrus.Fields{
		"frames":   stats.Frames,
		"rebuilds": stats.Rebuilds,
		"skipped":  stats.Skipped,
	}).Info("exiting")
	return nil
}

func loadAssets(cfg config.Config) (renderer.Assets, error) {
	var assets renderer.Assets

	vert, err := os.ReadFile(cfg.VertexShader)
	if err != nil {
		return assets, errors.Wrap(err, "read vertex shader")
	}
	if assets.VertexShader, err = bytesToBytecode(vert); err != nil {
		return assets, errors.Wrap(err, cfg.VertexShader)
	}

	if cfg.FragmentShader != "" {
		frag, err := os.ReadFile(cfg.FragmentShader)
		if err != nil {
			return assets, errors.Wrap(err, "read fragment shader")
		}
		if assets.FragmentShader, err = bytesToBytecode(frag); err != nil {
			return assets, errors.Wrap(err, cfg.FragmentShader)
		}
	}

	if cfg.MeshOBJ == "" {
		assets.Vertices = mesh.TwoTriangles()
		return assets, nil
	}
	assets.Vertices, err = mesh.LoadOBJ(cfg.MeshOBJ, cfg.MeshMTL)
	return assets, err
}
