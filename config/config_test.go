package config_test

import (
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/sirupsen/logrus"

	"github.com/vkngwrapper/twotriangles/config"
)

func TestLoadDefaults(t *testing.T) {
	c := qt.New(t)
	cfg, err := config.Load()
	c.Assert(err, qt.IsNil)
	c.Assert(cfg, qt.DeepEquals, config.Default())
}

func TestLoadFromEnvironment(t *testing.T) {
	c := qt.New(t)
	c.Setenv(config.Title, "Orbit")
	c.Setenv(config.Width, "640")
	c.Setenv(config.Height, "480")
	c.Setenv(config.Validation, "true")
	c.Setenv(config.LogLevel, "debug")
	c.Setenv(config.MeshOBJ, "meshes/cube.obj")

	cfg, err := config.Load()
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.Title, qt.Equals, "Orbit")
	c.Assert(cfg.Width, qt.Equals, 640)
	c.Assert(cfg.Height, qt.Equals, 480)
	c.Assert(cfg.Validation, qt.IsTrue)
	c.Assert(cfg.LogLevel, qt.Equals, logrus.DebugLevel)
	c.Assert(cfg.MeshOBJ, qt.Equals, "meshes/cube.obj")
	c.Assert(cfg.VertexShader, qt.Equals, config.Default().VertexShader)
}

func TestLoadFromFile(t *testing.T) {
	c := qt.New(t)
	path := filepath.Join(c.TempDir(), "app.env")
	c.Assert(os.WriteFile(path, []byte("TWOTRIANGLES_FRAGMENT_SHADER=custom/frag.spv\nTWOTRIANGLES_HEIGHT=300\n"), 0o644), qt.IsNil)
	c.Cleanup(func() {
		os.Unsetenv(config.FragmentShader)
		os.Unsetenv(config.Height)
	})
	// The environment wins over the file.
	c.Setenv(config.FragmentShader, "env/frag.spv")

	cfg, err := config.Load(path)
	c.Assert(err, qt.IsNil)
	c.Assert(cfg.FragmentShader, qt.Equals, "env/frag.spv")
	c.Assert(cfg.Height, qt.Equals, 300)

	_, err = config.Load(filepath.Join(c.TempDir(), "missing.env"))
	c.Assert(err, qt.ErrorMatches, "load .*missing.env.*")
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		name, value, message string
	}{
		{config.Width, "wide", `parse TWOTRIANGLES_WIDTH: .*invalid syntax`},
		{config.Height, "-4", `window size 1280x-4 must be positive`},
		{config.Validation, "maybe", `parse TWOTRIANGLES_VALIDATION: .*`},
		{config.LogLevel, "loud", `parse TWOTRIANGLES_LOG_LEVEL: not a valid logrus Level: "loud"`},
	}
	for _, tt := range tests {
		tt := tt
		qt.New(t).Run(tt.name, func(c *qt.C) {
			c.Setenv(tt.name, tt.value)
			_, err := config.Load()
			c.Assert(err, qt.ErrorMatches, tt.message)
		})
	}
}
