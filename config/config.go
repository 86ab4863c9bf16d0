// Package config reads the application settings from the environment. An
// optional .env file is loaded first; variables already set in the
// environment win over the file.
package config

import (
	"os"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/gobuffalo/envy"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

const prefix = "TWOTRIANGLES_"

// Variable names.
const (
	Title          = prefix + "TITLE"
	Width          = prefix + "WIDTH"
	Height         = prefix + "HEIGHT"
	Validation     = prefix + "VALIDATION"
	LogLevel       = prefix + "LOG_LEVEL"
	VertexShader   = prefix + "VERTEX_SHADER"
	FragmentShader = prefix + "FRAGMENT_SHADER"
	MeshOBJ        = prefix + "MESH_OBJ"
	MeshMTL        = prefix + "MESH_MTL"
)

type Config struct {
	Title  string
	Width  int
	Height int

	// Validation enables the Khronos validation layer and routes its
	// messages to the log.
	Validation bool
	LogLevel   logrus.Level

	VertexShader   string
	FragmentShader string

	// MeshOBJ replaces the built-in two triangles when set.
	MeshOBJ string
	MeshMTL string
}

func Default() Config {
	return Config{
		Title:          "Two Triangles",
		Width:          1280,
		Height:         920,
		LogLevel:       logrus.InfoLevel,
		VertexShader:   "shaders/vert.spv",
		FragmentShader: "shaders/frag.spv",
	}
}

// Load reads the given .env files, or ./.env when none are named, and then
// the environment. A missing default .env is not an error; a missing named
// file is.
func Load(files ...string) (Config, error) {
	if len(files) == 0 {
		if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, errors.Wrap(err, "load .env")
		}
	} else if err := godotenv.Load(files...); err != nil {
		return Config{}, errors.Wrapf(err, "load %v", files)
	}
	envy.Reload()

	cfg := Default()
	cfg.Title = envy.Get(Title, cfg.Title)
	cfg.VertexShader = envy.Get(VertexShader, cfg.VertexShader)
	cfg.FragmentShader = envy.Get(FragmentShader, cfg.FragmentShader)
	cfg.MeshOBJ = envy.Get(MeshOBJ, cfg.MeshOBJ)
	cfg.MeshMTL = envy.Get(MeshMTL, cfg.MeshMTL)

	var err error
	if cfg.Width, err = intVar(Width, cfg.Width); err != nil {
		return Config{}, err
	}
	if cfg.Height, err = intVar(Height, cfg.Height); err != nil {
		return Config{}, err
	}
	if cfg.Width <= 0 || cfg.Height <= 0 {
		return Config{}, errors.Newf("window size %dx%d must be positive", cfg.Width, cfg.Height)
	}

	if v := envy.Get(Validation, ""); v != "" {
		if cfg.Validation, err = strconv.ParseBool(v); err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", Validation)
		}
	}
	if v := envy.Get(LogLevel, ""); v != "" {
		if cfg.LogLevel, err = logrus.ParseLevel(v); err != nil {
			return Config{}, errors.Wrapf(err, "parse %s", LogLevel)
		}
	}
	return cfg, nil
}

func intVar(name string, def int) (int, error) {
	v := envy.Get(name, "")
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse %s", name)
	}
	return n, nil
}
