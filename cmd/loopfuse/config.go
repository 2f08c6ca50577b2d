package main

import (
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/nickng/loopfuse/interp"
	"github.com/pkg/errors"
)

const configName = "loopfuse.toml"

// Config is the content of loopfuse.toml.
type Config struct {
	Jobs   int          `toml:"jobs"` // 0 is GOMAXPROCS.
	Build  buildConfig  `toml:"build"`
	Fuse   fuseConfig   `toml:"fuse"`
	Verify verifyConfig `toml:"verify"`
	Log    logConfig    `toml:"log"`

	path string // File the config was read from, empty for defaults.
}

type buildConfig struct {
	Tests bool     `toml:"tests"`
	Skip  []string `toml:"skip"`
}

type fuseConfig struct {
	MaxFusions    int      `toml:"max_fusions"`
	Funcs         []string `toml:"funcs"`
	AssumeNoAlias bool     `toml:"assume_noalias"`
}

type verifyConfig struct {
	Inputs   int   `toml:"inputs"`
	SliceLen int   `toml:"slice_len"`
	Seed     int64 `toml:"seed"`
}

type logConfig struct {
	Debug bool     `toml:"debug"`
	Files []string `toml:"files"`
}

func defaultConfig() *Config {
	return &Config{
		Verify: verifyConfig{
			Inputs:   interp.DefaultInputs.Count,
			SliceLen: interp.DefaultInputs.SliceLen,
			Seed:     interp.DefaultInputs.Seed,
		},
	}
}

// findConfig looks for loopfuse.toml in startDir and its parents.
func findConfig(startDir string) (string, bool, error) {
	if startDir == "" {
		startDir = "."
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", false, errors.Wrap(err, "failed to resolve start directory")
	}
	for {
		candidate := filepath.Join(dir, configName)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, true, nil
		} else if !errors.Is(err, os.ErrNotExist) {
			return "", false, errors.Wrapf(err, "failed to stat %q", candidate)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", false, nil
}

// loadConfig reads the config at path over the defaults. An empty path
// searches from the working directory, and no file found gives the defaults.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()
	if path == "" {
		found, ok, err := findConfig(".")
		if err != nil {
			return nil, err
		}
		if !ok {
			return cfg, nil
		}
		path = found
	}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "%s: failed to parse TOML", path)
	}
	if undec := meta.Undecoded(); len(undec) > 0 {
		return nil, errors.Errorf("%s: unknown key %q", path, undec[0].String())
	}
	if cfg.Verify.Inputs < 0 || cfg.Verify.SliceLen < 0 {
		return nil, errors.Errorf("%s: verify.inputs and verify.slice_len must not be negative", path)
	}
	if cfg.Fuse.MaxFusions < 0 {
		return nil, errors.Errorf("%s: fuse.max_fusions must not be negative", path)
	}
	cfg.path = path
	return cfg, nil
}

func (c *Config) inputs(alias bool) interp.InputConfig {
	return interp.InputConfig{
		Count:    c.Verify.Inputs,
		SliceLen: c.Verify.SliceLen,
		Seed:     c.Verify.Seed,
		Alias:    alias,
	}
}
