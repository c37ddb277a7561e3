// Completion: 100% - Configuration layering complete
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/xyproto/env/v2"

	"github.com/xyproto/jitframe/internal/engine"
	"github.com/xyproto/jitframe/internal/frame"
)

// defaultConfigFile is read from the working directory when -config is not given
const defaultConfigFile = "jitframe.toml"

// Config holds the settings that shape a compilation. Values come from a
// TOML file, then JITFRAME_* environment variables, then flags.
type Config struct {
	// Target is "arch-os", "all" or empty for the host
	Target string `toml:"target"`
	// Registers restricts allocation to these register names
	Registers  []string `toml:"registers"`
	MaxEntries int      `toml:"max-entries"`
	// Uncopy is auto, tracker or frame
	Uncopy    string `toml:"uncopy"`
	Debug     bool   `toml:"debug"`
	Verbosity int    `toml:"verbosity"`
	LogFile   string `toml:"log-file"`
}

// LoadConfig reads path. A missing default file is not an error.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{Uncopy: "auto"}
	explicit := path != ""
	if !explicit {
		path = defaultConfigFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse error in %s: %w", path, err)
		}
	case explicit || !errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	cfg.applyEnv()
	return cfg, nil
}

// applyEnv reloads the environment first, since env caches it once the
// cache is in use
func (cfg *Config) applyEnv() {
	env.Load()
	cfg.Target = env.Str("JITFRAME_TARGET", cfg.Target)
	if regs := env.Str("JITFRAME_REGISTERS"); regs != "" {
		cfg.Registers = strings.FieldsFunc(regs, func(r rune) bool { return r == ',' || r == ' ' })
	}
	cfg.MaxEntries = env.Int("JITFRAME_MAX_ENTRIES", cfg.MaxEntries)
	cfg.Uncopy = env.Str("JITFRAME_UNCOPY", cfg.Uncopy)
	if env.Has("JITFRAME_DEBUG") {
		cfg.Debug = env.Bool("JITFRAME_DEBUG")
	}
	cfg.Verbosity = env.Int("JITFRAME_VERBOSITY", cfg.Verbosity)
	cfg.LogFile = env.Str("JITFRAME_LOG", cfg.LogFile)
}

// UncopyWalk maps the uncopy setting onto the frame state's walk
func (cfg *Config) UncopyWalk() (frame.UncopyWalk, error) {
	switch strings.ToLower(cfg.Uncopy) {
	case "", "auto":
		return frame.WalkAuto, nil
	case "tracker":
		return frame.WalkTracker, nil
	case "frame":
		return frame.WalkFrame, nil
	}
	return frame.WalkAuto, fmt.Errorf("unknown uncopy walk %q (expected auto, tracker or frame)", cfg.Uncopy)
}

// RegisterFiles resolves the target setting into register files, applying
// any register restriction to each of them
func (cfg *Config) RegisterFiles() ([]*engine.RegisterFile, error) {
	var platforms []engine.Platform
	switch strings.ToLower(cfg.Target) {
	case "":
		platforms = []engine.Platform{engine.HostPlatform()}
	case "all":
		for _, arch := range engine.SupportedArchs() {
			platforms = append(platforms, engine.Platform{Arch: arch, OS: engine.OSLinux})
		}
	default:
		p, err := engine.ParsePlatform(cfg.Target)
		if err != nil {
			return nil, err
		}
		platforms = []engine.Platform{p}
	}

	var rfs []*engine.RegisterFile
	for _, p := range platforms {
		rf, err := engine.RegistersFor(p)
		if err != nil {
			return nil, err
		}
		if len(cfg.Registers) > 0 {
			var keep engine.RegMask
			for _, name := range cfg.Registers {
				r, ok := rf.Lookup(name)
				if !ok {
					return nil, fmt.Errorf("%s has no register %q", p, name)
				}
				keep = keep.With(r)
			}
			rf = rf.Restrict(keep)
			if rf.Avail.Empty() {
				return nil, fmt.Errorf("none of %s are allocatable on %s", strings.Join(cfg.Registers, ", "), p)
			}
		}
		rfs = append(rfs, rf)
	}
	return rfs, nil
}
