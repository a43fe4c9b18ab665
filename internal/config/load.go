package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Loaded captures resolved config path, parsed values, and non-fatal warnings.
type Loaded struct {
	Path     string
	Config   Config
	Warnings []Warning
	Exists   bool
}

// Load resolves, reads, parses, and validates the runtime configuration.
// A missing file yields the defaults plus a warning.
func Load(explicitPath string) (Loaded, error) {
	path, err := ResolvePath(explicitPath)
	if err != nil {
		return Loaded{}, err
	}

	loaded := Loaded{Path: path, Config: Default()}
	content, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
		loaded.Warnings = []Warning{{
			Message: fmt.Sprintf("config file %q not found; using defaults", path),
		}}
	case err != nil:
		return Loaded{}, fmt.Errorf("read config %q: %w", path, err)
	default:
		cfg, warnings, err := Parse(string(content), loaded.Config)
		if err != nil {
			return Loaded{}, fmt.Errorf("parse config %q: %w", path, err)
		}
		loaded.Config, loaded.Warnings, loaded.Exists = cfg, warnings, true
	}

	loaded.Config = expandHome(loaded.Config)
	return loaded, nil
}

// expandHome resolves a leading ~ in path-valued settings.
func expandHome(cfg Config) Config {
	home, err := os.UserHomeDir()
	if err != nil {
		return cfg
	}
	ind := &cfg.Indicator
	for _, p := range []*string{
		&cfg.Session.Dir, &cfg.Models.Dir, &cfg.Store.Path, &cfg.Ask.EnvFile,
		&ind.SoundStartFile, &ind.SoundDrainingFile, &ind.SoundSavedFile, &ind.SoundErrorFile,
	} {
		switch {
		case *p == "~":
			*p = home
		case strings.HasPrefix(*p, "~/"):
			*p = filepath.Join(home, (*p)[2:])
		}
	}
	return cfg
}
