package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
)

// configNames are tried in order inside the config directory; the first
// entry is returned when none exist.
var configNames = []string{"config.jsonc", "config.yaml", "config.yml"}

// ResolvePath applies CLI, LECTERN_CONFIG, XDG and home fallback rules.
func ResolvePath(explicit string) (string, error) {
	if strings.TrimSpace(explicit) != "" {
		return explicit, nil
	}
	if env := strings.TrimSpace(os.Getenv("LECTERN_CONFIG")); env != "" {
		return env, nil
	}

	var dir string
	if xdg := strings.TrimSpace(os.Getenv("XDG_CONFIG_HOME")); xdg != "" {
		dir = filepath.Join(xdg, "lectern")
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", errors.New("unable to resolve user home for config fallback")
		}
		dir = filepath.Join(home, ".config", "lectern")
	}

	for _, name := range configNames {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return filepath.Join(dir, configNames[0]), nil
}

// StateDir resolves the per-user state directory (logs, archive, socket fallbacks).
func StateDir() (string, error) {
	if xdg := strings.TrimSpace(os.Getenv("XDG_STATE_HOME")); xdg != "" {
		return filepath.Join(xdg, "lectern"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".local", "state", "lectern"), nil
}

// StorePath returns the configured archive path or the state-dir default.
func (c Config) StorePath() (string, error) {
	if strings.TrimSpace(c.Store.Path) != "" {
		return c.Store.Path, nil
	}
	dir, err := StateDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "archive.db"), nil
}

// ModelPath resolves a pass model name against models.dir unless it is already a path.
func (c Config) ModelPath(model string) string {
	model = strings.TrimSpace(model)
	if model == "" || filepath.IsAbs(model) || strings.ContainsRune(model, filepath.Separator) {
		return model
	}
	return filepath.Join(c.Models.Dir, model)
}
