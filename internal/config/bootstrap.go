package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const UserConfigName = "config.yml"

// EnsureUserConfig returns dataDir/config.yml, creating it on first run.
// The shipped file at defaultPath is copied byte for byte so its comments
// survive; without one, Default() is written.
func EnsureUserConfig(dataDir string, defaultPath string) (string, error) {
	userPath := filepath.Join(dataDir, UserConfigName)
	if _, err := os.Stat(userPath); err == nil {
		return userPath, nil
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("stat %s: %w", userPath, err)
	}

	seed, err := os.ReadFile(defaultPath)
	if errors.Is(err, fs.ErrNotExist) {
		return userPath, SaveAtomic(userPath, Default())
	}
	if err != nil {
		return "", fmt.Errorf("read default config: %w", err)
	}

	probe := Default()
	if err := yaml.Unmarshal(seed, &probe); err != nil {
		return "", fmt.Errorf("default config %s: %w", defaultPath, err)
	}
	if err := writeFileAtomic(userPath, seed); err != nil {
		return "", err
	}
	return userPath, nil
}
