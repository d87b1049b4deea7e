package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/elidickinson/shot-power-scraper/internal/common/yamlutil"
)

const cliDefaultsFile = "config.yaml"

// CLIDefaults are settings saved by "shot-power-scraper config" and
// applied to every later command unless a flag overrides them
type CLIDefaults struct {
	AdBlock    bool   `yaml:"ad_block,omitempty"`
	PopupBlock bool   `yaml:"popup_block,omitempty"`
	UserAgent  string `yaml:"user_agent,omitempty"`
	EnableGPU  bool   `yaml:"enable_gpu,omitempty"`
}

// DefaultCLIDefaultsPath is ~/.config/shot-power-scraper/config.yaml
// (or the platform's user config directory)
func DefaultCLIDefaultsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(dir, "shot-power-scraper", cliDefaultsFile), nil
}

// LoadCLIDefaults reads path; a missing file yields zero defaults
func LoadCLIDefaults(path string) (CLIDefaults, error) {
	var d CLIDefaults
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return d, nil
	}
	if err != nil {
		return d, fmt.Errorf("failed to read defaults: %w", err)
	}
	if err := yamlutil.UnmarshalStrict(data, &d); err != nil {
		return d, fmt.Errorf("failed to parse defaults %s: %w", path, err)
	}
	return d, nil
}

// SaveCLIDefaults writes d to path, creating the directory
func SaveCLIDefaults(path string, d CLIDefaults) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(d)
	if err != nil {
		return fmt.Errorf("failed to encode defaults: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write defaults: %w", err)
	}
	return nil
}

// ClearCLIDefaults deletes path and reports whether it existed
func ClearCLIDefaults(path string) (bool, error) {
	err := os.Remove(path)
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to remove defaults: %w", err)
	}
	return true, nil
}
