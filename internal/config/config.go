// Package config loads dexscope settings from a YAML file.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"

	"github.com/ralt/dexscope/internal/device"
	"github.com/ralt/dexscope/internal/models"
	"github.com/ralt/dexscope/internal/utils"
	"gopkg.in/yaml.v3"
)

// FileName is the name of the config file inside the config directory
const FileName = "config.yaml"

// Config holds the settings shared by all commands. Command-line flags
// override the values read from the file.
type Config struct {
	// Locale used to pick labels; empty reads LC_ALL/LC_MESSAGES/LANG
	Locale string `yaml:"locale"`

	// Workers bounds scan concurrency; 0 means one per CPU
	Workers int `yaml:"workers"`

	// Scope is the default app scope: user, system or all
	Scope string `yaml:"scope"`

	// ADB routes device commands through adb instead of running them locally
	ADB       bool   `yaml:"adb"`
	ADBSerial string `yaml:"adb_serial"`

	// Database is the scan history file; empty means DefaultDatabase.
	// History is skipped only with --no-history
	Database string `yaml:"database"`

	Digest           bool `yaml:"digest"`
	RejectClassNames bool `yaml:"reject_class_names"`

	Signing SigningConfig `yaml:"signing"`
	Compile CompileConfig `yaml:"compile"`
}

// SigningConfig selects the OpenPGP key used to sign exported reports
type SigningConfig struct {
	Key        string `yaml:"key"`
	Passphrase string `yaml:"passphrase"`
}

// CompileConfig holds defaults for the compile command
type CompileConfig struct {
	Mode string `yaml:"mode"`
}

// Default returns the built-in settings
func Default() *Config {
	return &Config{
		Scope:   device.ScopeUser.String(),
		Compile: CompileConfig{Mode: device.DefaultCompileMode},
	}
}

// DefaultPath returns $XDG_CONFIG_HOME/dexscope/config.yaml
func DefaultPath() (string, error) {
	dir, err := utils.ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, FileName), nil
}

// DefaultDatabase returns the default scan history location
func DefaultDatabase() (string, error) {
	dir, err := utils.DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "history.db"), nil
}

// Load reads the config file at path on top of the defaults
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.ScanError{Type: models.ErrInvalidConfig, Path: path, Err: fmt.Errorf("failed to read config: %w", err)}
	}

	cfg := Default()
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, &models.ScanError{Type: models.ErrInvalidConfig, Path: path, Err: fmt.Errorf("failed to parse config: %w", err)}
	}
	if err := cfg.Validate(); err != nil {
		return nil, &models.ScanError{Type: models.ErrInvalidConfig, Path: path, Err: err}
	}
	return cfg, nil
}

// LoadDefault reads the config file at DefaultPath if it exists
func LoadDefault() (*Config, error) {
	path, err := DefaultPath()
	if err != nil {
		return Default(), nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return Default(), nil
	}
	return Load(path)
}

// Validate checks the settings for consistency
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative, got %d", c.Workers)
	}
	if c.Workers > 16*runtime.NumCPU() {
		return fmt.Errorf("workers %d is more than 16 per CPU", c.Workers)
	}
	if _, err := device.ParseAppScope(c.Scope); err != nil {
		return err
	}
	if c.Compile.Mode != "" {
		if err := device.ValidateCompileMode(c.Compile.Mode); err != nil {
			return err
		}
	}
	if c.ADBSerial != "" && !c.ADB {
		return fmt.Errorf("adb_serial is set but adb is disabled")
	}
	return nil
}

// Runner returns the device command runner the settings ask for
func (c *Config) Runner() device.Runner {
	if c.ADB {
		return device.NewADBRunner(c.ADBSerial)
	}
	return device.NewExecRunner()
}
